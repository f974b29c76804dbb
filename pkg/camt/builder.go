package camt

import (
	"encoding/xml"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/omerasipi/Es-Selam-Banko/pkg/message"
	"github.com/omerasipi/Es-Selam-Banko/pkg/schema"
	"github.com/omerasipi/Es-Selam-Banko/pkg/validate"
)

// EntryInput describes an entry to generate
type EntryInput struct {
	Reference         string
	Amount            decimal.Decimal
	Currency          string // defaults to the account currency
	Type              TransactionType
	Status            string // defaults to BOOK
	BookingDate       time.Time
	ValueDate         time.Time
	DebtorName        string
	CreditorName      string
	CreditorReference string
	Remittance        []string
	EndToEndID        string
	AdditionalInfo    string
}

type balanceInput struct {
	code   string
	amount decimal.Decimal
	typ    TransactionType
	date   time.Time
}

// Builder generates camt.053 and camt.054 messages
type Builder struct {
	id       schema.ID
	header   GroupHeader
	report   AccountReport
	created  time.Time
	period   *[2]time.Time
	entries  []EntryInput
	balances []balanceInput
	reg      *schema.Registry
	errors   []error
}

// Option represents a functional option for Builder
type Option func(*Builder)

// NewStatement creates a builder for a camt.053.001.08 statement
func NewStatement(opts ...Option) *Builder {
	return newBuilder(schema.Camt05300108, opts)
}

// NewNotification creates a builder for a camt.054.001.08 notification
func NewNotification(opts ...Option) *Builder {
	return newBuilder(schema.Camt05400108, opts)
}

func newBuilder(id schema.ID, opts []Option) *Builder {
	msgID := generateMessageID()
	b := &Builder{
		id:      id,
		header:  GroupHeader{MessageID: msgID},
		report:  AccountReport{ID: msgID},
		created: time.Now().UTC().Truncate(time.Second),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// WithMessageID sets the group header message identification
func WithMessageID(id string) Option {
	return func(b *Builder) {
		b.header.MessageID = id
	}
}

// WithReportID sets the identification of the Stmt or Ntfctn block
func WithReportID(id string) Option {
	return func(b *Builder) {
		b.report.ID = id
	}
}

// WithCreationTime sets the creation date-time
func WithCreationTime(t time.Time) Option {
	return func(b *Builder) {
		b.created = t
	}
}

// WithAccount sets the account IBAN and currency
func WithAccount(iban, currency string) Option {
	return func(b *Builder) {
		b.report.Account.ID = AccountID{IBAN: strings.ReplaceAll(iban, " ", "")}
		b.report.Account.Currency = currency
	}
}

// WithAccountName sets the account name
func WithAccountName(name string) Option {
	return func(b *Builder) {
		b.report.Account.Name = name
	}
}

// WithPeriod sets the reporting period
func WithPeriod(from, to time.Time) Option {
	return func(b *Builder) {
		b.period = &[2]time.Time{from, to}
	}
}

// WithBalance adds a balance, e.g. WithBalance("OPBD", amount, Credit, date).
// Balances are only part of statements.
func WithBalance(code string, amount decimal.Decimal, typ TransactionType, date time.Time) Option {
	return func(b *Builder) {
		if b.id != schema.Camt05300108 {
			b.errors = append(b.errors, fmt.Errorf("balances are not part of %s", b.id))
			return
		}
		b.balances = append(b.balances, balanceInput{code: code, amount: amount, typ: typ, date: date})
	}
}

// WithEntry adds an entry
func WithEntry(e EntryInput) Option {
	return func(b *Builder) {
		b.entries = append(b.entries, e)
	}
}

// WithTransaction adds an entry carrying a transaction
func WithTransaction(tx Transaction) Option {
	return func(b *Builder) {
		e := EntryInput{
			Reference:   tx.EntryReference,
			Amount:      tx.Amount,
			Currency:    tx.Currency,
			Type:        tx.Type,
			BookingDate: tx.Date,
		}
		if tx.DebtorName != "" && tx.DebtorName != UnknownDebtor {
			e.DebtorName = tx.DebtorName
		}
		if tx.Reference != "" {
			e.Remittance = []string{tx.Reference}
		}
		b.entries = append(b.entries, e)
	}
}

// WithRegistry sets the registry used to bind the generated message
func WithRegistry(reg *schema.Registry) Option {
	return func(b *Builder) {
		b.reg = reg
	}
}

// Build returns the generated message after validating it
func (b *Builder) Build() (*message.Message, error) {
	if len(b.errors) > 0 {
		return nil, errors.Join(b.errors...)
	}

	// Validate required fields
	if b.header.MessageID == "" {
		return nil, fmt.Errorf("message ID is required")
	}
	if b.report.ID == "" {
		return nil, fmt.Errorf("report ID is required")
	}
	if b.report.Account.ID.String() == "" {
		return nil, fmt.Errorf("account is required")
	}

	report := b.report
	created := b.created.Format(time.RFC3339)
	report.CreationDateTime = created
	if b.period != nil {
		report.Period = &Period{From: b.period[0].Format(time.RFC3339), To: b.period[1].Format(time.RFC3339)}
	}

	for i, in := range b.balances {
		ccy := report.Account.Currency
		if ccy == "" {
			return nil, fmt.Errorf("balance %d: account currency is required", i+1)
		}
		report.Balances = append(report.Balances, Balance{
			Type:        BalanceType{CodeOrProprietary: CodeOrProprietary{Code: in.code}},
			Amount:      Amount{Currency: ccy, Value: formatAmount(in.amount)},
			CreditDebit: in.typ.Indicator(),
			Date:        DateAndDateTime{Date: in.date.Format(message.DateLayout)},
		})
	}

	summary := &TransactionsSummary{}
	var total, credit, debit summaryTotals
	for i, in := range b.entries {
		entry, err := b.entry(in)
		if err != nil {
			return nil, fmt.Errorf("entry %d: %w", i+1, err)
		}
		report.Entries = append(report.Entries, entry)
		total.add(in.Amount)
		if in.Type == Credit {
			credit.add(in.Amount)
		} else {
			debit.add(in.Amount)
		}
	}
	summary.Total = total.numberAndSum()
	if credit.count > 0 {
		summary.Credit = credit.numberAndSum()
	}
	if debit.count > 0 {
		summary.Debit = debit.numberAndSum()
	}
	report.Summary = summary

	header := b.header
	header.CreationDateTime = created

	var doc any
	if b.id == schema.Camt05300108 {
		doc = &StatementDocument{Statement: &BankToCustomerStatement{GroupHeader: header, Statements: []AccountReport{report}}}
	} else {
		doc = &NotificationDocument{Notification: &BankToCustomerNotification{GroupHeader: header, Notifications: []AccountReport{report}}}
	}

	data, err := xml.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s: %w", b.id, err)
	}

	reg := b.reg
	if reg == nil {
		reg = schema.Default()
	}
	msg, err := message.NewParser(reg).Parse(data)
	if err != nil {
		return nil, err
	}
	if err := validate.New().Validate(msg).Err(); err != nil {
		return nil, err
	}
	return msg, nil
}

// Marshal returns the canonical XML of the generated message
func (b *Builder) Marshal(opts ...message.SerializeOption) ([]byte, error) {
	msg, err := b.Build()
	if err != nil {
		return nil, err
	}
	return message.Serialize(msg, opts...)
}

func (b *Builder) entry(in EntryInput) (Entry, error) {
	if in.Type != Credit && in.Type != Debit {
		return Entry{}, fmt.Errorf("unknown type %q", in.Type)
	}
	if in.Amount.IsNegative() {
		return Entry{}, fmt.Errorf("amount must not be negative")
	}
	ccy := in.Currency
	if ccy == "" {
		ccy = b.report.Account.Currency
	}
	if ccy == "" {
		return Entry{}, fmt.Errorf("currency is required")
	}
	status := in.Status
	if status == "" {
		status = "BOOK"
	}

	e := Entry{
		Reference:      in.Reference,
		Amount:         Amount{Currency: ccy, Value: formatAmount(in.Amount)},
		CreditDebit:    in.Type.Indicator(),
		Status:         CodeOrProprietary{Code: status},
		AdditionalInfo: in.AdditionalInfo,
	}
	if !in.BookingDate.IsZero() {
		e.BookingDate = &DateAndDateTime{Date: in.BookingDate.Format(message.DateLayout)}
	}
	if !in.ValueDate.IsZero() {
		e.ValueDate = &DateAndDateTime{Date: in.ValueDate.Format(message.DateLayout)}
	}

	tx := TransactionDetails{}
	hasDetails := false
	if in.EndToEndID != "" {
		tx.References = &References{EndToEndID: in.EndToEndID}
		hasDetails = true
	}
	if in.DebtorName != "" || in.CreditorName != "" {
		tx.Parties = &RelatedParties{}
		if in.DebtorName != "" {
			tx.Parties.Debtor = &PartyRole{Party: Party{Name: in.DebtorName}}
		}
		if in.CreditorName != "" {
			tx.Parties.Creditor = &PartyRole{Party: Party{Name: in.CreditorName}}
		}
		hasDetails = true
	}
	if in.CreditorReference != "" || len(in.Remittance) > 0 {
		tx.Remittance = &RemittanceInformation{Unstructured: in.Remittance}
		if in.CreditorReference != "" {
			tx.Remittance.Structured = []StructuredRemittance{{
				CreditorReference: &CreditorReference{Reference: in.CreditorReference},
			}}
		}
		hasDetails = true
	}
	if hasDetails {
		tx.Amount = &Amount{Currency: ccy, Value: formatAmount(in.Amount)}
		tx.CreditDebit = in.Type.Indicator()
		e.Details = []EntryDetails{{Transactions: []TransactionDetails{tx}}}
	}
	return e, nil
}

type summaryTotals struct {
	count int
	sum   decimal.Decimal
}

func (s *summaryTotals) add(amount decimal.Decimal) {
	s.count++
	s.sum = s.sum.Add(amount)
}

func (s *summaryTotals) numberAndSum() *NumberAndSum {
	return &NumberAndSum{Count: fmt.Sprintf("%d", s.count), Sum: formatAmount(s.sum)}
}

// formatAmount writes at least two fraction digits
func formatAmount(d decimal.Decimal) string {
	if d.Exponent() >= -2 {
		return d.StringFixed(2)
	}
	return d.String()
}

// generateMessageID returns a unique identifier within the 35 character limit
func generateMessageID() string {
	return strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", ""))
}
