package camt

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/omerasipi/Es-Selam-Banko/pkg/message"
	"github.com/omerasipi/Es-Selam-Banko/pkg/schema"
)

// Processor turns the entries of one message format into transactions
type Processor interface {
	// CanProcess reports whether msg is in the processor's format
	CanProcess(msg *message.Message) bool
	// FormatVersion returns the message version handled, e.g. "053.001.08"
	FormatVersion() string
	// Transactions extracts one transaction per entry, in document order
	Transactions(msg *message.Message) ([]Transaction, error)
}

// ProcessorOption configures the built-in processors
type ProcessorOption func(*entryProcessor)

// WithClock sets the clock used for entries without booking or value date
func WithClock(now func() time.Time) ProcessorOption {
	return func(p *entryProcessor) {
		p.now = now
	}
}

type entryProcessor struct {
	id      schema.ID
	reports func(msg *message.Message) ([]AccountReport, error)
	now     func() time.Time
}

// NewStatementProcessor handles camt.053.001.08 bank-to-customer statements
func NewStatementProcessor(opts ...ProcessorOption) Processor {
	return newEntryProcessor(schema.Camt05300108, func(msg *message.Message) ([]AccountReport, error) {
		doc, err := DecodeStatement(msg)
		if err != nil {
			return nil, err
		}
		return doc.Statement.Statements, nil
	}, opts)
}

// NewNotificationProcessor handles camt.054.001.08 debit/credit notifications
func NewNotificationProcessor(opts ...ProcessorOption) Processor {
	return newEntryProcessor(schema.Camt05400108, func(msg *message.Message) ([]AccountReport, error) {
		doc, err := DecodeNotification(msg)
		if err != nil {
			return nil, err
		}
		return doc.Notification.Notifications, nil
	}, opts)
}

func newEntryProcessor(id schema.ID, reports func(*message.Message) ([]AccountReport, error), opts []ProcessorOption) *entryProcessor {
	p := &entryProcessor{id: id, reports: reports, now: time.Now}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *entryProcessor) CanProcess(msg *message.Message) bool {
	return msg != nil && msg.Definition != nil && msg.ID() == p.id
}

func (p *entryProcessor) FormatVersion() string {
	return p.id.Version()
}

func (p *entryProcessor) Transactions(msg *message.Message) ([]Transaction, error) {
	reports, err := p.reports(msg)
	if err != nil {
		return nil, err
	}

	txs := make([]Transaction, 0)
	for _, report := range reports {
		account := report.Account.ID.String()
		for i := range report.Entries {
			tx := p.mapEntry(&report.Entries[i])
			tx.Account = account
			txs = append(txs, tx)
		}
	}
	return txs, nil
}

func (p *entryProcessor) mapEntry(e *Entry) Transaction {
	amount, err := message.ParseDecimal(e.Amount.Value)
	if err != nil {
		amount = decimal.Zero
	}

	ref := e.Reference
	if ref == "" {
		ref = e.ServicerReference
	}

	return Transaction{
		DebtorName:     debtorName(e),
		Date:           p.entryDate(e),
		Amount:         amount,
		Currency:       e.Amount.Currency,
		Reference:      remittanceReference(e),
		Type:           TypeFromIndicator(e.CreditDebit),
		EntryReference: ref,
	}
}

func firstTransaction(e *Entry) *TransactionDetails {
	if len(e.Details) == 0 || len(e.Details[0].Transactions) == 0 {
		return nil
	}
	return &e.Details[0].Transactions[0]
}

func debtorName(e *Entry) string {
	tx := firstTransaction(e)
	if tx == nil || tx.Parties == nil || tx.Parties.Debtor == nil || tx.Parties.Debtor.Party.Name == "" {
		return UnknownDebtor
	}
	return tx.Parties.Debtor.Party.Name
}

// remittanceReference prefers a structured creditor reference over the first
// unstructured line
func remittanceReference(e *Entry) string {
	tx := firstTransaction(e)
	if tx == nil || tx.Remittance == nil {
		return ""
	}
	for _, s := range tx.Remittance.Structured {
		if s.CreditorReference != nil && s.CreditorReference.Reference != "" {
			return s.CreditorReference.Reference
		}
	}
	if len(tx.Remittance.Unstructured) > 0 {
		return tx.Remittance.Unstructured[0]
	}
	return ""
}

// entryDate uses the booking date, then the value date, then the clock.
// Date-times keep the calendar day of their own zone.
func (p *entryProcessor) entryDate(e *Entry) time.Time {
	for _, d := range []*DateAndDateTime{e.BookingDate, e.ValueDate} {
		if t, ok := calendarDay(d); ok {
			return t
		}
	}
	return truncateDay(p.now())
}

func calendarDay(d *DateAndDateTime) (time.Time, bool) {
	if d == nil {
		return time.Time{}, false
	}
	if d.Date != "" {
		if t, err := message.ParseDate(d.Date); err == nil {
			return truncateDay(t), true
		}
	}
	if d.DateTime != "" {
		if t, err := message.ParseDateTime(d.DateTime); err == nil {
			return truncateDay(t), true
		}
	}
	return time.Time{}, false
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
