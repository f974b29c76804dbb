package camt

import (
	"encoding/xml"
	"fmt"

	"github.com/omerasipi/Es-Selam-Banko/pkg/message"
	"github.com/omerasipi/Es-Selam-Banko/pkg/schema"
)

// Namespaces of the supported messages
const (
	NsCamt053 = schema.NamespacePrefix + "camt.053.001.08"
	NsCamt054 = schema.NamespacePrefix + "camt.054.001.08"
)

// Credit/debit indicator codes
const (
	CodeCredit = "CRDT"
	CodeDebit  = "DBIT"
)

// StatementDocument is the Document of a camt.053.001.08 message
type StatementDocument struct {
	XMLName   xml.Name                 `xml:"urn:iso:std:iso:20022:tech:xsd:camt.053.001.08 Document"`
	Statement *BankToCustomerStatement `xml:"BkToCstmrStmt"`
}

// BankToCustomerStatement is the BkToCstmrStmt business root
type BankToCustomerStatement struct {
	GroupHeader GroupHeader     `xml:"GrpHdr"`
	Statements  []AccountReport `xml:"Stmt"`
}

// NotificationDocument is the Document of a camt.054.001.08 message
type NotificationDocument struct {
	XMLName      xml.Name                    `xml:"urn:iso:std:iso:20022:tech:xsd:camt.054.001.08 Document"`
	Notification *BankToCustomerNotification `xml:"BkToCstmrDbtCdtNtfctn"`
}

// BankToCustomerNotification is the BkToCstmrDbtCdtNtfctn business root
type BankToCustomerNotification struct {
	GroupHeader   GroupHeader     `xml:"GrpHdr"`
	Notifications []AccountReport `xml:"Ntfctn"`
}

// GroupHeader identifies the message
type GroupHeader struct {
	MessageID        string `xml:"MsgId"`
	CreationDateTime string `xml:"CreDtTm"`
}

// AccountReport is the shape shared by Stmt and Ntfctn blocks
type AccountReport struct {
	ID                 string               `xml:"Id"`
	ElectronicSequence string               `xml:"ElctrncSeqNb,omitempty"`
	CreationDateTime   string               `xml:"CreDtTm,omitempty"`
	Period             *Period              `xml:"FrToDt,omitempty"`
	Account            Account              `xml:"Acct"`
	Balances           []Balance            `xml:"Bal"`
	Summary            *TransactionsSummary `xml:"TxsSummry,omitempty"`
	Entries            []Entry              `xml:"Ntry"`
}

// Period is a FrToDt date-time range
type Period struct {
	From string `xml:"FrDtTm"`
	To   string `xml:"ToDtTm"`
}

// Account is the reported cash account
type Account struct {
	ID       AccountID `xml:"Id"`
	Currency string    `xml:"Ccy,omitempty"`
	Name     string    `xml:"Nm,omitempty"`
}

// AccountID is either an IBAN or a proprietary identification
type AccountID struct {
	IBAN  string            `xml:"IBAN,omitempty"`
	Other *GenericAccountID `xml:"Othr,omitempty"`
}

// GenericAccountID is a proprietary account identification
type GenericAccountID struct {
	ID string `xml:"Id"`
}

// String returns the IBAN or the proprietary id
func (a AccountID) String() string {
	if a.IBAN != "" {
		return a.IBAN
	}
	if a.Other != nil {
		return a.Other.ID
	}
	return ""
}

// Amount is a decimal value with its currency
type Amount struct {
	Currency string `xml:"Ccy,attr"`
	Value    string `xml:",chardata"`
}

// Balance is a booked or available balance of the account
type Balance struct {
	Type        BalanceType     `xml:"Tp"`
	Amount      Amount          `xml:"Amt"`
	CreditDebit string          `xml:"CdtDbtInd"`
	Date        DateAndDateTime `xml:"Dt"`
}

// BalanceType carries a balance type code
type BalanceType struct {
	CodeOrProprietary CodeOrProprietary `xml:"CdOrPrtry"`
}

// CodeOrProprietary holds exactly one of a code or a proprietary value
type CodeOrProprietary struct {
	Code        string `xml:"Cd,omitempty"`
	Proprietary string `xml:"Prtry,omitempty"`
}

// TransactionsSummary holds the entry totals of a report
type TransactionsSummary struct {
	Total  *NumberAndSum `xml:"TtlNtries,omitempty"`
	Credit *NumberAndSum `xml:"TtlCdtNtries,omitempty"`
	Debit  *NumberAndSum `xml:"TtlDbtNtries,omitempty"`
}

// NumberAndSum is a count of entries and their sum
type NumberAndSum struct {
	Count string `xml:"NbOfNtries,omitempty"`
	Sum   string `xml:"Sum,omitempty"`
}

// DateAndDateTime holds exactly one of a date or a date-time
type DateAndDateTime struct {
	Date     string `xml:"Dt,omitempty"`
	DateTime string `xml:"DtTm,omitempty"`
}

// Entry is one booked or pending movement on the account
type Entry struct {
	Reference         string            `xml:"NtryRef,omitempty"`
	Amount            Amount            `xml:"Amt"`
	CreditDebit       string            `xml:"CdtDbtInd"`
	Reversal          string            `xml:"RvslInd,omitempty"`
	Status            CodeOrProprietary `xml:"Sts"`
	BookingDate       *DateAndDateTime  `xml:"BookgDt,omitempty"`
	ValueDate         *DateAndDateTime  `xml:"ValDt,omitempty"`
	ServicerReference string            `xml:"AcctSvcrRef,omitempty"`
	Details           []EntryDetails    `xml:"NtryDtls"`
	AdditionalInfo    string            `xml:"AddtlNtryInf,omitempty"`
}

// EntryDetails groups the transactions of an entry
type EntryDetails struct {
	Transactions []TransactionDetails `xml:"TxDtls"`
}

// TransactionDetails describes one underlying transaction
type TransactionDetails struct {
	References  *References            `xml:"Refs,omitempty"`
	Amount      *Amount                `xml:"Amt,omitempty"`
	CreditDebit string                 `xml:"CdtDbtInd,omitempty"`
	Parties     *RelatedParties        `xml:"RltdPties,omitempty"`
	Remittance  *RemittanceInformation `xml:"RmtInf,omitempty"`
}

// References of an underlying transaction
type References struct {
	MessageID         string `xml:"MsgId,omitempty"`
	ServicerReference string `xml:"AcctSvcrRef,omitempty"`
	EndToEndID        string `xml:"EndToEndId,omitempty"`
}

// RelatedParties of an underlying transaction
type RelatedParties struct {
	Debtor        *PartyRole `xml:"Dbtr,omitempty"`
	DebtorAccount *CashRef   `xml:"DbtrAcct,omitempty"`
	Creditor      *PartyRole `xml:"Cdtr,omitempty"`
}

// PartyRole wraps a party identification
type PartyRole struct {
	Party Party `xml:"Pty"`
}

// Party identifies a person or organisation
type Party struct {
	Name string `xml:"Nm,omitempty"`
}

// CashRef references a counterparty account
type CashRef struct {
	ID AccountID `xml:"Id"`
}

// RemittanceInformation carries the purpose of a payment
type RemittanceInformation struct {
	Unstructured []string               `xml:"Ustrd,omitempty"`
	Structured   []StructuredRemittance `xml:"Strd,omitempty"`
}

// StructuredRemittance carries a creditor reference
type StructuredRemittance struct {
	CreditorReference *CreditorReference `xml:"CdtrRefInf,omitempty"`
}

// CreditorReference is a structured creditor reference, e.g. an RF reference
type CreditorReference struct {
	Reference string `xml:"Ref,omitempty"`
}

// DecodeStatement binds a camt.053 message to its typed form
func DecodeStatement(msg *message.Message) (*StatementDocument, error) {
	var doc StatementDocument
	if err := decode(msg, schema.Camt05300108, &doc); err != nil {
		return nil, err
	}
	if doc.Statement == nil {
		return nil, fmt.Errorf("camt: %s: missing BkToCstmrStmt", msg.ID())
	}
	return &doc, nil
}

// DecodeNotification binds a camt.054 message to its typed form
func DecodeNotification(msg *message.Message) (*NotificationDocument, error) {
	var doc NotificationDocument
	if err := decode(msg, schema.Camt05400108, &doc); err != nil {
		return nil, err
	}
	if doc.Notification == nil {
		return nil, fmt.Errorf("camt: %s: missing BkToCstmrDbtCdtNtfctn", msg.ID())
	}
	return &doc, nil
}

func decode(msg *message.Message, want schema.ID, v any) error {
	if msg.ID() != want {
		return fmt.Errorf("camt: expected %s, got %s", want, msg.ID())
	}
	data, err := message.Serialize(msg, message.Compact())
	if err != nil {
		return err
	}
	if err := xml.Unmarshal(data, v); err != nil {
		return fmt.Errorf("camt: failed to decode %s: %w", want, err)
	}
	return nil
}
