package camt

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ErrInvalidTransaction indicates a transaction missing required data
var ErrInvalidTransaction = errors.New("camt: invalid transaction")

// TransactionType is the direction of a transaction from the account holder's view
type TransactionType string

const (
	Credit TransactionType = "CREDIT"
	Debit  TransactionType = "DEBIT"
)

// UnknownDebtor is used when an entry names no debtor
const UnknownDebtor = "Unknown"

// TypeFromIndicator maps a CdtDbtInd code. Anything but CRDT is a debit.
func TypeFromIndicator(code string) TransactionType {
	if strings.EqualFold(strings.TrimSpace(code), CodeCredit) {
		return Credit
	}
	return Debit
}

// Indicator returns the CdtDbtInd code for the type
func (t TransactionType) Indicator() string {
	if t == Credit {
		return CodeCredit
	}
	return CodeDebit
}

// Transaction is one entry extracted from a statement or notification
type Transaction struct {
	DebtorName     string          `json:"debtorName"`
	Date           time.Time       `json:"date"`
	Amount         decimal.Decimal `json:"amount"`
	Currency       string          `json:"currency,omitempty"`
	Reference      string          `json:"reference"`
	Type           TransactionType `json:"type"`
	EntryReference string          `json:"entryReference,omitempty"`
	Account        string          `json:"account,omitempty"`
}

// NewTransaction creates a transaction. The debtor name, the date and the
// amount are required.
func NewTransaction(debtorName string, date time.Time, amount *decimal.Decimal, reference string, typ TransactionType) (*Transaction, error) {
	if strings.TrimSpace(debtorName) == "" {
		return nil, fmt.Errorf("%w: debtor name is required", ErrInvalidTransaction)
	}
	if date.IsZero() {
		return nil, fmt.Errorf("%w: date is required", ErrInvalidTransaction)
	}
	if amount == nil {
		return nil, fmt.Errorf("%w: amount is required", ErrInvalidTransaction)
	}
	if typ != Credit && typ != Debit {
		return nil, fmt.Errorf("%w: unknown type %q", ErrInvalidTransaction, typ)
	}
	return &Transaction{
		DebtorName: debtorName,
		Date:       date,
		Amount:     *amount,
		Reference:  reference,
		Type:       typ,
	}, nil
}

// IsCredit reports whether money was received
func (t *Transaction) IsCredit() bool {
	return t.Type == Credit
}
