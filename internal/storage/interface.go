// Package storage provides persistence interfaces and implementations for
// the statement service.
//
// # Interface Design
//
// The storage layer is organized into focused interfaces:
//
//   - [StatementStore]: metadata of every received statement file
//   - [TransactionStore]: transactions extracted from statements
//   - [AnalysisStore]: donation analyses, retrievable by ID
//   - [RawFileStore]: the uploaded files themselves (binary, optionally gzip)
//
// The [Store] interface combines all sub-stores for convenience.
//
// # Implementations
//
// The memory sub-package keeps everything in process and backs tests and
// single-node deployments. The mongodb sub-package stores documents in
// collections and raw files in GridFS.
//
// # Concurrency
//
// All store implementations must be safe for concurrent use from multiple
// goroutines.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/omerasipi/Es-Selam-Banko/pkg/camt"
	"github.com/omerasipi/Es-Selam-Banko/pkg/donation"
)

var (
	// ErrNotFound indicates a missing record
	ErrNotFound = errors.New("storage: not found")

	// ErrDuplicate indicates a record with the same unique key exists
	ErrDuplicate = errors.New("storage: duplicate")
)

// Store is the main storage interface combining all sub-stores
type Store interface {
	StatementStore
	TransactionStore
	AnalysisStore
	RawFileStore

	// Close releases storage resources
	Close(ctx context.Context) error

	// Ping checks backend connectivity
	Ping(ctx context.Context) error
}

// StatementStore manages statement metadata
type StatementStore interface {
	// CreateStatement stores a statement. A statement with the same checksum
	// yields ErrDuplicate.
	CreateStatement(ctx context.Context, stmt *Statement) error

	// GetStatement retrieves a statement by ID
	GetStatement(ctx context.Context, id string) (*Statement, error)

	// GetStatementByChecksum retrieves a statement by content checksum
	GetStatementByChecksum(ctx context.Context, checksum string) (*Statement, error)

	// ListStatements returns statements, newest first
	ListStatements(ctx context.Context, filter *StatementFilter) ([]*Statement, error)

	// DeleteStatement removes a statement and its transactions
	DeleteStatement(ctx context.Context, id string) error
}

// TransactionStore manages extracted transactions
type TransactionStore interface {
	// SaveTransactions stores the transactions of one statement
	SaveTransactions(ctx context.Context, records []*TransactionRecord) error

	// ListTransactions returns transactions ordered by date, then creation
	ListTransactions(ctx context.Context, filter *TransactionFilter) ([]*TransactionRecord, error)
}

// AnalysisStore manages donation analyses
type AnalysisStore interface {
	// SaveAnalysis stores an analysis
	SaveAnalysis(ctx context.Context, rec *AnalysisRecord) error

	// GetAnalysis retrieves an analysis by ID
	GetAnalysis(ctx context.Context, id string) (*AnalysisRecord, error)
}

// RawFileStore manages uploaded files
type RawFileStore interface {
	// StoreRawFile stores a file and returns its ID
	StoreRawFile(ctx context.Context, file *RawFile) (string, error)

	// GetRawFile retrieves a file by ID
	GetRawFile(ctx context.Context, id string) (*RawFile, error)

	// DeleteRawFile deletes a file
	DeleteRawFile(ctx context.Context, id string) error
}

// Domain models

// Statement describes one received statement or notification file
type Statement struct {
	ID        string `bson:"_id" json:"id"`
	MessageID string `bson:"message_id" json:"messageId"`
	// Format is the message definition, e.g. camt.053.001.08
	Format   string `bson:"format" json:"format"`
	FileName string `bson:"file_name" json:"fileName"`
	FileSize int64  `bson:"file_size" json:"fileSize"`
	Checksum string `bson:"checksum" json:"checksum"`
	Account  string `bson:"account,omitempty" json:"account,omitempty"`

	Valid            bool `bson:"valid" json:"valid"`
	IssueCount       int  `bson:"issue_count" json:"issueCount"`
	TransactionCount int  `bson:"transaction_count" json:"transactionCount"`

	RawFileID  string    `bson:"raw_file_id,omitempty" json:"rawFileId,omitempty"`
	Source     string    `bson:"source" json:"source"`
	ReceivedAt time.Time `bson:"received_at" json:"receivedAt"`
}

type StatementFilter struct {
	Format string
	Since  *time.Time
	Limit  int
	Offset int
}

// TransactionRecord is a persisted transaction
type TransactionRecord struct {
	ID               string `bson:"_id" json:"id"`
	StatementID      string `bson:"statement_id" json:"statementId"`
	camt.Transaction `bson:",inline"`
	CreatedAt        time.Time `bson:"created_at" json:"createdAt"`
}

// NewTransactionRecords wraps the transactions of a statement for storage
func NewTransactionRecords(statementID string, txs []camt.Transaction) []*TransactionRecord {
	out := make([]*TransactionRecord, 0, len(txs))
	for _, tx := range txs {
		out = append(out, &TransactionRecord{StatementID: statementID, Transaction: tx})
	}
	return out
}

// Transactions unwraps records
func Transactions(records []*TransactionRecord) []camt.Transaction {
	out := make([]camt.Transaction, 0, len(records))
	for _, r := range records {
		out = append(out, r.Transaction)
	}
	return out
}

type TransactionFilter struct {
	StatementID string
	// From and To bound the transaction date, both inclusive; zero is open
	From   time.Time
	To     time.Time
	Type   camt.TransactionType
	Debtor string
	Limit  int
}

// AnalysisRecord is a persisted donation analysis
type AnalysisRecord struct {
	ID                string             `bson:"_id" json:"id"`
	Source            string             `bson:"source" json:"source"`
	StatementIDs      []string           `bson:"statement_ids" json:"statementIds"`
	Files             []FileSummary      `bson:"files" json:"files"`
	TotalTransactions int                `bson:"total_transactions" json:"totalTransactions"`
	Analysis          *donation.Analysis `bson:"analysis" json:"analysis"`
	CreatedAt         time.Time          `bson:"created_at" json:"createdAt"`
}

// FileSummary describes one file of an analysis
type FileSummary struct {
	FileName          string `bson:"file_name" json:"fileName"`
	FileSize          int64  `bson:"file_size" json:"fileSize"`
	FileType          string `bson:"file_type" json:"fileType"`
	TransactionsFound int    `bson:"transactions_found" json:"transactionsFound"`
	Duplicate         bool   `bson:"duplicate,omitempty" json:"duplicate,omitempty"`
	StatementID       string `bson:"statement_id,omitempty" json:"statementId,omitempty"`
}

// RawFile holds a stored file and its metadata
type RawFile struct {
	ID          string `json:"id"`
	FileName    string `json:"fileName"`
	ContentType string `json:"contentType"`
	// Compressed is set when Data is gzip encoded
	Compressed bool   `json:"compressed"`
	Checksum   string `json:"checksum"`
	Data       []byte `json:"-"`
}
