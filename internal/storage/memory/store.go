// Package memory implements storage interfaces in process memory
package memory

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/omerasipi/Es-Selam-Banko/internal/storage"
)

// Store implements storage.Store with maps guarded by a mutex
type Store struct {
	mu sync.RWMutex

	statements   map[string]*storage.Statement
	byChecksum   map[string]string
	transactions []*storage.TransactionRecord
	analyses     map[string]*storage.AnalysisRecord
	files        map[string]*storage.RawFile

	now func() time.Time
}

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{
		statements: make(map[string]*storage.Statement),
		byChecksum: make(map[string]string),
		analyses:   make(map[string]*storage.AnalysisRecord),
		files:      make(map[string]*storage.RawFile),
		now:        time.Now,
	}
}

// Close is a no-op
func (s *Store) Close(ctx context.Context) error {
	return nil
}

// Ping always succeeds
func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

// StatementStore implementation

func (s *Store) CreateStatement(ctx context.Context, stmt *storage.Statement) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if stmt.Checksum != "" {
		if _, exists := s.byChecksum[stmt.Checksum]; exists {
			return fmt.Errorf("%w: statement with checksum %s", storage.ErrDuplicate, stmt.Checksum)
		}
	}
	if stmt.ID == "" {
		stmt.ID = uuid.NewString()
	}
	if _, exists := s.statements[stmt.ID]; exists {
		return fmt.Errorf("%w: statement %s", storage.ErrDuplicate, stmt.ID)
	}
	if stmt.ReceivedAt.IsZero() {
		stmt.ReceivedAt = s.now()
	}

	cp := *stmt
	s.statements[stmt.ID] = &cp
	if stmt.Checksum != "" {
		s.byChecksum[stmt.Checksum] = stmt.ID
	}
	return nil
}

func (s *Store) GetStatement(ctx context.Context, id string) (*storage.Statement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stmt, ok := s.statements[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *stmt
	return &cp, nil
}

func (s *Store) GetStatementByChecksum(ctx context.Context, checksum string) (*storage.Statement, error) {
	s.mu.RLock()
	id, ok := s.byChecksum[checksum]
	s.mu.RUnlock()
	if !ok {
		return nil, storage.ErrNotFound
	}
	return s.GetStatement(ctx, id)
}

func (s *Store) ListStatements(ctx context.Context, filter *storage.StatementFilter) ([]*storage.Statement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*storage.Statement, 0, len(s.statements))
	for _, stmt := range s.statements {
		if filter != nil {
			if filter.Format != "" && stmt.Format != filter.Format {
				continue
			}
			if filter.Since != nil && stmt.ReceivedAt.Before(*filter.Since) {
				continue
			}
		}
		cp := *stmt
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ReceivedAt.Equal(out[j].ReceivedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].ReceivedAt.After(out[j].ReceivedAt)
	})

	if filter != nil {
		out = page(out, filter.Offset, filter.Limit)
	}
	return out, nil
}

func (s *Store) DeleteStatement(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stmt, ok := s.statements[id]
	if !ok {
		return storage.ErrNotFound
	}
	delete(s.statements, id)
	if stmt.Checksum != "" && s.byChecksum[stmt.Checksum] == id {
		delete(s.byChecksum, stmt.Checksum)
	}

	kept := s.transactions[:0]
	for _, r := range s.transactions {
		if r.StatementID != id {
			kept = append(kept, r)
		}
	}
	clear(s.transactions[len(kept):])
	s.transactions = kept
	return nil
}

// TransactionStore implementation

func (s *Store) SaveTransactions(ctx context.Context, records []*storage.TransactionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for _, r := range records {
		if r.ID == "" {
			r.ID = uuid.NewString()
		}
		if r.CreatedAt.IsZero() {
			r.CreatedAt = now
		}
		cp := *r
		s.transactions = append(s.transactions, &cp)
	}
	return nil
}

func (s *Store) ListTransactions(ctx context.Context, filter *storage.TransactionFilter) ([]*storage.TransactionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*storage.TransactionRecord, 0)
	for _, r := range s.transactions {
		if filter != nil && !matchTransaction(r, filter) {
			continue
		}
		cp := *r
		out = append(out, &cp)
	}
	// Stable keeps insertion order within a day
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Date.Before(out[j].Date)
	})

	if filter != nil {
		out = page(out, 0, filter.Limit)
	}
	return out, nil
}

func matchTransaction(r *storage.TransactionRecord, f *storage.TransactionFilter) bool {
	if f.StatementID != "" && r.StatementID != f.StatementID {
		return false
	}
	if !f.From.IsZero() && r.Date.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && r.Date.After(f.To) {
		return false
	}
	if f.Type != "" && r.Type != f.Type {
		return false
	}
	if f.Debtor != "" && !strings.EqualFold(r.DebtorName, f.Debtor) {
		return false
	}
	return true
}

// AnalysisStore implementation

func (s *Store) SaveAnalysis(ctx context.Context, rec *storage.AnalysisRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if _, exists := s.analyses[rec.ID]; exists {
		return fmt.Errorf("%w: analysis %s", storage.ErrDuplicate, rec.ID)
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.now()
	}
	cp := *rec
	s.analyses[rec.ID] = &cp
	return nil
}

func (s *Store) GetAnalysis(ctx context.Context, id string) (*storage.AnalysisRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.analyses[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

// RawFileStore implementation

func (s *Store) StoreRawFile(ctx context.Context, file *storage.RawFile) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if file.Checksum == "" {
		hash := sha256.Sum256(file.Data)
		file.Checksum = hex.EncodeToString(hash[:])
	}
	if file.ID == "" {
		file.ID = uuid.NewString()
	}

	cp := *file
	cp.Data = append([]byte(nil), file.Data...)
	s.files[file.ID] = &cp
	return file.ID, nil
}

func (s *Store) GetRawFile(ctx context.Context, id string) (*storage.RawFile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	f, ok := s.files[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *f
	cp.Data = append([]byte(nil), f.Data...)
	return &cp, nil
}

func (s *Store) DeleteRawFile(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.files[id]; !ok {
		return storage.ErrNotFound
	}
	delete(s.files, id)
	return nil
}

func page[T any](items []T, offset, limit int) []T {
	if offset > 0 {
		if offset >= len(items) {
			return items[:0]
		}
		items = items[offset:]
	}
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

var _ storage.Store = (*Store)(nil)
