// Package storagetest holds behaviour tests shared by the storage backends
package storagetest

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omerasipi/Es-Selam-Banko/internal/storage"
	"github.com/omerasipi/Es-Selam-Banko/pkg/camt"
	"github.com/omerasipi/Es-Selam-Banko/pkg/donation"
)

// Run exercises a backend. newStore must return an empty store.
func Run(t *testing.T, newStore func(t *testing.T) storage.Store) {
	t.Run("Statements", func(t *testing.T) { testStatements(t, newStore(t)) })
	t.Run("DeleteStatement", func(t *testing.T) { testDeleteStatement(t, newStore(t)) })
	t.Run("Transactions", func(t *testing.T) { testTransactions(t, newStore(t)) })
	t.Run("Analyses", func(t *testing.T) { testAnalyses(t, newStore(t)) })
	t.Run("RawFiles", func(t *testing.T) { testRawFiles(t, newStore(t)) })
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func testStatements(t *testing.T, s storage.Store) {
	ctx := context.Background()
	require.NoError(t, s.Ping(ctx))

	first := &storage.Statement{
		MessageID:  "MSG-1",
		Format:     "camt.053.001.08",
		FileName:   "january.xml",
		FileSize:   1024,
		Checksum:   "aaa",
		Valid:      true,
		Source:     "http",
		ReceivedAt: time.Date(2024, 2, 1, 10, 0, 0, 0, time.UTC),
	}
	require.NoError(t, s.CreateStatement(ctx, first))
	require.NotEmpty(t, first.ID)

	second := &storage.Statement{
		MessageID:  "MSG-2",
		Format:     "camt.054.001.08",
		Checksum:   "bbb",
		Source:     "nats",
		ReceivedAt: time.Date(2024, 2, 2, 10, 0, 0, 0, time.UTC),
	}
	require.NoError(t, s.CreateStatement(ctx, second))

	err := s.CreateStatement(ctx, &storage.Statement{MessageID: "MSG-3", Checksum: "aaa"})
	assert.ErrorIs(t, err, storage.ErrDuplicate)

	got, err := s.GetStatement(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, "MSG-1", got.MessageID)
	assert.Equal(t, "january.xml", got.FileName)
	assert.True(t, got.Valid)
	assert.True(t, first.ReceivedAt.Equal(got.ReceivedAt))

	got, err = s.GetStatementByChecksum(ctx, "bbb")
	require.NoError(t, err)
	assert.Equal(t, second.ID, got.ID)

	_, err = s.GetStatement(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	_, err = s.GetStatementByChecksum(ctx, "zzz")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	list, err := s.ListStatements(ctx, nil)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, second.ID, list[0].ID, "newest first")

	list, err = s.ListStatements(ctx, &storage.StatementFilter{Format: "camt.053.001.08"})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, first.ID, list[0].ID)

	list, err = s.ListStatements(ctx, &storage.StatementFilter{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, first.ID, list[0].ID)
}

func testDeleteStatement(t *testing.T, s storage.Store) {
	ctx := context.Background()

	stmt := &storage.Statement{MessageID: "MSG-1", Checksum: "aaa", ReceivedAt: day(2024, 2, 1)}
	require.NoError(t, s.CreateStatement(ctx, stmt))
	other := &storage.Statement{MessageID: "MSG-2", Checksum: "bbb", ReceivedAt: day(2024, 2, 2)}
	require.NoError(t, s.CreateStatement(ctx, other))

	tx := camt.Transaction{DebtorName: "Ahmed Hasani", Date: day(2024, 1, 15), Amount: decimal.RequireFromString("50"), Currency: "CHF", Type: camt.Credit}
	require.NoError(t, s.SaveTransactions(ctx, storage.NewTransactionRecords(stmt.ID, []camt.Transaction{tx})))
	require.NoError(t, s.SaveTransactions(ctx, storage.NewTransactionRecords(other.ID, []camt.Transaction{tx})))

	require.NoError(t, s.DeleteStatement(ctx, stmt.ID))

	_, err := s.GetStatement(ctx, stmt.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	_, err = s.GetStatementByChecksum(ctx, "aaa")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	remaining, err := s.ListTransactions(ctx, nil)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, other.ID, remaining[0].StatementID)

	// The checksum can be stored again
	require.NoError(t, s.CreateStatement(ctx, &storage.Statement{MessageID: "MSG-1", Checksum: "aaa"}))

	assert.ErrorIs(t, s.DeleteStatement(ctx, stmt.ID), storage.ErrNotFound)
}

func testTransactions(t *testing.T, s storage.Store) {
	ctx := context.Background()

	txs := []camt.Transaction{
		{DebtorName: "Fatima Berisha", Date: day(2024, 2, 10), Amount: decimal.RequireFromString("25.50"), Currency: "CHF", Reference: "Spende", Type: camt.Credit},
		{DebtorName: "Ahmed Hasani", Date: day(2024, 1, 15), Amount: decimal.RequireFromString("50.00"), Currency: "CHF", Type: camt.Credit},
		{DebtorName: "Unknown", Date: day(2024, 2, 20), Amount: decimal.RequireFromString("100.00"), Currency: "CHF", Type: camt.Debit},
	}
	require.NoError(t, s.SaveTransactions(ctx, storage.NewTransactionRecords("stmt-1", txs)))
	require.NoError(t, s.SaveTransactions(ctx, storage.NewTransactionRecords("stmt-2", []camt.Transaction{
		{DebtorName: "Ahmed Hasani", Date: day(2024, 3, 5), Amount: decimal.RequireFromString("40"), Currency: "CHF", Type: camt.Credit},
	})))

	all, err := s.ListTransactions(ctx, nil)
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, "Ahmed Hasani", all[0].DebtorName, "ordered by date")
	assert.True(t, decimal.RequireFromString("50").Equal(all[0].Amount))
	assert.Equal(t, camt.Credit, all[0].Type)
	assert.NotEmpty(t, all[0].ID)
	assert.False(t, all[0].CreatedAt.IsZero())
	assert.Equal(t, "Spende", all[1].Reference)

	ranged, err := s.ListTransactions(ctx, &storage.TransactionFilter{From: day(2024, 2, 1), To: day(2024, 2, 29)})
	require.NoError(t, err)
	assert.Len(t, ranged, 2)

	credits, err := s.ListTransactions(ctx, &storage.TransactionFilter{Type: camt.Credit, Debtor: "Ahmed Hasani"})
	require.NoError(t, err)
	assert.Len(t, credits, 2)

	byStatement, err := s.ListTransactions(ctx, &storage.TransactionFilter{StatementID: "stmt-2"})
	require.NoError(t, err)
	require.Len(t, byStatement, 1)
	assert.Equal(t, day(2024, 3, 5), byStatement[0].Date.UTC())

	limited, err := s.ListTransactions(ctx, &storage.TransactionFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func testAnalyses(t *testing.T, s storage.Store) {
	ctx := context.Background()

	analysis := donation.NewAnalyzer().Analyze([]camt.Transaction{
		{DebtorName: "Ahmed Hasani", Date: day(2024, 1, 15), Amount: decimal.RequireFromString("50.00"), Type: camt.Credit},
		{DebtorName: "Fatima Berisha", Date: day(2024, 2, 10), Amount: decimal.RequireFromString("25.50"), Type: camt.Credit},
	})

	rec := &storage.AnalysisRecord{
		Source:            "http",
		StatementIDs:      []string{"stmt-1"},
		Files:             []storage.FileSummary{{FileName: "a.xml", FileSize: 10, FileType: "CAMT.053", TransactionsFound: 2}},
		TotalTransactions: 2,
		Analysis:          analysis,
	}
	require.NoError(t, s.SaveAnalysis(ctx, rec))
	require.NotEmpty(t, rec.ID)

	got, err := s.GetAnalysis(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"stmt-1"}, got.StatementIDs)
	assert.Equal(t, 2, got.TotalTransactions)
	require.Len(t, got.Files, 1)
	assert.Equal(t, "CAMT.053", got.Files[0].FileType)
	require.NotNil(t, got.Analysis)
	require.Len(t, got.Analysis.Donors, 2)
	assert.True(t, decimal.RequireFromString("75.50").Equal(got.Analysis.TotalDonations))
	assert.Equal(t, 1, got.Analysis.DonorsBelowMinimum)
	assert.Equal(t, "Fatima Berisha", got.Analysis.Donors[1].Name)

	_, err = s.GetAnalysis(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func testRawFiles(t *testing.T, s storage.Store) {
	ctx := context.Background()

	data := []byte("<Document/>")
	id, err := s.StoreRawFile(ctx, &storage.RawFile{
		FileName:    "statement.xml",
		ContentType: "application/xml",
		Data:        data,
	})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	got, err := s.GetRawFile(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, data, got.Data)
	assert.Equal(t, "statement.xml", got.FileName)
	assert.Equal(t, "application/xml", got.ContentType)
	assert.Len(t, got.Checksum, 64)
	assert.False(t, got.Compressed)

	require.NoError(t, s.DeleteRawFile(ctx, id))
	_, err = s.GetRawFile(ctx, id)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
