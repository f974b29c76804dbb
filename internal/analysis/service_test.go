package analysis

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omerasipi/Es-Selam-Banko/internal/storage"
	"github.com/omerasipi/Es-Selam-Banko/internal/storage/memory"
	"github.com/omerasipi/Es-Selam-Banko/pkg/compression"
	"github.com/omerasipi/Es-Selam-Banko/pkg/dedup"
	"github.com/omerasipi/Es-Selam-Banko/pkg/message"
	"github.com/omerasipi/Es-Selam-Banko/pkg/validate"
)

const painMessage = `<Document xmlns="urn:iso:std:iso:20022:tech:xsd:pain.001.001.09"><CstmrCdtTrfInitn/></Document>`

func readFixture(t *testing.T, name string) []byte {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("testdata", name))
	require.NoError(t, err)
	return data
}

func statementFile(t *testing.T) File {
	return File{Name: "statement.xml", Data: readFixture(t, "camt053.xml")}
}

func notificationFile(t *testing.T) File {
	return File{Name: "notification.xml", Data: readFixture(t, "camt054_prefixed.xml")}
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []*Event
	err    error
}

func (p *recordingPublisher) PublishAnalysis(_ context.Context, evt *Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evt)
	return p.err
}

func newTestService(t *testing.T, mutate func(*Config)) *Service {
	t.Helper()
	cfg := &Config{
		Store:      memory.NewStore(),
		ArchiveRaw: true,
		Logger:     zerolog.Nop(),
	}
	if mutate != nil {
		mutate(cfg)
	}
	return NewService(cfg)
}

func TestAnalyzeFile(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()

	res, err := svc.AnalyzeFile(ctx, SourceHTTP, statementFile(t))
	require.NoError(t, err)

	assert.NotEmpty(t, res.ID)
	assert.Equal(t, 3, res.TotalTransactions)
	require.Len(t, res.Files, 1)
	assert.Equal(t, "statement.xml", res.Files[0].FileName)
	assert.Equal(t, "CAMT.053", res.Files[0].FileType)
	assert.Equal(t, 3, res.Files[0].TransactionsFound)
	assert.False(t, res.Files[0].Duplicate)
	require.NotEmpty(t, res.Files[0].StatementID)

	a := res.Analysis
	require.Len(t, a.Donors, 2)
	assert.Equal(t, "Ahmed Hasani", a.Donors[0].Name)
	assert.False(t, a.Donors[0].BelowMinimum)
	assert.Equal(t, "Fatima Berisha", a.Donors[1].Name)
	assert.True(t, a.Donors[1].BelowMinimum)
	assert.True(t, dec("75.50").Equal(a.TotalDonations))
	assert.Equal(t, 1, a.DonorsBelowMinimum)

	stmt, err := svc.Store().GetStatement(ctx, res.Files[0].StatementID)
	require.NoError(t, err)
	assert.Equal(t, "STMT-2024-02-0001", stmt.MessageID)
	assert.Equal(t, "camt.053.001.08", stmt.Format)
	assert.Equal(t, "CH9300762011623852957", stmt.Account)
	assert.Equal(t, SourceHTTP, stmt.Source)
	assert.True(t, stmt.Valid)
	assert.Equal(t, 3, stmt.TransactionCount)

	records, err := svc.Store().ListTransactions(ctx, &storage.TransactionFilter{StatementID: stmt.ID})
	require.NoError(t, err)
	assert.Len(t, records, 3)

	rec, err := svc.GetAnalysis(ctx, res.ID)
	require.NoError(t, err)
	assert.Equal(t, SourceHTTP, rec.Source)
	assert.Equal(t, []string{stmt.ID}, rec.StatementIDs)
	assert.Equal(t, 3, rec.TotalTransactions)
}

func TestAnalyzeFile_ArchivesRawFile(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()
	f := statementFile(t)

	res, err := svc.AnalyzeFile(ctx, SourceHTTP, f)
	require.NoError(t, err)

	stmt, err := svc.Store().GetStatement(ctx, res.Files[0].StatementID)
	require.NoError(t, err)
	require.NotEmpty(t, stmt.RawFileID)

	raw, err := svc.Store().GetRawFile(ctx, stmt.RawFileID)
	require.NoError(t, err)
	assert.True(t, raw.Compressed)
	assert.Equal(t, "statement.xml", raw.FileName)
	assert.Equal(t, stmt.Checksum, raw.Checksum)

	data, err := compression.NewCompressor().Decompress(raw.Data)
	require.NoError(t, err)
	assert.Equal(t, f.Data, data)
}

func TestAnalyzeFile_WithoutArchive(t *testing.T) {
	svc := newTestService(t, func(c *Config) { c.ArchiveRaw = false })

	res, err := svc.AnalyzeFile(context.Background(), SourceCLI, statementFile(t))
	require.NoError(t, err)

	stmt, err := svc.Store().GetStatement(context.Background(), res.Files[0].StatementID)
	require.NoError(t, err)
	assert.Empty(t, stmt.RawFileID)
}

func TestAnalyzeFile_Gzip(t *testing.T) {
	svc := newTestService(t, nil)
	f := statementFile(t)

	gz, err := compression.NewCompressor().Compress(f.Data)
	require.NoError(t, err)

	res, err := svc.AnalyzeFile(context.Background(), SourceHTTP, File{Name: "statement.xml.gz", Data: gz})
	require.NoError(t, err)
	assert.Equal(t, 3, res.TotalTransactions)
	assert.Equal(t, int64(len(gz)), res.Files[0].FileSize)
}

func TestAnalyzeFile_Errors(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()

	_, err := svc.AnalyzeFile(ctx, SourceHTTP, File{Name: "empty.xml"})
	assert.ErrorIs(t, err, ErrEmptyFile)

	_, err = svc.AnalyzeFile(ctx, SourceHTTP, File{Name: "blank.xml", Data: []byte(" \n\t ")})
	assert.ErrorIs(t, err, ErrEmptyFile)

	_, err = svc.AnalyzeFile(ctx, SourceHTTP, File{Name: "pain.xml", Data: []byte(painMessage)})
	assert.ErrorIs(t, err, message.ErrUnsupportedFormat)

	var syntax *message.SyntaxError
	_, err = svc.AnalyzeFile(ctx, SourceHTTP, File{Name: "broken.xml", Data: []byte(`<Document xmlns="urn:iso:std:iso:20022:tech:xsd:camt.053.001.08"><BkToCstmrStmt>`)})
	assert.ErrorAs(t, err, &syntax)

	invalid := strings.Replace(string(readFixture(t, "camt053.xml")), "<NbOfNtries>3</NbOfNtries>", "<NbOfNtries>9</NbOfNtries>", 1)
	_, err = svc.AnalyzeFile(ctx, SourceHTTP, File{Name: "invalid.xml", Data: []byte(invalid)})
	assert.ErrorIs(t, err, validate.ErrInvalid)

	statements, err := svc.Store().ListStatements(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, statements)
}

func TestAnalyzeFile_Reupload(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()

	first, err := svc.AnalyzeFile(ctx, SourceHTTP, statementFile(t))
	require.NoError(t, err)
	second, err := svc.AnalyzeFile(ctx, SourceHTTP, statementFile(t))
	require.NoError(t, err)

	assert.True(t, second.Files[0].Duplicate)
	assert.Equal(t, first.Files[0].StatementID, second.Files[0].StatementID)
	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, 3, second.TotalTransactions)
	assert.True(t, first.Analysis.TotalDonations.Equal(second.Analysis.TotalDonations))

	records, err := svc.Store().ListTransactions(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, records, 3)
}

func TestAnalyzeFile_DedupWindow(t *testing.T) {
	det := dedup.NewDetector(time.Hour)
	t.Cleanup(func() { _ = det.Close() })

	svc := newTestService(t, func(c *Config) { c.Dedup = det })
	ctx := context.Background()

	res, err := svc.AnalyzeFile(ctx, SourceNATS, statementFile(t))
	require.NoError(t, err)
	assert.False(t, res.Files[0].Duplicate)
	assert.Equal(t, 1, det.Len())

	res, err = svc.AnalyzeFile(ctx, SourceNATS, statementFile(t))
	require.NoError(t, err)
	assert.True(t, res.Files[0].Duplicate)
}

func TestAnalyzeFiles(t *testing.T) {
	svc := newTestService(t, nil)

	res, err := svc.AnalyzeFiles(context.Background(), SourceHTTP, []File{statementFile(t), notificationFile(t)})
	require.NoError(t, err)

	assert.Equal(t, 4, res.TotalTransactions)
	require.Len(t, res.Files, 2)
	assert.Equal(t, 3, res.Files[0].TransactionsFound)
	assert.Equal(t, "CAMT.054", res.Files[1].FileType)
	assert.Equal(t, 1, res.Files[1].TransactionsFound)

	a := res.Analysis
	require.Len(t, a.Donors, 2)
	ahmed := a.Donors[0]
	assert.Equal(t, "Ahmed Hasani", ahmed.Name)
	assert.True(t, dec("90").Equal(ahmed.TotalAmount))
	// January to March is three months
	assert.Equal(t, "30", ahmed.MonthlyAverage.String())
	assert.False(t, ahmed.BelowMinimum)
	assert.Len(t, ahmed.Donations, 2)
	assert.True(t, dec("115.50").Equal(a.TotalDonations))
}

func TestAnalyzeFiles_DuplicateInBatch(t *testing.T) {
	svc := newTestService(t, nil)

	res, err := svc.AnalyzeFiles(context.Background(), SourceHTTP, []File{
		statementFile(t),
		{Name: "copy.xml", Data: readFixture(t, "camt053.xml")},
	})
	require.NoError(t, err)

	require.Len(t, res.Files, 2)
	assert.False(t, res.Files[0].Duplicate)
	assert.True(t, res.Files[1].Duplicate)
	assert.Equal(t, 3, res.Files[1].TransactionsFound)
	assert.Empty(t, res.Files[1].StatementID)
	assert.Equal(t, 3, res.TotalTransactions)
	assert.True(t, dec("75.50").Equal(res.Analysis.TotalDonations))
}

func TestAnalyzeFiles_Errors(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()

	_, err := svc.AnalyzeFiles(ctx, SourceHTTP, nil)
	assert.ErrorIs(t, err, ErrNoFiles)

	_, err = svc.AnalyzeFiles(ctx, SourceHTTP, []File{statementFile(t), {Name: "pain.xml", Data: []byte(painMessage)}})
	var fileErr *FileError
	require.ErrorAs(t, err, &fileErr)
	assert.Equal(t, "pain.xml", fileErr.FileName)
	assert.ErrorIs(t, err, message.ErrUnsupportedFormat)
	assert.True(t, strings.HasPrefix(err.Error(), "pain.xml: "))

	// A failing batch stores nothing
	statements, err := svc.Store().ListStatements(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, statements)
}

func TestAnalyze_PublishesEvent(t *testing.T) {
	pub := &recordingPublisher{}
	svc := newTestService(t, func(c *Config) { c.Publisher = pub })

	res, err := svc.AnalyzeFile(context.Background(), SourceNATS, statementFile(t))
	require.NoError(t, err)

	require.Len(t, pub.events, 1)
	evt := pub.events[0]
	assert.Equal(t, res.ID, evt.AnalysisID)
	assert.Equal(t, SourceNATS, evt.Source)
	assert.Equal(t, 3, evt.TotalTransactions)
	assert.Equal(t, 2, evt.Donors)
	assert.Equal(t, 1, evt.DonorsBelowMinimum)
	assert.True(t, dec("75.50").Equal(evt.TotalDonations))
	assert.Len(t, evt.Files, 1)
	assert.False(t, evt.CompletedAt.IsZero())
}

func TestAnalyze_PublishErrorIsNotFatal(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("nats: connection closed")}
	svc := newTestService(t, func(c *Config) { c.Publisher = pub })

	res, err := svc.AnalyzeFile(context.Background(), SourceHTTP, statementFile(t))
	require.NoError(t, err)
	assert.NotNil(t, res.Analysis)
	assert.Len(t, pub.events, 1)
}

type failingStore struct {
	storage.Store
}

func (failingStore) SaveAnalysis(context.Context, *storage.AnalysisRecord) error {
	return errors.New("disk full")
}

func TestAnalyze_StoreError(t *testing.T) {
	svc := newTestService(t, func(c *Config) { c.Store = failingStore{Store: memory.NewStore()} })

	_, err := svc.AnalyzeFile(context.Background(), SourceHTTP, statementFile(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "storing analysis: disk full")
}

// flakyStore fails the first saveFailures transaction writes
type flakyStore struct {
	storage.Store
	saveFailures   int
	createErr      error
	deleteRawErr   error
	deletedRawFile []string
}

func (s *flakyStore) CreateStatement(ctx context.Context, stmt *storage.Statement) error {
	if s.createErr != nil {
		return s.createErr
	}
	return s.Store.CreateStatement(ctx, stmt)
}

func (s *flakyStore) SaveTransactions(ctx context.Context, records []*storage.TransactionRecord) error {
	if s.saveFailures > 0 {
		s.saveFailures--
		return errors.New("write conflict")
	}
	return s.Store.SaveTransactions(ctx, records)
}

func (s *flakyStore) DeleteRawFile(ctx context.Context, id string) error {
	s.deletedRawFile = append(s.deletedRawFile, id)
	if s.deleteRawErr != nil {
		return s.deleteRawErr
	}
	return s.Store.DeleteRawFile(ctx, id)
}

func TestAnalyzeFile_TransactionWriteFailureIsRetryable(t *testing.T) {
	store := &flakyStore{Store: memory.NewStore(), saveFailures: 1}
	det := dedup.NewDetector(time.Hour)
	t.Cleanup(func() { _ = det.Close() })
	svc := newTestService(t, func(c *Config) {
		c.Store = store
		c.Dedup = det
	})
	ctx := context.Background()

	_, err := svc.AnalyzeFile(ctx, SourceHTTP, statementFile(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "storing transactions: write conflict")

	statements, err := store.ListStatements(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, statements)
	assert.Len(t, store.deletedRawFile, 1)
	assert.Zero(t, det.Len())

	res, err := svc.AnalyzeFile(ctx, SourceHTTP, statementFile(t))
	require.NoError(t, err)
	assert.False(t, res.Files[0].Duplicate)
	assert.NotEmpty(t, res.Files[0].StatementID)

	records, err := store.ListTransactions(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, records, 3)

	report, err := svc.Report(ctx, time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.True(t, dec("75.50").Equal(report.TotalDonations))
}

func TestAnalyzeFile_RawFileCleanupFailureIsLogged(t *testing.T) {
	store := &flakyStore{
		Store:        memory.NewStore(),
		createErr:    errors.New("connection reset"),
		deleteRawErr: errors.New("gridfs unavailable"),
	}
	var logs strings.Builder
	svc := newTestService(t, func(c *Config) {
		c.Store = store
		c.Logger = zerolog.New(&logs)
	})

	_, err := svc.AnalyzeFile(context.Background(), SourceHTTP, statementFile(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
	assert.Len(t, store.deletedRawFile, 1)
	assert.Contains(t, logs.String(), `"level":"warn"`)
	assert.Contains(t, logs.String(), "failed to delete raw file")
	assert.Contains(t, logs.String(), "gridfs unavailable")
}

func TestReport(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()

	_, err := svc.AnalyzeFiles(ctx, SourceHTTP, []File{statementFile(t), notificationFile(t)})
	require.NoError(t, err)

	all, err := svc.Report(ctx, time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.True(t, dec("115.50").Equal(all.TotalDonations))

	from := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC)
	ranged, err := svc.Report(ctx, from, to)
	require.NoError(t, err)
	require.Len(t, ranged.Donors, 2)
	assert.Equal(t, "Ahmed Hasani", ranged.Donors[0].Name)
	assert.True(t, dec("40").Equal(ranged.Donors[0].TotalAmount))
	assert.True(t, dec("65.50").Equal(ranged.TotalDonations))

	empty, err := svc.Report(ctx, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), time.Time{})
	require.NoError(t, err)
	assert.Empty(t, empty.Donors)
	assert.True(t, empty.TotalDonations.IsZero())
}

func TestGetAnalysis_NotFound(t *testing.T) {
	svc := newTestService(t, nil)

	_, err := svc.GetAnalysis(context.Background(), "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestValidateFile(t *testing.T) {
	svc := newTestService(t, nil)

	v, err := svc.ValidateFile(statementFile(t))
	require.NoError(t, err)
	assert.True(t, v.IsValid)
	assert.Equal(t, FileInfo{FileName: "statement.xml", FileSize: int64(len(readFixture(t, "camt053.xml"))), FileType: "CAMT.053"}, v.FileInfo)
	assert.Equal(t, "camt.053.001.08", v.Format)
	require.NotNil(t, v.Report)
	assert.True(t, v.Report.Valid)
	assert.Empty(t, v.Reason)

	v, err = svc.ValidateFile(notificationFile(t))
	require.NoError(t, err)
	assert.True(t, v.IsValid)
	assert.Equal(t, "CAMT.054", v.FileInfo.FileType)
}

func TestValidateFile_Rejected(t *testing.T) {
	svc := newTestService(t, nil)

	invalid := strings.Replace(string(readFixture(t, "camt053.xml")), "<NbOfNtries>3</NbOfNtries>", "<NbOfNtries>9</NbOfNtries>", 1)
	v, err := svc.ValidateFile(File{Name: "invalid.xml", Data: []byte(invalid)})
	require.NoError(t, err)
	assert.False(t, v.IsValid)
	assert.Equal(t, "CAMT.053", v.FileInfo.FileType)
	require.NotNil(t, v.Report)
	assert.False(t, v.Report.Valid)
	assert.Contains(t, v.Reason, "validate: camt.053.001.08")

	v, err = svc.ValidateFile(File{Name: "notes.txt", Data: []byte("not xml at all")})
	require.NoError(t, err)
	assert.False(t, v.IsValid)
	assert.Equal(t, "Unknown", v.FileInfo.FileType)
	assert.Nil(t, v.Report)
	assert.NotEmpty(t, v.Reason)

	v, err = svc.ValidateFile(File{Name: "pain.xml", Data: []byte(painMessage)})
	require.NoError(t, err)
	assert.False(t, v.IsValid)
	assert.Equal(t, "Unknown", v.FileInfo.FileType)

	_, err = svc.ValidateFile(File{Name: "empty.xml"})
	assert.ErrorIs(t, err, ErrEmptyFile)
}

func TestValidateMessage(t *testing.T) {
	svc := newTestService(t, nil)

	report, err := svc.ValidateMessage(statementFile(t))
	require.NoError(t, err)
	assert.True(t, report.Valid)

	_, err = svc.ValidateMessage(File{Name: "pain.xml", Data: []byte(painMessage)})
	assert.ErrorIs(t, err, message.ErrUnsupportedFormat)
}

func TestNormalize(t *testing.T) {
	svc := newTestService(t, nil)

	out, err := svc.Normalize(notificationFile(t))
	require.NoError(t, err)
	assert.Contains(t, string(out), `<Document xmlns="urn:iso:std:iso:20022:tech:xsd:camt.054.001.08">`)
	assert.NotContains(t, string(out), "ns2:")

	again, err := svc.Normalize(File{Name: "normalized.xml", Data: out})
	require.NoError(t, err)
	assert.Equal(t, string(out), string(again))

	stmt, err := svc.Normalize(statementFile(t))
	require.NoError(t, err)
	assert.NotContains(t, string(stmt), "Monthly statement")

	invalid := strings.Replace(string(readFixture(t, "camt053.xml")), "<NbOfNtries>3</NbOfNtries>", "<NbOfNtries>9</NbOfNtries>", 1)
	_, err = svc.Normalize(File{Name: "invalid.xml", Data: []byte(invalid)})
	assert.ErrorIs(t, err, validate.ErrInvalid)
}

func TestSupportedFormats(t *testing.T) {
	svc := newTestService(t, nil)
	assert.Equal(t, []string{"053.001.08", "054.001.08"}, svc.SupportedFormats())
}

func TestNewService_Defaults(t *testing.T) {
	svc := NewService(&Config{Logger: zerolog.Nop()})
	require.NotNil(t, svc.Store())
	require.NoError(t, svc.Ping(context.Background()))

	res, err := svc.AnalyzeFile(context.Background(), SourceCLI, statementFile(t))
	require.NoError(t, err)
	assert.Equal(t, 3, res.TotalTransactions)
}
