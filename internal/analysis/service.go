// Package analysis is the application service behind the HTTP API, the NATS
// ingestion path and the CLI.
//
// A file goes through these steps:
//
//  1. gzip input is decompressed
//  2. the message is parsed, validated and its transactions extracted
//  3. duplicates are detected by message ID and content checksum
//  4. the statement, its transactions and the raw file are persisted
//  5. the donations are analyzed and the analysis is stored
//  6. an analysis event is published
//
// A duplicate is not persisted again, but the analysis of a re-uploaded file
// is still returned.
package analysis

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/omerasipi/Es-Selam-Banko/internal/observability"
	"github.com/omerasipi/Es-Selam-Banko/internal/storage"
	"github.com/omerasipi/Es-Selam-Banko/internal/storage/memory"
	"github.com/omerasipi/Es-Selam-Banko/pkg/camt"
	"github.com/omerasipi/Es-Selam-Banko/pkg/compression"
	"github.com/omerasipi/Es-Selam-Banko/pkg/dedup"
	"github.com/omerasipi/Es-Selam-Banko/pkg/donation"
	"github.com/omerasipi/Es-Selam-Banko/pkg/message"
	"github.com/omerasipi/Es-Selam-Banko/pkg/schema"
	"github.com/omerasipi/Es-Selam-Banko/pkg/validate"
)

var (
	// ErrEmptyFile indicates an upload without content
	ErrEmptyFile = errors.New("file is empty")
	// ErrNoFiles indicates a batch without files
	ErrNoFiles = errors.New("no files provided")
)

// FileError attributes a failure to one file of a batch
type FileError struct {
	FileName string
	Err      error
}

func (e *FileError) Error() string {
	return fmt.Sprintf("%s: %v", e.FileName, e.Err)
}

func (e *FileError) Unwrap() error {
	return e.Err
}

// Sources of statement files
const (
	SourceHTTP = "http"
	SourceNATS = "nats"
	SourceCLI  = "cli"
)

// File is one uploaded statement or notification
type File struct {
	Name string
	Data []byte
}

// FileInfo describes an uploaded file
type FileInfo struct {
	FileName string `json:"fileName"`
	FileSize int64  `json:"fileSize"`
	FileType string `json:"fileType"`
}

// Result is the outcome of analyzing one or more files
type Result struct {
	ID                string                `json:"id"`
	Analysis          *donation.Analysis    `json:"analysis"`
	Files             []storage.FileSummary `json:"processedFiles"`
	Transactions      []camt.Transaction    `json:"-"`
	TotalTransactions int                   `json:"totalTransactionsProcessed"`
}

// Validation is the outcome of checking a file without analyzing it
type Validation struct {
	IsValid  bool             `json:"isValid"`
	FileInfo FileInfo         `json:"fileInfo"`
	Format   string           `json:"format,omitempty"`
	Report   *validate.Report `json:"report,omitempty"`
	Reason   string           `json:"reason,omitempty"`
}

// Event announces a completed analysis
type Event struct {
	AnalysisID         string                `json:"analysisId"`
	Source             string                `json:"source"`
	Files              []storage.FileSummary `json:"files"`
	TotalTransactions  int                   `json:"totalTransactions"`
	TotalDonations     decimal.Decimal       `json:"totalDonations"`
	Donors             int                   `json:"donors"`
	DonorsBelowMinimum int                   `json:"donorsBelowMinimum"`
	CompletedAt        time.Time             `json:"completedAt"`
}

// Publisher delivers analysis events
type Publisher interface {
	PublishAnalysis(ctx context.Context, evt *Event) error
}

// Config holds the service dependencies. Processing, Analyzer and Store
// default to strict built-in processing, the default analyzer and an
// in-memory store.
type Config struct {
	Processing *camt.Service
	Analyzer   *donation.Analyzer
	Store      storage.Store
	Dedup      *dedup.Detector
	Compressor *compression.Compressor
	Publisher  Publisher
	ArchiveRaw bool
	Logger     zerolog.Logger
}

// Service analyzes statement files
type Service struct {
	processing *camt.Service
	analyzer   *donation.Analyzer
	store      storage.Store
	dedup      *dedup.Detector
	compressor *compression.Compressor
	publisher  Publisher
	archiveRaw bool
	logger     zerolog.Logger
	now        func() time.Time
}

// NewService creates an analysis service
func NewService(cfg *Config) *Service {
	s := &Service{
		processing: cfg.Processing,
		analyzer:   cfg.Analyzer,
		store:      cfg.Store,
		dedup:      cfg.Dedup,
		compressor: cfg.Compressor,
		publisher:  cfg.Publisher,
		archiveRaw: cfg.ArchiveRaw,
		logger:     cfg.Logger.With().Str("component", "analysis").Logger(),
		now:        time.Now,
	}
	if s.processing == nil {
		s.processing = camt.NewService(schema.Default())
	}
	if s.analyzer == nil {
		s.analyzer = donation.NewAnalyzer()
	}
	if s.store == nil {
		s.store = memory.NewStore()
	}
	if s.compressor == nil {
		s.compressor = compression.NewCompressor()
	}
	return s
}

// Store returns the backing store
func (s *Service) Store() storage.Store {
	return s.store
}

// SupportedFormats lists the processable format versions
func (s *Service) SupportedFormats() []string {
	return s.processing.SupportedFormats()
}

// processed is one file after extraction
type processed struct {
	file      File
	data      []byte
	result    *camt.Result
	messageID string
	checksum  string
	fileType  string
}

// AnalyzeFile analyzes the donations of a single file
func (s *Service) AnalyzeFile(ctx context.Context, source string, f File) (*Result, error) {
	return s.analyze(ctx, source, []File{f}, false)
}

// AnalyzeFiles analyzes the combined donations of several files. A file
// identical to an earlier file of the batch is reported but not counted
// again. The first failing file aborts the batch.
func (s *Service) AnalyzeFiles(ctx context.Context, source string, files []File) (*Result, error) {
	if len(files) == 0 {
		return nil, ErrNoFiles
	}
	return s.analyze(ctx, source, files, true)
}

func (s *Service) analyze(ctx context.Context, source string, files []File, batch bool) (*Result, error) {
	start := s.now()

	all := make([]*processed, 0, len(files))
	for _, f := range files {
		p, err := s.process(source, f)
		if err != nil {
			if batch {
				return nil, &FileError{FileName: f.Name, Err: err}
			}
			return nil, err
		}
		all = append(all, p)
	}

	res := &Result{
		ID:    uuid.NewString(),
		Files: make([]storage.FileSummary, 0, len(all)),
	}
	var statementIDs []string
	inBatch := make(map[string]bool, len(all))

	for _, p := range all {
		txs := p.result.Transactions
		summary := storage.FileSummary{
			FileName:          p.file.Name,
			FileSize:          int64(len(p.file.Data)),
			FileType:          p.fileType,
			TransactionsFound: len(txs),
		}

		if inBatch[p.checksum] {
			summary.Duplicate = true
			observability.RecordDuplicate(source)
			s.logger.Info().Str("file", p.file.Name).Msg("skipping file repeated in batch")
			res.Files = append(res.Files, summary)
			continue
		}
		inBatch[p.checksum] = true

		key := dedup.Key(p.messageID, p.checksum)
		if s.dedup != nil && s.dedup.Contains(key) {
			summary.Duplicate = true
			observability.RecordDuplicate(source)
		}

		stmtID, dup, err := s.persist(ctx, source, p)
		if err != nil {
			observability.RecordStatement(source, p.result.Format, "error")
			return nil, fmt.Errorf("storing %s: %w", p.file.Name, err)
		}
		if s.dedup != nil {
			s.dedup.Seen(key)
		}
		if dup && !summary.Duplicate {
			summary.Duplicate = true
			observability.RecordDuplicate(source)
		}
		summary.StatementID = stmtID
		if stmtID != "" {
			statementIDs = append(statementIDs, stmtID)
		}

		result := "processed"
		if summary.Duplicate {
			result = "duplicate"
		}
		observability.RecordStatement(source, p.result.Format, result)
		s.recordTransactions(p.result.Format, txs)

		res.Transactions = append(res.Transactions, txs...)
		res.Files = append(res.Files, summary)
	}

	res.TotalTransactions = len(res.Transactions)
	res.Analysis = s.analyzer.Analyze(res.Transactions)
	observability.RecordAnalysis(s.now().Sub(start))

	rec := &storage.AnalysisRecord{
		ID:                res.ID,
		Source:            source,
		StatementIDs:      statementIDs,
		Files:             res.Files,
		TotalTransactions: res.TotalTransactions,
		Analysis:          res.Analysis,
		CreatedAt:         s.now(),
	}
	if err := s.store.SaveAnalysis(ctx, rec); err != nil {
		return nil, fmt.Errorf("storing analysis: %w", err)
	}

	s.logger.Info().
		Str("analysis_id", res.ID).
		Str("source", source).
		Int("files", len(res.Files)).
		Int("transactions", res.TotalTransactions).
		Int("donors", len(res.Analysis.Donors)).
		Int("below_minimum", res.Analysis.DonorsBelowMinimum).
		Msg("analysis completed")

	s.publish(ctx, source, res)
	return res, nil
}

// process decompresses, validates and extracts one file
func (s *Service) process(source string, f File) (*processed, error) {
	data, err := s.decode(f)
	if err != nil {
		return nil, err
	}

	res, err := s.processing.Process(data)
	if err != nil {
		observability.RecordStatement(source, "", "rejected")
		s.logger.Warn().Err(err).Str("file", f.Name).Str("source", source).Msg("statement rejected")
		return nil, err
	}
	for _, issue := range res.Report.Issues {
		observability.RecordValidationIssue(issue.Code, string(issue.Severity))
	}

	return &processed{
		file:      f,
		data:      data,
		result:    res,
		messageID: res.Message.Text("GrpHdr/MsgId"),
		checksum:  dedup.Checksum(data),
		fileType:  res.Message.ID().Short(),
	}, nil
}

// decode returns the XML of f, decompressing gzip input
func (s *Service) decode(f File) ([]byte, error) {
	if len(f.Data) == 0 {
		return nil, ErrEmptyFile
	}
	data, err := s.compressor.MaybeDecompress(f.Data)
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, ErrEmptyFile
	}
	return data, nil
}

// persist stores the statement, its transactions and the raw file. Statements
// already stored under the same checksum are reported as duplicates.
func (s *Service) persist(ctx context.Context, source string, p *processed) (string, bool, error) {
	existing, err := s.store.GetStatementByChecksum(ctx, p.checksum)
	if err == nil {
		return existing.ID, true, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return "", false, err
	}

	stmt := &storage.Statement{
		MessageID:        p.messageID,
		Format:           p.result.Message.ID().String(),
		FileName:         p.file.Name,
		FileSize:         int64(len(p.file.Data)),
		Checksum:         p.checksum,
		Valid:            p.result.Report.Valid,
		IssueCount:       len(p.result.Report.Issues),
		TransactionCount: len(p.result.Transactions),
		Source:           source,
		ReceivedAt:       s.now(),
	}
	if len(p.result.Transactions) > 0 {
		stmt.Account = p.result.Transactions[0].Account
	}

	if s.archiveRaw {
		rawID, err := s.archive(ctx, p)
		if err != nil {
			return "", false, err
		}
		stmt.RawFileID = rawID
	}

	if err := s.store.CreateStatement(ctx, stmt); err != nil {
		s.deleteRawFile(ctx, stmt.RawFileID)
		if errors.Is(err, storage.ErrDuplicate) {
			existing, lookupErr := s.store.GetStatementByChecksum(ctx, p.checksum)
			if lookupErr != nil {
				return "", false, lookupErr
			}
			return existing.ID, true, nil
		}
		return "", false, err
	}

	if err := s.store.SaveTransactions(ctx, storage.NewTransactionRecords(stmt.ID, p.result.Transactions)); err != nil {
		// Statements are only kept together with their transactions
		if delErr := s.store.DeleteStatement(ctx, stmt.ID); delErr != nil {
			s.logger.Warn().Err(delErr).Str("statement_id", stmt.ID).Msg("failed to roll back statement")
		}
		s.deleteRawFile(ctx, stmt.RawFileID)
		return "", false, fmt.Errorf("storing transactions: %w", err)
	}

	s.logger.Debug().
		Str("statement_id", stmt.ID).
		Str("message_id", stmt.MessageID).
		Str("format", stmt.Format).
		Int("transactions", stmt.TransactionCount).
		Msg("statement stored")
	return stmt.ID, false, nil
}

func (s *Service) deleteRawFile(ctx context.Context, id string) {
	if id == "" {
		return
	}
	if err := s.store.DeleteRawFile(ctx, id); err != nil {
		s.logger.Warn().Err(err).Str("raw_file_id", id).Msg("failed to delete raw file")
	}
}

func (s *Service) archive(ctx context.Context, p *processed) (string, error) {
	compressed, err := s.compressor.Compress(p.data)
	if err != nil {
		return "", fmt.Errorf("compressing raw file: %w", err)
	}
	return s.store.StoreRawFile(ctx, &storage.RawFile{
		FileName:    p.file.Name,
		ContentType: "application/xml",
		Compressed:  true,
		Checksum:    p.checksum,
		Data:        compressed,
	})
}

func (s *Service) recordTransactions(format string, txs []camt.Transaction) {
	var credits, debits int
	for i := range txs {
		if txs[i].IsCredit() {
			credits++
		} else {
			debits++
		}
	}
	observability.RecordTransactions(format, string(camt.Credit), credits)
	observability.RecordTransactions(format, string(camt.Debit), debits)
}

func (s *Service) publish(ctx context.Context, source string, res *Result) {
	if s.publisher == nil {
		return
	}
	evt := &Event{
		AnalysisID:         res.ID,
		Source:             source,
		Files:              res.Files,
		TotalTransactions:  res.TotalTransactions,
		TotalDonations:     res.Analysis.TotalDonations,
		Donors:             len(res.Analysis.Donors),
		DonorsBelowMinimum: res.Analysis.DonorsBelowMinimum,
		CompletedAt:        s.now(),
	}
	if err := s.publisher.PublishAnalysis(ctx, evt); err != nil {
		s.logger.Error().Err(err).Str("analysis_id", res.ID).Msg("publishing analysis event failed")
	}
}

// ValidateFile checks whether a file would be accepted for analysis
func (s *Service) ValidateFile(f File) (*Validation, error) {
	v := &Validation{
		FileInfo: FileInfo{
			FileName: f.Name,
			FileSize: int64(len(f.Data)),
			FileType: camt.UnknownFileType,
		},
	}

	data, err := s.decode(f)
	if err != nil {
		if errors.Is(err, ErrEmptyFile) {
			return nil, err
		}
		v.Reason = err.Error()
		return v, nil
	}
	v.FileInfo.FileType = s.processing.FileType(data)

	msg, report, err := s.processing.Check(data)
	if err != nil {
		v.Reason = err.Error()
		return v, nil
	}
	v.Format = msg.ID().String()
	v.Report = report

	if _, err := s.processing.Process(data); err != nil {
		v.Reason = err.Error()
		return v, nil
	}
	v.IsValid = true
	return v, nil
}

// ValidateMessage validates any registered message and returns the report
func (s *Service) ValidateMessage(f File) (*validate.Report, error) {
	data, err := s.decode(f)
	if err != nil {
		return nil, err
	}
	_, report, err := s.processing.Check(data)
	if err != nil {
		return nil, err
	}
	for _, issue := range report.Issues {
		observability.RecordValidationIssue(issue.Code, string(issue.Severity))
	}
	return report, nil
}

// Normalize validates a message and returns its canonical form
func (s *Service) Normalize(f File, opts ...message.SerializeOption) ([]byte, error) {
	data, err := s.decode(f)
	if err != nil {
		return nil, err
	}
	msg, report, err := s.processing.Check(data)
	if err != nil {
		return nil, err
	}
	if err := report.Err(); err != nil {
		return nil, err
	}
	return message.Serialize(msg, opts...)
}

// Report analyzes the stored credit transactions dated within [from, to].
// A zero bound is open.
func (s *Service) Report(ctx context.Context, from, to time.Time) (*donation.Analysis, error) {
	records, err := s.store.ListTransactions(ctx, &storage.TransactionFilter{
		From: from,
		To:   to,
		Type: camt.Credit,
	})
	if err != nil {
		return nil, fmt.Errorf("listing transactions: %w", err)
	}
	return s.analyzer.Report(storage.Transactions(records), from, to), nil
}

// GetAnalysis returns a stored analysis
func (s *Service) GetAnalysis(ctx context.Context, id string) (*storage.AnalysisRecord, error) {
	return s.store.GetAnalysis(ctx, id)
}

// Ping checks the store
func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}
