package camt

import (
	"errors"

	"github.com/omerasipi/Es-Selam-Banko/pkg/message"
	"github.com/omerasipi/Es-Selam-Banko/pkg/schema"
	"github.com/omerasipi/Es-Selam-Banko/pkg/validate"
)

// ErrUnsupportedFormat indicates a message no processor accepts
var ErrUnsupportedFormat = errors.New("no processor found for this CAMT format")

// UnknownFileType is reported for input that is not a supported message
const UnknownFileType = "Unknown"

// Result is the outcome of processing one file
type Result struct {
	Message      *message.Message
	Report       *validate.Report
	Transactions []Transaction
	Format       string
}

// Service parses, validates and extracts transactions from camt files
type Service struct {
	parser     *message.Parser
	validator  *validate.Validator
	processors []Processor
	strict     bool
}

// ServiceOption configures a Service
type ServiceOption func(*Service)

// WithProcessors replaces the built-in processors. Processors are tried in order.
func WithProcessors(p ...Processor) ServiceOption {
	return func(s *Service) {
		s.processors = p
	}
}

// WithValidator replaces the default validator
func WithValidator(v *validate.Validator) ServiceOption {
	return func(s *Service) {
		s.validator = v
	}
}

// WithStrict controls whether an invalid report stops processing
func WithStrict(strict bool) ServiceOption {
	return func(s *Service) {
		s.strict = strict
	}
}

// NewService creates a strict service with the statement and notification processors
func NewService(reg *schema.Registry, opts ...ServiceOption) *Service {
	s := &Service{
		parser:     message.NewParser(reg),
		validator:  validate.New(),
		processors: []Processor{NewStatementProcessor(), NewNotificationProcessor()},
		strict:     true,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Parser returns the service parser
func (s *Service) Parser() *message.Parser {
	return s.parser
}

// Check parses and validates data without extracting transactions
func (s *Service) Check(data []byte) (*message.Message, *validate.Report, error) {
	msg, err := s.parser.Parse(data)
	if err != nil {
		return nil, nil, err
	}
	return msg, s.validator.Validate(msg), nil
}

// Process parses, validates and extracts the transactions of data
func (s *Service) Process(data []byte) (*Result, error) {
	msg, report, err := s.Check(data)
	if err != nil {
		return nil, err
	}
	if s.strict {
		if err := report.Err(); err != nil {
			return nil, err
		}
	}

	p := s.processorFor(msg)
	if p == nil {
		return nil, ErrUnsupportedFormat
	}
	txs, err := p.Transactions(msg)
	if err != nil {
		return nil, err
	}
	return &Result{
		Message:      msg,
		Report:       report,
		Transactions: txs,
		Format:       p.FormatVersion(),
	}, nil
}

// ProcessFile returns the transactions of data using the first matching processor
func (s *Service) ProcessFile(data []byte) ([]Transaction, error) {
	res, err := s.Process(data)
	if err != nil {
		return nil, err
	}
	return res.Transactions, nil
}

// CanProcessFile reports whether data parses into a message some processor accepts
func (s *Service) CanProcessFile(data []byte) bool {
	msg, err := s.parser.Parse(data)
	if err != nil {
		return false
	}
	return s.processorFor(msg) != nil
}

// SupportedFormats lists the format versions of the processors, in order
func (s *Service) SupportedFormats() []string {
	out := make([]string, 0, len(s.processors))
	for _, p := range s.processors {
		out = append(out, p.FormatVersion())
	}
	return out
}

// FileType names the message family of data, e.g. "CAMT.053", or "Unknown"
func (s *Service) FileType(data []byte) string {
	def, err := s.parser.Detect(data)
	if err != nil {
		return UnknownFileType
	}
	for _, p := range s.processors {
		if p.FormatVersion() == def.ID.Version() {
			return def.ID.Short()
		}
	}
	return UnknownFileType
}

func (s *Service) processorFor(msg *message.Message) Processor {
	for _, p := range s.processors {
		if p.CanProcess(msg) {
			return p
		}
	}
	return nil
}
