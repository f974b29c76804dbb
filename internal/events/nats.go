// Package events connects the analysis service to NATS.
//
// Statement files published on the ingest subject are analyzed by a queue
// subscriber, so each file is handled by one service instance. Completed
// analyses are announced as JSON on the result subject.
//
// # Ingest messages
//
// The message data is the raw XML (or gzip) file. The optional Filename
// header names the file. When the message carries a reply subject, a JSON
// [Reply] is sent back.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/omerasipi/Es-Selam-Banko/internal/analysis"
	"github.com/omerasipi/Es-Selam-Banko/internal/observability"
)

// Message headers
const (
	HeaderFilename    = "Filename"
	HeaderContentType = "Content-Type"
	HeaderAnalysisID  = "Analysis-Id"
)

// DefaultTimeout bounds the analysis of one ingested file
const DefaultTimeout = 30 * time.Second

// Conn is the part of *nats.Conn used by publishers and subscribers
type Conn interface {
	PublishMsg(m *nats.Msg) error
	QueueSubscribe(subj, queue string, cb nats.MsgHandler) (*nats.Subscription, error)
	HeadersSupported() bool
}

var _ Conn = (*nats.Conn)(nil)

// Connect opens a NATS connection that reconnects forever
func Connect(url string, logger zerolog.Logger) (*nats.Conn, error) {
	nc, err := nats.Connect(url,
		nats.Name("banko"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn().Err(err).Msg("disconnected from NATS")
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info().Str("url", c.ConnectedUrl()).Msg("reconnected to NATS")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS at %s: %w", url, err)
	}
	logger.Info().Str("url", nc.ConnectedUrl()).Msg("connected to NATS")
	return nc, nil
}

// Publisher sends analysis events
type Publisher struct {
	conn    Conn
	subject string
	logger  zerolog.Logger
}

var _ analysis.Publisher = (*Publisher)(nil)

// NewPublisher creates a publisher for subject
func NewPublisher(conn Conn, subject string, logger zerolog.Logger) *Publisher {
	return &Publisher{conn: conn, subject: subject, logger: logger}
}

// PublishAnalysis publishes evt as JSON
func (p *Publisher) PublishAnalysis(ctx context.Context, evt *analysis.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("encoding analysis event: %w", err)
	}

	msg := nats.NewMsg(p.subject)
	msg.Data = data
	if p.conn.HeadersSupported() {
		msg.Header.Set(HeaderContentType, "application/json")
		msg.Header.Set(HeaderAnalysisID, evt.AnalysisID)
	}

	err = p.conn.PublishMsg(msg)
	observability.RecordEventPublished(p.subject, err == nil)
	if err != nil {
		return fmt.Errorf("publishing to %s: %w", p.subject, err)
	}
	p.logger.Debug().Str("subject", p.subject).Str("analysis_id", evt.AnalysisID).Msg("analysis event published")
	return nil
}

// FileAnalyzer analyzes one statement file
type FileAnalyzer interface {
	AnalyzeFile(ctx context.Context, source string, f analysis.File) (*analysis.Result, error)
}

// Reply answers an ingest request
type Reply struct {
	AnalysisID        string `json:"analysisId,omitempty"`
	TotalTransactions int    `json:"totalTransactionsProcessed"`
	Duplicate         bool   `json:"duplicate,omitempty"`
	Error             string `json:"error,omitempty"`
}

// SubscriberConfig configures a Subscriber
type SubscriberConfig struct {
	Subject string
	Queue   string
	Timeout time.Duration
}

// Subscriber analyzes statement files received on the ingest subject
type Subscriber struct {
	conn     Conn
	cfg      SubscriberConfig
	analyzer FileAnalyzer
	logger   zerolog.Logger

	mu  sync.Mutex
	sub *nats.Subscription
}

// NewSubscriber creates a subscriber. Call Start to begin receiving.
func NewSubscriber(conn Conn, cfg SubscriberConfig, analyzer FileAnalyzer, logger zerolog.Logger) *Subscriber {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Subscriber{
		conn:     conn,
		cfg:      cfg,
		analyzer: analyzer,
		logger:   logger.With().Str("component", "events").Str("subject", cfg.Subject).Logger(),
	}
}

// Start subscribes to the ingest subject
func (s *Subscriber) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sub != nil {
		return errors.New("subscriber already started")
	}

	sub, err := s.conn.QueueSubscribe(s.cfg.Subject, s.cfg.Queue, s.handle)
	if err != nil {
		return fmt.Errorf("queue subscribe(%s) failed: %w", s.cfg.Subject, err)
	}
	s.sub = sub
	s.logger.Info().Str("queue", s.cfg.Queue).Msg("listening for statements")
	return nil
}

// Stop drains the subscription
func (s *Subscriber) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sub == nil {
		return nil
	}
	err := s.sub.Drain()
	s.sub = nil
	return err
}

func (s *Subscriber) handle(msg *nats.Msg) {
	name := msg.Header.Get(HeaderFilename)
	if name == "" {
		name = msg.Subject
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Timeout)
	defer cancel()

	reply := &Reply{}
	res, err := s.analyzer.AnalyzeFile(ctx, analysis.SourceNATS, analysis.File{Name: name, Data: msg.Data})
	if err != nil {
		s.logger.Error().Err(err).Str("file", name).Msg("ingested statement failed")
		reply.Error = err.Error()
	} else {
		reply.AnalysisID = res.ID
		reply.TotalTransactions = res.TotalTransactions
		for _, f := range res.Files {
			reply.Duplicate = reply.Duplicate || f.Duplicate
		}
	}

	if msg.Reply == "" {
		return
	}
	data, err := json.Marshal(reply)
	if err != nil {
		s.logger.Error().Err(err).Msg("encoding reply failed")
		return
	}
	if err := s.conn.PublishMsg(&nats.Msg{Subject: msg.Reply, Data: data}); err != nil {
		s.logger.Error().Err(err).Str("reply", msg.Reply).Msg("sending reply failed")
	}
}
