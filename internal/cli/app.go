package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/omerasipi/Es-Selam-Banko/internal/analysis"
	"github.com/omerasipi/Es-Selam-Banko/internal/config"
	"github.com/omerasipi/Es-Selam-Banko/internal/events"
	"github.com/omerasipi/Es-Selam-Banko/internal/observability"
	"github.com/omerasipi/Es-Selam-Banko/internal/storage"
	"github.com/omerasipi/Es-Selam-Banko/internal/storage/memory"
	"github.com/omerasipi/Es-Selam-Banko/internal/storage/mongodb"
	"github.com/omerasipi/Es-Selam-Banko/pkg/camt"
	"github.com/omerasipi/Es-Selam-Banko/pkg/compression"
	"github.com/omerasipi/Es-Selam-Banko/pkg/dedup"
	"github.com/omerasipi/Es-Selam-Banko/pkg/donation"
	"github.com/omerasipi/Es-Selam-Banko/pkg/schema"
)

// app holds the components built from a configuration
type app struct {
	cfg     *config.Config
	logger  zerolog.Logger
	service *analysis.Service
	store   storage.Store
	dedup   *dedup.Detector
	nc      *nats.Conn
}

// loadConfig reads path, or returns the defaults when path is empty
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

// newLogger builds the process logger; level overrides the configured one
func newLogger(cfg *config.Config, level string, out io.Writer) (zerolog.Logger, error) {
	if level == "" {
		level = cfg.Logging.Level
	}
	logger, err := observability.InitLogger("banko", level, cfg.Logging.Format, out)
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("logging: %w", err)
	}
	return logger, nil
}

// newRegistry returns the built-in definitions plus the configured schema directory
func newRegistry(cfg *config.Config, logger zerolog.Logger) (*schema.Registry, error) {
	reg := schema.Default()
	if cfg.Processing.SchemaDir == "" {
		return reg, nil
	}
	n, err := schema.LoadDir(reg, cfg.Processing.SchemaDir)
	if err != nil {
		return nil, fmt.Errorf("loading message definitions: %w", err)
	}
	logger.Info().Str("dir", cfg.Processing.SchemaDir).Int("definitions", n).Msg("loaded message definitions")
	return reg, nil
}

func newStore(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (storage.Store, error) {
	switch cfg.Storage.Type {
	case "mongodb":
		m := cfg.Storage.MongoDB
		store, err := mongodb.NewStore(ctx, &mongodb.Config{
			URI:            m.URI,
			Database:       m.Database,
			GridFSBucket:   m.GridFS.BucketName,
			ChunkSizeBytes: m.GridFS.ChunkSizeBytes,
			Timeout:        m.Timeout.Std(),
		})
		if err != nil {
			return nil, err
		}
		logger.Info().Str("database", m.Database).Msg("using MongoDB storage")
		return store, nil
	default:
		logger.Info().Msg("using in-memory storage")
		return memory.NewStore(), nil
	}
}

// newApp wires storage, processing and, when withEvents is set and NATS is
// enabled, the result publisher.
func newApp(ctx context.Context, cfg *config.Config, logger zerolog.Logger, withEvents bool) (*app, error) {
	reg, err := newRegistry(cfg, logger)
	if err != nil {
		return nil, err
	}

	store, err := newStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, logger: logger, store: store}
	if window := cfg.Processing.DedupWindow.Std(); window > 0 {
		a.dedup = dedup.NewDetector(window)
	}

	svcCfg := &analysis.Config{
		Processing: camt.NewService(reg, camt.WithStrict(cfg.Processing.IsStrict())),
		Analyzer:   donation.NewAnalyzer(donation.WithMinimumMonthly(cfg.Donation.Minimum())),
		Store:      store,
		Dedup:      a.dedup,
		Compressor: compression.NewCompressor(compression.WithLimit(cfg.Server.MaxUploadBytes * 20)),
		ArchiveRaw: cfg.Processing.ShouldArchiveRaw(),
		Logger:     logger,
	}

	if withEvents && cfg.NATS.Enabled {
		nc, err := events.Connect(cfg.NATS.URL, logger)
		if err != nil {
			a.Close(ctx)
			return nil, err
		}
		a.nc = nc
		svcCfg.Publisher = events.NewPublisher(nc, cfg.NATS.ResultSubject, logger)
	}

	a.service = analysis.NewService(svcCfg)
	return a, nil
}

// Close releases the connections held by the app
func (a *app) Close(ctx context.Context) {
	if a.nc != nil {
		if err := a.nc.Drain(); err != nil {
			a.logger.Warn().Err(err).Msg("draining NATS connection failed")
		}
	}
	if a.dedup != nil {
		_ = a.dedup.Close()
	}
	if a.store != nil {
		if err := a.store.Close(ctx); err != nil {
			a.logger.Warn().Err(err).Msg("closing storage failed")
		}
	}
}
