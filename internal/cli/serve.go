package cli

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/omerasipi/Es-Selam-Banko/internal/events"
	"github.com/omerasipi/Es-Selam-Banko/internal/server"
)

const shutdownTimeout = 30 * time.Second

func newServeCommand(opts *rootOptions) *cobra.Command {
	var port int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the NATS ingest subscriber",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts.configPath)
			if err != nil {
				return err
			}
			if port != 0 {
				cfg.Server.Port = port
			}
			logger, err := newLogger(cfg, opts.logLevel, cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, cfg, logger, true)
			if err != nil {
				return err
			}
			defer a.Close(context.Background())

			var sub *events.Subscriber
			if a.nc != nil {
				sub = events.NewSubscriber(a.nc, events.SubscriberConfig{
					Subject: cfg.NATS.IngestSubject,
					Queue:   cfg.NATS.QueueGroup,
				}, a.service, logger)
				if err := sub.Start(); err != nil {
					return err
				}
			}

			srv := server.New(cfg, a.service, logger)
			errCh := make(chan error, 1)
			go func() {
				errCh <- srv.Start()
			}()

			select {
			case err := <-errCh:
				if err != nil {
					return err
				}
			case <-ctx.Done():
				logger.Info().Msg("shutting down")
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()

			var errs []error
			if sub != nil {
				errs = append(errs, sub.Stop())
			}
			errs = append(errs, srv.Shutdown(shutdownCtx))
			return errors.Join(errs...)
		},
	}
	cmd.Flags().IntVarP(&port, "port", "p", 0, "Listen port (overrides the configuration)")
	return cmd
}
