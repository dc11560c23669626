package cli

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	web "academy/internal/adapters/http"
	"academy/internal/adapters/storage"
	"academy/internal/application/orchestrators"
)

const shutdownGrace = 10 * time.Second

func serveCmd(st *state, version string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the schedule HTTP API",
		Long: `Serve the JSON and CSV schedule API on ACADEMY_ADDR.

The server shuts down gracefully on SIGINT or SIGTERM, giving in-flight
requests up to 10 seconds to finish. Cancellation notices that failed to
send are retried every ACADEMY_NOTICE_RETRY_INTERVAL while it runs.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(st, func(a *app) error {
				ctx, stop := signalContext(cmd.Context())
				defer stop()
				return serve(ctx, a, version)
			})
		},
	}
}

// serve blocks until ctx is done or the listener fails.
func serve(ctx context.Context, a *app, version string) error {
	csrfKey, err := a.cfg.CSRFKeyBytes()
	if err != nil {
		return err
	}
	mux := web.NewMux(a.svc, web.Options{
		Metrics:            a.recorder,
		MetricsPath:        a.cfg.MetricsPath,
		CSRFKey:            csrfKey,
		SecureCookies:      a.cfg.IsProduction(),
		APIToken:           a.cfg.APIToken,
		RateLimitPerSecond: a.cfg.RateLimitPerSecond,
		SlowRequest:        a.cfg.SlowRequest(),
		MaxImportBytes:     a.cfg.MaxImportBytes,
		Ready:              a.db.PingContext,
	})
	defer mux.Close()

	stopWorker := orchestrators.StartNoticeDeliveryWorker(ctx, orchestrators.DeliverNoticesDeps{
		OutboxStore: a.outbox,
		Sender:      a.sender,
		Metrics:     a.recorder,
	}, a.cfg.NoticeRetryInterval)
	defer stopWorker()

	srv := &http.Server{
		Addr:              a.cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server_starting",
			"version", version,
			"addr", a.cfg.Addr,
			"env", a.cfg.Env,
			"schema", storage.LatestSchemaVersion(),
			"api_token", a.cfg.APIToken != "",
		)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	slog.Info("server_stopping")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}
