package cli

import (
	"database/sql"
	"fmt"
	"log/slog"

	"academy/internal/adapters/email"
	"academy/internal/adapters/metrics"
	"academy/internal/adapters/storage"
	batchStore "academy/internal/adapters/storage/batch"
	outboxStore "academy/internal/adapters/storage/outbox"
	sessionStore "academy/internal/adapters/storage/session"
	"academy/internal/application/orchestrators"
	"academy/internal/config"
)

// app holds the process-wide collaborators every command shares.
type app struct {
	cfg      config.Config
	db       *sql.DB
	recorder *metrics.Recorder
	sender   email.Sender
	outbox   outboxStore.Store
	svc      *orchestrators.ScheduleService
}

// openApp opens and migrates the database and wires the schedule service.
// PRE: cfg has been validated
// POST: Returns an app the caller must Close
func openApp(cfg config.Config) (*app, error) {
	db, err := storage.OpenDB(cfg.DBPath)
	if err != nil {
		return nil, err
	}
	if err := storage.MigrateDB(db, cfg.DBPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	recorder := metrics.New()
	timedDB := storage.NewTimedDB(db, recorder, cfg.SlowQuery())
	batches := batchStore.NewSQLiteStore(timedDB)
	sessions := sessionStore.NewSQLiteStore(timedDB)
	outbox := outboxStore.NewSQLiteStore(timedDB)
	sender := newSender(cfg)

	svc := orchestrators.NewScheduleService(orchestrators.ServiceDeps{
		BatchStore:   batches,
		SessionStore: sessions,
		Notifier: &orchestrators.EmailCancellationNotifier{
			BatchStore: batches,
			Sender:     sender,
			From:       cfg.Email.From,
			ReplyTo:    cfg.Email.ReplyTo,
			Timeout:    cfg.SaveTimeout,
			Metrics:    recorder,
			Outbox:     outbox,
		},
		Metrics:     recorder,
		SaveTimeout: cfg.SaveTimeout,
	})
	return &app{cfg: cfg, db: db, recorder: recorder, sender: sender, outbox: outbox, svc: svc}, nil
}

// newSender picks Resend when a key is configured and the recording sender otherwise.
func newSender(cfg config.Config) email.Sender {
	if cfg.Email.ResendKey != "" {
		slog.Info("email_sender_configured", "provider", "resend")
		return email.NewResendSender(cfg.Email.ResendKey, cfg.Email.From, cfg.Email.ReplyTo)
	}
	if cfg.IsProduction() {
		slog.Warn("email_sender_disabled", "detail", "ACADEMY_RESEND_KEY is not set; cancellation notices are not delivered")
	} else {
		slog.Debug("email_sender_configured", "provider", "noop")
	}
	return email.NewNoopSender()
}

// Close releases the database.
func (a *app) Close() error {
	return a.db.Close()
}
