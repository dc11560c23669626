package orchestrators

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"academy/internal/adapters/email"
	"academy/internal/adapters/metrics"
	outboxStore "academy/internal/adapters/storage/outbox"
	domainOutbox "academy/internal/domain/outbox"
)

// Backoff defaults for queued notices.
const (
	DefaultNoticeBaseDelay = time.Minute
	DefaultNoticeMaxDelay  = time.Hour
	noticeBatchLimit       = 100
)

var errUnknownKind = errors.New("unknown outbox entry kind")

// queuedNotice is the JSON payload of a cancellation notice entry.
type queuedNotice struct {
	BatchID  string        `json:"batch_id"`
	RecordID string        `json:"record_id"`
	Message  email.Message `json:"message"`
}

func encodeQueuedNotice(n queuedNotice) (string, error) {
	b, err := json.Marshal(n)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// DeliverNoticesDeps provides the dependencies for draining the outbox.
type DeliverNoticesDeps struct {
	OutboxStore outboxStore.Store
	Sender      email.Sender
	Metrics     *metrics.Recorder // optional
	BaseDelay   time.Duration     // defaults to DefaultNoticeBaseDelay
	MaxDelay    time.Duration     // defaults to DefaultNoticeMaxDelay
	Now         func() time.Time  // defaults to time.Now
}

// DeliverNoticesResult counts what one pass did.
type DeliverNoticesResult struct {
	Due       int
	Delivered int
	Retrying  int
	GaveUp    int
}

// ExecuteDeliverNotices resends every pending entry whose backoff has elapsed.
// PRE: deps.OutboxStore and deps.Sender are set
// POST: Each due entry is saved as done, pending (attempt counted) or failed;
//
//	returns an error only when the pending list cannot be read
func ExecuteDeliverNotices(ctx context.Context, deps DeliverNoticesDeps) (DeliverNoticesResult, error) {
	var result DeliverNoticesResult
	entries, err := deps.OutboxStore.ListPending(ctx, noticeBatchLimit)
	if err != nil {
		return result, fmt.Errorf("failed to list pending notices: %w", err)
	}

	base, max, now := deps.BaseDelay, deps.MaxDelay, deps.Now
	if base <= 0 {
		base = DefaultNoticeBaseDelay
	}
	if max <= 0 {
		max = DefaultNoticeMaxDelay
	}
	if now == nil {
		now = time.Now
	}

	for _, entry := range entries {
		if ctx.Err() != nil {
			break
		}
		if !entry.Due(now(), base, max) {
			continue
		}
		result.Due++

		entry.MarkAttempt(now().UTC())
		if err := deliver(ctx, deps.Sender, entry); err != nil {
			entry.MarkFailed(err)
			if entry.Status == domainOutbox.StatusFailed {
				result.GaveUp++
				deps.Metrics.CountNotice(metrics.ResultError)
				slog.Error("notice_delivery_abandoned", "entry_id", entry.ID, "attempts", entry.Attempts, "error", err)
			} else {
				result.Retrying++
				slog.Warn("notice_delivery_failed", "entry_id", entry.ID, "attempt", entry.Attempts, "error", err)
			}
		} else {
			entry.MarkSuccess()
			result.Delivered++
			deps.Metrics.CountNotice(metrics.ResultOK)
			slog.Info("notice_delivered", "entry_id", entry.ID, "attempt", entry.Attempts)
		}

		if err := deps.OutboxStore.Save(ctx, entry); err != nil {
			slog.Error("notice_outbox_save_failed", "entry_id", entry.ID, "error", err)
		}
	}

	if result.Due > 0 {
		slog.Info("notice_delivery_complete", "due", result.Due, "delivered", result.Delivered, "retrying", result.Retrying, "gave_up", result.GaveUp)
	}
	return result, nil
}

func deliver(ctx context.Context, sender email.Sender, entry domainOutbox.Entry) error {
	if entry.Kind != domainOutbox.KindCancellationNotice {
		return fmt.Errorf("%w: %s", errUnknownKind, entry.Kind)
	}
	var n queuedNotice
	if err := json.Unmarshal([]byte(entry.Payload), &n); err != nil {
		return fmt.Errorf("failed to decode notice payload: %w", err)
	}
	_, err := sender.Send(ctx, n.Message)
	return err
}

// StartNoticeDeliveryWorker drains the outbox every interval until ctx ends.
// PRE: interval > 0
// POST: Goroutine started; the returned func stops it
func StartNoticeDeliveryWorker(ctx context.Context, deps DeliverNoticesDeps, interval time.Duration) func() {
	ctx, cancel := context.WithCancel(ctx)

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := ExecuteDeliverNotices(ctx, deps); err != nil {
					slog.Error("notice_delivery_worker_error", "error", err)
				}
			}
		}
	}()

	return cancel
}
