package orchestrators

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/yuin/goldmark"
	goldmarkHTML "github.com/yuin/goldmark/renderer/html"

	"academy/internal/adapters/email"
	"academy/internal/adapters/metrics"
	batchStore "academy/internal/adapters/storage/batch"
	outboxStore "academy/internal/adapters/storage/outbox"
	domainOutbox "academy/internal/domain/outbox"
	"academy/internal/domain/session"
)

// CancellationNotifier is told about a slot that has just moved into the
// cancelled state. Implementations must not fail the save that triggered them.
type CancellationNotifier interface {
	NotifyCancelled(ctx context.Context, record session.SessionRecord)
}

// noticeRenderer escapes raw HTML in the markdown body (WithUnsafe is not set).
var noticeRenderer = goldmark.New(
	goldmark.WithRendererOptions(
		goldmarkHTML.WithHardWraps(),
	),
)

// EmailCancellationNotifier emails the batch's teacher a cancellation notice.
type EmailCancellationNotifier struct {
	BatchStore batchStore.Store
	Sender     email.Sender
	From       string
	ReplyTo    string
	Timeout    time.Duration
	Metrics    *metrics.Recorder // optional
	Outbox     outboxStore.Store // optional; failed sends are queued for redelivery
}

// NotifyCancelled sends the notice when the batch has a teacher email.
// Every failure is logged and swallowed. A failed send is queued when Outbox is set.
// PRE: record.Status is cancelled
// POST: At most one email is sent; at most one outbox entry is written
func (n *EmailCancellationNotifier) NotifyCancelled(ctx context.Context, record session.SessionRecord) {
	ctx, cancel := withSaveTimeout(ctx, n.Timeout)
	defer cancel()

	b, err := n.BatchStore.GetByID(ctx, record.BatchID)
	if err != nil {
		n.Metrics.CountNotice(metrics.ResultError)
		slog.Error("cancellation_notice_batch_lookup_failed", "batch_id", record.BatchID, "record_id", record.RecordID, "error", err)
		return
	}
	if b.TeacherEmail == "" {
		slog.Debug("cancellation_notice_skipped", "batch_id", record.BatchID, "reason", "no teacher email")
		return
	}

	subject, body, err := RenderCancellationNotice(b.Name, record)
	if err != nil {
		n.Metrics.CountNotice(metrics.ResultError)
		slog.Error("cancellation_notice_render_failed", "record_id", record.RecordID, "error", err)
		return
	}

	msg := email.Message{
		To:      []string{b.TeacherEmail},
		From:    n.From,
		ReplyTo: n.ReplyTo,
		Subject: subject,
		HTML:    body,
	}
	receipt, err := n.Sender.Send(ctx, msg)
	if err != nil {
		slog.Error("cancellation_notice_failed", "batch_id", record.BatchID, "record_id", record.RecordID, "error", err)
		n.enqueue(ctx, record, msg, err)
		return
	}
	n.Metrics.CountNotice(metrics.ResultOK)
	slog.Info("cancellation_notice_sent", "batch_id", record.BatchID, "session_number", record.SessionNumber, "message_id", receipt.MessageID)
}

const enqueueTimeout = 5 * time.Second

// enqueue writes msg to the outbox with the failed first attempt already counted.
func (n *EmailCancellationNotifier) enqueue(ctx context.Context, record session.SessionRecord, msg email.Message, sendErr error) {
	if n.Outbox == nil {
		n.Metrics.CountNotice(metrics.ResultError)
		return
	}
	payload, err := encodeQueuedNotice(queuedNotice{BatchID: record.BatchID, RecordID: record.RecordID, Message: msg})
	if err != nil {
		n.Metrics.CountNotice(metrics.ResultError)
		slog.Error("cancellation_notice_encode_failed", "record_id", record.RecordID, "error", err)
		return
	}
	// The send may have used up the deadline; the local write still gets its own.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), enqueueTimeout)
	defer cancel()

	now := time.Now().UTC()
	entry := domainOutbox.Entry{
		ID:              uuid.NewString(),
		Kind:            domainOutbox.KindCancellationNotice,
		Payload:         payload,
		Status:          domainOutbox.StatusPending,
		Attempts:        1,
		LastError:       sendErr.Error(),
		CreatedAt:       now,
		LastAttemptedAt: now,
	}
	if err := n.Outbox.Save(ctx, entry); err != nil {
		n.Metrics.CountNotice(metrics.ResultError)
		slog.Error("cancellation_notice_enqueue_failed", "record_id", record.RecordID, "error", err)
		return
	}
	n.Metrics.CountNotice(metrics.ResultQueued)
	slog.Info("cancellation_notice_queued", "batch_id", record.BatchID, "record_id", record.RecordID, "entry_id", entry.ID)
}

// RenderCancellationNotice builds the subject and HTML body of a notice.
// PRE: none
// POST: body is goldmark-rendered HTML with user text escaped
func RenderCancellationNotice(batchName string, record session.SessionRecord) (string, string, error) {
	label := batchName
	if label == "" {
		label = record.BatchID
	}
	subject := fmt.Sprintf("Cancelled: %s, session %d", label, record.SessionNumber)

	var md strings.Builder
	fmt.Fprintf(&md, "**Session %d: %s** of *%s* has been cancelled.\n\n", record.SessionNumber, record.Title, label)
	if when := strings.TrimSpace(record.Date + " " + record.Time); when != "" {
		fmt.Fprintf(&md, "- When: %s\n", when)
	}
	fmt.Fprintf(&md, "- Reason: %s\n", record.CancellationReason)

	var buf bytes.Buffer
	if err := noticeRenderer.Convert([]byte(md.String()), &buf); err != nil {
		return "", "", err
	}
	return subject, buf.String(), nil
}
