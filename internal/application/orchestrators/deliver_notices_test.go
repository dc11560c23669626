package orchestrators

import (
	"context"
	"errors"
	"testing"
	"time"

	"academy/internal/adapters/email"
	"academy/internal/domain/outbox"
)

var noticeNow = time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

func queuedEntry(t *testing.T, id string, attempts int, lastAttempt time.Time) outbox.Entry {
	t.Helper()
	payload, err := encodeQueuedNotice(queuedNotice{
		BatchID:  "b-1",
		RecordID: "r-" + id,
		Message:  email.Message{To: []string{"ana@example.com"}, Subject: "Cancelled " + id, HTML: "<p>x</p>"},
	})
	if err != nil {
		t.Fatal(err)
	}
	return outbox.Entry{
		ID:              id,
		Kind:            outbox.KindCancellationNotice,
		Payload:         payload,
		Attempts:        attempts,
		MaxAttempts:     3,
		CreatedAt:       noticeNow.Add(-time.Hour),
		LastAttemptedAt: lastAttempt,
	}
}

func noticeDeps(store *mockOutboxStore, sender email.Sender) DeliverNoticesDeps {
	return DeliverNoticesDeps{
		OutboxStore: store,
		Sender:      sender,
		BaseDelay:   time.Minute,
		MaxDelay:    time.Hour,
		Now:         func() time.Time { return noticeNow },
	}
}

// TestExecuteDeliverNotices_DeliversDueEntries verifies due entries are sent and marked done.
func TestExecuteDeliverNotices_DeliversDueEntries(t *testing.T) {
	store := newMockOutboxStore(
		queuedEntry(t, "due", 1, noticeNow.Add(-2*time.Minute)),
		queuedEntry(t, "waiting", 2, noticeNow.Add(-time.Minute)),
	)
	sender := email.NewNoopSender()

	result, err := ExecuteDeliverNotices(context.Background(), noticeDeps(store, sender))
	if err != nil {
		t.Fatalf("ExecuteDeliverNotices: %v", err)
	}
	if result.Due != 1 || result.Delivered != 1 {
		t.Errorf("result = %+v, want one delivered", result)
	}
	sent := sender.Sent()
	if len(sent) != 1 || sent[0].Subject != "Cancelled due" {
		t.Errorf("sent = %+v", sent)
	}
	due, _ := store.GetByID(context.Background(), "due")
	if due.Status != outbox.StatusDone || due.Attempts != 2 {
		t.Errorf("due entry = %+v", due)
	}
	waiting, _ := store.GetByID(context.Background(), "waiting")
	if waiting.Status != outbox.StatusPending || waiting.Attempts != 2 {
		t.Errorf("entry inside its backoff was touched: %+v", waiting)
	}
}

// TestExecuteDeliverNotices_RetriesThenGivesUp verifies failures count attempts up to the limit.
func TestExecuteDeliverNotices_RetriesThenGivesUp(t *testing.T) {
	store := newMockOutboxStore(
		queuedEntry(t, "retry", 1, noticeNow.Add(-time.Hour)),
		queuedEntry(t, "last", 2, noticeNow.Add(-time.Hour)),
	)
	sender := &failingSender{}

	result, err := ExecuteDeliverNotices(context.Background(), noticeDeps(store, sender))
	if err != nil {
		t.Fatalf("ExecuteDeliverNotices: %v", err)
	}
	if result.Retrying != 1 || result.GaveUp != 1 || sender.calls != 2 {
		t.Errorf("result = %+v, calls = %d", result, sender.calls)
	}
	retry, _ := store.GetByID(context.Background(), "retry")
	if retry.Status != outbox.StatusPending || retry.Attempts != 2 || retry.LastError != "provider down" {
		t.Errorf("retry entry = %+v", retry)
	}
	last, _ := store.GetByID(context.Background(), "last")
	if last.Status != outbox.StatusFailed || last.Attempts != 3 {
		t.Errorf("last entry = %+v", last)
	}
}

// TestExecuteDeliverNotices_BadPayload verifies an undecodable entry fails without a send.
func TestExecuteDeliverNotices_BadPayload(t *testing.T) {
	bad := queuedEntry(t, "bad", 0, time.Time{})
	bad.Payload = "{not json"
	unknown := queuedEntry(t, "unknown", 0, time.Time{})
	unknown.Kind = "sms"
	store := newMockOutboxStore(bad, unknown)
	sender := email.NewNoopSender()

	result, err := ExecuteDeliverNotices(context.Background(), noticeDeps(store, sender))
	if err != nil {
		t.Fatal(err)
	}
	if result.Retrying != 2 || len(sender.Sent()) != 0 {
		t.Errorf("result = %+v, sent = %d", result, len(sender.Sent()))
	}
}

// TestExecuteDeliverNotices_ListError verifies a store failure is returned.
func TestExecuteDeliverNotices_ListError(t *testing.T) {
	store := newMockOutboxStore()
	store.listErr = errors.New("disk gone")
	if _, err := ExecuteDeliverNotices(context.Background(), noticeDeps(store, email.NewNoopSender())); err == nil {
		t.Error("expected error")
	}
}

// TestStartNoticeDeliveryWorker_Drains verifies the worker sends a due entry and stops cleanly.
func TestStartNoticeDeliveryWorker_Drains(t *testing.T) {
	store := newMockOutboxStore(queuedEntry(t, "due", 0, time.Time{}))
	sender := email.NewNoopSender()

	stop := StartNoticeDeliveryWorker(context.Background(), noticeDeps(store, sender), 5*time.Millisecond)
	defer stop()

	deadline := time.After(2 * time.Second)
	for len(sender.Sent()) == 0 {
		select {
		case <-deadline:
			t.Fatal("worker did not deliver the entry")
		case <-time.After(5 * time.Millisecond):
		}
	}
}
