package orchestrators

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"academy/internal/adapters/email"
	batchStore "academy/internal/adapters/storage/batch"
	outboxStore "academy/internal/adapters/storage/outbox"
	sessionStore "academy/internal/adapters/storage/session"
	"academy/internal/domain/batch"
	"academy/internal/domain/outbox"
	"academy/internal/domain/session"
)

// mockBatchStore implements batchStore.Store for testing.
type mockBatchStore struct {
	byID   map[string]batch.Batch
	getErr error
}

func newMockBatchStore(batches ...batch.Batch) *mockBatchStore {
	m := &mockBatchStore{byID: make(map[string]batch.Batch)}
	for _, b := range batches {
		m.byID[b.ID] = b
	}
	return m
}

// GetByID implements batchStore.Store.
func (m *mockBatchStore) GetByID(_ context.Context, id string) (batch.Batch, error) {
	if m.getErr != nil {
		return batch.Batch{}, m.getErr
	}
	b, ok := m.byID[id]
	if !ok {
		return batch.Batch{}, fmt.Errorf("%w: %s", batchStore.ErrNotFound, id)
	}
	return b, nil
}

// Save implements batchStore.Store.
func (m *mockBatchStore) Save(_ context.Context, b batch.Batch) error {
	m.byID[b.ID] = b
	return nil
}

// List implements batchStore.Store.
func (m *mockBatchStore) List(_ context.Context) ([]batch.Batch, error) {
	var out []batch.Batch
	for _, b := range m.byID {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// mockSessionStore implements sessionStore.Store for testing.
// failNumbers makes Create/Update fail for the given session numbers.
type mockSessionStore struct {
	mu          sync.Mutex
	byID        map[string]session.SessionRecord
	nextID      int
	listErr     error
	deleteErr   error
	failNumbers map[int]error
	block       chan struct{} // when set, writes wait on it or ctx

	creates []session.SessionRecord
	updates []updateCall
	deletes []string
}

type updateCall struct {
	ID    string
	Patch session.Patch
}

func newMockSessionStore(records ...session.SessionRecord) *mockSessionStore {
	m := &mockSessionStore{byID: make(map[string]session.SessionRecord), failNumbers: make(map[int]error)}
	for _, r := range records {
		m.byID[r.RecordID] = r
	}
	return m
}

func (m *mockSessionStore) wait(ctx context.Context) error {
	if m.block == nil {
		return nil
	}
	select {
	case <-m.block:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *mockSessionStore) writes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.creates) + len(m.updates) + len(m.deletes)
}

// ListByBatch implements sessionStore.Store.
func (m *mockSessionStore) ListByBatch(_ context.Context, batchID string) ([]session.SessionRecord, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []session.SessionRecord
	for _, r := range m.byID {
		if r.BatchID == batchID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SessionNumber < out[j].SessionNumber })
	return out, nil
}

// GetByID implements sessionStore.Store.
func (m *mockSessionStore) GetByID(_ context.Context, id string) (session.SessionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.byID[id]
	if !ok {
		return session.SessionRecord{}, sessionStore.ErrNotFound
	}
	return r, nil
}

// Create implements sessionStore.Store.
func (m *mockSessionStore) Create(ctx context.Context, r session.SessionRecord) (session.SessionRecord, error) {
	if err := m.wait(ctx); err != nil {
		return session.SessionRecord{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.creates = append(m.creates, r)
	if err := m.failNumbers[r.SessionNumber]; err != nil {
		return session.SessionRecord{}, err
	}
	m.nextID++
	r.RecordID = fmt.Sprintf("rec-%d", m.nextID)
	m.byID[r.RecordID] = r
	return r, nil
}

// Update implements sessionStore.Store.
func (m *mockSessionStore) Update(ctx context.Context, id string, p session.Patch) (session.SessionRecord, error) {
	if err := m.wait(ctx); err != nil {
		return session.SessionRecord{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updates = append(m.updates, updateCall{ID: id, Patch: p})
	r, ok := m.byID[id]
	if !ok {
		return session.SessionRecord{}, sessionStore.ErrNotFound
	}
	if err := m.failNumbers[r.SessionNumber]; err != nil {
		return session.SessionRecord{}, err
	}
	r = p.Apply(r)
	m.byID[id] = r
	return r, nil
}

// Delete implements sessionStore.Store.
func (m *mockSessionStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deletes = append(m.deletes, id)
	if m.deleteErr != nil {
		return m.deleteErr
	}
	delete(m.byID, id)
	return nil
}

// recordingNotifier implements CancellationNotifier for testing.
type recordingNotifier struct {
	mu       sync.Mutex
	notified []session.SessionRecord
}

// NotifyCancelled implements CancellationNotifier.
func (n *recordingNotifier) NotifyCancelled(_ context.Context, r session.SessionRecord) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notified = append(n.notified, r)
}

// failingSender implements email.Sender and always fails.
type failingSender struct{ calls int }

// Send implements email.Sender.
func (s *failingSender) Send(_ context.Context, _ email.Message) (email.Receipt, error) {
	s.calls++
	return email.Receipt{}, errors.New("provider down")
}

// mockOutboxStore implements outboxStore.Store in memory.
type mockOutboxStore struct {
	mu      sync.Mutex
	entries map[string]outbox.Entry
	order   []string
	listErr error
	saveErr error
}

func newMockOutboxStore(entries ...outbox.Entry) *mockOutboxStore {
	m := &mockOutboxStore{entries: make(map[string]outbox.Entry)}
	for _, e := range entries {
		_ = m.Save(context.Background(), e)
	}
	return m
}

// GetByID implements outboxStore.Store.
func (m *mockOutboxStore) GetByID(_ context.Context, id string) (outbox.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[id]
	if !ok {
		return outbox.Entry{}, fmt.Errorf("%w: %s", outboxStore.ErrNotFound, id)
	}
	return e, nil
}

// Save implements outboxStore.Store.
func (m *mockOutboxStore) Save(_ context.Context, e outbox.Entry) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	if err := e.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entries[e.ID]; !ok {
		m.order = append(m.order, e.ID)
	}
	m.entries[e.ID] = e
	return nil
}

// ListPending implements outboxStore.Store.
func (m *mockOutboxStore) ListPending(_ context.Context, limit int) ([]outbox.Entry, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []outbox.Entry
	for _, id := range m.order {
		if e := m.entries[id]; e.Status == outbox.StatusPending && len(out) < limit {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *mockOutboxStore) all() []outbox.Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]outbox.Entry, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.entries[id])
	}
	return out
}

func intPtr(n int) *int { return &n }

func strPtr(s string) *string { return &s }

func statusPtr(s session.Status) *session.Status { return &s }

func bound(id, batchID string, n int, title string) session.SessionRecord {
	return session.SessionRecord{RecordID: id, BatchID: batchID, SessionNumber: n, Title: title, Status: session.StatusScheduled}
}
