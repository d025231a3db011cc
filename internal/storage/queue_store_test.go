//go:build integration

package storage_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/sungwon/mailqueue/internal/provider"
	"github.com/sungwon/mailqueue/internal/queue"
	"github.com/sungwon/mailqueue/internal/storage"
	"github.com/sungwon/mailqueue/internal/template"
)

func newEntry(recipient string, priority queue.Priority, createdAt time.Time) *queue.Email {
	return &queue.Email{
		ID:             uuid.New(),
		RecipientEmail: recipient,
		RecipientName:  "Test User",
		TemplateType:   "welcome",
		TemplateData:   map[string]any{"user": map[string]any{"name": "Test"}},
		Subject:        "Welcome",
		HTMLContent:    "<p>Welcome</p>",
		TextContent:    "Welcome",
		Priority:       priority,
		Status:         queue.StatusPending,
		MaxAttempts:    3,
		ScheduledFor:   createdAt,
		CreatedAt:      createdAt,
		UpdatedAt:      createdAt,
	}
}

func TestQueueStore_InsertAndGet(t *testing.T) {
	db := setupTestDB(t)
	store := storage.NewQueueStore(db.Pool)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Microsecond)
	nid := uuid.New()
	e := newEntry("ada@example.com", queue.PriorityHigh, now)
	e.NotificationID = &nid
	e.Metadata = map[string]any{"source": "test"}

	if err := store.Insert(ctx, e); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	got, err := store.Get(ctx, e.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.RecipientEmail != e.RecipientEmail || got.Priority != queue.PriorityHigh {
		t.Errorf("got %+v", got)
	}
	if got.NotificationID == nil || *got.NotificationID != nid {
		t.Errorf("NotificationID = %v, want %s", got.NotificationID, nid)
	}
	if got.Metadata["source"] != "test" {
		t.Errorf("Metadata = %v", got.Metadata)
	}
	if !got.ScheduledFor.Equal(now) {
		t.Errorf("ScheduledFor = %v, want %v", got.ScheduledFor, now)
	}

	if _, err := store.Get(ctx, uuid.New()); !errors.Is(err, queue.ErrNotFound) {
		t.Errorf("Get(unknown) error = %v, want ErrNotFound", err)
	}
}

func TestQueueStore_SelectReadyOrder(t *testing.T) {
	db := setupTestDB(t)
	store := storage.NewQueueStore(db.Pool)
	ctx := context.Background()

	t0 := time.Now().UTC().Add(-time.Hour).Truncate(time.Microsecond)
	normal := newEntry("normal@example.com", queue.PriorityNormal, t0)
	urgent := newEntry("urgent@example.com", queue.PriorityUrgent, t0.Add(time.Second))
	high := newEntry("high@example.com", queue.PriorityHigh, t0.Add(2*time.Second))
	future := newEntry("future@example.com", queue.PriorityUrgent, t0)
	future.ScheduledFor = time.Now().Add(time.Hour)

	for _, e := range []*queue.Email{normal, urgent, high, future} {
		if err := store.Insert(ctx, e); err != nil {
			t.Fatal(err)
		}
	}

	ready, err := store.SelectReady(ctx, time.Now(), 10)
	if err != nil {
		t.Fatalf("SelectReady failed: %v", err)
	}
	want := []uuid.UUID{urgent.ID, high.ID, normal.ID}
	if len(ready) != len(want) {
		t.Fatalf("selected %d entries, want %d", len(ready), len(want))
	}
	for i, e := range ready {
		if e.ID != want[i] {
			t.Errorf("position %d: got %s (%s), want %s", i, e.ID, e.Priority, want[i])
		}
	}
}

func TestQueueStore_StateMachine(t *testing.T) {
	db := setupTestDB(t)
	store := storage.NewQueueStore(db.Pool)
	ctx := context.Background()
	now := time.Now().UTC()

	e := newEntry("ada@example.com", queue.PriorityNormal, now)
	if err := store.Insert(ctx, e); err != nil {
		t.Fatal(err)
	}

	// Writes before claim are rejected.
	if err := store.MarkSent(ctx, queue.Lease{ID: e.ID, Token: uuid.New()}, "x", now); !errors.Is(err, queue.ErrNotClaimed) {
		t.Fatalf("MarkSent before claim error = %v, want ErrNotClaimed", err)
	}
	if err := store.Retry(ctx, queue.Lease{ID: uuid.New(), Token: uuid.New()}, 1, now, "boom", now); !errors.Is(err, queue.ErrNotFound) {
		t.Fatalf("Retry(unknown) error = %v, want ErrNotFound", err)
	}

	lease, ok, err := store.Claim(ctx, e.ID, now)
	if err != nil || !ok {
		t.Fatalf("Claim = %v, %v", ok, err)
	}
	if _, ok, _ := store.Claim(ctx, e.ID, now); ok {
		t.Fatal("second Claim succeeded")
	}

	next := now.Add(2 * time.Minute)
	if err := store.Retry(ctx, lease, 1, next, "503 service unavailable", now); err != nil {
		t.Fatalf("Retry failed: %v", err)
	}
	got, _ := store.Get(ctx, e.ID)
	if got.Status != queue.StatusPending || got.Attempts != 1 || got.ErrorMessage == "" {
		t.Errorf("after retry: %+v", got)
	}

	if _, ok, _ := store.Claim(ctx, e.ID, now); ok {
		t.Fatal("claimed a retry before it was due")
	}
	lease, ok, _ = store.Claim(ctx, e.ID, next)
	if !ok {
		t.Fatal("reclaim failed")
	}
	if err := store.MarkSent(ctx, lease, "provider-123", now); err != nil {
		t.Fatalf("MarkSent failed: %v", err)
	}
	got, _ = store.Get(ctx, e.ID)
	if got.Status != queue.StatusSent || got.ProviderMessageID != "provider-123" {
		t.Errorf("after sent: status=%s id=%s", got.Status, got.ProviderMessageID)
	}
	if got.ErrorMessage != "" || got.SentAt == nil {
		t.Errorf("after sent: error=%q sent_at=%v", got.ErrorMessage, got.SentAt)
	}

	events, err := store.Events(ctx, e.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 || events[0].EventType != queue.EventSent {
		t.Fatalf("events = %+v", events)
	}
	if events[0].Metadata["provider_message_id"] != "provider-123" {
		t.Errorf("event metadata = %v", events[0].Metadata)
	}
	if events[0].Metadata["attempts"] != float64(2) {
		t.Errorf("event attempts = %v, want 2", events[0].Metadata["attempts"])
	}

	// Terminal: a sent entry cannot be cancelled.
	if err := store.Cancel(ctx, lease, "late", now); !errors.Is(err, queue.ErrNotClaimed) {
		t.Errorf("Cancel after sent error = %v, want ErrNotClaimed", err)
	}
}

func TestQueueStore_MarkFailedAndStats(t *testing.T) {
	db := setupTestDB(t)
	store := storage.NewQueueStore(db.Pool)
	ctx := context.Background()
	now := time.Now().UTC()

	failing := newEntry("fail@example.com", queue.PriorityNormal, now)
	cancelled := newEntry("cancel@example.com", queue.PriorityLow, now)
	waiting := newEntry("wait@example.com", queue.PriorityLow, now)
	for _, e := range []*queue.Email{failing, cancelled, waiting} {
		if err := store.Insert(ctx, e); err != nil {
			t.Fatal(err)
		}
	}

	leases := make(map[uuid.UUID]queue.Lease)
	for _, e := range []*queue.Email{failing, cancelled} {
		l, ok, _ := store.Claim(ctx, e.ID, now)
		if !ok {
			t.Fatalf("claim %s failed", e.RecipientEmail)
		}
		leases[e.ID] = l
	}
	if err := store.MarkFailed(ctx, leases[failing.ID], 3, "mailbox unavailable", now); err != nil {
		t.Fatalf("MarkFailed failed: %v", err)
	}
	if err := store.Cancel(ctx, leases[cancelled.ID], "recipient opted out", now); err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}

	got, _ := store.Get(ctx, failing.ID)
	if got.Status != queue.StatusFailed || got.Attempts != 3 || got.FailedAt == nil {
		t.Errorf("failed entry = %+v", got)
	}
	events, _ := store.Events(ctx, failing.ID)
	if len(events) != 1 || events[0].EventType != queue.EventFailed {
		t.Errorf("events = %+v", events)
	}

	st, err := store.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	want := queue.Stats{Pending: 1, Failed: 1, Cancelled: 1}
	if st != want {
		t.Errorf("Stats = %+v, want %+v", st, want)
	}
}

func TestQueueStore_Defer(t *testing.T) {
	db := setupTestDB(t)
	store := storage.NewQueueStore(db.Pool)
	ctx := context.Background()
	now := time.Now().UTC()

	e := newEntry("ada@example.com", queue.PriorityNormal, now)
	if err := store.Insert(ctx, e); err != nil {
		t.Fatal(err)
	}
	lease, ok, _ := store.Claim(ctx, e.ID, now)
	if !ok {
		t.Fatal("claim failed")
	}
	until := now.Add(9 * time.Hour).Truncate(time.Microsecond)
	if err := store.Defer(ctx, lease, until, now); err != nil {
		t.Fatalf("Defer failed: %v", err)
	}

	got, _ := store.Get(ctx, e.ID)
	if got.Status != queue.StatusPending || got.Attempts != 0 || !got.ScheduledFor.Equal(until) {
		t.Errorf("after defer: status=%s attempts=%d scheduled=%v", got.Status, got.Attempts, got.ScheduledFor)
	}
}

func TestQueueStore_RecoverStale(t *testing.T) {
	db := setupTestDB(t)
	store := storage.NewQueueStore(db.Pool)
	ctx := context.Background()
	now := time.Now().UTC()

	stale := newEntry("stale@example.com", queue.PriorityNormal, now.Add(-30*time.Minute))
	fresh := newEntry("fresh@example.com", queue.PriorityNormal, now)
	for _, e := range []*queue.Email{stale, fresh} {
		if err := store.Insert(ctx, e); err != nil {
			t.Fatal(err)
		}
	}
	staleLease, ok, _ := store.Claim(ctx, stale.ID, now.Add(-20*time.Minute))
	if !ok {
		t.Fatal("claim stale failed")
	}
	if _, ok, _ := store.Claim(ctx, fresh.ID, now); !ok {
		t.Fatal("claim fresh failed")
	}

	n, err := store.RecoverStale(ctx, now.Add(-10*time.Minute), now)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("recovered = %d, want 1", n)
	}
	got, _ := store.Get(ctx, stale.ID)
	if got.Status != queue.StatusPending || got.Attempts != 0 {
		t.Errorf("stale entry = status %s attempts %d", got.Status, got.Attempts)
	}
	got, _ = store.Get(ctx, fresh.ID)
	if got.Status != queue.StatusProcessing {
		t.Errorf("fresh entry status = %s", got.Status)
	}

	// The revoked lease can no longer write, even after the entry is
	// claimed again.
	current, ok, _ := store.Claim(ctx, stale.ID, now)
	if !ok {
		t.Fatal("reclaim of recovered entry failed")
	}
	if err := store.MarkSent(ctx, staleLease, "late", now); !errors.Is(err, queue.ErrNotClaimed) {
		t.Errorf("MarkSent with revoked lease error = %v, want ErrNotClaimed", err)
	}
	if err := store.Retry(ctx, staleLease, 1, now, "late", now); !errors.Is(err, queue.ErrNotClaimed) {
		t.Errorf("Retry with revoked lease error = %v, want ErrNotClaimed", err)
	}
	if err := store.MarkSent(ctx, current, "provider-456", now); err != nil {
		t.Fatalf("MarkSent with current lease: %v", err)
	}
	if events, _ := store.Events(ctx, stale.ID); len(events) != 1 {
		t.Errorf("events = %+v, want exactly one", events)
	}
}

// countingProvider counts sends per message ID.
type countingProvider struct {
	mu    sync.Mutex
	sends map[string]int
}

func (p *countingProvider) Send(_ context.Context, msg *provider.Message) (*provider.DeliveryResult, error) {
	time.Sleep(2 * time.Millisecond)
	p.mu.Lock()
	p.sends[msg.ID]++
	p.mu.Unlock()
	return &provider.DeliveryResult{ProviderMessageID: "pm-" + msg.ID, Status: provider.StatusSent}, nil
}

func (p *countingProvider) GetName() string                   { return "counting" }
func (p *countingProvider) HealthCheck(context.Context) error { return nil }

func TestQueueStore_ConcurrentProcessorsClaimOnce(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	compiler := template.NewCompiler(template.Builtin(), template.Defaults{SiteName: "Directory", BaseURL: "https://example.com"})
	prov := &countingProvider{sends: make(map[string]int)}
	cfg := queue.Config{Concurrency: 4, FromEmail: "no-reply@example.com"}

	const workers = 4
	procs := make([]*queue.Processor, workers)
	for i := range procs {
		procs[i] = queue.NewProcessor(storage.NewQueueStore(db.Pool), compiler, prov, cfg, zerolog.Nop())
	}

	const n = 40
	for i := 0; i < n; i++ {
		_, err := procs[0].Enqueue(ctx, queue.EnqueueParams{
			RecipientEmail: fmt.Sprintf("user%d@example.com", i),
			TemplateType:   template.TypeWelcome,
			TemplateData:   map[string]any{"user": map[string]any{"name": "User"}},
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	var wg sync.WaitGroup
	for _, p := range procs {
		wg.Add(1)
		go func(p *queue.Processor) {
			defer wg.Done()
			if _, err := p.ProcessQueue(ctx, n); err != nil {
				t.Errorf("ProcessQueue failed: %v", err)
			}
		}(p)
	}
	wg.Wait()

	if len(prov.sends) != n {
		t.Errorf("distinct sends = %d, want %d", len(prov.sends), n)
	}
	for id, c := range prov.sends {
		if c != 1 {
			t.Errorf("entry %s sent %d times", id, c)
		}
	}

	var events int
	if err := db.Pool.QueryRow(ctx, `SELECT count(*) FROM email_events WHERE event_type = 'sent'`).Scan(&events); err != nil {
		t.Fatal(err)
	}
	if events != n {
		t.Errorf("sent events = %d, want %d", events, n)
	}
}
