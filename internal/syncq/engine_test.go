package syncq

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/soaringjerry/Archetype/internal/models"
)

type memStore struct {
	mu sync.Mutex
	q  []models.SyncEntry
}

func (s *memStore) LoadQueue() ([]models.SyncEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.SyncEntry(nil), s.q...), nil
}

func (s *memStore) SaveQueue(q []models.SyncEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.q = append([]models.SyncEntry(nil), q...)
	return nil
}

func (s *memStore) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.q)
}

type recordingDeliverer struct {
	mu       sync.Mutex
	perEntry map[string]int
	fail     func(entry models.SyncEntry) error
	block    chan struct{}
	started  chan struct{}
}

func newRecordingDeliverer() *recordingDeliverer {
	return &recordingDeliverer{perEntry: map[string]int{}}
}

func (d *recordingDeliverer) Deliver(_ context.Context, entry models.SyncEntry) error {
	if d.started != nil {
		close(d.started)
		d.started = nil
	}
	if d.block != nil {
		<-d.block
	}
	d.mu.Lock()
	d.perEntry[entry.ID]++
	d.mu.Unlock()
	if d.fail != nil {
		return d.fail(entry)
	}
	return nil
}

func (d *recordingDeliverer) total() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, c := range d.perEntry {
		n += c
	}
	return n
}

func newTestEngine(store Store, d Deliverer, monitor NetworkMonitor, opts ...Option) *Engine {
	opts = append([]Option{WithBackoffBase(0)}, opts...)
	e := NewEngine(store, d, monitor, nil, opts...)
	n := 0
	e.idGenerator = func() string { n++; return string(rune('a' + n - 1)) }
	return e
}

func TestFlushDeliversInEnqueueOrder(t *testing.T) {
	store := &memStore{}
	var order []string
	d := newRecordingDeliverer()
	d.fail = func(entry models.SyncEntry) error {
		order = append(order, entry.ID)
		return nil
	}
	monitor := NewStaticMonitor(false)
	e := newTestEngine(store, d, monitor)

	ctx := context.Background()
	for _, entity := range []string{models.EntityRespondent, models.EntitySession, models.EntityAnswer} {
		if err := e.Enqueue(ctx, entity, models.OpCreate, map[string]string{"k": entity}); err != nil {
			t.Fatalf("Enqueue(%s): %v", entity, err)
		}
	}
	if store.len() != 3 {
		t.Fatalf("queued = %d, want 3 (no flush while offline)", store.len())
	}

	monitor.SetOnline(true)
	e.Flush(ctx)
	if got, want := len(order), 3; got != want {
		t.Fatalf("delivered = %d, want %d", got, want)
	}
	for i, want := range []string{"a", "b", "c"} {
		if order[i] != want {
			t.Fatalf("delivery order[%d] = %q, want %q", i, order[i], want)
		}
	}
	if store.len() != 0 {
		t.Fatalf("queue after flush = %d, want 0", store.len())
	}
}

func TestFlushNoOpWhenOfflineOrEmpty(t *testing.T) {
	store := &memStore{}
	d := newRecordingDeliverer()
	monitor := NewStaticMonitor(false)
	e := newTestEngine(store, d, monitor)

	e.Flush(context.Background())
	if d.total() != 0 {
		t.Fatalf("deliveries while offline = %d, want 0", d.total())
	}

	monitor.SetOnline(true)
	e.Flush(context.Background())
	if d.total() != 0 {
		t.Fatalf("deliveries with empty queue = %d, want 0", d.total())
	}
}

func TestFlushWhileRunningIsDropped(t *testing.T) {
	store := &memStore{}
	d := newRecordingDeliverer()
	d.block = make(chan struct{})
	d.started = make(chan struct{})
	started := d.started
	monitor := NewStaticMonitor(true)
	e := newTestEngine(store, d, monitor)

	if err := store.SaveQueue([]models.SyncEntry{{ID: "x", Entity: models.EntityAnswer, Op: models.OpCreate, EnqueuedAt: time.Now()}}); err != nil {
		t.Fatalf("seed queue: %v", err)
	}

	done := make(chan struct{})
	go func() {
		e.Flush(context.Background())
		close(done)
	}()
	<-started

	// Second request while the first is still delivering: dropped, not
	// queued, and no duplicate remote call.
	e.Flush(context.Background())

	close(d.block)
	<-done
	if d.total() != 1 {
		t.Fatalf("deliveries = %d, want exactly 1", d.total())
	}
	if store.len() != 0 {
		t.Fatalf("queue = %d, want 0", store.len())
	}
}

func TestEntryDroppedAfterRetryCeiling(t *testing.T) {
	store := &memStore{}
	d := newRecordingDeliverer()
	d.fail = func(models.SyncEntry) error { return errors.New("connection refused") }
	monitor := NewStaticMonitor(true)

	var dropped []models.SyncEntry
	e := newTestEngine(store, d, monitor, WithDropHook(func(entry models.SyncEntry) {
		dropped = append(dropped, entry)
	}))
	if err := store.SaveQueue([]models.SyncEntry{{ID: "x", Entity: models.EntityOrder, Op: models.OpCreate, EnqueuedAt: time.Now()}}); err != nil {
		t.Fatalf("seed queue: %v", err)
	}

	for i := 0; i < DefaultMaxAttempts; i++ {
		e.Flush(context.Background())
	}
	if store.len() != 0 {
		t.Fatalf("queue = %d, want entry dropped at ceiling", store.len())
	}
	if len(dropped) != 1 || dropped[0].ID != "x" || dropped[0].Attempts != DefaultMaxAttempts {
		t.Fatalf("drop hook = %+v, want one entry with %d attempts", dropped, DefaultMaxAttempts)
	}

	// Never retried again.
	before := d.total()
	e.Flush(context.Background())
	if d.total() != before {
		t.Fatalf("dropped entry was retried")
	}
}

func TestFailureRetriedOnNextPassNotImmediately(t *testing.T) {
	store := &memStore{}
	d := newRecordingDeliverer()
	calls := 0
	d.fail = func(models.SyncEntry) error {
		calls++
		if calls == 1 {
			return errors.New("timeout")
		}
		return nil
	}
	monitor := NewStaticMonitor(true)
	e := newTestEngine(store, d, monitor)
	if err := store.SaveQueue([]models.SyncEntry{{ID: "x", Entity: models.EntityShare, Op: models.OpCreate, EnqueuedAt: time.Now()}}); err != nil {
		t.Fatalf("seed queue: %v", err)
	}

	e.Flush(context.Background())
	if calls != 1 {
		t.Fatalf("first pass deliveries = %d, want 1 (no in-pass loop)", calls)
	}
	if store.len() != 1 {
		t.Fatalf("queue = %d, want failed entry retained", store.len())
	}

	e.Flush(context.Background())
	if calls != 2 || store.len() != 0 {
		t.Fatalf("second pass: calls=%d queue=%d, want 2/0", calls, store.len())
	}
}

func TestBackoffGatesRetries(t *testing.T) {
	store := &memStore{}
	d := newRecordingDeliverer()
	d.fail = func(models.SyncEntry) error { return errors.New("refused") }
	monitor := NewStaticMonitor(true)
	e := NewEngine(store, d, monitor, nil, WithBackoffBase(2*time.Second))

	base := time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC)
	now := base
	e.now = func() time.Time { return now }

	if err := store.SaveQueue([]models.SyncEntry{{ID: "x", Entity: models.EntityAnswer, Op: models.OpCreate, EnqueuedAt: base}}); err != nil {
		t.Fatalf("seed queue: %v", err)
	}

	e.Flush(context.Background())
	if d.total() != 1 {
		t.Fatalf("first attempt not made")
	}

	// Within the backoff window the entry is skipped.
	now = base.Add(time.Second)
	e.Flush(context.Background())
	if d.total() != 1 {
		t.Fatalf("retry happened inside backoff window")
	}

	now = base.Add(3 * time.Second)
	e.Flush(context.Background())
	if d.total() != 2 {
		t.Fatalf("retry missing after backoff elapsed; deliveries = %d", d.total())
	}

	// Second failure doubles the delay: not before last attempt + 4s.
	now = base.Add(6 * time.Second)
	e.Flush(context.Background())
	if d.total() != 2 {
		t.Fatalf("retry happened inside doubled backoff window")
	}
	now = base.Add(8 * time.Second)
	e.Flush(context.Background())
	if d.total() != 3 {
		t.Fatalf("retry missing after doubled backoff; deliveries = %d", d.total())
	}
}

func TestOfflineThenOnlineDeliversExactlyOnce(t *testing.T) {
	store := &memStore{}
	d := newRecordingDeliverer()
	monitor := NewStaticMonitor(true)
	e := newTestEngine(store, d, monitor)

	sched := NewManualScheduler()
	stop, err := e.Start(sched, time.Minute)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer stop()

	// Mid-session drop: three more answers land in the queue.
	monitor.SetOnline(false)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if err := e.Enqueue(ctx, models.EntityAnswer, models.OpCreate, map[string]int{"question_index": i}); err != nil {
			t.Fatalf("Enqueue(%d): %v", i, err)
		}
	}
	if d.total() != 0 {
		t.Fatalf("deliveries while offline = %d, want 0", d.total())
	}

	// Connectivity returns: the transition itself triggers the flush.
	monitor.SetOnline(true)

	if store.len() != 0 {
		t.Fatalf("queue = %d after reconnect, want 0", store.len())
	}
	if len(d.perEntry) != 3 {
		t.Fatalf("distinct mutations delivered = %d, want 3", len(d.perEntry))
	}
	for id, n := range d.perEntry {
		if n != 1 {
			t.Fatalf("entry %s delivered %d times, want exactly once", id, n)
		}
	}

	// Later ticks have nothing left to do.
	sched.Tick()
	if d.total() != 3 {
		t.Fatalf("tick after drain redelivered entries")
	}
}
