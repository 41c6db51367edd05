package syncq

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/soaringjerry/Archetype/internal/models"
)

// Store is the durable home of the queue. It is the same store that holds
// the entity namespaces, so queued work survives a restart.
type Store interface {
	LoadQueue() ([]models.SyncEntry, error)
	SaveQueue([]models.SyncEntry) error
}

// Deliverer pushes one queued mutation to the system of record. A nil
// return is a confirmed delivery; adoption of a server-side duplicate also
// counts as success.
type Deliverer interface {
	Deliver(ctx context.Context, entry models.SyncEntry) error
}

const (
	// DefaultMaxAttempts is the retry ceiling after which an entry is
	// dropped and the record stays local-only.
	DefaultMaxAttempts = 5
	// DefaultBackoffBase seeds the exponential retry delay.
	DefaultBackoffBase = 2 * time.Second
)

// Engine owns the durable mutation queue: enqueue, ordered flush, retry
// accounting and permanent-failure drops.
type Engine struct {
	store     Store
	deliverer Deliverer
	monitor   NetworkMonitor
	logger    *zap.Logger

	maxAttempts int
	backoffBase time.Duration
	now         func() time.Time
	idGenerator func() string

	// Cooperative non-reentrant latch: a flush requested while one is
	// running is dropped, not queued. The next tick retries.
	inFlight atomic.Bool

	onDrop func(models.SyncEntry)
}

// Option customizes an Engine.
type Option func(*Engine)

func WithMaxAttempts(n int) Option            { return func(e *Engine) { e.maxAttempts = n } }
func WithBackoffBase(d time.Duration) Option  { return func(e *Engine) { e.backoffBase = d } }
func WithDropHook(fn func(models.SyncEntry)) Option { return func(e *Engine) { e.onDrop = fn } }

func NewEngine(store Store, deliverer Deliverer, monitor NetworkMonitor, logger *zap.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Engine{
		store:       store,
		deliverer:   deliverer,
		monitor:     monitor,
		logger:      logger,
		maxAttempts: DefaultMaxAttempts,
		backoffBase: DefaultBackoffBase,
		now:         func() time.Time { return time.Now().UTC() },
		idGenerator: func() string { return strings.ReplaceAll(uuid.NewString(), "-", "")[:12] },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Start wires the flush triggers: the periodic tick and the
// offline-to-online transition. Returns a stop func for the tick.
func (e *Engine) Start(sched Scheduler, interval time.Duration) (func(), error) {
	e.monitor.OnChange(func(online bool) {
		if online {
			e.Flush(context.Background())
		}
	})
	return sched.ScheduleRepeating(interval, func() { e.Flush(context.Background()) })
}

// Enqueue appends a pending mutation with a payload snapshot. While online
// it immediately requests a flush; offline creation never does.
func (e *Engine) Enqueue(ctx context.Context, entity, op string, payload any) error {
	doc, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("snapshot %s %s payload: %w", entity, op, err)
	}
	q, err := e.store.LoadQueue()
	if err != nil {
		return err
	}
	q = append(q, models.SyncEntry{
		ID:         e.idGenerator(),
		Entity:     entity,
		Op:         op,
		Payload:    doc,
		EnqueuedAt: e.now(),
	})
	if err := e.store.SaveQueue(q); err != nil {
		return err
	}
	e.logger.Debug("queued mutation", zap.String("entity", entity), zap.String("op", op), zap.Int("pending", len(q)))
	if e.monitor.IsOnline() {
		e.Flush(ctx)
	}
	return nil
}

// Len reports the number of pending entries.
func (e *Engine) Len() (int, error) {
	q, err := e.store.LoadQueue()
	if err != nil {
		return 0, err
	}
	return len(q), nil
}

// Flush walks the queue in enqueue order, delivering each eligible entry.
// A confirmed delivery removes exactly that entry; a failure bumps its
// attempt counter in place and leaves it for the next pass; an entry at
// the retry ceiling is dropped and logged as permanently failed. The whole
// call is a no-op while another flush is running, while offline, or when
// the queue is empty.
func (e *Engine) Flush(ctx context.Context) {
	if !e.inFlight.CompareAndSwap(false, true) {
		return
	}
	defer e.inFlight.Store(false)

	if !e.monitor.IsOnline() {
		return
	}
	q, err := e.store.LoadQueue()
	if err != nil {
		e.logger.Error("load sync queue", zap.Error(err))
		return
	}
	if len(q) == 0 {
		return
	}

	e.logger.Debug("flushing sync queue", zap.Int("pending", len(q)))
	now := e.now()
	remaining := make([]models.SyncEntry, 0, len(q))
	delivered := 0

	for _, entry := range q {
		if !e.eligible(entry, now) {
			remaining = append(remaining, entry)
			continue
		}
		if err := e.deliverer.Deliver(ctx, entry); err != nil {
			entry.Attempts++
			ts := now
			entry.LastAttempt = &ts
			if entry.Attempts >= e.maxAttempts {
				e.logger.Warn("dropping permanently failed mutation",
					zap.String("id", entry.ID),
					zap.String("entity", entry.Entity),
					zap.String("op", entry.Op),
					zap.Int("attempts", entry.Attempts),
					zap.Error(err))
				if e.onDrop != nil {
					e.onDrop(entry)
				}
				continue
			}
			e.logger.Debug("delivery failed, will retry",
				zap.String("id", entry.ID), zap.Int("attempts", entry.Attempts), zap.Error(err))
			remaining = append(remaining, entry)
			continue
		}
		delivered++
	}

	if err := e.store.SaveQueue(remaining); err != nil {
		e.logger.Error("persist sync queue", zap.Error(err))
		return
	}
	if delivered > 0 {
		e.logger.Info("sync pass complete", zap.Int("delivered", delivered), zap.Int("pending", len(remaining)))
	}
}

// eligible gates retries with exponential backoff: after n failed attempts
// an entry waits base*2^(n-1) before the next try.
func (e *Engine) eligible(entry models.SyncEntry, now time.Time) bool {
	if entry.Attempts == 0 || entry.LastAttempt == nil {
		return true
	}
	delay := e.backoffBase << (entry.Attempts - 1)
	return !now.Before(entry.LastAttempt.Add(delay))
}
