package syncq

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// NetworkMonitor reports connectivity and page-lifecycle signals. It owns
// no data; it only drives queue flushes and the remote-vs-local branch in
// the data service.
type NetworkMonitor interface {
	IsOnline() bool
	OnChange(fn func(online bool))
	OnTerminate(fn func())
}

// StaticMonitor is a manually driven monitor. Tests flip it directly; the
// agent also uses it when probing is disabled.
type StaticMonitor struct {
	mu        sync.Mutex
	online    bool
	changeFns []func(bool)
	termFns   []func()
}

func NewStaticMonitor(online bool) *StaticMonitor {
	return &StaticMonitor{online: online}
}

func (m *StaticMonitor) IsOnline() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

func (m *StaticMonitor) OnChange(fn func(online bool)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.changeFns = append(m.changeFns, fn)
}

func (m *StaticMonitor) OnTerminate(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.termFns = append(m.termFns, fn)
}

// SetOnline records a connectivity transition and notifies listeners.
// Setting the current state again is a no-op.
func (m *StaticMonitor) SetOnline(online bool) {
	m.mu.Lock()
	if m.online == online {
		m.mu.Unlock()
		return
	}
	m.online = online
	fns := append([]func(bool){}, m.changeFns...)
	m.mu.Unlock()
	for _, fn := range fns {
		fn(online)
	}
}

// Terminate broadcasts the shutdown signal so listeners can attempt one
// final best-effort flush.
func (m *StaticMonitor) Terminate() {
	m.mu.Lock()
	fns := append([]func(){}, m.termFns...)
	m.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

// Pinger is the health probe the monitor uses to detect connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ProbeMonitor derives online state by pinging the remote health endpoint
// on a schedule.
type ProbeMonitor struct {
	StaticMonitor
	pinger  Pinger
	logger  *zap.Logger
	timeout time.Duration
}

func NewProbeMonitor(pinger Pinger, logger *zap.Logger) *ProbeMonitor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProbeMonitor{
		StaticMonitor: StaticMonitor{online: true},
		pinger:        pinger,
		logger:        logger,
		timeout:       3 * time.Second,
	}
}

// Start begins probing on the given scheduler and returns a stop func.
func (m *ProbeMonitor) Start(sched Scheduler, interval time.Duration) (func(), error) {
	return sched.ScheduleRepeating(interval, m.Probe)
}

// Probe runs one health check and records the resulting state.
func (m *ProbeMonitor) Probe() {
	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()
	err := m.pinger.Ping(ctx)
	wasOnline := m.IsOnline()
	nowOnline := err == nil
	if wasOnline != nowOnline {
		if nowOnline {
			m.logger.Info("connectivity restored")
		} else {
			m.logger.Warn("connectivity lost, switching to offline mode", zap.Error(err))
		}
	}
	m.SetOnline(nowOnline)
}
