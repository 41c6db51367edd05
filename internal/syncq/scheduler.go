package syncq

import (
	"time"

	"github.com/go-co-op/gocron"
)

// Scheduler abstracts timer-driven polling so the sync core is testable
// with a fake clock.
type Scheduler interface {
	// ScheduleRepeating runs fn every interval until the returned stop
	// func is called.
	ScheduleRepeating(interval time.Duration, fn func()) (func(), error)
}

// CronScheduler is the production scheduler backed by gocron.
type CronScheduler struct {
	s *gocron.Scheduler
}

func NewCronScheduler() *CronScheduler {
	s := gocron.NewScheduler(time.UTC)
	s.StartAsync()
	return &CronScheduler{s: s}
}

func (c *CronScheduler) ScheduleRepeating(interval time.Duration, fn func()) (func(), error) {
	job, err := c.s.Every(interval).Do(fn)
	if err != nil {
		return nil, err
	}
	return func() { c.s.RemoveByReference(job) }, nil
}

// Stop terminates all scheduled jobs.
func (c *CronScheduler) Stop() { c.s.Stop() }

// ManualScheduler runs jobs only when ticked. Test use only.
type ManualScheduler struct {
	jobs []func()
}

func NewManualScheduler() *ManualScheduler { return &ManualScheduler{} }

func (m *ManualScheduler) ScheduleRepeating(_ time.Duration, fn func()) (func(), error) {
	m.jobs = append(m.jobs, fn)
	idx := len(m.jobs) - 1
	return func() { m.jobs[idx] = nil }, nil
}

// Tick runs every scheduled job once.
func (m *ManualScheduler) Tick() {
	for _, fn := range m.jobs {
		if fn != nil {
			fn()
		}
	}
}
