// internal/trigger/scheduled.go
package trigger

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
)

// Scheduled fires events on a cron schedule
type Scheduled struct {
	name   string
	cron   *cron.Cron
	events atomic.Pointer[chan<- Event]
}

// NewScheduled creates a new scheduled trigger. Expressions take a leading
// seconds field; an empty expression runs every cfg.RunEvery.
func NewScheduled(name string, cfg Config) (*Scheduled, error) {
	// Use cron with seconds field support
	c := cron.New(cron.WithSeconds())
	s := &Scheduled{name: name, cron: c}

	expr := cfg.CronExpression
	if expr == "" {
		if cfg.RunEvery <= 0 {
			return nil, fmt.Errorf("scheduled trigger %s needs a cron expression or an interval", name)
		}
		expr = "@every " + cfg.RunEvery.String()
	}

	_, err := c.AddFunc(expr, func() {
		if ch := s.events.Load(); ch != nil {
			send(*ch, Event{Source: s.name, Type: TypeScheduled, Timestamp: time.Now()})
		}
	})
	if err != nil {
		return nil, fmt.Errorf("parsing schedule %q: %w", expr, err)
	}
	return s, nil
}

func (s *Scheduled) Name() string {
	return s.name
}

func (s *Scheduled) Start(ctx context.Context, events chan<- Event) error {
	s.events.Store(&events)
	s.cron.Start()

	<-ctx.Done()
	return ctx.Err()
}

func (s *Scheduled) Stop() error {
	<-s.cron.Stop().Done()
	return nil
}

// Next returns when the trigger fires next, zero if it is not running.
func (s *Scheduled) Next() time.Time {
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}
