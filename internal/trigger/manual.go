// internal/trigger/manual.go
package trigger

import (
	"context"
	"time"
)

// Manual is a trigger that only fires on request, e.g. from the MCP
// refresh tool.
type Manual struct {
	name string
}

// NewManual creates a new manual trigger
func NewManual(name string) *Manual {
	return &Manual{name: name}
}

func (m *Manual) Name() string {
	return m.name
}

// Start for manual trigger just blocks - it never fires automatically
func (m *Manual) Start(ctx context.Context, events chan<- Event) error {
	<-ctx.Done()
	return ctx.Err()
}

func (m *Manual) Stop() error {
	return nil
}

// Fire sends a manual event. Returns false if the channel is full.
func (m *Manual) Fire(events chan<- Event) bool {
	return send(events, Event{Source: m.name, Type: TypeManual, Timestamp: time.Now()})
}
