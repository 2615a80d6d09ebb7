// internal/trigger/trigger.go
package trigger

import (
	"context"
	"time"
)

// Event types.
const (
	TypeScheduled    = "scheduled"
	TypeFileModified = "file_modified"
	TypeFileDeleted  = "file_deleted"
	TypeManual       = "manual"
)

// Event is something that should make the daemon refresh or reload.
type Event struct {
	Source    string // name of the trigger that fired
	Type      string
	Path      string // file events only
	Timestamp time.Time
}

// Trigger is the interface all triggers must implement
type Trigger interface {
	// Start begins watching for events, sending them to the channel
	Start(ctx context.Context, events chan<- Event) error
	// Stop stops the trigger
	Stop() error
	// Name identifies the trigger in events and logs
	Name() string
}

// send delivers ev unless the channel is full, in which case an equivalent
// event is already queued.
func send(events chan<- Event, ev Event) bool {
	select {
	case events <- ev:
		return true
	default:
		return false
	}
}
