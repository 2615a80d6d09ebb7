// internal/trigger/factory.go
package trigger

import (
	"fmt"
	"log/slog"
	"time"
)

// Config describes one trigger.
type Config struct {
	Type           string // scheduled, filesystem or manual
	CronExpression string
	RunEvery       time.Duration // used when CronExpression is empty
	WatchPaths     []string
	Debounce       time.Duration
	Logger         *slog.Logger
}

// New creates a trigger based on the configuration type
func New(name string, cfg Config) (Trigger, error) {
	switch cfg.Type {
	case "filesystem":
		return NewFilesystem(name, cfg)
	case "scheduled":
		return NewScheduled(name, cfg)
	case "manual":
		return NewManual(name), nil
	default:
		return nil, fmt.Errorf("unknown trigger type: %s", cfg.Type)
	}
}
