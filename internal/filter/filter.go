// internal/filter/filter.go
package filter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
)

// TextFilter rewrites sensitive content in a piece of text.
// Implementations must be safe for concurrent use.
type TextFilter interface {
	Filter(s string) string
}

// Reloader is implemented by filters that cache derived state.
type Reloader interface {
	Reload(ctx context.Context) error
}

// Func adapts a plain function to TextFilter.
type Func func(string) string

// Filter implements TextFilter.
func (f Func) Filter(s string) string { return f(s) }

// Identity returns its input unchanged.
var Identity TextFilter = Func(func(s string) string { return s })

// Chain applies a fixed list of filters in order. Pattern filters go first
// so that names inside an address or a credential are not rewritten before
// the pattern is recognized.
type Chain struct {
	enabled atomic.Bool
	filters []TextFilter
	logger  *slog.Logger
}

// NewChain returns an enabled chain of filters.
func NewChain(logger *slog.Logger, filters ...TextFilter) *Chain {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Chain{filters: filters, logger: logger}
	c.enabled.Store(true)
	return c
}

// SetEnabled turns filtering on or off. A disabled chain is the identity.
func (c *Chain) SetEnabled(on bool) {
	c.enabled.Store(on)
}

// Enabled reports whether filtering is on.
func (c *Chain) Enabled() bool {
	return c.enabled.Load()
}

// Filter implements TextFilter.
func (c *Chain) Filter(s string) string {
	if s == "" || !c.enabled.Load() {
		return s
	}
	for _, f := range c.filters {
		s = f.Filter(s)
	}
	return s
}

// SafeFilter is Filter with panics turned into errors, so one bad item
// cannot take down the caller.
func (c *Chain) SafeFilter(s string) (out string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("filter panicked: %v", r)
			out = ""
		}
	}()
	return c.Filter(s), nil
}

// Reload reloads every filter that caches state.
func (c *Chain) Reload(ctx context.Context) error {
	var errs []error
	for _, f := range c.filters {
		r, ok := f.(Reloader)
		if !ok {
			continue
		}
		if err := r.Reload(ctx); err != nil {
			c.logger.Error("filter reload failed", "filter", fmt.Sprintf("%T", f), "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Len returns the number of filters in the chain.
func (c *Chain) Len() int {
	return len(c.filters)
}
