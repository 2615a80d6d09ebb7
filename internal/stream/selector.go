// internal/stream/selector.go
package stream

import (
	"errors"
	"fmt"
	"io"
	"sync"
)

// ErrClosed is returned by every Selector call after Close.
var ErrClosed = errors.New("stream is closed")

// State is the lifecycle of a Selector.
type State int

const (
	Probing State = iota
	Text
	Binary
	Closed
)

func (s State) String() string {
	switch s {
	case Probing:
		return "probing"
	case Text:
		return "text"
	case Binary:
		return "binary"
	case Closed:
		return "closed"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Provider opens a destination when the Selector commits to it.
type Provider func() (io.Writer, error)

// Selector buffers the first ProbeSize bytes written to it, then routes the
// whole stream to the binary destination if they contain a non-whitespace
// control character, or to the text destination otherwise. The choice holds
// until Reset.
type Selector struct {
	mu     sync.Mutex
	binary Provider
	text   Provider
	head   []byte
	out    io.Writer
	state  State
}

// NewSelector creates a Selector over the two destinations.
func NewSelector(binary, text Provider) *Selector {
	return &Selector{binary: binary, text: text}
}

// Write implements io.Writer.
func (s *Selector) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Closed {
		return 0, ErrClosed
	}
	if len(p) == 0 {
		return 0, nil
	}
	if s.out != nil {
		return s.out.Write(p)
	}

	n := min(ProbeSize-len(s.head), len(p))
	s.head = append(s.head, p[:n]...)
	if len(s.head) < ProbeSize {
		return len(p), nil
	}
	if err := s.choose(); err != nil {
		return 0, err
	}
	if n < len(p) {
		if _, err := s.out.Write(p[n:]); err != nil {
			return n, err
		}
	}
	return len(p), nil
}

// Flush commits to a destination if none was chosen yet and flushes it.
func (s *Selector) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Closed {
		return ErrClosed
	}
	if err := s.choose(); err != nil {
		return err
	}
	if fl, ok := s.out.(interface{ Flush() error }); ok {
		return fl.Flush()
	}
	return nil
}

// Reset returns to probing so the Selector can route the next piece of
// content. The previous destination is dropped without being closed.
func (s *Selector) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Closed {
		return ErrClosed
	}
	s.head = nil
	s.out = nil
	s.state = Probing
	return nil
}

// Unwrap commits to a destination if needed and returns it.
func (s *Selector) Unwrap() (io.Writer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Closed {
		return nil, ErrClosed
	}
	if err := s.choose(); err != nil {
		return nil, err
	}
	return s.out, nil
}

// Close commits to a destination if needed and closes it when it is an
// io.Closer. The Selector is closed even if that fails.
func (s *Selector) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Closed {
		return ErrClosed
	}
	defer func() { s.state = Closed }()
	if err := s.choose(); err != nil {
		return err
	}
	if c, ok := s.out.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// State reports where the Selector is in its lifecycle.
func (s *Selector) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// choose picks the destination from the probed head and replays it.
// Nothing probed means text.
func (s *Selector) choose() error {
	if s.out != nil {
		return nil
	}
	provider, state := s.text, Text
	if IsBinary(s.head) {
		provider, state = s.binary, Binary
	}
	out, err := provider()
	if err != nil {
		return fmt.Errorf("opening %s destination: %w", state, err)
	}
	if out == nil {
		return fmt.Errorf("no writer returned for %s destination", state)
	}
	s.out, s.state = out, state
	head := s.head
	s.head = nil
	if len(head) > 0 {
		if _, err := out.Write(head); err != nil {
			return err
		}
	}
	return nil
}
