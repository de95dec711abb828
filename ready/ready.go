// Package ready provides a one-shot readiness signal shared by the gateway handler and background loops.
package ready

import (
	"context"
	"sync"
)

// Signal is closed exactly once when the chat platform has finished its startup handshake.
// The zero value is not usable; call New.
type Signal struct {
	once sync.Once
	ch   chan struct{}
}

func New() *Signal { return &Signal{ch: make(chan struct{})} }

// Set marks the signal ready. Later calls are no-ops.
func (s *Signal) Set() { s.once.Do(func() { close(s.ch) }) }

// IsSet reports whether Set has been called.
func (s *Signal) IsSet() bool {
	select {
	case <-s.ch:
		return true
	default:
		return false
	}
}

// Done returns a channel closed on Set.
func (s *Signal) Done() <-chan struct{} { return s.ch }

// Wait blocks until Set or ctx cancellation, returning ctx.Err() in the latter case.
func (s *Signal) Wait(ctx context.Context) error {
	select {
	case <-s.ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
