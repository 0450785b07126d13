// Package ready provides a one-shot readiness signal that consumers wait on
// instead of polling a flag.
package ready

import (
	"context"
	"sync"
)

// Signal is closed exactly once. The zero value is not usable; call New.
type Signal struct {
	once sync.Once
	ch   chan struct{}
	mu   sync.RWMutex
	err  error
}

func New() *Signal {
	return &Signal{ch: make(chan struct{})}
}

// Fire marks the signal ready. Later calls are no-ops.
func (s *Signal) Fire() {
	s.FireErr(nil)
}

// FireErr completes the signal with an initialization failure that every
// waiter will observe.
func (s *Signal) FireErr(err error) {
	s.once.Do(func() {
		s.mu.Lock()
		s.err = err
		s.mu.Unlock()
		close(s.ch)
	})
}

// Done is closed once the signal fires.
func (s *Signal) Done() <-chan struct{} { return s.ch }

// Fired reports whether the signal has completed, successfully or not.
func (s *Signal) Fired() bool {
	select {
	case <-s.ch:
		return true
	default:
		return false
	}
}

// Err is the initialization error, nil until fired or on success.
func (s *Signal) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.err
}

// Wait blocks until the signal fires or ctx ends.
func (s *Signal) Wait(ctx context.Context) error {
	select {
	case <-s.ch:
		return s.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}
