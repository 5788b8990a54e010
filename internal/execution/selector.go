package execution

import (
	"context"
	"fmt"
	"log"
	"sync/atomic"
	"time"
)

const defaultProbeTimeout = 10 * time.Second

// Selector picks the backend for a run request. The live backend is only
// used when enabled and healthy; every other outcome falls back to the
// simulated backend.
type Selector struct {
	NewLive      func() (Backend, error)
	NewSimulated func() Backend
	ProbeTimeout time.Duration

	useLive atomic.Bool
}

func NewSelector(useLive bool, newLive func() (Backend, error), newSimulated func() Backend) *Selector {
	s := &Selector{NewLive: newLive, NewSimulated: newSimulated, ProbeTimeout: defaultProbeTimeout}
	s.useLive.Store(useLive)
	return s
}

// SetUseLive toggles the live backend for subsequent Select calls.
func (s *Selector) SetUseLive(v bool) { s.useLive.Store(v) }

// UseLive reports the current flag.
func (s *Selector) UseLive() bool { return s.useLive.Load() }

// Select returns the backend for one run. It never fails.
func (s *Selector) Select(ctx context.Context) Backend {
	if !s.useLive.Load() {
		return s.NewSimulated()
	}
	live, err := s.probeLive(ctx)
	if err != nil {
		log.Printf("warning: %v; falling back to simulated backend", err)
		return s.NewSimulated()
	}
	return live
}

func (s *Selector) probeLive(ctx context.Context) (b Backend, err error) {
	defer func() {
		if r := recover(); r != nil {
			b, err = nil, Errorf(ErrBackendUnhealthy, "live backend panicked: %v", r)
		}
	}()
	if s.NewLive == nil {
		return nil, Errorf(ErrBackendUnhealthy, "live backend not configured")
	}
	live, err := s.NewLive()
	if err != nil {
		return nil, fmt.Errorf("constructing live backend: %v: %w", err, ErrBackendUnhealthy)
	}
	timeout := s.ProbeTimeout
	if timeout <= 0 {
		timeout = defaultProbeTimeout
	}
	probeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if !live.Health(probeCtx) {
		return nil, Errorf(ErrBackendUnhealthy, "live backend %s failed health check", live.Name())
	}
	return live, nil
}
