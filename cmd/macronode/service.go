package main

import (
	"context"
	"sync"
)

// crashableService wraps a run function as a supervisor.Service and adds
// a debug crash switch: POST /api/v1/debug/crash?service=name signals
// the channel Run is currently selecting on, causing Run to return an
// error so the supervisor's restart machinery exercises the same path a
// real crash would take. The channel is re-armed before each Run so a
// restarted service can be crashed again.
type crashableService struct {
	name string
	run  func(ctx context.Context, crashed <-chan struct{}) error

	mu    sync.Mutex
	crash chan struct{}
}

func newCrashableService(name string, run func(ctx context.Context, crashed <-chan struct{}) error) *crashableService {
	return &crashableService{name: name, run: run, crash: make(chan struct{})}
}

func (s *crashableService) Name() string { return s.name }

func (s *crashableService) Run(ctx context.Context) error {
	s.mu.Lock()
	ch := s.crash
	s.mu.Unlock()
	return s.run(ctx, ch)
}

// Trigger forces the currently running Run to observe a crash and arms a
// fresh channel for the service's next run.
func (s *crashableService) Trigger() {
	s.mu.Lock()
	defer s.mu.Unlock()
	select {
	case <-s.crash:
	default:
		close(s.crash)
	}
	s.crash = make(chan struct{})
}
