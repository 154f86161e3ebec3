// Package supervisor implements the micro-kernel runtime's service
// supervisor: spawn a named service, restart it on crash under a sliding
// crash-window budget with decorrelated-jitter backoff, and give the whole
// tree one cancellation token for graceful shutdown. Grounded on the
// teacher's context-cancellation start/stop shape (core/consensus_start.go)
// generalized from a single subsystem to an arbitrary set of services.
package supervisor

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/overlaymesh/ronet/internal/bus"
	"github.com/overlaymesh/ronet/internal/obs"
)

// TopicServiceCrashed is the bus topic a ServiceCrashed event is published
// on when a service exhausts its restart budget.
const TopicServiceCrashed = "supervisor.service_crashed"

// ServiceCrashed is published when a service is permanently given up on.
type ServiceCrashed struct {
	Service string
	Err     error
}

// Service is anything the supervisor can run and restart. Run must return
// promptly once ctx is cancelled; any other return is treated as a crash.
type Service interface {
	Name() string
	Run(ctx context.Context) error
}

// Supervisor owns a set of running services and restarts them under policy.
type Supervisor struct {
	policy  CrashPolicy
	bus     *bus.Bus
	metrics *obs.Metrics
	logger  *logrus.Logger

	mu     sync.Mutex
	states map[string]*serviceState

	wg sync.WaitGroup
}

type serviceState struct {
	crashTimes []time.Time
	backoff    time.Duration
	failed     bool
}

// New constructs a Supervisor. b and metrics may be nil in tests.
func New(policy CrashPolicy, b *bus.Bus, metrics *obs.Metrics, logger *logrus.Logger) *Supervisor {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Supervisor{
		policy:  policy,
		bus:     b,
		metrics: metrics,
		logger:  logger,
		states:  make(map[string]*serviceState),
	}
}

// Spawn starts svc under supervision. It runs in its own goroutine and
// restarts svc.Run on crash until ctx is cancelled, the crash budget is
// exhausted, or the service exits with a nil error (a clean, intentional
// stop that is never restarted).
func (s *Supervisor) Spawn(ctx context.Context, svc Service) {
	s.mu.Lock()
	s.states[svc.Name()] = &serviceState{}
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.runLoop(ctx, svc)
	}()
}

func (s *Supervisor) runLoop(ctx context.Context, svc Service) {
	name := svc.Name()
	for {
		err := svc.Run(ctx)
		if ctx.Err() != nil {
			s.logger.WithField("service", name).Info("service stopped: context cancelled")
			return
		}
		if err == nil {
			s.logger.WithField("service", name).Info("service exited cleanly")
			return
		}

		s.logger.WithFields(logrus.Fields{"service": name, "err": err}).Warn("service crashed")
		if s.metrics != nil {
			s.metrics.SupervisorCrashed.WithLabelValues(name).Inc()
		}

		st := s.recordCrash(name)
		if !s.policy.ShouldRestart(st.crashTimes, time.Now()) {
			s.markFailed(name)
			s.logger.WithField("service", name).Error("service exceeded crash budget, giving up")
			if s.bus != nil {
				s.bus.TryPublish(TopicServiceCrashed, ServiceCrashed{Service: name, Err: err})
			}
			return
		}

		delay := s.nextBackoff(name)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return
		}
		if s.metrics != nil {
			s.metrics.SupervisorRestarts.WithLabelValues(name).Inc()
		}
	}
}

func (s *Supervisor) recordCrash(name string) *serviceState {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.states[name]
	st.crashTimes = append(st.crashTimes, time.Now())
	return st
}

func (s *Supervisor) nextBackoff(name string) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.states[name]
	st.backoff = NextBackoff(st.backoff)
	return st.backoff
}

func (s *Supervisor) markFailed(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[name].failed = true
}

// Failed reports whether the named service has exhausted its crash budget.
func (s *Supervisor) Failed(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.states[name]
	return ok && st.failed
}

// Wait blocks until every spawned service's run loop has returned, which
// happens once ctx is cancelled (or all services exit/fail on their own).
func (s *Supervisor) Wait() {
	s.wg.Wait()
}
