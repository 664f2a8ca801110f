package service

import (
	"errors"
	"sync"
	"time"
)

// ErrCircuitOpen is returned when a call is rejected because the breaker is open.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// BreakerState is the state of a circuit breaker.
type BreakerState int

const (
	BreakerClosed BreakerState = iota
	BreakerOpen
	BreakerHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// BreakerEvent drives a transition.
type BreakerEvent int

const (
	// EventAttempt is raised before a call; it moves Open to HalfOpen once the recovery timeout elapsed.
	EventAttempt BreakerEvent = iota
	EventSuccess
	EventFailure
)

// BreakerStatus is the full state of a breaker. OpenedAt is meaningful only when State is BreakerOpen.
type BreakerStatus struct {
	State    BreakerState
	Failures int
	OpenedAt time.Time
}

// BreakerPolicy holds the thresholds of a breaker.
type BreakerPolicy struct {
	FailureThreshold int
	RecoveryTimeout  time.Duration
}

// Next is the pure transition function of the breaker.
//
//	Closed   --failure (n >= threshold)--> Open{now}
//	Open     --attempt (elapsed >= recovery)--> HalfOpen
//	HalfOpen --success--> Closed
//	HalfOpen --failure--> Open{now}
func (p BreakerPolicy) Next(s BreakerStatus, ev BreakerEvent, now time.Time) BreakerStatus {
	switch ev {
	case EventAttempt:
		if s.State == BreakerOpen && now.Sub(s.OpenedAt) >= p.RecoveryTimeout {
			return BreakerStatus{State: BreakerHalfOpen, Failures: s.Failures}
		}
		return s
	case EventSuccess:
		return BreakerStatus{State: BreakerClosed}
	case EventFailure:
		switch s.State {
		case BreakerClosed:
			failures := s.Failures + 1
			if failures >= p.FailureThreshold {
				return BreakerStatus{State: BreakerOpen, Failures: failures, OpenedAt: now}
			}
			return BreakerStatus{State: BreakerClosed, Failures: failures}
		case BreakerHalfOpen:
			return BreakerStatus{State: BreakerOpen, Failures: s.Failures + 1, OpenedAt: now}
		default:
			return s
		}
	}
	return s
}

// Allows reports whether a call may proceed in state s.
func (s BreakerStatus) Allows() bool {
	return s.State != BreakerOpen
}

// CircuitBreaker is a mutex-guarded breaker built on BreakerPolicy.Next.
// In HalfOpen only one probe call is let through at a time.
type CircuitBreaker struct {
	mu       sync.Mutex
	policy   BreakerPolicy
	status   BreakerStatus
	probing  bool
	now      func() time.Time
	onChange func(from, to BreakerState)
}

// NewCircuitBreaker creates a closed breaker. onChange may be nil.
func NewCircuitBreaker(policy BreakerPolicy, onChange func(from, to BreakerState)) *CircuitBreaker {
	if policy.FailureThreshold <= 0 {
		policy.FailureThreshold = 1
	}
	return &CircuitBreaker{policy: policy, now: time.Now, onChange: onChange}
}

// Allow applies an attempt and reports whether the caller may proceed.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.apply(EventAttempt)
	switch cb.status.State {
	case BreakerOpen:
		return false
	case BreakerHalfOpen:
		if cb.probing {
			return false
		}
		cb.probing = true
		return true
	default:
		return true
	}
}

// RecordSuccess reports a successful call.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.probing = false
	cb.apply(EventSuccess)
}

// RecordFailure reports a failed call.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.probing = false
	cb.apply(EventFailure)
}

// Execute runs fn when allowed and records its outcome.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	if !cb.Allow() {
		return ErrCircuitOpen
	}
	if err := fn(); err != nil {
		cb.RecordFailure()
		return err
	}
	cb.RecordSuccess()
	return nil
}

// Status returns a snapshot of the breaker state.
func (cb *CircuitBreaker) Status() BreakerStatus {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.status
}

func (cb *CircuitBreaker) apply(ev BreakerEvent) {
	from := cb.status.State
	cb.status = cb.policy.Next(cb.status, ev, cb.now())
	if from != cb.status.State && cb.onChange != nil {
		cb.onChange(from, cb.status.State)
	}
}
