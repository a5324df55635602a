// Package breaker guards calls to the remote API with a circuit breaker.
package breaker

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// State represents the current state of the circuit breaker
type State int

const (
	StateClosed State = iota
	StateHalfOpen
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half-open"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// ErrOpen is returned by Execute while the circuit is open.
var ErrOpen = errors.New("circuit breaker is open")

type Config struct {
	Name         string
	MaxFailures  int           // Failures before opening
	ResetTimeout time.Duration // Time to wait before a trial call
	SuccessCount int           // Successes needed to close from half-open
	// IsFailure decides whether an error returned by the guarded call counts
	// against the circuit. Defaults to any non-nil error.
	IsFailure     func(error) bool
	Logger        *slog.Logger
	OnStateChange func(from, to State)
	Now           func() time.Time
}

type Breaker struct {
	config       Config
	state        State
	failures     int
	successes    int
	lastFailTime time.Time
	mutex        sync.Mutex
}

func New(config Config) *Breaker {
	if config.MaxFailures <= 0 {
		config.MaxFailures = 5
	}
	if config.ResetTimeout <= 0 {
		config.ResetTimeout = 30 * time.Second
	}
	if config.SuccessCount <= 0 {
		config.SuccessCount = 2
	}
	if config.IsFailure == nil {
		config.IsFailure = func(err error) bool { return err != nil }
	}
	if config.Now == nil {
		config.Now = time.Now
	}

	return &Breaker{
		config: config,
		state:  StateClosed,
	}
}

// Execute runs fn unless the circuit is open. The error of fn is returned
// unchanged.
func (b *Breaker) Execute(fn func() error) error {
	if !b.allow() {
		return ErrOpen
	}

	err := fn()
	if b.config.IsFailure(err) {
		b.recordFailure()
	} else {
		b.recordSuccess()
	}
	return err
}

func (b *Breaker) allow() bool {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	if b.state != StateOpen {
		return true
	}
	if b.config.Now().Sub(b.lastFailTime) <= b.config.ResetTimeout {
		return false
	}
	b.setState(StateHalfOpen)
	return true
}

func (b *Breaker) recordFailure() {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	b.failures++
	b.successes = 0
	b.lastFailTime = b.config.Now()

	if b.config.Logger != nil {
		b.config.Logger.Warn("Circuit breaker recorded failure",
			slog.String("breaker", b.config.Name),
			slog.Int("failures", b.failures),
			slog.Int("max_failures", b.config.MaxFailures))
	}

	if b.state == StateHalfOpen || b.failures >= b.config.MaxFailures {
		b.setState(StateOpen)
	}
}

func (b *Breaker) recordSuccess() {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	if b.state != StateHalfOpen {
		b.failures = 0
		return
	}

	b.successes++
	if b.successes >= b.config.SuccessCount {
		b.setState(StateClosed)
		b.failures = 0
		b.successes = 0
	}
}

// setState must be called with the mutex held.
func (b *Breaker) setState(newState State) {
	oldState := b.state
	if oldState == newState {
		return
	}
	b.state = newState

	if b.config.Logger != nil {
		b.config.Logger.Info("Circuit breaker state changed",
			slog.String("breaker", b.config.Name),
			slog.String("from", oldState.String()),
			slog.String("to", newState.String()))
	}

	if b.config.OnStateChange != nil {
		b.config.OnStateChange(oldState, newState)
	}
}

func (b *Breaker) State() State {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return b.state
}
