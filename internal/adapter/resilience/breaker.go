package resilience

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/maigscannabisclub-crypto/ecomerce-sub002/internal/core/domain"
	"go.uber.org/zap"
)

type State string

const (
	StateClosed   State = "CLOSED"
	StateOpen     State = "OPEN"
	StateHalfOpen State = "HALF_OPEN"
)

type Config struct {
	Name             string
	FailureThreshold int
	// Window bounds the failure count: failures further apart than Window
	// restart the count.
	Window       time.Duration
	ResetTimeout time.Duration
	CallTimeout  time.Duration
	// OnStateChange, when set, is called outside the breaker lock on every
	// transition.
	OnStateChange func(name string, from, to State)
	// Clock defaults to time.Now; tests inject a fake.
	Clock func() time.Time
}

// Metrics is a point-in-time snapshot of the breaker.
type Metrics struct {
	Name          string
	State         State
	FailureCount  int
	SuccessCount  int
	RejectedCalls uint64
	LastFailure   time.Time
	LastSuccess   time.Time
	NextAttempt   time.Time
}

// Breaker guards an outbound dependency with the usual three-state machine.
// State is process-local and resets on restart.
type Breaker struct {
	name          string
	threshold     int
	window        time.Duration
	resetTimeout  time.Duration
	callTimeout   time.Duration
	clock         func() time.Time
	onStateChange func(name string, from, to State)
	logger        *zap.Logger

	mu            sync.Mutex
	state         State
	failureCount  int
	successCount  int
	windowStart   time.Time
	lastFailure   time.Time
	lastSuccess   time.Time
	nextAttempt   time.Time
	probeInFlight bool
	rejectedCalls uint64
}

func NewBreaker(cfg Config, logger *zap.Logger) (*Breaker, error) {
	if cfg.FailureThreshold <= 0 {
		return nil, fmt.Errorf("breaker %q: failure threshold must be positive", cfg.Name)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Breaker{
		name:          cfg.Name,
		threshold:     cfg.FailureThreshold,
		window:        cfg.Window,
		resetTimeout:  cfg.ResetTimeout,
		callTimeout:   cfg.CallTimeout,
		clock:         clock,
		onStateChange: cfg.OnStateChange,
		logger:        logger,
		state:         StateClosed,
	}, nil
}

// Execute races fn against the call timeout. A timeout counts as a failure.
// While OPEN, calls are rejected with domain.ErrCircuitOpen without invoking fn.
func (b *Breaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	if !b.allow() {
		return fmt.Errorf("%s: %w", b.name, domain.ErrCircuitOpen)
	}

	callCtx := ctx
	cancel := context.CancelFunc(func() {})
	if b.callTimeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, b.callTimeout)
	}
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- fn(callCtx)
	}()

	select {
	case err := <-done:
		if err != nil {
			b.failure()
			return err
		}
		b.success()
		return nil
	case <-callCtx.Done():
		b.failure()
		return fmt.Errorf("%s call: %w", b.name, callCtx.Err())
	}
}

func (b *Breaker) Metrics() Metrics {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Metrics{
		Name:          b.name,
		State:         b.state,
		FailureCount:  b.failureCount,
		SuccessCount:  b.successCount,
		RejectedCalls: b.rejectedCalls,
		LastFailure:   b.lastFailure,
		LastSuccess:   b.lastSuccess,
		NextAttempt:   b.nextAttempt,
	}
}

func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Breaker) allow() bool {
	b.mu.Lock()

	switch b.state {
	case StateClosed:
		b.mu.Unlock()
		return true
	case StateOpen:
		if !b.clock().Before(b.nextAttempt) {
			notify := b.setState(StateHalfOpen)
			b.probeInFlight = true
			b.mu.Unlock()
			notify()
			return true
		}
		b.rejectedCalls++
		b.mu.Unlock()
		return false
	default: // HALF_OPEN: one probe at a time
		if b.probeInFlight {
			b.rejectedCalls++
			b.mu.Unlock()
			return false
		}
		b.probeInFlight = true
		b.mu.Unlock()
		return true
	}
}

func (b *Breaker) success() {
	b.mu.Lock()
	now := b.clock()
	b.lastSuccess = now
	b.successCount++

	notify := func() {}
	if b.state == StateHalfOpen {
		notify = b.setState(StateClosed)
		b.failureCount = 0
		b.successCount = 0
		b.probeInFlight = false
	}
	b.mu.Unlock()
	notify()
}

func (b *Breaker) failure() {
	b.mu.Lock()
	now := b.clock()
	b.lastFailure = now

	notify := func() {}
	switch b.state {
	case StateHalfOpen:
		b.probeInFlight = false
		b.nextAttempt = now.Add(b.resetTimeout)
		notify = b.setState(StateOpen)
	case StateClosed:
		if b.window > 0 && now.Sub(b.windowStart) > b.window {
			b.failureCount = 0
			b.windowStart = now
		}
		if b.failureCount == 0 {
			b.windowStart = now
		}
		b.failureCount++
		if b.failureCount >= b.threshold {
			b.nextAttempt = now.Add(b.resetTimeout)
			notify = b.setState(StateOpen)
		}
	}
	b.mu.Unlock()
	notify()
}

// setState changes state under the held lock and returns the notification to
// run after unlocking.
func (b *Breaker) setState(to State) func() {
	from := b.state
	b.state = to
	return func() {
		b.logger.Info("circuit breaker state change",
			zap.String("breaker", b.name),
			zap.String("from", string(from)),
			zap.String("to", string(to)))
		if b.onStateChange != nil {
			b.onStateChange(b.name, from, to)
		}
	}
}
