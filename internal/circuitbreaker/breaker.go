package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrCircuitOpen is returned without calling fn while the breaker rejects calls.
var ErrCircuitOpen = errors.New("circuit breaker is open")

type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

type Config struct {
	FailureThreshold int           // consecutive endpoint failures that open the breaker (default 5)
	SuccessThreshold int           // probe successes that close it again (default 2)
	OpenTimeout      time.Duration // time spent open before probing (default 30s)

	// Trips decides whether an error says the endpoint is unwell. A reverted
	// eth_call is a healthy node giving a bad answer and should not count.
	// Nil counts every error.
	Trips func(error) bool

	OnStateChange func(from, to State)
}

// Breaker guards the chain read path. While half-open it lets one probe
// through at a time; everything else is rejected until the probe settles.
type Breaker struct {
	cfg Config
	now func() time.Time

	mu       sync.Mutex
	state    State
	failures int
	probeOKs int
	probing  bool
	openedAt time.Time
}

func New(cfg Config) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = 2
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = 30 * time.Second
	}
	return &Breaker{cfg: cfg, now: time.Now}
}

// Do runs fn if admitted and feeds its outcome back. Caller cancellation and
// errors that do not trip are neutral.
func (b *Breaker) Do(ctx context.Context, fn func(context.Context) error) error {
	probe, err := b.admit()
	if err != nil {
		return err
	}
	err = fn(ctx)
	b.settle(probe, b.verdict(ctx, err))
	return err
}

// State reports the current state, moving open to half-open once the
// timeout has passed.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.maybeHalfOpen()
	return b.state
}

type outcome int

const (
	neutral outcome = iota
	success
	failure
)

func (b *Breaker) verdict(ctx context.Context, err error) outcome {
	switch {
	case err == nil:
		return success
	case ctx.Err() != nil || errors.Is(err, context.Canceled):
		return neutral
	case b.cfg.Trips != nil && !b.cfg.Trips(err):
		// the endpoint answered, which is as good as a success for its health
		return success
	default:
		return failure
	}
}

func (b *Breaker) admit() (probe bool, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.maybeHalfOpen()
	switch b.state {
	case StateOpen:
		return false, ErrCircuitOpen
	case StateHalfOpen:
		if b.probing {
			return false, ErrCircuitOpen
		}
		b.probing = true
		return true, nil
	default:
		return false, nil
	}
}

func (b *Breaker) settle(probe bool, o outcome) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if probe {
		b.probing = false
	}
	switch o {
	case success:
		b.failures = 0
		if b.state == StateHalfOpen {
			b.probeOKs++
			if b.probeOKs >= b.cfg.SuccessThreshold {
				b.moveTo(StateClosed)
			}
		}
	case failure:
		b.failures++
		switch {
		case b.state == StateHalfOpen:
			b.moveTo(StateOpen)
		case b.state == StateClosed && b.failures >= b.cfg.FailureThreshold:
			b.moveTo(StateOpen)
		}
	}
}

func (b *Breaker) maybeHalfOpen() {
	if b.state == StateOpen && b.now().Sub(b.openedAt) >= b.cfg.OpenTimeout {
		b.moveTo(StateHalfOpen)
	}
}

func (b *Breaker) moveTo(to State) {
	from := b.state
	if from == to {
		return
	}
	b.state = to
	b.probeOKs = 0
	switch to {
	case StateOpen:
		b.openedAt = b.now()
	case StateClosed:
		b.failures = 0
	}
	if b.cfg.OnStateChange != nil {
		b.cfg.OnStateChange(from, to)
	}
}
