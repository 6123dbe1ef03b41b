package breaker

import (
	"context"
	"errors"
	"sync"
	"time"

	"AltPull/internal/domain/errs"
)

// State of a circuit breaker.
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// Config holds breaker thresholds.
type Config struct {
	FailureThreshold int           `yaml:"failure_threshold" default:"5"`
	CoolDown         time.Duration `yaml:"cool_down" default:"30s"`
	HalfOpenTrials   int           `yaml:"half_open_trials" default:"1"`
}

// Option configures Breaker.
type Option func(*Breaker)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(b *Breaker) { b.now = now }
}

// WithStateChange registers a callback invoked after every transition.
func WithStateChange(fn func(name string, from, to State)) Option {
	return func(b *Breaker) { b.onChange = fn }
}

// Breaker guards one provider endpoint. All transitions happen under mu.
type Breaker struct {
	mu        sync.Mutex
	name      string
	cfg       Config
	state     State
	failures  int
	openSince time.Time
	trials    int
	now       func() time.Time
	onChange  func(name string, from, to State)
}

// New creates a breaker in the Closed state.
func New(name string, cfg Config, opts ...Option) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.HalfOpenTrials <= 0 {
		cfg.HalfOpenTrials = 1
	}
	b := &Breaker{name: name, cfg: cfg, state: Closed, now: time.Now}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Name returns the scope the breaker guards.
func (b *Breaker) Name() string { return b.name }

// State returns the current state. An Open breaker past its cool-down reports HalfOpen
// only after the next Allow performs the transition.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Failures returns the consecutive failure count.
func (b *Breaker) Failures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures
}

// Ready reports, without changing state, whether Allow could admit a call now.
func (b *Breaker) Ready() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case Open:
		return b.now().Sub(b.openSince) >= b.cfg.CoolDown
	case HalfOpen:
		return b.trials < b.cfg.HalfOpenTrials
	default:
		return true
	}
}

// Allow gates one logical call. It returns a circuit-open error without touching
// the network when the breaker is Open or the half-open trial budget is spent.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	var from, to State
	changed := false

	switch b.state {
	case Open:
		if b.now().Sub(b.openSince) < b.cfg.CoolDown {
			b.mu.Unlock()
			return b.openError("circuit open")
		}
		from, to, changed = b.transition(HalfOpen)
		b.trials = 1
	case HalfOpen:
		if b.trials >= b.cfg.HalfOpenTrials {
			b.mu.Unlock()
			return b.openError("half-open trial budget exhausted")
		}
		b.trials++
	}
	b.mu.Unlock()

	if changed {
		b.notify(from, to)
	}
	return nil
}

// Record registers the outcome of a call admitted by Allow. Circuit-open errors and
// caller cancellation are not provider failures and leave the counters untouched.
func (b *Breaker) Record(err error) {
	b.mu.Lock()
	var from, to State
	changed := false

	switch {
	case err != nil && (errors.Is(err, errs.ErrCircuitOpen) || errors.Is(err, context.Canceled)):
		b.releaseTrial()
	case err == nil:
		b.failures = 0
		if b.state == HalfOpen {
			from, to, changed = b.transition(Closed)
		}
	default:
		b.failures++
		switch b.state {
		case HalfOpen:
			b.openSince = b.now()
			from, to, changed = b.transition(Open)
		case Closed:
			if b.failures >= b.cfg.FailureThreshold {
				b.openSince = b.now()
				from, to, changed = b.transition(Open)
			}
		}
	}
	b.mu.Unlock()

	if changed {
		b.notify(from, to)
	}
}

// Release ends a call admitted by Allow without counting an outcome, for calls the
// caller abandoned (its own deadline or cancellation).
func (b *Breaker) Release() {
	b.mu.Lock()
	b.releaseTrial()
	b.mu.Unlock()
}

// releaseTrial returns a half-open trial slot. Caller holds b.mu.
func (b *Breaker) releaseTrial() {
	if b.state == HalfOpen && b.trials > 0 {
		b.trials--
	}
}

// Execute runs fn under the breaker.
func (b *Breaker) Execute(fn func() error) error {
	if err := b.Allow(); err != nil {
		return err
	}
	err := fn()
	b.Record(err)
	return err
}

// transition moves to state. Caller holds b.mu.
func (b *Breaker) transition(state State) (State, State, bool) {
	from := b.state
	if from == state {
		return from, state, false
	}
	b.state = state
	b.trials = 0
	return from, state, true
}

func (b *Breaker) notify(from, to State) {
	if b.onChange != nil {
		b.onChange(b.name, from, to)
	}
}

func (b *Breaker) openError(msg string) error {
	return errs.New(errs.KindCircuitOpen, b.name, msg)
}
