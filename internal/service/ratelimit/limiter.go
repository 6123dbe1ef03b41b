package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Config bounds calls per sliding window.
type Config struct {
	CallsPerWindow int           `yaml:"calls_per_window"`
	Window         time.Duration `yaml:"window"`
}

// Enabled reports whether the config limits anything.
func (c Config) Enabled() bool { return c.CallsPerWindow > 0 && c.Window > 0 }

// Limiter is a sliding-window counter keyed by string (usually the provider).
// The per-key ledger of grant timestamps is guarded by one mutex so check-then-record is atomic.
type Limiter struct {
	mu  sync.Mutex
	cfg Config
	m   map[string][]time.Time
	now func() time.Time
}

func New(cfg Config) *Limiter {
	return &Limiter{cfg: cfg, m: make(map[string][]time.Time), now: time.Now}
}

// Wait blocks until a call for key fits in the window, records it and returns the time spent waiting.
func (l *Limiter) Wait(ctx context.Context, key string) (time.Duration, error) {
	if !l.cfg.Enabled() {
		return 0, nil
	}
	start := l.now()
	for {
		wait, ok := l.reserve(key)
		if ok {
			return l.now().Sub(start), nil
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return l.now().Sub(start), ctx.Err()
		case <-timer.C:
		}
	}
}

// Allow records a call and returns true if key has capacity right now.
func (l *Limiter) Allow(key string) bool {
	if !l.cfg.Enabled() {
		return true
	}
	_, ok := l.reserve(key)
	return ok
}

// InWindow returns the number of calls recorded for key within the current window.
func (l *Limiter) InWindow(key string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	ts := l.prune(key, l.now())
	return len(ts)
}

// reserve records a grant when capacity remains; otherwise it returns how long
// until the oldest call leaves the window.
func (l *Limiter) reserve(key string) (time.Duration, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	ts := l.prune(key, now)
	if len(ts) < l.cfg.CallsPerWindow {
		l.m[key] = append(ts, now)
		return 0, true
	}
	wait := l.cfg.Window - now.Sub(ts[0])
	if wait <= 0 {
		wait = time.Millisecond
	}
	return wait, false
}

// prune drops timestamps that left the window. Caller holds l.mu.
func (l *Limiter) prune(key string, now time.Time) []time.Time {
	ts := l.m[key]
	i := 0
	for i < len(ts) && now.Sub(ts[i]) >= l.cfg.Window {
		i++
	}
	if i > 0 {
		ts = append(ts[:0], ts[i:]...)
		l.m[key] = ts
	}
	return ts
}
