package altdata

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"AltPull/internal/domain/models"
	"AltPull/internal/service/breaker"
	"AltPull/internal/service/retry"
)

type recordedEvent struct {
	name   string
	labels map[string]string
	value  float64
}

type recordingMetrics struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (m *recordingMetrics) Record(event string, labels map[string]string, value float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, recordedEvent{name: event, labels: labels, value: value})
}

func (m *recordingMetrics) count(event string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, e := range m.events {
		if e.name == event {
			n++
		}
	}
	return n
}

func (m *recordingMetrics) find(event string) []recordedEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []recordedEvent
	for _, e := range m.events {
		if e.name == event {
			out = append(out, e)
		}
	}
	return out
}

// newTestClient builds a client with millisecond backoff and no limiter.
func newTestClient(t *testing.T, baseURL string, metrics *recordingMetrics, mutate func(*ClientConfig)) *Client {
	t.Helper()
	cfg := ClientConfig{
		Provider: "testprov",
		BaseURL:  baseURL,
		Timeout:  2 * time.Second,
		Retry:    retry.Config{MaxRetries: 2, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond},
		Breaker:  breaker.Config{FailureThreshold: 3, CoolDown: time.Minute},
	}
	if mutate != nil {
		mutate(&cfg)
	}
	opts := []ClientOption{}
	if metrics != nil {
		opts = append(opts, WithMetrics(metrics))
	}
	c, err := NewClient(cfg, opts...)
	require.NoError(t, err)
	return c
}

// stubAdapter is a scripted repository.Adapter.
type stubAdapter struct {
	provider string
	kind     models.Kind
	slice    *models.DataSlice
	err      error
	calls    int
}

func (s *stubAdapter) Provider() string  { return s.provider }
func (s *stubAdapter) Kind() models.Kind { return s.kind }
func (s *stubAdapter) Fetch(_ context.Context, _ string, _, _ *time.Time) (*models.DataSlice, error) {
	s.calls++
	return s.slice, s.err
}
