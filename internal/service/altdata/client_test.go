package altdata

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"AltPull/internal/domain/errs"
	"AltPull/internal/domain/repository"
	"AltPull/internal/service/breaker"
)

func TestNewClient(t *testing.T) {
	t.Run("rejects missing provider", func(t *testing.T) {
		_, err := NewClient(ClientConfig{BaseURL: "http://example.com"})
		require.Error(t, err)
		require.Equal(t, errs.KindConfig, errs.KindOf(err))
	})

	t.Run("rejects relative base url", func(t *testing.T) {
		_, err := NewClient(ClientConfig{Provider: "p", BaseURL: "/api"})
		require.Error(t, err)
	})
}

func TestClientGetJSON(t *testing.T) {
	t.Run("merges default and call headers and sends query", func(t *testing.T) {
		var gotQuery url.Values
		var gotHeader http.Header
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotQuery = r.URL.Query()
			gotHeader = r.Header.Clone()
			_, _ = w.Write([]byte(`{"data":[]}`))
		}))
		defer srv.Close()

		c := newTestClient(t, srv.URL, nil, func(cfg *ClientConfig) {
			cfg.DefaultHeaders = map[string]string{"X-Default": "d", "X-Override": "old"}
		})
		payload, err := c.GetJSON(context.Background(), "/v1/items", url.Values{"symbol": {"BTC"}}, map[string]string{"X-Override": "new"})
		require.NoError(t, err)
		require.IsType(t, map[string]interface{}{}, payload)
		require.Equal(t, "BTC", gotQuery.Get("symbol"))
		require.Equal(t, "d", gotHeader.Get("X-Default"))
		require.Equal(t, "new", gotHeader.Get("X-Override"))
	})

	t.Run("retries 5xx then succeeds", func(t *testing.T) {
		var calls int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if atomic.AddInt32(&calls, 1) < 3 {
				w.WriteHeader(http.StatusBadGateway)
				return
			}
			_, _ = w.Write([]byte(`[{"t":1}]`))
		}))
		defer srv.Close()

		m := &recordingMetrics{}
		c := newTestClient(t, srv.URL, m, nil)
		payload, err := c.GetJSON(context.Background(), "", nil, nil)
		require.NoError(t, err)
		require.Len(t, payload, 1)
		require.EqualValues(t, 3, atomic.LoadInt32(&calls))
		require.Equal(t, 2, m.count(repository.EventRetryAttempt))
		require.Equal(t, breaker.Closed, c.Breaker().State())
		require.Zero(t, c.Breaker().Failures())
	})

	t.Run("429 is classified rate limited and retried", func(t *testing.T) {
		var calls int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&calls, 1)
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
		}))
		defer srv.Close()

		c := newTestClient(t, srv.URL, nil, nil)
		_, err := c.GetJSON(context.Background(), "", nil, nil)
		require.ErrorIs(t, err, errs.ErrRateLimited)
		require.EqualValues(t, 3, atomic.LoadInt32(&calls))
	})

	t.Run("auth failures are not retried", func(t *testing.T) {
		var calls int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&calls, 1)
			w.WriteHeader(http.StatusUnauthorized)
		}))
		defer srv.Close()

		c := newTestClient(t, srv.URL, nil, nil)
		_, err := c.GetJSON(context.Background(), "", nil, nil)
		require.ErrorIs(t, err, errs.ErrAuth)
		require.EqualValues(t, 1, atomic.LoadInt32(&calls))
	})

	t.Run("other 4xx is a provider response error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte("bad symbol"))
		}))
		defer srv.Close()

		c := newTestClient(t, srv.URL, nil, nil)
		_, err := c.GetJSON(context.Background(), "", nil, nil)
		require.ErrorIs(t, err, errs.ErrProviderResponse)
		var e *errs.Error
		require.True(t, errors.As(err, &e))
		require.Equal(t, http.StatusBadRequest, e.Status)
		require.Contains(t, e.Error(), "bad symbol")
	})

	t.Run("malformed body is a provider response error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("{not json"))
		}))
		defer srv.Close()

		c := newTestClient(t, srv.URL, nil, nil)
		_, err := c.GetJSON(context.Background(), "", nil, nil)
		require.ErrorIs(t, err, errs.ErrProviderResponse)
	})

	t.Run("retries count once toward the breaker", func(t *testing.T) {
		var calls int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&calls, 1)
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer srv.Close()

		c := newTestClient(t, srv.URL, nil, nil)
		_, err := c.GetJSON(context.Background(), "", nil, nil)
		require.ErrorIs(t, err, errs.ErrNetwork)
		require.EqualValues(t, 3, atomic.LoadInt32(&calls))
		require.Equal(t, 1, c.Breaker().Failures())
		require.Equal(t, breaker.Closed, c.Breaker().State())
	})

	t.Run("caller deadline is not a provider failure", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-r.Context().Done():
			case <-time.After(time.Second):
			}
		}))
		defer srv.Close()

		c := newTestClient(t, srv.URL, nil, func(cfg *ClientConfig) {
			cfg.Breaker.FailureThreshold = 1
		})
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
		defer cancel()
		_, err := c.GetJSON(ctx, "", nil, nil)
		require.ErrorIs(t, err, context.DeadlineExceeded)
		require.Zero(t, c.Breaker().Failures())
		require.Equal(t, breaker.Closed, c.Breaker().State())
	})

	t.Run("slow provider times out", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-r.Context().Done():
			case <-time.After(time.Second):
			}
		}))
		defer srv.Close()

		c := newTestClient(t, srv.URL, nil, func(cfg *ClientConfig) {
			cfg.Timeout = 20 * time.Millisecond
			cfg.Retry.MaxRetries = 0
		})
		_, err := c.GetJSON(context.Background(), "", nil, nil)
		require.ErrorIs(t, err, errs.ErrTimeout)
		require.Equal(t, 1, c.Breaker().Failures())
	})

	t.Run("breaker opens and short-circuits", func(t *testing.T) {
		var calls int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&calls, 1)
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer srv.Close()

		m := &recordingMetrics{}
		c := newTestClient(t, srv.URL, m, func(cfg *ClientConfig) {
			cfg.Retry.MaxRetries = 0
		})
		for i := 0; i < 3; i++ {
			_, err := c.GetJSON(context.Background(), "", nil, nil)
			require.ErrorIs(t, err, errs.ErrNetwork)
		}
		require.Equal(t, breaker.Open, c.Breaker().State())

		_, err := c.GetJSON(context.Background(), "", nil, nil)
		require.ErrorIs(t, err, errs.ErrCircuitOpen)
		require.EqualValues(t, 3, atomic.LoadInt32(&calls))

		changes := m.find(repository.EventBreakerStateChange)
		require.Len(t, changes, 1)
		require.Equal(t, "open", changes[0].labels[repository.LabelTo])
	})

	t.Run("open breaker does not consume rate limit slots", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer srv.Close()

		c := newTestClient(t, srv.URL, nil, func(cfg *ClientConfig) {
			cfg.Retry.MaxRetries = 0
			cfg.Breaker.FailureThreshold = 1
			cfg.RateLimit.CallsPerWindow = 10
			cfg.RateLimit.Window = time.Minute
		})
		_, err := c.GetJSON(context.Background(), "", nil, nil)
		require.Error(t, err)
		for i := 0; i < 5; i++ {
			_, err = c.GetJSON(context.Background(), "", nil, nil)
			require.ErrorIs(t, err, errs.ErrCircuitOpen)
		}
		require.Equal(t, 1, c.limiter.InWindow("testprov"))
	})

	t.Run("cancelled context is returned as is", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			<-r.Context().Done()
		}))
		defer srv.Close()

		c := newTestClient(t, srv.URL, nil, nil)
		ctx, cancel := context.WithCancel(context.Background())
		go func() {
			time.Sleep(20 * time.Millisecond)
			cancel()
		}()
		_, err := c.GetJSON(ctx, "", nil, nil)
		require.ErrorIs(t, err, context.Canceled)
		require.Zero(t, c.Breaker().Failures())
	})
}

func TestParseRetryAfter(t *testing.T) {
	require.Equal(t, 2*time.Second, parseRetryAfter("2"))
	require.Zero(t, parseRetryAfter(""))
	require.Zero(t, parseRetryAfter("soon"))
	future := time.Now().Add(time.Hour).UTC().Format(http.TimeFormat)
	require.Greater(t, parseRetryAfter(future), 50*time.Minute)
}
