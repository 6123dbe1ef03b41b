package altdata

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"AltPull/internal/domain/errs"
	"AltPull/internal/domain/repository"
	"AltPull/internal/service/breaker"
	"AltPull/internal/service/ratelimit"
	"AltPull/internal/service/retry"
	xhttp "AltPull/pkg/http"
	applogger "AltPull/pkg/logger"
)

// ClientConfig configures one provider endpoint scope.
type ClientConfig struct {
	Provider       string
	BaseURL        string
	Timeout        time.Duration
	DefaultHeaders map[string]string
	RateLimit      ratelimit.Config
	Retry          retry.Config
	Breaker        breaker.Config
}

// ClientOption configures Client.
type ClientOption func(*clientDeps)

type clientDeps struct {
	metrics     repository.Metrics
	logger      *applogger.Logger
	httpClient  *http.Client
	breakerOpts []breaker.Option
	retryOpts   []retry.Option
}

// WithMetrics sets the observability sink.
func WithMetrics(m repository.Metrics) ClientOption {
	return func(d *clientDeps) { d.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l *applogger.Logger) ClientOption {
	return func(d *clientDeps) { d.logger = l }
}

// WithHTTPClient replaces the transport, mainly for tests.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(d *clientDeps) { d.httpClient = hc }
}

// WithBreakerOptions passes options to the owned breaker.
func WithBreakerOptions(opts ...breaker.Option) ClientOption {
	return func(d *clientDeps) { d.breakerOpts = append(d.breakerOpts, opts...) }
}

// WithRetryOptions passes options to the retry policy.
func WithRetryOptions(opts ...retry.Option) ClientOption {
	return func(d *clientDeps) { d.retryOpts = append(d.retryOpts, opts...) }
}

// Client issues JSON requests to one provider through rate limiting, circuit breaking
// and retries. Every adapter sharing a Client shares its limiter ledger and breaker state.
type Client struct {
	provider string
	baseURL  *url.URL
	headers  map[string]string
	timeout  time.Duration

	transport *xhttp.Client
	limiter   *ratelimit.Limiter
	breaker   *breaker.Breaker
	retry     *retry.Policy
	metrics   repository.Metrics
	logger    *applogger.Logger
}

// NewClient builds a provider client.
func NewClient(cfg ClientConfig, opts ...ClientOption) (*Client, error) {
	if cfg.Provider == "" {
		return nil, errs.New(errs.KindConfig, "", "provider name is required")
	}
	base, err := url.Parse(cfg.BaseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, errs.New(errs.KindConfig, cfg.Provider, fmt.Sprintf("invalid base url %q", cfg.BaseURL))
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	deps := &clientDeps{metrics: repository.NoopMetrics{}, logger: applogger.Nop()}
	for _, opt := range opts {
		opt(deps)
	}

	c := &Client{
		provider: cfg.Provider,
		baseURL:  base,
		headers:  cloneHeaders(cfg.DefaultHeaders),
		timeout:  cfg.Timeout,
		limiter:  ratelimit.New(cfg.RateLimit),
		metrics:  deps.metrics,
		logger:   deps.logger.With(applogger.String("provider", cfg.Provider)),
	}

	transportOpts := []xhttp.ClientOption{xhttp.WithTimeout(cfg.Timeout)}
	if deps.httpClient != nil {
		transportOpts = append(transportOpts, xhttp.WithHTTPClient(deps.httpClient))
	}
	c.transport = xhttp.NewClient(transportOpts...)

	breakerOpts := append([]breaker.Option{breaker.WithStateChange(c.onBreakerChange)}, deps.breakerOpts...)
	c.breaker = breaker.New(cfg.Provider, cfg.Breaker, breakerOpts...)

	retryOpts := append([]retry.Option{retry.WithOnRetry(c.onRetry)}, deps.retryOpts...)
	c.retry = retry.New(cfg.Retry, retryOpts...)

	return c, nil
}

// Provider returns the provider name.
func (c *Client) Provider() string { return c.provider }

// Breaker exposes the breaker for health reporting.
func (c *Client) Breaker() *breaker.Breaker { return c.breaker }

// GetJSON issues a GET to path with query and extra headers merged over the defaults
// and returns the decoded JSON payload (object or array).
//
// Order: rate limiter, breaker gate, retried transport, one breaker outcome.
// A call the breaker would reject is refused before it takes a rate-limit slot.
func (c *Client) GetJSON(ctx context.Context, path string, query url.Values, headers map[string]string) (interface{}, error) {
	if !c.breaker.Ready() {
		return nil, errs.New(errs.KindCircuitOpen, c.provider, "circuit open").WithOp("get " + path)
	}

	if err := c.waitForSlot(ctx); err != nil {
		return nil, err
	}
	if err := c.breaker.Allow(); err != nil {
		return nil, err
	}

	attempt := 0
	payload, err := retry.Do(ctx, c.retry, func(ctx context.Context) (interface{}, error) {
		if attempt > 0 {
			if err := c.waitForSlot(ctx); err != nil {
				return nil, err
			}
		}
		attempt++
		return c.send(ctx, path, query, headers)
	})
	if err != nil && ctx.Err() != nil {
		// the caller gave up; says nothing about provider health
		c.breaker.Release()
	} else {
		c.breaker.Record(err)
	}
	if err != nil {
		return nil, err
	}
	return payload, nil
}

func (c *Client) waitForSlot(ctx context.Context) error {
	waited, err := c.limiter.Wait(ctx, c.provider)
	if waited > 0 {
		c.metrics.Record(repository.EventRateLimitWait, map[string]string{repository.LabelProvider: c.provider}, waited.Seconds())
	}
	if err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	return nil
}

func (c *Client) send(ctx context.Context, path string, query url.Values, headers map[string]string) (interface{}, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	merged := cloneHeaders(c.headers)
	for k, v := range headers {
		merged[k] = v
	}

	var payload interface{}
	err := c.transport.SendAndParse(attemptCtx, &xhttp.RequestOptions{
		Method:      http.MethodGet,
		URL:         c.resolve(path),
		Headers:     merged,
		QueryParams: query,
	}, &payload)
	if err != nil {
		return nil, c.classify(ctx, path, err)
	}
	return payload, nil
}

// classify maps transport failures onto the error taxonomy.
func (c *Client) classify(parent context.Context, path string, err error) error {
	op := "get " + path

	if perr := parent.Err(); perr != nil {
		return fmt.Errorf("%s: %w", op, perr)
	}

	var se *xhttp.StatusError
	if errors.As(err, &se) {
		switch {
		case se.StatusCode == http.StatusTooManyRequests:
			return errs.New(errs.KindRateLimited, c.provider, "provider rate limit exceeded").
				WithOp(op).WithStatus(se.StatusCode).WithRetryAfter(parseRetryAfter(se.Header.Get("Retry-After")))
		case se.StatusCode == http.StatusUnauthorized || se.StatusCode == http.StatusForbidden:
			return errs.New(errs.KindAuth, c.provider, "provider rejected credentials").WithOp(op).WithStatus(se.StatusCode)
		case se.StatusCode >= 500 || se.StatusCode == http.StatusRequestTimeout:
			return errs.New(errs.KindNetwork, c.provider, "provider unavailable").WithOp(op).WithStatus(se.StatusCode)
		default:
			return errs.New(errs.KindProviderResponse, c.provider, fmt.Sprintf("request failed: %s", truncate(se.Body))).
				WithOp(op).WithStatus(se.StatusCode)
		}
	}

	var de *xhttp.DecodeError
	if errors.As(err, &de) {
		return errs.Wrap(errs.KindProviderResponse, c.provider, de).WithOp(op)
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return errs.Wrap(errs.KindTimeout, c.provider, err).WithOp(op)
	}
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return errs.Wrap(errs.KindTimeout, c.provider, err).WithOp(op)
	}
	return errs.Wrap(errs.KindNetwork, c.provider, err).WithOp(op)
}

func (c *Client) resolve(path string) string {
	if path == "" {
		return c.baseURL.String()
	}
	return strings.TrimRight(c.baseURL.String(), "/") + "/" + strings.TrimLeft(path, "/")
}

func (c *Client) onBreakerChange(name string, from, to breaker.State) {
	c.metrics.Record(repository.EventBreakerStateChange, map[string]string{
		repository.LabelProvider: name,
		repository.LabelFrom:     from.String(),
		repository.LabelTo:       to.String(),
	}, 1)
	c.logger.Warn("circuit breaker state change",
		applogger.String("from", from.String()),
		applogger.String("to", to.String()),
	)
}

func (c *Client) onRetry(attempt int, err error, delay time.Duration) {
	c.metrics.Record(repository.EventRetryAttempt, map[string]string{
		repository.LabelProvider: c.provider,
		repository.LabelReason:   reasonOf(err),
	}, 1)
	c.logger.Debug("retrying provider call",
		applogger.Int("attempt", attempt),
		applogger.Duration("delay_ms", delay),
		applogger.Error(err),
	)
}

func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.ParseFloat(v, 64); err == nil && secs > 0 {
		return time.Duration(secs * float64(time.Second))
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

func cloneHeaders(h map[string]string) map[string]string {
	out := make(map[string]string, len(h))
	for k, v := range h {
		out[k] = v
	}
	return out
}

func truncate(b []byte) string {
	const max = 256
	s := strings.TrimSpace(string(b))
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}
