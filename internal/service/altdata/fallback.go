package altdata

import (
	"context"
	"fmt"
	"strings"
	"time"

	"AltPull/internal/domain/errs"
	"AltPull/internal/domain/models"
	"AltPull/internal/domain/repository"
	applogger "AltPull/pkg/logger"
)

// FallbackOption configures FallbackAdapter.
type FallbackOption func(*FallbackAdapter)

// WithRequireNonEmpty treats an empty slice as a failure so the next adapter is tried.
func WithRequireNonEmpty(v bool) FallbackOption {
	return func(f *FallbackAdapter) { f.requireNonEmpty = v }
}

// WithFallbackMetrics sets the metrics sink.
func WithFallbackMetrics(m repository.Metrics) FallbackOption {
	return func(f *FallbackAdapter) { f.metrics = m }
}

// WithFallbackLogger sets the logger.
func WithFallbackLogger(l *applogger.Logger) FallbackOption {
	return func(f *FallbackAdapter) { f.logger = l }
}

// FallbackAdapter tries an ordered list of adapters for one logical source and returns
// the first success. Retry repeats one adapter; fallback moves to the next.
type FallbackAdapter struct {
	name            string
	kind            models.Kind
	adapters        []repository.Adapter
	requireNonEmpty bool
	metrics         repository.Metrics
	logger          *applogger.Logger
}

// NewFallbackAdapter builds a chain named after the logical source. All adapters must share a kind.
func NewFallbackAdapter(name string, adapters []repository.Adapter, opts ...FallbackOption) (*FallbackAdapter, error) {
	if len(adapters) == 0 {
		return nil, errs.New(errs.KindConfig, name, "fallback chain needs at least one adapter")
	}
	kind := adapters[0].Kind()
	for _, a := range adapters[1:] {
		if a.Kind() != kind {
			return nil, errs.New(errs.KindConfig, name,
				fmt.Sprintf("adapter %s has kind %s, chain expects %s", a.Provider(), a.Kind(), kind))
		}
	}
	f := &FallbackAdapter{
		name:     name,
		kind:     kind,
		adapters: append([]repository.Adapter(nil), adapters...),
		metrics:  repository.NoopMetrics{},
		logger:   applogger.Nop(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

// Provider returns the chain name.
func (f *FallbackAdapter) Provider() string { return f.name }

// Kind returns the shared kind of the chain.
func (f *FallbackAdapter) Kind() models.Kind { return f.kind }

// Providers lists the chained providers in priority order.
func (f *FallbackAdapter) Providers() []string {
	out := make([]string, len(f.adapters))
	for i, a := range f.adapters {
		out[i] = a.Provider()
	}
	return out
}

// Fetch walks the chain. Each failed adapter records one fallback activation; if every
// adapter fails the last error is returned, wrapped with the failed provider names.
func (f *FallbackAdapter) Fetch(ctx context.Context, symbol string, start, end *time.Time) (*models.DataSlice, error) {
	var (
		lastErr error
		failed  []string
	)
	for _, a := range f.adapters {
		if err := ctx.Err(); err != nil {
			if lastErr == nil {
				return nil, err
			}
			break
		}

		slice, err := a.Fetch(ctx, symbol, start, end)
		if err == nil && f.requireNonEmpty && slice.Empty() {
			err = errs.New(errs.KindProviderResponse, a.Provider(), "empty result")
		}
		if err == nil {
			if len(failed) > 0 {
				f.logger.Info("fallback provider served request",
					applogger.String("chain", f.name),
					applogger.String("provider", a.Provider()),
					applogger.Strings("failed", failed),
				)
			}
			return slice, nil
		}

		lastErr = err
		failed = append(failed, a.Provider())
		f.metrics.Record(repository.EventFallbackActivation, map[string]string{
			repository.LabelSource:   f.name,
			repository.LabelProvider: a.Provider(),
			repository.LabelReason:   reasonOf(err),
		}, 1)
		f.logger.Warn("provider failed, trying next",
			applogger.String("chain", f.name),
			applogger.String("provider", a.Provider()),
			applogger.Error(err),
		)
	}
	return nil, fmt.Errorf("all providers failed for %s [%s]: %w", f.name, strings.Join(failed, ", "), lastErr)
}
