package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"AltPull/internal/domain/models"
	"AltPull/internal/services/alignment"
	applogger "AltPull/pkg/logger"
)

// SourceSpec names one aligned input as source:SYMBOL.
type SourceSpec struct {
	Source string
	Symbol string
}

// Name is the column prefix for this input.
func (s SourceSpec) Name() string {
	return strings.ToLower(s.Source) + "_" + strings.ToLower(s.Symbol)
}

// ParseSourceSpecs parses "news:BTC,onchain:BTC" (or separate values) into specs.
func ParseSourceSpecs(values ...string) ([]SourceSpec, error) {
	var out []SourceSpec
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			source, symbol, ok := strings.Cut(part, ":")
			if !ok || source == "" || symbol == "" {
				return nil, fmt.Errorf("invalid source spec %q: want source:SYMBOL", part)
			}
			out = append(out, SourceSpec{Source: strings.ToLower(source), Symbol: strings.ToUpper(symbol)})
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("at least one source spec is required")
	}
	return out, nil
}

// StorageReader loads previously persisted records.
type StorageReader interface {
	ReadRange(source, symbol string, kind models.Kind, start, end *time.Time) (*models.DataSlice, error)
}

// FeatureAligner fetches several sources concurrently and aligns them onto one grid.
type FeatureAligner struct {
	sources     Sources
	reader      StorageReader
	concurrency int
	logger      *applogger.Logger
}

func NewFeatureAligner(sources Sources, reader StorageReader, concurrency int, logger *applogger.Logger) *FeatureAligner {
	if concurrency <= 0 {
		concurrency = 4
	}
	if logger == nil {
		logger = applogger.Nop()
	}
	return &FeatureAligner{sources: sources, reader: reader, concurrency: concurrency, logger: logger}
}

// Align fetches every spec live through its source adapter.
func (a *FeatureAligner) Align(ctx context.Context, specs []SourceSpec, start, end *time.Time, opts alignment.AlignOptions) (*alignment.Frame, error) {
	return a.align(ctx, specs, opts, func(ctx context.Context, spec SourceSpec) (*models.DataSlice, error) {
		adapter, err := a.sources.Lookup(spec.Source)
		if err != nil {
			return nil, err
		}
		return adapter.Fetch(ctx, spec.Symbol, start, end)
	})
}

// AlignFromStorage aligns previously persisted partitions instead of calling providers.
func (a *FeatureAligner) AlignFromStorage(ctx context.Context, specs []SourceSpec, start, end *time.Time, opts alignment.AlignOptions) (*alignment.Frame, error) {
	if a.reader == nil {
		return nil, fmt.Errorf("no storage reader configured")
	}
	return a.align(ctx, specs, opts, func(_ context.Context, spec SourceSpec) (*models.DataSlice, error) {
		adapter, err := a.sources.Lookup(spec.Source)
		if err != nil {
			return nil, err
		}
		return a.reader.ReadRange(spec.Source, spec.Symbol, adapter.Kind(), start, end)
	})
}

func (a *FeatureAligner) align(ctx context.Context, specs []SourceSpec, opts alignment.AlignOptions,
	load func(context.Context, SourceSpec) (*models.DataSlice, error)) (*alignment.Frame, error) {
	// fail on bad options before any I/O
	if _, err := alignment.ParseFrequency(opts.Frequency); err != nil {
		return nil, err
	}
	if _, err := alignment.ParseJoin(string(opts.Join)); err != nil {
		return nil, err
	}
	if _, err := alignment.ParseAggregation(string(opts.Aggregation)); err != nil {
		return nil, err
	}

	frames := make([]alignment.NamedFrame, len(specs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.concurrency)
	for i, spec := range specs {
		g.Go(func() error {
			started := time.Now()
			slice, err := load(gctx, spec)
			if err != nil {
				return fmt.Errorf("load %s:%s: %w", spec.Source, spec.Symbol, err)
			}
			frames[i] = alignment.NamedFrame{Name: spec.Name(), Frame: alignment.FrameFromSlice(slice)}
			a.logger.Debug("aligner input loaded",
				applogger.String("source", spec.Source),
				applogger.String("symbol", spec.Symbol),
				applogger.Int("rows", slice.Len()),
				applogger.Duration("duration_ms", time.Since(started)),
			)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return alignment.AlignFrames(frames, opts)
}
