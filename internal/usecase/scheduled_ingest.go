package usecase

import (
	"context"
	"errors"
	"time"

	"AltPull/internal/domain/models"
	applogger "AltPull/pkg/logger"
)

// RunExecutor runs one ETL request. *ETLRunner implements it.
type RunExecutor interface {
	Run(ctx context.Context, req models.RunRequest) (*models.ETLResult, error)
}

var _ RunExecutor = (*ETLRunner)(nil)

// ScheduledJob ingests the trailing Lookback window of one source and symbol on every tick.
type ScheduledJob struct {
	Source   string        `yaml:"source" validate:"required"`
	Symbol   string        `yaml:"symbol" validate:"required"`
	Lookback time.Duration `yaml:"lookback" default:"24h"`
}

// ScheduleConfig configures periodic ingestion for `altpull serve`.
type ScheduleConfig struct {
	Enabled      bool           `yaml:"enabled"`
	Interval     time.Duration  `yaml:"interval" default:"1h"`
	AlignToStart bool           `yaml:"align_to_start" default:"true"`
	StartupDelay time.Duration  `yaml:"startup_delay"`
	Jobs         []ScheduledJob `yaml:"jobs" validate:"dive"`
}

// ScheduledIngest turns scheduler ticks into ETL runs.
type ScheduledIngest struct {
	runner RunExecutor
	jobs   []ScheduledJob
	logger *applogger.Logger
}

func NewScheduledIngest(runner RunExecutor, jobs []ScheduledJob, logger *applogger.Logger) *ScheduledIngest {
	if logger == nil {
		logger = applogger.Nop()
	}
	return &ScheduledIngest{runner: runner, jobs: jobs, logger: logger}
}

// Tick runs every job over [bucket-lookback, bucket]. Failed jobs are logged and do not stop the
// remaining ones; the joined error is returned.
func (s *ScheduledIngest) Tick(ctx context.Context, bucket time.Time) error {
	var errList []error
	for _, job := range s.jobs {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		lookback := job.Lookback
		if lookback <= 0 {
			lookback = 24 * time.Hour
		}
		end := bucket.UTC()
		start := end.Add(-lookback)
		res, err := s.runner.Run(ctx, models.RunRequest{Source: job.Source, Symbol: job.Symbol, Start: &start, End: &end})
		if err != nil {
			s.logger.Error("scheduled run failed",
				applogger.String("source", job.Source),
				applogger.String("symbol", job.Symbol),
				applogger.Error(err),
			)
			errList = append(errList, err)
			continue
		}
		s.logger.Info("scheduled run finished",
			applogger.String("run_key", res.RunKey),
			applogger.Int("rows", res.Storage.RowsWritten),
			applogger.Bool("skipped", res.Skipped),
		)
	}
	return errors.Join(errList...)
}
