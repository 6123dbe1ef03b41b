package repository

import (
	"context"
	"time"

	"AltPull/internal/domain/models"
)

// Adapter fetches one provider's data and normalizes it to canonical records.
type Adapter interface {
	Provider() string
	Kind() models.Kind
	Fetch(ctx context.Context, symbol string, start, end *time.Time) (*models.DataSlice, error)
}

// SchemaValidator checks records against their canonical schema.
type SchemaValidator interface {
	Validate(ctx context.Context, slice *models.DataSlice) models.ValidationReport
}

// QualityChecker runs optional data quality expectations.
type QualityChecker interface {
	Enabled() bool
	Check(ctx context.Context, slice *models.DataSlice) (*models.QualityReport, error)
}

// PartitionWriter persists a slice as per-day partitions.
type PartitionWriter interface {
	Write(ctx context.Context, source string, slice *models.DataSlice) (models.StorageResult, error)
}

// RunLedger guards run keys against concurrent execution and remembers completed runs.
type RunLedger interface {
	Acquire(ctx context.Context, runKey string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, runKey string) error
	Completed(ctx context.Context, runKey string) (*models.ETLResult, bool, error)
	MarkCompleted(ctx context.Context, res *models.ETLResult, ttl time.Duration) error
}

// RunCatalog stores run history.
type RunCatalog interface {
	Record(ctx context.Context, rec models.RunRecord) error
	List(ctx context.Context, source, symbol string, limit int) ([]models.RunRecord, error)
	Close() error
}

// RunPublisher announces finished runs to downstream consumers.
type RunPublisher interface {
	PublishRun(ctx context.Context, rec models.RunRecord) error
	Close() error
}

// Metrics is the narrow observability hand-off used by the core.
type Metrics interface {
	Record(event string, labels map[string]string, value float64)
}

// NoopMetrics discards events.
type NoopMetrics struct{}

func (NoopMetrics) Record(string, map[string]string, float64) {}
