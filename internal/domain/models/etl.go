package models

import "time"

// RunKeyInputs identifies one logical ingestion request.
type RunKeyInputs struct {
	Source string
	Symbol string
	Start  *time.Time
	End    *time.Time
}

// RunRequest asks the ETL flow to ingest one (source, symbol, window).
type RunRequest struct {
	Source string     `json:"source" validate:"required"`
	Symbol string     `json:"symbol" validate:"required"`
	Start  *time.Time `json:"start,omitempty"`
	End    *time.Time `json:"end,omitempty"`
	Force  bool       `json:"force,omitempty"`
}

// Inputs returns the run key inputs of the request.
func (r RunRequest) Inputs() RunKeyInputs {
	return RunKeyInputs{Source: r.Source, Symbol: r.Symbol, Start: r.Start, End: r.End}
}

// Stage names one step of the ETL flow.
type Stage string

const (
	StageRunKey   Stage = "run_key"
	StageLock     Stage = "lock"
	StageFetch    Stage = "fetch"
	StageValidate Stage = "validate"
	StageQuality  Stage = "quality"
	StagePersist  Stage = "persist"
	StageDone     Stage = "done"
)

// ValidationReport lists every schema violation found in a slice.
type ValidationReport struct {
	Passed bool     `json:"passed"`
	Errors []string `json:"errors,omitempty"`
}

// QualityReport is the outcome of optional data quality expectations.
type QualityReport struct {
	Passed    bool                   `json:"passed"`
	Supported bool                   `json:"supported"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

// StorageResult summarizes one successful partitioned write.
type StorageResult struct {
	RowsWritten       int      `json:"rows_written"`
	PartitionsWritten int      `json:"partitions_written"`
	BasePath          string   `json:"base_path"`
	Paths             []string `json:"paths,omitempty"`
}

// ETLResult is returned by a completed run.
type ETLResult struct {
	RunKey       string           `json:"run_key"`
	FlowRunID    string           `json:"flow_run_id"`
	Source       string           `json:"source"`
	Symbol       string           `json:"symbol"`
	Provider     string           `json:"provider,omitempty"`
	RowsIngested int              `json:"rows_ingested"`
	Validation   ValidationReport `json:"validation"`
	Quality      *QualityReport   `json:"quality,omitempty"`
	Storage      StorageResult    `json:"storage"`
	Skipped      bool             `json:"skipped,omitempty"`
	StartedAt    time.Time        `json:"started_at"`
	Duration     time.Duration    `json:"duration"`
}

// RunRecord is one row of run history.
type RunRecord struct {
	RunKey     string        `json:"run_key"`
	FlowRunID  string        `json:"flow_run_id"`
	Source     string        `json:"source"`
	Symbol     string        `json:"symbol"`
	Status     string        `json:"status"`
	Stage      Stage         `json:"stage"`
	Rows       int           `json:"rows"`
	Partitions int           `json:"partitions"`
	BasePath   string        `json:"base_path"`
	Error      string        `json:"error,omitempty"`
	StartedAt  time.Time     `json:"started_at"`
	Duration   time.Duration `json:"duration"`
}

// Run statuses recorded in history.
const (
	RunStatusSuccess = "success"
	RunStatusFailed  = "failed"
	RunStatusSkipped = "skipped"
)
