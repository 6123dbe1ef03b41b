package repository

// Observability event names passed to Metrics.Record.
const (
	EventFetchDuration      = "fetch_duration_seconds"
	EventFetchSuccess       = "fetch_success_total"
	EventFetchFailure       = "fetch_failure_total"
	EventRowsIngested       = "rows_ingested_total"
	EventFallbackActivation = "fallback_activation_total"
	EventBreakerStateChange = "breaker_state_change_total"
	EventRateLimitWait      = "rate_limit_wait_seconds"
	EventRetryAttempt       = "retry_attempt_total"
	EventFlowDuration       = "etl_flow_duration_seconds"
	EventFlowSuccess        = "etl_flow_success_total"
	EventFlowFailure        = "etl_flow_failure_total"
	EventPartitionWrite     = "partition_write_total"
)

// Label keys.
const (
	LabelProvider = "provider"
	LabelSource   = "source"
	LabelSymbol   = "symbol"
	LabelStage    = "stage"
	LabelReason   = "reason"
	LabelFrom     = "from"
	LabelTo       = "to"
	LabelResult   = "result"
)
