package models

// FunnelStage is the per-stage slice of a funnel report.
type FunnelStage struct {
	StageID      string  `json:"stage_id"`
	StageName    string  `json:"stage_name"`
	Position     int     `json:"position"`
	ReachedCount int64   `json:"reached_count"`
	ReachRate    float64 `json:"reach_rate"`
	AvgLatencyMs float64 `json:"avg_latency_ms"`
	AvgRetries   float64 `json:"avg_retries"`
	TotalTokens  int64   `json:"total_tokens"`
	TotalCostUSD float64 `json:"total_cost_usd"`
	FailRate     float64 `json:"fail_rate"`
}

// FunnelReport is the drop-off funnel across configured stages, computed at
// read time from execution records.
type FunnelReport struct {
	TotalThreads int64         `json:"total_threads"`
	Stages       []FunnelStage `json:"stages"`
}

// MetricSeverity tiers a stage's fail rate for the admin surface.
type MetricSeverity string

const (
	SeverityGreen  MetricSeverity = "green"
	SeverityYellow MetricSeverity = "yellow"
	SeverityRed    MetricSeverity = "red"
)

// StageMetrics is the aggregate view over one stage's execution records.
type StageMetrics struct {
	StageID        string         `json:"stage_id"`
	ExecutionCount int64          `json:"execution_count"`
	ErrorCount     int64          `json:"error_count"`
	FailRate       float64        `json:"fail_rate"`
	Severity       MetricSeverity `json:"severity"`
	AvgLatencyMs   float64        `json:"avg_latency_ms"`
	AvgRetries     float64        `json:"avg_retries"`
	TotalTokens    int64          `json:"total_tokens"`
	TotalCostUSD   float64        `json:"total_cost_usd"`
}
