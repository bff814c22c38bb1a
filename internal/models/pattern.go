package models

// Mixed is the sentinel for an aggregate dimension spanning more than one
// distinct underlying value.
const Mixed = "MIXED"

// MixedOperation is the lowercase sentinel used for the operation dimension.
const MixedOperation = "mixed"

// OptimizationPotential classifies how much a pattern would benefit from tuning.
type OptimizationPotential string

const (
	PotentialLow    OptimizationPotential = "low"
	PotentialMedium OptimizationPotential = "medium"
	PotentialHigh   OptimizationPotential = "high"
)

// PlanCount is one entry of a pattern's plan breakdown.
type PlanCount struct {
	PlanSummary string `json:"plan_summary"`
	Count       int64  `json:"count"`
}

// QueryPattern aggregates a group of executions sharing a grouping key.
// It is computed on demand and never persisted.
type QueryPattern struct {
	GroupingKey           string                `json:"grouping_key"`
	PatternKey            string                `json:"pattern_key"`
	Namespace             string                `json:"namespace"`
	Database              string                `json:"database"`
	Collection            string                `json:"collection"`
	PlanSummary           string                `json:"plan_summary"`
	QueryHash             string                `json:"query_hash"`
	Operation             string                `json:"operation"`
	ExecutionCount        int64                 `json:"execution_count"`
	MinDurationMS         float64               `json:"min_duration_ms"`
	AvgDurationMS         float64               `json:"avg_duration_ms"`
	MaxDurationMS         float64               `json:"max_duration_ms"`
	MedianDurationMS      float64               `json:"median_duration_ms"`
	TotalDurationMS       float64               `json:"total_duration_ms"`
	TotalDocsExamined     int64                 `json:"total_docs_examined"`
	TotalDocsReturned     int64                 `json:"total_docs_returned"`
	TotalKeysExamined     int64                 `json:"total_keys_examined"`
	AvgDocsExamined       float64               `json:"avg_docs_examined"`
	AvgDocsReturned       float64               `json:"avg_docs_returned"`
	AvgKeysExamined       float64               `json:"avg_keys_examined"`
	SelectivityPct        float64               `json:"selectivity_pct"`
	IndexEfficiencyPct    float64               `json:"index_efficiency_pct"`
	OptimizationPotential OptimizationPotential `json:"optimization_potential"`
	ComplexityScore       float64               `json:"complexity_score"`
	FirstSeen             string                `json:"first_seen"`
	LastSeen              string                `json:"last_seen"`
	SlowestTimestamp      string                `json:"slowest_execution_timestamp"`
	SlowestQuery          string                `json:"slowest_query"`
	SampleQuery           string                `json:"sample_query"`
	PlanBreakdown         []PlanCount           `json:"plan_breakdown,omitempty"`
}

// PatternReport is one page of aggregated patterns plus totals computed over
// the full filtered set (not only the returned page).
type PatternReport struct {
	Items             []QueryPattern `json:"items"`
	TotalGroups       int            `json:"total_groups"`
	TotalExecutions   int            `json:"total_executions"`
	AvgDurationMS     float64        `json:"avg_duration_ms"`
	HighPriorityCount int            `json:"high_priority_count"`
}
