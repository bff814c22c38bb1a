package models

// Priority ranks index candidates.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// Rank returns a comparable weight for the priority (high > medium > low).
func (p Priority) Rank() int {
	switch p {
	case PriorityHigh:
		return 3
	case PriorityMedium:
		return 2
	default:
		return 1
	}
}

// IndexField is one (field, direction) pair of an index specification.
type IndexField struct {
	Field     string `json:"field"`
	Direction int    `json:"direction"`
}

// IndexSuggestion is a ranked, accepted index candidate for one collection.
type IndexSuggestion struct {
	Type              string       `json:"type"`
	Index             string       `json:"index"`
	Reason            string       `json:"reason"`
	Priority          Priority     `json:"priority"`
	Confidence        string       `json:"confidence"`
	ImpactScore       int64        `json:"impact_score"`
	Occurrences       int64        `json:"occurrences"`
	AvgDurationMS     int64        `json:"avg_duration_ms"`
	InefficiencyRatio *float64     `json:"inefficiency_ratio"`
	SelectivityPct    *float64     `json:"selectivity_pct"`
	Command           string       `json:"command"`
	Fields            []IndexField `json:"fields"`
	Justification     string       `json:"justification"`
	Collection        string       `json:"collection"`
}

// ReviewEntry records an execution that could not be turned into a concrete
// candidate, with a human-readable reason. Nothing is dropped silently.
type ReviewEntry struct {
	PlanSummary  string `json:"plan_summary"`
	DurationMS   int64  `json:"duration_ms"`
	DocsExamined int64  `json:"docs_examined"`
	DocsReturned int64  `json:"docs_returned"`
	Reason       string `json:"reason"`
	QueryText    string `json:"query_text"`
}

// SampleQuery is a short per-collection example of a scan-inefficient query.
type SampleQuery struct {
	Query      string `json:"query"`
	DurationMS int64  `json:"duration"`
	Timestamp  string `json:"timestamp"`
}

// CollectionSuggestionSet carries per-collection scan stats, accepted
// high-priority suggestions, and manual-review entries.
type CollectionSuggestionSet struct {
	CollectionName     string            `json:"collection_name"`
	CollscanQueries    int64             `json:"collscan_queries"`
	IxscanIneffQueries int64             `json:"ixscan_ineff_queries"`
	TotalDocsExamined  int64             `json:"total_docs_examined"`
	TotalReturned      int64             `json:"total_returned"`
	TotalDurationMS    float64           `json:"total_duration"`
	AvgDurationMS      float64           `json:"avg_duration"`
	AvgDocsPerQuery    float64           `json:"avg_docs_per_query"`
	SampleQueries      []SampleQuery     `json:"sample_queries"`
	Suggestions        []IndexSuggestion `json:"suggestions"`
	Reviews            []ReviewEntry     `json:"reviews"`
}

// SuggestionSummary aggregates counts across all collections.
type SuggestionSummary struct {
	TotalCollscanQueries int64   `json:"total_collscan_queries"`
	TotalSuggestions     int     `json:"total_suggestions"`
	AvgDocsExamined      float64 `json:"avg_docs_examined"`
}

// SuggestionReport is the full output of one suggestion run.
type SuggestionReport struct {
	Collections    map[string]*CollectionSuggestionSet `json:"collections"`
	TopSuggestions []IndexSuggestion                   `json:"top_suggestions"`
	Summary        SuggestionSummary                   `json:"summary"`
}

// PatternTotal supplies population counts for a sampled pattern, keyed by
// the pattern's "namespace::plan::hash" identity.
type PatternTotal struct {
	TotalCount  int64   `json:"total_count"`
	AvgDuration float64 `json:"avg_duration"`
}
