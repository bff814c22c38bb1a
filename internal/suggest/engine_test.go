package suggest

import (
	"strings"
	"testing"

	"github.com/miradorstack/mirador-slowlog/internal/models"
	"github.com/miradorstack/mirador-slowlog/internal/store"
)

func collscanRecord(hash string, duration, examined, returned int64, queryText string) models.SlowQueryExecution {
	return models.SlowQueryExecution{
		TSEpoch:      1_700_000_000,
		Timestamp:    "2026-05-01T10:00:00Z",
		DurationMS:   duration,
		DocsExamined: examined,
		DocsReturned: returned,
		QueryHash:    hash,
		Database:     "shop",
		Collection:   "orders",
		Namespace:    "shop.orders",
		PlanSummary:  "COLLSCAN",
		QueryText:    queryText,
	}
}

func newTestEngine() *Engine {
	return NewEngine(nil, store.New(), DefaultOptions())
}

func TestSuggestCompoundDominance(t *testing.T) {
	query := `{"find": "orders", "filter": {"status": "active"}, "sort": {"date": -1}}`
	var records []models.SlowQueryExecution
	for i := 0; i < 5; i++ {
		records = append(records, collscanRecord("h1", 1400, 50000, 10, query))
	}

	report := newTestEngine().Suggest(records, nil, 10)

	entry, ok := report.Collections["shop.orders"]
	if !ok {
		t.Fatalf("missing collection entry: %v", report.Collections)
	}
	if entry.CollscanQueries != 5 {
		t.Fatalf("collscan count = %d", entry.CollscanQueries)
	}

	var indexes []string
	for _, s := range entry.Suggestions {
		indexes = append(indexes, s.Index)
	}
	joined := strings.Join(indexes, " ")
	if !strings.Contains(joined, "{status: 1, date: -1}") {
		t.Fatalf("expected the compound filter+sort index, got %v", indexes)
	}
	for _, idx := range indexes {
		if idx == "{status: 1}" {
			t.Fatalf("single-field prefix of an accepted compound must be dropped: %v", indexes)
		}
	}

	var compound models.IndexSuggestion
	for _, s := range entry.Suggestions {
		if s.Index == "{status: 1, date: -1}" {
			compound = s
		}
	}
	if compound.Type != "compound" || compound.Priority != models.PriorityHigh {
		t.Fatalf("unexpected compound suggestion: %+v", compound)
	}
	if compound.Occurrences != 5 || compound.AvgDurationMS != 1400 {
		t.Fatalf("aggregation wrong: occ=%d avg=%d", compound.Occurrences, compound.AvgDurationMS)
	}
	if compound.Command != "db.orders.createIndex({status: 1, date: -1})" {
		t.Fatalf("bad command: %s", compound.Command)
	}
	want := "5 COLLSCAN executions scanned ~50000 docs in 1400 ms without an index covering {status: 1, date: -1}."
	if compound.Justification != want {
		t.Fatalf("justification %q, want %q", compound.Justification, want)
	}
	if compound.InefficiencyRatio == nil || *compound.InefficiencyRatio != 5000 {
		t.Fatalf("inefficiency ratio wrong: %v", compound.InefficiencyRatio)
	}

	if report.Summary.TotalCollscanQueries != 5 {
		t.Fatalf("summary collscan = %d", report.Summary.TotalCollscanQueries)
	}
	if report.Summary.AvgDocsExamined != 50000 {
		t.Fatalf("summary avg docs = %v", report.Summary.AvgDocsExamined)
	}
	if len(report.TopSuggestions) == 0 || report.TopSuggestions[0].ImpactScore < report.TopSuggestions[len(report.TopSuggestions)-1].ImpactScore {
		t.Fatalf("top suggestions must be impact-sorted: %+v", report.TopSuggestions)
	}
}

func TestSuggestOccurrenceGate(t *testing.T) {
	query := `{"find": "orders", "filter": {"status": "active"}}`
	records := []models.SlowQueryExecution{
		collscanRecord("h1", 1400, 50000, 10, query),
		collscanRecord("h1", 1400, 50000, 10, query),
	}
	report := newTestEngine().Suggest(records, nil, 10)
	entry := report.Collections["shop.orders"]
	if len(entry.Suggestions) != 0 {
		t.Fatalf("two occurrences must not clear the floor of three: %+v", entry.Suggestions)
	}
	if len(entry.SampleQueries) != 2 {
		t.Fatalf("sample queries must still be collected, got %d", len(entry.SampleQueries))
	}
}

func TestSuggestDurationGate(t *testing.T) {
	// Fast and cheap: avg 100 ms, no docs examined, impact 300 < 750.
	query := `{"find": "orders", "filter": {"status": "active"}}`
	var records []models.SlowQueryExecution
	for i := 0; i < 3; i++ {
		records = append(records, collscanRecord("h1", 100, 0, 0, query))
	}
	report := newTestEngine().Suggest(records, nil, 10)
	if entry := report.Collections["shop.orders"]; len(entry.Suggestions) != 0 {
		t.Fatalf("candidates below both floors must be discarded: %+v", entry.Suggestions)
	}
}

func TestSuggestPatternInflation(t *testing.T) {
	query := `{"find": "orders", "filter": {"status": "active"}}`
	records := []models.SlowQueryExecution{collscanRecord("h1", 1400, 50000, 10, query)}
	totals := map[string]models.PatternTotal{
		"shop.orders::COLLSCAN::h1": {TotalCount: 5, AvgDuration: 1400},
	}
	report := newTestEngine().Suggest(records, totals, 10)
	entry := report.Collections["shop.orders"]
	if len(entry.Suggestions) != 1 {
		t.Fatalf("expected one inflated suggestion, got %+v", entry.Suggestions)
	}
	if got := entry.Suggestions[0].Occurrences; got != 5 {
		t.Fatalf("pattern totals must inflate occurrences to 5, got %d", got)
	}
}

func TestSuggestReviews(t *testing.T) {
	records := []models.SlowQueryExecution{
		collscanRecord("h1", 900, 10000, 10, "not a json document"),
	}
	ixscan := collscanRecord("h2", 900, 10000, 10, `{"find": "orders", "filter": {"status": "active"}}`)
	ixscan.PlanSummary = "IXSCAN { status: 1 }"
	records = append(records, ixscan)

	report := newTestEngine().Suggest(records, nil, 10)
	entry := report.Collections["shop.orders"]
	if entry.CollscanQueries != 1 || entry.IxscanIneffQueries != 1 {
		t.Fatalf("scan counts wrong: %+v", entry)
	}
	if len(entry.Reviews) != 2 {
		t.Fatalf("both rows must produce reviews, got %+v", entry.Reviews)
	}
	if entry.Reviews[0].Reason != "COLLSCAN query has complex/unsupported filter; review manually." {
		t.Fatalf("unexpected collscan review: %q", entry.Reviews[0].Reason)
	}
	if entry.Reviews[1].Reason != "Index already present; review before adding additional indexes." {
		t.Fatalf("unexpected ixscan review: %q", entry.Reviews[1].Reason)
	}
	if len(entry.Suggestions) != 0 {
		t.Fatalf("ixscan rows must not seed candidates: %+v", entry.Suggestions)
	}
}

func TestSuggestAggregatePipeline(t *testing.T) {
	query := `{"aggregate": "orders", "pipeline": [{"$match": {"status": "active"}}, {"$sort": {"date": -1}}]}`
	var records []models.SlowQueryExecution
	for i := 0; i < 3; i++ {
		records = append(records, collscanRecord("h1", 800, 20000, 10, query))
	}
	report := newTestEngine().Suggest(records, nil, 10)
	entry := report.Collections["shop.orders"]
	var indexes []string
	for _, s := range entry.Suggestions {
		indexes = append(indexes, s.Index)
	}
	joined := strings.Join(indexes, " ")
	if !strings.Contains(joined, "{status: 1}") || !strings.Contains(joined, "{date: -1}") {
		t.Fatalf("expected $match and $sort candidates, got %v", indexes)
	}
	for _, s := range entry.Suggestions {
		if s.Index == "{status: 1}" && s.Reason != "$match stage filter on status" {
			t.Fatalf("unexpected reason: %q", s.Reason)
		}
	}
}

func TestSuggestFromStore(t *testing.T) {
	s := store.New()
	if err := s.BeginIngest(); err != nil {
		t.Fatalf("begin ingest: %v", err)
	}
	query := `{"find": "orders", "filter": {"status": "active"}}`
	var rows []models.SlowQueryExecution
	for i := 0; i < 5; i++ {
		rows = append(rows, collscanRecord("h1", 1400, 50000, 10, query))
	}
	memtable := collscanRecord("h9", 400, 100, 100, `{"find": "orders"}`)
	memtable.PlanSummary = "None"
	rows = append(rows, memtable)
	if err := s.AppendBatch(models.Batch{SlowQueries: rows}); err != nil {
		t.Fatalf("append: %v", err)
	}
	s.EndIngest()

	engine := NewEngine(nil, s, DefaultOptions())
	report := engine.SuggestFromStore(store.Criteria{}, 10)

	entry, ok := report.Collections["shop.orders"]
	if !ok {
		t.Fatalf("missing collection entry")
	}
	if entry.CollscanQueries != 5 {
		t.Fatalf("non-scan plans must be excluded, collscan = %d", entry.CollscanQueries)
	}
	if len(entry.Suggestions) != 1 {
		t.Fatalf("expected one suggestion, got %+v", entry.Suggestions)
	}
	// Each sampled row is weighted by its full pattern population.
	if got := entry.Suggestions[0].Occurrences; got != 25 {
		t.Fatalf("weighted occurrences = %d, want 25", got)
	}
}
