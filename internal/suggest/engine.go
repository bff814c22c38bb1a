// Package suggest derives index recommendations from scan-heavy slow query
// executions. Candidates are accumulated per (namespace, index spec), weighted
// by pattern population counts, gated on occurrence and duration floors, and
// deduplicated by compound-prefix dominance.
package suggest

import (
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/miradorstack/mirador-slowlog/internal/fingerprint"
	"github.com/miradorstack/mirador-slowlog/internal/models"
	"github.com/miradorstack/mirador-slowlog/internal/patterns"
	"github.com/miradorstack/mirador-slowlog/internal/store"
)

// Options hold the acceptance thresholds for candidate indexes.
type Options struct {
	// MinOccurrences is the minimum number of weighted executions a
	// candidate needs before it is considered.
	MinOccurrences int64
	// MinAvgDurationMS gates candidates whose average duration and impact
	// are both below the floor.
	MinAvgDurationMS float64
	// TopLimit caps the global top_suggestions list.
	TopLimit int
}

// DefaultOptions mirror the thresholds the analysis pipeline ships with.
func DefaultOptions() Options {
	return Options{MinOccurrences: 3, MinAvgDurationMS: 250, TopLimit: 10}
}

func (o Options) normalized() Options {
	if o.MinOccurrences < 1 {
		o.MinOccurrences = 3
	}
	if o.MinAvgDurationMS <= 0 {
		o.MinAvgDurationMS = 250
	}
	if o.TopLimit < 1 {
		o.TopLimit = 10
	}
	return o
}

// Engine generates index suggestions over store snapshots.
type Engine struct {
	logger   *slog.Logger
	source   patterns.RowSource
	analyzer *patterns.Analyzer
	opts     Options
}

// NewEngine constructs an Engine reading from the given source.
func NewEngine(logger *slog.Logger, source patterns.RowSource, opts Options) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		logger:   logger,
		source:   source,
		analyzer: patterns.NewAnalyzer(logger, source),
		opts:     opts.normalized(),
	}
}

// SuggestFromStore runs suggestion generation over the filtered store
// snapshot, restricted to COLLSCAN and IXSCAN plans, weighting candidates by
// the full pattern population behind each sampled execution.
func (e *Engine) SuggestFromStore(criteria store.Criteria, limitPerCollection int) *models.SuggestionReport {
	rows := e.source.SlowQueries(criteria)
	scans := rows[:0]
	for _, row := range rows {
		plan := strings.ToUpper(row.PlanSummary)
		if strings.HasPrefix(plan, "COLLSCAN") || strings.HasPrefix(plan, "IXSCAN") {
			scans = append(scans, row)
		}
	}
	return e.Suggest(scans, e.analyzer.PatternTotals(criteria), limitPerCollection)
}

// rawSuggestion is one candidate extracted from a single parsed query before
// aggregation.
type rawSuggestion struct {
	kind     string
	spec     []models.IndexField
	reason   string
	priority models.Priority
}

// candidate accumulates all raw suggestions sharing one (namespace, spec).
type candidate struct {
	namespace string
	spec      []models.IndexField

	occurrences   int64
	totalDuration float64
	docsExamined  int64
	returned      int64

	reason     string
	confidence string
	priority   models.Priority

	impactScore    int64
	ineffRatio     *float64
	avgDurationMS  int64
	selectivityPct *float64
}

// Suggest builds the full suggestion report for the given executions. The
// totals map, keyed "namespace::plan::hash", inflates sampled candidates to
// their pattern population; pass nil to score raw rows only.
func (e *Engine) Suggest(records []models.SlowQueryExecution, totals map[string]models.PatternTotal, limitPerCollection int) *models.SuggestionReport {
	if limitPerCollection < 1 {
		limitPerCollection = 10
	}

	collections := make(map[string]*models.CollectionSuggestionSet)
	var nsOrder []string

	candidates := make(map[string]*candidate)
	var candidateOrder []*candidate

	var totalCollscan int64

	for _, record := range records {
		database := record.Database
		if database == "" {
			database = "unknown"
		}
		collection := record.Collection
		if collection == "" {
			collection = "unknown"
		}
		namespace := database + "." + collection
		plan := strings.ToUpper(record.PlanSummary)
		isCollscan := strings.HasPrefix(plan, "COLLSCAN")
		isIxscan := strings.Contains(plan, "IXSCAN") && !isCollscan
		if !isCollscan && !isIxscan {
			continue
		}

		entry, ok := collections[namespace]
		if !ok {
			entry = &models.CollectionSuggestionSet{
				CollectionName: namespace,
				SampleQueries:  []models.SampleQuery{},
				Suggestions:    []models.IndexSuggestion{},
				Reviews:        []models.ReviewEntry{},
			}
			collections[namespace] = entry
			nsOrder = append(nsOrder, namespace)
		}
		if isCollscan {
			entry.CollscanQueries++
			totalCollscan++
		} else {
			entry.IxscanIneffQueries++
		}

		docs := record.DocsExamined
		returned := record.DocsReturned
		duration := float64(record.DurationMS)
		entry.TotalDocsExamined += docs
		entry.TotalReturned += returned
		entry.TotalDurationMS += duration

		if isCollscan && len(entry.SampleQueries) < 3 {
			entry.SampleQueries = append(entry.SampleQueries, models.SampleQuery{
				Query:      record.QueryText,
				DurationMS: int64(duration),
				Timestamp:  record.Timestamp,
			})
		}

		query, parsed := fingerprint.ParseDocument(record.QueryText)
		if !parsed {
			if isCollscan {
				entry.Reviews = append(entry.Reviews, review(record, plan, "COLLSCAN",
					"COLLSCAN query has complex/unsupported filter; review manually."))
			} else {
				entry.Reviews = append(entry.Reviews, review(record, plan, "IXSCAN",
					"Query already uses index plan; evaluate query structure before adding new index."))
			}
			continue
		}

		var raws []rawSuggestion
		if _, ok := fingerprint.Lookup(query, "find"); ok {
			raws = findSuggestions(query)
		} else if _, ok := fingerprint.Lookup(query, "aggregate"); ok {
			raws = aggregateSuggestions(query)
		}

		if len(raws) == 0 {
			if isCollscan {
				entry.Reviews = append(entry.Reviews, review(record, plan, "COLLSCAN",
					"COLLSCAN query with no straightforward filter/sort; review manually."))
			} else {
				entry.Reviews = append(entry.Reviews, review(record, plan, "IXSCAN",
					"Query already uses an index (IXSCAN); consider tuning existing index or query."))
			}
			continue
		}

		// IXSCAN executions contribute collection stats only; new index
		// candidates come exclusively from COLLSCAN rows.
		if !isCollscan {
			entry.Reviews = append(entry.Reviews, review(record, plan, "IXSCAN",
				"Index already present; review before adding additional indexes."))
			continue
		}

		var patternInfo *models.PatternTotal
		if record.QueryHash != "" {
			if info, ok := totals[namespace+"::"+plan+"::"+record.QueryHash]; ok {
				patternInfo = &info
			}
		}

		for _, raw := range raws {
			if len(raw.spec) == 0 {
				continue
			}
			key := namespace + "\x1f" + formatSpec(raw.spec)
			cand, ok := candidates[key]
			if !ok {
				cand = &candidate{
					namespace:  namespace,
					spec:       raw.spec,
					confidence: "high",
					priority:   models.PriorityHigh,
				}
				candidates[key] = cand
				candidateOrder = append(candidateOrder, cand)
			}
			cand.occurrences++
			cand.totalDuration += duration
			cand.docsExamined += docs
			cand.returned += returned
			cand.reason = raw.reason
			if raw.priority.Rank() > cand.priority.Rank() {
				cand.priority = raw.priority
			}

			if patternInfo != nil && patternInfo.TotalCount > 1 {
				additional := patternInfo.TotalCount - 1
				cand.occurrences += additional
				cand.totalDuration += patternInfo.AvgDuration * float64(additional)
			}
		}
	}

	byNamespace := make(map[string][]*candidate)
	for _, cand := range candidateOrder {
		byNamespace[cand.namespace] = append(byNamespace[cand.namespace], cand)
	}

	report := &models.SuggestionReport{
		Collections:    collections,
		TopSuggestions: []models.IndexSuggestion{},
	}

	var globalCandidates []models.IndexSuggestion
	var totalSuggestions int
	var sumDocsExamined int64

	for _, namespace := range nsOrder {
		entry := collections[namespace]
		accepted := e.rankAndFilter(byNamespace[namespace], limitPerCollection)

		for _, cand := range accepted {
			if cand.priority != models.PriorityHigh {
				continue
			}
			suggestion := formatCandidate(cand, namespace)
			entry.Suggestions = append(entry.Suggestions, suggestion)
			globalCandidates = append(globalCandidates, suggestion)
		}

		totalQueries := entry.CollscanQueries + entry.IxscanIneffQueries
		if totalQueries > 0 {
			entry.AvgDurationMS = entry.TotalDurationMS / float64(totalQueries)
			entry.AvgDocsPerQuery = float64(entry.TotalDocsExamined) / float64(totalQueries)
		}
		totalSuggestions += len(entry.Suggestions)
		sumDocsExamined += entry.TotalDocsExamined
	}

	sort.SliceStable(globalCandidates, func(i, j int) bool {
		return globalCandidates[i].ImpactScore > globalCandidates[j].ImpactScore
	})
	if len(globalCandidates) > e.opts.TopLimit {
		globalCandidates = globalCandidates[:e.opts.TopLimit]
	}
	report.TopSuggestions = append(report.TopSuggestions, globalCandidates...)

	report.Summary = models.SuggestionSummary{
		TotalCollscanQueries: totalCollscan,
		TotalSuggestions:     totalSuggestions,
	}
	if totalCollscan > 0 {
		report.Summary.AvgDocsExamined = float64(sumDocsExamined) / float64(totalCollscan)
	}
	return report
}

// rankAndFilter scores candidates, applies the occurrence and duration
// gates, and drops candidates whose spec is a prefix of an already accepted
// longer spec.
func (e *Engine) rankAndFilter(items []*candidate, limit int) []*candidate {
	for _, cand := range items {
		cand.ineffRatio = nil
		if cand.docsExamined > 0 {
			denom := cand.returned
			if denom == 0 {
				denom = 1
			}
			if denom < 1 {
				denom = 1
			}
			ratio := round2(float64(cand.docsExamined) / float64(denom))
			cand.ineffRatio = &ratio
		}
		impact := cand.totalDuration
		if cand.ineffRatio != nil && *cand.ineffRatio != 0 {
			impact = cand.totalDuration * *cand.ineffRatio
		}
		cand.impactScore = int64(impact)
		occ := cand.occurrences
		if occ < 1 {
			occ = 1
		}
		cand.avgDurationMS = int64(cand.totalDuration / float64(occ))
		cand.selectivityPct = nil
		if cand.docsExamined > 0 {
			sel := round2(float64(cand.returned) / float64(cand.docsExamined) * 100)
			cand.selectivityPct = &sel
		}
	}

	ranked := append([]*candidate(nil), items...)
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].impactScore != ranked[j].impactScore {
			return ranked[i].impactScore > ranked[j].impactScore
		}
		return len(ranked[i].spec) > len(ranked[j].spec)
	})

	var filtered []*candidate
	for _, cand := range ranked {
		if cand.occurrences < e.opts.MinOccurrences {
			continue
		}
		if float64(cand.avgDurationMS) < e.opts.MinAvgDurationMS &&
			float64(cand.impactScore) < e.opts.MinAvgDurationMS*float64(e.opts.MinOccurrences) {
			continue
		}
		filtered = append(filtered, cand)
	}

	var deduped []*candidate
	for _, cand := range filtered {
		dominated := false
		for _, existing := range deduped {
			if isPrefix(cand.spec, existing.spec) {
				dominated = true
				break
			}
		}
		if dominated {
			continue
		}
		deduped = append(deduped, cand)
	}
	if len(deduped) > limit {
		deduped = deduped[:limit]
	}
	return deduped
}

func formatCandidate(cand *candidate, namespace string) models.IndexSuggestion {
	indexSpec := "{" + formatSpec(cand.spec) + "}"
	kind := "single_field"
	if len(cand.spec) > 1 {
		kind = "compound"
	}
	occ := cand.occurrences
	if occ < 1 {
		occ = 1
	}
	avgDocs := cand.docsExamined / occ
	reason := cand.reason
	if reason == "" {
		reason = "Index suggestion"
	}
	return models.IndexSuggestion{
		Type:              kind,
		Index:             indexSpec,
		Reason:            reason,
		Priority:          cand.priority,
		Confidence:        cand.confidence,
		ImpactScore:       cand.impactScore,
		Occurrences:       cand.occurrences,
		AvgDurationMS:     cand.avgDurationMS,
		InefficiencyRatio: cand.ineffRatio,
		SelectivityPct:    cand.selectivityPct,
		Command:           fmt.Sprintf("db.%s.createIndex(%s)", shortCollection(namespace), indexSpec),
		Fields:            append([]models.IndexField(nil), cand.spec...),
		Justification: fmt.Sprintf("%d COLLSCAN executions scanned ~%d docs in %d ms without an index covering %s.",
			cand.occurrences, avgDocs, cand.avgDurationMS, indexSpec),
		Collection: namespace,
	}
}

func review(record models.SlowQueryExecution, plan, fallback, reason string) models.ReviewEntry {
	if plan == "" {
		plan = fallback
	}
	return models.ReviewEntry{
		PlanSummary:  plan,
		DurationMS:   record.DurationMS,
		DocsExamined: record.DocsExamined,
		DocsReturned: record.DocsReturned,
		Reason:       reason,
		QueryText:    record.QueryText,
	}
}

var skipFilterOperators = map[string]struct{}{"$and": {}, "$or": {}, "$nor": {}}
var skipMatchOperators = map[string]struct{}{"$and": {}, "$or": {}, "$nor": {}, "$expr": {}}

// findSuggestions derives candidates from a find command: one per filter
// field, one per sort shape, and a compound filter+sort candidate for the
// single-field case.
func findSuggestions(query bson.D) []rawSuggestion {
	var out []rawSuggestion

	filterDoc, _ := lookupDoc(query, "filter")
	sortDoc, _ := lookupDoc(query, "sort")

	for _, elem := range filterDoc {
		if _, skip := skipFilterOperators[elem.Key]; skip {
			continue
		}
		out = append(out, rawSuggestion{
			kind:     "single_field",
			spec:     []models.IndexField{{Field: elem.Key, Direction: 1}},
			reason:   "Filter on " + elem.Key,
			priority: models.PriorityHigh,
		})
	}

	if len(sortDoc) == 1 {
		field := sortDoc[0].Key
		direction := fingerprint.DirectionValue(sortDoc[0].Value)
		out = append(out, rawSuggestion{
			kind:     "sort",
			spec:     []models.IndexField{{Field: field, Direction: direction}},
			reason:   "Sort by " + field,
			priority: models.PriorityHigh,
		})
	} else if len(sortDoc) > 1 && len(sortDoc) <= 3 {
		spec := make([]models.IndexField, 0, len(sortDoc))
		names := make([]string, 0, len(sortDoc))
		for _, elem := range sortDoc {
			spec = append(spec, models.IndexField{Field: elem.Key, Direction: fingerprint.DirectionValue(elem.Value)})
			names = append(names, elem.Key)
		}
		out = append(out, rawSuggestion{
			kind:     "compound_sort",
			spec:     spec,
			reason:   "Compound sort on " + strings.Join(names, ", "),
			priority: models.PriorityMedium,
		})
	}

	if len(filterDoc) == 1 && len(sortDoc) == 1 {
		filterField := filterDoc[0].Key
		sortField := sortDoc[0].Key
		if filterField != sortField {
			out = append(out, rawSuggestion{
				kind: "compound_filter_sort",
				spec: []models.IndexField{
					{Field: filterField, Direction: 1},
					{Field: sortField, Direction: fingerprint.DirectionValue(sortDoc[0].Value)},
				},
				reason:   fmt.Sprintf("Filter on %s and sort by %s", filterField, sortField),
				priority: models.PriorityHigh,
			})
		}
	}
	return out
}

// aggregateSuggestions derives candidates from $match and single-field $sort
// pipeline stages.
func aggregateSuggestions(query bson.D) []rawSuggestion {
	var out []rawSuggestion
	pipelineVal, ok := fingerprint.Lookup(query, "pipeline")
	if !ok {
		return out
	}
	pipeline, ok := fingerprint.AsArray(pipelineVal)
	if !ok {
		return out
	}
	for _, stageVal := range pipeline {
		stage, ok := fingerprint.AsDocument(stageVal)
		if !ok {
			continue
		}
		if matchVal, ok := fingerprint.Lookup(stage, "$match"); ok {
			matchDoc, ok := fingerprint.AsDocument(matchVal)
			if !ok || len(matchDoc) == 0 {
				continue
			}
			for _, elem := range matchDoc {
				if _, skip := skipMatchOperators[elem.Key]; skip {
					continue
				}
				out = append(out, rawSuggestion{
					kind:     "single_field",
					spec:     []models.IndexField{{Field: elem.Key, Direction: 1}},
					reason:   "$match stage filter on " + elem.Key,
					priority: models.PriorityHigh,
				})
			}
		} else if sortVal, ok := fingerprint.Lookup(stage, "$sort"); ok {
			sortDoc, ok := fingerprint.AsDocument(sortVal)
			if !ok || len(sortDoc) != 1 {
				continue
			}
			field := sortDoc[0].Key
			out = append(out, rawSuggestion{
				kind:     "aggregate_sort",
				spec:     []models.IndexField{{Field: field, Direction: fingerprint.DirectionValue(sortDoc[0].Value)}},
				reason:   "$sort stage on " + field,
				priority: models.PriorityHigh,
			})
		}
	}
	return out
}

func lookupDoc(query bson.D, key string) (bson.D, bool) {
	val, ok := fingerprint.Lookup(query, key)
	if !ok {
		return nil, false
	}
	return fingerprint.AsDocument(val)
}

func formatSpec(spec []models.IndexField) string {
	parts := make([]string, 0, len(spec))
	for _, f := range spec {
		parts = append(parts, fmt.Sprintf("%s: %d", f.Field, f.Direction))
	}
	return strings.Join(parts, ", ")
}

// isPrefix reports whether candidate is a leading subsequence of other, so a
// narrower index covered by an accepted compound can be dropped.
func isPrefix(candidate, other []models.IndexField) bool {
	if len(candidate) > len(other) {
		return false
	}
	for i := range candidate {
		if candidate[i] != other[i] {
			return false
		}
	}
	return true
}

func shortCollection(namespace string) string {
	if idx := strings.Index(namespace, "."); idx >= 0 {
		return namespace[idx+1:]
	}
	return namespace
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
