// Package patterns aggregates slow query executions into statistical
// patterns. All arithmetic runs over an in-memory snapshot supplied by the
// store; the analyzer itself is stateless and safe for concurrent use.
package patterns

import (
	"log/slog"
	"math"
	"sort"
	"strings"

	"github.com/miradorstack/mirador-slowlog/internal/models"
	"github.com/miradorstack/mirador-slowlog/internal/store"
)

// Grouping selects the aggregation key.
type Grouping string

const (
	// GroupPatternKey groups by the full (namespace, plan_summary,
	// query_hash, database, collection) tuple.
	GroupPatternKey Grouping = "pattern_key"
	// GroupNamespace groups by namespace alone.
	GroupNamespace Grouping = "namespace"
	// GroupQueryHash groups by query fingerprint alone.
	GroupQueryHash Grouping = "query_hash"
)

// OrderBy names a sortable pattern column.
type OrderBy string

const (
	OrderExecutionCount  OrderBy = "execution_count"
	OrderAvgDurationMS   OrderBy = "avg_duration_ms"
	OrderMaxDurationMS   OrderBy = "max_duration_ms"
	OrderTotalDurationMS OrderBy = "total_duration_ms"
)

// Options controls grouping, ordering, and pagination of one analysis.
type Options struct {
	Grouping  Grouping
	OrderBy   OrderBy
	Ascending bool
	Page      int
	PerPage   int
}

func (o Options) normalized() Options {
	if o.Grouping != GroupNamespace && o.Grouping != GroupQueryHash {
		o.Grouping = GroupPatternKey
	}
	switch o.OrderBy {
	case OrderExecutionCount, OrderAvgDurationMS, OrderMaxDurationMS, OrderTotalDurationMS:
	default:
		o.OrderBy = OrderTotalDurationMS
	}
	if o.Page < 1 {
		o.Page = 1
	}
	if o.PerPage < 1 {
		o.PerPage = 100
	}
	return o
}

// RowSource supplies filtered execution snapshots.
type RowSource interface {
	SlowQueries(store.Criteria) []models.SlowQueryExecution
	HasData() bool
}

// Analyzer computes QueryPattern aggregates.
type Analyzer struct {
	source RowSource
	logger *slog.Logger
}

// NewAnalyzer constructs an Analyzer.
func NewAnalyzer(logger *slog.Logger, source RowSource) *Analyzer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Analyzer{source: source, logger: logger}
}

// Analyze groups the filtered rows and returns one page of patterns plus
// totals computed over the full filtered set. An empty store yields an empty
// report rather than an error.
func (a *Analyzer) Analyze(criteria store.Criteria, opts Options) models.PatternReport {
	opts = opts.normalized()

	report := models.PatternReport{Items: []models.QueryPattern{}}
	if !a.source.HasData() {
		return report
	}

	rows := a.source.SlowQueries(criteria)
	if len(rows) == 0 {
		return report
	}

	groups := buildGroups(rows, opts.Grouping)

	var totalDuration float64
	for _, row := range rows {
		totalDuration += float64(row.DurationMS)
	}
	report.TotalGroups = len(groups)
	report.TotalExecutions = len(rows)
	report.AvgDurationMS = totalDuration / float64(len(rows))
	for _, g := range groups {
		if g.optimizationPotential() == models.PotentialHigh {
			report.HighPriorityCount++
		}
	}

	orderGroups(groups, opts)

	offset := (opts.Page - 1) * opts.PerPage
	if offset >= len(groups) {
		return report
	}
	end := offset + opts.PerPage
	if end > len(groups) {
		end = len(groups)
	}

	var breakdown map[string][]models.PlanCount
	if opts.Grouping == GroupPatternKey {
		breakdown = planBreakdown(rows)
	}

	for _, g := range groups[offset:end] {
		pattern := g.pattern(opts.Grouping)
		if breakdown != nil {
			pattern.PlanBreakdown = breakdown[breakdownKey(pattern.Namespace, pattern.Database, pattern.Collection, pattern.QueryHash)]
		}
		report.Items = append(report.Items, pattern)
	}
	return report
}

// PatternTotals returns population counts per pattern identity
// (namespace::plan::hash), used to weight sampled suggestion inputs.
func (a *Analyzer) PatternTotals(criteria store.Criteria) map[string]models.PatternTotal {
	totals := make(map[string]models.PatternTotal)
	if !a.source.HasData() {
		return totals
	}
	rows := a.source.SlowQueries(criteria)
	for _, g := range buildGroups(rows, GroupPatternKey) {
		totals[g.patternKey(GroupPatternKey)] = models.PatternTotal{
			TotalCount:  g.count,
			AvgDuration: g.avgDuration(),
		}
	}
	return totals
}

// Executions returns one page of raw execution records ordered by duration
// descending, then recency.
func (a *Analyzer) Executions(criteria store.Criteria, page, perPage int) models.ExecutionPage {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 100
	}
	result := models.ExecutionPage{Items: []models.SlowQueryExecution{}, Page: page, PerPage: perPage}
	if !a.source.HasData() {
		return result
	}

	rows := a.source.SlowQueries(criteria)
	for i := range rows {
		rows[i] = normalizeRow(rows[i])
	}
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].DurationMS != rows[j].DurationMS {
			return rows[i].DurationMS > rows[j].DurationMS
		}
		return rows[i].TSEpoch > rows[j].TSEpoch
	})

	result.Total = len(rows)
	offset := (page - 1) * perPage
	if offset >= len(rows) {
		return result
	}
	end := offset + perPage
	if end > len(rows) {
		end = len(rows)
	}
	result.Items = append(result.Items, rows[offset:end]...)
	return result
}

// normalizeRow substitutes sentinels for blank dimensions before grouping.
func normalizeRow(row models.SlowQueryExecution) models.SlowQueryExecution {
	if row.QueryHash == "" {
		row.QueryHash = "unknown"
	}
	if row.Database == "" {
		row.Database = "unknown"
	}
	if row.Collection == "" {
		row.Collection = "unknown"
	}
	if row.Namespace == "" {
		row.Namespace = "unknown.unknown"
	}
	if row.PlanSummary == "" {
		row.PlanSummary = "None"
	}
	if row.Operation == "" {
		row.Operation = "unknown"
	}
	return row
}

// dimension tracks a per-group value that collapses to a sentinel when the
// group spans more than one distinct underlying value.
type dimension struct {
	value string
	seen  bool
	mixed bool
}

func (d *dimension) observe(v string) {
	if !d.seen {
		d.value = v
		d.seen = true
		return
	}
	if d.value != v {
		d.mixed = true
	}
}

func (d *dimension) collapsed(sentinel string) string {
	if d.mixed {
		return sentinel
	}
	return d.value
}

type group struct {
	count     int64
	durations []float64
	sumDur    float64
	minDur    float64
	maxDur    float64

	sumDocs     int64
	sumReturned int64
	sumKeys     int64

	firstEpoch int64
	firstSeen  string
	lastEpoch  int64
	lastSeen   string

	slowestDur   int64
	slowestTS    string
	slowestQuery string

	namespace  dimension
	database   dimension
	collection dimension
	planSum    dimension
	queryHash  dimension
	operation  dimension
}

func (g *group) observe(row models.SlowQueryExecution) {
	dur := float64(row.DurationMS)
	if g.count == 0 {
		g.minDur = dur
		g.maxDur = dur
		g.firstEpoch = row.TSEpoch
		g.firstSeen = row.Timestamp
		g.lastEpoch = row.TSEpoch
		g.lastSeen = row.Timestamp
		g.slowestDur = row.DurationMS
		g.slowestTS = row.Timestamp
		g.slowestQuery = row.QueryText
	} else {
		if dur < g.minDur {
			g.minDur = dur
		}
		if dur > g.maxDur {
			g.maxDur = dur
		}
		// Strictly-earlier/later comparisons keep the first encounter on
		// ties, which makes repeated reads deterministic.
		if row.TSEpoch < g.firstEpoch {
			g.firstEpoch = row.TSEpoch
			g.firstSeen = row.Timestamp
		}
		if row.TSEpoch > g.lastEpoch {
			g.lastEpoch = row.TSEpoch
			g.lastSeen = row.Timestamp
		}
		if row.DurationMS > g.slowestDur {
			g.slowestDur = row.DurationMS
			g.slowestTS = row.Timestamp
			g.slowestQuery = row.QueryText
		}
	}

	g.count++
	g.durations = append(g.durations, dur)
	g.sumDur += dur
	g.sumDocs += row.DocsExamined
	g.sumReturned += row.DocsReturned
	g.sumKeys += row.KeysExamined

	g.namespace.observe(row.Namespace)
	g.database.observe(row.Database)
	g.collection.observe(row.Collection)
	g.planSum.observe(row.PlanSummary)
	g.queryHash.observe(row.QueryHash)
	g.operation.observe(row.Operation)
}

func (g *group) avgDuration() float64 {
	if g.count == 0 {
		return 0
	}
	return g.sumDur / float64(g.count)
}

func (g *group) medianDuration() float64 {
	n := len(g.durations)
	if n == 0 {
		return 0
	}
	sorted := append([]float64(nil), g.durations...)
	sort.Float64s(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

func (g *group) selectivityPct() float64 {
	if g.sumDocs <= 0 {
		return 0
	}
	return float64(g.sumReturned) * 100 / float64(g.sumDocs)
}

func (g *group) indexEfficiencyPct() float64 {
	if g.sumDocs <= 0 {
		return 0
	}
	return float64(g.sumKeys) * 100 / float64(g.sumDocs)
}

func (g *group) optimizationPotential() models.OptimizationPotential {
	avg := g.avgDuration()
	selectivity := g.selectivityPct()
	switch {
	case avg > 1000 || selectivity < 10:
		return models.PotentialHigh
	case avg > 100 || selectivity < 50:
		return models.PotentialMedium
	default:
		return models.PotentialLow
	}
}

func (g *group) complexityScore() float64 {
	return math.Min(100, g.avgDuration()/10+(100-g.selectivityPct())+float64(g.count)/10)
}

// patternKey renders the group's public key for the chosen grouping.
func (g *group) patternKey(grouping Grouping) string {
	switch grouping {
	case GroupNamespace:
		return g.namespace.collapsed(models.Mixed)
	case GroupQueryHash:
		return g.queryHash.collapsed(models.Mixed)
	default:
		return strings.Join([]string{
			g.namespace.collapsed(models.Mixed),
			g.planSum.collapsed(models.Mixed),
			g.queryHash.collapsed(models.Mixed),
		}, "::")
	}
}

func (g *group) pattern(grouping Grouping) models.QueryPattern {
	key := g.patternKey(grouping)
	return models.QueryPattern{
		GroupingKey:           key,
		PatternKey:            key,
		Namespace:             g.namespace.collapsed(models.Mixed),
		Database:              g.database.collapsed(models.Mixed),
		Collection:            g.collection.collapsed(models.Mixed),
		PlanSummary:           g.planSum.collapsed(models.Mixed),
		QueryHash:             g.queryHash.collapsed(models.Mixed),
		Operation:             g.operation.collapsed(models.MixedOperation),
		ExecutionCount:        g.count,
		MinDurationMS:         g.minDur,
		AvgDurationMS:         g.avgDuration(),
		MaxDurationMS:         g.maxDur,
		MedianDurationMS:      g.medianDuration(),
		TotalDurationMS:       g.sumDur,
		TotalDocsExamined:     g.sumDocs,
		TotalDocsReturned:     g.sumReturned,
		TotalKeysExamined:     g.sumKeys,
		AvgDocsExamined:       float64(g.sumDocs) / float64(g.count),
		AvgDocsReturned:       float64(g.sumReturned) / float64(g.count),
		AvgKeysExamined:       float64(g.sumKeys) / float64(g.count),
		SelectivityPct:        g.selectivityPct(),
		IndexEfficiencyPct:    g.indexEfficiencyPct(),
		OptimizationPotential: g.optimizationPotential(),
		ComplexityScore:       g.complexityScore(),
		FirstSeen:             g.firstSeen,
		LastSeen:              g.lastSeen,
		SlowestTimestamp:      g.slowestTS,
		SlowestQuery:          g.slowestQuery,
		SampleQuery:           g.slowestQuery,
	}
}

const keySep = "\x1f"

func buildGroups(rows []models.SlowQueryExecution, grouping Grouping) []*group {
	index := make(map[string]*group)
	var ordered []*group

	for _, raw := range rows {
		row := normalizeRow(raw)
		var key string
		switch grouping {
		case GroupNamespace:
			key = row.Namespace
		case GroupQueryHash:
			key = row.QueryHash
		default:
			key = strings.Join([]string{row.Namespace, row.PlanSummary, row.QueryHash, row.Database, row.Collection}, keySep)
		}
		g, ok := index[key]
		if !ok {
			g = &group{}
			index[key] = g
			ordered = append(ordered, g)
		}
		g.observe(row)
	}
	return ordered
}

func orderGroups(groups []*group, opts Options) {
	value := func(g *group) float64 {
		switch opts.OrderBy {
		case OrderExecutionCount:
			return float64(g.count)
		case OrderAvgDurationMS:
			return g.avgDuration()
		case OrderMaxDurationMS:
			return g.maxDur
		default:
			return g.sumDur
		}
	}
	sort.SliceStable(groups, func(i, j int) bool {
		vi, vj := value(groups[i]), value(groups[j])
		if vi != vj {
			if opts.Ascending {
				return vi < vj
			}
			return vi > vj
		}
		// Secondary tie-break is always total duration, descending.
		return groups[i].sumDur > groups[j].sumDur
	})
}

func breakdownKey(namespace, database, collection, queryHash string) string {
	return strings.Join([]string{namespace, database, collection, queryHash}, keySep)
}

// planBreakdown computes the distribution of plan summaries per
// (namespace, database, collection, query_hash) tuple, count-descending.
func planBreakdown(rows []models.SlowQueryExecution) map[string][]models.PlanCount {
	counts := make(map[string]map[string]int64)
	planOrder := make(map[string][]string)

	for _, raw := range rows {
		row := normalizeRow(raw)
		key := breakdownKey(row.Namespace, row.Database, row.Collection, row.QueryHash)
		byPlan, ok := counts[key]
		if !ok {
			byPlan = make(map[string]int64)
			counts[key] = byPlan
		}
		if _, seen := byPlan[row.PlanSummary]; !seen {
			planOrder[key] = append(planOrder[key], row.PlanSummary)
		}
		byPlan[row.PlanSummary]++
	}

	out := make(map[string][]models.PlanCount, len(counts))
	for key, byPlan := range counts {
		entries := make([]models.PlanCount, 0, len(byPlan))
		for _, plan := range planOrder[key] {
			entries = append(entries, models.PlanCount{PlanSummary: plan, Count: byPlan[plan]})
		}
		sort.SliceStable(entries, func(i, j int) bool { return entries[i].Count > entries[j].Count })
		out[key] = entries
	}
	return out
}
