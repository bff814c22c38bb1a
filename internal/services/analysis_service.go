package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/miradorstack/mirador-slowlog/internal/ingest"
	"github.com/miradorstack/mirador-slowlog/internal/metrics"
	"github.com/miradorstack/mirador-slowlog/internal/models"
	"github.com/miradorstack/mirador-slowlog/internal/patterns"
	"github.com/miradorstack/mirador-slowlog/internal/store"
	"github.com/miradorstack/mirador-slowlog/internal/suggest"
	"github.com/miradorstack/mirador-slowlog/internal/utils"
)

// AnalysisService is the facade the transport layer talks to. It owns the
// store, the ingest pipeline, and both analysis engines.
type AnalysisService struct {
	logger    *slog.Logger
	store     *store.Store
	pipeline  *ingest.Pipeline
	analyzer  *patterns.Analyzer
	suggester *suggest.Engine
	latencies *utils.LatencyTracker
}

// NewAnalysisService wires the service around one in-memory store.
func NewAnalysisService(logger *slog.Logger, st *store.Store, batchSize int, suggestOpts suggest.Options) *AnalysisService {
	if logger == nil {
		logger = slog.Default()
	}
	return &AnalysisService{
		logger:    logger,
		store:     st,
		pipeline:  ingest.NewPipeline(logger, st, batchSize),
		analyzer:  patterns.NewAnalyzer(logger, st),
		suggester: suggest.NewEngine(logger, st, suggestOpts),
		latencies: utils.NewLatencyTracker(1024),
	}
}

// Ingest runs the pipeline over the given log files.
func (s *AnalysisService) Ingest(ctx context.Context, paths []string) (ingest.Summary, error) {
	summary, err := s.pipeline.Run(ctx, paths)
	if err != nil {
		s.logger.Error("ingest failed", slog.Any("error", err))
		return summary, utils.NewAppError("ingest", "log ingestion failed", err)
	}
	return summary, nil
}

// Ingesting reports whether an ingest run is currently active.
func (s *AnalysisService) Ingesting() bool {
	return s.store.Ingesting()
}

// Patterns aggregates the filtered executions into query patterns.
func (s *AnalysisService) Patterns(criteria store.Criteria, opts patterns.Options) (models.PatternReport, error) {
	if err := criteria.Validate(); err != nil {
		metrics.ObserveAnalysis("patterns", 0, metrics.OutcomeError)
		return models.PatternReport{}, utils.NewInvalidError("patterns", "invalid filter", err)
	}
	start := time.Now()
	report := s.analyzer.Analyze(criteria, opts)
	s.observe("patterns", time.Since(start))
	return report, nil
}

// Suggestions generates index recommendations over the filtered executions.
func (s *AnalysisService) Suggestions(criteria store.Criteria, limitPerCollection int) (*models.SuggestionReport, error) {
	if err := criteria.Validate(); err != nil {
		metrics.ObserveAnalysis("suggestions", 0, metrics.OutcomeError)
		return nil, utils.NewInvalidError("suggestions", "invalid filter", err)
	}
	start := time.Now()
	report := s.suggester.SuggestFromStore(criteria, limitPerCollection)
	s.observe("suggestions", time.Since(start))
	return report, nil
}

// Executions returns one page of raw execution records, slowest first.
func (s *AnalysisService) Executions(criteria store.Criteria, page, perPage int) (models.ExecutionPage, error) {
	if err := criteria.Validate(); err != nil {
		metrics.ObserveAnalysis("executions", 0, metrics.OutcomeError)
		return models.ExecutionPage{}, utils.NewInvalidError("executions", "invalid filter", err)
	}
	start := time.Now()
	result := s.analyzer.Executions(criteria, page, perPage)
	s.observe("executions", time.Since(start))
	return result, nil
}

// Authentications returns the filtered authentication events in ingest order.
func (s *AnalysisService) Authentications(criteria store.AuthCriteria) []models.AuthenticationEvent {
	start := time.Now()
	events := s.store.Authentications(criteria)
	s.observe("authentications", time.Since(start))
	return events
}

// Connections returns the filtered connection events in ingest order.
func (s *AnalysisService) Connections(criteria store.ConnCriteria) []models.ConnectionEvent {
	start := time.Now()
	events := s.store.Connections(criteria)
	s.observe("connections", time.Since(start))
	return events
}

// LatencyP95 returns the current p95 analysis latency.
func (s *AnalysisService) LatencyP95() time.Duration {
	return s.latencies.P95()
}

func (s *AnalysisService) observe(kind string, duration time.Duration) {
	s.latencies.Observe(duration)
	metrics.ObserveAnalysis(kind, duration, metrics.OutcomeSuccess)
	if count := s.latencies.Count(); count >= 20 && count%20 == 0 {
		s.logger.Info("analysis latency", slog.Duration("p95", s.latencies.P95()), slog.Int("samples", count))
	}
}
