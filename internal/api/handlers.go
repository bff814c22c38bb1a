package api

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/miradorstack/mirador-slowlog/internal/config"
	"github.com/miradorstack/mirador-slowlog/internal/patterns"
	"github.com/miradorstack/mirador-slowlog/internal/services"
	"github.com/miradorstack/mirador-slowlog/internal/store"
	"github.com/miradorstack/mirador-slowlog/internal/utils"
)

type handlers struct {
	logger   *slog.Logger
	defaults config.AnalysisConfig
	service  *services.AnalysisService
}

func newHandlers(logger *slog.Logger, defaults config.AnalysisConfig, service *services.AnalysisService) *handlers {
	return &handlers{logger: logger, defaults: defaults, service: service}
}

// fail maps invalid-input errors to 400 and everything else to 500.
func (h *handlers) fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	if utils.IsInvalid(err) {
		status = http.StatusBadRequest
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func (h *handlers) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "ingesting": h.service.Ingesting()})
}

type ingestRequest struct {
	Paths []string `json:"paths"`
}

func (h *handlers) ingest(c *gin.Context) {
	var req ingestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}
	if len(req.Paths) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "paths is required"})
		return
	}
	if h.service.Ingesting() {
		c.JSON(http.StatusConflict, gin.H{"error": "ingest already in progress"})
		return
	}
	summary, err := h.service.Ingest(c.Request.Context(), req.Paths)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "summary": summary})
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (h *handlers) patterns(c *gin.Context) {
	criteria, ok := h.criteria(c)
	if !ok {
		return
	}
	opts := patterns.Options{
		Grouping:  patterns.Grouping(c.Query("group_by")),
		OrderBy:   patterns.OrderBy(c.Query("order_by")),
		Ascending: c.Query("order_dir") == "asc",
		Page:      intQuery(c, "page", 1),
		PerPage:   intQuery(c, "per_page", 100),
	}
	report, err := h.service.Patterns(criteria, opts)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (h *handlers) suggestions(c *gin.Context) {
	criteria, ok := h.criteria(c)
	if !ok {
		return
	}
	limit := intQuery(c, "limit_per_collection", h.defaults.LimitPerCollection)
	report, err := h.service.Suggestions(criteria, limit)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (h *handlers) executions(c *gin.Context) {
	criteria, ok := h.criteria(c)
	if !ok {
		return
	}
	page, err := h.service.Executions(criteria, intQuery(c, "page", 1), intQuery(c, "per_page", 100))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (h *handlers) authentications(c *gin.Context) {
	startTS, endTS, ok := h.timeRange(c)
	if !ok {
		return
	}
	events := h.service.Authentications(store.AuthCriteria{
		User:          c.Query("user"),
		Database:      c.Query("database"),
		Mechanism:     c.Query("mechanism"),
		Result:        c.Query("result"),
		RemoteAddress: c.Query("remote_address"),
		StartTS:       startTS,
		EndTS:         endTS,
	})
	c.JSON(http.StatusOK, gin.H{"items": events, "total": len(events)})
}

func (h *handlers) connections(c *gin.Context) {
	startTS, endTS, ok := h.timeRange(c)
	if !ok {
		return
	}
	events := h.service.Connections(store.ConnCriteria{
		AppName: c.Query("app_name"),
		StartTS: startTS,
		EndTS:   endTS,
	})
	c.JSON(http.StatusOK, gin.H{"items": events, "total": len(events)})
}

// criteria binds the shared slow-query filter parameters. Thresholds and the
// system-database exclusion fall back to configured defaults.
func (h *handlers) criteria(c *gin.Context) (store.Criteria, bool) {
	criteria := store.Criteria{
		ThresholdMS:   h.defaults.SlowQueryThresholdMS,
		Database:      c.Query("database"),
		Namespace:     c.Query("namespace"),
		PlanSummary:   c.Query("plan_summary"),
		ExcludeSystem: h.defaults.ExcludeSystemDatabases,
	}
	if raw := c.Query("threshold_ms"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid threshold_ms"})
			return store.Criteria{}, false
		}
		criteria.ThresholdMS = n
	}
	if raw := c.Query("exclude_system"); raw != "" {
		criteria.ExcludeSystem = raw == "true" || raw == "1"
	}
	startTS, endTS, ok := h.timeRange(c)
	if !ok {
		return store.Criteria{}, false
	}
	criteria.StartTS = startTS
	criteria.EndTS = endTS
	return criteria, true
}

// timeRange reads start/end bounds, accepting epoch seconds (start_ts/end_ts)
// or RFC3339 timestamps (start/end).
func (h *handlers) timeRange(c *gin.Context) (int64, int64, bool) {
	var startTS, endTS int64
	for _, bound := range []struct {
		epochKey string
		timeKey  string
		dst      *int64
	}{
		{"start_ts", "start", &startTS},
		{"end_ts", "end", &endTS},
	} {
		raw := c.Query(bound.epochKey)
		if raw == "" {
			raw = c.Query(bound.timeKey)
		}
		if raw == "" {
			continue
		}
		epoch, err := utils.ParseEpochOrRFC3339(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + bound.epochKey + ": " + err.Error()})
			return 0, 0, false
		}
		*bound.dst = epoch
	}
	return startTS, endTS, true
}

func intQuery(c *gin.Context, key string, fallback int) int {
	raw := c.Query(key)
	if raw == "" {
		return fallback
	}
	if n, err := strconv.Atoi(raw); err == nil && n > 0 {
		return n
	}
	return fallback
}
