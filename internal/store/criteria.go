package store

import (
	"fmt"
	"strings"

	"github.com/miradorstack/mirador-slowlog/internal/models"
)

// systemDatabases are excluded from analysis unless an explicit database
// filter is supplied.
var systemDatabases = map[string]struct{}{
	"admin":     {},
	"local":     {},
	"config":    {},
	"$external": {},
	"unknown":   {},
}

// Plan filter tokens with prefix (scan kinds) or bucket (OTHER) semantics.
const (
	PlanCollscan = "COLLSCAN"
	PlanIxscan   = "IXSCAN"
	PlanOther    = "OTHER"
)

// Criteria is a validated filter for slow query rows. The zero value matches
// every row carrying a positive epoch timestamp.
type Criteria struct {
	// ThresholdMS keeps rows with duration_ms >= ThresholdMS when positive.
	ThresholdMS int64
	// Database filters by exact database name. "" or "all" means unfiltered.
	Database string
	// Namespace filters by exact namespace. "" or "all" means unfiltered.
	Namespace string
	// PlanSummary filters by plan: COLLSCAN/IXSCAN match as case-insensitive
	// prefixes, OTHER matches non-empty plans carrying neither scan prefix,
	// anything else matches exactly (case-insensitive).
	PlanSummary string
	// StartTS/EndTS bound ts_epoch inclusively when positive.
	StartTS int64
	EndTS   int64
	// ExcludeSystem drops known system databases. Ignored when Database is set.
	ExcludeSystem bool
}

// Validate reports contract errors such as an inverted time range.
func (c Criteria) Validate() error {
	if c.ThresholdMS < 0 {
		return fmt.Errorf("threshold_ms must not be negative, got %d", c.ThresholdMS)
	}
	if c.StartTS > 0 && c.EndTS > 0 && c.StartTS > c.EndTS {
		return fmt.Errorf("invalid time range: start %d after end %d", c.StartTS, c.EndTS)
	}
	return nil
}

// normalized trims filter values and collapses the "all" wildcard.
func (c Criteria) normalized() Criteria {
	c.Database = normalizeToken(c.Database)
	c.Namespace = normalizeToken(c.Namespace)
	c.PlanSummary = normalizeToken(c.PlanSummary)
	return c
}

func normalizeToken(v string) string {
	v = strings.TrimSpace(v)
	if strings.EqualFold(v, "all") {
		return ""
	}
	return v
}

// Matches reports whether the row passes every filter. Rows without a
// positive epoch timestamp never match.
func (c Criteria) Matches(row models.SlowQueryExecution) bool {
	c = c.normalized()

	if row.TSEpoch <= 0 {
		return false
	}
	if c.ThresholdMS > 0 && row.DurationMS < c.ThresholdMS {
		return false
	}
	if c.Database != "" {
		if row.Database != c.Database {
			return false
		}
	} else if c.ExcludeSystem {
		if _, system := systemDatabases[row.Database]; system {
			return false
		}
	}
	if c.Namespace != "" && row.Namespace != c.Namespace {
		return false
	}
	if c.PlanSummary != "" && !planMatches(c.PlanSummary, row.PlanSummary) {
		return false
	}
	if c.StartTS > 0 && row.TSEpoch < c.StartTS {
		return false
	}
	if c.EndTS > 0 && row.TSEpoch > c.EndTS {
		return false
	}
	return true
}

func planMatches(wanted, actual string) bool {
	wantedUpper := strings.ToUpper(wanted)
	actualUpper := strings.ToUpper(actual)
	switch wantedUpper {
	case PlanOther:
		return actualUpper != "" &&
			!strings.HasPrefix(actualUpper, PlanCollscan) &&
			!strings.HasPrefix(actualUpper, PlanIxscan)
	case PlanCollscan, PlanIxscan:
		return strings.HasPrefix(actualUpper, wantedUpper)
	default:
		return actualUpper == wantedUpper
	}
}

// AuthCriteria filters authentication events.
type AuthCriteria struct {
	User          string
	Database      string
	Mechanism     string
	Result        string
	RemoteAddress string
	StartTS       int64
	EndTS         int64
}

// Matches reports whether the event passes every set filter.
func (c AuthCriteria) Matches(ev models.AuthenticationEvent) bool {
	if c.User != "" && ev.User != c.User {
		return false
	}
	if c.Database != "" && ev.Database != c.Database {
		return false
	}
	if c.Mechanism != "" && ev.Mechanism != c.Mechanism {
		return false
	}
	if c.Result != "" && ev.Result != c.Result {
		return false
	}
	if c.RemoteAddress != "" && ev.RemoteAddress != c.RemoteAddress {
		return false
	}
	if c.StartTS > 0 && ev.TSEpoch < c.StartTS {
		return false
	}
	if c.EndTS > 0 && ev.TSEpoch > c.EndTS {
		return false
	}
	return true
}

// ConnCriteria filters connection lifecycle events.
type ConnCriteria struct {
	AppName string
	StartTS int64
	EndTS   int64
}

// Matches reports whether the event passes every set filter.
func (c ConnCriteria) Matches(ev models.ConnectionEvent) bool {
	if c.AppName != "" && ev.AppName != c.AppName {
		return false
	}
	if c.StartTS > 0 && ev.TSEpoch < c.StartTS {
		return false
	}
	if c.EndTS > 0 && ev.TSEpoch > c.EndTS {
		return false
	}
	return true
}
