// Package classifier turns raw structured log lines into typed event
// records. Classification is pure and stateless per line: a line either
// yields exactly one record or is skipped with a reason, never an error.
package classifier

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/miradorstack/mirador-slowlog/internal/fingerprint"
	"github.com/miradorstack/mirador-slowlog/internal/models"
)

// Skip explains why a line produced no record.
type Skip string

const (
	// SkipNone means the line produced a record.
	SkipNone Skip = ""
	// SkipNotStructured marks lines that are not JSON documents.
	SkipNotStructured Skip = "not_structured"
	// SkipParseError marks lines that look structured but fail to parse.
	SkipParseError Skip = "parse_error"
	// SkipNoTimestamp marks structured lines lacking a timestamp.
	SkipNoTimestamp Skip = "no_timestamp"
	// SkipUnclassified marks valid lines matching no known event kind.
	SkipUnclassified Skip = "unclassified"
)

// Result holds the single typed record produced from one log line. At most
// one field is non-nil.
type Result struct {
	SlowQuery      *models.SlowQueryExecution
	Authentication *models.AuthenticationEvent
	Connection     *models.ConnectionEvent
}

// Empty reports whether the line produced no record.
func (r Result) Empty() bool {
	return r.SlowQuery == nil && r.Authentication == nil && r.Connection == nil
}

// envelope is the structured log line shape shared by all event kinds.
type envelope struct {
	T struct {
		Date string `json:"$date"`
	} `json:"t"`
	S    string          `json:"s"`
	C    string          `json:"c"`
	Ctx  string          `json:"ctx"`
	Msg  string          `json:"msg"`
	Attr json.RawMessage `json:"attr"`
}

// commandCapture preserves the command sub-document's raw bytes so the
// fingerprint sees original key order.
type commandCapture struct {
	Command     json.RawMessage `json:"command"`
	CommandBody json.RawMessage `json:"commandBody"`
}

// authResultPhrases maps message substrings from the access-audit channel to
// an authentication result.
var authResultPhrases = []struct {
	needle string
	result string
}{
	{"successfully authenticated", "success"},
	{"authentication succeeded", "success"},
	{"authentication failed", "failure"},
}

// Classifier converts raw lines to typed events.
type Classifier struct {
	logger *slog.Logger
}

// New constructs a Classifier. A nil logger falls back to slog.Default.
func New(logger *slog.Logger) *Classifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Classifier{logger: logger}
}

// Classify inspects one raw line and returns the typed record it represents,
// if any. Data-quality problems are reported through the Skip reason; the
// method never returns an error and never panics on malformed input.
func (c *Classifier) Classify(line string, prov models.Provenance) (Result, Skip) {
	stripped := strings.TrimSpace(line)
	if stripped == "" || !strings.HasPrefix(stripped, "{") {
		return Result{}, SkipNotStructured
	}

	var env envelope
	if err := json.Unmarshal([]byte(stripped), &env); err != nil {
		c.logger.Debug("skipping unparsable line",
			slog.String("file", prov.FilePath), slog.Int64("line", prov.LineNumber))
		return Result{}, SkipParseError
	}
	if env.T.Date == "" {
		c.logger.Debug("missing timestamp",
			slog.String("file", prov.FilePath), slog.Int64("line", prov.LineNumber))
		return Result{}, SkipNoTimestamp
	}

	timestamp, epoch := parseTimestamp(env.T.Date)
	msgLower := strings.ToLower(env.Msg)

	attr := map[string]any{}
	if len(env.Attr) > 0 {
		// A broken attr payload degrades to defaults, not to a dropped line.
		_ = json.Unmarshal(env.Attr, &attr)
	}

	if strings.Contains(msgLower, "slow query") {
		return Result{SlowQuery: c.slowQuery(env, attr, timestamp, epoch, prov)}, SkipNone
	}
	if strings.Contains(msgLower, "connection accepted") || strings.Contains(msgLower, "connection ended") {
		return Result{Connection: connectionEvent(env, attr, msgLower, timestamp, epoch, prov)}, SkipNone
	}
	if env.C == "ACCESS" {
		if auth := authenticationEvent(env, attr, msgLower, timestamp, epoch, prov); auth != nil {
			return Result{Authentication: auth}, SkipNone
		}
	}
	return Result{}, SkipUnclassified
}

func (c *Classifier) slowQuery(env envelope, attr map[string]any, timestamp string, epoch int64, prov models.Provenance) *models.SlowQueryExecution {
	var capture commandCapture
	if len(env.Attr) > 0 {
		_ = json.Unmarshal(env.Attr, &capture)
	}
	raw := capture.Command
	if len(raw) == 0 || string(raw) == "null" {
		raw = capture.CommandBody
	}
	queryText := stringifyCommand(raw)

	ns := asString(attr["ns"])
	database := asString(attr["db"])
	if database == "" {
		database = firstSegment(ns)
	}
	if database == "" {
		database = "unknown"
	}
	collection := asString(attr["collection"])
	if collection == "" {
		nsOrDefault := ns
		if nsOrDefault == "" {
			nsOrDefault = "unknown.unknown"
		}
		collection = lastSegment(nsOrDefault)
	}
	if collection == "" {
		collection = "unknown"
	}
	namespace := ns
	if namespace == "" {
		namespace = database + "." + collection
	}

	queryHash := asString(attr["queryHash"])
	if queryHash == "" {
		queryHash = fingerprint.Generate(database, collection, queryText)
	}

	var command map[string]any
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &command)
	}

	docsReturned := asInt64(attr["nReturned"])
	if docsReturned == 0 {
		docsReturned = asInt64(attr["docsReturned"])
	}

	planSummary := asString(attr["planSummary"])
	if planSummary == "" {
		planSummary = "None"
	}

	username := asString(attr["appName"])
	if username == "" {
		username = asString(attr["user"])
	}

	return &models.SlowQueryExecution{
		Timestamp:    timestamp,
		TSEpoch:      epoch,
		DurationMS:   asInt64(attr["durationMillis"]),
		DocsExamined: asInt64(attr["docsExamined"]),
		DocsReturned: docsReturned,
		KeysExamined: asInt64(attr["keysExamined"]),
		QueryHash:    queryHash,
		Database:     database,
		Collection:   collection,
		Namespace:    namespace,
		PlanSummary:  planSummary,
		QueryText:    queryText,
		Operation:    inferOperation(attr, command),
		ConnectionID: connectionID(attr, env.Ctx),
		Username:     username,
		FilePath:     prov.FilePath,
		FileOffset:   prov.FileOffset,
		LineNumber:   prov.LineNumber,
		LineLength:   prov.LineLength,
	}
}

func connectionEvent(env envelope, attr map[string]any, msgLower, timestamp string, epoch int64, prov models.Provenance) *models.ConnectionEvent {
	event := models.ConnectionEnded
	if strings.Contains(msgLower, "connection accepted") {
		event = models.ConnectionAccepted
	}

	var connectionCount *int64
	if raw, ok := attr["connectionCount"]; ok {
		if n, ok := toInt64(raw); ok {
			connectionCount = &n
		}
	}

	return &models.ConnectionEvent{
		Timestamp:       timestamp,
		TSEpoch:         epoch,
		Event:           event,
		ConnectionID:    connectionID(attr, env.Ctx),
		RemoteAddress:   remoteAddress(attr),
		ConnectionCount: connectionCount,
		AppName:         asString(attr["appName"]),
		Driver:          asString(attr["driver"]),
		FilePath:        prov.FilePath,
		FileOffset:      prov.FileOffset,
		LineNumber:      prov.LineNumber,
	}
}

func authenticationEvent(env envelope, attr map[string]any, msgLower, timestamp string, epoch int64, prov models.Provenance) *models.AuthenticationEvent {
	result := ""
	for _, phrase := range authResultPhrases {
		if strings.Contains(msgLower, phrase.needle) {
			result = phrase.result
			break
		}
	}
	if result == "" {
		return nil
	}

	var user, database string
	switch rawUser := attr["user"].(type) {
	case map[string]any:
		user = firstString(rawUser, "user", "userName", "username", "name")
		database = firstString(rawUser, "db", "dbName", "database")
	default:
		user = asString(rawUser)
	}
	if user == "" {
		user = firstString(attr, "principalName", "principal", "principal_user")
	}
	if database == "" {
		database = firstString(attr, "db", "authenticationDatabase", "principalDb")
	}

	mechanism := asString(attr["mechanism"])
	if mechanism == "" {
		mechanism = asString(attr["mechanismName"])
	}
	authErr := asString(attr["error"])
	if authErr == "" {
		authErr = asString(attr["err"])
	}

	return &models.AuthenticationEvent{
		Timestamp:     timestamp,
		TSEpoch:       epoch,
		User:          user,
		Database:      database,
		Mechanism:     mechanism,
		Result:        result,
		ConnectionID:  connectionID(attr, env.Ctx),
		RemoteAddress: remoteAddress(attr),
		AppName:       asString(attr["appName"]),
		Error:         authErr,
		FilePath:      prov.FilePath,
		FileOffset:    prov.FileOffset,
		LineNumber:    prov.LineNumber,
	}
}

// inferOperation resolves the executed verb. Absence of evidence always
// degrades to "unknown"; it never fails.
func inferOperation(attr map[string]any, command map[string]any) string {
	if name := asString(attr["commandName"]); name != "" {
		return name
	}

	if command != nil {
		for _, verb := range []string{"find", "aggregate", "update", "delete", "insert", "getMore"} {
			if _, ok := command[verb]; ok {
				return verb
			}
		}
		if name := asString(command["commandName"]); name != "" {
			return name
		}
		if name := asString(command["operation"]); name != "" {
			return name
		}
		if len(command) == 1 {
			for sole := range command {
				return sole
			}
		}
		if _, ok := command["updates"].([]any); ok {
			return "update"
		}
		if _, ok := command["deletes"].([]any); ok {
			return "delete"
		}
		if _, ok := command["inserts"].([]any); ok {
			return "insert"
		}
		if _, hasQ := command["q"]; hasQ {
			if _, hasU := command["u"]; hasU {
				return "update"
			}
		}
		if nested, ok := command["$query"].(map[string]any); ok {
			if name := asString(nested["commandName"]); name != "" {
				return name
			}
		}
	}

	if plan := asString(attr["planSummary"]); plan != "" {
		return plan
	}
	return "unknown"
}

// stringifyCommand renders the raw command bytes as compact JSON text,
// preserving original key order. Absent commands become "{}".
func stringifyCommand(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return "{}"
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return s
		}
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return string(raw)
	}
	return buf.String()
}

// timestampLayouts are tried in order against the t.$date value.
var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.000Z0700",
	"2006-01-02T15:04:05Z0700",
}

// parseTimestamp returns the normalized timestamp and epoch seconds. An
// unparseable value keeps the raw text with epoch 0 so the row is excluded
// from time-filtered analysis rather than dropped.
func parseTimestamp(raw string) (string, int64) {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.Format(time.RFC3339Nano), t.Unix()
		}
	}
	return raw, 0
}

// firstSegment returns the database part of a "db.collection" namespace.
func firstSegment(ns string) string {
	if idx := strings.Index(ns, "."); idx >= 0 {
		return ns[:idx]
	}
	return ns
}

// lastSegment returns the collection part of a "db.collection" namespace.
func lastSegment(ns string) string {
	if idx := strings.Index(ns, "."); idx >= 0 {
		return ns[idx+1:]
	}
	return ns
}

func connectionID(attr map[string]any, ctx string) string {
	if id := asString(attr["connectionId"]); id != "" {
		return id
	}
	if id := asString(attr["connId"]); id != "" {
		return id
	}
	return ctx
}

func remoteAddress(attr map[string]any) string {
	return firstString(attr, "remote", "client", "remoteAddr", "remote_address")
}

func firstString(m map[string]any, keys ...string) string {
	for _, key := range keys {
		if v := asString(m[key]); v != "" {
			return v
		}
	}
	return ""
}

// asString renders scalar values as strings; nil and empty stay empty.
func asString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case json.Number:
		return t.String()
	default:
		return ""
	}
}

// asInt64 coerces numeric values, defaulting to 0 for anything else.
func asInt64(v any) int64 {
	n, _ := toInt64(v)
	return n
}

func toInt64(v any) (int64, bool) {
	switch t := v.(type) {
	case float64:
		return int64(t), true
	case int64:
		return t, true
	case int:
		return int64(t), true
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return n, true
		}
		if f, err := t.Float64(); err == nil {
			return int64(f), true
		}
	case string:
		if n, err := strconv.ParseInt(strings.TrimSpace(t), 10, 64); err == nil {
			return n, true
		}
	}
	return 0, false
}
