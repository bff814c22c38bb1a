package classifier

import (
	"testing"

	"github.com/miradorstack/mirador-slowlog/internal/models"
)

func classify(t *testing.T, line string) (Result, Skip) {
	t.Helper()
	c := New(nil)
	return c.Classify(line, models.Provenance{FilePath: "/var/log/mongodb/mongod.log", FileOffset: 128, LineNumber: 3, LineLength: len(line)})
}

func TestClassifySlowQuery(t *testing.T) {
	line := `{"t":{"$date":"2026-05-01T10:15:30.123Z"},"s":"I","c":"COMMAND","ctx":"conn42","msg":"Slow query","attr":{"type":"command","ns":"shop.orders","command":{"find":"orders","filter":{"status":"active"},"sort":{"date":-1}},"planSummary":"COLLSCAN","durationMillis":1500,"docsExamined":50000,"nReturned":10,"keysExamined":0,"queryHash":"ABCD1234","appName":"checkout"}}`

	result, skip := classify(t, line)
	if skip != SkipNone {
		t.Fatalf("unexpected skip: %s", skip)
	}
	sq := result.SlowQuery
	if sq == nil {
		t.Fatalf("expected a slow query record")
	}
	if sq.Database != "shop" || sq.Collection != "orders" || sq.Namespace != "shop.orders" {
		t.Fatalf("bad namespace fields: %s / %s / %s", sq.Database, sq.Collection, sq.Namespace)
	}
	if sq.DurationMS != 1500 || sq.DocsExamined != 50000 || sq.DocsReturned != 10 || sq.KeysExamined != 0 {
		t.Fatalf("bad numeric fields: %+v", sq)
	}
	if sq.QueryHash != "ABCD1234" {
		t.Fatalf("expected explicit queryHash, got %s", sq.QueryHash)
	}
	if sq.PlanSummary != "COLLSCAN" {
		t.Fatalf("bad plan: %s", sq.PlanSummary)
	}
	if sq.Operation != "find" {
		t.Fatalf("expected find operation, got %s", sq.Operation)
	}
	if sq.Username != "checkout" {
		t.Fatalf("expected appName carried as username, got %q", sq.Username)
	}
	if sq.ConnectionID != "conn42" {
		t.Fatalf("expected ctx fallback for connection id, got %q", sq.ConnectionID)
	}
	if sq.TSEpoch == 0 {
		t.Fatalf("expected parsed epoch")
	}
	if sq.FilePath != "/var/log/mongodb/mongod.log" || sq.LineNumber != 3 || sq.FileOffset != 128 || sq.LineLength != len(line) {
		t.Fatalf("provenance not carried: %+v", sq)
	}
	// The captured command text must keep the writer's key order.
	if want := `{"find":"orders","filter":{"status":"active"},"sort":{"date":-1}}`; sq.QueryText != want {
		t.Fatalf("query text %q, want %q", sq.QueryText, want)
	}
}

func TestClassifySlowQueryDefaults(t *testing.T) {
	line := `{"t":{"$date":"2026-05-01T10:15:30Z"},"s":"I","c":"COMMAND","ctx":"conn7","msg":"Slow query","attr":{"durationMillis":250}}`
	result, skip := classify(t, line)
	if skip != SkipNone || result.SlowQuery == nil {
		t.Fatalf("expected slow query, skip=%s", skip)
	}
	sq := result.SlowQuery
	if sq.Database != "unknown" || sq.Collection != "unknown" || sq.Namespace != "unknown.unknown" {
		t.Fatalf("missing namespace must default: %+v", sq)
	}
	if sq.PlanSummary != "None" {
		t.Fatalf("missing plan must default to None, got %q", sq.PlanSummary)
	}
	if sq.QueryText != "{}" {
		t.Fatalf("missing command must serialize as {}, got %q", sq.QueryText)
	}
	if sq.QueryHash == "" {
		t.Fatalf("missing queryHash must fall back to the fingerprint")
	}
}

func TestClassifyConnectionEvents(t *testing.T) {
	accepted := `{"t":{"$date":"2026-05-01T10:00:00Z"},"s":"I","c":"NETWORK","ctx":"listener","msg":"Connection accepted","attr":{"remote":"10.0.0.5:53211","connectionId":901,"connectionCount":17}}`
	result, skip := classify(t, accepted)
	if skip != SkipNone || result.Connection == nil {
		t.Fatalf("expected connection event, skip=%s", skip)
	}
	conn := result.Connection
	if conn.Event != models.ConnectionAccepted {
		t.Fatalf("expected accepted event, got %s", conn.Event)
	}
	if conn.RemoteAddress != "10.0.0.5:53211" {
		t.Fatalf("bad remote: %s", conn.RemoteAddress)
	}
	if conn.ConnectionID != "901" {
		t.Fatalf("bad connection id: %s", conn.ConnectionID)
	}
	if conn.ConnectionCount == nil || *conn.ConnectionCount != 17 {
		t.Fatalf("bad connection count: %v", conn.ConnectionCount)
	}

	ended := `{"t":{"$date":"2026-05-01T10:05:00Z"},"s":"I","c":"NETWORK","ctx":"conn901","msg":"Connection ended","attr":{"remote":"10.0.0.5:53211"}}`
	result, skip = classify(t, ended)
	if skip != SkipNone || result.Connection == nil || result.Connection.Event != models.ConnectionEnded {
		t.Fatalf("expected ended event, got %+v skip=%s", result.Connection, skip)
	}
}

func TestClassifyAuthentication(t *testing.T) {
	success := `{"t":{"$date":"2026-05-01T09:00:00Z"},"s":"I","c":"ACCESS","ctx":"conn12","msg":"Successfully authenticated","attr":{"user":{"user":"svc-reporting","db":"admin"},"mechanism":"SCRAM-SHA-256","remote":"10.0.0.9:40100"}}`
	result, skip := classify(t, success)
	if skip != SkipNone || result.Authentication == nil {
		t.Fatalf("expected authentication event, skip=%s", skip)
	}
	auth := result.Authentication
	if auth.User != "svc-reporting" || auth.Database != "admin" {
		t.Fatalf("bad principal: %s@%s", auth.User, auth.Database)
	}
	if auth.Result != "success" || auth.Mechanism != "SCRAM-SHA-256" {
		t.Fatalf("bad result fields: %+v", auth)
	}

	failure := `{"t":{"$date":"2026-05-01T09:01:00Z"},"s":"I","c":"ACCESS","ctx":"conn13","msg":"Authentication failed","attr":{"principalName":"intruder","db":"admin","error":"AuthenticationFailed"}}`
	result, skip = classify(t, failure)
	if skip != SkipNone || result.Authentication == nil {
		t.Fatalf("expected failed authentication, skip=%s", skip)
	}
	auth = result.Authentication
	if auth.Result != "failure" || auth.User != "intruder" || auth.Error != "AuthenticationFailed" {
		t.Fatalf("bad failure fields: %+v", auth)
	}
}

func TestClassifySkips(t *testing.T) {
	cases := []struct {
		name string
		line string
		want Skip
	}{
		{"blank", "   ", SkipNotStructured},
		{"plaintext", "2026-05-01 mongod starting", SkipNotStructured},
		{"truncated json", `{"t":{"$date":"2026-05-01T09:00:00Z"},"msg":"Slow qu`, SkipParseError},
		{"no timestamp", `{"s":"I","c":"COMMAND","msg":"Slow query","attr":{}}`, SkipNoTimestamp},
		{"unclassified", `{"t":{"$date":"2026-05-01T09:00:00Z"},"s":"I","c":"STORAGE","msg":"WiredTiger checkpoint","attr":{}}`, SkipUnclassified},
	}
	for _, tc := range cases {
		result, skip := classify(t, tc.line)
		if skip != tc.want {
			t.Fatalf("%s: skip = %q, want %q", tc.name, skip, tc.want)
		}
		if !result.Empty() {
			t.Fatalf("%s: skipped line must not produce a record", tc.name)
		}
	}
}

func TestInferOperation(t *testing.T) {
	cases := []struct {
		name    string
		attr    map[string]any
		command map[string]any
		want    string
	}{
		{"command name wins", map[string]any{"commandName": "count"}, map[string]any{"find": "x"}, "count"},
		{"known verb", nil, map[string]any{"aggregate": "orders", "pipeline": []any{}}, "aggregate"},
		{"embedded command name", nil, map[string]any{"commandName": "distinct", "extra": 1}, "distinct"},
		{"single key", nil, map[string]any{"collStats": "orders"}, "collStats"},
		{"updates array", nil, map[string]any{"updates": []any{map[string]any{}}, "ordered": true}, "update"},
		{"q and u pair", nil, map[string]any{"q": map[string]any{}, "u": map[string]any{}}, "update"},
		{"plan fallback", map[string]any{"planSummary": "IXSCAN { a: 1 }"}, nil, "IXSCAN { a: 1 }"},
		{"nothing", nil, nil, "unknown"},
	}
	for _, tc := range cases {
		attr := tc.attr
		if attr == nil {
			attr = map[string]any{}
		}
		if got := inferOperation(attr, tc.command); got != tc.want {
			t.Fatalf("%s: inferOperation = %q, want %q", tc.name, got, tc.want)
		}
	}
}
