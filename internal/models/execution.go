package models

// Provenance locates a raw log line inside its source file. It is captured
// at read time because byte offsets are unavailable once lines are buffered.
type Provenance struct {
	FilePath   string `json:"file_path"`
	FileOffset int64  `json:"file_offset"`
	LineNumber int64  `json:"line_number"`
	LineLength int    `json:"line_length"`
}

// SlowQueryExecution is one completed query execution extracted from a
// "slow query" log event. Instances are immutable once appended to the store.
type SlowQueryExecution struct {
	Timestamp    string `json:"timestamp"`
	TSEpoch      int64  `json:"ts_epoch"`
	DurationMS   int64  `json:"duration_ms"`
	DocsExamined int64  `json:"docs_examined"`
	DocsReturned int64  `json:"docs_returned"`
	KeysExamined int64  `json:"keys_examined"`
	QueryHash    string `json:"query_hash"`
	Database     string `json:"database"`
	Collection   string `json:"collection"`
	Namespace    string `json:"namespace"`
	PlanSummary  string `json:"plan_summary"`
	QueryText    string `json:"query_text"`
	Operation    string `json:"operation"`
	ConnectionID string `json:"connection_id,omitempty"`
	Username     string `json:"username,omitempty"`
	FilePath     string `json:"file_path"`
	FileOffset   int64  `json:"file_offset"`
	LineNumber   int64  `json:"line_number"`
	LineLength   int    `json:"line_length"`
}

// AuthenticationEvent is an access-audit record for one authentication attempt.
type AuthenticationEvent struct {
	Timestamp     string `json:"timestamp"`
	TSEpoch       int64  `json:"ts_epoch"`
	User          string `json:"user,omitempty"`
	Database      string `json:"database,omitempty"`
	Mechanism     string `json:"mechanism,omitempty"`
	Result        string `json:"result"`
	ConnectionID  string `json:"connection_id,omitempty"`
	RemoteAddress string `json:"remote_address,omitempty"`
	AppName       string `json:"app_name,omitempty"`
	Error         string `json:"error,omitempty"`
	FilePath      string `json:"file_path"`
	FileOffset    int64  `json:"file_offset"`
	LineNumber    int64  `json:"line_number"`
}

// Connection lifecycle verbs.
const (
	ConnectionAccepted = "accepted"
	ConnectionEnded    = "ended"
)

// ConnectionEvent is a connection accept/end lifecycle record.
type ConnectionEvent struct {
	Timestamp       string `json:"timestamp"`
	TSEpoch         int64  `json:"ts_epoch"`
	Event           string `json:"event"`
	ConnectionID    string `json:"connection_id,omitempty"`
	RemoteAddress   string `json:"remote_address,omitempty"`
	ConnectionCount *int64 `json:"connection_count,omitempty"`
	AppName         string `json:"app_name,omitempty"`
	Driver          string `json:"driver,omitempty"`
	FilePath        string `json:"file_path"`
	FileOffset      int64  `json:"file_offset"`
	LineNumber      int64  `json:"line_number"`
}

// Batch groups classified events pending a single store append.
type Batch struct {
	SlowQueries     []SlowQueryExecution
	Authentications []AuthenticationEvent
	Connections     []ConnectionEvent
}

// Len returns the total number of events held by the batch.
func (b Batch) Len() int {
	return len(b.SlowQueries) + len(b.Authentications) + len(b.Connections)
}

// Empty reports whether the batch holds no events.
func (b Batch) Empty() bool { return b.Len() == 0 }

// IngestTotals summarises rows durably written during one ingest run.
type IngestTotals struct {
	SlowQueries     int64 `json:"slow_queries"`
	Authentications int64 `json:"authentications"`
	Connections     int64 `json:"connections"`
}

// Rows returns the combined row count across event kinds.
func (t IngestTotals) Rows() int64 {
	return t.SlowQueries + t.Authentications + t.Connections
}

// ExecutionPage is one page of execution records ordered by duration.
type ExecutionPage struct {
	Items   []SlowQueryExecution `json:"items"`
	Total   int                  `json:"total"`
	Page    int                  `json:"page"`
	PerPage int                  `json:"per_page"`
}
