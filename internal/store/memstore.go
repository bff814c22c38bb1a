// Package store holds classified log events in memory and serves filtered
// snapshots to the analysis engines. Readers always observe a consistent
// dataset: appends happen under the write lock and analytic reads copy the
// matching rows out under the read lock.
package store

import (
	"errors"
	"sync"

	"github.com/miradorstack/mirador-slowlog/internal/models"
)

// ErrIngestInProgress is returned when an ingest run is started while
// another one holds the store.
var ErrIngestInProgress = errors.New("store: ingest already in progress")

// Store is an in-memory tabular store for classified log events.
type Store struct {
	mu        sync.RWMutex
	ingesting bool
	run       models.IngestTotals

	slow  []models.SlowQueryExecution
	auths []models.AuthenticationEvent
	conns []models.ConnectionEvent
}

// New creates an empty store.
func New() *Store { return &Store{} }

// BeginIngest marks the start of one ingest run so analytic refreshes do not
// observe a half-written dataset.
func (s *Store) BeginIngest() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ingesting {
		return ErrIngestInProgress
	}
	s.ingesting = true
	s.run = models.IngestTotals{}
	return nil
}

// AppendBatch durably appends one batch of classified events.
func (s *Store) AppendBatch(batch models.Batch) error {
	if batch.Empty() {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.slow = append(s.slow, batch.SlowQueries...)
	s.auths = append(s.auths, batch.Authentications...)
	s.conns = append(s.conns, batch.Connections...)
	s.run.SlowQueries += int64(len(batch.SlowQueries))
	s.run.Authentications += int64(len(batch.Authentications))
	s.run.Connections += int64(len(batch.Connections))
	return nil
}

// EndIngest completes the run and returns the rows written by it.
func (s *Store) EndIngest() models.IngestTotals {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ingesting = false
	totals := s.run
	s.run = models.IngestTotals{}
	return totals
}

// Ingesting reports whether an ingest run currently owns the store.
func (s *Store) Ingesting() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ingesting
}

// HasData reports whether any slow query rows have been registered. An empty
// store yields empty analysis results, never errors.
func (s *Store) HasData() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.slow) > 0
}

// SlowQueries returns a snapshot copy of the rows matching the criteria, in
// ingest order.
func (s *Store) SlowQueries(c Criteria) []models.SlowQueryExecution {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.SlowQueryExecution
	for _, row := range s.slow {
		if c.Matches(row) {
			out = append(out, row)
		}
	}
	return out
}

// Authentications returns matching authentication events in ingest order.
func (s *Store) Authentications(c AuthCriteria) []models.AuthenticationEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.AuthenticationEvent
	for _, ev := range s.auths {
		if c.Matches(ev) {
			out = append(out, ev)
		}
	}
	return out
}

// Connections returns matching connection events in ingest order.
func (s *Store) Connections(c ConnCriteria) []models.ConnectionEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.ConnectionEvent
	for _, ev := range s.conns {
		if c.Matches(ev) {
			out = append(out, ev)
		}
	}
	return out
}
