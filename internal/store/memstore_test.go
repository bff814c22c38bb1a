package store

import (
	"errors"
	"testing"

	"github.com/miradorstack/mirador-slowlog/internal/models"
)

func TestStoreIngestLifecycle(t *testing.T) {
	s := New()
	if s.HasData() {
		t.Fatalf("new store must be empty")
	}

	if err := s.BeginIngest(); err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := s.BeginIngest(); !errors.Is(err, ErrIngestInProgress) {
		t.Fatalf("second begin must fail with ErrIngestInProgress, got %v", err)
	}
	if !s.Ingesting() {
		t.Fatalf("expected ingest to be active")
	}

	batch := models.Batch{
		SlowQueries: []models.SlowQueryExecution{
			{TSEpoch: 100, DurationMS: 300, Database: "shop", Namespace: "shop.orders", PlanSummary: "COLLSCAN"},
			{TSEpoch: 200, DurationMS: 700, Database: "shop", Namespace: "shop.users", PlanSummary: "IXSCAN { a: 1 }"},
		},
		Authentications: []models.AuthenticationEvent{{TSEpoch: 100, User: "svc", Result: "success"}},
		Connections:     []models.ConnectionEvent{{TSEpoch: 100, Event: models.ConnectionAccepted}},
	}
	if err := s.AppendBatch(batch); err != nil {
		t.Fatalf("append: %v", err)
	}

	totals := s.EndIngest()
	if totals.SlowQueries != 2 || totals.Authentications != 1 || totals.Connections != 1 {
		t.Fatalf("unexpected totals: %+v", totals)
	}
	if totals.Rows() != 4 {
		t.Fatalf("expected 4 rows, got %d", totals.Rows())
	}
	if s.Ingesting() {
		t.Fatalf("ingest must be released after EndIngest")
	}

	// A second run counts only its own rows.
	if err := s.BeginIngest(); err != nil {
		t.Fatalf("begin second run: %v", err)
	}
	if totals := s.EndIngest(); totals.Rows() != 0 {
		t.Fatalf("empty run must report zero totals, got %+v", totals)
	}

	rows := s.SlowQueries(Criteria{})
	if len(rows) != 2 {
		t.Fatalf("expected both rows, got %d", len(rows))
	}
	if rows[0].Namespace != "shop.orders" || rows[1].Namespace != "shop.users" {
		t.Fatalf("rows must keep ingest order: %+v", rows)
	}

	filtered := s.SlowQueries(Criteria{PlanSummary: "COLLSCAN"})
	if len(filtered) != 1 || filtered[0].Namespace != "shop.orders" {
		t.Fatalf("plan filter broken: %+v", filtered)
	}

	if got := s.Authentications(AuthCriteria{}); len(got) != 1 {
		t.Fatalf("expected one auth event, got %d", len(got))
	}
	if got := s.Connections(ConnCriteria{}); len(got) != 1 {
		t.Fatalf("expected one connection event, got %d", len(got))
	}
}

func TestStoreSnapshotIsolation(t *testing.T) {
	s := New()
	if err := s.BeginIngest(); err != nil {
		t.Fatalf("begin: %v", err)
	}
	seed := models.SlowQueryExecution{TSEpoch: 100, DurationMS: 300, Database: "shop", Namespace: "shop.orders"}
	if err := s.AppendBatch(models.Batch{SlowQueries: []models.SlowQueryExecution{seed}}); err != nil {
		t.Fatalf("append: %v", err)
	}
	s.EndIngest()

	snapshot := s.SlowQueries(Criteria{})
	snapshot[0].Database = "mutated"

	again := s.SlowQueries(Criteria{})
	if again[0].Database != "shop" {
		t.Fatalf("snapshot mutation leaked into the store")
	}
}
