package utils

import (
	"errors"
	"fmt"
	"testing"
)

func TestAppErrorMessage(t *testing.T) {
	err := NewAppError("ingest", "log ingestion failed", errors.New("open: no such file"))
	want := "ingest: log ingestion failed: open: no such file"
	if err.Error() != want {
		t.Fatalf("got %q, want %q", err.Error(), want)
	}

	bare := NewAppError("patterns", "invalid filter", nil)
	if bare.Error() != "patterns: invalid filter" {
		t.Fatalf("got %q", bare.Error())
	}
}

func TestAppErrorUnwrap(t *testing.T) {
	cause := errors.New("threshold must be non-negative")
	err := NewInvalidError("patterns", "invalid filter", cause)
	if !errors.Is(err, cause) {
		t.Fatalf("expected wrapped cause to be reachable")
	}
}

func TestIsInvalid(t *testing.T) {
	if !IsInvalid(NewInvalidError("patterns", "invalid filter", nil)) {
		t.Fatalf("invalid error must be reported as invalid")
	}
	if IsInvalid(NewAppError("ingest", "log ingestion failed", nil)) {
		t.Fatalf("internal error must not be reported as invalid")
	}
	if IsInvalid(errors.New("plain")) {
		t.Fatalf("plain error must not be reported as invalid")
	}
	wrapped := fmt.Errorf("request: %w", NewInvalidError("executions", "invalid filter", nil))
	if !IsInvalid(wrapped) {
		t.Fatalf("wrapped invalid error must still be reported as invalid")
	}
}
