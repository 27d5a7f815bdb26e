package state

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func openStore(t *testing.T) (*Store, string) {
	t.Helper()
	dir := t.TempDir()
	s, err := Open(filepath.Join(dir, "state.json"), filepath.Join(dir, "error_log.json"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s, dir
}

func TestCompletedSKUsMissingFile(t *testing.T) {
	s, _ := openStore(t)
	if got := s.CompletedSKUs(); len(got) != 0 {
		t.Fatalf("expected empty set for missing state file, got %v", got)
	}
}

func TestCompletedSKUsCorruptFile(t *testing.T) {
	s, dir := openStore(t)
	if err := os.WriteFile(filepath.Join(dir, "state.json"), []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	if got := s.CompletedSKUs(); len(got) != 0 {
		t.Fatalf("expected empty set for corrupt state file, got %v", got)
	}
}

func TestMarkCompleteRoundTrip(t *testing.T) {
	s, dir := openStore(t)
	for _, code := range []string{"B2", "A1"} {
		if err := s.MarkComplete(code); err != nil {
			t.Fatal(err)
		}
	}

	set := s.CompletedSKUs()
	if _, ok := set["A1"]; !ok {
		t.Error("A1 missing from completed set")
	}
	if _, ok := set["B2"]; !ok {
		t.Error("B2 missing from completed set")
	}

	// No temp file may survive a successful save.
	if _, err := os.Stat(filepath.Join(dir, "state.json.tmp")); !os.IsNotExist(err) {
		t.Errorf("temp file left behind: %v", err)
	}

	// A fresh store over the same files sees the same state.
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	s2, err := Open(filepath.Join(dir, "state.json"), filepath.Join(dir, "error_log.json"))
	if err != nil {
		t.Fatal(err)
	}
	defer s2.Close()
	if _, ok := s2.CompletedSKUs()["A1"]; !ok {
		t.Error("completed set not durable across reopen")
	}
}

func TestMarkCompleteIdempotent(t *testing.T) {
	s, _ := openStore(t)
	if err := s.MarkComplete("A1"); err != nil {
		t.Fatal(err)
	}
	if err := s.MarkComplete("A1"); err != nil {
		t.Fatal(err)
	}
	if got := len(s.CompletedSKUs()); got != 1 {
		t.Fatalf("expected 1 completed SKU, got %d", got)
	}
}

func TestAppendErrorPreservesPriorEntries(t *testing.T) {
	s, _ := openStore(t)
	if err := s.AppendError(NewErrorEntry("ABC1", "side", "gen_failed", errors.New("boom"))); err != nil {
		t.Fatal(err)
	}
	if err := s.AppendError(NewErrorEntry("ABC1", "top", "not_square", nil)); err != nil {
		t.Fatal(err)
	}

	got := s.Errors()
	if len(got) != 2 {
		t.Fatalf("expected 2 journal entries, got %d", len(got))
	}
	if got[0].Prompt != "side" || got[0].ErrorCode != "gen_failed" || got[0].Error != "boom" {
		t.Errorf("first entry mismatch: %+v", got[0])
	}
	if got[1].Prompt != "top" || got[1].ErrorCode != "not_square" {
		t.Errorf("second entry mismatch: %+v", got[1])
	}
	if got[0].Timestamp == "" {
		t.Error("entry missing timestamp")
	}
}

func TestOpenRefusesSecondWriter(t *testing.T) {
	dir := t.TempDir()
	statePath := filepath.Join(dir, "state.json")
	errPath := filepath.Join(dir, "error_log.json")

	first, err := Open(statePath, errPath)
	if err != nil {
		t.Fatal(err)
	}
	defer first.Close()

	if _, err := Open(statePath, errPath); err == nil {
		t.Fatal("expected second Open on a locked state file to fail")
	}
}
