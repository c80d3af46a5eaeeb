package store

import (
	"path/filepath"
	"testing"
	"time"
)

// createTestStore opens a fresh on-disk store under t.TempDir().
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

var testTime = time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)

// createTestRecord builds a record with minimal required fields.
func createTestRecord(kind string, id int64, altID string) Record {
	return Record{
		Kind:        kind,
		ID:          id,
		AlternateID: altID,
		Body:        []byte(`{"alternate_id":"` + altID + `"}`),
		CreatedAt:   testTime,
		UpdatedAt:   testTime,
	}
}

// createTestEntry builds a pending POST queue entry.
func createTestEntry(payload, path string) QueueEntry {
	return QueueEntry{
		Payload:     []byte(payload),
		Method:      "POST",
		ContentType: "application/json",
		Path:        path,
		Digest:      "test-digest",
		CreatedAt:   testTime,
	}
}
