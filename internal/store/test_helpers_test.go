package store

import (
	"path/filepath"
	"testing"

	"github.com/roach88/regeindary/internal/testutil"
)

// createTestStore opens a fresh SQLite store with sequential IDs.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path, WithIDGenerator(testutil.NewSequentialIDGenerator("doc")))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func org(registryID, entityID, name string) Document {
	return Document{
		"registryID": registryID,
		"entityId":   entityID,
		"entityName": name,
	}
}
