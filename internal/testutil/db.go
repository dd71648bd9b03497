package testutil

import (
	"io"
	"path/filepath"
	"testing"

	"github.com/Dicklesworthstone/approveflow/internal/db"
	"github.com/charmbracelet/log"
)

// NewTestDB opens a migrated database in a temp dir, closed on cleanup.
func NewTestDB(t testing.TB) *db.DB {
	t.Helper()
	return NewTestDBAtPath(t, filepath.Join(t.TempDir(), "state.db"))
}

// NewTestDBAtPath opens a migrated database at path, closed on cleanup.
func NewTestDBAtPath(t testing.TB, path string) *db.DB {
	t.Helper()
	database, err := db.Open(path)
	if err != nil {
		t.Fatalf("opening test database: %v", err)
	}
	t.Cleanup(func() { _ = database.Close() })
	return database
}

// TestLogger returns a logger that discards output unless verbose tests
// are requested.
func TestLogger(t testing.TB) *log.Logger {
	t.Helper()
	var w io.Writer = io.Discard
	if testing.Verbose() {
		w = testWriter{t}
	}
	return log.NewWithOptions(w, log.Options{Level: log.DebugLevel})
}

type testWriter struct{ t testing.TB }

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(string(p))
	return len(p), nil
}
