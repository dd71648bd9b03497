package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Dicklesworthstone/approveflow/internal/core"
	"github.com/Dicklesworthstone/approveflow/internal/db"
	"github.com/spf13/cobra"
)

// newTestSeedCmd creates a fresh seed command for testing.
func newTestSeedCmd(dbPath, configPath string) *cobra.Command {
	root := newTestRoot(dbPath, configPath)
	root.AddCommand(&cobra.Command{
		Use:  "seed <users.toml>",
		Args: cobra.ExactArgs(1),
		RunE: seedCmd.RunE,
	})
	return root
}

const usersTOML = `
[[users]]
id = 3
name = "applicant"
phone = "13800000003"
authority = "applier"
superiors = ["13800000002"]

[[users]]
id = 2
name = "manager"
phone = "13800000002"
authority = "manager"

[[users]]
id = 1
name = "admin"
phone = "13800000001"
authority = "pc"
`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestSeedCommand_LoadsDirectory(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "state.db")
	configPath := writeFile(t, dir, "approveflow.toml", "[log]\nlevel = \"error\"\n")
	usersPath := writeFile(t, dir, "users.toml", usersTOML)
	resetFlags()

	stdout, err := executeCommandCapture(t, newTestSeedCmd(dbPath, configPath), "seed", usersPath)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(stdout, "Seeded 3 users") || !strings.Contains(stdout, "0 runs recorded") {
		t.Errorf("unexpected output: %q", stdout)
	}

	database, err := db.Open(dbPath)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer database.Close()
	applicant, err := database.FindUser(t.Context(), core.RoleApplier)
	if err != nil {
		t.Fatalf("find applicant: %v", err)
	}
	if len(applicant.Superiors) != 1 || applicant.Superiors[0].Name != "manager" {
		t.Errorf("superiors not linked: %+v", applicant.Superiors)
	}
}

func TestSeedCommand_JSON(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "state.db")
	configPath := writeFile(t, dir, "approveflow.toml", "")
	usersPath := writeFile(t, dir, "users.toml", usersTOML)
	resetFlags()

	stdout, err := executeCommandCapture(t, newTestSeedCmd(dbPath, configPath), "seed", usersPath, "--json")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var got struct {
		Seeded   int    `json:"seeded"`
		Database string `json:"database"`
		Stats    struct {
			SchemaVersion int `json:"schema_version"`
			UserCount     int `json:"user_count"`
			RunCount      int `json:"run_count"`
		} `json:"stats"`
	}
	if err := json.Unmarshal([]byte(stdout), &got); err != nil {
		t.Fatalf("failed to parse JSON: %v\nstdout: %s", err, stdout)
	}
	if got.Seeded != 3 || got.Database != dbPath {
		t.Errorf("unexpected result: %+v", got)
	}
	if got.Stats.UserCount != 3 || got.Stats.RunCount != 0 || got.Stats.SchemaVersion != db.SchemaVersion {
		t.Errorf("unexpected stats: %+v", got.Stats)
	}
}

func TestSeedCommand_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"empty", "", "no [[users]] entries"},
		{"unknown key", "[[users]]\nid = 1\nphone = \"1\"\nrole = \"pc\"\n", "unknown keys: users.role"},
		{"bad toml", "[[users]\n", "reading"},
		{"unknown superior", "[[users]]\nid = 1\nphone = \"1\"\nauthority = \"applier\"\nsuperiors = [\"9\"]\n", "unknown superior"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			configPath := writeFile(t, dir, "approveflow.toml", "")
			usersPath := writeFile(t, dir, "users.toml", tt.content)
			resetFlags()

			_, err := executeCommandCapture(t, newTestSeedCmd(filepath.Join(dir, "state.db"), configPath), "seed", usersPath)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}
