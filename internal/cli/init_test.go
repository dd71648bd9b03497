package cli

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Dicklesworthstone/approveflow/internal/config"
	"github.com/spf13/cobra"
)

// newTestInitCmd creates a fresh init command for testing.
func newTestInitCmd() *cobra.Command {
	root := newTestRoot("", "")
	cmd := &cobra.Command{
		Use:  "init",
		Args: cobra.NoArgs,
		RunE: runInit,
	}
	cmd.Flags().BoolVarP(&flagInitForce, "force", "f", false, "overwrite")
	root.AddCommand(cmd)
	return root
}

func chdirTemp(t *testing.T) string {
	t.Helper()
	tmpDir := t.TempDir()
	origDir, _ := os.Getwd()
	if err := os.Chdir(tmpDir); err != nil {
		t.Fatalf("chdir failed: %v", err)
	}
	t.Cleanup(func() { os.Chdir(origDir) })
	return tmpDir
}

func TestInitCommand_NewProject(t *testing.T) {
	tmpDir := chdirTemp(t)
	resetFlags()
	flagInitForce = false

	stdout, err := executeCommandCapture(t, newTestInitCmd(), "init")
	if err != nil {
		t.Fatalf("init failed: %v", err)
	}
	if !strings.Contains(stdout, "Initialized approveflow") {
		t.Errorf("unexpected output: %q", stdout)
	}

	for _, path := range []string{config.FileName, filepath.Join(stateDir, "state.db")} {
		if _, err := os.Stat(filepath.Join(tmpDir, path)); err != nil {
			t.Errorf("%s not created: %v", path, err)
		}
	}

	cfg, err := config.Load(filepath.Join(tmpDir, config.FileName))
	if err != nil {
		t.Fatalf("written config does not load: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("written config does not validate: %v", err)
	}

	content, err := os.ReadFile(filepath.Join(tmpDir, ".gitignore"))
	if err != nil {
		t.Fatalf(".gitignore not created: %v", err)
	}
	for _, entry := range []string{".approveflow/", config.FileName} {
		if !strings.Contains(string(content), entry) {
			t.Errorf(".gitignore missing %s", entry)
		}
	}
}

func TestInitCommand_AlreadyInitialized(t *testing.T) {
	tmpDir := chdirTemp(t)
	if err := os.WriteFile(filepath.Join(tmpDir, config.FileName), []byte("# mine\n"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	resetFlags()
	flagInitForce = false

	_, err := executeCommandCapture(t, newTestInitCmd(), "init")
	if err == nil || !strings.Contains(err.Error(), "already initialized") {
		t.Fatalf("expected already initialized error, got %v", err)
	}

	if _, err := executeCommandCapture(t, newTestInitCmd(), "init", "--force"); err != nil {
		t.Fatalf("init --force failed: %v", err)
	}
	data, _ := os.ReadFile(filepath.Join(tmpDir, config.FileName))
	if string(data) == "# mine\n" {
		t.Error("--force should rewrite the config")
	}
}

func TestAddToGitignore(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, ".gitignore")
	if err := os.WriteFile(path, []byte("node_modules\n.approveflow"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	if err := addToGitignore(path); err != nil {
		t.Fatalf("addToGitignore: %v", err)
	}
	if err := addToGitignore(path); err != nil {
		t.Fatalf("second addToGitignore: %v", err)
	}

	data, _ := os.ReadFile(path)
	got := string(data)
	if strings.Count(got, config.FileName) != 1 {
		t.Errorf("config entry should be added once:\n%s", got)
	}
	if strings.Contains(got, ".approveflow/") {
		t.Errorf("existing .approveflow entry should be recognized:\n%s", got)
	}
	if !strings.HasPrefix(got, "node_modules\n.approveflow\n") {
		t.Errorf("missing newline before appended entries:\n%s", got)
	}
}
