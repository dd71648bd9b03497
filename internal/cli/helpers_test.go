package cli

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Dicklesworthstone/approveflow/internal/testutil"
	"github.com/spf13/cobra"
	"github.com/xuri/excelize/v2"
)

// newTestRoot creates a fresh root command bound to the package flags.
func newTestRoot(dbPath, configPath string) *cobra.Command {
	root := &cobra.Command{
		Use:           "approveflow",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVarP(&flagConfig, "config", "c", configPath, "config file")
	root.PersistentFlags().StringVar(&flagDB, "db", dbPath, "database path")
	root.PersistentFlags().StringVarP(&flagOutput, "output", "o", "text", "output format")
	root.PersistentFlags().BoolVarP(&flagJSON, "json", "j", false, "json output")
	root.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "debug logging")
	return root
}

func resetFlags() {
	flagConfig = ""
	flagDB = ""
	flagOutput = "text"
	flagJSON = false
	flagVerbose = false
}

func executeCommand(root *cobra.Command, args ...string) (stdout, stderr string, err error) {
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err = root.Execute()
	return out.String(), errOut.String(), err
}

func executeCommandCapture(t *testing.T, root *cobra.Command, args ...string) (string, error) {
	t.Helper()
	stdout, stderr, err := executeCommand(root, args...)
	if testing.Verbose() && stderr != "" {
		t.Log(stderr)
	}
	return stdout, err
}

// env is a working directory with a config file and a seeded database.
type env struct {
	Dir        string
	DBPath     string
	ConfigPath string
	Workbook   string
	Org        *testutil.Org
}

func newEnv(t *testing.T, domain string) *env {
	t.Helper()
	dir := t.TempDir()
	e := &env{
		Dir:        dir,
		DBPath:     filepath.Join(dir, "state.db"),
		ConfigPath: filepath.Join(dir, "approveflow.toml"),
		Workbook:   filepath.Join(dir, "cases.xlsx"),
		Org:        testutil.NewOrg(),
	}

	database := testutil.NewTestDBAtPath(t, e.DBPath)
	if err := database.SeedUsers(t.Context(), e.Org.Dir.Seeds()); err != nil {
		t.Fatalf("seeding users: %v", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "[server]\ndomain = %q\ntimeout = \"5s\"\n\n", domain)
	fmt.Fprintf(&b, "[business]\nkind = \"customer\"\nlevels = 2\n\n")
	fmt.Fprintf(&b, "[workbook]\npath = %q\n\n", e.Workbook)
	fmt.Fprintf(&b, "[log]\nlevel = \"warn\"\n\n")
	for _, u := range e.Org.Dir.Users() {
		fmt.Fprintf(&b, "[[accounts]]\nauthority = %q\nphone = %q\npassword = \"secret\"\n\n", u.Authority, u.Phone)
	}
	if err := os.WriteFile(e.ConfigPath, []byte(b.String()), 0600); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return e
}

// writeWorkbook writes one sheet of rows, the first row being the header.
func writeWorkbook(t *testing.T, path, sheet string, rows [][]any) {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		t.Fatalf("SetSheetName: %v", err)
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			t.Fatalf("cell name: %v", err)
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			t.Fatalf("SetSheetRow: %v", err)
		}
	}
	if err := f.SaveAs(path); err != nil {
		t.Fatalf("SaveAs: %v", err)
	}
}
