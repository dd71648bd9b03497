package cli

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Dicklesworthstone/approveflow/internal/config"
	"github.com/Dicklesworthstone/approveflow/internal/db"
	"github.com/Dicklesworthstone/approveflow/internal/report"
	"github.com/spf13/cobra"
)

const stateDir = ".approveflow"

var flagInitForce bool

func init() {
	initCmd.Flags().BoolVarP(&flagInitForce, "force", "f", false, "overwrite an existing "+config.FileName)
	rootCmd.AddCommand(initCmd)
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a config file and state database in the current directory",
	Long: `Create the approveflow working files in the current directory:

  approveflow.toml     # CRM domain, business kind, accounts
  .approveflow/
  └── state.db         # SQLite user directory and run history

Also adds .approveflow/ and approveflow.toml to .gitignore, since the
config holds account passwords.`,
	Args: cobra.NoArgs,
	RunE: runInit,
}

func runInit(cmd *cobra.Command, args []string) error {
	projectDir, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("getting working directory: %w", err)
	}

	configPath := filepath.Join(projectDir, config.FileName)
	if _, err := os.Stat(configPath); err == nil && !flagInitForce {
		return fmt.Errorf("already initialized: %s exists (use --force to overwrite)", configPath)
	}
	if err := config.WriteDefault(configPath, true); err != nil {
		return fmt.Errorf("creating config: %w", err)
	}

	dbPath := filepath.Join(projectDir, stateDir, "state.db")
	database, err := db.Open(dbPath)
	if err != nil {
		return fmt.Errorf("initializing database: %w", err)
	}
	database.Close()

	if err := addToGitignore(filepath.Join(projectDir, ".gitignore")); err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "Warning: could not update .gitignore: %v\n", err)
	}

	out := cmd.OutOrStdout()
	if GetOutput() == string(report.FormatJSON) {
		w, err := newWriter(cmd)
		if err != nil {
			return err
		}
		return w.JSON(map[string]any{
			"initialized": true,
			"config":      configPath,
			"database":    dbPath,
		})
	}
	fmt.Fprintf(out, "Initialized approveflow in %s\n\n", projectDir)
	fmt.Fprintln(out, "Next steps:")
	fmt.Fprintf(out, "  1. Set server.domain and the [[accounts]] in %s\n", config.FileName)
	fmt.Fprintln(out, "  2. Load the user directory: approveflow seed users.toml")
	fmt.Fprintln(out, "  3. Check a sheet offline:   approveflow plan --levels 2")
	fmt.Fprintln(out, "  4. Run it against the CRM:  approveflow run --levels 2")
	return nil
}

// addToGitignore ensures the state directory and config are ignored.
func addToGitignore(path string) error {
	want := []string{stateDir + "/", config.FileName}
	present := map[string]bool{}

	if f, err := os.Open(path); err == nil {
		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			present[line] = true
			if line == stateDir {
				present[stateDir+"/"] = true
			}
		}
		err := scanner.Err()
		f.Close()
		if err != nil {
			return err
		}
	}

	var missing []string
	for _, entry := range want {
		if !present[entry] {
			missing = append(missing, entry)
		}
	}
	if len(missing) == 0 {
		return nil
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}
	content := ""
	if info.Size() > 0 {
		var buf [1]byte
		if _, err := f.ReadAt(buf[:], info.Size()-1); err == nil && buf[0] != '\n' {
			content = "\n"
		}
	}
	content += "\n# approveflow state and credentials\n" + strings.Join(missing, "\n") + "\n"

	_, err = f.WriteString(content)
	return err
}
