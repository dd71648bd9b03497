package cli

import (
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/Dicklesworthstone/approveflow/internal/db"
	"github.com/Dicklesworthstone/approveflow/internal/report"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(seedCmd)
}

// usersFile is the layout of a seed file.
type usersFile struct {
	Users []db.UserSeed `toml:"users"`
}

var seedCmd = &cobra.Command{
	Use:   "seed <users.toml>",
	Short: "Load the user directory from a TOML file",
	Long: `Replace the local user directory with the users listed in a TOML file.

Each [[users]] table needs id (the CRM user id), name, phone and
authority. Superiors are listed by phone, direct superior first:

  [[users]]
  id = 12
  name = "applicant"
  phone = "13800000012"
  authority = "applier"
  superiors = ["13800000011"]

Authorities used by the engine: applier, normal, super, illegal and pc
(the admin that configures approval settings). Any other authority
(for example "manager") is only reachable as a superior.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var file usersFile
		meta, err := toml.DecodeFile(args[0], &file)
		if err != nil {
			return fmt.Errorf("reading %s: %w", args[0], err)
		}
		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, 0, len(undecoded))
			for _, k := range undecoded {
				keys = append(keys, k.String())
			}
			return fmt.Errorf("%s: unknown keys: %s", args[0], strings.Join(keys, ", "))
		}
		if len(file.Users) == 0 {
			return fmt.Errorf("%s: no [[users]] entries", args[0])
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		database, err := openDB(cfg)
		if err != nil {
			return err
		}
		defer database.Close()

		if err := database.SeedUsers(cmd.Context(), file.Users); err != nil {
			return fmt.Errorf("seeding users: %w", err)
		}

		stats, err := database.GetStats(cmd.Context())
		if err != nil {
			return err
		}

		if GetOutput() == string(report.FormatJSON) {
			w, err := newWriter(cmd)
			if err != nil {
				return err
			}
			return w.JSON(map[string]any{
				"seeded":   len(file.Users),
				"database": database.Path(),
				"stats":    stats,
			})
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Seeded %d users into %s (schema v%d, %d runs recorded)\n",
			len(file.Users), database.Path(), stats.SchemaVersion, stats.RunCount)
		return nil
	},
}
