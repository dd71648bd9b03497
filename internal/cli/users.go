package cli

import (
	"errors"
	"fmt"

	"github.com/Dicklesworthstone/approveflow/internal/core"
	"github.com/Dicklesworthstone/approveflow/internal/db"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(usersCmd)
}

var usersCmd = &cobra.Command{
	Use:   "users [phone]",
	Short: "List the seeded user directory, or show one user",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		w, err := newWriter(cmd)
		if err != nil {
			return err
		}
		database, err := openDB(cfg)
		if err != nil {
			return err
		}
		defer database.Close()

		ctx := cmd.Context()
		if len(args) == 0 {
			users, err := database.ListUsers(ctx)
			if err != nil {
				return err
			}
			return w.Users(users)
		}

		u, err := database.FindUserByPhone(ctx, args[0])
		if errors.Is(err, db.ErrUserNotFound) {
			return fmt.Errorf("no user with phone %s", args[0])
		}
		if err != nil {
			return err
		}
		return w.Users([]*core.User{u})
	},
}
