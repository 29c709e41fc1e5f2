package main

import (
	"fmt"

	"github.com/neuro-mcq/backend/internal/auth"
	"github.com/neuro-mcq/backend/internal/database"
	"github.com/spf13/cobra"
)

func newMigrateCmd(a *app) *cobra.Command {
	var down int
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations, or roll back with --down",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := a.database()
			if err != nil {
				return err
			}
			if down > 0 {
				if err := database.MigrateDown(db, down); err != nil {
					return err
				}
				fmt.Printf("Rolled back %d migration(s)\n", down)
				return nil
			}
			return database.Migrate(db)
		},
	}
	cmd.Flags().IntVar(&down, "down", 0, "number of migrations to roll back")
	return cmd
}

func newStaffCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "staff",
		Short: "Grant or revoke staff access",
	}
	set := func(use string, staff bool) *cobra.Command {
		return &cobra.Command{
			Use:   use + " <email>",
			Short: use + " staff access for a user",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				db, err := a.database()
				if err != nil {
					return err
				}
				if err := auth.NewStore(db).SetStaff(cmd.Context(), args[0], staff); err != nil {
					return fmt.Errorf("%s %s: %w", use, args[0], err)
				}
				fmt.Printf("%s: staff=%v\n", args[0], staff)
				return nil
			},
		}
	}
	cmd.AddCommand(set("grant", true), set("revoke", false))
	return cmd
}
