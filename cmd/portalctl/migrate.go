package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/spec-kit/grievance-portal/internal/app"
	"github.com/spec-kit/grievance-portal/internal/persistence"
)

var migrateDir string

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending SQL migrations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withServices(cmd, func(ctx context.Context, svc *app.Services) error {
			applied, err := svc.Migrate(ctx, migrateDir)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "applied %d migration(s)\n", applied)
			return nil
		})
	},
}

func init() {
	migrateCmd.Flags().StringVar(&migrateDir, "dir", persistence.DefaultMigrationsDir, "directory holding *.sql migrations")
}
