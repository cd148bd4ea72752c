// Package main implements portalctl, the grievance portal admin CLI.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spec-kit/grievance-portal/internal/app"
	"github.com/spec-kit/grievance-portal/internal/config"
	"github.com/spec-kit/grievance-portal/internal/observability"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "portalctl",
	Short:         "Administer the grievance portal",
	SilenceUsage:  true,
}

func init() {
	rootCmd.AddCommand(migrateCmd, slaCmd, employeeCmd)
}

// withServices loads configuration, connects to the stores and runs fn.
// Ctrl-C cancels the context passed to fn.
func withServices(cmd *cobra.Command, fn func(ctx context.Context, svc *app.Services) error) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc, err := app.New(ctx, cfg, logger.Named("portalctl"))
	if err != nil {
		return err
	}
	defer svc.Close()
	if svc.Postgres.PoolHandle() == nil {
		logger.Warn("POSTGRES_DSN is empty", zap.String("command", cmd.CommandPath()))
		return fmt.Errorf("POSTGRES_DSN is required for %s", cmd.CommandPath())
	}
	return fn(ctx, svc)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
