package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/aionlabs/aion/engine/infra/sqlite"
	"github.com/aionlabs/aion/engine/runtime"
	"github.com/aionlabs/aion/pkg/config"
	"github.com/aionlabs/aion/pkg/logger"
)

// StartCmd runs the agent until SIGINT or SIGTERM.
func StartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the agent runtime",
		RunE: func(cmd *cobra.Command, _ []string) error {
			configPath, _ := cmd.Flags().GetString("config")
			levelOverride, _ := cmd.Flags().GetString("log-level")
			return runStart(cmd.Context(), configPath, levelOverride)
		},
	}
}

func runStart(ctx context.Context, configPath, levelOverride string) error {
	// Credentials commonly live in a local .env; absence is not an error.
	_ = godotenv.Load()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	level := cfg.Log.Level
	if levelOverride != "" {
		level = levelOverride
	}
	log := logger.NewLogger(&logger.Config{
		Level:  logger.ParseLevel(level),
		Output: os.Stderr,
		JSON:   cfg.Log.JSON,
	})
	ctx = logger.ContextWithLogger(ctx, log)

	db, err := sqlite.Open(ctx, &sqlite.Config{
		Path:            cfg.DatabasePath(),
		BusyTimeout:     cfg.Database.BusyTimeout,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		return err
	}
	defer db.Close()

	rt, err := runtime.New(ctx, runtime.Options{Config: cfg, DB: db})
	if err != nil {
		return err
	}
	if err := rt.Start(ctx); err != nil {
		return err
	}
	log.Info("agent running", "data_dir", cfg.Runtime.DataDir)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	select {
	case sig := <-sigCh:
		log.Info("shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
	}

	if err := rt.Stop(); err != nil {
		return fmt.Errorf("cli: stop runtime: %w", err)
	}
	log.Info("agent stopped")
	return nil
}
