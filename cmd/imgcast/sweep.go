package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"imgcast/internal/config"
	"imgcast/internal/logger"
	"imgcast/internal/sweep"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run one offline reclaim pass over the persistent cache",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSweep()
	},
}

func runSweep() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log, err := logger.NewConsole(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer log.Sync()

	sweeper := sweep.New(sweep.Config{
		SourceDir:   cfg.SourceDir,
		CacheDir:    cfg.CacheDir,
		SizeBudget:  cfg.DiskCacheBudget,
		MaxEntryAge: cfg.MaxEntryAge,
		Interval:    cfg.SweepInterval,
	}, log)

	stats := sweeper.Sweep()
	if stats.Errors > 0 {
		return fmt.Errorf("sweep finished with %d errors", stats.Errors)
	}
	return nil
}
