package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cshum/vipsgen/vips"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"imgcast/internal/cache"
	"imgcast/internal/codec"
	"imgcast/internal/config"
	"imgcast/internal/httpserver"
	"imgcast/internal/logger"
	"imgcast/internal/sweep"
	"imgcast/internal/transform"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the transcoding proxy server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

func runServe() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer log.Sync()

	vipsConfig := &vips.Config{
		ConcurrencyLevel: cfg.VipsConcurrency,
		MaxCacheMem:      cfg.VipsMaxCacheMB * 1024 * 1024,
		MaxCacheFiles:    0,
		MaxCacheSize:     0,
		ReportLeaks:      false,
		CacheTrace:       false,
		VectorEnabled:    true,
	}

	vips.SetLogging(func(domain string, level vips.LogLevel, message string) {
		if level >= vips.LogLevelError {
			log.Error("vips", zap.String("domain", domain), zap.Int("level", int(level)), zap.String("message", message))
		} else if level >= vips.LogLevelWarning {
			log.Warn("vips", zap.String("domain", domain), zap.Int("level", int(level)), zap.String("message", message))
		}
	}, vips.LogLevelError)

	vips.Startup(vipsConfig)
	defer vips.Shutdown()

	log.Info("VIPS initialized",
		zap.Int("max_cache_mb", cfg.VipsMaxCacheMB),
		zap.Int("concurrency", cfg.VipsConcurrency),
	)

	store, err := cache.NewStore(cfg.CacheDir, cache.Options{
		FastCapacity:  cfg.MemoryCacheEntries,
		FastTTL:       cfg.CacheTTL,
		FastItemLimit: cfg.MemoryCacheItemLimit,
	})
	if err != nil {
		log.Error("Failed to initialize cache", zap.Error(err))
		return err
	}

	coordinator := transform.New(cfg.SourceDir, store, codec.New(), cfg.MaxConcurrentTransforms, cfg.ResolveTimeout, log)

	sweeper := sweep.New(sweep.Config{
		SourceDir:   cfg.SourceDir,
		CacheDir:    cfg.CacheDir,
		SizeBudget:  cfg.DiskCacheBudget,
		MaxEntryAge: cfg.MaxEntryAge,
		Interval:    cfg.SweepInterval,
	}, log)
	sweeper.Start()
	defer sweeper.Stop()

	handlers := httpserver.New(cfg, log, coordinator)

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: handlers.Router(),
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Server failed", zap.Error(err))
		}
	}()

	log.Info("Server started",
		zap.Int("port", cfg.Port),
		zap.String("source_dir", cfg.SourceDir),
		zap.String("cache_dir", cfg.CacheDir),
	)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}

	log.Info("Server stopped")
	return nil
}
