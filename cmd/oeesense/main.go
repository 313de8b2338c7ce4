package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/savegress/oeesense/internal/api"
	"github.com/savegress/oeesense/internal/config"
	"github.com/savegress/oeesense/internal/events"
	"github.com/savegress/oeesense/internal/oee"
	"github.com/savegress/oeesense/internal/reports"
	"github.com/savegress/oeesense/pkg/models"
)

func main() {
	log.Println("Starting OEESense...")

	cfg := loadConfig()
	log.Printf("Environment: %s", cfg.Server.Environment)
	log.Printf("Configured standards: %d operations, %d overrides", len(cfg.Standards), len(cfg.Overrides))

	// Initialize event store
	store, err := events.Open(cfg.Storage.Path)
	if err != nil {
		log.Fatalf("Failed to open event store: %v", err)
	}
	defer store.Close()
	log.Printf("Event store ready at: %s", cfg.Storage.Path)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Build the calculator from the immutable standards configuration
	calc := oee.NewCalculator(cfg.Standards, cfg.Overrides)

	// Initialize shift report engine
	engine := reports.NewEngine(&reports.Config{
		ShiftDuration:       cfg.Reports.ShiftDuration,
		CalculationInterval: cfg.Reports.CalculationInterval,
		MaxHistory:          cfg.Reports.MaxHistory,
	}, store, calc)

	engine.SetReportCallback(func(report *models.OEEReport) {
		log.Printf("Shift report %s..%s: oee=%.3f availability=%.3f performance=%.3f quality=%.3f (%d events)",
			report.WindowStart.Format(time.RFC3339), report.WindowEnd.Format(time.RFC3339),
			report.OEE, report.Availability, report.Performance, report.Quality, report.EventCount)
	})

	if err := engine.Start(ctx); err != nil {
		log.Fatalf("Failed to start report engine: %v", err)
	}
	log.Printf("Report engine started (shift=%s, interval=%s)", cfg.Reports.ShiftDuration, cfg.Reports.CalculationInterval)

	// Periodic event-log retention
	go retentionLoop(ctx, store, cfg.Storage.Retention)

	// Create API server
	server := api.NewServer(cfg, store, engine)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      server.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("OEESense API listening on port %d", cfg.Server.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP server error: %v", err)
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down OEESense...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}

	engine.Stop()

	log.Println("OEESense stopped")
}

func loadConfig() *config.Config {
	configPath := os.Getenv("OEESENSE_CONFIG")
	if configPath != "" {
		cfg, err := config.Load(configPath)
		if err != nil {
			log.Printf("Failed to load config from %s: %v, using defaults", configPath, err)
			return config.LoadFromEnv()
		}
		return cfg
	}
	return config.LoadFromEnv()
}

func retentionLoop(ctx context.Context, store *events.Store, retention time.Duration) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deleted, err := store.Cleanup(ctx, retention)
			if err != nil {
				log.Printf("Event log cleanup error: %v", err)
				continue
			}
			if deleted > 0 {
				log.Printf("Event log cleanup removed %d rows", deleted)
			}
		}
	}
}
