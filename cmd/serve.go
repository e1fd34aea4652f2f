package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kozaktomas/frame-redactor/internal/config"
	"github.com/kozaktomas/frame-redactor/internal/database"
	"github.com/kozaktomas/frame-redactor/internal/database/postgres"
	"github.com/kozaktomas/frame-redactor/internal/idmgmt"
	"github.com/kozaktomas/frame-redactor/internal/web"
	"github.com/kozaktomas/frame-redactor/internal/web/handlers"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	Long: `Start the Frame Redactor HTTP API.
The API exposes effect application, previews, mask editing, threshold
management and background batch jobs. When DATABASE_URL is set, threshold
settings and their history are stored in PostgreSQL and restored on startup.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 0, "Port to listen on (overrides SERVER_PORT)")
	serveCmd.Flags().String("host", "", "Host to bind to (overrides SERVER_HOST)")
}

// initThresholds builds the threshold manager and, when a database is
// configured, the store that mirrors it.
func initThresholds(ctx context.Context, cfg *config.Config, log *zap.Logger) (*idmgmt.ThresholdManager, database.ThresholdStore, error) {
	tm, err := thresholdManager(cfg, log)
	if err != nil {
		return nil, nil, err
	}
	if cfg.Database.URL == "" {
		log.Info("DATABASE_URL not set, threshold settings are kept in memory")
		return tm, nil, nil
	}

	log.Info("connecting to PostgreSQL database")
	if err := postgres.Initialize(&cfg.Database, log); err != nil {
		return nil, nil, fmt.Errorf("failed to initialize PostgreSQL: %w", err)
	}
	store, err := database.GetThresholdStore(ctx)
	if err != nil {
		return nil, nil, err
	}
	if err := handlers.RestoreThresholds(ctx, tm, store); err != nil {
		return nil, nil, err
	}
	log.Info("threshold settings restored",
		zap.Float64("detection_threshold", tm.Settings().DetectionThreshold),
		zap.Int("history_entries", len(tm.History())))
	return tm, store, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, log, err := setup(cmd)
	if err != nil {
		return err
	}
	defer log.Sync()

	if port := mustGetInt(cmd, "port"); port > 0 {
		cfg.Server.Port = port
	}
	if host := mustGetString(cmd, "host"); host != "" {
		cfg.Server.Host = host
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tm, store, err := initThresholds(ctx, cfg, log)
	if err != nil {
		return err
	}
	if pool := postgres.GetGlobalPool(); pool != nil {
		defer pool.Close()
	}

	server := web.NewServer(cfg, newEngine(cfg, log), tm, store, log)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		fmt.Println("\nShutting down...")

		shutdownCtx, shutdownCancel := context.WithTimeout(ctx, 30*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error("error during shutdown", zap.Error(err))
		}
	}()

	fmt.Printf("Starting Frame Redactor API on http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	if cfg.Server.APIToken == "" {
		fmt.Println("Warning: API_TOKEN is not set, the API is open to anyone who can reach it")
	}
	fmt.Println("Press Ctrl+C to stop")

	if err := server.Start(); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}
	return nil
}
