package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/kozaktomas/frame-redactor/internal/config"
	"github.com/kozaktomas/frame-redactor/internal/logger"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var rootCmd = &cobra.Command{
	Use:   "frame-redactor",
	Short: "Apply privacy effects to video frames using object masks",
	Long: `Frame Redactor applies mosaic, blur and pixelate effects to the regions of
video frames covered by segmentation masks. It also edits mask identifiers,
filters detections by confidence and serves the same operations over HTTP.`,
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error); overrides LOG_LEVEL")
	rootCmd.PersistentFlags().String("log-format", "", "Log format (console, json); overrides LOG_FORMAT")
}

func initConfig() {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()
}

// setup loads and validates the configuration and builds the logger.
// Log flags take precedence over the environment.
func setup(cmd *cobra.Command) (*config.Config, *zap.Logger, error) {
	cfg := config.Load()
	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		cfg.Log.Level = level
	}
	if format, _ := cmd.Flags().GetString("log-format"); format != "" {
		cfg.Log.Format = format
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	log, err := logger.New(cfg.Log)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return cfg, log, nil
}

func outputJSON(data any) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(data); err != nil {
		return fmt.Errorf("encoding JSON output: %w", err)
	}
	return nil
}
