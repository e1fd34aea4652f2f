package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kozaktomas/frame-redactor/internal/batch"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Apply an effect chain to a directory of frames",
	Long: `Apply an effect chain to every frame in a directory.

Each frame uses the masks in the mask directory that share its name:
frame0001.jpg uses frame0001.png and frame0001_*.png. Outputs are written
to the output directory under the frame's name.

Examples:
  # Redact every frame with the built-in anonymize preset
  frame-redactor batch --frames ./frames --masks ./masks --output ./out --preset anonymize

  # Custom chain, WebP output, 4 workers
  frame-redactor batch --frames ./frames --masks ./masks --output ./out --chain chain.yaml --format webp --workers 4

  # JSON output for scripting
  frame-redactor batch --frames ./frames --masks ./masks --output ./out --preset soft-blur --json`,
	RunE: runBatch,
}

func init() {
	rootCmd.AddCommand(batchCmd)

	batchCmd.Flags().String("frames", "", "Directory with input frames (required)")
	batchCmd.Flags().String("masks", "", "Directory with masks (defaults to --frames)")
	batchCmd.Flags().String("output", "", "Output directory (required)")
	batchCmd.Flags().String("format", "", "Output format (png, jpg, webp); defaults to the input format")
	batchCmd.Flags().Int("workers", 0, "Number of parallel workers (defaults to ENGINE_WORKERS)")
	batchCmd.Flags().Bool("preview", false, "Use cheaper preview settings")
	batchCmd.Flags().Bool("json", false, "Output as JSON instead of progress bar")
	addChainFlags(batchCmd)
}

// BatchResult represents the result of a batch run
type BatchResult struct {
	Success       bool           `json:"success"`
	Frames        int            `json:"frames"`
	Processed     int            `json:"processed"`
	Failed        int            `json:"failed"`
	Failures      []BatchFailure `json:"failures,omitempty"`
	DurationMs    int64          `json:"duration_ms"`
	DurationHuman string         `json:"duration_human,omitempty"`
}

// BatchFailure names a frame that could not be processed
type BatchFailure struct {
	Frame string `json:"frame"`
	Error string `json:"error"`
}

func runBatch(cmd *cobra.Command, args []string) error {
	cfg, log, err := setup(cmd)
	if err != nil {
		return err
	}
	defer log.Sync()

	frameDir := mustGetString(cmd, "frames")
	maskDir := mustGetString(cmd, "masks")
	outDir := mustGetString(cmd, "output")
	format := mustGetString(cmd, "format")
	workers := mustGetInt(cmd, "workers")
	jsonOutput := mustGetBool(cmd, "json")

	if frameDir == "" || outDir == "" {
		return errors.New("--frames and --output are required")
	}
	if maskDir == "" {
		maskDir = frameDir
	}
	switch format {
	case "", "png", "jpg", "jpeg", "webp":
	default:
		return fmt.Errorf("unsupported output format %q (must be: png, jpg, webp)", format)
	}
	if workers <= 0 {
		workers = cfg.Engine.Workers
	}

	engine := newEngine(cfg, log)
	chain, err := resolveChain(cmd, cfg, engine)
	if err != nil {
		return err
	}

	jobs, err := batch.JobsFromDirs(frameDir, maskDir, outDir, format)
	if err != nil {
		return err
	}
	startTime := time.Now()
	if len(jobs) == 0 {
		if jsonOutput {
			return outputJSON(BatchResult{Success: true, DurationMs: time.Since(startTime).Milliseconds()})
		}
		fmt.Println("No frames found.")
		return nil
	}
	if !jsonOutput {
		fmt.Printf("Found %d frames, applying %d effects with %d workers\n\n", len(jobs), len(chain), workers)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Create progress bar (only for non-JSON output)
	var bar *progressbar.ProgressBar
	if !jsonOutput {
		bar = progressbar.NewOptions(len(jobs),
			progressbar.OptionSetDescription("Redacting frames"),
			progressbar.OptionShowCount(),
			progressbar.OptionShowIts(),
			progressbar.OptionSetItsString("frames"),
			progressbar.OptionShowElapsedTimeOnFinish(),
			progressbar.OptionSetPredictTime(true),
			progressbar.OptionFullWidth(),
		)
	}

	outcomes := batch.Run(ctx, batch.Options{
		Engine:      engine,
		Effects:     chain,
		Workers:     workers,
		Preview:     mustGetBool(cmd, "preview"),
		JPEGQuality: cfg.Engine.JPEGQuality,
		Logger:      log,
	}, jobs, func(o batch.Outcome) {
		if bar != nil {
			bar.Add(1)
		}
	})
	if bar != nil {
		fmt.Println()
	}

	duration := time.Since(startTime)
	result := BatchResult{
		Frames:        len(jobs),
		DurationMs:    duration.Milliseconds(),
		DurationHuman: formatDuration(duration),
	}
	for _, o := range outcomes {
		if o.Success {
			result.Processed++
			continue
		}
		result.Failed++
		result.Failures = append(result.Failures, BatchFailure{Frame: o.Input, Error: o.Error})
	}
	result.Success = result.Failed == 0
	log.Info("batch finished",
		zap.Int("frames", result.Frames),
		zap.Int("failed", result.Failed),
		zap.Duration("duration", duration))

	if jsonOutput {
		// Remove human-readable duration for JSON output
		result.DurationHuman = ""
		return outputJSON(result)
	}

	fmt.Println("\nBatch complete!")
	fmt.Printf("  Frames:    %d\n", result.Frames)
	fmt.Printf("  Processed: %d\n", result.Processed)
	if result.Failed > 0 {
		fmt.Printf("  Failed:    %d\n", result.Failed)
		for _, f := range result.Failures {
			fmt.Printf("    %s: %s\n", f.Frame, f.Error)
		}
	}
	fmt.Printf("  Duration:  %s\n", result.DurationHuman)

	if ctx.Err() != nil {
		return errors.New("batch interrupted")
	}
	return nil
}

func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
}
