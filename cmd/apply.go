package cmd

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"text/tabwriter"
	"time"

	"github.com/kozaktomas/frame-redactor/internal/effect"
	"github.com/kozaktomas/frame-redactor/internal/frame"
	"github.com/kozaktomas/frame-redactor/internal/media"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var applyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Apply an effect chain to one frame",
	Long: `Apply an effect chain to the regions of one frame covered by its masks.

Masks are 8-bit grayscale images where each pixel holds an object identifier.
A YAML sidecar next to a mask (mask.yaml for mask.png) may carry its id,
classes and confidences.

Examples:
  frame-redactor apply --frame frame.jpg --mask faces.png --preset anonymize --output out.jpg
  frame-redactor apply --frame frame.png --mask a.png --mask b.png --chain chain.yaml --output out.webp --json`,
	RunE: runApply,
}

func init() {
	rootCmd.AddCommand(applyCmd)

	applyCmd.Flags().String("frame", "", "Input frame image (required)")
	applyCmd.Flags().StringSlice("mask", nil, "Mask image; repeat for several masks")
	applyCmd.Flags().String("output", "", "Output image (required); format follows the extension")
	applyCmd.Flags().Bool("preview", false, "Use cheaper preview settings")
	applyCmd.Flags().Bool("json", false, "Output per-effect results as JSON")
	addChainFlags(applyCmd)
}

// ApplyResult is the JSON output of apply
type ApplyResult struct {
	Frame      string                   `json:"frame"`
	Output     string                   `json:"output"`
	Results    map[string]effect.Result `json:"results"`
	DurationMs int64                    `json:"duration_ms"`
}

func runApply(cmd *cobra.Command, args []string) error {
	cfg, log, err := setup(cmd)
	if err != nil {
		return err
	}
	defer log.Sync()

	framePath := mustGetString(cmd, "frame")
	outputPath := mustGetString(cmd, "output")
	if framePath == "" || outputPath == "" {
		return errors.New("--frame and --output are required")
	}

	engine := newEngine(cfg, log)
	chain, err := resolveChain(cmd, cfg, engine)
	if err != nil {
		return err
	}

	start := time.Now()
	f, err := media.LoadFrame(framePath)
	if err != nil {
		return err
	}
	masks, err := loadMasks(mustGetStringSlice(cmd, "mask"))
	if err != nil {
		return err
	}

	out, results := engine.ApplyEffects(f, masks, chain, mustGetBool(cmd, "preview"))
	if err := media.SaveFrame(outputPath, out, cfg.Engine.JPEGQuality); err != nil {
		return err
	}
	log.Info("frame written", zap.String("output", outputPath), zap.Int("effects", len(chain)))

	result := ApplyResult{
		Frame:      framePath,
		Output:     outputPath,
		Results:    results,
		DurationMs: time.Since(start).Milliseconds(),
	}
	if mustGetBool(cmd, "json") {
		return outputJSON(result)
	}
	printResults(results)
	fmt.Printf("\nWrote %s in %dms\n", outputPath, result.DurationMs)
	return nil
}

// loadMasks reads mask images in order. Masks without an id in their
// sidecar are numbered from 1 by position.
func loadMasks(paths []string) ([]*frame.Mask, error) {
	masks := make([]*frame.Mask, 0, len(paths))
	for i, p := range paths {
		m, err := media.LoadMask(p)
		if err != nil {
			return nil, fmt.Errorf("mask %s: %w", p, err)
		}
		if m.ID == 0 {
			m.ID = i + 1
		}
		masks = append(masks, m)
	}
	return masks, nil
}

func printResults(results map[string]effect.Result) {
	ids := make([]string, 0, len(results))
	for id := range results {
		if id != effect.TotalResultKey {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "EFFECT\tSTATUS\tTIME\tPIXELS\tNOTES")
	for _, id := range ids {
		r := results[id]
		status, notes := "ok", ""
		if !r.Success {
			status, notes = "failed", r.Error
		} else if len(r.Warnings) > 0 {
			notes = r.Warnings[0]
		}
		if skipped, ok := r.Statistics["skipped"]; ok {
			status = fmt.Sprint("skipped: ", skipped)
		}
		pixels := r.Statistics["pixels_processed"]
		if pixels == nil {
			pixels = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%.2fms\t%v\t%s\n", id, status, r.ProcessingTimeMS, pixels, notes)
	}
	w.Flush()
}
