package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/kozaktomas/frame-redactor/internal/config"
	"github.com/kozaktomas/frame-redactor/internal/idmgmt"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var maskThresholdCmd = &cobra.Command{
	Use:   "threshold <mask>",
	Short: "Remove low-confidence or small identifiers",
	Long: `Remove identifiers whose confidence is below the detection threshold.
Identifiers without a confidence in the sidecar are kept. With --min-pixels
identifiers covering fewer pixels are removed as well.

Examples:
  frame-redactor mask threshold m.png --threshold 0.6 --output filtered.png
  frame-redactor mask threshold m.png --min-pixels 200 --in-place`,
	Args: cobra.ExactArgs(1),
	RunE: runMaskThreshold,
}

var maskSuggestCmd = &cobra.Command{
	Use:   "suggest <mask>",
	Short: "Suggest identifier pairs that look like one object",
	Args:  cobra.ExactArgs(1),
	RunE:  runMaskSuggest,
}

func init() {
	maskCmd.AddCommand(maskThresholdCmd)
	maskCmd.AddCommand(maskSuggestCmd)

	maskThresholdCmd.Flags().Float64("threshold", -1, "Detection threshold (defaults to DETECTION_THRESHOLD)")
	maskThresholdCmd.Flags().Int("min-pixels", -1, "Also remove identifiers with fewer pixels")
	addMaskOutputFlags(maskThresholdCmd)

	maskSuggestCmd.Flags().Float64("threshold", -1, "Minimum similarity score (defaults to MERGE_THRESHOLD)")
	maskSuggestCmd.Flags().Float64("max-distance", -1, "Maximum centroid distance (defaults to MAX_MERGE_DISTANCE)")
	maskSuggestCmd.Flags().Bool("json", false, "Output as JSON")
}

// thresholdManager builds a manager holding the configured settings.
func thresholdManager(cfg *config.Config, log *zap.Logger) (*idmgmt.ThresholdManager, error) {
	tm := idmgmt.NewThresholdManager(log)
	if err := tm.Restore(cfg.Thresholds, nil); err != nil {
		return nil, err
	}
	return tm, nil
}

func runMaskThreshold(cmd *cobra.Command, args []string) error {
	cfg, log, err := setup(cmd)
	if err != nil {
		return err
	}
	defer log.Sync()

	if n := mustGetInt(cmd, "min-pixels"); n >= 0 {
		cfg.Thresholds.MinPixelCount = n
	}
	tm, err := thresholdManager(cfg, log)
	if err != nil {
		return err
	}
	threshold := mustGetFloat64(cmd, "threshold")
	if threshold < 0 {
		threshold = cfg.Thresholds.DetectionThreshold
	}

	m, err := loadMaskArg(args)
	if err != nil {
		return err
	}
	out, err := tm.ApplyDetectionThreshold(m, nil, threshold)
	if err != nil {
		return err
	}
	fmt.Printf("Detection threshold %.2f: kept %d of %d identifiers\n", threshold, len(out.ObjectIDs), len(m.ObjectIDs))

	if cmd.Flags().Changed("min-pixels") {
		filtered, removed, err := tm.FilterSmallIDs(out)
		if err != nil {
			return err
		}
		fmt.Printf("Minimum %d pixels: removed %s\n", cfg.Thresholds.MinPixelCount, formatIDs(removed))
		out = filtered
	}
	return saveMaskOutput(cmd, args, out)
}

func runMaskSuggest(cmd *cobra.Command, args []string) error {
	cfg, log, err := setup(cmd)
	if err != nil {
		return err
	}
	defer log.Sync()

	if d := mustGetFloat64(cmd, "max-distance"); d > 0 {
		cfg.Thresholds.MaxMergeDistance = d
	}
	tm, err := thresholdManager(cfg, log)
	if err != nil {
		return err
	}
	threshold := mustGetFloat64(cmd, "threshold")
	if threshold < 0 {
		threshold = cfg.Thresholds.MergeThreshold
	}

	m, err := loadMaskArg(args)
	if err != nil {
		return err
	}
	candidates, err := tm.SuggestMergeCandidates(m, threshold)
	if err != nil {
		return err
	}
	if mustGetBool(cmd, "json") {
		return outputJSON(candidates)
	}
	if len(candidates) == 0 {
		fmt.Printf("No merge candidates scoring at least %.2f\n", threshold)
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID1\tID2\tSCORE\tDISTANCE\tSIZE RATIO\tREASON")
	for _, c := range candidates {
		fmt.Fprintf(w, "%d\t%d\t%.3f\t%.1f\t%.2f\t%s\n", c.ID1, c.ID2, c.Score, c.Distance, c.SizeRatio, c.Reason)
	}
	return w.Flush()
}
