package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"text/tabwriter"

	"github.com/kozaktomas/frame-redactor/internal/frame"
	"github.com/kozaktomas/frame-redactor/internal/idmgmt"
	"github.com/kozaktomas/frame-redactor/internal/mask"
	"github.com/kozaktomas/frame-redactor/internal/media"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var maskCmd = &cobra.Command{
	Use:   "mask",
	Short: "Inspect and edit object masks",
	Long: `Inspect and edit identifier masks. A mask is an 8-bit grayscale image where
each pixel holds an object identifier (0 is background). Metadata such as
classes and confidences lives in a YAML sidecar next to the image.`,
}

var maskStatsCmd = &cobra.Command{
	Use:   "stats <mask>",
	Short: "Show per-identifier statistics",
	Args:  cobra.ExactArgs(1),
	RunE:  runMaskStats,
}

var maskBBoxCmd = &cobra.Command{
	Use:   "bbox <mask>",
	Short: "Show the bounding box of the largest region of each identifier",
	Args:  cobra.ExactArgs(1),
	RunE:  runMaskBBox,
}

var maskSplitCmd = &cobra.Command{
	Use:   "split <mask>",
	Short: "Write one mask per identifier",
	Long: `Write one mask per identifier into the output directory as
<name>_<id>.png, each with its own sidecar.`,
	Args: cobra.ExactArgs(1),
	RunE: runMaskSplit,
}

func init() {
	rootCmd.AddCommand(maskCmd)
	maskCmd.AddCommand(maskStatsCmd)
	maskCmd.AddCommand(maskBBoxCmd)
	maskCmd.AddCommand(maskSplitCmd)

	maskStatsCmd.Flags().Bool("json", false, "Output as JSON")

	maskBBoxCmd.Flags().Int("id", 0, "Only this identifier (0 means all)")
	maskBBoxCmd.Flags().Bool("json", false, "Output as JSON")

	maskSplitCmd.Flags().String("output", "", "Output directory (required)")
}

// loadMaskArg loads the mask named by the first positional argument.
func loadMaskArg(args []string) (*frame.Mask, error) {
	m, err := media.LoadMask(args[0])
	if err != nil {
		return nil, fmt.Errorf("failed to load mask %s: %w", args[0], err)
	}
	return m, nil
}

// saveMaskOutput writes m to the --output flag, or back over the input when
// --in-place is set.
func saveMaskOutput(cmd *cobra.Command, args []string, m *frame.Mask) error {
	output := mustGetString(cmd, "output")
	if output == "" {
		if !mustGetBool(cmd, "in-place") {
			return errors.New("--output or --in-place is required")
		}
		output = args[0]
	}
	if err := media.SaveMask(output, m); err != nil {
		return err
	}
	fmt.Printf("Wrote %s (ids: %s)\n", output, formatIDs(m.ObjectIDs))
	return nil
}

// addMaskOutputFlags registers the output flags of mask editing commands.
func addMaskOutputFlags(cmd *cobra.Command) {
	cmd.Flags().String("output", "", "Output mask image")
	cmd.Flags().Bool("in-place", false, "Overwrite the input mask")
}

func formatIDs(ids []int) string {
	if len(ids) == 0 {
		return "none"
	}
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = fmt.Sprint(id)
	}
	return strings.Join(parts, ",")
}

func runMaskStats(cmd *cobra.Command, args []string) error {
	_, log, err := setup(cmd)
	if err != nil {
		return err
	}
	defer log.Sync()

	m, err := loadMaskArg(args)
	if err != nil {
		return err
	}
	stats, err := idmgmt.NewManager(log).Statistics(m)
	if err != nil {
		return err
	}

	ids := make([]int, 0, len(stats))
	for id := range stats {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	if mustGetBool(cmd, "json") {
		out := make([]idmgmt.IDStatistics, 0, len(ids))
		for _, id := range ids {
			out = append(out, stats[id])
		}
		return outputJSON(out)
	}

	fmt.Printf("Mask %dx%d, %d identifiers\n\n", m.Width, m.Height, len(ids))
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tCLASS\tPIXELS\tAREA\tBBOX\tCENTROID\tCONFIDENCE")
	fmt.Fprintln(w, "--\t-----\t------\t----\t----\t--------\t----------")
	for _, id := range ids {
		s := stats[id]
		conf := "-"
		if s.Confidence != nil {
			conf = fmt.Sprintf("%.2f", *s.Confidence)
		}
		fmt.Fprintf(w, "%d\t%s\t%d\t%.2f%%\t%d,%d-%d,%d\t%.1f,%.1f\t%s\n",
			id, s.Class, s.PixelCount, s.AreaRatio*100,
			s.BBox[0], s.BBox[1], s.BBox[2], s.BBox[3],
			s.Centroid[0], s.Centroid[1], conf)
	}
	return w.Flush()
}

func runMaskBBox(cmd *cobra.Command, args []string) error {
	_, log, err := setup(cmd)
	if err != nil {
		return err
	}
	defer log.Sync()

	m, err := loadMaskArg(args)
	if err != nil {
		return err
	}
	boxes, err := mask.NewProcessor(log).BoundingBoxes(m, mustGetInt(cmd, "id"))
	if err != nil {
		return err
	}
	if mustGetBool(cmd, "json") {
		return outputJSON(boxes)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tX\tY\tWIDTH\tHEIGHT")
	for _, b := range boxes {
		fmt.Fprintf(w, "%d\t%d\t%d\t%d\t%d\n", b.ID, b.X, b.Y, b.Width, b.Height)
	}
	return w.Flush()
}

func runMaskSplit(cmd *cobra.Command, args []string) error {
	_, log, err := setup(cmd)
	if err != nil {
		return err
	}
	defer log.Sync()

	outDir := mustGetString(cmd, "output")
	if outDir == "" {
		return errors.New("--output is required")
	}
	m, err := loadMaskArg(args)
	if err != nil {
		return err
	}
	parts, err := mask.NewProcessor(log).SplitByID(m)
	if err != nil {
		return err
	}

	stem := strings.TrimSuffix(filepath.Base(args[0]), filepath.Ext(args[0]))
	for _, id := range m.ObjectIDs {
		path := filepath.Join(outDir, fmt.Sprintf("%s_%d.png", stem, id))
		if err := media.SaveMask(path, parts[id]); err != nil {
			return err
		}
		log.Debug("mask part written", zap.Int("id", id), zap.String("path", path))
	}
	fmt.Printf("Wrote %d masks to %s\n", len(parts), outDir)
	return nil
}
