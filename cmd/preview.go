package cmd

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/kozaktomas/frame-redactor/internal/constants"
	"github.com/kozaktomas/frame-redactor/internal/effect"
	"github.com/kozaktomas/frame-redactor/internal/media"
	"github.com/spf13/cobra"
)

var previewCmd = &cobra.Command{
	Use:   "preview",
	Short: "Render effect previews, comparisons and thumbnails",
	Long: `Render a scaled-down preview of one effect on a frame, a before/after
comparison, or thumbnails over a generated test pattern.

Examples:
  # Letterboxed 320x240 preview
  frame-redactor preview --frame f.png --mask m.png --kind blur --param radius=12 --output p.png

  # Side-by-side comparison split diagonally
  frame-redactor preview --frame f.png --mask m.png --kind mosaic --split diagonal --output cmp.png

  # Thumbnail of one effect over the test pattern
  frame-redactor preview --kind pixelate --param pixel_size=6 --output thumb.png

  # Thumbnails of every registered effect into a directory
  frame-redactor preview --all --output ./thumbs`,
	RunE: runPreview,
}

func init() {
	rootCmd.AddCommand(previewCmd)

	previewCmd.Flags().String("frame", "", "Input frame; without it a thumbnail is rendered")
	previewCmd.Flags().String("mask", "", "Mask image (required with --frame)")
	previewCmd.Flags().String("kind", "", "Effect kind (mosaic, blur, pixelate)")
	previewCmd.Flags().StringSlice("param", nil, "Effect parameter as key=value; repeatable")
	previewCmd.Flags().Float64("intensity", 1, "Effect intensity (0-1)")
	previewCmd.Flags().Int("width", 0, "Output width (defaults to 320 for previews, 128 for thumbnails)")
	previewCmd.Flags().Int("height", 0, "Output height (defaults to 240 for previews, 128 for thumbnails)")
	previewCmd.Flags().String("split", "", "Render a before/after comparison (vertical, horizontal, diagonal)")
	previewCmd.Flags().Bool("all", false, "Render a thumbnail of every registered effect into --output")
	previewCmd.Flags().String("output", "", "Output image, or directory with --all (required)")
}

func runPreview(cmd *cobra.Command, args []string) error {
	cfg, log, err := setup(cmd)
	if err != nil {
		return err
	}
	defer log.Sync()

	output := mustGetString(cmd, "output")
	if output == "" {
		return errors.New("--output is required")
	}
	engine := newEngine(cfg, log)
	previewer := effect.NewPreviewer(engine, log)
	width, height := mustGetInt(cmd, "width"), mustGetInt(cmd, "height")

	if mustGetBool(cmd, "all") {
		return renderAllThumbnails(cmd.Context(), previewer, engine, cfg.Engine.Workers, output, width, height)
	}

	kind := effect.Kind(mustGetString(cmd, "kind"))
	if kind == "" {
		return errors.New("--kind is required")
	}
	def, err := engine.Registry().Definition(kind)
	if err != nil {
		return err
	}
	params, err := parseParams(mustGetStringSlice(cmd, "param"))
	if err != nil {
		return err
	}

	framePath := mustGetString(cmd, "frame")
	if framePath == "" {
		thumb, err := previewer.Thumbnail(kind, params, orDefault(width, constants.DefaultThumbnailSize), orDefault(height, constants.DefaultThumbnailSize))
		if err != nil {
			return err
		}
		return saveAndReport(output, media.SaveFrame(output, thumb, cfg.Engine.JPEGQuality))
	}

	maskPath := mustGetString(cmd, "mask")
	if maskPath == "" {
		return errors.New("--mask is required with --frame")
	}
	f, err := media.LoadFrame(framePath)
	if err != nil {
		return err
	}
	m, err := media.LoadMask(maskPath)
	if err != nil {
		return err
	}

	c := def.DefaultConfig("preview")
	for k, v := range params {
		c.Params[k] = v
	}
	c.Intensity = mustGetFloat64(cmd, "intensity")
	if err := engine.Registry().Validate(c); err != nil {
		return err
	}

	if split := effect.SplitType(mustGetString(cmd, "split")); split != "" {
		switch split {
		case effect.SplitVertical, effect.SplitHorizontal, effect.SplitDiagonal:
		default:
			return fmt.Errorf("unknown split %q (must be: vertical, horizontal, diagonal)", split)
		}
		out, err := previewer.BeforeAfter(f, m, c, split)
		if err != nil {
			return err
		}
		return saveAndReport(output, media.SaveFrame(output, out, cfg.Engine.JPEGQuality))
	}

	out, res, err := previewer.Preview(f, m, c, orDefault(width, constants.DefaultPreviewWidth), orDefault(height, constants.DefaultPreviewHeight))
	if err != nil {
		return err
	}
	if !res.Success {
		fmt.Printf("Warning: effect failed: %s\n", res.Error)
	}
	return saveAndReport(output, media.SaveFrame(output, out, cfg.Engine.JPEGQuality))
}

// renderAllThumbnails writes <kind>.png for every registered effect into dir.
func renderAllThumbnails(ctx context.Context, previewer *effect.Previewer, engine *effect.Engine, workers int, dir string, width, height int) error {
	defs := engine.Definitions()
	reqs := make([]effect.ThumbnailRequest, len(defs))
	for i, d := range defs {
		reqs[i] = effect.ThumbnailRequest{Kind: d.Kind, Width: orDefault(width, constants.DefaultThumbnailSize), Height: orDefault(height, constants.DefaultThumbnailSize)}
	}
	if ctx == nil {
		ctx = context.Background()
	}
	thumbs, err := previewer.Thumbnails(ctx, reqs, workers)
	if err != nil {
		return err
	}
	for i, thumb := range thumbs {
		path := filepath.Join(dir, string(reqs[i].Kind)+".png")
		if err := saveAndReport(path, media.SaveFrame(path, thumb, 0)); err != nil {
			return err
		}
	}
	return nil
}

func saveAndReport(path string, err error) error {
	if err != nil {
		return err
	}
	fmt.Printf("Wrote %s\n", path)
	return nil
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
