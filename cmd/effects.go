package cmd

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var effectsCmd = &cobra.Command{
	Use:   "effects",
	Short: "Inspect the registered effects",
}

var effectsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List effects and their parameters",
	RunE:  runEffectsList,
}

var effectsEstimateCmd = &cobra.Command{
	Use:   "estimate",
	Short: "Estimate the processing time of an effect chain",
	Long: `Estimate the processing time of every enabled effect of a chain at a given
resolution.

Examples:
  frame-redactor effects estimate --preset anonymize --width 1920 --height 1080
  frame-redactor effects estimate --chain chain.yaml --width 3840 --height 2160 --json`,
	RunE: runEffectsEstimate,
}

func init() {
	rootCmd.AddCommand(effectsCmd)
	effectsCmd.AddCommand(effectsListCmd)
	effectsCmd.AddCommand(effectsEstimateCmd)

	effectsListCmd.Flags().Bool("json", false, "Output as JSON")

	addChainFlags(effectsEstimateCmd)
	effectsEstimateCmd.Flags().Int("width", 1920, "Frame width")
	effectsEstimateCmd.Flags().Int("height", 1080, "Frame height")
	effectsEstimateCmd.Flags().Bool("json", false, "Output as JSON")
}

func runEffectsList(cmd *cobra.Command, args []string) error {
	cfg, log, err := setup(cmd)
	if err != nil {
		return err
	}
	defer log.Sync()

	defs := newEngine(cfg, log).Definitions()
	if mustGetBool(cmd, "json") {
		return outputJSON(defs)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "KIND\tNAME\tPARAMETER\tTYPE\tDEFAULT\tRANGE")
	fmt.Fprintln(w, "----\t----\t---------\t----\t-------\t-----")
	for _, d := range defs {
		for i, p := range d.Parameters {
			kind, name := "", ""
			if i == 0 {
				kind, name = string(d.Kind), d.Name
			}
			rng := strings.Join(p.Choices, "|")
			if p.Min != nil && p.Max != nil {
				rng = fmt.Sprintf("%v..%v", *p.Min, *p.Max)
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%v\t%s\n", kind, name, p.Name, p.Type, p.Default, rng)
		}
	}
	return w.Flush()
}

// EstimateResult is the JSON output of effects estimate
type EstimateResult struct {
	Width     int                `json:"width"`
	Height    int                `json:"height"`
	Estimates map[string]float64 `json:"estimates_ms"`
	TotalMS   float64            `json:"total_ms"`
}

func runEffectsEstimate(cmd *cobra.Command, args []string) error {
	cfg, log, err := setup(cmd)
	if err != nil {
		return err
	}
	defer log.Sync()

	width := mustGetInt(cmd, "width")
	height := mustGetInt(cmd, "height")
	if width <= 0 || height <= 0 {
		return fmt.Errorf("width and height must be positive, got %dx%d", width, height)
	}

	engine := newEngine(cfg, log)
	chain, err := resolveChain(cmd, cfg, engine)
	if err != nil {
		return err
	}

	result := EstimateResult{Width: width, Height: height, Estimates: map[string]float64{}}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	jsonOutput := mustGetBool(cmd, "json")
	if !jsonOutput {
		fmt.Fprintln(w, "ID\tKIND\tESTIMATE")
	}
	for _, c := range chain {
		if !c.Enabled {
			continue
		}
		ms, err := engine.Estimate(width, height, c)
		if err != nil {
			return err
		}
		result.Estimates[c.ID] = ms
		result.TotalMS += ms
		if !jsonOutput {
			fmt.Fprintf(w, "%s\t%s\t%.2f ms\n", c.ID, c.Kind, ms)
		}
	}

	if jsonOutput {
		return outputJSON(result)
	}
	fmt.Fprintf(w, "total\t\t%.2f ms\n", result.TotalMS)
	return w.Flush()
}
