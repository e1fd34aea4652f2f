package cmd

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/kozaktomas/frame-redactor/internal/frame"
	"github.com/kozaktomas/frame-redactor/internal/idmgmt"
	"github.com/spf13/cobra"
)

var maskDeleteCmd = &cobra.Command{
	Use:   "delete <mask>",
	Short: "Delete identifiers from a mask",
	Long: `Delete identifiers from a mask. Pixels of deleted identifiers become
background and their metadata is dropped.

Examples:
  frame-redactor mask delete m.png --ids 3,7 --in-place
  frame-redactor mask delete m.png --range 10-20 --output trimmed.png
  frame-redactor mask delete m.png --class "license plate" --output out.png
  frame-redactor mask delete m.png --all --output empty.png`,
	Args: cobra.ExactArgs(1),
	RunE: runMaskDelete,
}

var maskMergeCmd = &cobra.Command{
	Use:   "merge <mask>",
	Short: "Merge identifiers into a target identifier",
	Args:  cobra.ExactArgs(1),
	RunE:  runMaskMerge,
}

var maskRenumberCmd = &cobra.Command{
	Use:   "renumber <mask>",
	Short: "Compact identifiers to 1..n",
	Args:  cobra.ExactArgs(1),
	RunE:  runMaskRenumber,
}

func init() {
	maskCmd.AddCommand(maskDeleteCmd)
	maskCmd.AddCommand(maskMergeCmd)
	maskCmd.AddCommand(maskRenumberCmd)

	maskDeleteCmd.Flags().IntSlice("ids", nil, "Identifiers to delete")
	maskDeleteCmd.Flags().String("range", "", "Inclusive identifier range lo-hi")
	maskDeleteCmd.Flags().String("class", "", "Delete every identifier of this class")
	maskDeleteCmd.Flags().Bool("all", false, "Delete every identifier")
	addMaskOutputFlags(maskDeleteCmd)

	maskMergeCmd.Flags().IntSlice("sources", nil, "Identifiers to merge (required)")
	maskMergeCmd.Flags().Int("target", 0, "Target identifier (required)")
	addMaskOutputFlags(maskMergeCmd)

	addMaskOutputFlags(maskRenumberCmd)
}

// parseRange parses "lo-hi" into its bounds.
func parseRange(s string) (int, int, error) {
	loStr, hiStr, ok := strings.Cut(s, "-")
	if !ok {
		return 0, 0, fmt.Errorf("invalid range %q, expected lo-hi", s)
	}
	lo, err := strconv.Atoi(strings.TrimSpace(loStr))
	if err != nil {
		return 0, 0, fmt.Errorf("invalid range start %q: %w", loStr, err)
	}
	hi, err := strconv.Atoi(strings.TrimSpace(hiStr))
	if err != nil {
		return 0, 0, fmt.Errorf("invalid range end %q: %w", hiStr, err)
	}
	return lo, hi, nil
}

func runMaskDelete(cmd *cobra.Command, args []string) error {
	_, log, err := setup(cmd)
	if err != nil {
		return err
	}
	defer log.Sync()

	ids := mustGetIntSlice(cmd, "ids")
	rng := mustGetString(cmd, "range")
	class := mustGetString(cmd, "class")
	all := mustGetBool(cmd, "all")

	selectors := 0
	for _, set := range []bool{len(ids) > 0, rng != "", class != "", all} {
		if set {
			selectors++
		}
	}
	if selectors != 1 {
		return errors.New("exactly one of --ids, --range, --class or --all is required")
	}

	m, err := loadMaskArg(args)
	if err != nil {
		return err
	}
	mg := idmgmt.NewManager(log)

	var out *frame.Mask
	switch {
	case len(ids) > 0:
		out, err = mg.DeleteIDs(m, ids)
	case rng != "":
		lo, hi, perr := parseRange(rng)
		if perr != nil {
			return perr
		}
		out, err = mg.DeleteRange(m, lo, hi)
	case class != "":
		out, err = mg.DeleteByClass(m, class)
	default:
		out, err = mg.DeleteAll(m)
	}
	if err != nil {
		return err
	}
	return saveMaskOutput(cmd, args, out)
}

func runMaskMerge(cmd *cobra.Command, args []string) error {
	_, log, err := setup(cmd)
	if err != nil {
		return err
	}
	defer log.Sync()

	sources := mustGetIntSlice(cmd, "sources")
	target := mustGetInt(cmd, "target")
	if len(sources) == 0 || target == 0 {
		return errors.New("--sources and --target are required")
	}

	m, err := loadMaskArg(args)
	if err != nil {
		return err
	}
	out, err := idmgmt.NewManager(log).MergeIDs(m, sources, target)
	if err != nil {
		return err
	}
	return saveMaskOutput(cmd, args, out)
}

func runMaskRenumber(cmd *cobra.Command, args []string) error {
	_, log, err := setup(cmd)
	if err != nil {
		return err
	}
	defer log.Sync()

	m, err := loadMaskArg(args)
	if err != nil {
		return err
	}
	out, err := idmgmt.NewManager(log).RenumberIDs(m)
	if err != nil {
		return err
	}
	return saveMaskOutput(cmd, args, out)
}
