package cmd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/kozaktomas/frame-redactor/internal/config"
	"github.com/kozaktomas/frame-redactor/internal/effect"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// addChainFlags registers the flags that select an effect chain.
func addChainFlags(cmd *cobra.Command) {
	cmd.Flags().String("chain", "", "Effect chain file (.yaml, .yml or .json)")
	cmd.Flags().String("preset", "", "Built-in effect chain preset")
}

// resolveChain returns the chain named by --chain or --preset and checks
// every effect against the registry.
func resolveChain(cmd *cobra.Command, cfg *config.Config, engine *effect.Engine) ([]effect.Config, error) {
	chainPath := mustGetString(cmd, "chain")
	preset := mustGetString(cmd, "preset")

	var chain []effect.Config
	switch {
	case chainPath != "" && preset != "":
		return nil, errors.New("--chain and --preset are mutually exclusive")
	case chainPath != "":
		c, err := config.LoadChainFile(chainPath)
		if err != nil {
			return nil, err
		}
		chain = c
	case preset != "":
		c, ok := cfg.Preset(preset)
		if !ok {
			return nil, fmt.Errorf("unknown preset %q (available: %s)", preset, strings.Join(cfg.PresetNames(), ", "))
		}
		chain = c
	default:
		return nil, errors.New("either --chain or --preset is required")
	}

	registry := engine.Registry()
	for _, c := range chain {
		if err := registry.Validate(c); err != nil {
			return nil, fmt.Errorf("effect %q: %w", c.ID, err)
		}
	}
	return chain, nil
}

// parseParams turns key=value pairs into effect parameters. Values are
// decoded as YAML scalars, so 8 is an int, 2.5 a float and high a string.
func parseParams(pairs []string) (map[string]any, error) {
	params := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, raw, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid parameter %q, expected key=value", pair)
		}
		var v any
		if err := yaml.Unmarshal([]byte(raw), &v); err != nil || v == nil {
			v = raw
		}
		params[strings.TrimSpace(key)] = v
	}
	return params, nil
}

func newEngine(cfg *config.Config, log *zap.Logger) *effect.Engine {
	engine := effect.NewEngine(effect.WithLogger(log))
	engine.SetGPUEnabled(cfg.Engine.GPUEnabled)
	return engine
}
