package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/kozaktomas/frame-redactor/internal/effect"
	"gopkg.in/yaml.v3"
)

// ChainFile is an effect chain authored outside the program.
type ChainFile struct {
	Effects []effect.Config `json:"effects" yaml:"effects"`
}

// LoadChainFile reads an effect chain from a .yaml, .yml or .json file.
// Absent enabled, intensity and blend_mode keys take their defaults, and
// effects without an id get a generated one.
func LoadChainFile(path string) ([]effect.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read chain file: %w", err)
	}
	return ParseChain(data, filepath.Ext(path))
}

// ParseChain decodes a chain document. ext selects the format (".json" or
// YAML for anything else).
func ParseChain(data []byte, ext string) ([]effect.Config, error) {
	var chain ChainFile
	switch strings.ToLower(ext) {
	case ".json":
		if err := json.Unmarshal(data, &chain); err != nil {
			return nil, fmt.Errorf("failed to parse chain JSON: %w", err)
		}
	default:
		if err := yaml.Unmarshal(data, &chain); err != nil {
			return nil, fmt.Errorf("failed to parse chain YAML: %w", err)
		}
	}

	for i := range chain.Effects {
		if chain.Effects[i].Kind == "" {
			return nil, fmt.Errorf("effect %d: kind is required", i)
		}
		if chain.Effects[i].ID == "" {
			chain.Effects[i].ID = uuid.NewString()
		}
	}
	return chain.Effects, nil
}
