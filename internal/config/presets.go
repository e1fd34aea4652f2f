package config

import (
	_ "embed"
	"slices"

	"github.com/kozaktomas/frame-redactor/internal/effect"
	"gopkg.in/yaml.v3"
)

//go:embed presets.yaml
var presetsYAML []byte

// Preset is a named, ready-made effect chain.
type Preset struct {
	Name        string          `yaml:"-"`
	Description string          `yaml:"description"`
	Effects     []effect.Config `yaml:"effects"`
}

type presetsFile struct {
	Presets map[string]Preset `yaml:"presets"`
}

func builtinPresets() map[string]Preset {
	var f presetsFile
	if err := yaml.Unmarshal(presetsYAML, &f); err != nil {
		// This is an embedded file so this error should never happen in practice
		panic("failed to unmarshal embedded presets.yaml: " + err.Error())
	}
	for name, p := range f.Presets {
		p.Name = name
		f.Presets[name] = p
	}
	return f.Presets
}

// Preset returns a copy of the named chain that the caller may modify.
func (c *Config) Preset(name string) ([]effect.Config, bool) {
	p, ok := c.Presets[name]
	if !ok {
		return nil, false
	}
	out := make([]effect.Config, len(p.Effects))
	for i, e := range p.Effects {
		out[i] = e.Clone()
	}
	return out, true
}

// PresetNames returns the preset names in sorted order.
func (c *Config) PresetNames() []string {
	names := make([]string, 0, len(c.Presets))
	for name := range c.Presets {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
