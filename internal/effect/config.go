package effect

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"

	"gopkg.in/yaml.v3"
)

// Config is one entry of an effect chain. Configs are authored by callers and
// consumed read-only; the engine copies before rewriting anything.
type Config struct {
	Kind      Kind           `json:"kind" yaml:"kind"`
	ID        string         `json:"id" yaml:"id"`
	Enabled   bool           `json:"enabled" yaml:"enabled"`
	Params    map[string]any `json:"params" yaml:"params"`
	Intensity float64        `json:"intensity" yaml:"intensity"`
	BlendMode BlendMode      `json:"blend_mode" yaml:"blend_mode"`
	// TargetMasks restricts the effect to masks with these IDs. Nil means all masks.
	TargetMasks []int          `json:"target_masks,omitempty" yaml:"target_masks,omitempty"`
	CustomData  map[string]any `json:"custom_data,omitempty" yaml:"custom_data,omitempty"`
}

type rawConfig Config

func defaultRawConfig() rawConfig {
	return rawConfig{Enabled: true, Intensity: 1, BlendMode: BlendNormal}
}

// UnmarshalJSON applies enabled=true, intensity=1 and blend_mode=normal
// when those keys are absent.
func (c *Config) UnmarshalJSON(data []byte) error {
	raw := defaultRawConfig()
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*c = Config(raw)
	return nil
}

// UnmarshalYAML applies the same defaults as UnmarshalJSON.
func (c *Config) UnmarshalYAML(value *yaml.Node) error {
	raw := defaultRawConfig()
	if err := value.Decode(&raw); err != nil {
		return err
	}
	*c = Config(raw)
	return nil
}

// Clone returns a copy whose parameter map and target list can be modified freely.
func (c Config) Clone() Config {
	out := c
	out.Params = maps.Clone(c.Params)
	if out.Params == nil {
		out.Params = map[string]any{}
	}
	out.TargetMasks = slices.Clone(c.TargetMasks)
	return out
}

// blendMode returns the configured mode, defaulting to normal.
func (c Config) blendMode() BlendMode {
	if c.BlendMode == "" {
		return BlendNormal
	}
	return c.BlendMode
}

// Result describes one effect application. Results are never modified after they are returned.
type Result struct {
	Success          bool           `json:"success"`
	ProcessingTimeMS float64        `json:"processing_time_ms"`
	Error            string         `json:"error,omitempty"`
	Warnings         []string       `json:"warnings,omitempty"`
	Statistics       map[string]any `json:"statistics"`
	GPUUsed          bool           `json:"gpu_used"`
}

func failure(err error) Result {
	return Result{Success: false, Error: err.Error(), Statistics: map[string]any{}}
}

// MosaicShape is the cell shape of a mosaic.
type MosaicShape string

// Mosaic shapes. Hexagon renders as square.
const (
	ShapeSquare  MosaicShape = "square"
	ShapeHexagon MosaicShape = "hexagon"
	ShapeCircle  MosaicShape = "circle"
)

// Quality selects the blur algorithm and renderer shortcuts.
type Quality string

// Quality levels.
const (
	QualityLow    Quality = "low"
	QualityMedium Quality = "medium"
	QualityHigh   Quality = "high"
)

// Interpolation is the downsampling filter of pixelate.
type Interpolation string

// Interpolation filters.
const (
	InterpNearest Interpolation = "nearest"
	InterpLinear  Interpolation = "linear"
	InterpCubic   Interpolation = "cubic"
)

// MosaicParams are the typed mosaic parameters.
type MosaicParams struct {
	BlockSize int
	Shape     MosaicShape
}

// BlurParams are the typed blur parameters.
type BlurParams struct {
	Radius  float64
	Quality Quality
}

// PixelateParams are the typed pixelate parameters.
type PixelateParams struct {
	PixelSize     int
	Interpolation Interpolation
}

// ParseMosaicParams validates params and fills absent values with defaults.
func ParseMosaicParams(params map[string]any) (MosaicParams, error) {
	d := MosaicDefinition()
	if err := d.Validate(params); err != nil {
		return MosaicParams{}, err
	}
	return MosaicParams{
		BlockSize: intParam(d, params, "block_size"),
		Shape:     MosaicShape(stringParam(d, params, "shape")),
	}, nil
}

// ParseBlurParams validates params and fills absent values with defaults.
func ParseBlurParams(params map[string]any) (BlurParams, error) {
	d := BlurDefinition()
	if err := d.Validate(params); err != nil {
		return BlurParams{}, err
	}
	return BlurParams{
		Radius:  floatParam(d, params, "radius"),
		Quality: Quality(stringParam(d, params, "quality")),
	}, nil
}

// ParsePixelateParams validates params and fills absent values with defaults.
func ParsePixelateParams(params map[string]any) (PixelateParams, error) {
	d := PixelateDefinition()
	if err := d.Validate(params); err != nil {
		return PixelateParams{}, err
	}
	return PixelateParams{
		PixelSize:     intParam(d, params, "pixel_size"),
		Interpolation: Interpolation(stringParam(d, params, "interpolation")),
	}, nil
}

// lookup returns the configured value or the schema default.
func lookup(d Definition, params map[string]any, name string) any {
	if v, ok := params[name]; ok {
		return v
	}
	p, _ := d.Parameter(name)
	return p.Default
}

func intParam(d Definition, params map[string]any, name string) int {
	n, _ := toFloat(lookup(d, params, name))
	return int(n)
}

func floatParam(d Definition, params map[string]any, name string) float64 {
	n, _ := toFloat(lookup(d, params, name))
	return n
}

func stringParam(d Definition, params map[string]any, name string) string {
	s, _ := lookup(d, params, name).(string)
	return s
}

// toFloat accepts every numeric type JSON and YAML decoders produce.
func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

// String implements fmt.Stringer for log output.
func (c Config) String() string {
	return fmt.Sprintf("%s(%s)", c.Kind, c.ID)
}
