package effect

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"
)

var (
	// ErrUnknownKind is returned when no definition or implementation exists for a kind.
	ErrUnknownKind = errors.New("unknown effect kind")
	// ErrInvalidParameter is wrapped by every ValidationError.
	ErrInvalidParameter = errors.New("invalid effect parameter")
)

// Kind identifies an effect implementation.
type Kind string

// Built-in effect kinds.
const (
	KindMosaic   Kind = "mosaic"
	KindBlur     Kind = "blur"
	KindPixelate Kind = "pixelate"
)

// ParamType is the value type of a parameter.
type ParamType string

// Parameter types.
const (
	ParamInt    ParamType = "int"
	ParamFloat  ParamType = "float"
	ParamBool   ParamType = "bool"
	ParamChoice ParamType = "choice"
)

// BlendMode selects how effected pixels are combined with the original.
type BlendMode string

// Blend modes.
const (
	BlendNormal   BlendMode = "normal"
	BlendMultiply BlendMode = "multiply"
	BlendScreen   BlendMode = "screen"
	BlendOverlay  BlendMode = "overlay"
)

// AllBlendModes lists every supported blend mode.
var AllBlendModes = []BlendMode{BlendNormal, BlendMultiply, BlendScreen, BlendOverlay}

// Parameter describes one adjustable effect parameter.
type Parameter struct {
	Name        string    `json:"name" yaml:"name"`
	Type        ParamType `json:"type" yaml:"type"`
	Default     any       `json:"default" yaml:"default"`
	Min         *float64  `json:"min,omitempty" yaml:"min,omitempty"`
	Max         *float64  `json:"max,omitempty" yaml:"max,omitempty"`
	Step        *float64  `json:"step,omitempty" yaml:"step,omitempty"`
	Choices     []string  `json:"choices,omitempty" yaml:"choices,omitempty"`
	Unit        string    `json:"unit,omitempty" yaml:"unit,omitempty"`
	Description string    `json:"description,omitempty" yaml:"description,omitempty"`
	Advanced    bool      `json:"advanced,omitempty" yaml:"advanced,omitempty"`
}

// check validates a single value against the parameter schema.
func (p Parameter) check(v any) error {
	switch p.Type {
	case ParamInt:
		n, ok := toFloat(v)
		if !ok || n != math.Trunc(n) {
			return fmt.Errorf("must be an integer, got %v", v)
		}
		return p.checkRange(n)
	case ParamFloat:
		n, ok := toFloat(v)
		if !ok {
			return fmt.Errorf("must be a number, got %v", v)
		}
		return p.checkRange(n)
	case ParamBool:
		if _, ok := v.(bool); !ok {
			return fmt.Errorf("must be a boolean, got %v", v)
		}
	case ParamChoice:
		s, ok := v.(string)
		if !ok || !slices.Contains(p.Choices, s) {
			return fmt.Errorf("must be one of %s, got %v", strings.Join(p.Choices, ", "), v)
		}
	default:
		return fmt.Errorf("unsupported parameter type %q", p.Type)
	}
	return nil
}

func (p Parameter) checkRange(n float64) error {
	if p.Min != nil && n < *p.Min {
		return fmt.Errorf("%v is below minimum %v", n, *p.Min)
	}
	if p.Max != nil && n > *p.Max {
		return fmt.Errorf("%v is above maximum %v", n, *p.Max)
	}
	return nil
}

// Definition is the immutable schema of an effect kind.
type Definition struct {
	Kind             Kind        `json:"kind" yaml:"kind"`
	Name             string      `json:"name" yaml:"name"`
	Description      string      `json:"description" yaml:"description"`
	Parameters       []Parameter `json:"parameters" yaml:"parameters"`
	BlendModes       []BlendMode `json:"blend_modes" yaml:"blend_modes"`
	GPUAccelerated   bool        `json:"gpu_accelerated" yaml:"gpu_accelerated"`
	PerformanceLevel int         `json:"performance_level" yaml:"performance_level"`
}

// Parameter returns the schema entry named name.
func (d Definition) Parameter(name string) (Parameter, bool) {
	for _, p := range d.Parameters {
		if p.Name == name {
			return p, true
		}
	}
	return Parameter{}, false
}

// DefaultConfig returns an enabled config carrying every parameter at its default.
func (d Definition) DefaultConfig(id string) Config {
	params := make(map[string]any, len(d.Parameters))
	for _, p := range d.Parameters {
		params[p.Name] = p.Default
	}
	return Config{
		Kind:      d.Kind,
		ID:        id,
		Enabled:   true,
		Params:    params,
		Intensity: 1,
		BlendMode: BlendNormal,
	}
}

// Validate checks every parameter present in params. Absent parameters fall
// back to defaults and names unknown to the schema are ignored.
func (d Definition) Validate(params map[string]any) error {
	var errs []ParamError
	for _, p := range d.Parameters {
		v, ok := params[p.Name]
		if !ok {
			continue
		}
		if err := p.check(v); err != nil {
			errs = append(errs, ParamError{Param: p.Name, Message: err.Error()})
		}
	}
	if len(errs) > 0 {
		return &ValidationError{Kind: d.Kind, Errors: errs}
	}
	return nil
}

// ParamError is a validation failure for one parameter.
type ParamError struct {
	Param   string `json:"param"`
	Message string `json:"message"`
}

// ValidationError collects every parameter failure of one config.
type ValidationError struct {
	Kind   Kind         `json:"kind"`
	Errors []ParamError `json:"errors"`
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Errors))
	for _, pe := range e.Errors {
		parts = append(parts, pe.Param+": "+pe.Message)
	}
	return fmt.Sprintf("invalid %s config: %s", e.Kind, strings.Join(parts, "; "))
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidParameter
}

// Registry is a read-only catalog of effect definitions keyed by kind.
type Registry struct {
	defs  map[Kind]Definition
	order []Kind
}

// NewRegistry builds a registry from defs. Later duplicates replace earlier ones.
func NewRegistry(defs ...Definition) *Registry {
	r := &Registry{defs: make(map[Kind]Definition, len(defs))}
	for _, d := range defs {
		if _, ok := r.defs[d.Kind]; !ok {
			r.order = append(r.order, d.Kind)
		}
		r.defs[d.Kind] = d
	}
	return r
}

// DefaultRegistry returns a registry holding the built-in definitions.
func DefaultRegistry() *Registry {
	return NewRegistry(MosaicDefinition(), BlurDefinition(), PixelateDefinition())
}

// Definition looks up the definition for kind.
func (r *Registry) Definition(kind Kind) (Definition, error) {
	d, ok := r.defs[kind]
	if !ok {
		return Definition{}, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	return d, nil
}

// Definitions returns all definitions in registration order.
func (r *Registry) Definitions() []Definition {
	out := make([]Definition, 0, len(r.order))
	for _, k := range r.order {
		out = append(out, r.defs[k])
	}
	return out
}

// Validate checks a config against its kind's schema, including intensity
// and blend mode.
func (r *Registry) Validate(cfg Config) error {
	d, err := r.Definition(cfg.Kind)
	if err != nil {
		return err
	}
	return validateConfig(d, cfg)
}

func validateConfig(d Definition, cfg Config) error {
	var errs []ParamError
	if err := d.Validate(cfg.Params); err != nil {
		var ve *ValidationError
		if errors.As(err, &ve) {
			errs = append(errs, ve.Errors...)
		}
	}
	if cfg.Intensity < 0 || cfg.Intensity > 1 || math.IsNaN(cfg.Intensity) {
		errs = append(errs, ParamError{Param: "intensity", Message: fmt.Sprintf("%v is outside [0, 1]", cfg.Intensity)})
	}
	if cfg.BlendMode != "" && !slices.Contains(d.BlendModes, cfg.BlendMode) {
		errs = append(errs, ParamError{Param: "blend_mode", Message: fmt.Sprintf("unsupported blend mode %q", cfg.BlendMode)})
	}
	if len(errs) > 0 {
		return &ValidationError{Kind: d.Kind, Errors: errs}
	}
	return nil
}

func ptr(v float64) *float64 { return &v }

// MosaicDefinition is the schema of the mosaic effect.
func MosaicDefinition() Definition {
	return Definition{
		Kind:        KindMosaic,
		Name:        "Mosaic",
		Description: "Replaces the region with flat blocks of its mean color",
		Parameters: []Parameter{
			{
				Name: "block_size", Type: ParamInt, Default: 16,
				Min: ptr(4), Max: ptr(64), Step: ptr(2), Unit: "px",
				Description: "Mosaic block size",
			},
			{
				Name: "shape", Type: ParamChoice, Default: string(ShapeSquare),
				Choices:     []string{string(ShapeSquare), string(ShapeHexagon), string(ShapeCircle)},
				Description: "Mosaic block shape",
			},
		},
		BlendModes:       AllBlendModes,
		GPUAccelerated:   true,
		PerformanceLevel: 1,
	}
}

// BlurDefinition is the schema of the blur effect.
func BlurDefinition() Definition {
	return Definition{
		Kind:        KindBlur,
		Name:        "Blur",
		Description: "Blurs the region",
		Parameters: []Parameter{
			{
				Name: "radius", Type: ParamFloat, Default: 10.0,
				Min: ptr(0.5), Max: ptr(50), Step: ptr(0.5), Unit: "px",
				Description: "Blur radius",
			},
			{
				Name: "quality", Type: ParamChoice, Default: string(QualityHigh),
				Choices:     []string{string(QualityLow), string(QualityMedium), string(QualityHigh)},
				Description: "Blur quality",
			},
		},
		BlendModes:       AllBlendModes,
		GPUAccelerated:   true,
		PerformanceLevel: 2,
	}
}

// PixelateDefinition is the schema of the pixelate effect.
func PixelateDefinition() Definition {
	return Definition{
		Kind:        KindPixelate,
		Name:        "Pixelate",
		Description: "Downsamples the region into coarse pixels",
		Parameters: []Parameter{
			{
				Name: "pixel_size", Type: ParamInt, Default: 8,
				Min: ptr(2), Max: ptr(32), Step: ptr(1), Unit: "px",
				Description: "Output pixel size",
			},
			{
				Name: "interpolation", Type: ParamChoice, Default: string(InterpNearest),
				Choices:     []string{string(InterpNearest), string(InterpLinear), string(InterpCubic)},
				Description: "Downsampling interpolation",
				Advanced:    true,
			},
		},
		BlendModes:       AllBlendModes,
		GPUAccelerated:   true,
		PerformanceLevel: 1,
	}
}
