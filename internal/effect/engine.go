package effect

import (
	"fmt"
	"image"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kozaktomas/frame-redactor/internal/frame"
	"go.uber.org/zap"
)

// TotalResultKey is the result map entry aggregating a whole chain run.
const TotalResultKey = "_total"

// Effect is an implementation of one effect kind.
type Effect interface {
	Kind() Kind
	Definition() Definition
	Validate(cfg Config) error
	// Apply transforms f inside the non-zero pixels of m. It never modifies f.
	Apply(f *frame.Frame, m *image.Gray, cfg Config, gpuAvailable bool) (*frame.Frame, Result)
	// EstimatePerformance returns an approximate cost in milliseconds for UI feedback.
	EstimatePerformance(width, height int, cfg Config) float64
}

// Engine applies ordered effect chains to frames. Lookups read an immutable
// snapshot of the registry; only registration takes the lock.
type Engine struct {
	mu      sync.Mutex
	effects atomic.Pointer[map[Kind]Effect]
	order   atomic.Pointer[[]Kind]
	gpu     atomic.Bool
	logger  *zap.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithEffects registers effects instead of the built-in set.
func WithEffects(effects ...Effect) Option {
	return func(e *Engine) {
		for _, fx := range effects {
			e.Register(fx)
		}
	}
}

// NewEngine creates an engine with the built-in mosaic, blur and pixelate effects.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{logger: zap.NewNop()}
	empty := map[Kind]Effect{}
	e.effects.Store(&empty)
	e.order.Store(&[]Kind{})

	custom := false
	for _, opt := range opts {
		before := len(*e.effects.Load())
		opt(e)
		if len(*e.effects.Load()) != before {
			custom = true
		}
	}
	if !custom {
		e.Register(NewMosaic())
		e.Register(NewBlur())
		e.Register(NewPixelate())
	}
	return e
}

// Register adds or replaces the implementation for fx.Kind().
func (e *Engine) Register(fx Effect) {
	e.mu.Lock()
	defer e.mu.Unlock()

	cur := *e.effects.Load()
	next := make(map[Kind]Effect, len(cur)+1)
	for k, v := range cur {
		next[k] = v
	}
	next[fx.Kind()] = fx
	order := *e.order.Load()
	if _, ok := cur[fx.Kind()]; !ok {
		order = append(slices.Clone(order), fx.Kind())
		e.order.Store(&order)
	}
	e.effects.Store(&next)
	e.logger.Info("registered effect", zap.String("kind", string(fx.Kind())))
}

// Effect returns the implementation for kind.
func (e *Engine) Effect(kind Kind) (Effect, bool) {
	fx, ok := (*e.effects.Load())[kind]
	return fx, ok
}

// Definitions returns the definitions of every registered effect.
func (e *Engine) Definitions() []Definition {
	effects := *e.effects.Load()
	order := *e.order.Load()
	defs := make([]Definition, 0, len(order))
	for _, k := range order {
		defs = append(defs, effects[k].Definition())
	}
	return defs
}

// Registry returns a definition registry snapshot of the registered effects.
func (e *Engine) Registry() *Registry {
	return NewRegistry(e.Definitions()...)
}

// SetGPUEnabled toggles the capability flag passed to effects.
func (e *Engine) SetGPUEnabled(enabled bool) {
	e.gpu.Store(enabled)
	e.logger.Info("gpu acceleration toggled", zap.Bool("enabled", enabled))
}

// GPUAvailable reports the capability flag.
func (e *Engine) GPUAvailable() bool {
	return e.gpu.Load()
}

// Estimate returns the estimated cost of a config at the given resolution.
func (e *Engine) Estimate(width, height int, cfg Config) (float64, error) {
	fx, ok := e.Effect(cfg.Kind)
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownKind, cfg.Kind)
	}
	return fx.EstimatePerformance(width, height, cfg), nil
}

// ApplyEffects runs the enabled configs in order, each on the previous output.
// Failures of a single effect are recorded in its Result and do not stop the
// chain. With no enabled config the input frame and an empty map are returned.
// Otherwise the map also holds a TotalResultKey entry.
func (e *Engine) ApplyEffects(f *frame.Frame, masks []*frame.Mask, configs []Config, preview bool) (*frame.Frame, map[string]Result) {
	start := time.Now()
	results := map[string]Result{}

	active := make([]Config, 0, len(configs))
	for _, c := range configs {
		if c.Enabled {
			active = append(active, c)
		}
	}
	if len(active) == 0 {
		return f, results
	}
	if preview {
		for i := range active {
			active[i] = PreviewConfig(active[i])
		}
	}

	gpu := e.gpu.Load()
	work := f
	for _, cfg := range active {
		targets, warnings := selectTargets(f, masks, cfg.TargetMasks)
		if len(targets) == 0 {
			e.logger.Debug("no target masks for effect", zap.String("effect_id", cfg.ID))
			results[cfg.ID] = Result{
				Success:    true,
				Warnings:   warnings,
				Statistics: map[string]any{"skipped": "no_target_masks"},
			}
			continue
		}

		fx, ok := e.Effect(cfg.Kind)
		if !ok {
			e.logger.Warn("effect not registered", zap.String("kind", string(cfg.Kind)), zap.String("effect_id", cfg.ID))
			results[cfg.ID] = Result{
				Success:    false,
				Error:      fmt.Sprintf("effect kind %q is not registered", cfg.Kind),
				Warnings:   warnings,
				Statistics: map[string]any{},
			}
			continue
		}

		out, res := fx.Apply(work, combineMasks(targets), cfg, gpu)
		if res.Success && out != nil {
			work = out
		} else {
			e.logger.Warn("effect failed",
				zap.String("effect_id", cfg.ID),
				zap.String("kind", string(cfg.Kind)),
				zap.String("error", res.Error))
		}
		if len(warnings) > 0 {
			res.Warnings = append(slices.Clone(res.Warnings), warnings...)
		}
		results[cfg.ID] = res
	}

	applied := 0
	for _, r := range results {
		if r.Success {
			applied++
		}
	}
	results[TotalResultKey] = Result{
		Success:          true,
		ProcessingTimeMS: elapsedMS(start),
		Statistics: map[string]any{
			"effects_applied": applied,
			"preview_mode":    preview,
		},
	}
	return work, results
}

// PreviewConfig returns a cheaper copy of cfg for interactive previews:
// mosaic block_size doubles up to 32, blur drops to low quality with radius
// at most 10, pixelate pixel_size doubles up to 16 with nearest interpolation.
// cfg itself is not modified.
func PreviewConfig(cfg Config) Config {
	out := cfg.Clone()
	switch cfg.Kind {
	case KindMosaic:
		bs, _ := toFloat(lookup(MosaicDefinition(), out.Params, "block_size"))
		out.Params["block_size"] = min(32, int(bs)*2)
	case KindBlur:
		r, _ := toFloat(lookup(BlurDefinition(), out.Params, "radius"))
		out.Params["quality"] = string(QualityLow)
		out.Params["radius"] = min(10.0, r)
	case KindPixelate:
		ps, _ := toFloat(lookup(PixelateDefinition(), out.Params, "pixel_size"))
		out.Params["pixel_size"] = min(16, int(ps)*2)
		out.Params["interpolation"] = string(InterpNearest)
	}
	return out
}

// selectTargets picks the masks named by ids (all masks when ids is nil).
// Masks that do not match the frame size are dropped with a warning.
func selectTargets(f *frame.Frame, masks []*frame.Mask, ids []int) ([]*frame.Mask, []string) {
	var out []*frame.Mask
	var warnings []string
	for _, m := range masks {
		if m == nil {
			continue
		}
		if ids != nil && !slices.Contains(ids, m.ID) {
			continue
		}
		if err := m.CheckSize(f); err != nil || len(m.Data) != m.Width*m.Height {
			warnings = append(warnings, fmt.Sprintf("mask %d ignored: size does not match frame", m.ID))
			continue
		}
		out = append(out, m)
	}
	return out, warnings
}

// combineMasks unions mask buffers by per-pixel maximum.
func combineMasks(masks []*frame.Mask) *image.Gray {
	first := masks[0]
	g := image.NewGray(image.Rect(0, 0, first.Width, first.Height))
	copy(g.Pix, first.Data)
	for _, m := range masks[1:] {
		for i, v := range m.Data {
			if v > g.Pix[i] {
				g.Pix[i] = v
			}
		}
	}
	return g
}
