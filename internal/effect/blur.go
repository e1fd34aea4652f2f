package effect

import (
	"image"
	"time"

	"github.com/disintegration/gift"
	"github.com/kozaktomas/frame-redactor/internal/frame"
)

// Blur smooths the masked region with a box or Gaussian filter.
type Blur struct {
	def Definition
}

// NewBlur creates the blur effect.
func NewBlur() *Blur {
	return &Blur{def: BlurDefinition()}
}

func (e *Blur) Kind() Kind             { return KindBlur }
func (e *Blur) Definition() Definition { return e.def }

func (e *Blur) Validate(cfg Config) error {
	return validateConfig(e.def, cfg)
}

func (e *Blur) Apply(f *frame.Frame, m *image.Gray, cfg Config, gpuAvailable bool) (*frame.Frame, Result) {
	start := time.Now()
	if err := e.Validate(cfg); err != nil {
		return f, failure(err)
	}
	p, err := ParseBlurParams(cfg.Params)
	if err != nil {
		return f, failure(err)
	}

	op := regionOp{
		pad:       int(p.Radius * 3),
		transform: func(crop *frame.Frame) *frame.Frame { return blurFrame(crop, p) },
	}
	if p.Quality == QualityMedium || p.Quality == QualityHigh {
		op.smoothSigma = float64(max(1, int(p.Radius/4)))
	}
	out, n, err := applyRegion(f, m, cfg.Intensity, cfg.blendMode(), op)
	if err != nil {
		return f, failure(err)
	}
	if n == 0 {
		return out, Result{Success: true, Statistics: map[string]any{"pixels_processed": 0}}
	}
	return out, Result{
		Success:          true,
		ProcessingTimeMS: elapsedMS(start),
		Statistics: map[string]any{
			"pixels_processed": n,
			"radius":           p.Radius,
			"quality":          string(p.Quality),
			"intensity":        cfg.Intensity,
		},
	}
}

// EstimatePerformance scales with area and radius; high quality runs three passes.
func (e *Blur) EstimatePerformance(width, height int, cfg Config) float64 {
	p, err := ParseBlurParams(cfg.Params)
	if err != nil {
		p, _ = ParseBlurParams(nil)
	}
	pixelFactor := float64(width*height) / (1920 * 1080)
	qualityFactor := 1.0
	switch p.Quality {
	case QualityLow:
		qualityFactor = 0.3
	case QualityHigh:
		qualityFactor = 3.0
	}
	return 0.5 * pixelFactor * (p.Radius / 10) * qualityFactor
}

// blurFilters returns the gift filter chain for p.
func blurFilters(p BlurParams) []gift.Filter {
	switch p.Quality {
	case QualityLow:
		k := int(p.Radius*2) + 1
		if k%2 == 0 {
			k++
		}
		return []gift.Filter{gift.Mean(k, false)}
	case QualityMedium:
		return []gift.Filter{gift.GaussianBlur(float32(p.Radius))}
	default:
		const steps = 3
		filters := make([]gift.Filter, 0, steps)
		for i := 1; i <= steps; i++ {
			filters = append(filters, gift.GaussianBlur(float32(p.Radius*float64(i)/steps)))
		}
		return filters
	}
}

func blurFrame(src *frame.Frame, p BlurParams) *frame.Frame {
	g := gift.New(blurFilters(p)...)
	img := src.ToRGBA()
	dst := image.NewRGBA(g.Bounds(img.Bounds()))
	g.Draw(dst, img)
	return frame.FromImage(dst)
}
