package effect

import (
	"image"
	"time"

	"github.com/kozaktomas/frame-redactor/internal/frame"
	"golang.org/x/image/draw"
)

// Pixelate downsamples the masked region and scales it back up with nearest neighbor.
type Pixelate struct {
	def Definition
}

// NewPixelate creates the pixelate effect.
func NewPixelate() *Pixelate {
	return &Pixelate{def: PixelateDefinition()}
}

func (e *Pixelate) Kind() Kind             { return KindPixelate }
func (e *Pixelate) Definition() Definition { return e.def }

func (e *Pixelate) Validate(cfg Config) error {
	return validateConfig(e.def, cfg)
}

func (e *Pixelate) Apply(f *frame.Frame, m *image.Gray, cfg Config, gpuAvailable bool) (*frame.Frame, Result) {
	start := time.Now()
	if err := e.Validate(cfg); err != nil {
		return f, failure(err)
	}
	p, err := ParsePixelateParams(cfg.Params)
	if err != nil {
		return f, failure(err)
	}

	op := regionOp{
		transform: func(crop *frame.Frame) *frame.Frame { return pixelate(crop, p.PixelSize, p.Interpolation) },
	}
	if p.Interpolation != InterpNearest {
		feather := max(1, p.PixelSize/4)
		op.smoothSigma = float64(feather) / 2
	}
	out, n, err := applyRegion(f, m, cfg.Intensity, cfg.blendMode(), op)
	if err != nil {
		return f, failure(err)
	}
	if n == 0 {
		return out, Result{Success: true, Statistics: map[string]any{"pixels_processed": 0}}
	}
	box, _ := maskBounds(m)
	return out, Result{
		Success:          true,
		ProcessingTimeMS: elapsedMS(start),
		Statistics: map[string]any{
			"pixels_processed": n,
			"pixel_size":       p.PixelSize,
			"interpolation":    string(p.Interpolation),
			"intensity":        cfg.Intensity,
			"effective_pixels": max(1, box.Dy()/p.PixelSize) * max(1, box.Dx()/p.PixelSize),
		},
	}
}

// EstimatePerformance grows as pixel_size shrinks.
func (e *Pixelate) EstimatePerformance(width, height int, cfg Config) float64 {
	p, err := ParsePixelateParams(cfg.Params)
	if err != nil {
		p, _ = ParsePixelateParams(nil)
	}
	pixelFactor := float64(width*height) / (1920 * 1080)
	interpFactor := 1.0
	switch p.Interpolation {
	case InterpNearest:
		interpFactor = 0.5
	case InterpCubic:
		interpFactor = 2.0
	}
	return 0.3 * pixelFactor * (8 / float64(p.PixelSize)) * interpFactor
}

func scaler(interp Interpolation) draw.Interpolator {
	switch interp {
	case InterpLinear:
		return draw.BiLinear
	case InterpCubic:
		return draw.CatmullRom
	default:
		return draw.NearestNeighbor
	}
}

// pixelate shrinks src to max(1, dim/size) per axis with interp, then
// enlarges it back with nearest neighbor so the blocks stay sharp.
func pixelate(src *frame.Frame, size int, interp Interpolation) *frame.Frame {
	img := src.ToRGBA()
	small := image.NewRGBA(image.Rect(0, 0, max(1, src.Width/size), max(1, src.Height/size)))
	scaler(interp).Scale(small, small.Bounds(), img, img.Bounds(), draw.Src, nil)
	big := image.NewRGBA(img.Bounds())
	draw.NearestNeighbor.Scale(big, big.Bounds(), small, small.Bounds(), draw.Src, nil)
	return frame.FromImage(big)
}
