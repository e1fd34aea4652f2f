package effect

import (
	"fmt"
	"image"

	"github.com/disintegration/gift"
	"github.com/kozaktomas/frame-redactor/internal/frame"
	"github.com/kozaktomas/frame-redactor/internal/mask"
	"go.uber.org/zap"
)

// Renderer draws effects for preview and thumbnail callers. It shares the
// bbox-limited transforms of the effects but has no intensity or Result bookkeeping.
type Renderer struct {
	logger *zap.Logger
}

// NewRenderer creates a renderer. A nil logger disables logging.
func NewRenderer(logger *zap.Logger) *Renderer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Renderer{logger: logger}
}

// RenderRegion applies kind inside region at the given render quality.
// Low and medium quality raise mosaic and pixel sizes to keep previews cheap.
func (r *Renderer) RenderRegion(f *frame.Frame, region *image.Gray, kind Kind, params map[string]any, quality Quality) (*frame.Frame, error) {
	var op regionOp
	switch kind {
	case KindMosaic:
		p, err := ParseMosaicParams(params)
		if err != nil {
			return nil, err
		}
		switch quality {
		case QualityLow:
			p.BlockSize = max(p.BlockSize, 24)
		case QualityMedium:
			p.BlockSize = max(p.BlockSize, 16)
		}
		op.transform = func(crop *frame.Frame) *frame.Frame { return mosaic(crop, p) }
	case KindBlur:
		p, err := ParseBlurParams(params)
		if err != nil {
			return nil, err
		}
		p.Quality = quality
		op.transform = func(crop *frame.Frame) *frame.Frame { return blurFrame(crop, p) }
	case KindPixelate:
		p, err := ParsePixelateParams(params)
		if err != nil {
			return nil, err
		}
		switch quality {
		case QualityLow:
			p.PixelSize = max(p.PixelSize, 12)
		case QualityMedium:
			p.PixelSize = max(p.PixelSize, 8)
		}
		op.transform = func(crop *frame.Frame) *frame.Frame { return pixelate(crop, p.PixelSize, InterpLinear) }
	default:
		r.logger.Warn("unknown effect kind", zap.String("kind", string(kind)))
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}

	out, _, err := applyRegion(f, region, 1, BlendNormal, op)
	if err != nil {
		return nil, fmt.Errorf("rendering %s: %w", kind, err)
	}
	return out, nil
}

// BlendRegions blends effected over original with alpha = mask/255*opacity.
// The blend mode is computed against the original pixel; an unknown mode
// falls back to normal.
func (r *Renderer) BlendRegions(original, effected *frame.Frame, m *image.Gray, mode BlendMode, opacity float64) (*frame.Frame, error) {
	if original.Width != effected.Width || original.Height != effected.Height {
		return nil, fmt.Errorf("%w: effected %dx%d, original %dx%d",
			frame.ErrSizeMismatch, effected.Width, effected.Height, original.Width, original.Height)
	}
	if m.Bounds() != image.Rect(0, 0, original.Width, original.Height) {
		return nil, fmt.Errorf("%w: mask %v, frame %dx%d", frame.ErrSizeMismatch, m.Bounds(), original.Width, original.Height)
	}
	switch mode {
	case BlendNormal, BlendMultiply, BlendScreen, BlendOverlay:
	default:
		r.logger.Warn("unknown blend mode, using normal", zap.String("mode", string(mode)))
		mode = BlendNormal
	}
	box := image.Rect(0, 0, original.Width, original.Height)
	out := original.Clone()
	composite(out, effected, alphaMap(m, box, clamp01(opacity)), box, mode)
	return out, nil
}

// ApplyFeather softens mask edges. Pixels that survive an erosion by the
// feather size keep their value; the rest take a Gaussian-blurred value with
// sigma featherSize/2.
func (r *Renderer) ApplyFeather(m *image.Gray, featherSize int) (*image.Gray, error) {
	out := image.NewGray(m.Bounds())
	copy(out.Pix, m.Pix)
	if featherSize <= 0 {
		return out, nil
	}
	w, h := m.Bounds().Dx(), m.Bounds().Dy()
	plane := packGray(m)
	inner, err := mask.Erode(plane, w, h, featherSize*2+1)
	if err != nil {
		return nil, fmt.Errorf("feathering: %w", err)
	}

	src := &image.Gray{Pix: plane, Stride: w, Rect: image.Rect(0, 0, w, h)}
	g := gift.New(gift.GaussianBlur(float32(featherSize) / 2))
	blurred := image.NewGray(g.Bounds(src.Bounds()))
	g.Draw(blurred, src)

	res := image.NewGray(image.Rect(0, 0, w, h))
	for i := range plane {
		if inner[i] > 0 {
			res.Pix[i] = plane[i]
		} else {
			res.Pix[i] = blurred.Pix[i]
		}
	}
	res.Rect = m.Bounds()
	return res, nil
}

// packGray returns the pixels of m as a tightly packed row-major plane.
func packGray(m *image.Gray) []uint8 {
	b := m.Bounds()
	plane := make([]uint8, b.Dx()*b.Dy())
	for y := 0; y < b.Dy(); y++ {
		copy(plane[y*b.Dx():(y+1)*b.Dx()], m.Pix[m.PixOffset(b.Min.X, b.Min.Y+y):])
	}
	return plane
}
