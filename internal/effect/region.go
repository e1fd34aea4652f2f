package effect

import (
	"fmt"
	"image"
	"math"
	"time"

	"github.com/disintegration/gift"
	"github.com/kozaktomas/frame-redactor/internal/frame"
)

// maskBounds returns the bounding box of non-zero mask pixels and their count.
// The box is empty when the mask has no foreground.
func maskBounds(m *image.Gray) (image.Rectangle, int) {
	b := m.Bounds()
	minX, minY, maxX, maxY := b.Max.X, b.Max.Y, b.Min.X-1, b.Min.Y-1
	n := 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		row := m.Pix[m.PixOffset(b.Min.X, y):]
		for x := 0; x < b.Dx(); x++ {
			if row[x] == 0 {
				continue
			}
			n++
			minX = min(minX, b.Min.X+x)
			maxX = max(maxX, b.Min.X+x)
			minY = min(minY, y)
			maxY = max(maxY, y)
		}
	}
	if n == 0 {
		return image.Rectangle{}, 0
	}
	return image.Rect(minX, minY, maxX+1, maxY+1), n
}

// alphaMap returns mask/255*scale for every pixel of box, row-major.
func alphaMap(m *image.Gray, box image.Rectangle, scale float64) []float64 {
	alpha := make([]float64, box.Dx()*box.Dy())
	for y := 0; y < box.Dy(); y++ {
		row := m.Pix[m.PixOffset(box.Min.X, box.Min.Y+y):]
		for x := 0; x < box.Dx(); x++ {
			alpha[y*box.Dx()+x] = float64(row[x]) / 255 * scale
		}
	}
	return alpha
}

// smoothAlpha Gaussian-blurs an alpha plane through a 16-bit gray image.
func smoothAlpha(alpha []float64, w, h int, sigma float64) []float64 {
	if sigma <= 0 || len(alpha) == 0 {
		return alpha
	}
	src := image.NewGray16(image.Rect(0, 0, w, h))
	for i, a := range alpha {
		v := uint16(math.Round(clamp01(a) * 0xffff))
		src.Pix[2*i] = uint8(v >> 8)
		src.Pix[2*i+1] = uint8(v)
	}
	g := gift.New(gift.GaussianBlur(float32(sigma)))
	dst := image.NewGray16(g.Bounds(src.Bounds()))
	g.Draw(dst, src)
	out := make([]float64, len(alpha))
	for i := range out {
		out[i] = float64(uint16(dst.Pix[2*i])<<8|uint16(dst.Pix[2*i+1])) / 0xffff
	}
	return out
}

// blend combines one original channel a with the effected channel b.
func blend(mode BlendMode, a, b float64) float64 {
	switch mode {
	case BlendMultiply:
		return a / 255 * (b / 255) * 255
	case BlendScreen:
		return 255 - (255-a)*(255-b)/255
	case BlendOverlay:
		if a < 128 {
			return 2 * a * b / 255
		}
		return 255 - 2*(255-a)*(255-b)/255
	default:
		return b
	}
}

// composite blends effected (a box-sized crop) over dst inside box with
// per-pixel alpha. dst is modified in place.
func composite(dst, effected *frame.Frame, alpha []float64, box image.Rectangle, mode BlendMode) {
	w := box.Dx()
	for y := 0; y < box.Dy(); y++ {
		for x := 0; x < w; x++ {
			a := alpha[y*w+x]
			if a == 0 {
				continue
			}
			o := dst.Offset(box.Min.X+x, box.Min.Y+y)
			e := effected.Offset(x, y)
			for c := 0; c < 3; c++ {
				orig := float64(dst.Pix[o+c])
				v := blend(mode, orig, float64(effected.Pix[e+c]))
				dst.Pix[o+c] = clamp8(v*a + orig*(1-a))
			}
		}
	}
}

// regionOp describes one bbox-limited transform.
type regionOp struct {
	// pad enlarges the transformed crop on each side; the result is cut back to the box.
	pad         int
	transform   func(crop *frame.Frame) *frame.Frame
	smoothSigma float64
}

// applyRegion runs op over the bounding box of m and composites the result
// into a copy of f. It returns the new frame and the number of mask pixels.
func applyRegion(f *frame.Frame, m *image.Gray, intensity float64, mode BlendMode, op regionOp) (*frame.Frame, int, error) {
	if err := f.Validate(); err != nil {
		return nil, 0, err
	}
	if m.Bounds() != image.Rect(0, 0, f.Width, f.Height) {
		return nil, 0, fmt.Errorf("%w: mask %v, frame %dx%d", frame.ErrSizeMismatch, m.Bounds(), f.Width, f.Height)
	}
	box, n := maskBounds(m)
	if n == 0 {
		return f.Clone(), 0, nil
	}

	work := box
	if op.pad > 0 {
		work = box.Inset(-op.pad).Intersect(image.Rect(0, 0, f.Width, f.Height))
	}
	effected := op.transform(f.Crop(work))
	if work != box {
		effected = effected.Crop(box.Sub(work.Min))
	}

	alpha := alphaMap(m, box, intensity)
	alpha = smoothAlpha(alpha, box.Dx(), box.Dy(), op.smoothSigma)

	out := f.Clone()
	composite(out, effected, alpha, box, mode)
	return out, n, nil
}

func clamp8(v float64) uint8 {
	v = math.Round(v)
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

func elapsedMS(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000
}
