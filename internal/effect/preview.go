package effect

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"sync"

	"github.com/kozaktomas/frame-redactor/internal/frame"
	"go.uber.org/zap"
	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// SplitType selects the before/after comparison layout.
type SplitType string

// Split layouts.
const (
	SplitVertical   SplitType = "vertical"
	SplitHorizontal SplitType = "horizontal"
	SplitDiagonal   SplitType = "diagonal"
)

// ThumbnailRequest describes one effect thumbnail.
type ThumbnailRequest struct {
	Kind   Kind           `json:"kind"`
	Params map[string]any `json:"params"`
	Width  int            `json:"width"`
	Height int            `json:"height"`
}

// Previewer builds small previews, thumbnails and comparisons on top of an engine.
type Previewer struct {
	engine   *Engine
	renderer *Renderer
	logger   *zap.Logger
}

// NewPreviewer creates a previewer. A nil logger disables logging.
func NewPreviewer(engine *Engine, logger *zap.Logger) *Previewer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Previewer{engine: engine, renderer: NewRenderer(logger), logger: logger}
}

// Preview scales f and m to fit width*height, applies cfg in preview mode and
// letterboxes the result on black.
func (p *Previewer) Preview(f *frame.Frame, m *frame.Mask, cfg Config, width, height int) (*frame.Frame, Result, error) {
	if width <= 0 || height <= 0 {
		return nil, Result{}, fmt.Errorf("invalid preview size %dx%d", width, height)
	}
	if err := m.CheckSize(f); err != nil {
		return nil, Result{}, err
	}
	scale := min(float64(width)/float64(f.Width), float64(height)/float64(f.Height))
	nw, nh := max(1, int(float64(f.Width)*scale)), max(1, int(float64(f.Height)*scale))

	src := f.ToRGBA()
	small := image.NewRGBA(image.Rect(0, 0, nw, nh))
	draw.ApproxBiLinear.Scale(small, small.Bounds(), src, src.Bounds(), draw.Src, nil)

	smallMask := image.NewGray(image.Rect(0, 0, nw, nh))
	draw.NearestNeighbor.Scale(smallMask, smallMask.Bounds(), m.Gray(), m.Gray().Bounds(), draw.Src, nil)
	pm := m.Clone()
	pm.Width, pm.Height, pm.Data = nw, nh, smallMask.Pix

	cfg = cfg.Clone()
	cfg.Enabled = true
	cfg.TargetMasks = nil
	out, results := p.engine.ApplyEffects(frame.FromImage(small), []*frame.Mask{pm}, []Config{cfg}, true)

	canvas := frame.New(width, height)
	canvas.Paste(out, image.Pt((width-nw)/2, (height-nh)/2))
	return canvas, results[cfg.ID], nil
}

// Thumbnail renders kind with params over a gradient test pattern, limited to
// a centered circle, and labels it with the effect name.
func (p *Previewer) Thumbnail(kind Kind, params map[string]any, width, height int) (*frame.Frame, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid thumbnail size %dx%d", width, height)
	}
	pattern := testPattern(width, height)
	region := image.NewGray(image.Rect(0, 0, width, height))
	cx, cy, r := width/2, height/2, min(width, height)/3
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			if (x-cx)*(x-cx)+(y-cy)*(y-cy) <= r*r {
				region.Pix[y*width+x] = 0xff
			}
		}
	}
	out, err := p.renderer.RenderRegion(pattern, region, kind, params, QualityHigh)
	if err != nil {
		return nil, fmt.Errorf("thumbnail: %w", err)
	}
	img := out.ToRGBA()
	label(img, string(kind), 4, 14)
	return frame.FromImage(img), nil
}

// Thumbnails renders reqs concurrently with at most workers goroutines.
// Results keep the order of reqs. The first error cancels pending work.
func (p *Previewer) Thumbnails(ctx context.Context, reqs []ThumbnailRequest, workers int) ([]*frame.Frame, error) {
	if workers < 1 {
		workers = 1
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	out := make([]*frame.Frame, len(reqs))
	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup
	var mu sync.Mutex
	var firstErr error

	for i, req := range reqs {
		select {
		case <-ctx.Done():
		case sem <- struct{}{}:
			wg.Add(1)
			go func(i int, req ThumbnailRequest) {
				defer wg.Done()
				defer func() { <-sem }()
				if ctx.Err() != nil {
					return
				}
				thumb, err := p.Thumbnail(req.Kind, req.Params, req.Width, req.Height)
				if err != nil {
					mu.Lock()
					if firstErr == nil {
						firstErr = fmt.Errorf("thumbnail %d: %w", i, err)
					}
					mu.Unlock()
					cancel()
					return
				}
				out[i] = thumb
			}(i, req)
		}
	}
	wg.Wait()
	if firstErr != nil {
		return nil, firstErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// BeforeAfter applies cfg to f and shows the original on one side of the split
// and the result on the other, separated by a white line.
func (p *Previewer) BeforeAfter(f *frame.Frame, m *frame.Mask, cfg Config, split SplitType) (*frame.Frame, error) {
	if err := m.CheckSize(f); err != nil {
		return nil, err
	}
	cfg = cfg.Clone()
	cfg.Enabled = true
	cfg.TargetMasks = nil
	processed, _ := p.engine.ApplyEffects(f, []*frame.Mask{m}, []Config{cfg}, false)

	w, h := f.Width, f.Height
	out := processed.Clone()
	white := [3]uint8{0xff, 0xff, 0xff}
	switch split {
	case SplitHorizontal:
		mid := h / 2
		out.Paste(f.Crop(image.Rect(0, 0, w, mid)), image.Pt(0, 0))
		for x := 0; x < w; x++ {
			for y := max(mid-1, 0); y <= min(mid, h-1); y++ {
				o := out.Offset(x, y)
				copy(out.Pix[o:o+3], white[:])
			}
		}
	case SplitDiagonal:
		for y := 0; y < h; y++ {
			edge := float64(y) * float64(w) / float64(h)
			for x := 0; x < w; x++ {
				o := out.Offset(x, y)
				switch {
				case float64(x) >= edge-1 && float64(x) <= edge+1:
					copy(out.Pix[o:o+3], white[:])
				case float64(x) < edge:
					copy(out.Pix[o:o+3], f.Pix[o:o+3])
				}
			}
		}
	default:
		mid := w / 2
		out.Paste(f.Crop(image.Rect(0, 0, mid, h)), image.Pt(0, 0))
		for y := 0; y < h; y++ {
			for x := max(mid-1, 0); x <= min(mid, w-1); x++ {
				o := out.Offset(x, y)
				copy(out.Pix[o:o+3], white[:])
			}
		}
	}

	img := out.ToRGBA()
	label(img, "Before", 4, 14)
	if split == SplitHorizontal {
		label(img, "After", 4, h/2+14)
	} else {
		label(img, "After", w-40, h-6)
	}
	return frame.FromImage(img), nil
}

// testPattern is a red/green/blue gradient with a gray 16px grid.
func testPattern(width, height int) *frame.Frame {
	f := frame.New(width, height)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			o := f.Offset(x, y)
			if x%16 == 0 || y%16 == 0 {
				f.Pix[o], f.Pix[o+1], f.Pix[o+2] = 128, 128, 128
				continue
			}
			fx, fy := float64(x)/float64(width), float64(y)/float64(height)
			f.Pix[o] = uint8(255 * fx)
			f.Pix[o+1] = uint8(255 * fy)
			f.Pix[o+2] = uint8(255 * (1 - fx) * (1 - fy))
		}
	}
	return f
}

func label(img *image.RGBA, text string, x, y int) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(color.White),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(text)
}
