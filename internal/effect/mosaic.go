package effect

import (
	"image"
	"time"

	"github.com/kozaktomas/frame-redactor/internal/frame"
)

// Mosaic replaces the masked region with flat cells of their mean color.
type Mosaic struct {
	def Definition
}

// NewMosaic creates the mosaic effect.
func NewMosaic() *Mosaic {
	return &Mosaic{def: MosaicDefinition()}
}

func (e *Mosaic) Kind() Kind             { return KindMosaic }
func (e *Mosaic) Definition() Definition { return e.def }

func (e *Mosaic) Validate(cfg Config) error {
	return validateConfig(e.def, cfg)
}

func (e *Mosaic) Apply(f *frame.Frame, m *image.Gray, cfg Config, gpuAvailable bool) (*frame.Frame, Result) {
	start := time.Now()
	if err := e.Validate(cfg); err != nil {
		return f, failure(err)
	}
	p, err := ParseMosaicParams(cfg.Params)
	if err != nil {
		return f, failure(err)
	}

	out, n, err := applyRegion(f, m, cfg.Intensity, cfg.blendMode(), regionOp{
		transform: func(crop *frame.Frame) *frame.Frame { return mosaic(crop, p) },
	})
	if err != nil {
		return f, failure(err)
	}
	if n == 0 {
		return out, Result{Success: true, Statistics: map[string]any{"pixels_processed": 0}}
	}

	var warnings []string
	if p.Shape == ShapeHexagon {
		warnings = append(warnings, "hexagon cells are rendered as squares")
	}
	return out, Result{
		Success:          true,
		ProcessingTimeMS: elapsedMS(start),
		Warnings:         warnings,
		Statistics: map[string]any{
			"pixels_processed": n,
			"block_size":       p.BlockSize,
			"shape":            string(p.Shape),
			"intensity":        cfg.Intensity,
		},
		GPUUsed: false,
	}
}

// EstimatePerformance grows with the number of cells.
func (e *Mosaic) EstimatePerformance(width, height int, cfg Config) float64 {
	p, err := ParseMosaicParams(cfg.Params)
	if err != nil {
		p, _ = ParseMosaicParams(nil)
	}
	blocks := float64(width/p.BlockSize) * float64(height/p.BlockSize)
	ms := 0.1 + blocks*0.001
	switch p.Shape {
	case ShapeCircle:
		ms *= 1.5
	case ShapeHexagon:
		ms *= 1.2
	}
	return ms
}

func mosaic(src *frame.Frame, p MosaicParams) *frame.Frame {
	if p.Shape == ShapeCircle {
		return mosaicCircle(src, p.BlockSize)
	}
	return mosaicSquare(src, p.BlockSize)
}

// mosaicSquare tiles src into bs*bs cells, clipped at the right and bottom edges.
func mosaicSquare(src *frame.Frame, bs int) *frame.Frame {
	out := src.Clone()
	for y0 := 0; y0 < src.Height; y0 += bs {
		y1 := min(y0+bs, src.Height)
		for x0 := 0; x0 < src.Width; x0 += bs {
			x1 := min(x0+bs, src.Width)
			var sum [3]int
			for y := y0; y < y1; y++ {
				for x := x0; x < x1; x++ {
					o := src.Offset(x, y)
					sum[0] += int(src.Pix[o])
					sum[1] += int(src.Pix[o+1])
					sum[2] += int(src.Pix[o+2])
				}
			}
			n := (y1 - y0) * (x1 - x0)
			mean := [3]uint8{uint8(sum[0] / n), uint8(sum[1] / n), uint8(sum[2] / n)}
			for y := y0; y < y1; y++ {
				for x := x0; x < x1; x++ {
					o := out.Offset(x, y)
					copy(out.Pix[o:o+3], mean[:])
				}
			}
		}
	}
	return out
}

// mosaicCircle lays filled circles of diameter bs on a bs grid. Each circle
// takes the mean of the source pixels under it; later circles overwrite
// earlier ones where they overlap. Pixels outside every circle are kept.
func mosaicCircle(src *frame.Frame, bs int) *frame.Frame {
	out := src.Clone()
	r := bs / 2
	r2 := r * r
	for cy := r; cy < src.Height-r; cy += bs {
		for cx := r; cx < src.Width-r; cx += bs {
			var sum [3]int
			n := 0
			for y := max(cy-r, 0); y <= min(cy+r, src.Height-1); y++ {
				for x := max(cx-r, 0); x <= min(cx+r, src.Width-1); x++ {
					if (x-cx)*(x-cx)+(y-cy)*(y-cy) > r2 {
						continue
					}
					o := src.Offset(x, y)
					sum[0] += int(src.Pix[o])
					sum[1] += int(src.Pix[o+1])
					sum[2] += int(src.Pix[o+2])
					n++
				}
			}
			if n == 0 {
				continue
			}
			mean := [3]uint8{uint8(sum[0] / n), uint8(sum[1] / n), uint8(sum[2] / n)}
			for y := max(cy-r, 0); y <= min(cy+r, src.Height-1); y++ {
				for x := max(cx-r, 0); x <= min(cx+r, src.Width-1); x++ {
					if (x-cx)*(x-cx)+(y-cy)*(y-cy) > r2 {
						continue
					}
					o := out.Offset(x, y)
					copy(out.Pix[o:o+3], mean[:])
				}
			}
		}
	}
	return out
}
