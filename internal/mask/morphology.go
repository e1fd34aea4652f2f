package mask

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidKernel is returned for structuring element sizes below 1.
var ErrInvalidKernel = errors.New("invalid kernel size")

// span is one row of a structuring element: columns [x0, x1) relative to the anchor.
type span struct {
	dy     int
	x0, x1 int
}

// ellipse builds the elliptical structuring element of side k, anchored at its center.
// Row widths follow dx = round(c * sqrt((r^2 - dy^2) / r^2)).
func ellipse(k int) []span {
	r := k / 2
	c := k / 2
	invR2 := 0.0
	if r > 0 {
		invR2 = 1 / float64(r*r)
	}
	spans := make([]span, 0, k)
	for i := 0; i < k; i++ {
		dy := i - r
		var j1, j2 int
		if dy >= -r && dy <= r {
			dx := int(math.Round(float64(c) * math.Sqrt(float64(r*r-dy*dy)*invR2)))
			j1 = max(c-dx, 0)
			j2 = min(c+dx+1, k)
		}
		if j2 > j1 {
			spans = append(spans, span{dy: dy, x0: j1 - c, x1: j2 - c})
		}
	}
	return spans
}

// Dilate returns a new w*h plane where each pixel is the maximum over the
// elliptical neighborhood of side k. Neighbors outside the plane are ignored.
func Dilate(src []uint8, w, h, k int) ([]uint8, error) {
	return morph(src, w, h, k, true)
}

// Erode returns a new w*h plane where each pixel is the minimum over the
// elliptical neighborhood of side k. Neighbors outside the plane are ignored.
func Erode(src []uint8, w, h, k int) ([]uint8, error) {
	return morph(src, w, h, k, false)
}

func morph(src []uint8, w, h, k int, takeMax bool) ([]uint8, error) {
	if k < 1 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidKernel, k)
	}
	if len(src) != w*h {
		return nil, fmt.Errorf("plane has %d bytes, want %d", len(src), w*h)
	}
	dst := make([]uint8, len(src))
	if k == 1 {
		copy(dst, src)
		return dst, nil
	}
	spans := ellipse(k)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var acc uint8
			if !takeMax {
				acc = 0xff
			}
			for _, s := range spans {
				yy := y + s.dy
				if yy < 0 || yy >= h {
					continue
				}
				row := src[yy*w : (yy+1)*w]
				for xx := max(x+s.x0, 0); xx < min(x+s.x1, w); xx++ {
					v := row[xx]
					if takeMax {
						if v > acc {
							acc = v
						}
					} else if v < acc {
						acc = v
					}
				}
			}
			dst[y*w+x] = acc
		}
	}
	return dst, nil
}

// components returns the 8-connected components of pixels equal to id,
// each as a bounding rectangle plus its pixel area.
func components(data []uint8, w, h int, id uint8) []component {
	visited := make([]bool, len(data))
	var out []component
	stack := make([]int, 0, 64)
	for start, v := range data {
		if v != id || visited[start] {
			continue
		}
		c := component{minX: w, minY: h, maxX: -1, maxY: -1}
		visited[start] = true
		stack = append(stack[:0], start)
		for len(stack) > 0 {
			p := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			px, py := p%w, p/w
			c.add(px, py)
			for dy := -1; dy <= 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					nx, ny := px+dx, py+dy
					if nx < 0 || ny < 0 || nx >= w || ny >= h {
						continue
					}
					n := ny*w + nx
					if !visited[n] && data[n] == id {
						visited[n] = true
						stack = append(stack, n)
					}
				}
			}
		}
		out = append(out, c)
	}
	return out
}

type component struct {
	minX, minY, maxX, maxY int
	area                   int
}

func (c *component) add(x, y int) {
	c.minX = min(c.minX, x)
	c.minY = min(c.minY, y)
	c.maxX = max(c.maxX, x)
	c.maxY = max(c.maxY, y)
	c.area++
}
