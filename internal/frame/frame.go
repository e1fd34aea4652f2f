package frame

import (
	"errors"
	"fmt"
	"image"
	"image/color"
)

// ErrSizeMismatch is returned when a mask and a frame disagree on dimensions.
var ErrSizeMismatch = errors.New("size mismatch")

// Frame is a decoded RGB video frame, 3 bytes per pixel, row-major.
// Frames are treated as immutable; transforms return a new Frame.
type Frame struct {
	Width  int     `json:"width"`
	Height int     `json:"height"`
	Pix    []uint8 `json:"pix"`
}

// New returns a black frame of the given size.
func New(width, height int) *Frame {
	return &Frame{
		Width:  width,
		Height: height,
		Pix:    make([]uint8, width*height*3),
	}
}

// Validate checks that the pixel buffer matches the declared dimensions.
func (f *Frame) Validate() error {
	if f == nil {
		return errors.New("frame is nil")
	}
	if f.Width <= 0 || f.Height <= 0 {
		return fmt.Errorf("invalid frame size %dx%d", f.Width, f.Height)
	}
	if len(f.Pix) != f.Width*f.Height*3 {
		return fmt.Errorf("frame buffer has %d bytes, want %d", len(f.Pix), f.Width*f.Height*3)
	}
	return nil
}

// Clone returns a deep copy of the frame.
func (f *Frame) Clone() *Frame {
	out := &Frame{Width: f.Width, Height: f.Height, Pix: make([]uint8, len(f.Pix))}
	copy(out.Pix, f.Pix)
	return out
}

// Offset returns the index of the red channel of pixel (x, y).
func (f *Frame) Offset(x, y int) int {
	return (y*f.Width + x) * 3
}

// Equal reports whether two frames have identical size and pixels.
func (f *Frame) Equal(o *Frame) bool {
	if f.Width != o.Width || f.Height != o.Height || len(f.Pix) != len(o.Pix) {
		return false
	}
	for i := range f.Pix {
		if f.Pix[i] != o.Pix[i] {
			return false
		}
	}
	return true
}

// Crop copies the rectangle r (clipped to the frame) into a new frame.
func (f *Frame) Crop(r image.Rectangle) *Frame {
	r = r.Intersect(image.Rect(0, 0, f.Width, f.Height))
	out := New(r.Dx(), r.Dy())
	for y := 0; y < r.Dy(); y++ {
		src := f.Offset(r.Min.X, r.Min.Y+y)
		copy(out.Pix[y*out.Width*3:(y+1)*out.Width*3], f.Pix[src:src+out.Width*3])
	}
	return out
}

// Paste writes src into f with its top-left corner at pt. f is modified in place,
// so callers paste only into frames they own.
func (f *Frame) Paste(src *Frame, pt image.Point) {
	for y := 0; y < src.Height; y++ {
		dst := f.Offset(pt.X, pt.Y+y)
		copy(f.Pix[dst:dst+src.Width*3], src.Pix[y*src.Width*3:(y+1)*src.Width*3])
	}
}

// FromImage converts any image into an RGB frame, dropping alpha.
func FromImage(img image.Image) *Frame {
	b := img.Bounds()
	f := New(b.Dx(), b.Dy())
	if rgba, ok := img.(*image.RGBA); ok {
		for y := 0; y < f.Height; y++ {
			row := rgba.Pix[rgba.PixOffset(b.Min.X, b.Min.Y+y):]
			for x := 0; x < f.Width; x++ {
				o := f.Offset(x, y)
				f.Pix[o] = row[x*4]
				f.Pix[o+1] = row[x*4+1]
				f.Pix[o+2] = row[x*4+2]
			}
		}
		return f
	}
	for y := 0; y < f.Height; y++ {
		for x := 0; x < f.Width; x++ {
			c := color.NRGBAModel.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.NRGBA)
			o := f.Offset(x, y)
			f.Pix[o] = c.R
			f.Pix[o+1] = c.G
			f.Pix[o+2] = c.B
		}
	}
	return f
}

// ToRGBA returns an opaque RGBA image with the frame's pixels.
func (f *Frame) ToRGBA() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, f.Width, f.Height))
	for i, j := 0, 0; i < len(f.Pix); i, j = i+3, j+4 {
		img.Pix[j] = f.Pix[i]
		img.Pix[j+1] = f.Pix[i+1]
		img.Pix[j+2] = f.Pix[i+2]
		img.Pix[j+3] = 0xff
	}
	return img
}
