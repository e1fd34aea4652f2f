// Package media reads and writes frames and identifier masks on disk.
package media

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/HugoSmits86/nativewebp"
	"github.com/ftrvxmtrx/tga"
	"github.com/kozaktomas/frame-redactor/internal/constants"
	"github.com/kozaktomas/frame-redactor/internal/frame"
	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
	"golang.org/x/image/webp"
)

// ErrUnsupportedFormat is returned for file extensions without a codec.
var ErrUnsupportedFormat = errors.New("unsupported image format")

// Format is a lower-case file extension without the dot.
type Format string

// Supported formats. Only PNG, JPEG and WebP can be written.
const (
	FormatPNG  Format = "png"
	FormatJPEG Format = "jpeg"
	FormatGIF  Format = "gif"
	FormatBMP  Format = "bmp"
	FormatTIFF Format = "tiff"
	FormatWebP Format = "webp"
	FormatTGA  Format = "tga"
)

// FormatOf maps a path's extension to a Format.
func FormatOf(path string) (Format, error) {
	switch strings.ToLower(strings.TrimPrefix(filepath.Ext(path), ".")) {
	case "png":
		return FormatPNG, nil
	case "jpg", "jpeg":
		return FormatJPEG, nil
	case "gif":
		return FormatGIF, nil
	case "bmp":
		return FormatBMP, nil
	case "tif", "tiff":
		return FormatTIFF, nil
	case "webp":
		return FormatWebP, nil
	case "tga":
		return FormatTGA, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, filepath.Ext(path))
}

// Decode reads one image in the given format.
func Decode(r io.Reader, format Format) (image.Image, error) {
	switch format {
	case FormatPNG:
		return png.Decode(r)
	case FormatJPEG:
		return jpeg.Decode(r)
	case FormatGIF:
		return gif.Decode(r)
	case FormatBMP:
		return bmp.Decode(r)
	case FormatTIFF:
		return tiff.Decode(r)
	case FormatWebP:
		return webp.Decode(r)
	case FormatTGA:
		return tga.Decode(r)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
}

// EncodeFrame writes f as PNG, JPEG or lossless WebP. quality applies to
// JPEG only; values outside 1-100 use the default.
func EncodeFrame(w io.Writer, f *frame.Frame, format Format, quality int) error {
	img := f.ToRGBA()
	switch format {
	case FormatPNG:
		return png.Encode(w, img)
	case FormatJPEG:
		if quality < 1 || quality > 100 {
			quality = constants.DefaultJPEGQuality
		}
		return jpeg.Encode(w, img, &jpeg.Options{Quality: quality})
	case FormatWebP:
		if err := nativewebp.Encode(w, img, nil); err != nil {
			return fmt.Errorf("WebP encode: %w", err)
		}
		return nil
	}
	return fmt.Errorf("%w: cannot write %q", ErrUnsupportedFormat, format)
}

// LoadFrame decodes the image at path into an RGB frame.
func LoadFrame(path string) (*frame.Frame, error) {
	format, err := FormatOf(path)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open frame: %w", err)
	}
	defer file.Close()

	img, err := Decode(file, format)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return frame.FromImage(img), nil
}

// SaveFrame encodes f to path, choosing the codec by extension and creating
// parent directories as needed.
func SaveFrame(path string, f *frame.Frame, quality int) error {
	format, err := FormatOf(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := EncodeFrame(file, f, format, quality); err != nil {
		file.Close()
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}
	return file.Close()
}

// toGray returns identifier values for every pixel. Gray images are read
// directly; other images are converted through the gray color model, which
// keeps values of already-gray pixels.
func toGray(img image.Image) *image.Gray {
	if g, ok := img.(*image.Gray); ok && g.Rect.Min == (image.Point{}) && g.Stride == g.Rect.Dx() {
		return g
	}
	b := img.Bounds()
	g := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			g.SetGray(x, y, color.GrayModel.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.Gray))
		}
	}
	return g
}
