package media

import (
	"errors"
	"fmt"
	"image/png"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/kozaktomas/frame-redactor/internal/frame"
	"gopkg.in/yaml.v3"
)

// SidecarPath returns the metadata file stored next to a mask image:
// masks/0001.png -> masks/0001.yaml.
func SidecarPath(maskPath string) string {
	return strings.TrimSuffix(maskPath, filepath.Ext(maskPath)) + ".yaml"
}

// LoadMask decodes a grayscale mask image where every pixel value is an
// object identifier. Metadata comes from the YAML sidecar when one exists;
// otherwise the identifiers are the distinct non-zero values.
func LoadMask(path string) (*frame.Mask, error) {
	format, err := FormatOf(path)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open mask: %w", err)
	}
	defer file.Close()

	img, err := Decode(file, format)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	g := toGray(img)
	m := frame.MaskFromData(g.Rect.Dx(), g.Rect.Dy(), g.Pix)

	meta, err := os.ReadFile(SidecarPath(path))
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return m, nil
	case err != nil:
		return nil, fmt.Errorf("failed to read mask metadata: %w", err)
	}

	var side frame.Mask
	if err := yaml.Unmarshal(meta, &side); err != nil {
		return nil, fmt.Errorf("failed to parse mask metadata: %w", err)
	}
	if side.Width != 0 && (side.Width != m.Width || side.Height != m.Height) {
		return nil, fmt.Errorf("%w: metadata says %dx%d, image is %dx%d",
			frame.ErrInvalidMask, side.Width, side.Height, m.Width, m.Height)
	}
	m.ID = side.ID
	m.FrameIndex = side.FrameIndex
	if side.ObjectIDs != nil {
		m.ObjectIDs = frame.SortIDs(side.ObjectIDs)
	}
	if side.Classes != nil {
		m.Classes = side.Classes
	}
	if side.Confidences != nil {
		m.Confidences = side.Confidences
	}
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("mask %s: %w", path, err)
	}
	return m, nil
}

// SaveMask writes m as an 8-bit grayscale PNG plus its YAML sidecar.
func SaveMask(path string, m *frame.Mask) error {
	if err := m.Validate(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := png.Encode(file, m.Gray()); err != nil {
		file.Close()
		return fmt.Errorf("failed to encode mask: %w", err)
	}
	if err := file.Close(); err != nil {
		return err
	}

	meta, err := yaml.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to marshal mask metadata: %w", err)
	}
	if err := os.WriteFile(SidecarPath(path), meta, 0644); err != nil {
		return fmt.Errorf("failed to write mask metadata: %w", err)
	}
	return nil
}
