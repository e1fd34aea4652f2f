package frame

import (
	"errors"
	"fmt"
	"image"
	"slices"
)

// ErrInvalidMask is returned when a mask violates its identifier invariants.
var ErrInvalidMask = errors.New("invalid mask")

// MaxObjectID is the largest identifier a mask pixel can hold.
const MaxObjectID = 255

// Mask is a per-pixel object identifier buffer. 0 is background, 1-255 are
// tracked objects. Every non-zero value in Data belongs to ObjectIDs, and the
// class and confidence maps are keyed only by declared identifiers.
type Mask struct {
	ID          int             `json:"id" yaml:"id"`
	FrameIndex  int             `json:"frame_index" yaml:"frame_index"`
	Width       int             `json:"width" yaml:"width"`
	Height      int             `json:"height" yaml:"height"`
	Data        []uint8         `json:"data" yaml:"-"`
	ObjectIDs   []int           `json:"object_ids" yaml:"object_ids"`
	Classes     map[int]string  `json:"classes" yaml:"classes"`
	Confidences map[int]float64 `json:"confidences" yaml:"confidences"`
}

// NewMask returns an empty background mask.
func NewMask(width, height int) *Mask {
	return &Mask{
		Width:       width,
		Height:      height,
		Data:        make([]uint8, width*height),
		ObjectIDs:   []int{},
		Classes:     map[int]string{},
		Confidences: map[int]float64{},
	}
}

// MaskFromData wraps an identifier buffer and declares every value found in it.
func MaskFromData(width, height int, data []uint8) *Mask {
	m := &Mask{
		Width:       width,
		Height:      height,
		Data:        data,
		Classes:     map[int]string{},
		Confidences: map[int]float64{},
	}
	m.ObjectIDs = UniqueIDs(data)
	return m
}

// UniqueIDs returns the sorted non-zero values present in data.
func UniqueIDs(data []uint8) []int {
	var seen [MaxObjectID + 1]bool
	for _, v := range data {
		seen[v] = true
	}
	ids := []int{}
	for id := 1; id <= MaxObjectID; id++ {
		if seen[id] {
			ids = append(ids, id)
		}
	}
	return ids
}

// Validate checks the buffer size and the identifier invariants.
func (m *Mask) Validate() error {
	if m == nil {
		return fmt.Errorf("%w: mask is nil", ErrInvalidMask)
	}
	if m.Width <= 0 || m.Height <= 0 {
		return fmt.Errorf("%w: size %dx%d", ErrInvalidMask, m.Width, m.Height)
	}
	if len(m.Data) != m.Width*m.Height {
		return fmt.Errorf("%w: buffer has %d bytes, want %d", ErrInvalidMask, len(m.Data), m.Width*m.Height)
	}
	declared := make(map[int]bool, len(m.ObjectIDs))
	for _, id := range m.ObjectIDs {
		if id < 1 || id > MaxObjectID {
			return fmt.Errorf("%w: identifier %d out of range", ErrInvalidMask, id)
		}
		declared[id] = true
	}
	for _, id := range UniqueIDs(m.Data) {
		if !declared[id] {
			return fmt.Errorf("%w: pixel value %d is not a declared identifier", ErrInvalidMask, id)
		}
	}
	for id := range m.Classes {
		if !declared[id] {
			return fmt.Errorf("%w: class for undeclared identifier %d", ErrInvalidMask, id)
		}
	}
	for id, c := range m.Confidences {
		if !declared[id] {
			return fmt.Errorf("%w: confidence for undeclared identifier %d", ErrInvalidMask, id)
		}
		if c < 0 || c > 1 {
			return fmt.Errorf("%w: confidence %.3f for identifier %d out of [0,1]", ErrInvalidMask, c, id)
		}
	}
	return nil
}

// CheckSize returns ErrSizeMismatch when the mask does not cover f exactly.
func (m *Mask) CheckSize(f *Frame) error {
	if m.Width != f.Width || m.Height != f.Height {
		return fmt.Errorf("%w: mask %dx%d, frame %dx%d", ErrSizeMismatch, m.Width, m.Height, f.Width, f.Height)
	}
	return nil
}

// Clone returns a deep copy. Nil metadata maps come back empty.
func (m *Mask) Clone() *Mask {
	out := &Mask{
		ID:          m.ID,
		FrameIndex:  m.FrameIndex,
		Width:       m.Width,
		Height:      m.Height,
		Data:        slices.Clone(m.Data),
		ObjectIDs:   slices.Clone(m.ObjectIDs),
		Classes:     make(map[int]string, len(m.Classes)),
		Confidences: make(map[int]float64, len(m.Confidences)),
	}
	if out.ObjectIDs == nil {
		out.ObjectIDs = []int{}
	}
	for k, v := range m.Classes {
		out.Classes[k] = v
	}
	for k, v := range m.Confidences {
		out.Confidences[k] = v
	}
	return out
}

// HasID reports whether id is declared on the mask.
func (m *Mask) HasID(id int) bool {
	return slices.Contains(m.ObjectIDs, id)
}

// PixelCount returns how many pixels carry id.
func (m *Mask) PixelCount(id int) int {
	n := 0
	for _, v := range m.Data {
		if int(v) == id {
			n++
		}
	}
	return n
}

// Foreground returns the number of non-zero pixels.
func (m *Mask) Foreground() int {
	n := 0
	for _, v := range m.Data {
		if v != 0 {
			n++
		}
	}
	return n
}

// RemoveIDs drops ids from the declared set and the metadata maps.
// Pixel data is not touched.
func (m *Mask) RemoveIDs(drop func(id int) bool) {
	kept := m.ObjectIDs[:0:0]
	for _, id := range m.ObjectIDs {
		if drop(id) {
			delete(m.Classes, id)
			delete(m.Confidences, id)
			continue
		}
		kept = append(kept, id)
	}
	if kept == nil {
		kept = []int{}
	}
	m.ObjectIDs = kept
}

// Gray returns a grayscale view sharing the mask buffer.
func (m *Mask) Gray() *image.Gray {
	return &image.Gray{Pix: m.Data, Stride: m.Width, Rect: image.Rect(0, 0, m.Width, m.Height)}
}

// SortIDs sorts and de-duplicates ids in place and returns the result.
func SortIDs(ids []int) []int {
	slices.Sort(ids)
	return slices.Compact(ids)
}
