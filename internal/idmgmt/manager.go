// Package idmgmt edits the object identifiers stored in masks: deletion,
// merging, renumbering, statistics and confidence thresholding.
package idmgmt

import (
	"errors"
	"fmt"
	"slices"

	"github.com/kozaktomas/frame-redactor/internal/frame"
	"go.uber.org/zap"
)

var (
	// ErrInvalidRange is returned when a delete range has lo > hi.
	ErrInvalidRange = errors.New("invalid identifier range")
	// ErrUnknownTarget is returned when a merge target is neither declared nor a source.
	ErrUnknownTarget = errors.New("unknown merge target")
)

// IDStatistics describes the pixels of one identifier.
type IDStatistics struct {
	ID         int        `json:"id"`
	PixelCount int        `json:"pixel_count"`
	BBox       [4]int     `json:"bbox"` // x0, y0, x1, y1 inclusive
	Centroid   [2]float64 `json:"centroid"`
	AreaRatio  float64    `json:"area_ratio"`
	Confidence *float64   `json:"confidence,omitempty"`
	Class      string     `json:"class,omitempty"`
}

// Manager rewrites mask identifiers. Inputs are never modified; on error
// no mask is returned.
type Manager struct {
	logger *zap.Logger
}

// NewManager creates an ID manager. A nil logger disables logging.
func NewManager(logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{logger: logger}
}

// DeleteIDs zeroes the pixels of ids and drops their metadata. Other
// identifiers keep their values. Undeclared ids are ignored.
func (mg *Manager) DeleteIDs(m *frame.Mask, ids []int) (*frame.Mask, error) {
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("delete ids: %w", err)
	}
	return mg.deleteWhere(m, func(id int) bool { return slices.Contains(ids, id) }), nil
}

// DeleteRange deletes every declared identifier with lo <= id <= hi.
func (mg *Manager) DeleteRange(m *frame.Mask, lo, hi int) (*frame.Mask, error) {
	if lo > hi {
		return nil, fmt.Errorf("%w: %d > %d", ErrInvalidRange, lo, hi)
	}
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("delete range: %w", err)
	}
	return mg.deleteWhere(m, func(id int) bool { return id >= lo && id <= hi }), nil
}

// DeleteAll clears the buffer and every metadata map.
func (mg *Manager) DeleteAll(m *frame.Mask) (*frame.Mask, error) {
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("delete all: %w", err)
	}
	out := frame.NewMask(m.Width, m.Height)
	out.ID, out.FrameIndex = m.ID, m.FrameIndex
	mg.logger.Info("cleared all ids from mask", zap.Int("mask_id", m.ID))
	return out, nil
}

// DeleteByClass deletes every identifier whose class label matches class
// after normalization.
func (mg *Manager) DeleteByClass(m *frame.Mask, class string) (*frame.Mask, error) {
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("delete by class: %w", err)
	}
	want := NormalizeLabel(class)
	return mg.deleteWhere(m, func(id int) bool {
		c, ok := m.Classes[id]
		return ok && NormalizeLabel(c) == want
	}), nil
}

func (mg *Manager) deleteWhere(m *frame.Mask, drop func(id int) bool) *frame.Mask {
	out := m.Clone()
	var deleted []int
	for _, id := range m.ObjectIDs {
		if drop(id) {
			deleted = append(deleted, id)
		}
	}
	if len(deleted) == 0 {
		return out
	}
	var gone [frame.MaxObjectID + 1]bool
	for _, id := range deleted {
		gone[id] = true
	}
	for i, v := range out.Data {
		if gone[v] {
			out.Data[i] = 0
		}
	}
	out.RemoveIDs(func(id int) bool { return gone[id] })
	mg.logger.Info("deleted ids from mask", zap.Int("mask_id", m.ID), zap.Ints("ids", deleted))
	return out
}

// MergeIDs rewrites every pixel of sources to target. Sources leave the
// identifier set together with their metadata; target keeps its own.
// target must be declared on the mask or listed among the sources.
func (mg *Manager) MergeIDs(m *frame.Mask, sources []int, target int) (*frame.Mask, error) {
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("merge ids: %w", err)
	}
	if target < 1 || target > frame.MaxObjectID || (!m.HasID(target) && !slices.Contains(sources, target)) {
		return nil, fmt.Errorf("%w: %d", ErrUnknownTarget, target)
	}

	var from [frame.MaxObjectID + 1]bool
	var merged []int
	for _, id := range sources {
		if id != target && m.HasID(id) && !from[id] {
			from[id] = true
			merged = append(merged, id)
		}
	}
	out := m.Clone()
	if len(merged) == 0 {
		return out, nil
	}
	t := uint8(target)
	for i, v := range out.Data {
		if from[v] {
			out.Data[i] = t
		}
	}
	out.RemoveIDs(func(id int) bool { return from[id] })
	if !out.HasID(target) {
		out.ObjectIDs = frame.SortIDs(append(out.ObjectIDs, target))
	}
	mg.logger.Info("merged ids",
		zap.Int("mask_id", m.ID),
		zap.Ints("sources", merged),
		zap.Int("target", target))
	return out, nil
}

// RenumberIDs compacts the identifiers present in the buffer to 1..n,
// keeping their order and metadata. Declared identifiers without pixels
// are dropped.
func (mg *Manager) RenumberIDs(m *frame.Mask) (*frame.Mask, error) {
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("renumber ids: %w", err)
	}
	present := frame.UniqueIDs(m.Data)
	out := m.Clone()
	if len(present) == 0 {
		return out, nil
	}

	var remap [frame.MaxObjectID + 1]uint8
	for i, id := range present {
		remap[id] = uint8(i + 1)
	}
	for i, v := range out.Data {
		out.Data[i] = remap[v]
	}
	out.ObjectIDs = make([]int, len(present))
	out.Classes = map[int]string{}
	out.Confidences = map[int]float64{}
	for i, id := range present {
		n := i + 1
		out.ObjectIDs[i] = n
		if c, ok := m.Classes[id]; ok {
			out.Classes[n] = c
		}
		if c, ok := m.Confidences[id]; ok {
			out.Confidences[n] = c
		}
	}
	mg.logger.Info("renumbered ids", zap.Int("mask_id", m.ID), zap.Int("count", len(present)))
	return out, nil
}

// Statistics returns per-identifier pixel statistics gathered in a single
// pass over the buffer. Declared identifiers without pixels are omitted.
func (mg *Manager) Statistics(m *frame.Mask) (map[int]IDStatistics, error) {
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("statistics: %w", err)
	}
	type acc struct {
		n              int
		x0, y0, x1, y1 int
		sumX, sumY     float64
	}
	var buckets [frame.MaxObjectID + 1]*acc
	w := m.Width
	for i, v := range m.Data {
		if v == 0 {
			continue
		}
		x, y := i%w, i/w
		a := buckets[v]
		if a == nil {
			a = &acc{x0: x, y0: y, x1: x, y1: y}
			buckets[v] = a
		}
		a.n++
		a.x0, a.x1 = min(a.x0, x), max(a.x1, x)
		a.y0, a.y1 = min(a.y0, y), max(a.y1, y)
		a.sumX += float64(x)
		a.sumY += float64(y)
	}

	total := float64(m.Width * m.Height)
	stats := make(map[int]IDStatistics, len(m.ObjectIDs))
	for _, id := range m.ObjectIDs {
		a := buckets[id]
		if a == nil {
			continue
		}
		s := IDStatistics{
			ID:         id,
			PixelCount: a.n,
			BBox:       [4]int{a.x0, a.y0, a.x1, a.y1},
			Centroid:   [2]float64{a.sumX / float64(a.n), a.sumY / float64(a.n)},
			AreaRatio:  float64(a.n) / total,
			Class:      m.Classes[id],
		}
		if c, ok := m.Confidences[id]; ok {
			s.Confidence = &c
		}
		stats[id] = s
	}
	return stats, nil
}
