package mask

import (
	"errors"
	"fmt"
	"sort"

	"github.com/kozaktomas/frame-redactor/internal/frame"
	"go.uber.org/zap"
)

// ErrUnknownMethod is returned for merge methods other than union, intersection and difference.
var ErrUnknownMethod = errors.New("unknown merge method")

// MergeMethod selects how Merge combines mask footprints.
type MergeMethod string

// MergeMethod values.
const (
	MergeUnion        MergeMethod = "union"
	MergeIntersection MergeMethod = "intersection"
	MergeDifference   MergeMethod = "difference"
)

// BBox is the bounding rectangle of one identifier's largest connected region.
type BBox struct {
	ID     int `json:"id"`
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Processor runs morphology and set algebra over identifier masks.
// Every method returns a new mask and leaves its inputs untouched.
type Processor struct {
	logger *zap.Logger
}

// NewProcessor creates a mask processor. A nil logger disables logging.
func NewProcessor(logger *zap.Logger) *Processor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Processor{logger: logger}
}

// Dilate grows every region by an elliptical element of side kernelSize.
// Adjacent regions with different identifiers can bleed into each other;
// the larger identifier wins on shared borders.
func (p *Processor) Dilate(m *frame.Mask, kernelSize int) (*frame.Mask, error) {
	return p.apply(m, kernelSize, "dilate", Dilate)
}

// Erode shrinks every region by an elliptical element of side kernelSize.
func (p *Processor) Erode(m *frame.Mask, kernelSize int) (*frame.Mask, error) {
	return p.apply(m, kernelSize, "erode", Erode)
}

// Open erodes then dilates, removing specks smaller than the element.
func (p *Processor) Open(m *frame.Mask, kernelSize int) (*frame.Mask, error) {
	return p.apply(m, kernelSize, "open", func(src []uint8, w, h, k int) ([]uint8, error) {
		eroded, err := Erode(src, w, h, k)
		if err != nil {
			return nil, err
		}
		return Dilate(eroded, w, h, k)
	})
}

// Close dilates then erodes, filling holes smaller than the element.
func (p *Processor) Close(m *frame.Mask, kernelSize int) (*frame.Mask, error) {
	return p.apply(m, kernelSize, "close", func(src []uint8, w, h, k int) ([]uint8, error) {
		dilated, err := Dilate(src, w, h, k)
		if err != nil {
			return nil, err
		}
		return Erode(dilated, w, h, k)
	})
}

// Morph dispatches a morphology operation by name.
func (p *Processor) Morph(m *frame.Mask, op string, kernelSize int) (*frame.Mask, error) {
	switch op {
	case "dilate":
		return p.Dilate(m, kernelSize)
	case "erode":
		return p.Erode(m, kernelSize)
	case "open":
		return p.Open(m, kernelSize)
	case "close":
		return p.Close(m, kernelSize)
	default:
		return nil, fmt.Errorf("unknown morphology operation %q", op)
	}
}

func (p *Processor) apply(m *frame.Mask, k int, op string, fn func([]uint8, int, int, int) ([]uint8, error)) (*frame.Mask, error) {
	if k < 1 {
		return nil, fmt.Errorf("%s: %w: %d", op, ErrInvalidKernel, k)
	}
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	data, err := fn(m.Data, m.Width, m.Height, k)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	out := m.Clone()
	out.Data = data
	p.logger.Debug("mask morphology applied",
		zap.String("op", op),
		zap.Int("kernel_size", k),
		zap.Int("mask_id", m.ID))
	return out, nil
}

// Merge combines masks of equal size. Union keeps the per-pixel maximum,
// intersection the per-pixel minimum, and difference keeps the first mask
// with every pixel cleared where any later mask is set. Metadata is unioned;
// earlier masks win when two masks describe the same identifier.
func (p *Processor) Merge(masks []*frame.Mask, method MergeMethod) (*frame.Mask, error) {
	if len(masks) == 0 {
		return nil, errors.New("merge: no masks given")
	}
	switch method {
	case MergeUnion, MergeIntersection, MergeDifference:
	default:
		return nil, fmt.Errorf("merge: %w: %q", ErrUnknownMethod, method)
	}
	first := masks[0]
	for i, m := range masks {
		if err := m.Validate(); err != nil {
			return nil, fmt.Errorf("merge: mask %d: %w", i, err)
		}
		if m.Width != first.Width || m.Height != first.Height {
			return nil, fmt.Errorf("merge: mask %d: %w: %dx%d vs %dx%d",
				i, frame.ErrSizeMismatch, m.Width, m.Height, first.Width, first.Height)
		}
	}

	out := first.Clone()
	for _, m := range masks[1:] {
		for i, v := range m.Data {
			switch method {
			case MergeUnion:
				out.Data[i] = max(out.Data[i], v)
			case MergeIntersection:
				out.Data[i] = min(out.Data[i], v)
			case MergeDifference:
				if v != 0 {
					out.Data[i] = 0
				}
			}
		}
		out.ObjectIDs = append(out.ObjectIDs, m.ObjectIDs...)
		for id, c := range m.Classes {
			if _, ok := out.Classes[id]; !ok {
				out.Classes[id] = c
			}
		}
		for id, c := range m.Confidences {
			if _, ok := out.Confidences[id]; !ok {
				out.Confidences[id] = c
			}
		}
	}
	out.ObjectIDs = frame.SortIDs(out.ObjectIDs)

	p.logger.Debug("masks merged",
		zap.String("method", string(method)),
		zap.Int("count", len(masks)),
		zap.Ints("object_ids", out.ObjectIDs))
	return out, nil
}

// SplitByID returns one mask per declared identifier holding only its pixels.
func (p *Processor) SplitByID(m *frame.Mask) (map[int]*frame.Mask, error) {
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("split: %w", err)
	}
	out := make(map[int]*frame.Mask, len(m.ObjectIDs))
	for _, id := range m.ObjectIDs {
		part := frame.NewMask(m.Width, m.Height)
		part.ID = m.ID
		part.FrameIndex = m.FrameIndex
		part.ObjectIDs = []int{id}
		for i, v := range m.Data {
			if int(v) == id {
				part.Data[i] = v
			}
		}
		if c, ok := m.Classes[id]; ok {
			part.Classes[id] = c
		}
		if c, ok := m.Confidences[id]; ok {
			part.Confidences[id] = c
		}
		out[id] = part
	}
	return out, nil
}

// BoundingBoxes returns, per identifier, the bounding rectangle of its largest
// 8-connected region. id 0 means every declared identifier. Identifiers with
// no pixels are omitted, so an all-background mask yields an empty slice.
func (p *Processor) BoundingBoxes(m *frame.Mask, id int) ([]BBox, error) {
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("bbox: %w", err)
	}
	ids := m.ObjectIDs
	if id != 0 {
		ids = []int{id}
	}
	boxes := []BBox{}
	for _, oid := range ids {
		if oid < 1 || oid > frame.MaxObjectID {
			continue
		}
		comps := components(m.Data, m.Width, m.Height, uint8(oid))
		if len(comps) == 0 {
			continue
		}
		best := comps[0]
		for _, c := range comps[1:] {
			if c.area > best.area {
				best = c
			}
		}
		boxes = append(boxes, BBox{
			ID:     oid,
			X:      best.minX,
			Y:      best.minY,
			Width:  best.maxX - best.minX + 1,
			Height: best.maxY - best.minY + 1,
		})
	}
	sort.Slice(boxes, func(i, j int) bool { return boxes[i].ID < boxes[j].ID })
	return boxes, nil
}
