package handlers

import (
	"net/http"
	"strconv"

	"github.com/kozaktomas/frame-redactor/internal/frame"
	"github.com/kozaktomas/frame-redactor/internal/idmgmt"
	"github.com/kozaktomas/frame-redactor/internal/mask"
	"go.uber.org/zap"
)

// MasksHandler exposes identifier management and mask processing.
type MasksHandler struct {
	ids       *idmgmt.Manager
	processor *mask.Processor
	logger    *zap.Logger
}

// NewMasksHandler creates a new masks handler
func NewMasksHandler(logger *zap.Logger) *MasksHandler {
	return &MasksHandler{
		ids:       idmgmt.NewManager(logger),
		processor: mask.NewProcessor(logger),
		logger:    logger,
	}
}

// MaskRequest is the body shared by the single-mask endpoints. Only the
// fields an endpoint needs are read.
type MaskRequest struct {
	Mask       *frame.Mask `json:"mask"`
	IDs        []int       `json:"ids,omitempty"`
	Class      string      `json:"class,omitempty"`
	Min        int         `json:"min,omitempty"`
	Max        int         `json:"max,omitempty"`
	Sources    []int       `json:"source_ids,omitempty"`
	Target     int         `json:"target_id,omitempty"`
	ID         int         `json:"id,omitempty"`
	Operation  string      `json:"operation,omitempty"`
	KernelSize int         `json:"kernel_size,omitempty"`
}

// MaskResponse wraps a transformed mask.
type MaskResponse struct {
	Mask *frame.Mask `json:"mask"`
}

func (h *MasksHandler) decode(w http.ResponseWriter, r *http.Request) (MaskRequest, bool) {
	var req MaskRequest
	if !decodeJSON(w, r, &req) {
		return req, false
	}
	return req, requireMask(w, req.Mask)
}

// respondMask writes out, or the error that prevented it.
func (h *MasksHandler) respondMask(w http.ResponseWriter, out *frame.Mask, err error) {
	if err != nil {
		respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, MaskResponse{Mask: out})
}

// Statistics returns per-identifier statistics keyed by identifier.
func (h *MasksHandler) Statistics(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decode(w, r)
	if !ok {
		return
	}
	stats, err := h.ids.Statistics(req.Mask)
	if err != nil {
		respondErr(w, err)
		return
	}
	out := make(map[string]idmgmt.IDStatistics, len(stats))
	for id, s := range stats {
		out[strconv.Itoa(id)] = s
	}
	respondJSON(w, http.StatusOK, map[string]any{"statistics": out})
}

// BoundingBoxes returns the largest-region bounding box per identifier.
func (h *MasksHandler) BoundingBoxes(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decode(w, r)
	if !ok {
		return
	}
	boxes, err := h.processor.BoundingBoxes(req.Mask, req.ID)
	if err != nil {
		respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"boxes": boxes})
}

// Delete removes the listed identifiers, or every identifier of a class.
func (h *MasksHandler) Delete(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decode(w, r)
	if !ok {
		return
	}
	if req.Class != "" {
		out, err := h.ids.DeleteByClass(req.Mask, req.Class)
		h.respondMask(w, out, err)
		return
	}
	out, err := h.ids.DeleteIDs(req.Mask, req.IDs)
	h.respondMask(w, out, err)
}

// DeleteRange removes every identifier in [min, max].
func (h *MasksHandler) DeleteRange(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decode(w, r)
	if !ok {
		return
	}
	out, err := h.ids.DeleteRange(req.Mask, req.Min, req.Max)
	h.respondMask(w, out, err)
}

// Clear removes every identifier.
func (h *MasksHandler) Clear(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decode(w, r)
	if !ok {
		return
	}
	out, err := h.ids.DeleteAll(req.Mask)
	h.respondMask(w, out, err)
}

// MergeIDs rewrites the source identifiers to the target.
func (h *MasksHandler) MergeIDs(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decode(w, r)
	if !ok {
		return
	}
	if req.Target == 0 {
		respondError(w, http.StatusBadRequest, "target_id is required")
		return
	}
	out, err := h.ids.MergeIDs(req.Mask, req.Sources, req.Target)
	h.respondMask(w, out, err)
}

// Renumber compacts identifiers to 1..n.
func (h *MasksHandler) Renumber(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decode(w, r)
	if !ok {
		return
	}
	out, err := h.ids.RenumberIDs(req.Mask)
	h.respondMask(w, out, err)
}

// Morphology runs dilate, erode, open or close.
func (h *MasksHandler) Morphology(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decode(w, r)
	if !ok {
		return
	}
	switch req.Operation {
	case "dilate", "erode", "open", "close":
	default:
		respondError(w, http.StatusBadRequest, "operation must be one of dilate, erode, open, close")
		return
	}
	if req.KernelSize == 0 {
		req.KernelSize = 3
	}
	out, err := h.processor.Morph(req.Mask, req.Operation, req.KernelSize)
	h.respondMask(w, out, err)
}

// CombineRequest merges several masks.
type CombineRequest struct {
	Masks  []*frame.Mask    `json:"masks"`
	Method mask.MergeMethod `json:"method"`
}

// Combine unions, intersects or subtracts masks.
func (h *MasksHandler) Combine(w http.ResponseWriter, r *http.Request) {
	var req CombineRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if len(req.Masks) == 0 {
		respondError(w, http.StatusBadRequest, "masks are required")
		return
	}
	if req.Method == "" {
		req.Method = mask.MergeUnion
	}
	out, err := h.processor.Merge(req.Masks, req.Method)
	h.respondMask(w, out, err)
}

// Split returns one mask per identifier keyed by identifier.
func (h *MasksHandler) Split(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decode(w, r)
	if !ok {
		return
	}
	parts, err := h.processor.SplitByID(req.Mask)
	if err != nil {
		respondErr(w, err)
		return
	}
	out := make(map[string]*frame.Mask, len(parts))
	for id, m := range parts {
		out[strconv.Itoa(id)] = m
	}
	respondJSON(w, http.StatusOK, map[string]any{"masks": out})
}
