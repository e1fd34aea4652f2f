package handlers

import (
	"context"
	"fmt"
	"net/http"
	"slices"
	"strconv"
	"sync"

	"github.com/kozaktomas/frame-redactor/internal/constants"
	"github.com/kozaktomas/frame-redactor/internal/database"
	"github.com/kozaktomas/frame-redactor/internal/frame"
	"github.com/kozaktomas/frame-redactor/internal/idmgmt"
	"go.uber.org/zap"
)

// ThresholdsHandler exposes the threshold manager and mirrors every change
// into the optional store.
type ThresholdsHandler struct {
	manager *idmgmt.ThresholdManager
	store   database.ThresholdStore
	logger  *zap.Logger

	// mu serializes mutations so history is persisted in sequence order.
	mu           sync.Mutex
	persistedSeq int64
}

// NewThresholdsHandler creates a new thresholds handler. store may be nil,
// in which case settings live in memory only. History already held by tm is
// treated as persisted.
func NewThresholdsHandler(tm *idmgmt.ThresholdManager, store database.ThresholdStore, logger *zap.Logger) *ThresholdsHandler {
	h := &ThresholdsHandler{manager: tm, store: store, logger: logger}
	if last, ok := tm.LastEntry(); ok {
		h.persistedSeq = last.Seq
	}
	return h
}

// RestoreThresholds loads persisted settings and history into tm. It is a
// no-op when nothing was saved yet.
func RestoreThresholds(ctx context.Context, tm *idmgmt.ThresholdManager, store database.ThresholdReader) error {
	s, err := store.LoadSettings(ctx)
	if err != nil {
		return fmt.Errorf("loading threshold settings: %w", err)
	}
	if s == nil {
		return nil
	}
	history, err := store.ListHistory(ctx, 0)
	if err != nil {
		return fmt.Errorf("loading threshold history: %w", err)
	}
	if err := tm.Restore(*s, history); err != nil {
		return fmt.Errorf("restoring thresholds: %w", err)
	}
	return nil
}

// persist writes the settings, every history entry not stored yet and,
// when backfilled is set, the affected counts of the latest entry.
// Callers hold h.mu. Failures are logged; the in-memory state stays authoritative.
func (h *ThresholdsHandler) persist(ctx context.Context, backfilled bool) {
	if h.store == nil {
		return
	}
	if err := h.store.SaveSettings(ctx, h.manager.Settings()); err != nil {
		h.logger.Error("failed to save threshold settings", zap.Error(err))
		return
	}
	for _, e := range h.manager.History() {
		if e.Seq <= h.persistedSeq {
			continue
		}
		if err := h.store.AppendHistory(ctx, e); err != nil {
			h.logger.Error("failed to append threshold history", zap.Int64("seq", e.Seq), zap.Error(err))
			return
		}
		h.persistedSeq = e.Seq
	}
	if !backfilled {
		return
	}
	if last, ok := h.manager.LastEntry(); ok && last.Kind == idmgmt.HistoryDetection {
		if err := h.store.UpdateHistory(ctx, last); err != nil {
			h.logger.Error("failed to update threshold history", zap.Int64("seq", last.Seq), zap.Error(err))
		}
	}
}

// Get returns the current settings.
func (h *ThresholdsHandler) Get(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.manager.Settings())
}

// Update replaces every setting at once.
func (h *ThresholdsHandler) Update(w http.ResponseWriter, r *http.Request) {
	var s idmgmt.Settings
	if !decodeJSON(w, r, &s) {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.manager.UpdateSettings(s); err != nil {
		respondErr(w, err)
		return
	}
	h.persist(r.Context(), false)
	respondJSON(w, http.StatusOK, h.manager.Settings())
}

// ThresholdValueRequest carries a single threshold value.
type ThresholdValueRequest struct {
	Value *float64 `json:"value"`
}

func (h *ThresholdsHandler) setValue(w http.ResponseWriter, r *http.Request, set func(float64) error) {
	var req ThresholdValueRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Value == nil {
		respondError(w, http.StatusBadRequest, "value is required")
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := set(*req.Value); err != nil {
		respondErr(w, err)
		return
	}
	h.persist(r.Context(), false)
	respondJSON(w, http.StatusOK, h.manager.Settings())
}

// SetDetection changes the detection threshold.
func (h *ThresholdsHandler) SetDetection(w http.ResponseWriter, r *http.Request) {
	h.setValue(w, r, h.manager.SetDetectionThreshold)
}

// SetMerge changes the merge threshold.
func (h *ThresholdsHandler) SetMerge(w http.ResponseWriter, r *http.Request) {
	h.setValue(w, r, h.manager.SetMergeThreshold)
}

// ThresholdMaskRequest applies a threshold operation to a mask. Threshold
// defaults to the matching current setting; Confidences defaults to the mask's own.
type ThresholdMaskRequest struct {
	Mask        *frame.Mask     `json:"mask"`
	Confidences map[int]float64 `json:"confidences,omitempty"`
	Threshold   *float64        `json:"threshold,omitempty"`
}

// ThresholdMaskResponse is the result of a mask-filtering threshold operation.
type ThresholdMaskResponse struct {
	Mask       *frame.Mask `json:"mask"`
	RemovedIDs []int       `json:"removed_ids"`
}

func (h *ThresholdsHandler) decodeMask(w http.ResponseWriter, r *http.Request) (ThresholdMaskRequest, bool) {
	var req ThresholdMaskRequest
	if !decodeJSON(w, r, &req) {
		return req, false
	}
	return req, requireMask(w, req.Mask)
}

// Apply removes identifiers whose confidence is below the detection threshold.
func (h *ThresholdsHandler) Apply(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeMask(w, r)
	if !ok {
		return
	}
	threshold := h.manager.Settings().DetectionThreshold
	if req.Threshold != nil {
		threshold = *req.Threshold
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	out, err := h.manager.ApplyDetectionThreshold(req.Mask, req.Confidences, threshold)
	if err != nil {
		respondErr(w, err)
		return
	}
	removed := removedIDs(req.Mask, out)
	h.persist(r.Context(), len(removed) > 0)
	respondJSON(w, http.StatusOK, ThresholdMaskResponse{Mask: out, RemovedIDs: removed})
}

// FilterSmall removes identifiers below the minimum pixel count.
func (h *ThresholdsHandler) FilterSmall(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeMask(w, r)
	if !ok {
		return
	}
	out, removed, err := h.manager.FilterSmallIDs(req.Mask)
	if err != nil {
		respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, ThresholdMaskResponse{Mask: out, RemovedIDs: removed})
}

// Candidates suggests identifier pairs to merge, best first.
func (h *ThresholdsHandler) Candidates(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeMask(w, r)
	if !ok {
		return
	}
	threshold := h.manager.Settings().MergeThreshold
	if req.Threshold != nil {
		threshold = *req.Threshold
	}
	candidates, err := h.manager.SuggestMergeCandidates(req.Mask, threshold)
	if err != nil {
		respondErr(w, err)
		return
	}
	if candidates == nil {
		candidates = []idmgmt.MergeCandidate{}
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"threshold":  threshold,
		"candidates": candidates,
	})
}

// History returns the newest history entries, oldest first.
func (h *ThresholdsHandler) History(w http.ResponseWriter, r *http.Request) {
	limit := constants.DefaultHistoryLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			respondError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}
	history := h.manager.History()
	if limit > 0 && len(history) > limit {
		history = history[len(history)-limit:]
	}
	respondJSON(w, http.StatusOK, map[string]any{"history": history})
}

// removedIDs lists the identifiers declared in before but not in after.
func removedIDs(before, after *frame.Mask) []int {
	out := []int{}
	for _, id := range before.ObjectIDs {
		if !slices.Contains(after.ObjectIDs, id) {
			out = append(out, id)
		}
	}
	return out
}
