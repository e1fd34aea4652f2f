package handlers

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/kozaktomas/frame-redactor/internal/config"
	"github.com/kozaktomas/frame-redactor/internal/constants"
	"github.com/kozaktomas/frame-redactor/internal/effect"
	"github.com/kozaktomas/frame-redactor/internal/frame"
	"github.com/kozaktomas/frame-redactor/internal/media"
	"go.uber.org/zap"
)

// EffectsHandler exposes the effect engine.
type EffectsHandler struct {
	config    *config.Config
	engine    *effect.Engine
	previewer *effect.Previewer
	logger    *zap.Logger
}

// NewEffectsHandler creates a new effects handler
func NewEffectsHandler(cfg *config.Config, engine *effect.Engine, logger *zap.Logger) *EffectsHandler {
	return &EffectsHandler{
		config:    cfg,
		engine:    engine,
		previewer: effect.NewPreviewer(engine, logger),
		logger:    logger,
	}
}

// EffectsListResponse lists the registered effects.
type EffectsListResponse struct {
	Effects      []effect.Definition `json:"effects"`
	GPUAvailable bool                `json:"gpu_available"`
}

// List returns every registered effect definition.
func (h *EffectsHandler) List(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, EffectsListResponse{
		Effects:      h.engine.Definitions(),
		GPUAvailable: h.engine.GPUAvailable(),
	})
}

// Get returns one effect definition.
func (h *EffectsHandler) Get(w http.ResponseWriter, r *http.Request) {
	kind := effect.Kind(chi.URLParam(r, "kind"))
	fx, ok := h.engine.Effect(kind)
	if !ok {
		respondError(w, http.StatusNotFound, "effect not found")
		return
	}
	respondJSON(w, http.StatusOK, fx.Definition())
}

// ApplyRequest applies a chain to one frame.
type ApplyRequest struct {
	Frame   *frame.Frame    `json:"frame"`
	Masks   []*frame.Mask   `json:"masks"`
	Effects []effect.Config `json:"effects"`
	Preset  string          `json:"preset,omitempty"`
	Preview bool            `json:"preview"`
	// Format selects an encoded image response (png, jpeg or webp) instead of JSON.
	Format string `json:"format,omitempty"`
}

// ApplyResponse is the JSON result of an apply call.
type ApplyResponse struct {
	Frame   *frame.Frame             `json:"frame"`
	Results map[string]effect.Result `json:"results"`
}

// Apply runs an effect chain over a frame. Per-effect failures are reported
// in the results map and never fail the request.
func (h *EffectsHandler) Apply(w http.ResponseWriter, r *http.Request) {
	var req ApplyRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if !requireFrame(w, req.Frame) {
		return
	}

	chain := req.Effects
	if req.Preset != "" {
		preset, ok := h.config.Preset(req.Preset)
		if !ok {
			respondError(w, http.StatusNotFound, "preset not found")
			return
		}
		chain = preset
	}

	out, results := h.engine.ApplyEffects(req.Frame, req.Masks, chain, req.Preview)
	h.logger.Debug("effects applied",
		zap.Int("effects", len(chain)),
		zap.Int("masks", len(req.Masks)),
		zap.Bool("preview", req.Preview))

	if req.Format != "" {
		format, err := media.FormatOf("frame." + req.Format)
		if err != nil {
			respondErr(w, err)
			return
		}
		h.respondImage(w, out, format)
		return
	}
	respondJSON(w, http.StatusOK, ApplyResponse{Frame: out, Results: results})
}

// EstimateRequest asks for the cost of a chain at a resolution.
type EstimateRequest struct {
	Width   int             `json:"width"`
	Height  int             `json:"height"`
	Effects []effect.Config `json:"effects"`
}

// EstimateResponse holds per-effect estimates in milliseconds.
type EstimateResponse struct {
	Estimates map[string]float64 `json:"estimates"`
	TotalMS   float64            `json:"total_ms"`
}

// Estimate returns the estimated processing time of each enabled effect.
func (h *EffectsHandler) Estimate(w http.ResponseWriter, r *http.Request) {
	var req EstimateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Width <= 0 || req.Height <= 0 {
		respondError(w, http.StatusBadRequest, "width and height must be positive")
		return
	}

	resp := EstimateResponse{Estimates: map[string]float64{}}
	for _, cfg := range req.Effects {
		if !cfg.Enabled {
			continue
		}
		ms, err := h.engine.Estimate(req.Width, req.Height, cfg)
		if err != nil {
			respondErr(w, err)
			return
		}
		resp.Estimates[cfg.ID] = ms
		resp.TotalMS += ms
	}
	respondJSON(w, http.StatusOK, resp)
}

// ThumbnailRequest asks for an effect thumbnail over the test pattern.
type ThumbnailRequest struct {
	Kind   effect.Kind    `json:"kind"`
	Params map[string]any `json:"params"`
	Width  int            `json:"width"`
	Height int            `json:"height"`
}

// Thumbnail renders an effect over a generated test pattern as PNG.
func (h *EffectsHandler) Thumbnail(w http.ResponseWriter, r *http.Request) {
	var req ThumbnailRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Width == 0 {
		req.Width = constants.DefaultThumbnailSize
	}
	if req.Height == 0 {
		req.Height = constants.DefaultThumbnailSize
	}
	if !checkRenderSize(w, req.Width, req.Height) {
		return
	}

	thumb, err := h.previewer.Thumbnail(req.Kind, req.Params, req.Width, req.Height)
	if err != nil {
		respondErr(w, err)
		return
	}
	h.respondImage(w, thumb, media.FormatPNG)
}

// PreviewRequest renders one effect on a scaled-down frame.
type PreviewRequest struct {
	Frame  *frame.Frame     `json:"frame"`
	Mask   *frame.Mask      `json:"mask"`
	Effect effect.Config    `json:"effect"`
	Width  int              `json:"width"`
	Height int              `json:"height"`
	Split  effect.SplitType `json:"split,omitempty"`
}

func (h *EffectsHandler) decodePreview(w http.ResponseWriter, r *http.Request) (PreviewRequest, bool) {
	var req PreviewRequest
	if !decodeJSON(w, r, &req) {
		return req, false
	}
	if !requireFrame(w, req.Frame) || !requireMask(w, req.Mask) {
		return req, false
	}
	if err := h.engine.Registry().Validate(req.Effect); err != nil {
		respondErr(w, err)
		return req, false
	}
	return req, true
}

// Preview returns a letterboxed PNG preview of one effect.
func (h *EffectsHandler) Preview(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodePreview(w, r)
	if !ok {
		return
	}
	if req.Width == 0 {
		req.Width = constants.DefaultPreviewWidth
	}
	if req.Height == 0 {
		req.Height = constants.DefaultPreviewHeight
	}
	if !checkRenderSize(w, req.Width, req.Height) {
		return
	}

	out, res, err := h.previewer.Preview(req.Frame, req.Mask, req.Effect, req.Width, req.Height)
	if err != nil {
		respondErr(w, err)
		return
	}
	w.Header().Set("X-Effect-Success", fmt.Sprint(res.Success))
	h.respondImage(w, out, media.FormatPNG)
}

// Compare returns a PNG with the original and processed frame side by side.
func (h *EffectsHandler) Compare(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodePreview(w, r)
	if !ok {
		return
	}
	switch req.Split {
	case "":
		req.Split = effect.SplitVertical
	case effect.SplitVertical, effect.SplitHorizontal, effect.SplitDiagonal:
	default:
		respondError(w, http.StatusBadRequest, fmt.Sprintf("unknown split %q", sanitizeForLog(string(req.Split))))
		return
	}

	out, err := h.previewer.BeforeAfter(req.Frame, req.Mask, req.Effect, req.Split)
	if err != nil {
		respondErr(w, err)
		return
	}
	h.respondImage(w, out, media.FormatPNG)
}

// checkRenderSize rejects output sizes that are negative or above MaxRenderDimension.
func checkRenderSize(w http.ResponseWriter, width, height int) bool {
	if width <= 0 || height <= 0 {
		respondError(w, http.StatusBadRequest, "width and height must be positive")
		return false
	}
	if width > constants.MaxRenderDimension || height > constants.MaxRenderDimension {
		respondError(w, http.StatusBadRequest,
			fmt.Sprintf("width and height must not exceed %d", constants.MaxRenderDimension))
		return false
	}
	return true
}

// respondImage encodes f in the given format and writes it.
func (h *EffectsHandler) respondImage(w http.ResponseWriter, f *frame.Frame, format media.Format) {
	var buf bytes.Buffer
	if err := media.EncodeFrame(&buf, f, format, h.config.Engine.JPEGQuality); err != nil {
		respondErr(w, err)
		return
	}
	w.Header().Set("Content-Type", "image/"+string(format))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}
