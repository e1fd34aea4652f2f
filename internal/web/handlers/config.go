package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/kozaktomas/frame-redactor/internal/config"
	"github.com/kozaktomas/frame-redactor/internal/database"
	"github.com/kozaktomas/frame-redactor/internal/effect"
)

// ConfigHandler handles configuration endpoints
type ConfigHandler struct {
	config *config.Config
	engine *effect.Engine
}

// NewConfigHandler creates a new config handler
func NewConfigHandler(cfg *config.Config, engine *effect.Engine) *ConfigHandler {
	return &ConfigHandler{
		config: cfg,
		engine: engine,
	}
}

// ConfigResponse represents the configuration response
type ConfigResponse struct {
	Presets            []PresetInfo `json:"presets"`
	GPUAvailable       bool         `json:"gpu_available"`
	Workers            int          `json:"workers"`
	ThresholdsWritable bool         `json:"thresholds_persistent"`
}

// PresetInfo summarizes a built-in effect chain
type PresetInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Effects     int    `json:"effects"`
}

// Get returns the available configuration
func (h *ConfigHandler) Get(w http.ResponseWriter, r *http.Request) {
	presets := make([]PresetInfo, 0, len(h.config.Presets))
	for _, name := range h.config.PresetNames() {
		p := h.config.Presets[name]
		presets = append(presets, PresetInfo{
			Name:        name,
			Description: p.Description,
			Effects:     len(p.Effects),
		})
	}

	response := ConfigResponse{
		Presets:            presets,
		GPUAvailable:       h.engine.GPUAvailable(),
		Workers:            h.config.Engine.Workers,
		ThresholdsWritable: database.IsInitialized(),
	}

	respondJSON(w, http.StatusOK, response)
}

// GetPreset returns the full effect chain of one preset
func (h *ConfigHandler) GetPreset(w http.ResponseWriter, r *http.Request) {
	chain, ok := h.config.Preset(chi.URLParam(r, "name"))
	if !ok {
		respondError(w, http.StatusNotFound, "preset not found")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"effects": chain})
}

// GPURequest toggles the GPU capability flag
type GPURequest struct {
	Enabled bool `json:"enabled"`
}

// SetGPU toggles the GPU capability flag handed to effects
func (h *ConfigHandler) SetGPU(w http.ResponseWriter, r *http.Request) {
	var req GPURequest
	if !decodeJSON(w, r, &req) {
		return
	}
	h.engine.SetGPUEnabled(req.Enabled)
	respondJSON(w, http.StatusOK, map[string]bool{"gpu_available": h.engine.GPUAvailable()})
}
