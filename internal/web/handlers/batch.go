package handlers

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/kozaktomas/frame-redactor/internal/batch"
	"github.com/kozaktomas/frame-redactor/internal/config"
	"github.com/kozaktomas/frame-redactor/internal/effect"
	"go.uber.org/zap"
)

// BatchHandler runs directory batches in the background.
type BatchHandler struct {
	config     *config.Config
	engine     *effect.Engine
	jobManager *JobManager
	logger     *zap.Logger
}

// NewBatchHandler creates a new batch handler
func NewBatchHandler(cfg *config.Config, engine *effect.Engine, jm *JobManager, logger *zap.Logger) *BatchHandler {
	return &BatchHandler{
		config:     cfg,
		engine:     engine,
		jobManager: jm,
		logger:     logger,
	}
}

// BatchStartRequest represents a batch start request
type BatchStartRequest struct {
	FrameDir  string          `json:"frame_dir"`
	MaskDir   string          `json:"mask_dir"`
	OutputDir string          `json:"output_dir"`
	Format    string          `json:"format"`
	Preset    string          `json:"preset"`
	Effects   []effect.Config `json:"effects"`
	Preview   bool            `json:"preview"`
	Workers   int             `json:"workers"`
}

// resolveChain returns the request's effect chain, from the preset when one is named.
func (h *BatchHandler) resolveChain(req BatchStartRequest) ([]effect.Config, error) {
	chain := req.Effects
	if req.Preset != "" {
		preset, ok := h.config.Preset(req.Preset)
		if !ok {
			return nil, fmt.Errorf("unknown preset %q", req.Preset)
		}
		chain = preset
	}
	if len(chain) == 0 {
		return nil, fmt.Errorf("effects or preset is required")
	}
	registry := h.engine.Registry()
	for _, cfg := range chain {
		if err := registry.Validate(cfg); err != nil {
			return nil, fmt.Errorf("effect %q: %w", cfg.ID, err)
		}
	}
	return chain, nil
}

// Start starts a new batch job
func (h *BatchHandler) Start(w http.ResponseWriter, r *http.Request) {
	var req BatchStartRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if req.FrameDir == "" || req.MaskDir == "" || req.OutputDir == "" {
		respondError(w, http.StatusBadRequest, "frame_dir, mask_dir and output_dir are required")
		return
	}
	if req.Format == "" {
		req.Format = "png"
	}
	if req.Workers <= 0 {
		req.Workers = h.config.Engine.Workers
	}

	switch req.Format {
	case "png", "jpg", "jpeg", "webp":
	default:
		respondError(w, http.StatusBadRequest, fmt.Sprintf("unsupported output format %q", sanitizeForLog(req.Format)))
		return
	}

	chain, err := h.resolveChain(req)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	jobs, err := batch.JobsFromDirs(req.FrameDir, req.MaskDir, req.OutputDir, "."+req.Format)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	jobID := uuid.New().String()
	job := h.jobManager.CreateJob(jobID, BatchJobOptions{
		FrameDir:  req.FrameDir,
		MaskDir:   req.MaskDir,
		OutputDir: req.OutputDir,
		Format:    req.Format,
		Preset:    req.Preset,
		Effects:   len(chain),
		Preview:   req.Preview,
		Workers:   req.Workers,
	})

	ctx, cancel := context.WithCancel(context.Background())
	job.setCancel(cancel)
	go h.runBatchJob(ctx, cancel, job, jobs, chain)

	respondJSON(w, http.StatusAccepted, map[string]any{
		"job_id": jobID,
		"frames": len(jobs),
		"status": string(JobStatusPending),
	})
}

// runBatchJob processes jobs and reports progress through the job's listeners.
func (h *BatchHandler) runBatchJob(ctx context.Context, cancel context.CancelFunc, job *BatchJob, jobs []batch.Job, chain []effect.Config) {
	defer cancel()

	job.setRunning(len(jobs))
	job.SendEvent(JobEvent{Type: "started", Message: "Batch job started", Data: map[string]int{"total": len(jobs)}})
	h.logger.Info("batch job started",
		zap.String("job_id", job.ID),
		zap.Int("frames", len(jobs)),
		zap.Int("effects", len(chain)))

	outcomes := batch.Run(ctx, batch.Options{
		Engine:      h.engine,
		Effects:     chain,
		Workers:     job.Options.Workers,
		Preview:     job.Options.Preview,
		JPEGQuality: h.config.Engine.JPEGQuality,
		Logger:      h.logger,
	}, jobs, func(o batch.Outcome) {
		out := job.record(o)
		job.SendEvent(JobEvent{Type: "progress", Data: out})
	})

	failed := 0
	for _, o := range outcomes {
		if !o.Success {
			failed++
		}
	}

	switch {
	case ctx.Err() != nil:
		job.finish(JobStatusCancelled, "")
		h.logger.Info("batch job cancelled", zap.String("job_id", job.ID))
		return
	case failed > 0 && failed == len(outcomes):
		h.failJob(job, fmt.Sprintf("all %d frames failed", failed))
		return
	}

	job.finish(JobStatusCompleted, "")
	job.SendEvent(JobEvent{Type: "completed", Data: job.Snapshot()})
	h.logger.Info("batch job completed",
		zap.String("job_id", job.ID),
		zap.Int("frames", len(outcomes)),
		zap.Int("failed", failed))
}

// failJob marks the job as failed and notifies listeners.
func (h *BatchHandler) failJob(job *BatchJob, errMsg string) {
	job.finish(JobStatusFailed, errMsg)
	job.SendEvent(JobEvent{Type: "job_error", Message: errMsg})
	h.logger.Warn("batch job failed", zap.String("job_id", job.ID), zap.String("error", errMsg))
}

// List returns every tracked batch job.
func (h *BatchHandler) List(w http.ResponseWriter, r *http.Request) {
	jobs := h.jobManager.ListJobs()
	out := make([]JobSnapshot, 0, len(jobs))
	for _, job := range jobs {
		out = append(out, job.Snapshot())
	}
	respondJSON(w, http.StatusOK, out)
}

// Status returns the status of a batch job
func (h *BatchHandler) Status(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobId")
	if jobID == "" {
		respondError(w, http.StatusBadRequest, "missing job ID")
		return
	}

	job := h.jobManager.GetJob(jobID)
	if job == nil {
		respondError(w, http.StatusNotFound, "job not found")
		return
	}

	respondJSON(w, http.StatusOK, job.Snapshot())
}

// Events streams job events via SSE
func (h *BatchHandler) Events(w http.ResponseWriter, r *http.Request) {
	streamSSEEvents(w, r,
		func(id string) SSEJob {
			job := h.jobManager.GetJob(id)
			if job == nil {
				return nil
			}
			return job
		},
		func(job SSEJob) any {
			return job.(*BatchJob).Snapshot()
		},
	)
}

// Cancel cancels a running batch job
func (h *BatchHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobId")
	if jobID == "" {
		respondError(w, http.StatusBadRequest, "missing job ID")
		return
	}

	job := h.jobManager.GetJob(jobID)
	if job == nil {
		respondError(w, http.StatusNotFound, "job not found")
		return
	}

	if isJobTerminal(job.GetStatus()) {
		respondError(w, http.StatusBadRequest, "job is not running")
		return
	}

	job.Cancel()
	h.logger.Info("batch job cancel requested", zap.String("job_id", sanitizeForLog(jobID)))

	respondJSON(w, http.StatusOK, map[string]string{"status": string(JobStatusCancelled)})
}
