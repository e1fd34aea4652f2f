package handlers

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/kozaktomas/frame-redactor/internal/batch"
	"github.com/kozaktomas/frame-redactor/internal/constants"
)

// JobStatus represents the status of an async job.
type JobStatus string

// JobStatus constants define the lifecycle states of an async job.
const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// BatchJob represents an async batch redaction job.
type BatchJob struct {
	EventBroadcaster

	ID          string
	Status      JobStatus
	Progress    int
	TotalFrames int
	Processed   int
	Failed      int
	Error       string
	StartedAt   time.Time
	CompletedAt *time.Time
	Options     BatchJobOptions
	Outcomes    []JobOutcome
}

// BatchJobOptions holds the directories and chain of a batch job.
type BatchJobOptions struct {
	FrameDir  string `json:"frame_dir"`
	MaskDir   string `json:"mask_dir"`
	OutputDir string `json:"output_dir"`
	Format    string `json:"format"`
	Preset    string `json:"preset,omitempty"`
	Effects   int    `json:"effects"`
	Preview   bool   `json:"preview"`
	Workers   int    `json:"workers"`
}

// JobOutcome is the JSON form of one processed frame.
type JobOutcome struct {
	Input      string  `json:"input"`
	Output     string  `json:"output"`
	Success    bool    `json:"success"`
	Error      string  `json:"error,omitempty"`
	DurationMS float64 `json:"duration_ms"`
}

func newJobOutcome(o batch.Outcome) JobOutcome {
	return JobOutcome{
		Input:      o.Input,
		Output:     o.Output,
		Success:    o.Success,
		Error:      o.Error,
		DurationMS: float64(o.Duration.Microseconds()) / 1000,
	}
}

// GetStatus returns the current job status (implements SSEJob).
func (j *BatchJob) GetStatus() JobStatus {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.Status
}

// JobSnapshot is a point-in-time copy of a BatchJob.
type JobSnapshot struct {
	ID          string          `json:"id"`
	Status      JobStatus       `json:"status"`
	Progress    int             `json:"progress"`
	TotalFrames int             `json:"total_frames"`
	Processed   int             `json:"processed_frames"`
	Failed      int             `json:"failed_frames"`
	Error       string          `json:"error,omitempty"`
	StartedAt   time.Time       `json:"started_at"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
	Options     BatchJobOptions `json:"options"`
	Outcomes    []JobOutcome    `json:"outcomes,omitempty"`
}

// Snapshot returns a copy of the job that is safe to encode while the job runs.
func (j *BatchJob) Snapshot() JobSnapshot {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return JobSnapshot{
		ID:          j.ID,
		Status:      j.Status,
		Progress:    j.Progress,
		TotalFrames: j.TotalFrames,
		Processed:   j.Processed,
		Failed:      j.Failed,
		Error:       j.Error,
		StartedAt:   j.StartedAt,
		CompletedAt: j.CompletedAt,
		Options:     j.Options,
		Outcomes:    slices.Clone(j.Outcomes),
	}
}

// record stores one finished frame and updates the progress counters.
func (j *BatchJob) record(o batch.Outcome) JobOutcome {
	out := newJobOutcome(o)
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Processed++
	if !o.Success {
		j.Failed++
	}
	if j.TotalFrames > 0 {
		j.Progress = j.Processed * 100 / j.TotalFrames
	}
	j.Outcomes = append(j.Outcomes, out)
	return out
}

// finish moves the job into a terminal state unless it was already cancelled.
func (j *BatchJob) finish(status JobStatus, errMsg string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	now := time.Now()
	j.CompletedAt = &now
	if j.Status == JobStatusCancelled {
		return
	}
	j.Status = status
	j.Error = errMsg
}

func (j *BatchJob) setRunning(total int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.Status == JobStatusPending {
		j.Status = JobStatusRunning
	}
	j.TotalFrames = total
}

// Cancel cancels the batch job.
func (j *BatchJob) Cancel() {
	j.mu.Lock()
	j.Status = JobStatusCancelled
	j.mu.Unlock()
	j.EventBroadcaster.Cancel()
}

// JobEvent represents an event from a job.
type JobEvent struct {
	Type    string `json:"type"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// EventBroadcaster provides listener management and event broadcasting for async jobs.
// Embed this in job structs to get AddListener, RemoveListener, and SendEvent methods.
type EventBroadcaster struct {
	cancel    context.CancelFunc
	listeners []chan JobEvent
	mu        sync.RWMutex
}

// AddListener adds an event listener.
func (b *EventBroadcaster) AddListener() chan JobEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan JobEvent, constants.EventChannelBuffer)
	b.listeners = append(b.listeners, ch)
	return ch
}

// RemoveListener removes an event listener.
func (b *EventBroadcaster) RemoveListener(ch chan JobEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, listener := range b.listeners {
		if listener == ch {
			b.listeners = append(b.listeners[:i], b.listeners[i+1:]...)
			close(ch)
			return
		}
	}
}

// SendEvent sends an event to all listeners.
func (b *EventBroadcaster) SendEvent(event JobEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, listener := range b.listeners {
		select {
		case listener <- event:
		default:
			// Listener buffer full, skip.
		}
	}
}

// Cancel cancels the job via context and sends a cancelled event.
func (b *EventBroadcaster) Cancel() {
	b.mu.RLock()
	cancel := b.cancel
	b.mu.RUnlock()
	if cancel != nil {
		cancel()
	}
	b.SendEvent(JobEvent{Type: "cancelled", Message: "Job cancelled by user"})
}

// setCancel stores the function that stops the job's context.
func (b *EventBroadcaster) setCancel(cancel context.CancelFunc) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cancel = cancel
}

// SSEJob is the interface required by streamSSEEvents to stream job events via SSE.
type SSEJob interface {
	AddListener() chan JobEvent
	RemoveListener(ch chan JobEvent)
	GetStatus() JobStatus
}

// JobManager manages async jobs.
type JobManager struct {
	jobs  map[string]*BatchJob
	order []string
	mu    sync.RWMutex
}

// NewJobManager creates a new job manager.
func NewJobManager() *JobManager {
	return &JobManager{
		jobs: make(map[string]*BatchJob),
	}
}

// CreateJob creates a new batch job. The oldest finished jobs are dropped
// once more than constants.MaxBatchJobs are tracked.
func (m *JobManager) CreateJob(id string, options BatchJobOptions) *BatchJob {
	job := &BatchJob{
		ID:        id,
		Status:    JobStatusPending,
		StartedAt: time.Now(),
		Options:   options,
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[id] = job
	m.order = append(m.order, id)
	m.evictLocked()
	return job
}

func (m *JobManager) evictLocked() {
	for i := 0; i < len(m.order) && len(m.order) > constants.MaxBatchJobs; {
		id := m.order[i]
		if job, ok := m.jobs[id]; ok && !isJobTerminal(job.GetStatus()) {
			i++
			continue
		}
		delete(m.jobs, id)
		m.order = slices.Delete(m.order, i, i+1)
	}
}

// GetJob retrieves a job by ID.
func (m *JobManager) GetJob(id string) *BatchJob {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.jobs[id]
}

// DeleteJob removes a job.
func (m *JobManager) DeleteJob(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.jobs, id)
	if i := slices.Index(m.order, id); i >= 0 {
		m.order = slices.Delete(m.order, i, i+1)
	}
}

// ListJobs returns all jobs, oldest first.
func (m *JobManager) ListJobs() []*BatchJob {
	m.mu.RLock()
	defer m.mu.RUnlock()
	jobs := make([]*BatchJob, 0, len(m.order))
	for _, id := range m.order {
		jobs = append(jobs, m.jobs[id])
	}
	return jobs
}
