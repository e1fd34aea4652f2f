package handlers

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/kozaktomas/frame-redactor/internal/constants"
	"github.com/kozaktomas/frame-redactor/internal/effect"
	"github.com/kozaktomas/frame-redactor/internal/media"
	"go.uber.org/zap"
)

func createBatchHandlerForTest() (*BatchHandler, *JobManager) {
	jm := NewJobManager()
	return NewBatchHandler(testConfig(), testEngine(), jm, zap.NewNop()), jm
}

// writeBatchInputs writes n frames with one mask each into fresh directories
func writeBatchInputs(t *testing.T, n int) (frameDir, maskDir, outDir string) {
	t.Helper()
	root := t.TempDir()
	frameDir = filepath.Join(root, "frames")
	maskDir = filepath.Join(root, "masks")
	outDir = filepath.Join(root, "out")
	for i := 0; i < n; i++ {
		name := fmt.Sprintf("frame%04d", i)
		if err := media.SaveFrame(filepath.Join(frameDir, name+".png"), gradientFrame(16, 16), 90); err != nil {
			t.Fatalf("SaveFrame: %v", err)
		}
		if err := media.SaveMask(filepath.Join(maskDir, name+".png"), boxMask(16, 16, 4, 4, 11, 11, 1)); err != nil {
			t.Fatalf("SaveMask: %v", err)
		}
	}
	return frameDir, maskDir, outDir
}

// waitForJob polls until the job reaches a terminal state
func waitForJob(t *testing.T, job *BatchJob) JobSnapshot {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		if isJobTerminal(job.GetStatus()) {
			return job.Snapshot()
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("job %s did not finish, status %s", job.ID, job.GetStatus())
	return JobSnapshot{}
}

func TestBatchHandler_StartValidation(t *testing.T) {
	handler, jm := createBatchHandlerForTest()
	frameDir, maskDir, outDir := writeBatchInputs(t, 1)

	tests := []struct {
		name string
		body BatchStartRequest
	}{
		{"missing dirs", BatchStartRequest{Preset: "anonymize"}},
		{"bad format", BatchStartRequest{FrameDir: frameDir, MaskDir: maskDir, OutputDir: outDir, Format: "gif", Preset: "anonymize"}},
		{"no chain", BatchStartRequest{FrameDir: frameDir, MaskDir: maskDir, OutputDir: outDir}},
		{"unknown preset", BatchStartRequest{FrameDir: frameDir, MaskDir: maskDir, OutputDir: outDir, Preset: "nope"}},
		{"invalid effect", BatchStartRequest{
			FrameDir: frameDir, MaskDir: maskDir, OutputDir: outDir,
			Effects: []effect.Config{mosaicConfig("m", 1000)},
		}},
		{"unknown kind", BatchStartRequest{
			FrameDir: frameDir, MaskDir: maskDir, OutputDir: outDir,
			Effects: []effect.Config{{Kind: "sepia", ID: "s", Enabled: true}},
		}},
		{"missing frame dir", BatchStartRequest{FrameDir: filepath.Join(frameDir, "nope"), MaskDir: maskDir, OutputDir: outDir, Preset: "anonymize"}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			recorder := httptest.NewRecorder()
			handler.Start(recorder, jsonRequest(t, "POST", "/api/v1/batch", tc.body))
			assertStatusCode(t, recorder, http.StatusBadRequest)
		})
	}
	if len(jm.ListJobs()) != 0 {
		t.Errorf("rejected requests must not create jobs, got %d", len(jm.ListJobs()))
	}
}

func TestBatchHandler_StartAndComplete(t *testing.T) {
	handler, jm := createBatchHandlerForTest()
	frameDir, maskDir, outDir := writeBatchInputs(t, 3)

	recorder := httptest.NewRecorder()
	handler.Start(recorder, jsonRequest(t, "POST", "/api/v1/batch", BatchStartRequest{
		FrameDir:  frameDir,
		MaskDir:   maskDir,
		OutputDir: outDir,
		Format:    "jpg",
		Effects:   []effect.Config{mosaicConfig("m", 4)},
	}))

	assertStatusCode(t, recorder, http.StatusAccepted)
	var started struct {
		JobID  string `json:"job_id"`
		Frames int    `json:"frames"`
		Status string `json:"status"`
	}
	parseJSONResponse(t, recorder, &started)
	if started.Frames != 3 || started.Status != string(JobStatusPending) {
		t.Errorf("unexpected start response: %+v", started)
	}

	job := jm.GetJob(started.JobID)
	if job == nil {
		t.Fatal("job not registered")
	}
	snap := waitForJob(t, job)
	if snap.Status != JobStatusCompleted {
		t.Fatalf("status = %s, error %q", snap.Status, snap.Error)
	}
	if snap.Processed != 3 || snap.Failed != 0 || snap.Progress != 100 || len(snap.Outcomes) != 3 {
		t.Errorf("unexpected snapshot: %+v", snap)
	}
	if snap.CompletedAt == nil {
		t.Error("expected completed_at to be set")
	}
	for i := 0; i < 3; i++ {
		p := filepath.Join(outDir, fmt.Sprintf("frame%04d.jpg", i))
		if _, err := os.Stat(p); err != nil {
			t.Errorf("missing output %s: %v", p, err)
		}
	}

	t.Run("status", func(t *testing.T) {
		recorder := httptest.NewRecorder()
		req := requestWithChiParams(httptest.NewRequest("GET", "/api/v1/batch/"+job.ID, nil), map[string]string{"jobId": job.ID})
		handler.Status(recorder, req)

		assertStatusCode(t, recorder, http.StatusOK)
		var got JobSnapshot
		parseJSONResponse(t, recorder, &got)
		if got.ID != job.ID || got.Options.Format != "jpg" || got.Options.Effects != 1 {
			t.Errorf("unexpected status: %+v", got)
		}
	})

	t.Run("list", func(t *testing.T) {
		recorder := httptest.NewRecorder()
		handler.List(recorder, httptest.NewRequest("GET", "/api/v1/batch", nil))

		assertStatusCode(t, recorder, http.StatusOK)
		var got []JobSnapshot
		parseJSONResponse(t, recorder, &got)
		if len(got) != 1 || got[0].ID != job.ID {
			t.Errorf("unexpected list: %+v", got)
		}
	})

	t.Run("events of finished job", func(t *testing.T) {
		recorder := httptest.NewRecorder()
		req := requestWithChiParams(httptest.NewRequest("GET", "/api/v1/batch/"+job.ID+"/events", nil), map[string]string{"jobId": job.ID})
		handler.Events(recorder, req)

		assertContentType(t, recorder, "text/event-stream")
		body := recorder.Body.String()
		if !strings.HasPrefix(body, "event: status\n") || !strings.Contains(body, `"status":"completed"`) {
			t.Errorf("unexpected stream: %q", body)
		}
	})

	t.Run("cancel finished job", func(t *testing.T) {
		recorder := httptest.NewRecorder()
		req := requestWithChiParams(httptest.NewRequest("DELETE", "/api/v1/batch/"+job.ID, nil), map[string]string{"jobId": job.ID})
		handler.Cancel(recorder, req)
		assertStatusCode(t, recorder, http.StatusBadRequest)
	})
}

func TestBatchHandler_AllFramesFail(t *testing.T) {
	handler, jm := createBatchHandlerForTest()
	root := t.TempDir()
	frameDir := filepath.Join(root, "frames")
	if err := os.MkdirAll(frameDir, 0755); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"a.png", "b.png"} {
		if err := os.WriteFile(filepath.Join(frameDir, name), []byte("not an image"), 0644); err != nil {
			t.Fatal(err)
		}
	}

	recorder := httptest.NewRecorder()
	handler.Start(recorder, jsonRequest(t, "POST", "/api/v1/batch", BatchStartRequest{
		FrameDir: frameDir, MaskDir: root, OutputDir: filepath.Join(root, "out"), Preset: "anonymize",
	}))
	assertStatusCode(t, recorder, http.StatusAccepted)

	jobs := jm.ListJobs()
	if len(jobs) != 1 {
		t.Fatalf("expected 1 job, got %d", len(jobs))
	}
	snap := waitForJob(t, jobs[0])
	if snap.Status != JobStatusFailed || snap.Failed != 2 || snap.Error == "" {
		t.Errorf("unexpected snapshot: %+v", snap)
	}
}

func TestBatchHandler_CancelAndLookup(t *testing.T) {
	handler, jm := createBatchHandlerForTest()
	job := jm.CreateJob("job-1", BatchJobOptions{Format: "png"})
	events := job.AddListener()
	defer job.RemoveListener(events)

	recorder := httptest.NewRecorder()
	req := requestWithChiParams(httptest.NewRequest("DELETE", "/api/v1/batch/job-1", nil), map[string]string{"jobId": "job-1"})
	handler.Cancel(recorder, req)

	assertStatusCode(t, recorder, http.StatusOK)
	if job.GetStatus() != JobStatusCancelled {
		t.Errorf("status = %s, want cancelled", job.GetStatus())
	}
	select {
	case e := <-events:
		if e.Type != "cancelled" {
			t.Errorf("event type = %s, want cancelled", e.Type)
		}
	default:
		t.Error("expected a cancelled event")
	}

	// a later finish keeps the cancelled state
	job.finish(JobStatusCompleted, "")
	if job.GetStatus() != JobStatusCancelled {
		t.Errorf("status after finish = %s, want cancelled", job.GetStatus())
	}

	for name, fn := range map[string]http.HandlerFunc{
		"status": handler.Status,
		"cancel": handler.Cancel,
		"events": handler.Events,
	} {
		t.Run(name+" unknown job", func(t *testing.T) {
			recorder := httptest.NewRecorder()
			req := requestWithChiParams(httptest.NewRequest("GET", "/api/v1/batch/nope", nil), map[string]string{"jobId": "nope"})
			fn(recorder, req)
			assertStatusCode(t, recorder, http.StatusNotFound)
			assertJSONError(t, recorder, "job not found")
		})
	}
}

func TestJobManager_Eviction(t *testing.T) {
	jm := NewJobManager()
	for i := 0; i < constants.MaxBatchJobs; i++ {
		job := jm.CreateJob(fmt.Sprintf("job-%d", i), BatchJobOptions{})
		if i < 10 {
			job.finish(JobStatusCompleted, "")
		}
	}
	for i := 0; i < 5; i++ {
		jm.CreateJob(fmt.Sprintf("extra-%d", i), BatchJobOptions{})
	}

	if got := len(jm.ListJobs()); got != constants.MaxBatchJobs {
		t.Fatalf("tracked jobs = %d, want %d", got, constants.MaxBatchJobs)
	}
	for i := 0; i < 5; i++ {
		if jm.GetJob(fmt.Sprintf("job-%d", i)) != nil {
			t.Errorf("job-%d should have been evicted", i)
		}
	}
	if jm.GetJob("job-5") == nil || jm.GetJob("extra-4") == nil {
		t.Error("newer jobs must be kept")
	}
	if jobs := jm.ListJobs(); jobs[0].ID != "job-5" {
		t.Errorf("expected oldest remaining job first, got %s", jobs[0].ID)
	}
}

func TestJobManager_RunningJobsAreNeverEvicted(t *testing.T) {
	jm := NewJobManager()
	for i := 0; i < constants.MaxBatchJobs+3; i++ {
		jm.CreateJob(fmt.Sprintf("job-%d", i), BatchJobOptions{})
	}
	if got := len(jm.ListJobs()); got != constants.MaxBatchJobs+3 {
		t.Errorf("tracked jobs = %d, want %d", got, constants.MaxBatchJobs+3)
	}

	jm.DeleteJob("job-0")
	if jm.GetJob("job-0") != nil || len(jm.ListJobs()) != constants.MaxBatchJobs+2 {
		t.Error("DeleteJob did not remove the job")
	}
}
