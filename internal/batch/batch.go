// Package batch applies an effect chain to many frames with a worker pool.
package batch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kozaktomas/frame-redactor/internal/constants"
	"github.com/kozaktomas/frame-redactor/internal/effect"
	"github.com/kozaktomas/frame-redactor/internal/frame"
	"github.com/kozaktomas/frame-redactor/internal/media"
	"go.uber.org/zap"
)

// Job is one frame to process.
type Job struct {
	ID         string
	FramePath  string
	MaskPaths  []string
	OutputPath string
}

// Options holds the shared resources of a batch run.
type Options struct {
	Engine      *effect.Engine
	Effects     []effect.Config
	Workers     int
	Preview     bool
	JPEGQuality int
	Logger      *zap.Logger
}

// Outcome is the result of one job.
type Outcome struct {
	JobID    string
	Input    string
	Output   string
	Success  bool
	Error    string
	Results  map[string]effect.Result
	Duration time.Duration
}

// Run processes jobs with opts.Workers goroutines and returns one outcome per
// job in input order. progress, when set, is called once per finished job;
// calls are serialized. Jobs not started before ctx is done are reported as
// failed with the context error.
func Run(ctx context.Context, opts Options, jobs []Job, progress func(Outcome)) []Outcome {
	if opts.Engine == nil {
		opts.Engine = effect.NewEngine(effect.WithLogger(opts.Logger))
	}
	if opts.Workers < 1 {
		opts.Workers = constants.WorkerPoolSize
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	results := make([]Outcome, len(jobs))
	var progressMu sync.Mutex
	report := func(o Outcome) {
		if progress == nil {
			return
		}
		progressMu.Lock()
		defer progressMu.Unlock()
		progress(o)
	}

	jobChan := make(chan int, opts.Workers*2)
	var wg sync.WaitGroup
	for w := 0; w < opts.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobChan {
				var o Outcome
				if err := ctx.Err(); err != nil {
					o = failed(jobs[idx], err)
				} else {
					o = processJob(opts, jobs[idx])
				}
				results[idx] = o
				report(o)
			}
		}()
	}

	for i := range jobs {
		jobChan <- i
	}
	close(jobChan)
	wg.Wait()

	return results
}

func failed(job Job, err error) Outcome {
	return Outcome{JobID: job.ID, Input: job.FramePath, Output: job.OutputPath, Error: err.Error()}
}

func processJob(opts Options, job Job) Outcome {
	start := time.Now()
	log := opts.Logger.With(zap.String("job_id", job.ID), zap.String("frame", job.FramePath))

	f, err := media.LoadFrame(job.FramePath)
	if err != nil {
		log.Warn("failed to load frame", zap.Error(err))
		return failed(job, err)
	}
	masks := make([]*frame.Mask, 0, len(job.MaskPaths))
	for i, p := range job.MaskPaths {
		m, err := media.LoadMask(p)
		if err != nil {
			log.Warn("failed to load mask", zap.String("mask", p), zap.Error(err))
			return failed(job, err)
		}
		if m.ID == 0 {
			m.ID = i + 1
		}
		masks = append(masks, m)
	}

	out, results := opts.Engine.ApplyEffects(f, masks, opts.Effects, opts.Preview)
	if err := media.SaveFrame(job.OutputPath, out, opts.JPEGQuality); err != nil {
		log.Warn("failed to save frame", zap.Error(err))
		return failed(job, err)
	}

	o := Outcome{
		JobID:    job.ID,
		Input:    job.FramePath,
		Output:   job.OutputPath,
		Success:  true,
		Results:  results,
		Duration: time.Since(start),
	}
	for id, r := range results {
		if !r.Success {
			o.Error = fmt.Sprintf("effect %s: %s", id, r.Error)
			break
		}
	}
	log.Debug("frame processed", zap.Duration("duration", o.Duration))
	return o
}

// JobsFromDirs pairs every frame in frameDir with the masks in maskDir that
// share its name: frame0001.jpg uses frame0001.png and frame0001_*.png.
// Outputs go to outDir under the frame's name with outExt (keeping the
// input extension when outExt is empty).
func JobsFromDirs(frameDir, maskDir, outDir, outExt string) ([]Job, error) {
	entries, err := os.ReadDir(frameDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read frame directory: %w", err)
	}

	var jobs []Job
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if _, err := media.FormatOf(e.Name()); err != nil {
			continue
		}
		ext := filepath.Ext(e.Name())
		stem := strings.TrimSuffix(e.Name(), ext)

		var masks []string
		exact := filepath.Join(maskDir, stem+".png")
		if _, err := os.Stat(exact); err == nil {
			masks = append(masks, exact)
		}
		numbered, err := filepath.Glob(filepath.Join(maskDir, stem+"_*.png"))
		if err != nil {
			return nil, err
		}
		slices.Sort(numbered)
		masks = append(masks, numbered...)

		out := ext
		if outExt != "" {
			out = "." + strings.TrimPrefix(outExt, ".")
		}
		jobs = append(jobs, Job{
			ID:         uuid.NewString(),
			FramePath:  filepath.Join(frameDir, e.Name()),
			MaskPaths:  masks,
			OutputPath: filepath.Join(outDir, stem+out),
		})
	}
	return jobs, nil
}
