package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/bnema/tubeaudit/internal/domain"
	"github.com/bnema/tubeaudit/internal/infrastructure/logger"
	"github.com/bnema/tubeaudit/internal/infrastructure/metrics"
	"github.com/bnema/tubeaudit/internal/port"
)

type RunnerDeps struct {
	Jobs      port.JobStore
	Artifacts port.ArtifactStore
	Blobs     port.BlobStore
	Fetcher   port.ChannelFetcher
	Analyzer  port.Analyzer
	Excel     port.ReportRenderer
	Markdown  port.ReportRenderer
	Metrics   *metrics.Metrics
	// MaxVideos is the default crawl cap; 0 means every video.
	MaxVideos int
}

// PipelineRunner executes the fetch, analyze, export and report stages for
// one claimed job.
type PipelineRunner struct {
	deps RunnerDeps
	now  func() time.Time
}

func NewPipelineRunner(deps RunnerDeps) *PipelineRunner {
	return &PipelineRunner{deps: deps, now: time.Now}
}

// pipeline carries stage outputs from one stage to the next.
type pipeline struct {
	job      *domain.Job
	data     *domain.ChannelData
	analysis *domain.Analysis
}

// Run claims the job and walks the stages. A stage failure is recorded on
// the job and Run returns nil; only store faults are returned. A job that
// has already left queued yields domain.ErrAlreadyClaimed.
func (r *PipelineRunner) Run(ctx context.Context, jobID string) error {
	job, err := r.deps.Jobs.ClaimJob(ctx, jobID, domain.StageFetch.ProgressLabel())
	if err != nil {
		return err
	}

	done := r.deps.Metrics.TrackRun()
	defer done()

	logger.Info.Printf("job %s: started for %s", jobID, logger.SanitizeForLog(job.ChannelURL))
	r.appendLog(ctx, jobID, "Job started for %s", job.ChannelURL)

	p := &pipeline{job: job}
	for i, stage := range domain.Stages {
		if i > 0 {
			if _, err := r.deps.Jobs.UpdateStatus(ctx, jobID, domain.JobStatusRunning, stage.ProgressLabel(), ""); err != nil {
				return r.storeFault(jobID, "update progress", err)
			}
		}

		r.appendLog(ctx, jobID, "%s...", stage.ProgressLabel())
		start := time.Now()
		err := r.runStage(ctx, stage, p)
		r.deps.Metrics.ObserveStage(string(stage), time.Since(start))

		if err != nil {
			return r.fail(ctx, jobID, &domain.PipelineStageError{Stage: stage, Err: err})
		}
	}

	if _, err := r.deps.Jobs.UpdateStatus(ctx, jobID, domain.JobStatusCompleted, domain.ProgressCompleted, ""); err != nil {
		return r.storeFault(jobID, "mark completed", err)
	}
	r.deps.Metrics.JobFinished(string(domain.JobStatusCompleted))
	r.appendLog(ctx, jobID, "Job completed")
	logger.Info.Printf("job %s: completed", jobID)
	return nil
}

// runStage runs a single stage, turning a panic into an error.
func (r *PipelineRunner) runStage(ctx context.Context, stage domain.Stage, p *pipeline) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v", rec)
		}
	}()

	switch stage {
	case domain.StageFetch:
		return r.fetch(ctx, p)
	case domain.StageAnalyze:
		return r.analyze(ctx, p)
	case domain.StageExport:
		return r.render(ctx, p, r.deps.Excel, stage.Artifact())
	case domain.StageReport:
		return r.render(ctx, p, r.deps.Markdown, stage.Artifact())
	}
	return fmt.Errorf("unknown stage %q", stage)
}

func (r *PipelineRunner) fetch(ctx context.Context, p *pipeline) error {
	maxVideos := p.job.MaxVideos(r.deps.MaxVideos)
	data, err := r.deps.Fetcher.Fetch(ctx, p.job.ChannelURL, maxVideos)
	if err != nil {
		return err
	}
	p.data = data

	if err := r.deps.Jobs.RecordChannel(ctx, p.job.ID, data.Channel.ID, data.Channel.Title); err != nil {
		return fmt.Errorf("record channel: %w", err)
	}
	r.appendLog(ctx, p.job.ID, "Fetched %d videos from %s (quota used: %d)",
		len(data.Videos), data.Channel.Title, data.Metadata.QuotaUsed)

	return r.storeJSON(ctx, p.job.ID, domain.StageFetch.Artifact(), data)
}

func (r *PipelineRunner) analyze(ctx context.Context, p *pipeline) error {
	analysis, err := r.deps.Analyzer.Analyze(ctx, p.data)
	if err != nil {
		return err
	}
	p.analysis = analysis

	if err := r.storeJSON(ctx, p.job.ID, domain.StageAnalyze.Artifact(), analysis); err != nil {
		return err
	}

	if err := r.deps.Jobs.RecordSummary(ctx, p.job.ID, analysis.JobSummary()); err != nil {
		return fmt.Errorf("record summary: %w", err)
	}
	r.appendLog(ctx, p.job.ID, "Health score %d/100 (%d high, %d medium, %d low)",
		analysis.ChannelHealthScore, analysis.Summary.HighPriority,
		analysis.Summary.MediumPriority, analysis.Summary.LowPriority)
	return nil
}

func (r *PipelineRunner) render(ctx context.Context, p *pipeline, renderer port.ReportRenderer, t domain.ArtifactType) error {
	var buf bytes.Buffer
	if err := renderer.Render(ctx, &buf, p.data, p.analysis); err != nil {
		return fmt.Errorf("render %s: %w", t, err)
	}
	return r.storeArtifact(ctx, p.job.ID, t, buf.Bytes())
}

func (r *PipelineRunner) storeJSON(ctx context.Context, jobID string, t domain.ArtifactType, v any) error {
	body, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", t, err)
	}
	return r.storeArtifact(ctx, jobID, t, body)
}

// storeArtifact uploads the bytes and registers the artifact right away so
// partial output survives a later stage failure.
func (r *PipelineRunner) storeArtifact(ctx context.Context, jobID string, t domain.ArtifactType, body []byte) error {
	location, size, err := r.deps.Blobs.Put(ctx, domain.ArtifactKey(jobID, t), bytes.NewReader(body), t.ContentType())
	if err != nil {
		return fmt.Errorf("upload %s: %w", t, err)
	}

	a := domain.NewArtifact(jobID, t, location, size, r.now())
	if err := r.deps.Artifacts.CreateArtifact(ctx, a); err != nil {
		return fmt.Errorf("register %s: %w", t, err)
	}
	r.appendLog(ctx, jobID, "Saved %s (%d bytes)", t.FileName(), size)
	return nil
}

func (r *PipelineRunner) fail(ctx context.Context, jobID string, stageErr *domain.PipelineStageError) error {
	logger.Warn.Printf("job %s: %v", jobID, stageErr)
	r.appendLog(ctx, jobID, "Job failed: %v", stageErr)

	_, err := r.deps.Jobs.UpdateStatus(ctx, jobID, domain.JobStatusFailed, domain.ProgressFailed, stageErr.Error())
	if err != nil {
		return r.storeFault(jobID, "mark failed", err)
	}
	r.deps.Metrics.JobFinished(string(domain.JobStatusFailed))
	return nil
}

// storeFault reports a status write that did not stick. A job that was
// finished elsewhere (the watchdog) is not a fault.
func (r *PipelineRunner) storeFault(jobID, op string, err error) error {
	if errors.Is(err, domain.ErrInvalidTransition) {
		logger.Warn.Printf("job %s: %s skipped, job already finished: %v", jobID, op, err)
		return nil
	}
	logger.Error.Printf("job %s: %s: %v", jobID, op, err)
	return fmt.Errorf("%s: %w", op, err)
}

func (r *PipelineRunner) appendLog(ctx context.Context, jobID, format string, args ...any) {
	if err := r.deps.Jobs.AppendLog(ctx, jobID, fmt.Sprintf(format, args...)); err != nil {
		logger.Warn.Printf("job %s: append log: %v", jobID, err)
	}
}
