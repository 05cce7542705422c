package http

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/bnema/tubeaudit/internal/domain"
	"github.com/bnema/tubeaudit/internal/infrastructure/logger"
	"github.com/bnema/tubeaudit/internal/service"
)

type TaskRunner interface {
	Run(ctx context.Context, jobID string) error
}

type Maintainer interface {
	Run(ctx context.Context) (service.MaintenanceResult, error)
}

// Internal serves the machine-to-machine routes.
type Internal struct {
	runner      TaskRunner
	audits      AuditService
	maintenance Maintainer
}

func NewInternal(runner TaskRunner, audits AuditService, maintenance Maintainer) *Internal {
	return &Internal{runner: runner, audits: audits, maintenance: maintenance}
}

type runAuditResponse struct {
	Status    string           `json:"status"`
	JobID     string           `json:"job_id"`
	JobStatus domain.JobStatus `json:"job_status,omitempty"`
}

// RunAudit executes a queued job to completion within the request. A
// delivery for a job that has already been claimed is acknowledged as
// skipped so the queue drops it.
func (i *Internal) RunAudit() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var task domain.TaskRequest
		if err := decodeJSON(w, r, &task); err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
			return
		}
		task.JobID = strings.TrimSpace(task.JobID)
		if task.JobID == "" {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "job_id is required", Field: "job_id"})
			return
		}

		// The pipeline keeps going if the caller hangs up.
		ctx := context.WithoutCancel(r.Context())

		err := i.runner.Run(ctx, task.JobID)
		switch {
		case errors.Is(err, domain.ErrAlreadyClaimed):
			logger.Info.Printf("job %s: duplicate delivery skipped", task.JobID)
			writeJSON(w, http.StatusOK, runAuditResponse{Status: "skipped", JobID: task.JobID})
			return
		case errors.Is(err, domain.ErrNotFound):
			writeJSON(w, http.StatusNotFound, errorBody{Error: "not found"})
			return
		case err != nil:
			logger.Error.Printf("job %s: run: %v", task.JobID, err)
			writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal error"})
			return
		}

		job, err := i.audits.Get(ctx, task.JobID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, runAuditResponse{Status: "processed", JobID: job.ID, JobStatus: job.Status})
	}
}

type cleanupResponse struct {
	Status string `json:"status"`
	service.MaintenanceResult
}

// Cleanup runs the retention sweep and the stale-run watchdog once.
func (i *Internal) Cleanup() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := i.maintenance.Run(context.WithoutCancel(r.Context()))
		if err != nil {
			logger.Error.Printf("cleanup: %v", err)
			writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal error"})
			return
		}
		writeJSON(w, http.StatusOK, cleanupResponse{Status: "ok", MaintenanceResult: res})
	}
}
