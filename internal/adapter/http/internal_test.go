package http

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/idtoken"

	"github.com/bnema/tubeaudit/internal/domain"
	"github.com/bnema/tubeaudit/internal/service"
)

func postInternal(srv http.Handler, path, body, bearer string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func TestInternal_RunAudit(t *testing.T) {
	audits := newFakeAudits()
	queued := audits.add(domain.JobStatusQueued)
	done := audits.add(domain.JobStatusCompleted)
	srv := newTestServer(audits, newFakeAuth())

	tests := []struct {
		name string
		body string
		want int
		json string
	}{
		{"missing job id", `{}`, http.StatusBadRequest, ""},
		{"malformed body", `{"job_id":`, http.StatusBadRequest, ""},
		{"unknown job", `{"job_id":"missing"}`, http.StatusNotFound, `{"error":"not found"}`},
		{"processed", fmt.Sprintf(`{"job_id":%q}`, queued.ID), http.StatusOK,
			fmt.Sprintf(`{"status":"processed","job_id":%q,"job_status":"completed"}`, queued.ID)},
		{"duplicate delivery", fmt.Sprintf(`{"job_id":%q}`, done.ID), http.StatusOK,
			fmt.Sprintf(`{"status":"skipped","job_id":%q}`, done.ID)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := postInternal(srv, "/internal/tasks/run-audit", tt.body, "")
			require.Equal(t, tt.want, rec.Code, rec.Body.String())
			if tt.json != "" {
				assert.JSONEq(t, tt.json, rec.Body.String())
			}
		})
	}
}

func TestInternal_RunAudit_StoreFault(t *testing.T) {
	audits := newFakeAudits()
	job := audits.add(domain.JobStatusQueued)
	internal := NewInternal(&fakeRunner{audits: audits, err: errBoom}, audits, &fakeMaintenance{})

	req := httptest.NewRequest(http.MethodPost, "/internal/tasks/run-audit", strings.NewReader(fmt.Sprintf(`{"job_id":%q}`, job.ID)))
	rec := httptest.NewRecorder()
	internal.RunAudit()(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestInternal_RunAudit_SurvivesCallerCancel(t *testing.T) {
	audits := newFakeAudits()
	job := audits.add(domain.JobStatusQueued)
	var seen context.Context
	runner := runnerFunc(func(ctx context.Context, _ string) error {
		seen = ctx
		return nil
	})
	internal := NewInternal(runner, audits, &fakeMaintenance{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodPost, "/internal/tasks/run-audit", strings.NewReader(fmt.Sprintf(`{"job_id":%q}`, job.ID))).WithContext(ctx)
	rec := httptest.NewRecorder()
	internal.RunAudit()(rec, req)

	require.NotNil(t, seen)
	assert.NoError(t, seen.Err())
	assert.Equal(t, http.StatusOK, rec.Code)
}

type runnerFunc func(ctx context.Context, jobID string) error

func (f runnerFunc) Run(ctx context.Context, jobID string) error { return f(ctx, jobID) }

func TestInternal_Cleanup(t *testing.T) {
	maint := &fakeMaintenance{result: service.MaintenanceResult{
		SweepResult: domain.SweepResult{DeletedJobs: 2, DeletedArtifacts: 7, Failed: 1},
		Reconciled:  3,
	}}
	internal := NewInternal(&fakeRunner{}, newFakeAudits(), maint)

	rec := httptest.NewRecorder()
	internal.Cleanup()(rec, httptest.NewRequest(http.MethodPost, "/internal/cleanup", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","deleted_jobs":2,"deleted_artifacts":7,"failed":1,"reconciled":3}`, rec.Body.String())

	maint.err = errBoom
	rec = httptest.NewRecorder()
	internal.Cleanup()(rec, httptest.NewRequest(http.MethodPost, "/internal/cleanup", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestInternal_RequiresIDToken(t *testing.T) {
	audits := newFakeAudits()
	job := audits.add(domain.JobStatusQueued)

	taskAuth := NewTaskAuthenticator("https://app.test/internal/tasks/run-audit", "", false).
		WithValidator(func(_ context.Context, token, audience string) (*idtoken.Payload, error) {
			if token != "good" || audience != "https://app.test/internal/tasks/run-audit" {
				return nil, errBoom
			}
			return &idtoken.Payload{Audience: audience}, nil
		})
	srv := NewServer(ServerDeps{
		Auth:        newFakeAuth(),
		Audits:      audits,
		Runner:      &fakeRunner{audits: audits},
		Maintenance: &fakeMaintenance{},
		TaskAuth:    taskAuth,
		AuthSecret:  "test-secret",
	})
	body := fmt.Sprintf(`{"job_id":%q}`, job.ID)

	assert.Equal(t, http.StatusForbidden, postInternal(srv, "/internal/tasks/run-audit", body, "").Code)
	assert.Equal(t, http.StatusForbidden, postInternal(srv, "/internal/tasks/run-audit", body, "bad").Code)
	assert.Equal(t, http.StatusForbidden, postInternal(srv, "/internal/cleanup", "", "").Code)
	assert.Equal(t, http.StatusOK, postInternal(srv, "/internal/tasks/run-audit", body, "good").Code)
}
