package http

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/bnema/tubeaudit/internal/adapter/http/middleware"
	"github.com/bnema/tubeaudit/internal/domain"
	"github.com/bnema/tubeaudit/internal/service"
)

var testUser = &domain.User{ID: "user-1", Email: "ops@example.com", DisplayName: "Ops"}

type fakeAuth struct {
	hasUser  bool
	password string
	created  *domain.User
	err      error
}

func newFakeAuth() *fakeAuth {
	return &fakeAuth{hasUser: true, password: "correct horse"}
}

func (f *fakeAuth) HasUser(context.Context) (bool, error) { return f.hasUser, f.err }

func (f *fakeAuth) CreateFirstUser(_ context.Context, email, displayName, password string) (*domain.User, error) {
	if f.hasUser {
		return nil, service.ErrUserExists
	}
	if len(password) < 8 {
		return nil, service.ErrWeakPassword
	}
	f.hasUser = true
	f.created = &domain.User{ID: "user-1", Email: email, DisplayName: displayName}
	return f.created, nil
}

func (f *fakeAuth) Authenticate(_ context.Context, email, password string) (*domain.User, error) {
	if f.err != nil {
		return nil, f.err
	}
	if email != testUser.Email || password != f.password {
		return nil, service.ErrInvalidCreds
	}
	return testUser, nil
}

func (f *fakeAuth) GenerateToken(u *domain.User) string { return "token-" + u.ID }

func (f *fakeAuth) ValidateToken(_ context.Context, token string) (*domain.User, error) {
	if token != "token-"+testUser.ID {
		return nil, service.ErrInvalidToken
	}
	return testUser, nil
}

func (f *fakeAuth) ChangePassword(_ context.Context, _, oldPassword, newPassword string) error {
	if oldPassword != f.password {
		return service.ErrWrongPassword
	}
	if len(newPassword) < 8 {
		return service.ErrWeakPassword
	}
	f.password = newPassword
	return nil
}

// fakeAudits keeps jobs in memory and validates through domain.NewJob.
type fakeAudits struct {
	mu         sync.Mutex
	jobs       map[string]*domain.Job
	artifacts  map[string]*domain.Artifact
	lastFilter domain.JobFilter
	createErr  error
	listErr    error
	deleted    []string
}

func newFakeAudits() *fakeAudits {
	return &fakeAudits{jobs: map[string]*domain.Job{}, artifacts: map[string]*domain.Artifact{}}
}

func (f *fakeAudits) add(status domain.JobStatus) *domain.Job {
	job, err := domain.NewJob(domain.CreateAuditRequest{
		ClientName:  "Acme",
		ChannelURL:  "https://www.youtube.com/@acme",
		RequestedBy: testUser.ID,
	}, "client-1", 30, time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	if err != nil {
		panic(err)
	}
	job.Status = status
	f.mu.Lock()
	f.jobs[job.ID] = job
	f.mu.Unlock()
	return job
}

func (f *fakeAudits) Create(_ context.Context, req domain.CreateAuditRequest) (*domain.Job, error) {
	job, err := domain.NewJob(req, "client-1", 30, time.Now())
	if err != nil {
		return nil, err
	}
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.mu.Lock()
	f.jobs[job.ID] = job
	f.mu.Unlock()
	return job, nil
}

func (f *fakeAudits) Get(_ context.Context, id string) (*domain.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return job, nil
}

func (f *fakeAudits) List(_ context.Context, filter domain.JobFilter) ([]*domain.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastFilter = filter
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []*domain.Job
	for _, j := range f.jobs {
		if filter.Status == "" || j.Status == filter.Status {
			out = append(out, j)
		}
	}
	return out, nil
}

func (f *fakeAudits) Stats(context.Context) (domain.JobStats, error) {
	return domain.JobStats{Queued: 2, Running: 1}, nil
}

func (f *fakeAudits) Artifacts(_ context.Context, jobID string) ([]*domain.Artifact, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*domain.Artifact
	for _, a := range f.artifacts {
		if a.JobID == jobID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeAudits) Artifact(_ context.Context, id string) (*domain.Artifact, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.artifacts[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return a, nil
}

func (f *fakeAudits) Status(ctx context.Context, id string) (domain.StatusView, error) {
	job, err := f.Get(ctx, id)
	if err != nil {
		return domain.StatusView{}, err
	}
	artifacts, _ := f.Artifacts(ctx, id)
	return domain.NewStatusView(job, artifacts), nil
}

func (f *fakeAudits) ArtifactLink(ctx context.Context, jobID string, t domain.ArtifactType) (domain.ArtifactLink, error) {
	if _, err := f.Get(ctx, jobID); err != nil {
		return domain.ArtifactLink{}, err
	}
	artifacts, _ := f.Artifacts(ctx, jobID)
	for _, a := range artifacts {
		if a.Type == t {
			return domain.ArtifactLink{URL: "https://files.example.com/" + a.Location, ExpiresInSeconds: 600}, nil
		}
	}
	return domain.ArtifactLink{}, domain.ErrNotAvailable
}

func (f *fakeAudits) Delete(ctx context.Context, id string) error {
	job, err := f.Get(ctx, id)
	if err != nil {
		return err
	}
	if job.Status == domain.JobStatusRunning {
		return domain.ErrJobRunning
	}
	f.mu.Lock()
	delete(f.jobs, id)
	f.deleted = append(f.deleted, id)
	f.mu.Unlock()
	return nil
}

type fakeRunner struct {
	audits *fakeAudits
	err    error
	calls  []string
}

func (f *fakeRunner) Run(ctx context.Context, jobID string) error {
	f.calls = append(f.calls, jobID)
	if f.err != nil {
		return f.err
	}
	job, err := f.audits.Get(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status != domain.JobStatusQueued {
		return domain.ErrAlreadyClaimed
	}
	job.Status = domain.JobStatusCompleted
	return nil
}

type fakeMaintenance struct {
	result service.MaintenanceResult
	err    error
}

func (f *fakeMaintenance) Run(context.Context) (service.MaintenanceResult, error) {
	return f.result, f.err
}

func newTestServer(audits *fakeAudits, auth *fakeAuth) *Server {
	return NewServer(ServerDeps{
		Auth:        auth,
		Audits:      audits,
		Runner:      &fakeRunner{audits: audits},
		Maintenance: &fakeMaintenance{},
		TaskAuth:    NewTaskAuthenticator("https://app.example.com/internal/tasks/run-audit", "", true),
		Metrics: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("# metrics\n"))
		}),
		Health:     func(context.Context) error { return nil },
		AuthSecret: "test-secret",
	})
}

func withUser(r *http.Request) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), userKey{}, testUser))
}

func sessionCookie() *http.Cookie {
	return &http.Cookie{Name: CookieName, Value: "token-" + testUser.ID}
}

// withCSRF attaches a matching double-submit cookie and header.
func withCSRF(r *http.Request) *http.Request {
	token := middleware.NewCSRFProtection("test-secret").GenerateToken()
	r.AddCookie(&http.Cookie{Name: "csrf_token", Value: token})
	r.Header.Set("X-CSRF-Token", token)
	return r
}

var errBoom = errors.New("boom")
