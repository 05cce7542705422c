package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bnema/tubeaudit/internal/adapter/blob/localfs"
	"github.com/bnema/tubeaudit/internal/adapter/storage/sqlstore"
	"github.com/bnema/tubeaudit/internal/domain"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type testEnv struct {
	store *sqlstore.Store
	blobs *localfs.Store
	clock *testClock
	user  *domain.User
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	clock := &testClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	dir := t.TempDir()

	store, err := sqlstore.Open("sqlite://"+filepath.Join(dir, "test.db"), sqlstore.WithClock(clock.Now))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	blobs, err := localfs.New(filepath.Join(dir, "artifacts"), "http://localhost:8080", "test-secret")
	require.NoError(t, err)

	user := &domain.User{Email: "auditor@example.com", PasswordHash: "x"}
	require.NoError(t, store.CreateUser(context.Background(), user))

	return &testEnv{store: store, blobs: blobs, clock: clock, user: user}
}

// createJob stores a queued job directly, bypassing dispatch.
func (e *testEnv) createJob(t *testing.T, mode domain.CrawlMode, retentionDays int) *domain.Job {
	t.Helper()
	ctx := context.Background()

	client, err := e.store.EnsureClient(ctx, "Acme", "", e.user.ID)
	require.NoError(t, err)

	job, err := domain.NewJob(domain.CreateAuditRequest{
		ClientName:  client.Name,
		RequestedBy: e.user.ID,
		ChannelURL:  "https://www.youtube.com/@acme",
		CrawlMode:   mode,
	}, client.ID, retentionDays, e.clock.Now())
	require.NoError(t, err)
	require.NoError(t, e.store.CreateJob(ctx, job))
	return job
}

func (e *testEnv) runner(fetcher *fakeFetcher, analyzer *fakeAnalyzer) *PipelineRunner {
	r := NewPipelineRunner(RunnerDeps{
		Jobs:      e.store,
		Artifacts: e.store,
		Blobs:     e.blobs,
		Fetcher:   fetcher,
		Analyzer:  analyzer,
		Excel:     textRenderer("xlsx"),
		Markdown:  textRenderer("# report"),
	})
	r.now = e.clock.Now
	return r
}

func (e *testEnv) auditService(d *fakeDispatcher) *AuditService {
	s := NewAuditService(AuditDeps{
		Jobs:          e.store,
		Artifacts:     e.store,
		Clients:       e.store,
		Blobs:         e.blobs,
		Dispatcher:    d,
		RetentionDays: 30,
		LinkTTL:       10 * time.Minute,
	})
	s.now = e.clock.Now
	return s
}

type fakeFetcher struct {
	calls     atomic.Int32
	maxVideos atomic.Int32
	err       error
	panicMsg  string
}

func (f *fakeFetcher) Fetch(_ context.Context, channelURL string, maxVideos int) (*domain.ChannelData, error) {
	f.calls.Add(1)
	f.maxVideos.Store(int32(maxVideos))
	if f.panicMsg != "" {
		panic(f.panicMsg)
	}
	if f.err != nil {
		return nil, f.err
	}
	return &domain.ChannelData{
		Channel: domain.Channel{ID: "UCacme", Title: "Acme Channel"},
		Videos: []domain.Video{
			{ID: "v1", Title: "First", ViewCount: 100},
			{ID: "v2", Title: "Second", ViewCount: 50},
		},
		Metadata: domain.FetchMetadata{VideoCount: 2, QuotaUsed: 4},
	}, nil
}

type fakeAnalyzer struct {
	err error
}

func (a *fakeAnalyzer) Analyze(_ context.Context, data *domain.ChannelData) (*domain.Analysis, error) {
	if a.err != nil {
		return nil, a.err
	}
	return &domain.Analysis{
		ChannelID:          data.Channel.ID,
		ChannelTitle:       data.Channel.Title,
		ChannelHealthScore: domain.HealthScore(2, 1),
		Summary: domain.AnalysisSummary{
			HighPriority:   2,
			MediumPriority: 1,
			LowPriority:    3,
			VideosAnalyzed: len(data.Videos),
		},
	}, nil
}

type textRenderer string

func (r textRenderer) Render(_ context.Context, w io.Writer, _ *domain.ChannelData, _ *domain.Analysis) error {
	_, err := io.WriteString(w, string(r))
	return err
}

type failingRenderer struct{}

func (failingRenderer) Render(context.Context, io.Writer, *domain.ChannelData, *domain.Analysis) error {
	return errors.New("template exploded")
}

type fakeDispatcher struct {
	mu  sync.Mutex
	ids []string
	err error
}

func (d *fakeDispatcher) Mode() string { return "fake" }

func (d *fakeDispatcher) Dispatch(_ context.Context, jobID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	d.ids = append(d.ids, jobID)
	return nil
}

func (d *fakeDispatcher) dispatched() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.ids...)
}

// flakyBlobs fails Delete for one location.
type flakyBlobs struct {
	*localfs.Store
	failLocation string
}

func (b *flakyBlobs) Delete(ctx context.Context, location string) error {
	if location == b.failLocation {
		return fmt.Errorf("delete %s: permission denied", location)
	}
	return b.Store.Delete(ctx, location)
}

// watchdogRenderer fails the job out from under the runner, the way the
// watchdog would, then renders successfully.
type watchdogRenderer struct {
	env   *testEnv
	jobID string
}

func (r watchdogRenderer) Render(ctx context.Context, w io.Writer, _ *domain.ChannelData, _ *domain.Analysis) error {
	if _, err := r.env.store.UpdateStatus(ctx, r.jobID, domain.JobStatusFailed, domain.ProgressFailed, "reconciled"); err != nil {
		return err
	}
	_, err := io.WriteString(w, "# report")
	return err
}
