package localfs

import (
	"context"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bnema/tubeaudit/internal/domain"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "artifacts"), "http://localhost:8080/", "secret")
	require.NoError(t, err)
	s.now = func() time.Time { return time.Unix(1_700_000_000, 0) }
	return s
}

func TestStore_PutOpenDelete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	key := domain.ArtifactKey("job-1", domain.ArtifactMarkdownReport)
	loc, n, err := s.Put(ctx, key, strings.NewReader("# Report\n"), "text/markdown")
	require.NoError(t, err)
	assert.Equal(t, key, loc)
	assert.Equal(t, int64(9), n)

	f, err := s.Open(loc)
	require.NoError(t, err)
	data, err := io.ReadAll(f)
	require.NoError(t, f.Close())
	require.NoError(t, err)
	assert.Equal(t, "# Report\n", string(data))

	require.NoError(t, s.Delete(ctx, loc))
	_, err = s.Open(loc)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	// Deleting again is a no-op.
	require.NoError(t, s.Delete(ctx, loc))

	_, err = os.Stat(filepath.Join(s.root, "audits", "job-1"))
	assert.True(t, os.IsNotExist(err), "empty job dir removed")
}

func TestStore_PutOverwrites(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, _, err := s.Put(ctx, "audits/j/report.md", strings.NewReader("old"), "")
	require.NoError(t, err)
	_, n, err := s.Put(ctx, "audits/j/report.md", strings.NewReader("newer"), "")
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)

	data, err := os.ReadFile(filepath.Join(s.root, "audits", "j", "report.md"))
	require.NoError(t, err)
	assert.Equal(t, "newer", string(data))
}

func TestStore_RejectsEscapingKeys(t *testing.T) {
	s := newTestStore(t)
	for _, key := range []string{"../outside", "/etc/passwd", "audits/../../x", ""} {
		t.Run(key, func(t *testing.T) {
			_, _, err := s.Put(context.Background(), key, strings.NewReader("x"), "")
			assert.Error(t, err)
		})
	}
}

func TestStore_SignedURL(t *testing.T) {
	s := newTestStore(t)
	a := &domain.Artifact{ID: "art-1", JobID: "job-1", Type: domain.ArtifactRawData}

	raw, err := s.SignedURL(context.Background(), a, 10*time.Minute)
	require.NoError(t, err)

	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "localhost:8080", u.Host)
	assert.Equal(t, "/api/local-artifacts/art-1/download", u.Path)

	exp := u.Query().Get("exp")
	sig := u.Query().Get("sig")
	assert.Equal(t, "1700000600", exp)

	t.Run("valid", func(t *testing.T) {
		assert.NoError(t, s.Verify("art-1", exp, sig))
	})

	t.Run("other artifact", func(t *testing.T) {
		assert.ErrorIs(t, s.Verify("art-2", exp, sig), ErrInvalidSignature)
	})

	t.Run("tampered expiry", func(t *testing.T) {
		assert.ErrorIs(t, s.Verify("art-1", "1800000000", sig), ErrInvalidSignature)
	})

	t.Run("malformed expiry", func(t *testing.T) {
		assert.ErrorIs(t, s.Verify("art-1", "soon", sig), ErrInvalidSignature)
	})

	t.Run("expired", func(t *testing.T) {
		s.now = func() time.Time { return time.Unix(1_700_000_601, 0) }
		assert.ErrorIs(t, s.Verify("art-1", exp, sig), ErrLinkExpired)
	})
}

func TestNew_RequiresSecret(t *testing.T) {
	_, err := New(t.TempDir(), "http://localhost", "")
	assert.Error(t, err)
}
