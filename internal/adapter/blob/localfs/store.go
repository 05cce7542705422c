package localfs

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/bnema/tubeaudit/internal/domain"
	"github.com/bnema/tubeaudit/internal/port"
)

var (
	ErrInvalidSignature = errors.New("invalid download signature")
	ErrLinkExpired      = errors.New("download link expired")
)

// Store keeps artifacts on local disk and hands out HMAC-signed links to the
// application's own download route.
type Store struct {
	root    string
	baseURL string
	secret  []byte
	now     func() time.Time
}

func New(root, baseURL, secret string) (*Store, error) {
	if secret == "" {
		return nil, errors.New("signing secret is required")
	}
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("create artifact dir: %w", err)
	}
	return &Store{
		root:    root,
		baseURL: strings.TrimRight(baseURL, "/"),
		secret:  []byte(secret),
		now:     time.Now,
	}, nil
}

func (s *Store) Put(ctx context.Context, key string, r io.Reader, _ string) (string, int64, error) {
	path, err := s.resolve(key)
	if err != nil {
		return "", 0, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return "", 0, fmt.Errorf("create artifact dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".upload-*")
	if err != nil {
		return "", 0, fmt.Errorf("create temp file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	n, err := io.Copy(tmp, r)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return "", 0, fmt.Errorf("write artifact: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return "", 0, err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", 0, fmt.Errorf("commit artifact: %w", err)
	}
	return key, n, nil
}

func (s *Store) Delete(_ context.Context, location string) error {
	path, err := s.resolve(location)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove artifact: %w", err)
	}
	// Drop the per-job directory once it is empty.
	_ = os.Remove(filepath.Dir(path))
	return nil
}

// Open returns the stored file. A missing file maps to domain.ErrNotFound.
func (s *Store) Open(location string) (*os.File, error) {
	path, err := s.resolve(location)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("open artifact: %w", err)
	}
	return f, nil
}

func (s *Store) SignedURL(_ context.Context, a *domain.Artifact, ttl time.Duration) (string, error) {
	exp := s.now().Add(ttl).Unix()

	q := url.Values{}
	q.Set("exp", strconv.FormatInt(exp, 10))
	q.Set("sig", s.sign(a.ID, exp))

	return fmt.Sprintf("%s/api/local-artifacts/%s/download?%s", s.baseURL, url.PathEscape(a.ID), q.Encode()), nil
}

// Verify checks a download link produced by SignedURL.
func (s *Store) Verify(artifactID, expParam, sig string) error {
	exp, err := strconv.ParseInt(expParam, 10, 64)
	if err != nil {
		return ErrInvalidSignature
	}
	if !hmac.Equal([]byte(sig), []byte(s.sign(artifactID, exp))) {
		return ErrInvalidSignature
	}
	if s.now().Unix() > exp {
		return ErrLinkExpired
	}
	return nil
}

func (s *Store) sign(artifactID string, exp int64) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(artifactID + ":" + strconv.FormatInt(exp, 10)))
	return hex.EncodeToString(mac.Sum(nil))
}

// resolve maps a key to a path under root, rejecting keys that escape it.
func (s *Store) resolve(key string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(key))
	if clean == "." || filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("invalid artifact key %q", key)
	}
	return filepath.Join(s.root, clean), nil
}

var _ port.BlobStore = (*Store)(nil)
