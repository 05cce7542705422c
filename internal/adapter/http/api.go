package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/bnema/tubeaudit/internal/adapter/http/validation"
	"github.com/bnema/tubeaudit/internal/domain"
	"github.com/bnema/tubeaudit/internal/infrastructure/logger"
)

const maxJSONBody = 1 << 20

// LocalArtifacts is implemented by the local blob store, whose links point
// back at this server.
type LocalArtifacts interface {
	Verify(artifactID, expParam, sig string) error
	Open(location string) (*os.File, error)
}

// API serves the JSON routes under /api.
type API struct {
	audits AuditService
	local  LocalArtifacts
}

func NewAPI(audits AuditService, local LocalArtifacts) *API {
	return &API{audits: audits, local: local}
}

type auditJSON struct {
	ID           string           `json:"id"`
	ClientID     string           `json:"client_id"`
	ClientName   string           `json:"client_name"`
	RequestedBy  string           `json:"requested_by"`
	ChannelURL   string           `json:"channel_url"`
	ChannelID    string           `json:"channel_id"`
	ChannelName  string           `json:"channel_name"`
	CrawlMode    domain.CrawlMode `json:"crawl_mode"`
	MaxVideos    *int             `json:"max_videos"`
	Status       domain.JobStatus `json:"status"`
	ProgressStep string           `json:"progress_step"`
	ErrorMessage string           `json:"error_message"`
	Notes        string           `json:"notes"`
	Summary      domain.Summary   `json:"summary"`
	CreatedAt    time.Time        `json:"created_at"`
	StartedAt    *time.Time       `json:"started_at"`
	FinishedAt   *time.Time       `json:"finished_at"`
	ExpiresAt    time.Time        `json:"expires_at"`
}

func newAuditJSON(j *domain.Job) auditJSON {
	return auditJSON{
		ID:           j.ID,
		ClientID:     j.ClientID,
		ClientName:   j.ClientName,
		RequestedBy:  j.RequestedBy,
		ChannelURL:   j.ChannelURL,
		ChannelID:    j.ChannelID,
		ChannelName:  j.ChannelName,
		CrawlMode:    j.CrawlMode,
		MaxVideos:    j.MaxVideosOverride,
		Status:       j.Status,
		ProgressStep: j.ProgressStep,
		ErrorMessage: j.ErrorMessage,
		Notes:        j.Notes,
		Summary:      j.Summary,
		CreatedAt:    j.CreatedAt,
		StartedAt:    j.StartedAt,
		FinishedAt:   j.FinishedAt,
		ExpiresAt:    j.ExpiresAt,
	}
}

func (a *API) ListAudits() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filter, err := parseFilter(r.URL.Query())
		if err != nil {
			writeError(w, r, err)
			return
		}

		jobs, err := a.audits.List(r.Context(), filter)
		if err != nil {
			writeError(w, r, err)
			return
		}

		out := make([]auditJSON, 0, len(jobs))
		for _, j := range jobs {
			out = append(out, newAuditJSON(j))
		}
		writeJSON(w, http.StatusOK, map[string]any{"audits": out})
	}
}

type createAuditRequest struct {
	ClientName    string `json:"client_name"`
	ClientContact string `json:"client_contact"`
	ChannelURL    string `json:"channel_url"`
	CrawlMode     string `json:"crawl_mode"`
	MaxVideos     *int   `json:"max_videos"`
	Notes         string `json:"notes"`
}

func (a *API) CreateAudit() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body createAuditRequest
		if err := decodeJSON(w, r, &body); err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
			return
		}

		job, err := a.audits.Create(r.Context(), domain.CreateAuditRequest{
			ClientName:    body.ClientName,
			ClientContact: body.ClientContact,
			RequestedBy:   currentUser(r).ID,
			ChannelURL:    body.ChannelURL,
			CrawlMode:     domain.CrawlMode(body.CrawlMode),
			MaxVideos:     body.MaxVideos,
			Notes:         body.Notes,
		})
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, newAuditJSON(job))
	}
}

func (a *API) AuditStatus() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		view, err := a.audits.Status(r.Context(), r.PathValue("id"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, view)
	}
}

// ArtifactLink answers with a short-lived download URL. Unknown types are a
// 400; a type the pipeline has not produced yet is a 404.
func (a *API) ArtifactLink() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		t, err := domain.ParseArtifactType(r.PathValue("type"))
		if err != nil {
			writeError(w, r, err)
			return
		}

		link, err := a.audits.ArtifactLink(r.Context(), r.PathValue("id"), t)
		if err != nil {
			writeError(w, r, err)
			return
		}
		w.Header().Set("Cache-Control", "no-store")
		writeJSON(w, http.StatusOK, link)
	}
}

// LocalDownload streams a locally stored artifact. The signed query string
// is the only credential; no session is required.
func (a *API) LocalDownload() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if a.local == nil {
			http.NotFound(w, r)
			return
		}

		id := r.PathValue("id")
		q := r.URL.Query()
		if err := a.local.Verify(id, q.Get("exp"), q.Get("sig")); err != nil {
			logger.Warn.Printf("rejected download of artifact %s: %v", logger.SanitizeForLog(id), err)
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}

		artifact, err := a.audits.Artifact(r.Context(), id)
		if err != nil {
			downloadError(w, r, err)
			return
		}

		f, err := a.local.Open(artifact.Location)
		if err != nil {
			downloadError(w, r, err)
			return
		}
		defer f.Close() //nolint:errcheck

		w.Header().Set("Content-Type", artifact.Type.ContentType())
		w.Header().Set("Content-Disposition", validation.ContentDisposition(artifact.DownloadName(), false))
		w.Header().Set("Cache-Control", "private, no-store")
		http.ServeContent(w, r, artifact.DownloadName(), artifact.CreatedAt, f)
	}
}

func downloadError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, domain.ErrNotFound) {
		http.Error(w, "Artifact not found", http.StatusNotFound)
		return
	}
	logger.Error.Printf("download %s: %v", logger.SanitizeForLog(r.URL.Path), err)
	http.Error(w, "Internal error", http.StatusInternalServerError)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}
