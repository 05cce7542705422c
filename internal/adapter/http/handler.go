package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/a-h/templ"

	"github.com/bnema/tubeaudit/internal/adapter/http/templates"
	"github.com/bnema/tubeaudit/internal/domain"
	"github.com/bnema/tubeaudit/internal/infrastructure/logger"
)

type AuditService interface {
	Create(ctx context.Context, req domain.CreateAuditRequest) (*domain.Job, error)
	Get(ctx context.Context, id string) (*domain.Job, error)
	List(ctx context.Context, filter domain.JobFilter) ([]*domain.Job, error)
	Stats(ctx context.Context) (domain.JobStats, error)
	Artifacts(ctx context.Context, jobID string) ([]*domain.Artifact, error)
	Artifact(ctx context.Context, id string) (*domain.Artifact, error)
	Status(ctx context.Context, id string) (domain.StatusView, error)
	ArtifactLink(ctx context.Context, jobID string, t domain.ArtifactType) (domain.ArtifactLink, error)
	Delete(ctx context.Context, id string) error
}

// Handlers serves the HTML pages.
type Handlers struct {
	audits AuditService
}

func NewHandlers(audits AuditService) *Handlers {
	return &Handlers{audits: audits}
}

func (h *Handlers) Dashboard() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		view := templates.DashboardView{
			Chrome: chrome(r),
			Form:   templates.AuditForm{CrawlMode: string(domain.CrawlModeAll)},
		}
		h.renderDashboard(w, r, http.StatusOK, view)
	}
}

func (h *Handlers) renderDashboard(w http.ResponseWriter, r *http.Request, status int, view templates.DashboardView) {
	q := r.URL.Query()
	view.Filter = templates.FilterForm{
		Status:      q.Get("status"),
		Client:      q.Get("client"),
		Query:       q.Get("q"),
		CreatedFrom: q.Get("created_from"),
		CreatedTo:   q.Get("created_to"),
	}

	filter, err := parseFilter(q)
	if err != nil {
		if view.Errors == nil {
			view.Errors = map[string]string{}
		}
		view.Errors["form"] = "Invalid filter: " + err.Error()
		filter = domain.JobFilter{}
	}

	jobs, err := h.audits.List(r.Context(), filter)
	if err != nil {
		logger.Error.Printf("dashboard list error: %v", err)
		jobs = []*domain.Job{}
	}
	view.Jobs = jobs

	stats, err := h.audits.Stats(r.Context())
	if err != nil {
		logger.Error.Printf("dashboard stats error: %v", err)
	}
	view.Stats = stats

	renderPage(w, r, status, templates.Dashboard(view))
}

// CreateAudit handles the dashboard form. Validation errors re-render the
// form next to the offending field.
func (h *Handlers) CreateAudit() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		form := templates.AuditForm{
			ClientName:    strings.TrimSpace(r.FormValue("client_name")),
			ClientContact: strings.TrimSpace(r.FormValue("client_contact")),
			ChannelURL:    strings.TrimSpace(r.FormValue("channel_url")),
			CrawlMode:     r.FormValue("crawl_mode"),
			MaxVideos:     strings.TrimSpace(r.FormValue("max_videos")),
			Notes:         r.FormValue("notes"),
		}

		req := domain.CreateAuditRequest{
			ClientName:    form.ClientName,
			ClientContact: form.ClientContact,
			RequestedBy:   currentUser(r).ID,
			ChannelURL:    form.ChannelURL,
			CrawlMode:     domain.CrawlMode(form.CrawlMode),
			Notes:         form.Notes,
		}
		if form.MaxVideos != "" && req.CrawlMode == domain.CrawlModeLimited {
			n, err := strconv.Atoi(form.MaxVideos)
			if err != nil {
				h.rerenderForm(w, r, http.StatusBadRequest, form, "max_videos", "must be a number")
				return
			}
			req.MaxVideos = &n
		}

		job, err := h.audits.Create(r.Context(), req)
		if err != nil {
			var validationErr *domain.ValidationError
			var dispatchErr *domain.DispatchError
			switch {
			case errors.As(err, &validationErr):
				h.rerenderForm(w, r, http.StatusBadRequest, form, validationErr.Field, validationErr.Message)
			case errors.As(err, &dispatchErr):
				h.rerenderForm(w, r, http.StatusBadGateway, form, "form", "The audit could not be queued. It was marked as failed.")
			default:
				logger.Error.Printf("create audit: %v", err)
				h.rerenderForm(w, r, http.StatusInternalServerError, form, "form", "Something went wrong. Please try again.")
			}
			return
		}

		http.Redirect(w, r, "/audits/"+url.PathEscape(job.ID), http.StatusSeeOther)
	}
}

func (h *Handlers) rerenderForm(w http.ResponseWriter, r *http.Request, status int, form templates.AuditForm, field, message string) {
	view := templates.DashboardView{
		Chrome: chrome(r),
		Form:   form,
		Errors: map[string]string{field: message},
	}
	h.renderDashboard(w, r, status, view)
}

func (h *Handlers) AuditDetail() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		job, err := h.audits.Get(r.Context(), id)
		if err != nil {
			h.pageError(w, r, err)
			return
		}

		artifacts, err := h.audits.Artifacts(r.Context(), id)
		if err != nil {
			h.pageError(w, r, err)
			return
		}

		renderPage(w, r, http.StatusOK, templates.Detail(templates.DetailView{
			Chrome:    chrome(r),
			Job:       job,
			Artifacts: artifacts,
		}))
	}
}

func (h *Handlers) DeleteAudit() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		if err := h.audits.Delete(r.Context(), id); err != nil {
			h.pageError(w, r, err)
			return
		}
		logger.Info.Printf("audit %s deleted by %s", id, currentUser(r).ID)
		http.Redirect(w, r, "/", http.StatusSeeOther)
	}
}

func (h *Handlers) pageError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	switch status {
	case http.StatusNotFound:
		renderError(w, r, status, "Audit not found")
	case http.StatusConflict:
		renderError(w, r, status, "This audit is running and cannot be deleted yet")
	default:
		logger.Error.Printf("%s %s: %v", r.Method, logger.SanitizeForLog(r.URL.Path), err)
		renderError(w, r, http.StatusInternalServerError, "Something went wrong")
	}
}

func renderPage(w http.ResponseWriter, r *http.Request, status int, c templ.Component) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := c.Render(r.Context(), w); err != nil {
		logger.Error.Printf("render %s: %v", logger.SanitizeForLog(r.URL.Path), err)
	}
}

func renderError(w http.ResponseWriter, r *http.Request, status int, message string) {
	renderPage(w, r, status, templates.ErrorPage(strconv.Itoa(status), message))
}

const dateLayout = "2006-01-02"

// parseFilter reads the list filters shared by the dashboard and the API.
// Dates are calendar days; created_to includes the whole day.
func parseFilter(q url.Values) (domain.JobFilter, error) {
	f := domain.JobFilter{
		Client: strings.TrimSpace(q.Get("client")),
		Query:  strings.TrimSpace(q.Get("q")),
	}

	if s := q.Get("status"); s != "" {
		f.Status = domain.JobStatus(s)
		if !f.Status.Valid() {
			return f, &domain.ValidationError{Field: "status", Message: fmt.Sprintf("unknown status %q", s)}
		}
	}

	var err error
	if f.Limit, err = intParam(q, "limit"); err != nil {
		return f, err
	}
	if f.Offset, err = intParam(q, "offset"); err != nil {
		return f, err
	}

	if s := q.Get("created_from"); s != "" {
		t, err := time.Parse(dateLayout, s)
		if err != nil {
			return f, &domain.ValidationError{Field: "created_from", Message: "must be YYYY-MM-DD"}
		}
		f.CreatedFrom = &t
	}
	if s := q.Get("created_to"); s != "" {
		t, err := time.Parse(dateLayout, s)
		if err != nil {
			return f, &domain.ValidationError{Field: "created_to", Message: "must be YYYY-MM-DD"}
		}
		t = t.AddDate(0, 0, 1)
		f.CreatedTo = &t
	}
	return f, nil
}

func intParam(q url.Values, name string) (int, error) {
	s := q.Get(name)
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, &domain.ValidationError{Field: name, Message: "must be a non-negative integer"}
	}
	return n, nil
}
