// Package templates renders the operator UI pages as templ components.
package templates

import (
	"github.com/a-h/templ"

	"github.com/bnema/tubeaudit/internal/domain"
)

// Chrome is shared by every page.
type Chrome struct {
	User *domain.User
	CSRF string
}

type LoginView struct {
	Chrome
	Email string
	Error string
}

func Login(v LoginView) templ.Component {
	return page("Log in", v.Chrome, loginBody(v))
}

type SetupView struct {
	Chrome
	Email       string
	DisplayName string
	Error       string
}

func Setup(v SetupView) templ.Component {
	return page("Setup", v.Chrome, setupBody(v))
}

// AuditForm echoes the submitted values back after a validation error.
type AuditForm struct {
	ClientName    string
	ClientContact string
	ChannelURL    string
	CrawlMode     string
	MaxVideos     string
	Notes         string
}

// FilterForm mirrors the dashboard query string.
type FilterForm struct {
	Status      string
	Client      string
	Query       string
	CreatedFrom string
	CreatedTo   string
}

type DashboardView struct {
	Chrome
	Stats    domain.JobStats
	Jobs     []*domain.Job
	Statuses []domain.JobStatus
	Filter   FilterForm
	Form     AuditForm
	Errors   map[string]string
}

func Dashboard(v DashboardView) templ.Component {
	if v.Statuses == nil {
		v.Statuses = []domain.JobStatus{
			domain.JobStatusQueued, domain.JobStatusRunning, domain.JobStatusCompleted, domain.JobStatusFailed,
		}
	}
	return page("Audits", v.Chrome, dashboardBody(v))
}

type DetailView struct {
	Chrome
	Job       *domain.Job
	Artifacts []*domain.Artifact
}

func Detail(v DetailView) templ.Component {
	return page("Audit "+v.Job.ChannelURL, v.Chrome, detailBody(v))
}

func ErrorPage(code, message string) templ.Component {
	return page(code, Chrome{}, errorBody(code, message))
}
