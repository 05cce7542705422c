package templates

import (
	"context"
	"strconv"

	"github.com/a-h/templ"

	"github.com/bnema/tubeaudit/internal/domain"
)

func dashboardBody(v DashboardView) templ.Component {
	return component(func(ctx context.Context, h *htmlWriter) {
		h.raw("<div class=\"stats\">\n")
		statCard(h, v.Stats.Queued, "Queued")
		statCard(h, v.Stats.Running, "Running")
		statCard(h, v.Stats.CompletedRecent, "Completed (7 days)")
		statCard(h, v.Stats.Failed, "Failed")
		h.raw("</div>\n")

		h.child(ctx, newAuditForm(v))
		h.child(ctx, filterForm(v))
		h.child(ctx, jobTable(v.Jobs))
	})
}

func statCard(h *htmlWriter, n int, label string) {
	h.raw(`<div class="card"><strong>`, strconv.Itoa(n), "</strong><br>")
	h.text(label)
	h.raw("</div>\n")
}

// fieldError labels a validation message with the field it belongs to.
func fieldError(h *htmlWriter, errs map[string]string, field, label string) {
	if msg := errs[field]; msg != "" {
		formError(h, label+" "+msg)
	}
}

func textInput(h *htmlWriter, label, kind, name, value string, extra string) {
	h.raw("<label>")
	h.text(label)
	h.raw(` <input type="`, kind, `" name="`, name, `"`)
	h.attr("value", value)
	h.raw(extra, "></label>\n")
}

func newAuditForm(v DashboardView) templ.Component {
	return component(func(_ context.Context, h *htmlWriter) {
		h.raw("<div class=\"card\">\n<h2>New audit</h2>\n")
		formError(h, v.Errors["form"])
		h.raw("<form method=\"post\" action=\"/audits\">\n")
		h.csrfField(v.CSRF)

		textInput(h, "Client name", "text", "client_name", v.Form.ClientName, " required")
		fieldError(h, v.Errors, "client_name", "Client name")
		textInput(h, "Client contact", "text", "client_contact", v.Form.ClientContact, "")
		textInput(h, "Channel URL", "url", "channel_url", v.Form.ChannelURL, ` placeholder="https://www.youtube.com/@handle" required`)
		fieldError(h, v.Errors, "channel_url", "Channel URL")

		limited := v.Form.CrawlMode == string(domain.CrawlModeLimited)
		h.raw("<label>Crawl\n<select name=\"crawl_mode\">\n")
		option(h, string(domain.CrawlModeAll), "All videos", !limited)
		option(h, string(domain.CrawlModeLimited), "Top videos only", limited)
		h.raw("</select></label>\n")

		textInput(h, "Max videos", "number", "max_videos", v.Form.MaxVideos, ` min="1" max="5000"`)
		fieldError(h, v.Errors, "max_videos", "Max videos")
		fieldError(h, v.Errors, "crawl_mode", "Crawl mode")

		h.raw("<label>Notes <textarea name=\"notes\">")
		h.text(v.Form.Notes)
		h.raw("</textarea></label>\n<button type=\"submit\">Start audit</button>\n</form>\n</div>\n")
	})
}

func option(h *htmlWriter, value, label string, selected bool) {
	h.raw("<option")
	h.attr("value", value)
	if selected {
		h.raw(" selected")
	}
	h.raw(">")
	h.text(label)
	h.raw("</option>\n")
}

func filterForm(v DashboardView) templ.Component {
	return component(func(_ context.Context, h *htmlWriter) {
		h.raw("<div class=\"card\">\n<form method=\"get\" action=\"/\">\n<select name=\"status\">\n")
		option(h, "", "Any status", v.Filter.Status == "")
		for _, s := range v.Statuses {
			option(h, string(s), string(s), string(s) == v.Filter.Status)
		}
		h.raw("</select>\n")

		filterInput(h, "text", "client", v.Filter.Client, "Client")
		filterInput(h, "text", "q", v.Filter.Query, "Search")
		filterInput(h, "date", "created_from", v.Filter.CreatedFrom, "")
		filterInput(h, "date", "created_to", v.Filter.CreatedTo, "")
		h.raw("<button type=\"submit\">Filter</button>\n</form>\n</div>\n")
	})
}

func filterInput(h *htmlWriter, kind, name, value, placeholder string) {
	h.raw(`<input type="`, kind, `" name="`, name, `"`)
	h.attr("value", value)
	if placeholder != "" {
		h.attr("placeholder", placeholder)
	}
	h.raw(">\n")
}

func jobTable(jobs []*domain.Job) templ.Component {
	return component(func(_ context.Context, h *htmlWriter) {
		h.raw("<table>\n<thead><tr><th>Created</th><th>Client</th><th>Channel</th><th>Status</th><th>Health</th><th>Expires</th></tr></thead>\n<tbody>\n")
		if len(jobs) == 0 {
			h.raw("<tr><td colspan=\"6\">No audits yet.</td></tr>\n")
		}
		for _, job := range jobs {
			h.raw("<tr>\n<td")
			h.attr("title", job.CreatedAt.UTC().Format("2006-01-02 15:04 UTC"))
			h.raw(">")
			h.text(ago(job.CreatedAt))
			h.raw("</td>\n<td>")
			h.text(job.ClientName)
			h.raw("</td>\n<td><a")
			h.href(templ.URL("/audits/" + job.ID))
			h.raw(">")
			h.text(channelLabel(job))
			h.raw("</a></td>\n<td>")
			statusBadge(h, "", job.Status)
			h.raw(" ")
			h.text(job.ProgressStep)
			h.raw("</td>\n<td>", score(job.Summary.HealthScore), "</td>\n<td>")
			h.text(ago(job.ExpiresAt))
			h.raw("</td>\n</tr>\n")
		}
		h.raw("</tbody>\n</table>\n")
	})
}

func channelLabel(job *domain.Job) string {
	if job.ChannelName != "" {
		return job.ChannelName
	}
	return job.ChannelURL
}

func statusBadge(h *htmlWriter, id string, s domain.JobStatus) {
	h.raw("<span")
	if id != "" {
		h.attr("id", id)
	}
	h.attr("class", "status status-"+string(s))
	h.raw(">")
	h.text(string(s))
	h.raw("</span>")
}
