package templates

import (
	"context"
	"strconv"

	"github.com/a-h/templ"

	"github.com/bnema/tubeaudit/internal/domain"
)

// detailScript opens artifacts through their signed links and, when the page
// carries a data-status-url, refreshes status until the job is terminal.
const detailScript = `<script>
document.querySelectorAll("a[data-artifact]").forEach(function (a) {
  a.addEventListener("click", function (e) {
    e.preventDefault();
    fetch(a.href).then(function (r) { return r.json(); }).then(function (d) {
      if (d.url) { window.location = d.url; }
    });
  });
});
(function () {
  var el = document.querySelector("[data-status-url]");
  if (!el) { return; }
  (function poll() {
    fetch(el.dataset.statusUrl).then(function (r) { return r.json(); }).then(function (s) {
      document.getElementById("status").textContent = s.status;
      document.getElementById("progress").textContent = s.progress_step;
      document.getElementById("error").textContent = s.error_message;
      document.getElementById("log").textContent = s.log_text;
      if (s.status === "completed" || s.status === "failed") { window.location.reload(); return; }
      setTimeout(poll, 3000);
    });
  })();
})();
</script>
`

func detailBody(v DetailView) templ.Component {
	return component(func(ctx context.Context, h *htmlWriter) {
		h.child(ctx, jobCard(v.Job))
		h.child(ctx, artifactList(v.Job.ID, v.Artifacts))

		h.raw("<div class=\"card\">\n<h2>Log</h2>\n<pre id=\"log\">")
		h.text(v.Job.LogText)
		h.raw("</pre>\n</div>\n")

		if v.Job.Status != domain.JobStatusRunning {
			h.raw("<form method=\"post\"")
			h.attr("action", "/audits/"+v.Job.ID+"/delete")
			h.raw(">\n")
			h.csrfField(v.CSRF)
			h.raw("<button type=\"submit\">Delete audit</button>\n</form>\n")
		}
		h.raw(detailScript)
	})
}

func jobCard(job *domain.Job) templ.Component {
	return component(func(_ context.Context, h *htmlWriter) {
		h.raw("<div class=\"card\"")
		if !job.Status.IsTerminal() {
			h.attr("data-status-url", "/api/audits/"+job.ID+"/status")
		}
		h.raw(">\n<h1>")
		h.text(channelLabel(job))
		h.raw("</h1>\n<p>Client: ")
		h.text(job.ClientName)
		h.raw(" · Mode: ")
		h.text(string(job.CrawlMode))
		if job.MaxVideosOverride != nil {
			h.raw(" (", strconv.Itoa(*job.MaxVideosOverride), " videos)")
		}
		h.raw("</p>\n<p><a")
		h.href(templ.URL(job.ChannelURL))
		h.raw(` rel="noopener noreferrer" target="_blank">`)
		h.text(job.ChannelURL)
		h.raw("</a></p>\n<p>Status: ")
		statusBadge(h, "status", job.Status)
		h.raw(` <span id="progress">`)
		h.text(job.ProgressStep)
		h.raw("</span></p>\n<p id=\"error\" class=\"error\">")
		h.text(job.ErrorMessage)
		h.raw("</p>\n<p>Health score: <strong>", score(job.Summary.HealthScore), "</strong> · Created ")
		h.text(ago(job.CreatedAt))
		h.raw(" · Expires ")
		h.text(ago(job.ExpiresAt))
		h.raw("</p>\n")
		if job.Notes != "" {
			h.raw("<p>Notes: ")
			h.text(job.Notes)
			h.raw("</p>\n")
		}
		h.raw("</div>\n")
	})
}

func artifactList(jobID string, artifacts []*domain.Artifact) templ.Component {
	return component(func(_ context.Context, h *htmlWriter) {
		h.raw("<div class=\"card\">\n<h2>Artifacts</h2>\n<ul>\n")
		if len(artifacts) == 0 {
			h.raw("<li>No artifacts yet.</li>\n")
		}
		for _, a := range artifacts {
			h.raw("<li><a")
			h.href(templ.URL("/api/audits/" + jobID + "/artifacts/" + string(a.Type)))
			h.raw(" data-artifact>")
			h.text(a.Type.FileName())
			h.raw("</a> (")
			h.text(size(a.SizeBytes))
			h.raw(")</li>\n")
		}
		h.raw("</ul>\n</div>\n")
	})
}
