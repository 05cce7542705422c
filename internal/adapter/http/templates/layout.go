package templates

import (
	"context"
	"io"
	"strconv"
	"time"

	"github.com/a-h/templ"
	"github.com/dustin/go-humanize"
)

const stylesheet = `body{font-family:system-ui,sans-serif;margin:0;background:#f6f7f9;color:#1d2330}
header{background:#c00;color:#fff;padding:.8rem 1.5rem;display:flex;justify-content:space-between;align-items:center}
header a{color:#fff;text-decoration:none;font-weight:600}
main{max-width:1100px;margin:1.5rem auto;padding:0 1rem}
table{width:100%;border-collapse:collapse;background:#fff}
th,td{padding:.5rem;border-bottom:1px solid #e3e5ea;text-align:left;font-size:.9rem}
.card{background:#fff;border:1px solid #e3e5ea;border-radius:6px;padding:1rem;margin-bottom:1rem}
.stats{display:flex;gap:1rem}.stats .card{flex:1;text-align:center}
.status{padding:.1rem .5rem;border-radius:4px;font-size:.8rem}
.status-queued{background:#eef}.status-running{background:#ffd}.status-completed{background:#dfd}.status-failed{background:#fdd}
.error{color:#b00}
pre{background:#111;color:#ddd;padding:1rem;overflow:auto;max-height:24rem;font-size:.8rem}
label{display:block;margin:.4rem 0}`

// htmlWriter keeps the first write error so component bodies can be
// written top to bottom.
type htmlWriter struct {
	w   io.Writer
	err error
}

func (h *htmlWriter) raw(parts ...string) {
	for _, s := range parts {
		if h.err != nil {
			return
		}
		_, h.err = io.WriteString(h.w, s)
	}
}

func (h *htmlWriter) text(s string) {
	h.raw(templ.EscapeString(s))
}

func (h *htmlWriter) attr(name, value string) {
	h.raw(" ", name, `="`, templ.EscapeString(value), `"`)
}

func (h *htmlWriter) href(u templ.SafeURL) {
	h.attr("href", string(u))
}

func (h *htmlWriter) child(ctx context.Context, c templ.Component) {
	if h.err == nil {
		h.err = c.Render(ctx, h.w)
	}
}

func (h *htmlWriter) csrfField(token string) {
	h.raw(`<input type="hidden" name="csrf_token"`)
	h.attr("value", token)
	h.raw(">\n")
}

func component(body func(ctx context.Context, h *htmlWriter)) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		h := &htmlWriter{w: w}
		body(ctx, h)
		return h.err
	})
}

// page renders body as the children of the layout.
func page(title string, c Chrome, body templ.Component) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		return layout(title, c).Render(templ.WithChildren(ctx, body), w)
	})
}

func layout(title string, c Chrome) templ.Component {
	return component(func(ctx context.Context, h *htmlWriter) {
		children := templ.GetChildren(ctx)
		ctx = templ.ClearChildren(ctx)

		h.raw("<!DOCTYPE html>\n<html lang=\"en\">\n<head>\n<meta charset=\"utf-8\">\n",
			"<meta name=\"viewport\" content=\"width=device-width, initial-scale=1\">\n<title>")
		h.text(title)
		h.raw(" · tubeaudit</title>\n<style>", stylesheet, "</style>\n</head>\n<body>\n<header>\n<a href=\"/\">tubeaudit</a>\n")
		if c.User != nil {
			h.raw(`<form method="post" action="/logout">`)
			h.csrfField(c.CSRF)
			h.raw("<span>")
			h.text(c.User.Name())
			h.raw("</span> <button type=\"submit\">Log out</button></form>\n")
		}
		h.raw("</header>\n<main>")
		h.child(ctx, children)
		h.raw("</main>\n</body>\n</html>")
	})
}

func ago(t time.Time) string { return humanize.Time(t) }

func size(n int64) string { return humanize.Bytes(uint64(max(n, 0))) }

func score(p *int) string {
	if p == nil {
		return "-"
	}
	return strconv.Itoa(*p)
}
