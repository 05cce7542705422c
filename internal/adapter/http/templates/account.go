package templates

import (
	"context"

	"github.com/a-h/templ"
)

func loginBody(v LoginView) templ.Component {
	return component(func(_ context.Context, h *htmlWriter) {
		h.raw("<div class=\"card\">\n<h1>Log in</h1>\n")
		formError(h, v.Error)
		h.raw("<form method=\"post\" action=\"/login\">\n")
		h.csrfField(v.CSRF)
		h.raw(`<label>Email <input type="email" name="email"`)
		h.attr("value", v.Email)
		h.raw(" required autofocus></label>\n",
			"<label>Password <input type=\"password\" name=\"password\" required></label>\n",
			"<button type=\"submit\">Log in</button>\n</form>\n</div>\n")
	})
}

func setupBody(v SetupView) templ.Component {
	return component(func(_ context.Context, h *htmlWriter) {
		h.raw("<div class=\"card\">\n<h1>Create the first account</h1>\n")
		formError(h, v.Error)
		h.raw("<form method=\"post\" action=\"/setup\">\n")
		h.csrfField(v.CSRF)
		h.raw(`<label>Email <input type="email" name="email"`)
		h.attr("value", v.Email)
		h.raw(" required autofocus></label>\n", `<label>Display name <input type="text" name="display_name"`)
		h.attr("value", v.DisplayName)
		h.raw("></label>\n",
			"<label>Password <input type=\"password\" name=\"password\" required></label>\n",
			"<button type=\"submit\">Create account</button>\n</form>\n</div>\n")
	})
}

func errorBody(code, message string) templ.Component {
	return component(func(_ context.Context, h *htmlWriter) {
		h.raw("<div class=\"card\">\n<h1>")
		h.text(code)
		h.raw("</h1>\n<p>")
		h.text(message)
		h.raw("</p>\n<p><a href=\"/\">Back to audits</a></p>\n</div>\n")
	})
}

// formError writes a message paragraph when msg is set.
func formError(h *htmlWriter, msg string) {
	if msg == "" {
		return
	}
	h.raw(`<p class="error">`)
	h.text(msg)
	h.raw("</p>\n")
}
