package logger

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// maxLoggedValue caps user-supplied values so a pasted blob cannot flood the log.
const maxLoggedValue = 512

// SanitizeForLog escapes control characters in user-supplied values (channel
// URLs, client names, emails) so they cannot forge log entries or drive the
// terminal. Printable Unicode is kept as is. Values longer than maxLoggedValue
// bytes are cut on a rune boundary and suffixed with "...".
func SanitizeForLog(s string) string {
	truncated := false
	if len(s) > maxLoggedValue {
		cut := maxLoggedValue
		for cut > 0 && !utf8.RuneStart(s[cut]) {
			cut--
		}
		s = s[:cut]
		truncated = true
	}

	var b strings.Builder
	b.Grow(len(s) + 3)
	for _, r := range s {
		switch {
		case r == '\n':
			b.WriteString(`\n`)
		case r == '\r':
			b.WriteString(`\r`)
		case r == '\t':
			b.WriteString(`\t`)
		case r < 0x20 || r == 0x7f:
			fmt.Fprintf(&b, `\x%02x`, r)
		default:
			b.WriteRune(r)
		}
	}
	if truncated {
		b.WriteString("...")
	}
	return b.String()
}
