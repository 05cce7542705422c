package domain

import (
	"strings"
	"time"
	"unicode/utf8"
)

const logTimeLayout = "2006-01-02 15:04:05"

// FormatLogLine renders one job log line: "[YYYY-MM-DD HH:MM:SS UTC] text\n".
func FormatLogLine(now time.Time, text string) string {
	return "[" + now.UTC().Format(logTimeLayout) + " UTC] " + strings.TrimRight(text, "\n") + "\n"
}

// AppendLog appends line to existing and keeps the result within maxBytes by
// dropping whole lines from the front. A single line longer than maxBytes
// keeps only its tail.
func AppendLog(existing, line string, maxBytes int) string {
	out := existing + line
	if maxBytes <= 0 || len(out) <= maxBytes {
		return out
	}

	excess := len(out) - maxBytes
	if out[excess-1] == '\n' {
		return out[excess:]
	}
	cut := strings.IndexByte(out[excess:], '\n')
	if cut >= 0 && excess+cut+1 < len(out) {
		return out[excess+cut+1:]
	}
	start := len(out) - maxBytes
	for start < len(out) && !utf8.RuneStart(out[start]) {
		start++
	}
	return out[start:]
}
