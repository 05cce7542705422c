package validation

import (
	"net/url"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

const maxFilenameLength = 255

// Characters that break header quoting or act as path separators.
var unsafeFilenameChars = map[rune]bool{
	'"':  true,
	'\\': true,
	'/':  true,
	':':  true,
	';':  true,
}

// SanitizeFilename makes a download name safe for Content-Disposition and
// object keys. Unicode letters are kept; control characters, quotes and path
// separators become underscores. The result is at most 255 bytes with the
// extension preserved, and never empty.
func SanitizeFilename(name string) string {
	var sb strings.Builder
	sb.Grow(len(name))
	for _, r := range name {
		if r < 32 || r == 127 || unsafeFilenameChars[r] {
			sb.WriteRune('_')
			continue
		}
		sb.WriteRune(r)
	}

	result := strings.TrimSpace(sb.String())
	if strings.Trim(result, "_.") == "" {
		return "download"
	}
	if len(result) > maxFilenameLength {
		result = truncatePreservingExtension(result)
	}
	return result
}

func truncatePreservingExtension(name string) string {
	ext := filepath.Ext(name)
	if ext == "" || len(ext) >= maxFilenameLength {
		return truncateToBytes(name, maxFilenameLength)
	}
	base := name[:len(name)-len(ext)]
	return truncateToBytes(base, maxFilenameLength-len(ext)) + ext
}

// truncateToBytes cuts s to at most maxBytes without splitting a rune.
func truncateToBytes(s string, maxBytes int) string {
	if len(s) <= maxBytes {
		return s
	}
	for maxBytes > 0 && !utf8.RuneStart(s[maxBytes]) {
		maxBytes--
	}
	return s[:maxBytes]
}

// asciiFallback replaces every non-ASCII rune for the plain filename parameter.
func asciiFallback(name string) string {
	var sb strings.Builder
	for _, r := range name {
		if r > 126 {
			sb.WriteRune('_')
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

// ContentDisposition builds a Content-Disposition value for a download.
// Non-ASCII names get an RFC 5987 filename* parameter next to the ASCII
// fallback.
func ContentDisposition(filename string, inline bool) string {
	sanitized := SanitizeFilename(filename)

	disposition := "attachment"
	if inline {
		disposition = "inline"
	}

	fallback := asciiFallback(sanitized)
	value := disposition + `; filename="` + fallback + `"`
	if fallback != sanitized {
		value += "; filename*=UTF-8''" + url.PathEscape(sanitized)
	}
	return value
}
