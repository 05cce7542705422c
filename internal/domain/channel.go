package domain

import (
	"regexp"
	"strings"
)

var channelURLPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^https://(www\.)?youtube\.com/@[\w.-]+/?$`),
	regexp.MustCompile(`(?i)^https://(www\.)?youtube\.com/channel/UC[\w-]+/?$`),
	regexp.MustCompile(`(?i)^https://(www\.)?youtube\.com/c/[\w-]+/?$`),
	regexp.MustCompile(`(?i)^https://(www\.)?youtube\.com/user/[\w-]+/?$`),
}

// NormalizeChannelURL trims whitespace, upgrades http to https and drops a
// trailing slash.
func NormalizeChannelURL(raw string) string {
	u := strings.TrimSpace(raw)
	if len(u) >= 7 && strings.EqualFold(u[:7], "http://") {
		u = "https://" + u[7:]
	}
	return strings.TrimRight(u, "/")
}

// ValidateChannelURL returns the normalized URL when it points at a channel
// by handle, id, custom name or legacy username.
func ValidateChannelURL(raw string) (string, error) {
	u := NormalizeChannelURL(raw)
	if u == "" {
		return "", &ValidationError{Field: "channel_url", Message: "is required"}
	}
	for _, p := range channelURLPatterns {
		if p.MatchString(u) {
			return u, nil
		}
	}
	return "", &ValidationError{
		Field:   "channel_url",
		Message: "must be a YouTube channel URL (@handle, /channel/UC..., /c/name or /user/name)",
	}
}

type ChannelRefKind string

const (
	ChannelRefHandle   ChannelRefKind = "handle"
	ChannelRefID       ChannelRefKind = "id"
	ChannelRefCustom   ChannelRefKind = "custom"
	ChannelRefUsername ChannelRefKind = "username"
)

// ChannelRef is the identifying part of a channel URL.
type ChannelRef struct {
	Kind  ChannelRefKind
	Value string
}

// ParseChannelRef extracts the channel reference from a validated URL.
func ParseChannelRef(channelURL string) (ChannelRef, error) {
	u, err := ValidateChannelURL(channelURL)
	if err != nil {
		return ChannelRef{}, err
	}

	idx := strings.Index(strings.ToLower(u), "youtube.com/")
	path := u[idx+len("youtube.com/"):]

	switch {
	case strings.HasPrefix(path, "@"):
		return ChannelRef{Kind: ChannelRefHandle, Value: path[1:]}, nil
	case hasPrefixFold(path, "channel/"):
		return ChannelRef{Kind: ChannelRefID, Value: path[len("channel/"):]}, nil
	case hasPrefixFold(path, "c/"):
		return ChannelRef{Kind: ChannelRefCustom, Value: path[len("c/"):]}, nil
	default:
		return ChannelRef{Kind: ChannelRefUsername, Value: path[len("user/"):]}, nil
	}
}

func hasPrefixFold(s, prefix string) bool {
	return len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix)
}
