package youtube

import (
	"errors"
	"net/url"
	"regexp"
	"strings"
)

// ErrInvalidURL is returned when a string is not a recognizable YouTube
// video link.
var ErrInvalidURL = errors.New("invalid YouTube URL")

// videoURLPattern accepts watch, short-link, embed, /v/, /e/, /shorts/
// and channel-style /<x>/<y>/<id> links; the capture group is the
// 11-character video id.
var videoURLPattern = regexp.MustCompile(
	`^(?:https?://)?(?:www\.|m\.)?(?:youtube\.com/(?:[^/\n\s]+/\S+/|(?:v|e(?:mbed)?|shorts)/|\S*?[?&]v=)|youtu\.be/)([a-zA-Z0-9_-]{11})`,
)

// ParseVideoID extracts the video id from a YouTube link.
func ParseVideoID(raw string) (string, error) {
	m := videoURLPattern.FindStringSubmatch(strings.TrimSpace(raw))
	if len(m) < 2 {
		return "", ErrInvalidURL
	}
	return m[1], nil
}

// IsValidURL reports whether raw is a YouTube video link.
func IsValidURL(raw string) bool {
	_, err := ParseVideoID(raw)
	return err == nil
}

// LooksLikeYouTube is the looser check used by the submission form: the
// link must point at one of the known YouTube video paths, but the id
// itself is not inspected.
func LooksLikeYouTube(raw string) bool {
	return strings.Contains(raw, "youtube.com/watch") ||
		strings.Contains(raw, "youtu.be/") ||
		strings.Contains(raw, "youtube.com/v/") ||
		strings.Contains(raw, "youtube.com/embed/")
}

// IsCloudinaryURL reports whether raw is served by Cloudinary. Dubbing
// accepts previously generated clips as well as YouTube links.
func IsCloudinaryURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return strings.Contains(u.Host, "cloudinary.com")
}

// WatchURL returns the canonical watch link for a video id.
func WatchURL(id string) string {
	return "https://www.youtube.com/watch?v=" + id
}
