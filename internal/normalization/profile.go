package normalization

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/yungbote/talentgraph-backend/internal/pkg/errors"
)

var (
	profileURLPattern = regexp.MustCompile(`^https://linkedin\.com/in/[^/]+$`)
	countrySubdomain  = regexp.MustCompile(`^[a-z]{2}\.linkedin\.com$`)
	ErrMissingProfile = errors.New("missing profile identifier")
	ErrInvalidProfile = errors.New("invalid profile url")
)

// NormalizeProfileURL canonicalizes a LinkedIn profile URL to
// https://linkedin.com/in/<id>.
func NormalizeProfileURL(raw string) (string, error) {
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == "" {
		return "", ErrMissingProfile
	}
	switch {
	case strings.HasPrefix(s, "https://"):
	case strings.HasPrefix(s, "http://"):
		s = "https://" + strings.TrimPrefix(s, "http://")
	case strings.HasPrefix(s, "//"):
		s = "https:" + s
	default:
		s = "https://" + s
	}
	u, err := url.Parse(s)
	if err != nil {
		return "", errors.Wrapf(ErrInvalidProfile, "%q", raw)
	}
	host := strings.TrimPrefix(u.Hostname(), "www.")
	if countrySubdomain.MatchString(host) {
		host = "linkedin.com"
	}
	path := strings.TrimRight(u.Path, "/")
	out := "https://" + host + path
	if !profileURLPattern.MatchString(out) {
		return "", errors.Wrapf(ErrInvalidProfile, "%q", raw)
	}
	return out, nil
}

// ProfileRef resolves a profile URL, a urn:li:...:<id> reference or a bare
// public identifier to a normalized profile URL.
func ProfileRef(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", ErrMissingProfile
	}
	lower := strings.ToLower(s)
	if strings.HasPrefix(lower, "urn:li:") {
		id := s[strings.LastIndex(s, ":")+1:]
		if strings.TrimSpace(id) == "" {
			return "", errors.Wrapf(ErrInvalidProfile, "%q", raw)
		}
		return NormalizeProfileURL("https://linkedin.com/in/" + id)
	}
	if !strings.Contains(lower, "/") && !strings.Contains(lower, ".") {
		return NormalizeProfileURL("https://linkedin.com/in/" + s)
	}
	return NormalizeProfileURL(s)
}

// PublicIdentifier is the last path segment of a normalized profile URL.
func PublicIdentifier(profileURL string) string {
	i := strings.LastIndex(profileURL, "/in/")
	if i < 0 {
		return ""
	}
	return profileURL[i+len("/in/"):]
}
