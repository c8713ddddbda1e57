package normalization

import (
	"net/url"
	"strings"
)

// Domain reduces a website or domain to a bare lowercase host.
func Domain(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == "" {
		return ""
	}
	if !strings.Contains(s, "://") {
		s = "https://" + s
	}
	u, err := url.Parse(s)
	if err != nil {
		return ""
	}
	host := strings.TrimPrefix(u.Hostname(), "www.")
	if !strings.Contains(host, ".") || strings.HasSuffix(host, "linkedin.com") {
		return ""
	}
	return host
}

// CompanyIDFromURL extracts <id> from linkedin.com/company/<id>.
func CompanyIDFromURL(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	i := strings.Index(s, "/company/")
	if i < 0 {
		return ""
	}
	rest := s[i+len("/company/"):]
	if j := strings.IndexAny(rest, "/?#"); j >= 0 {
		rest = rest[:j]
	}
	return rest
}

// OrganizationNameKey is the fallback dedup key: normalized name plus location key.
func OrganizationNameKey(name, locationKey string) string {
	return Key(name) + "|" + locationKey
}
