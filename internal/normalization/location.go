package normalization

import "strings"

// LocationParts is a parsed free-text location.
type LocationParts struct {
	Raw     string
	City    string
	Region  string
	Country string
}

// ParseLocation splits a comma-separated location. Three or more parts read
// as city, region, country; two as city, country; one as region.
func ParseLocation(raw string) *LocationParts {
	raw = Clean(raw)
	if raw == "" {
		return nil
	}
	var parts []string
	for _, p := range strings.Split(raw, ",") {
		if p = Clean(p); p != "" {
			parts = append(parts, p)
		}
	}
	out := &LocationParts{Raw: raw}
	switch n := len(parts); {
	case n == 0:
		return nil
	case n == 1:
		out.Region = parts[0]
	case n == 2:
		out.City, out.Country = parts[0], parts[1]
	default:
		out.City = parts[0]
		out.Region = strings.Join(parts[1:n-1], ", ")
		out.Country = parts[n-1]
	}
	return out
}

// Key is the dedup key "country|region|city".
func (l *LocationParts) Key() string {
	if l == nil {
		return ""
	}
	return Key(l.Country) + "|" + Key(l.Region) + "|" + Key(l.City)
}
