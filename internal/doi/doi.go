// Package doi normalizes and validates DOI names and maps them to
// resolvable URLs.
package doi

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// ResolverBase is the public DOI resolver all canonical URLs point at.
const ResolverBase = "https://doi.org/"

// namePattern matches a DOI name: the "10." directory indicator, a numeric
// registrant code, and a non-empty suffix.
var namePattern = regexp.MustCompile(`^10\.\d{4,9}/\S+$`)

// Normalize strips common presentation prefixes from a raw DOI string,
// lowercases it (DOI names are case-insensitive), and validates the result.
func Normalize(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	for _, prefix := range []string{
		"https://doi.org/",
		"http://doi.org/",
		"https://dx.doi.org/",
		"http://dx.doi.org/",
		"doi:",
	} {
		if strings.HasPrefix(strings.ToLower(s), prefix) {
			s = s[len(prefix):]
			break
		}
	}
	s = strings.ToLower(s)
	if !namePattern.MatchString(s) {
		return "", fmt.Errorf("invalid DOI %q", raw)
	}
	return s, nil
}

// ResolverURL returns the canonical resolvable URL for a normalized DOI.
func ResolverURL(name string) string {
	return URLFor(ResolverBase, name)
}

// URLFor builds a resolvable URL for name against an arbitrary resolver
// base, e.g. a handle-system mirror. The suffix may contain characters that
// need escaping, but slashes are kept literal so the resolver sees the full
// name.
func URLFor(base, name string) string {
	escaped := url.PathEscape(name)
	// PathEscape encodes the slash between registrant and suffix; the
	// resolver requires it literal.
	escaped = strings.ReplaceAll(escaped, "%2F", "/")
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	return base + escaped
}
