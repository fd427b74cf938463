package gateway

import (
	"net/url"
	"strings"
)

// AllowList is the set of trusted domains. A host is allowed when it equals an
// entry or is a subdomain of one.
type AllowList struct {
	domains []string
}

// NewAllowList normalizes entries: lowercased, scheme, path and leading dots
// stripped. Blank entries are ignored.
func NewAllowList(entries []string) *AllowList {
	a := &AllowList{}
	seen := make(map[string]bool)
	for _, e := range entries {
		d := normalizeEntry(e)
		if d == "" || seen[d] {
			continue
		}
		seen[d] = true
		a.domains = append(a.domains, d)
	}
	return a
}

func normalizeEntry(e string) string {
	e = strings.ToLower(strings.TrimSpace(e))
	if i := strings.Index(e, "://"); i >= 0 {
		e = e[i+3:]
	}
	if i := strings.IndexAny(e, "/:"); i >= 0 {
		e = e[:i]
	}
	return strings.Trim(e, ".")
}

// Domains returns the normalized entries in configuration order.
func (a *AllowList) Domains() []string {
	out := make([]string, len(a.domains))
	copy(out, a.domains)
	return out
}

// Len returns the number of entries.
func (a *AllowList) Len() int { return len(a.domains) }

// AllowsHost reports whether host is an entry or a subdomain of one.
func (a *AllowList) AllowsHost(host string) bool {
	host = strings.TrimSuffix(strings.ToLower(host), ".")
	if host == "" {
		return false
	}
	for _, d := range a.domains {
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}

// AllowsURL parses raw and reports whether it is an http(s) URL on an
// allowed host.
func (a *AllowList) AllowsURL(raw string) (*url.URL, bool) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return u, false
	}
	return u, a.AllowsHost(u.Hostname())
}
