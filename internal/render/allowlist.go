package render

import (
	"net/url"
	"strings"
)

// Allowlist stores exact hosts and "*." wildcard suffixes from configuration.
// A wildcard matches subdomains only, never the bare domain.
type Allowlist struct {
	exact    map[string]struct{}
	suffixes []string
}

// NewAllowlist builds a matcher from comma-separated or pre-split patterns.
func NewAllowlist(patterns []string) *Allowlist {
	matcher := &Allowlist{
		exact: make(map[string]struct{}),
	}
	for _, raw := range patterns {
		for _, part := range strings.Split(raw, ",") {
			value := strings.TrimSpace(strings.ToLower(part))
			if value == "" {
				continue
			}
			if strings.HasPrefix(value, "*.") {
				if suffix := strings.TrimPrefix(value, "*."); suffix != "" {
					matcher.addSuffix(suffix)
				}
				continue
			}
			matcher.exact[value] = struct{}{}
		}
	}
	return matcher
}

func (a *Allowlist) addSuffix(suffix string) {
	for _, existing := range a.suffixes {
		if existing == suffix {
			return
		}
	}
	a.suffixes = append(a.suffixes, suffix)
}

// Empty reports whether no pattern was configured.
func (a *Allowlist) Empty() bool {
	return a == nil || (len(a.exact) == 0 && len(a.suffixes) == 0)
}

// AllowsHost reports whether host matches an entry.
func (a *Allowlist) AllowsHost(host string) bool {
	if a == nil {
		return false
	}
	host = strings.TrimSuffix(strings.TrimSpace(strings.ToLower(host)), ".")
	if host == "" {
		return false
	}
	if _, exact := a.exact[host]; exact {
		return true
	}
	for _, suffix := range a.suffixes {
		if strings.HasSuffix(host, "."+suffix) {
			return true
		}
	}
	return false
}

// AllowsURL parses rawURL and checks its hostname.
func (a *Allowlist) AllowsURL(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return a.AllowsHost(u.Hostname())
}

// Patterns returns the configured entries, wildcards last.
func (a *Allowlist) Patterns() []string {
	if a == nil {
		return nil
	}
	out := make([]string, 0, len(a.exact)+len(a.suffixes))
	for host := range a.exact {
		out = append(out, host)
	}
	for _, suffix := range a.suffixes {
		out = append(out, "*."+suffix)
	}
	return out
}
