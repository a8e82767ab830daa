package render

import "strings"

// NetworkPolicy decides, per outgoing browser request, whether it may proceed.
type NetworkPolicy struct {
	BlockExternal bool
	AllowURL      bool
	Allowlist     *Allowlist
}

// ShouldAllow is the interception predicate. data: and blob: URIs always pass;
// anything else needs external access, URL rendering, and an allowlisted host.
func (p NetworkPolicy) ShouldAllow(rawURL string) bool {
	lower := strings.ToLower(strings.TrimSpace(rawURL))
	if strings.HasPrefix(lower, "data:") || strings.HasPrefix(lower, "blob:") {
		return true
	}
	if p.BlockExternal || !p.AllowURL {
		return false
	}
	return p.Allowlist.AllowsURL(rawURL)
}
