package readahead

import "strings"

// Config is the subset of the shadow config surface (spec §6) the
// eligibility filter and work loop need.
type Config struct {
	HTTPHeaderName   string
	ReferrerBlacklist []string
	LeaderExpiration  int // seconds
}

// ShouldAddToReadahead implements spec §4.7's eligibility filter,
// invoked on the request path (not in the worker). headers carries the
// incoming request's header values keyed by header name; the opt-in header
// is looked up under cfg.HTTPHeaderName exactly as configured.
func ShouldAddToReadahead(cfg Config, referrer string, headers map[string]string) bool {
	if headers[cfg.HTTPHeaderName] != "" {
		return true
	}
	if referrer == "" {
		return false
	}
	for _, substr := range cfg.ReferrerBlacklist {
		if substr != "" && strings.Contains(referrer, substr) {
			return false
		}
	}
	return true
}
