package upstreams

import "strings"

// DefaultAccept is sent on every relay call unless an upstream overrides it.
const DefaultAccept = "application/json"

// ConfigString returns the trimmed string value for key from upstream.Config or a fallback.
func ConfigString(u Upstream, key, fallback string) string {
	if u.Config != nil {
		if raw, ok := u.Config[key]; ok {
			if val, ok := raw.(string); ok {
				if trimmed := strings.TrimSpace(val); trimmed != "" {
					return trimmed
				}
			}
		}
	}
	return fallback
}

const (
	ConfigUserAgentKey      = "user_agent"
	ConfigAcceptKey         = "accept"
	ConfigAcceptLanguageKey = "accept_language"
	ConfigCacheControlKey   = "cache_control"
)

// Headers builds the request headers for an upstream (skips empty values).
func Headers(u Upstream) map[string]string {
	headers := map[string]string{
		"Accept": ConfigString(u, ConfigAcceptKey, DefaultAccept),
	}

	if v := ConfigString(u, ConfigUserAgentKey, ""); v != "" {
		headers["User-Agent"] = v
	}
	if v := ConfigString(u, ConfigAcceptLanguageKey, ""); v != "" {
		headers["Accept-Language"] = v
	}
	if v := ConfigString(u, ConfigCacheControlKey, ""); v != "" {
		headers["Cache-Control"] = v
	}

	return headers
}
