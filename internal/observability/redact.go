package observability

import (
	"regexp"
)

// Redactor masks secrets before they reach log output.
type Redactor struct {
	patterns []*regexp.Regexp
}

const redactedPlaceholder = "[REDACTED]"

// NewRedactor creates a redactor covering the secret shapes this
// service handles: Gemini API keys, bearer tokens, Authorization
// headers, api_key style query params, and Fernet keys.
func NewRedactor() *Redactor {
	return &Redactor{
		patterns: []*regexp.Regexp{
			// Gemini API keys.
			regexp.MustCompile(`AIza[0-9A-Za-z_\-]{35}`),
			// Bearer tokens.
			regexp.MustCompile(`(?i)bearer\s+[A-Za-z0-9_\-.~+/]+=*`),
			// Authorization header values.
			regexp.MustCompile(`(?i)authorization:\s*\S+`),
			// key/api_key/apikey/token/secret assignments in URLs, JSON or text.
			regexp.MustCompile(`(?i)(api[_-]?key|token|secret|password)["']?\s*[:=]\s*["']?[A-Za-z0-9_\-.~+/]{8,}=*`),
			// Fernet keys: 32 bytes urlsafe-base64 encoded, 44 chars with padding.
			regexp.MustCompile(`[A-Za-z0-9_\-]{43}=`),
		},
	}
}

// Redact replaces every secret occurrence in s with a placeholder.
func (r *Redactor) Redact(s string) string {
	for _, p := range r.patterns {
		s = p.ReplaceAllString(s, redactedPlaceholder)
	}
	return s
}
