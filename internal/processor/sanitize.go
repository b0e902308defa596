package processor

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/oakenlabs/textgate/pkg/errors"
)

// injectionSignatures match known prompt-injection phrasings. The scan
// is case-insensitive over the raw input.
var injectionSignatures = []*regexp.Regexp{
	regexp.MustCompile(`(?i)ignore\s+(all\s+)?(previous|prior|above)\s+(instructions|prompts?)`),
	regexp.MustCompile(`(?i)disregard\s+(all\s+)?(previous|prior|above)\s+(instructions|prompts?)`),
	regexp.MustCompile(`(?i)you\s+are\s+now\s+(a|an|in)\b`),
	regexp.MustCompile(`(?i)reveal\s+(your\s+)?(system\s+)?prompt`),
	regexp.MustCompile(`(?i)\bsystem\s+prompt\s*:`),
	regexp.MustCompile(`(?i)act\s+as\s+(if\s+you\s+(are|were)|a\s+jailbroken)`),
}

// sanitize returns the cleaned string or a validation error. The
// cleaned string replaces the original for every subsequent step,
// cache key included.
func sanitize(field, s string) (string, error) {
	s = strings.TrimSpace(s)

	for _, r := range s {
		if unicode.IsControl(r) && r != '\n' && r != '\t' && r != '\r' {
			return "", errors.NewValidation(field + " contains forbidden control characters")
		}
	}

	for _, sig := range injectionSignatures {
		if sig.MatchString(s) {
			return "", errors.NewValidation(field + " contains a disallowed instruction pattern")
		}
	}

	return s, nil
}

// refusalMarkers flag provider outputs that dodged the task; such
// responses are retried as transient failures.
var refusalMarkers = []string{
	"i cannot assist",
	"i can't assist",
	"i cannot help with",
	"i'm unable to",
	"as an ai language model",
}

// validateResponse inspects the raw model output before parsing.
// Violations are transient: the resilience layer retries them.
func validateResponse(raw string) error {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return errors.NewTransientAI("provider returned an empty response")
	}

	lower := strings.ToLower(trimmed)
	for _, marker := range refusalMarkers {
		if strings.Contains(lower, marker) {
			return errors.NewTransientAI("provider refused the request")
		}
	}
	for _, sig := range injectionSignatures {
		if sig.MatchString(trimmed) {
			return errors.NewTransientAI("provider echoed an instruction pattern")
		}
	}
	return nil
}
