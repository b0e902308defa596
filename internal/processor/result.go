package processor

import (
	"strings"

	"github.com/goccy/go-json"

	"github.com/oakenlabs/textgate/pkg/errors"
)

// parseResult coerces validated model output into the typed variant
// for the operation's fallback kind.
func parseResult(kind FallbackKind, raw string) (ResultValue, error) {
	raw = strings.TrimSpace(raw)

	switch kind {
	case FallbackString:
		return ResultValue{Kind: FallbackString, Text: raw}, nil

	case FallbackList:
		items := splitLines(raw)
		if len(items) == 0 {
			return ResultValue{}, errors.NewValidation("provider output contained no list items")
		}
		return ResultValue{Kind: FallbackList, Items: items}, nil

	case FallbackSentiment:
		sr, err := parseSentiment(raw)
		if err != nil {
			return ResultValue{}, err
		}
		return ResultValue{Kind: FallbackSentiment, Sentiment: sr}, nil

	default:
		return ResultValue{}, errors.NewValidation("unknown result kind")
	}
}

// splitLines turns line-oriented output into clean items, stripping
// bullets and numbering.
func splitLines(raw string) []string {
	var items []string
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		line = strings.TrimLeft(line, "-*• \t")
		line = trimNumbering(line)
		if line != "" {
			items = append(items, line)
		}
	}
	return items
}

// trimNumbering removes a leading "1." / "2)" style prefix.
func trimNumbering(line string) string {
	i := 0
	for i < len(line) && line[i] >= '0' && line[i] <= '9' {
		i++
	}
	if i > 0 && i < len(line) && (line[i] == '.' || line[i] == ')') {
		return strings.TrimSpace(line[i+1:])
	}
	return line
}

// parseSentiment decodes the JSON sentiment shape, tolerating markdown
// code fences around the object.
func parseSentiment(raw string) (*SentimentResult, error) {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")
	raw = strings.TrimSpace(raw)

	var sr SentimentResult
	if err := json.Unmarshal([]byte(raw), &sr); err != nil {
		return nil, errors.NewValidation("sentiment output is not valid JSON").WithCause(err)
	}

	sr.Sentiment = strings.ToLower(strings.TrimSpace(sr.Sentiment))
	switch sr.Sentiment {
	case SentimentPositive, SentimentNegative, SentimentNeutral:
	default:
		return nil, errors.NewValidation("sentiment label must be positive, negative, or neutral")
	}
	if sr.Confidence < 0 || sr.Confidence > 1 {
		return nil, errors.NewValidation("sentiment confidence out of range [0, 1]")
	}
	return &sr, nil
}

// fallbackFor returns the typed degraded value for a kind. Fallbacks
// are served with success=true, degraded=true and are never cached.
func fallbackFor(kind FallbackKind) ResultValue {
	switch kind {
	case FallbackList:
		return ResultValue{Kind: FallbackList, Items: []string{}}
	case FallbackSentiment:
		return ResultValue{Kind: FallbackSentiment, Sentiment: &SentimentResult{
			Sentiment:   SentimentNeutral,
			Confidence:  0.0,
			Explanation: "degraded",
		}}
	default:
		return ResultValue{Kind: FallbackString, Text: "Service temporarily unavailable; please retry shortly."}
	}
}
