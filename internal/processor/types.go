// Package processor dispatches text-processing requests through the
// canonical path: validate, sanitize, cache lookup, resilient model
// call, response validation, typed parsing, cache store.
package processor

// ProcessingRequest is one text-processing request.
type ProcessingRequest struct {
	Text      string         `json:"text"`
	Operation string         `json:"operation"`
	Options   map[string]any `json:"options,omitempty"`
	Question  string         `json:"question,omitempty"`
	TraceID   string         `json:"trace_id,omitempty"`
}

// Sentiment labels for SentimentResult.
const (
	SentimentPositive = "positive"
	SentimentNegative = "negative"
	SentimentNeutral  = "neutral"
)

// SentimentResult is the typed result of the sentiment operation.
type SentimentResult struct {
	Sentiment   string  `json:"sentiment"`
	Confidence  float64 `json:"confidence"`
	Explanation string  `json:"explanation"`
}

// ResultValue is the tagged result variant matching the operation's
// fallback kind. Exactly one of the value fields is populated.
type ResultValue struct {
	Kind      FallbackKind     `json:"kind"`
	Text      string           `json:"text,omitempty"`
	Items     []string         `json:"items,omitempty"`
	Sentiment *SentimentResult `json:"sentiment,omitempty"`
}

// Metadata describes how a response was produced.
type Metadata struct {
	Cached     bool   `json:"cached"`
	Degraded   bool   `json:"degraded,omitempty"`
	DurationMS int64  `json:"duration_ms"`
	Model      string `json:"model"`
	Tokens     int    `json:"tokens,omitempty"`
}

// ProcessingResponse is the envelope returned for one request.
type ProcessingResponse struct {
	Success   bool        `json:"success"`
	Operation string      `json:"operation"`
	Result    ResultValue `json:"result"`
	Metadata  Metadata    `json:"metadata"`
	TraceID   string      `json:"trace_id"`
}

// BatchRequest is a list of requests sharing one batch id.
type BatchRequest struct {
	BatchID string              `json:"batch_id,omitempty"`
	Items   []ProcessingRequest `json:"items"`
}

// BatchItemResult is the per-item outcome, positionally matched to the
// request items.
type BatchItemResult struct {
	Index        int                 `json:"index"`
	Success      bool                `json:"success"`
	Response     *ProcessingResponse `json:"response,omitempty"`
	ErrorCode    string              `json:"error_code,omitempty"`
	ErrorMessage string              `json:"error_message,omitempty"`
}

// BatchResponse aggregates per-item results. Completed+Failed == Total.
type BatchResponse struct {
	BatchID   string            `json:"batch_id"`
	Total     int               `json:"total"`
	Completed int               `json:"completed"`
	Failed    int               `json:"failed"`
	Items     []BatchItemResult `json:"items"`
}

// cachedPayload is the JSON shape stored in the cache for one result.
type cachedPayload struct {
	Result ResultValue `json:"result"`
	Model  string      `json:"model"`
	Tokens int         `json:"tokens,omitempty"`
}
