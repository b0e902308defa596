package processor

import (
	"fmt"
	"sort"
	"time"
)

// FallbackKind selects the typed degraded value for an operation.
type FallbackKind string

const (
	FallbackString    FallbackKind = "string"
	FallbackList      FallbackKind = "list"
	FallbackSentiment FallbackKind = "sentiment"
)

// Operation is one supported text-processing kind with its static
// metadata. The table is a compile-time constant validated at startup.
type Operation struct {
	ID               string        `json:"id"`
	HandlerID        string        `json:"handler_id"`
	Strategy         string        `json:"strategy"`
	CacheTTL         time.Duration `json:"cache_ttl_seconds"`
	FallbackKind     FallbackKind  `json:"fallback_kind"`
	RequiresQuestion bool          `json:"requires_question"`
	ResponseField    string        `json:"response_field"`
}

const (
	OpSummarize = "summarize"
	OpSentiment = "sentiment"
	OpKeyPoints = "key_points"
	OpQuestions = "questions"
	OpQA        = "qa"
)

var operationTable = map[string]Operation{
	OpSummarize: {
		ID:            OpSummarize,
		HandlerID:     "summarize_v1",
		Strategy:      "balanced",
		CacheTTL:      2 * time.Hour,
		FallbackKind:  FallbackString,
		ResponseField: "summary",
	},
	OpSentiment: {
		ID:            OpSentiment,
		HandlerID:     "sentiment_v1",
		Strategy:      "aggressive",
		CacheTTL:      24 * time.Hour,
		FallbackKind:  FallbackSentiment,
		ResponseField: "sentiment",
	},
	OpKeyPoints: {
		ID:            OpKeyPoints,
		HandlerID:     "key_points_v1",
		Strategy:      "balanced",
		CacheTTL:      2 * time.Hour,
		FallbackKind:  FallbackList,
		ResponseField: "key_points",
	},
	OpQuestions: {
		ID:            OpQuestions,
		HandlerID:     "questions_v1",
		Strategy:      "balanced",
		CacheTTL:      time.Hour,
		FallbackKind:  FallbackList,
		ResponseField: "questions",
	},
	OpQA: {
		ID:               OpQA,
		HandlerID:        "qa_v1",
		Strategy:         "conservative",
		CacheTTL:         30 * time.Minute,
		FallbackKind:     FallbackString,
		RequiresQuestion: true,
		ResponseField:    "answer",
	},
}

// LookupOperation returns the metadata for an operation id.
func LookupOperation(id string) (Operation, bool) {
	op, ok := operationTable[id]
	return op, ok
}

// Operations returns the full table sorted by id, for the listing
// endpoint.
func Operations() []Operation {
	ops := make([]Operation, 0, len(operationTable))
	for _, op := range operationTable {
		ops = append(ops, op)
	}
	sort.Slice(ops, func(i, j int) bool { return ops[i].ID < ops[j].ID })
	return ops
}

// ValidateRegistry checks the operation table once at startup: every
// entry fully populated, TTLs within bounds, and the qa invariant.
func ValidateRegistry() error {
	if len(operationTable) == 0 {
		return fmt.Errorf("operation table is empty")
	}
	for id, op := range operationTable {
		if op.ID != id {
			return fmt.Errorf("operation %q: id mismatch %q", id, op.ID)
		}
		if op.HandlerID == "" || op.Strategy == "" || op.ResponseField == "" {
			return fmt.Errorf("operation %q: incomplete metadata", id)
		}
		if op.CacheTTL < time.Minute || op.CacheTTL > 7*24*time.Hour {
			return fmt.Errorf("operation %q: cache ttl %s out of range", id, op.CacheTTL)
		}
		switch op.FallbackKind {
		case FallbackString, FallbackList, FallbackSentiment:
		default:
			return fmt.Errorf("operation %q: unknown fallback kind %q", id, op.FallbackKind)
		}
		if op.RequiresQuestion != (id == OpQA) {
			return fmt.Errorf("operation %q: requires_question must hold exactly for qa", id)
		}
	}
	return nil
}
