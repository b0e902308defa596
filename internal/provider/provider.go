// Package provider defines the outbound model-call contract.
package provider

import "context"

// Generation is one model completion.
type Generation struct {
	Text   string
	Tokens int
}

// Client is the single call the core makes against a model provider.
// Implementations map provider failures onto the pkg/errors taxonomy so
// the resilience layer can classify them.
type Client interface {
	Generate(ctx context.Context, model string, temperature float64, prompt string) (Generation, error)
}
