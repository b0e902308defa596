// Package gemini implements the provider client against Google's
// generateContent API.
package gemini

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/oakenlabs/textgate/internal/provider"
	"github.com/oakenlabs/textgate/pkg/errors"
)

const (
	// DefaultBaseURL is the Google AI Studio API endpoint.
	DefaultBaseURL = "https://generativelanguage.googleapis.com"

	apiVersion = "v1beta"
)

// Client calls the Gemini generateContent API.
type Client struct {
	apiKey  string
	baseURL string
	http    *http.Client
}

// Option customizes the client.
type Option func(*Client)

// WithBaseURL overrides the API endpoint, mainly for tests.
func WithBaseURL(url string) Option {
	return func(c *Client) { c.baseURL = strings.TrimSuffix(url, "/") }
}

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// New creates a Gemini client. The API key is required.
func New(apiKey string, opts ...Option) (*Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.NewConfiguration("gemini api key is required; set GEMINI_API_KEY")
	}
	c := &Client{
		apiKey:  apiKey,
		baseURL: DefaultBaseURL,
		http:    &http.Client{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// generateRequest is the generateContent request body.
type generateRequest struct {
	Contents         []content         `json:"contents"`
	GenerationConfig *generationConfig `json:"generationConfig,omitempty"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generationConfig struct {
	Temperature *float64 `json:"temperature,omitempty"`
}

// generateResponse is the generateContent response body.
type generateResponse struct {
	Candidates    []candidate    `json:"candidates"`
	UsageMetadata *usageMetadata `json:"usageMetadata,omitempty"`
}

type candidate struct {
	Content      content `json:"content"`
	FinishReason string  `json:"finishReason"`
}

type usageMetadata struct {
	TotalTokenCount int `json:"totalTokenCount"`
}

// Generate sends one prompt and returns the completion text.
func (c *Client) Generate(ctx context.Context, model string, temperature float64, prompt string) (provider.Generation, error) {
	body, err := json.Marshal(generateRequest{
		Contents: []content{{
			Role:  "user",
			Parts: []part{{Text: prompt}},
		}},
		GenerationConfig: &generationConfig{Temperature: &temperature},
	})
	if err != nil {
		return provider.Generation{}, errors.NewPermanentAI("marshal request").WithCause(err)
	}

	url := fmt.Sprintf("%s/%s/models/%s:generateContent?key=%s", c.baseURL, apiVersion, model, c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return provider.Generation{}, errors.NewPermanentAI("build request").WithCause(err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return provider.Generation{}, ctx.Err()
		}
		return provider.Generation{}, errors.NewTransientAI("provider unreachable").WithCause(err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return provider.Generation{}, errors.NewTransientAI("read response").WithCause(err)
	}

	if resp.StatusCode != http.StatusOK {
		return provider.Generation{}, mapError(resp.StatusCode, resp.Header, respBody)
	}

	var parsed generateResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return provider.Generation{}, errors.NewPermanentAI("malformed provider response").WithCause(err)
	}
	if len(parsed.Candidates) == 0 || len(parsed.Candidates[0].Content.Parts) == 0 {
		return provider.Generation{}, errors.NewPermanentAI("provider returned no candidates")
	}

	var text strings.Builder
	for _, p := range parsed.Candidates[0].Content.Parts {
		text.WriteString(p.Text)
	}

	gen := provider.Generation{Text: text.String()}
	if parsed.UsageMetadata != nil {
		gen.Tokens = parsed.UsageMetadata.TotalTokenCount
	}
	return gen, nil
}

// mapError converts a Gemini error response onto the error taxonomy.
// The provider message is kept; prompts and keys never appear in it.
func mapError(statusCode int, header http.Header, body []byte) error {
	var errResp struct {
		Error struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
			Status  string `json:"status"`
		} `json:"error"`
	}
	message := "provider error"
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error.Message != "" {
		message = errResp.Error.Message
	}

	switch statusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		// Surfaced as a configuration problem: the service's own
		// provider key is bad, not the caller's request.
		return errors.NewConfiguration("provider authentication failed: " + message)
	case http.StatusTooManyRequests:
		return errors.NewRateLimit(message, parseRetryAfter(header))
	case http.StatusBadRequest, http.StatusNotFound:
		return errors.NewPermanentAI(message)
	case http.StatusRequestTimeout, http.StatusGatewayTimeout,
		http.StatusServiceUnavailable, http.StatusBadGateway, http.StatusInternalServerError:
		return errors.NewTransientAI(message)
	default:
		if statusCode >= 500 {
			return errors.NewTransientAI(message)
		}
		return errors.NewPermanentAI(message)
	}
}

func parseRetryAfter(header http.Header) time.Duration {
	raw := header.Get("Retry-After")
	if raw == "" {
		return 0
	}
	if secs, err := strconv.Atoi(raw); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return 0
}
