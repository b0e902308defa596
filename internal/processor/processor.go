package processor

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/oakenlabs/textgate/internal/cache"
	"github.com/oakenlabs/textgate/internal/config"
	"github.com/oakenlabs/textgate/internal/observability"
	"github.com/oakenlabs/textgate/internal/provider"
	"github.com/oakenlabs/textgate/internal/resilience"
	"github.com/oakenlabs/textgate/pkg/errors"
)

// TextProcessor executes the canonical request path for a single
// ProcessingRequest.
type TextProcessor struct {
	ai     config.AIConfig
	cache  *cache.Facade
	orch   *resilience.Orchestrator
	client provider.Client
	log    *observability.Logger
}

// NewTextProcessor validates the operation registry and registers
// every operation with the orchestrator under its configured strategy.
func NewTextProcessor(cfg *config.CoreConfig, cacheFacade *cache.Facade, orch *resilience.Orchestrator, client provider.Client, log *observability.Logger) (*TextProcessor, error) {
	if err := ValidateRegistry(); err != nil {
		return nil, errors.NewConfiguration("operation registry invalid: " + err.Error())
	}

	for _, op := range Operations() {
		name := cfg.Resilience.StrategyFor(op.ID)
		strategy, err := resilience.StrategyByName(name)
		if err != nil {
			return nil, errors.NewConfiguration(err.Error()).WithOperation(op.ID)
		}
		if cfg.Resilience.MaxAttemptsOverride > 0 {
			strategy.MaxAttempts = cfg.Resilience.MaxAttemptsOverride
		}
		orch.Register(op.ID, strategy)
	}

	return &TextProcessor{
		ai:     cfg.AI,
		cache:  cacheFacade,
		orch:   orch,
		client: client,
		log:    log,
	}, nil
}

// degradedError carries a typed-fallback outcome through the cache's
// single-flight layer so degraded results are shared between waiters
// but never cached.
type degradedError struct {
	attempts int
}

func (e *degradedError) Error() string { return "degraded result" }

// Process runs one request end to end.
func (p *TextProcessor) Process(ctx context.Context, req *ProcessingRequest) (*ProcessingResponse, error) {
	start := time.Now()

	op, err := p.validate(req)
	if err != nil {
		return nil, err
	}
	if err := p.sanitizeRequest(req); err != nil {
		return nil, err
	}

	traceID := req.TraceID
	if traceID == "" {
		traceID = observability.TraceIDFromContext(ctx)
	}

	key := p.cache.BuildKey(op.ID, req.Text, req.Options, req.Question)

	var computed bool
	payload, err := p.cache.GetOrCompute(ctx, key, op.CacheTTL, func(c context.Context) ([]byte, error) {
		computed = true
		return p.compute(c, op, req)
	})

	var degraded *degradedError
	if stderrors.As(err, &degraded) {
		resp := &ProcessingResponse{
			Success:   true,
			Operation: op.ID,
			Result:    fallbackFor(op.FallbackKind),
			Metadata: Metadata{
				Degraded:   true,
				DurationMS: time.Since(start).Milliseconds(),
				Model:      p.ai.Model,
			},
			TraceID: traceID,
		}
		return resp, nil
	}
	if err != nil {
		if e, ok := errors.As(err); ok {
			return nil, e.WithOperation(op.ID)
		}
		return nil, err
	}

	var stored cachedPayload
	if err := json.Unmarshal(payload, &stored); err != nil {
		// A corrupt entry is dropped and recomputed on the next call.
		p.cache.Invalidate(ctx, key)
		return nil, errors.NewInfrastructure("cached entry was unreadable").WithOperation(op.ID)
	}

	return &ProcessingResponse{
		Success:   true,
		Operation: op.ID,
		Result:    stored.Result,
		Metadata: Metadata{
			Cached:     !computed,
			DurationMS: time.Since(start).Milliseconds(),
			Model:      stored.Model,
			Tokens:     stored.Tokens,
		},
		TraceID: traceID,
	}, nil
}

// compute is the single-flight producer: resilient model call,
// response validation, typed parsing, and payload encoding.
func (p *TextProcessor) compute(ctx context.Context, op Operation, req *ProcessingRequest) ([]byte, error) {
	prompt := buildPrompt(op, req.Text, req.Question, req.Options)

	var tokens int
	work := func(c context.Context) (string, error) {
		gen, err := p.client.Generate(c, p.ai.Model, p.ai.Temperature, prompt)
		if err != nil {
			return "", err
		}
		if err := validateResponse(gen.Text); err != nil {
			return "", err
		}
		tokens = gen.Tokens
		return gen.Text, nil
	}

	raw, outcome, err := p.orch.Execute(ctx, op.ID, work, func() (string, error) { return "", nil })
	if err != nil {
		return nil, err
	}
	if outcome.Degraded {
		return nil, &degradedError{attempts: outcome.Attempts}
	}

	result, err := parseResult(op.FallbackKind, raw)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(cachedPayload{
		Result: result,
		Model:  p.ai.Model,
		Tokens: tokens,
	})
	if err != nil {
		return nil, errors.NewInfrastructure("encode result").WithCause(err)
	}
	return payload, nil
}

// validate enforces the request schema before any other work.
func (p *TextProcessor) validate(req *ProcessingRequest) (Operation, error) {
	op, ok := LookupOperation(req.Operation)
	if !ok {
		return Operation{}, errors.NewValidation(fmt.Sprintf("unknown operation %q", req.Operation))
	}

	if len(req.Text) > p.ai.MaxInputChars {
		return Operation{}, errors.NewValidation(
			fmt.Sprintf("text exceeds %d characters", p.ai.MaxInputChars)).WithOperation(op.ID)
	}

	hasQuestion := req.Question != ""
	if op.RequiresQuestion && !hasQuestion {
		return Operation{}, errors.NewValidation("question is required for the qa operation").WithOperation(op.ID)
	}
	if !op.RequiresQuestion && hasQuestion {
		return Operation{}, errors.NewValidation("question is only valid for the qa operation").WithOperation(op.ID)
	}
	if len(req.Question) > p.ai.MaxQuestionChars {
		return Operation{}, errors.NewValidation(
			fmt.Sprintf("question exceeds %d characters", p.ai.MaxQuestionChars)).WithOperation(op.ID)
	}

	for k, v := range req.Options {
		switch v.(type) {
		case string, bool, int, int64, float64, nil:
		default:
			return Operation{}, errors.NewValidation(fmt.Sprintf("option %q must be a scalar", k)).WithOperation(op.ID)
		}
	}
	return op, nil
}

// sanitizeRequest cleans text, question, and string option values in
// place. Sanitized strings feed every subsequent step, the cache key
// included.
func (p *TextProcessor) sanitizeRequest(req *ProcessingRequest) error {
	text, err := sanitize("text", req.Text)
	if err != nil {
		return err
	}
	if text == "" {
		return errors.NewValidation("text must not be empty")
	}
	req.Text = text

	if req.Question != "" {
		question, err := sanitize("question", req.Question)
		if err != nil {
			return err
		}
		if question == "" {
			return errors.NewValidation("question must not be empty")
		}
		req.Question = question
	}

	for k, v := range req.Options {
		if s, ok := v.(string); ok {
			clean, err := sanitize("option "+k, s)
			if err != nil {
				return err
			}
			req.Options[k] = clean
		}
	}
	return nil
}
