package main

import (
	"context"
	"time"

	"github.com/oakenlabs/textgate/internal/auth"
	"github.com/oakenlabs/textgate/internal/cache"
	"github.com/oakenlabs/textgate/internal/config"
	"github.com/oakenlabs/textgate/internal/observability"
	"github.com/oakenlabs/textgate/internal/processor"
	"github.com/oakenlabs/textgate/internal/provider"
	"github.com/oakenlabs/textgate/internal/resilience"
)

// application bundles the wired components behind the HTTP surface.
type application struct {
	cfg       *config.CoreConfig
	log       *observability.Logger
	cache     *cache.Facade
	orch      *resilience.Orchestrator
	processor *processor.TextProcessor
	batch     *processor.BatchExecutor
	auth      *auth.Store
	tenants   *auth.TenantLimiter
	validator *config.Validator
	adminKey  string
}

// newApplication wires every component from the resolved configuration.
// The provider client is injected so tests can substitute a stub.
func newApplication(cfg *config.CoreConfig, client provider.Client, log *observability.Logger) (*application, error) {
	facade, err := cache.NewFacade(cfg.Cache, log)
	if err != nil {
		return nil, err
	}

	orch := resilience.NewOrchestrator(log)
	proc, err := processor.NewTextProcessor(cfg, facade, orch, client, log)
	if err != nil {
		_ = facade.Close()
		return nil, err
	}

	store, err := auth.NewStore(cfg.Auth, cfg.Environment, log)
	if err != nil {
		_ = facade.Close()
		return nil, err
	}

	var adminKey string
	if keys := cfg.Auth.Keys(); len(keys) > 0 {
		adminKey = keys[0]
	}

	return &application{
		cfg:       cfg,
		log:       log,
		cache:     facade,
		orch:      orch,
		processor: proc,
		batch:     processor.NewBatchExecutor(proc, cfg.AI.BatchConcurrencyLimit, cfg.AI.BatchMaxItems, log),
		auth:      store,
		tenants:   auth.NewTenantLimiter(cfg.Auth.TenantRPMLimit),
		validator: config.NewValidator(config.NewSlidingWindowLimiter(0, 0, 0)),
		adminKey:  adminKey,
	}, nil
}

// checkRemote verifies the remote cache tier when one is configured.
// In production an unreachable tier is fatal; elsewhere the service
// degrades to L1 only.
func (app *application) checkRemote(ctx context.Context) error {
	if !app.cache.RemoteConfigured() {
		return nil
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if app.cache.RemoteOK(pingCtx) {
		return nil
	}
	if app.cfg.Environment == config.EnvProduction {
		return errRemoteUnavailable
	}
	app.log.RedactedWarn("remote cache unreachable, continuing with memory tier only")
	return nil
}

func (app *application) close() {
	app.tenants.Close()
	_ = app.cache.Close()
}
