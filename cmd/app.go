package cmd

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/signalnine/agentarena/internal/catalog"
	"github.com/signalnine/agentarena/internal/config"
	"github.com/signalnine/agentarena/internal/environment"
	"github.com/signalnine/agentarena/internal/execution"
	"github.com/signalnine/agentarena/internal/leaderboard"
	"github.com/signalnine/agentarena/internal/live"
	"github.com/signalnine/agentarena/internal/llm"
	"github.com/signalnine/agentarena/internal/pricing"
	"github.com/signalnine/agentarena/internal/result"
	"github.com/signalnine/agentarena/internal/simulated"
	"github.com/signalnine/agentarena/internal/submission"
)

// app holds the components shared by every command.
type app struct {
	cfg      *config.Config
	catalog  *catalog.Static
	statuses *execution.StatusTable
	selector *execution.Selector
	store    submission.Store
	manager  *submission.Manager
	board    *leaderboard.Engine

	live        *live.Engine
	generators  *llm.Factory
	provisioner *environment.Provisioner
}

func loadApp() (*app, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	return newApp(cfg)
}

func newApp(cfg *config.Config) (*app, error) {
	secrets, err := config.LoadSecrets(cfg.Secrets)
	if err != nil {
		return nil, err
	}
	prices, err := pricing.LoadOrDefault(cfg.Pricing)
	if err != nil {
		return nil, err
	}

	var store submission.Store = submission.NewMemoryStore()
	if cfg.Store.Dir != "" {
		fs, err := result.OpenFileStore(cfg.Store.Dir)
		if err != nil {
			return nil, err
		}
		store = fs
	}

	statuses := execution.NewStatusTable()
	seed := rand.NewSource(time.Now().UnixNano())
	lo, hi := cfg.Backend.SimulatedDelays()
	sim := simulated.New(simulated.Options{
		Rand:     rand.New(seed),
		Statuses: statuses,
		MinDelay: lo,
		MaxDelay: hi,
	})

	providers := map[string]llm.ProviderConfig{}
	for name, p := range cfg.Providers {
		providers[name] = llm.ProviderConfig{BaseURL: p.BaseURL, APIKeyEnv: p.APIKeyEnv}
	}
	generators := &llm.Factory{
		Providers:           providers,
		Getenv:              secrets.Getenv,
		DisableMockFallback: cfg.Backend.DisableMockFallback,
	}
	provisioner := environment.NewProvisioner(cfg.EnvironmentKinds())
	liveEngine := live.New(live.Options{
		Provisioner: provisioner,
		Generators:  generators,
		Pricing:     prices,
		Statuses:    statuses,
		StepDelay:   cfg.Backend.StepDelay(),
		MaxWait:     time.Duration(cfg.Backend.MaxWaitSeconds) * time.Second,
	})

	selector := execution.NewSelector(cfg.Backend.UseLive,
		func() (execution.Backend, error) { return liveEngine, nil },
		func() execution.Backend { return sim },
	)
	selector.ProbeTimeout = time.Duration(cfg.Backend.ProbeTimeoutSeconds) * time.Second

	cat := catalog.FromConfig(cfg)
	a := &app{
		cfg:      cfg,
		catalog:  cat,
		statuses: statuses,
		selector: selector,
		store:    store,
		board:    leaderboard.New(cat, store, nil),

		live:        liveEngine,
		generators:  generators,
		provisioner: provisioner,
	}
	a.manager = submission.NewManager(submission.Options{
		Catalog:  cat,
		Store:    store,
		Selector: selector,
		Statuses: statuses,
		Defaults: submission.Defaults{
			MaxSteps:       cfg.Backend.DefaultMaxSteps,
			TimeoutSeconds: cfg.Backend.DefaultTimeoutSeconds,
		},
		Getenv: secrets.Getenv,
	})
	return a, nil
}

// reload applies a changed config to a running app. Only the backend flag
// and the catalog are hot; everything else needs a restart.
func (a *app) reload(cfg *config.Config) {
	a.selector.SetUseLive(cfg.Backend.UseLive)
	a.catalog.Replace(catalog.Convert(cfg))
}

func (a *app) close(timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := a.manager.Close(ctx); err != nil {
		return fmt.Errorf("waiting for in-flight submissions: %w", err)
	}
	return nil
}
