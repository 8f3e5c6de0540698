package main

import (
	"context"
	"fmt"
	"time"

	"github.com/sautisahihi/sauticore/internal/cache"
	"github.com/sautisahihi/sauticore/internal/chat"
	"github.com/sautisahihi/sauticore/internal/civic"
	"github.com/sautisahihi/sauticore/internal/config"
	"github.com/sautisahihi/sauticore/internal/connectivity"
	. "github.com/sautisahihi/sauticore/internal/logging"
	"github.com/sautisahihi/sauticore/internal/pipeline"
	"github.com/sautisahihi/sauticore/internal/prefs"
	"github.com/sautisahihi/sauticore/internal/provider"
)

// app holds the wired runtime shared by every subcommand.
type app struct {
	cfg          *config.Config
	store        *cache.SQLiteStore
	gate         *connectivity.Gate
	orchestrator *pipeline.Orchestrator
	svc          *civic.Service
	prefs        *prefs.Store
	chatStore    *chat.SQLiteStore
	chatBackend  provider.Provider
	hf           *provider.HuggingFaceProvider
}

// buildApp loads config, opens the shared database and constructs the
// pipeline. Providers that fail to initialize (usually a missing key) are
// skipped with a warning so the rest of the chain still works.
func buildApp(ctx context.Context, configPath string) (*app, error) {
	var cfg *config.Config
	var err error
	if configPath != "" {
		cfg, err = config.LoadFrom(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}

	Init(&Config{Level: ParseLevel(cfg.Log.Level), TimeFormat: "15:04:05"})

	store, err := cache.NewSQLiteStore(cache.StoreConfig{Path: cfg.DatabasePath()})
	if err != nil {
		return nil, fmt.Errorf("open cache: %w", err)
	}

	chatStore, err := chat.NewSQLiteStoreFromDB(store.DB())
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("open chat store: %w", err)
	}
	prefStore, err := prefs.NewFromDB(store.DB())
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("open prefs: %w", err)
	}

	var providers []provider.Provider
	var hf *provider.HuggingFaceProvider
	for name, pcfg := range cfg.Providers {
		p, err := provider.New(ctx, name, pcfg)
		if err != nil {
			L_warn("provider unavailable", "name", name, "error", err)
			continue
		}
		providers = append(providers, p)
		if h, ok := p.(*provider.HuggingFaceProvider); ok {
			hf = h
		}
	}

	gate := connectivity.New()
	orchestrator := pipeline.New(pipeline.Options{
		Chains: cfg.Chains,
		Retry: pipeline.RetryPolicy{
			MaxAttempts: cfg.Retry.MaxAttempts,
			Backoff:     time.Duration(cfg.Retry.BackoffMS) * time.Millisecond,
		},
		Policy: cache.DefaultPolicy(),
	}, providers, store, gate)

	var translator civic.Translator
	var tone civic.ToneAnalyzer
	if hf != nil {
		translator, tone = hf, hf
	}
	svc := civic.New(orchestrator, translator, tone)

	backend := chatBackend(cfg, providers)
	if backend != nil {
		orchestrator.SetRefiner(civic.NewImagePromptRefiner(backend))
	}

	return &app{
		cfg:          cfg,
		store:        store,
		gate:         gate,
		orchestrator: orchestrator,
		svc:          svc,
		prefs:        prefStore,
		chatStore:    chatStore,
		chatBackend:  backend,
		hf:           hf,
	}, nil
}

// chatBackend picks the assistant's text driver: the first provider in the
// news chain that does text, else any text-capable provider.
func chatBackend(cfg *config.Config, providers []provider.Provider) provider.Provider {
	byName := make(map[string]provider.Provider, len(providers))
	for _, p := range providers {
		byName[p.Name()] = p
	}
	for _, name := range cfg.Chains[pipeline.CapNews] {
		if p, ok := byName[name]; ok && p.Supports(provider.KindText) {
			return p
		}
	}
	for _, p := range providers {
		if p.Supports(provider.KindText) {
			return p
		}
	}
	return nil
}

func (a *app) close() {
	a.store.Close()
}

// language resolves the effective language: explicit flag first, then the
// stored preference.
func (a *app) language(ctx context.Context, flag string) provider.Language {
	if flag != "" {
		lang := provider.Language(flag)
		if lang.Valid() {
			return lang
		}
		L_warn("unknown language code, using preference", "code", flag)
	}
	return a.prefs.Language(ctx)
}
