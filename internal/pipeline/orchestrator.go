// Package pipeline resolves content requests through the cache, the
// connectivity gate, and a prioritized provider chain. Resolve never fails:
// every path ends in cached content, provider content, or a deterministic
// placeholder.
package pipeline

import (
	"context"
	"time"

	"github.com/sautisahihi/sauticore/internal/cache"
	"github.com/sautisahihi/sauticore/internal/connectivity"
	. "github.com/sautisahihi/sauticore/internal/logging"
	"github.com/sautisahihi/sauticore/internal/provider"
)

// Capability names content classes. Each capability has its own provider
// chain and cache TTL.
const (
	CapFactCheck = "factcheck"
	CapNews      = "news"
	CapImage     = "image"
	CapAudio     = "audio"
	CapTranslate = "translate"
	CapTone      = "tone"
)

// Source records where a resolution's payload came from.
type Source string

const (
	SourceCache       Source = "cache"
	SourceProvider    Source = "provider"
	SourcePlaceholder Source = "placeholder"
)

// Resolution is the single result type of Resolve. Degraded resolutions
// carry a placeholder payload and a reason; successful ones carry the
// provider name. It is never partially populated.
type Resolution struct {
	Payload    string              `json:"payload"`
	Samples    []float32           `json:"-"`
	SampleRate int                 `json:"sampleRate,omitempty"`
	Citations  []provider.Citation `json:"citations,omitempty"`
	Provider   string              `json:"provider,omitempty"`
	Source     Source              `json:"source"`
	Degraded   bool                `json:"degraded"`
	Reason     string              `json:"reason,omitempty"`
}

// RetryPolicy governs repeat attempts against the same provider for
// transient errors, before the chain moves on. One policy for every
// capability; the backoff applies between attempts only.
type RetryPolicy struct {
	MaxAttempts int
	Backoff     time.Duration
}

// DefaultRetryPolicy retries once after a short pause.
var DefaultRetryPolicy = RetryPolicy{MaxAttempts: 2, Backoff: 500 * time.Millisecond}

// Refiner optionally rewrites an image subject into a better generation
// prompt. Failures are ignored; the request's own prompt is used.
type Refiner interface {
	Refine(ctx context.Context, subject string) (string, error)
}

// Options wires an Orchestrator.
type Options struct {
	// Chains maps capability to provider names in priority order.
	Chains map[string][]string
	Retry  RetryPolicy
	// Policy decides cache freshness per capability.
	Policy cache.Policy
}

// Orchestrator runs the resolve pipeline.
type Orchestrator struct {
	providers map[string]provider.Provider
	chains    map[string][]string
	retry     RetryPolicy
	store     cache.Store
	policy    cache.Policy
	gate      *connectivity.Gate
	cooldowns *cooldownTracker
	refiner   Refiner

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates an orchestrator over the given providers. The chain entries
// must name registered providers; unknown names are skipped at resolve time
// with a log line rather than rejected up front, so a partially configured
// install still serves what it can.
func New(cfg Options, providers []provider.Provider, store cache.Store, gate *connectivity.Gate) *Orchestrator {
	byName := make(map[string]provider.Provider, len(providers))
	for _, p := range providers {
		byName[p.Name()] = p
	}

	retry := cfg.Retry
	if retry.MaxAttempts < 1 {
		retry = DefaultRetryPolicy
	}

	policy := cfg.Policy
	if policy == nil {
		policy = cache.DefaultPolicy()
	}

	o := &Orchestrator{
		providers: byName,
		chains:    cfg.Chains,
		retry:     retry,
		store:     store,
		policy:    policy,
		gate:      gate,
		cooldowns: newCooldownTracker(),
		now:       time.Now,
		sleep:     sleepCtx,
	}

	L_info("pipeline: orchestrator created",
		"providers", len(byName),
		"chains", len(cfg.Chains),
		"maxAttempts", retry.MaxAttempts)
	return o
}

// SetRefiner installs a best-effort subject refiner for image requests.
func (o *Orchestrator) SetRefiner(r Refiner) {
	o.refiner = r
}

// ProviderStatus reports cooldown state for the status endpoint.
func (o *Orchestrator) ProviderStatus() []CooldownStatus {
	names := make([]string, 0, len(o.providers))
	for name := range o.providers {
		names = append(names, name)
	}
	return o.cooldowns.status(names, o.now())
}

// Resolve runs the pipeline for one request. It never returns an error and
// never returns an empty payload: worst case is a deterministic placeholder.
//
// Concurrent calls for the same key are not de-duplicated; the cache's
// last-write-wins semantics make the race harmless.
func (o *Orchestrator) Resolve(ctx context.Context, capability string, req provider.Request) Resolution {
	key := cache.Key(capability, req.Subject, string(req.Language), req.ImagePayload)
	now := o.now()

	entry := o.lookup(ctx, key)

	// Step 1: a fresh hit never touches the network, online or not.
	if o.policy.Fresh(capability, entry, now) {
		L_debug("pipeline: cache hit", "capability", capability, "key", key[:12])
		return Resolution{Payload: entry.Value, Source: SourceCache}
	}

	// Step 2: offline devices prefer stale content over placeholders.
	if o.gate != nil && !o.gate.IsOnline() {
		if entry != nil {
			L_info("pipeline: offline, serving stale cache",
				"capability", capability, "age", now.Sub(entry.CreatedAt).Round(time.Second))
			return Resolution{Payload: entry.Value, Source: SourceCache, Degraded: true, Reason: "offline_stale"}
		}
		L_info("pipeline: offline, no cache, placeholder", "capability", capability)
		return placeholderResolution(capability, req, "offline")
	}

	// Step 3: walk the provider chain.
	if res, ok := o.tryChain(ctx, capability, req); ok {
		if !res.Degraded {
			o.storeResult(ctx, key, res.Payload, capability)
		}
		return res
	}

	// Step 4: exhausted. Stale cache still beats a placeholder; the
	// placeholder itself is never cached.
	if entry != nil {
		L_warn("pipeline: chain exhausted, serving stale cache", "capability", capability)
		return Resolution{Payload: entry.Value, Source: SourceCache, Degraded: true, Reason: "providers_exhausted"}
	}
	L_warn("pipeline: chain exhausted, placeholder", "capability", capability)
	return placeholderResolution(capability, req, "providers_exhausted")
}

// tryChain attempts each provider in priority order. The bool reports
// whether any provider produced a terminal outcome (success or credential
// short-circuit); false means the chain is exhausted.
func (o *Orchestrator) tryChain(ctx context.Context, capability string, req provider.Request) (Resolution, bool) {
	chain := o.chains[capability]
	if len(chain) == 0 {
		L_warn("pipeline: no chain configured", "capability", capability)
		return Resolution{}, false
	}

	if refined := o.refinePrompt(ctx, capability, req.Subject); refined != "" {
		req.Prompt = refined
	}

	now := o.now()
	for i, name := range chain {
		p, ok := o.providers[name]
		if !ok {
			L_warn("pipeline: unknown provider in chain", "capability", capability, "provider", name)
			continue
		}
		if !p.Supports(req.Kind) {
			continue
		}
		if o.cooldowns.inCooldown(name, now) {
			L_debug("pipeline: provider in cooldown, skipping", "provider", name)
			continue
		}

		result, err := o.invokeWithRetry(ctx, p, req)
		if err == nil {
			o.cooldowns.clear(name)
			if i > 0 {
				L_info("pipeline: using fallback provider", "capability", capability, "provider", name, "position", i+1)
			}
			return Resolution{
				Payload:    result.Payload,
				Samples:    result.Samples,
				SampleRate: result.SampleRate,
				Citations:  result.Citations,
				Provider:   name,
				Source:     SourceProvider,
			}, true
		}

		kind := provider.KindOf(err)
		L_warn("pipeline: provider failed",
			"capability", capability, "provider", name, "kind", kind, "error", err)

		if kind == provider.KindCredential {
			// A key problem will not be fixed by a different provider's
			// key; surface it to the user instead of burning the chain.
			return Resolution{
				Payload:  PermissionPayload(req.Language),
				Source:   SourcePlaceholder,
				Degraded: true,
				Reason:   "credential",
			}, true
		}

		o.cooldowns.mark(name, kind, o.now())
	}

	return Resolution{}, false
}

// invokeWithRetry calls one provider up to retry.MaxAttempts times,
// retrying only transient errors.
func (o *Orchestrator) invokeWithRetry(ctx context.Context, p provider.Provider, req provider.Request) (*provider.Result, error) {
	var lastErr error
	for attempt := 1; attempt <= o.retry.MaxAttempts; attempt++ {
		result, err := p.Invoke(ctx, req)
		if err == nil {
			return result, nil
		}

		classified := provider.Classify(p.Name(), err)
		lastErr = classified
		if !provider.Retryable(classified) || attempt == o.retry.MaxAttempts {
			return nil, classified
		}

		L_debug("pipeline: transient error, retrying",
			"provider", p.Name(), "attempt", attempt, "error", err)
		if err := o.sleep(ctx, o.retry.Backoff); err != nil {
			return nil, classified
		}
	}
	return nil, lastErr
}

// refinePrompt attempts a best-effort rewrite of an image subject into a
// richer generation prompt. An empty return means the request's own prompt
// stands; the cache key is unaffected either way.
func (o *Orchestrator) refinePrompt(ctx context.Context, capability, subject string) string {
	if o.refiner == nil || capability != CapImage {
		return ""
	}
	refined, err := o.refiner.Refine(ctx, subject)
	if err != nil || refined == "" {
		L_debug("pipeline: prompt refinement failed, using original", "error", err)
		return ""
	}
	return refined
}

func (o *Orchestrator) lookup(ctx context.Context, key string) *cache.Entry {
	if o.store == nil {
		return nil
	}
	entry, err := o.store.Get(ctx, key)
	if err != nil {
		L_warn("pipeline: cache read failed", "error", err)
		return nil
	}
	return entry
}

func (o *Orchestrator) storeResult(ctx context.Context, key, value, capability string) {
	if o.store == nil || value == "" {
		return
	}
	if err := o.store.Put(ctx, key, value); err != nil {
		// A failed write degrades future requests, not this one.
		L_warn("pipeline: cache write failed", "capability", capability, "error", err)
	}
}

func placeholderResolution(capability string, req provider.Request, reason string) Resolution {
	return Resolution{
		Payload:  Placeholder(capability, req.Subject, req.Language),
		Source:   SourcePlaceholder,
		Degraded: true,
		Reason:   reason,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
