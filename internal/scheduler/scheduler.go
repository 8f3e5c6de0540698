// Package scheduler keeps the offline news cache warm. A cron job refreshes
// the briefing for each configured language while the device is online, so a
// later outage still has something recent to serve.
package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/sautisahihi/sauticore/internal/connectivity"
	. "github.com/sautisahihi/sauticore/internal/logging"
	"github.com/sautisahihi/sauticore/internal/provider"
)

// refreshTimeout bounds one full refresh pass.
const refreshTimeout = 2 * time.Minute

// Refresher runs the periodic news warm-up.
type Refresher struct {
	refresh   func(ctx context.Context, lang provider.Language) bool
	gate      *connectivity.Gate
	languages []provider.Language
	cron      *cron.Cron
}

// NewRefresher creates a refresher. refresh runs one briefing fetch and
// reports whether it produced non-degraded content.
func NewRefresher(refresh func(ctx context.Context, lang provider.Language) bool, gate *connectivity.Gate, languages []provider.Language) *Refresher {
	return &Refresher{
		refresh:   refresh,
		gate:      gate,
		languages: languages,
		cron:      cron.New(),
	}
}

// Start schedules the refresh on spec and runs one pass immediately.
// An empty spec disables scheduling.
func (r *Refresher) Start(spec string) error {
	if spec == "" {
		L_info("scheduler: news refresh disabled")
		return nil
	}

	if _, err := r.cron.AddFunc(spec, r.runOnce); err != nil {
		return err
	}
	r.cron.Start()
	L_info("scheduler: news refresh scheduled", "spec", spec, "languages", len(r.languages))

	go r.runOnce()
	return nil
}

func (r *Refresher) runOnce() {
	if r.gate != nil && !r.gate.IsOnline() {
		L_debug("scheduler: offline, skipping news refresh")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
	defer cancel()

	for _, lang := range r.languages {
		ok := r.refresh(ctx, lang)
		L_debug("scheduler: news refreshed", "language", lang, "fresh", ok)
		if ctx.Err() != nil {
			L_warn("scheduler: refresh pass timed out", "language", lang)
			return
		}
	}
}

// Stop halts scheduling and waits for a running job to finish.
func (r *Refresher) Stop() {
	ctx := r.cron.Stop()
	<-ctx.Done()
	L_info("scheduler: stopped")
}
