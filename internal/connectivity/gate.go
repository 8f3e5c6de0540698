// Package connectivity tracks whether the device currently believes it has
// network access. The flag is a heuristic fed by platform online/offline
// events; provider failures, not this flag, are the authoritative signal
// that content is degraded.
package connectivity

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	. "github.com/sautisahihi/sauticore/internal/logging"
)

// probeURL must answer HEAD cheaply; generate_204 never carries a body.
const probeURL = "http://connectivitycheck.gstatic.com/generate_204"

// Gate holds the process-wide online flag. Construct one and inject it;
// there is deliberately no package-level singleton.
type Gate struct {
	online atomic.Bool

	mu          sync.Mutex
	subscribers []chan bool

	probeClient *http.Client
}

// New creates a Gate that starts out online.
func New() *Gate {
	g := &Gate{
		probeClient: &http.Client{Timeout: 5 * time.Second},
	}
	g.online.Store(true)
	return g
}

// IsOnline reports the current connectivity belief.
func (g *Gate) IsOnline() bool {
	return g.online.Load()
}

// SetOnline records a connectivity change from the platform event source and
// notifies subscribers when the state actually flips.
func (g *Gate) SetOnline(online bool) {
	if g.online.Swap(online) == online {
		return
	}

	L_info("connectivity: state changed", "online", online)

	g.mu.Lock()
	defer g.mu.Unlock()
	for _, ch := range g.subscribers {
		select {
		case ch <- online:
		default: // slow subscriber, drop rather than block
		}
	}
}

// Subscribe returns a channel receiving each state flip. The channel is
// buffered; slow consumers miss intermediate flips, never block the gate.
func (g *Gate) Subscribe() <-chan bool {
	ch := make(chan bool, 4)
	g.mu.Lock()
	g.subscribers = append(g.subscribers, ch)
	g.mu.Unlock()
	return ch
}

// Probe actively checks reachability and updates the flag with the outcome.
// Used by the gateway when the platform signal is unavailable or suspect.
func (g *Gate) Probe(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, probeURL, nil)
	if err != nil {
		return g.IsOnline()
	}

	resp, err := g.probeClient.Do(req)
	online := err == nil
	if resp != nil {
		resp.Body.Close()
	}

	g.SetOnline(online)
	return online
}
