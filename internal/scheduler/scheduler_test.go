package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/sautisahihi/sauticore/internal/connectivity"
	"github.com/sautisahihi/sauticore/internal/provider"
)

func TestRunOncePerLanguage(t *testing.T) {
	var mu sync.Mutex
	seen := []provider.Language{}
	refresh := func(_ context.Context, lang provider.Language) bool {
		mu.Lock()
		seen = append(seen, lang)
		mu.Unlock()
		return true
	}

	r := NewRefresher(refresh, connectivity.New(), []provider.Language{provider.LangEnglish, provider.LangSwahili})
	r.runOnce()

	if len(seen) != 2 || seen[0] != provider.LangEnglish || seen[1] != provider.LangSwahili {
		t.Errorf("refreshed %v", seen)
	}
}

func TestRunOnceSkipsOffline(t *testing.T) {
	called := false
	refresh := func(context.Context, provider.Language) bool {
		called = true
		return true
	}

	gate := connectivity.New()
	gate.SetOnline(false)
	r := NewRefresher(refresh, gate, []provider.Language{provider.LangEnglish})
	r.runOnce()

	if called {
		t.Error("refresh ran while offline")
	}
}

func TestStartRunsImmediatePass(t *testing.T) {
	done := make(chan struct{}, 1)
	refresh := func(context.Context, provider.Language) bool {
		select {
		case done <- struct{}{}:
		default:
		}
		return true
	}

	r := NewRefresher(refresh, connectivity.New(), []provider.Language{provider.LangEnglish})
	if err := r.Start("*/30 * * * *"); err != nil {
		t.Fatal(err)
	}
	defer r.Stop()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Error("no immediate refresh pass")
	}
}

func TestStartRejectsBadSpec(t *testing.T) {
	r := NewRefresher(func(context.Context, provider.Language) bool { return true },
		connectivity.New(), nil)
	if err := r.Start("not a cron spec"); err == nil {
		t.Error("bad cron spec accepted")
	}
}
