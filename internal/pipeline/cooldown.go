package pipeline

import (
	"math"
	"sync"
	"time"

	. "github.com/sautisahihi/sauticore/internal/logging"
	"github.com/sautisahihi/sauticore/internal/provider"
)

// cooldown tracks backoff state for one provider after failures.
type cooldown struct {
	until      time.Time
	errorCount int
	reason     provider.ErrorKind
}

// CooldownStatus reports one provider's cooldown state for the status API.
type CooldownStatus struct {
	Provider   string             `json:"provider"`
	InCooldown bool               `json:"inCooldown"`
	Until      time.Time          `json:"until,omitempty"`
	Reason     provider.ErrorKind `json:"reason,omitempty"`
	ErrorCount int                `json:"errorCount,omitempty"`
}

type cooldownTracker struct {
	mu        sync.RWMutex
	cooldowns map[string]*cooldown
}

func newCooldownTracker() *cooldownTracker {
	return &cooldownTracker{cooldowns: make(map[string]*cooldown)}
}

// cooldownDuration grows 30s → 2.5min → 12.5min, capped at 30min.
// Providers for a phone-class app should not sit out for hours.
func cooldownDuration(errorCount int) time.Duration {
	if errorCount < 1 {
		errorCount = 1
	}
	base := 30 * time.Second
	maxDur := 30 * time.Minute
	exponent := min(errorCount-1, 3)
	dur := time.Duration(float64(base) * math.Pow(5, float64(exponent)))
	if dur > maxDur {
		return maxDur
	}
	return dur
}

func (t *cooldownTracker) inCooldown(name string, now time.Time) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	cd := t.cooldowns[name]
	return cd != nil && now.Before(cd.until)
}

func (t *cooldownTracker) mark(name string, reason provider.ErrorKind, now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	cd := t.cooldowns[name]
	if cd == nil {
		cd = &cooldown{}
		t.cooldowns[name] = cd
	}

	cd.errorCount++
	cd.reason = reason
	cd.until = now.Add(cooldownDuration(cd.errorCount))

	L_warn("pipeline: provider cooldown",
		"provider", name,
		"until", cd.until.Format("15:04:05"),
		"reason", reason,
		"errorCount", cd.errorCount)
}

func (t *cooldownTracker) clear(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.cooldowns[name]; ok {
		delete(t.cooldowns, name)
		L_info("pipeline: provider cooldown cleared", "provider", name)
	}
}

func (t *cooldownTracker) status(names []string, now time.Time) []CooldownStatus {
	t.mu.RLock()
	defer t.mu.RUnlock()

	statuses := make([]CooldownStatus, 0, len(names))
	for _, name := range names {
		s := CooldownStatus{Provider: name}
		if cd := t.cooldowns[name]; cd != nil && now.Before(cd.until) {
			s.InCooldown = true
			s.Until = cd.until
			s.Reason = cd.reason
			s.ErrorCount = cd.errorCount
		}
		statuses = append(statuses, s)
	}
	return statuses
}
