package connectivity

import (
	"testing"
	"time"
)

func TestGateStartsOnline(t *testing.T) {
	g := New()
	if !g.IsOnline() {
		t.Error("new gate should start online")
	}
}

func TestSetOnlineFlips(t *testing.T) {
	g := New()

	g.SetOnline(false)
	if g.IsOnline() {
		t.Error("expected offline after SetOnline(false)")
	}

	g.SetOnline(true)
	if !g.IsOnline() {
		t.Error("expected online after SetOnline(true)")
	}
}

func TestSubscribeReceivesFlips(t *testing.T) {
	g := New()
	ch := g.Subscribe()

	g.SetOnline(false)

	select {
	case v := <-ch:
		if v {
			t.Error("expected false notification")
		}
	case <-time.After(time.Second):
		t.Fatal("no notification received")
	}
}

func TestSetOnlineSameStateNoNotify(t *testing.T) {
	g := New()
	ch := g.Subscribe()

	// Already online, setting online again should not notify.
	g.SetOnline(true)

	select {
	case <-ch:
		t.Error("unexpected notification for unchanged state")
	case <-time.After(50 * time.Millisecond):
	}
}
