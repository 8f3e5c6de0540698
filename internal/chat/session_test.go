package chat

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sautisahihi/sauticore/internal/connectivity"
	"github.com/sautisahihi/sauticore/internal/provider"
)

type scriptedBackend struct {
	mu      sync.Mutex
	calls   int
	delay   time.Duration
	fn      func(req provider.Request) (*provider.Result, error)
	lastReq provider.Request
}

func (b *scriptedBackend) Name() string { return "fake" }

func (b *scriptedBackend) Supports(k provider.Kind) bool { return k == provider.KindText }

func (b *scriptedBackend) Invoke(_ context.Context, req provider.Request) (*provider.Result, error) {
	b.mu.Lock()
	b.calls++
	b.lastReq = req
	b.mu.Unlock()
	if b.delay > 0 {
		time.Sleep(b.delay)
	}
	return b.fn(req)
}

func answering(prefix string) func(provider.Request) (*provider.Result, error) {
	return func(req provider.Request) (*provider.Result, error) {
		return &provider.Result{Payload: prefix + req.Subject, Citations: []provider.Citation{}}, nil
	}
}

func setupSession(t *testing.T, backend *scriptedBackend) (*Session, *connectivity.Gate) {
	t.Helper()
	gate := connectivity.New()
	s, err := NewSession(context.Background(), "test", provider.LangEnglish, backend, gate, Options{})
	if err != nil {
		t.Fatal(err)
	}
	return s, gate
}

func TestTurnsAlternate(t *testing.T) {
	backend := &scriptedBackend{fn: answering("re: ")}
	s, _ := setupSession(t, backend)

	for i := 0; i < 3; i++ {
		if _, err := s.Send(context.Background(), fmt.Sprintf("question %d", i)); err != nil {
			t.Fatal(err)
		}
	}

	turns := s.Turns()
	if len(turns) != 6 {
		t.Fatalf("got %d turns, want 6", len(turns))
	}
	for i, turn := range turns {
		want := RoleUser
		if i%2 == 1 {
			want = RoleAssistant
		}
		if turn.Role != want {
			t.Errorf("turn %d role = %s, want %s", i, turn.Role, want)
		}
		if turn.Citations == nil {
			t.Errorf("turn %d has nil citations", i)
		}
	}
}

func TestCitationsCarried(t *testing.T) {
	backend := &scriptedBackend{fn: func(provider.Request) (*provider.Result, error) {
		return &provider.Result{
			Payload:   "answer",
			Citations: []provider.Citation{{URI: "https://iebc.or.ke", Title: "IEBC"}},
		}, nil
	}}
	s, _ := setupSession(t, backend)

	turn, err := s.Send(context.Background(), "how do I register?")
	if err != nil {
		t.Fatal(err)
	}
	if len(turn.Citations) != 1 || turn.Citations[0].URI != "https://iebc.or.ke" {
		t.Errorf("citations = %+v", turn.Citations)
	}
}

func TestBusyRejectsConcurrentSend(t *testing.T) {
	backend := &scriptedBackend{delay: 100 * time.Millisecond, fn: answering("re: ")}
	s, _ := setupSession(t, backend)

	done := make(chan error, 1)
	go func() {
		_, err := s.Send(context.Background(), "slow question")
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	_, err := s.Send(context.Background(), "impatient question")
	if !errors.Is(err, ErrBusy) {
		t.Errorf("second send err = %v, want ErrBusy", err)
	}
	if err := <-done; err != nil {
		t.Fatal(err)
	}
}

func TestProviderFailureApologyTurn(t *testing.T) {
	backend := &scriptedBackend{fn: func(provider.Request) (*provider.Result, error) {
		return nil, errors.New("503 service unavailable")
	}}
	s, _ := setupSession(t, backend)

	turn, err := s.Send(context.Background(), "will it work?")
	if !errors.Is(err, ErrConnection) {
		t.Errorf("err = %v, want ErrConnection", err)
	}
	if turn == nil || turn.Role != RoleAssistant {
		t.Fatal("no assistant turn for failed send")
	}
	if !strings.Contains(turn.Text, "Pole") {
		t.Errorf("apology text = %q", turn.Text)
	}

	// Transcript still pairs every user turn with an assistant turn.
	if turns := s.Turns(); len(turns) != 2 {
		t.Errorf("got %d turns, want 2", len(turns))
	}
}

func TestOfflineShortCircuit(t *testing.T) {
	backend := &scriptedBackend{fn: answering("re: ")}
	s, gate := setupSession(t, backend)
	gate.SetOnline(false)

	turn, err := s.Send(context.Background(), "anyone there?")
	if !errors.Is(err, ErrConnection) {
		t.Errorf("err = %v, want ErrConnection", err)
	}
	if backend.calls != 0 {
		t.Errorf("backend invoked %d times while offline, want 0", backend.calls)
	}
	if turn == nil || !strings.Contains(turn.Text, "offline") {
		t.Errorf("offline turn = %+v", turn)
	}
}

func TestHistoryWindowDropsOldest(t *testing.T) {
	backend := &scriptedBackend{fn: answering("re: ")}
	gate := connectivity.New()
	s, err := NewSession(context.Background(), "test", provider.LangEnglish, backend, gate, Options{
		TokenBudget: 40,
	})
	if err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 10; i++ {
		if _, err := s.Send(context.Background(), fmt.Sprintf("question number %d about county governance", i)); err != nil {
			t.Fatal(err)
		}
	}

	history := backend.lastReq.History
	if len(history) == 0 {
		t.Fatal("history empty, window dropped everything")
	}
	if len(history) >= 18 {
		t.Errorf("history has %d messages, budget not applied", len(history))
	}
	// Newest prior turn survives trimming.
	last := history[len(history)-1].Text
	if !strings.Contains(last, "8") && !strings.Contains(last, "9") {
		t.Errorf("newest history entry = %q, oldest should drop first", last)
	}
}

func TestSystemPromptNamesLanguage(t *testing.T) {
	backend := &scriptedBackend{fn: answering("re: ")}
	gate := connectivity.New()
	s, err := NewSession(context.Background(), "test", provider.LangSwahili, backend, gate, Options{})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := s.Send(context.Background(), "habari"); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(backend.lastReq.System, "Kiswahili") {
		t.Errorf("system prompt = %q", backend.lastReq.System)
	}
	if !backend.lastReq.Grounded {
		t.Error("chat requests should ask for grounding")
	}
}

func TestPersistenceRoundTrip(t *testing.T) {
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "chat.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	backend := &scriptedBackend{fn: answering("re: ")}
	gate := connectivity.New()
	s, err := NewSession(context.Background(), "voter-1", provider.LangEnglish, backend, gate, Options{Store: store})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.Send(context.Background(), "how do I check my polling station?"); err != nil {
		t.Fatal(err)
	}

	// A fresh session on the same key resumes the transcript.
	resumed, err := NewSession(context.Background(), "voter-1", provider.LangEnglish, backend, gate, Options{Store: store})
	if err != nil {
		t.Fatal(err)
	}
	turns := resumed.Turns()
	if len(turns) != 2 {
		t.Fatalf("resumed %d turns, want 2", len(turns))
	}
	if turns[0].Role != RoleUser || turns[1].Role != RoleAssistant {
		t.Errorf("resumed roles = %s, %s", turns[0].Role, turns[1].Role)
	}
	if turns[1].Citations == nil {
		t.Error("resumed citations nil")
	}
}

func TestEmptyMessageRejected(t *testing.T) {
	backend := &scriptedBackend{fn: answering("re: ")}
	s, _ := setupSession(t, backend)

	if _, err := s.Send(context.Background(), "   "); err == nil {
		t.Error("blank message accepted")
	}
	if len(s.Turns()) != 0 {
		t.Error("blank message appended a turn")
	}
}
