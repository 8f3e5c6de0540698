// Package chat implements the assistant conversation session: an append-only
// turn log where every user turn pairs with exactly one assistant turn, even
// when the provider is down or the device is offline.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sautisahihi/sauticore/internal/connectivity"
	. "github.com/sautisahihi/sauticore/internal/logging"
	"github.com/sautisahihi/sauticore/internal/provider"
	"github.com/sautisahihi/sauticore/internal/tokens"
)

// Role is the author of a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one entry in a session's transcript. Turns are appended
// monotonically and never mutated; Citations is always non-nil.
type Turn struct {
	ID        string              `json:"id"`
	Role      Role                `json:"role"`
	Text      string              `json:"text"`
	Citations []provider.Citation `json:"citations"`
	CreatedAt time.Time           `json:"createdAt"`
}

var (
	// ErrBusy is returned when Send is called while a reply is pending.
	// The caller should disable input until the previous Send returns.
	ErrBusy = errors.New("chat: reply in progress")

	// ErrConnection wraps provider and connectivity failures. The session
	// still appends an apologetic assistant turn; the error exists so the
	// caller can surface a status indicator.
	ErrConnection = errors.New("chat: connection error")
)

// DefaultTokenBudget bounds the replayed history window. The system prompt
// and the newest user message never count against it.
const DefaultTokenBudget = 6000

// perTurnOverhead approximates role and framing tokens per message.
const perTurnOverhead = 4

const systemPromptFormat = "You are SautiSahihi Civic Guide for Kenyan seniors. Respond in %s. Be patient and respectful."

var languageNames = map[provider.Language]string{
	provider.LangEnglish: "English",
	provider.LangSwahili: "Kiswahili",
	provider.LangKikuyu:  "Kikuyu",
	provider.LangDholuo:  "Dholuo",
	provider.LangLuhya:   "Luhya",
}

var apologyMessages = map[provider.Language]string{
	provider.LangEnglish: "Pole, my connection is weak. Please try again.",
	provider.LangSwahili: "Pole, mtandao wangu ni dhaifu. Tafadhali jaribu tena.",
	provider.LangKikuyu:  "Pole, internet yakwa ni nyororo. Geria ringi.",
	provider.LangDholuo:  "Atimo mos, intanet marwa nyap. Tem kendo.",
	provider.LangLuhya:   "Pole, intaneti yanje ni ndebe. Khutemeko khandi.",
}

var offlineMessages = map[provider.Language]string{
	provider.LangEnglish: "You are currently offline. Please use the Quick Answers for common civic guidance, or connect to the internet to ask me anything else.",
	provider.LangSwahili: "Uko nje ya mtandao kwa sasa. Tumia Majibu ya Haraka kwa maswali ya kawaida ya kiraia, au unganisha intaneti kuniuliza jambo lingine.",
	provider.LangKikuyu:  "Riu ndukinyite internet. Huthira Macokio ma Naihenya, kana wikire internet unjurie undu ungi.",
	provider.LangDholuo:  "Sani ionge gi intanet. Ti gi Duoko Mapiyo mag weche piny, kata tudri gi intanet mondo ipenja wach moro.",
	provider.LangLuhya:   "Bulano obula intaneti. Khola ne Amakalusio Amangu, nohomba ikasia intaneti ondebe eshindu shindi.",
}

// Session holds one conversation. Safe for concurrent use; concurrent Send
// calls are rejected with ErrBusy rather than queued.
type Session struct {
	key      string
	language provider.Language
	backend  provider.Provider
	gate     *connectivity.Gate
	store    Store
	budget   int

	mu    sync.Mutex
	busy  bool
	turns []Turn
}

// Options tunes a session. Zero values take defaults.
type Options struct {
	TokenBudget int
	Store       Store // optional persistence
}

// NewSession creates a conversation in the given language against a text
// backend. If opts.Store is set and already holds turns for key, they are
// loaded so the conversation resumes.
func NewSession(ctx context.Context, key string, language provider.Language, backend provider.Provider, gate *connectivity.Gate, opts Options) (*Session, error) {
	if !language.Valid() {
		return nil, fmt.Errorf("chat: unknown language %q", language)
	}

	budget := opts.TokenBudget
	if budget <= 0 {
		budget = DefaultTokenBudget
	}

	s := &Session{
		key:      key,
		language: language,
		backend:  backend,
		gate:     gate,
		store:    opts.Store,
		budget:   budget,
	}

	if s.store != nil {
		turns, err := s.store.LoadTurns(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("chat: load session %s: %w", key, err)
		}
		s.turns = turns
		if len(turns) > 0 {
			L_info("chat: session resumed", "key", key, "turns", len(turns))
		}
	}

	return s, nil
}

// Key returns the session's persistence key.
func (s *Session) Key() string { return s.key }

// Turns returns a copy of the transcript.
func (s *Session) Turns() []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Turn, len(s.turns))
	copy(out, s.turns)
	return out
}

// Send submits one user message and returns the assistant turn. The user
// turn is always recorded; failures produce a synthetic apologetic assistant
// turn plus a wrapped ErrConnection, so the transcript stays strictly
// alternating regardless of outcome.
func (s *Session) Send(ctx context.Context, text string) (*Turn, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, errors.New("chat: empty message")
	}

	s.mu.Lock()
	if s.busy {
		s.mu.Unlock()
		return nil, ErrBusy
	}
	s.busy = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.busy = false
		s.mu.Unlock()
	}()

	s.append(ctx, newTurn(RoleUser, text, nil))

	if s.gate != nil && !s.gate.IsOnline() {
		turn := s.append(ctx, newTurn(RoleAssistant, offlineMessages[s.language], nil))
		return &turn, fmt.Errorf("offline: %w", ErrConnection)
	}

	history := s.window()
	req := provider.Request{
		Kind:     provider.KindText,
		Subject:  text,
		Language: s.language,
		System:   fmt.Sprintf(systemPromptFormat, languageNames[s.language]),
		Grounded: true,
		History:  history,
	}

	result, err := s.backend.Invoke(ctx, req)
	if err != nil {
		classified := provider.Classify(s.backend.Name(), err)
		L_warn("chat: provider failed", "session", s.key, "kind", classified.Kind, "error", err)
		turn := s.append(ctx, newTurn(RoleAssistant, apologyMessages[s.language], nil))
		return &turn, fmt.Errorf("%s: %w", classified.Kind, ErrConnection)
	}

	turn := s.append(ctx, newTurn(RoleAssistant, result.Payload, result.Citations))
	return &turn, nil
}

// window returns the prior turns that fit the token budget, oldest dropped
// first. The latest user turn is excluded because it travels as the request
// subject.
func (s *Session) window() []provider.Message {
	s.mu.Lock()
	prior := make([]Turn, len(s.turns))
	copy(prior, s.turns)
	s.mu.Unlock()

	if len(prior) > 0 && prior[len(prior)-1].Role == RoleUser {
		prior = prior[:len(prior)-1]
	}

	// Walk backwards so the newest context survives.
	used := 0
	start := len(prior)
	for i := len(prior) - 1; i >= 0; i-- {
		cost := tokens.Estimate(prior[i].Text) + perTurnOverhead
		if used+cost > s.budget {
			break
		}
		used += cost
		start = i
	}

	if start > 0 {
		L_debug("chat: history window trimmed", "session", s.key, "dropped", start, "kept", len(prior)-start)
	}

	window := make([]provider.Message, 0, len(prior)-start)
	for _, t := range prior[start:] {
		role := "user"
		if t.Role == RoleAssistant {
			role = "model"
		}
		window = append(window, provider.Message{Role: role, Text: t.Text})
	}
	return window
}

func (s *Session) append(ctx context.Context, t Turn) Turn {
	s.mu.Lock()
	s.turns = append(s.turns, t)
	s.mu.Unlock()

	if s.store != nil {
		if err := s.store.AppendTurn(ctx, s.key, t); err != nil {
			L_warn("chat: failed to persist turn", "session", s.key, "error", err)
		}
	}
	return t
}

func newTurn(role Role, text string, citations []provider.Citation) Turn {
	if citations == nil {
		citations = []provider.Citation{}
	}
	return Turn{
		ID:        uuid.NewString(),
		Role:      role,
		Text:      text,
		Citations: citations,
		CreatedAt: time.Now(),
	}
}
