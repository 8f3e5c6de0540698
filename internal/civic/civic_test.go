package civic

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/sautisahihi/sauticore/internal/cache"
	"github.com/sautisahihi/sauticore/internal/connectivity"
	"github.com/sautisahihi/sauticore/internal/pipeline"
	"github.com/sautisahihi/sauticore/internal/provider"
)

type stubProvider struct {
	name  string
	kinds []provider.Kind
	fn    func(req provider.Request) (*provider.Result, error)
}

func (p *stubProvider) Name() string { return p.name }

func (p *stubProvider) Supports(kind provider.Kind) bool {
	for _, k := range p.kinds {
		if k == kind {
			return true
		}
	}
	return false
}

func (p *stubProvider) Invoke(_ context.Context, req provider.Request) (*provider.Result, error) {
	return p.fn(req)
}

func setupService(t *testing.T, p *stubProvider) *Service {
	t.Helper()
	chains := map[string][]string{
		pipeline.CapFactCheck: {p.name},
		pipeline.CapNews:      {p.name},
		pipeline.CapImage:     {p.name},
		pipeline.CapAudio:     {p.name},
	}
	o := pipeline.New(pipeline.Options{Chains: chains}, []provider.Provider{p},
		cache.NewMemoryStore(), connectivity.New())
	return New(o, nil, nil)
}

func allKinds() []provider.Kind {
	return []provider.Kind{provider.KindText, provider.KindImage, provider.KindAudio}
}

func TestFactCheckParsesVerdict(t *testing.T) {
	p := &stubProvider{name: "g", kinds: allKinds(), fn: func(provider.Request) (*provider.Result, error) {
		return &provider.Result{Payload: `{
			"verdict": "FALSE",
			"summary": "Not true.",
			"explanation": "The Constitution says otherwise.",
			"sources": ["Article 38 of Constitution"]
		}`}, nil
	}}
	s := setupService(t, p)

	result := s.FactCheck(context.Background(), "you need a smartphone to vote", nil, provider.LangEnglish)
	if result.Verdict != VerdictFalse {
		t.Errorf("verdict = %s, want FALSE", result.Verdict)
	}
	if len(result.Sources) != 1 {
		t.Errorf("sources = %v", result.Sources)
	}
	if result.Degraded {
		t.Error("clean result flagged degraded")
	}
}

func TestFactCheckUnknownVerdictDowngraded(t *testing.T) {
	p := &stubProvider{name: "g", kinds: allKinds(), fn: func(provider.Request) (*provider.Result, error) {
		return &provider.Result{Payload: `{"verdict": "MAYBE", "summary": "s", "explanation": "e", "sources": []}`}, nil
	}}
	s := setupService(t, p)

	if result := s.FactCheck(context.Background(), "claim", nil, provider.LangEnglish); result.Verdict != VerdictCaution {
		t.Errorf("verdict = %s, want CAUTION", result.Verdict)
	}
}

func TestFactCheckBadJSONIsCaution(t *testing.T) {
	p := &stubProvider{name: "g", kinds: allKinds(), fn: func(provider.Request) (*provider.Result, error) {
		return &provider.Result{Payload: "I think it is true"}, nil
	}}
	s := setupService(t, p)

	result := s.FactCheck(context.Background(), "claim", nil, provider.LangEnglish)
	if result.Verdict != VerdictCaution || !result.Degraded {
		t.Errorf("got %+v, want degraded CAUTION", result)
	}
	if result.Sources == nil {
		t.Error("sources nil")
	}
}

func TestFactCheckCredentialMapsToPermissionCaution(t *testing.T) {
	p := &stubProvider{name: "g", kinds: allKinds(), fn: func(provider.Request) (*provider.Result, error) {
		return nil, provider.NewError("g", provider.KindCredential, "unauthorized", errors.New("permission denied"))
	}}
	s := setupService(t, p)

	result := s.FactCheck(context.Background(), "claim", nil, provider.LangEnglish)
	if result.Verdict != VerdictCaution {
		t.Errorf("verdict = %s, want CAUTION", result.Verdict)
	}
	if result.Summary != "API Key Permission Error" {
		t.Errorf("summary = %q", result.Summary)
	}
}

func TestFactCheckEmptyClaim(t *testing.T) {
	p := &stubProvider{name: "g", kinds: allKinds(), fn: func(provider.Request) (*provider.Result, error) {
		t.Error("provider invoked for empty claim")
		return nil, errors.New("unreachable")
	}}
	s := setupService(t, p)

	if result := s.FactCheck(context.Background(), "   ", nil, provider.LangEnglish); result.Verdict != VerdictCaution {
		t.Errorf("verdict = %s, want CAUTION", result.Verdict)
	}
}

func TestFactCheckRequestShape(t *testing.T) {
	var seen provider.Request
	p := &stubProvider{name: "g", kinds: allKinds(), fn: func(req provider.Request) (*provider.Result, error) {
		seen = req
		return &provider.Result{Payload: `{"verdict":"TRUE","summary":"s","explanation":"e","sources":[]}`}, nil
	}}
	s := setupService(t, p)

	s.FactCheck(context.Background(), "claim", []byte{1, 2, 3}, provider.LangSwahili)
	if !seen.ForceJSON || !seen.Grounded {
		t.Errorf("request = %+v, want JSON + grounded", seen)
	}
	if len(seen.ImagePayload) != 3 {
		t.Error("image payload dropped")
	}
	if seen.Subject != "claim" {
		t.Errorf("subject = %q, want the bare claim", seen.Subject)
	}
	if !strings.Contains(seen.Prompt, `"claim"`) || !strings.Contains(seen.Prompt, "KIS") {
		t.Errorf("prompt = %q, want claim and language woven in", seen.Prompt)
	}
}

func TestFactCheckDistinctClaimsVerifiedSeparately(t *testing.T) {
	calls := 0
	p := &stubProvider{name: "g", kinds: allKinds(), fn: func(req provider.Request) (*provider.Result, error) {
		calls++
		verdict := `"TRUE"`
		if calls > 1 {
			verdict = `"FALSE"`
		}
		return &provider.Result{Payload: `{"verdict":` + verdict + `,"summary":"s","explanation":"e","sources":[]}`}, nil
	}}
	s := setupService(t, p)

	first := s.FactCheck(context.Background(), "voting is free", nil, provider.LangEnglish)
	second := s.FactCheck(context.Background(), "you must pay to vote", nil, provider.LangEnglish)

	if calls != 2 {
		t.Errorf("provider invoked %d times, want once per claim", calls)
	}
	if first.Verdict != VerdictTrue || second.Verdict != VerdictFalse {
		t.Errorf("verdicts = %s, %s: second claim served the first claim's ruling", first.Verdict, second.Verdict)
	}
}

func TestFactCheckDistinctImagesVerifiedSeparately(t *testing.T) {
	calls := 0
	p := &stubProvider{name: "g", kinds: allKinds(), fn: func(req provider.Request) (*provider.Result, error) {
		calls++
		verdict := `"TRUE"`
		if calls > 1 {
			verdict = `"CAUTION"`
		}
		return &provider.Result{Payload: `{"verdict":` + verdict + `,"summary":"s","explanation":"e","sources":[]}`}, nil
	}}
	s := setupService(t, p)

	first := s.FactCheck(context.Background(), "is this poster real", []byte("poster-a"), provider.LangEnglish)
	second := s.FactCheck(context.Background(), "is this poster real", []byte("poster-b"), provider.LangEnglish)

	if calls != 2 {
		t.Errorf("provider invoked %d times, want once per image", calls)
	}
	if first.Verdict == second.Verdict {
		t.Error("different images shared one cached ruling")
	}
}

func TestNewsBriefingPerLanguage(t *testing.T) {
	calls := 0
	p := &stubProvider{name: "g", kinds: allKinds(), fn: func(req provider.Request) (*provider.Result, error) {
		calls++
		return &provider.Result{Payload: "briefing in " + string(req.Language)}, nil
	}}
	s := setupService(t, p)

	eng := s.NewsBriefing(context.Background(), provider.LangEnglish)
	kis := s.NewsBriefing(context.Background(), provider.LangSwahili)

	if calls != 2 {
		t.Errorf("provider invoked %d times, want once per language", calls)
	}
	if eng.Payload == kis.Payload {
		t.Errorf("briefings shared a cache entry: %q", eng.Payload)
	}

	// Same language again is the cached copy.
	again := s.NewsBriefing(context.Background(), provider.LangSwahili)
	if again.Payload != kis.Payload || calls != 2 {
		t.Error("repeat request did not come from cache")
	}
}

func TestTopicImagePlaceholderSeedsOnTopic(t *testing.T) {
	p := &stubProvider{name: "g", kinds: allKinds(), fn: func(provider.Request) (*provider.Result, error) {
		return nil, provider.NewError("g", provider.KindTransient, "unavailable", errors.New("503"))
	}}
	s := setupService(t, p)

	res := s.TopicImage(context.Background(), "County Offices")
	want := "https://picsum.photos/seed/county-offices/800/450"
	if res.Payload != want {
		t.Errorf("placeholder = %q, want %q", res.Payload, want)
	}
}

func TestTranslateFallsBackToInput(t *testing.T) {
	s := New(nil, failingTranslator{}, nil)
	if got := s.Translate(context.Background(), "hello"); got != "hello" {
		t.Errorf("got %q, want input text back", got)
	}

	// No translator configured at all.
	s = New(nil, nil, nil)
	if got := s.Translate(context.Background(), "hello"); got != "hello" {
		t.Errorf("got %q, want input text back", got)
	}
}

func TestAnalyzeToneFallsBackToEmpty(t *testing.T) {
	s := New(nil, nil, nil)
	if scores := s.AnalyzeTone(context.Background(), "text"); scores == nil || len(scores) != 0 {
		t.Errorf("scores = %v, want empty slice", scores)
	}
}

func TestSpeakDegradedReturnsNil(t *testing.T) {
	p := &stubProvider{name: "g", kinds: allKinds(), fn: func(provider.Request) (*provider.Result, error) {
		return nil, provider.NewError("g", provider.KindTransient, "unavailable", errors.New("503"))
	}}
	s := setupService(t, p)

	if out := s.Speak(context.Background(), "habari", "Kore"); out != nil {
		t.Errorf("got %+v, want nil for failed synthesis", out)
	}
}

func TestSpeakReturnsWAV(t *testing.T) {
	p := &stubProvider{name: "g", kinds: allKinds(), fn: func(provider.Request) (*provider.Result, error) {
		return &provider.Result{
			Payload:    "AAAAAA==",
			Samples:    []float32{0, 0.5, -0.5},
			SampleRate: 24000,
		}, nil
	}}
	s := setupService(t, p)

	out := s.Speak(context.Background(), "habari", "Kore")
	if out == nil {
		t.Fatal("no speech result")
	}
	if len(out.Samples) != 3 || out.SampleRate != 24000 {
		t.Errorf("samples = %d rate = %d", len(out.Samples), out.SampleRate)
	}
	if len(out.WAV) <= 44 {
		t.Errorf("WAV length = %d, want header plus data", len(out.WAV))
	}
}

func TestImagePromptRefiner(t *testing.T) {
	p := &stubProvider{name: "g", kinds: allKinds(), fn: func(req provider.Request) (*provider.Result, error) {
		if !strings.Contains(req.Prompt, `"ballot boxes"`) {
			t.Errorf("prompt = %q, want the topic quoted", req.Prompt)
		}
		return &provider.Result{Payload: "  A dignified scene of ballot boxes at dawn  "}, nil
	}}

	r := NewImagePromptRefiner(p)
	got, err := r.Refine(context.Background(), "ballot boxes")
	if err != nil {
		t.Fatalf("Refine failed: %v", err)
	}
	if got != "A dignified scene of ballot boxes at dawn" {
		t.Errorf("refined = %q, want trimmed provider payload", got)
	}

	// Backend failures propagate so the pipeline can ignore them.
	p.fn = func(provider.Request) (*provider.Result, error) {
		return nil, errors.New("backend down")
	}
	if _, err := r.Refine(context.Background(), "ballot boxes"); err == nil {
		t.Error("expected error from failing backend")
	}
}

type failingTranslator struct{}

func (failingTranslator) Translate(context.Context, string) (string, error) {
	return "", errors.New("model loading")
}
