// Package provider provides unified generation provider interfaces and
// implementations for the SautiSahihi pipeline.
package provider

import (
	"context"
)

// Kind is the kind of generation a request asks for.
type Kind string

const (
	KindText  Kind = "text"
	KindImage Kind = "image"
	KindAudio Kind = "audio"
)

// Language is one of the five UI languages the app supports.
type Language string

const (
	LangEnglish  Language = "ENG"
	LangSwahili  Language = "KIS"
	LangKikuyu   Language = "GIK"
	LangDholuo   Language = "DHO"
	LangLuhya    Language = "LUH"
)

// Languages lists all supported language codes.
var Languages = []Language{LangEnglish, LangSwahili, LangKikuyu, LangDholuo, LangLuhya}

// Valid reports whether l is a known language code.
func (l Language) Valid() bool {
	for _, known := range Languages {
		if l == known {
			return true
		}
	}
	return false
}

// Request is a fully-formed generation request. It is immutable once issued:
// providers must not mutate it, and callers must not reuse the ImagePayload
// buffer after handing it over.
type Request struct {
	Kind    Kind
	Subject string // the semantic subject: claim, topic, or message text

	// Prompt is the full text sent to the provider. When empty, Subject is
	// sent as-is. Cache keys derive from Subject, never from Prompt, so
	// template wording can change without invalidating cached content.
	Prompt string

	Language Language // response language hint
	System   string   // optional system instruction

	// ImagePayload is an optional attached image (raw bytes) for multimodal
	// verification. MIME type is detected before upload.
	ImagePayload []byte

	// ForceJSON asks the provider for a structured JSON response body.
	ForceJSON bool

	// Grounded asks the provider to ground the answer in web search and
	// return citations where supported.
	Grounded bool

	// Voice selects the synthesis voice for audio requests.
	Voice string

	// History carries prior conversation turns for chat-style requests.
	// Subject remains the newest user message.
	History []Message
}

// PromptText is the text a provider should generate from.
func (r Request) PromptText() string {
	if r.Prompt != "" {
		return r.Prompt
	}
	return r.Subject
}

// Message is one prior conversation turn.
type Message struct {
	Role string // "user" or "model"
	Text string
}

// Citation is a grounding reference returned alongside generated text.
type Citation struct {
	URI   string `json:"uri"`
	Title string `json:"title"`
}

// Result is a successful provider response. Exactly one of the payload forms
// is meaningful for a given kind: text for KindText, base64 media for
// KindImage, and base64 PCM plus the decoded Samples for KindAudio.
type Result struct {
	Payload    string     // text, or base64-encoded media
	Samples    []float32  // decoded audio samples (KindAudio only)
	SampleRate int        // samples per second (KindAudio only)
	Citations  []Citation // grounding citations, never nil
	Provider   string     // name of the provider that produced this
}

// Provider is the unified interface for all generation backends.
// Implementations: GeminiProvider, HuggingFaceProvider, OpenAIProvider.
//
// Invoke performs exactly one outbound call. Retries and fallback are the
// orchestrator's responsibility, never the provider's.
type Provider interface {
	Name() string
	Supports(kind Kind) bool
	Invoke(ctx context.Context, req Request) (*Result, error)
}

// ClientConfig is the configuration for a single provider instance.
type ClientConfig struct {
	Driver  string `json:"driver"`  // "gemini", "huggingface", "openai"
	APIKey  string `json:"apiKey"`  // credential; may also come from env
	BaseURL string `json:"baseURL"` // override endpoint (openai-compatible, HF mirror)

	// Per-kind model overrides. Empty values use driver defaults.
	TextModel  string `json:"textModel"`
	ImageModel string `json:"imageModel"`
	AudioModel string `json:"audioModel"`

	TimeoutSeconds int `json:"timeoutSeconds"` // request timeout (0 = driver default)
}
