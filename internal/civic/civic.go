// Package civic exposes the typed operations the app performs: fact-checking,
// news briefings, topic images, speech, translation and tone analysis. Each
// operation sits on top of the resolve pipeline and maps failures to safe
// user-facing defaults instead of errors.
package civic

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sautisahihi/sauticore/internal/audio"
	. "github.com/sautisahihi/sauticore/internal/logging"
	"github.com/sautisahihi/sauticore/internal/pipeline"
	"github.com/sautisahihi/sauticore/internal/provider"
)

// Verdict is the outcome of a fact check.
type Verdict string

const (
	VerdictTrue    Verdict = "TRUE"
	VerdictFalse   Verdict = "FALSE"
	VerdictCaution Verdict = "CAUTION"
)

// FactCheckResult is what the UI renders for a claim. It is always fully
// populated; verification failures come back as CAUTION results.
type FactCheckResult struct {
	Verdict     Verdict  `json:"verdict"`
	Summary     string   `json:"summary"`
	Explanation string   `json:"explanation"`
	Sources     []string `json:"sources"`
	Degraded    bool     `json:"degraded,omitempty"`
}

// SpeechResult carries synthesized audio in both forms the callers need.
type SpeechResult struct {
	Samples    []float32
	SampleRate int
	WAV        []byte
}

// Translator is the translation surface of the HuggingFace driver.
type Translator interface {
	Translate(ctx context.Context, text string) (string, error)
}

// ToneAnalyzer is the zero-shot classification surface of the HuggingFace
// driver.
type ToneAnalyzer interface {
	AnalyzeTone(ctx context.Context, text string) ([]provider.ToneScore, error)
}

// Service wires the capability operations to the orchestrator.
type Service struct {
	orchestrator *pipeline.Orchestrator
	translator   Translator
	tone         ToneAnalyzer
}

// New creates the capability service. translator and tone may be nil when no
// HuggingFace credential is configured; the affected operations then return
// their fallbacks.
func New(o *pipeline.Orchestrator, translator Translator, tone ToneAnalyzer) *Service {
	return &Service{orchestrator: o, translator: translator, tone: tone}
}

const factCheckPromptFormat = `You are a professional fact-checker for Kenyan citizens, acting as a trusted advisor for seniors.
Fact-check the following claim or image content: %q
Language to respond in: %s.

Ground your verification in the Constitution of Kenya and the Elections Act.
Respond in JSON format with:
- verdict: "TRUE", "FALSE", or "CAUTION"
- summary: A very short (1 sentence) verdict.
- explanation: A simple explanation suitable for a senior citizen.
- sources: A list of verified URLs or legal citations (e.g., Article X of Constitution).`

// FactCheck verifies a claim, optionally with an attached image. The result
// is never an error: credential problems and outages map to canned CAUTION
// results so the UI always has something safe to show.
func (s *Service) FactCheck(ctx context.Context, claim string, image []byte, lang provider.Language) FactCheckResult {
	claim = strings.TrimSpace(claim)
	if claim == "" && len(image) == 0 {
		return cautionResult("Nothing to verify.", "Type a claim or attach an image to fact-check.")
	}

	req := provider.Request{
		Kind:         provider.KindText,
		Subject:      claim,
		Prompt:       fmt.Sprintf(factCheckPromptFormat, claim, lang),
		Language:     lang,
		ImagePayload: image,
		ForceJSON:    true,
		Grounded:     true,
	}

	res := s.orchestrator.Resolve(ctx, pipeline.CapFactCheck, req)
	if res.Degraded {
		if res.Reason == "credential" {
			return FactCheckResult{
				Verdict:     VerdictCaution,
				Summary:     "API Key Permission Error",
				Explanation: "Your current API key does not have access to the verification models. Please refresh your API key in settings.",
				Sources:     []string{"https://ai.google.dev/gemini-api/docs/billing"},
				Degraded:    true,
			}
		}
		return cautionResult("Verification failed.", "We couldn't reach our fact-checking engine. Please try again later.")
	}

	var result FactCheckResult
	if err := json.Unmarshal([]byte(res.Payload), &result); err != nil || result.Verdict == "" {
		L_warn("civic: fact-check response not parseable", "error", err)
		return cautionResult("Verification failed.", "We couldn't reach our fact-checking engine. Please try again later.")
	}
	if result.Sources == nil {
		result.Sources = []string{}
	}
	switch result.Verdict {
	case VerdictTrue, VerdictFalse, VerdictCaution:
	default:
		// Unknown verdict strings downgrade to caution rather than
		// presenting an unvetted label as a ruling.
		result.Verdict = VerdictCaution
	}
	return result
}

func cautionResult(summary, explanation string) FactCheckResult {
	return FactCheckResult{
		Verdict:     VerdictCaution,
		Summary:     summary,
		Explanation: explanation,
		Sources:     []string{},
		Degraded:    true,
	}
}

// NewsBriefing returns the latest political news summary for a language.
// Served from cache within the TTL; offline devices get the last cached
// briefing regardless of age.
func (s *Service) NewsBriefing(ctx context.Context, lang provider.Language) pipeline.Resolution {
	req := provider.Request{
		Kind:     provider.KindText,
		Subject:  "kenyan political news briefing",
		Prompt:   fmt.Sprintf("Summarize the top 3 latest Kenyan political news stories for a senior citizen in %s. Keep it strictly factual.", lang),
		Language: lang,
		Grounded: true,
	}
	return s.orchestrator.Resolve(ctx, pipeline.CapNews, req)
}

// TopicImage returns a generated illustration for a topic, or the seeded
// stock placeholder when generation is impossible. The payload is either
// base64 image data or a placeholder URL; callers distinguish by Source.
func (s *Service) TopicImage(ctx context.Context, topic string) pipeline.Resolution {
	req := provider.Request{
		Kind:    provider.KindImage,
		Subject: topic,
		Prompt:  fmt.Sprintf("Dignified image of: %s. Focus on Kenyan citizens, authentic tones, professional lighting.", topic),
	}
	return s.orchestrator.Resolve(ctx, pipeline.CapImage, req)
}

// ImagePromptRefiner rewrites bare topics into richer image-generation
// prompts using a text provider. It satisfies the pipeline's Refiner hook;
// errors propagate so the pipeline falls back to the unrefined prompt.
type ImagePromptRefiner struct {
	backend provider.Provider
}

// NewImagePromptRefiner wraps a text-capable provider as a prompt refiner.
func NewImagePromptRefiner(p provider.Provider) *ImagePromptRefiner {
	return &ImagePromptRefiner{backend: p}
}

// Refine returns a single-sentence image prompt for the topic.
func (r *ImagePromptRefiner) Refine(ctx context.Context, subject string) (string, error) {
	req := provider.Request{
		Kind:    provider.KindText,
		Subject: subject,
		Prompt: fmt.Sprintf("Rewrite the topic %q as one short, vivid image-generation prompt. "+
			"Depict Kenyan citizens with dignity, authentic tones and professional lighting. "+
			"Reply with the prompt only.", subject),
	}
	result, err := r.backend.Invoke(ctx, req)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(result.Payload), nil
}

// Speak synthesizes text to speech. A nil result means synthesis failed;
// callers skip playback rather than surface an error, matching the app's
// silent degradation for audio.
func (s *Service) Speak(ctx context.Context, text, voice string) *SpeechResult {
	req := provider.Request{
		Kind:    provider.KindAudio,
		Subject: text,
		Voice:   voice,
	}
	res := s.orchestrator.Resolve(ctx, pipeline.CapAudio, req)
	if res.Degraded {
		L_debug("civic: speech unavailable", "reason", res.Reason)
		return nil
	}

	samples := res.Samples
	rate := res.SampleRate
	if len(samples) == 0 {
		// Cache hits carry base64 PCM only; decode it back to samples.
		pcm, err := base64.StdEncoding.DecodeString(res.Payload)
		if err != nil {
			L_warn("civic: cached audio not decodable", "error", err)
			return nil
		}
		samples, err = audio.DecodePCM16(pcm)
		if err != nil || len(samples) == 0 {
			L_warn("civic: cached audio not decodable", "error", err)
			return nil
		}
		rate = audio.SampleRate
	}

	return &SpeechResult{
		Samples:    samples,
		SampleRate: rate,
		WAV:        audio.WAV(audio.EncodePCM16(samples), rate, audio.NumChannels),
	}
}

// Translate renders English text in Kiswahili. Falls back to the input on
// any failure so callers can always display something.
func (s *Service) Translate(ctx context.Context, text string) string {
	if s.translator == nil {
		return text
	}
	translated, err := s.translator.Translate(ctx, text)
	if err != nil || translated == "" {
		L_debug("civic: translation failed, using original", "error", err)
		return text
	}
	return translated
}

// AnalyzeTone classifies text against the misinformation tone labels.
// Returns an empty slice on failure.
func (s *Service) AnalyzeTone(ctx context.Context, text string) []provider.ToneScore {
	if s.tone == nil {
		return []provider.ToneScore{}
	}
	scores, err := s.tone.AnalyzeTone(ctx, text)
	if err != nil {
		L_debug("civic: tone analysis failed", "error", err)
		return []provider.ToneScore{}
	}
	return scores
}
