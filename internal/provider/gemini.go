package provider

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"time"

	"google.golang.org/genai"

	"github.com/sautisahihi/sauticore/internal/audio"
	. "github.com/sautisahihi/sauticore/internal/logging"
	"github.com/sautisahihi/sauticore/internal/media"
)

// Default Gemini models per request kind
const (
	geminiDefaultTextModel  = "gemini-3-pro-preview"
	geminiDefaultImageModel = "gemini-2.5-flash-image"
	geminiDefaultAudioModel = "gemini-2.5-flash-preview-tts"
	geminiDefaultVoice      = "Kore"
	geminiDefaultTimeout    = 60 * time.Second
)

// GeminiProvider is the primary generative provider. It handles all three
// request kinds: grounded text, image generation and speech synthesis.
type GeminiProvider struct {
	name    string
	client  *genai.Client
	cfg     ClientConfig
	timeout time.Duration
}

// NewGeminiProvider creates a Gemini-backed provider. The API key comes from
// config or the GEMINI_API_KEY environment variable.
func NewGeminiProvider(ctx context.Context, name string, cfg ClientConfig) (*GeminiProvider, error) {
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("GEMINI_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("gemini: no API key configured")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("gemini: client init: %w", err)
	}

	timeout := geminiDefaultTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}

	return &GeminiProvider{name: name, client: client, cfg: cfg, timeout: timeout}, nil
}

func (g *GeminiProvider) Name() string { return g.name }

func (g *GeminiProvider) Supports(kind Kind) bool {
	switch kind {
	case KindText, KindImage, KindAudio:
		return true
	}
	return false
}

// Invoke performs exactly one generation call. Errors come back classified.
func (g *GeminiProvider) Invoke(ctx context.Context, req Request) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	switch req.Kind {
	case KindText:
		return g.generateText(ctx, req)
	case KindImage:
		return g.generateImage(ctx, req)
	case KindAudio:
		return g.generateAudio(ctx, req)
	default:
		return nil, NewError(g.name, KindMalformed, "bad_request", fmt.Errorf("unsupported kind %q", req.Kind))
	}
}

func (g *GeminiProvider) generateText(ctx context.Context, req Request) (*Result, error) {
	model := g.cfg.TextModel
	if model == "" {
		model = geminiDefaultTextModel
	}

	contents := make([]*genai.Content, 0, len(req.History)+1)
	for _, m := range req.History {
		role := genai.Role(genai.RoleUser)
		if m.Role == "model" {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(m.Text, role))
	}

	parts := []*genai.Part{genai.NewPartFromText(req.PromptText())}
	if len(req.ImagePayload) > 0 {
		img, err := media.Optimize(req.ImagePayload)
		if err != nil {
			return nil, NewError(g.name, KindMalformed, "bad_image", err)
		}
		parts = append(parts, genai.NewPartFromBytes(img.Data, img.MimeType))
	}
	contents = append(contents, genai.NewContentFromParts(parts, genai.RoleUser))

	config := &genai.GenerateContentConfig{}
	if req.System != "" {
		config.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}
	if req.Grounded {
		config.Tools = []*genai.Tool{{GoogleSearch: &genai.GoogleSearch{}}}
	}
	if req.ForceJSON {
		config.ResponseMIMEType = "application/json"
	}

	resp, err := g.client.Models.GenerateContent(ctx, model, contents, config)
	if err != nil {
		return nil, Classify(g.name, err)
	}

	text := resp.Text()
	if text == "" {
		return nil, NewError(g.name, KindMalformed, "empty_response", fmt.Errorf("empty response"))
	}

	return &Result{
		Payload:   text,
		Citations: extractCitations(resp),
		Provider:  g.name,
	}, nil
}

func (g *GeminiProvider) generateImage(ctx context.Context, req Request) (*Result, error) {
	model := g.cfg.ImageModel
	if model == "" {
		model = geminiDefaultImageModel
	}

	contents := genai.Text(req.PromptText())
	config := &genai.GenerateContentConfig{
		ImageConfig: &genai.ImageConfig{AspectRatio: "16:9"},
	}

	resp, err := g.client.Models.GenerateContent(ctx, model, contents, config)
	if err != nil {
		return nil, Classify(g.name, err)
	}

	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if part.InlineData != nil && len(part.InlineData.Data) > 0 {
				return &Result{
					Payload:   base64.StdEncoding.EncodeToString(part.InlineData.Data),
					Citations: []Citation{},
					Provider:  g.name,
				}, nil
			}
		}
	}

	// A successful call with no inline data counts as malformed
	return nil, NewError(g.name, KindMalformed, "empty_response", fmt.Errorf("no image data in response"))
}

func (g *GeminiProvider) generateAudio(ctx context.Context, req Request) (*Result, error) {
	model := g.cfg.AudioModel
	if model == "" {
		model = geminiDefaultAudioModel
	}
	voice := req.Voice
	if voice == "" {
		voice = geminiDefaultVoice
	}

	contents := genai.Text(req.PromptText())
	config := &genai.GenerateContentConfig{
		ResponseModalities: []string{"AUDIO"},
		SpeechConfig: &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: voice},
			},
		},
	}

	resp, err := g.client.Models.GenerateContent(ctx, model, contents, config)
	if err != nil {
		return nil, Classify(g.name, err)
	}

	pcm := firstInlineData(resp)
	if len(pcm) == 0 {
		return nil, NewError(g.name, KindMalformed, "empty_response", fmt.Errorf("no audio data in response"))
	}

	samples, err := audio.DecodePCM16(pcm)
	if err != nil {
		return nil, NewError(g.name, KindMalformed, "bad_pcm", err)
	}

	L_debug("gemini: audio synthesized", "samples", len(samples), "voice", voice)

	return &Result{
		Payload:    base64.StdEncoding.EncodeToString(pcm),
		Samples:    samples,
		SampleRate: audio.SampleRate,
		Citations:  []Citation{},
		Provider:   g.name,
	}, nil
}

// firstInlineData returns the first inline binary part of a response.
func firstInlineData(resp *genai.GenerateContentResponse) []byte {
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if part.InlineData != nil && len(part.InlineData.Data) > 0 {
				return part.InlineData.Data
			}
		}
	}
	return nil
}

// extractCitations pulls web grounding chunks out of a response. Always
// returns a non-nil slice.
func extractCitations(resp *genai.GenerateContentResponse) []Citation {
	citations := []Citation{}
	for _, cand := range resp.Candidates {
		if cand.GroundingMetadata == nil {
			continue
		}
		for _, chunk := range cand.GroundingMetadata.GroundingChunks {
			if chunk.Web == nil || chunk.Web.URI == "" {
				continue
			}
			title := chunk.Web.Title
			if title == "" {
				title = "Source"
			}
			citations = append(citations, Citation{URI: chunk.Web.URI, Title: title})
		}
	}
	return citations
}

var _ Provider = (*GeminiProvider)(nil)
