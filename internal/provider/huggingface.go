package provider

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	. "github.com/sautisahihi/sauticore/internal/logging"
)

// Hugging Face inference defaults
const (
	hfDefaultBaseURL    = "https://api-inference.huggingface.co/models/"
	hfDefaultImageModel = "black-forest-labs/FLUX.1-schnell"
	hfTranslationModel  = "Helsinki-NLP/opus-mt-en-sw"
	hfToneModel         = "facebook/bart-large-mnli"
	hfDefaultTimeout    = 90 * time.Second

	// Inference responses smaller than this are error bodies, not images
	hfMinImageBytes = 100
)

// Candidate labels for zero-shot news tone classification
var hfToneLabels = []string{"Fear-mongering", "Informative", "Clickbait", "Calm"}

// ToneScore is one zero-shot classification label with its confidence.
type ToneScore struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// HuggingFaceProvider is the secondary open-source provider. It serves image
// generation through the fallback chain, plus the narrow translation and
// tone-analysis tasks the capability layer calls directly.
type HuggingFaceProvider struct {
	name    string
	baseURL string
	token   string
	cfg     ClientConfig
	client  *http.Client
}

// NewHuggingFaceProvider creates a Hugging Face inference client. The token
// is optional (anonymous calls are allowed at a lower rate) and comes from
// config or HF_API_TOKEN.
func NewHuggingFaceProvider(name string, cfg ClientConfig) (*HuggingFaceProvider, error) {
	token := cfg.APIKey
	if token == "" {
		token = os.Getenv("HF_API_TOKEN")
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = hfDefaultBaseURL
	}

	timeout := hfDefaultTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}

	return &HuggingFaceProvider{
		name:    name,
		baseURL: baseURL,
		token:   token,
		cfg:     cfg,
		client:  &http.Client{Timeout: timeout},
	}, nil
}

func (h *HuggingFaceProvider) Name() string { return h.name }

func (h *HuggingFaceProvider) Supports(kind Kind) bool {
	switch kind {
	case KindImage:
		return true
	case KindText:
		return h.cfg.TextModel != ""
	}
	return false
}

// Invoke performs exactly one inference call.
func (h *HuggingFaceProvider) Invoke(ctx context.Context, req Request) (*Result, error) {
	switch req.Kind {
	case KindImage:
		return h.generateImage(ctx, req)
	case KindText:
		return h.generateText(ctx, req)
	default:
		return nil, NewError(h.name, KindMalformed, "bad_request", fmt.Errorf("unsupported kind %q", req.Kind))
	}
}

func (h *HuggingFaceProvider) generateImage(ctx context.Context, req Request) (*Result, error) {
	model := h.cfg.ImageModel
	if model == "" {
		model = hfDefaultImageModel
	}

	body, err := h.post(ctx, model, map[string]any{"inputs": req.PromptText()})
	if err != nil {
		return nil, err
	}

	if len(body) < hfMinImageBytes {
		return nil, NewError(h.name, KindMalformed, "empty_response",
			fmt.Errorf("response too small for an image (%d bytes)", len(body)))
	}

	return &Result{
		Payload:   base64.StdEncoding.EncodeToString(body),
		Citations: []Citation{},
		Provider:  h.name,
	}, nil
}

func (h *HuggingFaceProvider) generateText(ctx context.Context, req Request) (*Result, error) {
	body, err := h.post(ctx, h.cfg.TextModel, map[string]any{"inputs": req.PromptText()})
	if err != nil {
		return nil, err
	}

	var out []struct {
		GeneratedText string `json:"generated_text"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, NewError(h.name, KindMalformed, "bad_response", err)
	}
	if len(out) == 0 || out[0].GeneratedText == "" {
		return nil, NewError(h.name, KindMalformed, "empty_response", fmt.Errorf("empty response"))
	}

	return &Result{
		Payload:   out[0].GeneratedText,
		Citations: []Citation{},
		Provider:  h.name,
	}, nil
}

// Translate translates English text to Kiswahili. Narrow task, called
// directly by the capability layer (no fallback chain).
func (h *HuggingFaceProvider) Translate(ctx context.Context, text string) (string, error) {
	body, err := h.post(ctx, hfTranslationModel, map[string]any{"inputs": text})
	if err != nil {
		return "", err
	}

	var out []struct {
		TranslationText string `json:"translation_text"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return "", NewError(h.name, KindMalformed, "bad_response", err)
	}
	if len(out) == 0 || out[0].TranslationText == "" {
		return "", NewError(h.name, KindMalformed, "empty_response", fmt.Errorf("empty response"))
	}
	return out[0].TranslationText, nil
}

// AnalyzeTone classifies text against the fixed news-tone labels.
func (h *HuggingFaceProvider) AnalyzeTone(ctx context.Context, text string) ([]ToneScore, error) {
	body, err := h.post(ctx, hfToneModel, map[string]any{
		"inputs":     text,
		"parameters": map[string]any{"candidate_labels": hfToneLabels},
	})
	if err != nil {
		return nil, err
	}

	var out struct {
		Labels []string  `json:"labels"`
		Scores []float64 `json:"scores"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, NewError(h.name, KindMalformed, "bad_response", err)
	}
	if len(out.Labels) != len(out.Scores) {
		return nil, NewError(h.name, KindMalformed, "bad_response",
			fmt.Errorf("label/score count mismatch: %d vs %d", len(out.Labels), len(out.Scores)))
	}

	scores := make([]ToneScore, len(out.Labels))
	for i, label := range out.Labels {
		scores[i] = ToneScore{Label: label, Score: out.Scores[i]}
	}
	return scores, nil
}

// post issues a single inference request and maps HTTP status codes onto the
// error taxonomy.
func (h *HuggingFaceProvider) post(ctx context.Context, model string, payload any) ([]byte, error) {
	reqBody, err := json.Marshal(payload)
	if err != nil {
		return nil, NewError(h.name, KindMalformed, "bad_request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.baseURL+model, bytes.NewReader(reqBody))
	if err != nil {
		return nil, NewError(h.name, KindMalformed, "bad_request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if h.token != "" {
		req.Header.Set("Authorization", "Bearer "+h.token)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, Classify(h.name, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, Classify(h.name, err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		return body, nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, NewError(h.name, KindCredential, "unauthorized",
			fmt.Errorf("status %d: %s", resp.StatusCode, truncateBody(body)))
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, NewError(h.name, KindTransient, "rate_limited",
			fmt.Errorf("status %d: %s", resp.StatusCode, truncateBody(body)))
	case resp.StatusCode == http.StatusServiceUnavailable || resp.StatusCode == http.StatusGatewayTimeout:
		// Model loading or node busy
		L_debug("huggingface: model busy", "model", model, "status", resp.StatusCode)
		return nil, NewError(h.name, KindTransient, "unavailable",
			fmt.Errorf("status %d: %s", resp.StatusCode, truncateBody(body)))
	default:
		return nil, NewError(h.name, KindTransient, "http_error",
			fmt.Errorf("status %d: %s", resp.StatusCode, truncateBody(body)))
	}
}

func truncateBody(body []byte) string {
	const maxLen = 200
	if len(body) > maxLen {
		return string(body[:maxLen]) + "..."
	}
	return string(body)
}

var _ Provider = (*HuggingFaceProvider)(nil)
