package provider

import (
	"context"
	"fmt"
	"os"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

const (
	openaiDefaultTextModel = "gpt-4o-mini"
	openaiDefaultTimeout   = 60 * time.Second
)

// OpenAIProvider is a text-only tertiary driver for any OpenAI-compatible
// endpoint. With a BaseURL override it fronts local or self-hosted models,
// which keeps a text fallback available when the hosted providers are out.
type OpenAIProvider struct {
	name   string
	client *openai.Client
	cfg    ClientConfig
}

// NewOpenAIProvider creates an OpenAI-compatible provider. The key comes from
// config or OPENAI_API_KEY.
func NewOpenAIProvider(name string, cfg ClientConfig) (*OpenAIProvider, error) {
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey == "" && cfg.BaseURL == "" {
		return nil, fmt.Errorf("openai: no API key configured")
	}

	config := openai.DefaultConfig(apiKey)
	if cfg.BaseURL != "" {
		config.BaseURL = cfg.BaseURL
	}

	return &OpenAIProvider{
		name:   name,
		client: openai.NewClientWithConfig(config),
		cfg:    cfg,
	}, nil
}

func (p *OpenAIProvider) Name() string { return p.name }

func (p *OpenAIProvider) Supports(kind Kind) bool { return kind == KindText }

// Invoke performs exactly one chat completion call.
func (p *OpenAIProvider) Invoke(ctx context.Context, req Request) (*Result, error) {
	if req.Kind != KindText {
		return nil, NewError(p.name, KindMalformed, "bad_request", fmt.Errorf("unsupported kind %q", req.Kind))
	}

	timeout := openaiDefaultTimeout
	if p.cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(p.cfg.TimeoutSeconds) * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	model := p.cfg.TextModel
	if model == "" {
		model = openaiDefaultTextModel
	}

	messages := []openai.ChatCompletionMessage{}
	if req.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.System,
		})
	}
	for _, m := range req.History {
		role := openai.ChatMessageRoleUser
		if m.Role == "model" {
			role = openai.ChatMessageRoleAssistant
		}
		messages = append(messages, openai.ChatCompletionMessage{Role: role, Content: m.Text})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: req.PromptText(),
	})

	chatReq := openai.ChatCompletionRequest{
		Model:    model,
		Messages: messages,
	}
	if req.ForceJSON {
		chatReq.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	resp, err := p.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return nil, Classify(p.name, err)
	}

	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return nil, NewError(p.name, KindMalformed, "empty_response", fmt.Errorf("empty response"))
	}

	return &Result{
		Payload:   resp.Choices[0].Message.Content,
		Citations: []Citation{},
		Provider:  p.name,
	}, nil
}

var _ Provider = (*OpenAIProvider)(nil)
