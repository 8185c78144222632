package inference

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

const DefaultOpenAIModel = openai.GPT3Dot5TurboInstruct

type OpenAIConfig struct {
	BaseURL    string
	APIKey     string
	Model      string
	HTTPClient *http.Client
}

// OpenAILoader talks to any OpenAI-compatible completions endpoint.
type OpenAILoader struct {
	cfg OpenAIConfig
}

func NewOpenAILoader(cfg OpenAIConfig) (*OpenAILoader, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	if strings.TrimSpace(cfg.Model) == "" {
		cfg.Model = DefaultOpenAIModel
	}
	return &OpenAILoader{cfg: cfg}, nil
}

func (l *OpenAILoader) Load(_ context.Context, _ ModelSpec) (Backend, error) {
	return newCompletionBackend(l.cfg, nil), nil
}

type completionBackend struct {
	client  *openai.Client
	model   string
	onClose func() error
}

func newCompletionBackend(cfg OpenAIConfig, onClose func() error) *completionBackend {
	clientCfg := openai.DefaultConfig(strings.TrimSpace(cfg.APIKey))
	clientCfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if cfg.HTTPClient != nil {
		clientCfg.HTTPClient = cfg.HTTPClient
	}
	return &completionBackend{
		client:  openai.NewClientWithConfig(clientCfg),
		model:   strings.TrimSpace(cfg.Model),
		onClose: onClose,
	}
}

func (b *completionBackend) Complete(ctx context.Context, prompt string, opts GenerateOptions) (string, error) {
	req := openai.CompletionRequest{
		Model:       b.model,
		Prompt:      prompt,
		MaxTokens:   opts.MaxTokens,
		Temperature: float32(opts.Temperature),
	}
	if len(opts.Stop) > 0 {
		req.Stop = opts.Stop
	}
	resp, err := b.client.CreateCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("create completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("empty completion choices")
	}
	return strings.TrimSpace(resp.Choices[0].Text), nil
}

func (b *completionBackend) Close() error {
	if b.onClose == nil {
		return nil
	}
	return b.onClose()
}
