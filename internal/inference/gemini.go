package inference

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

const DefaultGeminiModel = "gemini-1.5-flash"

type GeminiConfig struct {
	APIKey string
	Model  string
}

type GeminiLoader struct {
	cfg GeminiConfig
}

func NewGeminiLoader(cfg GeminiConfig) (*GeminiLoader, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	if strings.TrimSpace(cfg.Model) == "" {
		cfg.Model = DefaultGeminiModel
	}
	return &GeminiLoader{cfg: cfg}, nil
}

func (l *GeminiLoader) Load(ctx context.Context, _ ModelSpec) (Backend, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(strings.TrimSpace(l.cfg.APIKey)))
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &geminiBackend{client: client, model: strings.TrimSpace(l.cfg.Model)}, nil
}

type geminiBackend struct {
	client *genai.Client
	model  string
}

func (b *geminiBackend) Complete(ctx context.Context, prompt string, opts GenerateOptions) (string, error) {
	model := b.client.GenerativeModel(b.model)
	model.SetTemperature(float32(opts.Temperature))
	model.SetMaxOutputTokens(int32(opts.MaxTokens))
	if len(opts.Stop) > 0 {
		model.StopSequences = opts.Stop
	}

	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}
	return geminiText(resp), nil
}

func (b *geminiBackend) Close() error {
	return b.client.Close()
}

func geminiText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			b.WriteString(string(text))
		}
	}
	return strings.TrimSpace(b.String())
}
