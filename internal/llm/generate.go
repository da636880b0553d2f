package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrEmptyCompletion is returned when the model answers with no text.
var ErrEmptyCompletion = errors.New("llmclient: empty completion")

const (
	defaultMaxTokens       = 1024
	defaultVisionMaxTokens = 512
)

// Generator adapts a chat Client to single-prompt text generation and
// image analysis.
type Generator struct {
	client      Client
	model       string
	visionModel string
	maxTokens   int
}

type GeneratorOption func(*Generator)

// WithVisionModel routes AnalyzeImage to a different model name.
func WithVisionModel(model string) GeneratorOption {
	return func(g *Generator) { g.visionModel = model }
}

func WithMaxTokens(n int) GeneratorOption {
	return func(g *Generator) {
		if n > 0 {
			g.maxTokens = n
		}
	}
}

func NewGenerator(client Client, model string, opts ...GeneratorOption) *Generator {
	g := &Generator{
		client:      client,
		model:       model,
		visionModel: model,
		maxTokens:   defaultMaxTokens,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// GenerateText sends prompt as one user turn and returns the first choice.
func (g *Generator) GenerateText(ctx context.Context, prompt string, seed int64, temperature float32) (string, error) {
	resp, err := g.client.ChatCompletion(ctx, &ChatRequest{
		Model:       g.model,
		Messages:    []ChatMessage{{Role: RoleUser, Content: prompt}},
		Temperature: temperature,
		MaxTokens:   g.maxTokens,
		Seed:        &seed,
	})
	if err != nil {
		return "", err
	}
	return firstContent(resp)
}

// AnalyzeImage asks the vision model about image. Sampling is left at the
// backend default so a rejected answer is not simply repeated on retry.
func (g *Generator) AnalyzeImage(ctx context.Context, image []byte, prompt string) (string, error) {
	resp, err := g.client.ChatCompletion(ctx, &ChatRequest{
		Model: g.visionModel,
		Messages: []ChatMessage{{
			Role:    RoleUser,
			Content: prompt,
			Images:  []Image{{Data: image}},
		}},
		MaxTokens: defaultVisionMaxTokens,
	})
	if err != nil {
		return "", err
	}
	return firstContent(resp)
}

func firstContent(resp *ChatResponse) (string, error) {
	if resp == nil || len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices", ErrEmptyCompletion)
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", ErrEmptyCompletion
	}
	return text, nil
}
