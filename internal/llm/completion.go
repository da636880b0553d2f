package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Prompts are a few KB and images are single screenshots; anything larger
// is a caller bug, not something to send to a local model server.
const (
	maxPromptBytes  = 512 << 10
	maxImageBytes   = 8 << 20
	maxPayloadBytes = 16 << 20 // base64 inflates images by a third

	errorBodyLimit = 64 << 10
	logBodyLimit   = 200
)

// ErrRequestTooLarge is returned before anything is sent upstream.
var ErrRequestTooLarge = errors.New("llmclient: request too large")

func (c *client) ChatCompletion(parentCtx context.Context, req *ChatRequest) (*ChatResponse, error) {
	start := time.Now()

	if req == nil {
		return nil, fmt.Errorf("llmclient: request is nil")
	}
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("llmclient: invalid request: %w", err)
	}
	if err := checkSizes(req); err != nil {
		return nil, err
	}

	body, err := encodeRequest(req)
	if err != nil {
		return nil, err
	}

	seedField := zap.Skip()
	if req.Seed != nil {
		seedField = zap.Int64("seed", *req.Seed)
	}
	c.logger.Debug("llm request starting",
		zap.String("model", req.Model),
		zap.Int("payload_bytes", len(body)),
		seedField,
	)

	ctx, cancel := c.requestContext(parentCtx)
	defer cancel()

	resp, err := c.doWithRetry(ctx, body, c.post)
	if err != nil {
		c.logger.Error("llm request failed",
			zap.Error(err),
			zap.Duration("duration", time.Since(start)),
		)
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, c.upstreamError(resp)
	}

	var pResp providerChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&pResp); err != nil {
		return nil, fmt.Errorf("llmclient: decode upstream response: %w", err)
	}
	if len(pResp.Choices) == 0 {
		c.logger.Error("llm provider returned no choices", zap.String("model", req.Model))
		return nil, fmt.Errorf("llmclient: provider returned no choices")
	}

	out := fromProvider(pResp)
	c.logger.Info("llm request completed",
		zap.String("model", out.Model),
		zap.Int("prompt_tokens", out.Usage.PromptTokens),
		zap.Int("completion_tokens", out.Usage.CompletionTokens),
		zap.Duration("duration", time.Since(start)),
	)
	return out, nil
}

func checkSizes(req *ChatRequest) error {
	for i, m := range req.Messages {
		if len(m.Content) > maxPromptBytes {
			return fmt.Errorf("%w: messages[%d] has %d bytes of text, max %d",
				ErrRequestTooLarge, i, len(m.Content), maxPromptBytes)
		}
		for j, img := range m.Images {
			if len(img.Data) > maxImageBytes {
				return fmt.Errorf("%w: messages[%d].images[%d] is %d bytes, max %d",
					ErrRequestTooLarge, i, j, len(img.Data), maxImageBytes)
			}
		}
	}
	return nil
}

func encodeRequest(req *ChatRequest) ([]byte, error) {
	body, err := json.Marshal(providerChatRequest{
		Model:       req.Model,
		Messages:    toProviderMessages(req.Messages),
		Temperature: req.Temperature,
		TopP:        req.TopP,
		MaxTokens:   req.MaxTokens,
		Stop:        req.Stop,
		Seed:        req.Seed,
	})
	if err != nil {
		return nil, fmt.Errorf("llmclient: marshal request: %w", err)
	}
	if len(body) > maxPayloadBytes {
		return nil, fmt.Errorf("%w: payload is %d bytes, max %d", ErrRequestTooLarge, len(body), maxPayloadBytes)
	}
	return body, nil
}

// requestContext applies UpstreamTimeout on top of the caller's deadline.
func (c *client) requestContext(parent context.Context) (context.Context, context.CancelFunc) {
	if c.cfg.UpstreamTimeout > 0 {
		return context.WithTimeout(parent, c.cfg.UpstreamTimeout)
	}
	return context.WithCancel(parent)
}

// post sends one attempt; doWithRetry calls it with a fresh body reader
// each time.
func (c *client) post(ctx context.Context, body []byte) (*http.Response, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("llmclient: build HTTP request: %w", err)
	}
	if c.cfg.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	return c.httpClient.Do(httpReq)
}

func (c *client) upstreamError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyLimit))

	var perr providerErrorResponse
	if err := json.Unmarshal(body, &perr); err == nil && perr.Error.Message != "" {
		c.logger.Error("llm provider error",
			zap.Int("status", resp.StatusCode),
			zap.String("error_type", perr.Error.Type),
			zap.String("error_message", perr.Error.Message),
		)
		return fmt.Errorf("llmclient: upstream %d: %s (%s)", resp.StatusCode, perr.Error.Message, perr.Error.Type)
	}

	// Ollama and vLLM answer some failures with plain text
	snippet := truncate(string(body), logBodyLimit)
	c.logger.Error("llm upstream error",
		zap.Int("status", resp.StatusCode),
		zap.String("body", snippet),
	)
	return fmt.Errorf("llmclient: upstream %d: %s", resp.StatusCode, snippet)
}

func fromProvider(p providerChatResponse) *ChatResponse {
	out := &ChatResponse{
		ID:      p.ID,
		Created: time.Unix(p.Created, 0),
		Model:   p.Model,
		Choices: make([]ChatChoice, 0, len(p.Choices)),
		Usage:   &Usage{},
	}
	for _, ch := range p.Choices {
		out.Choices = append(out.Choices, ChatChoice{
			Index:        ch.Index,
			Message:      ch.Message,
			FinishReason: ch.FinishReason,
		})
	}
	if p.Usage != nil {
		*out.Usage = Usage(*p.Usage)
	}
	return out
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
