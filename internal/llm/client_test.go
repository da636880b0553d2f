package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
)

func TestNewClientValidation(t *testing.T) {
	t.Parallel()

	_, err := NewClient(Config{}, zaptest.NewLogger(t))
	if err == nil {
		t.Fatalf("expected validation error, got nil")
	}

	_, err = NewClient(Config{BaseURL: "localhost:11434"}, zaptest.NewLogger(t))
	if err == nil {
		t.Fatalf("expected scheme validation error, got nil")
	}
}

// rawRequest mirrors the wire body with content left undecoded so tests can
// inspect both the plain and multi-part message forms.
type rawRequest struct {
	Model    string `json:"model"`
	Stream   bool   `json:"stream"`
	Seed     *int64 `json:"seed"`
	Messages []struct {
		Role    string          `json:"role"`
		Content json.RawMessage `json:"content"`
	} `json:"messages"`
}

func completionServer(t *testing.T, reply string, got *rawRequest, auth *string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if r.Method != http.MethodPost {
			t.Errorf("unexpected method: %s", r.Method)
		}
		if auth != nil {
			*auth = r.Header.Get("Authorization")
		}
		body, err := io.ReadAll(r.Body)
		if err != nil {
			t.Errorf("read body: %v", err)
		}
		if got != nil {
			if err := json.Unmarshal(body, got); err != nil {
				t.Errorf("unmarshal request: %v", err)
			}
		}

		resp := providerChatResponse{
			ID:      "chatcmpl-1",
			Object:  "chat.completion",
			Created: time.Unix(1_700_000_000, 0).Unix(),
			Model:   "llama3",
			Choices: []providerChatChoice{{
				Index:        0,
				Message:      ChatMessage{Role: RoleAssistant, Content: reply},
				FinishReason: "stop",
			}},
			Usage: &providerUsage{PromptTokens: 3, CompletionTokens: 2, TotalTokens: 5},
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
}

func TestChatCompletionSuccess(t *testing.T) {
	t.Parallel()

	var gotReq rawRequest
	var gotAuth string
	srv := completionServer(t, "response", &gotReq, &gotAuth)
	defer srv.Close()

	client, err := NewClient(Config{BaseURL: srv.URL, APIKey: "test-key"}, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	defer closeClient(client)

	req := &ChatRequest{
		Model:       "llama3",
		Messages:    []ChatMessage{{Role: RoleUser, Content: "ping"}},
		Temperature: 0.3,
		TopP:        0.9,
		MaxTokens:   50,
	}

	resp, err := client.ChatCompletion(context.Background(), req)
	if err != nil {
		t.Fatalf("ChatCompletion: %v", err)
	}

	if gotAuth != "Bearer test-key" {
		t.Fatalf("unexpected Authorization header: %s", gotAuth)
	}
	if gotReq.Stream {
		t.Fatalf("request should not set stream=true")
	}
	if gotReq.Model != req.Model {
		t.Fatalf("expected model %s, got %s", req.Model, gotReq.Model)
	}
	if len(gotReq.Messages) != 1 || string(gotReq.Messages[0].Content) != `"ping"` {
		t.Fatalf("unexpected request messages: %#v", gotReq.Messages)
	}
	if gotReq.Seed != nil {
		t.Fatalf("seed should be omitted when unset, got %d", *gotReq.Seed)
	}

	if resp == nil || len(resp.Choices) != 1 {
		t.Fatalf("unexpected response: %#v", resp)
	}
	if resp.Choices[0].Message.Content != "response" {
		t.Fatalf("unexpected response message: %#v", resp.Choices[0].Message)
	}
	if resp.Usage == nil || resp.Usage.TotalTokens != 5 {
		t.Fatalf("usage not mapped correctly: %#v", resp.Usage)
	}
}

func TestChatCompletionWithoutAPIKeyOmitsAuthorization(t *testing.T) {
	t.Parallel()

	gotAuth := "unset"
	srv := completionServer(t, "ok", nil, &gotAuth)
	defer srv.Close()

	client, err := NewClient(Config{BaseURL: srv.URL}, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	defer closeClient(client)

	if _, err := client.ChatCompletion(context.Background(), &ChatRequest{
		Model:    "llama3",
		Messages: []ChatMessage{{Role: RoleUser, Content: "hi"}},
	}); err != nil {
		t.Fatalf("ChatCompletion: %v", err)
	}
	if gotAuth != "" {
		t.Fatalf("expected no Authorization header, got %q", gotAuth)
	}
}

func TestChatCompletionValidationError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("server should not be called for invalid request")
	}))
	defer srv.Close()

	client, err := NewClient(Config{BaseURL: srv.URL}, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	defer closeClient(client)

	_, err = client.ChatCompletion(context.Background(), &ChatRequest{})
	if err == nil || !strings.Contains(err.Error(), "invalid request") {
		t.Fatalf("expected validation error, got %v", err)
	}

	_, err = client.ChatCompletion(context.Background(), &ChatRequest{
		Model: "llava",
		Messages: []ChatMessage{{
			Role:    RoleSystem,
			Content: "describe",
			Images:  []Image{{Data: []byte{1}}},
		}},
	})
	if err == nil || !strings.Contains(err.Error(), "only allowed on user messages") {
		t.Fatalf("expected image role error, got %v", err)
	}
}

func TestChatCompletionRejectsOversizedInput(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("server should not be called for oversized request")
	}))
	defer srv.Close()

	client, err := NewClient(Config{BaseURL: srv.URL}, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	defer closeClient(client)

	_, err = client.ChatCompletion(context.Background(), &ChatRequest{
		Model:    "llama3.2",
		Messages: []ChatMessage{{Role: RoleUser, Content: strings.Repeat("a", maxPromptBytes+1)}},
	})
	if !errors.Is(err, ErrRequestTooLarge) {
		t.Fatalf("expected ErrRequestTooLarge for long prompt, got %v", err)
	}

	_, err = client.ChatCompletion(context.Background(), &ChatRequest{
		Model: "llava",
		Messages: []ChatMessage{{
			Role:    RoleUser,
			Content: "describe",
			Images:  []Image{{Data: make([]byte, maxImageBytes+1)}},
		}},
	})
	if !errors.Is(err, ErrRequestTooLarge) {
		t.Fatalf("expected ErrRequestTooLarge for large image, got %v", err)
	}
}

func TestChatCompletionRetriesServerErrors(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "loading model", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(providerChatResponse{
			Choices: []providerChatChoice{{Message: ChatMessage{Role: RoleAssistant, Content: "ready"}}},
		})
	}))
	defer srv.Close()

	client, err := NewClient(Config{BaseURL: srv.URL, BaseBackoff: time.Millisecond}, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	defer closeClient(client)

	resp, err := client.ChatCompletion(context.Background(), &ChatRequest{
		Model:    "llama3",
		Messages: []ChatMessage{{Role: RoleUser, Content: "hi"}},
	})
	if err != nil {
		t.Fatalf("ChatCompletion: %v", err)
	}
	if resp.Choices[0].Message.Content != "ready" {
		t.Fatalf("unexpected content %q", resp.Choices[0].Message.Content)
	}
	if calls.Load() != 2 {
		t.Fatalf("expected 2 upstream calls, got %d", calls.Load())
	}
}

func TestChatCompletionClientErrorIsNotRetried(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"error":{"message":"model not found","type":"invalid_request_error"}}`)
	}))
	defer srv.Close()

	client, err := NewClient(Config{BaseURL: srv.URL, BaseBackoff: time.Millisecond}, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	defer closeClient(client)

	_, err = client.ChatCompletion(context.Background(), &ChatRequest{
		Model:    "missing",
		Messages: []ChatMessage{{Role: RoleUser, Content: "hi"}},
	})
	if err == nil || !strings.Contains(err.Error(), "model not found") {
		t.Fatalf("expected provider error, got %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("expected a single upstream call, got %d", calls.Load())
	}
}

func TestGeneratorForwardsSeedAndTemperature(t *testing.T) {
	t.Parallel()

	var gotReq rawRequest
	srv := completionServer(t, "  {\"ok\": true}\n", &gotReq, nil)
	defer srv.Close()

	client, err := NewClient(Config{BaseURL: srv.URL}, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	defer closeClient(client)

	gen := NewGenerator(client, "llama3")
	text, err := gen.GenerateText(context.Background(), "write json", 42, 0.7)
	if err != nil {
		t.Fatalf("GenerateText: %v", err)
	}
	if text != `{"ok": true}` {
		t.Fatalf("expected trimmed completion, got %q", text)
	}
	if gotReq.Seed == nil || *gotReq.Seed != 42 {
		t.Fatalf("seed not forwarded: %v", gotReq.Seed)
	}
}

func TestGeneratorAnalyzeImageSendsContentParts(t *testing.T) {
	t.Parallel()

	var gotReq rawRequest
	srv := completionServer(t, "a cave", &gotReq, nil)
	defer srv.Close()

	client, err := NewClient(Config{BaseURL: srv.URL}, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	defer closeClient(client)

	gen := NewGenerator(client, "llama3", WithVisionModel("llava"))
	png := []byte("\x89PNG\r\n\x1a\n0000")
	if _, err := gen.AnalyzeImage(context.Background(), png, "describe"); err != nil {
		t.Fatalf("AnalyzeImage: %v", err)
	}

	if gotReq.Model != "llava" {
		t.Fatalf("expected vision model, got %s", gotReq.Model)
	}
	var parts []providerContentPart
	if err := json.Unmarshal(gotReq.Messages[0].Content, &parts); err != nil {
		t.Fatalf("content should be a list of parts: %v", err)
	}
	if len(parts) != 2 || parts[0].Type != "text" || parts[0].Text != "describe" {
		t.Fatalf("unexpected text part: %#v", parts)
	}
	if parts[1].ImageURL == nil || !strings.HasPrefix(parts[1].ImageURL.URL, "data:image/png;base64,") {
		t.Fatalf("unexpected image part: %#v", parts[1])
	}
}

func TestGeneratorEmptyCompletion(t *testing.T) {
	t.Parallel()

	srv := completionServer(t, "   ", nil, nil)
	defer srv.Close()

	client, err := NewClient(Config{BaseURL: srv.URL}, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	defer closeClient(client)

	_, err = NewGenerator(client, "llama3").GenerateText(context.Background(), "p", 1, 0.7)
	if !errors.Is(err, ErrEmptyCompletion) {
		t.Fatalf("expected ErrEmptyCompletion, got %v", err)
	}
}

func TestComputeBackoffBounds(t *testing.T) {
	t.Parallel()

	for attempt := 0; attempt < 20; attempt++ {
		d := computeBackoff(100*time.Millisecond, attempt)
		if d < 0 || d > maxBackoff {
			t.Fatalf("attempt %d: backoff %v out of range", attempt, d)
		}
	}
}

func closeClient(c Client) {
	if closer, ok := c.(interface{ Close() error }); ok {
		_ = closer.Close()
	}
}
