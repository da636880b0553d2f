package llm

import (
	"encoding/base64"
	"net/http"
)

// Request shape we send to upstream (OpenAI-style).
type providerChatRequest struct {
	Model       string            `json:"model"`
	Messages    []providerMessage `json:"messages"`
	Temperature float32           `json:"temperature,omitempty"`
	TopP        float32           `json:"top_p,omitempty"`
	MaxTokens   int               `json:"max_tokens,omitempty"`
	Stop        []string          `json:"stop,omitempty"`
	Seed        *int64            `json:"seed,omitempty"`
	Stream      bool              `json:"stream"`
}

// providerMessage carries either a plain string or, when images are
// attached, a list of content parts.
type providerMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type providerContentPart struct {
	Type     string            `json:"type"`
	Text     string            `json:"text,omitempty"`
	ImageURL *providerImageURL `json:"image_url,omitempty"`
}

type providerImageURL struct {
	URL string `json:"url"`
}

func toProviderMessages(msgs []ChatMessage) []providerMessage {
	out := make([]providerMessage, 0, len(msgs))
	for _, m := range msgs {
		if len(m.Images) == 0 {
			out = append(out, providerMessage{Role: m.Role, Content: m.Content})
			continue
		}

		parts := make([]providerContentPart, 0, len(m.Images)+1)
		parts = append(parts, providerContentPart{Type: "text", Text: m.Content})
		for _, img := range m.Images {
			parts = append(parts, providerContentPart{
				Type:     "image_url",
				ImageURL: &providerImageURL{URL: dataURL(img)},
			})
		}
		out = append(out, providerMessage{Role: m.Role, Content: parts})
	}
	return out
}

func dataURL(img Image) string {
	ct := img.ContentType
	if ct == "" {
		ct = http.DetectContentType(img.Data)
	}
	return "data:" + ct + ";base64," + base64.StdEncoding.EncodeToString(img.Data)
}

// Choice for non-streaming responses.
type providerChatChoice struct {
	Index        int         `json:"index"`
	Message      ChatMessage `json:"message"`
	FinishReason string      `json:"finish_reason,omitempty"`
}

type providerUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type providerChatResponse struct {
	ID      string               `json:"id"`
	Object  string               `json:"object"`
	Created int64                `json:"created"`
	Model   string               `json:"model"`
	Choices []providerChatChoice `json:"choices"`
	Usage   *providerUsage       `json:"usage,omitempty"`
}

type providerErrorResponse struct {
	Error struct {
		Message string      `json:"message"`
		Type    string      `json:"type"`
		Code    interface{} `json:"code"`
	} `json:"error"`
}
