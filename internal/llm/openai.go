package llm

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/soyeahso/jibby/internal/domain"
)

// OpenAIClient talks to the OpenAI chat completions API, or to any
// OpenAI-compatible endpoint when a base URL is given.
type OpenAIClient struct {
	name   string
	client *openai.Client
}

// NewOpenAIClient creates a client. An empty baseURL targets api.openai.com.
func NewOpenAIClient(name, apiKey, baseURL string) *OpenAIClient {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimRight(baseURL, "/")
	}
	return &OpenAIClient{name: name, client: openai.NewClientWithConfig(cfg)}
}

// Name returns the provider name.
func (c *OpenAIClient) Name() string { return c.name }

// Complete sends a chat completion request.
func (c *OpenAIClient) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	start := time.Now()

	resp, err := c.client.CreateChatCompletion(ctx, buildOpenAIRequest(req))
	if err != nil {
		return nil, c.wrapError(err)
	}
	if len(resp.Choices) == 0 {
		return nil, &domain.ProviderError{Provider: c.name, Code: "empty_choices", Message: "completion returned no choices"}
	}

	choice := resp.Choices[0]
	return &CompletionResponse{
		Content:    choice.Message.Content,
		StopReason: string(choice.FinishReason),
		Usage: Usage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
		},
		Model:    resp.Model,
		Duration: time.Since(start),
	}, nil
}

func buildOpenAIRequest(req CompletionRequest) openai.ChatCompletionRequest {
	msgs := make([]openai.ChatCompletionMessage, 0, len(req.Messages)+1)
	if req.System != "" {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: req.System})
	}
	for _, m := range req.Messages {
		msgs = append(msgs, openai.ChatCompletionMessage{
			Role:    m.Role,
			Content: m.Content,
			Name:    participantName(m.Name),
		})
	}

	out := openai.ChatCompletionRequest{
		Model:     req.Model,
		Messages:  msgs,
		MaxTokens: req.MaxTokens,
	}
	if req.Temperature != nil {
		out.Temperature = float32(*req.Temperature)
	}
	return out
}

var invalidNameChars = regexp.MustCompile(`[^a-zA-Z0-9_-]`)

// participantName maps a sender id onto the character set the API accepts
// for the optional name field.
func participantName(s string) string {
	if s == "" {
		return ""
	}
	s = invalidNameChars.ReplaceAllString(s, "_")
	if len(s) > 64 {
		s = s[:64]
	}
	return s
}

func (c *OpenAIClient) wrapError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		code := ""
		if apiErr.Code != nil {
			code = fmt.Sprint(apiErr.Code)
		}
		return &domain.ProviderError{
			Provider: c.name,
			Code:     code,
			Status:   apiErr.HTTPStatusCode,
			Message:  apiErr.Message,
			Err:      err,
		}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return &domain.ProviderError{Provider: c.name, Status: reqErr.HTTPStatusCode, Err: err}
	}
	return &domain.ProviderError{Provider: c.name, Err: err}
}
