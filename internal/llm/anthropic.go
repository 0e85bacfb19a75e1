package llm

import (
	"context"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/soyeahso/jibby/internal/domain"
	"github.com/soyeahso/jibby/internal/version"
)

const (
	anthropicBaseURL = "https://api.anthropic.com"
	anthropicVersion = "2023-06-01"
)

// AnthropicClient is a direct HTTP client for the Anthropic Messages API.
type AnthropicClient struct {
	http *resty.Client
}

// NewAnthropicClient creates a client. An empty baseURL targets the public API.
func NewAnthropicClient(apiKey, baseURL string, timeout time.Duration) *AnthropicClient {
	if baseURL == "" {
		baseURL = anthropicBaseURL
	}
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &AnthropicClient{
		http: resty.New().
			SetBaseURL(strings.TrimRight(baseURL, "/")).
			SetTimeout(timeout).
			SetHeader("x-api-key", apiKey).
			SetHeader("anthropic-version", anthropicVersion).
			SetHeader("User-Agent", version.UserAgent()),
	}
}

// Name returns the provider name.
func (c *AnthropicClient) Name() string { return "anthropic" }

// Complete sends a non-streaming completion request.
func (c *AnthropicClient) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	start := time.Now()

	var result anthropicResponse
	var apiErr anthropicErrorBody
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(buildAnthropicRequest(req)).
		SetResult(&result).
		SetError(&apiErr).
		Post("/v1/messages")
	if err != nil {
		return nil, &domain.ProviderError{Provider: c.Name(), Err: err}
	}
	if resp.IsError() {
		msg := apiErr.Error.Message
		if msg == "" {
			msg = resp.String()
		}
		return nil, &domain.ProviderError{
			Provider: c.Name(),
			Code:     apiErr.Error.Type,
			Status:   resp.StatusCode(),
			Message:  msg,
		}
	}

	var content strings.Builder
	for _, block := range result.Content {
		if block.Type == "text" {
			content.WriteString(block.Text)
		}
	}

	return &CompletionResponse{
		Content:    content.String(),
		StopReason: result.StopReason,
		Usage: Usage{
			InputTokens:  result.Usage.InputTokens,
			OutputTokens: result.Usage.OutputTokens,
		},
		Model:    result.Model,
		Duration: time.Since(start),
	}, nil
}

func buildAnthropicRequest(req CompletionRequest) anthropicRequest {
	msgs := make([]anthropicMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		if m.Role == RoleSystem {
			continue
		}
		msgs = append(msgs, anthropicMessage{Role: m.Role, Content: m.Content})
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	return anthropicRequest{
		Model:       req.Model,
		System:      req.System,
		Messages:    msgs,
		MaxTokens:   maxTokens,
		Temperature: req.Temperature,
	}
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	System      string             `json:"system,omitempty"`
	Messages    []anthropicMessage `json:"messages"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature *float64           `json:"temperature,omitempty"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicResponse struct {
	ID         string `json:"id"`
	Model      string `json:"model"`
	StopReason string `json:"stop_reason"`
	Content    []struct {
		Type string `json:"type"`
		Text string `json:"text,omitempty"`
	} `json:"content"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

type anthropicErrorBody struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}
