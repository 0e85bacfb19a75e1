package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/soyeahso/jibby/internal/config"
	"github.com/soyeahso/jibby/internal/domain"
	"github.com/soyeahso/jibby/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func silentLog() *logging.Logger {
	return logging.New(nil, "silent")
}

func ptr(f float64) *float64 { return &f }

func TestDefaultRegistryProviders(t *testing.T) {
	reg := DefaultRegistry(silentLog())
	assert.Equal(t, []string{"anthropic", "custom", "openai"}, reg.List())
}

func TestRegistryBuild(t *testing.T) {
	reg := DefaultRegistry(silentLog())

	c, err := reg.Build(config.AIConfig{Provider: "openai", APIKey: "sk-test"})
	require.NoError(t, err)
	assert.Equal(t, "openai", c.Name())

	c, err = reg.Build(config.AIConfig{Provider: "anthropic", APIKey: "k"})
	require.NoError(t, err)
	assert.Equal(t, "anthropic", c.Name())

	c, err = reg.Build(config.AIConfig{Provider: "custom", BaseURL: "http://localhost:11434/v1"})
	require.NoError(t, err)
	assert.Equal(t, "custom", c.Name())
}

func TestRegistryBuildErrors(t *testing.T) {
	reg := DefaultRegistry(silentLog())

	_, err := reg.Build(config.AIConfig{Provider: "openai"})
	var pe *domain.ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "missing_api_key", pe.Code)

	_, err = reg.Build(config.AIConfig{Provider: "custom"})
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "missing_base_url", pe.Code)

	_, err = reg.Build(config.AIConfig{Provider: "gemini"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `no LLM provider "gemini"`)
}

func TestRegistryRegisterOverrides(t *testing.T) {
	reg := DefaultRegistry(silentLog())
	mock := &MockClient{ProviderName: "openai"}
	reg.Register("openai", func(config.AIConfig) (Client, error) { return mock, nil })

	c, err := reg.Build(config.AIConfig{Provider: "openai"})
	require.NoError(t, err)
	assert.Same(t, mock, c)
}

func TestMockClientRecordsRequests(t *testing.T) {
	mock := &MockClient{}
	resp, err := mock.Complete(context.Background(), CompletionRequest{Model: "m", Messages: []Message{{Role: RoleUser, Content: "hi"}}})
	require.NoError(t, err)
	assert.Equal(t, "mock response", resp.Content)
	assert.Equal(t, "mock", mock.Name())

	reqs := mock.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "hi", reqs[0].Messages[0].Content)
}

func TestMockClientCompleteError(t *testing.T) {
	mock := &MockClient{
		CompleteFunc: func(context.Context, CompletionRequest) (*CompletionResponse, error) {
			return nil, errors.New("rate limited")
		},
	}
	_, err := mock.Complete(context.Background(), CompletionRequest{})
	assert.EqualError(t, err, "rate limited")
}

func TestBuildOpenAIRequest(t *testing.T) {
	req := buildOpenAIRequest(CompletionRequest{
		Model:       "gpt-4",
		System:      "be brief",
		MaxTokens:   50,
		Temperature: ptr(0.25),
		Messages: []Message{
			{Role: RoleUser, Content: "hi", Name: "+1 555-0100"},
			{Role: RoleAssistant, Content: "hello", Name: "jibby-ai"},
		},
	})

	require.Len(t, req.Messages, 3)
	assert.Equal(t, "system", req.Messages[0].Role)
	assert.Equal(t, "be brief", req.Messages[0].Content)
	assert.Equal(t, "_1_555-0100", req.Messages[1].Name)
	assert.Equal(t, "jibby-ai", req.Messages[2].Name)
	assert.Equal(t, 50, req.MaxTokens)
	assert.InDelta(t, 0.25, req.Temperature, 1e-6)
}

func TestParticipantName(t *testing.T) {
	assert.Equal(t, "", participantName(""))
	assert.Equal(t, "alice_example_com", participantName("alice@example.com"))
	long := participantName(string(make([]byte, 100)))
	assert.Len(t, long, 64)
}

func TestOpenAIClientComplete(t *testing.T) {
	var got map[string]any
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id":"chatcmpl-1","object":"chat.completion","model":"gpt-4-0613",
			"choices":[{"index":0,"message":{"role":"assistant","content":"Hi there"},"finish_reason":"stop"}],
			"usage":{"prompt_tokens":12,"completion_tokens":3,"total_tokens":15}
		}`))
	}))
	defer ts.Close()

	c := NewOpenAIClient("openai", "sk-test", ts.URL+"/v1")
	resp, err := c.Complete(context.Background(), CompletionRequest{
		Model:    "gpt-4",
		System:   "sys",
		Messages: []Message{{Role: RoleUser, Content: "hi"}},
	})
	require.NoError(t, err)

	assert.Equal(t, "Hi there", resp.Content)
	assert.Equal(t, "gpt-4-0613", resp.Model)
	assert.Equal(t, 12, resp.Usage.InputTokens)
	assert.Equal(t, 3, resp.Usage.OutputTokens)
	assert.Equal(t, "stop", resp.StopReason)
	assert.Equal(t, "gpt-4", got["model"])
	assert.Len(t, got["messages"], 2)
}

func TestOpenAIClientAPIError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"Incorrect API key","type":"invalid_request_error","code":"invalid_api_key"}}`))
	}))
	defer ts.Close()

	c := NewOpenAIClient("openai", "bad", ts.URL+"/v1")
	_, err := c.Complete(context.Background(), CompletionRequest{Model: "gpt-4"})

	var pe *domain.ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "openai", pe.Provider)
	assert.Equal(t, "invalid_api_key", pe.Code)
	assert.Equal(t, http.StatusUnauthorized, pe.Status)
	assert.Equal(t, "Incorrect API key", pe.Message)
}

func TestAnthropicClientComplete(t *testing.T) {
	var got anthropicRequest
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "k", r.Header.Get("x-api-key"))
		assert.Equal(t, anthropicVersion, r.Header.Get("anthropic-version"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id":"msg_1","model":"claude-sonnet-4-5","stop_reason":"end_turn",
			"content":[{"type":"text","text":"Hello"},{"type":"text","text":" world"}],
			"usage":{"input_tokens":9,"output_tokens":2}
		}`))
	}))
	defer ts.Close()

	c := NewAnthropicClient("k", ts.URL, 0)
	resp, err := c.Complete(context.Background(), CompletionRequest{
		Model:    "claude-sonnet-4-5",
		System:   "sys",
		Messages: []Message{{Role: RoleUser, Content: "hi"}},
	})
	require.NoError(t, err)

	assert.Equal(t, "Hello world", resp.Content)
	assert.Equal(t, 9, resp.Usage.InputTokens)
	assert.Equal(t, "end_turn", resp.StopReason)
	assert.Equal(t, "sys", got.System)
	assert.Equal(t, 1024, got.MaxTokens, "max_tokens is mandatory for this API")
	require.Len(t, got.Messages, 1)
}

func TestAnthropicClientError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"rate_limit_error","message":"slow down"}}`))
	}))
	defer ts.Close()

	_, err := NewAnthropicClient("k", ts.URL, 0).Complete(context.Background(), CompletionRequest{Model: "m"})
	var pe *domain.ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "rate_limit_error", pe.Code)
	assert.Equal(t, http.StatusTooManyRequests, pe.Status)
	assert.Equal(t, "slow down", pe.Message)
}

func TestCompletionRequestJSON(t *testing.T) {
	data, err := json.Marshal(CompletionRequest{Model: "gpt-4", Messages: []Message{{Role: RoleUser, Content: "x"}}})
	require.NoError(t, err)
	assert.NotContains(t, string(data), "temperature")
	assert.NotContains(t, string(data), "system")
}
