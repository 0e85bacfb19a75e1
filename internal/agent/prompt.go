package agent

import (
	"github.com/soyeahso/jibby/internal/config"
	"github.com/soyeahso/jibby/internal/domain"
	"github.com/soyeahso/jibby/internal/llm"
)

// window returns the last n messages of history.
func window(history []domain.Message, n int) []domain.Message {
	if n <= 0 || len(history) <= n {
		return history
	}
	return history[len(history)-n:]
}

// BuildRequest assembles the completion request for msg: the configured
// system prompt, the last ContextWindow messages of history and msg itself.
// Messages sent by the AI identity are replayed as assistant turns.
func BuildRequest(cfg config.AIConfig, history []domain.Message, msg domain.Message) llm.CompletionRequest {
	recent := window(history, cfg.ContextWindow)

	msgs := make([]llm.Message, 0, len(recent)+1)
	for _, m := range recent {
		role := llm.RoleUser
		if m.Sender == cfg.Identity {
			role = llm.RoleAssistant
		}
		msgs = append(msgs, llm.Message{Role: role, Content: m.Content, Name: m.Sender})
	}
	msgs = append(msgs, llm.Message{Role: llm.RoleUser, Content: msg.Content, Name: msg.Sender})

	return llm.CompletionRequest{
		Model:       cfg.Model,
		System:      cfg.SystemPrompt,
		Messages:    msgs,
		MaxTokens:   cfg.MaxTokens,
		Temperature: cfg.Temperature,
	}
}
