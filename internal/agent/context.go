package agent

import (
	"sort"
	"sync"
	"time"

	"github.com/soyeahso/jibby/internal/domain"
)

// TokenUsage accumulates token counts across exchanges.
type TokenUsage struct {
	InputTokens  int `json:"inputTokens"`
	OutputTokens int `json:"outputTokens"`
}

// ConversationContext is the responder's cached view of one conversation.
type ConversationContext struct {
	ConversationID string           `json:"conversationId"`
	History        []domain.Message `json:"history"`
	Usage          TokenUsage       `json:"usage"`
	Exchanges      int              `json:"exchanges"`
	CreatedAt      time.Time        `json:"createdAt"`
	UpdatedAt      time.Time        `json:"updatedAt"`
}

func (c *ConversationContext) clone() ConversationContext {
	out := *c
	out.History = append([]domain.Message(nil), c.History...)
	return out
}

// contextCache holds per-conversation contexts keyed by conversation id.
type contextCache struct {
	mu   sync.Mutex
	byID map[string]*ConversationContext
}

func newContextCache() *contextCache {
	return &contextCache{byID: make(map[string]*ConversationContext)}
}

func (c *contextCache) getOrCreateLocked(id string) *ConversationContext {
	cc, ok := c.byID[id]
	if !ok {
		now := time.Now()
		cc = &ConversationContext{ConversationID: id, CreatedAt: now, UpdatedAt: now}
		c.byID[id] = cc
	}
	return cc
}

// history replaces the cached history with supplied when it is non-nil and
// returns the history to prompt with.
func (c *contextCache) history(id string, supplied []domain.Message, n int) []domain.Message {
	c.mu.Lock()
	defer c.mu.Unlock()

	cc := c.getOrCreateLocked(id)
	if supplied != nil {
		cc.History = append([]domain.Message(nil), window(supplied, n)...)
		cc.UpdatedAt = time.Now()
	}
	return append([]domain.Message(nil), cc.History...)
}

// record appends a completed exchange and trims the history to n messages.
func (c *contextCache) record(id string, in, out domain.Message, usage TokenUsage, n int) ConversationContext {
	c.mu.Lock()
	defer c.mu.Unlock()

	cc := c.getOrCreateLocked(id)
	cc.History = append(cc.History, in, out)
	if n > 0 && len(cc.History) > n {
		cc.History = append([]domain.Message(nil), cc.History[len(cc.History)-n:]...)
	}
	cc.Usage.InputTokens += usage.InputTokens
	cc.Usage.OutputTokens += usage.OutputTokens
	cc.Exchanges++
	cc.UpdatedAt = time.Now()
	return cc.clone()
}

func (c *contextCache) get(id string) (ConversationContext, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cc, ok := c.byID[id]
	if !ok {
		return ConversationContext{}, false
	}
	return cc.clone(), true
}

func (c *contextCache) remove(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.byID[id]
	delete(c.byID, id)
	return ok
}

func (c *contextCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.byID)
}

func (c *contextCache) ids() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.byID))
	for id := range c.byID {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
