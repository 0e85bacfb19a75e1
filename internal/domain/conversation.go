package domain

import (
	"maps"
	"slices"
	"sync"
	"time"
)

// Conversation is the authoritative log of messages sharing a conversation id.
// Fields are guarded by the embedded mutex; callers outside the conversation
// package should work with ConversationHistory snapshots instead.
type Conversation struct {
	mu sync.Mutex

	ID           string
	Messages     []Message
	Participants map[string]struct{}
	CreatedAt    time.Time
	UpdatedAt    time.Time
	Metadata     map[string]any
}

// NewConversation returns an empty conversation stamped with the current time.
func NewConversation(id string) *Conversation {
	now := time.Now()
	return &Conversation{
		ID:           id,
		Participants: make(map[string]struct{}),
		CreatedAt:    now,
		UpdatedAt:    now,
		Metadata:     make(map[string]any),
	}
}

// Lock acquires the per-conversation lock.
func (c *Conversation) Lock() { c.mu.Lock() }

// Unlock releases the per-conversation lock.
func (c *Conversation) Unlock() { c.mu.Unlock() }

// AppendLocked appends msg. The caller must hold the lock.
func (c *Conversation) AppendLocked(msg Message) {
	c.Messages = append(c.Messages, msg)
	if msg.Sender != "" {
		c.Participants[msg.Sender] = struct{}{}
	}
	if msg.Recipient != "" {
		c.Participants[msg.Recipient] = struct{}{}
	}
	c.UpdatedAt = time.Now()
}

// SnapshotLocked copies the conversation. The caller must hold the lock.
func (c *Conversation) SnapshotLocked() ConversationHistory {
	participants := make([]string, 0, len(c.Participants))
	for p := range c.Participants {
		participants = append(participants, p)
	}
	slices.Sort(participants)

	return ConversationHistory{
		ID:           c.ID,
		Messages:     slices.Clone(c.Messages),
		Participants: participants,
		Metadata:     maps.Clone(c.Metadata),
		CreatedAt:    c.CreatedAt,
		UpdatedAt:    c.UpdatedAt,
	}
}

// ConversationHistory is a read-only copy of a conversation.
type ConversationHistory struct {
	ID           string         `json:"id"`
	Messages     []Message      `json:"messages"`
	Participants []string       `json:"participants"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	CreatedAt    time.Time      `json:"createdAt"`
	UpdatedAt    time.Time      `json:"updatedAt"`
}
