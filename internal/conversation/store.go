// Package conversation holds the authoritative in-process record of
// conversations.
package conversation

import (
	"slices"
	"sort"
	"sync"

	"github.com/soyeahso/jibby/internal/domain"
	"github.com/soyeahso/jibby/internal/logging"
)

// Store maps conversation ids to their message logs. The map is guarded by a
// store-wide lock; each conversation's log is guarded by its own lock so that
// long-running work on one conversation does not block the others.
type Store struct {
	mu    sync.RWMutex
	convs map[string]*domain.Conversation
	log   *logging.Logger
}

// NewStore creates an empty store.
func NewStore(log *logging.Logger) *Store {
	return &Store{
		convs: make(map[string]*domain.Conversation),
		log:   log.Sub("conversation"),
	}
}

// GetOrCreate returns the conversation for id, creating an empty one on first
// use. Repeated calls return the same pointer.
func (s *Store) GetOrCreate(id string) *domain.Conversation {
	s.mu.RLock()
	c, ok := s.convs[id]
	s.mu.RUnlock()
	if ok {
		return c
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.convs[id]; ok {
		return c
	}
	c = domain.NewConversation(id)
	s.convs[id] = c
	s.log.Debug().Str("conversation", id).Msg("conversation created")
	return c
}

func (s *Store) get(id string) (*domain.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.convs[id]
	if !ok {
		return nil, &domain.ConversationNotFoundError{ID: id}
	}
	return c, nil
}

// Append adds msg to the end of the conversation's log. The conversation must
// already exist.
func (s *Store) Append(id string, msg domain.Message) error {
	c, err := s.get(id)
	if err != nil {
		return err
	}
	c.Lock()
	c.AppendLocked(msg)
	c.Unlock()
	return nil
}

// History returns a snapshot of the conversation.
func (s *Store) History(id string) (domain.ConversationHistory, error) {
	c, err := s.get(id)
	if err != nil {
		return domain.ConversationHistory{}, err
	}
	c.Lock()
	defer c.Unlock()
	return c.SnapshotLocked(), nil
}

// Messages returns a copy of the conversation's log, or nil if id is unknown.
func (s *Store) Messages(id string) []domain.Message {
	c, err := s.get(id)
	if err != nil {
		return nil
	}
	c.Lock()
	defer c.Unlock()
	return slices.Clone(c.Messages)
}

// Lock acquires the per-conversation lock for id, creating the conversation if
// needed, and returns the function that releases it. Use it to make a
// read-then-append sequence atomic with respect to other writers.
func (s *Store) Lock(id string) (unlock func()) {
	c := s.GetOrCreate(id)
	c.Lock()
	return c.Unlock
}

// List returns all conversation ids in sorted order.
func (s *Store) List() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.convs))
	for id := range s.convs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Len returns the number of conversations.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.convs)
}
