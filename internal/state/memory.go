package state

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryStore is the default, process-local Store. State does not survive
// a restart and abandoned conversations are not reaped; operators wanting
// expiry use the Redis backend.
type MemoryStore struct {
	mu      sync.Mutex
	byChat  map[int64]Conversation
	byBuyer map[int64]map[int64]struct{}
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byChat:  make(map[int64]Conversation),
		byBuyer: make(map[int64]map[int64]struct{}),
	}
}

// Bind inserts a new conversation.
func (s *MemoryStore) Bind(_ context.Context, conv *Conversation) error {
	if conv == nil || conv.ChatID == 0 {
		return fmt.Errorf("state: conversation with chat id required")
	}
	if conv.CreatedAt.IsZero() {
		conv.CreatedAt = time.Now().UTC()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byChat[conv.ChatID]; exists {
		return fmt.Errorf("state: chat %d already bound", conv.ChatID)
	}
	s.byChat[conv.ChatID] = *conv
	chats := s.byBuyer[conv.BuyerID]
	if chats == nil {
		chats = make(map[int64]struct{})
		s.byBuyer[conv.BuyerID] = chats
	}
	chats[conv.ChatID] = struct{}{}
	return nil
}

// Lookup resolves by chat id, falling back to an unambiguous buyer match.
func (s *MemoryStore) Lookup(_ context.Context, chatID, buyerID int64) (*Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if conv, ok := s.byChat[chatID]; ok {
		c := conv
		return &c, nil
	}
	chats := s.byBuyer[buyerID]
	if len(chats) != 1 {
		return nil, nil
	}
	for id := range chats {
		conv := s.byChat[id]
		c := conv
		return &c, nil
	}
	return nil, nil
}

// Save overwrites a bound conversation's mutable fields.
func (s *MemoryStore) Save(_ context.Context, conv *Conversation) error {
	if conv == nil || conv.ChatID == 0 {
		return fmt.Errorf("state: conversation with chat id required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byChat[conv.ChatID]; !exists {
		return fmt.Errorf("state: chat %d not bound", conv.ChatID)
	}
	s.byChat[conv.ChatID] = *conv
	return nil
}

// Release removes the conversation and prunes the buyer index.
func (s *MemoryStore) Release(_ context.Context, chatID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.byChat[chatID]
	if !ok {
		return nil
	}
	delete(s.byChat, chatID)
	if chats := s.byBuyer[conv.BuyerID]; chats != nil {
		delete(chats, chatID)
		if len(chats) == 0 {
			delete(s.byBuyer, conv.BuyerID)
		}
	}
	return nil
}

// Open returns copies of all open conversations.
func (s *MemoryStore) Open(_ context.Context) ([]*Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Conversation, 0, len(s.byChat))
	for _, conv := range s.byChat {
		c := conv
		out = append(out, &c)
	}
	return out, nil
}
