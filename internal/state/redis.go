package state

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	chatKeyPrefix  = "conv:chat:"
	buyerKeyPrefix = "conv:buyer:"
	openSetKey     = "conv:open"
)

// RedisStore implements Store on Redis. With a non-zero TTL, abandoned
// conversations expire instead of leaking until restart; this is a
// deliberate extension over the in-memory behavior.
type RedisStore struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisStore creates a Redis-backed store. ttl <= 0 disables expiry.
func NewRedisStore(rdb *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{rdb: rdb, ttl: ttl}
}

func chatKey(chatID int64) string {
	return chatKeyPrefix + strconv.FormatInt(chatID, 10)
}

func buyerKey(buyerID int64) string {
	return buyerKeyPrefix + strconv.FormatInt(buyerID, 10)
}

// Bind inserts a new conversation and indexes it under its buyer.
func (s *RedisStore) Bind(ctx context.Context, conv *Conversation) error {
	if conv == nil || conv.ChatID == 0 {
		return fmt.Errorf("state: conversation with chat id required")
	}
	if conv.CreatedAt.IsZero() {
		conv.CreatedAt = time.Now().UTC()
	}
	data, err := json.Marshal(conv)
	if err != nil {
		return fmt.Errorf("state: marshal: %w", err)
	}
	ok, err := s.rdb.SetNX(ctx, chatKey(conv.ChatID), data, s.expiry()).Result()
	if err != nil {
		return fmt.Errorf("state: bind: %w", err)
	}
	if !ok {
		return fmt.Errorf("state: chat %d already bound", conv.ChatID)
	}
	pipe := s.rdb.TxPipeline()
	pipe.SAdd(ctx, buyerKey(conv.BuyerID), conv.ChatID)
	pipe.SAdd(ctx, openSetKey, conv.ChatID)
	if s.ttl > 0 {
		pipe.Expire(ctx, buyerKey(conv.BuyerID), s.ttl)
	}
	_, err = pipe.Exec(ctx)
	return err
}

// Lookup resolves by chat id, falling back to an unambiguous buyer match.
func (s *RedisStore) Lookup(ctx context.Context, chatID, buyerID int64) (*Conversation, error) {
	conv, err := s.get(ctx, chatID)
	if err != nil || conv != nil {
		return conv, err
	}
	chats, err := s.rdb.SMembers(ctx, buyerKey(buyerID)).Result()
	if err != nil {
		return nil, fmt.Errorf("state: buyer index: %w", err)
	}
	// Expired conversations may linger in the index; resolve what is
	// actually still live before deciding ambiguity.
	var live []*Conversation
	for _, raw := range chats {
		id, convErr := strconv.ParseInt(raw, 10, 64)
		if convErr != nil {
			continue
		}
		c, getErr := s.get(ctx, id)
		if getErr != nil {
			return nil, getErr
		}
		if c == nil {
			s.rdb.SRem(ctx, buyerKey(buyerID), id)
			s.rdb.SRem(ctx, openSetKey, id)
			continue
		}
		live = append(live, c)
	}
	if len(live) != 1 {
		return nil, nil
	}
	return live[0], nil
}

// Save persists mutable fields of an already-bound conversation.
func (s *RedisStore) Save(ctx context.Context, conv *Conversation) error {
	if conv == nil || conv.ChatID == 0 {
		return fmt.Errorf("state: conversation with chat id required")
	}
	data, err := json.Marshal(conv)
	if err != nil {
		return fmt.Errorf("state: marshal: %w", err)
	}
	ok, err := s.rdb.SetXX(ctx, chatKey(conv.ChatID), data, s.expiry()).Result()
	if err != nil {
		return fmt.Errorf("state: save: %w", err)
	}
	if !ok {
		return fmt.Errorf("state: chat %d not bound", conv.ChatID)
	}
	return nil
}

// Release removes the conversation and prunes the buyer index.
func (s *RedisStore) Release(ctx context.Context, chatID int64) error {
	conv, err := s.get(ctx, chatID)
	if err != nil {
		return err
	}
	pipe := s.rdb.TxPipeline()
	pipe.Del(ctx, chatKey(chatID))
	pipe.SRem(ctx, openSetKey, chatID)
	if conv != nil {
		pipe.SRem(ctx, buyerKey(conv.BuyerID), chatID)
	}
	_, err = pipe.Exec(ctx)
	return err
}

// Open returns all still-live conversations.
func (s *RedisStore) Open(ctx context.Context) ([]*Conversation, error) {
	ids, err := s.rdb.SMembers(ctx, openSetKey).Result()
	if err != nil {
		return nil, fmt.Errorf("state: open set: %w", err)
	}
	out := make([]*Conversation, 0, len(ids))
	for _, raw := range ids {
		id, convErr := strconv.ParseInt(raw, 10, 64)
		if convErr != nil {
			continue
		}
		conv, getErr := s.get(ctx, id)
		if getErr != nil {
			return nil, getErr
		}
		if conv == nil {
			s.rdb.SRem(ctx, openSetKey, id)
			continue
		}
		out = append(out, conv)
	}
	return out, nil
}

func (s *RedisStore) get(ctx context.Context, chatID int64) (*Conversation, error) {
	data, err := s.rdb.Get(ctx, chatKey(chatID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("state: get: %w", err)
	}
	var conv Conversation
	if err := json.Unmarshal(data, &conv); err != nil {
		return nil, fmt.Errorf("state: unmarshal: %w", err)
	}
	return &conv, nil
}

func (s *RedisStore) expiry() time.Duration {
	if s.ttl > 0 {
		return s.ttl
	}
	return 0
}
