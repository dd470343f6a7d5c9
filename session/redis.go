package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	backend "github.com/redis/go-redis/v9"
)

// RedisStore implements Store on Redis. Records are stored as JSON under
// <prefix><id>; a per-conversation set indexes session ids for listing.
type RedisStore struct {
	client *backend.Client
	prefix string
	ttl    time.Duration
}

type RedisOption func(*RedisStore)

// WithTTL sets an expiration for session records. Zero means no expiration.
func WithTTL(ttl time.Duration) RedisOption {
	return func(s *RedisStore) {
		s.ttl = ttl
	}
}

// WithPrefix overrides the key prefix.
func WithPrefix(prefix string) RedisOption {
	return func(s *RedisStore) {
		s.prefix = prefix
	}
}

// NewRedisStore dials Redis and returns a store.
func NewRedisStore(addr, password string, db int, opts ...RedisOption) *RedisStore {
	client := backend.NewClient(&backend.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return NewRedisStoreFromClient(client, opts...)
}

// NewRedisStoreFromClient wraps an existing client.
func NewRedisStoreFromClient(client *backend.Client, opts ...RedisOption) *RedisStore {
	store := &RedisStore{
		client: client,
		prefix: "chatflow:session:",
	}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

func (s *RedisStore) key(id string) string {
	return s.prefix + id
}

func (s *RedisStore) convKey(conversationID string) string {
	return s.prefix + "conv:" + conversationID
}

func (s *RedisStore) save(ctx context.Context, sess *Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	pipe := s.client.Pipeline()
	pipe.Set(ctx, s.key(sess.ID), data, s.ttl)
	if sess.ConversationID != "" {
		pipe.SAdd(ctx, s.convKey(sess.ConversationID), sess.ID)
		if s.ttl > 0 {
			pipe.Expire(ctx, s.convKey(sess.ConversationID), s.ttl)
		}
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save session to redis: %w", err)
	}
	return nil
}

func (s *RedisStore) Create(ctx context.Context, sess *Session) error {
	return s.save(ctx, sess)
}

func (s *RedisStore) Get(ctx context.Context, id string) (*Session, error) {
	val, err := s.client.Get(ctx, s.key(id)).Result()
	if err != nil {
		if err == backend.Nil {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read session from redis: %w", err)
	}
	var sess Session
	if err := json.Unmarshal([]byte(val), &sess); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	if sess.Slots == nil {
		sess.Slots = map[string]any{}
	}
	return &sess, nil
}

func (s *RedisStore) Update(ctx context.Context, sess *Session) error {
	exists, err := s.client.Exists(ctx, s.key(sess.ID)).Result()
	if err != nil {
		return fmt.Errorf("failed to check session existence: %w", err)
	}
	if exists == 0 {
		return ErrNotFound
	}
	return s.save(ctx, sess)
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	sess, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	pipe := s.client.Pipeline()
	pipe.Del(ctx, s.key(id))
	if sess.ConversationID != "" {
		pipe.SRem(ctx, s.convKey(sess.ConversationID), id)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete session from redis: %w", err)
	}
	return nil
}

func (s *RedisStore) ListByConversation(ctx context.Context, conversationID string) ([]Summary, error) {
	ids, err := s.client.SMembers(ctx, s.convKey(conversationID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list conversation sessions: %w", err)
	}
	out := make([]Summary, 0, len(ids))
	for _, id := range ids {
		sess, err := s.Get(ctx, id)
		if err != nil {
			if err == ErrNotFound {
				// Expired record still referenced by the index.
				continue
			}
			return nil, err
		}
		out = append(out, sess.Summary())
	}
	sortSummaries(out)
	return out, nil
}
