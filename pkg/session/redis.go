package session

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Finndersen/adept-ai/pkg/llm"
)

// DefaultRedisPrefix namespaces session keys.
const DefaultRedisPrefix = "adept:session:"

// RedisStore persists sessions in Redis. Messages are a list of JSON
// documents and the enabled set is a JSON string.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// RedisOption configures a RedisStore.
type RedisOption func(*RedisStore)

// WithTTL expires idle sessions. Each write refreshes the expiry.
func WithTTL(ttl time.Duration) RedisOption {
	return func(s *RedisStore) { s.ttl = ttl }
}

// NewRedisStore uses client with keys under prefix.
func NewRedisStore(client *redis.Client, prefix string, opts ...RedisOption) *RedisStore {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	s := &RedisStore{client: client, prefix: prefix}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DialRedis connects to addr and checks the connection.
func DialRedis(ctx context.Context, addr, prefix string, opts ...RedisOption) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, storeError("connect to redis", "", err)
	}
	return NewRedisStore(client, prefix, opts...), nil
}

func (s *RedisStore) capabilitiesKey(sessionID string) string {
	return s.prefix + sessionID + ":capabilities"
}

func (s *RedisStore) messagesKey(sessionID string) string {
	return s.prefix + sessionID + ":messages"
}

func (s *RedisStore) EnabledCapabilities(ctx context.Context, sessionID string) ([]string, bool, error) {
	raw, err := s.client.Get(ctx, s.capabilitiesKey(sessionID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, storeError("load enabled capabilities", sessionID, err)
	}
	var names []string
	if err := json.Unmarshal([]byte(raw), &names); err != nil {
		return nil, false, storeError("decode enabled capabilities", sessionID, err)
	}
	return names, true, nil
}

func (s *RedisStore) SaveEnabledCapabilities(ctx context.Context, sessionID string, names []string) error {
	if names == nil {
		names = []string{}
	}
	raw, err := json.Marshal(names)
	if err != nil {
		return storeError("encode enabled capabilities", sessionID, err)
	}
	if err := s.client.Set(ctx, s.capabilitiesKey(sessionID), raw, s.ttl).Err(); err != nil {
		return storeError("save enabled capabilities", sessionID, err)
	}
	return nil
}

func (s *RedisStore) Messages(ctx context.Context, sessionID string) ([]llm.Message, error) {
	items, err := s.client.LRange(ctx, s.messagesKey(sessionID), 0, -1).Result()
	if err != nil {
		return nil, storeError("load messages", sessionID, err)
	}
	msgs := make([]llm.Message, 0, len(items))
	for _, item := range items {
		var msg llm.Message
		if err := json.Unmarshal([]byte(item), &msg); err != nil {
			return nil, storeError("decode message", sessionID, err)
		}
		msgs = append(msgs, msg)
	}
	return msgs, nil
}

func (s *RedisStore) AppendMessages(ctx context.Context, sessionID string, msgs ...llm.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	values := make([]any, 0, len(msgs))
	for _, msg := range msgs {
		raw, err := json.Marshal(msg)
		if err != nil {
			return storeError("encode message", sessionID, err)
		}
		values = append(values, raw)
	}

	key := s.messagesKey(sessionID)
	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, key, values...)
	if s.ttl > 0 {
		pipe.Expire(ctx, key, s.ttl)
		pipe.Expire(ctx, s.capabilitiesKey(sessionID), s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return storeError("append messages", sessionID, err)
	}
	return nil
}

func (s *RedisStore) Clear(ctx context.Context, sessionID string) error {
	if err := s.client.Del(ctx, s.capabilitiesKey(sessionID), s.messagesKey(sessionID)).Err(); err != nil {
		return storeError("clear session", sessionID, err)
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

var _ Store = (*RedisStore)(nil)
