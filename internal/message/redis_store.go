package message

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisTimeout = 2 * time.Second

// redisKey returns the Redis key for a room's history list.
func redisKey(room string) string {
	return "room:" + room + ":history"
}

// RedisStore keeps per-room history in Redis lists, so history survives
// relay restarts. Failures degrade to an empty history rather than
// propagating to the sender.
type RedisStore struct {
	client  redis.Cmdable
	maxSize int64
}

// NewRedisStore creates a RedisStore retaining up to maxSize messages per
// room. A maxSize of zero disables the cap.
func NewRedisStore(client redis.Cmdable, maxSize int) *RedisStore {
	return &RedisStore{
		client:  client,
		maxSize: int64(maxSize),
	}
}

// Append pushes a message onto the room's list, trimming to maxSize.
func (s *RedisStore) Append(room string, msg *Public) {
	ctx, cancel := context.WithTimeout(context.Background(), redisTimeout)
	defer cancel()

	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("redis: failed to marshal message: %v", err)
		return
	}

	key := redisKey(room)
	pipe := s.client.Pipeline()
	pipe.RPush(ctx, key, data)
	if s.maxSize > 0 {
		pipe.LTrim(ctx, key, -s.maxSize, -1)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		log.Printf("redis: failed to append message: %v", err)
	}
}

// All returns the room's history in arrival order. The result is never nil.
func (s *RedisStore) All(room string) []*Public {
	ctx, cancel := context.WithTimeout(context.Background(), redisTimeout)
	defer cancel()

	vals, err := s.client.LRange(ctx, redisKey(room), 0, -1).Result()
	if err != nil {
		log.Printf("redis: failed to read history: %v", err)
		return []*Public{}
	}

	msgs := make([]*Public, 0, len(vals))
	for _, v := range vals {
		var m Public
		if err := json.Unmarshal([]byte(v), &m); err != nil {
			continue
		}
		msgs = append(msgs, &m)
	}
	return msgs
}

// Count returns the number of retained messages for a room.
func (s *RedisStore) Count(room string) int {
	ctx, cancel := context.WithTimeout(context.Background(), redisTimeout)
	defer cancel()

	n, err := s.client.LLen(ctx, redisKey(room)).Result()
	if err != nil {
		log.Printf("redis: failed to count history: %v", err)
		return 0
	}
	return int(n)
}

// Clear drops all retained messages for a room.
func (s *RedisStore) Clear(room string) {
	ctx, cancel := context.WithTimeout(context.Background(), redisTimeout)
	defer cancel()

	if err := s.client.Del(ctx, redisKey(room)).Err(); err != nil {
		log.Printf("redis: failed to clear history: %v", err)
	}
}
