package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const pendingMarker = "pending"

// Response is a recorded HTTP response replayed for a repeated key.
type Response struct {
	Status      int    `json:"status"`
	ContentType string `json:"contentType"`
	Body        []byte `json:"body"`
}

type Store struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewStore(rdb *redis.Client, ttl time.Duration) *Store {
	return &Store{rdb: rdb, ttl: ttl}
}

func (s *Store) Key(topic string, partition int, offset int64) string {
	return fmt.Sprintf("idem:%s:%d:%d", topic, partition, offset)
}

// Seen claims key and reports whether it had already been claimed.
func (s *Store) Seen(ctx context.Context, key string) (bool, error) {
	ok, err := s.rdb.SetNX(ctx, key, "1", s.ttl).Result()
	if err != nil {
		return false, err
	}

	return !ok, nil
}

// Forget releases a key so the work it guarded can be retried.
func (s *Store) Forget(ctx context.Context, key string) error {
	return s.rdb.Del(ctx, key).Err()
}

// Reserve claims key for an in-flight request. When the key is taken it
// returns the recorded response, or nil while the first request is running.
func (s *Store) Reserve(ctx context.Context, key string) (bool, *Response, error) {
	ok, err := s.rdb.SetNX(ctx, key, pendingMarker, s.ttl).Result()
	if err != nil {
		return false, nil, err
	}
	if ok {
		return true, nil, nil
	}
	raw, err := s.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		// expired between SetNX and Get; let the caller retry
		return false, nil, nil
	}
	if err != nil {
		return false, nil, err
	}
	if string(raw) == pendingMarker {
		return false, nil, nil
	}
	var resp Response
	if err := json.Unmarshal(raw, &resp); err != nil {
		return false, nil, err
	}
	return false, &resp, nil
}

func (s *Store) Complete(ctx context.Context, key string, resp Response) error {
	raw, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, key, raw, s.ttl).Err()
}
