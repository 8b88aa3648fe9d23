package review

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const payloadKeyPrefix = "catalog_upload:"

// PayloadStore keeps raw uploaded catalog payloads in Redis until an admin
// decides on them. Rows in catalog_uploads reference payloads by key.
type PayloadStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewPayloadStore constructs a PayloadStore. ttl bounds how long an undecided
// payload is retained.
func NewPayloadStore(client *redis.Client, ttl time.Duration) *PayloadStore {
	if ttl <= 0 {
		ttl = 30 * 24 * time.Hour
	}
	return &PayloadStore{client: client, ttl: ttl}
}

// Put stores a payload under the given key.
func (s *PayloadStore) Put(ctx context.Context, key string, payload []byte) error {
	if err := s.client.Set(ctx, payloadKeyPrefix+key, payload, s.ttl).Err(); err != nil {
		return fmt.Errorf("review: store payload: %w", err)
	}
	return nil
}

// Get returns a stored payload, or ErrPayloadMissing when it expired.
func (s *PayloadStore) Get(ctx context.Context, key string) ([]byte, error) {
	raw, err := s.client.Get(ctx, payloadKeyPrefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrPayloadMissing
		}
		return nil, fmt.Errorf("review: load payload: %w", err)
	}
	return raw, nil
}

// Delete removes a stored payload once it is no longer needed.
func (s *PayloadStore) Delete(ctx context.Context, key string) error {
	return s.client.Del(ctx, payloadKeyPrefix+key).Err()
}
