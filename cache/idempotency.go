package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix = "booking:idem"
	// claimTTL bounds how long a crashed request can block its key.
	claimTTL = 30 * time.Second
)

// ErrInProgress means another request holding the same key has not finished.
var ErrInProgress = errors.New("request with this idempotency key is in progress")

// StoredResponse is what a replayed request gets back. Status 0 marks a key
// that is claimed but not yet completed.
type StoredResponse struct {
	Status int             `json:"status"`
	Body   json.RawMessage `json:"body,omitempty"`
}

// IdempotencyStore remembers responses by (scope, Idempotency-Key). Scope is
// the caller identity so two customers can reuse the same key.
type IdempotencyStore struct {
	rdb      *redis.Client
	ttl      time.Duration
	claimTTL time.Duration
}

func NewIdempotencyStore(rdb *redis.Client, ttl time.Duration) *IdempotencyStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &IdempotencyStore{rdb: rdb, ttl: ttl, claimTTL: claimTTL}
}

func (s *IdempotencyStore) key(scope, key string) string {
	return fmt.Sprintf("%s:%s:%s", keyPrefix, scope, key)
}

// Claim takes the key before any work is done. claimed=true means the caller
// owns the key and must Complete or Release it. Otherwise the stored response
// is returned, or ErrInProgress while the owner is still working.
func (s *IdempotencyStore) Claim(ctx context.Context, scope, key string) (*StoredResponse, bool, error) {
	marker, err := json.Marshal(StoredResponse{})
	if err != nil {
		return nil, false, err
	}

	ok, err := s.rdb.SetNX(ctx, s.key(scope, key), marker, s.claimTTL).Result()
	if err != nil {
		return nil, false, err
	}
	if ok {
		return nil, true, nil
	}

	resp, found, err := s.get(ctx, scope, key)
	if err != nil {
		return nil, false, err
	}
	// A miss here means the owner released the key between the two calls.
	if !found || resp.Status == 0 {
		return nil, false, ErrInProgress
	}
	return resp, false, nil
}

// Complete replaces the claim with the final response.
func (s *IdempotencyStore) Complete(ctx context.Context, scope, key string, resp StoredResponse) error {
	if resp.Status == 0 {
		return errors.New("idempotent response needs a status")
	}
	raw, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, s.key(scope, key), raw, s.ttl).Err()
}

// Release drops an unfinished claim so the client can retry with the same key.
func (s *IdempotencyStore) Release(ctx context.Context, scope, key string) error {
	return s.rdb.Del(ctx, s.key(scope, key)).Err()
}

func (s *IdempotencyStore) get(ctx context.Context, scope, key string) (*StoredResponse, bool, error) {
	raw, err := s.rdb.Get(ctx, s.key(scope, key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var resp StoredResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, false, fmt.Errorf("decode idempotent response: %w", err)
	}
	return &resp, true, nil
}
