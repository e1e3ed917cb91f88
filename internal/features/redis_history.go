package features

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	keyHistory = "risk:history:%s" // newest entry at the head

	historyTTL = 7 * 24 * time.Hour
)

// RedisHistoryStore keeps per-context windows in Redis lists, bounded by
// LTRIM. Entries expire with the key; the store is a cache, not durable
// storage. Shared-context serialization comes from the single LPUSH+LTRIM
// pipeline per append.
type RedisHistoryStore struct {
	client *redis.Client
	clock  Clock
}

// NewRedisHistoryStore creates a Redis-backed history store.
func NewRedisHistoryStore(client *redis.Client, clock Clock) *RedisHistoryStore {
	if clock == nil {
		clock = SystemClock
	}
	return &RedisHistoryStore{client: client, clock: clock}
}

// Append pushes a timestamped entry and trims the list to capacity.
func (s *RedisHistoryStore) Append(ctx context.Context, contextID string, tx Transaction) error {
	entry := HistoryEntry{Transaction: tx, Timestamp: s.clock.Now()}
	body, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal history entry: %w", err)
	}

	key := fmt.Sprintf(keyHistory, contextID)

	pipe := s.client.Pipeline()
	pipe.LPush(ctx, key, body)
	pipe.LTrim(ctx, key, 0, HistoryCapacity-1)
	pipe.Expire(ctx, key, historyTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to append history: %w", err)
	}
	return nil
}

// Recent returns the most recent n entries in insertion order.
func (s *RedisHistoryStore) Recent(ctx context.Context, contextID string, n int) ([]HistoryEntry, error) {
	if n <= 0 {
		return nil, nil
	}
	if n > HistoryCapacity {
		n = HistoryCapacity
	}
	key := fmt.Sprintf(keyHistory, contextID)

	raw, err := s.client.LRange(ctx, key, 0, int64(n-1)).Result()
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("failed to read history: %w", err)
	}

	// LRange returns newest first; reverse into insertion order.
	entries := make([]HistoryEntry, 0, len(raw))
	for i := len(raw) - 1; i >= 0; i-- {
		var entry HistoryEntry
		if err := json.Unmarshal([]byte(raw[i]), &entry); err != nil {
			return nil, fmt.Errorf("failed to unmarshal history entry: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}
