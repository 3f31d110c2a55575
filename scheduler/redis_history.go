package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nexuskernel/orchestrator/core"
)

// RedisHistoryStore is an optional external mirror of completed TaskResult
// records (spec §9 Open Question 3, resolved here: the scheduler's
// in-memory history stays the source of truth for GetStatus/GetResult;
// this store exists for operators who need durability across restarts).
//
// Grounded on itsneelabh-gomind's pkg/discovery RedisDiscovery: a thin
// redis.Client wrapper that JSON-marshals a record under a namespaced key
// with a TTL, using redis.ParseURL for construction. Narrowed here from
// discovery's registration/heartbeat shape to a single Set-per-result
// write path, since the scheduler only ever appends completed results.
type RedisHistoryStore struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
}

// RedisHistoryStoreOption configures a RedisHistoryStore at construction.
type RedisHistoryStoreOption func(*RedisHistoryStore)

// WithKeyPrefix overrides the default "orchestrator:task:" key prefix.
func WithKeyPrefix(prefix string) RedisHistoryStoreOption {
	return func(s *RedisHistoryStore) { s.keyPrefix = prefix }
}

// WithTTL sets an expiry on mirrored records; zero (the default) keeps
// them until explicitly evicted.
func WithTTL(ttl time.Duration) RedisHistoryStoreOption {
	return func(s *RedisHistoryStore) { s.ttl = ttl }
}

// NewRedisHistoryStore parses redisURL (a "redis://host:port/db"-shaped
// URL, the same form itsneelabh-gomind's discovery.NewRedisDiscovery
// accepts) and returns a ready-to-use store, pinging once to fail fast on
// a misconfigured address.
func NewRedisHistoryStore(redisURL string, opts ...RedisHistoryStoreOption) (*RedisHistoryStore, error) {
	parsed, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid redis url: %v", core.ErrInvalidConfiguration, err)
	}

	client := redis.NewClient(parsed)

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	store := &RedisHistoryStore{client: client, keyPrefix: "orchestrator:task:"}
	for _, opt := range opts {
		opt(store)
	}
	return store, nil
}

type redisTaskRecord struct {
	ID        string        `json:"id"`
	Status    string        `json:"status"`
	Error     string        `json:"error,omitempty"`
	StartTime time.Time     `json:"startTime"`
	EndTime   time.Time     `json:"endTime"`
	Duration  time.Duration `json:"duration"`
}

// Save writes r to Redis under keyPrefix+r.ID. Data is dropped from the
// mirrored record — it is arbitrary agent output, not meant for a
// durability ledger — keeping only the status/timing fields an operator
// needs to reconcile a crashed process's in-flight work.
func (s *RedisHistoryStore) Save(ctx context.Context, r Result) error {
	record := redisTaskRecord{
		ID:        r.ID,
		Status:    string(r.Status),
		Error:     r.Err,
		StartTime: r.StartTime,
		EndTime:   r.EndTime,
		Duration:  r.Duration,
	}
	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal task record: %w", err)
	}
	return s.client.Set(ctx, s.keyPrefix+r.ID, payload, s.ttl).Err()
}

// Close releases the underlying Redis connection pool.
func (s *RedisHistoryStore) Close() error {
	return s.client.Close()
}
