// Package cache provides Redis-backed caching for price history and factor
// snapshots, plus the distributed lock that keeps refresh cycles exclusive.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"etf-reversion-bot/config"
	"etf-reversion-bot/internal/confidence"
	"etf-reversion-bot/internal/drawdown"
	"etf-reversion-bot/internal/logging"
)

// Redis key layout
const (
	// priceHistoryKeyPrefix stores a ticker's closing-price series.
	// Format: etfbot:prices:{ticker}
	priceHistoryKeyPrefix = "etfbot:prices"

	// factorSnapshotKey stores the latest factor snapshot.
	factorSnapshotKey = "etfbot:factors:snapshot"

	// cycleLockKey guards the refresh cycle against concurrent runs.
	cycleLockKey = "etfbot:refresh:lock"
)

// ErrLockHeld means another process holds the refresh-cycle lock.
var ErrLockHeld = errors.New("refresh cycle lock held by another instance")

// Cache wraps the Redis client. A nil Cache is valid and degrades every
// operation to a miss, so callers need no enabled checks.
type Cache struct {
	client *redis.Client
	log    *logging.Logger
}

// New connects to Redis. Returns nil (a disabled cache) when cfg.Enabled
// is false.
func New(cfg config.RedisConfig) (*Cache, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	log := logging.Default().WithComponent("cache")
	log.Info("connected to redis", "address", cfg.Address)
	return &Cache{client: client, log: log}, nil
}

// Close releases the Redis connection.
func (c *Cache) Close() error {
	if c == nil {
		return nil
	}
	return c.client.Close()
}

// SetPriceHistory caches a ticker's closing-price series.
func (c *Cache) SetPriceHistory(ctx context.Context, ticker string, history []drawdown.Close, ttl time.Duration) error {
	if c == nil {
		return nil
	}
	data, err := json.Marshal(history)
	if err != nil {
		return fmt.Errorf("failed to encode price history: %w", err)
	}
	key := fmt.Sprintf("%s:%s", priceHistoryKeyPrefix, ticker)
	if err := c.client.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache price history for %s: %w", ticker, err)
	}
	return nil
}

// GetPriceHistory returns the cached series, or nil on a miss.
func (c *Cache) GetPriceHistory(ctx context.Context, ticker string) ([]drawdown.Close, error) {
	if c == nil {
		return nil, nil
	}
	key := fmt.Sprintf("%s:%s", priceHistoryKeyPrefix, ticker)
	data, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read cached history for %s: %w", ticker, err)
	}
	var history []drawdown.Close
	if err := json.Unmarshal(data, &history); err != nil {
		return nil, fmt.Errorf("failed to decode cached history for %s: %w", ticker, err)
	}
	return history, nil
}

// SetFactorSnapshot caches the latest factor inputs.
func (c *Cache) SetFactorSnapshot(ctx context.Context, snap confidence.Snapshot, ttl time.Duration) error {
	if c == nil {
		return nil
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to encode factor snapshot: %w", err)
	}
	if err := c.client.Set(ctx, factorSnapshotKey, data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache factor snapshot: %w", err)
	}
	return nil
}

// GetFactorSnapshot returns the cached snapshot; ok is false on a miss.
func (c *Cache) GetFactorSnapshot(ctx context.Context) (confidence.Snapshot, bool, error) {
	var snap confidence.Snapshot
	if c == nil {
		return snap, false, nil
	}
	data, err := c.client.Get(ctx, factorSnapshotKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return snap, false, nil
	}
	if err != nil {
		return snap, false, fmt.Errorf("failed to read cached factor snapshot: %w", err)
	}
	if err := json.Unmarshal(data, &snap); err != nil {
		return snap, false, fmt.Errorf("failed to decode cached factor snapshot: %w", err)
	}
	return snap, true, nil
}

// AcquireCycleLock takes the refresh-cycle lock with SET NX. Returns
// ErrLockHeld when another instance owns it. With caching disabled the
// lock trivially succeeds: single-process mode needs no coordination.
func (c *Cache) AcquireCycleLock(ctx context.Context, owner string, ttl time.Duration) error {
	if c == nil {
		return nil
	}
	ok, err := c.client.SetNX(ctx, cycleLockKey, owner, ttl).Result()
	if err != nil {
		return fmt.Errorf("failed to acquire cycle lock: %w", err)
	}
	if !ok {
		return ErrLockHeld
	}
	return nil
}

// ReleaseCycleLock drops the lock if this owner still holds it.
func (c *Cache) ReleaseCycleLock(ctx context.Context, owner string) error {
	if c == nil {
		return nil
	}
	// Compare-and-delete so an expired lock taken over by another owner
	// is never released from here.
	const script = `
		if redis.call("GET", KEYS[1]) == ARGV[1] then
			return redis.call("DEL", KEYS[1])
		end
		return 0
	`
	if err := c.client.Eval(ctx, script, []string{cycleLockKey}, owner).Err(); err != nil {
		return fmt.Errorf("failed to release cycle lock: %w", err)
	}
	return nil
}
