package repair

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultLedgerTTL bounds how long applied repairs are remembered.
const DefaultLedgerTTL = 30 * 24 * time.Hour

// RedisLedger implements AppliedLedger using Redis SETNX, so concurrent
// service replicas agree on which repair was applied first.
type RedisLedger struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisLedger creates a ledger backed by Redis.
func NewRedisLedger(addr, password string, db int) *RedisLedger {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &RedisLedger{client: rdb, ttl: DefaultLedgerTTL}
}

// WithTTL overrides the record TTL.
func (l *RedisLedger) WithTTL(ttl time.Duration) *RedisLedger {
	l.ttl = ttl
	return l
}

// Ping checks connectivity.
func (l *RedisLedger) Ping(ctx context.Context) error {
	return l.client.Ping(ctx).Err()
}

// Close releases the client.
func (l *RedisLedger) Close() error {
	return l.client.Close()
}

func redisKey(k Key) string {
	return fmt.Sprintf("repair:applied:%s", k)
}

func (l *RedisLedger) Lookup(ctx context.Context, key Key) (AppliedRecord, bool, error) {
	raw, err := l.client.Get(ctx, redisKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return AppliedRecord{}, false, nil
	}
	if err != nil {
		return AppliedRecord{}, false, fmt.Errorf("ledger lookup %s: %w", key, err)
	}
	var rec AppliedRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return AppliedRecord{}, false, fmt.Errorf("ledger decode %s: %w", key, err)
	}
	return rec, true, nil
}

func (l *RedisLedger) Record(ctx context.Context, rec AppliedRecord) (bool, error) {
	raw, err := json.Marshal(rec)
	if err != nil {
		return false, fmt.Errorf("ledger encode: %w", err)
	}
	ok, err := l.client.SetNX(ctx, redisKey(rec.Key()), raw, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("ledger record %s: %w", rec.Key(), err)
	}
	return ok, nil
}
