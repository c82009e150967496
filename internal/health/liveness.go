package health

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

func livenessKey(worker string) string {
	return "worker:" + worker + ":alive"
}

// LivenessCache shares recent reachability observations between scheduler
// instances as short-TTL Redis keys, so one instance's successful probe
// spares the others a redundant transport check.
type LivenessCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewLivenessCache(rdb *redis.Client, ttl time.Duration) *LivenessCache {
	return &LivenessCache{rdb: rdb, ttl: ttl}
}

// MarkAlive refreshes the worker's liveness flag.
func (c *LivenessCache) MarkAlive(ctx context.Context, worker string) {
	if c == nil || c.rdb == nil {
		return
	}
	_ = c.rdb.Set(ctx, livenessKey(worker), "1", c.ttl).Err()
}

// RecentlyAlive reports whether the worker was seen alive within the TTL.
func (c *LivenessCache) RecentlyAlive(ctx context.Context, worker string) bool {
	if c == nil || c.rdb == nil {
		return false
	}
	_, err := c.rdb.Get(ctx, livenessKey(worker)).Result()
	return err == nil
}
