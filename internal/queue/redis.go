// Package queue provides the Redis signaling layer between the submission
// surface and scheduler instances: a ready list of claimable task IDs, a
// cancellation broadcast channel, and small distributed locks for singleton
// background loops. The durable task store stays the source of truth; losing
// a Redis signal only degrades to the scheduler's poll fallback.
package queue

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	readyKey      = "tasks:ready"
	cancelChannel = "tasks:cancel"
)

// Connect parses a redis:// URL and verifies the connection with a ping.
func Connect(ctx context.Context, url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, err
	}
	return rdb, nil
}

// EnqueueReady pushes a claimable task ID onto the ready list.
func EnqueueReady(ctx context.Context, rdb *redis.Client, taskID string) error {
	return rdb.RPush(ctx, readyKey, taskID).Err()
}

// DequeueReady blocks up to timeout for the next ready task ID. The second
// return is false when the wait timed out with nothing available.
func DequeueReady(ctx context.Context, rdb *redis.Client, timeout time.Duration) (string, bool, error) {
	res, err := rdb.BLPop(ctx, timeout, readyKey).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	if len(res) != 2 {
		return "", false, nil
	}
	return res[1], true, nil
}

// PublishCancel broadcasts a task cancellation to every scheduler instance.
func PublishCancel(ctx context.Context, rdb *redis.Client, taskID string) error {
	return rdb.Publish(ctx, cancelChannel, taskID).Err()
}

// SubscribeCancel delivers cancelled task IDs until ctx is done.
func SubscribeCancel(ctx context.Context, rdb *redis.Client) (<-chan string, func()) {
	sub := rdb.Subscribe(ctx, cancelChannel)
	out := make(chan string, 16)
	go func() {
		defer close(out)
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				select {
				case out <- msg.Payload:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, func() { _ = sub.Close() }
}

// AcquireLock takes a short-lived distributed lock (SETNX + TTL). Used to
// keep background loops like the sweeper single-flight across instances.
func AcquireLock(ctx context.Context, rdb *redis.Client, key, owner string, ttl time.Duration) (bool, error) {
	return rdb.SetNX(ctx, key, owner, ttl).Result()
}

// ReleaseLock releases the lock only when owner still holds it.
func ReleaseLock(ctx context.Context, rdb *redis.Client, key, owner string) (bool, error) {
	script := `
		if redis.call('GET', KEYS[1]) == ARGV[1] then
			return redis.call('DEL', KEYS[1])
		else
			return 0
		end`
	cmd := rdb.Eval(ctx, script, []string{key}, owner)
	if err := cmd.Err(); err != nil {
		return false, err
	}
	n, _ := cmd.Int()
	return n == 1, nil
}
