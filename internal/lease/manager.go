// Package lease tracks which scheduler instance is actively executing a
// claimed task. A lease is advisory: the durable claim in Postgres is what
// prevents double execution; the lease's disappearance is what lets the
// sweeper distinguish a crashed executor from a slow one.
package lease

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

func Key(taskID string) string {
	return "task-lease:" + taskID
}

type Manager struct {
	rdb *redis.Client
}

func NewManager(rdb *redis.Client) *Manager {
	return &Manager{rdb: rdb}
}

// Take overwrites the lease unconditionally. Used right after a durable
// claim succeeds: the store decided ownership, so a leftover lease from a
// crashed executor must not stand in the way.
func (m *Manager) Take(ctx context.Context, taskID, owner string, ttl time.Duration) error {
	return m.rdb.Set(ctx, Key(taskID), owner, ttl).Err()
}

// Renew extends the lease only while owner still holds it.
func (m *Manager) Renew(ctx context.Context, taskID, owner string, ttl time.Duration) (bool, error) {
	script := `
		if redis.call('GET', KEYS[1]) == ARGV[1] then
			return redis.call('PEXPIRE', KEYS[1], ARGV[2])
		else
			return 0
		end`
	cmd := m.rdb.Eval(ctx, script, []string{Key(taskID)}, owner, int(ttl.Milliseconds()))
	if err := cmd.Err(); err != nil {
		return false, err
	}
	n, _ := cmd.Int()
	return n == 1, nil
}

// Release drops the lease only while owner still holds it.
func (m *Manager) Release(ctx context.Context, taskID, owner string) (bool, error) {
	script := `
		if redis.call('GET', KEYS[1]) == ARGV[1] then
			return redis.call('DEL', KEYS[1])
		else
			return 0
		end`
	cmd := m.rdb.Eval(ctx, script, []string{Key(taskID)}, owner)
	if err := cmd.Err(); err != nil {
		return false, err
	}
	n, _ := cmd.Int()
	return n == 1, nil
}

// Exists reports whether any owner currently holds the task's lease.
func (m *Manager) Exists(ctx context.Context, taskID string) (bool, error) {
	_, err := m.rdb.Get(ctx, Key(taskID)).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// KeepAlive renews the lease every interval until ctx is done, then releases
// it. Run as a goroutine alongside task execution.
func (m *Manager) KeepAlive(ctx context.Context, taskID, owner string, ttl, interval time.Duration) {
	tk := time.NewTicker(interval)
	defer tk.Stop()
	for {
		select {
		case <-ctx.Done():
			releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			_, _ = m.Release(releaseCtx, taskID, owner)
			cancel()
			return
		case <-tk.C:
			_, _ = m.Renew(ctx, taskID, owner, ttl)
		}
	}
}
