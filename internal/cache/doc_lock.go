package cache

import (
	"context"
	"fmt"
	"time"

	redisv9 "github.com/redis/go-redis/v9"
)

// DocLock serializes pipeline runs per document across all server
// instances using SETNX with a TTL, so a crashed run cannot hold a
// document forever.
type DocLock struct {
	client *redisv9.Client
	ttl    time.Duration
}

func NewDocLock(client *redisv9.Client, ttl time.Duration) *DocLock {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &DocLock{client: client, ttl: ttl}
}

// Acquire returns true when this run now owns the document. The token
// identifies the owner so only it can release.
func (l *DocLock) Acquire(ctx context.Context, documentID uint, token string) (bool, error) {
	ok, err := l.client.SetNX(ctx, l.key(documentID), token, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis acquire doc lock failed: %w", err)
	}
	return ok, nil
}

// Release frees the lock if the token still owns it. A lock that expired
// and was re-acquired by another run is left alone.
func (l *DocLock) Release(ctx context.Context, documentID uint, token string) error {
	const script = `
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0`
	if err := l.client.Eval(ctx, script, []string{l.key(documentID)}, token).Err(); err != nil {
		return fmt.Errorf("redis release doc lock failed: %w", err)
	}
	return nil
}

func (l *DocLock) key(documentID uint) string {
	return fmt.Sprintf("doclock:%d", documentID)
}
