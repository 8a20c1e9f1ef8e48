package reaper

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Locker grants a lease on key for ttl. ok is false when another holder owns
// the lease.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (release func(context.Context) error, ok bool, err error)
}

// releaseScript deletes the key only when it still holds our token, so an
// expired lease taken over by another instance is left alone.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLock is a lease held with SET NX PX across service instances.
type RedisLock struct {
	client redis.UniversalClient
}

func NewRedisLock(client redis.UniversalClient) *RedisLock {
	return &RedisLock{client: client}
}

func (l *RedisLock) TryLock(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, bool, error) {
	token := uuid.NewString()
	err := l.client.SetArgs(ctx, key, token, redis.SetArgs{Mode: "NX", TTL: ttl}).Err()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	release := func(ctx context.Context) error {
		return releaseScript.Run(ctx, l.client, []string{key}, token).Err()
	}
	return release, true, nil
}

// MemoryLock is the single-process Locker used when Redis is not configured.
type MemoryLock struct {
	mu     sync.Mutex
	leases map[string]memoryLease
	now    func() time.Time
}

type memoryLease struct {
	token   string
	expires time.Time
}

func NewMemoryLock() *MemoryLock {
	return &MemoryLock{leases: make(map[string]memoryLease), now: time.Now}
}

func (l *MemoryLock) TryLock(_ context.Context, key string, ttl time.Duration) (func(context.Context) error, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if lease, held := l.leases[key]; held && now.Before(lease.expires) {
		return nil, false, nil
	}
	token := uuid.NewString()
	l.leases[key] = memoryLease{token: token, expires: now.Add(ttl)}
	release := func(context.Context) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		if l.leases[key].token == token {
			delete(l.leases, key)
		}
		return nil
	}
	return release, true, nil
}
