package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// MemoryGuard holds keys in process. Entries expire after ttl so a crashed
// holder cannot block a quarter forever.
type MemoryGuard struct {
	mu   sync.Mutex
	ttl  time.Duration
	held map[string]memoryEntry
	now  func() time.Time
}

type memoryEntry struct {
	token   string
	expires time.Time
}

func NewMemoryGuard(ttl time.Duration) *MemoryGuard {
	return &MemoryGuard{ttl: ttl, held: map[string]memoryEntry{}, now: time.Now}
}

func (g *MemoryGuard) TryAcquire(_ context.Context, key string) (func(), bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	if entry, ok := g.held[key]; ok && now.Before(entry.expires) {
		return nil, false, nil
	}
	token := uuid.NewString()
	g.held[key] = memoryEntry{token: token, expires: now.Add(g.ttl)}
	return func() {
		g.mu.Lock()
		defer g.mu.Unlock()
		if entry, ok := g.held[key]; ok && entry.token == token {
			delete(g.held, key)
		}
	}, true, nil
}

// releaseScript deletes the key only when it still carries our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisGuard shares the guard across instances with SET NX and a TTL.
type RedisGuard struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisGuard(ctx context.Context, addr, password string, ttl time.Duration) (*RedisGuard, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return &RedisGuard{client: client, ttl: ttl}, nil
}

func NewRedisGuardWithClient(client *redis.Client, ttl time.Duration) *RedisGuard {
	return &RedisGuard{client: client, ttl: ttl}
}

func (g *RedisGuard) TryAcquire(ctx context.Context, key string) (func(), bool, error) {
	token := uuid.NewString()
	ok, err := g.client.SetNX(ctx, key, token, g.ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("acquire %s: %w", key, err)
	}
	if !ok {
		return nil, false, nil
	}
	return func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = releaseScript.Run(releaseCtx, g.client, []string{key}, token).Err()
	}, true, nil
}

func (g *RedisGuard) Ping(ctx context.Context) error {
	return g.client.Ping(ctx).Err()
}

func (g *RedisGuard) Close() error {
	return g.client.Close()
}
