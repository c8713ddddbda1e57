// Package redislock provides the single-writer lock used to serialize flow
// progression. The redis implementation spans processes; the local one is for
// single-process deployments and tests.
package redislock

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"strings"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/talentgraph-backend/internal/pkg/errors"
	"github.com/yungbote/talentgraph-backend/internal/pkg/httpx"
	"github.com/yungbote/talentgraph-backend/internal/pkg/logger"
)

var ErrNotAcquired = errors.New("lock not acquired")

type Lock interface {
	Release(ctx context.Context) error
}

type Locker interface {
	// Acquire blocks until key is held, wait elapses, or ctx ends.
	Acquire(ctx context.Context, key string, ttl, wait time.Duration) (Lock, error)
	Close() error
}

type Config struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

type redisLocker struct {
	log    *logger.Logger
	rdb    *goredis.Client
	prefix string
}

var releaseScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

func NewRedisLocker(log *logger.Logger, cfg Config) (Locker, error) {
	if log == nil {
		return nil, errors.New("logger required")
	}
	addr := strings.TrimSpace(cfg.Addr)
	if addr == "" {
		return nil, errors.New("missing redis addr")
	}
	prefix := strings.TrimSpace(cfg.Prefix)
	if prefix == "" {
		prefix = "talentgraph:lock:"
	}
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: 5 * time.Second,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, errors.Wrap(err, "redis ping")
	}
	return &redisLocker{
		log:    log.With("service", "RedisLocker"),
		rdb:    rdb,
		prefix: prefix,
	}, nil
}

type redisLock struct {
	rdb   *goredis.Client
	key   string
	token string
}

func (l *redisLocker) Acquire(ctx context.Context, key string, ttl, wait time.Duration) (Lock, error) {
	full := l.prefix + key
	token, err := newToken()
	if err != nil {
		return nil, err
	}
	deadline := time.Now().Add(wait)
	backoff := 25 * time.Millisecond
	for {
		ok, err := l.rdb.SetNX(ctx, full, token, ttl).Result()
		if err != nil {
			return nil, errors.Wrap(err, "redis setnx")
		}
		if ok {
			return &redisLock{rdb: l.rdb, key: full, token: token}, nil
		}
		if !time.Now().Before(deadline) {
			return nil, ErrNotAcquired
		}
		if err := httpx.Sleep(ctx, httpx.JitterSleep(backoff)); err != nil {
			return nil, err
		}
		if backoff < 500*time.Millisecond {
			backoff *= 2
		}
	}
}

func (l *redisLock) Release(ctx context.Context) error {
	if err := releaseScript.Run(ctx, l.rdb, []string{l.key}, l.token).Err(); err != nil && !errors.Is(err, goredis.Nil) {
		return errors.Wrap(err, "redis release")
	}
	return nil
}

func (l *redisLocker) Close() error { return l.rdb.Close() }

func newToken() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// localLocker holds one buffered channel per key as a context-aware mutex.
type localLocker struct {
	mu   sync.Mutex
	sems map[string]chan struct{}
}

func NewLocalLocker() Locker {
	return &localLocker{sems: map[string]chan struct{}{}}
}

func (l *localLocker) sem(key string) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.sems[key]
	if !ok {
		s = make(chan struct{}, 1)
		l.sems[key] = s
	}
	return s
}

type localLock struct {
	sem  chan struct{}
	once sync.Once
}

func (l *localLocker) Acquire(ctx context.Context, key string, ttl, wait time.Duration) (Lock, error) {
	s := l.sem(key)
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case s <- struct{}{}:
		return &localLock{sem: s}, nil
	case <-timer.C:
		return nil, ErrNotAcquired
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (l *localLock) Release(ctx context.Context) error {
	l.once.Do(func() { <-l.sem })
	return nil
}

func (l *localLocker) Close() error { return nil }
