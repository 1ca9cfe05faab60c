package middleware

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Deduper tracks processed notification keys.
type Deduper interface {
	// Seen marks key as processed and reports whether it already was.
	Seen(ctx context.Context, key string) (bool, error)
	// Forget releases key so a redelivery is processed again.
	Forget(ctx context.Context, key string) error
}

type redisDeduper struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func (d *redisDeduper) Seen(ctx context.Context, key string) (bool, error) {
	ok, err := d.client.SetNX(ctx, d.prefix+":"+key, "1", d.ttl).Result()
	if err != nil {
		return false, err
	}
	// false => already exists => duplicate
	return !ok, nil
}

func (d *redisDeduper) Forget(ctx context.Context, key string) error {
	return d.client.Del(ctx, d.prefix+":"+key).Err()
}

type memoryDeduper struct {
	mu     sync.Mutex
	seen   map[string]time.Time
	ttl    time.Duration
	nextGC time.Time
}

func newMemoryDeduper(ttl time.Duration) *memoryDeduper {
	return &memoryDeduper{
		seen:   make(map[string]time.Time),
		ttl:    ttl,
		nextGC: time.Now().Add(ttl),
	}
}

func (d *memoryDeduper) Seen(_ context.Context, key string) (bool, error) {
	now := time.Now()

	d.mu.Lock()
	defer d.mu.Unlock()

	if exp, ok := d.seen[key]; ok && exp.After(now) {
		return true, nil
	}

	d.seen[key] = now.Add(d.ttl)
	if now.After(d.nextGC) {
		for k, exp := range d.seen {
			if exp.Before(now) {
				delete(d.seen, k)
			}
		}
		d.nextGC = now.Add(d.ttl)
	}

	return false, nil
}

func (d *memoryDeduper) Forget(_ context.Context, key string) error {
	d.mu.Lock()
	delete(d.seen, key)
	d.mu.Unlock()
	return nil
}

// NewMemoryDeduper returns a process-local deduper.
func NewMemoryDeduper(ttl time.Duration) Deduper {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return newMemoryDeduper(ttl)
}

// NewRedisDeduper wraps an existing client.
func NewRedisDeduper(client *redis.Client, ttl time.Duration) Deduper {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &redisDeduper{client: client, prefix: "cp:notify", ttl: ttl}
}

// NewDeduper builds a Redis deduper and falls back to in-memory on failure.
func NewDeduper(addr, pass string, db int, ttl time.Duration) (Deduper, error) {
	if addr == "" {
		return NewMemoryDeduper(ttl), nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: pass,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return NewMemoryDeduper(ttl), err
	}

	return NewRedisDeduper(client, ttl), nil
}

// NotificationKey identifies a delivery by kind, transaction id and body hash.
func NotificationKey(kind string, body []byte) string {
	txID := ""
	if form, err := url.ParseQuery(string(body)); err == nil {
		txID = form.Get("TransactionId")
	}
	sum := sha256.Sum256(body)
	return kind + ":" + txID + ":" + hex.EncodeToString(sum[:])
}

// undedupedKinds carry a decision in their reply code and are answered
// fresh on every delivery.
var undedupedKinds = map[string]bool{
	"check": true,
}

// NotificationDedup acknowledges repeated deliveries without calling next.
// It must run after SignedNotification. A failed delivery is forgotten so
// the provider's retry goes through.
func NotificationDedup(deduper Deduper, logger *zap.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if deduper == nil || undedupedKinds[c.Param("kind")] {
				return next(c)
			}

			body := RawBody(c)
			if len(body) == 0 {
				body = []byte(c.Request().URL.RawQuery)
			}
			key := NotificationKey(c.Param("kind"), body)

			ctx := c.Request().Context()
			dup, err := deduper.Seen(ctx, key)
			if err != nil {
				logger.Warn("Dedup lookup failed", zap.String("key", key), zap.Error(err))
				return next(c)
			}
			if dup {
				logger.Info("Duplicate notification acknowledged", zap.String("key", key))
				return c.JSON(http.StatusOK, map[string]int{"code": 0})
			}

			err = next(c)
			if err != nil || c.Response().Status >= http.StatusInternalServerError {
				if ferr := deduper.Forget(context.WithoutCancel(ctx), key); ferr != nil {
					logger.Warn("Dedup release failed", zap.String("key", key), zap.Error(ferr))
				}
			}
			return err
		}
	}
}
