// Package cache memoizes venue quotes for a short time so repeated routing
// rounds do not hit the chain for identical requests.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"

	"flashtrade/pkg/types"
)

const DefaultTTL = 15 * time.Second

// QuoteCache stores quotes by key. A miss is (nil, false, nil).
type QuoteCache interface {
	Get(ctx context.Context, key string) (*types.Quote, bool, error)
	Set(ctx context.Context, key string, quote *types.Quote) error
}

// QuoteKey identifies one quote request on one venue.
func QuoteKey(venueID string, in, out types.Token, amountIn string) string {
	return fmt.Sprintf("quote:%s:%d:%s:%s:%s", venueID, in.ChainID,
		strings.ToLower(in.Address), strings.ToLower(out.Address), amountIn)
}

// Redis is a QuoteCache backed by a Redis server.
type Redis struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// RedisOptions configures NewRedis.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
	TTL      time.Duration
}

// NewRedis connects lazily; use Ping to verify the server.
func NewRedis(opts RedisOptions) *Redis {
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	prefix := opts.Prefix
	if prefix == "" {
		prefix = "flashtrade"
	}
	return &Redis{
		client: redis.NewClient(&redis.Options{
			Addr:     opts.Addr,
			Password: opts.Password,
			DB:       opts.DB,
		}),
		prefix: prefix,
		ttl:    ttl,
	}
}

// Ping checks the server is reachable.
func (r *Redis) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

func (r *Redis) key(k string) string {
	return r.prefix + ":" + k
}

func (r *Redis) Get(ctx context.Context, key string) (*types.Quote, bool, error) {
	data, err := r.client.Get(ctx, r.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get %s: %w", key, err)
	}

	var q types.Quote
	if err := json.Unmarshal(data, &q); err != nil {
		return nil, false, fmt.Errorf("failed to unmarshal cached quote: %w", err)
	}
	return &q, true, nil
}

func (r *Redis) Set(ctx context.Context, key string, quote *types.Quote) error {
	data, err := json.Marshal(quote)
	if err != nil {
		return fmt.Errorf("failed to marshal quote: %w", err)
	}
	if err := r.client.Set(ctx, r.key(key), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// Close releases the connection pool.
func (r *Redis) Close() error {
	return r.client.Close()
}

// Memory is an in-process QuoteCache.
type Memory struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.Mutex
	entries map[string]memoryEntry
}

type memoryEntry struct {
	quote   types.Quote
	expires time.Time
}

// NewMemory returns an in-process cache with the given TTL.
func NewMemory(ttl time.Duration) *Memory {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Memory{ttl: ttl, now: time.Now, entries: make(map[string]memoryEntry)}
}

func (m *Memory) Get(ctx context.Context, key string) (*types.Quote, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	if !ok {
		return nil, false, nil
	}
	if !m.now().Before(e.expires) {
		delete(m.entries, key)
		return nil, false, nil
	}
	q := e.quote
	q.Path = append([]string(nil), e.quote.Path...)
	return &q, true, nil
}

func (m *Memory) Set(ctx context.Context, key string, quote *types.Quote) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = memoryEntry{quote: *quote, expires: m.now().Add(m.ttl)}
	return nil
}
