package statecache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nerrad567/gray-logic-switch/internal/entity"
	"github.com/nerrad567/gray-logic-switch/internal/infrastructure/config"
)

const (
	keyPrefix = "switch:state:"

	scanBatch      = 100
	observeTimeout = 2 * time.Second
	connectTimeout = 5 * time.Second
)

var (
	// ErrDisabled indicates Redis is disabled in configuration.
	ErrDisabled = errors.New("statecache: disabled in configuration")

	// ErrConnectionFailed indicates the initial ping failed.
	ErrConnectionFailed = errors.New("statecache: connection failed")
)

// commands is the subset of the go-redis client the cache uses.
type commands interface {
	Ping(ctx context.Context) *redis.StatusCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Scan(ctx context.Context, cursor uint64, match string, count int64) *redis.ScanCmd
	Close() error
}

// State is the document stored per switch.
type State struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	On        bool      `json:"on"`
	State     string    `json:"state"`
	Source    string    `json:"source"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Cache writes switch state to Redis.
type Cache struct {
	rdb commands
	ttl time.Duration

	logger   entity.Logger
	loggerMu sync.RWMutex
}

// Connect opens a Redis client from cfg and pings it.
func Connect(ctx context.Context, cfg config.RedisConfig) (*Cache, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	return New(rdb, time.Duration(cfg.TTL)*time.Second), nil
}

// New wraps an existing client. ttl 0 keeps entries until overwritten.
func New(rdb commands, ttl time.Duration) *Cache {
	return &Cache{rdb: rdb, ttl: ttl, logger: noopLogger{}}
}

// SetLogger sets the logger used by OnStateChange.
func (c *Cache) SetLogger(logger entity.Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	c.loggerMu.Lock()
	c.logger = logger
	c.loggerMu.Unlock()
}

func (c *Cache) getLogger() entity.Logger {
	c.loggerMu.RLock()
	defer c.loggerMu.RUnlock()
	return c.logger
}

// Key returns the Redis key for a switch.
func Key(id string) string { return keyPrefix + id }

// Put stores the state carried by change.
func (c *Cache) Put(ctx context.Context, change entity.StateChange) error {
	data, err := json.Marshal(State{
		ID:        change.EntityID,
		Name:      change.Name,
		On:        change.On,
		State:     change.State(),
		Source:    change.Source,
		UpdatedAt: change.Timestamp,
	})
	if err != nil {
		return fmt.Errorf("encoding state: %w", err)
	}
	return c.rdb.Set(ctx, Key(change.EntityID), data, c.ttl).Err()
}

// Get returns the mirrored state, or nil when there is none. The host reads
// it at startup to report what each switch last was; it never seeds state.
func (c *Cache) Get(ctx context.Context, id string) (*State, error) {
	b, err := c.rdb.Get(ctx, Key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil //nolint:nilnil // a miss is not an error
	}
	if err != nil {
		return nil, err
	}

	var st State
	if err := json.Unmarshal(b, &st); err != nil {
		return nil, fmt.Errorf("decoding state for %s: %w", id, err)
	}
	return &st, nil
}

// RemoveAllExcept deletes entries for switches not in keepIDs and returns
// the ids it removed. Used at startup to clear switches dropped from config.
func (c *Cache) RemoveAllExcept(ctx context.Context, keepIDs []string) ([]string, error) {
	keep := make(map[string]struct{}, len(keepIDs))
	for _, id := range keepIDs {
		if id == "" {
			continue
		}
		keep[id] = struct{}{}
	}

	var removed []string
	var cursor uint64
	for {
		keys, next, err := c.rdb.Scan(ctx, cursor, keyPrefix+"*", scanBatch).Result()
		if err != nil {
			return removed, err
		}
		for _, full := range keys {
			id, ok := strings.CutPrefix(full, keyPrefix)
			if !ok {
				continue
			}
			if _, ok := keep[id]; ok {
				continue
			}
			if err := c.rdb.Del(ctx, full).Err(); err != nil {
				return removed, err
			}
			removed = append(removed, id)
		}
		if next == 0 {
			return removed, nil
		}
		cursor = next
	}
}

// OnStateChange mirrors a change. Failures are logged, not returned.
func (c *Cache) OnStateChange(change entity.StateChange) {
	ctx, cancel := context.WithTimeout(context.Background(), observeTimeout)
	defer cancel()

	if err := c.Put(ctx, change); err != nil {
		c.getLogger().Warn("mirroring switch state to redis failed",
			"entity_id", change.EntityID,
			"error", err,
		)
	}
}

// HealthCheck pings Redis.
func (c *Cache) HealthCheck(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Close closes the Redis client.
func (c *Cache) Close() error {
	if c == nil || c.rdb == nil {
		return nil
	}
	return c.rdb.Close()
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}
