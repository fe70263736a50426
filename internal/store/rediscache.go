package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Cached decorates a TableStore with a Redis read-through cache. Reads hit
// Redis first; writes go straight to the backend and drop the cached table.
// Redis being down never fails an operation, it only costs the round trip.
type Cached struct {
	inner  TableStore
	client *redis.Client
	ttl    time.Duration
	logger *zerolog.Logger
}

// NewCached wraps inner with a cache using the given TTL.
func NewCached(inner TableStore, client *redis.Client, ttl time.Duration, logger *zerolog.Logger) *Cached {
	return &Cached{inner: inner, client: client, ttl: ttl, logger: logger}
}

func cacheKey(table string) string {
	return "labreserve:table:" + table
}

func (c *Cached) Read(ctx context.Context, table string) ([][]string, error) {
	if _, err := Columns(table); err != nil {
		return nil, err
	}

	data, err := c.client.Get(ctx, cacheKey(table)).Bytes()
	if err == nil {
		var rows [][]string
		if err := json.Unmarshal(data, &rows); err == nil {
			return rows, nil
		}
		// Unreadable entry, fall through to the backend.
		c.client.Del(ctx, cacheKey(table))
	} else if err != redis.Nil {
		c.logger.Warn().Err(err).Str("table", table).Msg("cache read failed")
	}

	rows, err := c.inner.Read(ctx, table)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(rows); err == nil {
		if err := c.client.Set(ctx, cacheKey(table), data, c.ttl).Err(); err != nil {
			c.logger.Warn().Err(err).Str("table", table).Msg("cache fill failed")
		}
	}
	return rows, nil
}

func (c *Cached) Write(ctx context.Context, table string, rows [][]string) error {
	if err := c.inner.Write(ctx, table, rows); err != nil {
		return err
	}
	c.invalidate(ctx, table)
	return nil
}

func (c *Cached) Append(ctx context.Context, table string, rows ...[]string) error {
	if err := c.inner.Append(ctx, table, rows...); err != nil {
		return err
	}
	c.invalidate(ctx, table)
	return nil
}

func (c *Cached) invalidate(ctx context.Context, table string) {
	if err := c.client.Del(ctx, cacheKey(table)).Err(); err != nil {
		c.logger.Warn().Err(err).Str("table", table).Msg("cache invalidation failed")
	}
}

func (c *Cached) Close() error {
	if err := c.client.Close(); err != nil {
		c.logger.Warn().Err(err).Msg("close redis client")
	}
	return c.inner.Close()
}
