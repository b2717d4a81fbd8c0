// Package cache holds the optional Redis-backed cache of the master list.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/R3E-Network/barbershop/internal/app/domain/master"
	"github.com/R3E-Network/barbershop/pkg/logger"
)

const (
	mastersKey = "barbershop:masters"
	defaultTTL = 5 * time.Minute
)

// Masters caches the full master list.
type Masters interface {
	Get(ctx context.Context) ([]master.Master, bool)
	Set(ctx context.Context, masters []master.Master)
	Invalidate(ctx context.Context)
}

// Noop never caches.
type Noop struct{}

func (Noop) Get(context.Context) ([]master.Master, bool) { return nil, false }
func (Noop) Set(context.Context, []master.Master)        {}
func (Noop) Invalidate(context.Context)                  {}

// Redis stores the master list as JSON under a single key. Failures are
// logged and treated as cache misses.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
	log    *logger.Logger
}

var (
	_ Masters = Noop{}
	_ Masters = (*Redis)(nil)
)

// NewRedis parses url (redis://...) and pings the server.
func NewRedis(ctx context.Context, url string, log *logger.Logger) (*Redis, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return NewRedisWithClient(client, log), nil
}

// NewRedisWithClient wraps an existing client.
func NewRedisWithClient(client *redis.Client, log *logger.Logger) *Redis {
	if log == nil {
		log = logger.NewDefault("cache")
	}
	return &Redis{client: client, ttl: defaultTTL, log: log}
}

func (r *Redis) Get(ctx context.Context) ([]master.Master, bool) {
	raw, err := r.client.Get(ctx, mastersKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false
	}
	if err != nil {
		r.log.WithError(err).Warn("read master cache")
		return nil, false
	}
	var out []master.Master
	if err := json.Unmarshal(raw, &out); err != nil {
		r.log.WithError(err).Warn("decode master cache")
		return nil, false
	}
	return out, true
}

func (r *Redis) Set(ctx context.Context, masters []master.Master) {
	raw, err := json.Marshal(masters)
	if err != nil {
		r.log.WithError(err).Warn("encode master cache")
		return
	}
	if err := r.client.Set(ctx, mastersKey, raw, r.ttl).Err(); err != nil {
		r.log.WithError(err).Warn("write master cache")
	}
}

func (r *Redis) Invalidate(ctx context.Context) {
	if err := r.client.Del(ctx, mastersKey).Err(); err != nil {
		r.log.WithError(err).Warn("invalidate master cache")
	}
}

// Close releases the client.
func (r *Redis) Close() error {
	return r.client.Close()
}
