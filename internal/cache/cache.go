// Package cache configures the Redis backend used for prediction caching.
// The serve orchestrator only consumes the resulting State; whether the
// backend is reachable is reported, never assumed.
package cache

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// State is the configurator's report. Amenable means the backend is
// actually usable for this serve (enabled and reachable); Configured
// means a live backend accepted our settings this call. The logical
// cache-enabled flag and Amenable may disagree and both are surfaced.
type State struct {
	Configured bool
	Amenable   bool
	Detail     string
}

// Redis applies the resolved cache settings to a Redis server.
type Redis struct {
	client *redis.Client
	log    zerolog.Logger
}

// NewRedis builds a configurator for the Redis server at addr.
func NewRedis(addr, password string, db int, log zerolog.Logger) *Redis {
	return &Redis{
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
			DB:       db,
		}),
		log: log,
	}
}

// Configure checks reachability and, when a memory fraction is given,
// caps Redis at that share of total system memory with an LRU policy.
func (r *Redis) Configure(ctx context.Context, enabled bool, maxMemoryFrac *float64) State {
	if !enabled {
		return State{Detail: "local cache disabled by request"}
	}
	if err := r.client.Ping(ctx).Err(); err != nil {
		return State{Detail: fmt.Sprintf("redis unreachable: %v", err)}
	}

	detail := "redis ready"
	configured := true
	if maxMemoryFrac != nil {
		limit, err := r.memoryLimit(ctx, *maxMemoryFrac)
		switch {
		case err != nil:
			r.log.Warn().Err(err).Msg("could not size cache memory budget")
			detail = fmt.Sprintf("redis ready; memory budget not applied: %v", err)
			configured = false
		default:
			if err := r.applyLimit(ctx, limit); err != nil {
				r.log.Warn().Err(err).Msg("could not apply cache memory budget")
				detail = fmt.Sprintf("redis ready; memory budget not applied: %v", err)
				configured = false
			} else {
				detail = fmt.Sprintf("redis ready; maxmemory=%d allkeys-lru", limit)
			}
		}
	}
	return State{Configured: configured, Amenable: true, Detail: detail}
}

func (r *Redis) memoryLimit(ctx context.Context, frac float64) (int64, error) {
	info, err := r.client.Info(ctx, "memory").Result()
	if err != nil {
		return 0, fmt.Errorf("redis info: %w", err)
	}
	total, ok := parseInfoInt(info, "total_system_memory")
	if !ok || total <= 0 {
		return 0, fmt.Errorf("total_system_memory not reported")
	}
	return int64(float64(total) * frac), nil
}

func (r *Redis) applyLimit(ctx context.Context, limit int64) error {
	if err := r.client.ConfigSet(ctx, "maxmemory", strconv.FormatInt(limit, 10)).Err(); err != nil {
		return fmt.Errorf("set maxmemory: %w", err)
	}
	if err := r.client.ConfigSet(ctx, "maxmemory-policy", "allkeys-lru").Err(); err != nil {
		return fmt.Errorf("set maxmemory-policy: %w", err)
	}
	return nil
}

// Close releases the underlying client.
func (r *Redis) Close() error { return r.client.Close() }

// parseInfoInt pulls an integer field out of a Redis INFO block.
func parseInfoInt(info, key string) (int64, bool) {
	for _, line := range strings.Split(info, "\n") {
		line = strings.TrimRight(line, "\r")
		if !strings.HasPrefix(line, key+":") {
			continue
		}
		v, err := strconv.ParseInt(strings.TrimPrefix(line, key+":"), 10, 64)
		if err != nil {
			return 0, false
		}
		return v, true
	}
	return 0, false
}

// Noop is a configurator that reports the backend as never amenable.
// It backs --no-cache deployments and tests.
type Noop struct{}

// Configure always reports an unusable backend.
func (Noop) Configure(context.Context, bool, *float64) State {
	return State{Detail: "cache backend disabled"}
}
