// SPDX-License-Identifier: MIT

package remote

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/Muscled-clients-repo/unpuzzle-mvp-sub005/internal/store"
)

// RedisBackend stores entities in Redis: one hash per entity plus one
// sorted set per sibling group, scored by order. Sibling renumbering
// runs in a single transactional pipeline, so readers never observe a
// half-renumbered group.
type RedisBackend struct {
	client *redis.Client
	logger zerolog.Logger
}

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	Addr     string // Redis server address (host:port)
	Password string // Redis password (optional)
	DB       int    // Redis database number
}

// NewRedisBackend connects to Redis and verifies the connection.
func NewRedisBackend(cfg RedisConfig, logger zerolog.Logger) (*RedisBackend, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	logger.Info().
		Str("addr", cfg.Addr).
		Int("db", cfg.DB).
		Msg("connected to Redis backend")

	return &RedisBackend{client: client, logger: logger}, nil
}

// NewRedisBackendWithClient wraps an existing client; used by tests.
func NewRedisBackendWithClient(client *redis.Client, logger zerolog.Logger) *RedisBackend {
	return &RedisBackend{client: client, logger: logger}
}

// Close releases the underlying client.
func (b *RedisBackend) Close() error {
	return b.client.Close()
}

func entityKey(id string) string { return "entity:" + id }

func childrenKey(parent string) string {
	if parent == "" {
		parent = "_root"
	}
	return "children:" + parent
}

func entityFields(e store.Entity) map[string]any {
	return map[string]any{
		"kind":   string(e.Kind),
		"parent": e.Parent,
		"title":  e.Title,
		"ord":    e.Order,
		"status": string(e.Status),
	}
}

func entityFromHash(id string, h map[string]string) store.Entity {
	ord, _ := strconv.Atoi(h["ord"])
	return store.Entity{
		ID:     id,
		Kind:   store.Kind(h["kind"]),
		Parent: h["parent"],
		Title:  h["title"],
		Order:  ord,
		Status: store.Status(h["status"]),
	}
}

// Mutate applies one write.
func (b *RedisBackend) Mutate(ctx context.Context, m Mutation) (Result, error) {
	switch m.Kind {
	case MutationCreate:
		e := m.Entity
		if e.ID == "" || strings.HasPrefix(e.ID, "tmp-") {
			e.ID = uuid.NewString()
		}
		pipe := b.client.TxPipeline()
		pipe.HSet(ctx, entityKey(e.ID), entityFields(e))
		pipe.ZAdd(ctx, childrenKey(e.Parent), redis.Z{Score: float64(e.Order), Member: e.ID})
		if _, err := pipe.Exec(ctx); err != nil {
			return Result{}, fmt.Errorf("redis create: %w", err)
		}
		return Result{Success: true, Entity: &e}, nil

	case MutationRename:
		existing, err := b.FetchEntity(ctx, m.Entity.ID)
		if errors.Is(err, ErrNotFound) {
			return Result{Success: false, Err: "not found"}, nil
		}
		if err != nil {
			return Result{}, err
		}
		if err := b.client.HSet(ctx, entityKey(m.Entity.ID), "title", m.Entity.Title).Err(); err != nil {
			return Result{}, fmt.Errorf("redis rename: %w", err)
		}
		existing.Title = m.Entity.Title
		return Result{Success: true, Entity: &existing}, nil

	case MutationReorder:
		pipe := b.client.TxPipeline()
		key := childrenKey(m.Entity.Parent)
		for _, s := range m.Siblings {
			pipe.ZAdd(ctx, key, redis.Z{Score: float64(s.Order), Member: s.ID})
			pipe.HSet(ctx, entityKey(s.ID), "ord", s.Order)
		}
		if _, err := pipe.Exec(ctx); err != nil {
			return Result{}, fmt.Errorf("redis reorder: %w", err)
		}
		moved, err := b.FetchEntity(ctx, m.Entity.ID)
		if err != nil {
			return Result{}, err
		}
		return Result{Success: true, Entity: &moved}, nil

	case MutationDelete:
		existing, err := b.FetchEntity(ctx, m.Entity.ID)
		if errors.Is(err, ErrNotFound) {
			return Result{Success: false, Err: "not found"}, nil
		}
		if err != nil {
			return Result{}, err
		}
		pipe := b.client.TxPipeline()
		pipe.Del(ctx, entityKey(existing.ID))
		pipe.ZRem(ctx, childrenKey(existing.Parent), existing.ID)
		if _, err := pipe.Exec(ctx); err != nil {
			return Result{}, fmt.Errorf("redis delete: %w", err)
		}
		return Result{Success: true}, nil

	default:
		return Result{Success: false, Err: "unknown mutation kind"}, nil
	}
}

// FetchChildren returns entities under parent in zset score order.
func (b *RedisBackend) FetchChildren(ctx context.Context, parent string) ([]store.Entity, error) {
	ids, err := b.client.ZRange(ctx, childrenKey(parent), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis zrange: %w", err)
	}
	out := make([]store.Entity, 0, len(ids))
	for _, id := range ids {
		h, err := b.client.HGetAll(ctx, entityKey(id)).Result()
		if err != nil {
			return nil, fmt.Errorf("redis hgetall %s: %w", id, err)
		}
		if len(h) == 0 {
			// Index points at a deleted hash; skip rather than fail
			// the whole read.
			b.logger.Warn().Str("entity_id", id).Msg("dangling sibling index entry")
			continue
		}
		out = append(out, entityFromHash(id, h))
	}
	return out, nil
}

// FetchEntity returns one entity by id.
func (b *RedisBackend) FetchEntity(ctx context.Context, id string) (store.Entity, error) {
	h, err := b.client.HGetAll(ctx, entityKey(id)).Result()
	if err != nil {
		return store.Entity{}, fmt.Errorf("redis hgetall %s: %w", id, err)
	}
	if len(h) == 0 {
		return store.Entity{}, ErrNotFound
	}
	return entityFromHash(id, h), nil
}

var _ Backend = (*RedisBackend)(nil)
