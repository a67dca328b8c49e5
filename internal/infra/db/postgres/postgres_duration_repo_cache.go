package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"expbox-billing/internal/domain/model"
	"expbox-billing/internal/domain/ports/repository"
	"expbox-billing/internal/infra/metrics"
	red "expbox-billing/internal/infra/redis"
)

var _ repository.DurationCatalogRepository = (*durationRepoCacheDecorator)(nil)

// durationRepoCacheDecorator caches the tariff catalog in redis. The catalog
// changes rarely and is read on every checkout and reconciliation.
type durationRepoCacheDecorator struct {
	inner repository.DurationCatalogRepository
	cache red.RedisClient
	ttl   time.Duration
}

func NewDurationRepoCacheDecorator(inner repository.DurationCatalogRepository, cache red.RedisClient) repository.DurationCatalogRepository {
	return &durationRepoCacheDecorator{inner: inner, cache: cache, ttl: 1 * time.Hour}
}

func (d *durationRepoCacheDecorator) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.BoxDuration, error) {
	key := fmt.Sprintf("duration:%s", id)
	if val, err := d.cache.Get(ctx, key); err == nil {
		var dur model.BoxDuration
		if json.Unmarshal([]byte(val), &dur) == nil {
			metrics.IncCacheRequest("duration", "hit")
			return &dur, nil
		}
	} else if err != redis.Nil {
		// redis down; fall through to the database
	}

	metrics.IncCacheRequest("duration", "miss")
	dur, err := d.inner.FindByID(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if bytes, err := json.Marshal(dur); err == nil {
		_ = d.cache.Set(ctx, key, bytes, d.ttl)
	}
	return dur, nil
}

func (d *durationRepoCacheDecorator) Save(ctx context.Context, tx repository.Tx, dur *model.BoxDuration) error {
	_ = d.cache.Del(ctx, fmt.Sprintf("duration:%s", dur.ID), "durations:all")
	return d.inner.Save(ctx, tx, dur)
}

func (d *durationRepoCacheDecorator) ListAll(ctx context.Context, tx repository.Tx) ([]*model.BoxDuration, error) {
	const key = "durations:all"
	if val, err := d.cache.Get(ctx, key); err == nil {
		var out []*model.BoxDuration
		if json.Unmarshal([]byte(val), &out) == nil {
			metrics.IncCacheRequest("duration", "hit")
			return out, nil
		}
	}

	metrics.IncCacheRequest("duration", "miss")
	out, err := d.inner.ListAll(ctx, tx)
	if err != nil {
		return nil, err
	}
	if bytes, err := json.Marshal(out); err == nil {
		_ = d.cache.Set(ctx, key, bytes, d.ttl)
	}
	return out, nil
}
