//go:build !integration

package postgres

import (
	"context"
	"time"

	"expbox-billing/internal/domain/model"
	"expbox-billing/internal/domain/ports/repository"
	red "expbox-billing/internal/infra/redis"
)

// --- Mocks for Cache Decorator Tests ---

// mockInnerDurationRepo mocks the database repository the decorator wraps.
type mockInnerDurationRepo struct {
	SaveFunc     func(ctx context.Context, tx repository.Tx, d *model.BoxDuration) error
	FindByIDFunc func(ctx context.Context, tx repository.Tx, id string) (*model.BoxDuration, error)
	ListAllFunc  func(ctx context.Context, tx repository.Tx) ([]*model.BoxDuration, error)
}

func (m *mockInnerDurationRepo) Save(ctx context.Context, tx repository.Tx, d *model.BoxDuration) error {
	return m.SaveFunc(ctx, tx, d)
}

func (m *mockInnerDurationRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.BoxDuration, error) {
	return m.FindByIDFunc(ctx, tx, id)
}

func (m *mockInnerDurationRepo) ListAll(ctx context.Context, tx repository.Tx) ([]*model.BoxDuration, error) {
	return m.ListAllFunc(ctx, tx)
}

// mockRedisClient mocks our Redis client wrapper.
type mockRedisClient struct {
	GetFunc  func(ctx context.Context, key string) (string, error)
	SetFunc  func(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	DelFunc  func(ctx context.Context, keys ...string) error
	PingFunc func(ctx context.Context) error
}

var _ red.RedisClient = &mockRedisClient{}

func (m *mockRedisClient) Get(ctx context.Context, key string) (string, error) {
	return m.GetFunc(ctx, key)
}

func (m *mockRedisClient) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	if m.SetFunc == nil {
		return nil
	}
	return m.SetFunc(ctx, key, value, expiration)
}

func (m *mockRedisClient) Del(ctx context.Context, keys ...string) error {
	if m.DelFunc == nil {
		return nil
	}
	return m.DelFunc(ctx, keys...)
}

func (m *mockRedisClient) Ping(ctx context.Context) error {
	if m.PingFunc == nil {
		return nil
	}
	return m.PingFunc(ctx)
}

func (m *mockRedisClient) Close() error { return nil }
