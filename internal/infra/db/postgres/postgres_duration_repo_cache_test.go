//go:build !integration

package postgres

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"

	"expbox-billing/internal/domain/model"
	"expbox-billing/internal/domain/ports/repository"
)

func TestDurationRepoCacheDecorator(t *testing.T) {
	ctx := context.Background()
	dur := &model.BoxDuration{ID: "dur-3m", Name: "Quarterly", Months: 3, PriceMinor: 150000, Currency: "EUR"}
	durJSON, _ := json.Marshal(dur)

	t.Run("FindByID should return from cache on hit", func(t *testing.T) {
		// Arrange
		mockRedis := &mockRedisClient{
			GetFunc: func(ctx context.Context, key string) (string, error) {
				return string(durJSON), nil // cache hit
			},
		}
		innerRepoCalled := false
		mockInnerRepo := &mockInnerDurationRepo{
			FindByIDFunc: func(ctx context.Context, tx repository.Tx, id string) (*model.BoxDuration, error) {
				innerRepoCalled = true
				return nil, nil
			},
		}

		decorator := NewDurationRepoCacheDecorator(mockInnerRepo, mockRedis)

		// Act
		result, err := decorator.FindByID(ctx, nil, "dur-3m")

		// Assert
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if innerRepoCalled {
			t.Error("inner repository should not be called on a cache hit")
		}
		if result == nil || result.ID != "dur-3m" {
			t.Error("did not return the correct duration from cache")
		}
	})

	t.Run("FindByID should fall through and populate on miss", func(t *testing.T) {
		// Arrange
		var setKey string
		mockRedis := &mockRedisClient{
			GetFunc: func(ctx context.Context, key string) (string, error) {
				return "", redis.Nil // cache miss
			},
			SetFunc: func(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
				setKey = key
				return nil
			},
		}
		mockInnerRepo := &mockInnerDurationRepo{
			FindByIDFunc: func(ctx context.Context, tx repository.Tx, id string) (*model.BoxDuration, error) {
				return dur, nil
			},
		}

		decorator := NewDurationRepoCacheDecorator(mockInnerRepo, mockRedis)

		// Act
		result, err := decorator.FindByID(ctx, nil, "dur-3m")

		// Assert
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if result == nil || result.ID != "dur-3m" {
			t.Error("did not return the duration from the inner repository")
		}
		if setKey != "duration:dur-3m" {
			t.Errorf("expected the result to be cached under duration:dur-3m, got %q", setKey)
		}
	})

	t.Run("Save should invalidate the cache", func(t *testing.T) {
		// Arrange
		var deletedKeys []string
		mockRedis := &mockRedisClient{
			DelFunc: func(ctx context.Context, keys ...string) error {
				deletedKeys = append(deletedKeys, keys...)
				return nil
			},
		}
		mockInnerRepo := &mockInnerDurationRepo{
			SaveFunc: func(ctx context.Context, tx repository.Tx, d *model.BoxDuration) error {
				return nil
			},
		}

		decorator := NewDurationRepoCacheDecorator(mockInnerRepo, mockRedis)

		// Act
		if err := decorator.Save(ctx, nil, dur); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		// Assert
		want := map[string]bool{"duration:dur-3m": false, "durations:all": false}
		for _, k := range deletedKeys {
			if _, ok := want[k]; ok {
				want[k] = true
			}
		}
		for k, seen := range want {
			if !seen {
				t.Errorf("expected key %q to be invalidated", k)
			}
		}
	})
}
