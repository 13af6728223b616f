package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/st20medic/trucks/internal/config"
	"github.com/st20medic/trucks/internal/domain"
)

type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(ctx context.Context, cfg *config.Config) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.RedisAddr,
		Password:     cfg.RedisPassword,
		DB:           cfg.RedisDB,
		PoolSize:     10,
		MinIdleConns: 2,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisStore{client: client}, nil
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}

func (r *RedisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// CacheVehicleAlerts stores the latest evaluated alert state for one vehicle so
// the dashboard can read it without re-running the rules. Refreshed every pass;
// the TTL keeps a dead pipeline from serving stale state forever.
func (r *RedisStore) CacheVehicleAlerts(ctx context.Context, vehicleID string, alerts []domain.Alert, outOfService bool, evaluatedAt time.Time, ttl time.Duration) error {
	payload, err := json.Marshal(map[string]interface{}{
		"vehicle_id":     vehicleID,
		"alerts":         alerts,
		"out_of_service": outOfService,
		"evaluated_at":   evaluatedAt.Unix(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal alert state: %w", err)
	}

	key := fmt.Sprintf("vehicle:%s:alerts", vehicleID)
	if err := r.client.Set(ctx, key, payload, ttl).Err(); err != nil {
		return fmt.Errorf("redis alert cache set failed: %w", err)
	}
	return nil
}

// PublishDigestEvent announces a successfully dispatched digest on the fleet
// alerts channel for any live dashboard subscribers.
func (r *RedisStore) PublishDigestEvent(ctx context.Context, payload []byte) error {
	return r.client.Publish(ctx, "fleet:alerts:digest", payload).Err()
}

// GetStaffKey resolves a staff API key to a staff member id. Empty string means
// unknown key.
func (r *RedisStore) GetStaffKey(ctx context.Context, apiKey string) (string, error) {
	key := fmt.Sprintf("staff:auth:%s", apiKey)
	val, err := r.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("redis get staff key failed: %w", err)
	}
	return val, nil
}
