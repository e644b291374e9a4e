package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/afroash/envmon/internal/config"
	"github.com/afroash/envmon/internal/models"
)

type redisClient interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Ping(ctx context.Context) *redis.StatusCmd
	Close() error
}

// RedisCooldown lets one notification per sensor and severity through per
// window. The first alert claims the key; later ones find it taken.
type RedisCooldown struct {
	redis  redisClient
	window time.Duration
	logger zerolog.Logger
}

// NewRedisCooldown connects to the configured Redis
func NewRedisCooldown(cfg config.RedisSettings, window time.Duration, logger zerolog.Logger) *RedisCooldown {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return newRedisCooldown(client, window, logger)
}

func newRedisCooldown(client redisClient, window time.Duration, logger zerolog.Logger) *RedisCooldown {
	return &RedisCooldown{
		redis:  client,
		window: window,
		logger: logger.With().Str("component", "cooldown").Logger(),
	}
}

func cooldownKey(alert *models.Alert) string {
	return fmt.Sprintf("notify_cooldown:%s:%s", alert.SensorID, alert.Severity)
}

// Allow implements Cooldown. Redis errors let the alert through.
func (c *RedisCooldown) Allow(ctx context.Context, alert *models.Alert) bool {
	claimed, err := c.redis.SetNX(ctx, cooldownKey(alert), alert.ID, c.window).Result()
	if err != nil {
		c.logger.Warn().Err(err).Str("sensor_id", alert.SensorID).Msg("Cooldown check failed, notifying anyway")
		return true
	}
	return claimed
}

// Ping checks the Redis connection
func (c *RedisCooldown) Ping(ctx context.Context) error {
	if err := c.redis.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to reach Redis: %w", err)
	}
	return nil
}

// Close closes the Redis client
func (c *RedisCooldown) Close() error {
	return c.redis.Close()
}
