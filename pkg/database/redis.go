package database

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

var RedisClient *redis.Client

func NewRedisClient(redisURL string) (*redis.Client, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	RedisClient = client
	log.Info().Msg("Connected to Redis")

	return client, nil
}

func CloseRedis() {
	if RedisClient != nil {
		if err := RedisClient.Close(); err != nil {
			log.Error().Err(err).Msg("Error closing Redis connection")
		} else {
			log.Info().Msg("Closed Redis connection")
		}
	}
}

// Redis key prefixes for organization
const (
	KeyPrefixUserPresence = "presence:user:"
	KeyPrefixRateLimit    = "ratelimit:"
)

// User presence
func SetUserPresence(ctx context.Context, userID string, status string, expiry time.Duration) error {
	return RedisClient.Set(ctx, KeyPrefixUserPresence+userID, status, expiry).Err()
}

func GetUserPresence(ctx context.Context, userID string) (string, error) {
	return RedisClient.Get(ctx, KeyPrefixUserPresence+userID).Result()
}

// Rate limiting
func IncrementRateLimit(ctx context.Context, key string, window time.Duration) (int64, error) {
	fullKey := KeyPrefixRateLimit + key
	pipe := RedisClient.Pipeline()
	incr := pipe.Incr(ctx, fullKey)
	pipe.Expire(ctx, fullKey, window)
	_, err := pipe.Exec(ctx)
	if err != nil {
		return 0, err
	}
	return incr.Val(), nil
}
