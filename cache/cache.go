package cache

import (
	"context"
	"log"

	"gateflow/config"

	"github.com/redis/go-redis/v9"
)

var Ctx = context.Background()
var Redis *redis.Client

// ConnectRedis is optional: the storefront works without a cache when
// REDIS_ADDR is unset.
func ConnectRedis() {
	if config.REDIS_ADDR == "" {
		log.Println("REDIS_ADDR not set, storefront cache disabled")
		return
	}

	Redis = redis.NewClient(&redis.Options{
		Addr:     config.REDIS_ADDR,
		Password: config.REDIS_PASSWORD,
		DB:       0,
	})

	if _, err := Redis.Ping(Ctx).Result(); err != nil {
		log.Printf("Failed to connect Redis, cache disabled: %v", err)
		Redis = nil
		return
	}

	log.Println("Redis connected (storefront cache)")
}
