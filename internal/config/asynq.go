package config

import (
	"fmt"
	"strings"

	"github.com/hibiken/asynq"
)

// AsynqRedisOpt builds the asynq connection options from the same settings
// the redis client uses, accepting either a bare host:port or a redis URL.
func AsynqRedisOpt(cfg *Config) (asynq.RedisConnOpt, error) {
	if strings.HasPrefix(cfg.RedisURL, "redis://") || strings.HasPrefix(cfg.RedisURL, "rediss://") {
		opt, err := asynq.ParseRedisURI(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse Redis URL: %v", err)
		}
		return opt, nil
	}

	return asynq.RedisClientOpt{
		Addr:     cfg.RedisURL,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}, nil
}
