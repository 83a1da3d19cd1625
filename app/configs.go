package app

import (
	"context"
	"crypto/tls"
	"fmt"

	"github.com/RezaEskandarii/bulkmail/types/config"
	"github.com/redis/go-redis/v9"
)

func newRedisClient(ctx context.Context, rc config.RedisConfig) (redis.UniversalClient, error) {
	opts := &redis.Options{
		Addr:     rc.Address,
		Username: rc.Username,
		Password: rc.Password,
		DB:       rc.DB,
	}
	if rc.UseTLS {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", rc.Address, err)
	}
	return client, nil
}
