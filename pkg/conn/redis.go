package conn

import (
	"context"

	"github.com/redis/go-redis/v9"
	"github.com/yanun0323/errors"
)

// RedisOption describes a Redis connection.
type RedisOption struct {
	Addr     string
	Password string
	DB       int
}

// NewRedis connects and pings Redis.
func NewRedis(ctx context.Context, option RedisOption) (*redis.Client, error) {
	if option.Addr == "" {
		return nil, errors.New("redis addr is empty")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     option.Addr,
		Password: option.Password,
		DB:       option.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "ping redis")
	}
	return client, nil
}
