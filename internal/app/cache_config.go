package app

import (
	"crypto/tls"
	"strings"

	"github.com/redis/go-redis/v9"
)

// RedisOptions converts the application cache configuration into go-redis client options.
func (c CacheConfig) RedisOptions() *redis.Options {
	opts := &redis.Options{
		Addr:     strings.TrimSpace(c.Redis.Address),
		Username: strings.TrimSpace(c.Redis.Username),
		Password: c.Redis.Password,
		DB:       c.Redis.DB,
	}
	if c.Redis.Timeout > 0 {
		opts.DialTimeout = c.Redis.Timeout
		opts.ReadTimeout = c.Redis.Timeout
		opts.WriteTimeout = c.Redis.Timeout
	}
	if c.Redis.TLS {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	return opts
}
