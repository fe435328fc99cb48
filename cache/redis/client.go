package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"go.pilab.hu/market/domain"
)

// Options configures the shared Redis connection.
type Options struct {
	Addr     string
	Username string
	Password string
	DB       int
	Timeout  time.Duration
}

// NewClient dials Redis once at startup and verifies the connection. The
// returned client is safe for concurrent use and must be closed on shutdown.
func NewClient(ctx context.Context, opts Options) (*redis.Client, error) {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}

	client := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Username:     opts.Username,
		Password:     opts.Password,
		DB:           opts.DB,
		DialTimeout:  timeout,
		ReadTimeout:  timeout,
		WriteTimeout: timeout,
	})

	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, wrapErr("ping redis", err)
	}

	log.Info().Str("addr", opts.Addr).Int("db", opts.DB).Msg("Redis client initialized successfully.")
	return client, nil
}

// wrapErr marks every Redis failure as unavailability. redis.Nil is handled
// by callers before this is reached.
func wrapErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, domain.ErrUnavailable, err)
}
