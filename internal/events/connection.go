package events

import (
	"context"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

type ConnectionOptions struct {
	URL           string
	RetryAttempts int
	Delay         time.Duration
	MaxDelay      time.Duration
	Logger        *slog.Logger
}

func (o ConnectionOptions) withDefaults() ConnectionOptions {
	if o.RetryAttempts <= 0 {
		o.RetryAttempts = 5
	}
	if o.Delay <= 0 {
		o.Delay = 500 * time.Millisecond
	}
	if o.MaxDelay <= 0 {
		o.MaxDelay = 10 * time.Second
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// DialWithRetry connects to the broker with capped exponential backoff.
// It gives up early when ctx is cancelled.
func DialWithRetry(ctx context.Context, opts ConnectionOptions) (*amqp.Connection, error) {
	opts = opts.withDefaults()
	var lastErr error
	for i := 1; i <= opts.RetryAttempts; i++ {
		conn, err := amqp.Dial(opts.URL)
		if err == nil {
			if i > 1 {
				opts.Logger.Info("amqp connected", slog.Int("attempt", i))
			}
			return conn, nil
		}
		lastErr = err

		if i == opts.RetryAttempts {
			break
		}
		sleep := backoff(opts.Delay, opts.MaxDelay, i)
		opts.Logger.Warn("amqp dial failed",
			slog.Int("attempt", i),
			slog.Duration("sleep", sleep),
			slog.Any("error", err),
		)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(sleep):
		}
	}
	return nil, lastErr
}

func backoff(base, max time.Duration, attempt int) time.Duration {
	if attempt > 30 {
		return max
	}
	d := base << (attempt - 1)
	if d <= 0 || d > max {
		return max
	}
	return d
}
