package amqp

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rabbitmq/amqp091-go"

	"khatabook/internal/log"
)

const maxBackoff = 30 * time.Second

// exponentialBackoff returns 1s, 2s, 4s ... capped at maxBackoff.
func exponentialBackoff(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt > 5 {
		return maxBackoff
	}
	d := time.Second << attempt
	if d > maxBackoff {
		return maxBackoff
	}
	return d
}

// isConnectionError reports whether err means the broker connection is gone
// and a redial may help.
func isConnectionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, amqp091.ErrClosed) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, s := range []string{
		"connection refused",
		"connection closed",
		"eof",
		"broken pipe",
		"closed network connection",
		"message channel closed",
	} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

// ConsumeWithReconnect dials with dial and consumes batch saved messages,
// redialing with exponential backoff whenever the connection drops. It
// returns when ctx is cancelled or on a non-connection error.
func ConsumeWithReconnect(ctx context.Context, dial func() (*Client, error), handler BatchSavedHandler) error {
	logger := log.FromContext(ctx).WithComponent(log.ComponentAMQP)
	attempt := 0
	for {
		client, err := dial()
		if err == nil {
			attempt = 0
			err = client.ConsumeBatchSaved(ctx, handler)
			client.Close()
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !isConnectionError(err) {
			return err
		}

		wait := exponentialBackoff(attempt)
		attempt++
		logger.WarnContext(ctx, "AMQP connection lost, reconnecting",
			log.FieldError, err, "attempt", attempt, "backoff", wait.String())

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

