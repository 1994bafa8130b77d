// Package consumer holds the RabbitMQ consumers that finish saga work the
// sales service could not complete inline.
package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/prudhivi99/Distributed-Systems/minishop-go/internal/apperr"
)

// errMalformed marks a message that can never be processed.
var errMalformed = errors.New("malformed message")

const retryDelay = 2 * time.Second

type handlerFunc func(ctx context.Context, body []byte) error

func decode(body []byte, v any) error {
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("%w: %v", errMalformed, err)
	}
	return nil
}

// permanent reports whether redelivering the message cannot help.
func permanent(err error) bool {
	if errors.Is(err, errMalformed) {
		return true
	}
	switch apperr.CodeOf(err) {
	case apperr.CodeServiceUnavailable, apperr.CodeInternal:
		return false
	}
	return true
}

// process handles deliveries until ctx is done or the channel closes.
// Failed messages that may succeed later are requeued after a short delay.
func process(ctx context.Context, logger *zap.Logger, queue string, messages <-chan amqp.Delivery, handle handlerFunc, delay time.Duration) {
	log := logger.With(zap.String("queue", queue))
	for {
		var msg amqp.Delivery
		var ok bool
		select {
		case <-ctx.Done():
			return
		case msg, ok = <-messages:
			if !ok {
				log.Warn("delivery channel closed")
				return
			}
		}

		err := handle(ctx, msg.Body)
		switch {
		case err == nil:
			if ackErr := msg.Ack(false); ackErr != nil {
				log.Error("failed to ack message", zap.Error(ackErr))
			}
		case permanent(err):
			log.Error("dropping message", zap.Error(err), zap.ByteString("body", msg.Body))
			_ = msg.Nack(false, false)
		default:
			log.Warn("message failed, requeueing", zap.Error(err), zap.Bool("redelivered", msg.Redelivered))
			select {
			case <-ctx.Done():
			case <-time.After(delay):
			}
			_ = msg.Nack(false, true)
		}
	}
}
