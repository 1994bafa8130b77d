package consumer

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/prudhivi99/Distributed-Systems/minishop-go/internal/apperr"
	"github.com/prudhivi99/Distributed-Systems/minishop-go/internal/models"
	"github.com/prudhivi99/Distributed-Systems/minishop-go/internal/publisher"
)

type PurchaseAppender interface {
	Append(ctx context.Context, p *models.Purchase) error
}

type CommitRecorder interface {
	MarkCommitted(ctx context.Context, key string, p *models.Purchase) error
}

// LedgerRepairConsumer appends committed purchases whose ledger write failed.
// Append is idempotent on the purchase's idempotency key.
type LedgerRepairConsumer struct {
	ledger   PurchaseAppender
	attempts CommitRecorder
	logger   *zap.Logger
}

func NewLedgerRepairConsumer(ledger PurchaseAppender, attempts CommitRecorder, logger *zap.Logger) *LedgerRepairConsumer {
	return &LedgerRepairConsumer{ledger: ledger, attempts: attempts, logger: logger}
}

func (c *LedgerRepairConsumer) Handle(ctx context.Context, body []byte) error {
	var event models.LedgerWriteFailedEvent
	if err := decode(body, &event); err != nil {
		return err
	}
	if event.IdempotencyKey == "" {
		return fmt.Errorf("%w: ledger event without idempotency key", errMalformed)
	}

	p := event.Purchase
	p.IdempotencyKey = event.IdempotencyKey
	if err := c.ledger.Append(ctx, &p); err != nil {
		// Storage errors are worth another try.
		return apperr.Wrap(err, apperr.CodeServiceUnavailable, "ledger still unavailable")
	}

	// Replays of the key should return the record with its ledger id.
	if err := c.attempts.MarkCommitted(ctx, event.IdempotencyKey, &p); err != nil {
		c.logger.Warn("failed to update attempt after ledger repair",
			zap.String("idempotency_key", event.IdempotencyKey), zap.Error(err))
	}

	c.logger.Info("ledger repaired",
		zap.String("idempotency_key", event.IdempotencyKey),
		zap.Int64("purchase_id", p.ID))
	return nil
}

// Process handles purchase.ledger_write_failed deliveries until ctx is done.
func (c *LedgerRepairConsumer) Process(ctx context.Context, messages <-chan amqp.Delivery) {
	process(ctx, c.logger, publisher.LedgerWriteFailedQueue, messages, c.Handle, retryDelay)
}
