package consumer

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/prudhivi99/Distributed-Systems/minishop-go/internal/models"
	"github.com/prudhivi99/Distributed-Systems/minishop-go/internal/publisher"
)

type WalletRefunder interface {
	Refund(ctx context.Context, username string, amount decimal.Decimal, debitKey string) (*models.WalletResponse, error)
}

// RefundConsumer retries wallet refunds the sales service gave up on.
// The refund is keyed by the debit it reverses, so redelivery is harmless.
type RefundConsumer struct {
	wallets WalletRefunder
	logger  *zap.Logger
}

func NewRefundConsumer(wallets WalletRefunder, logger *zap.Logger) *RefundConsumer {
	return &RefundConsumer{wallets: wallets, logger: logger}
}

func (c *RefundConsumer) Handle(ctx context.Context, body []byte) error {
	var event models.CompensationFailedEvent
	if err := decode(body, &event); err != nil {
		return err
	}
	if event.CustomerID == "" || event.DebitKey == "" || !event.Amount.IsPositive() {
		return fmt.Errorf("%w: refund event missing customer, key or amount", errMalformed)
	}

	wallet, err := c.wallets.Refund(ctx, event.CustomerID, event.Amount, event.DebitKey)
	if err != nil {
		return fmt.Errorf("refund %s: %w", event.DebitKey, err)
	}

	c.logger.Info("refund applied from compensation queue",
		zap.String("customer_id", event.CustomerID),
		zap.String("debit_key", event.DebitKey),
		zap.String("amount", event.Amount.StringFixed(2)),
		zap.Bool("applied", wallet.Applied),
		zap.String("balance", wallet.Balance.StringFixed(2)))
	return nil
}

// Process handles purchase.compensation_failed deliveries until ctx is done.
func (c *RefundConsumer) Process(ctx context.Context, messages <-chan amqp.Delivery) {
	process(ctx, c.logger, publisher.CompensationFailedQueue, messages, c.Handle, retryDelay)
}
