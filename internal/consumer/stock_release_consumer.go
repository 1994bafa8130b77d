package consumer

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/prudhivi99/Distributed-Systems/minishop-go/internal/models"
	"github.com/prudhivi99/Distributed-Systems/minishop-go/internal/publisher"
)

type StockReleaser interface {
	ReleaseStock(ctx context.Context, id, quantity int, deductKey string) (*models.StockResponse, error)
}

// StockReleaseConsumer undoes stock deducts whose purchase was abandoned.
type StockReleaseConsumer struct {
	items  StockReleaser
	logger *zap.Logger
}

func NewStockReleaseConsumer(items StockReleaser, logger *zap.Logger) *StockReleaseConsumer {
	return &StockReleaseConsumer{items: items, logger: logger}
}

func (c *StockReleaseConsumer) Handle(ctx context.Context, body []byte) error {
	var event models.StockReleaseEvent
	if err := decode(body, &event); err != nil {
		return err
	}
	if event.OperationKey == "" || event.ItemID <= 0 || event.Quantity <= 0 {
		return fmt.Errorf("%w: release event missing key, item or quantity", errMalformed)
	}

	resp, err := c.items.ReleaseStock(ctx, event.ItemID, event.Quantity, event.OperationKey)
	if err != nil {
		return fmt.Errorf("release %s: %w", event.OperationKey, err)
	}

	c.logger.Info("stock released",
		zap.Int("item_id", event.ItemID),
		zap.String("operation_key", event.OperationKey),
		zap.Bool("applied", resp.Applied),
		zap.Int("stock", resp.Stock))
	return nil
}

// Process handles stock.release_requested deliveries until ctx is done.
func (c *StockReleaseConsumer) Process(ctx context.Context, messages <-chan amqp.Delivery) {
	process(ctx, c.logger, publisher.StockReleaseRequestQueue, messages, c.Handle, retryDelay)
}
