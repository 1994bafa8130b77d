package publisher

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/prudhivi99/Distributed-Systems/minishop-go/internal/models"
)

// Queues carrying purchase saga events.
const (
	PurchaseCompletedQueue   = "purchase.completed"
	CompensationFailedQueue  = "purchase.compensation_failed"
	LedgerWriteFailedQueue   = "purchase.ledger_write_failed"
	StockReleaseRequestQueue = "stock.release_requested"
)

// Queues lists every queue the publisher writes to.
var Queues = []string{
	PurchaseCompletedQueue,
	CompensationFailedQueue,
	LedgerWriteFailedQueue,
	StockReleaseRequestQueue,
}

// Broker is the subset of messaging.RabbitMQ the publisher needs.
type Broker interface {
	DeclareQueue(name string) error
	Publish(ctx context.Context, queue string, message []byte) error
}

type PurchasePublisher struct {
	mq Broker
}

func NewPurchasePublisher(mq Broker) (*PurchasePublisher, error) {
	for _, q := range Queues {
		if err := mq.DeclareQueue(q); err != nil {
			return nil, err
		}
	}
	return &PurchasePublisher{mq: mq}, nil
}

func (p *PurchasePublisher) publish(ctx context.Context, queue string, event any) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	return p.mq.Publish(ctx, queue, data)
}

// PublishPurchaseCompleted publishes a purchase.completed event
func (p *PurchasePublisher) PublishPurchaseCompleted(ctx context.Context, e models.PurchaseCompletedEvent) error {
	return p.publish(ctx, PurchaseCompletedQueue, e)
}

// PublishCompensationFailed hands an unresolved refund to the customer service.
func (p *PurchasePublisher) PublishCompensationFailed(ctx context.Context, e models.CompensationFailedEvent) error {
	return p.publish(ctx, CompensationFailedQueue, e)
}

func (p *PurchasePublisher) PublishStockRelease(ctx context.Context, e models.StockReleaseEvent) error {
	return p.publish(ctx, StockReleaseRequestQueue, e)
}

func (p *PurchasePublisher) PublishLedgerWriteFailed(ctx context.Context, e models.LedgerWriteFailedEvent) error {
	return p.publish(ctx, LedgerWriteFailedQueue, e)
}
