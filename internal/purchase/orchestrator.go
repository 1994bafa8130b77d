// Package purchase runs the cross-service purchase saga hosted by the sales
// service.
//
// A purchase reads the item and the customer's balance, debits the wallet,
// deducts stock and appends the record to the sales ledger. Each remote call
// is bounded by purchase.call_timeout and carries an operation key derived
// from the attempt, so a step whose outcome is unknown can be reversed by key
// whether or not it landed. The wallet debit always precedes the stock
// deduct: if anything after the debit fails, the debit is refunded before the
// error is returned.
package purchase

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/prudhivi99/Distributed-Systems/minishop-go/internal/apperr"
	"github.com/prudhivi99/Distributed-Systems/minishop-go/internal/config"
	"github.com/prudhivi99/Distributed-Systems/minishop-go/internal/logging"
	"github.com/prudhivi99/Distributed-Systems/minishop-go/internal/metrics"
	"github.com/prudhivi99/Distributed-Systems/minishop-go/internal/models"
)

const maxKeyLength = 128

// CustomerLedger is the wallet side of the customer service.
type CustomerLedger interface {
	GetBalance(ctx context.Context, username string) (decimal.Decimal, error)
	Deduct(ctx context.Context, username string, amount decimal.Decimal, key string) (decimal.Decimal, error)
	Refund(ctx context.Context, username string, amount decimal.Decimal, debitKey string) (decimal.Decimal, error)
}

// Inventory is the stock side of the inventory service.
type Inventory interface {
	GetItem(ctx context.Context, itemID int) (*models.Item, error)
	DeductStock(ctx context.Context, itemID, quantity int, key string) (int, error)
	ReleaseStock(ctx context.Context, itemID, quantity int, deductKey string) (int, error)
}

// Ledger is the append-only purchase store.
type Ledger interface {
	Append(ctx context.Context, p *models.Purchase) error
	ListByCustomer(ctx context.Context, customerID string) ([]models.Purchase, error)
}

type AttemptStore interface {
	Begin(ctx context.Context, a models.PurchaseAttempt) (*models.PurchaseAttempt, bool, error)
	MarkDebiting(ctx context.Context, key string, amount decimal.Decimal) error
	MarkCommitted(ctx context.Context, key string, p *models.Purchase) error
	MarkFailed(ctx context.Context, key string, code apperr.Code, message string) error
	MarkCompensationFailed(ctx context.Context, key string, amount decimal.Decimal, message string) error
}

type EventPublisher interface {
	PublishPurchaseCompleted(ctx context.Context, e models.PurchaseCompletedEvent) error
	PublishCompensationFailed(ctx context.Context, e models.CompensationFailedEvent) error
	PublishStockRelease(ctx context.Context, e models.StockReleaseEvent) error
	PublishLedgerWriteFailed(ctx context.Context, e models.LedgerWriteFailedEvent) error
}

// Deps are the collaborators of an Orchestrator. Events and Metrics may be nil.
type Deps struct {
	Customers CustomerLedger
	Inventory Inventory
	Ledger    Ledger
	Attempts  AttemptStore
	Events    EventPublisher
	Metrics   *metrics.Metrics
}

type Orchestrator struct {
	customers CustomerLedger
	inventory Inventory
	ledger    Ledger
	attempts  AttemptStore
	events    EventPublisher
	metrics   *metrics.Metrics
	cfg       config.PurchaseConfig

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration)
}

func NewOrchestrator(deps Deps, cfg config.PurchaseConfig) *Orchestrator {
	if cfg.CompensationAttempts < 1 {
		cfg.CompensationAttempts = 1
	}
	return &Orchestrator{
		customers: deps.Customers,
		inventory: deps.Inventory,
		ledger:    deps.Ledger,
		attempts:  deps.Attempts,
		events:    deps.Events,
		metrics:   deps.Metrics,
		cfg:       cfg,
		now:       time.Now,
		sleep:     sleepContext,
	}
}

func sleepContext(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}

// Request is one purchase submission. An empty IdempotencyKey gets a
// generated one, which makes the submission non-repeatable.
type Request struct {
	CustomerID     string
	ItemID         int
	Quantity       int
	IdempotencyKey string
}

func (r Request) validate() error {
	switch {
	case strings.TrimSpace(r.CustomerID) == "":
		return apperr.New(apperr.CodeValidation, "customer_id is required")
	case r.ItemID <= 0:
		return apperr.New(apperr.CodeValidation, "item_id must be a positive integer").With("item_id", r.ItemID)
	case r.Quantity < 1:
		return apperr.New(apperr.CodeValidation, "quantity must be a positive integer").With("quantity", r.Quantity)
	case len(r.IdempotencyKey) > maxKeyLength:
		return apperr.Newf(apperr.CodeValidation, "idempotency key longer than %d characters", maxKeyLength)
	}
	return nil
}

// Submit executes a purchase, or returns the recorded outcome of an earlier
// submission with the same idempotency key.
func (o *Orchestrator) Submit(ctx context.Context, req Request) (*models.Purchase, error) {
	p, err := o.submit(ctx, req)
	if err != nil {
		o.metrics.ObservePurchase(string(apperr.CodeOf(err)))
	} else {
		o.metrics.ObservePurchase("committed")
	}
	return p, err
}

func (o *Orchestrator) submit(ctx context.Context, req Request) (*models.Purchase, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	key := req.IdempotencyKey
	if key == "" {
		key = uuid.NewString()
	}

	attempt, claimed, err := o.attempts.Begin(ctx, models.PurchaseAttempt{
		Key:        key,
		CustomerID: req.CustomerID,
		ItemID:     req.ItemID,
		Quantity:   req.Quantity,
	})
	if err != nil {
		return nil, apperr.Wrap(err, apperr.CodeInternal, "failed to record purchase attempt")
	}

	log := logging.FromContext(ctx).With(
		zap.String("idempotency_key", key),
		zap.String("customer_id", req.CustomerID),
		zap.Int("item_id", req.ItemID),
		zap.Int("quantity", req.Quantity),
	)

	if !claimed {
		log.Info("replaying purchase attempt", zap.String("status", attempt.Status))
		return replay(attempt, req)
	}
	return o.run(ctx, log, attempt)
}

// replay answers a resubmitted key from its stored attempt.
func replay(a *models.PurchaseAttempt, req Request) (*models.Purchase, error) {
	if !a.Matches(req.CustomerID, req.ItemID, req.Quantity) {
		return nil, apperr.New(apperr.CodeIdempotencyReused, "idempotency key was used for a different purchase").
			With("idempotency_key", a.Key)
	}
	switch a.Status {
	case models.AttemptCommitted:
		if a.Purchase == nil {
			return nil, apperr.New(apperr.CodeInternal, "committed attempt has no purchase record")
		}
		return a.Purchase, nil
	case models.AttemptInProgress:
		return nil, apperr.New(apperr.CodeRequestInProgress, "a purchase with this idempotency key is in progress").
			With("idempotency_key", a.Key)
	case models.AttemptCompensationFailed:
		return nil, compensationFailed(a, a.Amount)
	default:
		code := apperr.Code(a.ErrorCode)
		if code == "" {
			code = apperr.CodeTransactionFailed
		}
		return nil, apperr.New(code, a.ErrorMessage).With("idempotency_key", a.Key)
	}
}

func (o *Orchestrator) run(ctx context.Context, log *zap.Logger, a *models.PurchaseAttempt) (*models.Purchase, error) {
	item, err := o.getItem(ctx, a.ItemID)
	if err != nil {
		return nil, o.fail(ctx, log, a, err)
	}

	balance, err := o.getBalance(ctx, a.CustomerID)
	if err != nil {
		return nil, o.fail(ctx, log, a, err)
	}

	total := item.Price.Mul(decimal.NewFromInt(int64(a.Quantity)))

	if balance.LessThan(total) {
		return nil, o.fail(ctx, log, a, apperr.New(apperr.CodeInsufficientFunds, "insufficient funds").
			With("required_amount", total.StringFixed(2)).
			With("available_amount", balance.StringFixed(2)))
	}
	if item.Stock < a.Quantity {
		return nil, o.fail(ctx, log, a, apperr.New(apperr.CodeInsufficientStock, "insufficient stock").
			With("item_id", a.ItemID).
			With("requested", a.Quantity).
			With("available", item.Stock))
	}

	if err := o.attempts.MarkDebiting(ctx, a.Key, total); err != nil {
		return nil, o.fail(ctx, log, a, apperr.Wrap(err, apperr.CodeInternal, "failed to record purchase attempt"))
	}

	// Once money may move the saga finishes even if the caller goes away.
	ctx = context.WithoutCancel(ctx)

	err = o.call(ctx, func(ctx context.Context) error {
		_, err := o.customers.Deduct(ctx, a.CustomerID, total, a.DebitKey())
		return err
	})
	if err != nil {
		if !ambiguous(err) {
			return nil, o.fail(ctx, log, a, transactionFailed("debit_wallet", err))
		}
		log.Warn("wallet debit outcome unknown, refunding", zap.Error(err))
		return nil, o.compensate(ctx, log, a, total, "debit_wallet", err, false)
	}

	err = o.call(ctx, func(ctx context.Context) error {
		_, err := o.inventory.DeductStock(ctx, a.ItemID, a.Quantity, a.StockKey())
		return err
	})
	if err != nil {
		log.Warn("stock deduct failed, compensating", zap.Error(err), zap.Bool("ambiguous", ambiguous(err)))
		return nil, o.compensate(ctx, log, a, total, "deduct_stock", err, ambiguous(err))
	}

	return o.commit(ctx, log, a, item, total), nil
}

func (o *Orchestrator) getItem(ctx context.Context, itemID int) (*models.Item, error) {
	var item *models.Item
	err := o.call(ctx, func(ctx context.Context) error {
		var err error
		item, err = o.inventory.GetItem(ctx, itemID)
		return err
	})
	switch {
	case err == nil:
		return item, nil
	case apperr.Is(err, apperr.CodeItemNotFound), apperr.Is(err, apperr.CodeNotFound):
		return nil, apperr.Newf(apperr.CodeItemNotFound, "item %d not found", itemID).With("item_id", itemID)
	default:
		return nil, transactionFailed("get_item", err)
	}
}

func (o *Orchestrator) getBalance(ctx context.Context, customerID string) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := o.call(ctx, func(ctx context.Context) error {
		var err error
		balance, err = o.customers.GetBalance(ctx, customerID)
		return err
	})
	switch {
	case err == nil:
		return balance, nil
	case apperr.Is(err, apperr.CodeCustomerNotFound), apperr.Is(err, apperr.CodeNotFound):
		return decimal.Zero, apperr.Newf(apperr.CodeCustomerNotFound, "customer %s not found", customerID).
			With("customer_id", customerID)
	default:
		return decimal.Zero, transactionFailed("get_balance", err)
	}
}

// call runs fn under the per-call timeout.
func (o *Orchestrator) call(ctx context.Context, fn func(ctx context.Context) error) error {
	callCtx, cancel := context.WithTimeout(ctx, o.cfg.CallTimeout)
	defer cancel()
	return fn(callCtx)
}

// ambiguous reports whether a failed remote mutation may still have been
// applied. Only a structured rejection from the remote service proves it was not.
func ambiguous(err error) bool {
	switch apperr.CodeOf(err) {
	case apperr.CodeServiceUnavailable, apperr.CodeInternal:
		return true
	}
	return false
}

func transactionFailed(step string, cause error) *apperr.Error {
	return apperr.Wrap(cause, apperr.CodeTransactionFailed, "purchase could not be completed").
		With("step", step).
		With("cause", string(apperr.CodeOf(cause)))
}

func compensationFailed(a *models.PurchaseAttempt, amount decimal.Decimal) *apperr.Error {
	return apperr.New(apperr.CodeCompensationFailed, "purchase failed and the wallet refund could not be applied").
		With("customer_id", a.CustomerID).
		With("amount", amount.StringFixed(2)).
		With("item_id", a.ItemID).
		With("quantity", a.Quantity).
		With("idempotency_key", a.Key)
}

// fail records a failed attempt; the attempt has no outstanding effects and
// may be retried with the same key.
func (o *Orchestrator) fail(ctx context.Context, log *zap.Logger, a *models.PurchaseAttempt, err error) error {
	code := apperr.CodeOf(err)
	message := err.Error()
	if ae, ok := apperr.As(err); ok {
		message = ae.Message
	}
	if markErr := o.attempts.MarkFailed(context.WithoutCancel(ctx), a.Key, code, message); markErr != nil {
		log.Error("failed to record failed attempt", zap.Error(markErr))
	}
	log.Info("purchase rejected", zap.String("code", string(code)), zap.Error(err))
	return err
}

// retry runs a keyed compensating action until it succeeds, is rejected, or
// runs out of attempts.
func (o *Orchestrator) retry(ctx context.Context, action string, fn func(ctx context.Context) error) error {
	var err error
	for i := 1; i <= o.cfg.CompensationAttempts; i++ {
		if err = o.call(ctx, fn); err == nil {
			o.metrics.ObserveCompensation(action, "success")
			return nil
		}
		if !ambiguous(err) {
			break
		}
		if i < o.cfg.CompensationAttempts {
			o.sleep(ctx, o.cfg.CompensationBackoff*time.Duration(i))
		}
	}
	o.metrics.ObserveCompensation(action, "failure")
	return err
}

// compensate reverses the debit and, when the stock deduct may have landed,
// the stock deduct. The returned error is what the caller reports.
func (o *Orchestrator) compensate(ctx context.Context, log *zap.Logger, a *models.PurchaseAttempt,
	total decimal.Decimal, step string, cause error, releaseStock bool) error {
	if releaseStock {
		err := o.retry(ctx, "release_stock", func(ctx context.Context) error {
			_, err := o.inventory.ReleaseStock(ctx, a.ItemID, a.Quantity, a.StockKey())
			return err
		})
		if err != nil {
			log.Error("stock release failed, queued for retry",
				zap.String("event", "stock_release_failed"),
				zap.String("operation_key", a.StockKey()),
				zap.Error(err))
			o.publish(log, "stock.release_requested", func(pub EventPublisher) error {
				return pub.PublishStockRelease(ctx, models.StockReleaseEvent{
					OperationKey: a.StockKey(),
					ItemID:       a.ItemID,
					Quantity:     a.Quantity,
					OccurredAt:   o.now().UTC(),
				})
			})
		}
	}

	err := o.retry(ctx, "refund", func(ctx context.Context) error {
		_, err := o.customers.Refund(ctx, a.CustomerID, total, a.DebitKey())
		return err
	})
	if err != nil {
		compErr := compensationFailed(a, total).With("step", step)
		compErr.Err = err
		log.Error("compensation failed, manual reconciliation required",
			zap.String("event", "compensation_failed"),
			zap.String("amount", total.StringFixed(2)),
			zap.String("debit_key", a.DebitKey()),
			zap.NamedError("cause", cause),
			zap.Error(err))
		if markErr := o.attempts.MarkCompensationFailed(ctx, a.Key, total, compErr.Message); markErr != nil {
			log.Error("failed to record compensation failure", zap.Error(markErr))
		}
		o.publish(log, "purchase.compensation_failed", func(pub EventPublisher) error {
			return pub.PublishCompensationFailed(ctx, models.CompensationFailedEvent{
				IdempotencyKey: a.Key,
				DebitKey:       a.DebitKey(),
				CustomerID:     a.CustomerID,
				Amount:         total,
				ItemID:         a.ItemID,
				Quantity:       a.Quantity,
				Reason:         cause.Error(),
				OccurredAt:     o.now().UTC(),
			})
		})
		return compErr
	}

	log.Info("wallet refunded after failed purchase", zap.String("amount", total.StringFixed(2)))
	return o.fail(ctx, log, a, transactionFailed(step, cause).With("compensated", true))
}

// commit appends the purchase to the ledger. Money and stock have moved by
// now, so a ledger failure is reported out of band and the purchase succeeds.
func (o *Orchestrator) commit(ctx context.Context, log *zap.Logger, a *models.PurchaseAttempt,
	item *models.Item, total decimal.Decimal) *models.Purchase {
	p := &models.Purchase{
		CustomerID:     a.CustomerID,
		ItemID:         a.ItemID,
		ItemName:       item.Name,
		Quantity:       a.Quantity,
		PricePerItem:   item.Price,
		TotalPrice:     total,
		PurchaseDate:   o.now().UTC(),
		IdempotencyKey: a.Key,
	}

	ledgerErr := o.call(ctx, func(ctx context.Context) error {
		return o.ledger.Append(ctx, p)
	})

	// The attempt is recorded before the repair event goes out, so a fast
	// repair always lands after it and keeps the ledger id.
	if err := o.attempts.MarkCommitted(ctx, a.Key, p); err != nil {
		log.Error("failed to record committed attempt",
			zap.String("event", "commit_not_recorded"),
			zap.Error(err))
	}

	if ledgerErr != nil {
		log.Error("ledger write failed after commit",
			zap.String("event", "ledger_write_failed"),
			zap.String("total_price", total.StringFixed(2)),
			zap.Error(ledgerErr))
		o.publish(log, "purchase.ledger_write_failed", func(pub EventPublisher) error {
			return pub.PublishLedgerWriteFailed(ctx, models.LedgerWriteFailedEvent{
				IdempotencyKey: a.Key,
				Purchase:       *p,
				Reason:         ledgerErr.Error(),
				OccurredAt:     o.now().UTC(),
			})
		})
	}

	o.publish(log, "purchase.completed", func(pub EventPublisher) error {
		return pub.PublishPurchaseCompleted(ctx, models.PurchaseCompletedEvent{
			PurchaseID: p.ID,
			CustomerID: p.CustomerID,
			ItemID:     p.ItemID,
			Quantity:   p.Quantity,
			TotalPrice: p.TotalPrice,
			OccurredAt: p.PurchaseDate,
		})
	})

	log.Info("purchase committed", zap.Int64("purchase_id", p.ID), zap.String("total_price", total.StringFixed(2)))
	return p
}

func (o *Orchestrator) publish(log *zap.Logger, event string, fn func(EventPublisher) error) {
	if o.events == nil {
		return
	}
	if err := fn(o.events); err != nil {
		log.Error("failed to publish event", zap.String("queue", event), zap.Error(err))
	}
}

// History returns a customer's purchases, newest first.
func (o *Orchestrator) History(ctx context.Context, customerID string) ([]models.Purchase, error) {
	if strings.TrimSpace(customerID) == "" {
		return nil, apperr.New(apperr.CodeValidation, "customer_id is required")
	}
	purchases, err := o.ledger.ListByCustomer(ctx, customerID)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.CodeInternal, "failed to load purchase history")
	}
	return purchases, nil
}
