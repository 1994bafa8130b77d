package purchase

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/prudhivi99/Distributed-Systems/minishop-go/internal/apperr"
	"github.com/prudhivi99/Distributed-Systems/minishop-go/internal/models"
)

var errUnavailable = apperr.New(apperr.CodeServiceUnavailable, "upstream timed out")

type keyedOp struct {
	target   string
	amount   decimal.Decimal
	quantity int
	reversed bool
}

type fakeCustomers struct {
	mu       sync.Mutex
	balances map[string]decimal.Decimal
	ops      map[string]*keyedOp

	deductErr      error
	deductLost     bool
	refundFailures int

	deductCalls int
	refundCalls int
}

func newFakeCustomers() *fakeCustomers {
	return &fakeCustomers{balances: map[string]decimal.Decimal{}, ops: map[string]*keyedOp{}}
}

func (f *fakeCustomers) balance(username string) decimal.Decimal {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.balances[username]
}

func (f *fakeCustomers) GetBalance(_ context.Context, username string) (decimal.Decimal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.balances[username]
	if !ok {
		return decimal.Zero, apperr.New(apperr.CodeCustomerNotFound, "customer not found")
	}
	return b, nil
}

func (f *fakeCustomers) Deduct(_ context.Context, username string, amount decimal.Decimal, key string) (decimal.Decimal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deductCalls++
	if f.deductErr != nil {
		return decimal.Zero, f.deductErr
	}
	if op, ok := f.ops[key]; ok {
		if op.reversed {
			return decimal.Zero, apperr.New(apperr.CodeOperationCancelled, "operation was cancelled")
		}
		return f.balances[username], nil
	}
	b, ok := f.balances[username]
	if !ok {
		return decimal.Zero, apperr.New(apperr.CodeCustomerNotFound, "customer not found")
	}
	if b.LessThan(amount) {
		return decimal.Zero, apperr.New(apperr.CodeInsufficientFunds, "insufficient funds")
	}
	f.balances[username] = b.Sub(amount)
	f.ops[key] = &keyedOp{target: username, amount: amount}
	if f.deductLost {
		return decimal.Zero, errUnavailable
	}
	return f.balances[username], nil
}

func (f *fakeCustomers) Refund(_ context.Context, username string, _ decimal.Decimal, debitKey string) (decimal.Decimal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refundCalls++
	if f.refundFailures > 0 {
		f.refundFailures--
		return decimal.Zero, errUnavailable
	}
	op, ok := f.ops[debitKey]
	switch {
	case !ok:
		f.ops[debitKey] = &keyedOp{target: username, reversed: true}
	case !op.reversed:
		f.balances[username] = f.balances[username].Add(op.amount)
		op.reversed = true
	}
	return f.balances[username], nil
}

type fakeInventory struct {
	mu    sync.Mutex
	items map[int]*models.Item
	ops   map[string]*keyedOp

	deductErr       error
	deductLost      bool
	deductBlocks    bool
	releaseFailures int

	// onDeduct runs after a stock deduct is applied.
	onDeduct func()

	getCalls     int
	deductCalls  int
	releaseCalls int
}

func newFakeInventory() *fakeInventory {
	return &fakeInventory{items: map[int]*models.Item{}, ops: map[string]*keyedOp{}}
}

func (f *fakeInventory) stock(id int) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.items[id].Stock
}

func (f *fakeInventory) GetItem(_ context.Context, id int) (*models.Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getCalls++
	item, ok := f.items[id]
	if !ok {
		return nil, apperr.New(apperr.CodeItemNotFound, "item not found")
	}
	cp := *item
	return &cp, nil
}

func (f *fakeInventory) DeductStock(ctx context.Context, id, quantity int, key string) (int, error) {
	f.mu.Lock()
	f.deductCalls++
	if f.deductBlocks {
		f.mu.Unlock()
		<-ctx.Done()
		return 0, ctx.Err()
	}
	defer f.mu.Unlock()
	if f.deductErr != nil {
		return 0, f.deductErr
	}
	if op, ok := f.ops[key]; ok {
		if op.reversed {
			return 0, apperr.New(apperr.CodeOperationCancelled, "operation was cancelled")
		}
		return f.items[id].Stock, nil
	}
	item, ok := f.items[id]
	if !ok {
		return 0, apperr.New(apperr.CodeItemNotFound, "item not found")
	}
	if item.Stock < quantity {
		return 0, apperr.New(apperr.CodeInsufficientStock, "insufficient stock")
	}
	item.Stock -= quantity
	f.ops[key] = &keyedOp{quantity: quantity}
	if f.onDeduct != nil {
		f.onDeduct()
	}
	if f.deductLost {
		return 0, errUnavailable
	}
	return item.Stock, nil
}

func (f *fakeInventory) ReleaseStock(_ context.Context, id, _ int, deductKey string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.releaseCalls++
	if f.releaseFailures > 0 {
		f.releaseFailures--
		return 0, errUnavailable
	}
	op, ok := f.ops[deductKey]
	switch {
	case !ok:
		f.ops[deductKey] = &keyedOp{reversed: true}
	case !op.reversed:
		f.items[id].Stock += op.quantity
		op.reversed = true
	}
	return f.items[id].Stock, nil
}

type fakeLedger struct {
	mu        sync.Mutex
	purchases []models.Purchase
	appendErr error
	nextID    int64
}

func (f *fakeLedger) Append(_ context.Context, p *models.Purchase) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.appendErr != nil {
		return f.appendErr
	}
	f.nextID++
	p.ID = f.nextID
	f.purchases = append(f.purchases, *p)
	return nil
}

func (f *fakeLedger) ListByCustomer(_ context.Context, customerID string) ([]models.Purchase, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []models.Purchase{}
	for i := len(f.purchases) - 1; i >= 0; i-- {
		if f.purchases[i].CustomerID == customerID {
			out = append(out, f.purchases[i])
		}
	}
	return out, nil
}

func (f *fakeLedger) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.purchases)
}

type fakeAttempts struct {
	mu       sync.Mutex
	attempts map[string]*models.PurchaseAttempt
	begins   int
}

func newFakeAttempts() *fakeAttempts {
	return &fakeAttempts{attempts: map[string]*models.PurchaseAttempt{}}
}

func (f *fakeAttempts) get(key string) models.PurchaseAttempt {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.attempts[key]
}

func (f *fakeAttempts) Begin(_ context.Context, a models.PurchaseAttempt) (*models.PurchaseAttempt, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.begins++
	existing, ok := f.attempts[a.Key]
	if !ok {
		a.Run = 1
		a.Status = models.AttemptInProgress
		f.attempts[a.Key] = &a
		cp := a
		return &cp, true, nil
	}
	if existing.Status == models.AttemptFailed && existing.Matches(a.CustomerID, a.ItemID, a.Quantity) {
		existing.Run++
		existing.Status = models.AttemptInProgress
		existing.ErrorCode, existing.ErrorMessage = "", ""
		cp := *existing
		return &cp, true, nil
	}
	cp := *existing
	return &cp, false, nil
}

func (f *fakeAttempts) update(key string, fn func(a *models.PurchaseAttempt)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.attempts[key]
	if !ok {
		return fmt.Errorf("attempt %s not found", key)
	}
	fn(a)
	return nil
}

func (f *fakeAttempts) MarkDebiting(_ context.Context, key string, amount decimal.Decimal) error {
	return f.update(key, func(a *models.PurchaseAttempt) { a.Amount = amount })
}

// MarkCommitted mirrors the repository guard: only an in-progress attempt,
// or a committed one without a ledger id, may be (re)committed.
func (f *fakeAttempts) MarkCommitted(_ context.Context, key string, p *models.Purchase) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.attempts[key]
	if !ok {
		return fmt.Errorf("attempt %s not found", key)
	}
	open := a.Status == models.AttemptInProgress ||
		(a.Status == models.AttemptCommitted && (a.Purchase == nil || a.Purchase.ID == 0))
	if !open {
		return apperr.New(apperr.CodeConflict, "purchase attempt is not open for commit")
	}
	cp := *p
	a.Status = models.AttemptCommitted
	a.Purchase = &cp
	return nil
}

func (f *fakeAttempts) MarkFailed(_ context.Context, key string, code apperr.Code, message string) error {
	return f.update(key, func(a *models.PurchaseAttempt) {
		a.Status = models.AttemptFailed
		a.ErrorCode = string(code)
		a.ErrorMessage = message
	})
}

func (f *fakeAttempts) MarkCompensationFailed(_ context.Context, key string, amount decimal.Decimal, message string) error {
	return f.update(key, func(a *models.PurchaseAttempt) {
		a.Status = models.AttemptCompensationFailed
		a.Amount = amount
		a.ErrorCode = string(apperr.CodeCompensationFailed)
		a.ErrorMessage = message
	})
}

type fakeEvents struct {
	mu                 sync.Mutex
	completed          []models.PurchaseCompletedEvent
	compensationFailed []models.CompensationFailedEvent
	stockReleases      []models.StockReleaseEvent
	ledgerFailures     []models.LedgerWriteFailedEvent

	// onLedgerFailure runs synchronously after the event is recorded.
	onLedgerFailure func(e models.LedgerWriteFailedEvent)
}

func (f *fakeEvents) PublishPurchaseCompleted(_ context.Context, e models.PurchaseCompletedEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completed = append(f.completed, e)
	return nil
}

func (f *fakeEvents) PublishCompensationFailed(_ context.Context, e models.CompensationFailedEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.compensationFailed = append(f.compensationFailed, e)
	return nil
}

func (f *fakeEvents) PublishStockRelease(_ context.Context, e models.StockReleaseEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stockReleases = append(f.stockReleases, e)
	return nil
}

func (f *fakeEvents) PublishLedgerWriteFailed(_ context.Context, e models.LedgerWriteFailedEvent) error {
	f.mu.Lock()
	f.ledgerFailures = append(f.ledgerFailures, e)
	hook := f.onLedgerFailure
	f.mu.Unlock()
	if hook != nil {
		hook(e)
	}
	return nil
}
