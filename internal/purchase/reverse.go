package purchase

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/prudhivi99/Distributed-Systems/minishop-go/internal/apperr"
	"github.com/prudhivi99/Distributed-Systems/minishop-go/internal/config"
	"github.com/prudhivi99/Distributed-Systems/minishop-go/internal/logging"
	"github.com/prudhivi99/Distributed-Systems/minishop-go/internal/models"
)

// Reverse settles an attempt left in_progress by a crashed saga, or left in
// compensation_failed, by releasing its stock and refunding its debit by key.
// Steps that never landed are tombstoned, so a late arrival is rejected.
// The attempt ends failed and a resubmission runs the purchase again.
//
// An in_progress attempt is only reversed once it has been idle for
// olderThan; a younger one may still belong to a running saga.
func (o *Orchestrator) Reverse(ctx context.Context, a *models.PurchaseAttempt, olderThan time.Duration) error {
	log := logging.FromContext(ctx).With(
		zap.String("idempotency_key", a.Key),
		zap.Int("run", a.Run))

	switch a.Status {
	case models.AttemptCommitted:
		return apperr.New(apperr.CodeConflict, "committed purchases cannot be reversed").
			With("idempotency_key", a.Key)
	case models.AttemptFailed:
		log.Info("attempt already settled")
		return nil
	case models.AttemptInProgress:
		if idle := o.now().Sub(a.UpdatedAt); idle < olderThan {
			return apperr.New(apperr.CodeRequestInProgress, "purchase attempt may still be running").
				With("idempotency_key", a.Key).
				With("idle", idle.Round(time.Second).String()).
				With("older_than", olderThan.String())
		}
	}

	err := o.retry(ctx, "release_stock", func(ctx context.Context) error {
		_, err := o.inventory.ReleaseStock(ctx, a.ItemID, a.Quantity, a.StockKey())
		return err
	})
	if err != nil {
		return apperr.Wrap(err, apperr.CodeCompensationFailed, "failed to release stock").
			With("operation_key", a.StockKey())
	}

	// No amount means the saga stopped before the debit was sent.
	if a.Amount.IsPositive() {
		err := o.retry(ctx, "refund", func(ctx context.Context) error {
			_, err := o.customers.Refund(ctx, a.CustomerID, a.Amount, a.DebitKey())
			return err
		})
		if err != nil {
			return apperr.Wrap(err, apperr.CodeCompensationFailed, "failed to refund wallet").
				With("operation_key", a.DebitKey())
		}
	}

	if err := o.attempts.MarkFailed(ctx, a.Key, apperr.CodeTransactionFailed, "reversed by operator"); err != nil {
		return err
	}
	log.Info("attempt reversed", zap.String("amount", a.Amount.StringFixed(2)))
	return nil
}

// StaleAfter is how long an in_progress attempt must sit idle before Reverse
// treats its saga as dead: twice the longest a single run can take.
func StaleAfter(cfg config.PurchaseConfig) time.Duration {
	attempts := cfg.CompensationAttempts
	if attempts < 1 {
		attempts = 1
	}
	// Five forward calls, then two compensations of up to attempts calls each.
	calls := time.Duration(5 + 2*attempts)
	backoff := cfg.CompensationBackoff * time.Duration(attempts*(attempts-1)/2)
	return 2 * (calls*cfg.CallTimeout + 2*backoff)
}
