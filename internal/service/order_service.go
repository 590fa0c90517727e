package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/yourorg/trading-engine/internal/metrics"
	"github.com/yourorg/trading-engine/internal/model"
	"github.com/yourorg/trading-engine/internal/repository"
)

// reconcileAttempts bounds how often one event is retried after losing a
// create race on the order row or an audit sequence slot.
const reconcileAttempts = 5

// OrderService reconciles order-result events into order rows, their
// append-only audit trail, strategy stock aggregates, and account
// balances. Processing is idempotent: redelivered and out-of-order
// events never double-apply.
type OrderService struct {
	orders     repository.OrderStore
	strategies repository.StrategyStore
	accounts   *AccountService
	locks      *lockRegistry
	loc        *time.Location
	logger     *zap.Logger
}

// NewOrderService creates an order reconciliation service.
func NewOrderService(orders repository.OrderStore, strategies repository.StrategyStore, accounts *AccountService, loc *time.Location, logger *zap.Logger) *OrderService {
	return &OrderService{
		orders:     orders,
		strategies: strategies,
		accounts:   accounts,
		locks:      newLockRegistry(),
		loc:        loc,
		logger:     logger,
	}
}

// reconcileOutcome describes what one event did once reconciliation
// finished.
type reconcileOutcome struct {
	result   string // ok, stale or duplicate
	executed bool   // an execution was booked
	terminal bool   // the order is fully executed
}

// Process applies one order-result event. Events for the same order
// number serialize on a per-order lock; events for different orders run
// in parallel.
func (s *OrderService) Process(ctx context.Context, msg *model.OrderResultMessage) error {
	eventTime, err := model.ParseEventTime(msg.Timestamp, s.loc)
	if err != nil {
		metrics.RecordOrderEvent(string(msg.Status), "error")
		return fmt.Errorf("order event timestamp: %w", err)
	}
	day := time.Date(eventTime.Year(), eventTime.Month(), eventTime.Day(), 0, 0, 0, 0, s.loc)

	target, err := s.strategies.GetTradeTarget(ctx, msg.UserStrategyID.Int64(), day, msg.StockCode)
	if errors.Is(err, repository.ErrNotFound) {
		// No plan row to book this order against; nothing to retry.
		metrics.RecordOrderEvent(string(msg.Status), "dropped")
		s.logger.Warn("Dropping order event without matching strategy stock",
			zap.String("order_no", msg.OrderNo),
			zap.Int64("user_strategy_id", msg.UserStrategyID.Int64()),
			zap.String("stock_code", msg.StockCode),
			zap.Time("trading_date", day))
		return nil
	}
	if err != nil {
		metrics.RecordOrderEvent(string(msg.Status), "error")
		return fmt.Errorf("resolve trade target for order %s: %w", msg.OrderNo, err)
	}

	lock := s.locks.Lock(msg.OrderNo)
	var out reconcileOutcome
	op := func() error {
		var opErr error
		out, opErr = s.reconcile(ctx, msg, target, eventTime)
		if opErr == nil {
			return nil
		}
		if errors.Is(opErr, repository.ErrDuplicateKey) {
			// Another writer took the order row or sequence slot between
			// our read and write. The next attempt sees its result.
			return opErr
		}
		return backoff.Permanent(opErr)
	}
	err = backoff.Retry(op, reconcileBackOff(ctx))
	s.locks.Unlock(msg.OrderNo, lock, out.terminal)

	if err != nil {
		metrics.RecordOrderEvent(string(msg.Status), "error")
		return fmt.Errorf("reconcile order %s: %w", msg.OrderNo, err)
	}
	metrics.RecordOrderEvent(string(msg.Status), out.result)

	if out.executed && target.AccountType.External() {
		// The broker owns this balance. Refresh it outside the
		// transaction; a failure only costs freshness.
		if _, err := s.accounts.SyncBalance(ctx, target.AccountNo); err != nil {
			s.logger.Warn("Failed to sync balance after execution",
				zap.String("order_no", msg.OrderNo),
				zap.String("account_no", target.AccountNo),
				zap.Error(err))
		}
	}
	return nil
}

// reconcile runs one transactional attempt at applying the event.
func (s *OrderService) reconcile(ctx context.Context, msg *model.OrderResultMessage, target *model.TradeTarget, eventTime time.Time) (reconcileOutcome, error) {
	out := reconcileOutcome{result: "ok"}

	tx, err := s.orders.Begin(ctx)
	if err != nil {
		return out, err
	}
	defer tx.Rollback()

	created := false
	order, err := tx.GetOrderForUpdate(ctx, msg.OrderNo)
	if errors.Is(err, repository.ErrNotFound) {
		order = newOrder(msg, target, eventTime)
		if err := tx.CreateOrder(ctx, order); err != nil {
			return out, err
		}
		created = true
	} else if err != nil {
		return out, err
	}

	if !msg.IsExecution() {
		return s.applyReceipt(ctx, tx, order, msg, eventTime, created)
	}

	msgTotal := msg.TotalExecutedQuantity.Int64()
	if !created {
		if msgTotal < order.TotalExecutedQuantity {
			// A fill we already passed; overwriting would move the
			// cumulative totals backwards.
			out.result = "stale"
			out.terminal = order.Status == model.OrderStatusExecuted
			s.logger.Warn("Ignoring stale execution event",
				zap.String("order_no", order.OrderNo),
				zap.Int64("event_total", msgTotal),
				zap.Int64("recorded_total", order.TotalExecutedQuantity))
			return out, nil
		}
		if msgTotal == order.TotalExecutedQuantity {
			dup, err := matchesLatestExecution(ctx, tx, order.ID, msg)
			if err != nil {
				return out, err
			}
			if dup {
				out.result = "duplicate"
				out.terminal = order.Status == model.OrderStatusExecuted
				s.logger.Info("Skipping already-recorded execution event",
					zap.String("order_no", order.OrderNo),
					zap.Int64("total_executed_quantity", msgTotal))
				return out, nil
			}
		}
	}

	order.Status = model.OrderStatusPartiallyExecuted
	if msg.IsFullyExecuted {
		order.Status = model.OrderStatusExecuted
	}
	order.TotalExecutedQuantity = msgTotal
	order.TotalExecutedPrice = msg.TotalExecutedPrice.Float64()
	order.RemainingQuantity = msg.RemainingQuantity.Int64()
	order.IsFullyExecuted = msg.IsFullyExecuted
	if err := tx.UpdateOrderCumulative(ctx, order); err != nil {
		return out, err
	}

	count, err := tx.CountExecutions(ctx, order.ID)
	if err != nil {
		return out, err
	}
	exec := &model.OrderExecution{
		OrderID:                    order.ID,
		ExecutionSequence:          count + 1,
		ExecutedQuantity:           msg.ExecutedQuantity.Int64(),
		ExecutedPrice:              msg.ExecutedPrice.Float64(),
		TotalExecutedQuantityAfter: order.TotalExecutedQuantity,
		TotalExecutedPriceAfter:    order.TotalExecutedPrice,
		RemainingQuantityAfter:     order.RemainingQuantity,
		IsFullyExecutedAfter:       order.IsFullyExecuted,
		ExecutedAt:                 eventTime,
	}
	if err := tx.InsertExecution(ctx, exec); err != nil {
		return out, err
	}

	// The broker's cumulative totals are authoritative for the stock
	// row; deriving them locally would drift under replays.
	switch order.OrderType {
	case model.OrderTypeSell:
		err = tx.SetStockSell(ctx, target.StockID, order.TotalExecutedPrice, order.TotalExecutedQuantity)
	default:
		err = tx.SetStockBuy(ctx, target.StockID, order.TotalExecutedPrice, order.TotalExecutedQuantity)
	}
	if err != nil {
		return out, err
	}
	if err := tx.RecomputeStrategyTotals(ctx, target.DailyStrategyID); err != nil {
		return out, err
	}

	if !target.AccountType.External() {
		delta := float64(msg.ExecutedQuantity.Int64()) * msg.ExecutedPrice.Float64()
		if order.OrderType == model.OrderTypeBuy {
			delta = -delta
		}
		if err := tx.AdjustAccountBalance(ctx, target.AccountID, delta); err != nil {
			return out, err
		}
	}

	if err := tx.Commit(); err != nil {
		return out, err
	}
	out.executed = true
	out.terminal = order.Status == model.OrderStatusExecuted
	s.logger.Info("Recorded execution",
		zap.String("order_no", order.OrderNo),
		zap.Int("sequence", exec.ExecutionSequence),
		zap.Int64("executed_quantity", exec.ExecutedQuantity),
		zap.Int64("total_executed_quantity", order.TotalExecutedQuantity),
		zap.String("status", string(order.Status)))
	return out, nil
}

// applyReceipt handles a pure order receipt, which carries no fill.
func (s *OrderService) applyReceipt(ctx context.Context, tx repository.OrderTx, order *model.Order, msg *model.OrderResultMessage, eventTime time.Time, created bool) (reconcileOutcome, error) {
	out := reconcileOutcome{result: "ok"}

	if created {
		if err := tx.Commit(); err != nil {
			return out, err
		}
		s.logger.Info("Created order",
			zap.String("order_no", order.OrderNo),
			zap.String("order_type", string(order.OrderType)),
			zap.Int64("order_quantity", order.OrderQuantity))
		return out, nil
	}

	if order.TotalExecutedQuantity > 0 {
		// The receipt arrived after fills; resetting would discard them.
		out.result = "stale"
		out.terminal = order.Status == model.OrderStatusExecuted
		s.logger.Warn("Ignoring order receipt older than recorded fills",
			zap.String("order_no", order.OrderNo),
			zap.Int64("recorded_total", order.TotalExecutedQuantity))
		return out, nil
	}

	// Re-received receipt, e.g. a corrected quantity or price.
	order.OrderType = msg.OrderType
	order.OrderQuantity = msg.OrderQuantity.Int64()
	order.OrderPrice = msg.OrderPrice.Float64()
	order.OrderDvsn = msg.OrderDvsn
	order.Status = model.OrderStatusOrdered
	order.RemainingQuantity = msg.OrderQuantity.Int64()
	order.OrderedAt = eventTime
	if err := tx.UpdateOrderPlacement(ctx, order); err != nil {
		return out, err
	}
	if err := tx.Commit(); err != nil {
		return out, err
	}
	s.logger.Info("Refreshed order placement",
		zap.String("order_no", order.OrderNo),
		zap.Int64("order_quantity", order.OrderQuantity))
	return out, nil
}

// matchesLatestExecution reports whether the event repeats the most
// recent audit row. Quantities and flags identify a redelivery; prices
// are left out of the comparison because they round-trip through the
// database.
func matchesLatestExecution(ctx context.Context, tx repository.OrderTx, orderID int64, msg *model.OrderResultMessage) (bool, error) {
	last, err := tx.LatestExecution(ctx, orderID)
	if errors.Is(err, repository.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return last.ExecutedQuantity == msg.ExecutedQuantity.Int64() &&
		last.TotalExecutedQuantityAfter == msg.TotalExecutedQuantity.Int64() &&
		last.RemainingQuantityAfter == msg.RemainingQuantity.Int64() &&
		last.IsFullyExecutedAfter == msg.IsFullyExecuted, nil
}

func newOrder(msg *model.OrderResultMessage, target *model.TradeTarget, eventTime time.Time) *model.Order {
	accountNo := msg.AccountNo
	if accountNo == "" {
		accountNo = target.AccountNo
	}
	return &model.Order{
		DailyStrategyStockID: target.StockID,
		OrderNo:              msg.OrderNo,
		OrderType:            msg.OrderType,
		OrderQuantity:        msg.OrderQuantity.Int64(),
		OrderPrice:           msg.OrderPrice.Float64(),
		OrderDvsn:            msg.OrderDvsn,
		AccountNo:            accountNo,
		IsMock:               msg.IsMock,
		Status:               model.OrderStatusOrdered,
		RemainingQuantity:    msg.OrderQuantity.Int64(),
		OrderedAt:            eventTime,
	}
}

func reconcileBackOff(ctx context.Context) backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 50 * time.Millisecond
	bo.MaxInterval = time.Second
	bo.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(bo, reconcileAttempts-1), ctx)
}
