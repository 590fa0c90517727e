package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/yourorg/trading-engine/internal/model"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

// OrderRepository hands out reconciliation transactions over orders,
// their execution audit rows, and the strategy and account rows one
// order-result message touches
type OrderRepository struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// NewOrderRepository creates a new order repository
func NewOrderRepository(db *sqlx.DB, logger *zap.Logger) *OrderRepository {
	return &OrderRepository{
		db:     db,
		logger: logger,
	}
}

// Begin opens a reconciliation transaction
func (r *OrderRepository) Begin(ctx context.Context) (OrderTx, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		r.logger.Error("Failed to begin transaction", zap.Error(err))
		return nil, err
	}
	return &orderTx{tx: tx, logger: r.logger}, nil
}

type orderTx struct {
	tx     *sqlx.Tx
	logger *zap.Logger
}

const orderColumns = `id, daily_strategy_stock_id, order_no, order_type, order_quantity, order_price, order_dvsn,
	account_no, is_mock, status, total_executed_quantity, total_executed_price, remaining_quantity,
	is_fully_executed, ordered_at, created_at, updated_at`

// GetOrderForUpdate loads an order by number under a row lock, so two
// messages for the same order cannot interleave their writes.
func (t *orderTx) GetOrderForUpdate(ctx context.Context, orderNo string) (*model.Order, error) {
	query := fmt.Sprintf(`SELECT %s FROM orders WHERE order_no = $1 FOR UPDATE`, orderColumns)

	var o model.Order
	err := t.tx.GetContext(ctx, &o, query, orderNo)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		t.logger.Error("Failed to get order",
			zap.Error(err),
			zap.String("order_no", orderNo))
		return nil, err
	}

	return &o, nil
}

// CreateOrder inserts a new order row. Two concurrent first-sight
// messages race here; the loser gets ErrDuplicateKey and retries.
func (t *orderTx) CreateOrder(ctx context.Context, o *model.Order) error {
	query := `
		INSERT INTO orders (daily_strategy_stock_id, order_no, order_type, order_quantity, order_price, order_dvsn,
			account_no, is_mock, status, total_executed_quantity, total_executed_price, remaining_quantity,
			is_fully_executed, ordered_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, CURRENT_TIMESTAMP)
		RETURNING id
	`

	err := t.tx.QueryRowxContext(
		ctx,
		query,
		o.DailyStrategyStockID,
		o.OrderNo,
		o.OrderType,
		o.OrderQuantity,
		o.OrderPrice,
		o.OrderDvsn,
		o.AccountNo,
		o.IsMock,
		o.Status,
		o.TotalExecutedQuantity,
		o.TotalExecutedPrice,
		o.RemainingQuantity,
		o.IsFullyExecuted,
		o.OrderedAt,
	).Scan(&o.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("order %s: %w", o.OrderNo, ErrDuplicateKey)
		}
		t.logger.Error("Failed to insert order",
			zap.Error(err),
			zap.String("order_no", o.OrderNo))
		return err
	}

	return nil
}

// UpdateOrderCumulative overwrites the order's status and cumulative
// execution fields
func (t *orderTx) UpdateOrderCumulative(ctx context.Context, o *model.Order) error {
	query := `
		UPDATE orders
		SET status = $2,
			total_executed_quantity = $3,
			total_executed_price = $4,
			remaining_quantity = $5,
			is_fully_executed = $6,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = $1
	`

	_, err := t.tx.ExecContext(
		ctx,
		query,
		o.ID,
		o.Status,
		o.TotalExecutedQuantity,
		o.TotalExecutedPrice,
		o.RemainingQuantity,
		o.IsFullyExecuted,
	)
	if err != nil {
		t.logger.Error("Failed to update order",
			zap.Error(err),
			zap.String("order_no", o.OrderNo))
		return err
	}

	return nil
}

// UpdateOrderPlacement overwrites the order's placement fields from a
// re-received order receipt
func (t *orderTx) UpdateOrderPlacement(ctx context.Context, o *model.Order) error {
	query := `
		UPDATE orders
		SET order_type = $2,
			order_quantity = $3,
			order_price = $4,
			order_dvsn = $5,
			status = $6,
			remaining_quantity = $7,
			ordered_at = $8,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = $1
	`

	_, err := t.tx.ExecContext(
		ctx,
		query,
		o.ID,
		o.OrderType,
		o.OrderQuantity,
		o.OrderPrice,
		o.OrderDvsn,
		o.Status,
		o.RemainingQuantity,
		o.OrderedAt,
	)
	if err != nil {
		t.logger.Error("Failed to update order placement",
			zap.Error(err),
			zap.String("order_no", o.OrderNo))
		return err
	}

	return nil
}

// LatestExecution returns the highest-sequence audit row for an order
func (t *orderTx) LatestExecution(ctx context.Context, orderID int64) (*model.OrderExecution, error) {
	query := `
		SELECT id, order_id, execution_sequence, executed_quantity, executed_price,
			total_executed_quantity_after, total_executed_price_after, remaining_quantity_after,
			is_fully_executed_after, executed_at, created_at
		FROM order_executions
		WHERE order_id = $1
		ORDER BY execution_sequence DESC
		LIMIT 1
	`

	var e model.OrderExecution
	err := t.tx.GetContext(ctx, &e, query, orderID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		t.logger.Error("Failed to get latest execution",
			zap.Error(err),
			zap.Int64("order_id", orderID))
		return nil, err
	}

	return &e, nil
}

// CountExecutions returns the number of audit rows for an order
func (t *orderTx) CountExecutions(ctx context.Context, orderID int64) (int, error) {
	var count int
	err := t.tx.GetContext(ctx, &count, `SELECT COUNT(*) FROM order_executions WHERE order_id = $1`, orderID)
	if err != nil {
		t.logger.Error("Failed to count executions",
			zap.Error(err),
			zap.Int64("order_id", orderID))
		return 0, err
	}

	return count, nil
}

// InsertExecution appends one audit row
func (t *orderTx) InsertExecution(ctx context.Context, e *model.OrderExecution) error {
	query := `
		INSERT INTO order_executions (order_id, execution_sequence, executed_quantity, executed_price,
			total_executed_quantity_after, total_executed_price_after, remaining_quantity_after,
			is_fully_executed_after, executed_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, CURRENT_TIMESTAMP)
		RETURNING id
	`

	err := t.tx.QueryRowxContext(
		ctx,
		query,
		e.OrderID,
		e.ExecutionSequence,
		e.ExecutedQuantity,
		e.ExecutedPrice,
		e.TotalExecutedQuantityAfter,
		e.TotalExecutedPriceAfter,
		e.RemainingQuantityAfter,
		e.IsFullyExecutedAfter,
		e.ExecutedAt,
	).Scan(&e.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("execution %d/%d: %w", e.OrderID, e.ExecutionSequence, ErrDuplicateKey)
		}
		t.logger.Error("Failed to insert execution",
			zap.Error(err),
			zap.Int64("order_id", e.OrderID),
			zap.Int("sequence", e.ExecutionSequence))
		return err
	}

	return nil
}

// SetStockBuy overwrites a stock row's realized buy side from the
// order's cumulative totals
func (t *orderTx) SetStockBuy(ctx context.Context, stockID int64, price float64, quantity int64) error {
	query := `
		UPDATE daily_strategy_stocks
		SET buy_price = $2,
			buy_quantity = $3,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = $1
	`

	_, err := t.tx.ExecContext(ctx, query, stockID, price, quantity)
	if err != nil {
		t.logger.Error("Failed to update stock buy side",
			zap.Error(err),
			zap.Int64("stock_id", stockID))
		return err
	}

	return nil
}

// SetStockSell overwrites a stock row's realized sell side and refreshes
// its profit rate against the recorded buy side
func (t *orderTx) SetStockSell(ctx context.Context, stockID int64, price float64, quantity int64) error {
	query := `
		UPDATE daily_strategy_stocks
		SET sell_price = $2,
			sell_quantity = $3,
			profit_rate = CASE
				WHEN buy_price IS NOT NULL AND buy_price > 0
				THEN ($2 - buy_price) / buy_price * 100
				ELSE profit_rate
			END,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = $1
	`

	_, err := t.tx.ExecContext(ctx, query, stockID, price, quantity)
	if err != nil {
		t.logger.Error("Failed to update stock sell side",
			zap.Error(err),
			zap.Int64("stock_id", stockID))
		return err
	}

	return nil
}

// RecomputeStrategyTotals rebuilds the daily strategy's aggregates from
// its stock rows. Summing the rows instead of incrementing running
// totals keeps the figures correct under replayed and interleaved fills.
func (t *orderTx) RecomputeStrategyTotals(ctx context.Context, dailyStrategyID int64) error {
	query := `
		UPDATE daily_strategies ds
		SET buy_amount = agg.buy_amount,
			sell_amount = agg.sell_amount,
			total_profit_amount = agg.profit_amount,
			total_profit_rate = CASE
				WHEN agg.buy_amount > 0 THEN agg.profit_amount / agg.buy_amount * 100
				ELSE 0
			END,
			updated_at = CURRENT_TIMESTAMP
		FROM (
			SELECT
				COALESCE(SUM(buy_price * buy_quantity), 0) AS buy_amount,
				COALESCE(SUM(sell_price * sell_quantity), 0) AS sell_amount,
				COALESCE(SUM((sell_price - buy_price) * LEAST(sell_quantity, buy_quantity)), 0) AS profit_amount
			FROM daily_strategy_stocks
			WHERE daily_strategy_id = $1
		) agg
		WHERE ds.id = $1
	`

	_, err := t.tx.ExecContext(ctx, query, dailyStrategyID)
	if err != nil {
		t.logger.Error("Failed to recompute strategy totals",
			zap.Error(err),
			zap.Int64("daily_strategy_id", dailyStrategyID))
		return err
	}

	return nil
}

// AdjustAccountBalance applies a signed delta to an account balance
func (t *orderTx) AdjustAccountBalance(ctx context.Context, accountID int64, delta float64) error {
	query := `
		UPDATE accounts
		SET account_balance = account_balance + $2,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = $1
	`

	_, err := t.tx.ExecContext(ctx, query, accountID, delta)
	if err != nil {
		t.logger.Error("Failed to adjust account balance",
			zap.Error(err),
			zap.Int64("account_id", accountID))
		return err
	}

	return nil
}

// Commit commits the transaction
func (t *orderTx) Commit() error {
	return t.tx.Commit()
}

// Rollback aborts the transaction; calling it after Commit is a no-op
func (t *orderTx) Rollback() error {
	err := t.tx.Rollback()
	if err != nil && !errors.Is(err, sql.ErrTxDone) {
		return err
	}
	return nil
}
