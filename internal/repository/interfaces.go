package repository

import (
	"context"
	"time"

	"github.com/yourorg/trading-engine/internal/model"
)

// CandleStore persists aggregated candles and serves today's bars.
type CandleStore interface {
	// UpsertHourCandle writes one hour bar, replacing the OHLCV fields
	// of an existing bar for the same (stock, date, hour).
	UpsertHourCandle(ctx context.Context, c *model.HourCandle) error

	// UpsertMinuteCandles writes minute bars in one transaction, with
	// the same replace-on-conflict semantics per (stock, date, time,
	// interval).
	UpsertMinuteCandles(ctx context.Context, candles []model.MinuteCandle) error

	// GetHourCandles returns one stock's hour bars for a date, ordered
	// by hour.
	GetHourCandles(ctx context.Context, stockCode string, day time.Time) ([]model.HourCandle, error)

	// GetHourCandlesForStocks returns hour bars for several stocks on a
	// date, ordered by stock code then hour.
	GetHourCandlesForStocks(ctx context.Context, stockCodes []string, day time.Time) ([]model.HourCandle, error)
}

// StrategyStore reads and writes daily strategies and their stock rows.
type StrategyStore interface {
	// GetDailyStrategyForDay loads the strategy row and its stocks for
	// one (user strategy, trading day). Returns ErrNotFound if absent.
	GetDailyStrategyForDay(ctx context.Context, userStrategyID int64, day time.Time) (*model.DailyStrategy, error)

	// CreateDailyStrategy inserts the strategy row and all rows in
	// ds.Stocks in one transaction, filling in generated ids.
	CreateDailyStrategy(ctx context.Context, ds *model.DailyStrategy) error

	// ApplyStockMerge executes a computed plan merge against one daily
	// strategy's stock rows in one transaction.
	ApplyStockMerge(ctx context.Context, dailyStrategyID int64, merge model.PlanMerge) error

	// GetTradeTarget resolves the stock row an order event belongs to,
	// joined with its owning strategy and account. Returns ErrNotFound
	// if no matching row exists.
	GetTradeTarget(ctx context.Context, userStrategyID int64, day time.Time, stockCode string) (*model.TradeTarget, error)
}

// OrderStore begins reconciliation transactions.
type OrderStore interface {
	Begin(ctx context.Context) (OrderTx, error)
}

// OrderTx is one reconciliation transaction: every read and write for a
// single order-result message goes through one OrderTx and becomes
// visible atomically on Commit.
type OrderTx interface {
	// GetOrderForUpdate loads an order by number under a row lock.
	// Returns ErrNotFound if the order does not exist yet.
	GetOrderForUpdate(ctx context.Context, orderNo string) (*model.Order, error)

	// CreateOrder inserts a new order, filling in the generated id.
	// Returns ErrDuplicateKey if the order number exists already.
	CreateOrder(ctx context.Context, o *model.Order) error

	// UpdateOrderCumulative overwrites the order's status and cumulative
	// execution fields.
	UpdateOrderCumulative(ctx context.Context, o *model.Order) error

	// UpdateOrderPlacement overwrites the order's placement fields from a
	// re-received order receipt, leaving execution history untouched.
	UpdateOrderPlacement(ctx context.Context, o *model.Order) error

	// LatestExecution returns the highest-sequence execution row for an
	// order, or ErrNotFound when none exist.
	LatestExecution(ctx context.Context, orderID int64) (*model.OrderExecution, error)

	// CountExecutions returns the number of execution rows for an order.
	CountExecutions(ctx context.Context, orderID int64) (int, error)

	// InsertExecution appends one audit row, filling in the generated id.
	InsertExecution(ctx context.Context, e *model.OrderExecution) error

	// SetStockBuy overwrites a stock row's realized buy side from the
	// order's cumulative totals.
	SetStockBuy(ctx context.Context, stockID int64, price float64, quantity int64) error

	// SetStockSell overwrites a stock row's realized sell side and
	// refreshes its profit rate against the recorded buy side.
	SetStockSell(ctx context.Context, stockID int64, price float64, quantity int64) error

	// RecomputeStrategyTotals rebuilds the daily strategy's buy/sell
	// amounts and profit totals by summing across its stock rows.
	RecomputeStrategyTotals(ctx context.Context, dailyStrategyID int64) error

	// AdjustAccountBalance applies a signed delta to an account balance.
	AdjustAccountBalance(ctx context.Context, accountID int64, delta float64) error

	Commit() error
	Rollback() error
}

// AccountStore reads accounts and persists token and balance updates.
type AccountStore interface {
	// GetByAccountNo loads an account by its broker account number.
	// Returns ErrNotFound if absent.
	GetByAccountNo(ctx context.Context, accountNo string) (*model.Account, error)

	// UpdateToken stores a freshly issued access token and its expiry.
	UpdateToken(ctx context.Context, accountID int64, token string, expiresAt time.Time) error

	// UpdateBalance overwrites the stored cash balance.
	UpdateBalance(ctx context.Context, accountID int64, balance float64) error
}
