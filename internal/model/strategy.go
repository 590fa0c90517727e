package model

import (
	"time"
)

// DailyStrategy is the day-level row for one user strategy: it owns the
// day's stock rows and carries aggregates recomputed from them after
// every execution.
type DailyStrategy struct {
	ID                int64      `json:"id" db:"id"`
	UserStrategyID    int64      `json:"user_strategy_id" db:"user_strategy_id"`
	TradingDate       time.Time  `json:"trading_date" db:"trading_date"`
	BuyAmount         float64    `json:"buy_amount" db:"buy_amount"`
	SellAmount        float64    `json:"sell_amount" db:"sell_amount"`
	TotalProfitAmount float64    `json:"total_profit_amount" db:"total_profit_amount"`
	TotalProfitRate   float64    `json:"total_profit_rate" db:"total_profit_rate"`
	CreatedAt         time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt         *time.Time `json:"updated_at,omitempty" db:"updated_at"`

	Stocks []DailyStrategyStock `json:"stocks" db:"-"`
}

// DailyStrategyStock is one instrument's row under a daily strategy: the
// plan targets for the day plus, once trades occur, the realized buy/sell
// side and profit rate.
type DailyStrategyStock struct {
	ID               int64      `json:"id" db:"id"`
	DailyStrategyID  int64      `json:"daily_strategy_id" db:"daily_strategy_id"`
	StockCode        string     `json:"stock_code" db:"stock_code"`
	StockName        string     `json:"stock_name" db:"stock_name"`
	Exchange         string     `json:"exchange" db:"exchange"`
	StockOpen        *float64   `json:"stock_open,omitempty" db:"stock_open"`
	TargetPrice      float64    `json:"target_price" db:"target_price"`
	TargetQuantity   int64      `json:"target_quantity" db:"target_quantity"`
	TargetSellPrice  *float64   `json:"target_sell_price,omitempty" db:"target_sell_price"`
	StopLossPrice    *float64   `json:"stop_loss_price,omitempty" db:"stop_loss_price"`
	GapRate          *float64   `json:"gap_rate,omitempty" db:"gap_rate"`
	TakeProfitTarget *float64   `json:"take_profit_target,omitempty" db:"take_profit_target"`
	ProbUp           *float64   `json:"prob_up,omitempty" db:"prob_up"`
	Signal           *int64     `json:"signal,omitempty" db:"signal"`
	BuyPrice         *float64   `json:"buy_price,omitempty" db:"buy_price"`
	BuyQuantity      *int64     `json:"buy_quantity,omitempty" db:"buy_quantity"`
	SellPrice        *float64   `json:"sell_price,omitempty" db:"sell_price"`
	SellQuantity     *int64     `json:"sell_quantity,omitempty" db:"sell_quantity"`
	ProfitRate       *float64   `json:"profit_rate,omitempty" db:"profit_rate"`
	CreatedAt        time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt        *time.Time `json:"updated_at,omitempty" db:"updated_at"`
}

// Traded reports whether the row carries realized trade data. Traded rows
// keep their buy/sell fields through plan merges and survive omission
// from a regenerated plan.
func (s *DailyStrategyStock) Traded() bool {
	return s.BuyQuantity != nil || s.SellQuantity != nil
}

// TradeTarget locates the strategy stock an order event belongs to,
// together with the account that placed the order.
type TradeTarget struct {
	StockID         int64       `db:"stock_id"`
	DailyStrategyID int64       `db:"daily_strategy_id"`
	UserStrategyID  int64       `db:"user_strategy_id"`
	AccountID       int64       `db:"account_id"`
	AccountNo       string      `db:"account_no"`
	AccountType     AccountType `db:"account_type"`
}

// PlanMerge is the row-level outcome of merging a regenerated plan into
// an existing daily strategy. Traded rows only ever appear under
// UpdateTargets; their realized buy/sell fields are never written by a
// merge.
type PlanMerge struct {
	UpdateTargets []DailyStrategyStock // traded rows: refresh target fields only
	Overwrite     []DailyStrategyStock // untraded rows: replace all plan fields
	Insert        []DailyStrategyStock // instruments new to this day's plan
	DeleteIDs     []int64              // untraded rows absent from the new plan
}

// Empty reports whether the merge changes nothing.
func (m PlanMerge) Empty() bool {
	return len(m.UpdateTargets) == 0 && len(m.Overwrite) == 0 &&
		len(m.Insert) == 0 && len(m.DeleteIDs) == 0
}

// DailyStrategyMessage is one batch on the daily-plan stream. The batch
// timestamp defines the trading day the plan belongs to.
type DailyStrategyMessage struct {
	Timestamp        string               `json:"timestamp" validate:"required"`
	StrategiesByUser []UserPlanStrategies `json:"strategies_by_user" validate:"required,dive"`
}

// UserPlanStrategies groups one user's strategies within a plan batch.
type UserPlanStrategies struct {
	UserID     FlexInt        `json:"user_id"`
	Strategies []PlanStrategy `json:"strategies" validate:"dive"`
}

// PlanStrategy is one strategy instance's plan for the day.
type PlanStrategy struct {
	UserStrategyID     FlexInt     `json:"user_strategy_id" validate:"required"`
	UserID             FlexInt     `json:"user_id"`
	StrategyID         FlexInt     `json:"strategy_id"`
	StrategyName       string      `json:"strategy_name"`
	StrategyWeightType string      `json:"strategy_weight_type"`
	LsRatio            FlexFloat   `json:"ls_ratio"`
	TpRatio            FlexFloat   `json:"tp_ratio"`
	Stocks             []PlanStock `json:"stocks" validate:"dive"`
}

// PlanStock is one instrument's target parameters within a plan.
type PlanStock struct {
	StockCode        string     `json:"stock_code" validate:"required"`
	StockName        string     `json:"stock_name"`
	Exchange         string     `json:"exchange"`
	StockOpen        *FlexFloat `json:"stock_open"`
	TargetPrice      FlexFloat  `json:"target_price" validate:"required"`
	TargetQuantity   FlexInt    `json:"target_quantity"`
	TargetSellPrice  *FlexFloat `json:"target_sell_price"`
	StopLossPrice    *FlexFloat `json:"stop_loss_price"`
	GapRate          *FlexFloat `json:"gap_rate"`
	TakeProfitTarget *FlexFloat `json:"take_profit_target"`
	ProbUp           *FlexFloat `json:"prob_up"`
	Signal           *FlexInt   `json:"signal"`
	CreatedAt        string     `json:"created_at"`
}
