package model

import (
	"time"
)

// OrderStatus is the lifecycle state of a broker order. Transitions run
// ordered -> partially_executed -> executed; executed is terminal.
type OrderStatus string

const (
	OrderStatusOrdered           OrderStatus = "ordered"
	OrderStatusPartiallyExecuted OrderStatus = "partially_executed"
	OrderStatusExecuted          OrderStatus = "executed"
)

// OrderType is the side of an order.
type OrderType string

const (
	OrderTypeBuy  OrderType = "BUY"
	OrderTypeSell OrderType = "SELL"
)

// Order tracks the broker-reported lifecycle of one order number. The
// cumulative fields mirror the broker's running totals; the weighted
// average price is taken from the broker as authoritative, never derived
// locally.
type Order struct {
	ID                    int64       `json:"id" db:"id"`
	DailyStrategyStockID  int64       `json:"daily_strategy_stock_id" db:"daily_strategy_stock_id"`
	OrderNo               string      `json:"order_no" db:"order_no"`
	OrderType             OrderType   `json:"order_type" db:"order_type"`
	OrderQuantity         int64       `json:"order_quantity" db:"order_quantity"`
	OrderPrice            float64     `json:"order_price" db:"order_price"`
	OrderDvsn             string      `json:"order_dvsn" db:"order_dvsn"`
	AccountNo             string      `json:"account_no" db:"account_no"`
	IsMock                bool        `json:"is_mock" db:"is_mock"`
	Status                OrderStatus `json:"status" db:"status"`
	TotalExecutedQuantity int64       `json:"total_executed_quantity" db:"total_executed_quantity"`
	TotalExecutedPrice    float64     `json:"total_executed_price" db:"total_executed_price"`
	RemainingQuantity     int64       `json:"remaining_quantity" db:"remaining_quantity"`
	IsFullyExecuted       bool        `json:"is_fully_executed" db:"is_fully_executed"`
	OrderedAt             time.Time   `json:"ordered_at" db:"ordered_at"`
	CreatedAt             time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt             *time.Time  `json:"updated_at,omitempty" db:"updated_at"`
}

// OrderExecution is the append-only audit row for one fill event. The
// sequence number increases by one per fill of the same order with no
// gaps; rows are never mutated after insert.
type OrderExecution struct {
	ID                         int64     `json:"id" db:"id"`
	OrderID                    int64     `json:"order_id" db:"order_id"`
	ExecutionSequence          int       `json:"execution_sequence" db:"execution_sequence"`
	ExecutedQuantity           int64     `json:"executed_quantity" db:"executed_quantity"`
	ExecutedPrice              float64   `json:"executed_price" db:"executed_price"`
	TotalExecutedQuantityAfter int64     `json:"total_executed_quantity_after" db:"total_executed_quantity_after"`
	TotalExecutedPriceAfter    float64   `json:"total_executed_price_after" db:"total_executed_price_after"`
	RemainingQuantityAfter     int64     `json:"remaining_quantity_after" db:"remaining_quantity_after"`
	IsFullyExecutedAfter       bool      `json:"is_fully_executed_after" db:"is_fully_executed_after"`
	ExecutedAt                 time.Time `json:"executed_at" db:"executed_at"`
	CreatedAt                  time.Time `json:"created_at" db:"created_at"`
}

// OrderResultMessage is one order-lifecycle event from the broker bridge.
// Quantity and price fields arrive as strings or numbers depending on the
// producer, hence the coercing types.
type OrderResultMessage struct {
	Timestamp             string      `json:"timestamp" validate:"required"`
	UserStrategyID        FlexInt     `json:"user_strategy_id" validate:"required"`
	OrderType             OrderType   `json:"order_type" validate:"required,oneof=BUY SELL"`
	StockCode             string      `json:"stock_code" validate:"required"`
	OrderNo               string      `json:"order_no" validate:"required"`
	OrderQuantity         FlexInt     `json:"order_quantity"`
	OrderPrice            FlexFloat   `json:"order_price"`
	OrderDvsn             string      `json:"order_dvsn"`
	AccountNo             string      `json:"account_no"`
	IsMock                bool        `json:"is_mock"`
	Status                OrderStatus `json:"status" validate:"required,oneof=ordered partially_executed executed"`
	ExecutedQuantity      FlexInt     `json:"executed_quantity"`
	ExecutedPrice         FlexFloat   `json:"executed_price"`
	TotalExecutedQuantity FlexInt     `json:"total_executed_quantity"`
	TotalExecutedPrice    FlexFloat   `json:"total_executed_price"`
	RemainingQuantity     FlexInt     `json:"remaining_quantity"`
	IsFullyExecuted       bool        `json:"is_fully_executed"`
}

// IsExecution reports whether the event carries a fill.
func (m *OrderResultMessage) IsExecution() bool {
	return m.Status != OrderStatusOrdered
}
