package model

import (
	"time"
)

// HourCandle is one hour's OHLCV summary for a stock.
type HourCandle struct {
	ID         int64     `json:"id" db:"id"`
	StockCode  string    `json:"stock_code" db:"stock_code"`
	CandleDate time.Time `json:"candle_date" db:"candle_date"`
	Hour       int       `json:"hour" db:"hour"`
	Open       float64   `json:"open" db:"open"`
	High       float64   `json:"high" db:"high"`
	Low        float64   `json:"low" db:"low"`
	Close      float64   `json:"close" db:"close"`
	Volume     int64     `json:"volume" db:"volume"`
	TradeCount int       `json:"trade_count" db:"trade_count"`
}

// MinuteCandle is one interval-minute OHLCV summary for a stock.
// CandleTime is the bucket start formatted "HH:MM:00".
type MinuteCandle struct {
	ID             int64     `json:"id" db:"id"`
	StockCode      string    `json:"stock_code" db:"stock_code"`
	CandleDate     time.Time `json:"candle_date" db:"candle_date"`
	CandleTime     string    `json:"candle_time" db:"candle_time"`
	MinuteInterval int       `json:"minute_interval" db:"minute_interval"`
	Open           float64   `json:"open" db:"open"`
	High           float64   `json:"high" db:"high"`
	Low            float64   `json:"low" db:"low"`
	Close          float64   `json:"close" db:"close"`
	Volume         int64     `json:"volume" db:"volume"`
	TradeCount     int       `json:"trade_count" db:"trade_count"`
}
