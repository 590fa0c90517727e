package model

import (
	"fmt"
	"strconv"
	"strings"
)

// Tick is a single real-time trade event from the price stream. The
// exchange feed delivers every numeric field as a string; the fields the
// aggregation pipeline needs are parsed where they are consumed, and a
// tick whose fields fail to parse is skipped there.
type Tick struct {
	StockCode    string `json:"stock_code" validate:"required"`
	TradeTime    string `json:"trade_time" validate:"required"`
	CurrentPrice string `json:"current_price" validate:"required"`
	TradeVolume  string `json:"trade_volume" validate:"required"`

	// Passthrough exchange fields, carried but not used by aggregation.
	AccumulatedVolume string `json:"accumulated_volume,omitempty"`
	AccumulatedAmount string `json:"accumulated_amount,omitempty"`
	OpenPrice         string `json:"open_price,omitempty"`
	HighPrice         string `json:"high_price,omitempty"`
	LowPrice          string `json:"low_price,omitempty"`
	PrevDayDiff       string `json:"prev_day_diff,omitempty"`
	PrevDayDiffSign   string `json:"prev_day_diff_sign,omitempty"`
	PrevDayRate       string `json:"prev_day_rate,omitempty"`
	WeightedAvgPrice  string `json:"weighted_avg_price,omitempty"`
	AskPrice1         string `json:"ask_price1,omitempty"`
	BidPrice1         string `json:"bid_price1,omitempty"`
	BusinessDate      string `json:"business_date,omitempty"`
}

// Price parses the last trade price.
func (t Tick) Price() (float64, error) {
	v, err := strconv.ParseFloat(t.CurrentPrice, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid price %q", t.CurrentPrice)
	}
	return v, nil
}

// Volume parses the trade volume.
func (t Tick) Volume() (int64, error) {
	v, err := strconv.ParseInt(t.TradeVolume, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid volume %q", t.TradeVolume)
	}
	return v, nil
}

// ParseTradeTime splits a trade-time field into hour and minute. Both the
// exchange's compact "HHMMSS" form and "HH:MM:SS" are accepted.
func ParseTradeTime(s string) (hour, minute int, err error) {
	v := strings.ReplaceAll(s, ":", "")
	if len(v) != 6 {
		return 0, 0, fmt.Errorf("invalid trade time %q", s)
	}

	hour, err = strconv.Atoi(v[0:2])
	if err != nil {
		return 0, 0, fmt.Errorf("invalid trade time %q", s)
	}
	minute, err = strconv.Atoi(v[2:4])
	if err != nil {
		return 0, 0, fmt.Errorf("invalid trade time %q", s)
	}

	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("trade time %q out of range", s)
	}

	return hour, minute, nil
}
