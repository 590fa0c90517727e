package candle

import (
	"fmt"
	"sort"
	"time"

	"github.com/yourorg/trading-engine/internal/model"

	"go.uber.org/zap"
)

// Aggregator turns ordered tick slices into OHLCV bars. It holds no
// state between calls; callers must supply ticks in arrival order, the
// aggregator does not sort them.
type Aggregator struct {
	logger *zap.Logger
}

// NewAggregator creates a new candle aggregator.
func NewAggregator(logger *zap.Logger) *Aggregator {
	return &Aggregator{
		logger: logger,
	}
}

// HourBar folds the ticks of one stock's hour bucket into a single hour
// candle. Ticks whose price or volume fail to parse are skipped with a
// warning. Returns false if no tick parsed.
func (a *Aggregator) HourBar(stockCode string, date time.Time, hour int, ticks []model.Tick) (*model.HourCandle, bool) {
	var bar *model.HourCandle

	for _, t := range ticks {
		price, vol, err := parseTick(t)
		if err != nil {
			a.logger.Warn("Skipping unparseable tick",
				zap.String("stock_code", stockCode),
				zap.Error(err))
			continue
		}

		if bar == nil {
			bar = &model.HourCandle{
				StockCode:  stockCode,
				CandleDate: date,
				Hour:       hour,
				Open:       price,
				High:       price,
				Low:        price,
				Close:      price,
				Volume:     vol,
				TradeCount: 1,
			}
			continue
		}

		if price > bar.High {
			bar.High = price
		}
		if price < bar.Low {
			bar.Low = price
		}
		bar.Close = price
		bar.Volume += vol
		bar.TradeCount++
	}

	if bar == nil {
		return nil, false
	}
	return bar, true
}

// MinuteBars folds the ticks of one stock's hour bucket into interval-
// minute candles, one per populated bucket, sorted by bucket start.
// A tick at minute m lands in the bucket starting at
// floor(m/interval)*interval of its own hour.
func (a *Aggregator) MinuteBars(stockCode string, date time.Time, interval int, ticks []model.Tick) []model.MinuteCandle {
	if interval <= 0 {
		interval = 1
	}

	bars := make(map[int]*model.MinuteCandle)

	for _, t := range ticks {
		hour, minute, err := model.ParseTradeTime(t.TradeTime)
		if err != nil {
			a.logger.Warn("Skipping tick with unparseable trade time",
				zap.String("stock_code", stockCode),
				zap.Error(err))
			continue
		}

		price, vol, err := parseTick(t)
		if err != nil {
			a.logger.Warn("Skipping unparseable tick",
				zap.String("stock_code", stockCode),
				zap.Error(err))
			continue
		}

		bucketMinute := (minute / interval) * interval
		key := hour*60 + bucketMinute

		bar, ok := bars[key]
		if !ok {
			bars[key] = &model.MinuteCandle{
				StockCode:      stockCode,
				CandleDate:     date,
				CandleTime:     fmt.Sprintf("%02d:%02d:00", hour, bucketMinute),
				MinuteInterval: interval,
				Open:           price,
				High:           price,
				Low:            price,
				Close:          price,
				Volume:         vol,
				TradeCount:     1,
			}
			continue
		}

		if price > bar.High {
			bar.High = price
		}
		if price < bar.Low {
			bar.Low = price
		}
		bar.Close = price
		bar.Volume += vol
		bar.TradeCount++
	}

	keys := make([]int, 0, len(bars))
	for k := range bars {
		keys = append(keys, k)
	}
	sort.Ints(keys)

	out := make([]model.MinuteCandle, 0, len(bars))
	for _, k := range keys {
		out = append(out, *bars[k])
	}
	return out
}

func parseTick(t model.Tick) (price float64, volume int64, err error) {
	price, err = t.Price()
	if err != nil {
		return 0, 0, err
	}
	volume, err = t.Volume()
	if err != nil {
		return 0, 0, err
	}
	return price, volume, nil
}
