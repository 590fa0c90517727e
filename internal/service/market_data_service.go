package service

import (
	"context"
	"sync"
	"time"

	"github.com/yourorg/trading-engine/internal/cache"
	"github.com/yourorg/trading-engine/internal/candle"
	"github.com/yourorg/trading-engine/internal/config"
	"github.com/yourorg/trading-engine/internal/metrics"
	"github.com/yourorg/trading-engine/internal/model"
	"github.com/yourorg/trading-engine/internal/repository"

	"go.uber.org/zap"
)

// MarketDataService drives the tick-to-candle pipeline: ticks accumulate
// in the cache, and each hour rollover compacts the closed bucket into
// hour and minute bars upserted to storage.
type MarketDataService struct {
	cache      *cache.TickCache
	aggregator *candle.Aggregator
	candles    repository.CandleStore
	market     config.MarketConfig
	loc        *time.Location
	logger     *zap.Logger
	wg         sync.WaitGroup
}

// NewMarketDataService creates a new market data service
func NewMarketDataService(
	tickCache *cache.TickCache,
	aggregator *candle.Aggregator,
	candles repository.CandleStore,
	market config.MarketConfig,
	loc *time.Location,
	logger *zap.Logger,
) *MarketDataService {
	return &MarketDataService{
		cache:      tickCache,
		aggregator: aggregator,
		candles:    candles,
		market:     market,
		loc:        loc,
		logger:     logger,
	}
}

// OnTick records one tick. When the tick opens a new hour, the closed
// bucket is aggregated and persisted in the background so ticks keep
// flowing while the flush runs. Buckets that closed outside session
// hours are discarded.
func (s *MarketDataService) OnTick(ctx context.Context, tick model.Tick) {
	rolled, prevHour, prev := s.cache.Record(tick)
	metrics.SetTickCacheStocks(s.cache.Size())

	if !rolled || len(prev) == 0 {
		return
	}

	if !s.market.InSession(prevHour) {
		s.logger.Debug("Discarding bucket outside session hours",
			zap.Int("hour", prevHour),
			zap.Int("stocks", len(prev)))
		return
	}

	date := time.Now().In(s.loc)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		flushCtx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		s.persistBuckets(flushCtx, date, prevHour, prev)
	}()
}

// Flush extracts whatever the cache holds and persists it, regardless
// of hour boundaries or session hours. Runs synchronously; used by the
// stop command.
func (s *MarketDataService) Flush(ctx context.Context) {
	hour, buckets := s.cache.ExtractAll()
	metrics.SetTickCacheStocks(0)

	if hour < 0 || len(buckets) == 0 {
		s.logger.Info("Tick cache empty, nothing to flush")
		return
	}

	s.logger.Info("Flushing tick cache",
		zap.Int("hour", hour),
		zap.Int("stocks", len(buckets)))
	s.persistBuckets(ctx, time.Now().In(s.loc), hour, buckets)
}

// Close waits for in-flight background persistence to finish.
func (s *MarketDataService) Close() {
	s.wg.Wait()
}

// persistBuckets aggregates and upserts one closed hour bucket. A
// failure for one stock does not stop the others.
func (s *MarketDataService) persistBuckets(ctx context.Context, date time.Time, hour int, buckets map[string][]model.Tick) {
	var persisted int

	for stockCode, ticks := range buckets {
		bar, ok := s.aggregator.HourBar(stockCode, date, hour, ticks)
		if !ok {
			s.logger.Warn("No candle produced for bucket",
				zap.String("stock_code", stockCode),
				zap.Int("hour", hour),
				zap.Int("ticks", len(ticks)))
			continue
		}

		if err := s.candles.UpsertHourCandle(ctx, bar); err != nil {
			s.logger.Error("Failed to persist hour candle",
				zap.Error(err),
				zap.String("stock_code", stockCode),
				zap.Int("hour", hour))
			continue
		}
		metrics.RecordCandles("hour", 1)

		minuteBars := s.aggregator.MinuteBars(stockCode, date, s.market.MinuteInterval, ticks)
		if len(minuteBars) > 0 {
			if err := s.candles.UpsertMinuteCandles(ctx, minuteBars); err != nil {
				s.logger.Error("Failed to persist minute candles",
					zap.Error(err),
					zap.String("stock_code", stockCode),
					zap.Int("hour", hour))
				continue
			}
			metrics.RecordCandles("minute", len(minuteBars))
		}

		persisted++
	}

	s.logger.Info("Persisted candle bucket",
		zap.Int("hour", hour),
		zap.Int("stocks", len(buckets)),
		zap.Int("persisted", persisted))
}

// TodayHourCandles returns the persisted hour bars for one stock today.
func (s *MarketDataService) TodayHourCandles(ctx context.Context, stockCode string) ([]model.HourCandle, error) {
	return s.candles.GetHourCandles(ctx, stockCode, time.Now().In(s.loc))
}

// TodayHourCandlesForStocks returns today's hour bars for several stocks.
func (s *MarketDataService) TodayHourCandlesForStocks(ctx context.Context, stockCodes []string) ([]model.HourCandle, error) {
	return s.candles.GetHourCandlesForStocks(ctx, stockCodes, time.Now().In(s.loc))
}
