package handler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/yourorg/trading-engine/internal/cache"
	"github.com/yourorg/trading-engine/internal/candle"
	"github.com/yourorg/trading-engine/internal/config"
	"github.com/yourorg/trading-engine/internal/model"
	"github.com/yourorg/trading-engine/internal/service"
)

// stubCandleStore serves canned candles and records upserts.
type stubCandleStore struct {
	mu     sync.Mutex
	hours  []model.HourCandle
	canned []model.HourCandle
}

func (s *stubCandleStore) UpsertHourCandle(_ context.Context, c *model.HourCandle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hours = append(s.hours, *c)
	return nil
}

func (s *stubCandleStore) UpsertMinuteCandles(context.Context, []model.MinuteCandle) error {
	return nil
}

func (s *stubCandleStore) GetHourCandles(_ context.Context, stockCode string, _ time.Time) ([]model.HourCandle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.HourCandle
	for _, c := range s.canned {
		if c.StockCode == stockCode {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *stubCandleStore) GetHourCandlesForStocks(_ context.Context, stockCodes []string, _ time.Time) ([]model.HourCandle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	want := make(map[string]bool, len(stockCodes))
	for _, c := range stockCodes {
		want[c] = true
	}
	var out []model.HourCandle
	for _, c := range s.canned {
		if want[c.StockCode] {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *stubCandleStore) upserts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.hours)
}

func tickFixture(code, tradeTime string) model.Tick {
	return model.Tick{StockCode: code, TradeTime: tradeTime, CurrentPrice: "70000", TradeVolume: "10"}
}

func marketLoc(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Asia/Seoul")
	require.NoError(t, err)
	return loc
}

func newMarketService(t *testing.T, store *stubCandleStore) (*service.MarketDataService, *cache.TickCache) {
	t.Helper()
	loc := marketLoc(t)
	tc := cache.NewTickCache(loc, zap.NewNop())
	svc := service.NewMarketDataService(
		tc,
		candle.NewAggregator(zap.NewNop()),
		store,
		config.MarketConfig{Timezone: "Asia/Seoul", SessionOpen: 9, SessionClose: 15, MinuteInterval: 1},
		loc,
		zap.NewNop(),
	)
	return svc, tc
}
