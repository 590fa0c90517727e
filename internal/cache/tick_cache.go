package cache

import (
	"sync"
	"time"

	"github.com/yourorg/trading-engine/internal/model"

	"go.uber.org/zap"
)

// TickCache accumulates ticks per stock for the clock hour currently in
// progress. Recording a tick from a different hour extracts the whole
// current bucket; a wall-clock date change discards it. One mutex covers
// the cache and no I/O happens under it.
type TickCache struct {
	mu          sync.Mutex
	ticks       map[string][]model.Tick
	currentHour int
	currentDate string
	loc         *time.Location
	logger      *zap.Logger
	now         func() time.Time
}

// NewTickCache creates an empty cache operating in the given market
// timezone.
func NewTickCache(loc *time.Location, logger *zap.Logger) *TickCache {
	return &TickCache{
		ticks:       make(map[string][]model.Tick),
		currentHour: -1,
		loc:         loc,
		logger:      logger,
		now:         time.Now,
	}
}

// Record stores the tick under its stock code for the hour derived from
// its trade time. If that hour differs from the one being accumulated,
// the entire current bucket is extracted and returned with rolled=true,
// and accumulation restarts with the incoming tick. A date change since
// the last call clears the cache without extraction; yesterday's partial
// hour is not aggregated. Ticks whose trade time cannot be parsed are
// dropped with a warning.
func (c *TickCache) Record(tick model.Tick) (rolled bool, prevHour int, prev map[string][]model.Tick) {
	hour, _, err := model.ParseTradeTime(tick.TradeTime)
	if err != nil {
		c.logger.Warn("Dropping tick with unparseable trade time",
			zap.String("stock_code", tick.StockCode),
			zap.String("trade_time", tick.TradeTime))
		return false, 0, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	today := c.now().In(c.loc).Format("2006-01-02")
	if c.currentDate != "" && c.currentDate != today {
		c.logger.Info("Date changed, clearing tick cache",
			zap.String("previous_date", c.currentDate),
			zap.String("date", today),
			zap.Int("stocks", len(c.ticks)))
		c.ticks = make(map[string][]model.Tick)
		c.currentHour = -1
	}
	c.currentDate = today

	if c.currentHour >= 0 && hour != c.currentHour {
		rolled = true
		prevHour = c.currentHour
		prev = c.ticks
		c.ticks = make(map[string][]model.Tick)
	}

	c.currentHour = hour
	c.ticks[tick.StockCode] = append(c.ticks[tick.StockCode], tick)

	return rolled, prevHour, prev
}

// ExtractAll removes and returns the current bucket regardless of hour
// boundaries, together with the hour it was accumulating. Used by the
// external stop signal. Returns hour -1 when nothing was accumulated.
func (c *TickCache) ExtractAll() (int, map[string][]model.Tick) {
	c.mu.Lock()
	defer c.mu.Unlock()

	hour := c.currentHour
	prev := c.ticks
	c.ticks = make(map[string][]model.Tick)
	c.currentHour = -1

	return hour, prev
}

// Size returns the number of stocks with ticks in the current bucket.
func (c *TickCache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.ticks)
}
