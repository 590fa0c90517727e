package cache

import (
	"sync"
	"time"

	"github.com/yourorg/trading-engine/internal/model"
)

// QuoteCache keeps the latest asking-price snapshot per stock. Quotes
// from a previous trading day are discarded on the first write of the
// new day.
type QuoteCache struct {
	mu          sync.RWMutex
	quotes      map[string]model.Quote
	currentDate string
	loc         *time.Location
	now         func() time.Time
}

// NewQuoteCache creates an empty quote cache operating in the given
// market timezone.
func NewQuoteCache(loc *time.Location) *QuoteCache {
	return &QuoteCache{
		quotes: make(map[string]model.Quote),
		loc:    loc,
		now:    time.Now,
	}
}

// Put replaces the stored snapshot for the quote's stock.
func (c *QuoteCache) Put(q model.Quote) {
	c.mu.Lock()
	defer c.mu.Unlock()

	today := c.now().In(c.loc).Format("2006-01-02")
	if c.currentDate != "" && c.currentDate != today {
		c.quotes = make(map[string]model.Quote)
	}
	c.currentDate = today

	c.quotes[q.StockCode] = q
}

// Get returns the latest snapshot for a stock.
func (c *QuoteCache) Get(stockCode string) (model.Quote, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	q, ok := c.quotes[stockCode]
	return q, ok
}

// Best returns the tradable top of book for a stock.
func (c *QuoteCache) Best(stockCode string) (model.BestPrices, bool) {
	q, ok := c.Get(stockCode)
	if !ok {
		return model.BestPrices{}, false
	}
	return q.Best(), true
}

// Size returns the number of stocks with a cached quote.
func (c *QuoteCache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.quotes)
}
