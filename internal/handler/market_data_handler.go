package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/yourorg/trading-engine/internal/cache"
	"github.com/yourorg/trading-engine/internal/service"
)

// MarketDataHandler serves the read-only market data HTTP endpoints.
type MarketDataHandler struct {
	market *service.MarketDataService
	quotes *cache.QuoteCache
	logger *zap.Logger
}

// NewMarketDataHandler creates a new market data handler
func NewMarketDataHandler(market *service.MarketDataService, quotes *cache.QuoteCache, logger *zap.Logger) *MarketDataHandler {
	return &MarketDataHandler{
		market: market,
		quotes: quotes,
		logger: logger,
	}
}

// GetTodayCandles returns today's persisted hour candles
// GET /api/v1/candles/today?stock_code=005930
// GET /api/v1/candles/today?stock_codes=005930,000660
func (h *MarketDataHandler) GetTodayCandles(c *gin.Context) {
	if codes := c.Query("stock_codes"); codes != "" {
		list := strings.Split(codes, ",")
		for i := range list {
			list[i] = strings.TrimSpace(list[i])
		}

		candles, err := h.market.TodayHourCandlesForStocks(c.Request.Context(), list)
		if err != nil {
			h.logger.Error("Failed to get today's candles", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get candles"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": candles})
		return
	}

	stockCode := c.Query("stock_code")
	if stockCode == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "stock_code is required"})
		return
	}

	candles, err := h.market.TodayHourCandles(c.Request.Context(), stockCode)
	if err != nil {
		h.logger.Error("Failed to get today's candles",
			zap.String("stock_code", stockCode),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get candles"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": candles})
}

// GetQuote returns the latest cached asking price for a stock
// GET /api/v1/quotes/:stock_code
func (h *MarketDataHandler) GetQuote(c *gin.Context) {
	stockCode := c.Param("stock_code")

	best, ok := h.quotes.Best(stockCode)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "No quote for stock"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": best})
}
