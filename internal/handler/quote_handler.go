package handler

import (
	"context"
	"encoding/json"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/yourorg/trading-engine/internal/cache"
	"github.com/yourorg/trading-engine/internal/model"
)

// QuoteHandler keeps the in-memory book of latest asking prices current.
type QuoteHandler struct {
	quotes   *cache.QuoteCache
	validate *validator.Validate
	logger   *zap.Logger
}

// NewQuoteHandler creates a quote handler.
func NewQuoteHandler(quotes *cache.QuoteCache, validate *validator.Validate, logger *zap.Logger) *QuoteHandler {
	return &QuoteHandler{
		quotes:   quotes,
		validate: validate,
		logger:   logger,
	}
}

// Handle decodes one asking-price snapshot and replaces the stock's
// cached quote with it. Malformed payloads are dropped.
func (h *QuoteHandler) Handle(ctx context.Context, value []byte) error {
	var quote model.Quote
	if err := json.Unmarshal(value, &quote); err != nil {
		h.logger.Warn("Dropping undecodable quote", zap.Error(err))
		return nil
	}
	if err := h.validate.Struct(&quote); err != nil {
		h.logger.Warn("Dropping invalid quote",
			zap.String("stock_code", quote.StockCode),
			zap.Error(err))
		return nil
	}

	h.quotes.Put(quote)
	return nil
}
