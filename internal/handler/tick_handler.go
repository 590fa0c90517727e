package handler

import (
	"context"
	"encoding/json"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/yourorg/trading-engine/internal/metrics"
	"github.com/yourorg/trading-engine/internal/model"
	"github.com/yourorg/trading-engine/internal/service"
)

// TickHandler feeds price-stream ticks into the market data service.
type TickHandler struct {
	market   *service.MarketDataService
	validate *validator.Validate
	logger   *zap.Logger
}

// NewTickHandler creates a tick handler.
func NewTickHandler(market *service.MarketDataService, validate *validator.Validate, logger *zap.Logger) *TickHandler {
	return &TickHandler{
		market:   market,
		validate: validate,
		logger:   logger,
	}
}

// Handle decodes and records one tick. Malformed payloads are dropped so
// one bad producer cannot stall the stream.
func (h *TickHandler) Handle(ctx context.Context, value []byte) error {
	var tick model.Tick
	if err := json.Unmarshal(value, &tick); err != nil {
		metrics.RecordTick("invalid")
		h.logger.Warn("Dropping undecodable tick", zap.Error(err))
		return nil
	}
	if err := h.validate.Struct(&tick); err != nil {
		metrics.RecordTick("invalid")
		h.logger.Warn("Dropping invalid tick",
			zap.String("stock_code", tick.StockCode),
			zap.Error(err))
		return nil
	}

	h.market.OnTick(ctx, tick)
	metrics.RecordTick("ok")
	return nil
}
