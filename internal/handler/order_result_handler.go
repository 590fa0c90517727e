package handler

import (
	"context"
	"encoding/json"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/yourorg/trading-engine/internal/model"
	"github.com/yourorg/trading-engine/internal/service"
)

// OrderResultHandler routes order-lifecycle events into reconciliation.
type OrderResultHandler struct {
	orders   *service.OrderService
	validate *validator.Validate
	logger   *zap.Logger
}

// NewOrderResultHandler creates an order-result handler.
func NewOrderResultHandler(orders *service.OrderService, validate *validator.Validate, logger *zap.Logger) *OrderResultHandler {
	return &OrderResultHandler{
		orders:   orders,
		validate: validate,
		logger:   logger,
	}
}

// Handle decodes one order event and reconciles it. The topic also
// carries outbound order signals, which have no order number yet; those
// are skipped. Malformed payloads are dropped.
func (h *OrderResultHandler) Handle(ctx context.Context, value []byte) error {
	var msg model.OrderResultMessage
	if err := json.Unmarshal(value, &msg); err != nil {
		h.logger.Warn("Dropping undecodable order event", zap.Error(err))
		return nil
	}
	if msg.OrderNo == "" {
		h.logger.Debug("Skipping order message without order number")
		return nil
	}
	if err := h.validate.Struct(&msg); err != nil {
		h.logger.Warn("Dropping invalid order event",
			zap.String("order_no", msg.OrderNo),
			zap.Error(err))
		return nil
	}

	return h.orders.Process(ctx, &msg)
}
