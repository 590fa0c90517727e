package handler

import (
	"context"
	"encoding/json"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/yourorg/trading-engine/internal/model"
	"github.com/yourorg/trading-engine/internal/service"
)

// PlanHandler applies daily-plan batches through the plan service.
type PlanHandler struct {
	plans    *service.PlanService
	validate *validator.Validate
	logger   *zap.Logger
}

// NewPlanHandler creates a plan handler.
func NewPlanHandler(plans *service.PlanService, validate *validator.Validate, logger *zap.Logger) *PlanHandler {
	return &PlanHandler{
		plans:    plans,
		validate: validate,
		logger:   logger,
	}
}

// Handle decodes one plan batch and merges it into the database.
// Malformed payloads are dropped; a database failure is returned so the
// consumer records it.
func (h *PlanHandler) Handle(ctx context.Context, value []byte) error {
	var msg model.DailyStrategyMessage
	if err := json.Unmarshal(value, &msg); err != nil {
		h.logger.Warn("Dropping undecodable plan batch", zap.Error(err))
		return nil
	}
	if err := h.validate.Struct(&msg); err != nil {
		h.logger.Warn("Dropping invalid plan batch", zap.Error(err))
		return nil
	}

	return h.plans.HandleBatch(ctx, &msg)
}
