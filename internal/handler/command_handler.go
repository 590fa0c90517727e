package handler

import (
	"context"
	"encoding/json"
	"strings"

	"go.uber.org/zap"

	"github.com/yourorg/trading-engine/internal/model"
	"github.com/yourorg/trading-engine/internal/service"
)

// CommandHandler reacts to out-of-band control commands. A stop command
// flushes the tick cache so a partial hour is not lost when the feed
// goes down mid-session.
type CommandHandler struct {
	market *service.MarketDataService
	logger *zap.Logger
}

// NewCommandHandler creates a command handler.
func NewCommandHandler(market *service.MarketDataService, logger *zap.Logger) *CommandHandler {
	return &CommandHandler{
		market: market,
		logger: logger,
	}
}

// Handle decodes one control command and runs it. Unknown commands are
// logged and ignored.
func (h *CommandHandler) Handle(ctx context.Context, value []byte) error {
	var cmd model.ControlCommand
	if err := json.Unmarshal(value, &cmd); err != nil {
		h.logger.Warn("Dropping undecodable command", zap.Error(err))
		return nil
	}

	switch {
	case strings.EqualFold(cmd.Command, model.CommandStop):
		h.logger.Info("Received stop command, flushing tick cache")
		h.market.Flush(ctx)
	default:
		h.logger.Info("Ignoring unknown command", zap.String("command", cmd.Command))
	}
	return nil
}
