package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/yourorg/trading-engine/internal/model"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"go.uber.org/zap"
)

// StrategyRepository handles database operations for daily strategies
// and their stock rows
type StrategyRepository struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// NewStrategyRepository creates a new strategy repository
func NewStrategyRepository(db *sqlx.DB, logger *zap.Logger) *StrategyRepository {
	return &StrategyRepository{
		db:     db,
		logger: logger,
	}
}

// GetDailyStrategyForDay loads the strategy row and its stocks for one
// (user strategy, trading day)
func (r *StrategyRepository) GetDailyStrategyForDay(ctx context.Context, userStrategyID int64, day time.Time) (*model.DailyStrategy, error) {
	query := `
		SELECT id, user_strategy_id, trading_date, buy_amount, sell_amount, total_profit_amount, total_profit_rate, created_at, updated_at
		FROM daily_strategies
		WHERE user_strategy_id = $1 AND trading_date = $2::date
	`

	var ds model.DailyStrategy
	err := r.db.GetContext(ctx, &ds, query, userStrategyID, day.Format(dateLayout))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		r.logger.Error("Failed to get daily strategy",
			zap.Error(err),
			zap.Int64("user_strategy_id", userStrategyID))
		return nil, err
	}

	stocksQuery := `
		SELECT id, daily_strategy_id, stock_code, stock_name, exchange, stock_open, target_price, target_quantity,
			target_sell_price, stop_loss_price, gap_rate, take_profit_target, prob_up, signal,
			buy_price, buy_quantity, sell_price, sell_quantity, profit_rate, created_at, updated_at
		FROM daily_strategy_stocks
		WHERE daily_strategy_id = $1
		ORDER BY id
	`

	err = r.db.SelectContext(ctx, &ds.Stocks, stocksQuery, ds.ID)
	if err != nil {
		r.logger.Error("Failed to get daily strategy stocks",
			zap.Error(err),
			zap.Int64("daily_strategy_id", ds.ID))
		return nil, err
	}

	return &ds, nil
}

// CreateDailyStrategy inserts the strategy row and all rows in ds.Stocks
// in one transaction
func (r *StrategyRepository) CreateDailyStrategy(ctx context.Context, ds *model.DailyStrategy) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		r.logger.Error("Failed to begin transaction", zap.Error(err))
		return err
	}
	defer tx.Rollback()

	query := `
		INSERT INTO daily_strategies (user_strategy_id, trading_date, buy_amount, sell_amount, total_profit_amount, total_profit_rate, created_at)
		VALUES ($1, $2::date, $3, $4, $5, $6, CURRENT_TIMESTAMP)
		RETURNING id
	`

	err = tx.QueryRowxContext(
		ctx,
		query,
		ds.UserStrategyID,
		ds.TradingDate.Format(dateLayout),
		ds.BuyAmount,
		ds.SellAmount,
		ds.TotalProfitAmount,
		ds.TotalProfitRate,
	).Scan(&ds.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateKey
		}
		r.logger.Error("Failed to insert daily strategy",
			zap.Error(err),
			zap.Int64("user_strategy_id", ds.UserStrategyID))
		return err
	}

	stmt, err := tx.PreparexContext(ctx, insertStockQuery)
	if err != nil {
		r.logger.Error("Failed to prepare statement", zap.Error(err))
		return err
	}
	defer stmt.Close()

	for i := range ds.Stocks {
		ds.Stocks[i].DailyStrategyID = ds.ID
		if err := insertStock(ctx, stmt, &ds.Stocks[i]); err != nil {
			r.logger.Error("Failed to insert daily strategy stock",
				zap.Error(err),
				zap.String("stock_code", ds.Stocks[i].StockCode))
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		r.logger.Error("Failed to commit transaction", zap.Error(err))
		return err
	}

	return nil
}

const insertStockQuery = `
	INSERT INTO daily_strategy_stocks (daily_strategy_id, stock_code, stock_name, exchange, stock_open,
		target_price, target_quantity, target_sell_price, stop_loss_price, gap_rate,
		take_profit_target, prob_up, signal, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, CURRENT_TIMESTAMP)
	RETURNING id
`

func insertStock(ctx context.Context, stmt *sqlx.Stmt, s *model.DailyStrategyStock) error {
	return stmt.QueryRowxContext(
		ctx,
		s.DailyStrategyID,
		s.StockCode,
		s.StockName,
		s.Exchange,
		s.StockOpen,
		s.TargetPrice,
		s.TargetQuantity,
		s.TargetSellPrice,
		s.StopLossPrice,
		s.GapRate,
		s.TakeProfitTarget,
		s.ProbUp,
		s.Signal,
	).Scan(&s.ID)
}

// ApplyStockMerge executes a computed plan merge against one daily
// strategy's stock rows in one transaction
func (r *StrategyRepository) ApplyStockMerge(ctx context.Context, dailyStrategyID int64, merge model.PlanMerge) error {
	if merge.Empty() {
		return nil
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		r.logger.Error("Failed to begin transaction", zap.Error(err))
		return err
	}
	defer tx.Rollback()

	// Traded rows keep their realized buy/sell fields, only the plan
	// targets move.
	targetsQuery := `
		UPDATE daily_strategy_stocks
		SET target_price = $2,
			target_quantity = $3,
			target_sell_price = $4,
			stop_loss_price = $5,
			take_profit_target = $6,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = $1
	`

	for _, s := range merge.UpdateTargets {
		_, err = tx.ExecContext(ctx, targetsQuery,
			s.ID, s.TargetPrice, s.TargetQuantity, s.TargetSellPrice, s.StopLossPrice, s.TakeProfitTarget)
		if err != nil {
			r.logger.Error("Failed to update stock targets",
				zap.Error(err),
				zap.Int64("stock_id", s.ID))
			return err
		}
	}

	overwriteQuery := `
		UPDATE daily_strategy_stocks
		SET stock_name = $2,
			exchange = $3,
			stock_open = $4,
			target_price = $5,
			target_quantity = $6,
			target_sell_price = $7,
			stop_loss_price = $8,
			gap_rate = $9,
			take_profit_target = $10,
			prob_up = $11,
			signal = $12,
			profit_rate = NULL,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = $1
	`

	for _, s := range merge.Overwrite {
		_, err = tx.ExecContext(ctx, overwriteQuery,
			s.ID, s.StockName, s.Exchange, s.StockOpen, s.TargetPrice, s.TargetQuantity,
			s.TargetSellPrice, s.StopLossPrice, s.GapRate, s.TakeProfitTarget, s.ProbUp, s.Signal)
		if err != nil {
			r.logger.Error("Failed to overwrite stock row",
				zap.Error(err),
				zap.Int64("stock_id", s.ID))
			return err
		}
	}

	if len(merge.Insert) > 0 {
		stmt, err := tx.PreparexContext(ctx, insertStockQuery)
		if err != nil {
			r.logger.Error("Failed to prepare statement", zap.Error(err))
			return err
		}
		defer stmt.Close()

		for i := range merge.Insert {
			merge.Insert[i].DailyStrategyID = dailyStrategyID
			if err := insertStock(ctx, stmt, &merge.Insert[i]); err != nil {
				r.logger.Error("Failed to insert daily strategy stock",
					zap.Error(err),
					zap.String("stock_code", merge.Insert[i].StockCode))
				return err
			}
		}
	}

	if len(merge.DeleteIDs) > 0 {
		_, err = tx.ExecContext(ctx,
			`DELETE FROM daily_strategy_stocks WHERE daily_strategy_id = $1 AND id = ANY($2)`,
			dailyStrategyID, pq.Array(merge.DeleteIDs))
		if err != nil {
			r.logger.Error("Failed to delete stock rows",
				zap.Error(err),
				zap.Int64("daily_strategy_id", dailyStrategyID))
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		r.logger.Error("Failed to commit transaction", zap.Error(err))
		return err
	}

	return nil
}

// GetTradeTarget resolves the stock row an order event belongs to,
// joined with its owning strategy and account
func (r *StrategyRepository) GetTradeTarget(ctx context.Context, userStrategyID int64, day time.Time, stockCode string) (*model.TradeTarget, error) {
	query := `
		SELECT s.id AS stock_id,
			s.daily_strategy_id,
			d.user_strategy_id,
			a.id AS account_id,
			a.account_no,
			a.account_type
		FROM daily_strategy_stocks s
		JOIN daily_strategies d ON d.id = s.daily_strategy_id
		JOIN user_strategies u ON u.id = d.user_strategy_id
		JOIN accounts a ON a.id = u.account_id
		WHERE d.user_strategy_id = $1 AND d.trading_date = $2::date AND s.stock_code = $3
	`

	var target model.TradeTarget
	err := r.db.GetContext(ctx, &target, query, userStrategyID, day.Format(dateLayout), stockCode)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		r.logger.Error("Failed to resolve trade target",
			zap.Error(err),
			zap.Int64("user_strategy_id", userStrategyID),
			zap.String("stock_code", stockCode))
		return nil, err
	}

	return &target, nil
}
