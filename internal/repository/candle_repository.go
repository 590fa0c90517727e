package repository

import (
	"context"
	"time"

	"github.com/yourorg/trading-engine/internal/model"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"go.uber.org/zap"
)

// CandleRepository handles database operations for candle data
type CandleRepository struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// NewCandleRepository creates a new candle repository
func NewCandleRepository(db *sqlx.DB, logger *zap.Logger) *CandleRepository {
	return &CandleRepository{
		db:     db,
		logger: logger,
	}
}

const dateLayout = "2006-01-02"

// UpsertHourCandle writes one hour bar, replacing the OHLCV fields of an
// existing bar for the same (stock, date, hour)
func (r *CandleRepository) UpsertHourCandle(ctx context.Context, c *model.HourCandle) error {
	query := `
		INSERT INTO hour_candles (stock_code, candle_date, hour, open, high, low, close, volume, trade_count, created_at)
		VALUES ($1, $2::date, $3, $4, $5, $6, $7, $8, $9, CURRENT_TIMESTAMP)
		ON CONFLICT (stock_code, candle_date, hour)
		DO UPDATE SET
			open = EXCLUDED.open,
			high = EXCLUDED.high,
			low = EXCLUDED.low,
			close = EXCLUDED.close,
			volume = EXCLUDED.volume,
			trade_count = EXCLUDED.trade_count,
			updated_at = CURRENT_TIMESTAMP
	`

	_, err := r.db.ExecContext(
		ctx,
		query,
		c.StockCode,
		c.CandleDate.Format(dateLayout),
		c.Hour,
		c.Open,
		c.High,
		c.Low,
		c.Close,
		c.Volume,
		c.TradeCount,
	)
	if err != nil {
		r.logger.Error("Failed to upsert hour candle",
			zap.Error(err),
			zap.String("stock_code", c.StockCode),
			zap.Int("hour", c.Hour))
		return err
	}

	return nil
}

// UpsertMinuteCandles writes a batch of minute bars in one transaction
func (r *CandleRepository) UpsertMinuteCandles(ctx context.Context, candles []model.MinuteCandle) error {
	if len(candles) == 0 {
		return nil
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		r.logger.Error("Failed to begin transaction", zap.Error(err))
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PreparexContext(ctx, `
		INSERT INTO minute_candles (stock_code, candle_date, candle_time, minute_interval, open, high, low, close, volume, trade_count, created_at)
		VALUES ($1, $2::date, $3, $4, $5, $6, $7, $8, $9, $10, CURRENT_TIMESTAMP)
		ON CONFLICT (stock_code, candle_date, candle_time, minute_interval)
		DO UPDATE SET
			open = EXCLUDED.open,
			high = EXCLUDED.high,
			low = EXCLUDED.low,
			close = EXCLUDED.close,
			volume = EXCLUDED.volume,
			trade_count = EXCLUDED.trade_count,
			updated_at = CURRENT_TIMESTAMP
	`)
	if err != nil {
		r.logger.Error("Failed to prepare statement", zap.Error(err))
		return err
	}
	defer stmt.Close()

	for _, c := range candles {
		_, err = stmt.ExecContext(
			ctx,
			c.StockCode,
			c.CandleDate.Format(dateLayout),
			c.CandleTime,
			c.MinuteInterval,
			c.Open,
			c.High,
			c.Low,
			c.Close,
			c.Volume,
			c.TradeCount,
		)
		if err != nil {
			r.logger.Error("Failed to upsert minute candle",
				zap.Error(err),
				zap.String("stock_code", c.StockCode),
				zap.String("candle_time", c.CandleTime))
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		r.logger.Error("Failed to commit transaction", zap.Error(err))
		return err
	}

	return nil
}

// GetHourCandles returns one stock's hour bars for a date, ordered by hour
func (r *CandleRepository) GetHourCandles(ctx context.Context, stockCode string, day time.Time) ([]model.HourCandle, error) {
	query := `
		SELECT id, stock_code, candle_date, hour, open, high, low, close, volume, trade_count
		FROM hour_candles
		WHERE stock_code = $1 AND candle_date = $2::date
		ORDER BY hour
	`

	var candles []model.HourCandle
	err := r.db.SelectContext(ctx, &candles, query, stockCode, day.Format(dateLayout))
	if err != nil {
		r.logger.Error("Failed to get hour candles",
			zap.Error(err),
			zap.String("stock_code", stockCode))
		return nil, err
	}

	return candles, nil
}

// GetHourCandlesForStocks returns hour bars for several stocks on a date
func (r *CandleRepository) GetHourCandlesForStocks(ctx context.Context, stockCodes []string, day time.Time) ([]model.HourCandle, error) {
	query := `
		SELECT id, stock_code, candle_date, hour, open, high, low, close, volume, trade_count
		FROM hour_candles
		WHERE stock_code = ANY($1) AND candle_date = $2::date
		ORDER BY stock_code, hour
	`

	var candles []model.HourCandle
	err := r.db.SelectContext(ctx, &candles, query, pq.Array(stockCodes), day.Format(dateLayout))
	if err != nil {
		r.logger.Error("Failed to get hour candles",
			zap.Error(err),
			zap.Int("stocks", len(stockCodes)))
		return nil, err
	}

	return candles, nil
}
