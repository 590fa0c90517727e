package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/yourorg/trading-engine/internal/model"
	"github.com/yourorg/trading-engine/internal/repository"
)

// PlanService applies daily-plan batches to the database. A plan for a
// (user strategy, trading day) pair may be regenerated several times
// before the open; each batch is merged so rows that already traded keep
// their realized buy/sell data while untraded rows follow the newest plan.
type PlanService struct {
	strategies repository.StrategyStore
	loc        *time.Location
	logger     *zap.Logger
}

// NewPlanService creates a plan service.
func NewPlanService(strategies repository.StrategyStore, loc *time.Location, logger *zap.Logger) *PlanService {
	return &PlanService{
		strategies: strategies,
		loc:        loc,
		logger:     logger,
	}
}

// HandleBatch processes one message from the daily-plan stream. The batch
// timestamp, read in the market timezone, decides which trading day the
// plans belong to. A failure in one strategy does not stop the others.
func (s *PlanService) HandleBatch(ctx context.Context, msg *model.DailyStrategyMessage) error {
	ts, err := model.ParseEventTime(msg.Timestamp, s.loc)
	if err != nil {
		return fmt.Errorf("plan batch timestamp: %w", err)
	}
	day := time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, s.loc)

	var failed int
	for _, user := range msg.StrategiesByUser {
		for i := range user.Strategies {
			plan := &user.Strategies[i]
			if err := s.applyPlan(ctx, day, plan); err != nil {
				failed++
				s.logger.Error("Failed to apply daily plan",
					zap.Int64("user_strategy_id", plan.UserStrategyID.Int64()),
					zap.Time("trading_date", day),
					zap.Error(err))
			}
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d plan(s) in batch failed", failed)
	}
	return nil
}

func (s *PlanService) applyPlan(ctx context.Context, day time.Time, plan *model.PlanStrategy) error {
	existing, err := s.strategies.GetDailyStrategyForDay(ctx, plan.UserStrategyID.Int64(), day)
	if errors.Is(err, repository.ErrNotFound) {
		ds := newDailyStrategy(plan, day)
		createErr := s.strategies.CreateDailyStrategy(ctx, ds)
		if createErr == nil {
			s.logger.Info("Created daily strategy",
				zap.Int64("daily_strategy_id", ds.ID),
				zap.Int64("user_strategy_id", ds.UserStrategyID),
				zap.Int("stocks", len(ds.Stocks)))
			return nil
		}
		if !errors.Is(createErr, repository.ErrDuplicateKey) {
			return createErr
		}
		// Another batch created the row between our read and insert.
		// Reload and merge against it instead.
		existing, err = s.strategies.GetDailyStrategyForDay(ctx, plan.UserStrategyID.Int64(), day)
	}
	if err != nil {
		return err
	}

	merge := MergePlan(existing.Stocks, plan.Stocks)
	if merge.Empty() {
		return nil
	}
	if err := s.strategies.ApplyStockMerge(ctx, existing.ID, merge); err != nil {
		return err
	}
	s.logger.Info("Merged daily plan",
		zap.Int64("daily_strategy_id", existing.ID),
		zap.Int("updated", len(merge.UpdateTargets)),
		zap.Int("overwritten", len(merge.Overwrite)),
		zap.Int("inserted", len(merge.Insert)),
		zap.Int("deleted", len(merge.DeleteIDs)))
	return nil
}

// MergePlan computes the row changes needed to bring existing stock rows
// in line with a regenerated plan. Rows that already traded keep their
// realized fields: the merge refreshes only their targets, and they
// survive omission from the new plan. Untraded rows follow the plan
// completely, including deletion.
func MergePlan(existing []model.DailyStrategyStock, incoming []model.PlanStock) model.PlanMerge {
	byCode := make(map[string]*model.DailyStrategyStock, len(existing))
	for i := range existing {
		byCode[existing[i].StockCode] = &existing[i]
	}

	var merge model.PlanMerge
	seen := make(map[string]bool, len(incoming))
	for _, ps := range incoming {
		if seen[ps.StockCode] {
			continue
		}
		seen[ps.StockCode] = true

		row := planStockRow(ps)
		cur, ok := byCode[ps.StockCode]
		if !ok {
			merge.Insert = append(merge.Insert, row)
			continue
		}
		row.ID = cur.ID
		row.DailyStrategyID = cur.DailyStrategyID
		if cur.Traded() {
			merge.UpdateTargets = append(merge.UpdateTargets, row)
		} else {
			merge.Overwrite = append(merge.Overwrite, row)
		}
	}

	for i := range existing {
		if seen[existing[i].StockCode] || existing[i].Traded() {
			continue
		}
		merge.DeleteIDs = append(merge.DeleteIDs, existing[i].ID)
	}
	return merge
}

func newDailyStrategy(plan *model.PlanStrategy, day time.Time) *model.DailyStrategy {
	ds := &model.DailyStrategy{
		UserStrategyID: plan.UserStrategyID.Int64(),
		TradingDate:    day,
	}
	for _, ps := range plan.Stocks {
		ds.Stocks = append(ds.Stocks, planStockRow(ps))
	}
	return ds
}

func planStockRow(ps model.PlanStock) model.DailyStrategyStock {
	return model.DailyStrategyStock{
		StockCode:        ps.StockCode,
		StockName:        ps.StockName,
		Exchange:         ps.Exchange,
		StockOpen:        flexFloatPtr(ps.StockOpen),
		TargetPrice:      ps.TargetPrice.Float64(),
		TargetQuantity:   ps.TargetQuantity.Int64(),
		TargetSellPrice:  flexFloatPtr(ps.TargetSellPrice),
		StopLossPrice:    flexFloatPtr(ps.StopLossPrice),
		GapRate:          flexFloatPtr(ps.GapRate),
		TakeProfitTarget: flexFloatPtr(ps.TakeProfitTarget),
		ProbUp:           flexFloatPtr(ps.ProbUp),
		Signal:           flexIntPtr(ps.Signal),
	}
}

func flexFloatPtr(f *model.FlexFloat) *float64 {
	if f == nil {
		return nil
	}
	v := f.Float64()
	return &v
}

func flexIntPtr(f *model.FlexInt) *int64 {
	if f == nil {
		return nil
	}
	v := f.Int64()
	return &v
}
