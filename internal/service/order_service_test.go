package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/yourorg/trading-engine/internal/model"
	"github.com/yourorg/trading-engine/internal/ratelimit"
	"github.com/yourorg/trading-engine/internal/repository"
)

type orderFixture struct {
	orders     *fakeOrderStore
	strategies *fakeStrategyStore
	accounts   *fakeAccountStore
	broker     *fakeBroker
	svc        *OrderService
	loc        *time.Location
	day        time.Time
}

func newOrderFixture(t *testing.T) *orderFixture {
	loc := seoulLoc(t)
	f := &orderFixture{
		orders:     newFakeOrderStore(),
		strategies: newFakeStrategyStore(),
		accounts:   newFakeAccountStore(),
		broker:     &fakeBroker{},
		loc:        loc,
		day:        time.Date(2026, 8, 25, 0, 0, 0, 0, loc),
	}
	limits := ratelimit.NewRegistry(100, 100, time.Second)
	acctSvc := NewAccountService(f.accounts, f.broker, limits, zap.NewNop())
	f.svc = NewOrderService(f.orders, f.strategies, acctSvc, loc, zap.NewNop())
	return f
}

func (f *orderFixture) seedTarget(accountType model.AccountType) *model.TradeTarget {
	target := &model.TradeTarget{
		StockID:         21,
		DailyStrategyID: 3,
		UserStrategyID:  42,
		AccountID:       9,
		AccountNo:       "50123456-01",
		AccountType:     accountType,
	}
	f.strategies.targets[targetKey(42, f.day, "005930")] = target
	return target
}

func orderMsg(status model.OrderStatus) *model.OrderResultMessage {
	return &model.OrderResultMessage{
		Timestamp:      "2026-08-25T10:30:00.000000",
		UserStrategyID: model.FlexInt(42),
		OrderType:      model.OrderTypeBuy,
		StockCode:      "005930",
		OrderNo:        "0000012345",
		OrderQuantity:  model.FlexInt(10),
		OrderPrice:     model.FlexFloat(75000),
		OrderDvsn:      "00",
		AccountNo:      "50123456-01",
		IsMock:         true,
		Status:         status,
	}
}

func execMsg(qty int64, price float64, totalQty int64, totalPrice float64, remaining int64, full bool) *model.OrderResultMessage {
	m := orderMsg(model.OrderStatusPartiallyExecuted)
	if full {
		m.Status = model.OrderStatusExecuted
	}
	m.ExecutedQuantity = model.FlexInt(qty)
	m.ExecutedPrice = model.FlexFloat(price)
	m.TotalExecutedQuantity = model.FlexInt(totalQty)
	m.TotalExecutedPrice = model.FlexFloat(totalPrice)
	m.RemainingQuantity = model.FlexInt(remaining)
	m.IsFullyExecuted = full
	return m
}

func TestOrderService_Process_CreatesOrderOnReceipt(t *testing.T) {
	f := newOrderFixture(t)
	f.seedTarget(model.AccountTypeMock)

	require.NoError(t, f.svc.Process(context.Background(), orderMsg(model.OrderStatusOrdered)))

	got, ok := f.orders.order("0000012345")
	require.True(t, ok)
	assert.Equal(t, model.OrderStatusOrdered, got.Status)
	assert.Equal(t, model.OrderTypeBuy, got.OrderType)
	assert.Equal(t, int64(10), got.OrderQuantity)
	assert.Equal(t, float64(75000), got.OrderPrice)
	assert.Equal(t, int64(10), got.RemainingQuantity)
	assert.Equal(t, int64(21), got.DailyStrategyStockID)
	assert.Equal(t, "50123456-01", got.AccountNo)
	assert.True(t, got.IsMock)
	assert.True(t, got.OrderedAt.Equal(time.Date(2026, 8, 25, 10, 30, 0, 0, f.loc)))

	assert.Empty(t, f.orders.execs("0000012345"))
	assert.Zero(t, f.orders.balance(9))
	assert.Equal(t, 1, f.svc.locks.Size())
}

func TestOrderService_Process_BooksFillsInSequence(t *testing.T) {
	f := newOrderFixture(t)
	f.seedTarget(model.AccountTypeMock)
	ctx := context.Background()

	require.NoError(t, f.svc.Process(ctx, orderMsg(model.OrderStatusOrdered)))
	require.NoError(t, f.svc.Process(ctx, execMsg(4, 75000, 4, 75000, 6, false)))

	got, ok := f.orders.order("0000012345")
	require.True(t, ok)
	assert.Equal(t, model.OrderStatusPartiallyExecuted, got.Status)
	assert.Equal(t, int64(4), got.TotalExecutedQuantity)
	assert.Equal(t, int64(6), got.RemainingQuantity)
	assert.False(t, got.IsFullyExecuted)

	require.NoError(t, f.svc.Process(ctx, execMsg(6, 74950, 10, 74970, 0, true)))

	got, _ = f.orders.order("0000012345")
	assert.Equal(t, model.OrderStatusExecuted, got.Status)
	assert.Equal(t, int64(10), got.TotalExecutedQuantity)
	assert.Equal(t, float64(74970), got.TotalExecutedPrice)
	assert.Equal(t, int64(0), got.RemainingQuantity)
	assert.True(t, got.IsFullyExecuted)

	execs := f.orders.execs("0000012345")
	require.Len(t, execs, 2)
	assert.Equal(t, 1, execs[0].ExecutionSequence)
	assert.Equal(t, int64(4), execs[0].ExecutedQuantity)
	assert.Equal(t, int64(4), execs[0].TotalExecutedQuantityAfter)
	assert.Equal(t, int64(6), execs[0].RemainingQuantityAfter)
	assert.False(t, execs[0].IsFullyExecutedAfter)
	assert.Equal(t, 2, execs[1].ExecutionSequence)
	assert.Equal(t, int64(10), execs[1].TotalExecutedQuantityAfter)
	assert.True(t, execs[1].IsFullyExecutedAfter)

	// The stock row carries the broker's cumulative totals.
	f.orders.mu.Lock()
	buy := f.orders.buys[21]
	f.orders.mu.Unlock()
	assert.Equal(t, stockSide{price: 74970, quantity: 10}, buy)

	// Mock cash moves inside the transaction: 4*75000 + 6*74950.
	assert.Equal(t, -749700.0, f.orders.balance(9))
	assert.Equal(t, 2, f.orders.recomputed(3))

	// Fully executed orders release their lock entry.
	assert.Equal(t, 0, f.svc.locks.Size())
}

func TestOrderService_Process_DuplicateExecutionSkipped(t *testing.T) {
	f := newOrderFixture(t)
	f.seedTarget(model.AccountTypeMock)
	ctx := context.Background()

	require.NoError(t, f.svc.Process(ctx, orderMsg(model.OrderStatusOrdered)))
	require.NoError(t, f.svc.Process(ctx, execMsg(4, 75000, 4, 75000, 6, false)))
	require.NoError(t, f.svc.Process(ctx, execMsg(4, 75000, 4, 75000, 6, false)))

	execs := f.orders.execs("0000012345")
	require.Len(t, execs, 1)
	assert.Equal(t, -300000.0, f.orders.balance(9))
	assert.Equal(t, 1, f.orders.recomputed(3))
}

func TestOrderService_Process_StaleExecutionIgnored(t *testing.T) {
	f := newOrderFixture(t)
	f.seedTarget(model.AccountTypeMock)
	ctx := context.Background()

	require.NoError(t, f.svc.Process(ctx, orderMsg(model.OrderStatusOrdered)))
	require.NoError(t, f.svc.Process(ctx, execMsg(10, 75000, 10, 75000, 0, true)))
	require.Equal(t, -750000.0, f.orders.balance(9))

	// A partial fill redelivered after the full fill must not rewind.
	require.NoError(t, f.svc.Process(ctx, execMsg(4, 75000, 4, 75000, 6, false)))

	got, _ := f.orders.order("0000012345")
	assert.Equal(t, model.OrderStatusExecuted, got.Status)
	assert.Equal(t, int64(10), got.TotalExecutedQuantity)
	require.Len(t, f.orders.execs("0000012345"), 1)
	assert.Equal(t, -750000.0, f.orders.balance(9))
	assert.Equal(t, 0, f.svc.locks.Size())
}

func TestOrderService_Process_LateReceiptAfterFillsIgnored(t *testing.T) {
	f := newOrderFixture(t)
	f.seedTarget(model.AccountTypeMock)
	ctx := context.Background()

	require.NoError(t, f.svc.Process(ctx, orderMsg(model.OrderStatusOrdered)))
	require.NoError(t, f.svc.Process(ctx, execMsg(4, 75000, 4, 75000, 6, false)))

	late := orderMsg(model.OrderStatusOrdered)
	late.OrderQuantity = model.FlexInt(12)
	require.NoError(t, f.svc.Process(ctx, late))

	got, _ := f.orders.order("0000012345")
	assert.Equal(t, model.OrderStatusPartiallyExecuted, got.Status)
	assert.Equal(t, int64(10), got.OrderQuantity)
	assert.Equal(t, int64(6), got.RemainingQuantity)
}

func TestOrderService_Process_ReceiptRefreshUpdatesPlacement(t *testing.T) {
	f := newOrderFixture(t)
	f.seedTarget(model.AccountTypeMock)
	ctx := context.Background()

	require.NoError(t, f.svc.Process(ctx, orderMsg(model.OrderStatusOrdered)))

	corrected := orderMsg(model.OrderStatusOrdered)
	corrected.OrderQuantity = model.FlexInt(12)
	corrected.OrderPrice = model.FlexFloat(74000)
	require.NoError(t, f.svc.Process(ctx, corrected))

	got, _ := f.orders.order("0000012345")
	assert.Equal(t, model.OrderStatusOrdered, got.Status)
	assert.Equal(t, int64(12), got.OrderQuantity)
	assert.Equal(t, float64(74000), got.OrderPrice)
	assert.Equal(t, int64(12), got.RemainingQuantity)
}

func TestOrderService_Process_ExecutionWithoutReceiptCreatesOrder(t *testing.T) {
	f := newOrderFixture(t)
	f.seedTarget(model.AccountTypeMock)

	require.NoError(t, f.svc.Process(context.Background(), execMsg(4, 75000, 4, 75000, 6, false)))

	got, ok := f.orders.order("0000012345")
	require.True(t, ok)
	assert.Equal(t, model.OrderStatusPartiallyExecuted, got.Status)
	assert.Equal(t, int64(4), got.TotalExecutedQuantity)
	assert.Equal(t, int64(6), got.RemainingQuantity)

	execs := f.orders.execs("0000012345")
	require.Len(t, execs, 1)
	assert.Equal(t, 1, execs[0].ExecutionSequence)
}

func TestOrderService_Process_SellCreditsMockBalance(t *testing.T) {
	f := newOrderFixture(t)
	f.seedTarget(model.AccountTypeMock)
	ctx := context.Background()

	sell := execMsg(10, 75000, 10, 75000, 0, true)
	sell.OrderType = model.OrderTypeSell
	require.NoError(t, f.svc.Process(ctx, sell))

	assert.Equal(t, 750000.0, f.orders.balance(9))
	f.orders.mu.Lock()
	sold := f.orders.sells[21]
	buy := f.orders.buys[21]
	f.orders.mu.Unlock()
	assert.Equal(t, stockSide{price: 75000, quantity: 10}, sold)
	assert.Zero(t, buy)
}

func TestOrderService_Process_DropsEventWithoutTarget(t *testing.T) {
	f := newOrderFixture(t)

	require.NoError(t, f.svc.Process(context.Background(), orderMsg(model.OrderStatusOrdered)))

	_, ok := f.orders.order("0000012345")
	assert.False(t, ok)
	assert.Equal(t, 0, f.svc.locks.Size())
}

func TestOrderService_Process_RetriesLostCreateRace(t *testing.T) {
	f := newOrderFixture(t)
	f.seedTarget(model.AccountTypeMock)
	f.orders.createErrs = []error{repository.ErrDuplicateKey}

	require.NoError(t, f.svc.Process(context.Background(), execMsg(4, 75000, 4, 75000, 6, false)))

	got, ok := f.orders.order("0000012345")
	require.True(t, ok)
	assert.Equal(t, int64(4), got.TotalExecutedQuantity)
	require.Len(t, f.orders.execs("0000012345"), 1)
}

func TestOrderService_Process_PermanentErrorNotRetried(t *testing.T) {
	f := newOrderFixture(t)
	f.seedTarget(model.AccountTypeMock)
	f.orders.createErrs = []error{errors.New("db down")}

	// The scripted error pops once; a retry would succeed and hide it.
	err := f.svc.Process(context.Background(), execMsg(4, 75000, 4, 75000, 6, false))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db down")

	_, ok := f.orders.order("0000012345")
	assert.False(t, ok)
}

func TestOrderService_Process_ConcurrentReplaysBookOnce(t *testing.T) {
	f := newOrderFixture(t)
	f.seedTarget(model.AccountTypeMock)

	msg := execMsg(4, 75000, 4, 75000, 6, false)
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := f.svc.Process(context.Background(), msg); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()

	execs := f.orders.execs("0000012345")
	require.Len(t, execs, 1)
	assert.Equal(t, 1, execs[0].ExecutionSequence)
	assert.Equal(t, -300000.0, f.orders.balance(9))
}

func TestOrderService_Process_ExternalAccountSyncsBalance(t *testing.T) {
	f := newOrderFixture(t)
	f.seedTarget(model.AccountTypePaper)

	token := "cached-token"
	expiry := time.Now().Add(2 * time.Hour)
	f.accounts.add(&model.Account{
		ID:             9,
		AccountNo:      "50123456-01",
		AccountType:    model.AccountTypePaper,
		AppKey:         "key",
		AppSecret:      "secret",
		AccessToken:    &token,
		TokenExpiredAt: &expiry,
	})
	f.broker.balance = 12345678

	ctx := context.Background()
	receipt := orderMsg(model.OrderStatusOrdered)
	receipt.IsMock = false
	require.NoError(t, f.svc.Process(ctx, receipt))
	_, fetched := f.broker.calls()
	assert.Equal(t, 0, fetched, "receipts must not trigger a sync")

	fill := execMsg(10, 75000, 10, 75000, 0, true)
	fill.IsMock = false
	require.NoError(t, f.svc.Process(ctx, fill))

	issued, fetched := f.broker.calls()
	assert.Equal(t, 0, issued, "cached token was still valid")
	assert.Equal(t, 1, fetched)
	acct, ok := f.accounts.account("50123456-01")
	require.True(t, ok)
	assert.Equal(t, 12345678.0, acct.AccountBalance)

	// External balances never move inside the transaction.
	assert.Zero(t, f.orders.balance(9))
}

func TestOrderService_Process_BalanceSyncFailureDoesNotFailEvent(t *testing.T) {
	f := newOrderFixture(t)
	f.seedTarget(model.AccountTypePaper)

	token := "cached-token"
	expiry := time.Now().Add(2 * time.Hour)
	f.accounts.add(&model.Account{
		ID:             9,
		AccountNo:      "50123456-01",
		AccountType:    model.AccountTypePaper,
		AccessToken:    &token,
		TokenExpiredAt: &expiry,
	})
	f.broker.fetchErr = errors.New("kis down")

	fill := execMsg(10, 75000, 10, 75000, 0, true)
	fill.IsMock = false
	require.NoError(t, f.svc.Process(context.Background(), fill))

	// The fill itself still landed.
	require.Len(t, f.orders.execs("0000012345"), 1)
}

func TestOrderService_Process_BadTimestamp(t *testing.T) {
	f := newOrderFixture(t)
	f.seedTarget(model.AccountTypeMock)

	msg := orderMsg(model.OrderStatusOrdered)
	msg.Timestamp = "garbage"
	assert.Error(t, f.svc.Process(context.Background(), msg))
}
