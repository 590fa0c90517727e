package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/yourorg/trading-engine/internal/client"
	"github.com/yourorg/trading-engine/internal/model"
	"github.com/yourorg/trading-engine/internal/repository"
)

// fakeStrategyStore keeps daily strategies in memory and applies merges
// with the same column semantics as the SQL repository.
type fakeStrategyStore struct {
	mu         sync.Mutex
	strategies map[string]*model.DailyStrategy
	targets    map[string]*model.TradeTarget
	merges     []model.PlanMerge
	missGets   int
	createErr  error
	nextID     int64
	nextRowID  int64
}

func newFakeStrategyStore() *fakeStrategyStore {
	return &fakeStrategyStore{
		strategies: make(map[string]*model.DailyStrategy),
		targets:    make(map[string]*model.TradeTarget),
	}
}

func strategyKey(userStrategyID int64, day time.Time) string {
	return fmt.Sprintf("%d:%s", userStrategyID, day.Format("2006-01-02"))
}

func targetKey(userStrategyID int64, day time.Time, stockCode string) string {
	return fmt.Sprintf("%d:%s:%s", userStrategyID, day.Format("2006-01-02"), stockCode)
}

func copyStrategy(ds *model.DailyStrategy) *model.DailyStrategy {
	cp := *ds
	cp.Stocks = append([]model.DailyStrategyStock(nil), ds.Stocks...)
	return &cp
}

func (f *fakeStrategyStore) GetDailyStrategyForDay(_ context.Context, userStrategyID int64, day time.Time) (*model.DailyStrategy, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.missGets > 0 {
		f.missGets--
		return nil, repository.ErrNotFound
	}
	ds, ok := f.strategies[strategyKey(userStrategyID, day)]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return copyStrategy(ds), nil
}

func (f *fakeStrategyStore) CreateDailyStrategy(_ context.Context, ds *model.DailyStrategy) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		err := f.createErr
		f.createErr = nil
		return err
	}
	key := strategyKey(ds.UserStrategyID, ds.TradingDate)
	if _, ok := f.strategies[key]; ok {
		return repository.ErrDuplicateKey
	}
	f.nextID++
	ds.ID = f.nextID
	for i := range ds.Stocks {
		f.nextRowID++
		ds.Stocks[i].ID = f.nextRowID
		ds.Stocks[i].DailyStrategyID = ds.ID
	}
	f.strategies[key] = copyStrategy(ds)
	return nil
}

func (f *fakeStrategyStore) ApplyStockMerge(_ context.Context, dailyStrategyID int64, merge model.PlanMerge) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.merges = append(f.merges, merge)

	var ds *model.DailyStrategy
	for _, cand := range f.strategies {
		if cand.ID == dailyStrategyID {
			ds = cand
			break
		}
	}
	if ds == nil {
		return fmt.Errorf("no strategy %d", dailyStrategyID)
	}

	byID := make(map[int64]*model.DailyStrategyStock, len(ds.Stocks))
	for i := range ds.Stocks {
		byID[ds.Stocks[i].ID] = &ds.Stocks[i]
	}
	for _, s := range merge.UpdateTargets {
		cur, ok := byID[s.ID]
		if !ok {
			return fmt.Errorf("no stock row %d", s.ID)
		}
		cur.TargetPrice = s.TargetPrice
		cur.TargetQuantity = s.TargetQuantity
		cur.TargetSellPrice = s.TargetSellPrice
		cur.StopLossPrice = s.StopLossPrice
		cur.TakeProfitTarget = s.TakeProfitTarget
	}
	for _, s := range merge.Overwrite {
		cur, ok := byID[s.ID]
		if !ok {
			return fmt.Errorf("no stock row %d", s.ID)
		}
		cur.StockName = s.StockName
		cur.Exchange = s.Exchange
		cur.StockOpen = s.StockOpen
		cur.TargetPrice = s.TargetPrice
		cur.TargetQuantity = s.TargetQuantity
		cur.TargetSellPrice = s.TargetSellPrice
		cur.StopLossPrice = s.StopLossPrice
		cur.GapRate = s.GapRate
		cur.TakeProfitTarget = s.TakeProfitTarget
		cur.ProbUp = s.ProbUp
		cur.Signal = s.Signal
		cur.ProfitRate = nil
	}
	for _, s := range merge.Insert {
		f.nextRowID++
		s.ID = f.nextRowID
		s.DailyStrategyID = dailyStrategyID
		ds.Stocks = append(ds.Stocks, s)
	}
	if len(merge.DeleteIDs) > 0 {
		doomed := make(map[int64]bool, len(merge.DeleteIDs))
		for _, id := range merge.DeleteIDs {
			doomed[id] = true
		}
		kept := ds.Stocks[:0]
		for _, s := range ds.Stocks {
			if !doomed[s.ID] {
				kept = append(kept, s)
			}
		}
		ds.Stocks = kept
	}
	return nil
}

func (f *fakeStrategyStore) GetTradeTarget(_ context.Context, userStrategyID int64, day time.Time, stockCode string) (*model.TradeTarget, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.targets[targetKey(userStrategyID, day, stockCode)]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

// strategyFor returns a snapshot of the stored strategy for assertions.
func (f *fakeStrategyStore) strategyFor(userStrategyID int64, day time.Time) (model.DailyStrategy, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ds, ok := f.strategies[strategyKey(userStrategyID, day)]
	if !ok {
		return model.DailyStrategy{}, false
	}
	return *copyStrategy(ds), true
}

type stockSide struct {
	price    float64
	quantity int64
}

// fakeOrderStore backs order reconciliation tests. Transactions apply
// writes immediately under the store mutex; the per-order lock in the
// service keeps attempts for one order from interleaving.
type fakeOrderStore struct {
	mu         sync.Mutex
	orders     map[string]*model.Order
	executions map[int64][]model.OrderExecution
	buys       map[int64]stockSide
	sells      map[int64]stockSide
	balances   map[int64]float64
	recomputes map[int64]int
	createErrs []error
	nextID     int64
	nextExecID int64
}

func newFakeOrderStore() *fakeOrderStore {
	return &fakeOrderStore{
		orders:     make(map[string]*model.Order),
		executions: make(map[int64][]model.OrderExecution),
		buys:       make(map[int64]stockSide),
		sells:      make(map[int64]stockSide),
		balances:   make(map[int64]float64),
		recomputes: make(map[int64]int),
	}
}

func (f *fakeOrderStore) Begin(context.Context) (repository.OrderTx, error) {
	return &fakeOrderTx{store: f}, nil
}

func (f *fakeOrderStore) order(orderNo string) (model.Order, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[orderNo]
	if !ok {
		return model.Order{}, false
	}
	return *o, true
}

func (f *fakeOrderStore) execs(orderNo string) []model.OrderExecution {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[orderNo]
	if !ok {
		return nil
	}
	rows := append([]model.OrderExecution(nil), f.executions[o.ID]...)
	sort.Slice(rows, func(i, j int) bool { return rows[i].ExecutionSequence < rows[j].ExecutionSequence })
	return rows
}

func (f *fakeOrderStore) balance(accountID int64) float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.balances[accountID]
}

func (f *fakeOrderStore) recomputed(dailyStrategyID int64) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.recomputes[dailyStrategyID]
}

type fakeOrderTx struct {
	store *fakeOrderStore
}

func (t *fakeOrderTx) GetOrderForUpdate(_ context.Context, orderNo string) (*model.Order, error) {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	o, ok := t.store.orders[orderNo]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (t *fakeOrderTx) CreateOrder(_ context.Context, o *model.Order) error {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	if len(t.store.createErrs) > 0 {
		err := t.store.createErrs[0]
		t.store.createErrs = t.store.createErrs[1:]
		if err != nil {
			// A duplicate-key loss means another writer's row exists
			// by the time the error surfaces.
			if err == repository.ErrDuplicateKey {
				t.storeOrderLocked(o)
			}
			return err
		}
	}
	if _, ok := t.store.orders[o.OrderNo]; ok {
		return repository.ErrDuplicateKey
	}
	t.storeOrderLocked(o)
	return nil
}

func (t *fakeOrderTx) storeOrderLocked(o *model.Order) {
	t.store.nextID++
	o.ID = t.store.nextID
	cp := *o
	t.store.orders[o.OrderNo] = &cp
}

func (t *fakeOrderTx) UpdateOrderCumulative(_ context.Context, o *model.Order) error {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	cur, ok := t.store.orders[o.OrderNo]
	if !ok {
		return fmt.Errorf("no order %s", o.OrderNo)
	}
	cur.Status = o.Status
	cur.TotalExecutedQuantity = o.TotalExecutedQuantity
	cur.TotalExecutedPrice = o.TotalExecutedPrice
	cur.RemainingQuantity = o.RemainingQuantity
	cur.IsFullyExecuted = o.IsFullyExecuted
	return nil
}

func (t *fakeOrderTx) UpdateOrderPlacement(_ context.Context, o *model.Order) error {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	cur, ok := t.store.orders[o.OrderNo]
	if !ok {
		return fmt.Errorf("no order %s", o.OrderNo)
	}
	cur.OrderType = o.OrderType
	cur.OrderQuantity = o.OrderQuantity
	cur.OrderPrice = o.OrderPrice
	cur.OrderDvsn = o.OrderDvsn
	cur.Status = o.Status
	cur.RemainingQuantity = o.RemainingQuantity
	cur.OrderedAt = o.OrderedAt
	return nil
}

func (t *fakeOrderTx) LatestExecution(_ context.Context, orderID int64) (*model.OrderExecution, error) {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	rows := t.store.executions[orderID]
	if len(rows) == 0 {
		return nil, repository.ErrNotFound
	}
	cp := rows[len(rows)-1]
	return &cp, nil
}

func (t *fakeOrderTx) CountExecutions(_ context.Context, orderID int64) (int, error) {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	return len(t.store.executions[orderID]), nil
}

func (t *fakeOrderTx) InsertExecution(_ context.Context, e *model.OrderExecution) error {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	for _, cur := range t.store.executions[e.OrderID] {
		if cur.ExecutionSequence == e.ExecutionSequence {
			return fmt.Errorf("execution %d/%d: %w", e.OrderID, e.ExecutionSequence, repository.ErrDuplicateKey)
		}
	}
	t.store.nextExecID++
	e.ID = t.store.nextExecID
	t.store.executions[e.OrderID] = append(t.store.executions[e.OrderID], *e)
	return nil
}

func (t *fakeOrderTx) SetStockBuy(_ context.Context, stockID int64, price float64, quantity int64) error {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	t.store.buys[stockID] = stockSide{price: price, quantity: quantity}
	return nil
}

func (t *fakeOrderTx) SetStockSell(_ context.Context, stockID int64, price float64, quantity int64) error {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	t.store.sells[stockID] = stockSide{price: price, quantity: quantity}
	return nil
}

func (t *fakeOrderTx) RecomputeStrategyTotals(_ context.Context, dailyStrategyID int64) error {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	t.store.recomputes[dailyStrategyID]++
	return nil
}

func (t *fakeOrderTx) AdjustAccountBalance(_ context.Context, accountID int64, delta float64) error {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	t.store.balances[accountID] += delta
	return nil
}

func (t *fakeOrderTx) Commit() error   { return nil }
func (t *fakeOrderTx) Rollback() error { return nil }

// fakeAccountStore keeps accounts in memory keyed by account number.
type fakeAccountStore struct {
	mu             sync.Mutex
	accounts       map[string]*model.Account
	tokenUpdates   int
	balanceUpdates int
}

func newFakeAccountStore(accounts ...*model.Account) *fakeAccountStore {
	f := &fakeAccountStore{accounts: make(map[string]*model.Account)}
	for _, a := range accounts {
		cp := *a
		f.accounts[a.AccountNo] = &cp
	}
	return f
}

func (f *fakeAccountStore) add(a *model.Account) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *a
	f.accounts[a.AccountNo] = &cp
}

func (f *fakeAccountStore) GetByAccountNo(_ context.Context, accountNo string) (*model.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.accounts[accountNo]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (f *fakeAccountStore) UpdateToken(_ context.Context, accountID int64, token string, expiresAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.accounts {
		if a.ID == accountID {
			tok, exp := token, expiresAt
			a.AccessToken = &tok
			a.TokenExpiredAt = &exp
			f.tokenUpdates++
			return nil
		}
	}
	return fmt.Errorf("no account %d", accountID)
}

func (f *fakeAccountStore) UpdateBalance(_ context.Context, accountID int64, balance float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.accounts {
		if a.ID == accountID {
			a.AccountBalance = balance
			f.balanceUpdates++
			return nil
		}
	}
	return fmt.Errorf("no account %d", accountID)
}

func (f *fakeAccountStore) account(accountNo string) (model.Account, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.accounts[accountNo]
	if !ok {
		return model.Account{}, false
	}
	return *a, true
}

// fakeBroker stands in for the KIS REST client.
type fakeBroker struct {
	mu         sync.Mutex
	token      client.Token
	issueErr   error
	balance    float64
	fetchErr   error
	issueCalls int
	fetchCalls int
	lastToken  string
}

func (b *fakeBroker) IssueToken(context.Context, model.AccountType, string, string) (*client.Token, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.issueCalls++
	if b.issueErr != nil {
		return nil, b.issueErr
	}
	tok := b.token
	return &tok, nil
}

func (b *fakeBroker) FetchBalance(_ context.Context, _ model.AccountType, accessToken, _, _, _ string) (float64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.fetchCalls++
	b.lastToken = accessToken
	if b.fetchErr != nil {
		return 0, b.fetchErr
	}
	return b.balance, nil
}

func (b *fakeBroker) calls() (issued, fetched int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.issueCalls, b.fetchCalls
}

// fakeCandleStore records upserts and serves canned reads.
type fakeCandleStore struct {
	mu       sync.Mutex
	hours    []model.HourCandle
	minutes  []model.MinuteCandle
	hourErrs map[string]error
	canned   []model.HourCandle
}

func newFakeCandleStore() *fakeCandleStore {
	return &fakeCandleStore{hourErrs: make(map[string]error)}
}

func (f *fakeCandleStore) UpsertHourCandle(_ context.Context, c *model.HourCandle) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.hourErrs[c.StockCode]; err != nil {
		return err
	}
	f.hours = append(f.hours, *c)
	return nil
}

func (f *fakeCandleStore) UpsertMinuteCandles(_ context.Context, candles []model.MinuteCandle) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.minutes = append(f.minutes, candles...)
	return nil
}

func (f *fakeCandleStore) GetHourCandles(_ context.Context, stockCode string, _ time.Time) ([]model.HourCandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.HourCandle
	for _, c := range f.canned {
		if c.StockCode == stockCode {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeCandleStore) GetHourCandlesForStocks(_ context.Context, stockCodes []string, _ time.Time) ([]model.HourCandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	want := make(map[string]bool, len(stockCodes))
	for _, c := range stockCodes {
		want[c] = true
	}
	var out []model.HourCandle
	for _, c := range f.canned {
		if want[c.StockCode] {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeCandleStore) hourCodes() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	codes := make([]string, 0, len(f.hours))
	for _, c := range f.hours {
		codes = append(codes, c.StockCode)
	}
	sort.Strings(codes)
	return codes
}
