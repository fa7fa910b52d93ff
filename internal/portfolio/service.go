package portfolio

import (
	"context"
	"fmt"
	"sync"
	"time"

	"kabupilot/internal/logger"
	"kabupilot/internal/store"
	"kabupilot/internal/store/model"

	"github.com/shopspring/decimal"
)

// Service 是组合状态的唯一写入者。所有变更都在一个事务内完成，
// 并由 mu 串行化，失败时整笔回滚。
type Service struct {
	store       store.Store
	fees        FeePolicy
	initialCash decimal.Decimal
	now         func() time.Time

	mu sync.Mutex
}

type Option func(*Service)

func WithFeeRate(rate float64) Option {
	return func(s *Service) { s.fees = RateFee{Rate: decimal.NewFromFloat(rate)} }
}

func WithInitialCash(cash float64) Option {
	return func(s *Service) { s.initialCash = decimal.NewFromFloat(cash) }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(st store.Store, opts ...Option) *Service {
	s := &Service{
		store:       st,
		fees:        RateFee{},
		initialCash: decimal.NewFromInt(100000),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Read 在单个事务内读取快照。
func (s *Service) Read(ctx context.Context, market string) (State, error) {
	uow, err := s.store.Begin(ctx)
	if err != nil {
		return State{}, fmt.Errorf("read portfolio: %w", err)
	}
	defer uow.Rollback()
	return loadState(ctx, uow, market)
}

// ApplyTrade 原子地执行一个决策。业务拒绝返回 *InsufficientFundsError、
// *InsufficientPositionError 或 *InvalidDecisionError，其余错误均为持久化故障。
func (s *Service) ApplyTrade(ctx context.Context, market string, d Decision) (TradeResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var res TradeResult
	err := store.InTx(ctx, s.store, func(uow store.UnitOfWork) error {
		before, err := loadState(ctx, uow, market)
		if err != nil {
			return err
		}
		after, r, err := Apply(before, d, s.fees)
		if err != nil {
			return err
		}
		if err := s.persist(ctx, uow, before, after, r.Decision); err != nil {
			return fmt.Errorf("persist trade %s %s: %w", r.Decision.Action, r.Decision.Symbol, err)
		}
		res = r
		return nil
	})
	if err != nil {
		return TradeResult{}, err
	}
	logger.Debugf("[portfolio] %s %s %s x%d @%s cash %s -> %s",
		market, d.Action, res.Decision.Symbol, d.Quantity, d.Price.String(), res.CashBefore.String(), res.CashAfter.String())
	return res, nil
}

func (s *Service) persist(ctx context.Context, uow store.UnitOfWork, before, after State, d Decision) error {
	now := s.now()
	switch d.Action {
	case ActionBuy, ActionSell:
		if err := uow.Portfolios().Save(ctx, &model.PortfolioModel{Market: after.Market, Cash: after.Cash, UpdatedAt: now}); err != nil {
			return err
		}
		pos, held := after.Positions[d.Symbol]
		if !held {
			return uow.Positions().Delete(ctx, after.Market, d.Symbol)
		}
		return uow.Positions().Upsert(ctx, &model.PositionModel{
			Market:       after.Market,
			Symbol:       pos.Symbol,
			Quantity:     pos.Quantity,
			AveragePrice: pos.AveragePrice,
			CostBasis:    pos.Cost(),
			UpdatedAt:    now,
		})
	case ActionWatchAdd:
		if before.Watching(d.Symbol) {
			return nil
		}
		return uow.Watchlist().Add(ctx, &model.WatchItemModel{Market: after.Market, Symbol: d.Symbol, Rationale: d.Reason, CreatedAt: now})
	case ActionWatchRemove:
		return uow.Watchlist().Remove(ctx, after.Market, d.Symbol)
	}
	return nil
}

// ReplaceWatchlist 用给定条目整体替换自选列表。
func (s *Service) ReplaceWatchlist(ctx context.Context, market string, items []WatchItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows := make([]model.WatchItemModel, 0, len(items))
	now := s.now()
	for _, it := range items {
		rows = append(rows, model.WatchItemModel{Symbol: NormalizeSymbol(it.Symbol), Rationale: it.Rationale, CreatedAt: now})
	}
	return store.InTx(ctx, s.store, func(uow store.UnitOfWork) error {
		return uow.Watchlist().Replace(ctx, market, rows)
	})
}

// EnsureMarket 为尚未初始化的市场写入初始资金；force 时同时清空持仓。
// 返回是否写入了新的组合。
func (s *Service) EnsureMarket(ctx context.Context, market string, force bool) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	created := false
	err := store.InTx(ctx, s.store, func(uow store.UnitOfWork) error {
		existing, err := uow.Portfolios().Get(ctx, market)
		if err != nil {
			return err
		}
		if existing != nil && !force {
			return nil
		}
		if force {
			if err := uow.Positions().DeleteAll(ctx, market); err != nil {
				return err
			}
		}
		created = true
		return uow.Portfolios().Save(ctx, &model.PortfolioModel{Market: market, Cash: s.initialCash, UpdatedAt: s.now()})
	})
	return created, err
}

func loadState(ctx context.Context, uow store.UnitOfWork, market string) (State, error) {
	st := State{Market: market, Cash: decimal.Zero, Positions: map[string]Position{}, Watchlist: []WatchItem{}}
	p, err := uow.Portfolios().Get(ctx, market)
	if err != nil {
		return State{}, err
	}
	if p != nil {
		st.Cash = p.Cash
	}
	positions, err := uow.Positions().List(ctx, market)
	if err != nil {
		return State{}, err
	}
	for _, row := range positions {
		st.Positions[row.Symbol] = Position{Symbol: row.Symbol, Quantity: row.Quantity, AveragePrice: row.AveragePrice, CostBasis: row.CostBasis}
	}
	items, err := uow.Watchlist().List(ctx, market)
	if err != nil {
		return State{}, err
	}
	for _, row := range items {
		st.Watchlist = append(st.Watchlist, WatchItem{Symbol: row.Symbol, Rationale: row.Rationale})
	}
	return st, nil
}
