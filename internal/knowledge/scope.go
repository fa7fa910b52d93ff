package knowledge

import (
	"context"
	"fmt"
	"strings"

	"kabupilot/internal/logger"
	"kabupilot/internal/portfolio"
	"kabupilot/internal/store"
)

const settingActiveMarket = "active_market"

// Scope 管理当前激活的市场。切换市场只改变作用域与（可选的）自选列表，
// 不触碰任何市场的知识历史。
type Scope struct {
	store     store.Store
	portfolio *portfolio.Service
	templates Templates
	fallback  string
}

func NewScope(st store.Store, svc *portfolio.Service, templates Templates, fallback string) *Scope {
	return &Scope{store: st, portfolio: svc, templates: templates, fallback: strings.ToLower(strings.TrimSpace(fallback))}
}

// MarketSwitch 是 SetMarket 的结果。
type MarketSwitch struct {
	Previous  string                `json:"previous"`
	Market    string                `json:"market"`
	Refreshed bool                  `json:"refreshed"`
	Watchlist []portfolio.WatchItem `json:"watchlist,omitempty"`
}

func (s *Scope) Templates() Templates { return s.templates }

// ActiveMarket 返回持久化的市场，未设置时返回默认市场。
func (s *Scope) ActiveMarket(ctx context.Context) (string, error) {
	uow, err := s.store.Begin(ctx)
	if err != nil {
		return "", err
	}
	defer uow.Rollback()
	v, ok, err := uow.Settings().Get(ctx, settingActiveMarket)
	if err != nil {
		return "", fmt.Errorf("read active market: %w", err)
	}
	if !ok || v == "" {
		return s.fallback, nil
	}
	return v, nil
}

func (s *Scope) SetMarket(ctx context.Context, market string, refreshWatchlist bool) (MarketSwitch, error) {
	market = strings.ToLower(strings.TrimSpace(market))
	if !s.templates.Supports(market) {
		return MarketSwitch{}, fmt.Errorf("%w: %q", ErrUnsupportedMarket, market)
	}
	prev, err := s.ActiveMarket(ctx)
	if err != nil {
		return MarketSwitch{}, err
	}
	err = store.InTx(ctx, s.store, func(uow store.UnitOfWork) error {
		return uow.Settings().Set(ctx, settingActiveMarket, market)
	})
	if err != nil {
		return MarketSwitch{}, fmt.Errorf("persist active market: %w", err)
	}
	if _, err := s.portfolio.EnsureMarket(ctx, market, false); err != nil {
		return MarketSwitch{}, fmt.Errorf("init portfolio for %s: %w", market, err)
	}
	out := MarketSwitch{Previous: prev, Market: market}
	if refreshWatchlist {
		items := s.templates.Watchlist(market)
		if err := s.portfolio.ReplaceWatchlist(ctx, market, items); err != nil {
			return MarketSwitch{}, fmt.Errorf("refresh watchlist for %s: %w", market, err)
		}
		out.Refreshed = true
		out.Watchlist = items
	}
	logger.Infof("[market] 切换市场 %s -> %s (refresh_watchlist=%v)", prev, market, refreshWatchlist)
	return out, nil
}
