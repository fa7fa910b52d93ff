// Package capital 根据组合快照与报价计算总权益和可投资现金。
package capital

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"kabupilot/internal/logger"
	"kabupilot/internal/portfolio"

	"github.com/shopspring/decimal"
)

// ErrPriceUnavailable 表示报价源没有该代码的价格。
var ErrPriceUnavailable = errors.New("price unavailable")

// PriceLookup 返回单个代码的最新价格。
type PriceLookup interface {
	Price(ctx context.Context, symbol string) (decimal.Decimal, error)
}

// PriceFunc 让普通函数满足 PriceLookup。
type PriceFunc func(ctx context.Context, symbol string) (decimal.Decimal, error)

func (f PriceFunc) Price(ctx context.Context, symbol string) (decimal.Decimal, error) {
	return f(ctx, symbol)
}

// Snapshot 是某一时刻的资金视图。Approximate 为 true 时，
// ApproximatedSymbols 中的持仓按平均成本估值，而不是实时价格。
type Snapshot struct {
	TotalEquity         decimal.Decimal            `json:"total_equity"`
	InvestableCash      decimal.Decimal            `json:"investable_cash"`
	Cash                decimal.Decimal            `json:"cash"`
	PositionValues      map[string]decimal.Decimal `json:"position_values"`
	Approximate         bool                       `json:"approximate"`
	ApproximatedSymbols []string                   `json:"approximated_symbols,omitempty"`
	ReserveRatio        float64                    `json:"cash_reserve_ratio"`
	AsOf                time.Time                  `json:"as_of"`
}

// CashBufferRatio 返回现金占总权益的比例。
func (s Snapshot) CashBufferRatio() float64 {
	if !s.TotalEquity.IsPositive() {
		return 0
	}
	return s.Cash.Div(s.TotalEquity).InexactFloat64()
}

type Calculator struct {
	prices  PriceLookup
	timeout time.Duration
	now     func() time.Time

	mu           sync.RWMutex
	reserveRatio float64
}

func NewCalculator(prices PriceLookup, timeout time.Duration, reserveRatio float64) (*Calculator, error) {
	c := &Calculator{prices: prices, timeout: timeout, now: time.Now}
	if err := c.SetReserveRatio(reserveRatio); err != nil {
		return nil, err
	}
	return c, nil
}

// SetReserveRatio 支持配置热更新。
func (c *Calculator) SetReserveRatio(ratio float64) error {
	if ratio < 0 || ratio > 1 {
		return fmt.Errorf("cash_reserve_ratio must be in [0,1], got %v", ratio)
	}
	c.mu.Lock()
	c.reserveRatio = ratio
	c.mu.Unlock()
	return nil
}

func (c *Calculator) ReserveRatio() float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.reserveRatio
}

// Compute 对每个持仓查询价格；查询失败或超时的持仓回退到平均成本并标记为近似值。
func (c *Calculator) Compute(ctx context.Context, state portfolio.State) Snapshot {
	ratio := c.ReserveRatio()
	snap := Snapshot{
		Cash:           state.Cash,
		PositionValues: make(map[string]decimal.Decimal, len(state.Positions)),
		ReserveRatio:   ratio,
		AsOf:           c.now(),
	}
	total := state.Cash
	for _, pos := range state.SortedPositions() {
		price, err := c.lookup(ctx, pos.Symbol)
		if err != nil {
			logger.Debugf("[capital] %s 报价不可用，按平均成本估值: %v", pos.Symbol, err)
			price = pos.AveragePrice
			snap.Approximate = true
			snap.ApproximatedSymbols = append(snap.ApproximatedSymbols, pos.Symbol)
		}
		value := price.Mul(decimal.NewFromInt(pos.Quantity))
		snap.PositionValues[pos.Symbol] = value
		total = total.Add(value)
	}
	sort.Strings(snap.ApproximatedSymbols)
	snap.TotalEquity = total
	snap.InvestableCash = state.Cash.Mul(decimal.NewFromFloat(1 - ratio)).Round(2)
	if snap.InvestableCash.IsNegative() {
		snap.InvestableCash = decimal.Zero
	}
	return snap
}

func (c *Calculator) lookup(ctx context.Context, symbol string) (decimal.Decimal, error) {
	if c.prices == nil {
		return decimal.Zero, ErrPriceUnavailable
	}
	callCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	type result struct {
		price decimal.Decimal
		err   error
	}
	ch := make(chan result, 1)
	go func() {
		p, err := c.prices.Price(callCtx, symbol)
		ch <- result{p, err}
	}()
	select {
	case <-callCtx.Done():
		return decimal.Zero, callCtx.Err()
	case r := <-ch:
		if r.err != nil {
			return decimal.Zero, r.err
		}
		if !r.price.IsPositive() {
			return decimal.Zero, ErrPriceUnavailable
		}
		return r.price, nil
	}
}
