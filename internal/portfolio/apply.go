package portfolio

import (
	"github.com/shopspring/decimal"
)

const avgPricePrecision = 6

// FeePolicy 计算一笔买卖的手续费。
type FeePolicy interface {
	Fee(d Decision) decimal.Decimal
}

// RateFee 按成交额比例收费，Rate 为 0 时不收费。
type RateFee struct {
	Rate decimal.Decimal
}

func (f RateFee) Fee(d Decision) decimal.Decimal {
	if f.Rate.IsZero() || !d.Action.IsTrade() {
		return decimal.Zero
	}
	return d.Price.Mul(decimal.NewFromInt(d.Quantity)).Mul(f.Rate).Round(2)
}

func validateDecision(d Decision) error {
	if !d.Action.Valid() {
		return &InvalidDecisionError{Decision: d, Reason: "unknown action"}
	}
	if d.Symbol == "" {
		return &InvalidDecisionError{Decision: d, Reason: "symbol is empty"}
	}
	if d.Action.IsTrade() {
		if d.Quantity <= 0 {
			return &InvalidDecisionError{Decision: d, Reason: "quantity must be positive"}
		}
		if !d.Price.IsPositive() {
			return &InvalidDecisionError{Decision: d, Reason: "price must be positive"}
		}
	}
	return nil
}

// Apply 在 state 的副本上执行决策，返回新状态。出错时原状态不受影响。
func Apply(state State, d Decision, fees FeePolicy) (State, TradeResult, error) {
	d.Symbol = NormalizeSymbol(d.Symbol)
	if err := validateDecision(d); err != nil {
		return state, TradeResult{}, err
	}
	if fees == nil {
		fees = RateFee{}
	}
	next := state.Clone()
	res := TradeResult{Decision: d, CashBefore: state.Cash, CashAfter: state.Cash}
	qty := decimal.NewFromInt(d.Quantity)

	switch d.Action {
	case ActionBuy:
		fee := fees.Fee(d)
		cost := d.Price.Mul(qty).Add(fee)
		if next.Cash.LessThan(cost) {
			return state, TradeResult{}, &InsufficientFundsError{Symbol: d.Symbol, Required: cost, Available: next.Cash}
		}
		next.Cash = next.Cash.Sub(cost)
		pos, held := next.Positions[d.Symbol]
		if !held {
			pos = Position{Symbol: d.Symbol, AveragePrice: d.Price, Quantity: d.Quantity, CostBasis: d.Price.Mul(qty)}
		} else {
			total := pos.Quantity + d.Quantity
			pos.CostBasis = pos.Cost().Add(d.Price.Mul(qty))
			pos.AveragePrice = pos.CostBasis.DivRound(decimal.NewFromInt(total), avgPricePrecision)
			pos.Quantity = total
		}
		next.Positions[d.Symbol] = pos
		res.Fee = fee
		res.Position = &pos
	case ActionSell:
		pos, held := next.Positions[d.Symbol]
		if !held || pos.Quantity < d.Quantity {
			return state, TradeResult{}, &InsufficientPositionError{Symbol: d.Symbol, Requested: d.Quantity, Held: pos.Quantity}
		}
		fee := fees.Fee(d)
		next.Cash = next.Cash.Add(d.Price.Mul(qty)).Sub(fee)
		if next.Cash.IsNegative() {
			return state, TradeResult{}, &InsufficientFundsError{Symbol: d.Symbol, Required: fee, Available: state.Cash}
		}
		// 卖出释放的成本 = 原成本 - 剩余成本，保证成本口径权益的变化恰好等于已实现盈亏
		remaining := pos.Quantity - d.Quantity
		kept := decimal.Zero
		if remaining > 0 {
			kept = pos.Cost().Mul(decimal.NewFromInt(remaining)).
				DivRound(decimal.NewFromInt(pos.Quantity), avgPricePrecision)
		}
		released := pos.Cost().Sub(kept)
		res.RealizedPnL = d.Price.Mul(qty).Sub(released).Sub(fee)
		pos.CostBasis = kept
		pos.Quantity = remaining
		if pos.Quantity == 0 {
			delete(next.Positions, d.Symbol)
		} else {
			next.Positions[d.Symbol] = pos
			res.Position = &pos
		}
		res.Fee = fee
	case ActionWatchAdd:
		if !next.Watching(d.Symbol) {
			next.Watchlist = append(next.Watchlist, WatchItem{Symbol: d.Symbol, Rationale: d.Reason})
		}
	case ActionWatchRemove:
		kept := next.Watchlist[:0]
		for _, w := range next.Watchlist {
			if w.Symbol != d.Symbol {
				kept = append(kept, w)
			}
		}
		next.Watchlist = kept
	case ActionHold:
	}
	res.CashAfter = next.Cash
	return next, res, nil
}
