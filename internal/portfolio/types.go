package portfolio

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// Action 是交易决策的动作类型。
type Action string

const (
	ActionBuy         Action = "buy"
	ActionSell        Action = "sell"
	ActionHold        Action = "hold"
	ActionWatchAdd    Action = "watch-add"
	ActionWatchRemove Action = "watch-remove"
)

func (a Action) Valid() bool {
	switch a {
	case ActionBuy, ActionSell, ActionHold, ActionWatchAdd, ActionWatchRemove:
		return true
	}
	return false
}

// IsTrade 表示该动作会改变现金与持仓。
func (a Action) IsTrade() bool { return a == ActionBuy || a == ActionSell }

// Position 的 CostBasis 是精确的持仓成本；AveragePrice 由它派生并保留 6 位小数。
type Position struct {
	Symbol       string          `json:"symbol"`
	Quantity     int64           `json:"quantity"`
	AveragePrice decimal.Decimal `json:"average_price"`
	CostBasis    decimal.Decimal `json:"cost_basis"`
}

// Cost 返回持仓成本；没有记录 CostBasis 的旧数据按平均价估算。
func (p Position) Cost() decimal.Decimal {
	if !p.CostBasis.IsZero() {
		return p.CostBasis
	}
	return p.AveragePrice.Mul(decimal.NewFromInt(p.Quantity))
}

type WatchItem struct {
	Symbol    string `json:"symbol"`
	Rationale string `json:"rationale"`
}

// State 是某个市场下组合的快照，Read 返回的值与存储互不共享。
type State struct {
	Market    string              `json:"market"`
	Cash      decimal.Decimal     `json:"cash"`
	Positions map[string]Position `json:"positions"`
	Watchlist []WatchItem         `json:"watchlist"`
}

func (s State) Clone() State {
	out := State{Market: s.Market, Cash: s.Cash}
	out.Positions = make(map[string]Position, len(s.Positions))
	for k, v := range s.Positions {
		out.Positions[k] = v
	}
	out.Watchlist = append([]WatchItem(nil), s.Watchlist...)
	return out
}

func (s State) Holding(symbol string) (Position, bool) {
	p, ok := s.Positions[NormalizeSymbol(symbol)]
	return p, ok
}

func (s State) Watching(symbol string) bool {
	symbol = NormalizeSymbol(symbol)
	for _, w := range s.Watchlist {
		if w.Symbol == symbol {
			return true
		}
	}
	return false
}

// SortedPositions 按代码排序返回持仓。
func (s State) SortedPositions() []Position {
	out := make([]Position, 0, len(s.Positions))
	for _, p := range s.Positions {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// CostBasisEquity = cash + Σ 持仓成本。
func (s State) CostBasisEquity() decimal.Decimal {
	total := s.Cash
	for _, p := range s.Positions {
		total = total.Add(p.Cost())
	}
	return total
}

// Decision 由 decider 产生，只被 ApplyTrade 消费一次。
type Decision struct {
	Action   Action          `json:"action"`
	Symbol   string          `json:"symbol"`
	Quantity int64           `json:"quantity,omitempty"`
	Price    decimal.Decimal `json:"price"`
	Reason   string          `json:"reason,omitempty"`
}

// TradeResult 描述一次决策落地后的结果，写入活动日志。
type TradeResult struct {
	Decision    Decision        `json:"decision"`
	Fee         decimal.Decimal `json:"fee"`
	CashBefore  decimal.Decimal `json:"cash_before"`
	CashAfter   decimal.Decimal `json:"cash_after"`
	Position    *Position       `json:"position,omitempty"`
	RealizedPnL decimal.Decimal `json:"realized_pnl"`
}

func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}
