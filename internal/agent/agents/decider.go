package agents

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"kabupilot/internal/agent"
	"kabupilot/internal/capital"
	"kabupilot/internal/gateway/provider"
	"kabupilot/internal/knowledge"
	"kabupilot/internal/pkg/text"
	"kabupilot/internal/portfolio"

	"github.com/shopspring/decimal"
)

const (
	buyThreshold   = 0.6
	sellThreshold  = 0.4
	watchThreshold = 0.5
	deciderKBLimit = 2
)

const deciderSystemPrompt = `You are the trading decision maker for a small equity portfolio.
Use the research scores, holdings and investable cash to propose today's trades.
Only buy researched tickers and only sell what is held.
Reply with JSON only: {"summary": "<one sentence>", "trades": [{"kind": "buy|sell", "symbol": "...", "shares": <integer>, "reason": "..."}]}.`

// Decider 把研究分数转成交易决策。
type Decider struct {
	memo   knowledge.Reader
	prices capital.PriceLookup
	model  provider.ModelProvider
}

func NewDecider(memo knowledge.Reader, prices capital.PriceLookup) *Decider {
	return &Decider{memo: memo, prices: prices}
}

// WithModel 让模型提出买卖清单；失败或没有可执行交易时退回启发式规则。
func (d *Decider) WithModel(m provider.ModelProvider) *Decider {
	d.model = m
	return d
}

func (d *Decider) Kind() agent.Kind { return agent.KindDecider }

func (d *Decider) Run(ctx context.Context, in agent.Payload, rec *agent.Recorder) (agent.Payload, error) {
	req, ok := in.(agent.DeciderInput)
	if !ok {
		return nil, unexpectedInput(agent.KindDecider, in)
	}
	rec.Log("knowledge-base", "Reviewing knowledge for context", nil)
	entries, err := d.memo.Recent(ctx, req.Market, deciderKBLimit)
	if err != nil {
		rec.Fail("knowledge-base", err.Error(), nil)
	}
	for _, e := range entries {
		rec.Log("kb-entry", e.Title, nil)
	}
	rec.Log("capital", "Fetched capital info", map[string]any{
		"total_equity":    req.Capital.TotalEquity.String(),
		"investable_cash": req.Capital.InvestableCash.String(),
		"approximate":     req.Capital.Approximate,
	})

	scores := append([]agent.ResearchScore(nil), req.Scores...)
	sort.SliceStable(scores, func(i, j int) bool { return scores[i].Score > scores[j].Score })

	var buys, sells, watches []agent.ResearchScore
	for _, s := range scores {
		_, held := req.Portfolio.Holding(s.Symbol)
		switch {
		case s.Score >= buyThreshold:
			buys = append(buys, s)
		case s.Score <= sellThreshold && held:
			sells = append(sells, s)
		case s.Score >= watchThreshold && !held && !req.Portfolio.Watching(s.Symbol):
			watches = append(watches, s)
		}
	}

	var decisions []portfolio.Decision
	if d.model != nil {
		planned, summary, err := d.plan(ctx, req, scores, rec)
		switch {
		case err != nil:
			modelFallback(rec, d.model, err)
		case len(planned) == 0:
			rec.Fail(modelAction, "Model proposed no executable trades", map[string]any{"model": d.model.ID(), "fallback": "heuristic"})
		default:
			rec.Log(modelAction, summary, map[string]any{"model": d.model.ID(), "trades": len(planned)})
			decisions = planned
		}
	}
	if decisions == nil {
		decisions = d.heuristicTrades(ctx, req, buys, sells, rec)
	}
	for _, s := range watches {
		decisions = append(decisions, portfolio.Decision{
			Action: portfolio.ActionWatchAdd, Symbol: s.Symbol, Price: decimal.Zero,
			Reason: fmt.Sprintf("Research score %.2f", s.Score),
		})
		rec.Log("decision", "Watch "+s.Symbol, nil)
	}

	rec.Log("summary", fmt.Sprintf("Generated %d trade decisions.", len(decisions)), nil)
	return agent.DeciderOutput{Decisions: decisions}, nil
}

// heuristicTrades 把投资现金均分给买入信号，并对低分持仓减半。
func (d *Decider) heuristicTrades(ctx context.Context, req agent.DeciderInput, buys, sells []agent.ResearchScore, rec *agent.Recorder) []portfolio.Decision {
	var decisions []portfolio.Decision
	if len(buys) > 0 {
		allocation := req.Capital.InvestableCash.Div(decimal.NewFromInt(int64(len(buys))))
		for _, s := range buys {
			price, err := d.price(ctx, s.Symbol)
			if err != nil {
				rec.Fail("price", err.Error(), map[string]any{"symbol": s.Symbol})
				continue
			}
			qty := allocation.Div(price).Floor().IntPart()
			if qty <= 0 {
				rec.Log("skip", fmt.Sprintf("Allocation too small for %s", s.Symbol), map[string]any{"price": price.String()})
				continue
			}
			decisions = append(decisions, portfolio.Decision{
				Action: portfolio.ActionBuy, Symbol: s.Symbol, Quantity: qty, Price: price, Reason: s.Rationale,
			})
			rec.Log("decision", "Buy "+s.Symbol, map[string]any{"quantity": qty, "price": price.String()})
		}
	}

	for _, s := range sells {
		pos, _ := req.Portfolio.Holding(s.Symbol)
		qty := pos.Quantity / 2
		if qty < 1 {
			qty = 1
		}
		price, err := d.price(ctx, s.Symbol)
		if err != nil {
			rec.Log("price", fmt.Sprintf("Using average price for %s: %v", s.Symbol, err), nil)
			price = pos.AveragePrice
		}
		decisions = append(decisions, portfolio.Decision{
			Action: portfolio.ActionSell, Symbol: pos.Symbol, Quantity: qty, Price: price, Reason: s.Rationale,
		})
		rec.Log("decision", "Sell "+pos.Symbol, map[string]any{"quantity": qty, "price": price.String()})
	}

	return decisions
}

// plan 请模型给出交易清单。买入只限已研究的代码且总额不超过投资现金，卖出不超过持仓数量。
func (d *Decider) plan(ctx context.Context, req agent.DeciderInput, scores []agent.ResearchScore, rec *agent.Recorder) ([]portfolio.Decision, string, error) {
	researched := make(map[string]agent.ResearchScore, len(scores))
	var b strings.Builder
	fmt.Fprintf(&b, "Market: %s\nInvestable cash: %s\nTotal equity: %s\n",
		req.Market, req.Capital.InvestableCash.String(), req.Capital.TotalEquity.String())
	writeHoldings(&b, req.Portfolio)
	b.WriteString("Research scores:\n")
	for _, s := range scores {
		researched[s.Symbol] = s
		fmt.Fprintf(&b, "- %s %.2f %s\n", s.Symbol, s.Score, s.Rationale)
	}
	obj, err := callModel(ctx, d.model, "decider", deciderSystemPrompt, b.String(), 600)
	if err != nil {
		return nil, "", err
	}
	if !obj.Get("trades").IsArray() {
		return nil, "", fmt.Errorf("model reply missing trades")
	}

	budget := req.Capital.InvestableCash
	sold := make(map[string]int64)
	var out []portfolio.Decision
	for _, t := range obj.Get("trades").Array() {
		symbol := portfolio.NormalizeSymbol(t.Get("symbol").String())
		qty := t.Get("shares").Int()
		reason := text.Truncate(strings.TrimSpace(t.Get("reason").String()), maxRationaleRunes)
		if !tickerPattern.MatchString(symbol) || qty <= 0 {
			rec.Log("skip", "Ignored malformed model trade", map[string]any{"trade": t.Raw})
			continue
		}
		switch portfolio.Action(strings.ToLower(t.Get("kind").String())) {
		case portfolio.ActionBuy:
			score, ok := researched[symbol]
			if !ok {
				rec.Log("skip", "Model buy outside researched symbols: "+symbol, nil)
				continue
			}
			price, err := d.price(ctx, symbol)
			if err != nil {
				rec.Fail("price", err.Error(), map[string]any{"symbol": symbol})
				continue
			}
			if affordable := budget.Div(price).Floor().IntPart(); qty > affordable {
				qty = affordable
			}
			if qty <= 0 {
				rec.Log("skip", fmt.Sprintf("Insufficient cash for %s", symbol), map[string]any{"price": price.String()})
				continue
			}
			budget = budget.Sub(price.Mul(decimal.NewFromInt(qty)))
			if reason == "" {
				reason = score.Rationale
			}
			out = append(out, portfolio.Decision{Action: portfolio.ActionBuy, Symbol: symbol, Quantity: qty, Price: price, Reason: reason})
			rec.Log("decision", "Buy "+symbol, map[string]any{"quantity": qty, "price": price.String()})
		case portfolio.ActionSell:
			pos, held := req.Portfolio.Holding(symbol)
			if !held {
				rec.Log("skip", "Model sell without holding: "+symbol, nil)
				continue
			}
			if left := pos.Quantity - sold[symbol]; qty > left {
				qty = left
			}
			if qty <= 0 {
				continue
			}
			sold[symbol] += qty
			price, err := d.price(ctx, symbol)
			if err != nil {
				rec.Log("price", fmt.Sprintf("Using average price for %s: %v", symbol, err), nil)
				price = pos.AveragePrice
			}
			out = append(out, portfolio.Decision{Action: portfolio.ActionSell, Symbol: pos.Symbol, Quantity: qty, Price: price, Reason: reason})
			rec.Log("decision", "Sell "+pos.Symbol, map[string]any{"quantity": qty, "price": price.String()})
		default:
			rec.Log("skip", "Ignored model trade kind "+t.Get("kind").String(), map[string]any{"symbol": symbol})
		}
	}
	summary := strings.TrimSpace(obj.Get("summary").String())
	if summary == "" {
		summary = fmt.Sprintf("Model proposed %d trades.", len(out))
	}
	return out, summary, nil
}

func (d *Decider) price(ctx context.Context, symbol string) (decimal.Decimal, error) {
	if d.prices == nil {
		return decimal.Zero, capital.ErrPriceUnavailable
	}
	px, err := d.prices.Price(ctx, symbol)
	if err != nil {
		return decimal.Zero, err
	}
	if !px.IsPositive() {
		return decimal.Zero, fmt.Errorf("%s: %w", symbol, capital.ErrPriceUnavailable)
	}
	return px, nil
}
