package agents

import (
	"context"
	"fmt"
	"strings"

	"kabupilot/internal/agent"
	"kabupilot/internal/gateway/provider"
	"kabupilot/internal/knowledge"
	"kabupilot/internal/portfolio"
	"kabupilot/internal/tools"
)

const (
	explorerMemoLimit  = 5
	explorerModelPicks = 5
)

const explorerSystemPrompt = `You scout new stock ideas for a small portfolio.
Suggest tickers worth researching today that fit the daily goal. Use exchange tickers only.
Reply with JSON only: {"symbols": ["..."], "rationale": "<one sentence>"}.`

// Explorer 汇总候选代码：日目标重点、知识库近期条目、关注列表，以及有新闻的持仓。
type Explorer struct {
	memo   knowledge.Reader
	search tools.Searcher
	model  provider.ModelProvider
}

func NewExplorer(memo knowledge.Reader, search tools.Searcher) *Explorer {
	return &Explorer{memo: memo, search: search}
}

// WithModel 在启发式候选之后追加模型推荐的代码，最多 5 个。
func (e *Explorer) WithModel(m provider.ModelProvider) *Explorer {
	e.model = m
	return e
}

func (e *Explorer) Kind() agent.Kind { return agent.KindExplorer }

func (e *Explorer) Run(ctx context.Context, in agent.Payload, rec *agent.Recorder) (agent.Payload, error) {
	req, ok := in.(agent.ExplorerInput)
	if !ok {
		return nil, unexpectedInput(agent.KindExplorer, in)
	}
	var (
		out  []string
		seen = make(map[string]struct{})
	)
	add := func(symbol string) bool {
		s := portfolio.NormalizeSymbol(symbol)
		if s == "" {
			return false
		}
		if _, dup := seen[s]; dup {
			return false
		}
		seen[s] = struct{}{}
		out = append(out, s)
		return true
	}

	if req.Goal.Text != "" {
		rec.Log("daily-goal", req.Goal.Text, map[string]any{"priority_symbols": req.Goal.PrioritySymbols})
	}
	for _, s := range req.Goal.PrioritySymbols {
		add(s)
	}

	entries, err := e.memo.Recent(ctx, req.Market, explorerMemoLimit)
	if err != nil {
		rec.Fail("knowledge-base", err.Error(), nil)
	}
	for _, entry := range entries {
		rec.Log("knowledge-base", "Referenced KB entry: "+entry.Title, nil)
		add(entry.Symbol)
	}

	rec.Log("portfolio-scan", "Scanning existing watchlist", map[string]any{"size": len(req.Portfolio.Watchlist)})
	for _, w := range req.Portfolio.Watchlist {
		add(w.Symbol)
	}

	rec.Log("internet-search", "Running lightweight symbol discovery", nil)
	for _, pos := range req.Portfolio.SortedPositions() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		hits, err := e.search.Query(ctx, pos.Symbol)
		if err != nil {
			rec.Fail("search-result", err.Error(), map[string]any{"symbol": pos.Symbol})
			continue
		}
		for _, h := range hits {
			rec.Log("search-result", h, map[string]any{"symbol": pos.Symbol})
		}
		if len(hits) > 0 {
			add(pos.Symbol)
		}
	}

	if e.model != nil {
		picks, rationale, err := e.suggest(ctx, req, out)
		if err != nil {
			modelFallback(rec, e.model, err)
		} else {
			added := 0
			for _, s := range picks {
				if add(s) {
					added++
				}
			}
			rec.Log(modelAction, rationale, map[string]any{"model": e.model.ID(), "suggested": picks, "added": added})
		}
	}

	rec.Log("candidates", "Identified candidate symbols for deeper research", map[string]any{"count": len(out)})
	return agent.ExplorerOutput{Candidates: out}, nil
}

func (e *Explorer) suggest(ctx context.Context, req agent.ExplorerInput, current []string) ([]string, string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Market: %s\nDaily goal: %s\n", req.Market, req.Goal.Text)
	writeHoldings(&b, req.Portfolio)
	watch := make([]string, 0, len(req.Portfolio.Watchlist))
	for _, w := range req.Portfolio.Watchlist {
		watch = append(watch, w.Symbol)
	}
	fmt.Fprintf(&b, "Watchlist: %s\nAlready queued: %s\n", strings.Join(watch, ", "), strings.Join(current, ", "))
	obj, err := callModel(ctx, e.model, "explorer", explorerSystemPrompt, b.String(), 400)
	if err != nil {
		return nil, "", err
	}
	picks := tickerList(obj.Get("symbols"), explorerModelPicks)
	if len(picks) == 0 {
		return nil, "", fmt.Errorf("model reply has no usable symbols")
	}
	rationale := strings.TrimSpace(obj.Get("rationale").String())
	if rationale == "" {
		rationale = "Model suggested symbols"
	}
	return picks, rationale, nil
}
