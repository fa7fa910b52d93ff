package agents

import (
	"context"
	"fmt"
	"strings"

	"kabupilot/internal/agent"
	"kabupilot/internal/gateway/provider"
	"kabupilot/internal/knowledge"
	"kabupilot/internal/pkg/text"
	"kabupilot/internal/portfolio"

	"github.com/shopspring/decimal"
)

var minCashBuffer = decimal.NewFromFloat(0.1)

const (
	checkerModelInsights = 3
	maxMemoUpdateRunes   = 2000
)

const checkerSystemPrompt = `You review one trading day of a small equity portfolio.
Summarise what happened and write a short note for the team knowledge base.
Reply with JSON only: {"summary": "<one sentence>", "insights": ["..."], "memo_update": "<markdown note>"}.`

// Checker 复盘一个交易日并产出知识库条目，条目由编排器写入。
type Checker struct {
	model provider.ModelProvider
}

func NewChecker() *Checker { return &Checker{} }

// WithModel 让模型补充复盘结论并撰写知识库条目；失败时保留启发式复盘。
func (c *Checker) WithModel(m provider.ModelProvider) *Checker {
	c.model = m
	return c
}

func (c *Checker) Kind() agent.Kind { return agent.KindChecker }

func (c *Checker) Run(ctx context.Context, in agent.Payload, rec *agent.Recorder) (agent.Payload, error) {
	req, ok := in.(agent.CheckerInput)
	if !ok {
		return nil, unexpectedInput(agent.KindChecker, in)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rec.Log("portfolio", "Snapshot for evaluation", map[string]any{
		"cash":      req.Portfolio.Cash.String(),
		"positions": len(req.Portfolio.Positions),
	})
	rec.Log("capital", "Capital check", map[string]any{"total_equity": req.Capital.TotalEquity.String()})

	trades, failures := 0, 0
	for _, r := range req.Activity {
		if r.Failed() {
			failures++
			continue
		}
		if a := portfolio.Action(r.Action); a.IsTrade() {
			trades++
		}
	}

	insights := []string{
		fmt.Sprintf("Executed %d trade-related activities during the session.", trades),
		fmt.Sprintf("Current cash position: %s.", req.Portfolio.Cash.StringFixed(2)),
	}
	if req.Portfolio.Cash.LessThan(req.Capital.TotalEquity.Mul(minCashBuffer)) {
		insights = append(insights, "Cash buffer below 10%; consider trimming positions.")
	} else {
		insights = append(insights, "Cash buffer healthy relative to total equity.")
	}
	if failures > 0 {
		insights = append(insights, fmt.Sprintf("%d activities failed; review the activity log.", failures))
	}

	content := append(append([]string(nil), insights...), "Weekly focus: "+req.Goal.Headline)
	entry := knowledge.Entry{
		Market:  req.Market,
		Title:   "Post-mortem " + req.Date,
		Content: strings.Join(content, "\n"),
		Source:  "checker",
	}
	if c.model != nil {
		if err := c.review(ctx, req, trades, failures, &insights, &entry); err != nil {
			modelFallback(rec, c.model, err)
		} else {
			rec.Log(modelAction, "Review drafted by model", map[string]any{"model": c.model.ID()})
		}
	}
	rec.Log("knowledge-base", "Recorded evaluation entry", map[string]any{"title": entry.Title})

	return agent.CheckerOutput{
		Summary: agent.DailySummary{
			Date:     req.Date,
			Market:   req.Market,
			Trades:   trades,
			Failures: failures,
			Insights: insights,
			Focus:    req.Goal.Headline,
		},
		Entry: entry,
	}, nil
}

func (c *Checker) review(ctx context.Context, req agent.CheckerInput, trades, failures int, insights *[]string, entry *knowledge.Entry) error {
	var b strings.Builder
	fmt.Fprintf(&b, "Market: %s\nDate: %s\nWeekly focus: %s\n", req.Market, req.Date, req.Goal.Headline)
	fmt.Fprintf(&b, "Cash: %s\nTotal equity: %s\nTrades: %d\nFailed activities: %d\n",
		req.Portfolio.Cash.String(), req.Capital.TotalEquity.String(), trades, failures)
	writeHoldings(&b, req.Portfolio)
	b.WriteString("Activity:\n")
	for _, r := range req.Activity {
		fmt.Fprintf(&b, "- [%s] %s %s: %s\n", r.Status, r.Agent, r.Action, text.Truncate(r.Details, maxRationaleRunes))
	}
	obj, err := callModel(ctx, c.model, "checker", checkerSystemPrompt, b.String(), 800)
	if err != nil {
		return err
	}
	summary := strings.TrimSpace(obj.Get("summary").String())
	memo := strings.TrimSpace(obj.Get("memo_update").String())
	if summary == "" && memo == "" {
		return fmt.Errorf("model reply missing summary and memo_update")
	}
	if summary != "" {
		*insights = append(*insights, text.Truncate(summary, maxRationaleRunes))
	}
	*insights = append(*insights, stringList(obj.Get("insights"), checkerModelInsights)...)
	if memo != "" {
		entry.Content = text.Truncate(memo, maxMemoUpdateRunes) + "\nWeekly focus: " + req.Goal.Headline
	}
	return nil
}
