package agents

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"kabupilot/internal/agent"
	"kabupilot/internal/capital"
	"kabupilot/internal/gateway/provider"
	"kabupilot/internal/knowledge"
	"kabupilot/internal/pkg/text"
	"kabupilot/internal/portfolio"
)

const (
	plannerHeadline   = "Improve portfolio resilience while sourcing new opportunities."
	plannerBufferGoal = 0.15
	plannerFocusSize  = 3
	plannerHighlights = 3
	tradingDays       = 5
	plannerModelItems = 3
)

const plannerSystemPrompt = `You are the weekly planner of a small equity portfolio.
Review the holdings, capital and recent notes, then set one objective for the week.
Reply with JSON only: {"objective": "<one sentence>", "focus_areas": ["..."], "risk_checks": ["..."]}.`

// Planner 根据当前持仓、资金与知识库生成周目标。
type Planner struct {
	portfolio PortfolioReader
	capital   CapitalSource
	memo      knowledge.Reader
	model     provider.ModelProvider
}

func NewPlanner(p PortfolioReader, c CapitalSource, memo knowledge.Reader) *Planner {
	return &Planner{portfolio: p, capital: c, memo: memo}
}

// WithModel 让模型起草周目标；调用或解析失败时保留启发式目标。
func (p *Planner) WithModel(m provider.ModelProvider) *Planner {
	p.model = m
	return p
}

func (p *Planner) Kind() agent.Kind { return agent.KindPlanner }

func (p *Planner) Run(ctx context.Context, in agent.Payload, rec *agent.Recorder) (agent.Payload, error) {
	req, ok := in.(agent.PlannerInput)
	if !ok {
		return nil, unexpectedInput(agent.KindPlanner, in)
	}
	weekStart, err := time.Parse(agent.DateLayout, req.WeekStart)
	if err != nil {
		return nil, &agent.InvalidPayloadError{Kind: agent.KindPlanner, Direction: agent.DirectionInput, Field: "week_start", Reason: err.Error()}
	}

	state, err := p.portfolio.Read(ctx, req.Market)
	if err != nil {
		return nil, fmt.Errorf("read portfolio: %w", err)
	}
	rec.Log("portfolio-snapshot", "Fetched current portfolio state", map[string]any{
		"cash":      state.Cash.String(),
		"positions": len(state.Positions),
	})
	snap := p.capital.Compute(ctx, state)
	rec.Log("capital", "Calculated available capital", map[string]any{
		"total_equity":    snap.TotalEquity.String(),
		"investable_cash": snap.InvestableCash.String(),
		"approximate":     snap.Approximate,
	})

	positions := state.SortedPositions()
	sort.SliceStable(positions, func(i, j int) bool {
		return positions[i].Cost().GreaterThan(positions[j].Cost())
	})
	focus := make([]string, 0, plannerFocusSize)
	for i := 0; i < len(positions) && i < plannerFocusSize; i++ {
		focus = append(focus, positions[i].Symbol)
	}

	var highlights []string
	entries, err := p.memo.Recent(ctx, req.Market, plannerHighlights)
	if err != nil {
		rec.Fail("knowledge-base", err.Error(), nil)
	}
	for _, e := range entries {
		highlights = append(highlights, e.Title)
	}

	details := []string{
		fmt.Sprintf("Maintain cash buffer above %.0f%% (currently %.0f%%).", plannerBufferGoal*100, snap.CashBufferRatio()*100),
	}
	if len(focus) > 0 {
		details = append(details, fmt.Sprintf("Monitor key holdings: %s.", strings.Join(focus, ", ")))
	}
	if len(highlights) > 0 {
		details = append(details, fmt.Sprintf("Incorporate insights from KB: %s.", strings.Join(highlights, ", ")))
	}

	goal := agent.WeeklyGoal{
		Headline:  plannerHeadline,
		Details:   details,
		WeekStart: req.WeekStart,
	}
	if p.model != nil {
		if err := p.draft(ctx, &goal, state, snap, highlights); err != nil {
			modelFallback(rec, p.model, err)
		} else {
			rec.Log(modelAction, "Weekly objective drafted by model", map[string]any{"model": p.model.ID()})
		}
	}
	for _, day := range Weekdays(weekStart, tradingDays) {
		goal.DailyGoals = append(goal.DailyGoals, agent.DailyGoal{
			Day:             day.Weekday().String(),
			Date:            day.Format(agent.DateLayout),
			Text:            fmt.Sprintf("%s: refresh research pipeline and validate alignment with weekly goal.", day.Weekday()),
			PrioritySymbols: append([]string(nil), focus...),
		})
	}
	rec.Log("weekly-goal", goal.Headline, map[string]any{"days": len(goal.DailyGoals), "focus": focus})
	return agent.PlannerOutput{Goal: goal}, nil
}

func (p *Planner) draft(ctx context.Context, goal *agent.WeeklyGoal, state portfolio.State, snap capital.Snapshot, highlights []string) error {
	var b strings.Builder
	fmt.Fprintf(&b, "Market: %s\nWeek starting: %s\n", state.Market, goal.WeekStart)
	fmt.Fprintf(&b, "Cash: %s\nTotal equity: %s\nInvestable cash: %s\n",
		state.Cash.String(), snap.TotalEquity.String(), snap.InvestableCash.String())
	writeHoldings(&b, state)
	if len(highlights) > 0 {
		fmt.Fprintf(&b, "Recent notes: %s\n", strings.Join(highlights, "; "))
	}
	obj, err := callModel(ctx, p.model, "planner", plannerSystemPrompt, b.String(), 500)
	if err != nil {
		return err
	}
	objective := strings.TrimSpace(obj.Get("objective").String())
	if objective == "" {
		return fmt.Errorf("model reply missing objective")
	}
	goal.Headline = text.Truncate(objective, maxRationaleRunes)
	for _, f := range stringList(obj.Get("focus_areas"), plannerModelItems) {
		goal.Details = append(goal.Details, "Focus: "+f)
	}
	for _, r := range stringList(obj.Get("risk_checks"), plannerModelItems) {
		goal.Details = append(goal.Details, "Risk check: "+r)
	}
	return nil
}
