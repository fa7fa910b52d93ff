package agents

import (
	"context"
	"errors"
	"testing"

	"kabupilot/internal/agent"
	"kabupilot/internal/capital"
	"kabupilot/internal/gateway/provider"
	"kabupilot/internal/knowledge"
	"kabupilot/internal/portfolio"
	"kabupilot/internal/tools"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedModel struct {
	reply string
	err   error
	calls []provider.ChatPayload
}

func (m *scriptedModel) ID() string    { return "scripted" }
func (m *scriptedModel) Enabled() bool { return true }
func (m *scriptedModel) Call(_ context.Context, p provider.ChatPayload) (string, error) {
	m.calls = append(m.calls, p)
	return m.reply, m.err
}

func modelRecords(rec *agent.Recorder) []agent.Record {
	var out []agent.Record
	for _, r := range rec.Records() {
		if r.Action == modelAction {
			out = append(out, r)
		}
	}
	return out
}

func TestPlannerUsesModelObjective(t *testing.T) {
	calc, err := capital.NewCalculator(nil, 0, 0)
	require.NoError(t, err)
	model := &scriptedModel{reply: "```json\n" + `{"objective":"Trim autos and add semis","focus_areas":["semis",""],"risk_checks":["cash under 15%"]}` + "\n```"}
	p := NewPlanner(fakePortfolio{state: sampleState()}, calc, &fakeMemo{}).WithModel(model)
	rec := newRec(agent.KindPlanner)

	out, err := p.Run(context.Background(), agent.PlannerInput{Market: "jp", WeekStart: "2024-03-04"}, rec)
	require.NoError(t, err)
	goal := out.(agent.PlannerOutput).Goal

	assert.Equal(t, "Trim autos and add semis", goal.Headline)
	require.Len(t, goal.Details, 4)
	assert.Equal(t, "Focus: semis", goal.Details[2])
	assert.Equal(t, "Risk check: cash under 15%", goal.Details[3])
	assert.Len(t, goal.DailyGoals, 5)

	require.Len(t, model.calls, 1)
	assert.True(t, model.calls[0].ExpectJSON)
	assert.Equal(t, "planner", model.calls[0].Purpose)
	assert.Contains(t, model.calls[0].User, "8306 qty 100")
	records := modelRecords(rec)
	require.Len(t, records, 1)
	assert.False(t, records[0].Failed())
}

func TestPlannerFallsBackWhenModelFails(t *testing.T) {
	calc, err := capital.NewCalculator(nil, 0, 0)
	require.NoError(t, err)
	model := &scriptedModel{err: errors.New("status=500: overloaded")}
	rec := newRec(agent.KindPlanner)

	out, err := NewPlanner(fakePortfolio{state: sampleState()}, calc, &fakeMemo{}).WithModel(model).
		Run(context.Background(), agent.PlannerInput{Market: "jp", WeekStart: "2024-03-04"}, rec)
	require.NoError(t, err)
	goal := out.(agent.PlannerOutput).Goal
	assert.Equal(t, plannerHeadline, goal.Headline)
	assert.Len(t, goal.Details, 2)

	records := modelRecords(rec)
	require.Len(t, records, 1)
	assert.True(t, records[0].Failed())
	assert.Equal(t, "heuristic", records[0].Metadata["fallback"])

	model.err, model.reply = nil, `{"focus_areas":["semis"]}`
	out, err = NewPlanner(fakePortfolio{state: sampleState()}, calc, &fakeMemo{}).WithModel(model).
		Run(context.Background(), agent.PlannerInput{Market: "jp", WeekStart: "2024-03-04"}, newRec(agent.KindPlanner))
	require.NoError(t, err)
	assert.Equal(t, plannerHeadline, out.(agent.PlannerOutput).Goal.Headline, "reply without objective keeps heuristic goal")
}

func TestExplorerAppendsModelPicks(t *testing.T) {
	model := &scriptedModel{reply: `{"symbols":["msft","aapl","Apple Inc.","nvda"],"rationale":"AI capex cycle"}`}
	e := NewExplorer(&fakeMemo{}, tools.StubSearch{}).WithModel(model)
	rec := newRec(agent.KindExplorer)

	out, err := e.Run(context.Background(), agent.ExplorerInput{
		Market:    "us",
		Portfolio: portfolio.State{Market: "us", Cash: d("1000")},
		Goal:      agent.DailyGoal{Text: "Find AI names", PrioritySymbols: []string{"AAPL"}},
	}, rec)
	require.NoError(t, err)
	assert.Equal(t, []string{"AAPL", "MSFT", "NVDA"}, out.(agent.ExplorerOutput).Candidates)

	records := modelRecords(rec)
	require.Len(t, records, 1)
	assert.Equal(t, "AI capex cycle", records[0].Details)
	assert.Equal(t, 2, records[0].Metadata["added"])
	assert.Contains(t, model.calls[0].User, "Already queued: AAPL")
}

func TestExplorerKeepsHeuristicCandidatesWithoutUsableSymbols(t *testing.T) {
	model := &scriptedModel{reply: `{"symbols":["Apple Inc."]}`}
	rec := newRec(agent.KindExplorer)
	out, err := NewExplorer(&fakeMemo{}, tools.StubSearch{}).WithModel(model).Run(context.Background(), agent.ExplorerInput{
		Market:    "us",
		Portfolio: portfolio.State{Market: "us", Cash: d("1000"), Watchlist: []portfolio.WatchItem{{Symbol: "IBM"}}},
		Goal:      agent.DailyGoal{Text: "Scan"},
	}, rec)
	require.NoError(t, err)
	assert.Equal(t, []string{"IBM"}, out.(agent.ExplorerOutput).Candidates)
	records := modelRecords(rec)
	require.Len(t, records, 1)
	assert.True(t, records[0].Failed())
}

func modelDeciderInput() agent.DeciderInput {
	return agent.DeciderInput{
		Market: "us",
		Portfolio: portfolio.State{
			Market: "us",
			Cash:   d("2000"),
			Positions: map[string]portfolio.Position{
				"7203": {Symbol: "7203", Quantity: 9, AveragePrice: d("100")},
			},
		},
		Capital: capital.Snapshot{InvestableCash: d("1000"), TotalEquity: d("2900")},
		Scores: []agent.ResearchScore{
			{Symbol: "AAPL", Score: 0.7, Rationale: "upgrade"},
			{Symbol: "7203", Score: 0.3},
		},
	}
}

func modelDeciderPrices() capital.PriceLookup {
	return capital.PriceFunc(func(_ context.Context, s string) (decimal.Decimal, error) {
		if s == "AAPL" {
			return d("100"), nil
		}
		return decimal.Zero, capital.ErrPriceUnavailable
	})
}

func TestDeciderClampsModelTrades(t *testing.T) {
	model := &scriptedModel{reply: `{
		"summary": "Rotate into AAPL",
		"trades": [
			{"kind": "buy", "symbol": "aapl", "shares": 50, "reason": "momentum"},
			{"kind": "buy", "symbol": "TSLA", "shares": 1},
			{"kind": "sell", "symbol": "7203", "shares": 20},
			{"kind": "hold", "symbol": "7203", "shares": 1},
			{"kind": "sell", "symbol": "7203", "shares": 5}
		]
	}`}
	rec := newRec(agent.KindDecider)
	out, err := NewDecider(&fakeMemo{}, modelDeciderPrices()).WithModel(model).Run(context.Background(), modelDeciderInput(), rec)
	require.NoError(t, err)
	got := out.(agent.DeciderOutput).Decisions
	require.Len(t, got, 2)

	assert.Equal(t, portfolio.ActionBuy, got[0].Action)
	assert.Equal(t, "AAPL", got[0].Symbol)
	assert.Equal(t, int64(10), got[0].Quantity) // 1000 / 100
	assert.Equal(t, "momentum", got[0].Reason)

	assert.Equal(t, portfolio.ActionSell, got[1].Action)
	assert.Equal(t, int64(9), got[1].Quantity)
	assert.True(t, got[1].Price.Equal(d("100")))

	records := modelRecords(rec)
	require.Len(t, records, 1)
	assert.Equal(t, "Rotate into AAPL", records[0].Details)
	assert.Equal(t, "decider", model.calls[0].Purpose)
}

func TestDeciderFallsBackWhenModelProposesNothing(t *testing.T) {
	for name, model := range map[string]*scriptedModel{
		"empty":   {reply: `{"summary":"stay put","trades":[]}`},
		"garbled": {reply: "I would buy AAPL"},
		"error":   {err: errors.New("timeout")},
	} {
		t.Run(name, func(t *testing.T) {
			rec := newRec(agent.KindDecider)
			out, err := NewDecider(&fakeMemo{}, modelDeciderPrices()).WithModel(model).Run(context.Background(), modelDeciderInput(), rec)
			require.NoError(t, err)
			got := out.(agent.DeciderOutput).Decisions
			require.Len(t, got, 2)
			assert.Equal(t, int64(10), got[0].Quantity)
			assert.Equal(t, "upgrade", got[0].Reason)
			assert.Equal(t, int64(4), got[1].Quantity)

			records := modelRecords(rec)
			require.Len(t, records, 1)
			assert.True(t, records[0].Failed())
		})
	}
}

func checkerInput() agent.CheckerInput {
	return agent.CheckerInput{
		Market:    "jp",
		Date:      "2024-03-04",
		Goal:      agent.WeeklyGoal{Headline: "Stay nimble"},
		Portfolio: portfolio.State{Cash: d("500")},
		Capital:   capital.Snapshot{TotalEquity: d("10000")},
		Activity:  []agent.Record{{Agent: "pipeline", Action: "buy", Status: agent.StatusOK, Details: "Buy 7203"}},
	}
}

func TestCheckerWritesModelMemoUpdate(t *testing.T) {
	model := &scriptedModel{reply: `{"summary":"Quiet day","insights":["Watch semis"],"memo_update":"## Notes\nSemis look stretched."}`}
	rec := newRec(agent.KindChecker)
	out, err := NewChecker().WithModel(model).Run(context.Background(), checkerInput(), rec)
	require.NoError(t, err)
	res := out.(agent.CheckerOutput)

	assert.Equal(t, "## Notes\nSemis look stretched.\nWeekly focus: Stay nimble", res.Entry.Content)
	assert.Equal(t, "Post-mortem 2024-03-04", res.Entry.Title)
	require.Len(t, res.Summary.Insights, 5)
	assert.Equal(t, []string{"Quiet day", "Watch semis"}, res.Summary.Insights[3:])
	assert.Contains(t, model.calls[0].User, "pipeline buy: Buy 7203")
}

func TestCheckerKeepsHeuristicEntryOnBadReply(t *testing.T) {
	rec := newRec(agent.KindChecker)
	out, err := NewChecker().WithModel(&scriptedModel{reply: `{"insights":["x"]}`}).Run(context.Background(), checkerInput(), rec)
	require.NoError(t, err)
	res := out.(agent.CheckerOutput)
	assert.Equal(t, knowledge.Entry{
		Market:  "jp",
		Title:   "Post-mortem 2024-03-04",
		Content: "Executed 1 trade-related activities during the session.\nCurrent cash position: 500.00.\nCash buffer below 10%; consider trimming positions.\nWeekly focus: Stay nimble",
		Source:  "checker",
	}, res.Entry)
	assert.Len(t, res.Summary.Insights, 3)
	records := modelRecords(rec)
	require.Len(t, records, 1)
	assert.True(t, records[0].Failed())
}
