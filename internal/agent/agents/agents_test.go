package agents

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

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

type fakeMemo struct {
	entries []knowledge.Entry
	err     error
}

func (f *fakeMemo) Latest(_ context.Context, _ string) (*knowledge.Entry, error) {
	if len(f.entries) == 0 {
		return nil, f.err
	}
	return &f.entries[0], f.err
}

func (f *fakeMemo) Recent(_ context.Context, _ string, limit int) ([]knowledge.Entry, error) {
	if f.err != nil {
		return nil, f.err
	}
	if limit > len(f.entries) {
		limit = len(f.entries)
	}
	return f.entries[:limit], nil
}

func (f *fakeMemo) Search(context.Context, string, string) ([]knowledge.Entry, error) {
	return nil, f.err
}

type fakePortfolio struct{ state portfolio.State }

func (f fakePortfolio) Read(context.Context, string) (portfolio.State, error) {
	return f.state.Clone(), nil
}

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newRec(kind agent.Kind) *agent.Recorder {
	return agent.NewRecorder(kind, func() time.Time { return time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC) })
}

func sampleState() portfolio.State {
	return portfolio.State{
		Market: "jp",
		Cash:   d("50000"),
		Positions: map[string]portfolio.Position{
			"7203": {Symbol: "7203", Quantity: 10, AveragePrice: d("2000")},
			"6758": {Symbol: "6758", Quantity: 5, AveragePrice: d("12000")},
			"9984": {Symbol: "9984", Quantity: 1, AveragePrice: d("100")},
			"8306": {Symbol: "8306", Quantity: 100, AveragePrice: d("1500")},
		},
		Watchlist: []portfolio.WatchItem{{Symbol: "4063"}},
	}
}

func TestMondayOfAndWeekdays(t *testing.T) {
	wed := time.Date(2024, 3, 6, 15, 0, 0, 0, time.UTC)
	assert.Equal(t, "2024-03-04", agent.MondayOf(wed).Format(agent.DateLayout))
	sat := time.Date(2024, 3, 9, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, "2024-03-11", agent.MondayOf(sat).Format(agent.DateLayout))

	days := Weekdays(time.Date(2024, 3, 7, 0, 0, 0, 0, time.UTC), 5)
	require.Len(t, days, 5)
	assert.Equal(t, time.Thursday, days[0].Weekday())
	assert.Equal(t, "2024-03-13", days[4].Format(agent.DateLayout))
}

func TestPlannerBuildsWeeklyGoal(t *testing.T) {
	calc, err := capital.NewCalculator(nil, 0, 0)
	require.NoError(t, err)
	memo := &fakeMemo{entries: []knowledge.Entry{{Title: "Post-mortem 2024-03-01"}, {Title: "7203 autos outlook"}}}
	p := NewPlanner(fakePortfolio{state: sampleState()}, calc, memo)

	out, err := p.Run(context.Background(), agent.PlannerInput{Market: "jp", WeekStart: "2024-03-04"}, newRec(agent.KindPlanner))
	require.NoError(t, err)
	goal := out.(agent.PlannerOutput).Goal

	assert.Equal(t, plannerHeadline, goal.Headline)
	require.Len(t, goal.DailyGoals, 5)
	assert.Equal(t, "Monday", goal.DailyGoals[0].Day)
	assert.Equal(t, "2024-03-08", goal.DailyGoals[4].Date)
	assert.Equal(t, "Friday: refresh research pipeline and validate alignment with weekly goal.", goal.DailyGoals[4].Text)
	// 成本：8306=150000, 6758=60000, 7203=20000, 9984=100
	assert.Equal(t, []string{"8306", "6758", "7203"}, goal.DailyGoals[0].PrioritySymbols)
	require.Len(t, goal.Details, 3)
	assert.True(t, strings.HasPrefix(goal.Details[0], "Maintain cash buffer above 15% (currently 18%)"))
	assert.Equal(t, "Monitor key holdings: 8306, 6758, 7203.", goal.Details[1])
	assert.Equal(t, "Incorporate insights from KB: Post-mortem 2024-03-01, 7203 autos outlook.", goal.Details[2])
}

func TestPlannerRejectsBadWeekStart(t *testing.T) {
	p := NewPlanner(fakePortfolio{}, nil, &fakeMemo{})
	_, err := p.Run(context.Background(), agent.PlannerInput{Market: "jp", WeekStart: "next monday"}, newRec(agent.KindPlanner))
	var invalid *agent.InvalidPayloadError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, "week_start", invalid.Field)
}

func TestExplorerCollectsCandidatesInDiscoveryOrder(t *testing.T) {
	memo := &fakeMemo{entries: []knowledge.Entry{
		{Title: "Post-mortem", Symbol: ""},
		{Title: "4063 chemicals outlook", Symbol: "4063"},
		{Title: "8035 semis outlook", Symbol: "8035"},
	}}
	search := tools.SearchFunc(func(_ context.Context, s string) ([]string, error) {
		switch s {
		case "7203":
			return []string{"Toyota news"}, nil
		case "6758":
			return nil, errors.New("rate limited")
		}
		return nil, nil
	})
	e := NewExplorer(memo, search)
	state := sampleState()
	rec := newRec(agent.KindExplorer)

	out, err := e.Run(context.Background(), agent.ExplorerInput{
		Market:    "jp",
		Portfolio: state,
		Goal:      agent.DailyGoal{Text: "Monday", PrioritySymbols: []string{" aapl", "8035"}},
	}, rec)
	require.NoError(t, err)
	assert.Equal(t, []string{"AAPL", "8035", "4063", "7203"}, out.(agent.ExplorerOutput).Candidates)

	var failed int
	for _, r := range rec.Records() {
		if r.Failed() {
			failed++
			assert.Equal(t, "6758", r.Metadata["symbol"])
		}
	}
	assert.Equal(t, 1, failed)
}

func TestHeuristicScore(t *testing.T) {
	assert.Equal(t, 0.5, HeuristicScore(nil, nil))
	assert.Equal(t, 0.7, HeuristicScore([]string{"Analyst UPGRADE"}, nil))
	assert.Equal(t, 0.8, HeuristicScore([]string{"upgrade"}, []string{"mostly positive"}))
	assert.Equal(t, 0.2, HeuristicScore([]string{"downgrade"}, []string{"negative"}))
	assert.Equal(t, 0.5, HeuristicScore([]string{"upgrade", "downgrade"}, nil))
}

func TestResearcherWithStubTools(t *testing.T) {
	r := NewResearcher(tools.StubSearch{}, tools.StubSocial{}, nil)
	out, err := r.Run(context.Background(), agent.ResearcherInput{Market: "jp", Symbol: "7203"}, newRec(agent.KindResearcher))
	require.NoError(t, err)
	score := out.(agent.ResearcherOutput).Score
	assert.Equal(t, "7203", score.Symbol)
	assert.Equal(t, 0.5, score.Score)
	assert.Equal(t, "Score derived from qualitative signals; base score 0.50.", score.Rationale)
}

func TestResearcherToleratesToolFailure(t *testing.T) {
	failing := tools.SearchFunc(func(context.Context, string) ([]string, error) { return nil, errors.New("offline") })
	rec := newRec(agent.KindResearcher)
	out, err := NewResearcher(failing, tools.StubSocial{}, nil).Run(context.Background(), agent.ResearcherInput{Market: "us", Symbol: "AAPL"}, rec)
	require.NoError(t, err)
	assert.Equal(t, 0.5, out.(agent.ResearcherOutput).Score.Score)
	assert.True(t, rec.Records()[0].Failed())
}

type stubModel struct{ reply string }

func (s stubModel) ID() string    { return "stub" }
func (s stubModel) Enabled() bool { return true }
func (s stubModel) Call(context.Context, provider.ChatPayload) (string, error) {
	return s.reply, nil
}

func TestResearcherBlendsModelScore(t *testing.T) {
	scorer := NewModelScorer(stubModel{reply: `{"score": 0.9, "rationale": "strong guidance"}`})
	search := tools.SearchFunc(func(context.Context, string) ([]string, error) { return []string{"upgrade"}, nil })
	out, err := NewResearcher(search, tools.StubSocial{}, scorer).Run(context.Background(), agent.ResearcherInput{Market: "us", Symbol: "AAPL"}, newRec(agent.KindResearcher))
	require.NoError(t, err)
	score := out.(agent.ResearcherOutput).Score
	assert.InDelta(t, 0.8, score.Score, 1e-9)
	assert.Contains(t, score.Rationale, "strong guidance")

	_, _, err = NewModelScorer(stubModel{reply: `{"rationale":"x"}`}).Score(context.Background(), "AAPL", nil, nil)
	assert.Error(t, err)
}

func TestDeciderBuysSellsAndWatches(t *testing.T) {
	prices := capital.PriceFunc(func(_ context.Context, s string) (decimal.Decimal, error) {
		switch s {
		case "AAPL":
			return d("190"), nil
		case "MSFT":
			return d("400"), nil
		case "7203":
			return decimal.Zero, capital.ErrPriceUnavailable
		}
		return d("50"), nil
	})
	dec := NewDecider(&fakeMemo{}, prices)
	state := portfolio.State{
		Market: "us",
		Cash:   d("10000"),
		Positions: map[string]portfolio.Position{
			"7203": {Symbol: "7203", Quantity: 9, AveragePrice: d("100")},
		},
	}
	in := agent.DeciderInput{
		Market:    "us",
		Portfolio: state,
		Capital:   capital.Snapshot{InvestableCash: d("8000"), TotalEquity: d("10900")},
		Scores: []agent.ResearchScore{
			{Symbol: "7203", Score: 0.3},
			{Symbol: "AAPL", Score: 0.7, Rationale: "upgrade"},
			{Symbol: "NVDA", Score: 0.55},
			{Symbol: "MSFT", Score: 0.8},
			{Symbol: "XOM", Score: 0.35},
		},
	}
	out, err := dec.Run(context.Background(), in, newRec(agent.KindDecider))
	require.NoError(t, err)
	got := out.(agent.DeciderOutput).Decisions
	require.Len(t, got, 4)

	assert.Equal(t, portfolio.ActionBuy, got[0].Action)
	assert.Equal(t, "MSFT", got[0].Symbol)
	assert.Equal(t, int64(10), got[0].Quantity) // 4000 / 400
	assert.Equal(t, "AAPL", got[1].Symbol)
	assert.Equal(t, int64(21), got[1].Quantity) // floor(4000 / 190)
	assert.Equal(t, "upgrade", got[1].Reason)

	assert.Equal(t, portfolio.ActionSell, got[2].Action)
	assert.Equal(t, int64(4), got[2].Quantity)
	assert.True(t, got[2].Price.Equal(d("100")), "falls back to average price")

	assert.Equal(t, portfolio.ActionWatchAdd, got[3].Action)
	assert.Equal(t, "NVDA", got[3].Symbol)
}

func TestDeciderEmptyScores(t *testing.T) {
	out, err := NewDecider(&fakeMemo{}, nil).Run(context.Background(), agent.DeciderInput{Market: "jp"}, newRec(agent.KindDecider))
	require.NoError(t, err)
	assert.Empty(t, out.(agent.DeciderOutput).Decisions)
}

func TestCheckerSummarisesDay(t *testing.T) {
	now := time.Now()
	activity := []agent.Record{
		{Agent: "pipeline", Action: "buy", Status: agent.StatusOK, Timestamp: now},
		{Agent: "pipeline", Action: "sell", Status: agent.StatusOK, Timestamp: now},
		{Agent: "pipeline", Action: "buy", Status: agent.StatusFailed, Timestamp: now},
		{Agent: agent.KindResearcher, Action: "internet-search", Status: agent.StatusOK, Timestamp: now},
	}
	out, err := NewChecker().Run(context.Background(), agent.CheckerInput{
		Market:    "jp",
		Date:      "2024-03-04",
		Activity:  activity,
		Goal:      agent.WeeklyGoal{Headline: "Stay nimble"},
		Portfolio: portfolio.State{Cash: d("500")},
		Capital:   capital.Snapshot{TotalEquity: d("10000")},
	}, newRec(agent.KindChecker))
	require.NoError(t, err)
	res := out.(agent.CheckerOutput)

	assert.Equal(t, 2, res.Summary.Trades)
	assert.Equal(t, 1, res.Summary.Failures)
	assert.Equal(t, "Post-mortem 2024-03-04", res.Entry.Title)
	assert.Equal(t, []string{
		"Executed 2 trade-related activities during the session.",
		"Current cash position: 500.00.",
		"Cash buffer below 10%; consider trimming positions.",
		"1 activities failed; review the activity log.",
	}, res.Summary.Insights)
	assert.True(t, strings.HasSuffix(res.Entry.Content, "Weekly focus: Stay nimble"))
}
