package agent

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type funcAgent struct {
	kind Kind
	run  func(ctx context.Context, in Payload, rec *Recorder) (Payload, error)
}

func (f funcAgent) Kind() Kind { return f.kind }
func (f funcAgent) Run(ctx context.Context, in Payload, rec *Recorder) (Payload, error) {
	return f.run(ctx, in, rec)
}

type mockAgent struct {
	mock.Mock
	kind Kind
}

func (m *mockAgent) Kind() Kind { return m.kind }
func (m *mockAgent) Run(ctx context.Context, in Payload, rec *Recorder) (Payload, error) {
	args := m.Called(ctx, in, rec)
	rec.Log("run", "mocked", nil)
	out, _ := args.Get(0).(Payload)
	return out, args.Error(1)
}

func researcher(score float64) funcAgent {
	return funcAgent{kind: KindResearcher, run: func(_ context.Context, in Payload, rec *Recorder) (Payload, error) {
		sym := in.(ResearcherInput).Symbol
		rec.Log("score", sym, map[string]any{"score": score})
		return ResearcherOutput{Score: ResearchScore{Symbol: sym, Score: score}}, nil
	}}
}

func TestInvokeValidatesInputVariant(t *testing.T) {
	m := &mockAgent{kind: KindResearcher}
	inv, err := NewInvoker([]Agent{m})
	require.NoError(t, err)

	_, err = inv.Invoke(context.Background(), KindResearcher, PlannerInput{Market: "jp", WeekStart: "2024-03-04"})
	var invalid *InvalidPayloadError
	require.True(t, errors.As(err, &invalid))
	assert.Equal(t, DirectionInput, invalid.Direction)
	assert.Equal(t, "$", invalid.Field)
	m.AssertNotCalled(t, "Run", mock.Anything, mock.Anything, mock.Anything)
}

func TestInvokeSchemaReportsField(t *testing.T) {
	inv, err := NewInvoker([]Agent{researcher(0.5)})
	require.NoError(t, err)

	_, err = inv.Invoke(context.Background(), KindResearcher, ResearcherInput{Market: "jp", Symbol: ""})
	var invalid *InvalidPayloadError
	require.True(t, errors.As(err, &invalid))
	assert.Equal(t, "/symbol", invalid.Field)

	_, err = inv.Invoke(context.Background(), KindResearcher, ResearcherInput{Market: "eu", Symbol: "A"})
	require.True(t, errors.As(err, &invalid))
	assert.Equal(t, "/market", invalid.Field)
}

func TestInvokeValidatesOutput(t *testing.T) {
	inv, err := NewInvoker([]Agent{researcher(1.5)})
	require.NoError(t, err)

	res, err := inv.Invoke(context.Background(), KindResearcher, ResearcherInput{Market: "us", Symbol: "AAPL"})
	var invalid *InvalidPayloadError
	require.True(t, errors.As(err, &invalid))
	assert.Equal(t, DirectionOutput, invalid.Direction)
	assert.Equal(t, "/score/score", invalid.Field)
	assert.Len(t, res.Activity, 1)
	assert.Nil(t, res.Output)
}

func TestInvokeResetsActivityScope(t *testing.T) {
	inv, err := NewInvoker([]Agent{researcher(0.7)})
	require.NoError(t, err)

	for _, sym := range []string{"AAPL", "MSFT"} {
		res, err := inv.Invoke(context.Background(), KindResearcher, ResearcherInput{Market: "us", Symbol: sym})
		require.NoError(t, err)
		require.Len(t, res.Activity, 1)
		assert.Equal(t, sym, res.Activity[0].Details)
		assert.Equal(t, KindResearcher, res.Activity[0].Agent)
		out := res.Output.(ResearcherOutput)
		assert.Equal(t, 0.7, out.Score.Score)
	}
}

func TestRecordTimestampsTakenAtCreation(t *testing.T) {
	base := time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)
	tick := 0
	clock := func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Minute)
	}
	a := funcAgent{kind: KindResearcher, run: func(_ context.Context, in Payload, rec *Recorder) (Payload, error) {
		rec.Log("search", "", nil)
		rec.Fail("social", "unavailable", nil)
		return ResearcherOutput{Score: ResearchScore{Symbol: "A", Score: 0.5}}, nil
	}}
	inv, err := NewInvoker([]Agent{a}, WithClock(clock))
	require.NoError(t, err)

	res, err := inv.Invoke(context.Background(), KindResearcher, ResearcherInput{Market: "us", Symbol: "A"})
	require.NoError(t, err)
	require.Len(t, res.Activity, 2)
	assert.Equal(t, base.Add(time.Minute), res.Activity[0].Timestamp)
	assert.Equal(t, base.Add(2*time.Minute), res.Activity[1].Timestamp)
	assert.True(t, res.Activity[1].Failed())
}

func TestInvokeTimeout(t *testing.T) {
	a := funcAgent{kind: KindResearcher, run: func(ctx context.Context, _ Payload, rec *Recorder) (Payload, error) {
		rec.Log("search", "started", nil)
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	inv, err := NewInvoker([]Agent{a}, WithTimeouts(func(Kind) time.Duration { return 20 * time.Millisecond }))
	require.NoError(t, err)

	res, err := inv.Invoke(context.Background(), KindResearcher, ResearcherInput{Market: "us", Symbol: "A"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrAgentTimeout))
	assert.Len(t, res.Activity, 1)
}

func TestInvokeAgentIgnoringContextStillTimesOut(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	a := funcAgent{kind: KindResearcher, run: func(context.Context, Payload, *Recorder) (Payload, error) {
		<-release
		return nil, nil
	}}
	inv, err := NewInvoker([]Agent{a}, WithTimeouts(func(Kind) time.Duration { return 20 * time.Millisecond }))
	require.NoError(t, err)

	_, err = inv.Invoke(context.Background(), KindResearcher, ResearcherInput{Market: "us", Symbol: "A"})
	assert.True(t, errors.Is(err, ErrAgentTimeout))
}

func TestInvokeUnknownAgentAndDuplicates(t *testing.T) {
	inv, err := NewInvoker(nil)
	require.NoError(t, err)
	_, err = inv.Invoke(context.Background(), KindChecker, CheckerInput{})
	assert.True(t, errors.Is(err, ErrUnknownAgent))

	_, err = NewInvoker([]Agent{researcher(0.1), researcher(0.2)})
	assert.Error(t, err)
}

func TestInvokeWithMockAgent(t *testing.T) {
	m := &mockAgent{kind: KindPlanner}
	goal := WeeklyGoal{
		Headline:   "Focus",
		WeekStart:  "2024-03-04",
		DailyGoals: []DailyGoal{{Day: "Monday", Date: "2024-03-04", Text: "scan"}},
	}
	m.On("Run", mock.Anything, PlannerInput{Market: "jp", WeekStart: "2024-03-04"}, mock.Anything).
		Return(PlannerOutput{Goal: goal}, nil).Once()
	inv, err := NewInvoker([]Agent{m})
	require.NoError(t, err)

	res, err := inv.Invoke(context.Background(), KindPlanner, PlannerInput{Market: "jp", WeekStart: "2024-03-04"})
	require.NoError(t, err)
	assert.Equal(t, goal, res.Output.(PlannerOutput).Goal)
	assert.Len(t, res.Activity, 1)
	m.AssertExpectations(t)
}

func TestValidateOutputShapes(t *testing.T) {
	inv, err := NewInvoker(nil)
	require.NoError(t, err)
	err = inv.Validate(KindDecider, DirectionOutput, DeciderOutput{})
	require.NoError(t, err)

	err = inv.Validate(KindPlanner, DirectionOutput, PlannerOutput{Goal: WeeklyGoal{Headline: "x", WeekStart: "2024-03-04"}})
	var invalid *InvalidPayloadError
	require.True(t, errors.As(err, &invalid))
	assert.Equal(t, "/goal/daily_goals", invalid.Field)
}

func TestValidateExplorerInputRequiresGoalText(t *testing.T) {
	inv, err := NewInvoker(nil)
	require.NoError(t, err)

	err = inv.Validate(KindExplorer, DirectionInput, ExplorerInput{Market: "jp"})
	var invalid *InvalidPayloadError
	require.True(t, errors.As(err, &invalid))
	assert.Equal(t, "/goal/text", invalid.Field)

	err = inv.Validate(KindExplorer, DirectionInput, ExplorerInput{Market: "jp", Goal: DailyGoal{Text: "Monday: scan"}})
	assert.NoError(t, err)
}
