package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"kabupilot/internal/agent"
	"kabupilot/internal/capital"
	"kabupilot/internal/knowledge"
	"kabupilot/internal/logger"
	"kabupilot/internal/portfolio"
	"kabupilot/internal/store"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Invoker 调用 agent，由 agent.Invoker 实现。
type Invoker interface {
	Invoke(ctx context.Context, kind agent.Kind, in agent.Payload) (agent.Result, error)
}

// Portfolio 是编排器使用的组合能力。
type Portfolio interface {
	Read(ctx context.Context, market string) (portfolio.State, error)
	ApplyTrade(ctx context.Context, market string, d portfolio.Decision) (portfolio.TradeResult, error)
}

type CapitalSource interface {
	Compute(ctx context.Context, state portfolio.State) capital.Snapshot
}

// MemoWriter 是编排器独占的知识库写入能力。
type MemoWriter interface {
	Append(ctx context.Context, market string, e knowledge.Entry) (knowledge.Entry, error)
}

type MarketSource interface {
	ActiveMarket(ctx context.Context) (string, error)
}

type Orchestrator struct {
	invoker     Invoker
	portfolio   Portfolio
	capital     CapitalSource
	memo        MemoWriter
	markets     MarketSource
	store       store.Store
	maxParallel int
	now         func() time.Time
	newID       func() string

	mu sync.Mutex
}

type Option func(*Orchestrator)

func WithMaxParallel(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.maxParallel = n
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

func WithRunIDs(fn func() string) Option {
	return func(o *Orchestrator) { o.newID = fn }
}

func New(inv Invoker, pf Portfolio, cs CapitalSource, memo MemoWriter, markets MarketSource, st store.Store, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		invoker:     inv,
		portfolio:   pf,
		capital:     cs,
		memo:        memo,
		markets:     markets,
		store:       st,
		maxParallel: 4,
		now:         time.Now,
		newID:       uuid.NewString,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// run 跟踪一次运行的阶段与活动日志。
type run struct {
	now         func() time.Time
	id          string
	market      string
	rec         *agent.Recorder
	activity    []agent.Record
	persisted   int
	state       State
	transitions []State
}

func (o *Orchestrator) newRun(market string) *run {
	r := &run{now: o.now, id: o.newID(), market: market, rec: agent.NewRecorder(KindPipeline, o.now)}
	r.enter(StateStarted)
	return r
}

func (r *run) enter(s State) {
	r.state = s
	r.transitions = append(r.transitions, s)
}

// absorb 合并编排器记录与 agent 记录，保持发生顺序。
func (r *run) absorb(records []agent.Record) {
	r.flushOwn()
	r.activity = append(r.activity, records...)
}

func (r *run) flushOwn() {
	own := r.rec.Records()
	r.activity = append(r.activity, own...)
	r.rec = agent.NewRecorder(KindPipeline, r.now)
}

func (r *run) fail(step State, err error) error {
	r.rec.Fail(string(step), err.Error(), nil)
	r.flushOwn()
	r.enter(StateFailed)
	return &StepError{Step: step, Err: err}
}

// PlanWeek 为 weekStart 所在周生成并持久化周目标，不修改组合。
func (o *Orchestrator) PlanWeek(ctx context.Context, weekStart time.Time) (WeeklyPlan, error) {
	market, err := o.markets.ActiveMarket(ctx)
	if err != nil {
		return WeeklyPlan{}, fmt.Errorf("active market: %w", err)
	}
	r := o.newRun(market)
	plan := WeeklyPlan{RunID: r.id, Market: market}

	in := agent.PlannerInput{Market: market, WeekStart: agent.MondayOf(weekStart).Format(agent.DateLayout)}
	res, err := o.invoker.Invoke(ctx, agent.KindPlanner, in)
	r.absorb(res.Activity)
	if err != nil {
		err = r.fail(StateStarted, err)
		plan.Activity = r.activity
		_ = o.persistActivity(ctx, r)
		return plan, err
	}
	plan.Goal = res.Output.(agent.PlannerOutput).Goal
	if err := o.saveGoal(ctx, market, plan.Goal); err != nil {
		err = r.fail(StateStarted, err)
		plan.Activity = r.activity
		return plan, err
	}
	r.rec.Log("weekly-goal", "Persisted weekly goal", map[string]any{"week_start": plan.Goal.WeekStart})
	r.flushOwn()
	plan.Activity = r.activity
	if err := o.persistActivity(ctx, r); err != nil {
		return plan, err
	}
	logger.Infof("[pipeline] %s 周计划已生成 (%s, %d 天)", market, plan.Goal.WeekStart, len(plan.Goal.DailyGoals))
	return plan, nil
}

// RunTradingDay 执行 explorer → researcher 扇出 → decider → 逐条落地。
// 同一时刻只允许一个交易日流程，重入返回 ErrBusy。
func (o *Orchestrator) RunTradingDay(ctx context.Context, goal agent.DailyGoal) (DailyReport, error) {
	if !o.mu.TryLock() {
		return DailyReport{State: StateFailed, Error: ErrBusy.Error()}, ErrBusy
	}
	defer o.mu.Unlock()
	return o.runTradingDay(ctx, goal)
}

func (o *Orchestrator) runTradingDay(ctx context.Context, goal agent.DailyGoal) (rep DailyReport, err error) {
	market, err := o.markets.ActiveMarket(ctx)
	if err != nil {
		return DailyReport{State: StateFailed, Error: err.Error()}, fmt.Errorf("active market: %w", err)
	}
	r := o.newRun(market)
	rep = DailyReport{RunID: r.id, Market: market, Date: o.today(), Goal: goal}
	defer func() {
		if perr := o.persistActivity(context.WithoutCancel(ctx), r); perr != nil && err == nil {
			err = perr
		}
		rep.State = r.state
		rep.Transitions = r.transitions
		rep.Activity = r.activity
		if err != nil {
			rep.Error = err.Error()
		}
	}()

	r.rec.Log("daily-goal", goal.Text, map[string]any{"priority_symbols": goal.PrioritySymbols})
	state, err := o.portfolio.Read(ctx, market)
	if err != nil {
		return rep, r.fail(StateStarted, err)
	}

	r.enter(StateExploring)
	res, err := o.invoker.Invoke(ctx, agent.KindExplorer, agent.ExplorerInput{Market: market, Portfolio: state, Goal: goal})
	r.absorb(res.Activity)
	if err != nil {
		return rep, r.fail(StateExploring, err)
	}
	rep.Candidates = res.Output.(agent.ExplorerOutput).Candidates
	r.rec.Log("explorer", "Received explorer candidates", map[string]any{"count": len(rep.Candidates)})

	r.enter(StateResearching)
	scores, err := o.research(ctx, r, market, rep.Candidates)
	if err != nil {
		return rep, r.fail(StateResearching, err)
	}
	rep.Scores = scores

	r.enter(StateDeciding)
	snap := o.capital.Compute(ctx, state)
	res, err = o.invoker.Invoke(ctx, agent.KindDecider, agent.DeciderInput{
		Market: market, Scores: scores, Portfolio: state, Capital: snap,
	})
	r.absorb(res.Activity)
	if err != nil {
		return rep, r.fail(StateDeciding, err)
	}
	rep.Decisions = res.Output.(agent.DeciderOutput).Decisions
	r.rec.Log("decider", "Decider returned trade instructions", map[string]any{"count": len(rep.Decisions)})

	r.enter(StateApplying)
	for _, d := range rep.Decisions {
		// 每条决策前检查取消，中止时存储停在最后一条已落地的决策。
		if cerr := ctx.Err(); cerr != nil {
			return rep, r.fail(StateApplying, cerr)
		}
		tr, aerr := o.portfolio.ApplyTrade(ctx, market, d)
		meta := map[string]any{"symbol": d.Symbol, "quantity": d.Quantity, "price": d.Price.String()}
		if aerr != nil {
			if portfolio.IsBusinessRejection(aerr) {
				r.rec.Fail(string(d.Action), aerr.Error(), meta)
				rep.Rejected = append(rep.Rejected, Rejection{Decision: d, Reason: aerr.Error()})
				continue
			}
			return rep, r.fail(StateApplying, aerr)
		}
		meta["cash_after"] = tr.CashAfter.String()
		r.rec.Log(string(d.Action), fmt.Sprintf("Executed %s for %s", d.Action, tr.Decision.Symbol), meta)
		rep.Applied = append(rep.Applied, tr)
	}

	after, err := o.portfolio.Read(ctx, market)
	if err != nil {
		return rep, r.fail(StateApplying, err)
	}
	rep.Portfolio = after
	rep.Capital = o.capital.Compute(ctx, after)
	r.flushOwn()
	r.enter(StateApplied)
	logger.Infof("[pipeline] %s 交易日完成: 候选 %d, 评分 %d, 落地 %d, 拒绝 %d",
		market, len(rep.Candidates), len(rep.Scores), len(rep.Applied), len(rep.Rejected))
	return rep, nil
}

type researchSlot struct {
	score    agent.ResearchScore
	activity []agent.Record
	err      error
}

// research 并行调用 researcher，结果按候选顺序重组。超时与服务错误只记录在对应代码上；
// payload 结构错误属于结构性失败，整个流程终止。
func (o *Orchestrator) research(ctx context.Context, r *run, market string, candidates []string) ([]agent.ResearchScore, error) {
	slots := make([]researchSlot, len(candidates))
	var g errgroup.Group
	g.SetLimit(o.maxParallel)
	for i, symbol := range candidates {
		i, symbol := i, symbol
		g.Go(func() error {
			if ctx.Err() != nil {
				slots[i].err = ctx.Err()
				return nil
			}
			res, err := o.invoker.Invoke(ctx, agent.KindResearcher, agent.ResearcherInput{Market: market, Symbol: symbol})
			slots[i].activity = res.Activity
			if err != nil {
				slots[i].err = err
				return nil
			}
			slots[i].score = res.Output.(agent.ResearcherOutput).Score
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var structural error
	scores := make([]agent.ResearchScore, 0, len(candidates))
	for i, slot := range slots {
		r.absorb(slot.activity)
		if slot.err != nil {
			if structural == nil && agent.IsInvalidPayload(slot.err) {
				structural = fmt.Errorf("research %s: %w", candidates[i], slot.err)
				continue
			}
			r.rec.Fail("research", slot.err.Error(), map[string]any{"symbol": candidates[i]})
			continue
		}
		scores = append(scores, slot.score)
		r.rec.Log("research", "Completed research for "+candidates[i], map[string]any{"score": slot.score.Score})
	}
	if structural != nil {
		return nil, structural
	}
	return scores, nil
}

// ReviewDay 调用 checker 并把复盘条目写入当前市场的知识库。
func (o *Orchestrator) ReviewDay(ctx context.Context, activity []agent.Record, goal agent.WeeklyGoal) (Review, error) {
	market, err := o.markets.ActiveMarket(ctx)
	if err != nil {
		return Review{State: StateFailed}, fmt.Errorf("active market: %w", err)
	}
	r := o.newRun(market)
	return o.reviewDay(ctx, r, activity, goal)
}

func (o *Orchestrator) reviewDay(ctx context.Context, r *run, activity []agent.Record, goal agent.WeeklyGoal) (rev Review, err error) {
	rev = Review{RunID: r.id, Market: r.market}
	defer func() {
		if perr := o.persistActivity(context.WithoutCancel(ctx), r); perr != nil && err == nil {
			err = perr
		}
		rev.State = r.state
		rev.Activity = r.activity
	}()

	state, err := o.portfolio.Read(ctx, r.market)
	if err != nil {
		return rev, r.fail(StateApplied, err)
	}
	snap := o.capital.Compute(ctx, state)
	res, err := o.invoker.Invoke(ctx, agent.KindChecker, agent.CheckerInput{
		Market:    r.market,
		Date:      o.today(),
		Activity:  activity,
		Goal:      goal,
		Portfolio: state,
		Capital:   snap,
	})
	r.absorb(res.Activity)
	if err != nil {
		return rev, r.fail(StateApplied, err)
	}
	out := res.Output.(agent.CheckerOutput)
	rev.Summary = out.Summary
	entry, err := o.memo.Append(ctx, r.market, out.Entry)
	if err != nil {
		return rev, r.fail(StateApplied, err)
	}
	rev.Entry = entry
	r.rec.Log("knowledge-base", "Appended review entry", map[string]any{"id": entry.ID, "title": entry.Title})
	r.flushOwn()
	r.enter(StateReviewed)
	logger.Infof("[pipeline] %s 复盘完成: %s", r.market, entry.Title)
	return rev, nil
}

// RunDailyCycle 依次执行交易日与复盘，成功时以 reviewed 结束。
func (o *Orchestrator) RunDailyCycle(ctx context.Context, goal agent.DailyGoal, weekly agent.WeeklyGoal) (CycleReport, error) {
	if !o.mu.TryLock() {
		return CycleReport{State: StateFailed}, ErrBusy
	}
	defer o.mu.Unlock()

	rep, err := o.runTradingDay(ctx, goal)
	cycle := CycleReport{State: rep.State, Trading: rep}
	if err != nil {
		return cycle, err
	}
	r := &run{now: o.now, id: rep.RunID, market: rep.Market, rec: agent.NewRecorder(KindPipeline, o.now)}
	r.state = StateApplied
	rev, err := o.reviewDay(ctx, r, rep.Activity, weekly)
	cycle.Review = &rev
	cycle.State = rev.State
	return cycle, err
}

func (o *Orchestrator) today() string {
	return o.now().Format(agent.DateLayout)
}

// IsStructural 判断错误是否让运行进入 failed。
func IsStructural(err error) bool {
	var step *StepError
	return errors.As(err, &step)
}
