package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"kabupilot/internal/agent"
	"kabupilot/internal/logger"
	"kabupilot/internal/store"
	"kabupilot/internal/store/model"

	"gorm.io/datatypes"
)

func (o *Orchestrator) persistActivity(ctx context.Context, r *run) error {
	r.flushOwn()
	pending := r.activity[r.persisted:]
	if o.store == nil || len(pending) == 0 {
		return nil
	}
	rows := make([]model.ActivityModel, 0, len(pending))
	for _, rec := range pending {
		row := model.ActivityModel{
			RunID:     r.id,
			Market:    r.market,
			Agent:     string(rec.Agent),
			Action:    rec.Action,
			Status:    string(rec.Status),
			Details:   rec.Details,
			Timestamp: rec.Timestamp,
		}
		if len(rec.Metadata) > 0 {
			raw, err := json.Marshal(rec.Metadata)
			if err != nil {
				logger.Warnf("[pipeline] 活动元数据无法序列化: %v", err)
			} else {
				row.Metadata = datatypes.JSON(raw)
			}
		}
		rows = append(rows, row)
	}
	err := store.InTx(ctx, o.store, func(uow store.UnitOfWork) error {
		return uow.Activity().Append(ctx, rows)
	})
	if err != nil {
		return fmt.Errorf("persist activity: %w", err)
	}
	r.persisted = len(r.activity)
	return nil
}

func (o *Orchestrator) saveGoal(ctx context.Context, market string, goal agent.WeeklyGoal) error {
	if o.store == nil {
		return nil
	}
	raw, err := json.Marshal(goal)
	if err != nil {
		return err
	}
	err = store.InTx(ctx, o.store, func(uow store.UnitOfWork) error {
		return uow.Goals().Save(ctx, &model.GoalModel{
			Market:    market,
			WeekStart: goal.WeekStart,
			Headline:  goal.Headline,
			Payload:   datatypes.JSON(raw),
			CreatedAt: o.now(),
		})
	})
	if err != nil {
		return fmt.Errorf("save weekly goal: %w", err)
	}
	return nil
}

// LatestGoal 返回当前市场最近一次生成的周目标。
func (o *Orchestrator) LatestGoal(ctx context.Context) (agent.WeeklyGoal, bool, error) {
	market, err := o.markets.ActiveMarket(ctx)
	if err != nil {
		return agent.WeeklyGoal{}, false, err
	}
	uow, err := o.store.Begin(ctx)
	if err != nil {
		return agent.WeeklyGoal{}, false, err
	}
	defer uow.Rollback()
	row, err := uow.Goals().Latest(ctx, market)
	if err != nil {
		return agent.WeeklyGoal{}, false, fmt.Errorf("load weekly goal: %w", err)
	}
	if row == nil {
		return agent.WeeklyGoal{}, false, nil
	}
	var goal agent.WeeklyGoal
	if err := json.Unmarshal(row.Payload, &goal); err != nil {
		return agent.WeeklyGoal{}, false, fmt.Errorf("decode weekly goal %d: %w", row.ID, err)
	}
	return goal, true, nil
}

// CurrentGoal 从最近的周目标中取出 date 当天的日目标；没有周目标时返回通用目标。
func (o *Orchestrator) CurrentGoal(ctx context.Context, date time.Time) (agent.DailyGoal, agent.WeeklyGoal, error) {
	weekly, ok, err := o.LatestGoal(ctx)
	if err != nil {
		return agent.DailyGoal{}, agent.WeeklyGoal{}, err
	}
	if ok {
		if g, found := weekly.GoalFor(date); found {
			return g, weekly, nil
		}
	}
	day := date.Weekday().String()
	generic := agent.DailyGoal{
		Day:  day,
		Date: date.Format(agent.DateLayout),
		Text: fmt.Sprintf("%s: refresh research pipeline and validate alignment with weekly goal.", day),
	}
	if !ok {
		weekly = agent.WeeklyGoal{
			Headline:   "Improve portfolio resilience while sourcing new opportunities.",
			WeekStart:  generic.Date,
			DailyGoals: []agent.DailyGoal{generic},
		}
	}
	return generic, weekly, nil
}

// RecentActivity 按时间倒序返回活动记录；runID 非空时只返回该次运行。
func (o *Orchestrator) RecentActivity(ctx context.Context, runID string, limit int) ([]ActivityEntry, error) {
	runID = strings.TrimSpace(runID)
	var market string
	if runID == "" {
		m, err := o.markets.ActiveMarket(ctx)
		if err != nil {
			return nil, err
		}
		market = m
	}
	// 先取市场再开事务：SQLite 只有一个连接
	uow, err := o.store.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer uow.Rollback()
	var rows []model.ActivityModel
	if runID != "" {
		rows, err = uow.Activity().ListByRun(ctx, runID)
	} else {
		rows, err = uow.Activity().ListRecent(ctx, market, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("list activity: %w", err)
	}
	out := make([]ActivityEntry, 0, len(rows))
	for _, row := range rows {
		e := ActivityEntry{
			RunID:  row.RunID,
			Market: row.Market,
			Record: agent.Record{
				Agent:     agent.Kind(row.Agent),
				Action:    row.Action,
				Status:    agent.Status(row.Status),
				Timestamp: row.Timestamp,
				Details:   row.Details,
			},
		}
		if len(row.Metadata) > 0 {
			_ = json.Unmarshal(row.Metadata, &e.Metadata)
		}
		out = append(out, e)
	}
	return out, nil
}

// LastRunActivity 返回当前市场最近一次运行的完整活动日志。
func (o *Orchestrator) LastRunActivity(ctx context.Context) (string, []agent.Record, error) {
	recent, err := o.RecentActivity(ctx, "", 1)
	if err != nil || len(recent) == 0 {
		return "", nil, err
	}
	runID := recent[0].RunID
	entries, err := o.RecentActivity(ctx, runID, 0)
	if err != nil {
		return "", nil, err
	}
	out := make([]agent.Record, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Record)
	}
	return runID, out, nil
}

// ResolveDay 补齐交易日所需的日目标与周目标。
func (o *Orchestrator) ResolveDay(ctx context.Context, req DayRequest) (agent.DailyGoal, agent.WeeklyGoal, error) {
	daily, weekly, err := o.CurrentGoal(ctx, o.now())
	if err != nil {
		return agent.DailyGoal{}, agent.WeeklyGoal{}, err
	}
	if req.Goal != nil {
		daily = *req.Goal
	}
	if req.Weekly != nil {
		weekly = *req.Weekly
	}
	return daily, weekly, nil
}

// ResolveReview 补齐复盘所需的活动日志与周目标：未给出活动时取 RunID 对应
// 的记录，RunID 也为空时取最近一次运行。
func (o *Orchestrator) ResolveReview(ctx context.Context, req ReviewRequest) ([]agent.Record, agent.WeeklyGoal, error) {
	activity := req.Activity
	if len(activity) == 0 {
		if req.RunID != "" {
			entries, err := o.RecentActivity(ctx, req.RunID, 0)
			if err != nil {
				return nil, agent.WeeklyGoal{}, err
			}
			for _, e := range entries {
				activity = append(activity, e.Record)
			}
		} else {
			_, recs, err := o.LastRunActivity(ctx)
			if err != nil {
				return nil, agent.WeeklyGoal{}, err
			}
			activity = recs
		}
	}
	if req.Goal != nil {
		return activity, *req.Goal, nil
	}
	_, weekly, err := o.CurrentGoal(ctx, o.now())
	if err != nil {
		return nil, agent.WeeklyGoal{}, err
	}
	return activity, weekly, nil
}
