// Package pipeline 编排五个 agent：周计划、交易日流程与日终复盘。
package pipeline

import (
	"errors"
	"fmt"

	"kabupilot/internal/agent"
	"kabupilot/internal/capital"
	"kabupilot/internal/knowledge"
	"kabupilot/internal/portfolio"
)

// State 是一次运行所处的阶段。
type State string

const (
	StateStarted     State = "started"
	StateExploring   State = "exploring"
	StateResearching State = "researching"
	StateDeciding    State = "deciding"
	StateApplying    State = "applying"
	StateApplied     State = "applied"
	StateReviewed    State = "reviewed"
	StateFailed      State = "failed"
)

// KindPipeline 标注编排器自身写入的活动记录。
const KindPipeline agent.Kind = "pipeline"

// ErrBusy 表示已有交易日流程在运行。
var ErrBusy = errors.New("a trading day is already running")

// StepError 是导致运行进入 failed 的结构性错误。
type StepError struct {
	Step State
	Err  error
}

func (e *StepError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// WeeklyPlan 是 PlanWeek 的结果。
type WeeklyPlan struct {
	RunID    string           `json:"run_id"`
	Market   string           `json:"market"`
	Goal     agent.WeeklyGoal `json:"goal"`
	Activity []agent.Record   `json:"activity"`
}

// Rejection 是被组合规则拒绝并跳过的决策。
type Rejection struct {
	Decision portfolio.Decision `json:"decision"`
	Reason   string             `json:"reason"`
}

// DailyReport 是 RunTradingDay 的结果。失败时 State 为 failed，Activity 仍然完整。
type DailyReport struct {
	RunID       string                  `json:"run_id"`
	Market      string                  `json:"market"`
	Date        string                  `json:"date"`
	State       State                   `json:"state"`
	Transitions []State                 `json:"transitions"`
	Goal        agent.DailyGoal         `json:"goal"`
	Candidates  []string                `json:"candidates"`
	Scores      []agent.ResearchScore   `json:"scores"`
	Decisions   []portfolio.Decision    `json:"decisions"`
	Applied     []portfolio.TradeResult `json:"applied"`
	Rejected    []Rejection             `json:"rejected"`
	Portfolio   portfolio.State         `json:"portfolio"`
	Capital     capital.Snapshot        `json:"capital"`
	Activity    []agent.Record          `json:"activity"`
	Error       string                  `json:"error,omitempty"`
}

// Review 是 ReviewDay 的结果。
type Review struct {
	RunID    string             `json:"run_id"`
	Market   string             `json:"market"`
	State    State              `json:"state"`
	Summary  agent.DailySummary `json:"summary"`
	Entry    knowledge.Entry    `json:"entry"`
	Activity []agent.Record     `json:"activity"`
}

// CycleReport 是 RunDailyCycle 的结果。
type CycleReport struct {
	State   State       `json:"state"`
	Trading DailyReport `json:"trading"`
	Review  *Review     `json:"review,omitempty"`
}

// ActivityEntry 是持久化后的活动记录。
type ActivityEntry struct {
	RunID  string `json:"run_id"`
	Market string `json:"market"`
	agent.Record
}

// ReviewRequest 描述一次复盘的输入；留空的部分从存储补齐。
type ReviewRequest struct {
	RunID    string            `json:"run_id,omitempty"`
	Activity []agent.Record    `json:"activity,omitempty"`
	Goal     *agent.WeeklyGoal `json:"goal,omitempty"`
}

// DayRequest 描述交易日输入；Goal 为空时使用当天的日目标。
type DayRequest struct {
	Goal   *agent.DailyGoal  `json:"goal,omitempty"`
	Weekly *agent.WeeklyGoal `json:"weekly_goal,omitempty"`
}
