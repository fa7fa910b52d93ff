package agent

import (
	"time"

	"kabupilot/internal/capital"
	"kabupilot/internal/knowledge"
	"kabupilot/internal/portfolio"
)

// Kind 标识五类 agent。
type Kind string

const (
	KindPlanner    Kind = "planner"
	KindExplorer   Kind = "explorer"
	KindResearcher Kind = "researcher"
	KindDecider    Kind = "decider"
	KindChecker    Kind = "checker"
)

func (k Kind) String() string { return string(k) }

// DailyGoal 是周计划中某个交易日的目标。
type DailyGoal struct {
	Day             string   `json:"day"`
	Date            string   `json:"date"`
	Text            string   `json:"text"`
	PrioritySymbols []string `json:"priority_symbols"`
}

// WeeklyGoal 创建后不再修改；DailyGoals 按交易日顺序排列。
type WeeklyGoal struct {
	Headline   string      `json:"headline"`
	Details    []string    `json:"details"`
	WeekStart  string      `json:"week_start"`
	DailyGoals []DailyGoal `json:"daily_goals"`
}

// GoalFor 返回指定日期的日目标。
func (w WeeklyGoal) GoalFor(date time.Time) (DailyGoal, bool) {
	key := date.Format(DateLayout)
	for _, g := range w.DailyGoals {
		if g.Date == key {
			return g, true
		}
	}
	return DailyGoal{}, false
}

// DateLayout 是目标与复盘使用的日期格式。
const DateLayout = "2006-01-02"

// MondayOf 返回 t 所在周的周一（周末归入下一周）。
func MondayOf(t time.Time) time.Time {
	t = time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	switch wd := t.Weekday(); wd {
	case time.Saturday:
		return t.AddDate(0, 0, 2)
	case time.Sunday:
		return t.AddDate(0, 0, 1)
	default:
		return t.AddDate(0, 0, -int(wd-time.Monday))
	}
}

type ResearchScore struct {
	Symbol    string  `json:"symbol"`
	Score     float64 `json:"score"`
	Rationale string  `json:"rationale"`
}

// DailySummary 是 checker 对一个交易日的总结。
type DailySummary struct {
	Date     string   `json:"date"`
	Market   string   `json:"market"`
	Trades   int      `json:"trades"`
	Failures int      `json:"failures"`
	Insights []string `json:"insights"`
	Focus    string   `json:"focus"`
}

// 以下为各 agent 的输入输出，构成封闭的 Payload 变体集合。

type PlannerInput struct {
	Market    string `json:"market"`
	WeekStart string `json:"week_start"`
}

type PlannerOutput struct {
	Goal WeeklyGoal `json:"goal"`
}

type ExplorerInput struct {
	Market    string          `json:"market"`
	Portfolio portfolio.State `json:"portfolio"`
	Goal      DailyGoal       `json:"goal"`
}

type ExplorerOutput struct {
	Candidates []string `json:"candidates"`
}

type ResearcherInput struct {
	Market string `json:"market"`
	Symbol string `json:"symbol"`
}

type ResearcherOutput struct {
	Score ResearchScore `json:"score"`
}

type DeciderInput struct {
	Market    string           `json:"market"`
	Scores    []ResearchScore  `json:"scores"`
	Portfolio portfolio.State  `json:"portfolio"`
	Capital   capital.Snapshot `json:"capital"`
}

type DeciderOutput struct {
	Decisions []portfolio.Decision `json:"decisions"`
}

type CheckerInput struct {
	Market    string           `json:"market"`
	Date      string           `json:"date"`
	Activity  []Record         `json:"activity"`
	Goal      WeeklyGoal       `json:"goal"`
	Portfolio portfolio.State  `json:"portfolio"`
	Capital   capital.Snapshot `json:"capital"`
}

type CheckerOutput struct {
	Summary DailySummary    `json:"summary"`
	Entry   knowledge.Entry `json:"entry"`
}
