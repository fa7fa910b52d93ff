// Package apihttp 提供 kabupilot 的 HTTP API。
package apihttp

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"kabupilot/internal/agent"
	"kabupilot/internal/capital"
	"kabupilot/internal/knowledge"
	"kabupilot/internal/pipeline"
	"kabupilot/internal/portfolio"
	"kabupilot/internal/transport/payload"

	"github.com/gin-gonic/gin"
)

// Flows 是编排器暴露给 HTTP 层的流程。
type Flows interface {
	PlanWeek(ctx context.Context, weekStart time.Time) (pipeline.WeeklyPlan, error)
	RunTradingDay(ctx context.Context, goal agent.DailyGoal) (pipeline.DailyReport, error)
	ReviewDay(ctx context.Context, activity []agent.Record, goal agent.WeeklyGoal) (pipeline.Review, error)
	RunDailyCycle(ctx context.Context, goal agent.DailyGoal, weekly agent.WeeklyGoal) (pipeline.CycleReport, error)
	ResolveDay(ctx context.Context, req pipeline.DayRequest) (agent.DailyGoal, agent.WeeklyGoal, error)
	ResolveReview(ctx context.Context, req pipeline.ReviewRequest) ([]agent.Record, agent.WeeklyGoal, error)
	RecentActivity(ctx context.Context, runID string, limit int) ([]pipeline.ActivityEntry, error)
}

type PortfolioReader interface {
	Read(ctx context.Context, market string) (portfolio.State, error)
}

type CapitalSource interface {
	Compute(ctx context.Context, state portfolio.State) capital.Snapshot
}

type Markets interface {
	ActiveMarket(ctx context.Context) (string, error)
	SetMarket(ctx context.Context, market string, refreshWatchlist bool) (knowledge.MarketSwitch, error)
}

type Handler struct {
	flows     Flows
	portfolio PortfolioReader
	capital   CapitalSource
	markets   Markets
	memo      knowledge.Reader
	now       func() time.Time
}

func NewHandler(flows Flows, pf PortfolioReader, cs CapitalSource, markets Markets, memo knowledge.Reader) *Handler {
	return &Handler{flows: flows, portfolio: pf, capital: cs, markets: markets, memo: memo, now: time.Now}
}

// Register 将 /api 路由挂载到给定分组下。
func (h *Handler) Register(group *gin.RouterGroup) {
	if group == nil {
		return
	}
	group.GET("/portfolio", h.handlePortfolio)
	group.GET("/capital", h.handleCapital)
	group.POST("/plan-week", h.handlePlanWeek)
	group.POST("/trading-day", h.handleTradingDay)
	group.POST("/review-day", h.handleReviewDay)
	group.POST("/daily-cycle", h.handleDailyCycle)
	group.POST("/market", h.handleSetMarket)
	group.GET("/knowledge", h.handleKnowledge)
	group.GET("/activity", h.handleActivity)
}

// writeError 按错误类别映射状态码：结构错误 400，忙 409，其余 500。
func writeError(c *gin.Context, err error, result any) {
	status := http.StatusInternalServerError
	switch {
	case payload.IsStructural(err):
		status = http.StatusBadRequest
	case payload.IsBusy(err):
		status = http.StatusConflict
	}
	c.JSON(status, payload.NewErrorBody(err, result))
}

// bindJSON 绑定可选的请求体；空请求体视为零值。
func bindJSON(c *gin.Context, dst any) error {
	if c.Request.Body == nil {
		return nil
	}
	return payload.FromDecodeError(c.ShouldBindJSON(dst))
}

func (h *Handler) activeState(ctx context.Context) (portfolio.State, error) {
	market, err := h.markets.ActiveMarket(ctx)
	if err != nil {
		return portfolio.State{}, err
	}
	return h.portfolio.Read(ctx, market)
}

func (h *Handler) handlePortfolio(c *gin.Context) {
	st, err := h.activeState(c.Request.Context())
	if err != nil {
		writeError(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (h *Handler) handleCapital(c *gin.Context) {
	ctx := c.Request.Context()
	st, err := h.activeState(ctx)
	if err != nil {
		writeError(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, h.capital.Compute(ctx, st))
}

func (h *Handler) handlePlanWeek(c *gin.Context) {
	var req struct {
		WeekStart string `json:"week_start"`
	}
	if err := bindJSON(c, &req); err != nil {
		writeError(c, err, nil)
		return
	}
	start := h.now()
	if s := strings.TrimSpace(req.WeekStart); s != "" {
		t, err := time.Parse(agent.DateLayout, s)
		if err != nil {
			writeError(c, payload.Field("week_start", "expected YYYY-MM-DD"), nil)
			return
		}
		start = t
	}
	plan, err := h.flows.PlanWeek(c.Request.Context(), start)
	if err != nil {
		writeError(c, err, plan)
		return
	}
	c.JSON(http.StatusOK, plan)
}

func (h *Handler) handleTradingDay(c *gin.Context) {
	var req pipeline.DayRequest
	if err := bindJSON(c, &req); err != nil {
		writeError(c, err, nil)
		return
	}
	ctx := c.Request.Context()
	goal, _, err := h.flows.ResolveDay(ctx, req)
	if err != nil {
		writeError(c, err, nil)
		return
	}
	rep, err := h.flows.RunTradingDay(ctx, goal)
	if err != nil {
		writeError(c, err, rep)
		return
	}
	c.JSON(http.StatusOK, rep)
}

func (h *Handler) handleReviewDay(c *gin.Context) {
	var req pipeline.ReviewRequest
	if err := bindJSON(c, &req); err != nil {
		writeError(c, err, nil)
		return
	}
	ctx := c.Request.Context()
	activity, goal, err := h.flows.ResolveReview(ctx, req)
	if err != nil {
		writeError(c, err, nil)
		return
	}
	rev, err := h.flows.ReviewDay(ctx, activity, goal)
	if err != nil {
		writeError(c, err, rev)
		return
	}
	c.JSON(http.StatusOK, rev)
}

func (h *Handler) handleDailyCycle(c *gin.Context) {
	var req pipeline.DayRequest
	if err := bindJSON(c, &req); err != nil {
		writeError(c, err, nil)
		return
	}
	ctx := c.Request.Context()
	goal, weekly, err := h.flows.ResolveDay(ctx, req)
	if err != nil {
		writeError(c, err, nil)
		return
	}
	cycle, err := h.flows.RunDailyCycle(ctx, goal, weekly)
	if err != nil {
		writeError(c, err, cycle)
		return
	}
	c.JSON(http.StatusOK, cycle)
}

func (h *Handler) handleSetMarket(c *gin.Context) {
	var req struct {
		Market           string `json:"market"`
		RefreshWatchlist bool   `json:"refresh_watchlist"`
	}
	if err := bindJSON(c, &req); err != nil {
		writeError(c, err, nil)
		return
	}
	if strings.TrimSpace(req.Market) == "" {
		writeError(c, payload.Field("market", "required"), nil)
		return
	}
	out, err := h.markets.SetMarket(c.Request.Context(), req.Market, req.RefreshWatchlist)
	if err != nil {
		writeError(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handler) handleKnowledge(c *gin.Context) {
	ctx := c.Request.Context()
	market, err := h.markets.ActiveMarket(ctx)
	if err != nil {
		writeError(c, err, nil)
		return
	}
	if m := strings.TrimSpace(c.Query("market")); m != "" {
		market = strings.ToLower(m)
	}
	var entries []knowledge.Entry
	if q := strings.TrimSpace(c.Query("q")); q != "" {
		entries, err = h.memo.Search(ctx, market, q)
	} else {
		entries, err = h.memo.Recent(ctx, market, queryInt(c, "limit", 20))
	}
	if err != nil {
		writeError(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, gin.H{"market": market, "entries": entries})
}

func (h *Handler) handleActivity(c *gin.Context) {
	entries, err := h.flows.RecentActivity(c.Request.Context(), c.Query("run_id"), queryInt(c, "limit", 100))
	if err != nil {
		writeError(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, gin.H{"activity": entries})
}

func queryInt(c *gin.Context, key string, def int) int {
	n, err := strconv.Atoi(c.DefaultQuery(key, strconv.Itoa(def)))
	if err != nil || n <= 0 {
		return def
	}
	if n > 500 {
		return 500
	}
	return n
}
