package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"kabupilot/internal/agent"
	"kabupilot/internal/capital"
	"kabupilot/internal/config"
	"kabupilot/internal/knowledge"
	"kabupilot/internal/logger"
	"kabupilot/internal/pipeline"
	"kabupilot/internal/portfolio"
)

// MarketInit 是 init-db 对单个市场所做的事。
type MarketInit struct {
	Market               string `json:"market"`
	SeededEntries        int    `json:"seeded_entries"`
	PortfolioInitialized bool   `json:"portfolio_initialized"`
	KnowledgeTotal       int    `json:"knowledge_entries"`
}

type InitReport struct {
	Markets []MarketInit           `json:"markets"`
	Active  knowledge.MarketSwitch `json:"active"`
}

// InitDB 为每个模板市场写入初始资金与知识种子，然后激活默认市场并刷新其自选列表。
// 已有数据在非 force 模式下保持不变。
func (r *Runtime) InitDB(ctx context.Context, force bool) (InitReport, error) {
	var report InitReport
	for _, market := range r.Templates.Markets() {
		seeded, err := r.Memo.Seed(ctx, market, r.Templates[market], force)
		if err != nil {
			return InitReport{}, fmt.Errorf("seed knowledge for %s: %w", market, err)
		}
		created, err := r.Portfolio.EnsureMarket(ctx, market, force)
		if err != nil {
			return InitReport{}, fmt.Errorf("init portfolio for %s: %w", market, err)
		}
		total, err := r.Memo.Count(ctx, market)
		if err != nil {
			return InitReport{}, err
		}
		report.Markets = append(report.Markets, MarketInit{Market: market, SeededEntries: seeded, PortfolioInitialized: created, KnowledgeTotal: total})
		logger.Infof("init-db %s: seeded=%d portfolio_init=%v entries=%d", market, seeded, created, total)
	}
	sw, err := r.Scope.SetMarket(ctx, r.Config.Market.Default, true)
	if err != nil {
		return InitReport{}, err
	}
	report.Active = sw
	return report, nil
}

// PortfolioView 是 show-portfolio 的输出。
type PortfolioView struct {
	Market    string           `json:"market"`
	Portfolio portfolio.State  `json:"portfolio"`
	Capital   capital.Snapshot `json:"capital"`
}

func (r *Runtime) ShowPortfolio(ctx context.Context) (PortfolioView, error) {
	market, err := r.Scope.ActiveMarket(ctx)
	if err != nil {
		return PortfolioView{}, err
	}
	st, err := r.Portfolio.Read(ctx, market)
	if err != nil {
		return PortfolioView{}, err
	}
	return PortfolioView{Market: market, Portfolio: st, Capital: r.Capital.Compute(ctx, st)}, nil
}

// ApplyConfig 应用可热更新的配置项，其余变更需重启生效。
func (r *Runtime) ApplyConfig(cfg *config.Config) {
	if r == nil || cfg == nil {
		return
	}
	logger.SetLevel(cfg.App.LogLevel)
	if err := r.Capital.SetReserveRatio(cfg.Capital.CashReserveRatio); err != nil {
		logger.Errorf("更新 cash_reserve_ratio 失败: %v", err)
		return
	}
	logger.Infof("热更新: log_level=%s cash_reserve_ratio=%.2f", cfg.App.LogLevel, cfg.Capital.CashReserveRatio)
}

// RunScheduledCycle 是 serve 模式的定时任务：本周还没有周目标时先生成，再执行日循环。
func (r *Runtime) RunScheduledCycle(ctx context.Context, now time.Time) (pipeline.CycleReport, error) {
	if r.Config.Schedule.PlanWeek {
		weekly, ok, err := r.Pipeline.LatestGoal(ctx)
		if err != nil {
			return pipeline.CycleReport{State: pipeline.StateFailed}, err
		}
		if !ok || weekly.WeekStart != agent.MondayOf(now).Format(agent.DateLayout) {
			if _, err := r.Pipeline.PlanWeek(ctx, now); err != nil {
				return pipeline.CycleReport{State: pipeline.StateFailed}, fmt.Errorf("plan week: %w", err)
			}
		}
	}
	daily, weekly, err := r.Pipeline.CurrentGoal(ctx, now)
	if err != nil {
		return pipeline.CycleReport{State: pipeline.StateFailed}, err
	}
	return r.Pipeline.RunDailyCycle(ctx, daily, weekly)
}

func (r *Runtime) scheduledTask(ctx context.Context) {
	cycle, err := r.RunScheduledCycle(ctx, time.Now())
	switch {
	case errors.Is(err, pipeline.ErrBusy):
		logger.Warnf("定时日循环跳过: %v", err)
	case err != nil:
		logger.Errorf("定时日循环失败 (state=%s): %v", cycle.State, err)
	default:
		logger.Infof("定时日循环完成: run=%s state=%s applied=%d", cycle.Trading.RunID, cycle.State, len(cycle.Trading.Applied))
	}
}
