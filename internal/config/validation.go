package config

import (
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"
)

var supportedMarkets = map[string]bool{"jp": true, "us": true}

// validate 对配置进行基础校验。
func validate(c *Config) error {
	if !supportedMarkets[c.Market.Default] {
		return fmt.Errorf("market.default must be one of jp/us, got %q", c.Market.Default)
	}
	if err := c.Portfolio.validate(); err != nil {
		return err
	}
	if err := c.Capital.validate(); err != nil {
		return err
	}
	if err := c.Tools.validate(); err != nil {
		return err
	}
	if err := c.Schedule.validate(); err != nil {
		return err
	}
	return c.AI.validate()
}

func (s *ScheduleConfig) validate() error {
	if _, err := time.Parse("15:04", strings.TrimSpace(s.DailyCycleAt)); err != nil {
		return fmt.Errorf("schedule.daily_cycle_at must be HH:MM, got %q", s.DailyCycleAt)
	}
	if _, err := time.LoadLocation(strings.TrimSpace(s.Timezone)); err != nil {
		return fmt.Errorf("schedule.timezone invalid: %w", err)
	}
	return nil
}

func (p *PortfolioConfig) validate() error {
	if p.InitialCash < 0 {
		return fmt.Errorf("portfolio.initial_cash must be >= 0")
	}
	if p.FeeRate < 0 || p.FeeRate >= 1 {
		return fmt.Errorf("portfolio.fee_rate must be in [0,1)")
	}
	return nil
}

func (c *CapitalConfig) validate() error {
	if c.CashReserveRatio < 0 || c.CashReserveRatio > 1 {
		return fmt.Errorf("capital.cash_reserve_ratio must be in [0,1]")
	}
	switch c.PriceSource {
	case "knowledge", "yahoo":
	default:
		return fmt.Errorf("capital.price_source must be knowledge or yahoo, got %q", c.PriceSource)
	}
	return nil
}

func (t *ToolsConfig) validate() error {
	switch t.Search {
	case "stub", "google_news":
	default:
		return fmt.Errorf("tools.search must be stub or google_news, got %q", t.Search)
	}
	switch t.Social {
	case "stub", "model":
	default:
		return fmt.Errorf("tools.social must be stub or model, got %q", t.Social)
	}
	return nil
}

func (a *AIConfig) validate() error {
	if !a.Enabled {
		return nil
	}
	models, err := a.ResolveModelConfigs()
	if err != nil {
		return err
	}
	if len(models) == 0 {
		return fmt.Errorf("ai.enabled requires at least one model in ai.models")
	}
	ids := make(map[string]bool, len(models))
	for _, m := range models {
		if strings.TrimSpace(m.Model) == "" {
			return fmt.Errorf("ai.models contains entry without model (id=%s)", m.ID)
		}
		if strings.TrimSpace(m.APIURL) == "" {
			return fmt.Errorf("ai.models.%s missing api_url (can inherit from preset)", m.ID)
		}
		ids[m.ID] = true
	}
	for key, id := range map[string]string{
		"ai.planner_model":    a.PlannerModel,
		"ai.explorer_model":   a.ExplorerModel,
		"ai.researcher_model": a.ResearcherModel,
		"ai.decider_model":    a.DeciderModel,
		"ai.checker_model":    a.CheckerModel,
		"ai.social_model":     a.SocialModel,
	} {
		if id != "" && !ids[id] {
			return fmt.Errorf("%s references unconfigured model id: %s", key, id)
		}
	}
	return nil
}
