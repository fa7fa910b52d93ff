package config

import (
	"strings"
)

// 默认值常量
const (
	defaultAppEnv              = "dev"
	defaultAppLogLevel         = "info"
	defaultAppHTTPAddr         = ":9992"
	defaultDBPath              = "kabupilot.db"
	defaultKnowledgeDir        = "knowledge"
	defaultMarket              = "jp"
	defaultInitialCash         = 100000
	defaultPriceSource         = "knowledge"
	defaultPriceTimeout        = 5
	defaultAgentTimeout        = 60
	defaultResearchMaxParallel = 4
	defaultToolSearch          = "stub"
	defaultToolSocial          = "stub"
	defaultToolTimeout         = 15
	defaultAITimeout           = 60
	defaultBreakerThreshold    = 3
	defaultBreakerCooldown     = 120
	defaultDailyCycleAt        = "15:30"
	defaultScheduleTimezone    = "Asia/Tokyo"
)

// applyDefaults 为所有子配置应用默认值。
func (c *Config) applyDefaults(keys keySet) {
	c.App.applyDefaults(keys)
	c.Storage.applyDefaults(keys)
	c.Market.applyDefaults(keys)
	c.Portfolio.applyDefaults(keys)
	c.Capital.applyDefaults(keys)
	c.Agents.applyDefaults(keys)
	c.Research.applyDefaults(keys)
	c.Tools.applyDefaults(keys)
	c.AI.applyDefaults(keys)
	c.Schedule.applyDefaults(keys)
}

// Default 返回未读取任何文件时的配置，init-db 等命令在缺少配置文件时使用。
func Default() *Config {
	var cfg Config
	cfg.applyDefaults(make(keySet))
	return &cfg
}

func (a *AppConfig) applyDefaults(keys keySet) {
	applyFieldDefaults(keys,
		stringFieldDefault("app.env", &a.Env, defaultAppEnv),
		stringFieldDefault("app.log_level", &a.LogLevel, defaultAppLogLevel),
		stringFieldDefault("app.http_addr", &a.HTTPAddr, defaultAppHTTPAddr),
	)
}

func (s *StorageConfig) applyDefaults(keys keySet) {
	applyFieldDefaults(keys,
		stringFieldDefault("storage.db_path", &s.DBPath, defaultDBPath),
		stringFieldDefault("storage.knowledge_dir", &s.KnowledgeDir, defaultKnowledgeDir),
	)
}

func (m *MarketConfig) applyDefaults(keys keySet) {
	applyFieldDefaults(keys, stringFieldDefault("market.default", &m.Default, defaultMarket))
	m.Default = strings.ToLower(strings.TrimSpace(m.Default))
}

func (p *PortfolioConfig) applyDefaults(keys keySet) {
	applyFieldDefaults(keys,
		fieldDefault{
			key:   "portfolio.initial_cash",
			need:  func() bool { return p.InitialCash <= 0 },
			apply: func() { p.InitialCash = defaultInitialCash },
		},
	)
}

func (c *CapitalConfig) applyDefaults(keys keySet) {
	applyFieldDefaults(keys,
		stringFieldDefault("capital.price_source", &c.PriceSource, defaultPriceSource),
		fieldDefault{
			key:   "capital.price_timeout_seconds",
			need:  func() bool { return c.PriceTimeoutSeconds <= 0 },
			apply: func() { c.PriceTimeoutSeconds = defaultPriceTimeout },
		},
	)
}

func (a *AgentsConfig) applyDefaults(keys keySet) {
	applyFieldDefaults(keys,
		fieldDefault{
			key:   "agents.default_timeout_seconds",
			need:  func() bool { return a.DefaultTimeoutSeconds <= 0 },
			apply: func() { a.DefaultTimeoutSeconds = defaultAgentTimeout },
		},
	)
	if len(a.TimeoutSeconds) == 0 {
		return
	}
	normalized := make(map[string]int, len(a.TimeoutSeconds))
	for k, v := range a.TimeoutSeconds {
		normalized[strings.ToLower(strings.TrimSpace(k))] = v
	}
	a.TimeoutSeconds = normalized
}

func (r *ResearchConfig) applyDefaults(keys keySet) {
	applyFieldDefaults(keys,
		fieldDefault{
			key:   "research.max_parallel",
			need:  func() bool { return r.MaxParallel <= 0 },
			apply: func() { r.MaxParallel = defaultResearchMaxParallel },
		},
	)
}

func (t *ToolsConfig) applyDefaults(keys keySet) {
	applyFieldDefaults(keys,
		stringFieldDefault("tools.search", &t.Search, defaultToolSearch),
		stringFieldDefault("tools.social", &t.Social, defaultToolSocial),
		stringFieldDefault("tools.news_language", &t.NewsLanguage, "en"),
		fieldDefault{
			key:   "tools.timeout_seconds",
			need:  func() bool { return t.TimeoutSeconds <= 0 },
			apply: func() { t.TimeoutSeconds = defaultToolTimeout },
		},
		fieldDefault{
			key:   "tools.breaker_threshold",
			need:  func() bool { return t.BreakerThreshold <= 0 },
			apply: func() { t.BreakerThreshold = defaultBreakerThreshold },
		},
		fieldDefault{
			key:   "tools.breaker_cooldown_seconds",
			need:  func() bool { return t.BreakerCooldownSeconds <= 0 },
			apply: func() { t.BreakerCooldownSeconds = defaultBreakerCooldown },
		},
	)
}

func (s *ScheduleConfig) applyDefaults(keys keySet) {
	applyFieldDefaults(keys,
		boolFieldDefault("schedule.enabled", &s.Enabled, false),
		boolFieldDefault("schedule.plan_week", &s.PlanWeek, true),
		boolFieldDefault("schedule.run_immediately", &s.RunImmediately, false),
		stringFieldDefault("schedule.daily_cycle_at", &s.DailyCycleAt, defaultDailyCycleAt),
		stringFieldDefault("schedule.timezone", &s.Timezone, defaultScheduleTimezone),
	)
}

func (a *AIConfig) applyDefaults(keys keySet) {
	if a.ProviderPresets == nil {
		a.ProviderPresets = make(map[string]ModelPreset)
	}
	applyFieldDefaults(keys,
		boolFieldDefault("ai.enabled", &a.Enabled, false),
		fieldDefault{
			key:   "ai.timeout_seconds",
			need:  func() bool { return a.TimeoutSeconds <= 0 },
			apply: func() { a.TimeoutSeconds = defaultAITimeout },
		},
	)
}

// Helper functions

func applyFieldDefaults(keys keySet, defs ...fieldDefault) {
	for _, def := range defs {
		if def.apply == nil {
			continue
		}
		if def.key != "" && keys.isSet(def.key) {
			continue
		}
		if def.need != nil && !def.need() {
			continue
		}
		def.apply()
	}
}

func stringFieldDefault(key string, target *string, def string) fieldDefault {
	return fieldDefault{
		key:   key,
		need:  func() bool { return target != nil && strings.TrimSpace(*target) == "" },
		apply: func() { *target = def },
	}
}

func boolFieldDefault(key string, target *bool, def bool) fieldDefault {
	return fieldDefault{
		key:   key,
		need:  func() bool { return target != nil },
		apply: func() { *target = def },
	}
}
