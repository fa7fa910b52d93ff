package config

import (
	"strings"
	"time"
)

// Config 是 kabupilot 的主配置载体。
type Config struct {
	App       AppConfig       `toml:"app"`
	Storage   StorageConfig   `toml:"storage"`
	Market    MarketConfig    `toml:"market"`
	Portfolio PortfolioConfig `toml:"portfolio"`
	Capital   CapitalConfig   `toml:"capital"`
	Agents    AgentsConfig    `toml:"agents"`
	Research  ResearchConfig  `toml:"research"`
	Tools     ToolsConfig     `toml:"tools"`
	AI        AIConfig        `toml:"ai"`
	Schedule  ScheduleConfig  `toml:"schedule"`
}

type AppConfig struct {
	Env      string `toml:"env"`
	LogLevel string `toml:"log_level"`
	HTTPAddr string `toml:"http_addr"`
	LogPath  string `toml:"log_path"`
	LLMLog   string `toml:"llm_log_path"`
	LLMDump  bool   `toml:"llm_dump_payload"`
}

// StorageConfig 描述组合数据库与知识库文件的位置。
type StorageConfig struct {
	DBPath       string `toml:"db_path"`
	KnowledgeDir string `toml:"knowledge_dir"`
}

type MarketConfig struct {
	Default string `toml:"default"`
}

// PortfolioConfig 控制初始资金与手续费策略。
type PortfolioConfig struct {
	InitialCash float64 `toml:"initial_cash"`
	// FeeRate 按成交额比例收取，0 表示无手续费。
	FeeRate float64 `toml:"fee_rate"`
}

type CapitalConfig struct {
	// CashReserveRatio 为保留现金比例，[0,1]，支持热更新。
	CashReserveRatio    float64 `toml:"cash_reserve_ratio"`
	PriceSource         string  `toml:"price_source"`
	PriceTimeoutSeconds int     `toml:"price_timeout_seconds"`
}

func (c CapitalConfig) PriceTimeout() time.Duration {
	return time.Duration(c.PriceTimeoutSeconds) * time.Second
}

// AgentsConfig 为每类 agent 配置调用超时（秒）。
type AgentsConfig struct {
	DefaultTimeoutSeconds int            `toml:"default_timeout_seconds"`
	TimeoutSeconds        map[string]int `toml:"timeout_seconds"`
}

// TimeoutFor 返回指定 agent 类型的超时，未单独配置时使用默认值。
func (a AgentsConfig) TimeoutFor(kind string) time.Duration {
	if secs, ok := a.TimeoutSeconds[strings.ToLower(strings.TrimSpace(kind))]; ok && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return time.Duration(a.DefaultTimeoutSeconds) * time.Second
}

type ResearchConfig struct {
	MaxParallel int `toml:"max_parallel"`
}

// ToolsConfig 选择搜索与舆情工具的实现（stub 或在线服务）。
type ToolsConfig struct {
	Search         string `toml:"search"`
	Social         string `toml:"social"`
	NewsLanguage   string `toml:"news_language"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	// 在线工具与报价连续失败 BreakerThreshold 次后熔断 BreakerCooldownSeconds 秒。
	BreakerThreshold       int `toml:"breaker_threshold"`
	BreakerCooldownSeconds int `toml:"breaker_cooldown_seconds"`
}

func (t ToolsConfig) Timeout() time.Duration {
	return time.Duration(t.TimeoutSeconds) * time.Second
}

func (t ToolsConfig) BreakerCooldown() time.Duration {
	return time.Duration(t.BreakerCooldownSeconds) * time.Second
}

// ScheduleConfig 控制 serve 模式下的自动日循环。
type ScheduleConfig struct {
	Enabled      bool   `toml:"enabled"`
	DailyCycleAt string `toml:"daily_cycle_at"`
	Timezone     string `toml:"timezone"`
	// PlanWeek 为 true 时，本周还没有周目标则先生成。
	PlanWeek bool `toml:"plan_week"`
	// RunImmediately 启动时先跑一轮，不等到下一个整点。
	RunImmediately bool `toml:"run_immediately"`
}

type AIConfig struct {
	Enabled         bool                   `toml:"enabled"`
	TimeoutSeconds  int                    `toml:"timeout_seconds"`
	PlannerModel    string                 `toml:"planner_model"`
	ExplorerModel   string                 `toml:"explorer_model"`
	ResearcherModel string                 `toml:"researcher_model"`
	DeciderModel    string                 `toml:"decider_model"`
	CheckerModel    string                 `toml:"checker_model"`
	SocialModel     string                 `toml:"social_model"`
	ProviderPresets map[string]ModelPreset `toml:"provider_presets"`
	Models          []AIModelConfig        `toml:"models"`
}

// ModelPreset 描述可复用的 API 连接配置。
type ModelPreset struct {
	APIURL  string            `toml:"api_url"`
	APIKey  string            `toml:"api_key"`
	Headers map[string]string `toml:"headers"`
}

// AIModelConfig 是单个模型条目，可通过 preset 继承连接信息。
type AIModelConfig struct {
	ID       string            `toml:"id"`
	Provider string            `toml:"provider"`
	Preset   string            `toml:"preset"`
	Enabled  bool              `toml:"enabled"`
	APIURL   string            `toml:"api_url"`
	APIKey   string            `toml:"api_key"`
	Model    string            `toml:"model"`
	Headers  map[string]string `toml:"headers"`
}

// ResolvedModelConfig 是合并预设后的最终模型配置。
type ResolvedModelConfig struct {
	ID       string
	Provider string
	Enabled  bool
	APIURL   string
	APIKey   string
	Model    string
	Headers  map[string]string
}

type keySet map[string]struct{}

func (k keySet) mark(path string) {
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return
	}
	k[path] = struct{}{}
}

func (k keySet) isSet(path string) bool {
	if len(k) == 0 {
		return false
	}
	_, ok := k[strings.ToLower(strings.TrimSpace(path))]
	return ok
}

type fieldDefault struct {
	key   string
	need  func() bool
	apply func()
}
