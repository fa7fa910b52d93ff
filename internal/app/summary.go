package app

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"kabupilot/internal/config"
	"kabupilot/internal/gateway/provider"
)

type StartupSummary struct {
	Storage  StorageSummary
	Market   MarketSummary
	Pipeline PipelineSummary
	Tools    ToolsSummary
}

type StorageSummary struct {
	DBPath       string
	KnowledgeDir string
}

type MarketSummary struct {
	Default      string
	Supported    []string
	PriceSource  string
	InitialCash  float64
	FeeRate      float64
	ReserveRatio float64
}

type PipelineSummary struct {
	MaxParallel    int
	DefaultTimeout int
	AgentTimeouts  map[string]int
	HTTPAddr       string
}

type ToolsSummary struct {
	Search string
	Social string
	Scorer string
	Agents []string
	Models []string
}

func newStartupSummary(cfg *config.Config, markets []string, ts *toolset, providers map[string]provider.ModelProvider) *StartupSummary {
	models := make([]string, 0, len(providers))
	for id := range providers {
		models = append(models, id)
	}
	sort.Strings(models)
	s := &StartupSummary{
		Storage: StorageSummary{DBPath: absPath(cfg.Storage.DBPath), KnowledgeDir: absPath(cfg.Storage.KnowledgeDir)},
		Market: MarketSummary{
			Default:      cfg.Market.Default,
			Supported:    markets,
			PriceSource:  cfg.Capital.PriceSource,
			InitialCash:  cfg.Portfolio.InitialCash,
			FeeRate:      cfg.Portfolio.FeeRate,
			ReserveRatio: cfg.Capital.CashReserveRatio,
		},
		Pipeline: PipelineSummary{
			MaxParallel:    cfg.Research.MaxParallel,
			DefaultTimeout: cfg.Agents.DefaultTimeoutSeconds,
			AgentTimeouts:  cfg.Agents.TimeoutSeconds,
			HTTPAddr:       cfg.App.HTTPAddr,
		},
		Tools: ToolsSummary{Models: models},
	}
	if ts != nil {
		s.Tools.Search = ts.searchName
		s.Tools.Social = ts.socialName
		s.Tools.Scorer = ts.scorerName
		s.Tools.Agents = ts.agentModelNames()
	}
	return s
}

// Print 把摘要写到 stderr，stdout 留给命令输出。
func (s *StartupSummary) Print() {
	s.Fprint(os.Stderr)
}

func (s *StartupSummary) Fprint(w io.Writer) {
	if s == nil {
		return
	}
	title := "启动配置摘要 (STARTUP SUMMARY)"
	fmt.Fprintln(w, strings.Repeat("=", 80))
	fmt.Fprintf(w, "%*s\n", 40+len(title)/2, title)
	fmt.Fprintln(w, strings.Repeat("=", 80))

	fmt.Fprintln(w, "[存储 (STORAGE)]")
	fmt.Fprintf(w, "  组合数据库: %s\n", s.Storage.DBPath)
	fmt.Fprintf(w, "  知识库目录: %s\n", s.Storage.KnowledgeDir)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "[市场与资金 (MARKET / CAPITAL)]")
	fmt.Fprintf(w, "  默认市场: %s\n", s.Market.Default)
	fmt.Fprintf(w, "  支持市场: %s\n", formatList(s.Market.Supported))
	fmt.Fprintf(w, "  报价源: %s\n", s.Market.PriceSource)
	fmt.Fprintf(w, "  初始资金: %.2f  手续费率: %.4f  保留现金: %.0f%%\n", s.Market.InitialCash, s.Market.FeeRate, s.Market.ReserveRatio*100)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "[流水线 (PIPELINE)]")
	fmt.Fprintf(w, "  研究并发: %d\n", s.Pipeline.MaxParallel)
	fmt.Fprintf(w, "  agent 超时: %ds%s\n", s.Pipeline.DefaultTimeout, formatTimeouts(s.Pipeline.AgentTimeouts))
	fmt.Fprintf(w, "  HTTP: %s\n", s.Pipeline.HTTPAddr)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "[工具 (TOOLS)]")
	fmt.Fprintf(w, "  搜索: %s\n", s.Tools.Search)
	fmt.Fprintf(w, "  舆情: %s\n", s.Tools.Social)
	fmt.Fprintf(w, "  打分: %s\n", s.Tools.Scorer)
	fmt.Fprintf(w, "  agent 模型: %s\n", formatList(s.Tools.Agents))
	fmt.Fprintf(w, "  模型: %s\n", formatList(s.Tools.Models))
	fmt.Fprintln(w, strings.Repeat("=", 80))
}

func formatTimeouts(m map[string]int) string {
	if len(m) == 0 {
		return ""
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%ds", k, m[k]))
	}
	return " (" + strings.Join(parts, ", ") + ")"
}

func formatList(items []string) string {
	if len(items) == 0 {
		return "-"
	}
	return strings.Join(items, ", ")
}
