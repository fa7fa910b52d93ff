package app

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"kabupilot/internal/agent"
	"kabupilot/internal/agent/agents"
	"kabupilot/internal/capital"
	"kabupilot/internal/config"
	"kabupilot/internal/gateway/provider"
	"kabupilot/internal/knowledge"
	"kabupilot/internal/logger"
	"kabupilot/internal/pipeline"
	"kabupilot/internal/portfolio"
	"kabupilot/internal/store/sqlite"
	apihttp "kabupilot/internal/transport/http/api"
)

type AppBuilder struct {
	cfg *config.Config

	storeFn     func(string) (*sqlite.SqliteStore, error)
	memoFn      func(string, []string) (*knowledge.Memo, error)
	providersFn func(config.AIConfig) (map[string]provider.ModelProvider, error)
	pricesFn    func(*config.Config, *knowledge.Memo) (capital.PriceLookup, error)
	toolsFn     func(config.ToolsConfig, config.AIConfig, map[string]provider.ModelProvider) (*toolset, error)

	templates knowledge.Templates
	now       func() time.Time
	runIDs    func() string
}

type AppBuilderOption func(*AppBuilder)

// WithTemplates 替换内置的市场模板。
func WithTemplates(t knowledge.Templates) AppBuilderOption {
	return func(b *AppBuilder) { b.templates = t }
}

// WithPriceLookup 固定报价源，跳过 capital.price_source。
func WithPriceLookup(p capital.PriceLookup) AppBuilderOption {
	return func(b *AppBuilder) {
		b.pricesFn = func(*config.Config, *knowledge.Memo) (capital.PriceLookup, error) { return p, nil }
	}
}

func WithProviders(providers map[string]provider.ModelProvider) AppBuilderOption {
	return func(b *AppBuilder) {
		b.providersFn = func(config.AIConfig) (map[string]provider.ModelProvider, error) { return providers, nil }
	}
}

func WithClock(now func() time.Time) AppBuilderOption {
	return func(b *AppBuilder) { b.now = now }
}

func WithRunIDs(fn func() string) AppBuilderOption {
	return func(b *AppBuilder) { b.runIDs = fn }
}

func NewAppBuilder(cfg *config.Config, opts ...AppBuilderOption) *AppBuilder {
	b := &AppBuilder{
		cfg:         cfg,
		storeFn:     sqlite.NewSqliteStore,
		memoFn:      knowledge.NewMemo,
		providersFn: buildModelProviders,
		pricesFn:    buildPriceLookup,
		toolsFn:     buildTools,
		templates:   knowledge.DefaultTemplates(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

// Runtime 持有一次进程内的全部组件。CLI 子命令直接使用它，serve 在其上挂 HTTP。
type Runtime struct {
	Config    *config.Config
	Store     *sqlite.SqliteStore
	Memo      *knowledge.Memo
	Templates knowledge.Templates
	Portfolio *portfolio.Service
	Capital   *capital.Calculator
	Scope     *knowledge.Scope
	Invoker   *agent.Invoker
	Pipeline  *pipeline.Orchestrator
	Summary   *StartupSummary

	closers []io.Closer
}

// Close 按创建的逆序释放资源。
func (r *Runtime) Close() error {
	if r == nil {
		return nil
	}
	var first error
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i].Close(); err != nil && first == nil {
			first = err
		}
	}
	r.closers = nil
	return first
}

func (b *AppBuilder) BuildRuntime(ctx context.Context) (*Runtime, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if b.cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	cfg := b.cfg
	logger.SetLevel(cfg.App.LogLevel)

	rt := &Runtime{Config: cfg, Templates: b.templates}
	success := false
	defer func() {
		if !success {
			_ = rt.Close()
		}
	}()

	if err := rt.openLogs(cfg.App); err != nil {
		return nil, err
	}

	st, err := b.storeFn(cfg.Storage.DBPath)
	if err != nil {
		return nil, fmt.Errorf("初始化组合数据库失败: %w", err)
	}
	rt.Store = st
	rt.closers = append(rt.closers, st)
	logger.Infof("✓ 组合数据库: %s", absPath(cfg.Storage.DBPath))

	memo, err := b.memoFn(cfg.Storage.KnowledgeDir, b.templates.Markets())
	if err != nil {
		return nil, fmt.Errorf("初始化知识库失败: %w", err)
	}
	rt.Memo = memo
	rt.closers = append(rt.closers, memo)
	logger.Infof("✓ 知识库目录: %s (markets=%v)", absPath(cfg.Storage.KnowledgeDir), memo.Markets())

	pfOpts := []portfolio.Option{
		portfolio.WithInitialCash(cfg.Portfolio.InitialCash),
		portfolio.WithFeeRate(cfg.Portfolio.FeeRate),
	}
	if b.now != nil {
		pfOpts = append(pfOpts, portfolio.WithClock(b.now))
	}
	rt.Portfolio = portfolio.NewService(st, pfOpts...)

	prices, err := b.pricesFn(cfg, memo)
	if err != nil {
		return nil, err
	}
	calc, err := capital.NewCalculator(prices, cfg.Capital.PriceTimeout(), cfg.Capital.CashReserveRatio)
	if err != nil {
		return nil, fmt.Errorf("初始化资金计算失败: %w", err)
	}
	rt.Capital = calc

	rt.Scope = knowledge.NewScope(st, rt.Portfolio, b.templates, cfg.Market.Default)

	providers, err := b.providersFn(cfg.AI)
	if err != nil {
		return nil, err
	}
	ts, err := b.toolsFn(cfg.Tools, cfg.AI, providers)
	if err != nil {
		return nil, err
	}

	inv, err := buildInvoker(cfg.Agents, rt, prices, ts)
	if err != nil {
		return nil, err
	}
	rt.Invoker = inv

	opts := []pipeline.Option{pipeline.WithMaxParallel(cfg.Research.MaxParallel)}
	if b.now != nil {
		opts = append(opts, pipeline.WithClock(b.now))
	}
	if b.runIDs != nil {
		opts = append(opts, pipeline.WithRunIDs(b.runIDs))
	}
	rt.Pipeline = pipeline.New(inv, rt.Portfolio, calc, memo, rt.Scope, st, opts...)
	rt.Summary = newStartupSummary(cfg, b.templates.Markets(), ts, providers)

	success = true
	return rt, nil
}

func (r *Runtime) openLogs(cfg config.AppConfig) error {
	f, err := logger.OpenFile(cfg.LogPath)
	if err != nil {
		return fmt.Errorf("打开日志文件失败: %w", err)
	}
	if f != nil {
		r.closers = append(r.closers, f)
	}
	llm, err := logger.OpenLLMFile(cfg.LLMLog)
	if err != nil {
		return fmt.Errorf("打开 LLM 日志失败: %w", err)
	}
	if llm != nil {
		r.closers = append(r.closers, llm)
	}
	logger.EnableLLMPayloadDump(cfg.LLMDump)
	return nil
}

func buildInvoker(cfg config.AgentsConfig, rt *Runtime, prices capital.PriceLookup, ts *toolset) (*agent.Invoker, error) {
	list := []agent.Agent{
		agents.NewPlanner(rt.Portfolio, rt.Capital, rt.Memo).WithModel(ts.agentModels[agent.KindPlanner]),
		agents.NewExplorer(rt.Memo, ts.search).WithModel(ts.agentModels[agent.KindExplorer]),
		agents.NewResearcher(ts.search, ts.social, ts.scorer),
		agents.NewDecider(rt.Memo, prices).WithModel(ts.agentModels[agent.KindDecider]),
		agents.NewChecker().WithModel(ts.agentModels[agent.KindChecker]),
	}
	inv, err := agent.NewInvoker(list, agent.WithTimeouts(func(k agent.Kind) time.Duration {
		return cfg.TimeoutFor(string(k))
	}))
	if err != nil {
		return nil, fmt.Errorf("初始化 agent 调用器失败: %w", err)
	}
	return inv, nil
}

func provideAppBuilder(cfg *config.Config) *AppBuilder {
	return NewAppBuilder(cfg)
}

func provideRuntime(ctx context.Context, b *AppBuilder) (*Runtime, error) {
	return b.BuildRuntime(ctx)
}

// Build 构建完整应用：运行时加 HTTP 服务。
func (b *AppBuilder) Build(ctx context.Context) (*App, error) {
	rt, err := b.BuildRuntime(ctx)
	if err != nil {
		return nil, err
	}
	srv, err := provideHTTPServer(b.cfg, rt)
	if err != nil {
		_ = rt.Close()
		return nil, err
	}
	return provideApp(b.cfg, rt, srv), nil
}

func provideHTTPServer(cfg *config.Config, rt *Runtime) (*apihttp.Server, error) {
	h := apihttp.NewHandler(rt.Pipeline, rt.Portfolio, rt.Capital, rt.Scope, rt.Memo)
	srv, err := apihttp.NewServer(cfg.App.HTTPAddr, h)
	if err != nil {
		return nil, fmt.Errorf("初始化 HTTP 接口失败: %w", err)
	}
	logger.Infof("✓ HTTP 接口监听 %s", srv.Addr())
	return srv, nil
}

func absPath(p string) string {
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return p
}

// NewRuntime 供不需要 HTTP 的命令使用。
func NewRuntime(ctx context.Context, cfg *config.Config, opts ...AppBuilderOption) (*Runtime, error) {
	return NewAppBuilder(cfg, opts...).BuildRuntime(ctx)
}
