package app

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"kabupilot/internal/agent"
	"kabupilot/internal/agent/agents"
	"kabupilot/internal/config"
	"kabupilot/internal/gateway/provider"
	"kabupilot/internal/logger"
	"kabupilot/internal/tools"
)

type toolset struct {
	search     tools.Searcher
	social     tools.Social
	scorer     agents.Scorer
	searchName string
	socialName string
	scorerName string
	// agentModels 是 planner/explorer/decider/checker 的可选模型，缺失时只走启发式。
	agentModels map[agent.Kind]provider.ModelProvider
}

func buildModelProviders(cfg config.AIConfig) (map[string]provider.ModelProvider, error) {
	if !cfg.Enabled {
		return map[string]provider.ModelProvider{}, nil
	}
	models, err := cfg.ResolveModelConfigs()
	if err != nil {
		return nil, fmt.Errorf("解析模型配置失败: %w", err)
	}
	providers := provider.BuildProviders(models, time.Duration(cfg.TimeoutSeconds)*time.Second)
	ids := make([]string, 0, len(providers))
	for id := range providers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	logger.Infof("✓ 已启用模型: %v", ids)
	return providers, nil
}

// buildTools 按配置选择搜索、舆情与打分实现；模型缺失时退回 stub 并告警。
func buildTools(cfg config.ToolsConfig, ai config.AIConfig, providers map[string]provider.ModelProvider) (*toolset, error) {
	ts := &toolset{
		search:     tools.StubSearch{},
		social:     tools.StubSocial{},
		searchName: "stub",
		socialName: "stub",
		scorerName: "heuristic",
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Search)) {
	case "", "stub":
	case "google_news":
		ts.search = tools.NewGuardedSearch(tools.NewGoogleNews(cfg.NewsLanguage, cfg.Timeout()), newBreaker("google_news", cfg))
		ts.searchName = "google_news(" + cfg.NewsLanguage + ")"
	default:
		return nil, fmt.Errorf("unsupported tools.search %q", cfg.Search)
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Social)) {
	case "", "stub":
	case "model":
		p, ok := lookupProvider(providers, ai.SocialModel)
		if !ok {
			logger.Warnf("tools.social=model 但模型 %q 不可用，使用 stub", ai.SocialModel)
			break
		}
		ts.social = tools.NewGuardedSocial(tools.NewModelSocial(p), newBreaker("social_model", cfg))
		ts.socialName = "model(" + p.ID() + ")"
	default:
		return nil, fmt.Errorf("unsupported tools.social %q", cfg.Social)
	}
	if ai.Enabled && strings.TrimSpace(ai.ResearcherModel) != "" {
		if p, ok := lookupProvider(providers, ai.ResearcherModel); ok {
			ts.scorer = agents.NewModelScorer(p)
			ts.scorerName = "heuristic+model(" + p.ID() + ")"
		} else {
			logger.Warnf("researcher 模型 %q 不可用，只使用启发式打分", ai.ResearcherModel)
		}
	}
	ts.agentModels = agentModels(ai, providers)
	return ts, nil
}

func agentModels(ai config.AIConfig, providers map[string]provider.ModelProvider) map[agent.Kind]provider.ModelProvider {
	out := make(map[agent.Kind]provider.ModelProvider)
	if !ai.Enabled {
		return out
	}
	for kind, id := range map[agent.Kind]string{
		agent.KindPlanner:  ai.PlannerModel,
		agent.KindExplorer: ai.ExplorerModel,
		agent.KindDecider:  ai.DeciderModel,
		agent.KindChecker:  ai.CheckerModel,
	} {
		if strings.TrimSpace(id) == "" {
			continue
		}
		p, ok := lookupProvider(providers, id)
		if !ok {
			logger.Warnf("%s 模型 %q 不可用，只使用启发式逻辑", kind, id)
			continue
		}
		out[kind] = p
	}
	return out
}

// agentModelNames 供启动摘要展示，形如 planner=gpt。
func (ts *toolset) agentModelNames() []string {
	names := make([]string, 0, len(ts.agentModels))
	for kind, p := range ts.agentModels {
		names = append(names, string(kind)+"="+p.ID())
	}
	sort.Strings(names)
	return names
}

func lookupProvider(providers map[string]provider.ModelProvider, id string) (provider.ModelProvider, bool) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, false
	}
	p, ok := providers[id]
	if !ok || p == nil || !p.Enabled() {
		return nil, false
	}
	return p, true
}
