package agents

import (
	"context"
	"fmt"
	"strings"

	"kabupilot/internal/agent"
	"kabupilot/internal/tools"
)

const researchBase = 0.5

// Scorer 是可选的模型打分器，结果与启发式分数取平均。
type Scorer interface {
	Score(ctx context.Context, symbol string, headlines, chatter []string) (float64, string, error)
}

// Researcher 对单个代码打分。
type Researcher struct {
	search tools.Searcher
	social tools.Social
	scorer Scorer
}

func NewResearcher(search tools.Searcher, social tools.Social, scorer Scorer) *Researcher {
	return &Researcher{search: search, social: social, scorer: scorer}
}

func (r *Researcher) Kind() agent.Kind { return agent.KindResearcher }

func (r *Researcher) Run(ctx context.Context, in agent.Payload, rec *agent.Recorder) (agent.Payload, error) {
	req, ok := in.(agent.ResearcherInput)
	if !ok {
		return nil, unexpectedInput(agent.KindResearcher, in)
	}
	meta := map[string]any{"symbol": req.Symbol}

	headlines, err := r.search.Query(ctx, req.Symbol)
	if err != nil {
		rec.Fail("internet-search", err.Error(), meta)
	} else {
		rec.Log("internet-search", fmt.Sprintf("Collected %d headlines", len(headlines)), meta)
	}
	chatter, err := r.social.Query(ctx, req.Symbol)
	if err != nil {
		rec.Fail("social-check", err.Error(), meta)
	} else {
		rec.Log("social-check", strings.Join(chatter, " | "), meta)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	score := HeuristicScore(headlines, chatter)
	rationale := fmt.Sprintf("Score derived from qualitative signals; base score %.2f.", score)

	if r.scorer != nil {
		ms, why, err := r.scorer.Score(ctx, req.Symbol, headlines, chatter)
		if err != nil {
			rec.Fail("model-score", err.Error(), meta)
		} else {
			score = clamp01((score + ms) / 2)
			rationale = fmt.Sprintf("%s Model score %.2f: %s", rationale, ms, why)
			rec.Log("model-score", why, map[string]any{"symbol": req.Symbol, "score": ms})
		}
	}
	return agent.ResearcherOutput{Score: agent.ResearchScore{
		Symbol:    req.Symbol,
		Score:     score,
		Rationale: rationale,
	}}, nil
}

// HeuristicScore: 基础 0.5，标题含 upgrade +0.2 / downgrade −0.2，
// 舆情含 positive +0.1 / negative −0.1，结果截断到 [0,1]。
func HeuristicScore(headlines, chatter []string) float64 {
	score := researchBase
	if containsAny(headlines, "upgrade") {
		score += 0.2
	}
	if containsAny(headlines, "downgrade") {
		score -= 0.2
	}
	if containsAny(chatter, "positive") {
		score += 0.1
	}
	if containsAny(chatter, "negative") {
		score -= 0.1
	}
	return clamp01(score)
}

func containsAny(lines []string, word string) bool {
	for _, l := range lines {
		if strings.Contains(strings.ToLower(l), word) {
			return true
		}
	}
	return false
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	// 避免 0.7000000000000001 这类浮点尾数
	return float64(int64(v*1e6+0.5)) / 1e6
}
