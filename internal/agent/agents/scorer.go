package agents

import (
	"context"
	"fmt"
	"strings"

	"kabupilot/internal/gateway/provider"
	"kabupilot/internal/pkg/text"
)

const maxRationaleRunes = 240

const scorerSystemPrompt = `You are an equity research assistant.
Given recent headlines and social chatter for one ticker, rate the short-term outlook.
Reply with JSON only: {"score": <number between 0 and 1>, "rationale": "<one sentence>"}.`

// ModelScorer 通过聊天模型给代码打分。
type ModelScorer struct {
	model provider.ModelProvider
}

func NewModelScorer(model provider.ModelProvider) *ModelScorer {
	return &ModelScorer{model: model}
}

func (s *ModelScorer) Score(ctx context.Context, symbol string, headlines, chatter []string) (float64, string, error) {
	if s.model == nil || !s.model.Enabled() {
		return 0, "", fmt.Errorf("researcher model not configured")
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Ticker: %s\n\nHeadlines:\n", symbol)
	for _, h := range headlines {
		fmt.Fprintf(&b, "- %s\n", h)
	}
	b.WriteString("\nSocial chatter:\n")
	for _, c := range chatter {
		fmt.Fprintf(&b, "- %s\n", c)
	}
	obj, err := callModel(ctx, s.model, "researcher", scorerSystemPrompt, b.String(), 300)
	if err != nil {
		return 0, "", err
	}
	score := obj.Get("score")
	if !score.Exists() {
		return 0, "", fmt.Errorf("model reply missing score")
	}
	return clamp01(score.Float()), text.Truncate(strings.TrimSpace(obj.Get("rationale").String()), maxRationaleRunes), nil
}
