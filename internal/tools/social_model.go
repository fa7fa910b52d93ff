package tools

import (
	"context"
	"fmt"
	"strings"

	"kabupilot/internal/gateway/provider"
	"kabupilot/internal/pkg/jsonutil"
	"kabupilot/internal/pkg/text"
)

const maxPostRunes = 200

const socialSystemPrompt = `You summarise what retail traders are saying on social media about a listed company.
Reply with JSON only: {"posts": ["<one-line summary>", ...]} with at most 5 entries.
Use words like positive, negative, upgrade or downgrade when the tone is clear.`

// ModelSocial 通过聊天模型（如 xAI Grok）获取舆情摘要。
type ModelSocial struct {
	model provider.ModelProvider
}

func NewModelSocial(model provider.ModelProvider) *ModelSocial {
	return &ModelSocial{model: model}
}

func (s *ModelSocial) Query(ctx context.Context, symbol string) ([]string, error) {
	q := strings.TrimSpace(symbol)
	if q == "" {
		return nil, nil
	}
	if s.model == nil || !s.model.Enabled() {
		return nil, fmt.Errorf("social model not configured")
	}
	raw, err := s.model.Call(ctx, provider.ChatPayload{
		System:     socialSystemPrompt,
		User:       fmt.Sprintf("Ticker: %s", q),
		ExpectJSON: true,
		MaxTokens:  400,
		Purpose:    "social",
	})
	if err != nil {
		return nil, err
	}
	obj, ok := jsonutil.ExtractObject(raw)
	if !ok {
		return nil, fmt.Errorf("social model returned no JSON object")
	}
	var out []string
	for _, p := range obj.Get("posts").Array() {
		if line := strings.TrimSpace(p.String()); line != "" {
			out = append(out, text.Truncate(line, maxPostRunes))
		}
	}
	return out, nil
}
