package provider

import (
	"time"

	"kabupilot/internal/config"
)

// BuildProviders 为所有启用的模型构建 provider，按 ID 索引。
func BuildProviders(models []config.ResolvedModelConfig, timeout time.Duration) map[string]ModelProvider {
	out := make(map[string]ModelProvider, len(models))
	for _, m := range models {
		if !m.Enabled {
			continue
		}
		client := &OpenAIChatClient{
			BaseURL:      m.APIURL,
			APIKey:       m.APIKey,
			Model:        m.Model,
			Timeout:      timeout,
			ExtraHeaders: m.Headers,
		}
		out[m.ID] = NewOpenAIModelProvider(m.ID, true, client)
	}
	return out
}
