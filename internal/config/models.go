package config

import (
	"fmt"
	"os"
	"strings"
)

// ResolveModelConfigs 合并 preset 与模型条目，api_key 支持 ${ENV} 形式。
func (a AIConfig) ResolveModelConfigs() ([]ResolvedModelConfig, error) {
	out := make([]ResolvedModelConfig, 0, len(a.Models))
	for i, m := range a.Models {
		res := ResolvedModelConfig{
			ID:       strings.TrimSpace(m.ID),
			Provider: strings.TrimSpace(m.Provider),
			Enabled:  m.Enabled,
			APIURL:   strings.TrimSpace(m.APIURL),
			APIKey:   m.APIKey,
			Model:    strings.TrimSpace(m.Model),
			Headers:  map[string]string{},
		}
		if name := strings.TrimSpace(m.Preset); name != "" {
			preset, ok := a.ProviderPresets[name]
			if !ok {
				return nil, fmt.Errorf("ai.models[%d] references unknown preset %q", i, name)
			}
			if res.APIURL == "" {
				res.APIURL = preset.APIURL
			}
			if res.APIKey == "" {
				res.APIKey = preset.APIKey
			}
			for k, v := range preset.Headers {
				res.Headers[k] = v
			}
		}
		for k, v := range m.Headers {
			res.Headers[k] = v
		}
		res.APIKey = os.ExpandEnv(strings.TrimSpace(res.APIKey))
		if res.ID == "" {
			base := res.Provider
			if base == "" {
				base = "model"
			}
			res.ID = base + ":" + res.Model
		}
		out = append(out, res)
	}
	return out, nil
}

// ModelByID 返回指定 ID 的已启用模型。
func (a AIConfig) ModelByID(id string) (ResolvedModelConfig, bool) {
	models, err := a.ResolveModelConfigs()
	if err != nil {
		return ResolvedModelConfig{}, false
	}
	for _, m := range models {
		if m.ID == id && m.Enabled {
			return m, true
		}
	}
	return ResolvedModelConfig{}, false
}
