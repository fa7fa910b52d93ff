package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// 环境变量覆盖，优先级高于配置文件。
var envBindings = map[string]string{
	"storage.db_path":       "KABUPILOT_DB_PATH",
	"storage.knowledge_dir": "KABUPILOT_KNOWLEDGE_DIR",
	"market.default":        "KABUPILOT_MARKET",
	"app.log_level":         "KABUPILOT_LOG_LEVEL",
	"app.http_addr":         "KABUPILOT_HTTP_ADDR",
}

// Load 读取 YAML 配置（支持 include 链），应用默认值并校验。
// path 为空时只使用默认值与环境变量。
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	if strings.TrimSpace(path) != "" {
		files, err := resolveConfigIncludes(path)
		if err != nil {
			return nil, err
		}
		for _, file := range files {
			if err := mergeConfigFile(v, file); err != nil {
				return nil, fmt.Errorf("reading config file failed (%s): %w", file, err)
			}
		}
	}
	for key, env := range envBindings {
		if val, ok := os.LookupEnv(env); ok && strings.TrimSpace(val) != "" {
			v.Set(key, val)
		}
	}
	return decode(v)
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "toml"
		dc.WeaklyTypedInput = true
	}); err != nil {
		return nil, fmt.Errorf("parsing config failed: %w", err)
	}
	setKeys := make(keySet)
	flattenConfigKeys("", v.AllSettings(), setKeys)
	cfg.applyDefaults(setKeys)
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func mergeConfigFile(v *viper.Viper, path string) error {
	tmp := viper.New()
	tmp.SetConfigFile(path)
	if err := tmp.ReadInConfig(); err != nil {
		return err
	}
	return v.MergeConfigMap(tmp.AllSettings())
}

// resolveConfigIncludes 按依赖顺序返回文件列表，被 include 的文件在前。
func resolveConfigIncludes(path string) ([]string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	var (
		ordered []string
		done    = make(map[string]bool)
		visit   func(p string, stack []string) error
	)
	visit = func(p string, stack []string) error {
		p = filepath.Clean(p)
		for _, s := range stack {
			if s == p {
				return fmt.Errorf("include cycle detected: %s", p)
			}
		}
		if done[p] {
			return nil
		}
		tmp := viper.New()
		tmp.SetConfigFile(p)
		if err := tmp.ReadInConfig(); err != nil {
			return err
		}
		for _, inc := range tmp.GetStringSlice("include") {
			inc = strings.TrimSpace(inc)
			if inc == "" {
				continue
			}
			if !filepath.IsAbs(inc) {
				inc = filepath.Join(filepath.Dir(p), inc)
			}
			if err := visit(inc, append(stack, p)); err != nil {
				return err
			}
		}
		done[p] = true
		ordered = append(ordered, p)
		return nil
	}
	if err := visit(abs, nil); err != nil {
		return nil, err
	}
	return ordered, nil
}

func flattenConfigKeys(prefix string, node any, dest keySet) {
	switch val := node.(type) {
	case map[string]any:
		for k, v := range val {
			next := strings.ToLower(strings.TrimSpace(k))
			if next == "" {
				continue
			}
			if prefix != "" {
				next = prefix + "." + next
			}
			flattenConfigKeys(next, v, dest)
		}
	default:
		dest.mark(prefix)
	}
}
