package config

import (
	"fmt"
	"strings"

	"kabupilot/internal/logger"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Watch 监听配置文件，文件写入后重新 Load，成功才回调 onChange。
// 加载失败时保留旧配置，只记录错误。
func Watch(path string, onChange func(*Config)) error {
	if strings.TrimSpace(path) == "" {
		return fmt.Errorf("config path cannot be empty")
	}
	if onChange == nil {
		return nil
	}
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("watch config failed (%s): %w", path, err)
	}
	v.OnConfigChange(func(evt fsnotify.Event) {
		if !evt.Has(fsnotify.Write) && !evt.Has(fsnotify.Create) {
			return
		}
		cfg, err := Load(path)
		if err != nil {
			logger.Errorf("配置热加载失败 (%s): %v", evt.Name, err)
			return
		}
		logger.Infof("配置已重新加载: %s", evt.Name)
		onChange(cfg)
	})
	v.WatchConfig()
	return nil
}
