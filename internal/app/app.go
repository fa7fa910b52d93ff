package app

import (
	"context"
	"fmt"
	"strings"

	"kabupilot/internal/config"
	"kabupilot/internal/logger"
	"kabupilot/internal/scheduler"
	apihttp "kabupilot/internal/transport/http/api"

	"golang.org/x/sync/errgroup"
)

// App 负责 serve 模式的编排：运行时、HTTP 接口、定时日循环与配置热加载。
type App struct {
	cfg        *config.Config
	configPath string
	runtime    *Runtime
	httpServer *apihttp.Server
	Summary    *StartupSummary
}

// NewApp 根据配置构建应用对象（不启动）。configPath 非空时 Run 会监听该文件。
func NewApp(cfg *config.Config, configPath string) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	logger.SetLevel(cfg.App.LogLevel)
	a, err := buildAppWithWire(context.Background(), cfg)
	if err != nil {
		return nil, err
	}
	a.configPath = strings.TrimSpace(configPath)
	return a, nil
}

func provideApp(cfg *config.Config, rt *Runtime, srv *apihttp.Server) *App {
	return &App{cfg: cfg, runtime: rt, httpServer: srv, Summary: rt.Summary}
}

// Run 启动 HTTP 服务直到 ctx 取消，退出时释放运行时。
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.cfg == nil || a.runtime == nil {
		return fmt.Errorf("app not initialized")
	}
	defer a.runtime.Close()

	if a.Summary != nil {
		a.Summary.Print()
	}
	if a.configPath != "" {
		if err := config.Watch(a.configPath, a.runtime.ApplyConfig); err != nil {
			logger.Warnf("配置热加载未启用: %v", err)
		} else {
			logger.Infof("✓ 监听配置变更: %s", a.configPath)
		}
	}

	var sched *scheduler.DailyScheduler
	if a.cfg.Schedule.Enabled {
		s, err := scheduler.NewDailyScheduler(a.cfg.Schedule.DailyCycleAt, a.cfg.Schedule.Timezone)
		if err != nil {
			return err
		}
		s.RunImmediately = a.cfg.Schedule.RunImmediately
		sched = s
	}

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		if err := a.httpServer.Start(ctx); err != nil {
			return fmt.Errorf("http server error: %w", err)
		}
		return nil
	})
	if sched != nil {
		group.Go(func() error {
			sched.Start(ctx, a.runtime.scheduledTask)
			return nil
		})
	}
	return group.Wait()
}

func (a *App) Runtime() *Runtime {
	if a == nil {
		return nil
	}
	return a.runtime
}

func (a *App) HTTPServer() *apihttp.Server {
	if a == nil {
		return nil
	}
	return a.httpServer
}

// Close 释放未经 Run 启动的应用。
func (a *App) Close() error {
	if a == nil {
		return nil
	}
	return a.runtime.Close()
}
