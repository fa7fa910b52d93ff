// Package cli 实现 kabupilot 命令行。每个命令把 JSON 结果写到 stdout，日志走 stderr。
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"kabupilot/internal/app"
	"kabupilot/internal/config"
	"kabupilot/internal/logger"
	"kabupilot/internal/transport/payload"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

const envConfigPath = "KABUPILOT_CONFIG"

// 退出码：1 运行失败，2 输入结构错误，3 已有交易日在运行。
const (
	exitFailure    = 1
	exitStructural = 2
	exitBusy       = 3
)

type env struct {
	configPath string
	logLevel   string
	cfg        *config.Config
	stdout     io.Writer
	opts       []app.AppBuilderOption
}

// NewRootCmd 构建根命令。opts 透传给运行时构建器，测试用。
func NewRootCmd(stdout io.Writer, opts ...app.AppBuilderOption) *cobra.Command {
	e := &env{stdout: stdout, opts: opts}
	root := &cobra.Command{
		Use:           "kabupilot",
		Short:         "kabupilot - multi-agent paper portfolio pipeline",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return e.load()
		},
	}
	root.PersistentFlags().StringVar(&e.configPath, "config", os.Getenv(envConfigPath), "config file path (env "+envConfigPath+")")
	root.PersistentFlags().StringVar(&e.logLevel, "log-level", "", "override app.log_level")

	root.AddCommand(
		newInitDBCmd(e),
		newShowPortfolioCmd(e),
		newPlanWeekCmd(e),
		newRunDayCmd(e),
		newReviewDayCmd(e),
		newDailyCycleCmd(e),
		newSetMarketCmd(e),
		newKnowledgeCmd(e),
		newActivityCmd(e),
		newServeCmd(e),
	)
	return root
}

// load 先读 .env，再加载配置文件；未指定文件时只用默认值与环境变量。
func (e *env) load() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Warnf("读取 .env 失败: %v", err)
	}
	if e.configPath == "" {
		e.configPath = os.Getenv(envConfigPath)
	}
	cfg, err := config.Load(e.configPath)
	if err != nil {
		return err
	}
	if lvl := strings.TrimSpace(e.logLevel); lvl != "" {
		cfg.App.LogLevel = lvl
	}
	logger.SetLevel(cfg.App.LogLevel)
	e.cfg = cfg
	return nil
}

// withRuntime 构建运行时，执行 fn 后释放。
func (e *env) withRuntime(ctx context.Context, fn func(*app.Runtime) error) error {
	rt, err := app.NewRuntime(ctx, e.cfg, e.opts...)
	if err != nil {
		return err
	}
	defer rt.Close()
	return fn(rt)
}

// Execute 运行命令并返回进程退出码。
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer, opts ...app.AppBuilderOption) int {
	root := NewRootCmd(stdout, opts...)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	err := root.ExecuteContext(ctx)
	if err == nil {
		return 0
	}
	var reported *reportedError
	if !errors.As(err, &reported) {
		_ = writeJSON(stdout, payload.NewErrorBody(err, nil))
	}
	fmt.Fprintf(stderr, "kabupilot: %v\n", err)
	return exitCode(err)
}

func exitCode(err error) int {
	switch {
	case payload.IsStructural(err):
		return exitStructural
	case payload.IsBusy(err):
		return exitBusy
	default:
		return exitFailure
	}
}
