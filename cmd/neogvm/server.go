/*
 * @author: sun977
 * @date: 2025.11.10
 * @description: Server 模式子命令
 */

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"neogvm/internal/app/neogvm"
	"neogvm/internal/config"
	"neogvm/internal/pkg/logger"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var noScheduler bool

// serverCmd represents the server command
var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "启动 HTTP API 与流水线调度器",
	Long: `以守护进程方式启动服务：各流水线阶段按配置的间隔独立调度，同时提供 HTTP API。
收到 SIGINT/SIGTERM 后停止调度、等待进行中的请求并退出。

示例:
  neogvm server --config ./configs --env production
  neogvm server --no-scheduler`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadRuntime()
		if err != nil {
			return err
		}
		if noScheduler {
			cfg.App.Scheduler = false
		}
		return runServer(cfg)
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)
	serverCmd.Flags().BoolVar(&noScheduler, "no-scheduler", false, "只提供 HTTP API，不启动调度器")
}

func runServer(cfg *config.Config) error {
	app, err := neogvm.NewApp(cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	// 配置热更新只用于调整日志级别
	if watcher, err := config.NewConfigWatcher(cfgPath, cfgEnv); err == nil {
		watcher.AddCallback(logger.ReloadCallback)
		watcher.OnError(func(err error) {
			logger.LogSystemEvent("config", "reload_failed", err.Error(), logrus.WarnLevel, nil)
		})
		if err := watcher.Start(); err != nil {
			logger.LogSystemEvent("config", "watch_failed", err.Error(), logrus.WarnLevel, nil)
		} else {
			defer watcher.Stop()
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.Run(ctx); err != nil {
		return err
	}
	logger.LogSystemEvent("server", "exited", "", logrus.InfoLevel, nil)
	return nil
}
