/*
 * @author: sun977
 * @date: 2025.11.10
 * @description: Cobra Root Command 定义
 */

package main

import (
	"fmt"
	"os"

	"neogvm/internal/config"
	"neogvm/internal/pkg/logger"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

var (
	cfgPath  string
	cfgEnv   string
	logLevel string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "neogvm",
	Short: "NeoGVM 漏洞报告入库服务",
	Long: `NeoGVM 周期性地从 Greenbone gvmd 拉取扫描报告，解析为扁平的漏洞记录并写入检索索引。

示例:
  1.启动服务模式(HTTP API + 调度器)
	neogvm server --config ./configs
  2.手动执行一个阶段
	neogvm run fetch
	neogvm run all --log-level debug
  3.签发 API 令牌
	neogvm token --subject ops --scope pipeline
`,
	SilenceUsage: true,
}

// Execute 执行根命令
func Execute() {
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "\n[FATAL] neogvm crashed unexpectedly: %v\n", r)
			os.Exit(1)
		}
	}()

	if err := rootCmd.Execute(); err != nil {
		pterm.Error.Println(err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "配置文件目录 (默认: ./configs 或 $NEOGVM_CONFIG_PATH)")
	rootCmd.PersistentFlags().StringVar(&cfgEnv, "env", "", "运行环境 (development, test, production)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "日志级别 (debug, info, warn, error)")
}

// loadRuntime 加载配置并初始化日志，--log-level 优先于配置文件
func loadRuntime() (*config.Config, error) {
	cfg, err := config.LoadConfig(cfgPath, cfgEnv)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if _, err := logger.InitLogger(&cfg.Log); err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	if cfg.Log.Level == "debug" {
		pterm.EnableDebugMessages()
	}
	return cfg, nil
}
