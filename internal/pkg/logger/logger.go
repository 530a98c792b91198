/**
 * 日志管理器
 * @author: sun977
 * @date: 2025.11.04
 * @description: logrus 全局实例。控制台输出由 consoleWriter 决定，file 模式下由 FileHook 按日志类型分文件；
 *               运行时可通过配置监听器调整级别、格式与调用者信息，输出目标只在启动时确定。
 * @func: InitLogger、ReloadCallback、WithFields
 */
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"neogvm/internal/config"

	"github.com/sirupsen/logrus"
)

// 日志时间戳格式(毫秒精度，不带时区)
const timestampFormat = "2006-01-02 15:04:05.000"

// LoggerManager 日志管理器
type LoggerManager struct {
	mu     sync.Mutex
	logger *logrus.Logger
	config config.LogConfig
}

var instance atomic.Pointer[LoggerManager]

// current 返回全局实例，未初始化时为 nil
func current() *LoggerManager {
	return instance.Load()
}

// InitLogger 初始化并替换全局日志实例
func InitLogger(cfg *config.LogConfig) (*LoggerManager, error) {
	if cfg == nil {
		return nil, fmt.Errorf("log config cannot be nil")
	}

	formatter, err := buildFormatter(cfg.Format)
	if err != nil {
		return nil, fmt.Errorf("failed to set log formatter: %w", err)
	}

	l := logrus.New()
	l.SetFormatter(formatter)
	l.SetOutput(consoleWriter(cfg))
	l.SetReportCaller(cfg.Caller)

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
		l.Warnf("Invalid log level '%s', using 'info' as default", cfg.Level)
	}
	l.SetLevel(level)

	if cfg.Output == "file" {
		l.AddHook(NewFileHook(cfg))
	}

	lm := &LoggerManager{logger: l, config: *cfg}
	instance.Store(lm)
	return lm, nil
}

func buildFormatter(format string) (logrus.Formatter, error) {
	switch strings.ToLower(format) {
	case "json":
		return newJSONFormatter(), nil
	case "text":
		return &logrus.TextFormatter{TimestampFormat: timestampFormat, FullTimestamp: true}, nil
	}
	return nil, fmt.Errorf("unsupported log format: %s", format)
}

// newJSONFormatter 文件日志固定使用 JSON
func newJSONFormatter() *logrus.JSONFormatter {
	return &logrus.JSONFormatter{
		TimestampFormat: timestampFormat,
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyTime: "timestamp",
			logrus.FieldKeyMsg:  "message",
			logrus.FieldKeyFunc: "function",
		},
	}
}

// consoleWriter file 模式下主输出丢弃(debug 级别仍回显到 stdout)
func consoleWriter(cfg *config.LogConfig) io.Writer {
	switch cfg.Output {
	case "stderr":
		return os.Stderr
	case "file":
		if strings.EqualFold(cfg.Level, "debug") {
			return os.Stdout
		}
		return io.Discard
	}
	return os.Stdout
}

// GetLogger 获取logrus实例
func (lm *LoggerManager) GetLogger() *logrus.Logger {
	return lm.logger
}

// GetConfig 返回当前生效配置的副本
func (lm *LoggerManager) GetConfig() config.LogConfig {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	return lm.config
}

// UpdateConfig 运行时调整级别/格式/调用者信息，输出目标与文件路径保持不变
func (lm *LoggerManager) UpdateConfig(newCfg *config.LogConfig) error {
	if newCfg == nil {
		return fmt.Errorf("new config cannot be nil")
	}
	lm.mu.Lock()
	defer lm.mu.Unlock()

	old := lm.config
	if newCfg.Level != old.Level {
		level, err := logrus.ParseLevel(newCfg.Level)
		if err != nil {
			return fmt.Errorf("invalid log level: %w", err)
		}
		lm.logger.SetLevel(level)
		lm.config.Level = newCfg.Level
		lm.logger.Infof("Log level updated from %s to %s", old.Level, newCfg.Level)
	}
	if newCfg.Format != old.Format {
		formatter, err := buildFormatter(newCfg.Format)
		if err != nil {
			return fmt.Errorf("failed to update log formatter: %w", err)
		}
		lm.logger.SetFormatter(formatter)
		lm.config.Format = newCfg.Format
	}
	if newCfg.Caller != old.Caller {
		lm.logger.SetReportCaller(newCfg.Caller)
		lm.config.Caller = newCfg.Caller
	}
	return nil
}

// ReloadCallback 供配置监听器使用
func ReloadCallback(_, newConfig *config.Config) error {
	lm := current()
	if lm == nil || newConfig == nil {
		return nil
	}
	return lm.UpdateConfig(&newConfig.Log)
}

// entry 未初始化时落到 logrus 标准实例
func entry() *logrus.Entry {
	if lm := current(); lm != nil {
		return logrus.NewEntry(lm.logger)
	}
	return logrus.NewEntry(logrus.StandardLogger())
}

// Info 记录信息日志
func Info(args ...interface{}) {
	entry().Info(args...)
}

// WithFields 添加多个字段
func WithFields(fields logrus.Fields) *logrus.Entry {
	return entry().WithFields(fields)
}
