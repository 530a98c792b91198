package logger

import (
	"io"
	"os"
	"path/filepath"
	"sync"

	"neogvm/internal/config"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// FileHook 按日志 type 字段把日志写入不同的滚动文件
type FileHook struct {
	logConfig *config.LogConfig
	writers   map[string]io.Writer
	formatter logrus.Formatter
	mutex     sync.Mutex
}

// NewFileHook 创建一个新的FileHook实例
func NewFileHook(logConfig *config.LogConfig) *FileHook {
	hook := &FileHook{
		logConfig: logConfig,
		writers:   make(map[string]io.Writer),
		formatter: newJSONFormatter(),
	}
	if logConfig.FilePath != "" {
		hook.writers["default"] = hook.newWriter(logConfig.FilePath)
	}
	return hook
}

// Levels 返回此Hook关心的所有日志级别
func (hook *FileHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

// Fire 在日志触发时执行
func (hook *FileHook) Fire(entry *logrus.Entry) error {
	logType := "default"
	switch t := entry.Data["type"].(type) {
	case LogType:
		logType = string(t)
	case string:
		logType = t
	}

	formatted, err := hook.formatter.Format(entry)
	if err != nil {
		return err
	}

	hook.mutex.Lock()
	defer hook.mutex.Unlock()

	writer := hook.writerFor(logType)
	if writer == nil {
		return nil
	}
	_, err = writer.Write(formatted)
	return err
}

// writerFor 获取指定类型的writer，调用方持有锁
func (hook *FileHook) writerFor(logType string) io.Writer {
	if writer, ok := hook.writers[logType]; ok {
		return writer
	}

	var name string
	switch LogType(logType) {
	case AccessLog, ErrorLog, SystemLog, PipelineLog, AuditLog:
		name = logType + ".log"
	default:
		return hook.writers["default"]
	}

	writer := hook.newWriter(filepath.Join(filepath.Dir(hook.logConfig.FilePath), name))
	hook.writers[logType] = writer
	return writer
}

func (hook *FileHook) newWriter(filename string) io.Writer {
	_ = os.MkdirAll(filepath.Dir(filename), 0755)
	return &lumberjack.Logger{
		Filename:   filename,
		MaxSize:    hook.logConfig.MaxSize,
		MaxBackups: hook.logConfig.MaxBackups,
		MaxAge:     hook.logConfig.MaxAge,
		Compress:   hook.logConfig.Compress,
	}
}
