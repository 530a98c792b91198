// 结构化日志辅助函数
package logger

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// LogType 日志类型枚举，FileHook 依据它分流到不同文件
type LogType string

const (
	// AccessLog 访问日志 - 记录HTTP请求
	AccessLog LogType = "access"
	// ErrorLog 错误日志 - 记录系统错误和异常
	ErrorLog LogType = "error"
	// SystemLog 系统日志 - 记录组件启停
	SystemLog LogType = "system"
	// PipelineLog 流水线日志 - 记录各阶段的执行情况
	PipelineLog LogType = "pipeline"
	// AuditLog 审计日志 - 记录触发扫描等写操作
	AuditLog LogType = "audit"
)

// FormatTimestamp 格式化时间戳为统一的毫秒精度格式
func FormatTimestamp(t time.Time) string {
	return t.Format(timestampFormat)
}

func mergeFields(fields logrus.Fields, extra map[string]interface{}) logrus.Fields {
	for k, v := range extra {
		fields[k] = v
	}
	return fields
}

// LogAccessRequest 记录HTTP访问日志
func LogAccessRequest(c *gin.Context, startTime time.Time, requestID, subject string) {
	lm := current()
	if lm == nil {
		return
	}

	lm.logger.WithFields(logrus.Fields{
		"type":          AccessLog,
		"method":        c.Request.Method,
		"path":          c.Request.URL.Path,
		"query":         c.Request.URL.RawQuery,
		"status_code":   c.Writer.Status(),
		"response_time": time.Since(startTime).Milliseconds(),
		"client_ip":     c.ClientIP(),
		"user_agent":    c.Request.UserAgent(),
		"subject":       subject,
		"request_id":    requestID,
		"request_size":  c.Request.ContentLength,
		"response_size": c.Writer.Size(),
	}).Info("HTTP request processed")
}

// LogInfo 记录带请求上下文的信息日志
func LogInfo(message, requestID, clientIP, path, method string, extraFields map[string]interface{}) {
	lm := current()
	if lm == nil {
		return
	}
	fields := mergeFields(logrus.Fields{
		"request_id": requestID,
		"client_ip":  clientIP,
		"path":       path,
		"method":     method,
	}, extraFields)
	lm.logger.WithFields(fields).Info(message)
}

// LogWarn 记录带请求上下文的警告日志
func LogWarn(message, requestID, clientIP, path, method string, extraFields map[string]interface{}) {
	lm := current()
	if lm == nil {
		return
	}
	fields := mergeFields(logrus.Fields{
		"request_id": requestID,
		"client_ip":  clientIP,
		"path":       path,
		"method":     method,
	}, extraFields)
	lm.logger.WithFields(fields).Warn(message)
}

// LogError 记录错误日志
func LogError(err error, requestID, clientIP, path, method string, extraFields map[string]interface{}) {
	lm := current()
	if lm == nil || err == nil {
		return
	}
	fields := mergeFields(logrus.Fields{
		"type":       ErrorLog,
		"error":      err.Error(),
		"request_id": requestID,
		"client_ip":  clientIP,
		"path":       path,
		"method":     method,
	}, extraFields)
	lm.logger.WithFields(fields).Errorf("System error occurred: %s", err.Error())
}

// LogStageEvent 记录流水线阶段事件
// level 为 warn/error 时 err 会写入 error 字段
func LogStageEvent(stage, event string, level logrus.Level, err error, extraFields map[string]interface{}) {
	lm := current()
	if lm == nil {
		return
	}
	fields := mergeFields(logrus.Fields{
		"type":  PipelineLog,
		"stage": stage,
		"event": event,
	}, extraFields)
	if err != nil {
		fields["error"] = err.Error()
	}
	lm.logger.WithFields(fields).Log(level, fmt.Sprintf("Pipeline stage %s: %s", stage, event))
}

// LogSystemEvent 记录系统事件日志，如组件启动、关闭
func LogSystemEvent(component, event, message string, level logrus.Level, extraFields map[string]interface{}) {
	lm := current()
	if lm == nil {
		return
	}
	fields := mergeFields(logrus.Fields{
		"type":      SystemLog,
		"component": component,
		"event":     event,
		"detail":    message,
	}, extraFields)
	lm.logger.WithFields(fields).Log(level, fmt.Sprintf("System event: %s - %s", component, event))
}

// LogAuditOperation 记录审计日志
func LogAuditOperation(subject, action, resource, result, clientIP, requestID string, extraFields map[string]interface{}) {
	lm := current()
	if lm == nil {
		return
	}
	fields := mergeFields(logrus.Fields{
		"type":       AuditLog,
		"subject":    subject,
		"action":     action,
		"resource":   resource,
		"result":     result,
		"client_ip":  clientIP,
		"request_id": requestID,
	}, extraFields)
	lm.logger.WithFields(fields).Info(fmt.Sprintf("Audit: %s performed %s on %s", subject, action, resource))
}
