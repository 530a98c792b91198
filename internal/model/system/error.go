/**
 * 模型:错误定义
 * @author: sun977
 * @date: 2025.11.04
 * @description: 流水线错误分类与带上下文的错误类型
 * @func: 错误哨兵常量、PipelineError 及构造函数
 */
package system

import (
	"errors"
	"fmt"
)

// 错误分类哨兵，配合 errors.Is 使用
var (
	// ErrUpstream 桥接进程失败或扫描管理器返回非成功状态，本轮放弃，下轮重试
	ErrUpstream = errors.New("upstream error")
	// ErrMalformedResponse 扫描管理器返回结构不符合预期，按空结果处理
	ErrMalformedResponse = errors.New("malformed response")
	// ErrExtraction 单个文件或记录解析失败，跳过该单元
	ErrExtraction = errors.New("extraction error")
	// ErrPersistence 文件系统/索引写入失败
	ErrPersistence = errors.New("persistence error")
	// ErrNotFound 请求的制品不存在
	ErrNotFound = errors.New("not found")
	// ErrUnknownStage 未注册的流水线阶段
	ErrUnknownStage = errors.New("unknown pipeline stage")
)

// PipelineError 携带分类、操作名和对象的错误
type PipelineError struct {
	Kind   error  // 错误分类，取值为上面的哨兵
	Op     string // 操作名，如 get_reports、write_artifact
	Target string // 操作对象，如 report id、文件名
	Err    error  // 底层错误
}

// Error 实现error接口
func (e *PipelineError) Error() string {
	msg := e.Kind.Error() + ": " + e.Op
	if e.Target != "" {
		msg += " [" + e.Target + "]"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap 返回底层错误
func (e *PipelineError) Unwrap() error {
	return e.Err
}

// Is 让 errors.Is(err, ErrUpstream) 之类的判断按分类匹配
func (e *PipelineError) Is(target error) bool {
	return target == e.Kind
}

func newError(kind error, op, target string, err error) *PipelineError {
	return &PipelineError{Kind: kind, Op: op, Target: target, Err: err}
}

// NewUpstreamError 创建上游错误
func NewUpstreamError(op string, err error) error {
	return newError(ErrUpstream, op, "", err)
}

// NewMalformedError 创建响应结构错误
func NewMalformedError(op, format string, args ...interface{}) error {
	return newError(ErrMalformedResponse, op, "", fmt.Errorf(format, args...))
}

// NewExtractionError 创建解析错误
func NewExtractionError(op, target string, err error) error {
	return newError(ErrExtraction, op, target, err)
}

// NewPersistenceError 创建持久化错误
func NewPersistenceError(op, target string, err error) error {
	return newError(ErrPersistence, op, target, err)
}

// Kind 返回错误分类字符串，供日志与指标标签使用
func Kind(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, ErrUpstream):
		return "upstream"
	case errors.Is(err, ErrMalformedResponse):
		return "malformed"
	case errors.Is(err, ErrExtraction):
		return "extraction"
	case errors.Is(err, ErrPersistence):
		return "persistence"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	default:
		return "internal"
	}
}
