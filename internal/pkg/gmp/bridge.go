package gmp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// BridgeRunner 把一条 GMP 命令交给桥接进程执行并返回原始输出
type BridgeRunner interface {
	Run(ctx context.Context, xmlCommand string) ([]byte, error)
}

// BridgeOptions gvm-cli 调用参数
type BridgeOptions struct {
	Binary     string        // gvm-cli 可执行文件
	Username   string        // GMP 用户名
	Password   string        // GMP 密码
	SocketPath string        // gvmd socket 路径
	Timeout    time.Duration // 单条命令超时，0 表示不限制
}

// Args 构造 gvm-cli 参数列表
func (o BridgeOptions) Args(xmlCommand string) []string {
	return []string{
		"--gmp-username", o.Username,
		"--gmp-password", o.Password,
		"socket",
		"--socketpath", o.SocketPath,
		"--xml", xmlCommand,
	}
}

// ExecBridge 在本机执行 gvm-cli
type ExecBridge struct {
	opts BridgeOptions
}

// NewExecBridge 创建本机桥接
func NewExecBridge(opts BridgeOptions) *ExecBridge {
	if opts.Binary == "" {
		opts.Binary = "gvm-cli"
	}
	return &ExecBridge{opts: opts}
}

// Run 执行命令，非零退出码时把 stderr 带进错误信息
func (b *ExecBridge) Run(ctx context.Context, xmlCommand string) ([]byte, error) {
	if b.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.opts.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, b.opts.Binary, b.opts.Args(xmlCommand)...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	out, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, fmt.Errorf("%s exited with code %d: %s", b.opts.Binary, exitErr.ExitCode(), strings.TrimSpace(stderr.String()))
		}
		return nil, fmt.Errorf("run %s: %w", b.opts.Binary, err)
	}
	return out, nil
}
