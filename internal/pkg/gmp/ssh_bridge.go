package gmp

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// SSHOptions 远程主机连接参数
type SSHOptions struct {
	Address        string        // host:port
	Username       string        // 登录用户
	Password       string        // 登录密码
	KeyFile        string        // 私钥文件
	KnownHostsFile string        // known_hosts 文件，为空时不校验主机指纹
	DialTimeout    time.Duration // 连接超时
}

// SSHBridge 通过 SSH 在扫描器主机上执行 gvm-cli
// gvmd 的 unix socket 只在扫描器主机可达时使用
type SSHBridge struct {
	opts      BridgeOptions
	sshOpts   SSHOptions
	clientCfg *ssh.ClientConfig

	mu     sync.Mutex
	client *ssh.Client
}

// NewSSHBridge 创建远程桥接，私钥/known_hosts 在此处加载
func NewSSHBridge(opts BridgeOptions, sshOpts SSHOptions) (*SSHBridge, error) {
	if opts.Binary == "" {
		opts.Binary = "gvm-cli"
	}

	var auths []ssh.AuthMethod
	if sshOpts.KeyFile != "" {
		key, err := os.ReadFile(sshOpts.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("read ssh key: %w", err)
		}
		signer, err := ssh.ParsePrivateKey(key)
		if err != nil {
			return nil, fmt.Errorf("parse ssh key: %w", err)
		}
		auths = append(auths, ssh.PublicKeys(signer))
	}
	if sshOpts.Password != "" {
		auths = append(auths, ssh.Password(sshOpts.Password))
	}
	if len(auths) == 0 {
		return nil, fmt.Errorf("ssh bridge requires a password or key file")
	}

	hostKeyCallback := ssh.InsecureIgnoreHostKey()
	if sshOpts.KnownHostsFile != "" {
		cb, err := knownhosts.New(sshOpts.KnownHostsFile)
		if err != nil {
			return nil, fmt.Errorf("load known_hosts: %w", err)
		}
		hostKeyCallback = cb
	}

	timeout := sshOpts.DialTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &SSHBridge{
		opts:    opts,
		sshOpts: sshOpts,
		clientCfg: &ssh.ClientConfig{
			User:            sshOpts.Username,
			Auth:            auths,
			HostKeyCallback: hostKeyCallback,
			Timeout:         timeout,
		},
	}, nil
}

// Run 在远程主机执行 gvm-cli
// 连接复用；会话失败时丢弃连接，下一次调用重新拨号
func (b *SSHBridge) Run(ctx context.Context, xmlCommand string) ([]byte, error) {
	if b.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.opts.Timeout)
		defer cancel()
	}

	client, err := b.connect(ctx)
	if err != nil {
		return nil, err
	}

	session, err := client.NewSession()
	if err != nil {
		b.reset(client)
		return nil, fmt.Errorf("open ssh session: %w", err)
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	done := make(chan error, 1)
	go func() {
		done <- session.Run(b.commandLine(xmlCommand))
	}()

	select {
	case <-ctx.Done():
		_ = session.Signal(ssh.SIGKILL)
		_ = session.Close()
		return nil, ctx.Err()
	case err := <-done:
		if err != nil {
			if exitErr, ok := err.(*ssh.ExitError); ok {
				return nil, fmt.Errorf("remote %s exited with code %d: %s", b.opts.Binary, exitErr.ExitStatus(), strings.TrimSpace(stderr.String()))
			}
			b.reset(client)
			return nil, fmt.Errorf("run remote %s: %w", b.opts.Binary, err)
		}
	}
	return stdout.Bytes(), nil
}

// Close 关闭底层连接
func (b *SSHBridge) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.client == nil {
		return nil
	}
	err := b.client.Close()
	b.client = nil
	return err
}

func (b *SSHBridge) connect(ctx context.Context) (*ssh.Client, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.client != nil {
		return b.client, nil
	}

	dialer := net.Dialer{Timeout: b.clientCfg.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", b.sshOpts.Address)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", b.sshOpts.Address, err)
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(conn, b.sshOpts.Address, b.clientCfg)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("ssh handshake with %s: %w", b.sshOpts.Address, err)
	}

	b.client = ssh.NewClient(sshConn, chans, reqs)
	return b.client, nil
}

func (b *SSHBridge) reset(client *ssh.Client) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.client == client {
		_ = b.client.Close()
		b.client = nil
	}
}

func (b *SSHBridge) commandLine(xmlCommand string) string {
	parts := append([]string{b.opts.Binary}, b.opts.Args(xmlCommand)...)
	for i, p := range parts {
		parts[i] = shellQuote(p)
	}
	return strings.Join(parts, " ")
}

// shellQuote 单引号包裹，内部单引号转义为 '\”
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
