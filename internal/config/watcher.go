package config

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ReloadCallback 配置重载回调
type ReloadCallback func(oldConfig, newConfig *Config) error

// ConfigWatcher 监听配置目录，当前环境对应的配置文件变化后防抖重载并通知回调。
// 目录、桥接方式等结构性配置只在启动时读取，热加载只对日志级别这类参数有意义。
type ConfigWatcher struct {
	watcher    *fsnotify.Watcher
	configPath string
	env        string
	debounce   time.Duration

	mu        sync.Mutex
	callbacks []ReloadCallback
	onError   func(error)
	timer     *time.Timer

	stop chan struct{}
	done chan struct{}
}

// NewConfigWatcher 创建配置监听器
func NewConfigWatcher(configPath, env string) (*ConfigWatcher, error) {
	if configPath == "" {
		configPath = getDefaultConfigPath()
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	return &ConfigWatcher{
		watcher:    w,
		configPath: configPath,
		env:        env,
		debounce:   500 * time.Millisecond,
		onError:    func(error) {},
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}, nil
}

// AddCallback 注册重载回调
func (cw *ConfigWatcher) AddCallback(callback ReloadCallback) {
	cw.mu.Lock()
	defer cw.mu.Unlock()
	cw.callbacks = append(cw.callbacks, callback)
}

// OnError 设置监听/重载失败时的处理函数
func (cw *ConfigWatcher) OnError(fn func(error)) {
	cw.mu.Lock()
	defer cw.mu.Unlock()
	cw.onError = fn
}

// Start 开始监听配置目录
func (cw *ConfigWatcher) Start() error {
	if err := cw.watcher.Add(cw.configPath); err != nil {
		return fmt.Errorf("failed to watch config path %s: %w", cw.configPath, err)
	}
	go cw.loop()
	return nil
}

// Stop 停止监听并等待后台协程退出
func (cw *ConfigWatcher) Stop() error {
	close(cw.stop)
	err := cw.watcher.Close()
	<-cw.done

	cw.mu.Lock()
	if cw.timer != nil {
		cw.timer.Stop()
	}
	cw.mu.Unlock()
	return err
}

func (cw *ConfigWatcher) loop() {
	defer close(cw.done)
	for {
		select {
		case <-cw.stop:
			return
		case event, ok := <-cw.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 && cw.watches(event.Name) {
				cw.schedule()
			}
		case err, ok := <-cw.watcher.Errors:
			if !ok {
				return
			}
			cw.report(fmt.Errorf("config watcher: %w", err))
		}
	}
}

// watches 只关心当前环境实际加载的文件
func (cw *ConfigWatcher) watches(name string) bool {
	target := getConfigFileName(cw.configPath, cw.env)
	return filepath.Clean(name) == filepath.Clean(target)
}

// schedule 连续写入合并为一次重载
func (cw *ConfigWatcher) schedule() {
	cw.mu.Lock()
	defer cw.mu.Unlock()
	if cw.timer != nil {
		cw.timer.Stop()
	}
	cw.timer = time.AfterFunc(cw.debounce, cw.reload)
}

func (cw *ConfigWatcher) reload() {
	select {
	case <-cw.stop:
		return
	default:
	}

	old := GlobalConfig
	next, err := LoadConfig(cw.configPath, cw.env)
	if err != nil {
		cw.report(fmt.Errorf("failed to reload config: %w", err))
		return
	}

	cw.mu.Lock()
	callbacks := append([]ReloadCallback(nil), cw.callbacks...)
	cw.mu.Unlock()

	for _, cb := range callbacks {
		if err := cb(old, next); err != nil {
			cw.report(fmt.Errorf("config reload callback: %w", err))
		}
	}
}

func (cw *ConfigWatcher) report(err error) {
	cw.mu.Lock()
	fn := cw.onError
	cw.mu.Unlock()
	fn(err)
}
