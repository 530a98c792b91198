package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalConfig = `
server:
  port: 8080
  mode: "test"
log:
  level: "debug"
  format: "text"
  output: "stdout"
pipeline:
  reports_dir: "/data/reports"
  detailed_reports_dir: "/data/detailed"
  intervals:
    fetch: 2m
`

func writeConfig(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
}

// TestLoadConfig 测试配置加载及默认值
func TestLoadConfig(t *testing.T) {
	tempDir := t.TempDir()
	writeConfig(t, tempDir, "config.yaml", minimalConfig)

	cfg, err := LoadConfig(tempDir, "development")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Log.Level)

	// 阶段周期: 显式配置覆盖默认值，其余保持默认
	assert.Equal(t, 2*time.Minute, cfg.Pipeline.Intervals.Fetch)
	assert.Equal(t, 60*time.Minute, cfg.Pipeline.Intervals.DiscoverIDs)
	assert.Equal(t, 5*time.Minute, cfg.Pipeline.Intervals.Parse)
	assert.Equal(t, 10*time.Minute, cfg.Pipeline.Intervals.Ingest)

	// 派生目录
	assert.Equal(t, filepath.Join("/data/detailed", "archive"), cfg.Pipeline.ArchiveDir)
	assert.Equal(t, filepath.Join("/data/detailed", "parsed"), cfg.Pipeline.ParsedDir)
	assert.Equal(t, filepath.Join("/data/detailed", "parsed", "ingested_reports.txt"), cfg.Pipeline.LedgerFile)

	assert.Equal(t, "a994b278-1f62-11e1-96ac-406186ea4fc5", cfg.GVM.FormatID)
	assert.Equal(t, "goldoak_vulnerabilities", cfg.Index.Name)
	assert.Equal(t, "auto", cfg.Pipeline.ExtractionStrategy)
	assert.Same(t, cfg, GetConfig())
}

// TestLoadConfigWithEnvVars 测试环境变量覆盖
func TestLoadConfigWithEnvVars(t *testing.T) {
	tempDir := t.TempDir()
	writeConfig(t, tempDir, "config.yaml", minimalConfig)

	t.Setenv("NEOGVM_GVM_PASSWORD", "s3cret")
	t.Setenv("NEOGVM_ES_HOST", "http://es-1:9200,http://es-2:9200")
	t.Setenv("NEOGVM_SERVER_PORT", "9090")

	cfg, err := LoadConfig(tempDir, "development")
	require.NoError(t, err)

	assert.Equal(t, "s3cret", cfg.GVM.Password)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, []string{"http://es-1:9200", "http://es-2:9200"}, cfg.Index.Addresses)
}

// TestLoadConfigEnvFile 测试按环境选择配置文件
func TestLoadConfigEnvFile(t *testing.T) {
	tempDir := t.TempDir()
	writeConfig(t, tempDir, "config.yaml", minimalConfig)
	writeConfig(t, tempDir, "config.prod.yaml", minimalConfig+"\nindex:\n  name: prod_vulns\n")

	cfg, err := LoadConfig(tempDir, "production")
	require.NoError(t, err)
	assert.Equal(t, "prod_vulns", cfg.Index.Name)

	// test 环境没有专属文件，回落到 config.yaml
	cfg, err = LoadConfig(tempDir, "test")
	require.NoError(t, err)
	assert.Equal(t, "goldoak_vulnerabilities", cfg.Index.Name)
}

// TestConfigValidation 测试配置验证
func TestConfigValidation(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Server: ServerConfig{Port: 8000, Mode: "release"},
			Log:    LogConfig{Level: "info", Format: "json", Output: "stdout"},
			GVM:    GVMConfig{Transport: "local", FormatID: "fmt"},
			Pipeline: PipelineConfig{
				ReportsDir:         "r",
				DetailedReportsDir: "d",
				ExtractionStrategy: "document",
				Intervals: StageIntervals{
					DiscoverIDs: time.Hour, Mapping: time.Hour, Fetch: time.Minute,
					Parse: 5 * time.Minute, Ingest: 10 * time.Minute,
				},
			},
			Index:    IndexConfig{Backend: "elasticsearch", Name: "idx", Addresses: []string{"http://es:9200"}},
			Ledger:   LedgerConfig{Backend: "file"},
			Database: DatabaseConfig{Driver: "sqlite"},
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"bad port", func(c *Config) { c.Server.Port = 70000 }, "invalid server port"},
		{"bad log level", func(c *Config) { c.Log.Level = "verbose" }, "invalid log level"},
		{"file output without path", func(c *Config) { c.Log.Output = "file" }, "log file path is required"},
		{"bad transport", func(c *Config) { c.GVM.Transport = "tls" }, "invalid gvm transport"},
		{"ssh without host", func(c *Config) { c.GVM.Transport = "ssh" }, "gvm ssh host is required"},
		{"ssh without credentials", func(c *Config) {
			c.GVM.Transport = "ssh"
			c.GVM.SSH.Host = "scanner"
		}, "password or key_file"},
		{"bad strategy", func(c *Config) { c.Pipeline.ExtractionStrategy = "lazy" }, "invalid extraction strategy"},
		{"zero interval", func(c *Config) { c.Pipeline.Intervals.Fetch = 0 }, "interval fetch must be positive"},
		{"bad index backend", func(c *Config) { c.Index.Backend = "solr" }, "invalid index backend"},
		{"es without addresses", func(c *Config) { c.Index.Addresses = nil }, "elasticsearch addresses are required"},
		{"redis ledger without host", func(c *Config) { c.Ledger.Backend = "redis" }, "redis host is required"},
		{"notify without url", func(c *Config) { c.Notify.Enabled = true }, "notify url is required"},
		{"short jwt secret", func(c *Config) {
			c.Security.JWT.Enabled = true
			c.Security.JWT.Secret = "short"
		}, "at least 32 characters"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := validateConfig(cfg)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

// TestConfigHelperMethods 测试辅助方法
func TestConfigHelperMethods(t *testing.T) {
	server := ServerConfig{Host: "127.0.0.1", Port: 8000}
	assert.Equal(t, "127.0.0.1:8000", server.GetAddress())

	mysql := MySQLConfig{Host: "db", Port: 3306, Username: "u", Password: "p", Database: "gvm", Charset: "utf8mb4", ParseTime: true, Loc: "Local"}
	assert.Equal(t, "u:p@tcp(db:3306)/gvm?charset=utf8mb4&parseTime=true&loc=Local", mysql.GetMySQLDSN())

	redis := RedisConfig{Host: "cache", Port: 6379}
	assert.Equal(t, "cache:6379", redis.GetRedisAddress())

	dir := t.TempDir()
	writeConfig(t, dir, "config.yaml", minimalConfig)
	cw := &ConfigWatcher{configPath: dir, env: "production"}
	// 环境配置缺失时监听回落的 config.yaml
	assert.True(t, cw.watches(filepath.Join(dir, "config.yaml")))
	assert.False(t, cw.watches(filepath.Join(dir, "config.prod.yaml")))
	assert.False(t, cw.watches(filepath.Join(dir, "other.yaml")))
}

// TestShippedConfig 仓库自带的配置文件必须能通过校验
func TestShippedConfig(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join("..", "..", "configs"), "production")
	require.NoError(t, err)

	assert.Equal(t, 8000, cfg.Server.Port)
	assert.Equal(t, "/app/detailed_reports/archive", cfg.Pipeline.ArchiveDir)
	assert.Equal(t, "/app/detailed_reports/parsed/ingested_reports.txt", cfg.Pipeline.LedgerFile)
	assert.Equal(t, time.Minute, cfg.Pipeline.Intervals.Fetch)
	assert.Equal(t, "goldoak_vulnerabilities", cfg.Index.Name)
	assert.False(t, cfg.Security.JWT.Enabled)
}

// TestConfigWatcherReload 测试配置文件变更后触发回调
func TestConfigWatcherReload(t *testing.T) {
	tempDir := t.TempDir()
	writeConfig(t, tempDir, "config.yaml", minimalConfig)
	_, err := LoadConfig(tempDir, "development")
	require.NoError(t, err)

	cw, err := NewConfigWatcher(tempDir, "development")
	require.NoError(t, err)
	cw.debounce = 20 * time.Millisecond

	levels := make(chan string, 4)
	cw.AddCallback(func(oldConfig, newConfig *Config) error {
		levels <- newConfig.Log.Level
		return nil
	})
	require.NoError(t, cw.Start())
	defer cw.Stop()

	// 其它文件的变化不触发重载
	writeConfig(t, tempDir, "notes.txt", "ignored")
	writeConfig(t, tempDir, "config.yaml", strings.Replace(minimalConfig, `level: "debug"`, `level: "warn"`, 1))

	select {
	case level := <-levels:
		assert.Equal(t, "warn", level)
	case <-time.After(3 * time.Second):
		t.Fatal("config reload callback was not invoked")
	}
}

func TestConfigWatcherMissingDir(t *testing.T) {
	cw, err := NewConfigWatcher(filepath.Join(t.TempDir(), "missing"), "development")
	require.NoError(t, err)
	assert.Error(t, cw.Start())
	assert.NoError(t, cw.watcher.Close())
}
