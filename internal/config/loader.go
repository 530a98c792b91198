package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

var (
	// GlobalConfig 全局配置实例
	GlobalConfig *Config
)

// LoadConfig 加载配置文件
// configPath: 配置文件目录，如果为空则使用默认路径
// env: 环境标识，支持 development, test, production
func LoadConfig(configPath, env string) (*Config, error) {
	// .env 仅用于本地开发，缺失时忽略
	_ = godotenv.Load()

	if env == "" {
		env = getEnvFromEnvironment()
	}

	v := viper.New()
	v.SetConfigType("yaml")

	if configPath == "" {
		configPath = getDefaultConfigPath()
	}

	configFile := getConfigFileName(configPath, env)
	v.SetConfigFile(configFile)

	// 设置环境变量前缀
	v.SetEnvPrefix("NEOGVM")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)
	bindEnvironmentVariables(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaultPipelineConfig(&config)

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	GlobalConfig = &config

	return &config, nil
}

// getEnvFromEnvironment 从环境变量获取环境标识
func getEnvFromEnvironment() string {
	env := os.Getenv("NEOGVM_ENV")
	if env == "" {
		env = os.Getenv("GO_ENV")
	}
	if env == "" {
		env = "development" // 默认开发环境
	}
	return env
}

// getDefaultConfigPath 获取默认配置文件路径
func getDefaultConfigPath() string {
	if configPath := os.Getenv("NEOGVM_CONFIG_PATH"); configPath != "" {
		return configPath
	}
	return "configs"
}

// getConfigFileName 根据环境获取配置文件名
func getConfigFileName(configPath, env string) string {
	var configFile string

	switch env {
	case "production", "prod":
		configFile = filepath.Join(configPath, "config.prod.yaml")
	case "test", "testing":
		configFile = filepath.Join(configPath, "config.test.yaml")
	default:
		configFile = filepath.Join(configPath, "config.yaml")
	}

	// 环境配置不存在时回落到 config.yaml
	if _, err := os.Stat(configFile); os.IsNotExist(err) {
		defaultConfig := filepath.Join(configPath, "config.yaml")
		if _, err := os.Stat(defaultConfig); err == nil {
			return defaultConfig
		}
	}

	return configFile
}

// setDefaults 设置默认值，目录布局与容器部署保持一致
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.read_timeout", 60*time.Second)
	v.SetDefault("server.write_timeout", 120*time.Second)
	v.SetDefault("server.idle_timeout", 120*time.Second)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.output", "stdout")

	v.SetDefault("gvm.binary", "gvm-cli")
	v.SetDefault("gvm.username", "admin")
	v.SetDefault("gvm.password", "admin")
	v.SetDefault("gvm.socket_path", "/tmp/gvm/gvmd/gvmd.sock")
	v.SetDefault("gvm.transport", "local")
	v.SetDefault("gvm.format_id", "a994b278-1f62-11e1-96ac-406186ea4fc5")
	v.SetDefault("gvm.port_list_id", "730ef368-57e2-11e1-a90f-406186ea4fc5")
	v.SetDefault("gvm.ssh.port", 22)
	v.SetDefault("gvm.ssh.dial_timeout", 10*time.Second)

	v.SetDefault("pipeline.reports_dir", "/app/reports")
	v.SetDefault("pipeline.detailed_reports_dir", "/app/detailed_reports")
	v.SetDefault("pipeline.extraction_strategy", "auto")
	v.SetDefault("pipeline.stream_threshold_bytes", 64<<20)
	v.SetDefault("pipeline.intervals.discover_ids", 60*time.Minute)
	v.SetDefault("pipeline.intervals.mapping", 60*time.Minute)
	v.SetDefault("pipeline.intervals.fetch", time.Minute)
	v.SetDefault("pipeline.intervals.parse", 5*time.Minute)
	v.SetDefault("pipeline.intervals.ingest", 10*time.Minute)

	v.SetDefault("index.backend", "elasticsearch")
	v.SetDefault("index.name", "goldoak_vulnerabilities")
	v.SetDefault("index.addresses", []string{"http://localhost:9200"})

	v.SetDefault("ledger.backend", "file")
	v.SetDefault("ledger.redis_key", "neogvm:ingested_reports")

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.sqlite.path", "data/neogvm.db")
	v.SetDefault("database.mysql.charset", "utf8mb4")
	v.SetDefault("database.mysql.parse_time", true)
	v.SetDefault("database.mysql.loc", "Local")

	v.SetDefault("notify.exchange", "neogvm.events")
	v.SetDefault("notify.routing_key", "report.ingested")

	v.SetDefault("security.jwt.issuer", "neogvm")
	v.SetDefault("security.jwt.access_token_expire", 24*time.Hour)

	v.SetDefault("monitor.metrics_enabled", true)
	v.SetDefault("monitor.metrics_path", "/metrics")
	v.SetDefault("monitor.health_path", "/health")

	v.SetDefault("app.name", "neogvm")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.scheduler", true)
}

// bindEnvironmentVariables 绑定环境变量
func bindEnvironmentVariables(v *viper.Viper) {
	// gvm 桥接
	v.BindEnv("gvm.socket_path", "NEOGVM_GVM_SOCKET_PATH")
	v.BindEnv("gvm.username", "NEOGVM_GVM_USERNAME")
	v.BindEnv("gvm.password", "NEOGVM_GVM_PASSWORD")
	v.BindEnv("gvm.ssh.host", "NEOGVM_GVM_SSH_HOST")
	v.BindEnv("gvm.ssh.password", "NEOGVM_GVM_SSH_PASSWORD")

	// 流水线目录
	v.BindEnv("pipeline.reports_dir", "NEOGVM_REPORTS_DIR")
	v.BindEnv("pipeline.detailed_reports_dir", "NEOGVM_DETAILED_REPORTS_DIR")
	v.BindEnv("pipeline.archive_dir", "NEOGVM_ARCHIVE_DIR")

	// 检索索引
	v.BindEnv("index.addresses", "NEOGVM_ES_HOST")
	v.BindEnv("index.username", "NEOGVM_ES_USERNAME")
	v.BindEnv("index.password", "NEOGVM_ES_PASSWORD")

	// 数据库
	v.BindEnv("database.mysql.host", "NEOGVM_MYSQL_HOST")
	v.BindEnv("database.mysql.password", "NEOGVM_MYSQL_PASSWORD")
	v.BindEnv("database.redis.host", "NEOGVM_REDIS_HOST")
	v.BindEnv("database.redis.password", "NEOGVM_REDIS_PASSWORD")

	// 通知与安全
	v.BindEnv("notify.url", "NEOGVM_AMQP_URL")
	v.BindEnv("security.jwt.secret", "NEOGVM_JWT_SECRET")

	v.BindEnv("server.port", "NEOGVM_SERVER_PORT")
	v.BindEnv("server.mode", "NEOGVM_SERVER_MODE")
}

// applyDefaultPipelineConfig 补全依赖其他字段的目录默认值
func applyDefaultPipelineConfig(config *Config) {
	if config == nil {
		return
	}

	p := &config.Pipeline
	if strings.TrimSpace(p.ArchiveDir) == "" {
		p.ArchiveDir = filepath.Join(p.DetailedReportsDir, "archive")
	}
	if strings.TrimSpace(p.ParsedDir) == "" {
		p.ParsedDir = filepath.Join(p.DetailedReportsDir, "parsed")
	}
	if strings.TrimSpace(p.LedgerFile) == "" {
		p.LedgerFile = filepath.Join(p.ParsedDir, "ingested_reports.txt")
	}
}

// validateConfig 验证配置
func validateConfig(config *Config) error {
	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}

	if !contains([]string{"debug", "release", "test"}, config.Server.Mode) {
		return fmt.Errorf("invalid server mode: %s", config.Server.Mode)
	}

	// 日志
	if !contains([]string{"debug", "info", "warn", "error", "fatal", "panic"}, config.Log.Level) {
		return fmt.Errorf("invalid log level: %s", config.Log.Level)
	}
	if !contains([]string{"json", "text"}, config.Log.Format) {
		return fmt.Errorf("invalid log format: %s", config.Log.Format)
	}
	if !contains([]string{"stdout", "stderr", "file"}, config.Log.Output) {
		return fmt.Errorf("invalid log output: %s", config.Log.Output)
	}
	if config.Log.Output == "file" && config.Log.FilePath == "" {
		return fmt.Errorf("log file path is required when output is file")
	}

	// gvm 桥接
	if !contains([]string{"local", "ssh"}, config.GVM.Transport) {
		return fmt.Errorf("invalid gvm transport: %s", config.GVM.Transport)
	}
	if config.GVM.Transport == "ssh" {
		if config.GVM.SSH.Host == "" {
			return fmt.Errorf("gvm ssh host is required when transport is ssh")
		}
		if config.GVM.SSH.Password == "" && config.GVM.SSH.KeyFile == "" {
			return fmt.Errorf("gvm ssh password or key_file is required")
		}
	}
	if config.GVM.FormatID == "" {
		return fmt.Errorf("gvm format_id is required")
	}

	// 流水线
	if config.Pipeline.ReportsDir == "" || config.Pipeline.DetailedReportsDir == "" {
		return fmt.Errorf("pipeline reports_dir and detailed_reports_dir are required")
	}
	if !contains([]string{"document", "stream", "auto"}, config.Pipeline.ExtractionStrategy) {
		return fmt.Errorf("invalid extraction strategy: %s", config.Pipeline.ExtractionStrategy)
	}
	iv := config.Pipeline.Intervals
	for name, d := range map[string]time.Duration{
		"discover_ids": iv.DiscoverIDs, "mapping": iv.Mapping, "fetch": iv.Fetch,
		"parse": iv.Parse, "ingest": iv.Ingest,
	} {
		if d <= 0 {
			return fmt.Errorf("pipeline interval %s must be positive", name)
		}
	}

	// 索引与台账
	if !contains([]string{"elasticsearch", "database"}, config.Index.Backend) {
		return fmt.Errorf("invalid index backend: %s", config.Index.Backend)
	}
	if config.Index.Name == "" {
		return fmt.Errorf("index name is required")
	}
	if config.Index.Backend == "elasticsearch" && len(config.Index.Addresses) == 0 {
		return fmt.Errorf("elasticsearch addresses are required")
	}
	if !contains([]string{"file", "redis", "database"}, config.Ledger.Backend) {
		return fmt.Errorf("invalid ledger backend: %s", config.Ledger.Backend)
	}
	if config.Ledger.Backend == "redis" && config.Database.Redis.Host == "" {
		return fmt.Errorf("redis host is required when ledger backend is redis")
	}
	if !contains([]string{"mysql", "sqlite"}, config.Database.Driver) {
		return fmt.Errorf("invalid database driver: %s", config.Database.Driver)
	}

	if config.Notify.Enabled && config.Notify.URL == "" {
		return fmt.Errorf("notify url is required when notify is enabled")
	}

	if config.Security.JWT.Enabled && len(config.Security.JWT.Secret) < 32 {
		return fmt.Errorf("jwt secret must be at least 32 characters long")
	}

	return nil
}

// contains 检查切片是否包含指定元素
func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}

// GetConfig 获取全局配置
func GetConfig() *Config {
	return GlobalConfig
}

// MustLoadConfig 加载配置，如果失败则panic
func MustLoadConfig(configPath, env string) *Config {
	config, err := LoadConfig(configPath, env)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}
	return config
}
