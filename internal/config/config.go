package config

import (
	"fmt"
	"time"
)

// Config 应用配置结构体 [这里的字段和配置文件中一级字段保持一致，否则会没有值]
type Config struct {
	Server   ServerConfig   `yaml:"server" mapstructure:"server"`     // 服务器配置
	Log      LogConfig      `yaml:"log" mapstructure:"log"`           // 日志配置
	GVM      GVMConfig      `yaml:"gvm" mapstructure:"gvm"`           // 扫描管理器(gvmd)桥接配置
	Pipeline PipelineConfig `yaml:"pipeline" mapstructure:"pipeline"` // 报告入库流水线配置
	Index    IndexConfig    `yaml:"index" mapstructure:"index"`       // 检索索引配置
	Ledger   LedgerConfig   `yaml:"ledger" mapstructure:"ledger"`     // 入库台账配置
	Database DatabaseConfig `yaml:"database" mapstructure:"database"` // 数据库配置
	Notify   NotifyConfig   `yaml:"notify" mapstructure:"notify"`     // 入库事件通知配置
	Security SecurityConfig `yaml:"security" mapstructure:"security"` // 安全配置
	Monitor  MonitorConfig  `yaml:"monitor" mapstructure:"monitor"`   // 监控配置
	App      AppConfig      `yaml:"app" mapstructure:"app"`           // 应用配置
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Host         string        `yaml:"host" mapstructure:"host"`                   // 服务器主机地址
	Port         int           `yaml:"port" mapstructure:"port"`                   // 服务器端口
	Mode         string        `yaml:"mode" mapstructure:"mode"`                   // 运行模式: debug, release, test
	ReadTimeout  time.Duration `yaml:"read_timeout" mapstructure:"read_timeout"`   // 读取超时时间
	WriteTimeout time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"` // 写入超时时间
	IdleTimeout  time.Duration `yaml:"idle_timeout" mapstructure:"idle_timeout"`   // 空闲超时时间
}

// LogConfig 日志配置
type LogConfig struct {
	Level      string `yaml:"level" mapstructure:"level"`             // 日志级别
	Format     string `yaml:"format" mapstructure:"format"`           // 日志格式: json, text
	Output     string `yaml:"output" mapstructure:"output"`           // 输出方式: stdout, stderr, file
	FilePath   string `yaml:"file_path" mapstructure:"file_path"`     // 日志文件路径
	MaxSize    int    `yaml:"max_size" mapstructure:"max_size"`       // 单个日志文件最大大小(MB)
	MaxBackups int    `yaml:"max_backups" mapstructure:"max_backups"` // 保留的日志文件数量
	MaxAge     int    `yaml:"max_age" mapstructure:"max_age"`         // 日志文件保留天数
	Compress   bool   `yaml:"compress" mapstructure:"compress"`       // 是否压缩日志文件
	Caller     bool   `yaml:"caller" mapstructure:"caller"`           // 是否显示调用者信息
}

// GVMConfig gvm-cli 桥接配置
type GVMConfig struct {
	Binary         string        `yaml:"binary" mapstructure:"binary"`                   // gvm-cli 可执行文件
	Username       string        `yaml:"username" mapstructure:"username"`               // GMP 用户名
	Password       string        `yaml:"password" mapstructure:"password"`               // GMP 密码
	SocketPath     string        `yaml:"socket_path" mapstructure:"socket_path"`         // gvmd unix socket 路径
	Transport      string        `yaml:"transport" mapstructure:"transport"`             // 桥接方式: local, ssh
	CommandTimeout time.Duration `yaml:"command_timeout" mapstructure:"command_timeout"` // 单条命令超时，0 表示不限制
	FormatID       string        `yaml:"format_id" mapstructure:"format_id"`             // 详细报告导出格式ID
	PortListID     string        `yaml:"port_list_id" mapstructure:"port_list_id"`       // 创建目标时使用的端口列表ID
	SSH            SSHConfig     `yaml:"ssh" mapstructure:"ssh"`                         // 远程桥接(SSH)配置
}

// SSHConfig 远程执行 gvm-cli 的 SSH 配置
type SSHConfig struct {
	Host           string        `yaml:"host" mapstructure:"host"`                         // 远程主机
	Port           int           `yaml:"port" mapstructure:"port"`                         // 远程端口
	Username       string        `yaml:"username" mapstructure:"username"`                 // 登录用户
	Password       string        `yaml:"password" mapstructure:"password"`                 // 登录密码(与私钥二选一)
	KeyFile        string        `yaml:"key_file" mapstructure:"key_file"`                 // 私钥文件
	KnownHostsFile string        `yaml:"known_hosts_file" mapstructure:"known_hosts_file"` // known_hosts 文件，为空时不校验主机指纹
	DialTimeout    time.Duration `yaml:"dial_timeout" mapstructure:"dial_timeout"`         // 连接超时
}

// PipelineConfig 流水线配置
type PipelineConfig struct {
	ReportsDir           string         `yaml:"reports_dir" mapstructure:"reports_dir"`                       // ID快照/映射文件目录
	DetailedReportsDir   string         `yaml:"detailed_reports_dir" mapstructure:"detailed_reports_dir"`     // 待解析详细报告目录
	ArchiveDir           string         `yaml:"archive_dir" mapstructure:"archive_dir"`                       // 已解析详细报告归档目录
	ParsedDir            string         `yaml:"parsed_dir" mapstructure:"parsed_dir"`                         // 解析结果目录
	LedgerFile           string         `yaml:"ledger_file" mapstructure:"ledger_file"`                       // 入库台账文件
	ExtractionStrategy   string         `yaml:"extraction_strategy" mapstructure:"extraction_strategy"`       // 解析策略: document, stream, auto
	StreamThresholdBytes int64          `yaml:"stream_threshold_bytes" mapstructure:"stream_threshold_bytes"` // auto 策略下切换为流式解析的文件大小阈值
	RunOnStart           bool           `yaml:"run_on_start" mapstructure:"run_on_start"`                     // 启动时立即执行一轮
	Intervals            StageIntervals `yaml:"intervals" mapstructure:"intervals"`                           // 各阶段调度周期
}

// StageIntervals 各阶段调度周期
type StageIntervals struct {
	DiscoverIDs time.Duration `yaml:"discover_ids" mapstructure:"discover_ids"` // 报告ID发现
	Mapping     time.Duration `yaml:"mapping" mapstructure:"mapping"`           // 报告→任务映射
	Fetch       time.Duration `yaml:"fetch" mapstructure:"fetch"`               // 拉取详细报告
	Parse       time.Duration `yaml:"parse" mapstructure:"parse"`               // 解析并归档
	Ingest      time.Duration `yaml:"ingest" mapstructure:"ingest"`             // 入库
}

// IndexConfig 检索索引配置
type IndexConfig struct {
	Backend   string   `yaml:"backend" mapstructure:"backend"`     // 后端: elasticsearch, database
	Name      string   `yaml:"name" mapstructure:"name"`           // 索引名
	Addresses []string `yaml:"addresses" mapstructure:"addresses"` // Elasticsearch 地址
	Username  string   `yaml:"username" mapstructure:"username"`   // 用户名
	Password  string   `yaml:"password" mapstructure:"password"`   // 密码
}

// LedgerConfig 入库台账配置
type LedgerConfig struct {
	Backend  string `yaml:"backend" mapstructure:"backend"`     // 后端: file, redis, database
	RedisKey string `yaml:"redis_key" mapstructure:"redis_key"` // redis 集合键名
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Driver string       `yaml:"driver" mapstructure:"driver"` // 驱动: mysql, sqlite
	MySQL  MySQLConfig  `yaml:"mysql" mapstructure:"mysql"`   // MySQL配置
	SQLite SQLiteConfig `yaml:"sqlite" mapstructure:"sqlite"` // SQLite配置
	Redis  RedisConfig  `yaml:"redis" mapstructure:"redis"`   // Redis配置
}

// MySQLConfig MySQL数据库配置
type MySQLConfig struct {
	Host            string        `yaml:"host" mapstructure:"host"`                           // 数据库主机
	Port            int           `yaml:"port" mapstructure:"port"`                           // 数据库端口
	Username        string        `yaml:"username" mapstructure:"username"`                   // 用户名
	Password        string        `yaml:"password" mapstructure:"password"`                   // 密码
	Database        string        `yaml:"database" mapstructure:"database"`                   // 数据库名
	Charset         string        `yaml:"charset" mapstructure:"charset"`                     // 字符集
	ParseTime       bool          `yaml:"parse_time" mapstructure:"parse_time"`               // 是否解析时间
	Loc             string        `yaml:"loc" mapstructure:"loc"`                             // 时区
	MaxIdleConns    int           `yaml:"max_idle_conns" mapstructure:"max_idle_conns"`       // 最大空闲连接数
	MaxOpenConns    int           `yaml:"max_open_conns" mapstructure:"max_open_conns"`       // 最大打开连接数
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" mapstructure:"conn_max_lifetime"` // 连接最大生存时间
	LogLevel        string        `yaml:"log_level" mapstructure:"log_level"`                 // gorm 日志级别
}

// SQLiteConfig SQLite配置
type SQLiteConfig struct {
	Path string `yaml:"path" mapstructure:"path"` // 数据库文件路径, 支持 :memory:
}

// RedisConfig Redis配置
type RedisConfig struct {
	Host         string        `yaml:"host" mapstructure:"host"`                   // Redis主机
	Port         int           `yaml:"port" mapstructure:"port"`                   // Redis端口
	Password     string        `yaml:"password" mapstructure:"password"`           // Redis密码
	Database     int           `yaml:"database" mapstructure:"database"`           // Redis数据库索引
	PoolSize     int           `yaml:"pool_size" mapstructure:"pool_size"`         // 连接池大小
	DialTimeout  time.Duration `yaml:"dial_timeout" mapstructure:"dial_timeout"`   // 连接超时
	ReadTimeout  time.Duration `yaml:"read_timeout" mapstructure:"read_timeout"`   // 读取超时
	WriteTimeout time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"` // 写入超时
}

// NotifyConfig 入库事件通知配置
type NotifyConfig struct {
	Enabled    bool   `yaml:"enabled" mapstructure:"enabled"`         // 是否启用
	URL        string `yaml:"url" mapstructure:"url"`                 // amqp 连接串
	Exchange   string `yaml:"exchange" mapstructure:"exchange"`       // 交换机名
	RoutingKey string `yaml:"routing_key" mapstructure:"routing_key"` // 路由键
}

// SecurityConfig 安全配置
type SecurityConfig struct {
	JWT  JWTConfig  `yaml:"jwt" mapstructure:"jwt"`   // JWT配置
	CORS CORSConfig `yaml:"cors" mapstructure:"cors"` // CORS配置
}

// JWTConfig JWT配置
type JWTConfig struct {
	Enabled           bool          `yaml:"enabled" mapstructure:"enabled"`                         // 是否开启接口鉴权
	Secret            string        `yaml:"secret" mapstructure:"secret"`                           // 签名密钥
	Issuer            string        `yaml:"issuer" mapstructure:"issuer"`                           // 签发者
	AccessTokenExpire time.Duration `yaml:"access_token_expire" mapstructure:"access_token_expire"` // 令牌有效期
}

// CORSConfig CORS配置
type CORSConfig struct {
	AllowOrigins     []string `yaml:"allow_origins" mapstructure:"allow_origins"`         // 允许的源
	AllowMethods     []string `yaml:"allow_methods" mapstructure:"allow_methods"`         // 允许的方法
	AllowHeaders     []string `yaml:"allow_headers" mapstructure:"allow_headers"`         // 允许的头部
	AllowCredentials bool     `yaml:"allow_credentials" mapstructure:"allow_credentials"` // 是否允许凭证
	MaxAge           int      `yaml:"max_age" mapstructure:"max_age"`                     // 预检请求缓存时间(秒)
}

// MonitorConfig 监控配置
type MonitorConfig struct {
	MetricsEnabled bool   `yaml:"metrics_enabled" mapstructure:"metrics_enabled"` // 是否暴露 prometheus 指标
	MetricsPath    string `yaml:"metrics_path" mapstructure:"metrics_path"`       // 指标路径
	HealthPath     string `yaml:"health_path" mapstructure:"health_path"`         // 健康检查路径
}

// AppConfig 应用配置
type AppConfig struct {
	Name        string `yaml:"name" mapstructure:"name"`               // 应用名称
	Environment string `yaml:"environment" mapstructure:"environment"` // 运行环境: development, test, production
	Scheduler   bool   `yaml:"scheduler" mapstructure:"scheduler"`     // server 模式下是否启动调度器
}

// GetAddress 获取服务器监听地址
func (s *ServerConfig) GetAddress() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// GetMySQLDSN 获取MySQL连接字符串
func (m *MySQLConfig) GetMySQLDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=%s&parseTime=%t&loc=%s",
		m.Username, m.Password, m.Host, m.Port, m.Database, m.Charset, m.ParseTime, m.Loc)
}

// GetRedisAddress 获取Redis地址
func (r *RedisConfig) GetRedisAddress() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// GetSSHAddress 获取SSH地址
func (s *SSHConfig) GetSSHAddress() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// IsProduction 判断是否为生产环境
func (a *AppConfig) IsProduction() bool {
	return a.Environment == "production"
}
