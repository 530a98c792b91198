package setup

import (
	"fmt"
	"io"

	"neogvm/internal/config"
	"neogvm/internal/pkg/database"
	"neogvm/internal/pkg/extractor"
	"neogvm/internal/pkg/gmp"
	"neogvm/internal/pkg/logger"
	"neogvm/internal/pkg/notify"
	"neogvm/internal/repo/artifact"
	"neogvm/internal/repo/ledger"
	"neogvm/internal/repo/searchindex"
	"neogvm/internal/service/pipeline"
	"neogvm/internal/service/scan"
)

// BuildCoreModule 按配置装配桥接、制品仓库、索引、台账、通知以及流水线和扫描服务
// 失败时已创建的资源会被释放
func BuildCoreModule(cfg *config.Config) (module *CoreModule, err error) {
	logger.WithFields(map[string]interface{}{
		"path":      "setup.core",
		"operation": "build_module",
		"func_name": "setup.BuildCoreModule",
		"transport": cfg.GVM.Transport,
		"index":     cfg.Index.Backend,
		"ledger":    cfg.Ledger.Backend,
	}).Info("开始初始化流水线模块")

	m := &CoreModule{}
	defer func() {
		if err != nil {
			m.Close()
		}
	}()

	// 1. 桥接与协议客户端
	bridge, err := BuildBridge(&cfg.GVM)
	if err != nil {
		return nil, err
	}
	if c, ok := bridge.(io.Closer); ok {
		m.closers = append(m.closers, c)
	}
	m.Client = gmp.NewClient(bridge, cfg.GVM.FormatID, cfg.GVM.PortListID)

	// 2. 数据库/Redis 仅在对应后端启用时连接
	if cfg.Index.Backend == "database" || cfg.Ledger.Backend == "database" {
		if m.DB, err = database.NewConnection(&cfg.Database); err != nil {
			return nil, err
		}
		sqlDB, err := m.DB.DB()
		if err != nil {
			return nil, fmt.Errorf("get sql db: %w", err)
		}
		m.closers = append(m.closers, sqlDB)
	}
	if cfg.Ledger.Backend == "redis" {
		if m.Redis, err = database.NewRedisConnection(&cfg.Database.Redis); err != nil {
			return nil, err
		}
		m.closers = append(m.closers, m.Redis)
	}

	// 3. 仓库层
	m.Artifacts = artifact.NewFileRepository(ArtifactDirs(&cfg.Pipeline))
	led, err := ledger.New(cfg, m.Redis, m.DB)
	if err != nil {
		return nil, err
	}
	index, err := searchindex.New(&cfg.Index, m.DB)
	if err != nil {
		return nil, err
	}
	selector, err := extractor.NewSelector(cfg.Pipeline.ExtractionStrategy, cfg.Pipeline.StreamThresholdBytes)
	if err != nil {
		return nil, err
	}

	// 4. 通知
	m.Notifier = notify.New(&cfg.Notify)
	m.closers = append(m.closers, m.Notifier)

	// 5. 服务层
	m.PipelineService = pipeline.NewService(pipeline.Dependencies{
		Client:     m.Client,
		Artifacts:  m.Artifacts,
		Extractors: selector,
		Index:      index,
		Ledger:     led,
		Notifier:   m.Notifier,
		IndexName:  cfg.Index.Name,
	})
	m.ScanService = scan.NewScanService(m.Client, m.Notifier)

	logger.WithFields(map[string]interface{}{
		"path":      "setup.core",
		"operation": "build_module",
		"func_name": "setup.BuildCoreModule",
	}).Info("流水线模块初始化完成")

	return m, nil
}

// BuildBridge 按传输方式创建 gvm-cli 桥接
func BuildBridge(cfg *config.GVMConfig) (gmp.BridgeRunner, error) {
	opts := gmp.BridgeOptions{
		Binary:     cfg.Binary,
		Username:   cfg.Username,
		Password:   cfg.Password,
		SocketPath: cfg.SocketPath,
		Timeout:    cfg.CommandTimeout,
	}

	switch cfg.Transport {
	case "local", "":
		return gmp.NewExecBridge(opts), nil
	case "ssh":
		return gmp.NewSSHBridge(opts, gmp.SSHOptions{
			Address:        cfg.SSH.GetSSHAddress(),
			Username:       cfg.SSH.Username,
			Password:       cfg.SSH.Password,
			KeyFile:        cfg.SSH.KeyFile,
			KnownHostsFile: cfg.SSH.KnownHostsFile,
			DialTimeout:    cfg.SSH.DialTimeout,
		})
	default:
		return nil, fmt.Errorf("unsupported gvm transport: %s", cfg.Transport)
	}
}

// ArtifactDirs 各制品区域对应的目录
func ArtifactDirs(cfg *config.PipelineConfig) map[artifact.Area]string {
	return map[artifact.Area]string{
		artifact.AreaReports: cfg.ReportsDir,
		artifact.AreaPending: cfg.DetailedReportsDir,
		artifact.AreaArchive: cfg.ArchiveDir,
		artifact.AreaParsed:  cfg.ParsedDir,
	}
}
