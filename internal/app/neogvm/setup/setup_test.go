package setup

import (
	"path/filepath"
	"testing"
	"time"

	"neogvm/internal/config"
	"neogvm/internal/pkg/gmp"
	"neogvm/internal/repo/artifact"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	root := t.TempDir()
	return &config.Config{
		GVM: config.GVMConfig{Binary: "gvm-cli", Transport: "local", FormatID: "fmt", PortListID: "pl"},
		Pipeline: config.PipelineConfig{
			ReportsDir:         filepath.Join(root, "reports"),
			DetailedReportsDir: filepath.Join(root, "detailed"),
			ArchiveDir:         filepath.Join(root, "detailed", "archive"),
			ParsedDir:          filepath.Join(root, "detailed", "parsed"),
			LedgerFile:         filepath.Join(root, "detailed", "parsed", "ingested_reports.txt"),
			ExtractionStrategy: "auto",
			Intervals: config.StageIntervals{
				DiscoverIDs: time.Hour, Mapping: time.Hour, Fetch: time.Minute, Parse: 5 * time.Minute, Ingest: 10 * time.Minute,
			},
		},
		Index:    config.IndexConfig{Backend: "database", Name: "goldoak_vulnerabilities"},
		Ledger:   config.LedgerConfig{Backend: "database"},
		Database: config.DatabaseConfig{Driver: "sqlite", SQLite: config.SQLiteConfig{Path: ":memory:"}},
		App:      config.AppConfig{Scheduler: true},
	}
}

func TestBuildCoreModule(t *testing.T) {
	cfg := testConfig(t)

	core, err := BuildCoreModule(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { core.Close() })

	assert.NotNil(t, core.Client)
	assert.NotNil(t, core.DB)
	assert.Nil(t, core.Redis)
	assert.NotNil(t, core.PipelineService)
	assert.NotNil(t, core.ScanService)
	assert.Empty(t, core.PipelineService.Status())

	dir, err := core.Artifacts.Dir(artifact.AreaArchive)
	require.NoError(t, err)
	assert.Equal(t, cfg.Pipeline.ArchiveDir, dir)

	sched := BuildSchedulerModule(cfg, core)
	require.NotNil(t, sched.Scheduler)
	assert.Empty(t, sched.Scheduler.Jobs())

	http := BuildHTTPModule(core, sched)
	assert.NotNil(t, http.ScanHandler)
	assert.NotNil(t, http.PipelineHandler)

	require.NoError(t, core.Close())
}

func TestBuildCoreModuleFileLedgerSkipsDatabase(t *testing.T) {
	cfg := testConfig(t)
	cfg.Ledger.Backend = "file"
	cfg.Index = config.IndexConfig{Backend: "elasticsearch", Name: "goldoak_vulnerabilities", Addresses: []string{"http://127.0.0.1:9"}}

	core, err := BuildCoreModule(cfg)
	require.NoError(t, err)
	defer core.Close()
	assert.Nil(t, core.DB)
}

func TestBuildCoreModuleErrors(t *testing.T) {
	cfg := testConfig(t)
	cfg.Pipeline.ExtractionStrategy = "lazy"
	_, err := BuildCoreModule(cfg)
	assert.Error(t, err)

	cfg = testConfig(t)
	cfg.Index.Backend = "solr"
	_, err = BuildCoreModule(cfg)
	assert.Error(t, err)
}

func TestBuildBridge(t *testing.T) {
	b, err := BuildBridge(&config.GVMConfig{Transport: "local"})
	require.NoError(t, err)
	assert.IsType(t, &gmp.ExecBridge{}, b)

	// 既无密码也无私钥
	_, err = BuildBridge(&config.GVMConfig{Transport: "ssh", SSH: config.SSHConfig{Host: "scanner", Port: 22}})
	assert.Error(t, err)

	b, err = BuildBridge(&config.GVMConfig{Transport: "ssh", SSH: config.SSHConfig{Host: "scanner", Port: 22, Username: "gvm", Password: "x"}})
	require.NoError(t, err)
	assert.IsType(t, &gmp.SSHBridge{}, b)

	_, err = BuildBridge(&config.GVMConfig{Transport: "telnet"})
	assert.Error(t, err)
}

func TestSchedulerDisabled(t *testing.T) {
	cfg := testConfig(t)
	cfg.App.Scheduler = false
	sched := BuildSchedulerModule(cfg, &CoreModule{})
	assert.Nil(t, sched.Scheduler)

	http := BuildHTTPModule(&CoreModule{}, sched)
	assert.NotNil(t, http.PipelineHandler)
}
