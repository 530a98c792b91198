package neogvm

import (
	"context"
	"net"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"neogvm/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}

func TestAppRunAndShutdown(t *testing.T) {
	root := t.TempDir()
	port := freePort(t)
	cfg := &config.Config{
		Server: config.ServerConfig{Host: "127.0.0.1", Port: port, Mode: "test"},
		GVM:    config.GVMConfig{Transport: "local", Binary: "/nonexistent/gvm-cli", FormatID: "fmt"},
		Pipeline: config.PipelineConfig{
			ReportsDir:         filepath.Join(root, "reports"),
			DetailedReportsDir: filepath.Join(root, "detailed"),
			ArchiveDir:         filepath.Join(root, "archive"),
			ParsedDir:          filepath.Join(root, "parsed"),
			LedgerFile:         filepath.Join(root, "parsed", "ingested_reports.txt"),
			ExtractionStrategy: "document",
			Intervals:          config.StageIntervals{DiscoverIDs: time.Hour, Mapping: time.Hour, Fetch: time.Hour, Parse: time.Hour, Ingest: time.Hour},
		},
		Index:    config.IndexConfig{Backend: "database", Name: "goldoak_vulnerabilities"},
		Ledger:   config.LedgerConfig{Backend: "file"},
		Database: config.DatabaseConfig{Driver: "sqlite", SQLite: config.SQLiteConfig{Path: ":memory:"}},
		Monitor:  config.MonitorConfig{HealthPath: "/health"},
		App:      config.AppConfig{Scheduler: true},
	}

	app, err := NewApp(cfg)
	require.NoError(t, err)
	defer app.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Run(ctx) }()

	url := "http://" + cfg.Server.GetAddress() + "/health"
	require.Eventually(t, func() bool {
		resp, err := http.Get(url)
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 50*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("app did not shut down")
	}
}
