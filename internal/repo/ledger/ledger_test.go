package ledger

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"neogvm/internal/config"
	"neogvm/internal/pkg/database"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileLedger(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "parsed", "ingested_reports.txt")
	l := NewFileLedger(path)

	set, err := l.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, set)

	require.NoError(t, l.Record(ctx, "parsed_report_b_1.json"))
	require.NoError(t, l.Record(ctx, "parsed_report_a_1.json"))
	require.NoError(t, l.Record(ctx, "parsed_report_b_1.json"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "parsed_report_a_1.json\nparsed_report_b_1.json\n", string(data))

	set, err = NewFileLedger(path).Load(ctx)
	require.NoError(t, err)
	assert.Len(t, set, 2)
	assert.Contains(t, set, "parsed_report_a_1.json")

	assert.Error(t, l.Record(ctx, "  "))
}

func TestFileLedgerToleratesBlankLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ingested_reports.txt")
	require.NoError(t, os.WriteFile(path, []byte("a.json\n\n  b.json  \n"), 0644))

	set, err := NewFileLedger(path).Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]struct{}{"a.json": {}, "b.json": {}}, set)
}

func TestFileLedgerConcurrentRecord(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "ingested_reports.txt")
	l := NewFileLedger(path)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, l.Record(ctx, filepath.Base(t.Name())+string(rune('a'+i%5))))
		}(i)
	}
	wg.Wait()

	set, err := l.Load(ctx)
	require.NoError(t, err)
	assert.Len(t, set, 5)
}

func TestGormLedger(t *testing.T) {
	ctx := context.Background()
	db, err := database.NewSQLiteConnection(&config.SQLiteConfig{Path: ":memory:"})
	require.NoError(t, err)

	l, err := NewGormLedger(db)
	require.NoError(t, err)

	require.NoError(t, l.Record(ctx, "parsed_report_a_1.json"))
	require.NoError(t, l.Record(ctx, "parsed_report_a_1.json"))
	require.NoError(t, l.Record(ctx, "parsed_report_b_1.json"))

	set, err := l.Load(ctx)
	require.NoError(t, err)
	assert.Len(t, set, 2)
	assert.Contains(t, set, "parsed_report_b_1.json")
}

func TestNew(t *testing.T) {
	cfg := &config.Config{}
	cfg.Pipeline.LedgerFile = filepath.Join(t.TempDir(), "ledger.txt")

	l, err := New(cfg, nil, nil)
	require.NoError(t, err)
	assert.IsType(t, &FileLedger{}, l)

	cfg.Ledger.Backend = "redis"
	_, err = New(cfg, nil, nil)
	assert.Error(t, err)

	cfg.Ledger.Backend = "database"
	_, err = New(cfg, nil, nil)
	assert.Error(t, err)

	cfg.Ledger.Backend = "etcd"
	_, err = New(cfg, nil, nil)
	assert.Error(t, err)
}
