package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"neogvm/internal/model/gvm"
	"neogvm/internal/model/system"
	"neogvm/internal/pkg/extractor"
	"neogvm/internal/pkg/gmp"
	"neogvm/internal/pkg/notify"
	"neogvm/internal/repo/artifact"
	"neogvm/internal/repo/ledger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const listingR1 = `<get_reports_response status="200" status_text="OK">
  <report id="r1"><task id="t1"><name>Weekly</name></task></report>
</get_reports_response>`

const detailR1 = `<get_reports_response status="200" status_text="OK">
<report id="r1" format_id="a994b278-1f62-11e1-96ac-406186ea4fc5" extension="xml">
  <owner><name>admin</name></owner>
  <creation_time>2025-03-02T10:00:05Z</creation_time>
  <modification_time>2025-03-02T10:41:17Z</modification_time>
  <report id="r1">
    <results start="1" max="1000">
      <result id="res-1">
        <name>SSH Weak Encryption Algorithms Supported</name>
        <creation_time>2025-03-02T10:12:44Z</creation_time>
        <host>10.0.0.9<hostname>db.local</hostname></host>
        <port>22/tcp</port>
        <nvt oid="1.3.6.1.4.1.25623.1.0.105611">
          <type>nvt</type><name>SSH Weak Encryption Algorithms Supported</name><family>General</family>
          <cvss_base>4.3</cvss_base>
          <severities score="4.3"><severity type="cvss_base_v2"><score>4.3</score><value>AV:N/AC:M/Au:N/C:P/I:N/A:N</value></severity></severities>
        </nvt>
        <threat>Medium</threat><severity>4.3</severity><qod><value>95</value></qod>
        <description>The remote SSH server is configured to allow weak encryption algorithms.</description>
      </result>
      <result><name>Record without id</name><threat>Low</threat></result>
    </results>
  </report>
</report>
</get_reports_response>`

// fakeGVM 模拟 gvm-cli 桥接进程
type fakeGVM struct {
	mu        sync.Mutex
	listing   string
	details   map[string]string
	listErr   error
	fetches   map[string]int
	fetchFail bool
}

func newFakeGVM() *fakeGVM {
	return &fakeGVM{
		listing: listingR1,
		details: map[string]string{"r1": detailR1},
		fetches: map[string]int{},
	}
}

func (f *fakeGVM) Run(ctx context.Context, xmlCommand string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	cmd, err := gmp.ParseNode([]byte(xmlCommand))
	if err != nil {
		return nil, err
	}
	if cmd.Name != "get_reports" {
		return nil, errors.New("unexpected command " + cmd.Name)
	}
	reportID := cmd.Attr("report_id")
	if reportID == "" {
		if f.listErr != nil {
			return nil, f.listErr
		}
		return []byte(f.listing), nil
	}

	f.fetches[reportID]++
	if f.fetchFail {
		return []byte(`<get_reports_response status="404" status_text="Failed to find report"/>`), nil
	}
	return []byte(f.details[reportID]), nil
}

func (f *fakeGVM) fetchCount(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetches[id]
}

// memoryIndex 内存索引
type memoryIndex struct {
	mu      sync.Mutex
	indexes map[string]bool
	docs    map[string]*gvm.IndexDocument
	upserts int
	fail    error
}

func newMemoryIndex() *memoryIndex {
	return &memoryIndex{indexes: map[string]bool{}, docs: map[string]*gvm.IndexDocument{}}
}

func (m *memoryIndex) EnsureIndex(ctx context.Context, name string, mapping map[string]interface{}) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.indexes[name] {
		return false, nil
	}
	m.indexes[name] = true
	return true, nil
}

func (m *memoryIndex) Upsert(ctx context.Context, index, id string, doc *gvm.IndexDocument) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return m.fail
	}
	m.upserts++
	m.docs[index+"/"+id] = doc
	return nil
}

func (m *memoryIndex) setFail(err error) {
	m.mu.Lock()
	m.fail = err
	m.mu.Unlock()
}

// recordingNotifier 记录发布的事件
type recordingNotifier struct {
	events []*notify.Event
}

func (r *recordingNotifier) Publish(ctx context.Context, e *notify.Event) error {
	r.events = append(r.events, e)
	return nil
}

func (r *recordingNotifier) Close() error { return nil }

type testEnv struct {
	svc      *Service
	gvm      *fakeGVM
	index    *memoryIndex
	repo     *artifact.FileRepository
	dirs     map[artifact.Area]string
	ledger   string
	notifier *recordingNotifier
}

func newTestEnv(t *testing.T, strategy string) *testEnv {
	t.Helper()
	root := t.TempDir()
	dirs := map[artifact.Area]string{
		artifact.AreaReports: filepath.Join(root, "reports"),
		artifact.AreaPending: filepath.Join(root, "detailed_reports"),
		artifact.AreaArchive: filepath.Join(root, "detailed_reports", "archive"),
		artifact.AreaParsed:  filepath.Join(root, "detailed_reports", "parsed"),
	}
	ledgerPath := filepath.Join(dirs[artifact.AreaParsed], "ingested_reports.txt")

	selector, err := extractor.NewSelector(strategy, 0)
	require.NoError(t, err)

	env := &testEnv{
		gvm:      newFakeGVM(),
		index:    newMemoryIndex(),
		repo:     artifact.NewFileRepository(dirs),
		dirs:     dirs,
		ledger:   ledgerPath,
		notifier: &recordingNotifier{},
	}
	env.svc = NewService(Dependencies{
		Client:     gmp.NewClient(env.gvm, "a994b278-1f62-11e1-96ac-406186ea4fc5", "pl"),
		Artifacts:  env.repo,
		Extractors: selector,
		Index:      env.index,
		Ledger:     ledger.NewFileLedger(ledgerPath),
		Notifier:   env.notifier,
	})
	return env
}

func (e *testEnv) list(t *testing.T, area artifact.Area, kind artifact.Kind) []*artifact.Artifact {
	t.Helper()
	list, err := e.repo.List(context.Background(), area, kind)
	require.NoError(t, err)
	return list
}

func (e *testEnv) read(t *testing.T, a *artifact.Artifact) string {
	t.Helper()
	data, err := e.repo.Read(context.Background(), a)
	require.NoError(t, err)
	return string(data)
}

func (e *testEnv) ledgerLines(t *testing.T) []string {
	t.Helper()
	data, err := os.ReadFile(e.ledger)
	require.NoError(t, err)
	return strings.Fields(string(data))
}

func TestEndToEndCycle(t *testing.T) {
	env := newTestEnv(t, extractor.StrategyDocument)
	ctx := context.Background()

	res, err := env.svc.DiscoverReportIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Processed)
	snapshots := env.list(t, artifact.AreaReports, artifact.KindReportIDs)
	require.Len(t, snapshots, 1)
	assert.Equal(t, "r1\n", env.read(t, snapshots[0]))

	_, err = env.svc.BuildReportTaskMapping(ctx)
	require.NoError(t, err)
	mapping, _, err := env.svc.LatestMapping(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"r1": "t1"}, mapping)

	res, err = env.svc.FetchDetailedReports(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Processed)
	pending := env.list(t, artifact.AreaPending, artifact.KindDetailed)
	require.Len(t, pending, 1)
	assert.True(t, strings.HasPrefix(pending[0].Name, "detailed_report_r1_"))
	assert.Contains(t, env.read(t, pending[0]), `<result id="res-1">`)

	res, err = env.svc.ParseAndArchive(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Processed)
	assert.Empty(t, env.list(t, artifact.AreaPending, artifact.KindDetailed))
	archived := env.list(t, artifact.AreaArchive, artifact.KindDetailed)
	require.Len(t, archived, 1)
	assert.Equal(t, pending[0].Name, archived[0].Name)

	parsed := env.list(t, artifact.AreaParsed, artifact.KindParsed)
	require.Len(t, parsed, 1)
	assert.Equal(t, "r1", parsed[0].ReportID)
	var file gvm.VulnerabilityFile
	require.NoError(t, json.Unmarshal([]byte(env.read(t, parsed[0])), &file))
	require.Len(t, file.Vulnerabilities, 2)
	assert.Equal(t, "10.0.0.9", file.Vulnerabilities[0].Host.IP)
	assert.Equal(t, "db.local", file.Vulnerabilities[0].Host.Hostname)

	res, err = env.svc.IngestParsedReports(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Processed)
	require.Len(t, env.index.docs, 1)
	doc := env.index.docs[DefaultIndexName+"/res-1"]
	require.NotNil(t, doc)
	assert.Equal(t, 95, *doc.QoD)
	assert.Equal(t, []string{parsed[0].Name}, env.ledgerLines(t))
	require.Len(t, env.notifier.events, 1)
	assert.Equal(t, 1, env.notifier.events[0].Documents)

	// 第二轮：无新详细报告、无新解析文件、账本无重复
	results, err := env.svc.RunStage(ctx, StageAll)
	require.NoError(t, err)
	require.Len(t, results, len(Stages))
	assert.Equal(t, 1, results[2].Skipped)
	assert.Equal(t, 0, results[2].Processed)
	assert.Equal(t, 1, env.gvm.fetchCount("r1"))
	assert.Empty(t, env.list(t, artifact.AreaPending, artifact.KindDetailed))
	assert.Len(t, env.list(t, artifact.AreaParsed, artifact.KindParsed), 1)
	assert.Equal(t, []string{parsed[0].Name}, env.ledgerLines(t))
	assert.Equal(t, 1, results[4].Skipped)
	assert.Len(t, env.index.docs, 1)

	status := env.svc.Status()
	assert.Len(t, status, len(Stages))
	assert.Equal(t, 1, status[StageIngest].Skipped)
}

func TestDiscoverSkipsEmptyAndMalformedListings(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		listing string
	}{
		{"empty", `<get_reports_response status="200" status_text="OK"/>`},
		{"reports without ids", `<get_reports_response status="200"><report><task id="t"/></report></get_reports_response>`},
		{"unexpected root", `<get_tasks_response status="200"><task id="t"/></get_tasks_response>`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, extractor.StrategyDocument)
			env.gvm.listing = tt.listing

			_, err := env.svc.DiscoverReportIDs(ctx)
			require.NoError(t, err)
			_, err = env.svc.BuildReportTaskMapping(ctx)
			require.NoError(t, err)

			assert.Empty(t, env.list(t, artifact.AreaReports, artifact.KindReportIDs))
			assert.Empty(t, env.list(t, artifact.AreaReports, artifact.KindMapping))
		})
	}
}

func TestDiscoverUpstreamFailure(t *testing.T) {
	env := newTestEnv(t, extractor.StrategyDocument)
	env.gvm.listErr = errors.New("exited with code 1: Failed to authenticate")

	res, err := env.svc.DiscoverReportIDs(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, system.ErrUpstream)
	assert.Contains(t, res.Error, "Failed to authenticate")
	assert.Empty(t, env.list(t, artifact.AreaReports, artifact.KindReportIDs))
	assert.Equal(t, res.Error, env.svc.Status()[StageDiscoverIDs].Error)
}

func TestSnapshotKeepsListingOrder(t *testing.T) {
	env := newTestEnv(t, extractor.StrategyDocument)
	env.gvm.listing = `<get_reports_response status="200">
  <report id="zz"><task id="t1"/></report>
  <report id="aa"/>
  <report id="mm"><task id="t3"/></report>
</get_reports_response>`
	ctx := context.Background()

	_, err := env.svc.DiscoverReportIDs(ctx)
	require.NoError(t, err)
	res, err := env.svc.BuildReportTaskMapping(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Skipped)

	snapshots := env.list(t, artifact.AreaReports, artifact.KindReportIDs)
	require.Len(t, snapshots, 1)
	assert.Equal(t, "zz\naa\nmm\n", env.read(t, snapshots[0]))

	mapping, _, err := env.svc.LatestMapping(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"zz": "t1", "mm": "t3"}, mapping)
}

func TestFetchWithoutMapping(t *testing.T) {
	env := newTestEnv(t, extractor.StrategyDocument)
	res, err := env.svc.FetchDetailedReports(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, res.Processed)
	assert.Equal(t, 0, env.gvm.fetchCount("r1"))
}

func TestFetchUsesLatestMapping(t *testing.T) {
	env := newTestEnv(t, extractor.StrategyDocument)
	ctx := context.Background()

	_, err := env.repo.WriteNew(ctx, artifact.AreaReports, artifact.KindMapping, "", []byte(`{"old":"t0"}`))
	require.NoError(t, err)
	_, err = env.svc.BuildReportTaskMapping(ctx)
	require.NoError(t, err)

	_, err = env.svc.FetchDetailedReports(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, env.gvm.fetchCount("old"))
	assert.Equal(t, 1, env.gvm.fetchCount("r1"))
}

func TestFetchFailureWritesNothing(t *testing.T) {
	env := newTestEnv(t, extractor.StrategyDocument)
	ctx := context.Background()
	_, err := env.svc.BuildReportTaskMapping(ctx)
	require.NoError(t, err)

	env.gvm.fetchFail = true
	res, err := env.svc.FetchDetailedReports(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Failed)
	assert.Empty(t, env.list(t, artifact.AreaPending, artifact.KindDetailed))

	// 下一轮自然重试
	env.gvm.fetchFail = false
	res, err = env.svc.FetchDetailedReports(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Processed)
	assert.Equal(t, 2, env.gvm.fetchCount("r1"))
}

func TestFetchEmptyReportWritesNothing(t *testing.T) {
	env := newTestEnv(t, extractor.StrategyDocument)
	ctx := context.Background()
	_, err := env.svc.BuildReportTaskMapping(ctx)
	require.NoError(t, err)

	env.gvm.details["r1"] = `<get_reports_response status="200" status_text="OK"/>`
	res, err := env.svc.FetchDetailedReports(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Processed)
	assert.Equal(t, 1, res.Failed)
	assert.Empty(t, env.list(t, artifact.AreaPending, artifact.KindDetailed))

	// 报告可用后下一轮会重新拉取
	env.gvm.details["r1"] = detailR1
	res, err = env.svc.FetchDetailedReports(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Processed)
	assert.Equal(t, 0, res.Skipped)
	assert.Equal(t, 2, env.gvm.fetchCount("r1"))
	assert.Len(t, env.list(t, artifact.AreaPending, artifact.KindDetailed), 1)
}

func TestFetchSkipsArchivedReports(t *testing.T) {
	env := newTestEnv(t, extractor.StrategyDocument)
	ctx := context.Background()
	_, err := env.svc.BuildReportTaskMapping(ctx)
	require.NoError(t, err)

	a, err := env.repo.WriteNew(ctx, artifact.AreaPending, artifact.KindDetailed, "r1", []byte(detailR1))
	require.NoError(t, err)
	_, err = env.repo.Move(ctx, a, artifact.AreaArchive)
	require.NoError(t, err)

	res, err := env.svc.FetchDetailedReports(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, 0, env.gvm.fetchCount("r1"))
}

func TestParseFailureLeavesFilePending(t *testing.T) {
	env := newTestEnv(t, extractor.StrategyDocument)
	ctx := context.Background()

	_, err := env.repo.WriteNew(ctx, artifact.AreaPending, artifact.KindDetailed, "bad", []byte(`<report><results><result id="x">`))
	require.NoError(t, err)
	_, err = env.repo.WriteNew(ctx, artifact.AreaPending, artifact.KindDetailed, "r1", []byte(detailR1))
	require.NoError(t, err)

	res, err := env.svc.ParseAndArchive(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, 1, res.Processed)

	pending := env.list(t, artifact.AreaPending, artifact.KindDetailed)
	require.Len(t, pending, 1)
	assert.Equal(t, "bad", pending[0].ReportID)

	archived := env.list(t, artifact.AreaArchive, artifact.KindDetailed)
	require.Len(t, archived, 1)
	assert.Equal(t, "r1", archived[0].ReportID)

	parsed := env.list(t, artifact.AreaParsed, artifact.KindParsed)
	require.Len(t, parsed, 1)
	assert.Equal(t, "r1", parsed[0].ReportID)
}

func TestStreamStrategyRoundTrip(t *testing.T) {
	env := newTestEnv(t, extractor.StrategyStream)
	ctx := context.Background()

	_, err := env.repo.WriteNew(ctx, artifact.AreaPending, artifact.KindDetailed, "r1", []byte(detailR1))
	require.NoError(t, err)

	_, err = env.svc.ParseAndArchive(ctx)
	require.NoError(t, err)

	parsed := env.list(t, artifact.AreaParsed, artifact.KindParsed)
	require.Len(t, parsed, 1)
	var rec gvm.ReportRecord
	require.NoError(t, json.Unmarshal([]byte(env.read(t, parsed[0])), &rec))
	assert.Equal(t, "r1", rec.ReportID)
	assert.Equal(t, "admin", rec.Owner)
	require.Len(t, rec.Results, 2)

	res, err := env.svc.IngestParsedReports(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Processed)
	require.Len(t, env.index.docs, 1)
	doc := env.index.docs[DefaultIndexName+"/res-1"]
	require.NotNil(t, doc)
	assert.Equal(t, "2025-03-02T10:00:05Z", doc.CreationTime)
	assert.Equal(t, "Medium", doc.Threat)
}

func TestIngestRetriesFileAfterIndexFailure(t *testing.T) {
	env := newTestEnv(t, extractor.StrategyDocument)
	ctx := context.Background()

	data, err := json.Marshal(gvm.VulnerabilityFile{Vulnerabilities: []gvm.VulnerabilityRecord{
		{ID: "a", Title: "first"},
		{ID: "b", Title: "second"},
		{Title: "no id"},
	}})
	require.NoError(t, err)
	_, err = env.repo.WriteNew(ctx, artifact.AreaParsed, artifact.KindParsed, "r9", data)
	require.NoError(t, err)

	env.index.setFail(errors.New("cluster unavailable"))
	res, err := env.svc.IngestParsedReports(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Failed)
	_, err = os.Stat(env.ledger)
	assert.True(t, os.IsNotExist(err))

	env.index.setFail(nil)
	res, err = env.svc.IngestParsedReports(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Processed)
	assert.Len(t, env.index.docs, 2)
	assert.Len(t, env.ledgerLines(t), 1)

	res, err = env.svc.IngestParsedReports(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, 2, env.index.upserts)
	assert.Len(t, env.ledgerLines(t), 1)
}

func TestIngestLastWriteWins(t *testing.T) {
	env := newTestEnv(t, extractor.StrategyDocument)
	ctx := context.Background()

	for _, title := range []string{"old title", "new title"} {
		data, err := json.Marshal(gvm.VulnerabilityFile{Vulnerabilities: []gvm.VulnerabilityRecord{{ID: "dup", Title: title}}})
		require.NoError(t, err)
		_, err = env.repo.WriteNew(ctx, artifact.AreaParsed, artifact.KindParsed, "r1", data)
		require.NoError(t, err)
	}

	res, err := env.svc.IngestParsedReports(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Processed)
	require.Len(t, env.index.docs, 1)
	assert.Equal(t, "new title", env.index.docs[DefaultIndexName+"/dup"].Title)
}

func TestIngestSkipsUnreadableFiles(t *testing.T) {
	env := newTestEnv(t, extractor.StrategyDocument)
	ctx := context.Background()

	_, err := env.repo.WriteNew(ctx, artifact.AreaParsed, artifact.KindParsed, "broken", []byte(`{"vulnerabilities": [`))
	require.NoError(t, err)
	_, err = env.repo.WriteNew(ctx, artifact.AreaParsed, artifact.KindParsed, "other", []byte(`{"unrelated": true}`))
	require.NoError(t, err)
	_, err = env.repo.WriteNew(ctx, artifact.AreaParsed, artifact.KindParsed, "ok", []byte(`{"vulnerabilities": [{"id": "v1"}]}`))
	require.NoError(t, err)

	res, err := env.svc.IngestParsedReports(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Failed)
	assert.Equal(t, 1, res.Processed)
	assert.Len(t, env.index.docs, 1)
}

func TestDecodeParsedFile(t *testing.T) {
	records, err := decodeParsedFile([]byte(`{"vulnerabilities": []}`))
	require.NoError(t, err)
	assert.Empty(t, records)

	records, err = decodeParsedFile([]byte(`{"report_id":"r","owner":"admin","creation_time":"c","modification_time":"m","results":[{"id":"x","name":"n"}]}`))
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "x", records[0].ID)
	assert.Equal(t, "c", records[0].CreationTime)

	_, err = decodeParsedFile([]byte(`[]`))
	assert.Error(t, err)
}

func TestRunStage(t *testing.T) {
	env := newTestEnv(t, extractor.StrategyDocument)
	ctx := context.Background()

	_, err := env.svc.RunStage(ctx, "nope")
	assert.ErrorIs(t, err, system.ErrUnknownStage)

	results, err := env.svc.RunStage(ctx, StageMapping)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, StageMapping, results[0].Stage)

	assert.True(t, IsStage(StageAll))
	assert.True(t, IsStage(StageFetch))
	assert.False(t, IsStage("nope"))
}

func TestConcurrentFetchIsSafe(t *testing.T) {
	env := newTestEnv(t, extractor.StrategyDocument)
	ctx := context.Background()
	_, err := env.svc.BuildReportTaskMapping(ctx)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.svc.FetchDetailedReports(ctx)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	// 重叠运行可能重复拉取，但每次写入的文件名互不相同，之后的运行不再拉取
	fetched := env.gvm.fetchCount("r1")
	assert.GreaterOrEqual(t, fetched, 1)
	assert.Len(t, env.list(t, artifact.AreaPending, artifact.KindDetailed), fetched)

	_, err = env.svc.FetchDetailedReports(ctx)
	require.NoError(t, err)
	assert.Equal(t, fetched, env.gvm.fetchCount("r1"))
}
