package pipeline_test

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/arnavsurve/nsecorp/pkg/config"
	"github.com/arnavsurve/nsecorp/pkg/log"
	"github.com/arnavsurve/nsecorp/pkg/pipeline"
	"github.com/arnavsurve/nsecorp/pkg/store"
	"github.com/arnavsurve/nsecorp/pkg/types"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const csvBody = "Symbol,Company Name,Security Type,Ex Date,Purpose,Record Date,BC Start Date,BC End Date,ND Start Date,ND End Date,Actual Payment Date,Remarks\n" +
	"TCS,Tata Consultancy Services Ltd,EQ,20-Oct-2026,Interim Dividend,20-Oct-2026,-,-,-,-,-,-\n" +
	"INFY,Infosys Ltd,EQ,21-Oct-2026,Interim Dividend,21-Oct-2026,-,-,-,-,-,-\n"

var runDay = time.Date(2026, 10, 19, 8, 15, 0, 0, time.Local)

type fakeDriver struct {
	writeFile bool
	err       error
	panicWith any
	req       types.DownloadRequest
	closed    int
}

func (f *fakeDriver) Validate() error { return nil }

func (f *fakeDriver) Download(ctx context.Context, req types.DownloadRequest) (*types.DownloadResult, error) {
	f.req = req
	if f.writeFile {
		if err := os.WriteFile(req.ExpectedFile, []byte(csvBody), 0644); err != nil {
			return nil, err
		}
	}
	if f.panicWith != nil {
		panic(f.panicWith)
	}
	return &types.DownloadResult{Success: f.err == nil}, f.err
}

func (f *fakeDriver) Close() error {
	f.closed++
	return nil
}

type fakeStore struct {
	ensureErr error
	loadErr   error
	calls     []string
	closed    int
}

func (f *fakeStore) EnsureTable(ctx context.Context, table string) error {
	f.calls = append(f.calls, "ensure "+table)
	return f.ensureErr
}

func (f *fakeStore) LoadCSV(ctx context.Context, table, csvPath string) (*store.LoadResult, error) {
	f.calls = append(f.calls, "load "+filepath.Base(csvPath))
	if f.loadErr != nil {
		return &store.LoadResult{File: csvPath, RowsInserted: 2}, f.loadErr
	}
	return &store.LoadResult{File: csvPath, RowsInserted: 2}, nil
}

func (f *fakeStore) Close() error {
	f.closed++
	return nil
}

type harness struct {
	orch   *pipeline.Orchestrator
	driver *fakeDriver
	store  *fakeStore
	opens  int
	logs   *bytes.Buffer
}

func newHarness(t *testing.T, driver *fakeDriver, st *fakeStore) *harness {
	t.Helper()
	cfg := config.Default()
	cfg.Storage.DataDir = filepath.Join(t.TempDir(), "data")
	cfg.Storage.DBPath = filepath.Join(t.TempDir(), "actions.db")

	h := &harness{driver: driver, store: st, logs: &bytes.Buffer{}}
	h.orch = &pipeline.Orchestrator{
		Config: cfg,
		Driver: driver,
		OpenStore: func(path string) (pipeline.Store, error) {
			h.opens++
			return st, nil
		},
		Clock:  func() time.Time { return runDay },
		Logger: log.NewZerologAdapter(zerolog.New(h.logs)),
	}
	return h
}

func TestRun_Success(t *testing.T) {
	h := newHarness(t, &fakeDriver{writeFile: true}, &fakeStore{})

	report := h.orch.Run(context.Background())
	require.NoError(t, report.Err)
	assert.NoError(t, report.DriverErr)
	assert.Equal(t, 2, report.RowsInserted)

	assert.Equal(t, []pipeline.State{
		pipeline.StateIdle,
		pipeline.StateDirectoryEnsured,
		pipeline.StateAgentRunning,
		pipeline.StateAgentSucceeded,
		pipeline.StateFileFound,
		pipeline.StateLoaded,
		pipeline.StateBrowserClosed,
		pipeline.StateDone,
	}, report.States)

	assert.Equal(t, filepath.Join(h.orch.Config.Storage.DataDir, "nse_corporate_actions_20261019.csv"), report.ExpectedFile)
	assert.Equal(t, report.ExpectedFile, h.driver.req.ExpectedFile)
	assert.Equal(t, "20261019", h.driver.req.DateStamp)
	assert.Equal(t, []string{"SME", "Debt", "MF"}, h.driver.req.Tabs)
	assert.Contains(t, h.driver.req.Task, "Select the 'MF' tab")

	assert.Equal(t, []string{"ensure corporate_actions", "load nse_corporate_actions_20261019.csv"}, h.store.calls)
	assert.Equal(t, 1, h.driver.closed)
	assert.Equal(t, 1, h.store.closed)
	assert.Contains(t, h.logs.String(), "Created directory")
}

func TestRun_DriverClosedExactlyOnce(t *testing.T) {
	tests := []struct {
		name        string
		driver      *fakeDriver
		wantLoaded  bool
		wantMissing bool
	}{
		{name: "success", driver: &fakeDriver{writeFile: true}, wantLoaded: true},
		{name: "driver error with file", driver: &fakeDriver{writeFile: true, err: errors.New("step budget exhausted")}, wantLoaded: true},
		{name: "driver error without file", driver: &fakeDriver{err: errors.New("browser crashed")}, wantMissing: true},
		{name: "driver panic", driver: &fakeDriver{panicWith: "nil map write"}, wantMissing: true},
		{name: "driver panic after download", driver: &fakeDriver{writeFile: true, panicWith: errors.New("boom")}, wantLoaded: true},
		{name: "nothing downloaded", driver: &fakeDriver{}, wantMissing: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, tt.driver, &fakeStore{})
			report := h.orch.Run(context.Background())

			assert.Equal(t, 1, tt.driver.closed)
			assert.Equal(t, tt.wantLoaded, report.Reached(pipeline.StateLoaded))
			assert.Equal(t, tt.wantMissing, report.Reached(pipeline.StateFileMissing))
			assert.Equal(t, pipeline.StateDone, report.States[len(report.States)-1])
			assert.Equal(t, pipeline.StateBrowserClosed, report.States[len(report.States)-2])

			if tt.driver.err != nil || tt.driver.panicWith != nil {
				assert.Error(t, report.DriverErr)
				assert.True(t, report.Reached(pipeline.StateAgentFailed))
			}
		})
	}
}

func TestRun_MissingFileSkipsStore(t *testing.T) {
	h := newHarness(t, &fakeDriver{err: errors.New("agent gave up")}, &fakeStore{})

	report := h.orch.Run(context.Background())
	require.Error(t, report.Err)
	assert.ErrorIs(t, report.Err, pipeline.ErrFileMissing)
	assert.Zero(t, h.opens)
	assert.Empty(t, h.store.calls)
	assert.Zero(t, report.RowsInserted)
	assert.True(t, report.Reached(pipeline.StateLoggedError))

	logs := h.logs.String()
	assert.Contains(t, logs, `"level":"error"`)
	assert.Contains(t, logs, "CSV file not found: "+report.ExpectedFile)
}

func TestRun_SchemaFailureSkipsLoad(t *testing.T) {
	schemaErr := &store.SchemaError{Table: "corporate_actions", Err: errors.New("disk I/O error")}
	h := newHarness(t, &fakeDriver{writeFile: true}, &fakeStore{ensureErr: schemaErr})

	report := h.orch.Run(context.Background())
	var got *store.SchemaError
	require.ErrorAs(t, report.Err, &got)
	assert.True(t, report.Reached(pipeline.StateSchemaFailed))
	assert.Equal(t, []string{"ensure corporate_actions"}, h.store.calls)
	assert.Equal(t, 1, h.store.closed)
	assert.Equal(t, 1, h.driver.closed)
}

func TestRun_LoadFailure(t *testing.T) {
	insertErr := &store.InsertError{Table: "corporate_actions", Row: 3, Err: errors.New("sql: expected 13 arguments, got 12")}
	h := newHarness(t, &fakeDriver{writeFile: true}, &fakeStore{loadErr: insertErr})

	report := h.orch.Run(context.Background())
	var got *store.InsertError
	require.ErrorAs(t, report.Err, &got)
	assert.Equal(t, 3, got.Row)
	assert.Equal(t, 2, report.RowsInserted)
	assert.True(t, report.Reached(pipeline.StateLoadFailed))
	assert.False(t, report.Reached(pipeline.StateLoaded))
	assert.Equal(t, 1, h.store.closed)
}

func TestRun_OpenStoreFailure(t *testing.T) {
	h := newHarness(t, &fakeDriver{writeFile: true}, &fakeStore{})
	h.orch.OpenStore = func(string) (pipeline.Store, error) { return nil, errors.New("unable to open database file") }

	report := h.orch.Run(context.Background())
	var got *store.SchemaError
	require.ErrorAs(t, report.Err, &got)
	assert.Equal(t, 1, h.driver.closed)
}

func TestRun_WithSQLite(t *testing.T) {
	h := newHarness(t, &fakeDriver{writeFile: true}, nil)
	h.orch.OpenStore = pipeline.OpenSQLite(h.orch.Logger)

	report := h.orch.Run(context.Background())
	require.NoError(t, report.Err)
	assert.Equal(t, 2, report.RowsInserted)

	st, err := store.Open(h.orch.Config.Storage.DBPath)
	require.NoError(t, err)
	defer st.Close()
	records, err := st.ListRecords(context.Background(), "corporate_actions")
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "TCS", records[0].Symbol)
	assert.NotEmpty(t, records[1].DateTimeDownloaded)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "file_missing", pipeline.StateFileMissing.String())
	assert.Equal(t, "unknown", pipeline.State(99).String())
}
