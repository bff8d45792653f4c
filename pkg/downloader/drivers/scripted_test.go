package drivers

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/arnavsurve/nsecorp/pkg/config"
	"github.com/arnavsurve/nsecorp/pkg/downloader"
	"github.com/arnavsurve/nsecorp/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSession writes a GUID-named file for every successful ClickDownload.
type fakeSession struct {
	dir        string
	failNav    error
	failClicks map[string]int // selector -> remaining failures
	failDL     map[int]bool   // download call index (1-based) -> fail
	calls      []string
	downloads  int
	closed     int
}

func (f *fakeSession) Navigate(ctx context.Context, url, ready string, timeout time.Duration) error {
	f.calls = append(f.calls, "navigate "+url)
	return f.failNav
}

func (f *fakeSession) Click(ctx context.Context, selector string, timeout time.Duration) error {
	f.calls = append(f.calls, "click "+selector)
	if f.failClicks[selector] > 0 {
		f.failClicks[selector]--
		return errors.New("node not visible")
	}
	return nil
}

func (f *fakeSession) ClickDownload(ctx context.Context, selector string, timeout time.Duration) (string, error) {
	f.downloads++
	f.calls = append(f.calls, "download")
	if f.failDL[f.downloads] {
		return "", errors.New("no download completed")
	}
	path := filepath.Join(f.dir, "guid-"+time.Now().Format("150405.000000000"))
	return path, os.WriteFile(path, []byte("Symbol\n"), 0644)
}

func (f *fakeSession) Close() error {
	f.closed++
	return nil
}

func scriptedConfig(dir string, tabs ...string) *config.Config {
	cfg := config.Default()
	cfg.Driver = config.DriverChromedp
	cfg.Storage.DataDir = dir
	cfg.Source.Tabs = tabs
	cfg.Scripted.Backoff = time.Millisecond
	cfg.Scripted.TabSelector = "tab:%s"
	cfg.Scripted.DownloadSelector = "csv"
	return cfg
}

func newTestDriver(cfg *config.Config, fake *fakeSession) *ScriptedDriver {
	d := NewScriptedDriver(cfg, nil)
	d.newSession = func(ctx context.Context, sc config.ScriptedConfig, downloadDir string, logger types.Logger) (session, error) {
		fake.dir = downloadDir
		return fake, nil
	}
	return d
}

func request(cfg *config.Config) types.DownloadRequest {
	day := time.Date(2026, 10, 19, 9, 0, 0, 0, time.Local)
	return types.DownloadRequest{
		SourceURL:    cfg.Source.URL,
		DownloadDir:  cfg.Storage.DataDir,
		ExpectedFile: downloader.ExpectedFilename(cfg.Storage.DataDir, cfg.Source.FilePrefix, day),
		FilePrefix:   cfg.Source.FilePrefix,
		DateStamp:    downloader.DateStamp(day),
		Tabs:         cfg.Source.Tabs,
		MaxSteps:     cfg.Scripted.MaxSteps,
	}
}

func TestBuildPlan(t *testing.T) {
	cfg := scriptedConfig("data", "SME", "Debt")
	plan := buildPlan(request(cfg), cfg.Scripted)

	require.Len(t, plan, minSteps(2))
	assert.Equal(t, actionNavigate, plan[0].Kind)
	assert.Equal(t, actionDownload, plan[1].Kind)
	assert.Equal(t, filepath.Join("data", "nse_corporate_actions_20261019.csv"), plan[1].Target)
	assert.Equal(t, action{Kind: actionClick, Tab: "SME", Selector: "tab:SME"}, plan[2])
	assert.Equal(t, filepath.Join("data", "nse_corporate_actions_debt_20261019.csv"), plan[5].Target)
}

func TestScriptedDriver_DownloadsAllTabs(t *testing.T) {
	dir := t.TempDir()
	cfg := scriptedConfig(dir, "SME", "Debt", "MF")
	fake := &fakeSession{}
	d := newTestDriver(cfg, fake)
	req := request(cfg)

	res, err := d.Download(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 8, res.Steps)
	require.Len(t, res.Files, 4)

	assert.FileExists(t, req.ExpectedFile)
	assert.FileExists(t, filepath.Join(dir, "nse_corporate_actions_mf_20261019.csv"))

	require.NoError(t, d.Close())
	require.NoError(t, d.Close())
	assert.Equal(t, 1, fake.closed)
}

func TestScriptedDriver_RetriesThenSkipsTab(t *testing.T) {
	dir := t.TempDir()
	cfg := scriptedConfig(dir, "SME", "Debt")
	cfg.Scripted.Attempts = 2
	fake := &fakeSession{failClicks: map[string]int{"tab:SME": 5}}
	d := newTestDriver(cfg, fake)

	res, err := d.Download(context.Background(), request(cfg))
	require.Error(t, err)
	assert.Contains(t, err.Error(), `selecting tab "SME"`)
	assert.False(t, res.Success)
	// navigate, default download, two SME clicks, Debt click, Debt download
	assert.Equal(t, 6, res.Steps)
	assert.Len(t, res.Files, 2)
	assert.FileExists(t, request(cfg).ExpectedFile)
}

func TestScriptedDriver_NavigateFailureAborts(t *testing.T) {
	cfg := scriptedConfig(t.TempDir(), "SME")
	cfg.Scripted.Attempts = 3
	fake := &fakeSession{failNav: errors.New("net::ERR_NAME_NOT_RESOLVED")}
	d := newTestDriver(cfg, fake)

	res, err := d.Download(context.Background(), request(cfg))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ERR_NAME_NOT_RESOLVED")
	assert.Equal(t, 3, res.Steps)
	assert.Zero(t, fake.downloads)
}

func TestScriptedDriver_StepBudget(t *testing.T) {
	cfg := scriptedConfig(t.TempDir(), "SME")
	cfg.Scripted.Attempts = 5
	fake := &fakeSession{failDL: map[int]bool{1: true, 2: true}}
	d := newTestDriver(cfg, fake)

	req := request(cfg)
	req.MaxSteps = 3
	res, err := d.Download(context.Background(), req)
	require.Error(t, err)
	assert.ErrorIs(t, err, downloader.ErrStepBudgetExhausted)
	assert.Equal(t, 3, res.Steps)
	assert.NoFileExists(t, req.ExpectedFile)
}

func TestScriptedDriver_Validate(t *testing.T) {
	cfg := scriptedConfig(t.TempDir(), "SME", "Debt", "MF")
	assert.NoError(t, NewScriptedDriver(cfg, nil).Validate())

	cfg.Scripted.MaxSteps = 7
	err := NewScriptedDriver(cfg, nil).Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "below the 8 actions")
}

func TestScriptedDriver_CloseWithoutDownload(t *testing.T) {
	d := NewScriptedDriver(scriptedConfig(t.TempDir()), nil)
	require.NoError(t, d.Close())

	_, err := d.Download(context.Background(), request(d.Config))
	assert.Error(t, err)
}

func TestAdoptDownload(t *testing.T) {
	dir := t.TempDir()
	saved := filepath.Join(dir, "5e1c-guid")
	target := filepath.Join(dir, "nested", "nse_corporate_actions_20261019.csv")
	require.NoError(t, os.WriteFile(saved, []byte("new"), 0644))

	require.NoError(t, adoptDownload(saved, target))
	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "new", string(data))
	assert.NoFileExists(t, saved)

	assert.Error(t, adoptDownload(saved, target))
}
