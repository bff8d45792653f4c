// Package pipeline runs one download-then-load cycle.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/arnavsurve/nsecorp/pkg/config"
	"github.com/arnavsurve/nsecorp/pkg/downloader"
	"github.com/arnavsurve/nsecorp/pkg/log"
	"github.com/arnavsurve/nsecorp/pkg/store"
	"github.com/arnavsurve/nsecorp/pkg/types"
)

// ErrFileMissing means the driver finished without leaving the dated CSV.
var ErrFileMissing = errors.New("expected CSV file not found")

// Store is the part of the storage layer a run needs.
type Store interface {
	EnsureTable(ctx context.Context, table string) error
	LoadCSV(ctx context.Context, table, csvPath string) (*store.LoadResult, error)
	Close() error
}

// OpenSQLite opens the SQLite store the CLI uses.
func OpenSQLite(logger types.Logger) func(path string) (Store, error) {
	return func(path string) (Store, error) {
		return store.Open(path, store.WithLogger(logger))
	}
}

// Report is the outcome of a run.
type Report struct {
	States       []State
	ExpectedFile string
	Download     *types.DownloadResult
	// DriverErr is the collaborator failure, if any. It does not stop the run.
	DriverErr    error
	RowsInserted int
	// Err is the error that ended the run early: a missing file, a schema
	// failure or a load failure.
	Err error
}

func (r *Report) enter(s State) {
	r.States = append(r.States, s)
}

// Reached reports whether the run passed through s.
func (r *Report) Reached(s State) bool {
	for _, visited := range r.States {
		if visited == s {
			return true
		}
	}
	return false
}

// Orchestrator wires config, driver and store together for one run.
type Orchestrator struct {
	Config    *config.Config
	Driver    downloader.Driver
	OpenStore func(path string) (Store, error)
	Clock     func() time.Time
	Logger    types.Logger
}

func (o *Orchestrator) now() time.Time {
	if o.Clock != nil {
		return o.Clock()
	}
	return time.Now()
}

func (o *Orchestrator) logger() types.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return log.Nop()
}

// Run downloads the CSV files and loads the dated one. Errors are logged and
// recorded in the Report; Run itself never fails. The driver is closed
// exactly once whatever happens.
func (o *Orchestrator) Run(ctx context.Context) *Report {
	logger := o.logger()
	report := &Report{}
	report.enter(StateIdle)

	defer func() {
		if err := o.Driver.Close(); err != nil {
			logger.Warn().Err(err).Msg("Closing browser session failed")
		}
		report.enter(StateBrowserClosed)
		report.enter(StateDone)
		logger.Info().Str("state", StateDone.String()).Int("rows_inserted", report.RowsInserted).Msg("Run finished")
	}()

	dataDir := o.Config.Storage.DataDir
	if _, err := os.Stat(dataDir); os.IsNotExist(err) {
		if err := os.MkdirAll(dataDir, 0755); err != nil {
			report.Err = fmt.Errorf("creating data directory %q: %w", dataDir, err)
			logger.Error().Err(report.Err).Msg("Could not create data directory")
			return report
		}
		logger.Info().Str("path", dataDir).Msgf("Created directory: %s", dataDir)
	}
	report.enter(StateDirectoryEnsured)

	today := o.now()
	report.ExpectedFile = downloader.ExpectedFilename(dataDir, o.Config.Source.FilePrefix, today)

	req := types.DownloadRequest{
		SourceURL:    o.Config.Source.URL,
		Task:         o.Config.AgentTask(),
		DownloadDir:  dataDir,
		ExpectedFile: report.ExpectedFile,
		FilePrefix:   o.Config.Source.FilePrefix,
		DateStamp:    downloader.DateStamp(today),
		Tabs:         o.Config.Source.Tabs,
		MaxSteps:     o.Config.MaxSteps(),
	}

	report.enter(StateAgentRunning)
	logger.Info().Str("driver", o.Config.Driver).Int("max_steps", req.MaxSteps).Msg("Starting browser download")
	report.Download, report.DriverErr = o.download(ctx, req)
	if report.DriverErr != nil {
		report.enter(StateAgentFailed)
		logger.Error().Err(report.DriverErr).Msg("Browser download failed, checking for the CSV anyway")
	} else {
		report.enter(StateAgentSucceeded)
	}

	if _, err := os.Stat(report.ExpectedFile); err != nil {
		report.enter(StateFileMissing)
		report.Err = fmt.Errorf("%w: %s", ErrFileMissing, report.ExpectedFile)
		logger.Error().Str("file", report.ExpectedFile).Msgf("CSV file not found: %s", report.ExpectedFile)
		report.enter(StateLoggedError)
		return report
	}
	report.enter(StateFileFound)

	o.load(ctx, report)
	return report
}

// download calls the driver, turning a panic into an error.
func (o *Orchestrator) download(ctx context.Context, req types.DownloadRequest) (res *types.DownloadResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			res = nil
			err = fmt.Errorf("browser driver panicked: %v", r)
		}
	}()
	return o.Driver.Download(ctx, req)
}

func (o *Orchestrator) load(ctx context.Context, report *Report) {
	logger := o.logger()
	table := o.Config.Storage.Table

	st, err := o.OpenStore(o.Config.Storage.DBPath)
	if err != nil {
		report.enter(StateSchemaFailed)
		report.Err = &store.SchemaError{Table: table, Err: err}
		logger.Error().Err(err).Str("database", o.Config.Storage.DBPath).Msg("Could not open database")
		return
	}
	defer func() {
		if err := st.Close(); err != nil {
			logger.Warn().Err(err).Msg("Closing database failed")
		}
	}()

	if err := st.EnsureTable(ctx, table); err != nil {
		report.enter(StateSchemaFailed)
		report.Err = err
		logger.Error().Err(err).Str("table", table).Msgf("Error creating table: %v", err)
		return
	}

	res, err := st.LoadCSV(ctx, table, report.ExpectedFile)
	if res != nil {
		report.RowsInserted = res.RowsInserted
	}
	if err != nil {
		report.enter(StateLoadFailed)
		report.Err = err
		logger.Error().Err(err).Int("rows_inserted", report.RowsInserted).Msgf("Error inserting data: %v", err)
		return
	}
	report.enter(StateLoaded)
}
