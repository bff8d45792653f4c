package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/arnavsurve/nsecorp/pkg/downloader"
	"github.com/arnavsurve/nsecorp/pkg/pipeline"
	"github.com/google/uuid"
)

type RunCmd struct {
	Config string `help:"The YAML config file." default:"nsecorp.yml"`
	Driver string `help:"Override the browser driver (browser_agent or chromedp)."`
}

// Run downloads today's corporate actions and loads them. Once the config is
// loaded every failure is reported in the log and the command still succeeds.
func (r *RunCmd) Run() error {
	runID := uuid.New().String()

	s, err := startSession(r.Config, r.Driver, true, map[string]string{"run_id": runID})
	if err != nil {
		return err
	}
	defer s.Close()

	s.Logger.Info().Msgf("Starting run with ID: %s", runID)
	if s.LogFile != "" {
		s.Logger.Info().Msgf("Logs will be saved to %q", s.LogFile)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	driver, err := downloader.New(s.Config, s.component(s.Config.Driver))
	if err != nil {
		s.Logger.Error().Err(err).Msgf("Could not create %s driver", s.Config.Driver)
		return nil
	}
	if err := driver.Validate(); err != nil {
		s.Logger.Error().Err(err).Msg("Driver validation failed")
		driver.Close()
		return nil
	}

	orch := &pipeline.Orchestrator{
		Config:    s.Config,
		Driver:    driver,
		OpenStore: pipeline.OpenSQLite(s.component("store")),
		Logger:    s.component("pipeline"),
	}
	report := orch.Run(ctx)

	states := make([]string, len(report.States))
	for i, st := range report.States {
		states[i] = st.String()
	}
	event := s.Logger.Info()
	if report.Err != nil {
		event = s.Logger.Warn().Err(report.Err)
	}
	event.
		Interface("states", states).
		Str("file", report.ExpectedFile).
		Int("rows_inserted", report.RowsInserted).
		Msg("Run summary")
	return nil
}
