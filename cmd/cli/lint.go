package cli

import (
	"fmt"

	"github.com/arnavsurve/nsecorp/pkg/downloader"
)

type LintCmd struct {
	Config string `help:"The YAML config file." default:"nsecorp.yml"`
	Driver string `help:"Override the browser driver (browser_agent or chromedp)."`
}

func (l *LintCmd) Run() error {
	s, err := startSession(l.Config, l.Driver, false, nil)
	if err != nil {
		return err
	}
	defer s.Close()

	s.Logger.Info().Msgf("Validating %s driver...", s.Config.Driver)
	driver, err := downloader.New(s.Config, s.component(s.Config.Driver))
	if err != nil {
		s.Logger.Error().Err(err).Msg("Error getting driver")
		return fmt.Errorf("getting driver %q: %w", s.Config.Driver, err)
	}
	defer driver.Close()

	if err := driver.Validate(); err != nil {
		s.Logger.Error().Err(err).Msg("Driver configuration validation failed")
		return fmt.Errorf("validating driver %q: %w", s.Config.Driver, err)
	}

	s.Logger.Info().
		Str("table", s.Config.Storage.Table).
		Str("database", s.Config.Storage.DBPath).
		Str("data_dir", s.Config.Storage.DataDir).
		Msg("Successfully validated configuration ✅")
	return nil
}
