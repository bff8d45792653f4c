package cli

import (
	"context"
	"fmt"

	"github.com/arnavsurve/nsecorp/pkg/store"
)

// ExportCmd writes every stored row back out as CSV.
type ExportCmd struct {
	Config string `help:"The YAML config file." default:"nsecorp.yml"`
	Out    string `help:"Destination CSV file." required:"" short:"o" type:"path"`
}

func (e *ExportCmd) Run() error {
	s, err := startSession(e.Config, "", false, nil)
	if err != nil {
		return err
	}
	defer s.Close()

	st, err := store.Open(s.Config.Storage.DBPath, store.WithLogger(s.component("store")))
	if err != nil {
		return err
	}
	defer st.Close()

	n, err := st.ExportCSV(context.Background(), s.Config.Storage.Table, e.Out)
	if err != nil {
		s.Logger.Error().Err(err).Msg("Export failed")
		return fmt.Errorf("exporting table %q: %w", s.Config.Storage.Table, err)
	}
	s.Logger.Info().Int("rows", n).Msgf("Exported %d rows to %q", n, e.Out)
	return nil
}
