package cli

import (
	"context"
	"fmt"

	"github.com/arnavsurve/nsecorp/pkg/store"
)

// LoadCmd loads an already downloaded CSV without opening a browser.
type LoadCmd struct {
	Config string `help:"The YAML config file." default:"nsecorp.yml"`
	CSV    string `help:"The corporate actions CSV to load." required:"" type:"existingfile" name:"csv"`
}

func (l *LoadCmd) Run() error {
	s, err := startSession(l.Config, "", true, nil)
	if err != nil {
		return err
	}
	defer s.Close()

	ctx := context.Background()
	table := s.Config.Storage.Table

	st, err := store.Open(s.Config.Storage.DBPath, store.WithLogger(s.component("store")))
	if err != nil {
		s.Logger.Error().Err(err).Msg("Could not open database")
		return err
	}
	defer st.Close()

	if err := st.EnsureTable(ctx, table); err != nil {
		s.Logger.Error().Err(err).Msgf("Error creating table: %v", err)
		return err
	}

	res, err := st.LoadCSV(ctx, table, l.CSV)
	if err != nil {
		s.Logger.Error().Err(err).Int("rows_inserted", res.RowsInserted).Msgf("Error inserting data: %v", err)
		return fmt.Errorf("loading %q: %w", l.CSV, err)
	}
	return nil
}
