package store

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/gocarina/gocsv"
)

// WriteCSV encodes records with a header row named after the source export.
func WriteCSV(w io.Writer, records []CorporateActionRecord) error {
	if err := gocsv.Marshal(records, w); err != nil {
		return fmt.Errorf("encoding %d records as CSV: %w", len(records), err)
	}
	return nil
}

// ExportCSV dumps table into a CSV file at outPath and returns the row count.
func (s *SQLiteStore) ExportCSV(ctx context.Context, table, outPath string) (int, error) {
	records, err := s.ListRecords(ctx, table)
	if err != nil {
		return 0, err
	}

	if err := os.MkdirAll(filepath.Dir(outPath), 0755); err != nil {
		return 0, fmt.Errorf("creating export directory for %q: %w", outPath, err)
	}
	f, err := os.Create(outPath)
	if err != nil {
		return 0, fmt.Errorf("creating export file %q: %w", outPath, err)
	}

	if err := WriteCSV(f, records); err != nil {
		f.Close()
		return 0, err
	}
	if err := f.Close(); err != nil {
		return 0, fmt.Errorf("closing export file %q: %w", outPath, err)
	}

	s.logger.Info().Str("table", table).Str("file", outPath).Int("rows", len(records)).Msg("Exported table to CSV")
	return len(records), nil
}
