package downloader

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// DateStamp formats t as the 8-digit YYYYMMDD suffix of output files.
func DateStamp(t time.Time) string {
	return t.Format("20060102")
}

// ExpectedFilename is where the default-tab CSV for day t must end up.
func ExpectedFilename(dir, prefix string, t time.Time) string {
	return filepath.Join(dir, fmt.Sprintf("%s_%s.csv", prefix, DateStamp(t)))
}

// TabFilename names the CSV downloaded from a sub-tab, e.g. prefix_sme_20261019.csv.
func TabFilename(dir, prefix, tab, dateStamp string) string {
	slug := strings.ToLower(strings.Join(strings.Fields(tab), "_"))
	return filepath.Join(dir, fmt.Sprintf("%s_%s_%s.csv", prefix, slug, dateStamp))
}
