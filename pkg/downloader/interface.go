// Package downloader defines the browser drivers that fetch the corporate
// actions CSV files and the registry the CLI resolves them from.
package downloader

import (
	"context"
	"errors"

	"github.com/arnavsurve/nsecorp/pkg/types"
)

// ErrStepBudgetExhausted is returned when a driver runs out of browser actions.
var ErrStepBudgetExhausted = errors.New("step budget exhausted")

// Driver performs the browser session that leaves CSV files in the download
// directory. Close releases the browser session and must be safe to call
// whether or not Download ran or succeeded.
type Driver interface {
	Validate() error
	Download(ctx context.Context, req types.DownloadRequest) (*types.DownloadResult, error)
	Close() error
}
