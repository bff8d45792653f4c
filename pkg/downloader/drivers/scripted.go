package drivers

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/arnavsurve/nsecorp/pkg/config"
	"github.com/arnavsurve/nsecorp/pkg/downloader"
	"github.com/arnavsurve/nsecorp/pkg/log"
	"github.com/arnavsurve/nsecorp/pkg/retry"
	"github.com/arnavsurve/nsecorp/pkg/types"
)

type actionKind int

const (
	actionNavigate actionKind = iota
	actionClick
	actionDownload
)

func (k actionKind) String() string {
	switch k {
	case actionNavigate:
		return "navigate"
	case actionClick:
		return "click"
	case actionDownload:
		return "download"
	default:
		return "unknown"
	}
}

// action is one scripted browser interaction. Download actions save the file
// that appears after clicking Selector as Target.
type action struct {
	Kind     actionKind
	Tab      string
	Selector string
	Target   string
}

// session is the browser the scripted driver talks to.
type session interface {
	Navigate(ctx context.Context, url, readySelector string, timeout time.Duration) error
	Click(ctx context.Context, selector string, timeout time.Duration) error
	// ClickDownload clicks selector and waits for the browser to finish the
	// download it starts. It returns the path the browser saved it to.
	ClickDownload(ctx context.Context, selector string, timeout time.Duration) (string, error)
	Close() error
}

type sessionFactory func(ctx context.Context, cfg config.ScriptedConfig, downloadDir string, logger types.Logger) (session, error)

// ScriptedDriver downloads the CSV files with a fixed sequence of chromedp
// actions instead of an LLM.
type ScriptedDriver struct {
	Config *config.Config
	Logger types.Logger

	newSession sessionFactory

	mu     sync.Mutex
	sess   session
	closed bool
}

func init() {
	downloader.Register(config.DriverChromedp, func(cfg *config.Config, logger types.Logger) (downloader.Driver, error) {
		return NewScriptedDriver(cfg, logger), nil
	})
}

// NewScriptedDriver returns a driver backed by a local Chrome. The browser is
// started on the first Download.
func NewScriptedDriver(cfg *config.Config, logger types.Logger) *ScriptedDriver {
	if logger == nil {
		logger = log.Nop()
	}
	return &ScriptedDriver{Config: cfg, Logger: logger, newSession: newChromeSession}
}

func buildPlan(req types.DownloadRequest, sc config.ScriptedConfig) []action {
	plan := []action{
		{Kind: actionNavigate, Selector: sc.ReadySelector},
		{Kind: actionDownload, Selector: sc.DownloadSelector, Target: req.ExpectedFile},
	}
	for _, tab := range req.Tabs {
		plan = append(plan,
			action{Kind: actionClick, Tab: tab, Selector: fmt.Sprintf(sc.TabSelector, tab)},
			action{Kind: actionDownload, Tab: tab, Selector: sc.DownloadSelector,
				Target: downloader.TabFilename(req.DownloadDir, req.FilePrefix, tab, req.DateStamp)},
		)
	}
	return plan
}

// minSteps is the number of actions a run without any retry needs.
func minSteps(tabs int) int {
	return 2 + 2*tabs
}

func (d *ScriptedDriver) Validate() error {
	sc := d.Config.Scripted
	if sc.MaxSteps < minSteps(len(d.Config.Source.Tabs)) {
		return fmt.Errorf("chromedp driver: scripted.max_steps %d is below the %d actions needed for %d tabs",
			sc.MaxSteps, minSteps(len(d.Config.Source.Tabs)), len(d.Config.Source.Tabs))
	}
	if sc.Attempts < 1 {
		return fmt.Errorf("chromedp driver: scripted.attempts must be at least 1")
	}
	if sc.StepTimeout <= 0 || sc.DownloadTimeout <= 0 {
		return fmt.Errorf("chromedp driver: step_timeout and download_timeout must be greater than 0")
	}
	if sc.DownloadSelector == "" {
		return fmt.Errorf("chromedp driver: scripted.download_selector must not be empty")
	}
	return nil
}

// Download runs the plan. A failed navigation or an exhausted step budget
// stops the run; a failed tab is recorded and the next tab is tried.
func (d *ScriptedDriver) Download(ctx context.Context, req types.DownloadRequest) (*types.DownloadResult, error) {
	sc := d.Config.Scripted
	result := &types.DownloadResult{}

	downloadDir, err := filepath.Abs(req.DownloadDir)
	if err != nil {
		return result, fmt.Errorf("getting absolute path for download directory %q: %w", req.DownloadDir, err)
	}
	if err := os.MkdirAll(downloadDir, 0755); err != nil {
		return result, fmt.Errorf("creating download directory %q: %w", downloadDir, err)
	}

	sess, err := d.session(ctx, downloadDir)
	if err != nil {
		return result, err
	}

	maxSteps := req.MaxSteps
	if maxSteps <= 0 {
		maxSteps = sc.MaxSteps
	}
	retryCfg := retry.Config{
		MaxAttempts:   sc.Attempts,
		InitialDelay:  sc.Backoff,
		MaxDelay:      8 * sc.Backoff,
		BackoffFactor: 2,
	}

	var failures []error
	skipTab := ""
	for i, act := range buildPlan(req, sc) {
		if act.Tab != "" && act.Tab == skipTab {
			continue
		}

		logger := d.Logger.With().Int("action", i+1).Str("kind", act.Kind.String()).Str("tab", act.Tab).Logger()
		err := retry.Do(ctx, retryCfg, func(attempt int) error {
			if result.Steps >= maxSteps {
				return retry.Permanent(fmt.Errorf("%w after %d steps", downloader.ErrStepBudgetExhausted, result.Steps))
			}
			result.Steps++
			if attempt > 1 {
				logger.Warn().Int("attempt", attempt).Msg("Retrying browser action")
			}
			return d.perform(ctx, sess, req, act, result)
		})

		switch {
		case err == nil:
			logger.Debug().Msg("Browser action completed")
		case errors.Is(err, downloader.ErrStepBudgetExhausted), ctx.Err() != nil:
			failures = append(failures, err)
			return d.finish(result, failures)
		case act.Kind == actionNavigate:
			failures = append(failures, fmt.Errorf("opening %q: %w", req.SourceURL, err))
			return d.finish(result, failures)
		case act.Kind == actionClick:
			logger.Error().Err(err).Msg("Could not select tab, skipping its download")
			failures = append(failures, fmt.Errorf("selecting tab %q: %w", act.Tab, err))
			skipTab = act.Tab
		default:
			logger.Error().Err(err).Str("target", act.Target).Msg("Download failed")
			failures = append(failures, fmt.Errorf("downloading %q: %w", filepath.Base(act.Target), err))
		}
	}
	return d.finish(result, failures)
}

func (d *ScriptedDriver) perform(ctx context.Context, sess session, req types.DownloadRequest, act action, result *types.DownloadResult) error {
	sc := d.Config.Scripted
	switch act.Kind {
	case actionNavigate:
		return sess.Navigate(ctx, req.SourceURL, act.Selector, sc.StepTimeout)
	case actionClick:
		return sess.Click(ctx, act.Selector, sc.StepTimeout)
	case actionDownload:
		saved, err := sess.ClickDownload(ctx, act.Selector, sc.DownloadTimeout)
		if err != nil {
			return err
		}
		if err := adoptDownload(saved, act.Target); err != nil {
			return retry.Permanent(err)
		}
		result.Files = append(result.Files, act.Target)
		d.Logger.Info().Str("file", act.Target).Msg("CSV downloaded")
		return nil
	default:
		return retry.Permanent(fmt.Errorf("unknown action kind %d", act.Kind))
	}
}

func (d *ScriptedDriver) finish(result *types.DownloadResult, failures []error) (*types.DownloadResult, error) {
	for _, f := range failures {
		result.Errors = append(result.Errors, f.Error())
	}
	result.Success = len(failures) == 0
	return result, errors.Join(failures...)
}

func (d *ScriptedDriver) session(ctx context.Context, downloadDir string) (session, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, errors.New("chromedp driver is closed")
	}
	if d.sess != nil {
		return d.sess, nil
	}
	sess, err := d.newSession(ctx, d.Config.Scripted, downloadDir, d.Logger)
	if err != nil {
		return nil, fmt.Errorf("starting browser: %w", err)
	}
	d.sess = sess
	return sess, nil
}

// adoptDownload moves a finished download to its dated name, replacing a file
// left there by an earlier run the same day.
func adoptDownload(saved, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return fmt.Errorf("creating directory for %q: %w", target, err)
	}
	if err := os.Rename(saved, target); err != nil {
		return fmt.Errorf("renaming download %q to %q: %w", saved, target, err)
	}
	return nil
}

// Close shuts the browser down. It is safe to call more than once and
// before Download.
func (d *ScriptedDriver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	if d.sess == nil {
		return nil
	}
	return d.sess.Close()
}
