package drivers

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/arnavsurve/nsecorp/pkg/config"
	"github.com/arnavsurve/nsecorp/pkg/types"
	"github.com/chromedp/cdproto/browser"
	"github.com/chromedp/chromedp"
)

type downloadEvent struct {
	guid     string
	canceled bool
}

// chromeSession drives one local Chrome tab. Downloads are saved under their
// GUID in downloadDir and reported through browser download events.
type chromeSession struct {
	ctx         context.Context
	cancel      context.CancelFunc
	allocCancel context.CancelFunc
	downloadDir string
	logger      types.Logger

	downloads chan downloadEvent
	closeOnce sync.Once
}

func newChromeSession(ctx context.Context, cfg config.ScriptedConfig, downloadDir string, logger types.Logger) (session, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.Headless),
	)
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}

	// The browser outlives ctx only until Close; ctx cancellation still stops it.
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.WithoutCancel(ctx), opts...)
	browserCtx, cancel := chromedp.NewContext(allocCtx)

	s := &chromeSession{
		ctx:         browserCtx,
		cancel:      cancel,
		allocCancel: allocCancel,
		downloadDir: downloadDir,
		logger:      logger,
		downloads:   make(chan downloadEvent, 8),
	}
	context.AfterFunc(ctx, func() { s.Close() })

	chromedp.ListenTarget(browserCtx, func(ev any) {
		switch ev := ev.(type) {
		case *browser.EventDownloadWillBegin:
			s.logger.Debug().Str("guid", ev.GUID).Str("suggested", ev.SuggestedFilename).Msg("Download started")
		case *browser.EventDownloadProgress:
			if ev.State != browser.DownloadProgressStateCompleted && ev.State != browser.DownloadProgressStateCanceled {
				return
			}
			select {
			case s.downloads <- downloadEvent{guid: ev.GUID, canceled: ev.State == browser.DownloadProgressStateCanceled}:
			default:
			}
		}
	})

	if err := chromedp.Run(browserCtx,
		browser.SetDownloadBehavior(browser.SetDownloadBehaviorBehaviorAllowAndName).
			WithDownloadPath(downloadDir).
			WithEventsEnabled(true),
	); err != nil {
		s.Close()
		return nil, fmt.Errorf("configuring download behavior: %w", err)
	}
	return s, nil
}

func (s *chromeSession) run(timeout time.Duration, actions ...chromedp.Action) error {
	ctx, cancel := context.WithTimeout(s.ctx, timeout)
	defer cancel()
	return chromedp.Run(ctx, actions...)
}

func (s *chromeSession) Navigate(ctx context.Context, url, readySelector string, timeout time.Duration) error {
	actions := []chromedp.Action{chromedp.Navigate(url)}
	if readySelector != "" {
		actions = append(actions, chromedp.WaitVisible(readySelector, chromedp.BySearch))
	} else {
		actions = append(actions, chromedp.WaitReady("body", chromedp.ByQuery))
	}
	return s.run(timeout, actions...)
}

func (s *chromeSession) Click(ctx context.Context, selector string, timeout time.Duration) error {
	return s.run(timeout, chromedp.Click(selector, chromedp.BySearch, chromedp.NodeVisible))
}

func (s *chromeSession) ClickDownload(ctx context.Context, selector string, timeout time.Duration) (string, error) {
	// drop events of downloads that finished after an earlier wait gave up
	for len(s.downloads) > 0 {
		<-s.downloads
	}

	if err := s.run(timeout, chromedp.Click(selector, chromedp.BySearch, chromedp.NodeVisible)); err != nil {
		return "", err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case ev := <-s.downloads:
		if ev.canceled {
			return "", fmt.Errorf("download %s was canceled", ev.guid)
		}
		return filepath.Join(s.downloadDir, ev.guid), nil
	case <-timer.C:
		return "", fmt.Errorf("no download completed within %s", timeout)
	case <-ctx.Done():
		return "", ctx.Err()
	case <-s.ctx.Done():
		return "", s.ctx.Err()
	}
}

func (s *chromeSession) Close() error {
	s.closeOnce.Do(func() {
		s.cancel()
		s.allocCancel()
	})
	return nil
}
