package browser

import (
	"context"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/ternarybob/arbor"

	"github.com/formflow/automation/internal/common"
	"github.com/formflow/automation/internal/interfaces"
)

// Capability implements interfaces.BrowserCapability.
type Capability struct {
	pool            *pool
	navigationTimeout time.Duration
	actionTimeout     time.Duration
	jsWaitTime        time.Duration
	logger            arbor.ILogger
}

// New builds a Capability from configuration. The underlying pool is
// lazily initialized on first Open.
func New(cfg common.BrowserConfig, logger arbor.ILogger) *Capability {
	navTimeout := common.ParseDurationOr(cfg.NavigationTimeout, 30*time.Second)
	actionTimeout := common.ParseDurationOr(cfg.ActionTimeout, 10*time.Second)
	jsWait := common.ParseDurationOr(cfg.JavaScriptWaitTime, 500*time.Millisecond)

	return &Capability{
		pool:              newPool(cfg, logger),
		navigationTimeout: navTimeout,
		actionTimeout:     actionTimeout,
		jsWaitTime:        jsWait,
		logger:            logger,
	}
}

// Open acquires a tab from the pooled browser process, navigates to url,
// and returns a session exclusive to the caller for the job's duration
// (spec §3 "Ownership").
func (c *Capability) Open(ctx context.Context, url string, opts interfaces.OpenOptions) (interfaces.BrowserSession, error) {
	browserCtx, err := c.pool.acquire()
	if err != nil {
		return nil, err
	}

	tabCtx, tabCancel := chromedp.NewContext(browserCtx)

	navCtx, navCancel := context.WithTimeout(tabCtx, c.navigationTimeout)
	defer navCancel()

	// opts.Undetected/opts.Headless are allocator-level flags (set when the
	// pool's Chrome processes are created); nothing further is needed here.
	if err := chromedp.Run(navCtx, chromedp.Navigate(url)); err != nil {
		tabCancel()
		return nil, err
	}

	return &Session{
		ctx:           tabCtx,
		cancel:        tabCancel,
		actionTimeout: c.actionTimeout,
		jsWaitTime:    c.jsWaitTime,
		logger:        c.logger,
	}, nil
}

// Shutdown tears down the browser pool. Call once at process exit.
func (c *Capability) Shutdown() {
	c.pool.shutdown()
}
