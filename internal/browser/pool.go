// Package browser implements the Browser Capability (spec §6, C2): a
// chromedp-backed façade the Pipeline Executor drives through the
// interfaces.BrowserCapability/BrowserSession contracts. No other package
// imports chromedp directly.
package browser

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/ternarybob/arbor"

	"github.com/formflow/automation/internal/common"
)

// pool manages a round-robin set of chromedp allocator contexts, one Chrome
// process per slot, each able to host many independent tab contexts.
// Adapted from the teacher's ChromeDPPool in
// internal/services/crawler/chromedp_pool.go: same round-robin allocation
// and startup self-test, generalized to hand out tab-level contexts rather
// than being consumed directly by the caller.
type pool struct {
	mu               sync.Mutex
	browserCtxs      []context.Context
	browserCancels   []context.CancelFunc
	allocatorCancels []context.CancelFunc
	currentIndex     int
	initialized      bool
	cfg              common.BrowserConfig
	logger           arbor.ILogger
}

func newPool(cfg common.BrowserConfig, logger arbor.ILogger) *pool {
	return &pool{cfg: cfg, logger: logger}
}

func (p *pool) init() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.initialized {
		return nil
	}

	maxInstances := p.cfg.MaxInstances
	if maxInstances <= 0 {
		maxInstances = 1
	}
	userAgent := p.cfg.UserAgent
	if userAgent == "" {
		userAgent = "AutomationCore/1.0"
	}

	var lastErr error
	for i := 0; i < maxInstances; i++ {
		if err := p.createInstance(userAgent); err != nil {
			lastErr = err
			if p.logger != nil {
				p.logger.Warn().Err(err).Int("instance", i).Msg("failed to create browser instance")
			}
			continue
		}
	}

	if len(p.browserCtxs) == 0 {
		return fmt.Errorf("failed to create any browser instances: %w", lastErr)
	}

	p.initialized = true
	if p.logger != nil {
		p.logger.Info().Int("instances", len(p.browserCtxs)).Msg("browser pool initialized")
	}
	return nil
}

func (p *pool) createInstance(userAgent string) error {
	opts := append(
		chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", p.cfg.Headless),
		chromedp.Flag("disable-gpu", p.cfg.DisableGPU),
		chromedp.Flag("no-sandbox", p.cfg.NoSandbox),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.UserAgent(userAgent),
	)

	allocatorCtx, allocatorCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocatorCtx)

	testCtx, testCancel := context.WithTimeout(browserCtx, 30*time.Second)
	defer testCancel()
	if err := chromedp.Run(testCtx, chromedp.Navigate("about:blank")); err != nil {
		browserCancel()
		allocatorCancel()
		return fmt.Errorf("browser instance failed startup test: %w", err)
	}

	p.browserCtxs = append(p.browserCtxs, browserCtx)
	p.browserCancels = append(p.browserCancels, browserCancel)
	p.allocatorCancels = append(p.allocatorCancels, allocatorCancel)
	return nil
}

// acquire returns a browser (process-level) context from the pool.
func (p *pool) acquire() (context.Context, error) {
	if err := p.init(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.browserCtxs) == 0 {
		return nil, fmt.Errorf("no browser instances available")
	}
	idx := p.currentIndex % len(p.browserCtxs)
	p.currentIndex = (p.currentIndex + 1) % len(p.browserCtxs)
	return p.browserCtxs[idx], nil
}

// shutdown tears down every browser and allocator context in the pool.
func (p *pool) shutdown() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, cancel := range p.browserCancels {
		if cancel != nil {
			cancel()
		}
	}
	for _, cancel := range p.allocatorCancels {
		if cancel != nil {
			cancel()
		}
	}
	p.browserCtxs = nil
	p.browserCancels = nil
	p.allocatorCancels = nil
	p.initialized = false
}
