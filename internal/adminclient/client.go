// Package adminclient implements the node-side half of the Admin Callback
// Loop (spec.md §4.9, C11): a periodic heartbeat, pending-command dispatch,
// and result reporting against one or more central admin servers.
package adminclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/formflow/automation/internal/common"
	"github.com/formflow/automation/internal/models"
	"github.com/formflow/automation/internal/retry"
	"github.com/formflow/automation/internal/scheduler"
)

// Client runs the heartbeat + command poll loop against every configured
// admin URL.
type Client struct {
	cfg        common.AdminConfig
	licenseKey string
	machineID  string
	version    string
	scheduler  *scheduler.Scheduler
	handlers   *Dispatcher

	http   *http.Client
	policy *retry.Policy
	oauth  *clientcredentials.Config
	logger arbor.ILogger

	mu       sync.Mutex
	executed *executedSet
}

// New builds a Client. scheduler may be nil in tests that only exercise
// the HTTP loop.
func New(cfg *common.Config, sched *scheduler.Scheduler, logger arbor.ILogger) *Client {
	policy := retry.NewPolicy()
	policy.MaxAttempts = 5
	policy.MaxBackoff = time.Duration(cfg.Admin.HeartbeatMaxBackoffSecs) * time.Second
	if policy.MaxBackoff <= 0 {
		policy.MaxBackoff = 60 * time.Second
	}

	c := &Client{
		cfg:        cfg.Admin,
		licenseKey: cfg.License.Key,
		machineID:  common.MachineID(),
		version:    common.GetVersion(),
		scheduler:  sched,
		http:       &http.Client{Timeout: 15 * time.Second},
		policy:     policy,
		logger:     logger,
		executed:   newExecutedSet(cfg.Admin.ExecutedCommandCacheCap),
	}
	c.handlers = NewDispatcher(sched, logger)

	if cfg.Admin.OAuth2Enabled {
		c.oauth = &clientcredentials.Config{
			ClientID:     cfg.Admin.OAuth2ClientID,
			ClientSecret: cfg.Admin.OAuth2ClientSecret,
			TokenURL:     cfg.Admin.OAuth2TokenURL,
		}
	}
	return c
}

// Run blocks, heartbeating and polling commands every heartbeat_interval
// against every target until ctx is cancelled. Never blocks the Job
// Scheduler: each tick's work happens on its own goroutine per target,
// and a slow/unreachable admin URL only delays that target's next tick.
func (c *Client) Run(ctx context.Context) {
	targets := c.cfg.Targets()
	if len(targets) == 0 {
		c.logger.Warn().Msg("admin callback loop has no configured admin URL; skipping")
		return
	}

	interval := time.Duration(c.cfg.HeartbeatIntervalSecs) * time.Second
	if interval <= 0 {
		interval = 5 * time.Second
	}

	var wg sync.WaitGroup
	for _, target := range targets {
		wg.Add(1)
		go func(target string) {
			defer wg.Done()
			c.loopOne(ctx, target, interval)
		}(target)
	}
	wg.Wait()
}

func (c *Client) loopOne(ctx context.Context, target string, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	c.tick(ctx, target)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.tick(ctx, target)
		}
	}
}

func (c *Client) tick(ctx context.Context, target string) {
	if err := c.heartbeat(ctx, target); err != nil {
		c.logger.Warn().Err(err).Str("admin_url", target).Msg("heartbeat failed")
		return
	}
	c.pollAndRunCommands(ctx, target)
}

func (c *Client) heartbeat(ctx context.Context, target string) error {
	req := models.HeartbeatRequest{
		Hostname:      hostnameOrUnknown(),
		LocalIP:       common.LocalIP(),
		Platform:      platformName(),
		MachineID:     c.machineID,
		ClientVersion: c.version,
		LicenseKey:    c.licenseKey,
		Timestamp:     time.Now().UTC(),
	}

	var resp struct {
		LicenseValid bool `json:"license_valid"`
	}
	statusCode, err := c.policy.Do(ctx, c.logger, func() (int, error) {
		return c.postJSON(ctx, target+"/api/heartbeat", req, &resp)
	})
	if err != nil {
		return fmt.Errorf("heartbeat to %s failed (status %d): %w", target, statusCode, err)
	}

	if c.scheduler != nil {
		c.scheduler.SetDegraded(c.cfg.RequireValidLicense && !resp.LicenseValid)
	}
	return nil
}

func (c *Client) pollAndRunCommands(ctx context.Context, target string) {
	var pending struct {
		Commands []models.Command `json:"commands"`
	}
	url := fmt.Sprintf("%s/api/commands?machine_id=%s", target, c.machineID)
	if _, err := c.getJSON(ctx, url, &pending); err != nil {
		c.logger.Warn().Err(err).Str("admin_url", target).Msg("list pending commands failed")
		return
	}

	for _, cmd := range pending.Commands {
		c.mu.Lock()
		seen := c.executed.Contains(cmd.ID)
		c.mu.Unlock()
		if seen {
			continue
		}

		result := c.handlers.Dispatch(ctx, &cmd)
		result.ClientID = c.machineID
		result.ReportedAt = time.Now().UTC()

		if err := c.reportResult(ctx, target, result); err != nil {
			c.logger.Warn().Err(err).Str("command_id", cmd.ID).Msg("report command result failed")
			continue
		}

		c.mu.Lock()
		c.executed.Add(cmd.ID)
		c.mu.Unlock()
	}
}

func (c *Client) reportResult(ctx context.Context, target string, result *models.CommandResult) error {
	statusCode, err := c.policy.Do(ctx, c.logger, func() (int, error) {
		return c.postJSON(ctx, target+"/api/command_result", result, nil)
	})
	if err != nil {
		return fmt.Errorf("report result to %s failed (status %d): %w", target, statusCode, err)
	}
	return nil
}

func (c *Client) postJSON(ctx context.Context, url string, body, out interface{}) (int, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return 0, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(ctx, req)

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, err
		}
	}
	if resp.StatusCode >= 400 {
		return resp.StatusCode, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return resp.StatusCode, nil
}

func (c *Client) getJSON(ctx context.Context, url string, out interface{}) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}
	c.authorize(ctx, req)

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return resp.StatusCode, err
	}
	if resp.StatusCode >= 400 {
		return resp.StatusCode, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return resp.StatusCode, nil
}

// authorize attaches a client-credentials bearer token when OAuth2 is
// configured; otherwise the license key in the body is the only credential
// (spec's DOMAIN STACK: "falls back to a static license key when unset").
func (c *Client) authorize(ctx context.Context, req *http.Request) {
	if c.oauth == nil {
		return
	}
	token, err := c.oauth.Token(ctx)
	if err != nil {
		c.logger.Warn().Err(err).Msg("oauth2 token fetch failed, falling back to license key")
		return
	}
	token.SetAuthHeader(req)
}
