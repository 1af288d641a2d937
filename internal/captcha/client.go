// Package captcha implements the CAPTCHA Solver Client (spec §4.5, C4): a
// two-phase submit/poll client against an external solving service, with a
// vision-model fallback for simple text CAPTCHAs.
package captcha

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/formflow/automation/internal/common"
	"github.com/formflow/automation/internal/interfaces"
	"github.com/formflow/automation/internal/retry"
)

// Client implements interfaces.CaptchaSolver against an HTTP provider
// speaking a submit/poll protocol (site key + page URL in, task id out;
// task id in, solution-or-pending out). Grounded on the teacher's
// httpclient.NewDefaultHTTPClient for the bare client, generalized with
// internal/retry.Policy for transient-failure handling.
type Client struct {
	http     *http.Client
	endpoint string
	apiKey   string
	policy   *retry.Policy
	logger   arbor.ILogger
}

// NewClient builds a Client from configuration.
func NewClient(cfg common.CaptchaConfig, logger arbor.ILogger) (*Client, error) {
	apiKey, err := common.ResolveAPIKey("CAPTCHA_PROVIDER_KEY", cfg.ProviderKey)
	if err != nil {
		return nil, fmt.Errorf("resolve captcha provider key: %w", err)
	}

	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 120 * time.Second
	}

	policy := retry.NewPolicy()
	policy.MaxAttempts = 3

	return &Client{
		http:     &http.Client{Timeout: 15 * time.Second},
		endpoint: cfg.ProviderEndpoint,
		apiKey:   apiKey,
		policy:   policy,
		logger:   logger,
	}, nil
}

type submitRequest struct {
	APIKey  string `json:"api_key"`
	SiteKey string `json:"site_key"`
	PageURL string `json:"page_url"`
	Kind    string `json:"kind"`
}

type submitResponse struct {
	TaskID string `json:"task_id"`
	Error  string `json:"error,omitempty"`
}

// Submit posts a solve request and returns the provider-assigned task id.
func (c *Client) Submit(ctx context.Context, sub interfaces.CaptchaSubmission) (string, error) {
	body, err := json.Marshal(submitRequest{
		APIKey:  c.apiKey,
		SiteKey: sub.SiteKey,
		PageURL: sub.PageURL,
		Kind:    string(sub.Kind),
	})
	if err != nil {
		return "", fmt.Errorf("marshal captcha submit request: %w", err)
	}

	var taskID string
	statusCode, err := c.policy.Do(ctx, c.logger, func() (int, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/submit", bytes.NewReader(body))
		if err != nil {
			return 0, err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			return 0, err
		}
		defer resp.Body.Close()

		var parsed submitResponse
		if decodeErr := json.NewDecoder(resp.Body).Decode(&parsed); decodeErr != nil {
			return resp.StatusCode, decodeErr
		}
		if parsed.Error != "" {
			return resp.StatusCode, fmt.Errorf("captcha provider error: %s", parsed.Error)
		}
		taskID = parsed.TaskID
		return resp.StatusCode, nil
	})
	if err != nil {
		return "", fmt.Errorf("captcha submit failed (status %d): %w", statusCode, err)
	}
	if taskID == "" {
		return "", fmt.Errorf("captcha provider returned an empty task id")
	}
	return taskID, nil
}

type pollResponse struct {
	Status   string `json:"status"` // "pending" or "solved"
	Solution string `json:"solution,omitempty"`
	Error    string `json:"error,omitempty"`
}

// Poll checks solve status once. The caller (internal/resolver/the captcha
// phase) is responsible for the fixed poll interval and max_solve_time
// bound from spec §4.5; Poll itself makes a single request.
func (c *Client) Poll(ctx context.Context, taskID string) (string, bool, error) {
	url := fmt.Sprintf("%s/poll?task_id=%s&api_key=%s", c.endpoint, taskID, c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", false, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", false, fmt.Errorf("captcha poll request failed: %w", err)
	}
	defer resp.Body.Close()

	var parsed pollResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", false, fmt.Errorf("captcha poll response decode failed: %w", err)
	}
	if parsed.Error != "" {
		return "", false, fmt.Errorf("captcha provider error: %s", parsed.Error)
	}

	if parsed.Status == "solved" {
		return parsed.Solution, true, nil
	}
	return "", false, nil
}
