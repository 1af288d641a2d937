package ai

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/ternarybob/arbor"

	"github.com/formflow/automation/internal/common"
	"github.com/formflow/automation/internal/interfaces"
	"github.com/formflow/automation/internal/retry"
)

func base64Encode(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

// ClaudeAnalyzer implements interfaces.FieldAnalyzer against the Anthropic
// API. Grounded on the teacher's generateWithClaude in
// internal/services/llm/factory.go: same client construction, same
// rate-limit-aware retry shape, generalized to the field-mapping contract.
type ClaudeAnalyzer struct {
	client      anthropic.Client
	model       string
	maxTokens   int
	temperature float64
	timeout     time.Duration
	policy      *retry.Policy
	logger      arbor.ILogger
}

// NewClaudeAnalyzer builds a ClaudeAnalyzer from configuration, resolving
// the API key the same way the teacher's ResolveAPIKey does (env var first,
// then config fallback).
func NewClaudeAnalyzer(cfg common.AIConfig, logger arbor.ILogger) (*ClaudeAnalyzer, error) {
	apiKey, err := common.ResolveAPIKey("ANTHROPIC_API_KEY", cfg.APIKey)
	if err != nil {
		return nil, fmt.Errorf("resolve anthropic api key: %w", err)
	}

	temp := cfg.Temperature
	if temp <= 0 || temp > 0.2 {
		temp = 0.2 // spec §4.3: temperature must stay low for reproducibility
	}

	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 2048
	}

	policy := retry.NewPolicy()
	policy.MaxAttempts = 3

	return &ClaudeAnalyzer{
		client:      anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:       cfg.Model,
		maxTokens:   maxTokens,
		temperature: temp,
		timeout:     timeout,
		policy:      policy,
		logger:      logger,
	}, nil
}

func (c *ClaudeAnalyzer) AnalyzeFields(ctx context.Context, req interfaces.FieldAnalyzerRequest) (*interfaces.FieldAnalyzerResult, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(c.model),
		MaxTokens:   int64(c.maxTokens),
		Temperature: anthropic.Float(c.temperature),
		System: []anthropic.TextBlockParam{
			{Text: systemInstruction},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(buildPrompt(req))),
		},
	}

	var resp *anthropic.Message
	_, err := c.policy.Do(ctx, c.logger, func() (int, error) {
		var apiErr error
		resp, apiErr = c.client.Messages.New(ctx, params)
		if apiErr != nil {
			return 0, apiErr
		}
		return 200, nil
	})
	if err != nil {
		return nil, fmt.Errorf("claude analyze_fields call failed: %w", err)
	}

	var text string
	for _, block := range resp.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}
	if text == "" {
		return nil, fmt.Errorf("empty response from claude")
	}

	entries, err := parseAndValidate(text, req.CanonicalKeys)
	if err != nil {
		return nil, fmt.Errorf("claude response validation: %w", err)
	}
	return &interfaces.FieldAnalyzerResult{Entries: entries}, nil
}

func (c *ClaudeAnalyzer) ReadCaptchaText(ctx context.Context, req interfaces.CaptchaVisionRequest) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: 256,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(
				anthropic.NewImageBlockBase64("image/png", base64Encode(req.ImagePNG)),
				anthropic.NewTextBlock("Read the text shown in this CAPTCHA image. Respond with only the characters, no explanation."),
			),
		},
	}

	resp, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("claude read_captcha_text call failed: %w", err)
	}

	var text string
	for _, block := range resp.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}
	return text, nil
}

func (c *ClaudeAnalyzer) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: 1,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock("ping")),
		},
	})
	return err
}
