package ai

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"google.golang.org/genai"

	"github.com/formflow/automation/internal/common"
	"github.com/formflow/automation/internal/interfaces"
	"github.com/formflow/automation/internal/retry"
)

// GeminiAnalyzer implements interfaces.FieldAnalyzer against the Gemini
// API. Grounded on the teacher's generateWithGemini in
// internal/services/llm/factory.go.
type GeminiAnalyzer struct {
	client      *genai.Client
	model       string
	temperature float64
	timeout     time.Duration
	policy      *retry.Policy
	logger      arbor.ILogger
}

// NewGeminiAnalyzer builds a GeminiAnalyzer from configuration.
func NewGeminiAnalyzer(ctx context.Context, cfg common.AIConfig, logger arbor.ILogger) (*GeminiAnalyzer, error) {
	apiKey, err := common.ResolveAPIKey("GEMINI_API_KEY", cfg.APIKey)
	if err != nil {
		return nil, fmt.Errorf("resolve gemini api key: %w", err)
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}

	temp := cfg.Temperature
	if temp <= 0 || temp > 0.2 {
		temp = 0.2
	}

	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	policy := retry.NewPolicy()
	policy.MaxAttempts = 3

	return &GeminiAnalyzer{
		client:      client,
		model:       cfg.Model,
		temperature: temp,
		timeout:     timeout,
		policy:      policy,
		logger:      logger,
	}, nil
}

func (g *GeminiAnalyzer) AnalyzeFields(ctx context.Context, req interfaces.FieldAnalyzerRequest) (*interfaces.FieldAnalyzerResult, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	content := genai.NewContentFromText(buildPrompt(req), genai.RoleUser)
	config := &genai.GenerateContentConfig{
		Temperature:       genai.Ptr(float32(g.temperature)),
		SystemInstruction: genai.NewContentFromText(systemInstruction, genai.RoleUser),
	}

	var resp *genai.GenerateContentResponse
	_, err := g.policy.Do(ctx, g.logger, func() (int, error) {
		var apiErr error
		resp, apiErr = g.client.Models.GenerateContent(ctx, g.model, []*genai.Content{content}, config)
		if apiErr != nil {
			return 0, apiErr
		}
		return 200, nil
	})
	if err != nil {
		return nil, fmt.Errorf("gemini analyze_fields call failed: %w", err)
	}

	text := resp.Text()
	if text == "" {
		return nil, fmt.Errorf("empty response from gemini")
	}

	entries, err := parseAndValidate(text, req.CanonicalKeys)
	if err != nil {
		return nil, fmt.Errorf("gemini response validation: %w", err)
	}
	return &interfaces.FieldAnalyzerResult{Entries: entries}, nil
}

func (g *GeminiAnalyzer) ReadCaptchaText(ctx context.Context, req interfaces.CaptchaVisionRequest) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	content := &genai.Content{
		Role: genai.RoleUser,
		Parts: []*genai.Part{
			{InlineData: &genai.Blob{MIMEType: "image/png", Data: req.ImagePNG}},
			{Text: "Read the text shown in this CAPTCHA image. Respond with only the characters, no explanation."},
		},
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, []*genai.Content{content}, nil)
	if err != nil {
		return "", fmt.Errorf("gemini read_captcha_text call failed: %w", err)
	}
	return resp.Text(), nil
}

func (g *GeminiAnalyzer) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	content := genai.NewContentFromText("ping", genai.RoleUser)
	_, err := g.client.Models.GenerateContent(ctx, g.model, []*genai.Content{content}, nil)
	return err
}
