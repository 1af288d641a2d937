package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/robfig/cron/v3"
)

// Config represents the process configuration for both the automation-node
// and automation-admin binaries. Not every section applies to every binary;
// unused sections are simply ignored by that process.
type Config struct {
	Environment string          `toml:"environment"` // "development" or "production"
	Server      ServerConfig    `toml:"server"`
	Admin       AdminConfig     `toml:"admin"`
	Storage     StorageConfig   `toml:"storage"`
	Logging     LoggingConfig   `toml:"logging"`
	Browser     BrowserConfig   `toml:"browser"`
	AI          AIConfig        `toml:"ai"`
	Captcha     CaptchaConfig   `toml:"captcha"`
	Scheduler   SchedulerConfig `toml:"scheduler"`
	Resolver    ResolverConfig  `toml:"resolver"`
	Pipeline    PipelineConfig  `toml:"pipeline"`
	License     LicenseConfig   `toml:"license"`
}

// ServerConfig is the node's own HTTP surface (spec.md §6, default port 5511).
type ServerConfig struct {
	Port int    `toml:"port"`
	Host string `toml:"host"`
}

// AdminConfig controls the node's callback loop to the central admin server
// (C11) and, on the admin binary, the admin HTTP surface it exposes.
type AdminConfig struct {
	URL                     string   `toml:"url"`                      // ADMIN_URL
	URLs                    []string `toml:"urls"`                     // ADMIN_URLS, comma-separated; heartbeats post to every configured URL
	Port                    int    `toml:"port"`                       // admin binary's own listen port, default 5512
	Host                    string `toml:"host"`
	DBPath                  string `toml:"db_path"`                    // admin binary's own badgerhold database, separate from the node's Storage.Badger.Path
	HeartbeatIntervalSecs   int    `toml:"heartbeat_interval_seconds"`  // HEARTBEAT_INTERVAL_SECONDS
	HeartbeatMaxBackoffSecs int    `toml:"heartbeat_max_backoff_secs"`  // ceiling for exponential backoff between failed heartbeats
	CommandPollIntervalSecs int    `toml:"command_poll_interval_secs"` // how often the node polls for queued commands
	ExecutedCommandCacheCap int    `toml:"executed_command_cache_cap"` // bounded LRU size for at-most-once command execution, default 1024
	RequireValidLicense     bool   `toml:"require_valid_license"`      // REQUIRE_VALID_LICENSE
	OAuth2Enabled           bool   `toml:"oauth2_enabled"`
	OAuth2TokenURL          string `toml:"oauth2_token_url"`
	OAuth2ClientID          string `toml:"oauth2_client_id"`
	OAuth2ClientSecret      string `toml:"oauth2_client_secret"`
}

// Targets returns every admin URL the node should heartbeat to, merging the
// single-URL and comma-separated-list forms (spec.md §6 ADMIN_URL / ADMIN_URLS)
// and dropping duplicates.
func (c AdminConfig) Targets() []string {
	seen := make(map[string]bool, len(c.URLs)+1)
	var out []string
	add := func(u string) {
		if u == "" || seen[u] {
			return
		}
		seen[u] = true
		out = append(out, u)
	}
	add(c.URL)
	for _, u := range c.URLs {
		add(u)
	}
	return out
}

type StorageConfig struct {
	Badger BadgerConfig `toml:"badger"`
}

// BadgerConfig backs every badgerhold-based repository (C1 and C7's learned
// mapping store). DATA_DIR (spec.md §6) maps onto Path.
type BadgerConfig struct {
	Path           string `toml:"path"`
	ResetOnStartup bool   `toml:"reset_on_startup"`
}

type LoggingConfig struct {
	Level         string   `toml:"level"`           // "debug", "info", "warn", "error"
	Format        string   `toml:"format"`          // "json" or "text"
	Output        []string `toml:"output"`          // "stdout", "file"
	TimeFormat    string   `toml:"time_format"`
	MinEventLevel string   `toml:"min_event_level"` // minimum level relayed to /ws subscribers
	AccessLog     bool     `toml:"access_log"`       // phuslu/log HTTP access line, separate from the structured app log
}

// BrowserConfig configures the chromedp-backed pool behind the Browser
// Capability (C2).
type BrowserConfig struct {
	MaxInstances       int    `toml:"max_instances"`
	Headless           bool   `toml:"headless"`
	DisableGPU         bool   `toml:"disable_gpu"`
	NoSandbox          bool   `toml:"no_sandbox"`
	UserAgent          string `toml:"user_agent"`
	NavigationTimeout  string `toml:"navigation_timeout"`   // e.g. "30s"
	ActionTimeout      string `toml:"action_timeout"`       // per fill/click/query
	JavaScriptWaitTime string `toml:"javascript_wait_time"` // settle delay after navigation
}

// AIConfig configures the AI Analyzer Client (C3). AI_ENDPOINT/AI_MODEL/
// AI_TIMEOUT_SECONDS (spec.md §6) map onto Endpoint/Model/TimeoutSeconds.
type AIConfig struct {
	Provider        string  `toml:"provider"` // "claude" or "gemini"
	Endpoint        string  `toml:"endpoint"`
	Model           string  `toml:"model"`
	TimeoutSeconds  int     `toml:"timeout_seconds"`
	MaxTokens       int     `toml:"max_tokens"`
	Temperature     float64 `toml:"temperature"`
	MinConfidence   float64 `toml:"min_confidence"` // acceptance threshold, default 0.5 per spec.md §9
	RateLimitPerMin int     `toml:"rate_limit_per_minute"`
	APIKey          string  `toml:"api_key"` // fallback only; env vars take priority, see ResolveAPIKey
}

// CaptchaConfig configures the two-phase submit/poll CAPTCHA Solver Client
// (C4). CAPTCHA_PROVIDER_KEY/CAPTCHA_TIMEOUT_SECONDS map onto ProviderKey/
// TimeoutSeconds.
type CaptchaConfig struct {
	ProviderEndpoint string `toml:"provider_endpoint"`
	ProviderKey      string `toml:"provider_key"`
	TimeoutSeconds   int    `toml:"timeout_seconds"`
	PollIntervalMs   int    `toml:"poll_interval_ms"`
	RateLimitPerMin  int    `toml:"rate_limit_per_minute"`
	VisionFallback   bool   `toml:"vision_fallback"` // fall back to the AI analyzer's vision path when the provider is unreachable
}

// SchedulerConfig controls the Job Scheduler (C10).
type SchedulerConfig struct {
	MaxConcurrentJobs  int    `toml:"max_concurrent_jobs"` // MAX_CONCURRENT_JOBS
	ProgressBufferSize int    `toml:"progress_buffer_size"` // bounded per-job progress channel, default 64
	StaleJobTimeout    string `toml:"stale_job_timeout"`    // force-fail jobs stuck past this duration
	StaleCheckInterval string `toml:"stale_check_interval"`
	CancelPollInterval string `toml:"cancel_poll_interval"` // cooperative cancellation observation bound, spec.md P4 (<=5s)
}

// ResolverConfig controls the Field Resolver's (C8) multi-step and
// pattern-resource behavior.
type ResolverConfig struct {
	MaxFormSteps          int    `toml:"max_form_steps"`           // default 10, per spec.md §9
	PartialSuccessAs       string `toml:"partial_success_as"`       // "success" or "failed", default "failed"
	DismissSelectorsFile   string `toml:"dismiss_selectors_file"`   // configs/dismiss_selectors.toml
	SubmitPhrasesFile      string `toml:"submit_phrases_file"`      // configs/submit_phrases.toml
}

// PipelineConfig controls the Pipeline Executor's (C9) per-phase behavior
// that is not already owned by BrowserConfig, CaptchaConfig, or
// ResolverConfig.
type PipelineConfig struct {
	MaxNavRetries     int    `toml:"max_nav_retries"`      // default 2, spec §4.4 "navigating"
	NavRetryBaseDelay string `toml:"nav_retry_base_delay"` // default "2s"
	NavRetryMaxDelay  string `toml:"nav_retry_max_delay"`  // default "10s"
	FieldFillTimeout  string `toml:"field_fill_timeout"`   // default "10s", per-field fill bound
	RequireCaptcha    bool   `toml:"require_captcha"`      // spec §4.4 "captcha"; CaptchaConfig.TimeoutSeconds bounds the solve itself
	PostSubmitDelay   string `toml:"post_submit_delay"`    // default "2s", fallback when no URL change/success marker observed
}

type LicenseConfig struct {
	Key string `toml:"key"`
}

// NewDefaultConfig returns the configuration baseline applied before any
// file or environment override is layered on.
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Port: 5511,
			Host: "0.0.0.0",
		},
		Admin: AdminConfig{
			URL:                     "",
			Port:                    5512,
			Host:                    "0.0.0.0",
			DBPath:                  "./data/admin",
			HeartbeatIntervalSecs:   30,
			HeartbeatMaxBackoffSecs: 300,
			CommandPollIntervalSecs: 10,
			ExecutedCommandCacheCap: 1024,
			RequireValidLicense:     false,
		},
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path:           "./data",
				ResetOnStartup: false,
			},
		},
		Logging: LoggingConfig{
			Level:         "info",
			Format:        "text",
			Output:        []string{"stdout", "file"},
			TimeFormat:    "15:04:05.000",
			MinEventLevel: "info",
			AccessLog:     true,
		},
		Browser: BrowserConfig{
			MaxInstances:       3,
			Headless:           true,
			DisableGPU:         true,
			NoSandbox:          false,
			UserAgent:          "",
			NavigationTimeout:  "30s",
			ActionTimeout:      "10s",
			JavaScriptWaitTime: "500ms",
		},
		AI: AIConfig{
			Provider:        "claude",
			Model:           "claude-sonnet-4-20250514",
			TimeoutSeconds:  30,
			MaxTokens:       4096,
			Temperature:     0.0,
			MinConfidence:   0.5,
			RateLimitPerMin: 30,
		},
		Captcha: CaptchaConfig{
			TimeoutSeconds:  120,
			PollIntervalMs:  2000,
			RateLimitPerMin: 20,
			VisionFallback:  true,
		},
		Scheduler: SchedulerConfig{
			MaxConcurrentJobs:  4,
			ProgressBufferSize: 64,
			StaleJobTimeout:    "30m",
			StaleCheckInterval: "5m",
			CancelPollInterval: "2s",
		},
		Resolver: ResolverConfig{
			MaxFormSteps:         10,
			PartialSuccessAs:     "failed",
			DismissSelectorsFile: "configs/dismiss_selectors.toml",
			SubmitPhrasesFile:    "configs/submit_phrases.toml",
		},
		Pipeline: PipelineConfig{
			MaxNavRetries:     2,
			NavRetryBaseDelay: "2s",
			NavRetryMaxDelay:  "10s",
			FieldFillTimeout:  "10s",
			RequireCaptcha:    false,
			PostSubmitDelay:   "2s",
		},
	}
}

// LoadFromFile is a convenience wrapper around LoadFromFiles for a single
// optional path.
func LoadFromFile(path string) (*Config, error) {
	if path == "" {
		return LoadFromFiles()
	}
	return LoadFromFiles(path)
}

// LoadFromFiles loads configuration with priority:
// default -> file1 -> file2 -> ... -> env -> CLI.
// Later files override earlier files; ApplyFlagOverrides must be called by
// the caller after this returns to apply the final, highest-priority layer.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)

	return config, nil
}

// applyEnvOverrides applies AUTOMATON_* environment variable overrides, and
// the bare names spec.md §6 lists directly (ADMIN_URL, MAX_CONCURRENT_JOBS,
// etc.) for operators who only ever set the spec's documented var names.
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("AUTOMATON_ENV"); env != "" {
		config.Environment = env
	} else if env := os.Getenv("GO_ENV"); env != "" {
		config.Environment = env
	}

	if port := firstNonEmpty(os.Getenv("AUTOMATON_SERVER_PORT")); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if host := os.Getenv("AUTOMATON_SERVER_HOST"); host != "" {
		config.Server.Host = host
	}

	if v := firstNonEmpty(os.Getenv("ADMIN_URL"), os.Getenv("AUTOMATON_ADMIN_URL")); v != "" {
		config.Admin.URL = v
	}
	if v := os.Getenv("ADMIN_URLS"); v != "" {
		config.Admin.URLs = splitString(v, ",")
	}
	if v := firstNonEmpty(os.Getenv("HEARTBEAT_INTERVAL_SECONDS"), os.Getenv("AUTOMATON_ADMIN_HEARTBEAT_INTERVAL_SECONDS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Admin.HeartbeatIntervalSecs = n
		}
	}
	if v := os.Getenv("REQUIRE_VALID_LICENSE"); v != "" {
		config.Admin.RequireValidLicense = v == "true" || v == "1"
	}

	if v := firstNonEmpty(os.Getenv("DATA_DIR"), os.Getenv("AUTOMATON_STORAGE_BADGER_PATH")); v != "" {
		config.Storage.Badger.Path = v
	}

	if v := os.Getenv("AUTOMATON_LOGGING_LEVEL"); v != "" {
		config.Logging.Level = v
	}
	if v := os.Getenv("AUTOMATON_LOGGING_OUTPUT"); v != "" {
		config.Logging.Output = splitString(v, ",")
	}

	if v := os.Getenv("AUTOMATON_BROWSER_HEADLESS"); v != "" {
		config.Browser.Headless = v == "true" || v == "1"
	}
	if v := os.Getenv("AUTOMATON_BROWSER_MAX_INSTANCES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Browser.MaxInstances = n
		}
	}

	if v := firstNonEmpty(os.Getenv("AI_ENDPOINT"), os.Getenv("AUTOMATON_AI_ENDPOINT")); v != "" {
		config.AI.Endpoint = v
	}
	if v := firstNonEmpty(os.Getenv("AI_MODEL"), os.Getenv("AUTOMATON_AI_MODEL")); v != "" {
		config.AI.Model = v
	}
	if v := firstNonEmpty(os.Getenv("AI_TIMEOUT_SECONDS"), os.Getenv("AUTOMATON_AI_TIMEOUT_SECONDS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.AI.TimeoutSeconds = n
		}
	}

	if v := firstNonEmpty(os.Getenv("CAPTCHA_PROVIDER_KEY"), os.Getenv("AUTOMATON_CAPTCHA_PROVIDER_KEY")); v != "" {
		config.Captcha.ProviderKey = v
	}
	if v := firstNonEmpty(os.Getenv("CAPTCHA_TIMEOUT_SECONDS"), os.Getenv("AUTOMATON_CAPTCHA_TIMEOUT_SECONDS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Captcha.TimeoutSeconds = n
		}
	}

	if v := firstNonEmpty(os.Getenv("MAX_CONCURRENT_JOBS"), os.Getenv("AUTOMATON_SCHEDULER_MAX_CONCURRENT_JOBS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Scheduler.MaxConcurrentJobs = n
		}
	}

	if v := os.Getenv("AUTOMATON_LICENSE_KEY"); v != "" {
		config.License.Key = v
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// ApplyFlagOverrides applies CLI flag values, the highest-priority layer.
func ApplyFlagOverrides(config *Config, port int, host string) {
	if port > 0 {
		config.Server.Port = port
	}
	if host != "" {
		config.Server.Host = host
	}
}

// ResolveAPIKey resolves an API key by name with environment variable
// priority. Resolution order: environment variables -> config fallback -> error.
func ResolveAPIKey(name string, configFallback string) (string, error) {
	envMapping := map[string][]string{
		"claude_api_key": {"AUTOMATON_CLAUDE_API_KEY", "ANTHROPIC_API_KEY"},
		"gemini_api_key": {"AUTOMATON_GEMINI_API_KEY", "GOOGLE_API_KEY"},
		"captcha_key":    {"CAPTCHA_PROVIDER_KEY", "AUTOMATON_CAPTCHA_PROVIDER_KEY"},
	}

	if envVarNames, ok := envMapping[name]; ok {
		for _, envVarName := range envVarNames {
			if v := os.Getenv(envVarName); v != "" {
				return v, nil
			}
		}
	}

	if configFallback != "" {
		return configFallback, nil
	}

	return "", fmt.Errorf("API key %q not found in environment or config", name)
}

func splitString(s, sep string) []string {
	result := []string{}
	start := 0
	for i := 0; i < len(s); i++ {
		if i+len(sep) <= len(s) && s[i:i+len(sep)] == sep {
			result = append(result, trimSpace(s[start:i]))
			start = i + len(sep)
			i = start - 1
		}
	}
	result = append(result, trimSpace(s[start:]))
	return result
}

func trimSpace(s string) string {
	start := 0
	end := len(s)
	for start < end && (s[start] == ' ' || s[start] == '\t' || s[start] == '\n' || s[start] == '\r') {
		start++
	}
	for end > start && (s[end-1] == ' ' || s[end-1] == '\t' || s[end-1] == '\n' || s[end-1] == '\r') {
		end--
	}
	return s[start:end]
}

// ValidateJobSchedule validates a cron schedule expression used by the
// scheduler's recurring-trigger registration.
func ValidateJobSchedule(schedule string) error {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	if _, err := parser.Parse(schedule); err != nil {
		return fmt.Errorf("invalid cron expression: %w", err)
	}

	parts := strings.Fields(schedule)
	if len(parts) < 5 {
		return fmt.Errorf("invalid cron format: expected 5 fields")
	}

	return nil
}

// ParseDurationOr parses a duration string, falling back to def on error or
// an empty string. Used for the *_timeout/*_interval TOML fields, which are
// stored as human strings ("30s") rather than nanosecond ints.
func ParseDurationOr(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return def
	}
	return d
}

// IsProduction returns true if the environment is set to production.
func (c *Config) IsProduction() bool {
	env := strings.ToLower(strings.TrimSpace(c.Environment))
	return env == "production" || env == "prod"
}

// DeepCloneConfig returns a deep copy of c via marshal/unmarshal, used by
// tests that mutate a config without affecting the original.
func DeepCloneConfig(c *Config) *Config {
	data, err := toml.Marshal(c)
	if err != nil {
		return NewDefaultConfig()
	}
	clone := &Config{}
	if err := toml.Unmarshal(data, clone); err != nil {
		return NewDefaultConfig()
	}
	return clone
}
