package common

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/ternarybob/arbor"
)

// ValidateBaseURL validates a Site's base URL and flags local/test URL
// patterns so callers can decide whether to allow them outside development.
// Returns: (isValid bool, isTestURL bool, warnings []string, err error)
func ValidateBaseURL(baseURL string, logger arbor.ILogger) (bool, bool, []string, error) {
	warnings := []string{}

	parsedURL, err := url.Parse(baseURL)
	if err != nil {
		return false, false, warnings, fmt.Errorf("invalid URL format: %w", err)
	}

	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return false, false, warnings, fmt.Errorf("invalid URL scheme: %s (expected http or https)", parsedURL.Scheme)
	}

	if parsedURL.Host == "" {
		return false, false, warnings, fmt.Errorf("URL host is empty")
	}

	isTestURL := false
	host := strings.ToLower(parsedURL.Host)

	switch {
	case strings.HasPrefix(host, "localhost"):
		isTestURL = true
		warnings = append(warnings, fmt.Sprintf("test URL detected: %s uses localhost", baseURL))
	case strings.HasPrefix(host, "127.0.0.1"):
		isTestURL = true
		warnings = append(warnings, fmt.Sprintf("test URL detected: %s uses 127.0.0.1", baseURL))
	case strings.HasPrefix(host, "0.0.0.0"):
		isTestURL = true
		warnings = append(warnings, fmt.Sprintf("test URL detected: %s uses 0.0.0.0", baseURL))
	case strings.HasPrefix(host, "[::1]"):
		isTestURL = true
		warnings = append(warnings, fmt.Sprintf("test URL detected: %s uses IPv6 localhost", baseURL))
	}

	if logger != nil {
		logger.Debug().
			Str("base_url", baseURL).
			Bool("is_test_url", isTestURL).
			Strs("warnings", warnings).
			Msg("base URL validated")
	}

	return true, isTestURL, warnings, nil
}
