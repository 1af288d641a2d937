package common

import (
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/net/publicsuffix"
)

// RegistrableDomain extracts the lowercased eTLD+1 from rawURL (e.g.
// "https://signup.example.co.uk/form" -> "example.co.uk"), the key the
// Domain Mapping Store (§4.7) and Field Resolver (§4.7) index on. Falls
// back to the bare host when the public suffix list has no opinion (e.g.
// single-label hosts used in local testing).
func RegistrableDomain(rawURL string) (string, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse url for domain extraction: %w", err)
	}
	host := strings.ToLower(parsed.Hostname())
	if host == "" {
		return "", fmt.Errorf("url %q has no host", rawURL)
	}

	domain, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		// Single-label hosts (localhost, a bare machine name) and IPs are
		// not covered by the suffix list; use the host itself.
		return host, nil
	}
	return domain, nil
}
