package pipeline

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/formflow/automation/internal/interfaces"
)

// captchaProbeScript inspects the DOM for the well-known markers of the
// three CAPTCHA kinds the solver recognizes (spec §4.4 "captcha").
const captchaProbeScript = `
(function() {
  var recaptcha = document.querySelector('iframe[src*="recaptcha"], .g-recaptcha, div[data-sitekey]');
  if (recaptcha) {
    return JSON.stringify({
      present: true,
      kind: 'recaptcha',
      site_key: recaptcha.getAttribute('data-sitekey') || ''
    });
  }
  var hcaptcha = document.querySelector('iframe[src*="hcaptcha"], .h-captcha');
  if (hcaptcha) {
    return JSON.stringify({
      present: true,
      kind: 'hcaptcha',
      site_key: hcaptcha.getAttribute('data-sitekey') || ''
    });
  }
  var textCaptcha = document.querySelector('img[id*="captcha" i], img[class*="captcha" i], img[src*="captcha" i]');
  if (textCaptcha) {
    return JSON.stringify({ present: true, kind: 'text', site_key: '', selector: '#' + (textCaptcha.id || '') });
  }
  return JSON.stringify({ present: false });
})()
`

type captchaProbeResult struct {
	Present  bool   `json:"present"`
	Kind     string `json:"kind"`
	SiteKey  string `json:"site_key"`
	Selector string `json:"selector"`
}

// detectCaptcha probes the current page for a CAPTCHA challenge. A false
// first return value means no known marker was found; callers proceed.
func detectCaptcha(ctx context.Context, session interfaces.BrowserSession, pageURL string) (interfaces.CaptchaSubmission, string, bool, error) {
	raw, err := session.ExecuteScript(ctx, captchaProbeScript)
	if err != nil {
		return interfaces.CaptchaSubmission{}, "", false, fmt.Errorf("captcha probe failed: %w", err)
	}

	text, ok := raw.(string)
	if !ok {
		return interfaces.CaptchaSubmission{}, "", false, fmt.Errorf("captcha probe returned unexpected type %T", raw)
	}

	var result captchaProbeResult
	if err := json.Unmarshal([]byte(text), &result); err != nil {
		return interfaces.CaptchaSubmission{}, "", false, fmt.Errorf("captcha probe decode failed: %w", err)
	}
	if !result.Present {
		return interfaces.CaptchaSubmission{}, "", false, nil
	}

	sub := interfaces.CaptchaSubmission{
		SiteKey: result.SiteKey,
		PageURL: pageURL,
		Kind:    interfaces.CaptchaKind(result.Kind),
	}
	return sub, result.Selector, true, nil
}

// injectCaptchaSolution writes a solved CAPTCHA's response token (or, for a
// text CAPTCHA, the read text) into the form field the challenge's widget
// expects, mirroring what the provider's own browser extension would do.
func injectCaptchaSolution(ctx context.Context, session interfaces.BrowserSession, kind interfaces.CaptchaKind, solution string) error {
	var targetSelector string
	switch kind {
	case interfaces.CaptchaRecaptcha:
		targetSelector = "#g-recaptcha-response"
	case interfaces.CaptchaHCaptcha:
		targetSelector = "textarea[name=\"h-captcha-response\"]"
	default:
		targetSelector = "input[name*=\"captcha\" i]"
	}

	script := fmt.Sprintf(`
(function() {
  var el = document.querySelector(%q);
  if (!el) return false;
  el.value = %q;
  el.dispatchEvent(new Event('input', { bubbles: true }));
  el.dispatchEvent(new Event('change', { bubbles: true }));
  return true;
})()
`, targetSelector, solution)

	result, err := session.ExecuteScript(ctx, script)
	if err != nil {
		return fmt.Errorf("inject captcha solution: %w", err)
	}
	if ok, _ := result.(bool); !ok {
		return fmt.Errorf("captcha response field %q not found", targetSelector)
	}
	return nil
}
