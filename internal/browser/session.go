package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/chromedp"
	"github.com/ternarybob/arbor"

	"github.com/formflow/automation/internal/interfaces"
	"github.com/formflow/automation/internal/models"
)

// Session implements interfaces.BrowserSession over one chromedp tab
// context, exclusive to the job that opened it.
type Session struct {
	ctx           context.Context
	cancel        context.CancelFunc
	actionTimeout time.Duration
	jsWaitTime    time.Duration
	logger        arbor.ILogger
}

// queryFieldsScript serializes every form control into the FieldDescriptor
// shape, mirroring what a real browser can observe about visibility/
// disabled state that static HTML parsing cannot.
const queryFieldsScript = `
(function() {
  function selectorFor(el) {
    if (el.id) return '#' + CSS.escape(el.id);
    if ((el.type === 'radio' || el.type === 'checkbox') && el.name) {
      return el.tagName.toLowerCase() + '[name="' + el.name.replace(/"/g, '\\"') + '"][value="' + String(el.value).replace(/"/g, '\\"') + '"]';
    }
    if (el.name) return el.tagName.toLowerCase() + '[name="' + el.name.replace(/"/g, '\\"') + '"]';
    return el.tagName.toLowerCase();
  }
  function labelFor(el) {
    if (el.id) {
      var l = document.querySelector('label[for="' + el.id.replace(/"/g, '\\"') + '"]');
      if (l) return l.innerText.trim();
    }
    var parentLabel = el.closest('label');
    if (parentLabel) return parentLabel.innerText.trim();
    return '';
  }
  function isVisible(el) {
    var style = window.getComputedStyle(el);
    var rect = el.getBoundingClientRect();
    return style.display !== 'none' && style.visibility !== 'hidden' && rect.width > 0 && rect.height > 0;
  }
  var out = [];
  document.querySelectorAll('input, select, textarea, button').forEach(function(el) {
    var options = [];
    if (el.tagName.toLowerCase() === 'select') {
      el.querySelectorAll('option').forEach(function(o) { options.push(o.textContent.trim()); });
    }
    out.push({
      selector: selectorFor(el),
      tag: el.tagName.toLowerCase(),
      type: el.type || 'text',
      name: el.name || '',
      id: el.id || '',
      label: labelFor(el),
      placeholder: el.placeholder || '',
      aria_label: el.getAttribute('aria-label') || '',
      autocomplete: el.getAttribute('autocomplete') || '',
      options: options,
      visible: isVisible(el),
      disabled: !!el.disabled,
      hidden: el.type === 'hidden'
    });
  });
  return JSON.stringify(out);
})()
`

// WaitReady blocks until the document reaches readyState "complete" or the
// configured navigation timeout elapses.
func (s *Session) WaitReady(ctx context.Context, timeout time.Duration) error {
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return chromedp.Run(mergeCtx(s.ctx, waitCtx), chromedp.WaitReady("body"))
}

// QueryFields returns every form control currently in the DOM.
func (s *Session) QueryFields(ctx context.Context) ([]models.FieldDescriptor, error) {
	actionCtx, cancel := context.WithTimeout(ctx, s.actionTimeout)
	defer cancel()

	var raw string
	if err := chromedp.Run(mergeCtx(s.ctx, actionCtx), chromedp.Evaluate(queryFieldsScript, &raw)); err != nil {
		return nil, fmt.Errorf("query_fields evaluate failed: %w", err)
	}

	var fields []models.FieldDescriptor
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		return nil, fmt.Errorf("query_fields response decode failed: %w", err)
	}
	return fields, nil
}

// GetFormHTML returns the page's outer HTML, truncated to maxBytes (spec
// §4.3's AI Analyzer input budget).
func (s *Session) GetFormHTML(ctx context.Context, maxBytes int) (string, error) {
	actionCtx, cancel := context.WithTimeout(ctx, s.actionTimeout)
	defer cancel()

	var html string
	if err := chromedp.Run(mergeCtx(s.ctx, actionCtx), chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("get_form_html failed: %w", err)
	}

	if maxBytes > 0 && len(html) > maxBytes {
		html = html[:maxBytes]
	}
	return html, nil
}

// Type clears and types value into selector.
func (s *Session) Type(ctx context.Context, selector, value string, timeout time.Duration) error {
	actionCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	return chromedp.Run(mergeCtx(s.ctx, actionCtx),
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.Clear(selector, chromedp.ByQuery),
		chromedp.SendKeys(selector, value, chromedp.ByQuery),
	)
}

// Select tries visible-text, then value, then fuzzy-contains matching,
// per the Pipeline Executor's filling-phase order (spec §4.4).
func (s *Session) Select(ctx context.Context, selector, value string, mode interfaces.SelectMode) error {
	actionCtx, cancel := context.WithTimeout(ctx, s.actionTimeout)
	defer cancel()
	runCtx := mergeCtx(s.ctx, actionCtx)

	switch mode {
	case interfaces.SelectByValue:
		return chromedp.Run(runCtx, chromedp.SetValue(selector, value, chromedp.ByQuery))
	case interfaces.SelectByFuzzyText:
		return s.selectFuzzy(runCtx, selector, value)
	default: // SelectByVisibleText
		return chromedp.Run(runCtx, chromedp.SetValue(selector, value, chromedp.ByQuery))
	}
}

func (s *Session) selectFuzzy(ctx context.Context, selector, value string) error {
	script := fmt.Sprintf(`
(function() {
  var el = document.querySelector(%q);
  if (!el) return false;
  var target = %q.toLowerCase();
  for (var i = 0; i < el.options.length; i++) {
    var opt = el.options[i];
    if (opt.text.toLowerCase().indexOf(target) !== -1 || opt.value.toLowerCase().indexOf(target) !== -1) {
      el.selectedIndex = i;
      el.dispatchEvent(new Event('change', { bubbles: true }));
      return true;
    }
  }
  return false;
})()
`, selector, value)

	var matched bool
	if err := chromedp.Run(ctx, chromedp.Evaluate(script, &matched)); err != nil {
		return err
	}
	if !matched {
		return fmt.Errorf("fuzzy select found no matching option for %q on %s", value, selector)
	}
	return nil
}

// Click waits for selector to be visible then clicks it.
func (s *Session) Click(ctx context.Context, selector string, timeout time.Duration) error {
	actionCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return chromedp.Run(mergeCtx(s.ctx, actionCtx),
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.Click(selector, chromedp.ByQuery),
	)
}

// IsVisible performs a short visibility check (spec §4.4 "clearing": "each
// candidate is tried once with a short visibility check").
func (s *Session) IsVisible(ctx context.Context, selector string) (bool, error) {
	actionCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	var nodes []*cdp.Node
	err := chromedp.Run(mergeCtx(s.ctx, actionCtx), chromedp.Nodes(selector, &nodes, chromedp.ByQuery, chromedp.AtLeast(0)))
	if err != nil || len(nodes) == 0 {
		return false, nil
	}

	var visible bool
	script := fmt.Sprintf(`
(function() {
  var el = document.querySelector(%q);
  if (!el) return false;
  var style = window.getComputedStyle(el);
  var rect = el.getBoundingClientRect();
  return style.display !== 'none' && style.visibility !== 'hidden' && rect.width > 0 && rect.height > 0;
})()
`, selector)
	if err := chromedp.Run(mergeCtx(s.ctx, actionCtx), chromedp.Evaluate(script, &visible)); err != nil {
		return false, nil
	}
	return visible, nil
}

// CurrentURL returns the tab's current location (used to detect multi-step
// navigation and post-submit signals, spec §4.4).
func (s *Session) CurrentURL(ctx context.Context) (string, error) {
	actionCtx, cancel := context.WithTimeout(ctx, s.actionTimeout)
	defer cancel()
	var url string
	err := chromedp.Run(mergeCtx(s.ctx, actionCtx), chromedp.Location(&url))
	return url, err
}

// Screenshot captures selector (the whole viewport if selector is empty),
// used for the CAPTCHA vision fallback (spec §4.5).
func (s *Session) Screenshot(ctx context.Context, selector string) ([]byte, error) {
	actionCtx, cancel := context.WithTimeout(ctx, s.actionTimeout)
	defer cancel()

	var buf []byte
	var err error
	if selector == "" {
		err = chromedp.Run(mergeCtx(s.ctx, actionCtx), chromedp.CaptureScreenshot(&buf))
	} else {
		err = chromedp.Run(mergeCtx(s.ctx, actionCtx), chromedp.Screenshot(selector, &buf, chromedp.ByQuery))
	}
	return buf, err
}

// ExecuteScript runs arbitrary JS and returns its evaluated result.
func (s *Session) ExecuteScript(ctx context.Context, js string) (interface{}, error) {
	actionCtx, cancel := context.WithTimeout(ctx, s.actionTimeout)
	defer cancel()

	var result interface{}
	err := chromedp.Run(mergeCtx(s.ctx, actionCtx), chromedp.Evaluate(js, &result))
	return result, err
}

// Close releases the tab context. The underlying browser process stays in
// the pool for reuse by other jobs.
func (s *Session) Close() error {
	s.cancel()
	return nil
}

// mergeCtx lets a caller-supplied deadline bound an action while the
// action still runs against the tab's chromedp context (chromedp actions
// need a chromedp-aware context, so we can't just use ctx directly).
func mergeCtx(tabCtx, deadlineCtx context.Context) context.Context {
	c, _ := context.WithDeadline(tabCtx, deadlineFrom(deadlineCtx))
	return c
}

func deadlineFrom(ctx context.Context) time.Time {
	if dl, ok := ctx.Deadline(); ok {
		return dl
	}
	return time.Now().Add(30 * time.Second)
}
