package interfaces

import (
	"context"
	"time"

	"github.com/formflow/automation/internal/models"
)

// OpenOptions configures a browser session's navigation (spec §6).
type OpenOptions struct {
	Undetected bool
	Headless   bool
	UserAgent  string
}

// SelectMode is the strategy BrowserCapability.Select tries, in the order
// the Pipeline Executor's filling phase specifies (spec §4.4).
type SelectMode string

const (
	SelectByVisibleText SelectMode = "visible_text"
	SelectByValue       SelectMode = "value"
	SelectByFuzzyText   SelectMode = "fuzzy"
)

// BrowserSession is one open page, exclusive to the worker that opened it
// for the duration of a job (spec §3 "Ownership", §5).
type BrowserSession interface {
	WaitReady(ctx context.Context, timeout time.Duration) error
	QueryFields(ctx context.Context) ([]models.FieldDescriptor, error)
	GetFormHTML(ctx context.Context, maxBytes int) (string, error)
	Type(ctx context.Context, selector, value string, timeout time.Duration) error
	Select(ctx context.Context, selector, value string, mode SelectMode) error
	Click(ctx context.Context, selector string, timeout time.Duration) error
	IsVisible(ctx context.Context, selector string) (bool, error)
	CurrentURL(ctx context.Context) (string, error)
	Screenshot(ctx context.Context, selector string) ([]byte, error)
	ExecuteScript(ctx context.Context, js string) (interface{}, error)
	Close() error
}

// BrowserCapability is the abstract façade over a real browser driver
// (spec §6, C2). Implementations wrap any real driver; the core never
// imports a driver package directly outside internal/browser.
type BrowserCapability interface {
	Open(ctx context.Context, url string, opts OpenOptions) (BrowserSession, error)
}
