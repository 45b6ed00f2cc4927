// -----------------------------------------------------------------------
// Browser Session Driver - chromedp-backed tab management for AP web UIs
// -----------------------------------------------------------------------

package browser

import (
	"context"
	"encoding/base64"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/apfleet/internal/common"
	"github.com/ternarybob/apfleet/internal/interfaces"
	"github.com/ternarybob/apfleet/internal/models"
)

// Driver owns one Chrome process and the tabs opened in it. Tab handles are
// opaque strings; each maps to a chromedp tab context. The driver serializes
// nothing itself - callers that share a session across goroutines hold their
// own lock around tab operations, because the browser has one active tab.
type Driver struct {
	config common.BrowserConfig
	logger arbor.ILogger

	mu          sync.Mutex
	allocCancel context.CancelFunc
	browserCtx  context.Context
	browserStop context.CancelFunc
	tabs        map[string]*tab
	tabSeq      int
	started     bool
	closed      bool
}

type tab struct {
	ctx    context.Context
	cancel context.CancelFunc
}

// NewDriver creates a Driver. The browser process starts lazily on the first
// EnsureStarted.
func NewDriver(config common.BrowserConfig, logger arbor.ILogger) *Driver {
	return &Driver{
		config: config,
		logger: logger,
		tabs:   make(map[string]*tab),
	}
}

var _ interfaces.Session = (*Driver)(nil)

// allocatorOptions builds the Chrome launch flags. AP web UIs serve
// self-signed certificates, so certificate errors are ignored wholesale.
func (d *Driver) allocatorOptions() []chromedp.ExecAllocatorOption {
	opts := append(
		chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", d.config.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("ignore-certificate-errors", true),
		chromedp.Flag("ignore-ssl-errors", true),
		chromedp.Flag("allow-insecure-localhost", true),
	)
	if d.config.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(d.config.UserAgent))
	}
	return opts
}

// EnsureStarted starts the Chrome process if it is not already running. A
// session whose browser has died is torn down and replaced.
func (d *Driver) EnsureStarted(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return fmt.Errorf("session is closed")
	}

	if d.started {
		if d.browserCtx.Err() == nil {
			return nil
		}
		d.logger.Warn().Msg("Browser process died, restarting session")
		d.teardownLocked()
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), d.allocatorOptions()...)
	browserCtx, browserStop := chromedp.NewContext(allocCtx)

	startCtx, cancel := context.WithTimeout(browserCtx, d.config.PageLoadTimeout)
	defer cancel()
	if err := chromedp.Run(startCtx, chromedp.Navigate("about:blank")); err != nil {
		browserStop()
		allocCancel()
		return fmt.Errorf("failed to start browser: %w", err)
	}

	d.allocCancel = allocCancel
	d.browserCtx = browserCtx
	d.browserStop = browserStop
	d.tabs = make(map[string]*tab)
	d.tabSeq = 0
	d.started = true

	d.logger.Info().
		Bool("headless", d.config.Headless).
		Msg("Browser session started")
	return nil
}

// OpenTab returns a handle to a tab. The first call adopts the browser's
// initial tab; later calls open fresh tabs in the same process.
func (d *Driver) OpenTab(ctx context.Context) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.started || d.closed {
		return "", fmt.Errorf("session not started")
	}

	d.tabSeq++
	handle := fmt.Sprintf("tab-%d", d.tabSeq)

	if d.tabSeq == 1 {
		d.tabs[handle] = &tab{ctx: d.browserCtx, cancel: func() {}}
		return handle, nil
	}

	tabCtx, tabCancel := chromedp.NewContext(d.browserCtx)
	startCtx, cancel := context.WithTimeout(tabCtx, d.config.PageLoadTimeout)
	defer cancel()
	if err := chromedp.Run(startCtx, chromedp.Navigate("about:blank")); err != nil {
		tabCancel()
		return "", fmt.Errorf("failed to open tab: %w", err)
	}

	d.tabs[handle] = &tab{ctx: tabCtx, cancel: tabCancel}
	d.logger.Debug().Str("handle", handle).Msg("Opened browser tab")
	return handle, nil
}

func (d *Driver) tabContext(handle string) (context.Context, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	t, ok := d.tabs[handle]
	if !ok {
		return nil, fmt.Errorf("unknown tab handle: %s", handle)
	}
	return t.ctx, nil
}

// run executes actions against a tab with a timeout derived from the tab's
// own context. The caller context gates entry only - chromedp actions run on
// the browser's context tree.
func (d *Driver) run(ctx context.Context, handle string, timeout time.Duration, actions ...chromedp.Action) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	tabCtx, err := d.tabContext(handle)
	if err != nil {
		return err
	}
	runCtx, cancel := context.WithTimeout(tabCtx, timeout)
	defer cancel()
	return chromedp.Run(runCtx, actions...)
}

// Activate brings the tab to the foreground. Operations on background tabs
// stall in a headful browser, so every tab-addressed write activates first.
func (d *Driver) Activate(ctx context.Context, handle string) error {
	return d.run(ctx, handle, d.config.ElementWait, chromedp.ActionFunc(func(ctx context.Context) error {
		return page.BringToFront().Do(ctx)
	}))
}

// InjectBasicAuth pins an Authorization header on the tab's network layer so
// navigation to a Basic Auth protected UI never raises a native credential
// prompt. Must run before Navigate.
func (d *Driver) InjectBasicAuth(ctx context.Context, handle, username, password string) error {
	token := base64.StdEncoding.EncodeToString([]byte(username + ":" + password))
	headers := network.Headers{"Authorization": "Basic " + token}

	err := d.run(ctx, handle, d.config.ElementWait,
		network.Enable(),
		network.SetExtraHTTPHeaders(headers),
	)
	if err != nil {
		return fmt.Errorf("failed to inject basic auth header: %w", err)
	}
	d.logger.Debug().Str("handle", handle).Str("username", username).Msg("Injected basic auth header")
	return nil
}

func (d *Driver) Navigate(ctx context.Context, handle, url string) error {
	if err := d.run(ctx, handle, d.config.PageLoadTimeout, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("navigation to %s failed: %w", url, err)
	}
	return nil
}

func (d *Driver) Reload(ctx context.Context, handle string) error {
	if err := d.run(ctx, handle, d.config.PageLoadTimeout, chromedp.Reload()); err != nil {
		return fmt.Errorf("reload failed: %w", err)
	}
	return nil
}

func (d *Driver) CurrentURL(ctx context.Context, handle string) (string, error) {
	var url string
	err := d.run(ctx, handle, d.config.ElementWait, chromedp.Location(&url))
	return url, err
}

func (d *Driver) Title(ctx context.Context, handle string) (string, error) {
	var title string
	err := d.run(ctx, handle, d.config.ElementWait, chromedp.Title(&title))
	return title, err
}

func (d *Driver) PageSource(ctx context.Context, handle string) (string, error) {
	var html string
	err := d.run(ctx, handle, d.config.ElementWait, chromedp.OuterHTML("html", &html, chromedp.ByQuery))
	return html, err
}

func (d *Driver) WaitBody(ctx context.Context, handle string) error {
	return d.run(ctx, handle, d.config.ElementWait, chromedp.WaitReady("body", chromedp.ByQuery))
}

// ReadCheckbox finds the checkbox among the page's same-named inputs (the AP
// UI renders a hidden input with the same name next to each checkbox) and
// reports its state.
func (d *Driver) ReadCheckbox(ctx context.Context, handle, name string) (models.ToggleState, error) {
	script := fmt.Sprintf(`(function() {
		var els = document.getElementsByName(%q);
		for (var i = 0; i < els.length; i++) {
			var el = els[i];
			if (el.tagName === 'INPUT' && el.type === 'checkbox') {
				var visible = el.offsetParent !== null;
				return { found: true, checked: el.checked, interactable: visible && !el.disabled };
			}
		}
		return { found: false, checked: false, interactable: false };
	})()`, name)

	var result struct {
		Found        bool `json:"found"`
		Checked      bool `json:"checked"`
		Interactable bool `json:"interactable"`
	}
	if err := d.run(ctx, handle, d.config.ElementWait, chromedp.Evaluate(script, &result)); err != nil {
		return models.ToggleState{}, fmt.Errorf("failed to read checkbox %q: %w", name, err)
	}
	if !result.Found {
		return models.ToggleState{}, fmt.Errorf("checkbox %q not found on page", name)
	}
	return models.ToggleState{Checked: result.Checked, Interactable: result.Interactable}, nil
}

// clickReliable clicks via the normal event path first, then falls back to a
// programmatic click when the element is present but the click is intercepted
// (overlays on the AP config pages do this).
func (d *Driver) clickReliable(ctx context.Context, handle, selector string) error {
	clickErr := d.run(ctx, handle, d.config.ElementWait, chromedp.Click(selector, chromedp.ByQuery))
	if clickErr == nil {
		return nil
	}

	d.logger.Debug().
		Str("selector", selector).
		Err(clickErr).
		Msg("Normal click failed, trying programmatic click")

	script := fmt.Sprintf(`(function() {
		var el = document.querySelector(%q);
		if (!el) { return false; }
		el.click();
		return true;
	})()`, selector)

	var clicked bool
	if err := d.run(ctx, handle, d.config.ElementWait, chromedp.Evaluate(script, &clicked)); err != nil {
		return fmt.Errorf("click on %q failed: %w", selector, clickErr)
	}
	if !clicked {
		return fmt.Errorf("element %q not found for click", selector)
	}
	return nil
}

func (d *Driver) ClickCheckbox(ctx context.Context, handle, name string) error {
	selector := fmt.Sprintf("input[type='checkbox'][name='%s']", name)
	return d.clickReliable(ctx, handle, selector)
}

func (d *Driver) ClickSave(ctx context.Context, handle string) error {
	return d.clickReliable(ctx, handle, "input[type='submit'][value='Save']")
}

// ClickAny tries each selector in order and clicks the first that resolves.
// Per-selector failures are expected (most interstitial variants render only
// one of the candidate buttons) and only logged.
func (d *Driver) ClickAny(ctx context.Context, handle string, selectors []interfaces.Selector) (bool, error) {
	for _, sel := range selectors {
		opt := chromedp.ByQuery
		if sel.Kind == interfaces.SelectorXPath {
			opt = chromedp.BySearch
		}

		err := d.run(ctx, handle, d.config.NavigateSettle+2*time.Second,
			chromedp.Click(sel.Value, opt, chromedp.NodeVisible))
		if err == nil {
			d.logger.Debug().Str("selector", sel.Value).Msg("Clicked element")
			return true, nil
		}
		d.logger.Debug().Str("selector", sel.Value).Err(err).Msg("Selector did not resolve, trying next")
	}
	return false, nil
}

// Close shuts the browser down. Safe to call more than once.
func (d *Driver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil
	}
	d.closed = true

	if d.started {
		d.teardownLocked()
		d.logger.Info().Msg("Browser session closed")
	}
	return nil
}

func (d *Driver) teardownLocked() {
	for _, t := range d.tabs {
		t.cancel()
	}
	if d.browserStop != nil {
		d.browserStop()
	}
	if d.allocCancel != nil {
		d.allocCancel()
	}
	d.tabs = make(map[string]*tab)
	d.started = false
}
