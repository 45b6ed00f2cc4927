package interfaces

import (
	"context"

	"github.com/ternarybob/apfleet/internal/models"
)

// Session is the browser driver contract consumed by the orchestrator and
// configuration workflow. One implementation wraps a chromedp browser
// process; tests substitute recording mocks.
//
// A session owns at most one underlying browser process. Tab handles are
// opaque; all tab-addressed operations activate the tab as needed, but
// callers coordinating concurrent work must serialize access themselves -
// the underlying browser has a single active tab.
type Session interface {
	// EnsureStarted starts the browser if needed. Idempotent: a dead
	// session is discarded and replaced.
	EnsureStarted(ctx context.Context) error

	// OpenTab returns a handle to a tab. The first call reuses the
	// session's initial tab; subsequent calls open new tabs.
	OpenTab(ctx context.Context) (string, error)

	// Activate brings the tab to the foreground.
	Activate(ctx context.Context, handle string) error

	// InjectBasicAuth sets an Authorization: Basic header on the tab's
	// network layer so navigation never hits a native credential prompt.
	// Must be called before Navigate.
	InjectBasicAuth(ctx context.Context, handle, username, password string) error

	Navigate(ctx context.Context, handle, url string) error
	Reload(ctx context.Context, handle string) error
	CurrentURL(ctx context.Context, handle string) (string, error)
	Title(ctx context.Context, handle string) (string, error)
	PageSource(ctx context.Context, handle string) (string, error)

	// WaitBody blocks until a body element is present or the context
	// expires.
	WaitBody(ctx context.Context, handle string) error

	// ReadCheckbox locates the real checkbox among the page's same-named
	// inputs and returns its state.
	ReadCheckbox(ctx context.Context, handle, name string) (models.ToggleState, error)

	// ClickCheckbox clicks the checkbox, falling back to a programmatic
	// click when a normal click is intercepted.
	ClickCheckbox(ctx context.Context, handle, name string) error

	// ClickSave submits the page's Save control with the same
	// click-then-fallback discipline.
	ClickSave(ctx context.Context, handle string) error

	// ClickAny tries each selector in order and clicks the first one that
	// resolves to a clickable element. Returns false when none matched.
	ClickAny(ctx context.Context, handle string, selectors []Selector) (bool, error)

	// Close terminates the browser process. Subsequent calls are no-ops.
	Close() error
}

// SelectorKind distinguishes CSS from XPath selectors for ClickAny.
type SelectorKind int

const (
	SelectorCSS SelectorKind = iota
	SelectorXPath
)

// Selector is one entry in a prioritized selector list.
type Selector struct {
	Kind  SelectorKind
	Value string
}

// CSS builds a CSS selector entry.
func CSS(value string) Selector { return Selector{Kind: SelectorCSS, Value: value} }

// XPath builds an XPath selector entry.
func XPath(value string) Selector { return Selector{Kind: SelectorXPath, Value: value} }
