// -----------------------------------------------------------------------
// Interstitial Handler - dismisses the security appliance warning page
// -----------------------------------------------------------------------

package browser

import (
	"context"
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/apfleet/internal/common"
	"github.com/ternarybob/apfleet/internal/interfaces"
)

// The network security appliance injects this warning page in front of AP
// web UIs with self-signed certificates. Detection needs the restriction
// phrase plus either the SSL phrase or a visible proceed control.
const (
	warningPhrase  = "Warning - Restricted Website"
	sslErrorPhrase = "Invalid SSL/TLS certificate"
)

// proceedSelectors is ordered most-specific first. Different appliance
// firmware renders different button markup, so all variants are tried.
var proceedSelectors = []interfaces.Selector{
	interfaces.CSS("button.proceed.prompt"),
	interfaces.CSS("button.proceed"),
	interfaces.CSS("button[class*='proceed']"),
	interfaces.XPath("//button[contains(text(), 'PROCEED')]"),
}

// Interstitial detects and dismisses the appliance warning page on a tab.
// It is a best-effort guard: every failure is reported as "not handled" and
// callers proceed with navigation regardless.
type Interstitial struct {
	session     interfaces.Session
	logger      arbor.ILogger
	clickSettle time.Duration
	loadSettle  time.Duration
}

// NewInterstitial creates a handler bound to a session. The settle delays
// come from the browser configuration alongside NavigateSettle.
func NewInterstitial(session interfaces.Session, config common.BrowserConfig, logger arbor.ILogger) *Interstitial {
	return &Interstitial{
		session:     session,
		logger:      logger,
		clickSettle: config.DismissSettle,
		loadSettle:  config.ReloadSettle,
	}
}

// CheckAndDismiss returns true only when the warning page was present and
// successfully dismissed. Errors during detection or dismissal are swallowed.
func (h *Interstitial) CheckAndDismiss(ctx context.Context, handle string) bool {
	source, err := h.session.PageSource(ctx, handle)
	if err != nil {
		h.logger.Debug().Str("handle", handle).Err(err).Msg("Could not read page source for warning check")
		return false
	}

	if !strings.Contains(source, warningPhrase) {
		return false
	}
	if !strings.Contains(source, sslErrorPhrase) && !containsProceedControl(source) {
		return false
	}

	h.logger.Info().Str("handle", handle).Msg("Security warning page detected, dismissing")

	clicked, err := h.session.ClickAny(ctx, handle, proceedSelectors)
	if err != nil || !clicked {
		h.logger.Warn().Str("handle", handle).Err(err).Msg("Could not click proceed control on warning page")
		return false
	}

	time.Sleep(h.clickSettle)

	if err := h.session.Reload(ctx, handle); err != nil {
		h.logger.Warn().Str("handle", handle).Err(err).Msg("Reload after warning dismissal failed")
		return false
	}

	time.Sleep(h.loadSettle)

	if err := h.session.WaitBody(ctx, handle); err != nil {
		h.logger.Warn().Str("handle", handle).Err(err).Msg("Page body never appeared after warning dismissal")
		return false
	}

	h.logger.Info().Str("handle", handle).Msg("Security warning dismissed")
	return true
}

// containsProceedControl is a cheap source-level check for the proceed
// button when the SSL phrase is absent.
func containsProceedControl(source string) bool {
	lower := strings.ToLower(source)
	return strings.Contains(lower, "proceed")
}
