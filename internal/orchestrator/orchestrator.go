// -----------------------------------------------------------------------
// Target Orchestrator - connects a batch of APs across browser tabs
// -----------------------------------------------------------------------

package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/apfleet/internal/common"
	"github.com/ternarybob/apfleet/internal/extract"
	"github.com/ternarybob/apfleet/internal/interfaces"
	"github.com/ternarybob/apfleet/internal/models"
)

// WarningDismisser is the interstitial guard invoked after navigation.
type WarningDismisser interface {
	CheckAndDismiss(ctx context.Context, handle string) bool
}

// networkErrorSubstrings are browser-level failure markers. A page or title
// containing any of them means the tab never reached the device.
var networkErrorSubstrings = []string{
	"ERR_CONNECTION_REFUSED",
	"ERR_NAME_NOT_RESOLVED",
	"ERR_CONNECTION_TIMED_OUT",
	"ERR_ADDRESS_UNREACHABLE",
	"ERR_CONNECTION_RESET",
	"This site can't be reached",
	"took too long to respond",
}

// placeholderURLPrefixes mark tabs that never left the blank/error state.
var placeholderURLPrefixes = []string{
	"data:",
	"about:blank",
	"chrome-error://",
}

// Orchestrator connects a batch of Targets to one shared browser session,
// each in its own tab, and collects post-connection status into the
// credential store. Phases run sequentially across targets; all tabs share
// one browser and switching the active tab is session-wide state, so
// intra-phase parallelism would race.
type Orchestrator struct {
	session      interfaces.Session
	interstitial WarningDismisser
	extractor    *extract.Extractor
	store        interfaces.CredentialStore
	reporter     interfaces.StatusReporter
	config       common.BrowserConfig
	logger       arbor.ILogger

	sessions []models.TabSession
}

// New creates an Orchestrator. A nil reporter is replaced with a no-op.
func New(
	session interfaces.Session,
	interstitial WarningDismisser,
	extractor *extract.Extractor,
	store interfaces.CredentialStore,
	reporter interfaces.StatusReporter,
	config common.BrowserConfig,
	logger arbor.ILogger,
) *Orchestrator {
	if reporter == nil {
		reporter = interfaces.NopReporter{}
	}
	return &Orchestrator{
		session:      session,
		interstitial: interstitial,
		extractor:    extractor,
		store:        store,
		reporter:     reporter,
		config:       config,
		logger:       logger,
	}
}

// Sessions returns the tab sessions from the most recent run. The
// configuration workflow's batch variant operates on these.
func (o *Orchestrator) Sessions() []models.TabSession {
	return o.sessions
}

// Connect runs the four-phase connection sequence for a batch of targets.
// A reconnect run opens fresh tabs for the given subset and appends their
// sessions to the existing collection, leaving connected tabs undisturbed.
// A BatchResult is always returned, never an error.
func (o *Orchestrator) Connect(ctx context.Context, targets []models.Target, progress interfaces.ProgressFunc, reconnect bool) models.BatchResult {
	batchID := common.NewBatchID()
	report := func(message string, percent int) {
		if progress != nil {
			progress(message, percent)
		}
	}

	o.logger.Info().
		Str("batch_id", batchID).
		Int("targets", len(targets)).
		Bool("reconnect", reconnect).
		Msg("Starting connection batch")

	if len(targets) == 0 {
		return models.BatchResult{
			BatchID: batchID,
			Status:  models.StatusError,
			Message: "no targets to connect",
		}
	}

	report("Starting browser session...", 5)
	if err := o.session.EnsureStarted(ctx); err != nil {
		o.logger.Error().Err(err).Msg("Browser session failed to start")
		return models.BatchResult{
			BatchID:     batchID,
			Status:      models.StatusError,
			Message:     fmt.Sprintf("browser session failed to start: %v", err),
			FailedAPIDs: apIDs(targets),
		}
	}

	report("Opening tabs...", 10)
	batch := o.openTabs(ctx, targets)

	report("Authenticating and navigating...", 20)
	o.authenticateAndNavigate(ctx, batch)

	report("Verifying connections...", 50)
	o.verify(ctx, batch)

	report("Collecting device status...", 80)
	o.collect(ctx, batch)

	// Stored only after the phases finish so the retained sessions carry
	// their final connected/failed status.
	if reconnect {
		o.sessions = append(o.sessions, batch...)
	} else {
		o.sessions = batch
	}

	report("Finalizing...", 85)
	o.refocusFirstTab(ctx)

	result := o.buildResult(batchID, batch)
	report(result.Message, 100)
	o.reporter.UpdateSummary(result.Message)
	o.reporter.EnableClose()

	o.logger.Info().
		Str("batch_id", batchID).
		Str("status", string(result.Status)).
		Int("connected", len(result.ConnectedAPIDs)).
		Int("failed", len(result.FailedAPIDs)).
		Msg("Connection batch complete")
	return result
}

// openTabs is phase 1: one tab per target, status loading. A tab that fails
// to open marks its session failed and is excluded from later phases.
func (o *Orchestrator) openTabs(ctx context.Context, targets []models.Target) []models.TabSession {
	batch := make([]models.TabSession, 0, len(targets))
	for _, target := range targets {
		o.reporter.UpdateStatus(target.APID, "connecting", "Opening tab...")

		handle, err := o.session.OpenTab(ctx)
		if err != nil {
			o.logger.Error().Err(err).Str("ap_id", target.APID).Msg("Failed to open tab")
			o.reporter.UpdateStatus(target.APID, "failed", fmt.Sprintf("Failed to open tab: %v", err))
			batch = append(batch, models.TabSession{
				Target: target,
				Status: models.TabFailed,
				Error:  fmt.Sprintf("failed to open tab: %v", err),
			})
			continue
		}
		batch = append(batch, models.TabSession{
			Handle: handle,
			Target: target,
			Status: models.TabLoading,
		})
	}
	return batch
}

// authenticateAndNavigate is phase 2. Navigation timeouts are logged but not
// fatal - the tab may still finish loading and phase 3 is authoritative.
// Failures before navigation (activation, header injection) mark the session
// failed immediately.
func (o *Orchestrator) authenticateAndNavigate(ctx context.Context, batch []models.TabSession) {
	for i := range batch {
		ts := &batch[i]
		if ts.Status != models.TabLoading {
			continue
		}
		target := ts.Target

		o.reporter.UpdateStatus(target.APID, "connecting", "Authenticating...")

		if err := o.session.Activate(ctx, ts.Handle); err != nil {
			o.failSession(ts, fmt.Sprintf("failed to activate tab: %v", err))
			continue
		}
		if err := o.session.InjectBasicAuth(ctx, ts.Handle, target.Username, target.Password); err != nil {
			o.failSession(ts, fmt.Sprintf("failed to inject credentials: %v", err))
			continue
		}

		url := target.URL()
		o.reporter.UpdateStatus(target.APID, "connecting", fmt.Sprintf("Navigating to %s...", url))
		if err := o.session.Navigate(ctx, ts.Handle, url); err != nil {
			o.logger.Warn().
				Str("ap_id", target.APID).
				Str("url", url).
				Err(err).
				Msg("Navigation did not complete in time, verification will decide")
		}

		if o.interstitial != nil && o.interstitial.CheckAndDismiss(ctx, ts.Handle) {
			o.logger.Info().Str("ap_id", target.APID).Msg("Dismissed security warning during navigation")
			time.Sleep(o.config.NavigateSettle)
		}
	}
}

// verify is phase 3: classify each still-loading session as connected or
// failed from the tab's URL, title and page text.
func (o *Orchestrator) verify(ctx context.Context, batch []models.TabSession) {
	for i := range batch {
		ts := &batch[i]
		if ts.Status != models.TabLoading {
			continue
		}
		target := ts.Target

		o.reporter.UpdateStatus(target.APID, "connecting", "Verifying connection...")

		if err := o.session.Activate(ctx, ts.Handle); err != nil {
			o.failSession(ts, fmt.Sprintf("timeout verifying connection: %v", err))
			continue
		}

		currentURL, err := o.session.CurrentURL(ctx, ts.Handle)
		if err != nil {
			o.failSession(ts, fmt.Sprintf("timeout verifying connection: %v", err))
			continue
		}
		title, err := o.session.Title(ctx, ts.Handle)
		if err != nil {
			o.failSession(ts, fmt.Sprintf("timeout verifying connection: %v", err))
			continue
		}
		source, err := o.session.PageSource(ctx, ts.Handle)
		if err != nil {
			o.failSession(ts, fmt.Sprintf("timeout verifying connection: %v", err))
			continue
		}

		if reason := classifyFailure(currentURL, title, source); reason != "" {
			o.failSession(ts, reason)
			continue
		}

		if strings.Contains(currentURL, target.Host()) || title != "" {
			ts.Status = models.TabConnected
			o.reporter.UpdateStatus(target.APID, "connected", "Connected")
			o.logger.Info().Str("ap_id", target.APID).Str("url", currentURL).Msg("Target connected")
			continue
		}

		o.failSession(ts, "could not verify connection")
	}
}

// classifyFailure returns a failure reason when the tab shows a browser
// network error or never left a placeholder URL, empty string otherwise.
func classifyFailure(currentURL, title, source string) string {
	for _, marker := range networkErrorSubstrings {
		if strings.Contains(source, marker) || strings.Contains(title, marker) {
			return fmt.Sprintf("connection failed: %s", marker)
		}
	}
	for _, prefix := range placeholderURLPrefixes {
		if currentURL == "" || strings.HasPrefix(currentURL, prefix) {
			return "connection failed: page never loaded"
		}
	}
	return ""
}

// collect is phase 4: scrape the status page of every connected target and
// persist changed fields. Extraction failures are per-target, never batch
// aborts.
func (o *Orchestrator) collect(ctx context.Context, batch []models.TabSession) {
	for i := range batch {
		ts := &batch[i]
		if ts.Status != models.TabConnected {
			continue
		}
		target := ts.Target

		if err := o.collectOne(ctx, ts); err != nil {
			o.logger.Warn().
				Str("ap_id", target.APID).
				Err(err).
				Msg("Status collection failed for target")
		}
	}
}

func (o *Orchestrator) collectOne(ctx context.Context, ts *models.TabSession) error {
	target := ts.Target

	if err := o.session.Activate(ctx, ts.Handle); err != nil {
		return fmt.Errorf("failed to activate tab: %w", err)
	}
	if err := o.session.Navigate(ctx, ts.Handle, target.StatusURL()); err != nil {
		return fmt.Errorf("failed to open status page: %w", err)
	}
	if err := o.session.WaitBody(ctx, ts.Handle); err != nil {
		return fmt.Errorf("status page did not render: %w", err)
	}
	time.Sleep(o.config.NavigateSettle)

	source, err := o.session.PageSource(ctx, ts.Handle)
	if err != nil {
		return fmt.Errorf("failed to read status page: %w", err)
	}

	status := o.extractor.All(source)
	stored, err := o.store.Get(ctx, target.APID)
	if err != nil {
		return fmt.Errorf("failed to load stored record: %w", err)
	}

	diff := status.Diff(stored)
	if len(diff) == 0 {
		o.logger.Debug().Str("ap_id", target.APID).Msg("Device status unchanged")
		return nil
	}

	if err := o.store.Update(ctx, target.APID, diff); err != nil {
		return fmt.Errorf("failed to persist status fields: %w", err)
	}
	o.logger.Info().
		Str("ap_id", target.APID).
		Int("fields_updated", len(diff)).
		Msg("Persisted device status fields")
	return nil
}

// refocusFirstTab leaves the browser on the first session's tab so a human
// observer lands somewhere sane. Best effort.
func (o *Orchestrator) refocusFirstTab(ctx context.Context) {
	if len(o.sessions) == 0 || o.sessions[0].Handle == "" {
		return
	}
	if err := o.session.Activate(ctx, o.sessions[0].Handle); err != nil {
		o.logger.Debug().Err(err).Msg("Could not refocus first tab")
	}
}

func (o *Orchestrator) failSession(ts *models.TabSession, reason string) {
	ts.Status = models.TabFailed
	ts.Error = reason
	o.reporter.UpdateStatus(ts.Target.APID, "failed", reason)
	o.logger.Warn().Str("ap_id", ts.Target.APID).Str("reason", reason).Msg("Target failed")
}

func (o *Orchestrator) buildResult(batchID string, batch []models.TabSession) models.BatchResult {
	result := models.BatchResult{BatchID: batchID}
	for _, ts := range batch {
		if ts.Status == models.TabConnected {
			result.ConnectedAPIDs = append(result.ConnectedAPIDs, ts.Target.APID)
		} else {
			result.FailedAPIDs = append(result.FailedAPIDs, ts.Target.APID)
		}
	}

	switch {
	case len(result.FailedAPIDs) == 0:
		result.Status = models.StatusSuccess
		result.Message = fmt.Sprintf("Connected %d of %d targets", len(result.ConnectedAPIDs), len(batch))
	case len(result.ConnectedAPIDs) == 0:
		result.Status = models.StatusError
		result.Message = fmt.Sprintf("All %d targets failed to connect", len(batch))
	default:
		result.Status = models.StatusWarning
		result.Message = fmt.Sprintf("Connected %d of %d targets, %d failed",
			len(result.ConnectedAPIDs), len(batch), len(result.FailedAPIDs))
	}
	return result
}

func apIDs(targets []models.Target) []string {
	ids := make([]string, 0, len(targets))
	for _, t := range targets {
		ids = append(ids, t.APID)
	}
	return ids
}
