// -----------------------------------------------------------------------
// Configuration Workflow - toggles SSH/provisioning through the AP web form
// -----------------------------------------------------------------------

package workflow

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/apfleet/internal/common"
	"github.com/ternarybob/apfleet/internal/interfaces"
	"github.com/ternarybob/apfleet/internal/models"
)

// Workflow toggles one boolean device setting through its web form. The SSH
// checkbox is rendered non-interactable while provisioning is enabled, so
// enabling or disabling SSH may require turning provisioning off first and
// restoring it afterwards.
//
// All tab operations run under driverMu: the browser has one active tab, so
// switch-tab-and-operate is a session-wide critical section shared with the
// batch variant's worker goroutines.
type Workflow struct {
	session  interfaces.Session
	reporter interfaces.StatusReporter
	config   common.WorkflowConfig
	logger   arbor.ILogger

	driverMu sync.Mutex
}

// New creates a Workflow. A nil reporter is replaced with a no-op.
func New(session interfaces.Session, reporter interfaces.StatusReporter, config common.WorkflowConfig, logger arbor.ILogger) *Workflow {
	if reporter == nil {
		reporter = interfaces.NopReporter{}
	}
	return &Workflow{
		session:  session,
		reporter: reporter,
		config:   config,
		logger:   logger,
	}
}

// Run executes one action against one target's tab. No error crosses this
// boundary; every outcome is a classified ActionResult.
func (w *Workflow) Run(ctx context.Context, ts models.TabSession, setting models.Setting, action models.ToggleAction) models.ActionResult {
	apID := ts.Target.APID
	w.reporter.UpdateStatus(apID, "working", fmt.Sprintf("Applying %s %s...", setting, action))

	w.driverMu.Lock()
	result := w.execute(ctx, ts, setting, action)
	w.driverMu.Unlock()

	switch result.Status {
	case models.StatusError:
		w.reporter.UpdateStatus(apID, "failed", result.Message)
		w.logger.Warn().
			Str("ap_id", apID).
			Str("setting", string(setting)).
			Str("action", string(action)).
			Str("message", result.Message).
			Msg("Configuration action failed")
	default:
		w.reporter.UpdateStatus(apID, "done", result.Message)
		w.logger.Info().
			Str("ap_id", apID).
			Str("setting", string(setting)).
			Str("action", string(action)).
			Str("status", string(result.Status)).
			Msg("Configuration action complete")
	}
	return result
}

// execute runs the per-target state machine with the driver lock held.
func (w *Workflow) execute(ctx context.Context, ts models.TabSession, setting models.Setting, action models.ToggleAction) (result models.ActionResult) {
	target := ts.Target
	result = models.ActionResult{APID: target.APID}

	state, err := w.openAndRead(ctx, ts.Handle, target, setting)
	if err != nil {
		result.Status = models.StatusError
		result.Message = err.Error()
		return result
	}

	if action == models.ActionReport {
		checked := state.Checked
		result.Status = models.StatusSuccess
		result.Message = fmt.Sprintf("%s is %s", setting, enabledWord(checked))
		result.Enabled = &checked
		return result
	}

	desired := action.Desired()
	if state.Checked == desired {
		// idempotent no-op, saves a redundant save round-trip
		checked := state.Checked
		result.Status = models.StatusSuccess
		result.Message = fmt.Sprintf("%s already %s", setting, enabledWord(desired))
		result.Enabled = &checked
		return result
	}

	// A non-interactable SSH checkbox means provisioning gates it and must
	// be disabled first, then restored no matter how the toggle goes.
	provisioningWasEnabled := false
	if setting == models.SettingSSH && !state.Interactable {
		provisioningWasEnabled, err = w.disableGatingProvisioning(ctx, ts.Handle, target)
		if err != nil {
			result.Status = models.StatusError
			result.Message = fmt.Sprintf("failed to release provisioning gate: %v", err)
			return result
		}
	}

	if provisioningWasEnabled {
		defer func() {
			if restoreErr := w.restoreProvisioning(ctx, ts.Handle, target); restoreErr != nil {
				// primary outcome stands, but never silently claim full success
				if result.Status == models.StatusSuccess {
					result.Status = models.StatusWarning
					result.Message = fmt.Sprintf("%s; provisioning restore unconfirmed: %v", result.Message, restoreErr)
				} else {
					result.Message = fmt.Sprintf("%s; provisioning restore unconfirmed: %v", result.Message, restoreErr)
				}
			}
		}()
	}

	if err := w.toggleAndSave(ctx, ts.Handle, target, setting); err != nil {
		result.Status = models.StatusError
		result.Message = fmt.Sprintf("failed to toggle %s: %v", setting, err)
		return result
	}

	result.Status = models.StatusSuccess
	result.Message = fmt.Sprintf("%s %s", setting, enabledWord(desired))
	result.Enabled = &desired
	return result
}

// openAndRead activates the tab, opens the setting's form and reads the
// checkbox state.
func (w *Workflow) openAndRead(ctx context.Context, handle string, target models.Target, setting models.Setting) (models.ToggleState, error) {
	if err := w.session.Activate(ctx, handle); err != nil {
		return models.ToggleState{}, fmt.Errorf("failed to activate tab: %w", err)
	}
	if err := w.session.Navigate(ctx, handle, target.ConfigURL(setting)); err != nil {
		return models.ToggleState{}, fmt.Errorf("failed to open %s page: %w", setting, err)
	}
	if err := w.session.WaitBody(ctx, handle); err != nil {
		return models.ToggleState{}, fmt.Errorf("%s page did not render: %w", setting, err)
	}
	time.Sleep(w.config.ClickSettle)

	state, err := w.session.ReadCheckbox(ctx, handle, setting.CheckboxName())
	if err != nil {
		return models.ToggleState{}, fmt.Errorf("failed to read %s checkbox: %w", setting, err)
	}
	return state, nil
}

// toggleAndSave clicks the setting's checkbox and submits the save form. The
// devices' web server gives no completion signal on save, hence the fixed
// settle wait.
func (w *Workflow) toggleAndSave(ctx context.Context, handle string, target models.Target, setting models.Setting) error {
	if err := w.session.Navigate(ctx, handle, target.ConfigURL(setting)); err != nil {
		return fmt.Errorf("failed to open %s page: %w", setting, err)
	}
	if err := w.session.WaitBody(ctx, handle); err != nil {
		return fmt.Errorf("%s page did not render: %w", setting, err)
	}
	time.Sleep(w.config.ClickSettle)

	if err := w.session.ClickCheckbox(ctx, handle, setting.CheckboxName()); err != nil {
		return err
	}
	if err := w.session.ClickSave(ctx, handle); err != nil {
		return err
	}
	time.Sleep(w.config.SaveSettle)
	return nil
}

// disableGatingProvisioning turns provisioning off when it is enabled.
// Returns true when it was enabled and has been disabled, so the caller
// knows to restore it.
func (w *Workflow) disableGatingProvisioning(ctx context.Context, handle string, target models.Target) (bool, error) {
	state, err := w.openAndRead(ctx, handle, target, models.SettingProvisioning)
	if err != nil {
		return false, err
	}
	if !state.Checked {
		return false, nil
	}

	w.logger.Info().
		Str("ap_id", target.APID).
		Msg("Provisioning gates the SSH checkbox, disabling it temporarily")
	if err := w.toggleAndSave(ctx, handle, target, models.SettingProvisioning); err != nil {
		return false, err
	}
	return true, nil
}

// restoreProvisioning re-enables provisioning and confirms the checkbox is
// checked afterwards. A restore that cannot be confirmed is an error the
// caller downgrades to a warning.
func (w *Workflow) restoreProvisioning(ctx context.Context, handle string, target models.Target) error {
	state, err := w.openAndRead(ctx, handle, target, models.SettingProvisioning)
	if err != nil {
		return err
	}
	if !state.Checked {
		if err := w.toggleAndSave(ctx, handle, target, models.SettingProvisioning); err != nil {
			return err
		}
	}

	verify, err := w.openAndRead(ctx, handle, target, models.SettingProvisioning)
	if err != nil {
		return fmt.Errorf("could not verify provisioning state: %w", err)
	}
	if !verify.Checked {
		return fmt.Errorf("provisioning checkbox still unchecked after restore")
	}
	return nil
}

func enabledWord(enabled bool) string {
	if enabled {
		return "enabled"
	}
	return "disabled"
}
