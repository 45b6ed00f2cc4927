package workflow

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/apfleet/internal/common"
	"github.com/ternarybob/apfleet/internal/interfaces"
	"github.com/ternarybob/apfleet/internal/models"
)

// devState models one AP's config pages: persisted values survive
// navigation, DOM values reset to persisted on navigate and flip on click,
// and save commits DOM back to persisted. The SSH checkbox is interactable
// only while provisioning is off, like the real form.
type devState struct {
	persisted map[models.Setting]bool
	dom       map[models.Setting]bool
}

func newDevState(ssh, provisioning bool) *devState {
	return &devState{
		persisted: map[models.Setting]bool{models.SettingSSH: ssh, models.SettingProvisioning: provisioning},
		dom:       map[models.Setting]bool{models.SettingSSH: ssh, models.SettingProvisioning: provisioning},
	}
}

// fakeDevices is a Session backed by one devState per tab handle.
type fakeDevices struct {
	mu     sync.Mutex
	states map[string]*devState

	calls        []string
	clickCount   int
	saveCount    int
	failSaveAt   int // 1-based save that errors, 0 = never
	activeHandle string
	violations   []string
}

func newFakeDevices() *fakeDevices {
	return &fakeDevices{states: make(map[string]*devState)}
}

func settingForName(name string) models.Setting {
	if name == "provisioningEnabled" {
		return models.SettingProvisioning
	}
	return models.SettingSSH
}

func (f *fakeDevices) checkActive(op, handle string) {
	if f.activeHandle != handle {
		f.violations = append(f.violations, fmt.Sprintf("%s on %s while %s is active", op, handle, f.activeHandle))
	}
}

func (f *fakeDevices) EnsureStarted(ctx context.Context) error     { return nil }
func (f *fakeDevices) OpenTab(ctx context.Context) (string, error) { return "", nil }

func (f *fakeDevices) Activate(ctx context.Context, handle string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.activeHandle = handle
	f.calls = append(f.calls, "Activate:"+handle)
	return nil
}

func (f *fakeDevices) InjectBasicAuth(ctx context.Context, handle, username, password string) error {
	return nil
}

func (f *fakeDevices) Navigate(ctx context.Context, handle, url string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.checkActive("Navigate", handle)
	f.calls = append(f.calls, "Navigate:"+handle+":"+url)
	if state, ok := f.states[handle]; ok {
		for k, v := range state.persisted {
			state.dom[k] = v
		}
	}
	return nil
}

func (f *fakeDevices) Reload(ctx context.Context, handle string) error { return nil }
func (f *fakeDevices) CurrentURL(ctx context.Context, handle string) (string, error) {
	return "", nil
}
func (f *fakeDevices) Title(ctx context.Context, handle string) (string, error)      { return "", nil }
func (f *fakeDevices) PageSource(ctx context.Context, handle string) (string, error) { return "", nil }
func (f *fakeDevices) WaitBody(ctx context.Context, handle string) error             { return nil }

func (f *fakeDevices) ReadCheckbox(ctx context.Context, handle, name string) (models.ToggleState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.checkActive("ReadCheckbox", handle)
	state, ok := f.states[handle]
	if !ok {
		return models.ToggleState{}, fmt.Errorf("no device behind %s", handle)
	}
	setting := settingForName(name)
	interactable := true
	if setting == models.SettingSSH {
		interactable = !state.dom[models.SettingProvisioning]
	}
	return models.ToggleState{Checked: state.dom[setting], Interactable: interactable}, nil
}

func (f *fakeDevices) ClickCheckbox(ctx context.Context, handle, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.checkActive("ClickCheckbox", handle)
	f.clickCount++
	setting := settingForName(name)
	f.calls = append(f.calls, "Click:"+handle+":"+string(setting))
	f.states[handle].dom[setting] = !f.states[handle].dom[setting]
	return nil
}

func (f *fakeDevices) ClickSave(ctx context.Context, handle string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.checkActive("ClickSave", handle)
	f.saveCount++
	f.calls = append(f.calls, fmt.Sprintf("Save:%s:%d", handle, f.saveCount))
	if f.failSaveAt != 0 && f.saveCount == f.failSaveAt {
		return fmt.Errorf("save request timed out")
	}
	state := f.states[handle]
	for k, v := range state.dom {
		state.persisted[k] = v
	}
	return nil
}

func (f *fakeDevices) ClickAny(ctx context.Context, handle string, selectors []interfaces.Selector) (bool, error) {
	return false, nil
}
func (f *fakeDevices) Close() error { return nil }

func (f *fakeDevices) persisted(handle string, setting models.Setting) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.states[handle].persisted[setting]
}

func newTestWorkflow(session interfaces.Session) *Workflow {
	return New(session, nil, common.WorkflowConfig{}, common.GetLogger())
}

func tabFor(apID, handle string) models.TabSession {
	return models.TabSession{
		Handle: handle,
		Target: models.Target{APID: apID, IPAddress: "10.0.0.1", Username: "admin", Password: "admin"},
		Status: models.TabConnected,
	}
}

func TestWorkflow_Run(t *testing.T) {
	ctx := context.Background()

	t.Run("report returns state without mutation", func(t *testing.T) {
		fake := newFakeDevices()
		fake.states["tab-1"] = newDevState(true, false)
		w := newTestWorkflow(fake)

		result := w.Run(ctx, tabFor("AP-1", "tab-1"), models.SettingSSH, models.ActionReport)

		assert.Equal(t, models.StatusSuccess, result.Status)
		require.NotNil(t, result.Enabled)
		assert.True(t, *result.Enabled)
		assert.Zero(t, fake.clickCount)
		assert.Zero(t, fake.saveCount)
	})

	t.Run("enable is an idempotent no-op when already enabled", func(t *testing.T) {
		fake := newFakeDevices()
		fake.states["tab-1"] = newDevState(true, false)
		w := newTestWorkflow(fake)

		result := w.Run(ctx, tabFor("AP-1", "tab-1"), models.SettingSSH, models.ActionEnable)

		assert.Equal(t, models.StatusSuccess, result.Status)
		assert.Contains(t, result.Message, "already")
		assert.Zero(t, fake.clickCount)
		assert.Zero(t, fake.saveCount)
	})

	t.Run("enable clicks and saves once when ungated", func(t *testing.T) {
		fake := newFakeDevices()
		fake.states["tab-1"] = newDevState(false, false)
		w := newTestWorkflow(fake)

		result := w.Run(ctx, tabFor("AP-1", "tab-1"), models.SettingSSH, models.ActionEnable)

		assert.Equal(t, models.StatusSuccess, result.Status)
		require.NotNil(t, result.Enabled)
		assert.True(t, *result.Enabled)
		assert.Equal(t, 1, fake.clickCount)
		assert.Equal(t, 1, fake.saveCount)
		assert.True(t, fake.persisted("tab-1", models.SettingSSH))
	})

	t.Run("disable works symmetrically", func(t *testing.T) {
		fake := newFakeDevices()
		fake.states["tab-1"] = newDevState(true, false)
		w := newTestWorkflow(fake)

		result := w.Run(ctx, tabFor("AP-1", "tab-1"), models.SettingSSH, models.ActionDisable)

		assert.Equal(t, models.StatusSuccess, result.Status)
		assert.False(t, fake.persisted("tab-1", models.SettingSSH))
	})

	t.Run("gated ssh enable disables and restores provisioning", func(t *testing.T) {
		fake := newFakeDevices()
		fake.states["tab-1"] = newDevState(false, true)
		w := newTestWorkflow(fake)

		result := w.Run(ctx, tabFor("AP-1", "tab-1"), models.SettingSSH, models.ActionEnable)

		assert.Equal(t, models.StatusSuccess, result.Status)
		assert.True(t, fake.persisted("tab-1", models.SettingSSH))
		assert.True(t, fake.persisted("tab-1", models.SettingProvisioning), "provisioning must be restored")

		// per-target ordering: provisioning off, ssh toggle, provisioning back on
		var clicks []string
		for _, c := range fake.calls {
			if strings.HasPrefix(c, "Click:") {
				clicks = append(clicks, c)
			}
		}
		assert.Equal(t, []string{
			"Click:tab-1:provisioning",
			"Click:tab-1:ssh",
			"Click:tab-1:provisioning",
		}, clicks)
	})

	t.Run("unconfirmed provisioning restore downgrades to warning", func(t *testing.T) {
		fake := newFakeDevices()
		fake.states["tab-1"] = newDevState(false, true)
		fake.failSaveAt = 3 // the provisioning restore save
		w := newTestWorkflow(fake)

		result := w.Run(ctx, tabFor("AP-1", "tab-1"), models.SettingSSH, models.ActionEnable)

		assert.Equal(t, models.StatusWarning, result.Status)
		assert.Contains(t, result.Message, "restore")
		assert.True(t, fake.persisted("tab-1", models.SettingSSH), "primary action still succeeded")
	})

	t.Run("provisioning is restored even when the ssh toggle fails", func(t *testing.T) {
		fake := newFakeDevices()
		fake.states["tab-1"] = newDevState(false, true)
		fake.failSaveAt = 2 // the ssh toggle save
		w := newTestWorkflow(fake)

		result := w.Run(ctx, tabFor("AP-1", "tab-1"), models.SettingSSH, models.ActionEnable)

		assert.Equal(t, models.StatusError, result.Status)
		assert.False(t, fake.persisted("tab-1", models.SettingSSH))
		assert.True(t, fake.persisted("tab-1", models.SettingProvisioning), "gate must be restored on failure")
	})

	t.Run("read failure yields a classified error", func(t *testing.T) {
		fake := newFakeDevices() // no device behind the handle
		w := newTestWorkflow(fake)

		result := w.Run(ctx, tabFor("AP-1", "tab-9"), models.SettingSSH, models.ActionEnable)

		assert.Equal(t, models.StatusError, result.Status)
		assert.NotEmpty(t, result.Message)
	})
}

func TestWorkflow_RunBatch(t *testing.T) {
	ctx := context.Background()

	t.Run("applies the action to every connected session", func(t *testing.T) {
		fake := newFakeDevices()
		fake.states["tab-1"] = newDevState(false, false)
		fake.states["tab-2"] = newDevState(false, false)
		fake.states["tab-3"] = newDevState(false, false)
		w := newTestWorkflow(fake)

		sessions := []models.TabSession{tabFor("AP-1", "tab-1"), tabFor("AP-2", "tab-2"), tabFor("AP-3", "tab-3")}
		batch := w.RunBatch(ctx, sessions, models.SettingSSH, models.ActionEnable)

		assert.Equal(t, models.StatusSuccess, batch.Status)
		assert.Equal(t, 3, batch.SuccessCount)
		assert.Zero(t, batch.FailedCount)
		for _, handle := range []string{"tab-1", "tab-2", "tab-3"} {
			assert.True(t, fake.persisted(handle, models.SettingSSH))
		}
	})

	t.Run("results keep input order and ap ids", func(t *testing.T) {
		fake := newFakeDevices()
		fake.states["tab-1"] = newDevState(false, false)
		fake.states["tab-2"] = newDevState(false, false)
		w := newTestWorkflow(fake)

		sessions := []models.TabSession{tabFor("AP-1", "tab-1"), tabFor("AP-2", "tab-2")}
		batch := w.RunBatch(ctx, sessions, models.SettingSSH, models.ActionEnable)

		require.Len(t, batch.Results, 2)
		assert.Equal(t, "AP-1", batch.Results[0].APID)
		assert.Equal(t, "AP-2", batch.Results[1].APID)
	})

	t.Run("disconnected session fails without touching the browser", func(t *testing.T) {
		fake := newFakeDevices()
		fake.states["tab-1"] = newDevState(false, false)
		w := newTestWorkflow(fake)

		failed := tabFor("AP-2", "tab-2")
		failed.Status = models.TabFailed
		sessions := []models.TabSession{tabFor("AP-1", "tab-1"), failed}

		batch := w.RunBatch(ctx, sessions, models.SettingSSH, models.ActionEnable)

		assert.Equal(t, models.StatusWarning, batch.Status)
		assert.Equal(t, 1, batch.SuccessCount)
		assert.Equal(t, 1, batch.FailedCount)
		for _, c := range fake.calls {
			assert.NotContains(t, c, "tab-2")
		}
	})

	t.Run("one failing target does not abort its siblings", func(t *testing.T) {
		fake := newFakeDevices()
		fake.states["tab-1"] = newDevState(false, false)
		// tab-2 has no device state, so its reads fail
		fake.states["tab-3"] = newDevState(false, false)
		w := newTestWorkflow(fake)

		sessions := []models.TabSession{tabFor("AP-1", "tab-1"), tabFor("AP-2", "tab-2"), tabFor("AP-3", "tab-3")}
		batch := w.RunBatch(ctx, sessions, models.SettingSSH, models.ActionEnable)

		assert.Equal(t, models.StatusWarning, batch.Status)
		assert.Equal(t, 2, batch.SuccessCount)
		assert.Equal(t, 1, batch.FailedCount)
		assert.True(t, fake.persisted("tab-1", models.SettingSSH))
		assert.True(t, fake.persisted("tab-3", models.SettingSSH))
	})

	t.Run("tab operations never interleave across workers", func(t *testing.T) {
		fake := newFakeDevices()
		for i := 1; i <= 5; i++ {
			fake.states[fmt.Sprintf("tab-%d", i)] = newDevState(false, true)
		}
		w := newTestWorkflow(fake)

		sessions := make([]models.TabSession, 0, 5)
		for i := 1; i <= 5; i++ {
			sessions = append(sessions, tabFor(fmt.Sprintf("AP-%d", i), fmt.Sprintf("tab-%d", i)))
		}

		batch := w.RunBatch(ctx, sessions, models.SettingSSH, models.ActionEnable)

		assert.Equal(t, models.StatusSuccess, batch.Status)
		assert.Empty(t, fake.violations)
	})

	t.Run("empty batch is an error", func(t *testing.T) {
		w := newTestWorkflow(newFakeDevices())
		batch := w.RunBatch(ctx, nil, models.SettingSSH, models.ActionEnable)
		assert.Equal(t, models.StatusError, batch.Status)
	})
}
