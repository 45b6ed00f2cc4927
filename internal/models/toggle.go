package models

// Setting identifies one boolean device setting managed through its web form.
type Setting string

const (
	SettingSSH          Setting = "ssh"
	SettingProvisioning Setting = "provisioning"
)

// CheckboxName returns the form control name for the setting. Each page
// renders two same-named inputs (a hidden mirror plus the real checkbox);
// the driver picks the one with type=checkbox.
func (s Setting) CheckboxName() string {
	switch s {
	case SettingProvisioning:
		return "provisioningEnabled"
	default:
		return "enabled"
	}
}

// ConfigPath returns the device path of the setting's configuration form.
func (s Setting) ConfigPath() string {
	switch s {
	case SettingProvisioning:
		return "/service/config/provisioningEnabled.xml"
	default:
		return "/service/config/ssh.xml"
	}
}

// ToggleAction is what a configuration workflow invocation should do.
type ToggleAction string

const (
	ActionReport  ToggleAction = "report"
	ActionEnable  ToggleAction = "enable"
	ActionDisable ToggleAction = "disable"
)

// Desired returns the target checkbox state for the action. Only meaningful
// for enable/disable.
func (a ToggleAction) Desired() bool {
	return a == ActionEnable
}

// ToggleState is the snapshot of a checkbox read immediately before a
// configuration action. Workflow decisions are driven entirely by this
// snapshot, never assumed.
type ToggleState struct {
	Checked      bool `json:"checked"`
	Interactable bool `json:"interactable"`
}
