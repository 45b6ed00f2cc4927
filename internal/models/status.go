package models

// ExtractedStatus is the flat record scraped from one device status page.
// Fields are pointers so callers can distinguish "absent on page" (nil) from
// "present but empty" - only non-nil fields participate in store diffs.
type ExtractedStatus struct {
	APID                      *string `json:"ap_id,omitempty"`
	Transmitter               *string `json:"transmitter,omitempty"`
	StoreID                   *string `json:"store_id,omitempty"`
	IPAddress                 *string `json:"ip_address,omitempty"`
	SerialNumber              *string `json:"serial_number,omitempty"`
	SoftwareVersion           *string `json:"software_version,omitempty"`
	FirmwareVersion           *string `json:"firmware_version,omitempty"`
	HardwareRevision          *string `json:"hardware_revision,omitempty"`
	Build                     *string `json:"build,omitempty"`
	ConfigurationMode         *string `json:"configuration_mode,omitempty"`
	Uptime                    *string `json:"uptime,omitempty"`
	MACAddress                *string `json:"mac_address,omitempty"`
	ServiceStatus             *string `json:"service_status,omitempty"`
	CommunicationDaemonStatus *string `json:"communication_daemon_status,omitempty"`
	ConnectivityInternet      *string `json:"connectivity_internet,omitempty"`
	ConnectivityProvisioning  *string `json:"connectivity_provisioning,omitempty"`
	ConnectivityNTPServer     *string `json:"connectivity_ntp_server,omitempty"`
	ConnectivityAPCAddress    *string `json:"connectivity_apc_address,omitempty"`
}

// fieldPairs maps store field names to the extracted values. Order is stable
// so diffs log deterministically.
func (s *ExtractedStatus) fieldPairs() []struct {
	Name  string
	Value *string
} {
	return []struct {
		Name  string
		Value *string
	}{
		{"ip_address", s.IPAddress},
		{"store_id", s.StoreID},
		{"type", s.Transmitter},
		{"serial_number", s.SerialNumber},
		{"software_version", s.SoftwareVersion},
		{"firmware_version", s.FirmwareVersion},
		{"hardware_revision", s.HardwareRevision},
		{"build", s.Build},
		{"configuration_mode", s.ConfigurationMode},
		{"uptime", s.Uptime},
		{"mac_address", s.MACAddress},
		{"service_status", s.ServiceStatus},
		{"communication_daemon_status", s.CommunicationDaemonStatus},
		{"connectivity_internet", s.ConnectivityInternet},
		{"connectivity_provisioning", s.ConnectivityProvisioning},
		{"connectivity_ntp_server", s.ConnectivityNTPServer},
		{"connectivity_apc_address", s.ConnectivityAPCAddress},
	}
}

// Diff returns the subset of extracted fields that are present (non-nil) and
// differ from the stored record. The result is ready to hand to
// CredentialStore.Update.
func (s *ExtractedStatus) Diff(stored map[string]string) map[string]string {
	changed := make(map[string]string)
	for _, f := range s.fieldPairs() {
		if f.Value == nil {
			continue
		}
		if stored[f.Name] != *f.Value {
			changed[f.Name] = *f.Value
		}
	}
	return changed
}

// FieldCount returns how many fields were found on the page.
func (s *ExtractedStatus) FieldCount() int {
	count := 0
	for _, f := range s.fieldPairs() {
		if f.Value != nil {
			count++
		}
	}
	if s.APID != nil {
		count++
	}
	return count
}
