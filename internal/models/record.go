package models

import "time"

// APRecord is the persisted record for one Access Point: its credentials,
// the status fields scraped from its web UI, and the latest reachability
// sample.
type APRecord struct {
	APID      string `badgerhold:"key" json:"ap_id"`
	StoreID   string `json:"store_id"`
	IPAddress string `json:"ip_address"`
	Username  string `json:"username"`
	Password  string `json:"password"`

	// Fields holds the scraped status values keyed by field name
	// (software_version, uptime, service_status, ...).
	Fields map[string]string `json:"fields,omitempty"`

	Reachable   bool      `json:"reachable"`
	LastRTTMs   float64   `json:"last_rtt_ms,omitempty"`
	LastProbeAt time.Time `json:"last_probe_at,omitempty"`

	CreatedAt int64 `json:"created_at"`
	UpdatedAt int64 `json:"updated_at"`
}

// Target builds the automation identity for this record.
func (r *APRecord) Target() Target {
	return Target{
		APID:      r.APID,
		IPAddress: r.IPAddress,
		Username:  r.Username,
		Password:  r.Password,
	}
}

// FieldMap flattens the record into the field map the orchestrator diffs
// against. Identity columns and scraped fields share one namespace.
func (r *APRecord) FieldMap() map[string]string {
	m := make(map[string]string, len(r.Fields)+4)
	for k, v := range r.Fields {
		m[k] = v
	}
	m["ap_id"] = r.APID
	m["store_id"] = r.StoreID
	m["ip_address"] = r.IPAddress
	m["username"] = r.Username
	return m
}

// ApplyFields writes a partial field update back onto the record. Identity
// columns are routed to their struct fields; everything else lands in the
// scraped field map.
func (r *APRecord) ApplyFields(fields map[string]string) {
	if r.Fields == nil {
		r.Fields = make(map[string]string, len(fields))
	}
	for k, v := range fields {
		switch k {
		case "ap_id":
			// the key never changes through a field update
		case "store_id":
			r.StoreID = v
		case "ip_address":
			r.IPAddress = v
		case "username":
			r.Username = v
		case "password":
			r.Password = v
		default:
			r.Fields[k] = v
		}
	}
}
