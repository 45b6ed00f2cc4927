package models

import (
	"strings"
)

// Target is one Access Point's automation-relevant identity, sourced from the
// credential store. Immutable for the duration of one orchestration run.
type Target struct {
	APID      string `json:"ap_id"`
	IPAddress string `json:"ip_address"`
	Username  string `json:"username"`
	Password  string `json:"password"`
}

// Host returns the bare host portion of the target address: any explicit
// scheme prefix and user@ prefix are stripped.
func (t Target) Host() string {
	host := strings.TrimSpace(t.IPAddress)
	if strings.HasPrefix(host, "http://") {
		host = host[len("http://"):]
	} else if strings.HasPrefix(host, "https://") {
		host = host[len("https://"):]
	}
	if idx := strings.Index(host, "@"); idx >= 0 {
		host = host[idx+1:]
	}
	return host
}

// URL builds the management URL for the target. An explicit http(s):// prefix
// on the stored address wins; everything else defaults to https.
func (t Target) URL() string {
	addr := strings.TrimSpace(t.IPAddress)
	scheme := "https"
	if strings.HasPrefix(addr, "http://") {
		scheme = "http"
	}
	return scheme + "://" + t.Host()
}

// StatusURL is the device's HTML-rendered status table (the .xml extension is
// historical; the payload is HTML).
func (t Target) StatusURL() string {
	return t.URL() + "/service/status.xml"
}

// ConfigURL returns the configuration form URL for a device setting.
func (t Target) ConfigURL(setting Setting) string {
	return t.URL() + setting.ConfigPath()
}

// TabStatus tracks a tab session through its lifecycle. Transitions only
// loading -> {connected, failed}; a reconnect creates a new session instead
// of reverting.
type TabStatus string

const (
	TabLoading   TabStatus = "loading"
	TabConnected TabStatus = "connected"
	TabFailed    TabStatus = "failed"
)

// TabSession is the runtime binding between a Target and a browser tab.
type TabSession struct {
	Handle string    `json:"handle"`
	Target Target    `json:"target"`
	Status TabStatus `json:"status"`
	Error  string    `json:"error,omitempty"`
}
