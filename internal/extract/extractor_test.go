package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const statusPage = `
<html><body>
<table>
<tr><th>AP ID:</th><td>AP-7</td></tr>
<tr><th>Transmitter:</th><td>UHF</td></tr>
<tr><th>Store ID:</th><td>1042</td></tr>
<tr><th>IP Address:</th><td>10.20.30.7</td></tr>
<tr><th>Serial Number:</th><td>SN-889012</td></tr>
<tr><th>Software Version:</th><td>2.3.1</td></tr>
<tr><th>Firmware Version:</th><td>1.9.0</td></tr>
<tr><th>Hardware Revision:</th><td>C</td></tr>
<tr><th>Build:</th><td>4471</td></tr>
<tr><th>Configuration mode:</th><td>DHCP</td></tr>
<tr><th>Uptime:</th><td>14 days</td></tr>
<tr><th>MAC Address:</th><td>00:1B:44:11:3A:B7</td></tr>
</table>
<h2>Service</h2>
<table>
<tr><th>Status:</th><td>Running</td></tr>
</table>
<h2>Communication Daemon</h2>
<table>
<tr><th>Status:</th><td>Connected</td></tr>
</table>
<h2>Connectivity</h2>
<table>
<tr><th>Internet:</th><td>OK</td></tr>
<tr><th>Provisioning:</th><td>OK</td></tr>
<tr><th>NTP Server:</th><td>OK</td></tr>
<tr><th>APC Address:</th><td>apc.example.net</td></tr>
</table>
</body></html>`

func TestExtractor_Field(t *testing.T) {
	e := New()

	t.Run("returns value for present label", func(t *testing.T) {
		got := e.Field(statusPage, "Serial Number")
		require.NotNil(t, got)
		assert.Equal(t, "SN-889012", *got)
	})

	t.Run("label match is case-insensitive", func(t *testing.T) {
		got := e.Field(`<tr><th>UPTIME:</th><td>3 days</td></tr>`, "Uptime")
		require.NotNil(t, got)
		assert.Equal(t, "3 days", *got)
	})

	t.Run("tolerates whitespace around cells and value", func(t *testing.T) {
		html := "<tr><th>\n  Build:  </th>\n   <td>  4471\n</td></tr>"
		got := e.Field(html, "Build")
		require.NotNil(t, got)
		assert.Equal(t, "4471", *got)
	})

	t.Run("absent label returns nil", func(t *testing.T) {
		assert.Nil(t, e.Field(statusPage, "Antenna Gain"))
	})

	t.Run("present but empty value returns empty string not nil", func(t *testing.T) {
		got := e.Field(`<tr><th>Store ID:</th><td></td></tr>`, "Store ID")
		require.NotNil(t, got)
		assert.Equal(t, "", *got)
	})

	t.Run("first occurrence wins on duplicate labels", func(t *testing.T) {
		html := `<tr><th>Status:</th><td>Running</td></tr><tr><th>Status:</th><td>Stopped</td></tr>`
		got := e.Field(html, "Status")
		require.NotNil(t, got)
		assert.Equal(t, "Running", *got)
	})

	t.Run("header without trailing colon is not a label", func(t *testing.T) {
		assert.Nil(t, e.Field(`<tr><th>Uptime</th><td>3 days</td></tr>`, "Uptime"))
	})
}

func TestExtractor_StatusField(t *testing.T) {
	e := New()

	t.Run("service picks first Status in document order", func(t *testing.T) {
		got := e.StatusField(statusPage, "service")
		require.NotNil(t, got)
		assert.Equal(t, "Running", *got)
	})

	t.Run("daemon picks second Status", func(t *testing.T) {
		got := e.StatusField(statusPage, "daemon")
		require.NotNil(t, got)
		assert.Equal(t, "Connected", *got)
	})

	t.Run("single Status on page leaves daemon nil", func(t *testing.T) {
		html := `<tr><th>Status:</th><td>Running</td></tr>`
		require.NotNil(t, e.StatusField(html, "service"))
		assert.Nil(t, e.StatusField(html, "daemon"))
	})

	t.Run("no Status on page leaves both nil", func(t *testing.T) {
		assert.Nil(t, e.StatusField("<html></html>", "service"))
		assert.Nil(t, e.StatusField("<html></html>", "daemon"))
	})
}

func TestExtractor_All(t *testing.T) {
	e := New()

	t.Run("full page fills every field", func(t *testing.T) {
		status := e.All(statusPage)
		require.NotNil(t, status)
		assert.Equal(t, 18, status.FieldCount())

		require.NotNil(t, status.APID)
		assert.Equal(t, "AP-7", *status.APID)
		require.NotNil(t, status.SoftwareVersion)
		assert.Equal(t, "2.3.1", *status.SoftwareVersion)
		require.NotNil(t, status.ServiceStatus)
		assert.Equal(t, "Running", *status.ServiceStatus)
		require.NotNil(t, status.CommunicationDaemonStatus)
		assert.Equal(t, "Connected", *status.CommunicationDaemonStatus)
		require.NotNil(t, status.ConnectivityAPCAddress)
		assert.Equal(t, "apc.example.net", *status.ConnectivityAPCAddress)
	})

	t.Run("partial page leaves missing fields nil", func(t *testing.T) {
		html := `<tr><th>IP Address:</th><td>10.0.0.5</td></tr><tr><th>Status:</th><td>Running</td></tr>`
		status := e.All(html)

		require.NotNil(t, status.IPAddress)
		assert.Equal(t, "10.0.0.5", *status.IPAddress)
		require.NotNil(t, status.ServiceStatus)
		assert.Nil(t, status.CommunicationDaemonStatus)
		assert.Nil(t, status.SerialNumber)
		assert.Nil(t, status.MACAddress)
	})

	t.Run("empty page extracts nothing", func(t *testing.T) {
		status := e.All("")
		assert.Equal(t, 0, status.FieldCount())
	})
}

func TestExtractor_Diff(t *testing.T) {
	e := New()

	t.Run("only changed present fields survive the diff", func(t *testing.T) {
		status := e.All(statusPage)
		stored := map[string]string{
			"ip_address":       "10.20.30.7",
			"software_version": "2.2.0",
			"serial_number":    "SN-889012",
		}

		diff := status.Diff(stored)
		assert.Equal(t, "2.3.1", diff["software_version"])
		assert.NotContains(t, diff, "ip_address")
		assert.NotContains(t, diff, "serial_number")
	})

	t.Run("missing fields never overwrite stored values", func(t *testing.T) {
		status := e.All(`<tr><th>Uptime:</th><td>2 days</td></tr>`)
		stored := map[string]string{"software_version": "2.2.0", "uptime": "1 day"}

		diff := status.Diff(stored)
		assert.Equal(t, map[string]string{"uptime": "2 days"}, diff)
	})
}
