// -----------------------------------------------------------------------
// Page Extractor - pulls structured fields out of the device status page
// -----------------------------------------------------------------------

package extract

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/ternarybob/apfleet/internal/models"
)

// Extractor reads label/value pairs rendered as adjacent table cells
// (<th>Label:</th><td>Value</td>) on the AP status page. It is a pure read:
// the page and session are never mutated.
type Extractor struct{}

// New creates an Extractor.
func New() *Extractor {
	return &Extractor{}
}

// labelValue is one th/td pair in document order.
type labelValue struct {
	Label string // lowercased, trailing colon stripped
	Value string
}

// pairs parses the HTML and returns every th/td pair in document order.
// Malformed HTML yields whatever pairs the parser can recover; a hard parse
// failure yields none.
func pairs(html string) []labelValue {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}

	var result []labelValue
	doc.Find("th").Each(func(i int, th *goquery.Selection) {
		label := strings.TrimSpace(th.Text())
		if !strings.HasSuffix(label, ":") {
			return
		}
		label = strings.ToLower(strings.TrimSuffix(label, ":"))

		td := th.NextFiltered("td")
		if td.Length() == 0 {
			return
		}

		result = append(result, labelValue{
			Label: label,
			Value: strings.TrimSpace(td.Text()),
		})
	})
	return result
}

// Field returns the trimmed value for a label, matched case-insensitively,
// or nil when the label is absent. The first occurrence wins.
func (e *Extractor) Field(html, label string) *string {
	want := strings.ToLower(strings.TrimSuffix(strings.TrimSpace(label), ":"))
	for _, p := range pairs(html) {
		if p.Label == want {
			v := p.Value
			return &v
		}
	}
	return nil
}

// StatusField disambiguates the page's two same-labelled "Status" fields by
// position: context "service" picks the first occurrence, "daemon" the
// second. Fewer than two matches yields nil for "daemon". The pages carry no
// other distinguishing marker, so document order is the contract.
func (e *Extractor) StatusField(html, context string) *string {
	var matches []string
	for _, p := range pairs(html) {
		if p.Label == "status" {
			matches = append(matches, p.Value)
		}
	}

	switch context {
	case "service":
		if len(matches) >= 1 {
			v := matches[0]
			return &v
		}
	case "daemon":
		if len(matches) >= 2 {
			v := matches[1]
			return &v
		}
	}
	return nil
}

// All composes Field and StatusField into the full structured record. Every
// missing field is nil, never the empty string, so callers can tell "absent
// on page" from "present but empty".
func (e *Extractor) All(html string) *models.ExtractedStatus {
	return &models.ExtractedStatus{
		APID:                      e.Field(html, "AP ID"),
		Transmitter:               e.Field(html, "Transmitter"),
		StoreID:                   e.Field(html, "Store ID"),
		IPAddress:                 e.Field(html, "IP Address"),
		SerialNumber:              e.Field(html, "Serial Number"),
		SoftwareVersion:           e.Field(html, "Software Version"),
		FirmwareVersion:           e.Field(html, "Firmware Version"),
		HardwareRevision:          e.Field(html, "Hardware Revision"),
		Build:                     e.Field(html, "Build"),
		ConfigurationMode:         e.Field(html, "Configuration mode"),
		Uptime:                    e.Field(html, "Uptime"),
		MACAddress:                e.Field(html, "MAC Address"),
		ServiceStatus:             e.StatusField(html, "service"),
		CommunicationDaemonStatus: e.StatusField(html, "daemon"),
		ConnectivityInternet:      e.Field(html, "Internet"),
		ConnectivityProvisioning:  e.Field(html, "Provisioning"),
		ConnectivityNTPServer:     e.Field(html, "NTP Server"),
		ConnectivityAPCAddress:    e.Field(html, "APC Address"),
	}
}
