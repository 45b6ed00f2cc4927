package models

import "time"

// ResultStatus classifies an orchestration or workflow outcome.
type ResultStatus string

const (
	StatusSuccess ResultStatus = "success"
	StatusWarning ResultStatus = "warning"
	StatusError   ResultStatus = "error"
)

// BatchResult is the aggregate outcome of one orchestration run. Constructed
// once at the end of a batch; success only if every target connected,
// warning when some did, error when none did.
type BatchResult struct {
	BatchID        string       `json:"batch_id"`
	Status         ResultStatus `json:"status"`
	Message        string       `json:"message"`
	ConnectedAPIDs []string     `json:"connected_ap_ids"`
	FailedAPIDs    []string     `json:"failed_ap_ids"`
}

// ActionResult is the outcome of one configuration workflow invocation
// against one target. No exception crosses the workflow boundary; callers
// always receive a classified result.
type ActionResult struct {
	APID    string       `json:"ap_id"`
	Status  ResultStatus `json:"status"`
	Message string       `json:"message"`
	// Enabled reports the setting's resulting state where known.
	Enabled *bool `json:"enabled,omitempty"`
}

// BatchActionResult aggregates per-target action results for the parallel
// workflow variant.
type BatchActionResult struct {
	Status       ResultStatus   `json:"status"`
	Message      string         `json:"message"`
	SuccessCount int            `json:"success_count"`
	FailedCount  int            `json:"failed_count"`
	Results      []ActionResult `json:"results"`
}

// ProbeResult is one reachability sample for a host.
type ProbeResult struct {
	Address   string        `json:"address"`
	Reachable bool          `json:"reachable"`
	RTT       time.Duration `json:"rtt"`
	Seq       int           `json:"seq,omitempty"`
	At        time.Time     `json:"at"`
}
