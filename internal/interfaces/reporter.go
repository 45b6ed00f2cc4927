package interfaces

// StatusReporter receives per-target progress from orchestration and
// workflow runs. Implementations are UI-facing (a status dialog, a console
// table); any method may be a no-op.
type StatusReporter interface {
	// UpdateStatus reports one target's state transition, e.g.
	// ("AP-7", "connecting", "Starting navigation...").
	UpdateStatus(targetID, state, message string)

	// UpdateSummary reports a batch-level summary line.
	UpdateSummary(message string)

	// EnableClose signals that the batch is finished and the surface may
	// be dismissed.
	EnableClose()
}

// NopReporter is a StatusReporter that discards everything.
type NopReporter struct{}

func (NopReporter) UpdateStatus(string, string, string) {}
func (NopReporter) UpdateSummary(string)                {}
func (NopReporter) EnableClose()                        {}

// ProgressFunc receives coarse progress updates (message, percent).
type ProgressFunc func(message string, percent int)
