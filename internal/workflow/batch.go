package workflow

import (
	"context"
	"fmt"
	"sync"

	"github.com/ternarybob/apfleet/internal/models"
)

// RunBatch applies one action to every connected tab session, one worker
// goroutine per target. Each target's multi-page round trip is I/O-bound and
// independent; the only shared mutable resource is the browser's active tab,
// which Run serializes under the driver lock. No ordering is guaranteed
// across targets. There is no mid-flight cancellation: once started, all
// workers run to completion or failure.
func (w *Workflow) RunBatch(ctx context.Context, sessions []models.TabSession, setting models.Setting, action models.ToggleAction) models.BatchActionResult {
	results := make([]models.ActionResult, len(sessions))

	var wg sync.WaitGroup
	for i, ts := range sessions {
		if ts.Status != models.TabConnected {
			results[i] = models.ActionResult{
				APID:    ts.Target.APID,
				Status:  models.StatusError,
				Message: "target is not connected",
			}
			w.reporter.UpdateStatus(ts.Target.APID, "failed", "target is not connected")
			continue
		}

		wg.Add(1)
		go func(i int, ts models.TabSession) {
			defer wg.Done()
			results[i] = w.Run(ctx, ts, setting, action)
		}(i, ts)
	}
	wg.Wait()

	batch := aggregate(results, setting, action)

	// leave the browser focused on the first target's tab
	if len(sessions) > 0 && sessions[0].Handle != "" {
		w.driverMu.Lock()
		if err := w.session.Activate(ctx, sessions[0].Handle); err != nil {
			w.logger.Debug().Err(err).Msg("Could not refocus first tab after batch")
		}
		w.driverMu.Unlock()
	}

	w.reporter.UpdateSummary(batch.Message)
	w.reporter.EnableClose()
	return batch
}

func aggregate(results []models.ActionResult, setting models.Setting, action models.ToggleAction) models.BatchActionResult {
	batch := models.BatchActionResult{Results: results}
	for _, r := range results {
		if r.Status == models.StatusError {
			batch.FailedCount++
		} else {
			batch.SuccessCount++
		}
	}

	switch {
	case len(results) == 0:
		batch.Status = models.StatusError
		batch.Message = "no targets to configure"
	case batch.FailedCount == 0:
		batch.Status = models.StatusSuccess
		batch.Message = fmt.Sprintf("%s %s on %d targets", setting, actionWord(action), batch.SuccessCount)
	case batch.SuccessCount == 0:
		batch.Status = models.StatusError
		batch.Message = fmt.Sprintf("%s %s failed on all %d targets", setting, actionWord(action), batch.FailedCount)
	default:
		batch.Status = models.StatusWarning
		batch.Message = fmt.Sprintf("%s %s on %d targets, %d failed", setting, actionWord(action), batch.SuccessCount, batch.FailedCount)
	}
	return batch
}

func actionWord(action models.ToggleAction) string {
	switch action {
	case models.ActionEnable:
		return "enabled"
	case models.ActionDisable:
		return "disabled"
	default:
		return "reported"
	}
}
