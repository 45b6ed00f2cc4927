// -----------------------------------------------------------------------
// Probe Scheduler - periodic reachability sweeps over the stored fleet
// -----------------------------------------------------------------------

package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"

	"github.com/ternarybob/apfleet/internal/models"
)

// DefaultProbeRate caps how many probes a sweep dispatches per second so a
// large fleet does not flood the network with ICMP.
const DefaultProbeRate = 5

// FleetStore supplies the records to sweep and receives the results.
type FleetStore interface {
	ListRecords(ctx context.Context) ([]*models.APRecord, error)
	RecordProbe(ctx context.Context, apID string, result models.ProbeResult) error
}

// HostProber runs a single reachability check.
type HostProber interface {
	Probe(ctx context.Context, address string) models.ProbeResult
}

// Scheduler runs periodic probe sweeps across every stored AP and writes
// reachability back onto the records.
type Scheduler struct {
	storage FleetStore
	prober  HostProber
	cron    *cron.Cron
	limiter *rate.Limiter
	logger  arbor.ILogger
}

// NewScheduler creates a probe sweep scheduler.
func NewScheduler(storage FleetStore, prober HostProber, logger arbor.ILogger) *Scheduler {
	return &Scheduler{
		storage: storage,
		prober:  prober,
		cron:    cron.New(cron.WithSeconds()),
		limiter: rate.NewLimiter(rate.Limit(DefaultProbeRate), DefaultProbeRate),
		logger:  logger,
	}
}

// Start begins the scheduled sweeps.
func (s *Scheduler) Start(schedule string) error {
	if schedule == "" {
		// Default: every 5 minutes
		schedule = "0 */5 * * * *"
	}

	_, err := s.cron.AddFunc(schedule, func() {
		s.runSweep()
	})
	if err != nil {
		return err
	}

	s.cron.Start()
	s.logger.Info().
		Str("schedule", schedule).
		Msg("Probe sweep scheduler started")
	return nil
}

// Stop stops the scheduler.
func (s *Scheduler) Stop() {
	s.cron.Stop()
	s.logger.Info().Msg("Probe sweep scheduler stopped")
}

// RunNow triggers an immediate sweep.
func (s *Scheduler) RunNow() {
	s.logger.Info().Msg("Triggering immediate probe sweep")
	go s.runSweep()
}

func (s *Scheduler) runSweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()
	s.sweep(ctx)
}

func (s *Scheduler) sweep(ctx context.Context) {
	started := time.Now()
	records, err := s.storage.ListRecords(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("Probe sweep could not list ap records")
		return
	}

	reachable := 0
	for _, record := range records {
		if record.IPAddress == "" {
			continue
		}
		if err := s.limiter.Wait(ctx); err != nil {
			s.logger.Warn().Err(err).Msg("Probe sweep aborted")
			return
		}
		result := s.prober.Probe(ctx, models.Target{IPAddress: record.IPAddress}.Host())
		if result.Reachable {
			reachable++
		}
		if err := s.storage.RecordProbe(ctx, record.APID, result); err != nil {
			s.logger.Warn().
				Err(err).
				Str("ap_id", record.APID).
				Msg("Failed to record probe result")
		}
	}

	s.logger.Info().
		Int("probed", len(records)).
		Int("reachable", reachable).
		Dur("duration", time.Since(started)).
		Msg("Probe sweep completed")
}
