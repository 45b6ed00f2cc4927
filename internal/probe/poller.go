package probe

import (
	"context"
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/apfleet/internal/models"
)

// probeFunc matches Prober.Probe; substituted in tests.
type probeFunc func(ctx context.Context, address string) models.ProbeResult

// Poller repeatedly probes one address at a fixed interval, emitting results
// until stopped. Stop is cooperative: it takes effect within one interval,
// not immediately.
type Poller struct {
	probe    probeFunc
	interval time.Duration
	logger   arbor.ILogger

	mu      sync.Mutex
	stopCh  chan struct{}
	stopped bool
	count   int
}

// NewPoller creates a poller over the given prober.
func NewPoller(prober *Prober, interval time.Duration, logger arbor.ILogger) *Poller {
	if interval <= 0 {
		interval = time.Second
	}
	return &Poller{
		probe:    prober.Probe,
		interval: interval,
		logger:   logger,
		stopCh:   make(chan struct{}),
	}
}

// Run probes the address until Stop is called or the context is cancelled.
// Results are delivered on the returned channel, which is closed when the
// loop exits. The channel is unbuffered; a slow consumer delays the next
// probe rather than dropping samples.
func (p *Poller) Run(ctx context.Context, address string) <-chan models.ProbeResult {
	results := make(chan models.ProbeResult)

	go func() {
		defer close(results)

		for {
			select {
			case <-ctx.Done():
				return
			case <-p.stopCh:
				return
			default:
			}

			result := p.probe(ctx, address)

			p.mu.Lock()
			p.count++
			result.Seq = p.count
			p.mu.Unlock()

			select {
			case results <- result:
			case <-ctx.Done():
				return
			case <-p.stopCh:
				return
			}

			select {
			case <-time.After(p.interval):
			case <-ctx.Done():
				return
			case <-p.stopCh:
				return
			}
		}
	}()

	return results
}

// Stop ends the polling loop. Idempotent.
func (p *Poller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.stopped {
		p.stopped = true
		close(p.stopCh)
	}
}

// Count returns the number of probes sent so far.
func (p *Poller) Count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.count
}
