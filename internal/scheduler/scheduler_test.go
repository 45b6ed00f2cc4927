package scheduler

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/apfleet/internal/common"
	"github.com/ternarybob/apfleet/internal/models"
)

type fakeFleetStore struct {
	records  []*models.APRecord
	listErr  error
	recorded map[string]models.ProbeResult
}

func (s *fakeFleetStore) ListRecords(ctx context.Context) ([]*models.APRecord, error) {
	return s.records, s.listErr
}

func (s *fakeFleetStore) RecordProbe(ctx context.Context, apID string, result models.ProbeResult) error {
	if s.recorded == nil {
		s.recorded = make(map[string]models.ProbeResult)
	}
	s.recorded[apID] = result
	return nil
}

type fakeProber struct {
	reachable map[string]bool
	probed    []string
}

func (p *fakeProber) Probe(ctx context.Context, address string) models.ProbeResult {
	p.probed = append(p.probed, address)
	return models.ProbeResult{
		Address:   address,
		Reachable: p.reachable[address],
		RTT:       2 * time.Millisecond,
		At:        time.Now(),
	}
}

func newTestScheduler(store *fakeFleetStore, prober *fakeProber) *Scheduler {
	return NewScheduler(store, prober, common.GetLogger())
}

func TestScheduler_Sweep(t *testing.T) {
	ctx := context.Background()

	t.Run("records a probe result for every addressable ap", func(t *testing.T) {
		store := &fakeFleetStore{records: []*models.APRecord{
			{APID: "AP-1", IPAddress: "10.0.0.1"},
			{APID: "AP-2", IPAddress: "10.0.0.2"},
		}}
		prober := &fakeProber{reachable: map[string]bool{"10.0.0.1": true}}

		newTestScheduler(store, prober).sweep(ctx)

		require.Len(t, store.recorded, 2)
		assert.True(t, store.recorded["AP-1"].Reachable)
		assert.False(t, store.recorded["AP-2"].Reachable)
		assert.Equal(t, []string{"10.0.0.1", "10.0.0.2"}, prober.probed)
	})

	t.Run("skips records without an address", func(t *testing.T) {
		store := &fakeFleetStore{records: []*models.APRecord{
			{APID: "AP-1", IPAddress: ""},
			{APID: "AP-2", IPAddress: "10.0.0.2"},
		}}
		prober := &fakeProber{}

		newTestScheduler(store, prober).sweep(ctx)

		require.Len(t, store.recorded, 1)
		assert.Contains(t, store.recorded, "AP-2")
		assert.Equal(t, []string{"10.0.0.2"}, prober.probed)
	})

	t.Run("list failure probes nothing", func(t *testing.T) {
		store := &fakeFleetStore{listErr: fmt.Errorf("store closed")}
		prober := &fakeProber{}

		newTestScheduler(store, prober).sweep(ctx)

		assert.Empty(t, prober.probed)
		assert.Empty(t, store.recorded)
	})

	t.Run("cancelled context stops the sweep", func(t *testing.T) {
		store := &fakeFleetStore{records: []*models.APRecord{
			{APID: "AP-1", IPAddress: "10.0.0.1"},
		}}
		prober := &fakeProber{}
		cancelled, cancel := context.WithCancel(ctx)
		cancel()

		newTestScheduler(store, prober).sweep(cancelled)

		assert.Empty(t, prober.probed)
	})
}
