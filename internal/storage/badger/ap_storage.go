package badger

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/ternarybob/apfleet/internal/interfaces"
	"github.com/ternarybob/apfleet/internal/models"
)

// APStorage persists Access Point records. It implements the
// interfaces.CredentialStore contract consumed by the orchestrator and adds
// the richer record operations the CLI and scheduler use. Badger tolerates
// the few concurrent readers/writers this core runs; no extra transaction
// discipline is layered on top.
type APStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewAPStorage creates an APStorage instance.
func NewAPStorage(db *BadgerDB, logger arbor.ILogger) *APStorage {
	return &APStorage{
		db:     db,
		logger: logger,
	}
}

var _ interfaces.CredentialStore = (*APStorage)(nil)

// Upsert stores a full record, stamping created/updated times.
func (s *APStorage) Upsert(ctx context.Context, record *models.APRecord) error {
	if record.APID == "" {
		return fmt.Errorf("ap id is required")
	}

	now := time.Now().Unix()
	if record.CreatedAt == 0 {
		record.CreatedAt = now
	}
	record.UpdatedAt = now

	if err := s.db.Store().Upsert(record.APID, record); err != nil {
		return fmt.Errorf("failed to store ap record: %w", err)
	}
	return nil
}

// GetRecord returns the full record for an AP, or nil when unknown.
func (s *APStorage) GetRecord(ctx context.Context, apID string) (*models.APRecord, error) {
	var record models.APRecord
	if err := s.db.Store().Get(apID, &record); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get ap record: %w", err)
	}
	return &record, nil
}

// Get returns the stored record as a flat field map, or nil for an unknown
// AP.
func (s *APStorage) Get(ctx context.Context, apID string) (map[string]string, error) {
	record, err := s.GetRecord(ctx, apID)
	if err != nil || record == nil {
		return nil, err
	}
	return record.FieldMap(), nil
}

// Update applies a partial field update. An update for an unknown AP creates
// the record, so a first status collection never fails.
func (s *APStorage) Update(ctx context.Context, apID string, fields map[string]string) error {
	record, err := s.GetRecord(ctx, apID)
	if err != nil {
		return err
	}
	if record == nil {
		record = &models.APRecord{APID: apID}
	}

	record.ApplyFields(fields)
	if err := s.Upsert(ctx, record); err != nil {
		return err
	}

	s.logger.Debug().
		Str("ap_id", apID).
		Int("fields", len(fields)).
		Msg("Updated ap record fields")
	return nil
}

// List returns all known AP IDs.
func (s *APStorage) List(ctx context.Context) ([]string, error) {
	records, err := s.ListRecords(ctx)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(records))
	for i, r := range records {
		ids[i] = r.APID
	}
	return ids, nil
}

// ListRecords returns every stored record.
func (s *APStorage) ListRecords(ctx context.Context) ([]*models.APRecord, error) {
	var records []models.APRecord
	if err := s.db.Store().Find(&records, nil); err != nil {
		return nil, fmt.Errorf("failed to list ap records: %w", err)
	}
	result := make([]*models.APRecord, len(records))
	for i := range records {
		result[i] = &records[i]
	}
	return result, nil
}

// FindByStore returns the records for one retail store.
func (s *APStorage) FindByStore(ctx context.Context, storeID string) ([]*models.APRecord, error) {
	var records []models.APRecord
	if err := s.db.Store().Find(&records, badgerhold.Where("StoreID").Eq(storeID)); err != nil {
		return nil, fmt.Errorf("failed to find ap records for store %s: %w", storeID, err)
	}
	result := make([]*models.APRecord, len(records))
	for i := range records {
		result[i] = &records[i]
	}
	return result, nil
}

// Delete removes a record. Deleting an unknown AP is not an error.
func (s *APStorage) Delete(ctx context.Context, apID string) error {
	if err := s.db.Store().Delete(apID, &models.APRecord{}); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil
		}
		return fmt.Errorf("failed to delete ap record: %w", err)
	}
	return nil
}

// RecordProbe writes the latest reachability sample onto the record.
func (s *APStorage) RecordProbe(ctx context.Context, apID string, result models.ProbeResult) error {
	record, err := s.GetRecord(ctx, apID)
	if err != nil {
		return err
	}
	if record == nil {
		return fmt.Errorf("unknown ap: %s", apID)
	}

	record.Reachable = result.Reachable
	record.LastRTTMs = float64(result.RTT) / float64(time.Millisecond)
	record.LastProbeAt = result.At
	return s.Upsert(ctx, record)
}
