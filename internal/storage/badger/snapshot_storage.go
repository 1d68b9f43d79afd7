package badger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/stock-programmer/limit-up-review/internal/common"
	"github.com/stock-programmer/limit-up-review/internal/interfaces"
	"github.com/stock-programmer/limit-up-review/internal/models"
)

// snapshotRecord is one cached market snapshot. Rows are kept as JSON because
// raw rows are untyped maps.
type snapshotRecord struct {
	Key      string `badgerhold:"key"`
	Source   string `badgerholdIndex:"Source"`
	Date     time.Time
	RowCount int
	Rows     []byte
	SavedAt  time.Time
}

// SnapshotStorage implements interfaces.SnapshotStorage for Badger
type SnapshotStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

var _ interfaces.SnapshotStorage = (*SnapshotStorage)(nil)

// NewSnapshotStorage creates a new SnapshotStorage instance
func NewSnapshotStorage(db *BadgerDB, logger arbor.ILogger) *SnapshotStorage {
	return &SnapshotStorage{
		db:     db,
		logger: logger,
	}
}

func snapshotKey(source string, date time.Time) string {
	return source + ":" + common.FormatTradeDate(date)
}

// GetSnapshot returns the cached rows of source for date.
func (s *SnapshotStorage) GetSnapshot(ctx context.Context, source string, date time.Time) ([]models.RawRow, error) {
	var record snapshotRecord
	err := s.db.Store().Get(snapshotKey(source, date), &record)
	if errors.Is(err, badgerhold.ErrNotFound) {
		return nil, interfaces.ErrKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get snapshot: %w", err)
	}

	decoder := json.NewDecoder(bytes.NewReader(record.Rows))
	decoder.UseNumber()
	var rows []models.RawRow
	if err := decoder.Decode(&rows); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot %s: %w", record.Key, err)
	}
	return rows, nil
}

// SaveSnapshot stores the rows of source for date, replacing any previous copy.
func (s *SnapshotStorage) SaveSnapshot(ctx context.Context, source string, date time.Time, rows []models.RawRow) error {
	if rows == nil {
		rows = make([]models.RawRow, 0)
	}
	data, err := json.Marshal(rows)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}

	record := snapshotRecord{
		Key:      snapshotKey(source, date),
		Source:   source,
		Date:     common.DateOnly(date),
		RowCount: len(rows),
		Rows:     data,
		SavedAt:  time.Now(),
	}
	if err := s.db.Store().Upsert(record.Key, &record); err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}

	s.logger.Debug().
		Str("key", record.Key).
		Int("rows", record.RowCount).
		Int("bytes", len(data)).
		Msg("Saved market snapshot")
	return nil
}

// DeleteSnapshotsBefore removes every snapshot dated before cutoff.
func (s *SnapshotStorage) DeleteSnapshotsBefore(ctx context.Context, cutoff time.Time) (int, error) {
	query := badgerhold.Where("Date").Lt(common.DateOnly(cutoff))

	var records []snapshotRecord
	if err := s.db.Store().Find(&records, query); err != nil {
		return 0, fmt.Errorf("failed to find expired snapshots: %w", err)
	}

	deleted := 0
	for _, record := range records {
		if err := s.db.Store().Delete(record.Key, &snapshotRecord{}); err != nil {
			s.logger.Warn().Err(err).Str("key", record.Key).Msg("Failed to delete snapshot")
			continue
		}
		deleted++
	}

	if deleted > 0 {
		s.logger.Info().
			Int("deleted", deleted).
			Str("cutoff", common.FormatTradeDate(cutoff)).
			Msg("Pruned market snapshots")
	}
	return deleted, nil
}
