package interfaces

import (
	"context"
	"time"

	"github.com/stock-programmer/limit-up-review/internal/models"
)

// SnapshotStorage caches raw market rows per source and trading date.
type SnapshotStorage interface {
	// GetSnapshot returns the cached rows, or ErrKeyNotFound.
	GetSnapshot(ctx context.Context, source string, date time.Time) ([]models.RawRow, error)

	// SaveSnapshot stores the rows of a completed trading date.
	SaveSnapshot(ctx context.Context, source string, date time.Time, rows []models.RawRow) error

	// DeleteSnapshotsBefore removes snapshots older than the cutoff and returns the count.
	DeleteSnapshotsBefore(ctx context.Context, cutoff time.Time) (int, error)
}
