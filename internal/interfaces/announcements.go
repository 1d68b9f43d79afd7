package interfaces

import (
	"context"
	"time"

	"github.com/stock-programmer/limit-up-review/internal/models"
)

// AnnouncementProvider retrieves filings of one security.
type AnnouncementProvider interface {
	// Name returns the provider name (e.g. "cninfo", "eodhd")
	Name() string

	// FetchAnnouncements returns the announcements filed in [start, end], inclusive.
	FetchAnnouncements(ctx context.Context, securityID string, start, end time.Time) ([]models.Announcement, error)
}

// ReportLocator finds the latest periodic report of a security.
type ReportLocator interface {
	// LatestPeriodicReport returns the document ref of the newest annual or
	// interim report filed on or before asOf.
	LatestPeriodicReport(ctx context.Context, securityID string, asOf time.Time) (string, error)
}
