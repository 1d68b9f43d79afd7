package announcements

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/stock-programmer/limit-up-review/internal/common"
	"github.com/stock-programmer/limit-up-review/internal/eodhd"
	"github.com/stock-programmer/limit-up-review/internal/interfaces"
	"github.com/stock-programmer/limit-up-review/internal/models"
)

// Compile-time assertion
var _ interfaces.AnnouncementProvider = (*EODHDProvider)(nil)

// EODHDProvider turns EODHD news items into announcements. It is the fallback
// when CNINFO is unreachable and covers only SSE and SZSE listings.
type EODHDProvider struct {
	client *eodhd.Client
	limit  int
	logger arbor.ILogger
}

// NewEODHDProvider creates a new EODHD announcement provider.
func NewEODHDProvider(client *eodhd.Client, logger arbor.ILogger) *EODHDProvider {
	return &EODHDProvider{client: client, limit: 100, logger: logger}
}

// Name returns the provider name.
func (p *EODHDProvider) Name() string {
	return "eodhd"
}

// FetchAnnouncements implements interfaces.AnnouncementProvider.
func (p *EODHDProvider) FetchAnnouncements(ctx context.Context, securityID string, start, end time.Time) ([]models.Announcement, error) {
	sec, err := common.ParseSecurityID(securityID)
	if err != nil {
		return nil, err
	}
	symbol := sec.EODHDSymbol()
	if symbol == "" {
		return nil, fmt.Errorf("EODHD does not cover %s", securityID)
	}

	p.logger.Debug().
		Str("symbol", symbol).
		Str("from", start.Format("2006-01-02")).
		Str("to", end.Format("2006-01-02")).
		Msg("Fetching news from EODHD")

	news, err := p.client.GetNews(ctx, []string{symbol}, eodhd.WithDateRange(start, end), eodhd.WithLimit(p.limit))
	if err != nil {
		return nil, err
	}

	out := make([]models.Announcement, 0, len(news))
	for _, item := range news {
		title := strings.TrimSpace(item.Title)
		if title == "" || item.Date.IsZero() {
			continue
		}
		out = append(out, models.Announcement{
			SecurityID:  sec.String(),
			Title:       title,
			FiledDate:   common.DateOnly(item.Date.In(common.ChinaLocation())),
			DocumentRef: item.Link,
			Source:      p.Name(),
		})
	}
	return out, nil
}
