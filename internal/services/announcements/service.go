// Package announcements fetches, classifies and correlates company filings.
// Providers are tried in order; the classifier and correlator are pure.
package announcements

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/stock-programmer/limit-up-review/internal/common"
	"github.com/stock-programmer/limit-up-review/internal/interfaces"
	"github.com/stock-programmer/limit-up-review/internal/models"
)

// Compile-time assertion
var _ interfaces.AnnouncementProvider = (*Service)(nil)

// Service manages announcement fetching across multiple providers.
type Service struct {
	providers []interfaces.AnnouncementProvider
	logger    arbor.ILogger
}

// NewService creates an announcement service. Providers are tried in the
// order given.
func NewService(logger arbor.ILogger, providers ...interfaces.AnnouncementProvider) *Service {
	s := &Service{logger: logger}
	for _, p := range providers {
		s.RegisterProvider(p)
	}
	return s
}

// RegisterProvider appends a provider to the chain.
func (s *Service) RegisterProvider(provider interfaces.AnnouncementProvider) {
	s.providers = append(s.providers, provider)
	s.logger.Debug().
		Str("provider", provider.Name()).
		Msg("Registered announcement provider")
}

// Name implements interfaces.AnnouncementProvider.
func (s *Service) Name() string {
	names := make([]string, 0, len(s.providers))
	for _, p := range s.providers {
		names = append(names, p.Name())
	}
	return strings.Join(names, ",")
}

// FetchAnnouncements returns the de-duplicated announcements of the first
// provider that answers with a non-empty result. An empty answer moves on to
// the next provider; the call fails only when every provider failed.
func (s *Service) FetchAnnouncements(ctx context.Context, securityID string, start, end time.Time) ([]models.Announcement, error) {
	securityID = common.NormalizeSecurityID(securityID)
	if securityID == "" {
		return nil, fmt.Errorf("empty security id")
	}
	if len(s.providers) == 0 {
		return nil, fmt.Errorf("no announcement provider configured")
	}

	var lastErr error
	answered := false
	for _, provider := range s.providers {
		anns, err := provider.FetchAnnouncements(ctx, securityID, start, end)
		if err != nil {
			s.logger.Warn().
				Err(err).
				Str("provider", provider.Name()).
				Str("security_id", securityID).
				Msg("Provider failed, trying next")
			lastErr = err
			continue
		}
		answered = true

		if len(anns) > 0 {
			deduped, dropped := Deduplicate(anns)
			s.logger.Debug().
				Str("provider", provider.Name()).
				Str("security_id", securityID).
				Int("count", len(deduped)).
				Int("duplicates", dropped).
				Msg("Fetched announcements")
			return deduped, nil
		}
	}

	if !answered && lastErr != nil {
		return nil, fmt.Errorf("all providers failed: %w", lastErr)
	}
	return []models.Announcement{}, nil
}

// Deduplicate removes announcements with the same title and filing date,
// keeping the first, and returns them newest first with the dropped count.
func Deduplicate(anns []models.Announcement) ([]models.Announcement, int) {
	seen := make(map[string]struct{}, len(anns))
	out := make([]models.Announcement, 0, len(anns))
	for _, a := range anns {
		key := common.DateOnly(a.FiledDate).Format("20060102") + "|" + normalizeTitle(a.Title)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, a)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].FiledDate.After(out[j].FiledDate)
	})
	return out, len(anns) - len(out)
}

// normalizeTitle folds case and whitespace, including full-width spaces.
func normalizeTitle(title string) string {
	return strings.ToLower(strings.Join(strings.Fields(strings.ReplaceAll(title, "　", " ")), " "))
}
