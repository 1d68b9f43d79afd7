package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/stock-programmer/limit-up-review/internal/common"
	"github.com/stock-programmer/limit-up-review/internal/eodhd"
	"github.com/stock-programmer/limit-up-review/internal/interfaces"
	"github.com/stock-programmer/limit-up-review/internal/models"
)

// FundamentalsClient is the EODHD call the fallback summarizer needs.
type FundamentalsClient interface {
	GetFundamentals(ctx context.Context, symbol string) (*eodhd.FundamentalsResponse, error)
}

// FundamentalsSummarizer builds a business summary from EODHD fundamentals
// without reading any document.
type FundamentalsSummarizer struct {
	client FundamentalsClient
	logger arbor.ILogger
}

var _ interfaces.BusinessSummarizer = (*FundamentalsSummarizer)(nil)

// NewFundamentalsSummarizer creates the fundamentals fallback summarizer
func NewFundamentalsSummarizer(client FundamentalsClient, logger arbor.ILogger) *FundamentalsSummarizer {
	return &FundamentalsSummarizer{client: client, logger: logger}
}

// SummarizeBusiness ignores documentRef and reads the security's EODHD profile.
func (s *FundamentalsSummarizer) SummarizeBusiness(ctx context.Context, securityID, documentRef string) (*models.BusinessInfo, error) {
	sec, err := common.ParseSecurityID(securityID)
	if err != nil {
		return nil, err
	}
	symbol := sec.EODHDSymbol()
	if symbol == "" {
		return nil, fmt.Errorf("%s is not covered by EODHD", securityID)
	}

	fundamentals, err := s.client.GetFundamentals(ctx, symbol)
	if err != nil {
		return nil, err
	}
	if fundamentals == nil || fundamentals.General == nil {
		return nil, fmt.Errorf("no fundamentals for %s", symbol)
	}

	general := fundamentals.General
	industry := strings.TrimSpace(general.Industry)
	if industry == "" {
		industry = strings.TrimSpace(general.GicIndustry)
	}
	if industry == "" {
		industry = strings.TrimSpace(general.Sector)
	}

	info := &models.BusinessInfo{
		MainBusiness: strings.TrimSpace(general.Description),
		Industry:     industry,
		Source:       "eodhd",
	}
	if info.IsEmpty() {
		return nil, fmt.Errorf("empty fundamentals profile for %s", symbol)
	}
	return info, nil
}

// ChainSummarizer asks each summarizer in turn and returns the first summary.
type ChainSummarizer struct {
	summarizers []interfaces.BusinessSummarizer
	logger      arbor.ILogger
}

var _ interfaces.BusinessSummarizer = (*ChainSummarizer)(nil)

// NewChainSummarizer creates a summarizer chain. Nil entries are skipped.
func NewChainSummarizer(logger arbor.ILogger, summarizers ...interfaces.BusinessSummarizer) *ChainSummarizer {
	chain := &ChainSummarizer{logger: logger}
	for _, s := range summarizers {
		if s != nil {
			chain.summarizers = append(chain.summarizers, s)
		}
	}
	return chain
}

// Len returns the number of summarizers in the chain.
func (c *ChainSummarizer) Len() int {
	return len(c.summarizers)
}

// SummarizeBusiness returns the first non-empty summary. The errors of every
// summarizer are joined when none succeeds.
func (c *ChainSummarizer) SummarizeBusiness(ctx context.Context, securityID, documentRef string) (*models.BusinessInfo, error) {
	if len(c.summarizers) == 0 {
		return nil, errors.New("no business summarizer configured")
	}

	var errs []error
	for i, s := range c.summarizers {
		info, err := s.SummarizeBusiness(ctx, securityID, documentRef)
		if err == nil && !info.IsEmpty() {
			return info, nil
		}
		if err == nil {
			err = errors.New("empty summary")
		}
		errs = append(errs, err)
		if ctx.Err() != nil {
			break
		}
		if i < len(c.summarizers)-1 {
			c.logger.Debug().Err(err).Str("security_id", securityID).Msg("Summarizer failed, trying next")
		}
	}
	return nil, errors.Join(errs...)
}
