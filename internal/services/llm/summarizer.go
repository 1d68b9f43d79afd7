package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/stock-programmer/limit-up-review/internal/interfaces"
	"github.com/stock-programmer/limit-up-review/internal/models"
)

// DefaultMaxTextChars bounds the extracted report text sent to text-only models.
const DefaultMaxTextChars = 60000

// ErrNoDocument is returned when there is no report to summarize.
var ErrNoDocument = errors.New("no periodic report available")

const systemInstruction = `你是一名专业的A股上市公司研究员。请阅读公司定期报告，提炼公司的主营业务、所属行业和主要产品。
只输出一个JSON对象，不要输出任何解释。`

const summaryPrompt = `请根据%s的定期报告，输出如下JSON：
{"main_business": "主营业务的简要描述", "industry": "所属行业（申万一级行业名称）", "main_products": "主要产品或服务，用顿号分隔"}
无法确定的字段请输出空字符串。`

var summarySchema = map[string]interface{}{
	"type": "object",
	"properties": map[string]interface{}{
		"main_business": map[string]interface{}{"type": "string", "description": "Main business in one or two sentences"},
		"industry":      map[string]interface{}{"type": "string", "description": "Industry classification"},
		"main_products": map[string]interface{}{"type": "string", "description": "Main products or services"},
	},
	"required": []string{"main_business", "industry", "main_products"},
}

// Summarizer implements interfaces.BusinessSummarizer with an LLM provider.
// PDFs go inline to providers that accept attachments; other providers get
// the extracted text.
type Summarizer struct {
	provider     Provider
	fetcher      interfaces.DocumentFetcher
	maxTextChars int
	logger       arbor.ILogger
}

var _ interfaces.BusinessSummarizer = (*Summarizer)(nil)

// NewSummarizer creates an LLM-backed business summarizer
func NewSummarizer(provider Provider, fetcher interfaces.DocumentFetcher, logger arbor.ILogger) *Summarizer {
	return &Summarizer{
		provider:     provider,
		fetcher:      fetcher,
		maxTextChars: DefaultMaxTextChars,
		logger:       logger,
	}
}

// SummarizeBusiness summarizes the document at documentRef.
func (s *Summarizer) SummarizeBusiness(ctx context.Context, securityID, documentRef string) (*models.BusinessInfo, error) {
	if strings.TrimSpace(documentRef) == "" {
		return nil, ErrNoDocument
	}

	doc, err := s.fetcher.Fetch(ctx, documentRef)
	if err != nil {
		return nil, fmt.Errorf("fetch report: %w", err)
	}

	request := &ContentRequest{
		Prompt:            fmt.Sprintf(summaryPrompt, securityID),
		SystemInstruction: systemInstruction,
		OutputSchema:      summarySchema,
	}

	if doc.ContentType == "application/pdf" && s.provider.SupportsAttachments() {
		request.Attachment = &Attachment{Data: doc.Data, MIMEType: doc.ContentType}
	} else {
		text := truncateRunes(strings.TrimSpace(doc.Text), s.maxTextChars)
		if text == "" {
			return nil, fmt.Errorf("no text extracted from %s", documentRef)
		}
		request.Prompt += "\n\n报告内容：\n" + text
	}

	resp, err := s.provider.GenerateContent(ctx, request)
	if err != nil {
		return nil, err
	}

	info, err := ParseBusinessInfo(resp.Text)
	if err != nil {
		s.logger.Warn().
			Err(err).
			Str("security_id", securityID).
			Int("response_length", len(resp.Text)).
			Msg("Unparseable business summary")
		return nil, err
	}
	info.Source = string(resp.Provider)

	s.logger.Debug().
		Str("security_id", securityID).
		Str("provider", string(resp.Provider)).
		Str("industry", info.Industry).
		Msg("Business summary generated")
	return info, nil
}

var (
	fencedJSON = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)\\s*```")
	bareObject = regexp.MustCompile(`(?s)\{.*\}`)
)

// ParseBusinessInfo reads the model's JSON answer. It accepts a bare object,
// a fenced code block or an object embedded in prose.
func ParseBusinessInfo(text string) (*models.BusinessInfo, error) {
	text = strings.TrimSpace(text)

	candidates := []string{text}
	if m := fencedJSON.FindStringSubmatch(text); m != nil {
		candidates = append(candidates, m[1])
	}
	if m := bareObject.FindString(text); m != "" {
		candidates = append(candidates, m)
	}

	for _, candidate := range candidates {
		var raw struct {
			MainBusiness string `json:"main_business"`
			Industry     string `json:"industry"`
			MainProducts string `json:"main_products"`
		}
		if err := json.Unmarshal([]byte(candidate), &raw); err != nil {
			continue
		}
		info := &models.BusinessInfo{
			MainBusiness: strings.TrimSpace(raw.MainBusiness),
			Industry:     strings.TrimSpace(raw.Industry),
			MainProducts: strings.TrimSpace(raw.MainProducts),
		}
		if info.IsEmpty() {
			return nil, errors.New("business summary has no fields")
		}
		return info, nil
	}
	return nil, errors.New("no JSON object in model response")
}

func truncateRunes(s string, max int) string {
	if max <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
