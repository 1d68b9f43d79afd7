// Package llm generates business summaries of listed companies from their
// periodic reports with Gemini or Claude.
package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"
	"google.golang.org/genai"

	"github.com/stock-programmer/limit-up-review/internal/common"
	"github.com/stock-programmer/limit-up-review/internal/interfaces"
)

// ProviderType represents the AI provider type
type ProviderType string

const (
	// ProviderGemini uses Google Gemini API
	ProviderGemini ProviderType = ProviderType(common.LLMProviderGemini)
	// ProviderClaude uses Anthropic Claude API
	ProviderClaude ProviderType = ProviderType(common.LLMProviderClaude)
)

// Attachment is a document passed to the model as-is.
type Attachment struct {
	Data     []byte
	MIMEType string
}

// ContentRequest represents a provider-agnostic content generation request
type ContentRequest struct {
	Prompt            string
	SystemInstruction string
	Attachment        *Attachment            // Only for providers where SupportsAttachments is true
	OutputSchema      map[string]interface{} // JSON schema for structured output (Gemini only)
	Temperature       float32
	MaxTokens         int
}

// ContentResponse represents a provider-agnostic content generation response
type ContentResponse struct {
	Text     string
	Provider ProviderType
	Model    string
}

// Provider defines the interface for AI content generation
type Provider interface {
	GenerateContent(ctx context.Context, request *ContentRequest) (*ContentResponse, error)
	GetProviderType() ProviderType
	// SupportsAttachments reports whether PDFs can be sent inline.
	SupportsAttachments() bool
}

// NewProvider creates the provider selected by llm.default_provider. API keys
// resolve from the environment, then the KV store, then the config file.
func NewProvider(ctx context.Context, config *common.Config, kvStorage interfaces.KeyValueStorage, logger arbor.ILogger) (Provider, error) {
	switch ProviderType(config.LLM.DefaultProvider) {
	case ProviderClaude:
		apiKey, err := common.ResolveAPIKey(ctx, kvStorage, "anthropic_api_key", config.Claude.APIKey)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve Anthropic API key: %w", err)
		}
		return NewClaudeProvider(apiKey, config.Claude, logger), nil
	case ProviderGemini, "":
		apiKey, err := common.ResolveAPIKey(ctx, kvStorage, "gemini_api_key", config.Gemini.APIKey)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve Gemini API key: %w", err)
		}
		return NewGeminiProvider(ctx, apiKey, config.Gemini, logger)
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", config.LLM.DefaultProvider)
	}
}

// defaultRequestsPerMinute applies when rate_limit is unset.
const defaultRequestsPerMinute = 10

// newLimiter paces requests evenly at perMinute with no burst, so concurrent
// analysis workers queue here instead of tripping provider quotas.
func newLimiter(perMinute int) *rate.Limiter {
	if perMinute <= 0 {
		perMinute = defaultRequestsPerMinute
	}
	return rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), 1)
}

// GeminiProvider generates content with the Gemini API. PDFs are sent inline.
type GeminiProvider struct {
	client  *genai.Client
	config  common.GeminiConfig
	timeout time.Duration
	limiter *rate.Limiter
	retry   *RetryConfig
	logger  arbor.ILogger
}

// NewGeminiProvider creates a Gemini provider
func NewGeminiProvider(ctx context.Context, apiKey string, config common.GeminiConfig, logger arbor.ILogger) (*GeminiProvider, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	logger.Debug().Str("model", config.Model).Int("rate_limit", config.RateLimit).Msg("Gemini provider initialized")

	return &GeminiProvider{
		client:  client,
		config:  config,
		timeout: common.Duration(config.Timeout, 2*time.Minute),
		limiter: newLimiter(config.RateLimit),
		retry:   NewDefaultRetryConfig(),
		logger:  logger,
	}, nil
}

func (p *GeminiProvider) GetProviderType() ProviderType { return ProviderGemini }

func (p *GeminiProvider) SupportsAttachments() bool { return true }

// GenerateContent generates content using the Gemini API
func (p *GeminiProvider) GenerateContent(ctx context.Context, request *ContentRequest) (*ContentResponse, error) {
	temp := request.Temperature
	if temp <= 0 {
		temp = p.config.Temperature
	}

	config := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(temp),
	}
	if request.SystemInstruction != "" {
		config.SystemInstruction = genai.NewContentFromText(request.SystemInstruction, genai.RoleUser)
	}
	if request.MaxTokens > 0 {
		config.MaxOutputTokens = int32(request.MaxTokens)
	}

	// When a schema is provided, Gemini enforces JSON output matching it
	if len(request.OutputSchema) > 0 {
		genaiSchema, err := convertToGenaiSchema(request.OutputSchema)
		if err != nil {
			p.logger.Error().Err(err).Msg("Failed to convert output schema")
		} else if genaiSchema != nil {
			config.ResponseMIMEType = "application/json"
			config.ResponseSchema = genaiSchema
		}
	}

	parts := make([]*genai.Part, 0, 2)
	if request.Attachment != nil && len(request.Attachment.Data) > 0 {
		parts = append(parts, genai.NewPartFromBytes(request.Attachment.Data, request.Attachment.MIMEType))
	}
	parts = append(parts, genai.NewPartFromText(request.Prompt))
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}

	resp, err := withRetry(ctx, p.retry, p.logger, string(ProviderGemini), func() (*genai.GenerateContentResponse, error) {
		if err := p.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		callCtx, cancel := context.WithTimeout(ctx, p.timeout)
		defer cancel()
		return p.client.Models.GenerateContent(callCtx, p.config.Model, contents, config)
	})
	if err != nil {
		return nil, fmt.Errorf("Gemini API call failed: %w", err)
	}

	if resp == nil || len(resp.Candidates) == 0 {
		return nil, fmt.Errorf("empty response from Gemini API")
	}

	responseText := resp.Text()
	if responseText == "" {
		return nil, fmt.Errorf("empty text in Gemini response")
	}

	return &ContentResponse{
		Text:     responseText,
		Provider: ProviderGemini,
		Model:    p.config.Model,
	}, nil
}

// ClaudeProvider generates content with the Anthropic Messages API. Documents
// are sent as extracted text.
type ClaudeProvider struct {
	client  anthropic.Client
	config  common.ClaudeConfig
	timeout time.Duration
	limiter *rate.Limiter
	retry   *RetryConfig
	logger  arbor.ILogger
}

// NewClaudeProvider creates a Claude provider
func NewClaudeProvider(apiKey string, config common.ClaudeConfig, logger arbor.ILogger, opts ...option.RequestOption) *ClaudeProvider {
	opts = append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)

	logger.Debug().Str("model", config.Model).Int("rate_limit", config.RateLimit).Msg("Claude provider initialized")

	return &ClaudeProvider{
		client:  anthropic.NewClient(opts...),
		config:  config,
		timeout: common.Duration(config.Timeout, 2*time.Minute),
		limiter: newLimiter(config.RateLimit),
		retry:   NewDefaultRetryConfig(),
		logger:  logger,
	}
}

func (p *ClaudeProvider) GetProviderType() ProviderType { return ProviderClaude }

func (p *ClaudeProvider) SupportsAttachments() bool { return false }

// GenerateContent generates content using the Claude API
func (p *ClaudeProvider) GenerateContent(ctx context.Context, request *ContentRequest) (*ContentResponse, error) {
	maxTokens := request.MaxTokens
	if maxTokens <= 0 {
		maxTokens = p.config.MaxTokens
	}
	if maxTokens <= 0 {
		maxTokens = 2048
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(p.config.Model),
		MaxTokens: int64(maxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(request.Prompt)),
		},
	}

	temp := request.Temperature
	if temp <= 0 {
		temp = p.config.Temperature
	}
	if temp > 0 {
		params.Temperature = anthropic.Float(float64(temp))
	}

	if request.SystemInstruction != "" {
		params.System = []anthropic.TextBlockParam{
			{Text: request.SystemInstruction},
		}
	}

	resp, err := withRetry(ctx, p.retry, p.logger, string(ProviderClaude), func() (*anthropic.Message, error) {
		if err := p.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		callCtx, cancel := context.WithTimeout(ctx, p.timeout)
		defer cancel()
		return p.client.Messages.New(callCtx, params)
	})
	if err != nil {
		return nil, fmt.Errorf("Claude API call failed: %w", err)
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	if text.Len() == 0 {
		return nil, fmt.Errorf("empty response from Claude API")
	}

	return &ContentResponse{
		Text:     text.String(),
		Provider: ProviderClaude,
		Model:    p.config.Model,
	}, nil
}

// convertToGenaiSchema converts a map[string]interface{} representation of a JSON schema
// to a genai.Schema structure.
func convertToGenaiSchema(schemaMap map[string]interface{}) (*genai.Schema, error) {
	if len(schemaMap) == 0 {
		return nil, nil
	}

	schema := &genai.Schema{}

	if typeStr, ok := schemaMap["type"].(string); ok {
		switch strings.ToLower(typeStr) {
		case "object":
			schema.Type = genai.TypeObject
		case "array":
			schema.Type = genai.TypeArray
		case "string":
			schema.Type = genai.TypeString
		case "number":
			schema.Type = genai.TypeNumber
		case "integer":
			schema.Type = genai.TypeInteger
		case "boolean":
			schema.Type = genai.TypeBoolean
		}
	}

	if desc, ok := schemaMap["description"].(string); ok {
		schema.Description = desc
	}

	if reqVals, ok := schemaMap["required"].([]interface{}); ok {
		for _, v := range reqVals {
			if s, ok := v.(string); ok {
				schema.Required = append(schema.Required, s)
			}
		}
	} else if reqVals, ok := schemaMap["required"].([]string); ok {
		schema.Required = reqVals
	}

	if itemsMap, ok := schemaMap["items"].(map[string]interface{}); ok {
		itemSchema, err := convertToGenaiSchema(itemsMap)
		if err != nil {
			return nil, fmt.Errorf("failed to convert items schema: %w", err)
		}
		schema.Items = itemSchema
	}

	if propsMap, ok := schemaMap["properties"].(map[string]interface{}); ok {
		schema.Properties = make(map[string]*genai.Schema)
		for propName, propVal := range propsMap {
			if propMap, ok := propVal.(map[string]interface{}); ok {
				propSchema, err := convertToGenaiSchema(propMap)
				if err != nil {
					return nil, fmt.Errorf("failed to convert property '%s': %w", propName, err)
				}
				schema.Properties[propName] = propSchema
			}
		}
	}

	return schema, nil
}
