package llm

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/responsum/internal/common"
	"github.com/ternarybob/responsum/internal/interfaces"
	"github.com/ternarybob/responsum/internal/models"
	"golang.org/x/time/rate"
	"google.golang.org/genai"
)

// ProviderType represents the hosted AI provider
type ProviderType string

const (
	// ProviderGemini uses Google Gemini API
	ProviderGemini ProviderType = "gemini"
	// ProviderClaude uses Anthropic Claude API
	ProviderClaude ProviderType = "claude"
)

// HostedProvider generates text through hosted model APIs. Clients are
// created lazily on first use; API keys resolve from environment, KV
// store, then config. Every generation is a single attempt: API
// failures become a GenerationResult failure and are never retried.
type HostedProvider struct {
	geminiConfig *common.GeminiConfig
	claudeConfig *common.ClaudeConfig
	llmConfig    *common.LLMConfig
	kvStorage    interfaces.KeyValueStorage
	logger       arbor.ILogger

	mu           sync.Mutex
	geminiClient *genai.Client
	claudeClient anthropic.Client
	geminiAPIKey string
	claudeAPIKey string

	geminiLimiter *rate.Limiter
	claudeLimiter *rate.Limiter
	geminiTimeout time.Duration
	claudeTimeout time.Duration
}

// NewHostedProvider creates the shared provider for all hosted backends
func NewHostedProvider(cfg *common.Config, kvStorage interfaces.KeyValueStorage, logger arbor.ILogger) *HostedProvider {
	return &HostedProvider{
		geminiConfig:  &cfg.Gemini,
		claudeConfig:  &cfg.Claude,
		llmConfig:     &cfg.LLM,
		kvStorage:     kvStorage,
		logger:        logger,
		geminiLimiter: rate.NewLimiter(rate.Every(parseDuration(cfg.Gemini.RateLimit, 4*time.Second)), 1),
		claudeLimiter: rate.NewLimiter(rate.Every(parseDuration(cfg.Claude.RateLimit, time.Second)), 1),
		geminiTimeout: parseDuration(cfg.Gemini.Timeout, 2*time.Minute),
		claudeTimeout: parseDuration(cfg.Claude.Timeout, 2*time.Minute),
	}
}

func parseDuration(value string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// DetectProvider determines the provider type from a model string.
// Model strings can be:
// - "claude-haiku-3-5-20241022" -> Claude
// - "claude/claude-haiku-3-5-20241022" -> Claude (with prefix)
// - "gemini-3-flash-preview" -> Gemini
// - Empty string -> uses default provider from config
func (p *HostedProvider) DetectProvider(model string) ProviderType {
	if model == "" {
		return ProviderType(p.llmConfig.DefaultProvider)
	}

	model = strings.ToLower(model)

	if strings.HasPrefix(model, "claude/") || strings.HasPrefix(model, "anthropic/") {
		return ProviderClaude
	}
	if strings.HasPrefix(model, "gemini/") || strings.HasPrefix(model, "google/") {
		return ProviderGemini
	}

	if strings.HasPrefix(model, "claude-") {
		return ProviderClaude
	}
	if strings.HasPrefix(model, "gemini-") {
		return ProviderGemini
	}

	return ProviderType(p.llmConfig.DefaultProvider)
}

// NormalizeModel removes a provider prefix from the model name if
// present
func (p *HostedProvider) NormalizeModel(model string) string {
	prefixes := []string{"claude/", "anthropic/", "gemini/", "google/"}
	for _, prefix := range prefixes {
		if strings.HasPrefix(strings.ToLower(model), prefix) {
			return model[len(prefix):]
		}
	}
	return model
}

// DefaultModel returns the concrete model behind the default provider
func (p *HostedProvider) DefaultModel() string {
	switch ProviderType(p.llmConfig.DefaultProvider) {
	case ProviderClaude:
		return p.claudeConfig.Model
	default:
		return p.geminiConfig.Model
	}
}

// VerifyDefaultKey resolves the API key for the default hosted provider
// so a misconfigured deployment fails at startup instead of on the
// first query
func (p *HostedProvider) VerifyDefaultKey(ctx context.Context) error {
	switch ProviderType(p.llmConfig.DefaultProvider) {
	case ProviderClaude:
		if _, err := common.ResolveAPIKey(ctx, p.kvStorage, "claude_api_key", p.claudeConfig.APIKey); err != nil {
			return fmt.Errorf("default hosted provider claude has no API key: %w", err)
		}
	default:
		if _, err := common.ResolveAPIKey(ctx, p.kvStorage, "gemini_api_key", p.geminiConfig.APIKey); err != nil {
			return fmt.Errorf("default hosted provider gemini has no API key: %w", err)
		}
	}
	return nil
}

// KeyConfigured reports whether a provider's API key is available from
// environment or config, without touching the KV store
func (p *HostedProvider) KeyConfigured(provider ProviderType) bool {
	switch provider {
	case ProviderClaude:
		return p.claudeConfig.APIKey != "" ||
			os.Getenv("RESPONSUM_CLAUDE_API_KEY") != "" ||
			os.Getenv("ANTHROPIC_API_KEY") != ""
	default:
		return p.geminiConfig.APIKey != "" ||
			os.Getenv("RESPONSUM_GEMINI_API_KEY") != ""
	}
}

// getGeminiClient returns the Gemini client, creating it on first use
func (p *HostedProvider) getGeminiClient(ctx context.Context) (*genai.Client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.geminiClient != nil {
		return p.geminiClient, nil
	}

	apiKey, err := common.ResolveAPIKey(ctx, p.kvStorage, "gemini_api_key", p.geminiConfig.APIKey)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve Gemini API key: %w", err)
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	p.geminiClient = client
	p.geminiAPIKey = apiKey
	return client, nil
}

// getClaudeClient returns the Claude client, creating it on first use
func (p *HostedProvider) getClaudeClient(ctx context.Context) (anthropic.Client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.claudeAPIKey != "" {
		return p.claudeClient, nil
	}

	apiKey, err := common.ResolveAPIKey(ctx, p.kvStorage, "claude_api_key", p.claudeConfig.APIKey)
	if err != nil {
		return anthropic.Client{}, fmt.Errorf("failed to resolve Claude API key: %w", err)
	}

	client := anthropic.NewClient(
		option.WithAPIKey(apiKey),
	)

	p.claudeClient = client
	p.claudeAPIKey = apiKey
	return client, nil
}

// Generate produces text for the prompt using the provider matching the
// model name. The prompt is passed verbatim and the output returned
// verbatim; nothing here rewrites either side.
func (p *HostedProvider) Generate(ctx context.Context, model, prompt string) models.GenerationResult {
	provider := p.DetectProvider(model)
	name := p.NormalizeModel(model)

	p.logger.Debug().
		Str("provider", string(provider)).
		Str("model", name).
		Int("prompt_length", len(prompt)).
		Msg("Generating content with hosted provider")

	switch provider {
	case ProviderClaude:
		return p.generateWithClaude(ctx, name, prompt)
	default:
		return p.generateWithGemini(ctx, name, prompt)
	}
}

func (p *HostedProvider) generateWithClaude(ctx context.Context, model, prompt string) models.GenerationResult {
	client, err := p.getClaudeClient(ctx)
	if err != nil {
		return models.GenerationFailure(err.Error())
	}

	if model == "" {
		model = p.claudeConfig.Model
	}

	if err := p.claudeLimiter.Wait(ctx); err != nil {
		return models.GenerationFailure(fmt.Sprintf("request cancelled while rate limited: %v", err))
	}

	ctx, cancel := context.WithTimeout(ctx, p.claudeTimeout)
	defer cancel()

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: int64(p.claudeConfig.MaxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}
	if p.claudeConfig.Temperature > 0 {
		params.Temperature = anthropic.Float(float64(p.claudeConfig.Temperature))
	}

	// Single attempt, no retry loop
	resp, err := client.Messages.New(ctx, params)
	if err != nil {
		p.logger.Warn().Err(err).Str("model", model).Msg("Claude API call failed")
		return models.GenerationFailure(fmt.Sprintf("Claude API call failed: %v", err))
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	if text.Len() == 0 {
		return models.GenerationFailure("empty response from Claude API")
	}

	return models.GenerationSuccess(text.String())
}

func (p *HostedProvider) generateWithGemini(ctx context.Context, model, prompt string) models.GenerationResult {
	client, err := p.getGeminiClient(ctx)
	if err != nil {
		return models.GenerationFailure(err.Error())
	}

	if model == "" {
		model = p.geminiConfig.Model
	}

	if err := p.geminiLimiter.Wait(ctx); err != nil {
		return models.GenerationFailure(fmt.Sprintf("request cancelled while rate limited: %v", err))
	}

	ctx, cancel := context.WithTimeout(ctx, p.geminiTimeout)
	defer cancel()

	contents := []*genai.Content{
		{
			Role:  genai.RoleUser,
			Parts: []*genai.Part{genai.NewPartFromText(prompt)},
		},
	}

	config := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(p.geminiConfig.Temperature),
	}

	// Single attempt, no retry loop
	resp, err := client.Models.GenerateContent(ctx, model, contents, config)
	if err != nil {
		p.logger.Warn().Err(err).Str("model", model).Msg("Gemini API call failed")
		return models.GenerationFailure(fmt.Sprintf("Gemini API call failed: %v", err))
	}

	if resp == nil || len(resp.Candidates) == 0 {
		return models.GenerationFailure("empty response from Gemini API")
	}

	responseText := resp.Text()
	if responseText == "" {
		return models.GenerationFailure("empty text in Gemini response")
	}

	return models.GenerationSuccess(responseText)
}

// Close resets all provider clients
func (p *HostedProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.geminiClient = nil
	p.claudeClient = anthropic.Client{}
	p.geminiAPIKey = ""
	p.claudeAPIKey = ""
	return nil
}
