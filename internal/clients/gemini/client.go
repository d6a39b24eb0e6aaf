// Package gemini provides the Google Gemini client used for news
// digests.
package gemini

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/cnquant/stockpulse/internal/common"
	"github.com/cnquant/stockpulse/internal/interfaces"
	"github.com/cnquant/stockpulse/internal/models"
)

const (
	DefaultModel         = "gemini-2.0-flash"
	maxHeadlinesInPrompt = 30
)

// Client implements the AIClient interface.
type Client struct {
	client *genai.Client
	model  string
	logger *common.Logger
}

// ClientOption configures the client
type ClientOption func(*Client)

// WithModel sets the model to use
func WithModel(model string) ClientOption {
	return func(c *Client) {
		if model != "" {
			c.model = model
		}
	}
}

// WithLogger sets the logger
func WithLogger(logger *common.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewClient creates a new Gemini client
func NewClient(ctx context.Context, apiKey string, opts ...ClientOption) (*Client, error) {
	genaiClient, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	c := &Client{
		client: genaiClient,
		model:  DefaultModel,
		logger: common.NewSilentLogger(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// SummarizeNews generates a short Chinese-language market digest from the
// crawled headlines.
func (c *Client) SummarizeNews(ctx context.Context, items []models.NewsItem) (string, error) {
	if len(items) == 0 {
		return "", fmt.Errorf("no headlines to summarize")
	}

	c.logger.Debug().Str("model", c.model).Int("headlines", len(items)).Msg("Generating news digest")

	result, err := c.client.Models.GenerateContent(ctx, c.model, genai.Text(buildNewsPrompt(items)), nil)
	if err != nil {
		return "", fmt.Errorf("failed to generate news digest: %w", err)
	}
	return extractTextFromResponse(result)
}

// buildNewsPrompt assembles the digest prompt from the newest headlines.
func buildNewsPrompt(items []models.NewsItem) string {
	if len(items) > maxHeadlinesInPrompt {
		items = items[:maxHeadlinesInPrompt]
	}

	var sb strings.Builder
	sb.WriteString("以下是最新的A股市场新闻标题，请用中文总结当前市场的主要动态和情绪，不超过200字：\n\n")
	for i, item := range items {
		fmt.Fprintf(&sb, "%d. %s", i+1, item.Title)
		if item.Summary != "" {
			fmt.Fprintf(&sb, "（%s）", item.Summary)
		}
		sb.WriteString("\n")
	}
	sb.WriteString("\n只输出总结内容，不要加任何前缀或标题。")
	return sb.String()
}

// extractTextFromResponse extracts text from a generate content response
func extractTextFromResponse(result *genai.GenerateContentResponse) (string, error) {
	if len(result.Candidates) == 0 || result.Candidates[0].Content == nil || len(result.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("no content generated")
	}

	text := ""
	for _, part := range result.Candidates[0].Content.Parts {
		if part.Text != "" {
			text += part.Text
		}
	}

	return text, nil
}

// Ensure Client implements AIClient
var _ interfaces.AIClient = (*Client)(nil)
