package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/mikey/support-mailer/internal/core"
	"github.com/mikey/support-mailer/internal/textutil"
	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

const (
	requestTimeout = 60 * time.Second
	maxPromptChars = 4000
)

// Client implements the LLMClient port against any OpenAI-compatible chat
// completion endpoint. The base URL is configurable so DeepSeek-style
// providers work unchanged.
type Client struct {
	client    *openai.Client
	modelName string
	logger    *zap.Logger
}

type classifyResponse struct {
	CategoryID int64   `json:"category_id"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason"`
}

type draftResponse struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// NewClient creates an LLM client. An empty baseURL keeps the library default.
func NewClient(apiKey, baseURL, modelName string, logger *zap.Logger) *Client {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &Client{
		client:    openai.NewClientWithConfig(cfg),
		modelName: modelName,
		logger:    logger,
	}
}

// ClassifyMessage asks the model to pick one of the given categories for the
// message text. A category_id of 0 means the model found no match.
func (c *Client) ClassifyMessage(ctx context.Context, text string, categories []core.Category) (*core.AIClassification, error) {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	var list strings.Builder
	for _, cat := range categories {
		fmt.Fprintf(&list, "- id=%d name=%q description=%q\n", cat.ID, cat.Name, cat.Description)
	}

	prompt := fmt.Sprintf(`Classify the following customer support email into exactly one of these categories:
%s
Respond with a JSON object containing:
- category_id: integer (the id of the chosen category, or 0 if none fits)
- confidence: number between 0 and 1
- reason: string (one short sentence)

Email:
%s

Respond only with the JSON object and nothing else.`, list.String(), c.truncate(text))

	content, err := c.complete(ctx, "You classify customer support emails. Respond only with JSON.", prompt, 0.1)
	if err != nil {
		return nil, err
	}

	var parsed classifyResponse
	if err := json.Unmarshal([]byte(stripFences(content)), &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse classification response as JSON: %w", err)
	}

	return &core.AIClassification{
		CategoryID: parsed.CategoryID,
		Confidence: core.ClampConfidence(parsed.Confidence),
		Reason:     parsed.Reason,
	}, nil
}

// DraftReply asks the model for a reply draft in the customer's language. When
// the response is not the expected JSON shape, the raw text becomes the body
// rather than failing the draft.
func (c *Client) DraftReply(ctx context.Context, text, categoryName, categoryDescription string) (*core.ReplyDraft, error) {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	prompt := fmt.Sprintf(`Write a polite customer support reply to the email below.
The email was classified as %q (%s).
Answer in the same language the customer wrote in.
Respond with a JSON object containing:
- subject: string (reply subject line)
- body: string (the reply text)

Email:
%s

Respond only with the JSON object and nothing else.`, categoryName, categoryDescription, c.truncate(text))

	content, err := c.complete(ctx, "You draft customer support replies. Respond only with JSON.", prompt, 0.4)
	if err != nil {
		return nil, err
	}

	cleaned := stripFences(content)
	var parsed draftResponse
	if err := json.Unmarshal([]byte(cleaned), &parsed); err != nil || parsed.Body == "" {
		c.logger.Debug("Draft response was not JSON, using raw text as body")
		return &core.ReplyDraft{Source: core.ReplySourceAI, Subject: "", Body: cleaned}, nil
	}

	return &core.ReplyDraft{
		Source:  core.ReplySourceAI,
		Subject: parsed.Subject,
		Body:    parsed.Body,
	}, nil
}

func (c *Client) complete(ctx context.Context, system, prompt string, temperature float32) (string, error) {
	req := openai.ChatCompletionRequest{
		Model: c.modelName,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: temperature,
	}

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("failed to create chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("empty response from completion endpoint")
	}
	return resp.Choices[0].Message.Content, nil
}

func (c *Client) truncate(text string) string {
	truncated := textutil.TruncateText(textutil.SanitizeUTF8(text), maxPromptChars)
	if len(truncated) != len(text) {
		c.logger.Debug("Prompt text truncated",
			zap.Int("original_size", len(text)),
			zap.Int("max_chars", maxPromptChars))
	}
	return truncated
}

// stripFences unwraps a markdown code fence around a JSON payload. Models
// often wrap responses in ```json fences despite instructions not to.
func stripFences(content string) string {
	trimmed := strings.TrimSpace(content)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	if idx := strings.LastIndex(trimmed, "```"); idx >= 0 {
		trimmed = trimmed[:idx]
	}
	return strings.TrimSpace(trimmed)
}
