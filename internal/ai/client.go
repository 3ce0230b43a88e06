package ai

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/myrjola/coachline/internal/errors"
	"github.com/myrjola/coachline/internal/models"
	"github.com/sashabaranov/go-openai"
)

const (
	MaxTokens    = 4096
	DefaultModel = openai.GPT4oMini

	systemPrompt = "You are a friendly business coach helping a creator turn their expertise into courses, " +
		"workshops, services and content. Answer in the requested JSON format."
)

var ErrEmptyCompletion = errors.NewSentinel("completion has no choices")

// Client requests structured coach responses from an OpenAI compatible API.
type Client struct {
	client *openai.Client
	model  string
	logger *slog.Logger
}

// NewClient creates a client. An empty baseURL uses the OpenAI API and an empty model uses DefaultModel.
func NewClient(apiKey string, baseURL string, model string, httpClient *http.Client, logger *slog.Logger) *Client {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	if httpClient != nil {
		config.HTTPClient = httpClient
	}
	if model == "" {
		model = DefaultModel
	}
	return &Client{
		client: openai.NewClientWithConfig(config),
		model:  model,
		logger: logger.With(slog.String("source", "ai.Client")),
	}
}

// Invoke asks the model for a response of the given kind.
func (c *Client) Invoke(ctx context.Context, prompt string, kind models.ResponseKind) (models.Response, error) {
	var (
		completion openai.ChatCompletionResponse
		schema     openai.ChatCompletionResponseFormatJSONSchema
		err        error
	)
	if schema, err = SchemaFor(kind); err != nil {
		return nil, err
	}
	completion, err = c.client.CreateChatCompletion(
		ctx,
		openai.ChatCompletionRequest{ //nolint:exhaustruct // this is better for readability
			Model:     c.model,
			MaxTokens: MaxTokens,
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleSystem, Content: systemPrompt}, //nolint:exhaustruct // text only.
				{Role: openai.ChatMessageRoleUser, Content: prompt},         //nolint:exhaustruct // text only.
			},
			ResponseFormat: &openai.ChatCompletionResponseFormat{
				Type:       openai.ChatCompletionResponseFormatTypeJSONSchema,
				JSONSchema: &schema,
			},
		},
	)
	if err != nil {
		return nil, errors.Wrap(err, "create chat completion", slog.String("kind", string(kind)))
	}
	if len(completion.Choices) == 0 {
		return nil, errors.Wrap(ErrEmptyCompletion, "read completion", slog.String("kind", string(kind)))
	}
	choice := completion.Choices[0]
	c.logger.LogAttrs(ctx, slog.LevelDebug, "completion received",
		slog.String("kind", string(kind)),
		slog.String("finish_reason", string(choice.FinishReason)),
		slog.Int("total_tokens", completion.Usage.TotalTokens))

	var resp models.Response
	if resp, err = models.DecodeResponse(kind, []byte(choice.Message.Content)); err != nil {
		return nil, errors.Wrap(err, "decode structured response", slog.String("kind", string(kind)))
	}
	return resp, nil
}
