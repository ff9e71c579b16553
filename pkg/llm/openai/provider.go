package openai

import (
	"ai-docchat-be/pkg/llm"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	sdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/responses"
)

// OpenAIProvider talks to the Chat Completions API for free text and to the
// Responses API for schema-constrained output.
type OpenAIProvider struct {
	client    *sdk.Client
	ModelName string

	// waits between retries; index is the attempt number
	rateLimitWaits   []time.Duration
	serverErrorWaits []time.Duration
}

var (
	_ llm.LLMProvider        = &OpenAIProvider{}
	_ llm.StructuredProvider = &OpenAIProvider{}
)

func NewOpenAIProvider(apiKey, modelName, baseURL string) *OpenAIProvider {
	opts := []option.RequestOption{option.WithAPIKey(apiKey), option.WithMaxRetries(0)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	client := sdk.NewClient(opts...)
	return &OpenAIProvider{
		client:           &client,
		ModelName:        modelName,
		rateLimitWaits:   []time.Duration{20 * time.Second, 40 * time.Second},
		serverErrorWaits: []time.Duration{2 * time.Second, 10 * time.Second},
	}
}

func (p *OpenAIProvider) Chat(ctx context.Context, history []llm.Message, opts ...llm.Option) (string, error) {
	params := p.chatParams(history, opts)

	var resp *sdk.ChatCompletion
	err := p.withRetry(ctx, func() error {
		var err error
		resp, err = p.client.Chat.Completions.New(ctx, params)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("openai chat: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("openai chat: empty choices")
	}
	return resp.Choices[0].Message.Content, nil
}

func (p *OpenAIProvider) Generate(ctx context.Context, prompt string, opts ...llm.Option) (string, error) {
	return p.Chat(ctx, []llm.Message{{Role: llm.RoleUser, Content: prompt}}, opts...)
}

// ChatStream is not retried: once deltas have reached the caller a retry would duplicate them.
func (p *OpenAIProvider) ChatStream(ctx context.Context, history []llm.Message, onChunk llm.ChunkHandler, opts ...llm.Option) (string, error) {
	stream := p.client.Chat.Completions.NewStreaming(ctx, p.chatParams(history, opts))
	defer stream.Close()

	var full strings.Builder
	for stream.Next() {
		chunk := stream.Current()
		if len(chunk.Choices) == 0 {
			continue
		}
		delta := chunk.Choices[0].Delta.Content
		if delta == "" {
			continue
		}
		full.WriteString(delta)
		if onChunk != nil {
			if err := onChunk(delta); err != nil {
				return full.String(), err
			}
		}
	}
	if err := stream.Err(); err != nil {
		return full.String(), fmt.Errorf("openai stream: %w", err)
	}
	return full.String(), nil
}

// ChatStructured sends system messages as instructions and the rest as input items
// with a strict json_schema text format.
func (p *OpenAIProvider) ChatStructured(ctx context.Context, history []llm.Message, schema llm.ResponseSchema, opts ...llm.Option) (string, error) {
	options := llm.Apply(0, opts...)

	var instructions []string
	input := make([]responses.ResponseInputItemUnionParam, 0, len(history))
	for _, m := range history {
		switch normalizeRole(m.Role) {
		case llm.RoleSystem:
			instructions = append(instructions, m.Content)
		case llm.RoleAssistant:
			input = append(input, responses.ResponseInputItemParamOfMessage(m.Content, responses.EasyInputMessageRoleAssistant))
		default:
			input = append(input, responses.ResponseInputItemParamOfMessage(m.Content, responses.EasyInputMessageRoleUser))
		}
	}

	params := responses.ResponseNewParams{
		Model: p.model(options),
		Input: responses.ResponseNewParamsInputUnion{
			OfInputItemList: input,
		},
		Text: responses.ResponseTextConfigParam{
			Format: responses.ResponseFormatTextConfigUnionParam{
				OfJSONSchema: &responses.ResponseFormatTextJSONSchemaConfigParam{
					Name:        schema.Name,
					Schema:      schema.Schema,
					Strict:      sdk.Bool(true),
					Description: sdk.String(schema.Description),
					Type:        "json_schema",
				},
			},
		},
	}
	if len(instructions) > 0 {
		params.Instructions = sdk.String(strings.Join(instructions, "\n\n"))
	}
	if options.Temperature != nil {
		params.Temperature = sdk.Float(*options.Temperature)
	}
	if options.MaxTokens > 0 {
		params.MaxOutputTokens = sdk.Int(int64(options.MaxTokens))
	}

	var resp *responses.Response
	err := p.withRetry(ctx, func() error {
		var err error
		resp, err = p.client.Responses.New(ctx, params)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("openai structured: %w", err)
	}
	return resp.OutputText(), nil
}

func (p *OpenAIProvider) chatParams(history []llm.Message, opts []llm.Option) sdk.ChatCompletionNewParams {
	options := llm.Apply(0.7, opts...)

	messages := make([]sdk.ChatCompletionMessageParamUnion, 0, len(history))
	for _, m := range history {
		switch normalizeRole(m.Role) {
		case llm.RoleSystem:
			messages = append(messages, sdk.SystemMessage(m.Content))
		case llm.RoleAssistant:
			messages = append(messages, sdk.AssistantMessage(m.Content))
		default:
			messages = append(messages, sdk.UserMessage(m.Content))
		}
	}

	params := sdk.ChatCompletionNewParams{
		Model:    sdk.ChatModel(p.model(options)),
		Messages: messages,
	}
	if options.Temperature != nil {
		params.Temperature = sdk.Float(*options.Temperature)
	}
	if options.MaxTokens > 0 {
		params.MaxCompletionTokens = sdk.Int(int64(options.MaxTokens))
	}
	return params
}

func (p *OpenAIProvider) model(options *llm.Options) string {
	if options.Model != "" {
		return options.Model
	}
	return p.ModelName
}

func normalizeRole(role string) string {
	switch role {
	case "ai", "model", llm.RoleAssistant:
		return llm.RoleAssistant
	case llm.RoleSystem:
		return llm.RoleSystem
	default:
		return llm.RoleUser
	}
}

// withRetry retries rate-limit and server errors, waiting between attempts unless ctx ends first.
func (p *OpenAIProvider) withRetry(ctx context.Context, call func() error) error {
	attempts := len(p.rateLimitWaits) + 1
	if n := len(p.serverErrorWaits) + 1; n > attempts {
		attempts = n
	}

	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		err = call()
		if err == nil {
			return nil
		}

		var wait time.Duration
		switch {
		case isRateLimitError(err) && attempt < len(p.rateLimitWaits):
			wait = p.rateLimitWaits[attempt]
		case isServerError(err) && attempt < len(p.serverErrorWaits):
			wait = p.serverErrorWaits[attempt]
		default:
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
	return err
}

func isRateLimitError(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *sdk.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "429") ||
		strings.Contains(errStr, "rate limit") ||
		strings.Contains(errStr, "too many requests")
}

func isServerError(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *sdk.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode >= 500
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "internal server error") ||
		strings.Contains(errStr, "server_error")
}
