package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/invopop/jsonschema"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"go.uber.org/zap"

	"talent-source/models"
	"talent-source/utils"
)

type OpenAIClient interface {
	Embed(ctx context.Context, inputs []string) ([][]float32, error)
	SendMessage(ctx context.Context, message string) (openai.ChatCompletion, error)
	UnmarshalResponse(responseText string) (models.SkillSuggestion, error)
}

type openaiClientImpl struct {
	client         openai.Client
	embeddingModel string
	maxRetries     uint
}

func NewOpenAIService(apiKey, baseURL, embeddingModel string) OpenAIClient {
	opts := []option.RequestOption{option.WithAPIKey(apiKey), option.WithMaxRetries(0)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if embeddingModel == "" {
		embeddingModel = string(openai.EmbeddingModelTextEmbedding3Small)
	}
	return &openaiClientImpl{
		client:         openai.NewClient(opts...),
		embeddingModel: embeddingModel,
		maxRetries:     10,
	}
}

// Embed returns one vector per input, in input order.
func (o *openaiClientImpl) Embed(ctx context.Context, inputs []string) ([][]float32, error) {
	if len(inputs) == 0 {
		return nil, nil
	}
	resp, err := executeWithRetry(ctx, o.maxRetries, func() (*openai.CreateEmbeddingResponse, error) {
		res, err := o.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
			Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: inputs},
			Model: openai.EmbeddingModel(o.embeddingModel),
		})
		if err != nil {
			return nil, fmt.Errorf("OpenAI API error: %w", err)
		}
		return res, nil
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Data) != len(inputs) {
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(inputs), len(resp.Data))
	}

	vectors := make([][]float32, len(inputs))
	for _, item := range resp.Data {
		if item.Index < 0 || int(item.Index) >= len(vectors) {
			return nil, fmt.Errorf("embedding index %d out of range", item.Index)
		}
		vec := make([]float32, len(item.Embedding))
		for i, v := range item.Embedding {
			vec[i] = float32(v)
		}
		vectors[item.Index] = vec
	}
	return vectors, nil
}

func (o *openaiClientImpl) SendMessage(ctx context.Context, message string) (openai.ChatCompletion, error) {
	schemaParam := openai.ResponseFormatJSONSchemaJSONSchemaParam{
		Name:        "skill_suggestion",
		Description: openai.String("Bilingual skill catalog entry with billing class"),
		Schema:      SkillSuggestionSchema,
		Strict:      openai.Bool(true),
	}

	res, err := executeWithRetry(ctx, o.maxRetries, func() (*openai.ChatCompletion, error) {
		chatCompletion, err := o.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
			Messages: []openai.ChatCompletionMessageParamUnion{
				openai.SystemMessage(skillSuggestionPrompt),
				openai.UserMessage(message),
			},
			Model: openai.ChatModelGPT4_1Nano,
			ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
				OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{JSONSchema: schemaParam},
			},
		})
		if err != nil {
			return nil, fmt.Errorf("OpenAI API error: %w", err)
		}
		return chatCompletion, nil
	})
	if err != nil {
		return openai.ChatCompletion{}, err
	}
	return *res, nil
}

func (o *openaiClientImpl) UnmarshalResponse(responseText string) (models.SkillSuggestion, error) {
	var res models.SkillSuggestion
	if err := json.Unmarshal([]byte(responseText), &res); err != nil {
		return models.SkillSuggestion{}, fmt.Errorf("decode OpenAI response: %w", err)
	}
	return res, nil
}

// executeWithRetry retries only rate-limited calls, with exponential backoff and jitter.
func executeWithRetry[T any](ctx context.Context, maxRetries uint, operation func() (T, error)) (T, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 10 * time.Second

	attempt := 0
	return backoff.Retry(ctx, func() (T, error) {
		attempt++
		result, err := operation()
		if err == nil {
			return result, nil
		}
		var apiErr *openai.Error
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusTooManyRequests {
			utils.Logger().Warn("rate limited by OpenAI", zap.Int("attempt", attempt))
			return result, err
		}
		return result, backoff.Permanent(err)
	}, backoff.WithBackOff(b), backoff.WithMaxTries(maxRetries))
}

const skillSuggestionPrompt = "You maintain the skill catalog of a Saudi recruitment marketplace. " +
	"Given a skill or job title, return the catalog entry. Answer only with the JSON object."

func generateSchema[T any]() interface{} {
	// Structured Outputs uses a subset of JSON schema
	// these flags are necessary to comply with the subset
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	var v T
	schema := reflector.Reflect(v)
	return schema
}

// generate the JSON schema at initialization time
var SkillSuggestionSchema = generateSchema[models.SkillSuggestion]()
