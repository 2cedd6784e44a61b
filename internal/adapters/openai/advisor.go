package openai

import (
	"context"
	"fmt"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/mikey/bgc-lifecycle/internal/config"
	"github.com/mikey/bgc-lifecycle/internal/core"
	"github.com/mikey/bgc-lifecycle/internal/utils"
)

// chatCompleter is the part of the OpenAI client the advisor uses
type chatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Advisor is a RiskAdvisor backed by the OpenAI chat completion API
type Advisor struct {
	client        chatCompleter
	modelName     string
	maxTokens     int
	temperature   float32
	topP          float32
	maxBodySize   int
	logger        *zap.Logger
	textProcessor *utils.TextProcessor
}

// NewAdvisor creates an OpenAI advisor from configuration
func NewAdvisor(cfg config.OpenAIConfig, logger *zap.Logger, textProcessor *utils.TextProcessor) *Advisor {
	return newAdvisor(openai.NewClient(cfg.APIKey), cfg, logger, textProcessor)
}

// NewAdvisorWithBaseURL targets an OpenAI compatible endpoint
func NewAdvisorWithBaseURL(cfg config.OpenAIConfig, baseURL string, logger *zap.Logger, textProcessor *utils.TextProcessor) *Advisor {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	clientCfg.BaseURL = baseURL
	return newAdvisor(openai.NewClientWithConfig(clientCfg), cfg, logger, textProcessor)
}

func newAdvisor(client chatCompleter, cfg config.OpenAIConfig, logger *zap.Logger, textProcessor *utils.TextProcessor) *Advisor {
	return &Advisor{
		client:        client,
		modelName:     cfg.ModelName,
		maxTokens:     cfg.MaxTokens,
		temperature:   cfg.Temperature,
		topP:          cfg.TopP,
		maxBodySize:   cfg.MaxBodySize,
		logger:        logger,
		textProcessor: textProcessor,
	}
}

// AssessAccount asks the model which risk factors apply to the account
func (a *Advisor) AssessAccount(ctx context.Context, input *core.AdvisorInput) ([]string, error) {
	prompt := core.FormatAdvisorPrompt(input, a.textProcessor, a.maxBodySize)

	req := openai.ChatCompletionRequest{
		Model: a.modelName,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: "You are a background-check risk reviewer. Respond only with JSON.",
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: prompt,
			},
		},
		MaxTokens:   a.maxTokens,
		Temperature: a.temperature,
		TopP:        a.topP,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	}

	resp, err := a.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat completion with OpenAI: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("empty response from OpenAI")
	}

	factors, err := core.ParseAdvisorResponse(resp.Choices[0].Message.Content, input.Vocabulary)
	if err != nil {
		return nil, err
	}

	a.logger.Debug("OpenAI advisor assessed account",
		zap.String("account", input.AccountEmail),
		zap.String("model", a.modelName),
		zap.Strings("factors", factors))
	return factors, nil
}
