package bedrock

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/mikey/bgc-lifecycle/internal/config"
	"github.com/mikey/bgc-lifecycle/internal/core"
	"github.com/mikey/bgc-lifecycle/internal/utils"
)

// InvokeModelAPI is the part of the Bedrock runtime client the advisor uses
type InvokeModelAPI interface {
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

// Advisor is a RiskAdvisor backed by Amazon Bedrock
type Advisor struct {
	client        InvokeModelAPI
	modelID       string
	maxTokens     int
	temperature   float32
	topP          float32
	maxBodySize   int
	logger        *zap.Logger
	textProcessor *utils.TextProcessor
}

// NewAdvisor loads AWS credentials from the environment and creates a
// Bedrock advisor
func NewAdvisor(ctx context.Context, cfg config.BedrockConfig, logger *zap.Logger, textProcessor *utils.TextProcessor) (*Advisor, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return NewAdvisorWithClient(bedrockruntime.NewFromConfig(awsCfg), cfg, logger, textProcessor), nil
}

// NewAdvisorWithClient creates a Bedrock advisor around an existing client
func NewAdvisorWithClient(client InvokeModelAPI, cfg config.BedrockConfig, logger *zap.Logger, textProcessor *utils.TextProcessor) *Advisor {
	return &Advisor{
		client:        client,
		modelID:       cfg.ModelID,
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

	payload, err := a.requestBody(prompt)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request payload: %w", err)
	}

	resp, err := a.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(a.modelID),
		Body:        payload,
		Accept:      aws.String("application/json"),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to invoke Bedrock model: %w", err)
	}

	text, err := a.responseText(resp.Body)
	if err != nil {
		return nil, err
	}

	factors, err := core.ParseAdvisorResponse(text, input.Vocabulary)
	if err != nil {
		return nil, err
	}

	a.logger.Debug("Bedrock advisor assessed account",
		zap.String("account", input.AccountEmail),
		zap.String("model", a.modelID),
		zap.Strings("factors", factors))
	return factors, nil
}

func (a *Advisor) requestBody(prompt string) ([]byte, error) {
	switch {
	case a.isAnthropicModel():
		return json.Marshal(map[string]interface{}{
			"anthropic_version": "bedrock-2023-05-31",
			"max_tokens":        a.maxTokens,
			"temperature":       a.temperature,
			"top_p":             a.topP,
			"messages": []map[string]interface{}{
				{"role": "user", "content": prompt},
			},
		})
	case a.isAmazonTitanModel():
		return json.Marshal(map[string]interface{}{
			"inputText": prompt,
			"textGenerationConfig": map[string]interface{}{
				"maxTokenCount": a.maxTokens,
				"temperature":   a.temperature,
				"topP":          a.topP,
			},
		})
	default:
		return json.Marshal(map[string]interface{}{
			"prompt":      prompt,
			"max_tokens":  a.maxTokens,
			"temperature": a.temperature,
			"top_p":       a.topP,
		})
	}
}

func (a *Advisor) responseText(body []byte) (string, error) {
	switch {
	case a.isAnthropicModel():
		var claudeResp struct {
			Content []struct {
				Type string `json:"type"`
				Text string `json:"text"`
			} `json:"content"`
		}
		if err := json.Unmarshal(body, &claudeResp); err != nil {
			return "", fmt.Errorf("failed to unmarshal Claude response: %w", err)
		}
		var b strings.Builder
		for _, c := range claudeResp.Content {
			if c.Type == "text" {
				b.WriteString(c.Text)
			}
		}
		if b.Len() == 0 {
			return "", fmt.Errorf("empty response from Claude model")
		}
		return b.String(), nil
	case a.isAmazonTitanModel():
		var titanResp struct {
			Results []struct {
				OutputText string `json:"outputText"`
			} `json:"results"`
		}
		if err := json.Unmarshal(body, &titanResp); err != nil {
			return "", fmt.Errorf("failed to unmarshal Titan response: %w", err)
		}
		if len(titanResp.Results) == 0 {
			return "", fmt.Errorf("empty response from Titan model")
		}
		return titanResp.Results[0].OutputText, nil
	default:
		var genericResp struct {
			Output   string `json:"output"`
			Text     string `json:"text"`
			Response string `json:"response"`
		}
		if err := json.Unmarshal(body, &genericResp); err != nil {
			return "", fmt.Errorf("failed to unmarshal generic response: %w", err)
		}
		for _, s := range []string{genericResp.Output, genericResp.Text, genericResp.Response} {
			if s != "" {
				return s, nil
			}
		}
		return string(body), nil
	}
}

// isAnthropicModel checks if the model is an Anthropic Claude model
func (a *Advisor) isAnthropicModel() bool {
	return strings.Contains(a.modelID, "anthropic.claude")
}

// isAmazonTitanModel checks if the model is an Amazon Titan model
func (a *Advisor) isAmazonTitanModel() bool {
	return strings.HasPrefix(a.modelID, "amazon.titan")
}
