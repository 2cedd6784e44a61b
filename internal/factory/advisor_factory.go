package factory

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/mikey/bgc-lifecycle/internal/adapters/bedrock"
	"github.com/mikey/bgc-lifecycle/internal/adapters/gemini"
	"github.com/mikey/bgc-lifecycle/internal/adapters/openai"
	"github.com/mikey/bgc-lifecycle/internal/config"
	"github.com/mikey/bgc-lifecycle/internal/core"
	"github.com/mikey/bgc-lifecycle/internal/utils"
)

// AdvisorFactory creates the risk advisor selected by risk.advisor
type AdvisorFactory struct {
	cfg           *config.Config
	logger        *zap.Logger
	textProcessor *utils.TextProcessor
}

// NewAdvisorFactory creates a new AdvisorFactory
func NewAdvisorFactory(cfg *config.Config, logger *zap.Logger, textProcessor *utils.TextProcessor) *AdvisorFactory {
	return &AdvisorFactory{
		cfg:           cfg,
		logger:        logger,
		textProcessor: textProcessor,
	}
}

// CreateRiskAdvisor returns nil when no advisor is configured
func (f *AdvisorFactory) CreateRiskAdvisor(ctx context.Context) (core.RiskAdvisor, error) {
	riskCfg, err := f.cfg.GetRisk()
	if err != nil {
		return nil, err
	}

	switch riskCfg.Advisor {
	case "none", "":
		return nil, nil
	case "bedrock":
		advisor, err := bedrock.NewAdvisor(ctx, f.cfg.GetBedrock(), f.logger, f.textProcessor)
		if err != nil {
			return nil, err
		}
		return advisor, nil
	case "gemini":
		advisor, err := gemini.NewAdvisor(ctx, f.cfg.GetGemini(), f.logger, f.textProcessor)
		if err != nil {
			return nil, err
		}
		return advisor, nil
	case "openai":
		openaiCfg := f.cfg.GetOpenAI()
		if openaiCfg.BaseURL != "" {
			return openai.NewAdvisorWithBaseURL(openaiCfg, openaiCfg.BaseURL, f.logger, f.textProcessor), nil
		}
		return openai.NewAdvisor(openaiCfg, f.logger, f.textProcessor), nil
	default:
		return nil, fmt.Errorf("unsupported risk advisor: %s", riskCfg.Advisor)
	}
}
