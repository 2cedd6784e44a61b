package factory

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/mikey/bgc-lifecycle/internal/config"
	"github.com/mikey/bgc-lifecycle/internal/core"
	"github.com/mikey/bgc-lifecycle/internal/utils"
	"github.com/mikey/bgc-lifecycle/internal/whitelist"
)

// ClassifierFactory creates the text processor, classifier and sender filter
type ClassifierFactory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewClassifierFactory creates a new ClassifierFactory
func NewClassifierFactory(cfg *config.Config, logger *zap.Logger) *ClassifierFactory {
	return &ClassifierFactory{
		cfg:    cfg,
		logger: logger,
	}
}

// CreateTextProcessor creates a new TextProcessor
func (f *ClassifierFactory) CreateTextProcessor() *utils.TextProcessor {
	return utils.NewTextProcessor(f.logger)
}

// CreateClassifier builds the classifier from configured rules, falling
// back to the built-in rule set
func (f *ClassifierFactory) CreateClassifier(text *utils.TextProcessor) (*core.Classifier, error) {
	rules, err := f.cfg.GetClassifierRules()
	if err != nil {
		return nil, fmt.Errorf("invalid classifier rules: %w", err)
	}
	if len(rules) == 0 {
		rules = core.DefaultClassifierRules()
	} else {
		f.logger.Info("Loaded classifier rules from configuration", zap.Int("rules", len(rules)))
	}
	return core.NewClassifier(rules, text)
}

// CreateSenderFilter builds the trusted sender checker
func (f *ClassifierFactory) CreateSenderFilter() (*whitelist.Checker, error) {
	source, err := f.cfg.GetSource()
	if err != nil {
		return nil, err
	}
	checker := whitelist.NewChecker(source.TrustedDomains, f.logger)
	if checker.Enabled() {
		f.logger.Info("Loaded trusted sender domains", zap.Strings("domains", source.TrustedDomains))
	}
	return checker, nil
}
