package factory

import (
	"go.uber.org/zap"

	"github.com/mikey/bgc-lifecycle/internal/config"
	"github.com/mikey/bgc-lifecycle/internal/core"
)

// EngineFactory creates the scan engine from configuration
type EngineFactory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewEngineFactory creates a new EngineFactory
func NewEngineFactory(cfg *config.Config, logger *zap.Logger) *EngineFactory {
	return &EngineFactory{
		cfg:    cfg,
		logger: logger,
	}
}

// EngineDeps are the collaborators of the engine. Events, Advisor and
// Senders may be nil.
type EngineDeps struct {
	Source     core.MailboxSource
	Accounts   core.AccountStore
	Events     core.EventRepository
	Classifier *core.Classifier
	Advisor    core.RiskAdvisor
	Senders    core.SenderFilter
}

// CreateEngine builds the engine and its risk scorer
func (f *EngineFactory) CreateEngine(deps EngineDeps) (*core.Engine, error) {
	engineCfg, err := f.cfg.GetEngine()
	if err != nil {
		return nil, err
	}
	sourceCfg, err := f.cfg.GetSource()
	if err != nil {
		return nil, err
	}
	riskCfg, err := f.cfg.GetRisk()
	if err != nil {
		return nil, err
	}

	opts := core.EngineOptions{
		Workers:            engineCfg.Workers,
		CallTimeout:        engineCfg.CallTimeout,
		MaxAttempts:        engineCfg.MaxAttempts,
		BackoffInitial:     engineCfg.BackoffInitial,
		BackoffMax:         engineCfg.BackoffMax,
		Mailboxes:          sourceCfg.Mailboxes,
		IncrementalOverlap: engineCfg.IncrementalOverlap,
		AdvisorVocabulary:  riskCfg.ExternalFactors,
	}

	var options []core.EngineOption
	if deps.Events != nil {
		options = append(options, core.WithEventRepository(deps.Events))
	}
	if deps.Advisor != nil {
		options = append(options, core.WithRiskAdvisor(deps.Advisor))
	}
	if deps.Senders != nil {
		options = append(options, core.WithSenderFilter(deps.Senders))
	}

	return core.NewEngine(
		deps.Source,
		deps.Accounts,
		deps.Classifier,
		core.NewRiskScorer(riskCfg.Policy),
		f.logger,
		opts,
		options...,
	), nil
}
