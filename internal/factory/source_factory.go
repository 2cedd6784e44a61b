package factory

import (
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/mikey/bgc-lifecycle/internal/adapters/mailbox"
	"github.com/mikey/bgc-lifecycle/internal/config"
	"github.com/mikey/bgc-lifecycle/internal/core"
	"github.com/mikey/bgc-lifecycle/internal/ports"
)

// SourceFactory creates the mailbox source selected by source.type
type SourceFactory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewSourceFactory creates a new SourceFactory
func NewSourceFactory(cfg *config.Config, logger *zap.Logger) *SourceFactory {
	return &SourceFactory{
		cfg:    cfg,
		logger: logger,
	}
}

// CreateMailboxSource creates the configured mailbox source. Sources that
// receive mail themselves are also returned as a ports.Service to start.
func (f *SourceFactory) CreateMailboxSource() (core.MailboxSource, ports.Service, error) {
	sourceCfg, err := f.cfg.GetSource()
	if err != nil {
		return nil, nil, err
	}

	switch sourceCfg.Type {
	case "dir":
		f.logger.Info("Using directory mailbox source", zap.String("path", sourceCfg.DirPath))
		return mailbox.NewDirSource(sourceCfg.DirPath, f.logger), nil, nil
	case "gmail":
		credentials, err := os.ReadFile(sourceCfg.Gmail.CredentialsFile)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to read gmail credentials: %w", err)
		}
		source, err := mailbox.NewGmailSource(credentials, mailbox.GmailOptions{
			Query:              sourceCfg.Gmail.Query,
			MaxResults:         sourceCfg.Gmail.MaxResults,
			BreakerMaxFailures: sourceCfg.Gmail.BreakerMaxFailures,
			BreakerTimeout:     sourceCfg.Gmail.BreakerTimeout,
		}, f.logger)
		if err != nil {
			return nil, nil, err
		}
		f.logger.Info("Using Gmail mailbox source")
		return source, nil, nil
	case "smtp":
		inbox := mailbox.NewSMTPInbox(f.logger, mailbox.SMTPInboxOptions{
			ListenAddress:   sourceCfg.SMTP.ListenAddress,
			Domain:          sourceCfg.SMTP.Domain,
			MaxMessageBytes: sourceCfg.SMTP.MaxMessageBytes,
			Retention:       sourceCfg.SMTP.Retention,
		})
		f.logger.Info("Using SMTP inbox mailbox source", zap.String("address", sourceCfg.SMTP.ListenAddress))
		return inbox, inbox, nil
	default:
		return nil, nil, fmt.Errorf("unsupported source type: %s", sourceCfg.Type)
	}
}
