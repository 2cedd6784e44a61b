package mailbox

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/emersion/go-smtp"
	"go.uber.org/zap"

	"github.com/mikey/bgc-lifecycle/internal/core"
)

// DefaultMailbox is the folder SMTP deliveries are filed under
const DefaultMailbox = "INBOX"

// SMTPInboxOptions configures the SMTP inbox
type SMTPInboxOptions struct {
	ListenAddress   string
	Domain          string
	MaxMessageBytes int64
	Retention       time.Duration
}

// SMTPInbox is a MailboxSource fed by SMTP delivery, for example a
// journaling rule that copies onboarding mail to this listener. Each
// RCPT TO address is treated as the account the message belongs to.
type SMTPInbox struct {
	logger *zap.Logger
	opts   SMTPInboxOptions
	server *smtp.Server
	now    func() time.Time

	mu       sync.RWMutex
	messages map[string][]core.RawMessage
}

// NewSMTPInbox creates a new SMTP inbox
func NewSMTPInbox(logger *zap.Logger, opts SMTPInboxOptions) *SMTPInbox {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Domain == "" {
		opts.Domain = "localhost"
	}
	if opts.MaxMessageBytes <= 0 {
		opts.MaxMessageBytes = 10 * 1024 * 1024
	}
	return &SMTPInbox{
		logger:   logger,
		opts:     opts,
		now:      time.Now,
		messages: make(map[string][]core.RawMessage),
	}
}

func (b *SMTPInbox) newServer() *smtp.Server {
	server := smtp.NewServer(&smtpBackend{inbox: b})
	server.Addr = b.opts.ListenAddress
	server.Domain = b.opts.Domain
	server.ReadTimeout = 30 * time.Second
	server.WriteTimeout = 30 * time.Second
	server.MaxMessageBytes = b.opts.MaxMessageBytes
	server.MaxRecipients = 50
	return server
}

// Start listens on the configured address
func (b *SMTPInbox) Start() error {
	listener, err := net.Listen("tcp", b.opts.ListenAddress)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", b.opts.ListenAddress, err)
	}
	b.Serve(listener)
	return nil
}

// Serve accepts SMTP connections on l in the background
func (b *SMTPInbox) Serve(l net.Listener) {
	b.server = b.newServer()
	b.logger.Info("SMTP inbox starting", zap.String("address", l.Addr().String()))

	go func() {
		if err := b.server.Serve(l); err != nil && !errors.Is(err, smtp.ErrServerClosed) {
			b.logger.Error("SMTP server error", zap.Error(err))
		}
	}()
}

// Stop stops the SMTP inbox
func (b *SMTPInbox) Stop() error {
	if b.server != nil {
		return b.server.Close()
	}
	return nil
}

// ListMessages returns the delivered messages of one account mailbox
func (b *SMTPInbox) ListMessages(ctx context.Context, accountEmail, mailboxID string, since *time.Time) ([]core.RawMessage, error) {
	b.prune()

	b.mu.RLock()
	defer b.mu.RUnlock()

	var out []core.RawMessage
	for _, m := range b.messages[strings.ToLower(accountEmail)] {
		if !strings.EqualFold(m.Folder, mailboxID) || !inWindow(m.Date, since) {
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

// Deliver files a raw message under every recipient
func (b *SMTPInbox) Deliver(envelopeFrom string, recipients []string, raw []byte) error {
	msg, err := parseMessage(raw, envelopeFrom, DefaultMailbox, b.now())
	if err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for _, rcpt := range recipients {
		account := core.ParseSender(rcpt).Address
		if account == "" {
			continue
		}
		b.messages[account] = append(b.messages[account], msg)
	}

	b.logger.Debug("Delivered message to SMTP inbox",
		zap.String("from", msg.Sender.Address),
		zap.Strings("recipients", recipients),
		zap.String("subject", msg.Subject))
	return nil
}

// prune drops messages older than the retention window
func (b *SMTPInbox) prune() {
	if b.opts.Retention <= 0 {
		return
	}
	cutoff := b.now().Add(-b.opts.Retention)

	b.mu.Lock()
	defer b.mu.Unlock()
	for account, msgs := range b.messages {
		kept := msgs[:0]
		for _, m := range msgs {
			if m.Date.After(cutoff) {
				kept = append(kept, m)
			}
		}
		if len(kept) == 0 {
			delete(b.messages, account)
			continue
		}
		b.messages[account] = kept
	}
}

// smtpBackend implements the go-smtp Backend interface
type smtpBackend struct {
	inbox *SMTPInbox
}

// NewSession creates a new SMTP session
func (be *smtpBackend) NewSession(_ *smtp.Conn) (smtp.Session, error) {
	return &smtpSession{inbox: be.inbox}, nil
}

// smtpSession implements the go-smtp Session interface
type smtpSession struct {
	inbox      *SMTPInbox
	sender     string
	recipients []string
}

// Reset resets the session state
func (s *smtpSession) Reset() {
	s.sender = ""
	s.recipients = nil
}

// Logout ends the session
func (s *smtpSession) Logout() error {
	return nil
}

// Mail sets the sender address
func (s *smtpSession) Mail(from string, _ *smtp.MailOptions) error {
	s.sender = from
	return nil
}

// Rcpt adds a recipient
func (s *smtpSession) Rcpt(to string, _ *smtp.RcptOptions) error {
	s.recipients = append(s.recipients, to)
	return nil
}

// Data reads and files the message
func (s *smtpSession) Data(r io.Reader) error {
	raw, err := io.ReadAll(r)
	if err != nil {
		s.inbox.logger.Error("Failed to read message data", zap.Error(err))
		return err
	}
	if err := s.inbox.Deliver(s.sender, s.recipients, raw); err != nil {
		s.inbox.logger.Warn("Rejecting unparseable message", zap.String("from", s.sender), zap.Error(err))
		return &smtp.SMTPError{
			Code:         554,
			EnhancedCode: smtp.EnhancedCode{5, 6, 0},
			Message:      "Message could not be parsed",
		}
	}
	return nil
}
