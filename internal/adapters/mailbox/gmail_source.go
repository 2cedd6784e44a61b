package mailbox

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/mikey/bgc-lifecycle/internal/core"
)

// ServiceFactory returns a Gmail client acting as the given account
type ServiceFactory func(ctx context.Context, accountEmail string) (*gmail.Service, error)

// DelegatedServiceFactory impersonates each account through a service
// account with domain-wide delegation
func DelegatedServiceFactory(credentialsJSON []byte) (ServiceFactory, error) {
	if _, err := google.JWTConfigFromJSON(credentialsJSON, gmail.GmailReadonlyScope); err != nil {
		return nil, fmt.Errorf("invalid service account credentials: %w", err)
	}

	return func(ctx context.Context, accountEmail string) (*gmail.Service, error) {
		cfg, err := google.JWTConfigFromJSON(credentialsJSON, gmail.GmailReadonlyScope)
		if err != nil {
			return nil, err
		}
		cfg.Subject = accountEmail
		return gmail.NewService(ctx, option.WithTokenSource(cfg.TokenSource(ctx)))
	}, nil
}

// GmailOptions tunes the Gmail source
type GmailOptions struct {
	Query              string
	MaxResults         int64
	BreakerMaxFailures uint32
	BreakerTimeout     time.Duration
}

// GmailSource lists account mail through the Gmail API. Calls go through a
// circuit breaker so an outage fails fast instead of stalling every worker.
type GmailSource struct {
	services ServiceFactory
	opts     GmailOptions
	cb       *gobreaker.CircuitBreaker
	logger   *zap.Logger
}

// NewGmailSource creates a Gmail source from service account credentials
func NewGmailSource(credentialsJSON []byte, opts GmailOptions, logger *zap.Logger) (*GmailSource, error) {
	factory, err := DelegatedServiceFactory(credentialsJSON)
	if err != nil {
		return nil, err
	}
	return NewGmailSourceWithFactory(factory, opts, logger), nil
}

// NewGmailSourceWithFactory creates a Gmail source with a custom client factory
func NewGmailSourceWithFactory(factory ServiceFactory, opts GmailOptions, logger *zap.Logger) *GmailSource {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.MaxResults <= 0 {
		opts.MaxResults = 500
	}
	if opts.BreakerMaxFailures == 0 {
		opts.BreakerMaxFailures = 5
	}
	if opts.BreakerTimeout <= 0 {
		opts.BreakerTimeout = 30 * time.Second
	}

	maxFailures := opts.BreakerMaxFailures
	settings := gobreaker.Settings{
		Name:        "gmail-api",
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     opts.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !tripsBreaker(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	}

	return &GmailSource{
		services: factory,
		opts:     opts,
		cb:       gobreaker.NewCircuitBreaker(settings),
		logger:   logger,
	}
}

// BreakerState returns the circuit breaker state
func (s *GmailSource) BreakerState() string {
	return s.cb.State().String()
}

// ListMessages lists one label of the account. mailboxID is a Gmail label
// ID such as INBOX.
func (s *GmailSource) ListMessages(ctx context.Context, accountEmail, mailboxID string, since *time.Time) ([]core.RawMessage, error) {
	svc, err := s.services(ctx, accountEmail)
	if err != nil {
		return nil, fmt.Errorf("failed to create gmail client for %s: %w", accountEmail, err)
	}

	var ids []string
	err = s.execute(func() error {
		ids = ids[:0]
		req := svc.Users.Messages.List("me").LabelIds(mailboxID).MaxResults(s.opts.MaxResults)
		if q := s.query(since); q != "" {
			req = req.Q(q)
		}
		return req.Pages(ctx, func(resp *gmail.ListMessagesResponse) error {
			for _, m := range resp.Messages {
				ids = append(ids, m.Id)
			}
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list %s for %s: %w", mailboxID, accountEmail, err)
	}

	messages := make([]core.RawMessage, 0, len(ids))
	for _, id := range ids {
		var msg *gmail.Message
		err := s.execute(func() error {
			var err error
			msg, err = svc.Users.Messages.Get("me", id).
				Format("metadata").
				MetadataHeaders("From", "Subject", "Date").
				Context(ctx).
				Do()
			return err
		})
		if err != nil {
			if isNotFound(err) {
				continue
			}
			return nil, fmt.Errorf("failed to fetch message %s: %w", id, err)
		}

		raw := convertMessage(msg, mailboxID)
		if inWindow(raw.Date, since) {
			messages = append(messages, raw)
		}
	}

	s.logger.Debug("Listed gmail messages",
		zap.String("account", accountEmail),
		zap.String("mailbox", mailboxID),
		zap.Int("messages", len(messages)))
	return messages, nil
}

func (s *GmailSource) query(since *time.Time) string {
	parts := make([]string, 0, 2)
	if s.opts.Query != "" {
		parts = append(parts, s.opts.Query)
	}
	if since != nil {
		parts = append(parts, fmt.Sprintf("after:%d", since.Unix()))
	}
	return strings.Join(parts, " ")
}

func (s *GmailSource) execute(fn func() error) error {
	_, err := s.cb.Execute(func() (interface{}, error) {
		return nil, fn()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		s.logger.Warn("Gmail call rejected by circuit breaker", zap.String("state", s.cb.State().String()))
	}
	return err
}

// tripsBreaker reports whether err indicates the API itself is unhealthy
func tripsBreaker(err error) bool {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusTooManyRequests, http.StatusInternalServerError,
			http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return true
		default:
			return false
		}
	}
	return !errors.Is(err, context.Canceled)
}

func isNotFound(err error) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound
}

func convertMessage(msg *gmail.Message, folder string) core.RawMessage {
	var headers []*gmail.MessagePartHeader
	if msg.Payload != nil {
		headers = msg.Payload.Headers
	}

	date := time.Unix(0, msg.InternalDate*int64(time.Millisecond)).UTC()
	if msg.InternalDate == 0 {
		if parsed, err := parseDateHeader(header(headers, "Date")); err == nil {
			date = parsed.UTC()
		}
	}

	return core.RawMessage{
		Subject: decodeEncodedHeader(header(headers, "Subject")),
		Sender:  core.ParseSender(decodeEncodedHeader(header(headers, "From"))),
		Date:    date,
		Folder:  folder,
	}
}

func header(headers []*gmail.MessagePartHeader, name string) string {
	for _, h := range headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}
