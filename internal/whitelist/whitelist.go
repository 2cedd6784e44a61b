package whitelist

import (
	"strings"

	"go.uber.org/zap"

	"github.com/mikey/bgc-lifecycle/internal/core"
)

// Checker decides which senders may produce lifecycle events. Entries are
// either full addresses ("noreply@checkr.com"), bare domains ("checkr.com",
// which also covers its subdomains) or "*" to trust everyone.
type Checker struct {
	addresses map[string]struct{}
	domains   []string
	allowAll  bool
	logger    *zap.Logger
}

// NewChecker creates a new trusted sender checker
func NewChecker(entries []string, logger *zap.Logger) *Checker {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Checker{
		addresses: make(map[string]struct{}),
		logger:    logger,
	}
	for _, entry := range entries {
		entry = strings.ToLower(strings.TrimSpace(entry))
		switch {
		case entry == "":
			continue
		case entry == "*":
			c.allowAll = true
		case strings.Contains(entry, "@"):
			c.addresses[entry] = struct{}{}
		default:
			c.domains = append(c.domains, strings.TrimPrefix(entry, "."))
		}
	}

	if len(entries) > 0 {
		logger.Info("Initialized trusted sender checker",
			zap.Strings("domains", c.domains),
			zap.Int("addresses", len(c.addresses)),
			zap.Bool("allow_all", c.allowAll))
	}
	return c
}

// Enabled reports whether any entry was configured
func (c *Checker) Enabled() bool {
	return c.allowAll || len(c.domains) > 0 || len(c.addresses) > 0
}

// IsWhitelisted checks whether the sender is trusted. from may be a bare
// address or a full "Name <address>" header.
func (c *Checker) IsWhitelisted(from string) bool {
	if c.allowAll {
		return true
	}

	sender := core.ParseSender(from)
	if sender.Address == "" {
		return false
	}
	if _, ok := c.addresses[sender.Address]; ok {
		return true
	}

	domain := sender.Domain()
	if domain == "" {
		return false
	}
	for _, trusted := range c.domains {
		if domain == trusted || strings.HasSuffix(domain, "."+trusted) {
			return true
		}
	}

	c.logger.Debug("Dropping message from untrusted sender",
		zap.String("sender", sender.Address))
	return false
}
