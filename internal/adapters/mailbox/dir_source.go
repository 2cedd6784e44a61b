package mailbox

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mikey/bgc-lifecycle/internal/core"
)

// DirSource reads exported mailboxes from disk, laid out as
// <root>/<account email>/<mailbox>/*.eml
type DirSource struct {
	root   string
	logger *zap.Logger
}

// NewDirSource creates a directory-backed mailbox source
func NewDirSource(root string, logger *zap.Logger) *DirSource {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DirSource{root: root, logger: logger}
}

// ListMessages parses every .eml file in the account's mailbox directory.
// A missing account or mailbox directory is an empty mailbox.
func (s *DirSource) ListMessages(ctx context.Context, accountEmail, mailboxID string, since *time.Time) ([]core.RawMessage, error) {
	if _, err := os.Stat(s.root); err != nil {
		return nil, fmt.Errorf("mailbox root unavailable: %w", err)
	}

	dir := filepath.Join(s.root, strings.ToLower(accountEmail), mailboxID)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read mailbox %s: %w", dir, err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".eml") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	messages := make([]core.RawMessage, 0, len(names))
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		path := filepath.Join(dir, name)
		info, err := os.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("failed to stat %s: %w", path, err)
		}
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}

		msg, err := parseMessage(raw, "", mailboxID, info.ModTime())
		if err != nil {
			s.logger.Warn("Skipping unparseable message", zap.String("path", path), zap.Error(err))
			continue
		}
		if inWindow(msg.Date, since) {
			messages = append(messages, msg)
		}
	}

	s.logger.Debug("Read mailbox directory",
		zap.String("account", accountEmail),
		zap.String("mailbox", mailboxID),
		zap.Int("messages", len(messages)))
	return messages, nil
}
