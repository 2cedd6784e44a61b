package mailbox

import (
	"bytes"
	"context"
	"net"
	"testing"
	"time"

	"github.com/emersion/go-smtp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestSMTPInbox_ReceivesOverSMTP(t *testing.T) {
	inbox := NewSMTPInbox(zap.NewNop(), SMTPInboxOptions{Domain: "test.local"})
	inbox.now = func() time.Time { return t0 }

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	inbox.Serve(listener)
	defer inbox.Stop()

	c, err := smtp.Dial(listener.Addr().String())
	require.NoError(t, err)
	defer c.Close()

	raw := rawEmail("notify@checkr.com", "Background check complete", t0.Add(-time.Hour))
	require.NoError(t, c.SendMail("notify@checkr.com", []string{"A@x.com", "b@x.com"}, bytes.NewReader(raw)))
	require.NoError(t, c.Quit())

	ctx := context.Background()
	for _, account := range []string{"a@x.com", "b@x.com"} {
		msgs, err := inbox.ListMessages(ctx, account, DefaultMailbox, nil)
		require.NoError(t, err)
		require.Len(t, msgs, 1, account)
		assert.Equal(t, "Background check complete", msgs[0].Subject)
		assert.Equal(t, "checkr.com", msgs[0].Sender.Domain())
	}
}

func TestSMTPInbox_WindowAndFolder(t *testing.T) {
	inbox := NewSMTPInbox(nil, SMTPInboxOptions{})
	inbox.now = func() time.Time { return t0 }

	require.NoError(t, inbox.Deliver("", []string{"a@x.com"}, rawEmail("notify@checkr.com", "old", t0.Add(-72*time.Hour))))
	require.NoError(t, inbox.Deliver("", []string{"a@x.com"}, rawEmail("notify@checkr.com", "new", t0)))

	ctx := context.Background()
	since := t0.Add(-24 * time.Hour)
	msgs, err := inbox.ListMessages(ctx, "a@x.com", "inbox", &since)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "new", msgs[0].Subject)

	msgs, err = inbox.ListMessages(ctx, "a@x.com", "Archive", nil)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestSMTPInbox_Retention(t *testing.T) {
	inbox := NewSMTPInbox(nil, SMTPInboxOptions{Retention: 48 * time.Hour})
	inbox.now = func() time.Time { return t0 }

	require.NoError(t, inbox.Deliver("", []string{"a@x.com"}, rawEmail("notify@checkr.com", "expired", t0.Add(-72*time.Hour))))
	require.NoError(t, inbox.Deliver("", []string{"a@x.com"}, rawEmail("notify@checkr.com", "kept", t0.Add(-time.Hour))))

	msgs, err := inbox.ListMessages(context.Background(), "a@x.com", DefaultMailbox, nil)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "kept", msgs[0].Subject)
}
