package mailbox

import (
	"bytes"
	"fmt"
	"io"
	"mime"
	"net/mail"
	"strings"
	"time"

	"golang.org/x/text/encoding/htmlindex"

	"github.com/mikey/bgc-lifecycle/internal/core"
)

// headerDecoder decodes RFC 2047 encoded words in any charset x/text knows
var headerDecoder = &mime.WordDecoder{
	CharsetReader: func(charset string, input io.Reader) (io.Reader, error) {
		enc, err := htmlindex.Get(charset)
		if err != nil {
			return nil, fmt.Errorf("unsupported charset %q: %w", charset, err)
		}
		return enc.NewDecoder().Reader(input), nil
	},
}

// decodeEncodedHeader decodes a header value, returning the raw value when
// it cannot be decoded
func decodeEncodedHeader(value string) string {
	decoded, err := headerDecoder.DecodeHeader(value)
	if err != nil {
		return value
	}
	return decoded
}

// parseMessage reads the headers the classifier needs from a raw RFC 5322
// message. The envelope sender and fallback date are used when the headers
// are missing or unparseable.
func parseMessage(raw []byte, envelopeFrom, folder string, fallbackDate time.Time) (core.RawMessage, error) {
	msg, err := mail.ReadMessage(bytes.NewReader(raw))
	if err != nil {
		return core.RawMessage{}, fmt.Errorf("failed to parse email message: %w", err)
	}

	from := decodeEncodedHeader(msg.Header.Get("From"))
	if strings.TrimSpace(from) == "" {
		from = envelopeFrom
	}

	date, err := msg.Header.Date()
	if err != nil {
		date = fallbackDate
	}

	return core.RawMessage{
		Subject: decodeEncodedHeader(msg.Header.Get("Subject")),
		Sender:  core.ParseSender(from),
		Date:    date.UTC(),
		Folder:  folder,
	}, nil
}

// inWindow reports whether a message dated date passes the since filter
func inWindow(date time.Time, since *time.Time) bool {
	return since == nil || !date.Before(*since)
}

func parseDateHeader(value string) (time.Time, error) {
	return mail.ParseDate(strings.TrimSpace(value))
}
