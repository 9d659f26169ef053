package ingest

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/emersion/go-message/mail"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/responsum/internal/common"
)

// MailMessage is an unread email pulled from the configured mailbox
type MailMessage struct {
	UID     uint32
	From    string
	Subject string
	Date    time.Time
	Body    string
}

// Mailbox polls an IMAP inbox for unread messages to ingest. Messages
// are addressed by UID so flag updates survive other clients touching
// the mailbox between polls.
type Mailbox struct {
	config *common.MailboxConfig
	logger arbor.ILogger
}

// NewMailbox creates a new mailbox poller
func NewMailbox(config *common.MailboxConfig, logger arbor.ILogger) *Mailbox {
	return &Mailbox{
		config: config,
		logger: logger,
	}
}

// Configured reports whether the mailbox source has enough configuration to connect
func (m *Mailbox) Configured() bool {
	return m.config != nil && m.config.Enabled &&
		m.config.Host != "" && m.config.Username != "" && m.config.Password != ""
}

// Poll fetches unread messages matching the subject filter and hands each
// to handle. Messages are marked as read only after handle succeeds, so
// failed messages are retried on the next poll.
func (m *Mailbox) Poll(ctx context.Context, handle func(MailMessage) error) (handled, failed int, err error) {
	c, err := m.dial()
	if err != nil {
		return 0, 0, err
	}
	defer c.Logout()

	if _, err := c.Select("INBOX", false); err != nil {
		return 0, 0, fmt.Errorf("failed to select inbox: %w", err)
	}

	criteria := imap.NewSearchCriteria()
	criteria.WithoutFlags = []string{imap.SeenFlag}
	uids, err := c.UidSearch(criteria)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to search for unread messages: %w", err)
	}
	if len(uids) == 0 {
		m.logger.Debug().Str("host", m.config.Host).Msg("No unread messages")
		return 0, 0, nil
	}

	m.logger.Info().
		Str("host", m.config.Host).
		Int("unread", len(uids)).
		Msg("Fetching unread messages")

	seqSet := new(imap.SeqSet)
	seqSet.AddNum(uids...)

	section := &imap.BodySectionName{}
	items := []imap.FetchItem{imap.FetchEnvelope, imap.FetchFlags, imap.FetchUid, section.FetchItem()}

	messages := make(chan *imap.Message, len(uids))
	done := make(chan error, 1)
	go func() {
		done <- c.UidFetch(seqSet, items, messages)
	}()

	// Collect everything before processing so no second command runs
	// while the fetch is still streaming on the connection
	collected := make([]*imap.Message, 0, len(uids))
	for msg := range messages {
		collected = append(collected, msg)
	}
	if err := <-done; err != nil {
		return 0, 0, fmt.Errorf("failed to fetch messages: %w", err)
	}

	for _, msg := range collected {
		if ctx.Err() != nil {
			return handled, failed, ctx.Err()
		}

		decoded, err := decodeMessage(msg, section)
		if err != nil {
			m.logger.Warn().Err(err).Uint32("uid", msg.Uid).Msg("Skipping unreadable message")
			failed++
			continue
		}
		if !m.matchesFilter(decoded.Subject) {
			m.logger.Debug().Str("subject", decoded.Subject).Msg("Subject does not match filter")
			continue
		}

		if err := handle(*decoded); err != nil {
			m.logger.Warn().Err(err).Str("subject", decoded.Subject).Msg("Failed to process message")
			failed++
			continue
		}
		if err := m.markSeen(c, decoded.UID); err != nil {
			m.logger.Warn().Err(err).Uint32("uid", decoded.UID).Msg("Failed to mark message as read")
		}
		handled++
	}

	return handled, failed, nil
}

func (m *Mailbox) dial() (*client.Client, error) {
	port := m.config.Port
	if port == 0 {
		port = 993
	}
	addr := fmt.Sprintf("%s:%d", m.config.Host, port)

	var c *client.Client
	var err error
	if m.config.UseTLS {
		c, err = client.DialTLS(addr, nil)
	} else {
		c, err = client.Dial(addr)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", addr, err)
	}

	if err := c.Login(m.config.Username, m.config.Password); err != nil {
		c.Logout()
		return nil, fmt.Errorf("login failed for %s: %w", m.config.Username, err)
	}

	m.logger.Debug().Str("host", m.config.Host).Msg("Connected to IMAP server")
	return c, nil
}

func (m *Mailbox) matchesFilter(subject string) bool {
	if m.config.SubjectFilter == "" {
		return true
	}
	return strings.Contains(strings.ToLower(subject), strings.ToLower(m.config.SubjectFilter))
}

func (m *Mailbox) markSeen(c *client.Client, uid uint32) error {
	seqSet := new(imap.SeqSet)
	seqSet.AddNum(uid)
	item := imap.FormatFlagsOp(imap.AddFlags, true)
	flags := []interface{}{imap.SeenFlag}
	return c.UidStore(seqSet, item, flags, nil)
}

func decodeMessage(msg *imap.Message, section *imap.BodySectionName) (*MailMessage, error) {
	if msg.Envelope == nil {
		return nil, fmt.Errorf("message has no envelope")
	}

	decoded := &MailMessage{
		UID:     msg.Uid,
		Subject: msg.Envelope.Subject,
		Date:    msg.Envelope.Date,
	}
	if len(msg.Envelope.From) > 0 {
		decoded.From = msg.Envelope.From[0].Address()
	}

	body, err := textBody(msg.GetBody(section))
	if err != nil {
		return nil, err
	}
	decoded.Body = body
	return decoded, nil
}

// textBody pulls the first text/plain part out of a MIME message
func textBody(r imap.Literal) (string, error) {
	if r == nil {
		return "", fmt.Errorf("message has no body")
	}

	mr, err := mail.CreateReader(r)
	if err != nil {
		return "", fmt.Errorf("failed to parse message: %w", err)
	}

	for {
		p, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("failed to read message part: %w", err)
		}

		h, ok := p.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}
		contentType, _, err := h.ContentType()
		if err != nil || contentType != "text/plain" {
			continue
		}

		body, err := io.ReadAll(p.Body)
		if err != nil {
			return "", fmt.Errorf("failed to read message body: %w", err)
		}
		return strings.TrimSpace(string(body)), nil
	}

	return "", fmt.Errorf("no text/plain part found")
}
