package smtp

import (
	"bufio"
	"bytes"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/emersion/go-message/textproto"
	"github.com/emersion/go-smtp"
	"github.com/google/uuid"
	"github.com/mail4one/mail4one/internal/maildir"
	"github.com/mail4one/mail4one/internal/metrics"
)

// sslHeader records the transport the message arrived over.
const sslHeader = "X-SSL"

// Session implements the go-smtp Session interface for one inbound
// connection.
type Session struct {
	backend    *Backend
	flavor     string
	requireTLS bool
	secured    func() bool
	logger     *slog.Logger

	from  string
	rcpts []string
}

// errTempFail is the catch-all temporary failure for local filesystem
// errors; the sender will retry.
var errTempFail = &smtp.SMTPError{
	Code:         451,
	EnhancedCode: smtp.EnhancedCode{4, 3, 0},
	Message:      "Local error in processing, try again",
}

// Mail handles the MAIL FROM command. On a listener that requires the
// STARTTLS upgrade, a plaintext MAIL is rejected here; the engine has no
// earlier hook for it.
func (s *Session) Mail(from string, opts *smtp.MailOptions) error {
	if s.requireTLS && !s.secured() {
		return &smtp.SMTPError{
			Code:         530,
			EnhancedCode: smtp.EnhancedCode{5, 7, 0},
			Message:      "Must issue a STARTTLS command first",
		}
	}

	s.backend.collector.CommandProcessed(metrics.ProtoSmtp, "MAIL")
	s.from = from
	s.logger.Debug("MAIL FROM", slog.String("from", from))
	return nil
}

// Rcpt handles the RCPT TO command. Every recipient is accepted;
// routing decides at DATA time which mailboxes, if any, receive copies.
func (s *Session) Rcpt(to string, opts *smtp.RcptOptions) error {
	s.backend.collector.CommandProcessed(metrics.ProtoSmtp, "RCPT")
	s.rcpts = append(s.rcpts, to)
	s.logger.Debug("RCPT TO", slog.String("to", to))
	return nil
}

// Data accepts the message, tags it with the transport header, routes
// the recipients and delivers one copy per target mailbox. A message no
// rule routes anywhere is acknowledged and dropped.
func (s *Session) Data(r io.Reader) error {
	s.backend.collector.CommandProcessed(metrics.ProtoSmtp, "DATA")

	raw, err := io.ReadAll(r)
	if err != nil {
		s.logger.Warn("failed to read message data", slog.String("error", err.Error()))
		return errTempFail
	}

	msg, err := s.stampTransport(raw)
	if err != nil {
		s.logger.Warn("failed to parse message header", slog.String("error", err.Error()))
		return errTempFail
	}

	targets := s.routeRecipients()
	if len(targets) == 0 {
		s.backend.collector.MessageDropped()
		s.logger.Info("no mailbox for message, dropping",
			slog.String("from", s.from),
			slog.Int("recipients", len(s.rcpts)))
		return nil
	}

	name := uuid.New().String() + ".eml"
	staged := filepath.Join(s.backend.spoolDir, name)
	if err := os.WriteFile(staged, msg, 0644); err != nil {
		s.logger.Error("failed to stage message", slog.String("error", err.Error()))
		return errTempFail
	}
	defer os.Remove(staged)

	for _, mbox := range targets {
		mboxPath := filepath.Join(s.backend.mailsPath, mbox)
		if err := maildir.Ensure(mboxPath); err != nil {
			s.logger.Error("failed to prepare mailbox",
				slog.String("mbox", mbox), slog.String("error", err.Error()))
			return errTempFail
		}
		if err := maildir.Deliver(staged, mboxPath, name); err != nil {
			s.logger.Error("delivery failed",
				slog.String("mbox", mbox), slog.String("error", err.Error()))
			return errTempFail
		}
		s.backend.collector.MessageDelivered(mbox, int64(len(msg)))
	}

	s.logger.Info("message delivered",
		slog.String("from", s.from),
		slog.Int("size", len(msg)),
		slog.Int("mailboxes", len(targets)))
	return nil
}

// stampTransport prepends the X-SSL header describing the listener
// flavor and the session's TLS state to the message.
func (s *Session) stampTransport(raw []byte) ([]byte, error) {
	br := bufio.NewReader(bytes.NewReader(raw))
	header, err := textproto.ReadHeader(br)
	if err != nil {
		return nil, err
	}

	// AddRaw keeps the key byte-exact; Add would canonicalize it to
	// X-Ssl on serialization.
	header.AddRaw([]byte(sslHeader + ": " + transportValue(s.flavor, s.secured()) + "\r\n"))

	var buf bytes.Buffer
	buf.Grow(len(raw) + 64)
	if err := textproto.WriteHeader(&buf, header); err != nil {
		return nil, err
	}
	if _, err := io.Copy(&buf, br); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// transportValue formats the X-SSL header value.
func transportValue(flavor string, tls bool) string {
	return "Type: " + flavor + ", STARTTLS: " + strconv.FormatBool(tls)
}

// routeRecipients lowercases the envelope recipients, routes each and
// returns the union of target mailboxes, deduplicated in routing order.
func (s *Session) routeRecipients() []string {
	var targets []string
	seen := make(map[string]struct{})
	for _, rcpt := range s.rcpts {
		for _, mbox := range s.backend.router.GetMboxes(strings.ToLower(rcpt)) {
			if _, dup := seen[mbox]; dup {
				continue
			}
			seen[mbox] = struct{}{}
			targets = append(targets, mbox)
		}
	}
	return targets
}

// Reset is called when the client sends RSET.
func (s *Session) Reset() {
	s.from = ""
	s.rcpts = nil
	s.logger.Debug("session reset")
}

// Logout is called when the client quits or the connection closes.
func (s *Session) Logout() error {
	s.backend.collector.ConnectionClosed(metrics.ProtoSmtp)
	s.logger.Debug("session closed")
	return nil
}
