// Package pop3 implements the POP3 server: a line-oriented state machine
// over AUTHORIZATION, TRANSACTION and UPDATE, with a per-session mailbox
// snapshot, idempotent deletion through a per-user side file, and
// at-most-one concurrent session per user.
package pop3

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/mail4one/mail4one/internal/logging"
	"github.com/mail4one/mail4one/internal/maildir"
	"github.com/mail4one/mail4one/internal/metrics"
	"github.com/mail4one/mail4one/internal/pwhash"
	"github.com/mail4one/mail4one/internal/server"
)

// HandlerConfig holds the dependencies of the POP3 connection handler.
type HandlerConfig struct {
	Shared    *SharedState
	Timeout   time.Duration
	Collector metrics.Collector
}

// Handler creates the POP3 protocol handler. Each invocation of the
// returned handler runs one complete session.
func Handler(cfg HandlerConfig) server.ConnectionHandler {
	collector := cfg.Collector
	if collector == nil {
		collector = &metrics.NoopCollector{}
	}

	return func(ctx context.Context, conn *server.Connection) {
		collector.ConnectionOpened(metrics.ProtoPop3)
		defer collector.ConnectionClosed(metrics.ProtoPop3)
		if conn.IsTLS() {
			collector.TLSConnectionEstablished(metrics.ProtoPop3)
		}

		id := cfg.Shared.NextID()
		sess := &session{
			conn:   conn,
			shared: cfg.Shared,
			logger: logging.WithConnection(logging.FromContext(ctx), id, conn.RemoteIP()),
			id:     id,
		}

		// Wall-clock budget for the whole session, writes included.
		if err := conn.SetSessionDeadline(cfg.Timeout); err != nil {
			sess.logger.Error("failed to set session deadline", "error", err.Error())
			return
		}

		sess.logger.Info("new session started")
		runSession(sess, collector)
	}
}

// runSession drives one session to completion and maps the final error
// to its close behavior. The logged-in set entry, if this session
// acquired one, is released on every exit path.
func runSession(sess *session, collector metrics.Collector) {
	defer func() {
		if sess.acquired {
			sess.shared.Logout(sess.username)
		}
	}()

	err := sess.run(collector)
	switch {
	case err == nil:
		sess.logger.Info("session done", "username", sess.username)
	case errors.Is(err, ErrClientQuit):
		sess.logger.Info("client quit")
	case errors.Is(err, ErrClientDisconnected):
		sess.logger.Info("client disconnected")
	case errors.Is(err, ErrClientFault), errors.Is(err, ErrBadLine):
		sess.logger.Error("unrecoverable client error", "error", err.Error())
		_ = sess.writeErr("Something went wrong")
		_ = sess.flush()
	default:
		sess.logger.Error("session error", "error", err.Error())
	}
}

// run is the session state machine: greeting, AUTHORIZATION, then
// TRANSACTION and UPDATE.
func (s *session) run(collector metrics.Collector) error {
	if err := s.writeOK("Server Ready"); err != nil {
		return err
	}
	if err := s.flush(); err != nil {
		return err
	}

	if err := s.authStage(collector); err != nil {
		return err
	}

	return s.transactionStage(collector)
}

// nextRequest reads command lines until one parses. Invalid commands are
// answered with -ERR Bad command up to the retry limit; QUIT surfaces as
// ErrClientQuit.
func (s *session) nextRequest() (Request, error) {
	for i := 0; i < invalidCommandRetries; i++ {
		line, err := s.conn.Reader().ReadString('\n')
		if err != nil {
			return Request{}, ErrClientDisconnected
		}
		s.logger.Debug("client line", "line", line)

		req, err := ParseCommand(line)
		if errors.Is(err, ErrInvalidCommand) {
			if err := s.writeErr("Bad command"); err != nil {
				return Request{}, err
			}
			if err := s.flush(); err != nil {
				return Request{}, err
			}
			continue
		}
		if err != nil {
			return Request{}, err
		}

		if req.Verb == VerbQuit {
			return Request{}, ErrClientQuit
		}
		return req, nil
	}
	return Request{}, errors.Join(ErrClientFault, errors.New("bad command limit reached"))
}

// expectCmd reads the next request and requires one of the given verbs.
// Anything else is an unrecoverable fault.
func (s *session) expectCmd(allowed ...Verb) (Request, error) {
	req, err := s.nextRequest()
	if err != nil {
		return Request{}, err
	}
	for _, v := range allowed {
		if req.Verb == v {
			return req, nil
		}
	}
	s.logger.Error("unexpected command", "verb", string(req.Verb))
	return Request{}, errors.Join(ErrClientFault, errors.New("unexpected command "+string(req.Verb)))
}

// authStage runs the AUTHORIZATION state: CAPA and USER/PASS, with up to
// authRetries attempts before the session is terminated.
func (s *session) authStage(collector metrics.Collector) error {
	for attempt := 0; attempt < authRetries; attempt++ {
		req, err := s.expectCmd(VerbUser, VerbCapa)
		if errors.Is(err, ErrClientQuit) {
			s.logger.Warn("client quit before auth succeeded")
			_ = s.writeOK("Bye")
			_ = s.flush()
			return err
		}
		if err != nil {
			return err
		}

		if req.Verb == VerbCapa {
			collector.CommandProcessed(metrics.ProtoPop3, string(VerbCapa))
			if err := s.writeOK("Following are supported"); err != nil {
				return err
			}
			if err := s.writeLine("USER"); err != nil {
				return err
			}
			if err := s.writeEnd(); err != nil {
				return err
			}
			if err := s.flush(); err != nil {
				return err
			}
			continue
		}

		err = s.userPassAuth(req)
		if err == nil {
			collector.AuthAttempt(true)
			s.logger.Info("user logged in successfully", "username", s.username)
			if err := s.writeOK("Login successful"); err != nil {
				return err
			}
			return s.flush()
		}

		var ae *authError
		if errors.As(err, &ae) {
			collector.AuthAttempt(false)
			s.logger.Warn("auth failed", "reason", ae.reason)
			if err := s.writeErr("Auth Failed: %s", ae.reason); err != nil {
				return err
			}
			if err := s.flush(); err != nil {
				return err
			}
			continue
		}

		if errors.Is(err, ErrClientQuit) {
			s.logger.Warn("client quit before auth succeeded")
			_ = s.writeOK("Bye")
			_ = s.flush()
		}
		return err
	}
	return errors.Join(ErrClientFault, errors.New("failed to authenticate"))
}

// userPassAuth handles one USER/PASS exchange. On success the session
// owns the logged-in set entry for its user.
func (s *session) userPassAuth(userCmd Request) error {
	username := userCmd.Arg1
	if username == "" {
		return &authError{reason: "Invalid USER command. username empty"}
	}

	if err := s.writeOK("Welcome"); err != nil {
		return err
	}
	if err := s.flush(); err != nil {
		return err
	}

	passCmd, err := s.expectCmd(VerbPass)
	if err != nil {
		return err
	}

	info, ok := s.shared.Lookup(username)
	if !ok || !pwhash.Check(passCmd.Arg1, info.PW) {
		return &authError{reason: "Invalid user pass"}
	}

	if !s.shared.TryLogin(username) {
		s.logger.Warn("user already has an active session", "username", username)
		return &authError{reason: "Already logged in"}
	}

	s.username = username
	s.mbox = info.Mbox
	s.acquired = true
	s.logger = s.logger.With(slog.String("username", username))
	return nil
}

// transactionStage builds the mailbox snapshot and serves commands until
// QUIT, then persists this session's deletions (UPDATE).
func (s *session) transactionStage(collector metrics.Collector) error {
	mboxPath := filepath.Join(s.shared.MailsPath, s.mbox)
	deletedPath := filepath.Join(mboxPath, s.username)

	existing, err := maildir.LoadDeleted(deletedPath)
	if err != nil {
		return err
	}

	scanned, err := maildir.Scan(maildir.NewDir(mboxPath))
	if err != nil {
		return err
	}
	entries := scanned[:0]
	for _, e := range scanned {
		if _, gone := existing[e.UID]; !gone {
			entries = append(entries, e)
		}
	}

	mails := maildir.NewMailList(entries)
	if err := s.serveTransactions(mails, collector); err != nil {
		return err
	}

	deleted := mails.DeletedUIDs()
	s.logger.Info("completed transactions", "deleted", len(deleted))
	if len(deleted) == 0 {
		return nil
	}

	// UPDATE: union the side file as it is now with this session's
	// deletions and rewrite it atomically.
	existing, err = maildir.LoadDeleted(deletedPath)
	if err != nil {
		return err
	}
	for uid := range deleted {
		existing[uid] = struct{}{}
	}
	if err := maildir.SaveDeleted(deletedPath, existing); err != nil {
		return err
	}
	s.logger.Info("saved deleted items")
	return nil
}

// serveTransactions is the TRANSACTION command loop. It returns nil when
// the client QUITs; deletions are only persisted on that path.
func (s *session) serveTransactions(mails *maildir.MailList, collector metrics.Collector) error {
	for {
		req, err := s.nextRequest()
		if errors.Is(err, ErrClientQuit) {
			if err := s.writeOK("Bye"); err != nil {
				return err
			}
			return s.flush()
		}
		if err != nil {
			return err
		}

		s.logger.Debug("request", "verb", string(req.Verb), "arg1", req.Arg1)
		collector.CommandProcessed(metrics.ProtoPop3, string(req.Verb))

		if err := s.dispatch(mails, req, collector); err != nil {
			return err
		}
		if err := s.flush(); err != nil {
			return err
		}
	}
}

// dispatch handles one TRANSACTION command.
func (s *session) dispatch(mails *maildir.MailList, req Request, collector metrics.Collector) error {
	switch req.Verb {
	case VerbCapa:
		if err := s.writeOK("CAPA follows"); err != nil {
			return err
		}
		if err := s.writeLine("UIDL"); err != nil {
			return err
		}
		return s.writeEnd()

	case VerbStat:
		count, size := mails.Stat()
		return s.writeOK("%d %d", count, size)

	case VerbList:
		return s.listCommand(mails, req, func(e maildir.MailEntry) string {
			return strconv.FormatInt(e.Size, 10)
		})

	case VerbUidl:
		return s.listCommand(mails, req, func(e maildir.MailEntry) string {
			return e.UID
		})

	case VerbRetr:
		return s.retrCommand(mails, req, collector)

	case VerbDele:
		entry, ok := mails.Delete(atoiNID(req.Arg1))
		if !ok {
			return s.writeErr("Not found")
		}
		collector.MessageDeleted(s.mbox)
		s.logger.Debug("marked deleted", "uid", entry.UID)
		return s.writeOK("Deleted")

	case VerbRset:
		// Discards session deletions; previously persisted ones
		// stay gone. RSET sends no reply.
		mails.Reset()
		return nil

	case VerbNoop:
		return s.writeOK("Hmm")

	default:
		// USER or PASS after authentication.
		if err := s.writeErr("Not implemented"); err != nil {
			return err
		}
		if err := s.flush(); err != nil {
			return err
		}
		return errors.Join(ErrClientFault, errors.New("command invalid in transaction state"))
	}
}

// listCommand serves LIST and UIDL, which differ only in the per-entry
// field next to the message number.
func (s *session) listCommand(mails *maildir.MailList, req Request, field func(maildir.MailEntry) string) error {
	if req.Arg1 != "" {
		entry, ok := mails.Get(atoiNID(req.Arg1))
		if !ok {
			return s.writeErr("Not found")
		}
		return s.writeOK("%s %s", req.Arg1, field(entry))
	}

	if err := s.writeOK("Mails follow"); err != nil {
		return err
	}
	for _, entry := range mails.All() {
		if err := s.writeLine(strconv.Itoa(entry.NID) + " " + field(entry)); err != nil {
			return err
		}
	}
	return s.writeEnd()
}

// retrCommand streams the message file verbatim and, on success, marks
// it deleted so the next session no longer sees it.
func (s *session) retrCommand(mails *maildir.MailList, req Request, collector metrics.Collector) error {
	nid := atoiNID(req.Arg1)
	entry, ok := mails.Get(nid)
	if !ok {
		return s.writeErr("Not found")
	}

	content, err := os.ReadFile(entry.Path)
	if err != nil {
		return err
	}

	if err := s.writeOK("Contents follow"); err != nil {
		return err
	}
	if _, err := s.conn.Writer().Write(content); err != nil {
		return err
	}
	if err := s.writeEnd(); err != nil {
		return err
	}

	mails.Delete(nid)
	collector.MessageRetrieved(s.mbox, entry.Size)
	return nil
}

// atoiNID parses a message number argument. Only the canonical decimal
// form resolves; zero-padded or signed spellings map to 0, which no
// entry ever has.
func atoiNID(arg string) int {
	nid, err := strconv.Atoi(arg)
	if err != nil || strconv.Itoa(nid) != arg {
		return 0
	}
	return nid
}
