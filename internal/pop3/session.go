package pop3

import (
	"fmt"
	"log/slog"
	"math/rand"
	"sync"

	"github.com/mail4one/mail4one/internal/config"
	"github.com/mail4one/mail4one/internal/pwhash"
	"github.com/mail4one/mail4one/internal/server"
)

// UserInfo is one entry of the parsed user table.
type UserInfo struct {
	PW   pwhash.PWInfo
	Mbox string
}

// SharedState is the state shared by every POP3 session: the immutable
// user table, the logged-in set enforcing one session per user, and the
// session id counter.
type SharedState struct {
	MailsPath string

	users map[string]UserInfo

	mu       sync.Mutex
	loggedIn map[string]struct{}
	counter  uint64
}

// NewSharedState parses the user table and seeds the session id counter.
// A password hash that does not parse is a startup error.
func NewSharedState(mailsPath string, users []config.User) (*SharedState, error) {
	table := make(map[string]UserInfo, len(users))
	for _, u := range users {
		info, err := pwhash.Parse(u.PasswordHash)
		if err != nil {
			return nil, fmt.Errorf("user %q: %w", u.Username, err)
		}
		table[u.Username] = UserInfo{PW: info, Mbox: u.Mbox}
	}

	return &SharedState{
		MailsPath: mailsPath,
		users:     table,
		loggedIn:  make(map[string]struct{}),
		counter:   uint64(rand.Intn(90000)+10000) * 100000,
	}, nil
}

// NextID returns a fresh session id for log correlation.
func (s *SharedState) NextID() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counter++
	return s.counter
}

// Lookup returns the user table entry for username.
func (s *SharedState) Lookup(username string) (UserInfo, bool) {
	info, ok := s.users[username]
	return info, ok
}

// TryLogin inserts username into the logged-in set. It reports false if
// the user already has an active session; check and insert are one
// atomic step so two racing sessions cannot both win.
func (s *SharedState) TryLogin(username string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, active := s.loggedIn[username]; active {
		return false
	}
	s.loggedIn[username] = struct{}{}
	return true
}

// Logout removes username from the logged-in set.
func (s *SharedState) Logout(username string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.loggedIn, username)
}

// ActiveSessions returns the number of logged-in users.
func (s *SharedState) ActiveSessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.loggedIn)
}

// session is the per-connection state threaded through the state
// machine. acquired records whether this session owns the logged-in set
// entry for its username, so only the owner releases it.
type session struct {
	conn     *server.Connection
	shared   *SharedState
	logger   *slog.Logger
	id       uint64
	username string
	mbox     string
	acquired bool
}

// write helpers produce the wire replies. Writes go to the buffered
// writer; the session loop flushes after handling each command.

func (s *session) writeOK(format string, args ...any) error {
	_, err := fmt.Fprintf(s.conn.Writer(), "+OK "+format+"\r\n", args...)
	return err
}

func (s *session) writeErr(format string, args ...any) error {
	_, err := fmt.Fprintf(s.conn.Writer(), "-ERR "+format+"\r\n", args...)
	return err
}

func (s *session) writeLine(line string) error {
	_, err := fmt.Fprintf(s.conn.Writer(), "%s\r\n", line)
	return err
}

func (s *session) writeEnd() error {
	_, err := s.conn.Writer().WriteString(".\r\n")
	return err
}

func (s *session) flush() error {
	return s.conn.Flush()
}
