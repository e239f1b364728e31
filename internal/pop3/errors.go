package pop3

import "errors"

// Protocol errors for POP3. The session loop dispatches on these tags;
// retry counters for the recoverable ones live in the loop itself.
var (
	// ErrClientDisconnected means the peer went away; quiet exit.
	ErrClientDisconnected = errors.New("client disconnected")

	// ErrClientQuit means the peer sent QUIT; reply +OK Bye and exit.
	ErrClientQuit = errors.New("client quit")

	// ErrInvalidCommand is a malformed or unknown command line,
	// recoverable with -ERR Bad command up to the retry limit.
	ErrInvalidCommand = errors.New("invalid command")

	// ErrBadLine is a line without CRLF termination; unrecoverable.
	ErrBadLine = errors.New("bad line ending")

	// ErrClientFault is an unrecoverable session fault; reply
	// -ERR Something went wrong and close.
	ErrClientFault = errors.New("client fault")
)

// Bounded retries for recoverable protocol errors.
const (
	invalidCommandRetries = 3
	authRetries           = 3
)

// authError is an authentication failure with a client-visible reason.
// It restarts the AUTH stage up to the retry limit.
type authError struct {
	reason string
}

func (e *authError) Error() string {
	return "auth failed: " + e.reason
}
