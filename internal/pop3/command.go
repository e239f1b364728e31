package pop3

import (
	"fmt"
	"strings"
)

// Verb is a recognized POP3 command verb.
type Verb string

// The command subset served by this server.
const (
	VerbCapa Verb = "CAPA"
	VerbUser Verb = "USER"
	VerbPass Verb = "PASS"
	VerbQuit Verb = "QUIT"
	VerbStat Verb = "STAT"
	VerbList Verb = "LIST"
	VerbUidl Verb = "UIDL"
	VerbRetr Verb = "RETR"
	VerbDele Verb = "DELE"
	VerbRset Verb = "RSET"
	VerbNoop Verb = "NOOP"
)

var verbs = map[string]Verb{
	"CAPA": VerbCapa,
	"USER": VerbUser,
	"PASS": VerbPass,
	"QUIT": VerbQuit,
	"STAT": VerbStat,
	"LIST": VerbList,
	"UIDL": VerbUidl,
	"RETR": VerbRetr,
	"DELE": VerbDele,
	"RSET": VerbRset,
	"NOOP": VerbNoop,
}

// Request is one parsed command line: the verb and up to two arguments,
// with any remaining text collected in Rest.
type Request struct {
	Verb Verb
	Arg1 string
	Arg2 string
	Rest string
}

// ParseCommand parses a single CRLF-terminated command line. A line
// without the CRLF terminator is a protocol fault from a broken client
// and yields ErrBadLine; an empty line or unrecognized verb yields
// ErrInvalidCommand.
func ParseCommand(line string) (Request, error) {
	if !strings.HasSuffix(line, "\r\n") {
		return Request{}, fmt.Errorf("%w: missing CRLF line ending", ErrBadLine)
	}

	parts := splitCommand(strings.TrimRight(line, " \t\r\n"))
	if len(parts) == 0 {
		return Request{}, fmt.Errorf("%w: empty line", ErrInvalidCommand)
	}

	verb, ok := verbs[strings.ToUpper(parts[0])]
	if !ok {
		return Request{}, fmt.Errorf("%w: %s", ErrInvalidCommand, parts[0])
	}

	req := Request{Verb: verb}
	if len(parts) > 1 {
		req.Arg1 = parts[1]
	}
	if len(parts) > 2 {
		req.Arg2 = parts[2]
	}
	if len(parts) > 3 {
		req.Rest = parts[3]
	}
	return req, nil
}

// splitCommand splits on runs of whitespace into at most four parts; the
// fourth keeps its internal spacing.
func splitCommand(s string) []string {
	var parts []string
	for len(parts) < 3 {
		s = strings.TrimLeft(s, " \t")
		if s == "" {
			return parts
		}
		i := strings.IndexAny(s, " \t")
		if i < 0 {
			return append(parts, s)
		}
		parts = append(parts, s[:i])
		s = s[i:]
	}
	if s = strings.TrimLeft(s, " \t"); s != "" {
		parts = append(parts, s)
	}
	return parts
}
