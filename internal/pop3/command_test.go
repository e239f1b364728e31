package pop3

import (
	"errors"
	"testing"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		name string
		line string
		want Request
	}{
		{"bare verb", "STAT\r\n", Request{Verb: VerbStat}},
		{"lowercase verb", "stat\r\n", Request{Verb: VerbStat}},
		{"one argument", "RETR 3\r\n", Request{Verb: VerbRetr, Arg1: "3"}},
		{"two arguments", "LIST 1 2\r\n", Request{Verb: VerbList, Arg1: "1", Arg2: "2"}},
		{"rest keeps spacing", "USER a b c  d\r\n", Request{Verb: VerbUser, Arg1: "a", Arg2: "b", Rest: "c  d"}},
		{"extra whitespace", "  DELE   7  \r\n", Request{Verb: VerbDele, Arg1: "7"}},
		{"pass with password", "PASS s3cret\r\n", Request{Verb: VerbPass, Arg1: "s3cret"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseCommand(tt.line)
			if err != nil {
				t.Fatalf("ParseCommand(%q) error = %v", tt.line, err)
			}
			if got != tt.want {
				t.Errorf("ParseCommand(%q) = %+v, want %+v", tt.line, got, tt.want)
			}
		})
	}
}

func TestParseCommandErrors(t *testing.T) {
	tests := []struct {
		name    string
		line    string
		wantErr error
	}{
		{"missing CRLF", "STAT\n", ErrBadLine},
		{"no terminator at all", "STAT", ErrBadLine},
		{"empty line", "\r\n", ErrInvalidCommand},
		{"blank line", "   \r\n", ErrInvalidCommand},
		{"unknown verb", "FETCH 1\r\n", ErrInvalidCommand},
		{"top is not supported", "TOP 1 0\r\n", ErrInvalidCommand},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseCommand(tt.line)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ParseCommand(%q) error = %v, want %v", tt.line, err, tt.wantErr)
			}
		})
	}
}
