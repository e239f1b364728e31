package main

import (
	"bufio"
	"fmt"
	"os"

	"github.com/mail4one/mail4one/internal/pwhash"
	"golang.org/x/term"
)

// runGenPwhash prints the hash for a password given as the positional
// argument or read interactively.
func runGenPwhash(opts options) {
	password := ""
	if len(opts.args) > 0 {
		password = opts.args[0]
	} else {
		var err error
		password, err = promptPassword(opts.echoPassword)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error reading password: %v\n", err)
			os.Exit(1)
		}
	}

	hash, err := pwhash.Generate(password)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error generating hash: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(hash)
}

// runPwVerify checks the positional password against the positional
// hash and exits non-zero on mismatch.
func runPwVerify(opts options) {
	if len(opts.args) != 2 {
		fmt.Fprintln(os.Stderr, "usage: mail4one -r <password> <pwhash>")
		os.Exit(2)
	}

	info, err := pwhash.Parse(opts.args[1])
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid hash: %v\n", err)
		os.Exit(2)
	}

	if pwhash.Check(opts.args[0], info) {
		fmt.Println("✓ password and hash match")
		return
	}
	fmt.Println("✗ password and hash do not match")
	os.Exit(1)
}

// promptPassword reads a password from the terminal, without echo unless
// requested. A non-terminal stdin falls back to a plain line read so the
// command works in pipelines.
func promptPassword(echo bool) (string, error) {
	fmt.Fprint(os.Stderr, "Enter password: ")

	fd := int(os.Stdin.Fd())
	if echo || !term.IsTerminal(fd) {
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil {
			return "", err
		}
		return trimEOL(line), nil
	}

	raw, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func trimEOL(s string) string {
	for len(s) > 0 && (s[len(s)-1] == '\n' || s[len(s)-1] == '\r') {
		s = s[:len(s)-1]
	}
	return s
}
