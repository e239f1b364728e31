// Command mail4one runs the mail server: inbound SMTP listeners
// delivering to local Maildir mailboxes and a POP3 server for reading
// them. It also provides password hash utilities for preparing the user
// table in the configuration.
package main

import (
	"flag"
	"fmt"
	"os"
)

const version = "mail4one v1.0.0"

// options holds the parsed command line.
type options struct {
	configPath   string
	genPwhash    bool
	pwVerify     bool
	showVersion  bool
	echoPassword bool
	args         []string
}

// parseFlags parses the command line. Each flag registers a short and a
// long spelling bound to the same variable.
func parseFlags() options {
	var opts options

	flag.StringVar(&opts.configPath, "c", "", "config file path")
	flag.StringVar(&opts.configPath, "config", "", "config file path")
	flag.BoolVar(&opts.genPwhash, "g", false, "generate a password hash")
	flag.BoolVar(&opts.genPwhash, "genpwhash", false, "generate a password hash")
	flag.BoolVar(&opts.pwVerify, "r", false, "verify a password against a hash")
	flag.BoolVar(&opts.pwVerify, "pwverify", false, "verify a password against a hash")
	flag.BoolVar(&opts.showVersion, "v", false, "print version and exit")
	flag.BoolVar(&opts.showVersion, "version", false, "print version and exit")
	flag.BoolVar(&opts.echoPassword, "e", false, "echo password input")
	flag.BoolVar(&opts.echoPassword, "echo_password", false, "echo password input")
	flag.Parse()

	opts.args = flag.Args()
	return opts
}

func main() {
	opts := parseFlags()

	modes := 0
	for _, set := range []bool{opts.genPwhash, opts.pwVerify, opts.showVersion} {
		if set {
			modes++
		}
	}
	if modes > 1 {
		fmt.Fprintln(os.Stderr, "only one of -g, -r and -v may be given")
		os.Exit(2)
	}

	switch {
	case opts.showVersion:
		fmt.Println(version)

	case opts.genPwhash:
		runGenPwhash(opts)

	case opts.pwVerify:
		runPwVerify(opts)

	default:
		if opts.configPath == "" {
			fmt.Fprintln(os.Stderr, "a config file is required, use -c/--config")
			os.Exit(2)
		}
		runServe(opts.configPath)
	}
}
