package config

import (
	"testing"
)

const sampleConfig = `{
  "mails_path": "/var/mail4one/mails",
  "default_host": "10.0.0.1",
  "default_tls": {"certfile": "/etc/ssl/cert.pem", "keyfile": "/etc/ssl/key.pem"},
  "logging": {"logfile": "CONSOLE", "level": "DEBUG"},
  "metrics": {"enabled": true},
  "matches": [
    {"name": "spam_senders", "addrs": ["foo@bar.com"]}
  ],
  "boxes": [
    {"name": "spam", "rules": [{"match_name": "spam_senders", "stop_check": true}]},
    {"name": "all", "rules": [{"match_name": "default_match_all"}]}
  ],
  "users": [
    {"username": "alice", "password_hash": "HASH", "mbox": "all"}
  ],
  "servers": [
    {"server_type": "pop"},
    {"server_type": "smtp", "host": "0.0.0.0", "port": 4465},
    {"server_type": "smtp_starttls", "tls": "default"},
    {"server_type": "smtp", "tls": "disable", "port": 25},
    {"server_type": "pop", "tls": {"certfile": "/pop/cert.pem", "keyfile": "/pop/key.pem"}, "timeout_seconds": 120}
  ]
}`

func TestParseServers(t *testing.T) {
	cfg, err := Parse([]byte(sampleConfig))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if len(cfg.Servers) != 5 {
		t.Fatalf("len(Servers) = %d, want 5", len(cfg.Servers))
	}

	pop, ok := cfg.Servers[0].(*PopCfg)
	if !ok {
		t.Fatalf("servers[0] is %T, want *PopCfg", cfg.Servers[0])
	}
	if pop.Port != 995 {
		t.Errorf("pop default port = %d, want 995", pop.Port)
	}
	if pop.TimeoutSeconds != 60 {
		t.Errorf("pop default timeout = %d, want 60", pop.TimeoutSeconds)
	}
	if pop.Host != "default" {
		t.Errorf("pop default host = %q, want %q", pop.Host, "default")
	}
	if pop.TLS.Mode != TLSDefault {
		t.Errorf("pop default tls mode = %q, want %q", pop.TLS.Mode, TLSDefault)
	}

	smtps, ok := cfg.Servers[1].(*SmtpCfg)
	if !ok {
		t.Fatalf("servers[1] is %T, want *SmtpCfg", cfg.Servers[1])
	}
	if smtps.Port != 4465 {
		t.Errorf("explicit smtp port = %d, want 4465", smtps.Port)
	}
	if !smtps.SMTPUTF8 {
		t.Error("smtp SMTPUTF8 default should be true")
	}

	starttls, ok := cfg.Servers[2].(*SmtpStartTLSCfg)
	if !ok {
		t.Fatalf("servers[2] is %T, want *SmtpStartTLSCfg", cfg.Servers[2])
	}
	if starttls.Port != 25 {
		t.Errorf("starttls default port = %d, want 25", starttls.Port)
	}
	if !starttls.RequireStartTLS {
		t.Error("starttls RequireStartTLS default should be true")
	}

	disabled := cfg.Servers[3].Common()
	if disabled.TLS.Mode != TLSDisable {
		t.Errorf("servers[3] tls mode = %q, want %q", disabled.TLS.Mode, TLSDisable)
	}

	custom := cfg.Servers[4].Common()
	if custom.TLS.Mode != TLSCustom {
		t.Fatalf("servers[4] tls mode = %q, want %q", custom.TLS.Mode, TLSCustom)
	}
	if custom.TLS.Cfg == nil || custom.TLS.Cfg.CertFile != "/pop/cert.pem" {
		t.Errorf("servers[4] custom tls cfg = %+v", custom.TLS.Cfg)
	}
	if p := cfg.Servers[4].(*PopCfg); p.TimeoutSeconds != 120 {
		t.Errorf("explicit pop timeout = %d, want 120", p.TimeoutSeconds)
	}
}

func TestParseDefaults(t *testing.T) {
	cfg, err := Parse([]byte(`{"mails_path": "/m", "servers": []}`))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if cfg.DefaultHost != "0.0.0.0" {
		t.Errorf("DefaultHost = %q, want 0.0.0.0", cfg.DefaultHost)
	}
	if cfg.Logging.Logfile != "CONSOLE" || cfg.Logging.Level != "INFO" {
		t.Errorf("Logging defaults = %+v", cfg.Logging)
	}
	if cfg.Metrics.Enabled {
		t.Error("metrics should default to disabled")
	}
	if cfg.Metrics.Address != ":9100" || cfg.Metrics.Path != "/metrics" {
		t.Errorf("Metrics defaults = %+v", cfg.Metrics)
	}
}

func TestResolveHost(t *testing.T) {
	cfg, err := Parse([]byte(sampleConfig))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if got := cfg.ResolveHost("default"); got != "10.0.0.1" {
		t.Errorf("ResolveHost(default) = %q, want 10.0.0.1", got)
	}
	if got := cfg.ResolveHost("127.0.0.1"); got != "127.0.0.1" {
		t.Errorf("ResolveHost(127.0.0.1) = %q", got)
	}
}

func TestParseServerErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"missing server_type", `{"mails_path": "/m", "servers": [{"port": 25}]}`},
		{"unknown server_type", `{"mails_path": "/m", "servers": [{"server_type": "imap"}]}`},
		{"bad tls string", `{"mails_path": "/m", "servers": [{"server_type": "pop", "tls": "sometimes"}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse([]byte(tt.doc)); err == nil {
				t.Error("Parse() expected error, got nil")
			}
		})
	}
}

func TestValidate(t *testing.T) {
	valid, err := Parse([]byte(sampleConfig))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if err := valid.Validate(); err != nil {
		t.Errorf("Validate() on sample config = %v", err)
	}

	tests := []struct {
		name string
		doc  string
	}{
		{"missing mails_path", `{"servers": []}`},
		{"duplicate username", `{"mails_path": "/m", "users": [
			{"username": "a", "password_hash": "h", "mbox": "all"},
			{"username": "a", "password_hash": "h", "mbox": "all"}]}`},
		{"empty username", `{"mails_path": "/m", "users": [{"password_hash": "h", "mbox": "all"}]}`},
		{"user without mbox", `{"mails_path": "/m", "users": [{"username": "a", "password_hash": "h"}]}`},
		{"invalid port", `{"mails_path": "/m", "servers": [{"server_type": "pop", "port": 700000}]}`},
		{"starttls without tls", `{"mails_path": "/m", "servers": [{"server_type": "smtp_starttls", "tls": "disable"}]}`},
		{"starttls default tls unset", `{"mails_path": "/m", "servers": [{"server_type": "smtp_starttls"}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Parse([]byte(tt.doc))
			if err != nil {
				t.Fatalf("Parse() error = %v", err)
			}
			if err := cfg.Validate(); err == nil {
				t.Error("Validate() expected error, got nil")
			}
		})
	}
}
