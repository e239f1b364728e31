// Package config provides configuration management for the mail server.
// The configuration is a single JSON document holding the mail store path,
// TLS defaults, routing rules, the user table and the listener list.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Reserved names understood by the routing engine.
const (
	// MatchAllName is implicitly declared and matches every address.
	MatchAllName = "default_match_all"

	// NullMboxName matches but is never delivered to.
	NullMboxName = "default_null_mbox"
)

// Server type tags for the servers list.
const (
	ServerTypePop          = "pop"
	ServerTypeSmtp         = "smtp"
	ServerTypeSmtpStartTLS = "smtp_starttls"
)

// Match is a named address predicate. Exactly one of Addrs and AddrRexs
// must be non-empty.
type Match struct {
	Name     string   `json:"name"`
	Addrs    []string `json:"addrs"`
	AddrRexs []string `json:"addr_rexs"`
}

// Rule references a match by name within a mailbox rule list.
type Rule struct {
	MatchName string `json:"match_name"`
	Negate    bool   `json:"negate"`
	StopCheck bool   `json:"stop_check"`
}

// Mbox is a mailbox with its ordered routing rules.
type Mbox struct {
	Name  string `json:"name"`
	Rules []Rule `json:"rules"`
}

// User maps a login to its password hash and POP3 mailbox directory.
type User struct {
	Username     string `json:"username"`
	PasswordHash string `json:"password_hash"`
	Mbox         string `json:"mbox"`
}

// TLSCfg names a certificate and key file pair.
type TLSCfg struct {
	CertFile string `json:"certfile"`
	KeyFile  string `json:"keyfile"`
}

// LogCfg selects the log sink and level. The logfile "CONSOLE" means
// standard error.
type LogCfg struct {
	Logfile string `json:"logfile"`
	Level   string `json:"level"`
}

// MetricsCfg enables the optional Prometheus metrics endpoint.
type MetricsCfg struct {
	Enabled bool   `json:"enabled"`
	Address string `json:"address"`
	Path    string `json:"path"`
}

// TLS selection modes for a server entry.
const (
	// TLSDefault uses the shared default_tls certificate.
	TLSDefault = "default"

	// TLSDisable runs the listener without TLS.
	TLSDisable = "disable"

	// TLSCustom uses an inline certfile/keyfile pair.
	TLSCustom = "custom"
)

// TLSSetting is the per-server tls field. It decodes from the strings
// "default" and "disable" or from an inline TLSCfg object.
type TLSSetting struct {
	Mode string
	Cfg  *TLSCfg
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *TLSSetting) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		switch s {
		case TLSDefault, TLSDisable:
			t.Mode = s
			t.Cfg = nil
			return nil
		default:
			return fmt.Errorf("invalid tls setting %q", s)
		}
	}

	var cfg TLSCfg
	if err := json.Unmarshal(data, &cfg); err != nil {
		return fmt.Errorf("invalid tls setting: %w", err)
	}
	t.Mode = TLSCustom
	t.Cfg = &cfg
	return nil
}

// ServerCfg is one entry of the servers list. The concrete type is
// selected by the server_type tag: PopCfg, SmtpCfg or SmtpStartTLSCfg.
type ServerCfg interface {
	// Common returns the fields shared by all server types.
	Common() *ServerCommon
}

// ServerCommon holds the fields shared by every server entry.
type ServerCommon struct {
	ServerType string     `json:"server_type"`
	Host       string     `json:"host"`
	Port       int        `json:"port"`
	TLS        TLSSetting `json:"tls"`
}

// Common implements ServerCfg.
func (c *ServerCommon) Common() *ServerCommon { return c }

// PopCfg configures a POP3 listener.
type PopCfg struct {
	ServerCommon
	TimeoutSeconds int `json:"timeout_seconds"`
}

// SmtpCfg configures a plaintext or implicit-TLS SMTP listener.
type SmtpCfg struct {
	ServerCommon
	SMTPUTF8 bool `json:"smtputf8"`
}

// SmtpStartTLSCfg configures a STARTTLS SMTP listener.
type SmtpStartTLSCfg struct {
	ServerCommon
	RequireStartTLS bool `json:"require_starttls"`
	SMTPUTF8        bool `json:"smtputf8"`
}

// Config is the complete server configuration.
type Config struct {
	MailsPath   string      `json:"mails_path"`
	DefaultTLS  *TLSCfg     `json:"default_tls"`
	DefaultHost string      `json:"default_host"`
	Logging     LogCfg      `json:"logging"`
	Metrics     MetricsCfg  `json:"metrics"`
	Matches     []Match     `json:"matches"`
	Boxes       []Mbox      `json:"boxes"`
	Users       []User      `json:"users"`
	Servers     []ServerCfg `json:"-"`
}

// UnmarshalJSON implements json.Unmarshaler. The servers list is decoded
// separately so each entry can pick its concrete type and defaults from
// the server_type tag.
func (c *Config) UnmarshalJSON(data []byte) error {
	type plain Config
	aux := struct {
		*plain
		Servers []json.RawMessage `json:"servers"`
	}{plain: (*plain)(c)}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	c.Servers = make([]ServerCfg, 0, len(aux.Servers))
	for i, raw := range aux.Servers {
		srv, err := decodeServer(raw)
		if err != nil {
			return fmt.Errorf("servers[%d]: %w", i, err)
		}
		c.Servers = append(c.Servers, srv)
	}

	c.applyDefaults()
	return nil
}

// decodeServer decodes one servers entry by inspecting its server_type.
// Variant defaults are set before decoding so explicit values win.
func decodeServer(raw json.RawMessage) (ServerCfg, error) {
	var tag struct {
		ServerType string `json:"server_type"`
	}
	if err := json.Unmarshal(raw, &tag); err != nil {
		return nil, err
	}

	common := ServerCommon{
		Host: "default",
		TLS:  TLSSetting{Mode: TLSDefault},
	}

	switch tag.ServerType {
	case ServerTypePop:
		cfg := PopCfg{ServerCommon: common, TimeoutSeconds: 60}
		cfg.Port = 995
		if err := json.Unmarshal(raw, &cfg); err != nil {
			return nil, err
		}
		return &cfg, nil

	case ServerTypeSmtp:
		cfg := SmtpCfg{ServerCommon: common, SMTPUTF8: true}
		cfg.Port = 465
		if err := json.Unmarshal(raw, &cfg); err != nil {
			return nil, err
		}
		return &cfg, nil

	case ServerTypeSmtpStartTLS:
		cfg := SmtpStartTLSCfg{ServerCommon: common, RequireStartTLS: true, SMTPUTF8: true}
		cfg.Port = 25
		if err := json.Unmarshal(raw, &cfg); err != nil {
			return nil, err
		}
		return &cfg, nil

	case "":
		return nil, errors.New("missing server_type")

	default:
		return nil, fmt.Errorf("unknown server_type %q", tag.ServerType)
	}
}

// applyDefaults fills the top-level defaults.
func (c *Config) applyDefaults() {
	if c.DefaultHost == "" {
		c.DefaultHost = "0.0.0.0"
	}
	if c.Logging.Logfile == "" {
		c.Logging.Logfile = "CONSOLE"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "INFO"
	}
	if c.Metrics.Address == "" {
		c.Metrics.Address = ":9100"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
}

// ResolveHost maps the per-server host value to a listen address host.
// The value "default" resolves to the top-level default_host.
func (c *Config) ResolveHost(host string) string {
	if host == "" || host == "default" {
		return c.DefaultHost
	}
	return host
}

// Validate checks the configuration for startup errors: a missing mail
// store path, duplicate usernames, and TLS-less STARTTLS listeners.
// Match and rule consistency is checked by the router at compile time.
func (c *Config) Validate() error {
	if c.MailsPath == "" {
		return errors.New("mails_path is required")
	}

	seen := make(map[string]struct{}, len(c.Users))
	for _, u := range c.Users {
		if u.Username == "" {
			return errors.New("user with empty username")
		}
		if _, dup := seen[u.Username]; dup {
			return fmt.Errorf("duplicate username %q", u.Username)
		}
		seen[u.Username] = struct{}{}
		if u.Mbox == "" {
			return fmt.Errorf("user %q: mbox is required", u.Username)
		}
	}

	for i, srv := range c.Servers {
		common := srv.Common()
		if common.Port <= 0 || common.Port > 65535 {
			return fmt.Errorf("servers[%d]: invalid port %d", i, common.Port)
		}
		if _, ok := srv.(*SmtpStartTLSCfg); ok {
			// A STARTTLS listener without any TLS context cannot
			// serve; fail at startup rather than on first client.
			if common.TLS.Mode == TLSDisable {
				return fmt.Errorf("servers[%d]: STARTTLS requires a TLS context", i)
			}
			if common.TLS.Mode == TLSDefault && c.DefaultTLS == nil {
				return fmt.Errorf("servers[%d]: STARTTLS requires a TLS context but default_tls is not set", i)
			}
		}
	}

	return nil
}
