package config

import (
	"crypto/tls"
	"encoding/json"
	"fmt"
	"os"
)

// Load parses the JSON configuration file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes a JSON configuration document.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	return &cfg, nil
}

// LoadTLS builds a tls.Config from a certificate/key file pair.
func LoadTLS(c *TLSCfg) (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(c.CertFile, c.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("loading TLS key pair: %w", err)
	}
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}, nil
}

// ResolveTLS returns the effective tls.Config for a server entry:
// the shared default context for "default", nil for "disable", and a
// freshly loaded context for an inline certificate pair.
func ResolveTLS(setting TLSSetting, defaultTLS *tls.Config) (*tls.Config, error) {
	switch setting.Mode {
	case TLSDefault, "":
		return defaultTLS, nil
	case TLSDisable:
		return nil, nil
	case TLSCustom:
		return LoadTLS(setting.Cfg)
	default:
		return nil, fmt.Errorf("invalid tls setting %q", setting.Mode)
	}
}
