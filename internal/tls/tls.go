// Package tls builds the server TLS configuration for the HTTP API,
// optionally generating a self-signed certificate on first start.
package tls

import (
	"crypto/tls"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const (
	caFile   = "tls_ca.crt"
	certFile = "tls.crt"
	keyFile  = "tls.key"
)

// Options is the [server.tls] section.
type Options struct {
	Enabled      bool     `toml:"enabled" mapstructure:"enabled"`
	CertFile     string   `toml:"cert_file" mapstructure:"cert_file"`
	KeyFile      string   `toml:"key_file" mapstructure:"key_file"`
	Dir          string   `toml:"dir" mapstructure:"dir"`
	AutoGenerate bool     `toml:"auto_generate" mapstructure:"auto_generate"`
	MinVersion   string   `toml:"min_version" mapstructure:"min_version"`
	Hosts        []string `toml:"hosts" mapstructure:"hosts"`
	ValidDays    int      `toml:"valid_days" mapstructure:"valid_days"`
}

// Paths returns the certificate and key the server will load.
func (o Options) Paths() (cert, key string) {
	if o.CertFile != "" && o.KeyFile != "" {
		return o.CertFile, o.KeyFile
	}
	if o.Dir == "" {
		return "", ""
	}
	return filepath.Join(o.Dir, certFile), filepath.Join(o.Dir, keyFile)
}

// CAPath is where a generated certificate is also written for clients to
// trust. Empty when certificates are not generated.
func (o Options) CAPath() string {
	if o.Dir == "" || !o.AutoGenerate {
		return ""
	}
	return filepath.Join(o.Dir, caFile)
}

func parseVersion(v string) (uint16, error) {
	switch v {
	case "", "1.3", "TLS1.3", "tls1.3":
		return tls.VersionTLS13, nil
	case "1.2", "TLS1.2", "tls1.2":
		return tls.VersionTLS12, nil
	default:
		return 0, fmt.Errorf("unsupported TLS version %q", v)
	}
}

// Validate checks the options without touching the filesystem.
func (o Options) Validate() error {
	if !o.Enabled {
		return nil
	}
	if _, err := parseVersion(o.MinVersion); err != nil {
		return err
	}
	if c, k := o.Paths(); c == "" || k == "" {
		return errors.New("tls enabled but neither cert_file/key_file nor dir is set")
	}
	return nil
}

// Setup returns the server TLS config, or nil when TLS is disabled. The
// key pair is read on every handshake so renewed files are picked up
// without a restart.
func Setup(o Options) (*tls.Config, error) {
	if !o.Enabled {
		return nil, nil
	}
	if err := o.Validate(); err != nil {
		return nil, err
	}
	minVer, _ := parseVersion(o.MinVersion)
	cert, key := o.Paths()

	if o.AutoGenerate && !exists(cert, key) {
		days := o.ValidDays
		if days <= 0 {
			days = 365
		}
		hosts := o.Hosts
		if len(hosts) == 0 {
			hosts = []string{"localhost", "127.0.0.1"}
		}
		if err := GenerateSelfSigned(CertConfig{
			CommonName: hosts[0],
			Hosts:      hosts,
			NotAfter:   time.Now().AddDate(0, 0, days),
			CertPath:   cert,
			KeyPath:    key,
			CAPath:     o.CAPath(),
		}); err != nil {
			return nil, fmt.Errorf("generate certificate: %w", err)
		}
	}
	if !exists(cert, key) {
		return nil, fmt.Errorf("certificate %s or key %s not found", cert, key)
	}

	return &tls.Config{
		MinVersion: minVer,
		GetCertificate: func(*tls.ClientHelloInfo) (*tls.Certificate, error) {
			pair, err := tls.LoadX509KeyPair(cert, key)
			if err != nil {
				return nil, err
			}
			return &pair, nil
		},
	}, nil
}

func exists(paths ...string) bool {
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			return false
		}
	}
	return true
}
