package tls

import (
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupDisabled(t *testing.T) {
	cfg, err := Setup(Options{})
	require.NoError(t, err)
	assert.Nil(t, cfg)
}

func TestValidate(t *testing.T) {
	assert.NoError(t, Options{}.Validate())
	assert.Error(t, Options{Enabled: true}.Validate())
	assert.Error(t, Options{Enabled: true, Dir: "/x", MinVersion: "1.0"}.Validate())
	assert.NoError(t, Options{Enabled: true, CertFile: "c", KeyFile: "k", MinVersion: "1.2"}.Validate())
}

func TestSetupGeneratesCertificate(t *testing.T) {
	dir := t.TempDir()
	o := Options{Enabled: true, Dir: dir, AutoGenerate: true, Hosts: []string{"localhost", "127.0.0.1"}}
	cfg, err := Setup(o)
	require.NoError(t, err)
	require.NotNil(t, cfg)

	for _, f := range []string{certFile, keyFile, caFile} {
		_, err := os.Stat(filepath.Join(dir, f))
		assert.NoError(t, err, f)
	}
	fi, err := os.Stat(filepath.Join(dir, keyFile))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), fi.Mode().Perm())

	pair, err := cfg.GetCertificate(nil)
	require.NoError(t, err)
	leaf, err := x509.ParseCertificate(pair.Certificate[0])
	require.NoError(t, err)
	assert.Equal(t, []string{"localhost"}, leaf.DNSNames)
	require.Len(t, leaf.IPAddresses, 1)
	assert.Equal(t, "127.0.0.1", leaf.IPAddresses[0].String())

	// a second setup reuses the existing files
	before, _ := os.ReadFile(filepath.Join(dir, certFile))
	_, err = Setup(o)
	require.NoError(t, err)
	after, _ := os.ReadFile(filepath.Join(dir, certFile))
	assert.Equal(t, before, after)
}

func TestSetupMissingFiles(t *testing.T) {
	dir := t.TempDir()
	_, err := Setup(Options{Enabled: true, Dir: dir})
	assert.Error(t, err)
}

func TestExplicitFilesTakePrecedence(t *testing.T) {
	dir := t.TempDir()
	cert, key := filepath.Join(dir, "a.crt"), filepath.Join(dir, "a.key")
	require.NoError(t, GenerateSelfSigned(CertConfig{CommonName: "x", Hosts: []string{"x"}, CertPath: cert, KeyPath: key}))

	o := Options{Enabled: true, CertFile: cert, KeyFile: key, Dir: "/unused"}
	c, k := o.Paths()
	assert.Equal(t, cert, c)
	assert.Equal(t, key, k)

	data, err := os.ReadFile(cert)
	require.NoError(t, err)
	block, _ := pem.Decode(data)
	require.NotNil(t, block)
	assert.Equal(t, "CERTIFICATE", block.Type)
}
