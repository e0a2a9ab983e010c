// Package client talks to a running llamactl daemon over HTTP.
package client

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

const (
	DefaultBaseURL = "http://127.0.0.1:7070/api"
	DefaultTimeout = 10 * time.Second
)

type Client struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// Config holds client configuration
type Config struct {
	BaseURL string
	Timeout time.Duration
	Logger  *slog.Logger
	TLS     *TLSClientConfig
}

// TLSClientConfig is used when the daemon serves HTTPS, either itself via
// [server.tls] or behind a terminating proxy. For a generated certificate
// point CACert at tls_ca.crt in the certificate directory.
type TLSClientConfig struct {
	CACert     string
	ClientCert string
	ClientKey  string
	ServerName string
	SkipVerify bool
}

func DefaultConfig() Config {
	return Config{BaseURL: DefaultBaseURL, Timeout: DefaultTimeout}
}

// APIError is a non-2xx response from the daemon.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("HTTP %d", e.Status)
	}
	return fmt.Sprintf("API error (%d): %s", e.Status, e.Message)
}

// IsNotFound reports whether err is a 404 from the daemon.
func IsNotFound(err error) bool {
	var ae *APIError
	return errors.As(err, &ae) && ae.Status == http.StatusNotFound
}

func New(config Config) (*Client, error) {
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}
	if config.Timeout == 0 {
		config.Timeout = DefaultTimeout
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if config.TLS != nil {
		tc, err := setupClientTLS(config.TLS)
		if err != nil {
			return nil, err
		}
		transport.TLSClientConfig = tc
	}
	return &Client{
		baseURL: strings.TrimRight(config.BaseURL, "/"),
		logger:  config.Logger,
		client:  &http.Client{Timeout: config.Timeout, Transport: transport},
	}, nil
}

func setupClientTLS(cfg *TLSClientConfig) (*tls.Config, error) {
	tc := &tls.Config{
		ServerName:         cfg.ServerName,
		InsecureSkipVerify: cfg.SkipVerify, // #nosec G402 -- opt-in for self-signed proxies
		MinVersion:         tls.VersionTLS12,
	}
	if cfg.CACert != "" {
		pem, err := os.ReadFile(cfg.CACert)
		if err != nil {
			return nil, fmt.Errorf("read CA certificate: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, errors.New("parse CA certificate: no certificates found")
		}
		tc.RootCAs = pool
	}
	if cfg.ClientCert != "" && cfg.ClientKey != "" {
		cert, err := tls.LoadX509KeyPair(cfg.ClientCert, cfg.ClientKey)
		if err != nil {
			return nil, fmt.Errorf("load client certificate: %w", err)
		}
		tc.Certificates = []tls.Certificate{cert}
	}
	return tc, nil
}

// IsReachable checks whether the daemon answers its health endpoint.
func (c *Client) IsReachable(ctx context.Context) bool {
	err := c.do(ctx, http.MethodGet, "/healthz", nil, nil)
	if err != nil {
		c.logger.Debug("daemon unreachable", "error", err)
	}
	return err == nil
}

func (c *Client) Launch(ctx context.Context, modelPath string) (LaunchResult, error) {
	var res LaunchResult
	err := c.do(ctx, http.MethodPost, "/launch", modelPathRequest{ModelPath: modelPath}, &res)
	return res, err
}

func (c *Client) LaunchExternal(ctx context.Context, modelPath string) (LaunchResult, error) {
	var res LaunchResult
	err := c.do(ctx, http.MethodPost, "/launch/external", modelPathRequest{ModelPath: modelPath}, &res)
	return res, err
}

func (c *Client) List(ctx context.Context) ([]ProcessInfo, error) {
	var out []ProcessInfo
	err := c.do(ctx, http.MethodGet, "/processes", nil, &out)
	return out, err
}

func (c *Client) Get(ctx context.Context, id string) (ProcessInfo, error) {
	var out ProcessInfo
	err := c.do(ctx, http.MethodGet, "/processes/"+url.PathEscape(id), nil, &out)
	return out, err
}

// Output returns the lines added since the previous call for id.
func (c *Client) Output(ctx context.Context, id string) (Output, error) {
	var out Output
	err := c.do(ctx, http.MethodGet, "/processes/"+url.PathEscape(id)+"/output", nil, &out)
	return out, err
}

func (c *Client) Terminate(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPost, "/processes/"+url.PathEscape(id)+"/terminate", nil, nil)
}

// Remove clears the record of an exited process.
func (c *Client) Remove(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/processes/"+url.PathEscape(id), nil, nil)
}

// Cleanup stops every tracked process and returns how many were stopped.
func (c *Client) Cleanup(ctx context.Context) (int, error) {
	var out struct {
		Stopped int `json:"stopped"`
	}
	err := c.do(ctx, http.MethodPost, "/cleanup", nil, &out)
	return out.Stopped, err
}

func (c *Client) Versions(ctx context.Context) ([]Version, error) {
	var out []Version
	err := c.do(ctx, http.MethodGet, "/versions", nil, &out)
	return out, err
}

func (c *Client) ActivateVersion(ctx context.Context, path string) error {
	return c.do(ctx, http.MethodPost, "/versions/active", pathRequest{Path: path}, nil)
}

func (c *Client) DeleteVersion(ctx context.Context, path string) error {
	return c.do(ctx, http.MethodDelete, "/versions", pathRequest{Path: path}, nil)
}

func (c *Client) ModelSettings(ctx context.Context, modelPath string) (ModelSettings, error) {
	var out ModelSettings
	err := c.do(ctx, http.MethodGet, "/models/settings?path="+url.QueryEscape(modelPath), nil, &out)
	return out, err
}

func (c *Client) SetModelSettings(ctx context.Context, s ModelSettings) (ModelSettings, error) {
	var out ModelSettings
	err := c.do(ctx, http.MethodPut, "/models/settings", s, &out)
	return out, err
}

// do sends body as JSON (when non-nil) and decodes a 2xx response into out
// (when non-nil).
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		rdr = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rdr)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return c.errorResponse(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) errorResponse(resp *http.Response) error {
	var er ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err != nil {
		c.logger.Debug("failed to decode error response", "status", resp.StatusCode)
	}
	c.logger.Debug("API request failed", "error", er.Error, "status", resp.StatusCode)
	return &APIError{Status: resp.StatusCode, Message: er.Error}
}
