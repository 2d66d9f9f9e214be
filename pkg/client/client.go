// Package client provides an HTTP client for the roostd daemon API.
package client

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"
)

// Client communicates with a roostd daemon over its REST API.
type Client struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// Config holds client configuration
type Config struct {
	BaseURL  string
	Timeout  time.Duration
	Logger   *slog.Logger // Optional logger for client operations
	TLS      *TLSClientConfig
	Insecure bool // Skip TLS verification
}

// TLSClientConfig holds TLS configuration for client
type TLSClientConfig struct {
	Enabled    bool   // Enable TLS
	CACert     string // CA certificate file path
	ClientCert string // Client certificate file
	ClientKey  string // Client private key file
	ServerName string // Server name for verification
	SkipVerify bool   // Skip certificate verification
}

// DefaultConfig returns default client configuration
func DefaultConfig() Config {
	return Config{
		BaseURL: "http://127.0.0.1:8080/api",
		Timeout: 10 * time.Second,
	}
}

// InsecureConfig returns a configuration that skips TLS verification.
func InsecureConfig() Config {
	return Config{
		BaseURL:  "https://127.0.0.1:8080/api",
		Timeout:  10 * time.Second,
		Insecure: true,
	}
}

// New creates a roostd API client.
func New(config Config) *Client {
	if config.BaseURL == "" {
		config.BaseURL = "http://127.0.0.1:8080/api"
	}
	if config.Timeout == 0 {
		config.Timeout = 10 * time.Second
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	transport := &http.Transport{}
	if config.TLS != nil && config.TLS.Enabled || config.Insecure {
		tlsConfig, err := setupClientTLS(config)
		if err != nil {
			config.Logger.Error("TLS setup failed", "error", err)
		} else {
			transport.TLSClientConfig = tlsConfig
		}
	}

	return &Client{
		baseURL: config.BaseURL,
		logger:  config.Logger,
		client: &http.Client{
			Timeout:   config.Timeout,
			Transport: transport,
		},
	}
}

// IsReachable checks if the daemon is running and reachable.
func (c *Client) IsReachable(ctx context.Context) bool {
	err := c.do(ctx, "GET", "/launch-agents/status", nil, nil)
	if err != nil {
		c.logger.Debug("daemon unreachable", "error", err)
		return false
	}
	return true
}

// List returns all registered descriptors.
func (c *Client) List(ctx context.Context) ([]Agent, error) {
	var out []Agent
	if err := c.do(ctx, "GET", "/launch-agents/list", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Status returns the current per-label snapshots.
func (c *Client) Status(ctx context.Context) ([]Snapshot, error) {
	var out []Snapshot
	if err := c.do(ctx, "GET", "/launch-agents/status", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Create compiles a desktop descriptor without installing it.
func (c *Client) Create(ctx context.Context, req CreateRequest) (Agent, error) {
	var out Agent
	err := c.do(ctx, "POST", "/launch-agents/create", req, &out)
	return out, err
}

// CreateWeb compiles a web-kind descriptor without installing it.
func (c *Client) CreateWeb(ctx context.Context, req CreateRequest) (Agent, error) {
	var out Agent
	err := c.do(ctx, "POST", "/launch-agents/create-web", req, &out)
	return out, err
}

// Install registers a descriptor with launchd, compiling it first when a
// Target is given and no descriptor exists for the label yet.
func (c *Client) Install(ctx context.Context, req CreateRequest) (Agent, error) {
	var out Agent
	err := c.do(ctx, "POST", "/launch-agents/install", req, &out)
	return out, err
}

// Start launches the agent's process.
func (c *Client) Start(ctx context.Context, label string) error {
	return c.labelVerb(ctx, "start", label)
}

// Stop halts the agent's process. Stopping a stopped agent is a no-op.
func (c *Client) Stop(ctx context.Context, label string) error {
	return c.labelVerb(ctx, "stop", label)
}

// Restart stops then starts the agent.
func (c *Client) Restart(ctx context.Context, label string) error {
	return c.labelVerb(ctx, "restart", label)
}

// Delete removes the agent entirely. Deleting an unknown label succeeds.
func (c *Client) Delete(ctx context.Context, label string) error {
	return c.labelVerb(ctx, "delete", label)
}

// Test starts the agent and watches it for a short window.
func (c *Client) Test(ctx context.Context, label string) (TestResult, error) {
	var out TestResult
	err := c.do(ctx, "POST", "/launch-agents/test", labelBody{Label: label}, &out)
	return out, err
}

// View returns the descriptor file contents for label.
func (c *Client) View(ctx context.Context, label string) (string, error) {
	var out struct {
		Label   string `json:"label"`
		Content string `json:"content"`
	}
	if err := c.do(ctx, "POST", "/launch-agents/view", labelBody{Label: label}, &out); err != nil {
		return "", err
	}
	return out.Content, nil
}

// Update replaces the descriptor file contents for label.
func (c *Client) Update(ctx context.Context, label, content string) error {
	body := struct {
		Label   string `json:"label"`
		Content string `json:"content"`
	}{Label: label, Content: content}
	return c.do(ctx, "POST", "/launch-agents/update", body, nil)
}

// Export returns a downloadable copy of the descriptor.
func (c *Client) Export(ctx context.Context, label string) (ExportResult, error) {
	var out ExportResult
	err := c.do(ctx, "POST", "/launch-agents/export", labelBody{Label: label}, &out)
	return out, err
}

// SystemMetrics samples host CPU/memory/disk/network on the daemon side.
func (c *Client) SystemMetrics(ctx context.Context) (json.RawMessage, error) {
	var out json.RawMessage
	if err := c.do(ctx, "GET", "/system/metrics", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

type labelBody struct {
	Label string `json:"label"`
}

func (c *Client) labelVerb(ctx context.Context, verb, label string) error {
	return c.do(ctx, "POST", "/launch-agents/"+verb, labelBody{Label: label}, nil)
}

// envelope is the daemon's uniform response wrapper.
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Message string          `json:"message,omitempty"`
	Code    string          `json:"code,omitempty"`
}

// do performs a request against path (relative to the base URL), decoding the
// envelope and unmarshalling Data into out when out is non-nil.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Debug("HTTP request failed", "error", err, "path", path)
		return fmt.Errorf("do request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("HTTP %d: decode response: %w", resp.StatusCode, err)
	}
	if resp.StatusCode != http.StatusOK || !env.Success {
		return &APIError{StatusCode: resp.StatusCode, Code: env.Code, Message: env.Message}
	}
	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("decode data: %w", err)
		}
	}
	return nil
}

// setupClientTLS configures TLS settings for HTTP client
func setupClientTLS(config Config) (*tls.Config, error) {
	tlsConfig := &tls.Config{}

	if config.Insecure {
		tlsConfig.InsecureSkipVerify = true
		return tlsConfig, nil
	}

	if config.TLS != nil {
		if config.TLS.SkipVerify {
			tlsConfig.InsecureSkipVerify = true
		}
		if config.TLS.ServerName != "" {
			tlsConfig.ServerName = config.TLS.ServerName
		}
		if config.TLS.CACert != "" {
			if err := loadCACert(tlsConfig, config.TLS.CACert); err != nil {
				return nil, fmt.Errorf("failed to load CA certificate: %w", err)
			}
		}
		if config.TLS.ClientCert != "" && config.TLS.ClientKey != "" {
			cert, err := tls.LoadX509KeyPair(config.TLS.ClientCert, config.TLS.ClientKey)
			if err != nil {
				return nil, fmt.Errorf("failed to load client certificate: %w", err)
			}
			tlsConfig.Certificates = []tls.Certificate{cert}
		}
	}

	return tlsConfig, nil
}

// loadCACert loads CA certificate from file and adds it to TLS config
func loadCACert(tlsConfig *tls.Config, caCertPath string) error {
	caCert, err := os.ReadFile(caCertPath)
	if err != nil {
		return fmt.Errorf("failed to read CA certificate file: %w", err)
	}

	caCertPool := x509.NewCertPool()
	if !caCertPool.AppendCertsFromPEM(caCert) {
		return fmt.Errorf("failed to parse CA certificate")
	}

	tlsConfig.RootCAs = caCertPool
	return nil
}
