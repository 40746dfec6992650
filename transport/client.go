// Package transport talks to the remote terminal service over HTTP and
// WebSocket. It holds no synchronization state and never retries.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"pkt.systems/pslog"
	"pkt.systems/termsync/core"
	"pkt.systems/termsync/internal/logx"
	"pkt.systems/termsync/schema"
)

const (
	defaultRequestTimeout   = 10 * time.Second
	defaultHandshakeTimeout = 10 * time.Second
	maxResponseBytes        = 8 << 20
)

// Config defines the remote endpoints and timeouts.
type Config struct {
	// APIURL is the base URL for request/response calls, e.g. http://host:8000.
	APIURL string
	// StreamURL is the base URL for streams. Derived from APIURL when empty.
	StreamURL        string
	RequestTimeout   time.Duration
	HandshakeTimeout time.Duration
	HTTPClient       *http.Client
	Logger           pslog.Logger
}

// Client implements core.Transport.
type Client struct {
	apiBase    string
	streamBase string
	timeout    time.Duration
	http       *http.Client
	dialer     *websocket.Dialer
	log        pslog.Logger
}

var _ core.Transport = (*Client)(nil)

// New validates the configuration and constructs a Client.
func New(cfg Config) (*Client, error) {
	apiBase, err := normalizeBase(cfg.APIURL, "http", "https")
	if err != nil {
		return nil, fmt.Errorf("api url: %w", err)
	}
	streamURL := strings.TrimSpace(cfg.StreamURL)
	if streamURL == "" {
		streamURL, err = DeriveStreamURL(apiBase)
		if err != nil {
			return nil, err
		}
	}
	streamBase, err := normalizeBase(streamURL, "ws", "wss")
	if err != nil {
		return nil, fmt.Errorf("stream url: %w", err)
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	handshake := cfg.HandshakeTimeout
	if handshake <= 0 {
		handshake = defaultHandshakeTimeout
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{
		apiBase:    apiBase,
		streamBase: streamBase,
		timeout:    timeout,
		http:       httpClient,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: handshake,
		},
		log: logx.Or(cfg.Logger),
	}, nil
}

// DeriveStreamURL maps an http(s) base URL onto its ws(s) counterpart.
func DeriveStreamURL(apiURL string) (string, error) {
	parsed, err := url.Parse(strings.TrimSpace(apiURL))
	if err != nil {
		return "", fmt.Errorf("parse api url: %w", err)
	}
	switch parsed.Scheme {
	case "http":
		parsed.Scheme = "ws"
	case "https":
		parsed.Scheme = "wss"
	default:
		return "", fmt.Errorf("cannot derive stream url from scheme %q", parsed.Scheme)
	}
	return parsed.String(), nil
}

func normalizeBase(raw string, schemes ...string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", errors.New("url is required")
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	if parsed.Host == "" {
		return "", fmt.Errorf("url %q has no host", raw)
	}
	ok := false
	for _, scheme := range schemes {
		if parsed.Scheme == scheme {
			ok = true
			break
		}
	}
	if !ok {
		return "", fmt.Errorf("url %q must use one of %s", raw, strings.Join(schemes, ", "))
	}
	if parsed.RawQuery != "" || parsed.Fragment != "" {
		return "", fmt.Errorf("url %q must not carry a query or fragment", raw)
	}
	return strings.TrimRight(parsed.String(), "/"), nil
}

// APIURL returns the normalized request base URL.
func (c *Client) APIURL() string {
	return c.apiBase
}

// StreamURL returns the normalized stream base URL.
func (c *Client) StreamURL() string {
	return c.streamBase
}

// FetchTerminals lists every terminal the remote knows about.
func (c *Client) FetchTerminals(ctx context.Context) ([]schema.Terminal, error) {
	var terminals []schema.Terminal
	if err := c.do(ctx, "fetch terminals", http.MethodGet, schema.TerminalsPath, nil, &terminals); err != nil {
		return nil, err
	}
	if terminals == nil {
		terminals = []schema.Terminal{}
	}
	return terminals, nil
}

// FetchContent returns the current buffer of one terminal.
func (c *Client) FetchContent(ctx context.Context, id schema.TerminalID) (schema.TerminalContent, error) {
	if err := schema.ValidateTerminalID(id); err != nil {
		return schema.TerminalContent{}, err
	}
	var content schema.TerminalContent
	if err := c.do(ctx, "fetch content", http.MethodGet, schema.ContentPath(id), nil, &content); err != nil {
		return schema.TerminalContent{}, err
	}
	return content, nil
}

// SendCommand writes text into a terminal.
func (c *Client) SendCommand(ctx context.Context, req schema.CommandRequest) (schema.CommandResponse, error) {
	if err := schema.ValidateTerminalID(req.TerminalID); err != nil {
		return schema.CommandResponse{}, err
	}
	var resp schema.CommandResponse
	if err := c.do(ctx, "send command", http.MethodPost, schema.CommandPath(req.TerminalID), req, &resp); err != nil {
		return schema.CommandResponse{}, err
	}
	return resp, nil
}

// Health reports the remote service health.
func (c *Client) Health(ctx context.Context) (schema.HealthStatus, error) {
	var status schema.HealthStatus
	if err := c.do(ctx, "health", http.MethodGet, schema.HealthPath, nil, &status); err != nil {
		return schema.HealthStatus{}, err
	}
	return status, nil
}

func (c *Client) do(ctx context.Context, op, method, path string, payload any, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	target := c.apiBase + path
	log := c.log

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("%s: encode request: %w", op, err)
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return &schema.NetworkError{Op: op, URL: target, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		log.Debug("remote request failed", "op", op, "url", target, "err", err)
		return &schema.NetworkError{Op: op, URL: target, Err: err}
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return &schema.NetworkError{Op: op, URL: target, Status: resp.StatusCode, Err: err}
	}
	log.Debug("remote request", "op", op, "method", method, "url", target, "status", resp.StatusCode, "duration_ms", time.Since(start).Milliseconds())

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return statusError(op, target, resp.StatusCode, data)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &schema.NetworkError{Op: op, URL: target, Status: resp.StatusCode, Err: &schema.ParseError{What: "response body", Err: err}}
	}
	return nil
}

// statusError maps a non-success response onto RemoteError when the body
// carries a detail or error message.
func statusError(op, target string, status int, body []byte) error {
	var payload struct {
		Detail json.RawMessage `json:"detail"`
		Error  string          `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		if detail := detailText(payload.Detail); detail != "" {
			return &schema.RemoteError{Op: op, Status: status, Detail: detail}
		}
		if strings.TrimSpace(payload.Error) != "" {
			return &schema.RemoteError{Op: op, Status: status, Detail: payload.Error}
		}
	}
	return &schema.NetworkError{Op: op, URL: target, Status: status}
}

// detailText accepts a plain string detail or any other JSON value, which is
// passed through verbatim (validation errors arrive as lists).
func detailText(raw json.RawMessage) string {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return ""
	}
	var text string
	if err := json.Unmarshal(trimmed, &text); err == nil {
		return text
	}
	return string(trimmed)
}
