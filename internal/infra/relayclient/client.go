// Package relayclient provides the HTTP client the gate uses to reach the
// overlay server.
package relayclient

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/onair/internal/domain/fault"
)

// Config represents relay client configuration.
type Config struct {
	BaseURL string
	Token   string
	Timeout time.Duration
}

// Client is an overlay server client.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// StatusError is returned when the overlay server answers with a non-2xx status.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return "relay responded with status " + http.StatusText(e.Code) + ": " + e.Body
}

// New creates a new relay client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("relay URL is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}

	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		token:      cfg.Token,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// Deliver posts payload to /message/save and returns the response body.
// Transport failures and non-2xx answers are marked ErrDownstreamUnavailable.
func (c *Client) Deliver(ctx context.Context, payload []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/message/save", bytes.NewReader(payload))
	if err != nil {
		return nil, errors.Wrap(err, "failed to create request")
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	body, err := c.do(req)
	if err != nil {
		return nil, err
	}

	zlog.Debug().Msgf("relayclient: message delivered: bytes=%d", len(payload))
	return body, nil
}

// Ping calls /health and returns the decoded response.
func (c *Client) Ping(ctx context.Context) (map[string]any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create request")
	}

	body, err := c.do(req)
	if err != nil {
		return nil, err
	}

	var health map[string]any
	if err := json.Unmarshal(body, &health); err != nil {
		return nil, fault.Downstream(err, "failed to parse health response")
	}
	return health, nil
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fault.Downstream(err, "failed to send request")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fault.Downstream(err, "failed to read response body")
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fault.Downstream(&StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}, "relay rejected request")
	}
	return body, nil
}
