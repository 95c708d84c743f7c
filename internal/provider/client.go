// Package provider wraps the BuySteamPoints top-up API.
package provider

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

	"github.com/funpay-tools/steampoints-bot/pkg/logging"
)

const defaultBaseURL = "https://api.buysteampoints.com"

// Config controls how the provider client behaves.
type Config struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     *logging.Logger
}

// Client issues top-up orders and balance probes against BuySteamPoints.
// It is stateless; both calls are pure request/response.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	logger     *logging.Logger
}

// New creates a configured Client with sane defaults.
func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("provider: API key is required")
	}
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	baseURL = strings.TrimRight(baseURL, "/")
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 300 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	return &Client{
		apiKey:     cfg.APIKey,
		baseURL:    baseURL,
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

type buyRequest struct {
	APIKey    string `json:"api_key"`
	Points    int    `json:"puan"`
	SteamLink string `json:"steam_link"`
}

// Submit issues a top-up order for units points to the given profile URL.
// Success requires an HTTP 200 and success:true in the body. Transport
// errors, timeouts and malformed bodies are reported as failures with a
// best-effort detail string; Submit never returns an error to the caller.
func (c *Client) Submit(ctx context.Context, units int, destination string) (bool, string) {
	payload, err := json.Marshal(buyRequest{
		APIKey:    c.apiKey,
		Points:    units,
		SteamLink: strings.TrimSpace(destination),
	})
	if err != nil {
		return false, fmt.Sprintf("marshal request: %v", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/buy", bytes.NewReader(payload))
	if err != nil {
		return false, fmt.Sprintf("build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("provider order request failed", "error", err)
		return false, "HTTP error"
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))

	var decoded map[string]any
	_ = json.Unmarshal(body, &decoded)
	success, _ := decoded["success"].(bool)
	ok := resp.StatusCode == http.StatusOK && success

	c.logger.Info("provider order submitted",
		"status", resp.StatusCode,
		"success", ok,
		"body", truncate(string(body), 300),
	)
	if ok {
		return true, ""
	}
	if msg, found := decoded["error"].(string); found && msg != "" {
		return false, msg
	}
	return false, truncate(strings.TrimSpace(string(body)), 200)
}

// balanceProbe is one candidate endpoint in the balance fallback chain.
// The provider's balance API shape is undocumented; the chain tries known
// variants in order and stops at the first recognized response.
type balanceProbe struct {
	method string
	path   string
	query  bool // api_key in query string instead of JSON body
}

var balanceProbes = []balanceProbe{
	{http.MethodGet, "/api/balance", true},
	{http.MethodPost, "/api/balance", false},
	{http.MethodPost, "/api/wallet", false},
	{http.MethodGet, "/api/info", true},
}

var (
	balanceFields = []string{"balance", "wallet", "remaining_balance", "amount", "available", "available_balance"}
	nestedFields  = []string{"amount", "value", "available", "balance"}
)

// CheckBalance probes the candidate balance endpoints and returns the
// first value it can extract. ok is false when no endpoint is recognized.
// Read-only; no side effects.
func (c *Client) CheckBalance(ctx context.Context) (float64, bool) {
	for _, probe := range balanceProbes {
		value, found := c.tryBalanceProbe(ctx, probe)
		if found {
			return value, true
		}
	}
	c.logger.Warn("provider balance could not be determined (no endpoint recognized)")
	return 0, false
}

func (c *Client) tryBalanceProbe(ctx context.Context, probe balanceProbe) (float64, bool) {
	endpoint := c.baseURL + probe.path
	var bodyReader io.Reader
	if probe.query {
		q := url.Values{}
		q.Set("api_key", c.apiKey)
		endpoint = endpoint + "?" + q.Encode()
	} else {
		payload, err := json.Marshal(map[string]string{"api_key": c.apiKey})
		if err != nil {
			return 0, false
		}
		bodyReader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, probe.method, endpoint, bodyReader)
	if err != nil {
		return 0, false
	}
	if !probe.query {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Debug("balance probe failed", "method", probe.method, "path", probe.path, "error", err)
		return 0, false
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, false
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return 0, false
	}
	return extractBalance(data)
}

// extractBalance tries the known field names on a decoded body: direct
// numeric fields first, then one nesting level, then a bare number.
func extractBalance(data []byte) (float64, bool) {
	var obj map[string]any
	if err := json.Unmarshal(data, &obj); err == nil {
		for _, field := range balanceFields {
			v, found := obj[field]
			if !found {
				continue
			}
			if nested, isMap := v.(map[string]any); isMap {
				for _, inner := range nestedFields {
					if n, ok := asFloat(nested[inner]); ok {
						return n, true
					}
				}
				continue
			}
			if n, ok := asFloat(v); ok {
				return n, true
			}
		}
		return 0, false
	}
	var bare float64
	if err := json.Unmarshal(data, &bare); err == nil {
		return bare, true
	}
	return 0, false
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case string:
		var parsed float64
		if _, err := fmt.Sscanf(strings.TrimSpace(n), "%g", &parsed); err == nil {
			return parsed, true
		}
	}
	return 0, false
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit]
}
