package funpay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/funpay-tools/steampoints-bot/pkg/logging"
)

const (
	defaultBaseURL   = "https://funpay.com/api/v1"
	defaultUserAgent = "steampoints-bot/0.1"
)

// Config controls how the FunPay client behaves.
type Config struct {
	BaseURL    string
	AuthToken  string
	Timeout    time.Duration
	MaxRetries int
	Backoff    time.Duration
	HTTPClient *http.Client
	Logger     *logging.Logger
	UserAgent  string
}

// Client wraps the FunPay REST endpoints the bot needs: account identity,
// order detail, chat messaging, refunds and listing management.
type Client struct {
	authToken  string
	baseURL    string
	httpClient *http.Client
	maxRetries int
	backoff    time.Duration
	logger     *logging.Logger
	userAgent  string
}

// New creates a configured Client with sane defaults.
func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.AuthToken) == "" {
		return nil, errors.New("funpay: auth token is required")
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
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	maxRetries := cfg.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	backoff := cfg.Backoff
	if backoff <= 0 {
		backoff = 250 * time.Millisecond
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	userAgent := strings.TrimSpace(cfg.UserAgent)
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	return &Client{
		authToken:  cfg.AuthToken,
		baseURL:    baseURL,
		httpClient: httpClient,
		maxRetries: maxRetries,
		backoff:    backoff,
		logger:     logger,
		userAgent:  userAgent,
	}, nil
}

// GetAccount fetches the authenticated seller identity.
func (c *Client) GetAccount(ctx context.Context) (*Account, error) {
	data, err := c.invoke(ctx, http.MethodGet, "/account", nil, nil)
	if err != nil {
		return nil, err
	}
	return decode[Account](data)
}

// GetOrder fetches the full order snapshot by id.
func (c *Client) GetOrder(ctx context.Context, orderID string) (*Order, error) {
	if strings.TrimSpace(orderID) == "" {
		return nil, errors.New("funpay: order id required")
	}
	data, err := c.invoke(ctx, http.MethodGet, "/orders/"+url.PathEscape(orderID), nil, nil)
	if err != nil {
		return nil, err
	}
	return decode[Order](data)
}

// SendMessage posts a text message into a chat.
func (c *Client) SendMessage(ctx context.Context, chatID int64, text string) error {
	if text == "" {
		return errors.New("funpay: message text required")
	}
	body, err := json.Marshal(map[string]any{"chat_id": chatID, "text": text})
	if err != nil {
		return fmt.Errorf("funpay: marshal message: %w", err)
	}
	_, err = c.invoke(ctx, http.MethodPost, "/messages", nil, body)
	return err
}

// Refund requests a refund for the given order.
func (c *Client) Refund(ctx context.Context, orderID string) error {
	if strings.TrimSpace(orderID) == "" {
		return errors.New("funpay: order id required")
	}
	_, err := c.invoke(ctx, http.MethodPost, "/orders/"+url.PathEscape(orderID)+"/refund", nil, nil)
	return err
}

// ListListings enumerates the seller's listings in a subcategory.
func (c *Client) ListListings(ctx context.Context, subcategoryID int) ([]Listing, error) {
	q := url.Values{}
	q.Set("subcategory_id", strconv.Itoa(subcategoryID))
	data, err := c.invoke(ctx, http.MethodGet, "/lots", q, nil)
	if err != nil {
		return nil, err
	}
	var listings []Listing
	if err := json.Unmarshal(data, &listings); err != nil {
		return nil, fmt.Errorf("funpay: decode listings: %w", err)
	}
	return listings, nil
}

// GetListing fetches the editable fields of one listing.
func (c *Client) GetListing(ctx context.Context, listingID int64) (*Listing, error) {
	data, err := c.invoke(ctx, http.MethodGet, "/lots/"+strconv.FormatInt(listingID, 10), nil, nil)
	if err != nil {
		return nil, err
	}
	return decode[Listing](data)
}

// SaveListing persists a listing, including its active flag.
func (c *Client) SaveListing(ctx context.Context, listing *Listing) error {
	if listing == nil || listing.ID == 0 {
		return errors.New("funpay: listing with id required")
	}
	body, err := json.Marshal(listing)
	if err != nil {
		return fmt.Errorf("funpay: marshal listing: %w", err)
	}
	_, err = c.invoke(ctx, http.MethodPut, "/lots/"+strconv.FormatInt(listing.ID, 10), nil, body)
	return err
}

func (c *Client) invoke(ctx context.Context, method, path string, query url.Values, body []byte) ([]byte, error) {
	fullURL := c.buildURL(path, query)
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		var bodyReader io.Reader
		if body != nil {
			bodyReader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, fullURL, bodyReader)
		if err != nil {
			return nil, fmt.Errorf("funpay: build request: %w", err)
		}
		req.Header.Set("Authorization", "GoldenKey "+c.authToken)
		req.Header.Set("User-Agent", c.userAgent)
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if !shouldRetry(0, err) || attempt == c.maxRetries {
				return nil, fmt.Errorf("funpay: http error: %w", err)
			}
			lastErr = err
			c.logRetry(path, attempt, 0, err)
			if sleepErr := c.sleep(ctx, attempt); sleepErr != nil {
				return nil, sleepErr
			}
			continue
		}
		data, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			return nil, fmt.Errorf("funpay: read response: %w", readErr)
		}
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return data, nil
		}
		apiErr := decodeAPIError(resp.StatusCode, data)
		if attempt < c.maxRetries && shouldRetry(resp.StatusCode, nil) {
			lastErr = apiErr
			c.logRetry(path, attempt, resp.StatusCode, apiErr)
			if sleepErr := c.sleep(ctx, attempt); sleepErr != nil {
				return nil, sleepErr
			}
			continue
		}
		return nil, apiErr
	}
	if lastErr != nil {
		return nil, lastErr
	}
	return nil, errors.New("funpay: request failed without response")
}

func (c *Client) buildURL(path string, query url.Values) string {
	full := c.baseURL + "/" + strings.TrimLeft(path, "/")
	if len(query) > 0 {
		full = full + "?" + query.Encode()
	}
	return full
}

func (c *Client) sleep(ctx context.Context, attempt int) error {
	delay := c.backoff * time.Duration(1<<attempt)
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (c *Client) logRetry(path string, attempt int, status int, err error) {
	if c.logger == nil {
		return
	}
	c.logger.Warn("funpay retry",
		"path", path,
		"attempt", attempt+1,
		"status", status,
		"error", err,
	)
}

func shouldRetry(status int, err error) bool {
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return true
		}
		return !errors.Is(err, context.Canceled)
	}
	if status == http.StatusTooManyRequests {
		return true
	}
	return status >= 500 && status <= 599
}

type apiError struct {
	StatusCode int    `json:"-"`
	Message    string `json:"message,omitempty"`
	Detail     string `json:"detail,omitempty"`
}

func (e *apiError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("funpay: %s (status=%d)", e.Message, e.StatusCode)
	}
	if e.Detail != "" {
		return fmt.Sprintf("funpay: %s (status=%d)", e.Detail, e.StatusCode)
	}
	return fmt.Sprintf("funpay: http status %d", e.StatusCode)
}

func decodeAPIError(status int, body []byte) error {
	var parsed apiError
	if err := json.Unmarshal(body, &parsed); err != nil {
		return &apiError{StatusCode: status, Detail: strings.TrimSpace(string(body))}
	}
	parsed.StatusCode = status
	return &parsed
}

func decode[T any](body []byte) (*T, error) {
	var out T
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("funpay: decode response: %w", err)
	}
	return &out, nil
}
