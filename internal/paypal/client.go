package paypal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

var (
	// ErrAuth indicates the processor rejected our credentials or no
	// access token could be obtained.
	ErrAuth = errors.New("paypal: authentication failed")
)

// APIError is a non-2xx response from the PayPal API. The response body is
// retained for logging; callers must not echo it to end users verbatim.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("paypal: API error: status %d: %s", e.Status, e.Body)
}

// Transient reports whether the error is worth retrying.
func (e *APIError) Transient() bool {
	return e.Status >= 500
}

// tokenExpiryMargin is subtracted from the processor-reported token lifetime
// so we never send a token that expires mid-flight.
const tokenExpiryMargin = 60 * time.Second

const (
	defaultMaxAttempts  = 3
	defaultRetryBackoff = 500 * time.Millisecond
)

// Client talks to the PayPal REST API. It owns the cached OAuth access token
// and is safe for concurrent use.
type Client struct {
	baseURL      string
	clientID     string
	clientSecret string
	webhookID    string
	returnURL    string
	cancelURL    string

	httpClient   *http.Client
	maxAttempts  int
	retryBackoff time.Duration

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

// Options configures a Client.
type Options struct {
	BaseURL      string
	ClientID     string
	ClientSecret string
	WebhookID    string
	ReturnURL    string
	CancelURL    string

	// HTTPClient is optional; a 10s-timeout client is used when nil.
	HTTPClient *http.Client
	// MaxAttempts bounds retries on transient failures (default 3).
	MaxAttempts int
	// RetryBackoff is the base delay between attempts (default 500ms).
	RetryBackoff time.Duration
}

func NewClient(opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	maxAttempts := opts.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	backoff := opts.RetryBackoff
	if backoff <= 0 {
		backoff = defaultRetryBackoff
	}
	return &Client{
		baseURL:      strings.TrimSuffix(opts.BaseURL, "/"),
		clientID:     opts.ClientID,
		clientSecret: opts.ClientSecret,
		webhookID:    opts.WebhookID,
		returnURL:    opts.ReturnURL,
		cancelURL:    opts.CancelURL,
		httpClient:   httpClient,
		maxAttempts:  maxAttempts,
		retryBackoff: backoff,
	}
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

// AccessToken returns a valid OAuth access token, fetching a new one via the
// client-credentials grant when the cached token is missing or near expiry.
func (c *Client) AccessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && time.Now().Before(c.tokenExpiry) {
		return c.token, nil
	}

	form := url.Values{"grant_type": {"client_credentials"}}
	body, err := c.doWithRetry(ctx, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost,
			c.baseURL+"/v1/oauth2/token", strings.NewReader(form.Encode()))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.SetBasicAuth(c.clientID, c.clientSecret)
		return req, nil
	})
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Status == http.StatusUnauthorized {
			return "", fmt.Errorf("%w: %v", ErrAuth, err)
		}
		return "", fmt.Errorf("%w: %v", ErrAuth, err)
	}

	var tok tokenResponse
	if err := json.Unmarshal(body, &tok); err != nil {
		return "", fmt.Errorf("%w: decoding token response: %v", ErrAuth, err)
	}
	if tok.AccessToken == "" {
		return "", ErrAuth
	}

	c.token = tok.AccessToken
	c.tokenExpiry = time.Now().Add(time.Duration(tok.ExpiresIn)*time.Second - tokenExpiryMargin)
	return c.token, nil
}

// post issues an authenticated JSON POST and returns the response body.
func (c *Client) post(ctx context.Context, path string, payload []byte) ([]byte, error) {
	token, err := c.AccessToken(ctx)
	if err != nil {
		return nil, err
	}

	return c.doWithRetry(ctx, func() (*http.Request, error) {
		var body io.Reader
		if payload != nil {
			body = strings.NewReader(string(payload))
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, body)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+token)
		return req, nil
	})
}

// doWithRetry executes the request with bounded retry on transport errors and
// 5xx responses. 4xx responses are returned immediately; they will not change
// on retry.
func (c *Client) doWithRetry(ctx context.Context, build func() (*http.Request, error)) ([]byte, error) {
	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(attempt-1) * c.retryBackoff):
			}
		}

		req, err := build()
		if err != nil {
			return nil, err
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			continue
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = err
			continue
		}

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return body, nil
		}

		apiErr := &APIError{Status: resp.StatusCode, Body: string(body)}
		if !apiErr.Transient() {
			return nil, apiErr
		}
		log.Printf("[PayPal] %s %s returned %d (attempt %d/%d)", req.Method, req.URL.Path, resp.StatusCode, attempt, c.maxAttempts)
		lastErr = apiErr
	}
	return nil, lastErr
}
