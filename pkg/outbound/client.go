package outbound

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Client posts JSON documents to one HTTP gateway. It makes a single attempt
// per call; retries belong to the caller.
type Client struct {
	endpoint string
	http     *http.Client
	token    string
	secret   string
	headers  map[string]string
	timeout  time.Duration
	breaker  *Breaker
	now      func() time.Time
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		if c != nil {
			cl.http = c
		}
	}
}

// WithBearerToken sets the Authorization header.
func WithBearerToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithSigningSecret signs every body, see Sign.
func WithSigningSecret(secret string) Option {
	return func(c *Client) { c.secret = secret }
}

func WithHeader(key, value string) Option {
	return func(c *Client) { c.headers[key] = value }
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithBreaker guards the endpoint. Pass nil to disable.
func WithBreaker(b *Breaker) Option {
	return func(c *Client) { c.breaker = b }
}

func New(endpoint string, opts ...Option) (*Client, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("%w: only http and https schemes are supported", ErrInvalidURL)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("%w: host is required", ErrInvalidURL)
	}

	c := &Client{
		endpoint: endpoint,
		http: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		headers: make(map[string]string),
		timeout: 10 * time.Second,
		breaker: NewBreaker(DefaultBreakerConfig),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Endpoint returns the gateway URL.
func (c *Client) Endpoint() string { return c.endpoint }

// Post sends data as JSON. 2xx is success; 4xx other than 408, 425 and 429
// wraps ErrPermanentFailure; everything else wraps ErrTemporaryFailure or
// ErrTimeout. An open breaker fails fast with ErrGatewayUnavailable.
func (c *Client) Post(ctx context.Context, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}

	if c.breaker != nil {
		if err := c.breaker.Acquire(); err != nil {
			return err
		}
	}

	status, err := c.do(ctx, payload)
	if c.breaker != nil {
		// a rejected request says nothing about gateway health
		c.breaker.Done(err == nil || isPermanentStatus(status))
	}
	return err
}

func (c *Client) do(ctx context.Context, payload []byte) (int, error) {
	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrDeliveryFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "notifykit/1.0")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if c.secret != "" {
		sig, ts, err := Sign(c.secret, payload, c.now())
		if err != nil {
			return 0, err
		}
		req.Header.Set(HeaderSignature, sig)
		req.Header.Set(HeaderTimestamp, strconv.FormatInt(ts, 10))
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(reqCtx.Err(), context.DeadlineExceeded) {
			return 0, fmt.Errorf("%w: %w", ErrTimeout, err)
		}
		return 0, fmt.Errorf("%w: %w", ErrTemporaryFailure, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return resp.StatusCode, nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	msg := fmt.Sprintf("gateway returned status %d", resp.StatusCode)
	if len(body) > 0 {
		s := strings.ReplaceAll(string(body), "\n", " ")
		if len(s) > 200 {
			s = s[:200] + "..."
		}
		msg += ": " + s
	}

	if isPermanentStatus(resp.StatusCode) {
		return resp.StatusCode, fmt.Errorf("%w: %s", ErrPermanentFailure, msg)
	}
	return resp.StatusCode, fmt.Errorf("%w: %s", ErrTemporaryFailure, msg)
}

func isPermanentStatus(code int) bool {
	if code < 400 || code >= 500 {
		return false
	}
	switch code {
	case http.StatusRequestTimeout, http.StatusTooEarly, http.StatusTooManyRequests:
		return false
	default:
		return true
	}
}
