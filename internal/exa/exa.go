// Package exa fetches the text dump of an X profile through the Exa contents
// API.
package exa

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/codeGROOVE-dev/retry"
	"github.com/maypok86/otter/v2"
	"go.uber.org/zap"
)

// DefaultBaseURL is the Exa API root.
const DefaultBaseURL = "https://api.exa.ai"

// ErrNoResults is returned when Exa answers successfully but has no text for
// the requested profile.
var ErrNoResults = errors.New("exa: no results")

// CleanUsername trims s and drops a single leading "@".
func CleanUsername(s string) string {
	return strings.TrimPrefix(strings.TrimSpace(s), "@")
}

// ProfileURL returns the canonical X profile URL for user.
func ProfileURL(user string) string {
	return "https://x.com/" + CleanUsername(user)
}

// Client calls the Exa contents endpoint. It is safe for concurrent use.
type Client struct {
	baseURL  string
	apiKey   string
	http     *http.Client
	logger   *zap.Logger
	cache    *otter.Cache[string, string]
	attempts uint
	delay    time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides DefaultBaseURL.
func WithBaseURL(u string) Option {
	return func(c *Client) {
		if u != "" {
			c.baseURL = strings.TrimRight(u, "/")
		}
	}
}

// WithHTTPClient sets the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.http = h
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithRetry sets the attempt count and base backoff delay.
func WithRetry(attempts uint, delay time.Duration) Option {
	return func(c *Client) {
		if attempts > 0 {
			c.attempts = attempts
		}
		c.delay = delay
	}
}

// WithCacheTTL sets how long fetched text is reused. A zero TTL disables the
// cache.
func WithCacheTTL(ttl time.Duration) Option {
	return func(c *Client) {
		if ttl <= 0 {
			c.cache = nil
			return
		}
		c.cache = newCache(ttl)
	}
}

func newCache(ttl time.Duration) *otter.Cache[string, string] {
	return otter.Must(&otter.Options[string, string]{
		MaximumSize:      1_000,
		ExpiryCalculator: otter.ExpiryWriting[string, string](ttl),
	})
}

// New returns a Client authenticating with apiKey.
func New(apiKey string, opts ...Option) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("exa: api key is required")
	}
	c := &Client{
		baseURL:  DefaultBaseURL,
		apiKey:   apiKey,
		http:     &http.Client{Timeout: 60 * time.Second},
		logger:   zap.NewNop(),
		cache:    newCache(15 * time.Minute),
		attempts: 5,
		delay:    time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

type contentsRequest struct {
	IDs       []string `json:"ids"`
	Text      bool     `json:"text"`
	Livecrawl string   `json:"livecrawl"`
}

type result struct {
	ID    string `json:"id"`
	URL   string `json:"url"`
	Title string `json:"title"`
	Text  string `json:"text"`
}

// contentsResponse accepts both the bare and the "data"-wrapped shapes.
type contentsResponse struct {
	Results []result `json:"results"`
	Data    *struct {
		Results []result `json:"results"`
	} `json:"data"`
}

func (r contentsResponse) results() []result {
	if len(r.Results) == 0 && r.Data != nil {
		return r.Data.Results
	}
	return r.Results
}

// statusError is a non-2xx answer from Exa.
type statusError struct {
	Code int
	Body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("exa: HTTP %d: %s", e.Code, e.Body)
}

// FetchProfileText returns the raw text dump of user's profile. Rate limiting
// and server errors are retried with full-jitter backoff; other failures are
// returned at once.
func (c *Client) FetchProfileText(ctx context.Context, user string) (string, error) {
	url := ProfileURL(user)
	if c.cache != nil {
		if text, ok := c.cache.GetIfPresent(url); ok {
			c.logger.Debug("exa cache hit", zap.String("url", url))
			return text, nil
		}
	}

	payload, err := json.Marshal(contentsRequest{IDs: []string{url}, Text: true, Livecrawl: "always"})
	if err != nil {
		return "", fmt.Errorf("exa: encode request: %w", err)
	}

	var body []byte
	err = retry.Do(
		func() error {
			b, err := c.post(ctx, payload)
			if err != nil {
				var se *statusError
				if errors.As(err, &se) && se.Code != http.StatusTooManyRequests && se.Code < 500 {
					return retry.Unrecoverable(err)
				}
				return err
			}
			body = b
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(c.attempts),
		retry.Delay(c.delay),
		retry.MaxDelay(2*time.Minute),
		retry.DelayType(retry.FullJitterBackoffDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			c.logger.Debug("retrying exa fetch",
				zap.Uint("attempt", n+1),
				zap.String("url", url),
				zap.Error(err))
		}),
	)
	if err != nil {
		return "", fmt.Errorf("exa: fetch %s: %w", url, err)
	}

	var resp contentsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("exa: decode response: %w", err)
	}
	results := resp.results()
	if len(results) == 0 || strings.TrimSpace(results[0].Text) == "" {
		return "", fmt.Errorf("%w for %s", ErrNoResults, url)
	}

	text := results[0].Text
	if c.cache != nil {
		c.cache.Set(url, text)
	}
	c.logger.Debug("exa fetch complete", zap.String("url", url), zap.Int("bytes", len(text)))
	return text, nil
}

// post sends one contents request and returns the body of a 2xx answer.
func (c *Client) post(ctx context.Context, payload []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/contents", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("exa: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			c.logger.Debug("failed to close response body", zap.Error(err))
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 1024)) //nolint:errcheck // best effort for the error message
		return nil, &statusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}
	return io.ReadAll(resp.Body)
}
