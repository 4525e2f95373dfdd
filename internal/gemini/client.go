package gemini

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pixelbot/pixelbot/internal/logger"
)

const (
	defaultBaseURL = "https://generativelanguage.googleapis.com"
	attemptTimeout = 60 * time.Second
)

// Config holds provider connection settings.
type Config struct {
	APIKey  string
	Model   string
	BaseURL string
	// ProxyServiceURL, when set, fully replaces the direct provider URL;
	// the service re-exposes the same path shape.
	ProxyServiceURL string
	// ProxyURL is a raw HTTP-level proxy, honored only when the proxy
	// service is not in use.
	ProxyURL string
}

// StatusError is a terminal, non-retryable provider response.
type StatusError struct {
	Code int
	Hint string
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("provider returned status %d: %s", e.Code, e.Hint)
}

// Client executes generateContent calls with bounded retry on transient
// overload and transport failures.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

func NewClient(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("api key not configured")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}

	transport := http.DefaultTransport
	if cfg.ProxyURL != "" && cfg.ProxyServiceURL == "" {
		proxy, err := url.Parse(cfg.ProxyURL)
		if err != nil {
			return nil, fmt.Errorf("parse proxy url: %w", err)
		}
		transport = &http.Transport{Proxy: http.ProxyURL(proxy)}
	}

	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout:   attemptTimeout,
			Transport: transport,
		},
	}, nil
}

func (c *Client) endpoint() string {
	base := c.cfg.BaseURL
	if c.cfg.ProxyServiceURL != "" {
		base = strings.TrimRight(c.cfg.ProxyServiceURL, "/")
	}
	return fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s",
		strings.TrimRight(base, "/"), c.cfg.Model, url.QueryEscape(c.cfg.APIKey))
}

// Do posts the serialized payload, retrying per policy on HTTP 503 (plus
// any extra statuses the policy names) and on transport errors. Any other
// status terminates immediately with a StatusError. Returns the raw
// response body for classification.
func (c *Client) Do(ctx context.Context, payload []byte, policy RetryPolicy) ([]byte, error) {
	endpoint := c.endpoint()
	delay := policy.BaseDelay
	if delay <= 0 {
		delay = time.Second
	}

	var lastErr error
	for attempt := 0; attempt <= policy.MaxRetries; attempt++ {
		if attempt > 0 {
			if err := sleepCtx(ctx, delay); err != nil {
				return nil, err
			}
			delay = time.Duration(float64(delay) * policy.Multiplier)
			if policy.MaxDelay > 0 && delay > policy.MaxDelay {
				delay = policy.MaxDelay
			}
		}

		body, status, err := c.post(ctx, endpoint, payload)
		if err != nil {
			lastErr = err
			logger.Warn("provider request failed",
				"attempt", attempt+1, "max", policy.MaxRetries+1, "error", err)
			continue
		}

		if status == http.StatusOK {
			if len(bytes.TrimSpace(body)) == 0 {
				return nil, fmt.Errorf("provider returned an empty body")
			}
			return body, nil
		}

		if !retryable(status, policy) {
			return nil, &StatusError{Code: status, Hint: statusHint(status), Body: string(body)}
		}

		lastErr = fmt.Errorf("provider overloaded (status %d)", status)
		logger.Warn("provider overloaded, retrying",
			"status", status, "attempt", attempt+1, "max", policy.MaxRetries+1)
	}

	return nil, fmt.Errorf("retries exhausted: %w", lastErr)
}

func (c *Client) post(ctx context.Context, endpoint string, payload []byte) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("read response: %w", err)
	}
	return body, resp.StatusCode, nil
}

func retryable(status int, policy RetryPolicy) bool {
	if status == http.StatusServiceUnavailable {
		return true
	}
	for _, s := range policy.ExtraRetryStatuses {
		if status == s {
			return true
		}
	}
	return false
}

func statusHint(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "malformed request, check the API version or parameters"
	case http.StatusUnauthorized:
		return "API key invalid or unauthorized"
	case http.StatusForbidden:
		return "access forbidden, check the API key or account status"
	case http.StatusTooManyRequests:
		return "rate limited, try again later"
	default:
		return fmt.Sprintf("unexpected status %d", status)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
