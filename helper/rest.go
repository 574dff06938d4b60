package helper

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

	"golang.org/x/time/rate"
)

// StatusError is returned by RestClient.Post for non 2xx responses.
type StatusError struct {
	StatusCode int
	Body       string
	RetryAfter time.Duration
}

func (e *StatusError) Error() string {
	body := e.Body
	if len(body) > 300 {
		body = body[:300] + "..."
	}
	return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, body)
}

// Retriable reports whether the status is worth another attempt.
func (e *StatusError) Retriable() bool {
	return e.StatusCode == http.StatusRequestTimeout ||
		e.StatusCode == http.StatusTooManyRequests ||
		e.StatusCode >= 500
}

// RestClient is a small JSON-over-HTTP client for OpenAI compatible endpoints.
type RestClient struct {
	baseURL    string
	headers    map[string]string
	query      url.Values
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewRestClient creates a RestClient. A nil httpClient uses http.DefaultClient.
func NewRestClient(baseURL string, headers map[string]string, query url.Values, httpClient *http.Client) *RestClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &RestClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		headers:    headers,
		query:      query,
		httpClient: httpClient,
	}
}

// WithRateLimit limits Post to rps requests per second with the given burst.
// A non-positive rps disables the limit.
func (c *RestClient) WithRateLimit(rps float64, burst int) *RestClient {
	if rps <= 0 {
		c.limiter = nil
		return c
	}
	if burst < 1 {
		burst = 1
	}
	c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	return c
}

// Post sends body as JSON to endpoint and returns the raw response body.
// Non 2xx responses are returned as *StatusError.
func (c *RestClient) Post(ctx context.Context, endpoint string, body interface{}) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, NewError("rate limit", err)
		}
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, NewError("marshal request", err)
	}

	target := c.baseURL + "/" + strings.TrimLeft(endpoint, "/")
	if len(c.query) > 0 {
		target += "?" + c.query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(payload))
	if err != nil {
		return nil, NewError("create request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, NewError("send request", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, NewError("read response", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{
			StatusCode: resp.StatusCode,
			Body:       string(respBody),
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
		}
	}

	return respBody, nil
}

// ClassifyHTTPError prepares an error of Post for RetryPolicy.Do.
// Transport errors and retriable statuses stay retriable, other statuses become permanent.
func ClassifyHTTPError(err error) error {
	if err == nil {
		return nil
	}
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		return err
	}
	if !statusErr.Retriable() {
		return Permanent(err)
	}
	if statusErr.RetryAfter > 0 {
		return &RetryAfterError{Err: err, After: statusErr.RetryAfter}
	}
	return err
}

func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}
