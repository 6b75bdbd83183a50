package advisor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
)

// Advice is one engine suggestion for a position.
type Advice struct {
	BestMove string  `json:"bestmove"`
	Eval     float64 `json:"eval"`
	Depth    int     `json:"depth"`
	Mate     int     `json:"mate,omitempty"`
}

// Client talks to an external analysis service. Advice is cosmetic and
// never authoritative for legality or results, so every failure here is
// soft.
type Client struct {
	baseURL string
	http    *fasthttp.Client

	timeout  time.Duration
	retryMax int
	depthCap int
}

type Option func(*Client)

func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

func WithRetry(max int) Option {
	return func(c *Client) { c.retryMax = max }
}

func WithDepthCap(depth int) Option {
	return func(c *Client) { c.depthCap = depth }
}

func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		http:     &fasthttp.Client{ReadTimeout: 10 * time.Second, WriteTimeout: 10 * time.Second, MaxConnsPerHost: 16},
		timeout:  10 * time.Second,
		retryMax: 2,
		depthCap: 12,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Enabled reports whether a service URL was configured at all.
func (c *Client) Enabled() bool { return c != nil && c.baseURL != "" }

// Analyse asks the service for its best move in the position, a GET
// with fen and depth query parameters.
func (c *Client) Analyse(ctx context.Context, fen string, depth int) (*Advice, error) {
	if !c.Enabled() {
		return nil, errors.New("advisor not configured")
	}
	if depth <= 0 || depth > c.depthCap {
		depth = c.depthCap
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer func() {
		fasthttp.ReleaseRequest(req)
		fasthttp.ReleaseResponse(resp)
	}()

	req.Header.SetMethod(fasthttp.MethodGet)
	req.SetRequestURI(c.baseURL + "/analyse")
	req.URI().QueryArgs().Set("fen", fen)
	req.URI().QueryArgs().Set("depth", strconv.Itoa(depth))

	attempts := c.retryMax
	if attempts <= 0 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		err := c.http.DoDeadline(req, resp, c.deadline(ctx))
		if err != nil {
			lastErr = fmt.Errorf("request failed: %w", err)
			if attempt == attempts {
				return nil, lastErr
			}
			if err := sleepWithContext(ctx, backoffDuration(attempt)); err != nil {
				return nil, lastErr
			}
			continue
		}

		status := resp.StatusCode()
		if status < 200 || status >= 300 {
			lastErr = fmt.Errorf("advisor error: status=%d", status)
			if attempt == attempts || !shouldRetryStatus(status) {
				return nil, lastErr
			}
			if err := sleepWithContext(ctx, backoffDuration(attempt)); err != nil {
				return nil, lastErr
			}
			continue
		}

		var advice Advice
		if err := json.Unmarshal(resp.Body(), &advice); err != nil {
			return nil, fmt.Errorf("decode response: %w", err)
		}
		return &advice, nil
	}
	return nil, lastErr
}

func (c *Client) deadline(ctx context.Context) time.Time {
	clientDL := time.Now().Add(c.timeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(clientDL) {
		return dl
	}
	return clientDL
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func backoffDuration(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 6 {
		attempt = 6
	}
	return time.Duration(1<<uint(attempt-1)) * 100 * time.Millisecond
}

func shouldRetryStatus(code int) bool {
	switch code {
	case 500, 502, 503, 504:
		return true
	default:
		return false
	}
}
