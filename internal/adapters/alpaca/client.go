package alpaca

// client.go — minimal Alpaca REST client with rate limiting and retries.
//
// Rate limits sit well under Alpaca's documented 200 req/min per account;
// the data API gets its own limiter so bar fetches can't starve trading
// calls. Retries cover transport errors, 429s, and 5xx with exponential
// backoff and context-aware sleeps.

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"time"

	"github.com/matthewp131/algotrader/internal/domain"
	"golang.org/x/time/rate"
)

const (
	defaultTradingBase = "https://paper-api.alpaca.markets"
	defaultDataBase    = "https://data.alpaca.markets"

	tradingRatePerSec = 3
	dataRatePerSec    = 3

	maxRetries    = 3
	baseRetryWait = 500 * time.Millisecond
)

// Client is the authenticated HTTP client shared by one broker session.
type Client struct {
	http           *http.Client
	tradingBase    string
	dataBase       string
	creds          domain.Credentials
	tradingLimiter *rate.Limiter
	dataLimiter    *rate.Limiter
}

// NewClient creates a Client for the given credentials. Empty base URLs
// fall back to Alpaca's paper-trading and data endpoints.
func NewClient(tradingBase, dataBase string, creds domain.Credentials) *Client {
	if tradingBase == "" {
		tradingBase = defaultTradingBase
	}
	if dataBase == "" {
		dataBase = defaultDataBase
	}
	return &Client{
		http:           &http.Client{Timeout: 10 * time.Second},
		tradingBase:    tradingBase,
		dataBase:       dataBase,
		creds:          creds,
		tradingLimiter: rate.NewLimiter(tradingRatePerSec, 5),
		dataLimiter:    rate.NewLimiter(dataRatePerSec, 5),
	}
}

// get performs an authenticated GET and decodes the JSON response into out.
func (c *Client) get(ctx context.Context, limiter *rate.Limiter, url string, out any) error {
	return c.doWithRetry(ctx, limiter, func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		c.authorize(req)
		return c.http.Do(req)
	}, out)
}

// post performs an authenticated JSON POST and decodes the response.
func (c *Client) post(ctx context.Context, limiter *rate.Limiter, url string, body, out any) error {
	return c.doWithRetry(ctx, limiter, func() (*http.Response, error) {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal body: %w", err)
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		c.authorize(req)
		return c.http.Do(req)
	}, out)
}

// delete performs an authenticated DELETE; Alpaca returns no useful body.
func (c *Client) delete(ctx context.Context, limiter *rate.Limiter, url string) error {
	return c.doWithRetry(ctx, limiter, func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodDelete, url, nil)
		if err != nil {
			return nil, err
		}
		c.authorize(req)
		return c.http.Do(req)
	}, nil)
}

func (c *Client) authorize(req *http.Request) {
	req.Header.Set("APCA-API-KEY-ID", c.creds.Key)
	req.Header.Set("APCA-API-SECRET-KEY", c.creds.Secret)
	req.Header.Set("Accept", "application/json")
}

// errNotFound marks a 404 so callers can map it to an absent resource.
type errNotFound struct{ body string }

func (e *errNotFound) Error() string { return "not found: " + e.body }

// doWithRetry runs the request with exponential backoff on transient failures.
func (c *Client) doWithRetry(ctx context.Context, limiter *rate.Limiter, fn func() (*http.Response, error), out any) error {
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if err := limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}

		resp, err := fn()
		if err != nil {
			if attempt == maxRetries {
				return fmt.Errorf("request failed after %d retries: %w", maxRetries, err)
			}
			c.sleep(ctx, attempt)
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			resp.Body.Close()
			slog.Warn("rate limited by broker API", "attempt", attempt+1)
			c.sleep(ctx, attempt)
			continue
		}

		if resp.StatusCode >= 500 {
			resp.Body.Close()
			if attempt == maxRetries {
				return fmt.Errorf("server error %d after %d retries", resp.StatusCode, maxRetries)
			}
			c.sleep(ctx, attempt)
			continue
		}

		if resp.StatusCode == http.StatusNotFound {
			body, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			return &errNotFound{body: string(body)}
		}

		if resp.StatusCode >= 400 {
			body, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			return fmt.Errorf("client error %d: %s", resp.StatusCode, string(body))
		}

		defer resp.Body.Close()
		if out == nil {
			io.Copy(io.Discard, resp.Body)
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		return nil
	}
	return fmt.Errorf("exhausted %d retries", maxRetries)
}

// sleep waits with exponential backoff, respecting the context.
func (c *Client) sleep(ctx context.Context, attempt int) {
	wait := time.Duration(math.Pow(2, float64(attempt))) * baseRetryWait
	select {
	case <-time.After(wait):
	case <-ctx.Done():
	}
}
