// Package rates fetches the USD/BRL exchange rate.
package rates

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DefaultURL is the public quote endpoint; the pair is appended as a path segment.
const DefaultURL = "https://economia.awesomeapi.com.br/last"

// ErrNoQuote means the response did not carry the requested pair.
var ErrNoQuote = errors.New("no quote in response")

// Fetcher returns the latest bid for a currency pair.
type Fetcher interface {
	Fetch(ctx context.Context) (decimal.Decimal, error)
}

// Client queries the quote API over HTTP.
type Client struct {
	baseURL string
	pair    string
	http    *http.Client
}

// NewClient returns a client for pair (e.g. "USD-BRL"). A nil hc gets a
// client with a 10 second timeout.
func NewClient(baseURL, pair string, hc *http.Client) *Client {
	if baseURL == "" {
		baseURL = DefaultURL
	}
	if pair == "" {
		pair = "USD-BRL"
	}
	if hc == nil {
		hc = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), pair: pair, http: hc}
}

type quote struct {
	Bid string `json:"bid"`
}

// Fetch returns the current bid.
func (c *Client) Fetch(ctx context.Context) (decimal.Decimal, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/"+c.pair, nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("build rate request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return decimal.Zero, fmt.Errorf("fetch rate: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return decimal.Zero, fmt.Errorf("fetch rate: unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var payload map[string]quote
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return decimal.Zero, fmt.Errorf("decode rate response: %w", err)
	}

	key := strings.ReplaceAll(c.pair, "-", "")
	q, ok := payload[key]
	if !ok || q.Bid == "" {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrNoQuote, key)
	}
	bid, err := decimal.NewFromString(q.Bid)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse bid %q: %w", q.Bid, err)
	}
	if !bid.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: non-positive bid %s", ErrNoQuote, q.Bid)
	}
	return bid, nil
}

var _ Fetcher = (*Client)(nil)
