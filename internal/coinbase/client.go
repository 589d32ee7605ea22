// Package coinbase talks to the Coinbase exchange-rates API. The only shape
// consumed is GET {base_url}?currency={CUR} returning
// {"data":{"currency":"CUR","rates":{"CODE":"<float>",...}}}.
package coinbase

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"cryptoprice/internal/rates"
)

const defaultBaseURL = "https://api.coinbase.com/v2/exchange-rates"

// HTTPClient describes an HTTP client.
//
//go:generate mockgen -package=coinbase_test -destination=mock_http_client_test.go -source=client.go HTTPClient
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client is a client for the Coinbase exchange-rates API.
type Client struct {
	// baseURL is the exchange-rates endpoint.
	baseURL string
	// httpClient is the HTTP client used for requests.
	httpClient HTTPClient
	// header contains additional headers to be sent with each request.
	header http.Header
}

// Option is a configuration option for the client.
type Option func(*Client)

// WithBaseURL sets the exchange-rates endpoint.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		if baseURL != "" {
			c.baseURL = baseURL
		}
	}
}

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(httpClient HTTPClient) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithHeader adds headers to be sent with each request.
func WithHeader(header http.Header) Option {
	return func(c *Client) {
		for key, values := range header {
			for _, value := range values {
				c.header.Add(key, value)
			}
		}
	}
}

// NewClient creates a new Coinbase exchange-rates client.
func NewClient(options ...Option) *Client {
	c := &Client{
		baseURL:    defaultBaseURL,
		httpClient: http.DefaultClient,
		header:     http.Header{},
	}
	for _, option := range options {
		option(c)
	}
	return c
}

// ratesResponse is the minimal upstream document shape.
type ratesResponse struct {
	Data struct {
		Currency string            `json:"currency"`
		Rates    map[string]string `json:"rates"`
	} `json:"data"`
}

// FetchRates returns the exchange rates pivoted on currency. Rates arrive as
// stringified floats; values that do not parse are skipped.
func (c *Client) FetchRates(ctx context.Context, currency string) (rates.Table, error) {
	u := c.baseURL + "?currency=" + url.QueryEscape(currency)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	for key, values := range c.header {
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", u, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 2<<10))
		return nil, fmt.Errorf("GET %s -> %d: %s", u, resp.StatusCode, string(b))
	}

	var doc ratesResponse
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode exchange rates: %w", err)
	}

	table := make(rates.Table, len(doc.Data.Rates))
	for code, raw := range doc.Data.Rates {
		rate, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			continue
		}
		table[code] = rate
	}
	return table, nil
}
