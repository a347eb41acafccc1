// Package exchange implements the ports.Exchange contract against a
// Kalshi-style REST API: request signing, rate limiting, and the mapping
// between wire shapes and the domain model.
package exchange

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/dcaraballo/kalshimm/internal/domain"
	"github.com/dcaraballo/kalshimm/internal/ports"
)

const (
	cancelRetryAttempts = 3
	cancelRetryDelay    = time.Second
)

// Client is the ports.Exchange implementation.
type Client struct {
	baseURL string
	http    *http.Client
	signer  *Signer
	limiter *rate.Limiter
}

// NewClient builds a Client against baseURL, signing every request with
// signer and throttling to requestsPerSecond.
func NewClient(baseURL string, signer *Signer, requestsPerSecond float64) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 10 * time.Second},
		signer:  signer,
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), 1),
	}
}

func (c *Client) do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("exchange: rate limiter: %w", err)
	}

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("exchange: marshal request body: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("exchange: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	headers, err := c.signer.Headers(method, path)
	if err != nil {
		return nil, fmt.Errorf("exchange: %w", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("exchange: %s %s: %w: %v", method, path, domain.ErrTransientIO, err)
	}
	return resp, nil
}

type marketWire struct {
	Ticker        string `json:"ticker"`
	EventTicker   string `json:"event_ticker"`
	Title         string `json:"title"`
	YesBid        int    `json:"yes_bid"`
	YesAsk        int    `json:"yes_ask"`
	NoBid         int    `json:"no_bid"`
	NoAsk         int    `json:"no_ask"`
	Status        string `json:"status"`
	CloseTime     string `json:"close_time"`
	ExpirationTime string `json:"expiration_time"`
}

type listMarketsResponse struct {
	Markets []marketWire `json:"markets"`
}

// ListMarkets implements ports.Exchange.
func (c *Client) ListMarkets(ctx context.Context, seriesTicker, status string, limit int) ([]domain.Contract, error) {
	q := url.Values{}
	if seriesTicker != "" {
		q.Set("series_ticker", seriesTicker)
	}
	if status != "" {
		q.Set("status", status)
	}
	q.Set("limit", strconv.Itoa(limit))

	path := "/trade-api/v2/markets?" + q.Encode()
	resp, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, fmt.Errorf("exchange: list markets: %w", domain.ErrAuthRequired)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("exchange: list markets: status %d: %w", resp.StatusCode, domain.ErrTransientIO)
	}

	var out listMarketsResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("exchange: decode list markets: %w", err)
	}

	contracts := make([]domain.Contract, 0, len(out.Markets))
	for _, m := range out.Markets {
		closeTime, err := time.Parse(time.RFC3339, m.CloseTime)
		if err != nil {
			continue
		}
		contracts = append(contracts, domain.Contract{
			Ticker:            m.Ticker,
			Title:             m.Title,
			CloseTime:         closeTime,
			SecondsUntilClose: int64(time.Until(closeTime).Seconds()),
		})
	}
	return contracts, nil
}

type orderBookResponse struct {
	OrderBook struct {
		Yes [][2]int `json:"yes"`
		No  [][2]int `json:"no"`
	} `json:"orderbook"`
}

// GetOrderBook implements ports.Exchange. The exchange returns YES and NO
// bid levels directly; ask sides are derived by domain.Book's accessors
// via the 100-p identity, so only bids are populated here.
func (c *Client) GetOrderBook(ctx context.Context, ticker string) (domain.Book, error) {
	path := fmt.Sprintf("/trade-api/v2/markets/%s/orderbook", ticker)
	resp, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return domain.Book{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return domain.Book{}, fmt.Errorf("exchange: orderbook %s: status %d: %w", ticker, resp.StatusCode, domain.ErrTransientIO)
	}

	var out orderBookResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return domain.Book{}, fmt.Errorf("exchange: decode orderbook %s: %w", ticker, err)
	}

	return domain.Book{
		YesBids: levelsFromPairs(out.OrderBook.Yes),
		NoBids:  levelsFromPairs(out.OrderBook.No),
	}, nil
}

func levelsFromPairs(pairs [][2]int) []domain.Level {
	levels := make([]domain.Level, 0, len(pairs))
	for _, p := range pairs {
		levels = append(levels, domain.Level{PriceCents: p[0], Size: p[1]})
	}
	return levels
}

type placeOrderWire struct {
	Ticker      string `json:"ticker"`
	Action      string `json:"action"`
	Side        string `json:"side"`
	Type        string `json:"type"`
	Count       int    `json:"count"`
	YesPrice    int    `json:"yes_price,omitempty"`
	NoPrice     int    `json:"no_price,omitempty"`
	TimeInForce string `json:"time_in_force"`
	PostOnly    bool   `json:"post_only"`
}

type placeOrderResponse struct {
	OrderID string `json:"order_id"`
}

// PlaceOrder implements ports.Exchange.
func (c *Client) PlaceOrder(ctx context.Context, req ports.PlaceOrderRequest) (string, error) {
	wire := placeOrderWire{
		Ticker:      req.Ticker,
		Action:      "buy",
		Side:        string(req.Side),
		Type:        "limit",
		Count:       req.Size,
		TimeInForce: req.TimeInForce,
		PostOnly:    req.PostOnly,
	}
	if req.Side == domain.SideYes {
		wire.YesPrice = req.PriceCents
	} else {
		wire.NoPrice = req.PriceCents
	}

	resp, err := c.do(ctx, http.MethodPost, "/trade-api/v2/orders", wire)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("exchange: place order %s %s: status %d: %w", req.Ticker, req.Side, resp.StatusCode, domain.ErrTransientIO)
	}

	var out placeOrderResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("exchange: decode place order response: %w", err)
	}
	return out.OrderID, nil
}

// CancelOrder implements ports.Exchange, making up to three attempts, 1s
// apart, until one succeeds. A 404 is treated as success (spec.md §4.6).
func (c *Client) CancelOrder(ctx context.Context, exchangeOrderID string) (bool, error) {
	path := fmt.Sprintf("/trade-api/v2/orders/%s", exchangeOrderID)

	var lastErr error
	for attempt := 1; attempt <= cancelRetryAttempts; attempt++ {
		resp, err := c.do(ctx, http.MethodDelete, path, nil)
		if err != nil {
			lastErr = err
		} else {
			resp.Body.Close()
			if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusOK {
				return true, nil
			}
			lastErr = fmt.Errorf("exchange: cancel order %s: status %d: %w", exchangeOrderID, resp.StatusCode, domain.ErrTransientIO)
		}

		if attempt < cancelRetryAttempts {
			select {
			case <-ctx.Done():
				return false, ctx.Err()
			case <-time.After(cancelRetryDelay):
			}
		}
	}
	return false, lastErr
}
