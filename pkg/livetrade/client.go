// Package livetrade is a Go client for the livetrade-server HTTP API.
package livetrade

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Order mirrors the server's order representation.
type Order struct {
	ID          string    `json:"id"`
	BrokerID    string    `json:"broker_id,omitempty"`
	Symbol      string    `json:"sid"`
	Action      string    `json:"action"`
	Qty         int64     `json:"quant"`
	Price       float64   `json:"price"`
	Type        string    `json:"order_type"`
	FilledQty   int64     `json:"deal_quant"`
	FilledPrice float64   `json:"deal_price"`
	State       string    `json:"state"`
	Desc        string    `json:"desc,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Terminal reports whether the order can no longer change.
func (o Order) Terminal() bool {
	switch o.State {
	case "fulfilled", "canceled", "failed":
		return true
	}
	return false
}

// Holding is one position line.
type Holding struct {
	Symbol       string  `json:"sid"`
	Qty          int64   `json:"quant"`
	AvailableQty int64   `json:"available_quant"`
	CostPrice    float64 `json:"cost_price"`
	MarketValue  float64 `json:"market_value"`
}

// Account is the server's account view.
type Account struct {
	Status   string    `json:"status"`
	Desc     string    `json:"desc"`
	Running  bool      `json:"running"`
	Pending  int       `json:"pending"`
	Balance  []float64 `json:"balance"`
	Holdings []Holding `json:"holdings"`
}

// Status is returned by Start and Stop.
type Status struct {
	Status string `json:"status"`
	Desc   string `json:"desc"`
}

// OrderRequest describes a new order.
type OrderRequest struct {
	Side   string  `json:"side"` // "buy" or "sell"
	Symbol string  `json:"symbol"`
	Qty    int64   `json:"qty"`
	Price  float64 `json:"price"`
	Type   string  `json:"type,omitempty"` // "limit" or "market"
}

// JournalRecord is a journaled terminal order.
type JournalRecord struct {
	ID          string  `json:"id"`
	BrokerID    string  `json:"broker_id"`
	Symbol      string  `json:"symbol"`
	Action      string  `json:"action"`
	OrderType   string  `json:"order_type"`
	Qty         int64   `json:"qty"`
	Price       float64 `json:"price"`
	FilledQty   int64   `json:"filled_qty"`
	FilledPrice float64 `json:"filled_price"`
	State       string  `json:"state"`
	Desc        string  `json:"desc"`
	CreatedAt   int64   `json:"created_at"`
	UpdatedAt   int64   `json:"updated_at"`
}

// Event is one order change from the event stream.
type Event struct {
	Type  string `json:"type"`
	Order Order  `json:"order"`
}

// APIError is returned for non-2xx responses.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("livetrade: %d %s", e.StatusCode, e.Message)
}

// IsNotFound reports whether err is a 404 from the server.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// Client provides a Go SDK for interacting with the livetrade-server API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new livetrade API client.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Start asks the server to start the adapter and log in.
func (c *Client) Start(ctx context.Context) (Status, error) {
	var st Status
	err := c.do(ctx, http.MethodPost, "/api/start", nil, &st)
	return st, err
}

// Stop asks the server to stop the adapter.
func (c *Client) Stop(ctx context.Context) (Status, error) {
	var st Status
	err := c.do(ctx, http.MethodPost, "/api/stop", nil, &st)
	return st, err
}

// SubmitOrder places an order and returns it in its initial state.
func (c *Client) SubmitOrder(ctx context.Context, req OrderRequest) (Order, error) {
	var resp struct {
		ID    string `json:"id"`
		Order Order  `json:"order"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/orders", req, &resp); err != nil {
		return Order{}, err
	}
	return resp.Order, nil
}

// CancelOrder requests cancellation of an order.
func (c *Client) CancelOrder(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/orders/"+url.PathEscape(id), nil, nil)
}

// GetOrder returns the current state of an order.
func (c *Client) GetOrder(ctx context.Context, id string) (Order, error) {
	var o Order
	err := c.do(ctx, http.MethodGet, "/api/orders/"+url.PathEscape(id), nil, &o)
	return o, err
}

// PendingOrders returns every order not yet in a terminal state.
func (c *Client) PendingOrders(ctx context.Context) ([]Order, error) {
	var out []Order
	err := c.do(ctx, http.MethodGet, "/api/orders", nil, &out)
	return out, err
}

// GetAccount retrieves account information.
func (c *Client) GetAccount(ctx context.Context) (Account, error) {
	var a Account
	err := c.do(ctx, http.MethodGet, "/api/account", nil, &a)
	return a, err
}

// GetPositions retrieves current holdings.
func (c *Client) GetPositions(ctx context.Context) ([]Holding, error) {
	var out []Holding
	err := c.do(ctx, http.MethodGet, "/api/holdings", nil, &out)
	return out, err
}

// GetBalance retrieves the balance figures.
func (c *Client) GetBalance(ctx context.Context) ([]float64, error) {
	var out []float64
	err := c.do(ctx, http.MethodGet, "/api/balance", nil, &out)
	return out, err
}

// Journal lists journaled orders in a terminal state.
func (c *Client) Journal(ctx context.Context, state string) ([]JournalRecord, error) {
	var out []JournalRecord
	err := c.do(ctx, http.MethodGet, "/api/journal?state="+url.QueryEscape(state), nil, &out)
	return out, err
}

// WaitOrder polls an order until it reaches a terminal state or ctx ends.
func (c *Client) WaitOrder(ctx context.Context, id string, every time.Duration) (Order, error) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		o, err := c.GetOrder(ctx, id)
		if err != nil || o.Terminal() {
			return o, err
		}
		select {
		case <-ctx.Done():
			return o, ctx.Err()
		case <-ticker.C:
		}
	}
}

// Events subscribes to the order event stream. fn is called for each event
// until it returns false, the stream ends or ctx is cancelled.
func (c *Client) Events(ctx context.Context, fn func(Event) bool) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/events", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")

	// The stream is long-lived; the client-wide timeout does not apply.
	streamClient := *c.httpClient
	streamClient.Timeout = 0
	resp, err := streamClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return decodeError(resp)
	}

	sc := bufio.NewScanner(resp.Body)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		data, ok := strings.CutPrefix(sc.Text(), "data: ")
		if !ok {
			continue
		}
		var e Event
		if err := json.Unmarshal([]byte(data), &e); err != nil {
			return fmt.Errorf("decoding event: %w", err)
		}
		if !fn(e) {
			return nil
		}
	}
	if err := sc.Err(); err != nil && ctx.Err() == nil {
		return err
	}
	return ctx.Err()
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		r = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, r)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return decodeError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s %s: %w", method, path, err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	var body struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil || body.Error == "" {
		body.Error = http.StatusText(resp.StatusCode)
	}
	return &APIError{StatusCode: resp.StatusCode, Message: body.Error}
}
