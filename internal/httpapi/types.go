package httpapi

import "livetrade/internal/domain"

// OrderRequest is the body of POST /api/orders.
type OrderRequest struct {
	Side   string  `json:"side"` // "buy" or "sell"
	Symbol string  `json:"symbol"`
	Qty    int64   `json:"qty"`
	Price  float64 `json:"price"`
	Type   string  `json:"type"` // "limit" (default) or "market"
}

// OrderResponse is returned when an order is accepted. The order is still
// pending; poll GET /api/orders/{id} or follow /api/events for progress.
type OrderResponse struct {
	ID    string       `json:"id"`
	Order domain.Order `json:"order"`
}

// AccountResponse is the body of GET /api/account.
type AccountResponse struct {
	Status   domain.AccountStatus `json:"status"`
	Desc     string               `json:"desc"`
	Running  bool                 `json:"running"`
	Pending  int                  `json:"pending"`
	Balance  []float64            `json:"balance"`
	Holdings []domain.Holding     `json:"holdings"`
}

// StatusResponse acknowledges start and stop requests.
type StatusResponse struct {
	Status domain.AccountStatus `json:"status"`
	Desc   string               `json:"desc"`
}

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error string `json:"error"`
}
