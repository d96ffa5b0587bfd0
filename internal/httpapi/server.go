// Package httpapi exposes the order-execution adapter over HTTP: order entry
// and cancellation, read-only account views, journal queries and a
// server-sent event stream of order changes.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"livetrade/internal/domain"
	"livetrade/internal/engine"
	"livetrade/internal/store"
)

// eventBuffer is the per-connection channel size for /api/events.
const eventBuffer = 256

// Server serves the adapter API.
type Server struct {
	adapter *engine.Adapter
	journal store.JournalReader // nil when journaling is disabled
	runCtx  context.Context
	log     *slog.Logger
}

// NewServer creates a server for adapter. runCtx bounds the worker started
// by POST /api/start; journal may be nil.
func NewServer(runCtx context.Context, adapter *engine.Adapter, journal store.JournalReader, log *slog.Logger) *Server {
	return &Server{
		adapter: adapter,
		journal: journal,
		runCtx:  runCtx,
		log:     log.With("component", "httpapi"),
	}
}

// Handler returns the router with logging, panic recovery and CORS
// middleware.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogging(s.log))
	r.Use(corsMiddleware)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Post("/start", s.handleStart)
		r.Post("/stop", s.handleStop)

		r.Get("/orders", s.handlePendingOrders)
		r.Post("/orders", s.handleSubmitOrder)
		r.Get("/orders/{id}", s.handleGetOrder)
		r.Delete("/orders/{id}", s.handleCancelOrder)

		r.Get("/account", s.handleAccount)
		r.Get("/holdings", s.handleHoldings)
		r.Get("/balance", s.handleBalance)
		r.Get("/journal", s.handleJournal)
		r.Get("/events", s.handleEvents)
	})
	return r
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	if err := s.adapter.Start(s.runCtx); err != nil {
		if errors.Is(err, engine.ErrStopped) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, s.status())
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	s.adapter.Stop()
	writeJSON(w, http.StatusAccepted, s.status())
}

func (s *Server) status() StatusResponse {
	return StatusResponse{Status: s.adapter.AccountState(), Desc: s.adapter.AccountDesc()}
}

func (s *Server) handleSubmitOrder(w http.ResponseWriter, r *http.Request) {
	var req OrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}

	orderType := domain.OrderTypeLimit
	switch strings.ToLower(req.Type) {
	case "", "limit":
	case "market":
		orderType = domain.OrderTypeMarket
	default:
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown order type %q", req.Type))
		return
	}
	symbol := strings.ToUpper(strings.TrimSpace(req.Symbol))

	var id string
	switch strings.ToLower(req.Side) {
	case "buy":
		id = s.adapter.Buy(symbol, req.Qty, req.Price, orderType)
	case "sell":
		id = s.adapter.Sell(symbol, req.Qty, req.Price, orderType)
	default:
		writeError(w, http.StatusBadRequest, fmt.Sprintf("side must be buy or sell, got %q", req.Side))
		return
	}

	// Rejected orders still get an id; the caller sees state=failed.
	writeJSON(w, http.StatusAccepted, OrderResponse{ID: id, Order: s.adapter.OrderState(id)})
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	o := s.adapter.OrderState(id)
	if o.CorrelationID == "" {
		writeError(w, http.StatusNotFound, "order not found: "+id)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (s *Server) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	o := s.adapter.OrderState(id)
	if o.CorrelationID == "" {
		writeError(w, http.StatusNotFound, "order not found: "+id)
		return
	}
	if o.State.Terminal() {
		writeError(w, http.StatusConflict, fmt.Sprintf("order %s is already %s", id, o.State))
		return
	}
	s.adapter.CloseOrder(id)
	writeJSON(w, http.StatusAccepted, o)
}

func (s *Server) handlePendingOrders(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.adapter.PendingOrders())
}

func (s *Server) handleAccount(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, AccountResponse{
		Status:   s.adapter.AccountState(),
		Desc:     s.adapter.AccountDesc(),
		Running:  s.adapter.Running(),
		Pending:  s.adapter.PendingOrderNum(),
		Balance:  s.adapter.Balance(),
		Holdings: s.adapter.HoldingStock(),
	})
}

func (s *Server) handleHoldings(w http.ResponseWriter, r *http.Request) {
	h := s.adapter.HoldingStock()
	if h == nil {
		h = []domain.Holding{}
	}
	writeJSON(w, http.StatusOK, h)
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	b := s.adapter.Balance()
	if b == nil {
		b = []float64{}
	}
	writeJSON(w, http.StatusOK, b)
}

func (s *Server) handleJournal(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		writeError(w, http.StatusNotFound, "journal disabled")
		return
	}
	state := domain.OrderState(r.URL.Query().Get("state"))
	if state == "" {
		state = domain.OrderStateFulfilled
	}
	if !state.Terminal() {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("state must be fulfilled, canceled or failed, got %q", state))
		return
	}

	records, err := s.journal.ListOrders(r.Context(), state)
	if err != nil {
		s.log.Error("listing journal", "state", string(state), "error", err)
		writeError(w, http.StatusInternalServerError, "listing journal failed")
		return
	}
	if records == nil {
		records = []store.OrderRecord{}
	}
	writeJSON(w, http.StatusOK, records)
}

// handleEvents streams order events as server-sent events until the client
// disconnects.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	sub, events := s.adapter.Subscribe(eventBuffer)
	defer s.adapter.Unsubscribe(sub)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, ": connected\n\n")
	flusher.Flush()

	keepalive := time.NewTicker(15 * time.Second)
	defer keepalive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-keepalive.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		case e, ok := <-events:
			if !ok {
				return
			}
			data, err := json.Marshal(e)
			if err != nil {
				s.log.Warn("encoding order event", "error", err)
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", e.Type, data)
			flusher.Flush()
		}
	}
}

// requestLogging logs each request's method, path, status and duration.
func requestLogging(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			logger.Debug("request",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", ww.Status()),
				slog.Duration("duration", time.Since(start)),
				slog.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encoding JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}
