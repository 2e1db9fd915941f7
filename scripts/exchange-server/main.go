// Command exchange-server is a small in-memory exchange API for trying
// examples/exchange.yaml locally.
//
//	go run ./scripts/exchange-server -addr :8080
package main

import (
	"encoding/json"
	"flag"
	"math/rand"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

type order struct {
	ID       string  `json:"id"`
	Owner    string  `json:"-"`
	Symbol   string  `json:"symbol"`
	Side     string  `json:"side"`
	Price    float64 `json:"price"`
	Quantity float64 `json:"quantity"`
	Status   string  `json:"status"`
}

type exchange struct {
	logger  log.FieldLogger
	latency time.Duration

	mu     sync.Mutex
	tokens map[string]string
	orders map[string]*order
}

func newExchange(logger log.FieldLogger, latency time.Duration) *exchange {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &exchange{
		logger:  logger,
		latency: latency,
		tokens:  make(map[string]string),
		orders:  make(map[string]*order),
	}
}

func (x *exchange) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("healthy"))
	})
	mux.HandleFunc("POST /v1/user/login", x.login)
	mux.HandleFunc("GET /v1/markets/{symbol}", x.market)
	mux.HandleFunc("GET /v1/markets/{symbol}/orderbook", x.auth(x.orderbook))
	mux.HandleFunc("POST /v1/orders", x.auth(x.placeOrder))
	mux.HandleFunc("GET /v1/orders/{id}", x.auth(x.getOrder))
	mux.HandleFunc("POST /v1/orders/cancel-all", x.auth(x.cancelAll))

	if x.latency <= 0 {
		return mux
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(time.Duration(rand.Int63n(int64(x.latency))))
		mux.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (x *exchange) login(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if body.Email == "" || body.Password == "" || body.Password == "wrong" {
		x.logger.WithField("email", body.Email).Info("login rejected")
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	token := uuid.NewString()
	x.mu.Lock()
	x.tokens[token] = body.Email
	x.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]string{"token": token},
	})
}

type userHandler func(w http.ResponseWriter, r *http.Request, user string)

func (x *exchange) auth(next userHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		x.mu.Lock()
		user, known := x.tokens[token]
		x.mu.Unlock()
		if !ok || !known {
			writeError(w, http.StatusUnauthorized, "missing or invalid token")
			return
		}
		next(w, r, user)
	}
}

func (x *exchange) market(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{
			"symbol":    r.PathValue("symbol"),
			"lastPrice": 50 + rand.Float64()*10,
		},
	})
}

func (x *exchange) orderbook(w http.ResponseWriter, r *http.Request, _ string) {
	symbol := r.PathValue("symbol")
	var bids, asks []*order

	x.mu.Lock()
	for _, o := range x.orders {
		if o.Symbol != symbol || o.Status != "open" {
			continue
		}
		if o.Side == "BUY" {
			bids = append(bids, o)
		} else {
			asks = append(asks, o)
		}
	}
	x.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{"symbol": symbol, "bids": len(bids), "asks": len(asks)},
	})
}

func (x *exchange) placeOrder(w http.ResponseWriter, r *http.Request, user string) {
	var o order
	if err := json.NewDecoder(r.Body).Decode(&o); err != nil {
		writeError(w, http.StatusBadRequest, "invalid order")
		return
	}
	if o.Side != "BUY" && o.Side != "SELL" {
		writeError(w, http.StatusBadRequest, "side must be BUY or SELL")
		return
	}
	if o.Price <= 0 || o.Quantity <= 0 {
		writeError(w, http.StatusBadRequest, "price and quantity must be positive")
		return
	}

	o.ID = uuid.NewString()
	o.Owner = user
	o.Status = "open"

	x.mu.Lock()
	x.orders[o.ID] = &o
	x.mu.Unlock()

	writeJSON(w, http.StatusCreated, map[string]interface{}{"data": o})
}

func (x *exchange) getOrder(w http.ResponseWriter, r *http.Request, user string) {
	x.mu.Lock()
	o, ok := x.orders[r.PathValue("id")]
	var snapshot order
	if ok {
		snapshot = *o
	}
	x.mu.Unlock()

	if !ok || snapshot.Owner != user {
		writeError(w, http.StatusNotFound, "order not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"data": snapshot})
}

func (x *exchange) cancelAll(w http.ResponseWriter, r *http.Request, user string) {
	cancelled := 0
	x.mu.Lock()
	for _, o := range x.orders {
		if o.Owner == user && o.Status == "open" {
			o.Status = "cancelled"
			cancelled++
		}
	}
	x.mu.Unlock()

	x.logger.WithFields(log.Fields{"user": user, "cancelled": cancelled}).Info("orders cancelled")
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]int{"cancelled": cancelled},
	})
}

func main() {
	addr := flag.String("addr", ":8080", "listen address")
	latency := flag.Duration("latency", 0, "maximum random latency added to every response")
	flag.Parse()

	logger := log.New()
	x := newExchange(logger, *latency)

	server := &http.Server{
		Addr:              *addr,
		Handler:           x.routes(),
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      5 * time.Second,
		IdleTimeout:       120 * time.Second,
		ReadHeaderTimeout: 2 * time.Second,
	}

	logger.WithField("addr", *addr).Info("exchange server listening")
	if err := server.ListenAndServe(); err != nil {
		logger.WithError(err).Fatal("server stopped")
	}
}
