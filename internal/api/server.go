// Package api provides the ops HTTP and WebSocket server: health,
// metrics, breaker control, pause/resume and the live decision stream.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/MikeHotel0815/ngTradingBot-sub001/internal/config"
	"github.com/MikeHotel0815/ngTradingBot-sub001/internal/engine"
	"github.com/MikeHotel0815/ngTradingBot-sub001/internal/market"
	"github.com/MikeHotel0815/ngTradingBot-sub001/internal/store"
	"github.com/MikeHotel0815/ngTradingBot-sub001/internal/tracker"
	"github.com/MikeHotel0815/ngTradingBot-sub001/pkg/types"
)

// Server serves the operational API.
type Server struct {
	logger     *zap.Logger
	cfg        config.ServerConfig
	router     *mux.Router
	httpServer *http.Server
	engine     *engine.Engine
	breaker    *tracker.CircuitBreaker
	store      store.Store
	market     *market.State
	spread     *market.SpreadTracker
	hub        *Hub
}

// NewServer creates the ops server and its routes.
func NewServer(logger *zap.Logger, cfg config.ServerConfig, eng *engine.Engine, cb *tracker.CircuitBreaker, st store.Store, ms *market.State, spread *market.SpreadTracker, hub *Hub) *Server {
	s := &Server{
		logger:  logger.Named("api"),
		cfg:     cfg,
		router:  mux.NewRouter(),
		engine:  eng,
		breaker: cb,
		store:   st,
		market:  ms,
		spread:  spread,
		hub:     hub,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/api/v1/health", s.handleHealth).Methods("GET")
	s.router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	s.router.HandleFunc("/api/v1/status", s.handleStatus).Methods("GET")
	s.router.HandleFunc("/api/v1/engine/pause", s.handlePause).Methods("POST")
	s.router.HandleFunc("/api/v1/engine/resume", s.handleResume).Methods("POST")

	s.router.HandleFunc("/api/v1/breaker", s.handleBreakerStatus).Methods("GET")
	s.router.HandleFunc("/api/v1/breaker/reset", s.handleBreakerReset).Methods("POST")

	s.router.HandleFunc("/api/v1/signals", s.handleSubmitSignal).Methods("POST")
	s.router.HandleFunc("/api/v1/trades/{id}/close", s.handleTradeClose).Methods("POST")

	// Bridge push surface: the execution bridge streams market state in.
	s.router.HandleFunc("/api/v1/market/tick", s.handleTick).Methods("POST")
	s.router.HandleFunc("/api/v1/market/account", s.handleAccount).Methods("POST")
	s.router.HandleFunc("/api/v1/market/indicator", s.handleIndicator).Methods("POST")
	s.router.HandleFunc("/api/v1/market/news", s.handleNews).Methods("POST")

	s.router.HandleFunc("/ws", s.hub.HandleWebSocket)
}

// Start starts the HTTP server and the websocket hub.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)

	handler := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"*"},
	}).Handler(s.router)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go s.hub.Run()

	s.logger.Info("Starting ops server", zap.String("addr", addr))
	return s.httpServer.ListenAndServe()
}

// Stop gracefully stops the server.
func (s *Server) Stop(ctx context.Context) error {
	s.hub.CloseAll()
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Status())
}

func (s *Server) handlePause(w http.ResponseWriter, _ *http.Request) {
	s.engine.Pause()
	writeJSON(w, http.StatusOK, map[string]string{"state": "paused"})
}

func (s *Server) handleResume(w http.ResponseWriter, _ *http.Request) {
	s.engine.Resume()
	writeJSON(w, http.StatusOK, map[string]string{"state": "running"})
}

func (s *Server) handleBreakerStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.breaker.State())
}

// handleBreakerReset is the administrative reset. The only way a tripped
// breaker comes back.
func (s *Server) handleBreakerReset(w http.ResponseWriter, r *http.Request) {
	was := s.breaker.State()
	s.breaker.Reset()
	s.logger.Warn("Breaker reset via API",
		zap.Bool("wasTripped", was.Tripped),
		zap.String("previousReason", was.Reason))
	writeJSON(w, http.StatusOK, map[string]any{
		"reset":      true,
		"wasTripped": was.Tripped,
	})
}

// handleSubmitSignal accepts an externally generated signal row.
func (s *Server) handleSubmitSignal(w http.ResponseWriter, r *http.Request) {
	var sig types.Signal
	if err := json.NewDecoder(r.Body).Decode(&sig); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if sig.Symbol == "" || sig.Account == "" {
		http.Error(w, "symbol and account are required", http.StatusBadRequest)
		return
	}
	if sig.CreatedAt.IsZero() {
		sig.CreatedAt = time.Now()
	}
	sig.Status = types.SignalStatusActive

	if err := s.store.InsertSignal(r.Context(), &sig); err != nil {
		s.logger.Error("Failed to insert signal", zap.Error(err))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": sig.ID})
}

// handleTradeClose is the execution bridge's close notification: records
// realized profit and feeds the adaptive risk state.
func (s *Server) handleTradeClose(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var body struct {
		Profit string `json:"profit"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if err := s.store.CloseTrade(r.Context(), id, body.Profit); err != nil {
		status := http.StatusInternalServerError
		if err == store.ErrNotFound {
			status = http.StatusNotFound
		}
		http.Error(w, err.Error(), status)
		return
	}

	closed, err := s.store.GetTrade(r.Context(), id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if err := s.engine.NotifyTradeClosed(r.Context(), closed); err != nil {
		s.logger.Error("Trade close processing failed",
			zap.String("tradeId", id), zap.Error(err))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": id, "status": "closed"})
}

func (s *Server) handleTick(w http.ResponseWriter, r *http.Request) {
	var tick types.Tick
	if err := json.NewDecoder(r.Body).Decode(&tick); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if tick.Symbol == "" {
		http.Error(w, "symbol is required", http.StatusBadRequest)
		return
	}
	if tick.Time.IsZero() {
		tick.Time = time.Now()
	}
	s.market.SetTick(tick)
	s.spread.Record(tick)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAccount(w http.ResponseWriter, r *http.Request) {
	var acct types.AccountState
	if err := json.NewDecoder(r.Body).Decode(&acct); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if acct.Account == "" {
		http.Error(w, "account is required", http.StatusBadRequest)
		return
	}
	s.market.SetAccountState(acct)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleIndicator(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Symbol    string               `json:"symbol"`
		Timeframe types.Timeframe      `json:"timeframe"`
		Name      string               `json:"name"`
		Value     types.IndicatorValue `json:"value"`
		Trend     string               `json:"trend,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if body.Symbol == "" || body.Name == "" {
		http.Error(w, "symbol and name are required", http.StatusBadRequest)
		return
	}
	s.market.SetIndicator(body.Symbol, body.Timeframe, body.Name, body.Value)
	if body.Trend != "" {
		s.market.SetTrend(body.Symbol, body.Trend)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleNews(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Symbol string `json:"symbol"`
		Event  string `json:"event"` // empty clears the pause
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if body.Symbol == "" {
		http.Error(w, "symbol is required", http.StatusBadRequest)
		return
	}
	s.market.SetNewsPause(body.Symbol, body.Event)
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
