package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/chainraise/chainraise/internal/cache"
	"github.com/chainraise/chainraise/internal/chain"
	"github.com/chainraise/chainraise/internal/config"
	"github.com/chainraise/chainraise/internal/contract"
	"github.com/chainraise/chainraise/internal/monitoring"
	"github.com/chainraise/chainraise/internal/notify"
	"github.com/chainraise/chainraise/internal/tracker"
	"github.com/chainraise/chainraise/internal/wallet"
)

// Server represents the API gateway
type Server struct {
	config    *config.Config
	client    *chain.Client
	gateway   *contract.Gateway
	wallets   *wallet.Manager
	tracker   *tracker.Tracker
	snapshots *cache.SnapshotCache
	notifier  *notify.Notifier
	router    *mux.Router
	server    *http.Server
	logger    zerolog.Logger
}

// NewServer creates a new API server
func NewServer(
	cfg *config.Config,
	client *chain.Client,
	gateway *contract.Gateway,
	wallets *wallet.Manager,
	trk *tracker.Tracker,
	snapshots *cache.SnapshotCache,
	notifier *notify.Notifier,
	logger zerolog.Logger,
) *Server {
	router := mux.NewRouter()

	s := &Server{
		config:    cfg,
		client:    client,
		gateway:   gateway,
		wallets:   wallets,
		tracker:   trk,
		snapshots: snapshots,
		notifier:  notifier,
		router:    router,
		logger:    logger.With().Str("component", "api").Logger(),
	}

	s.setupRoutes()

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	s.server = &http.Server{
		Addr:           addr,
		Handler:        s.router,
		ReadTimeout:    30 * time.Second,
		WriteTimeout:   30 * time.Second,
		MaxHeaderBytes: 1 << 20, // 1 MB
	}

	return s
}

// setupRoutes configures all API routes
func (s *Server) setupRoutes() {
	// Health check
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
	s.router.HandleFunc("/ready", s.handleReady).Methods("GET")

	// API v1
	v1 := s.router.PathPrefix("/v1").Subrouter()

	// Campaign endpoints
	v1.HandleFunc("/campaigns", s.handleListCampaigns).Methods("GET")
	v1.HandleFunc("/campaigns", s.handleCreateCampaign).Methods("POST")
	v1.HandleFunc("/campaigns/{id}", s.handleGetCampaign).Methods("GET")
	v1.HandleFunc("/campaigns/{id}/donations", s.handleListDonations).Methods("GET")
	v1.HandleFunc("/campaigns/{id}/donations", s.handleDonate).Methods("POST")
	v1.HandleFunc("/campaigns/{id}/close", s.handleCloseCampaign).Methods("POST")
	v1.HandleFunc("/campaigns/{id}/withdraw", s.handleWithdrawFunds).Methods("POST")

	// Donor history endpoints
	v1.HandleFunc("/donors/{address}/donations", s.handleDonorHistory).Methods("GET")

	// Transaction endpoints
	v1.HandleFunc("/transactions", s.handleListTransactions).Methods("GET")
	v1.HandleFunc("/transactions/{id}", s.handleGetTransaction).Methods("GET")

	// Wallet session endpoints
	v1.HandleFunc("/wallet", s.handleWalletSession).Methods("GET")
	v1.HandleFunc("/wallet/providers", s.handleWalletProviders).Methods("GET")
	v1.HandleFunc("/wallet/connect", s.handleWalletConnect).Methods("POST")
	v1.HandleFunc("/wallet/select", s.handleWalletSelect).Methods("POST")
	v1.HandleFunc("/wallet/chain", s.handleWalletChain).Methods("POST")
	v1.HandleFunc("/wallet/disconnect", s.handleWalletDisconnect).Methods("POST")

	// Apply middleware
	s.router.Use(s.loggingMiddleware)
	s.router.Use(s.corsMiddleware)
	s.router.Use(s.recoverMiddleware)
}

// Start starts the API server
func (s *Server) Start() error {
	s.logger.Info().
		Str("address", s.server.Addr).
		Msg("Starting API server")

	if s.config.Server.TLSEnabled {
		return s.server.ListenAndServeTLS(
			s.config.Server.TLSCertPath,
			s.config.Server.TLSKeyPath,
		)
	}

	return s.server.ListenAndServe()
}

// Stop gracefully stops the API server
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info().Msg("Stopping API server")
	return s.server.Shutdown(ctx)
}

// Health check handlers

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":      "healthy",
		"service":     "chainraise-gateway",
		"environment": s.config.Environment,
		"timestamp":   time.Now().UTC(),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if !s.client.IsHealthy(r.Context()) {
		monitoring.UpdateChainHealth(false)
		respondError(w, http.StatusServiceUnavailable, "chain not reachable", nil)
		return
	}
	monitoring.UpdateChainHealth(true)

	if err := s.gateway.EnsureContract(r.Context()); err != nil {
		respondError(w, http.StatusServiceUnavailable, "contract not available", err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":   "ready",
		"network":  s.client.Network().Name,
		"chain_id": s.client.Network().ChainID,
		"contract": s.gateway.Address().Hex(),
	})
}

// Middleware

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (sr *statusRecorder) WriteHeader(status int) {
	sr.status = status
	sr.ResponseWriter.WriteHeader(status)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(recorder, r)

		duration := time.Since(start)
		endpoint := r.URL.Path
		if route := mux.CurrentRoute(r); route != nil {
			if tmpl, err := route.GetPathTemplate(); err == nil {
				endpoint = tmpl
			}
		}

		monitoring.APIRequestsTotal.WithLabelValues(r.Method, endpoint, fmt.Sprintf("%d", recorder.status)).Inc()
		monitoring.APIRequestDuration.WithLabelValues(r.Method, endpoint).Observe(duration.Seconds())

		s.logger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("remote_addr", r.RemoteAddr).
			Int("status", recorder.status).
			Dur("duration", duration).
			Msg("HTTP request")
	})
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				s.logger.Error().
					Interface("error", err).
					Str("path", r.URL.Path).
					Msg("Panic recovered")

				respondError(w, http.StatusInternalServerError, "internal server error", nil)
			}
		}()

		next.ServeHTTP(w, r)
	})
}

// Helper functions

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		// Log error but can't change response at this point
		log.Printf("Error encoding JSON: %v", err)
	}
}

func respondError(w http.ResponseWriter, status int, message string, err error) {
	response := map[string]interface{}{
		"error":  message,
		"status": status,
	}

	if err != nil {
		response["details"] = err.Error()
	}

	respondJSON(w, status, response)
}
