package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"payguard/apps/payguard/internal/chain"
	"payguard/apps/payguard/internal/store"
)

// Server represents the API server
type Server struct {
	approvalHandler  *ApprovalHandler
	allowanceHandler *AllowanceHandler
	logger           *zap.Logger
	server           *http.Server
}

// NewServer creates a new API server. chainClient may be nil when no RPC
// endpoint is reachable; the allowance endpoint is then not registered.
func NewServer(port int, recordStore store.RecordStore, chainClient *chain.Client, logger *zap.Logger) *Server {
	s := &Server{
		approvalHandler: NewApprovalHandler(recordStore, logger),
		logger:          logger,
		server: &http.Server{
			Addr:         fmt.Sprintf(":%d", port),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
	}
	if chainClient != nil {
		s.allowanceHandler = NewAllowanceHandler(chainClient, logger)
	}
	return s
}

// Start starts the API server
func (s *Server) Start() error {
	router := s.setupRoutes()
	s.server.Handler = router

	s.logger.Info("Starting API server", zap.String("address", s.server.Addr))

	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start API server: %w", err)
	}

	return nil
}

// Stop stops the API server gracefully
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping API server")
	return s.server.Shutdown(ctx)
}

// Handler returns the configured router; used by tests to serve the API
// in-process.
func (s *Server) Handler() http.Handler {
	return s.setupRoutes()
}

// setupRoutes configures the API routes
func (s *Server) setupRoutes() *mux.Router {
	router := mux.NewRouter()

	// Add middleware
	router.Use(s.loggingMiddleware)
	router.Use(s.corsMiddleware)

	// API routes
	api := router.PathPrefix("/api").Subrouter()

	// Approval record endpoints
	api.HandleFunc("/approval", s.approvalHandler.SaveApproval).Methods("POST")
	api.HandleFunc("/approval", s.approvalHandler.GetApproval).Methods("GET")
	api.HandleFunc("/approval", s.approvalHandler.UpdateApproval).Methods("PUT")
	api.HandleFunc("/approval/all", s.approvalHandler.ListApprovals).Methods("GET")

	// Live on-chain state endpoint
	if s.allowanceHandler != nil {
		api.HandleFunc("/allowance/{wallet_address}", s.allowanceHandler.GetAllowance).Methods("GET")
	}

	// Health check endpoint
	api.HandleFunc("/health", s.healthCheck).Methods("GET")

	return router
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		next.ServeHTTP(w, r)

		s.logger.Info("HTTP request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("remote_addr", r.RemoteAddr),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

// corsMiddleware handles CORS headers
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

// healthCheck handles the health check endpoint
func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	response := map[string]string{
		"status": "healthy",
		"time":   time.Now().UTC().Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	if err := json.NewEncoder(w).Encode(response); err != nil {
		s.logger.Error("Failed to encode health check response", zap.Error(err))
	}
}
