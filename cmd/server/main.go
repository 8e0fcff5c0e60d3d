package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/goccy/go-json"
	_ "github.com/lib/pq"

	"github.com/fincalc/engine/calc"
	"github.com/fincalc/engine/calculators"
	"github.com/fincalc/engine/internal/logger"
	"github.com/fincalc/engine/schema"
	"github.com/fincalc/engine/state"
	"github.com/fincalc/engine/store"
	"github.com/fincalc/engine/validation"
)

// Server wires the calculation engine behind a chi HTTP API.
type Server struct {
	db     *sql.DB
	kv     store.KV
	state  *state.State
	orch   *calc.Orchestrator
	router *chi.Mux
}

func NewServer(cfg Config) (*Server, error) {
	var db *sql.DB
	var backend store.KV
	if cfg.DatabaseURL != "" {
		var err error
		db, err = sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := db.Ping(); err != nil {
			return nil, err
		}
		backend = store.NewPostgresKV(db)
	} else {
		logger.Warn("no DATABASE_URL configured, using in-memory storage")
		backend = store.NewMemoryKV()
	}

	kv := store.NewRetryingKV(backend, store.RetryConfig{
		MaxAttempts: cfg.Retry.MaxAttempts,
		BaseDelay:   cfg.baseDelay(),
	})

	var source schema.Source = schema.EmbeddedSource{}
	if cfg.SchemaPath != "" {
		source = schema.NewFileSource(cfg.SchemaPath)
	}
	validator, err := validation.NewEngine(source)
	if err != nil {
		return nil, err
	}

	st := state.New(state.NewFilePersister(cfg.StateFile), logger.Logger)

	registry := calc.NewRegistry()
	if err := calculators.RegisterAll(registry); err != nil {
		return nil, err
	}

	orch := calc.NewOrchestrator(calc.Config{
		Store:     kv,
		Validator: validator,
		State:     st,
		Registry:  registry,
		Order:     cfg.ExecutionOrder,
		InputKeys: cfg.InputKeys,
		Logger:    logger.Logger,
	})

	// UI-facing completion notification.
	st.Subscribe(state.EventCalculated, func(snap state.Snapshot) {
		logger.Info("calculations completed notification",
			"lastCalculated", snap.LastCalculated,
			"warnings", len(snap.ValidationResults.Warnings))
	})

	s := &Server{db: db, kv: kv, state: st, orch: orch}
	s.setupRoutes()
	return s, nil
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/api/v1/health", s.handleHealth)
	r.Post("/api/v1/calculate", s.handleCalculate)
	r.Get("/api/v1/state", s.handleGetState)

	r.Route("/api/v1/history", func(r chi.Router) {
		r.Get("/", s.handleGetHistory)
		r.Delete("/", s.handleClearHistory)
	})

	r.Route("/api/v1/data/{key}", func(r chi.Router) {
		r.Put("/", s.handleSaveData)
		r.Get("/", s.handleGetData)
		r.Delete("/", s.handleDeleteData)
	})

	s.router = r
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.db != nil {
		if err := s.db.Ping(); err != nil {
			respondJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "unhealthy",
				"error":  err.Error(),
			})
			return
		}
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) handleCalculate(w http.ResponseWriter, r *http.Request) {
	started := time.Now()

	results, err := s.orch.PerformAllCalculations(r.Context())
	if err != nil {
		s.respondCalculationError(w, err)
		return
	}

	snap := s.state.GetState()
	resp := calculateResponse{
		Results:  results,
		Duration: time.Since(started).String(),
	}
	if snap.ValidationResults != nil {
		resp.Warnings = snap.ValidationResults.Warnings
	}
	respondJSON(w, http.StatusOK, resp)
}

// respondCalculationError maps the error taxonomy onto HTTP statuses. A
// failed validation returns the full structured error list.
func (s *Server) respondCalculationError(w http.ResponseWriter, err error) {
	if errors.Is(err, calc.ErrRunInProgress) {
		respondJSON(w, http.StatusConflict, errorResponse{Error: err.Error()})
		return
	}
	if result, ok := calc.IsValidationFailed(err); ok {
		respondJSON(w, http.StatusUnprocessableEntity, errorResponse{
			Error:    "validation failed",
			Errors:   result.Errors,
			Warnings: result.Warnings,
		})
		return
	}
	if calc.IsMissingData(err) {
		respondJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: "missing input data", Details: err.Error()})
		return
	}
	respondError(w, http.StatusInternalServerError, "calculation failed", err)
}

func (s *Server) handleGetState(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, newStateResponse(s.state.GetState()))
}

func (s *Server) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	entries := s.orch.GetHistory()
	respondJSON(w, http.StatusOK, historyResponse{Entries: entries, Limit: calc.HistoryLimit})
}

func (s *Server) handleClearHistory(w http.ResponseWriter, r *http.Request) {
	if err := s.orch.ClearHistory(r.Context()); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to clear history", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

func (s *Server) handleSaveData(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")

	body, err := io.ReadAll(r.Body)
	if err != nil {
		respondError(w, http.StatusBadRequest, "failed to read request body", err)
		return
	}
	var value map[string]any
	if err := json.Unmarshal(body, &value); err != nil {
		respondError(w, http.StatusBadRequest, "request body must be a JSON object", err)
		return
	}

	if err := s.kv.Save(r.Context(), store.StoreInputs, store.Record{Key: key, Value: body}); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to save input data", err)
		return
	}

	s.state.MarkDirty()
	respondJSON(w, http.StatusOK, map[string]string{"status": "saved", "key": key})
}

func (s *Server) handleGetData(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")

	rec, err := s.kv.Get(r.Context(), store.StoreInputs, key)
	if err != nil {
		if store.IsNotFound(err) {
			respondError(w, http.StatusNotFound, "input data not found", err)
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to read input data", err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(rec.Value)
}

func (s *Server) handleDeleteData(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")

	if err := s.kv.Delete(r.Context(), store.StoreInputs, key); err != nil {
		if store.IsNotFound(err) {
			respondError(w, http.StatusNotFound, "input data not found", err)
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to delete input data", err)
		return
	}

	s.state.MarkDirty()
	respondJSON(w, http.StatusOK, map[string]string{"status": "deleted", "key": key})
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Error("failed to encode response", "error", err)
	}
}

func respondError(w http.ResponseWriter, status int, message string, err error) {
	resp := errorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	respondJSON(w, status, resp)
}

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", os.Getenv("CONFIG_PATH"), "Path to YAML config file")
	flag.Parse()

	cfg, err := loadConfig(configPath)
	if err != nil {
		logger.Fatal("invalid configuration", "error", err)
	}

	server, err := NewServer(cfg)
	if err != nil {
		logger.Fatal("failed to create server", "error", err)
	}
	if server.db != nil {
		defer server.db.Close()
	}

	// A storage failure here must surface; only genuine absence means a
	// fresh history.
	if err := server.orch.LoadHistory(context.Background()); err != nil {
		logger.Fatal("failed to load calculation history", "error", err)
	}

	httpServer := &http.Server{
		Addr:         cfg.Addr,
		Handler:      server,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server starting", "addr", cfg.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed to start", "error", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	// Best-effort flush of the state projection on the way out.
	if err := server.state.Flush(); err != nil {
		logger.Error("failed to flush calculation state", "error", err)
	}
	if err := logger.Shutdown(ctx); err != nil {
		logger.Error("logger shutdown error", "error", err)
	}

	logger.Info("server stopped")
}
