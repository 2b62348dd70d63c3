package server

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"RebalanceKeeper/internal/metrics"
	"RebalanceKeeper/internal/model"
	"RebalanceKeeper/internal/service"
)

// Server exposes the keeper over HTTP.
type Server struct {
	addr    string
	svc     *service.Service
	metrics *metrics.Metrics
	hub     *Hub
}

// New builds a Server and subscribes its websocket hub to cycle runs.
func New(addr string, svc *service.Service, m *metrics.Metrics) *Server {
	s := &Server{addr: addr, svc: svc, metrics: m, hub: NewHub()}
	svc.OnRun(s.broadcastRun)
	return s
}

// Run serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	go s.hub.Run()
	defer s.hub.Close()

	httpServer := &http.Server{
		Addr:              s.addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("[INFO] HTTP API listening on %s", s.addr)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
	})
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}
	r.Get("/ws", s.hub.handleWS)

	r.Route("/api", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Get("/prices", s.handlePrices)
		r.Get("/whitelist", s.handleWhitelist)
		r.Post("/cycle/run", s.handleRun)

		r.Get("/accounts", s.handleAccounts)
		r.Route("/accounts/{id}", func(r chi.Router) {
			r.Get("/", s.handleAccount)
			r.Post("/", s.handleRegister)
			r.Patch("/", s.handleUpdate)
			r.Delete("/", s.handleDeregister)
			r.Post("/pause", s.handlePause)
			r.Post("/resume", s.handleResume)
		})
	})
	return r
}

func (s *Server) broadcastRun(report *service.RunReport, err error) {
	msg := map[string]any{"type": "run"}
	if report != nil {
		msg["report"] = report
	}
	if err != nil {
		msg["error"] = err.Error()
	}
	b, merr := json.Marshal(msg)
	if merr != nil {
		log.Printf("[WARN] Encode run report: %v", merr)
		return
	}
	s.hub.Broadcast(b)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.svc.Status(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	b, err := model.MarshalStatus(st)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, json.RawMessage(b))
}

func (s *Server) handlePrices(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 15*time.Second)
	defer cancel()

	prices, err := s.svc.Prices(ctx)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"prices": prices})
}

func (s *Server) handleWhitelist(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.svc.Whitelist())
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid limit")
		return
	}
	report, err := s.svc.RunCycle(r.Context(), limit)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleAccounts(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil || (limit != nil && *limit < 0) {
		writeError(w, http.StatusBadRequest, "invalid limit")
		return
	}
	n := 0
	if limit != nil {
		n = *limit
	}
	accounts, err := s.svc.Accounts(r.Context(), r.URL.Query().Get("after"), n)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if accounts == nil {
		accounts = []model.Account{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"accounts": accounts})
}

func (s *Server) handleAccount(w http.ResponseWriter, r *http.Request) {
	acc, err := s.svc.Account(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, acc)
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req service.RegisterRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 15*time.Second)
	defer cancel()

	acc, err := s.svc.Register(ctx, r.Header.Get(actorHeader), chi.URLParam(r, "id"), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, acc)
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	var req service.UpdateRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	acc, err := s.svc.Update(r.Context(), r.Header.Get(actorHeader), chi.URLParam(r, "id"), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, acc)
}

func (s *Server) handleDeregister(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Deregister(r.Context(), r.Header.Get(actorHeader), chi.URLParam(r, "id")); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Pause(r.Context(), chi.URLParam(r, "id"), r.Header.Get(actorHeader)); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 15*time.Second)
	defer cancel()

	if err := s.svc.Resume(ctx, chi.URLParam(r, "id"), r.Header.Get(actorHeader)); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}
