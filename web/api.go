package web

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"callpilot.dev/call"
	"callpilot.dev/store"
)

// API exposes the call lifecycle over HTTP and mounts the websocket
// endpoint used for audio ingress and dashboard egress.
type API struct {
	store  store.Store
	socket http.Handler
	logger *log.Logger
	wsURL  string
}

func NewAPI(st store.Store, socket http.Handler, wsURL string, logger *log.Logger) *API {
	return &API{store: st, socket: socket, logger: logger, wsURL: wsURL}
}

func (a *API) Router() *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Post("/calls", a.handleCreateCall)
	r.Get("/calls", a.handleListCalls)
	r.Get("/calls/{call_id}", a.handleGetCall)
	r.Post("/calls/{call_id}/start", a.handleStartCall)
	r.Handle("/ws", a.socket)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", a.handleHealth)

	return r
}

func (a *API) handleCreateCall(w http.ResponseWriter, r *http.Request) {
	callID := uuid.NewString()
	now := time.Now().UnixMilli()

	state := &store.CallState{
		CallID:        callID,
		Status:        "created",
		CreatedAt:     now,
		WindowSeconds: call.DefaultWindowSeconds,
		ContextWindow: &call.Window{
			CallID:        callID,
			WindowSeconds: call.DefaultWindowSeconds,
			Segments:      []call.Segment{},
		},
	}
	if err := a.store.PutCall(r.Context(), state); err != nil {
		a.logger.Error("failed to create call", "error", err)
		http.Error(w, "failed to create call", http.StatusInternalServerError)
		return
	}

	a.logger.Info("call created", "call_id", callID)
	writeJSON(w, http.StatusOK, map[string]any{
		"call_id": callID,
		"ws_url":  a.wsURL,
	})
}

func (a *API) handleStartCall(w http.ResponseWriter, r *http.Request) {
	callID := chi.URLParam(r, "call_id")

	state, err := a.store.GetCall(r.Context(), callID)
	if err != nil {
		a.logger.Error("failed to load call", "call_id", callID, "error", err)
		http.Error(w, "failed to load call", http.StatusInternalServerError)
		return
	}
	if state == nil {
		http.Error(w, "call not found", http.StatusNotFound)
		return
	}

	err = a.store.UpdateCall(r.Context(), callID, store.Fields{
		"status":     "started",
		"started_at": time.Now().UnixMilli(),
	})
	if err != nil {
		a.logger.Error("failed to start call", "call_id", callID, "error", err)
		http.Error(w, "failed to start call", http.StatusInternalServerError)
		return
	}

	a.logger.Info("call started", "call_id", callID)
	writeJSON(w, http.StatusOK, map[string]any{
		"call_id": callID,
		"status":  "started",
	})
}

func (a *API) handleListCalls(w http.ResponseWriter, r *http.Request) {
	states, err := a.store.ListCalls(r.Context())
	if err != nil {
		a.logger.Error("failed to list calls", "error", err)
		http.Error(w, "failed to list calls", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"calls": states})
}

func (a *API) handleGetCall(w http.ResponseWriter, r *http.Request) {
	callID := chi.URLParam(r, "call_id")

	state, err := a.store.GetCall(r.Context(), callID)
	if err != nil {
		a.logger.Error("failed to load call", "call_id", callID, "error", err)
		http.Error(w, "failed to load call", http.StatusInternalServerError)
		return
	}
	if state == nil {
		http.Error(w, "call not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (a *API) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
