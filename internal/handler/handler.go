package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/Dan9191/balance-planner/internal/middleware"
	"github.com/Dan9191/balance-planner/internal/models"
	"github.com/Dan9191/balance-planner/internal/service"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

const defaultHistoryLimit = 20

type Handler struct {
	svc      *service.Service
	log      *logrus.Logger
	validate *validator.Validate
}

func NewHandler(svc *service.Service, log *logrus.Logger) *Handler {
	return &Handler{svc: svc, log: log, validate: validator.New()}
}

// RegisterPublicRoutes mounts the routes that need no token
func (h *Handler) RegisterPublicRoutes(public *mux.Router) {
	public.HandleFunc("/login", h.Login).Methods("POST")
	public.HandleFunc("/key-rate", h.KeyRate).Methods("GET")
}

// RegisterRoutes mounts the session routes on a router guarded by AuthMiddleware
func (h *Handler) RegisterRoutes(protected *mux.Router) {
	protected.HandleFunc("/schedule", h.Current).Methods("GET")
	protected.HandleFunc("/schedule/optimize", h.Optimize).Methods("POST")
	protected.HandleFunc("/schedule/regenerate", h.Regenerate).Methods("POST")
	protected.HandleFunc("/schedule/edits", h.RecordEdit).Methods("POST")
	protected.HandleFunc("/schedule/edits", h.Edits).Methods("GET")
	protected.HandleFunc("/schedule/edits", h.ClearEdits).Methods("DELETE")
	protected.HandleFunc("/schedule/config", h.LastConfig).Methods("GET")
	protected.HandleFunc("/schedule/progress", h.Progress).Methods("GET")
	protected.HandleFunc("/schedule/run", h.Cancel).Methods("DELETE")
	protected.HandleFunc("/runs", h.History).Methods("GET")
}

// Login exchanges operator credentials for a bearer token
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var creds models.Credentials
	if !h.decode(w, r, &creds) {
		return
	}
	token, err := h.svc.Login(creds)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

// KeyRate returns the current key rate including the bank margin
func (h *Handler) KeyRate(w http.ResponseWriter, r *http.Request) {
	rate, err := h.svc.KeyRate(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"key_rate": rate})
}

// Optimize runs a fresh optimization for the caller's session
func (h *Handler) Optimize(w http.ResponseWriter, r *http.Request) {
	var cfg models.OptimizationConfig
	if !h.decode(w, r, &cfg) {
		return
	}
	res, err := h.svc.Optimize(r.Context(), sessionID(r), cfg)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Regenerate re-runs the last optimization with every stored edit pinned
func (h *Handler) Regenerate(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.Regenerate(r.Context(), sessionID(r))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// RecordEdit stores one cell edit
func (h *Handler) RecordEdit(w http.ResponseWriter, r *http.Request) {
	var req models.EditRequest
	if !h.decode(w, r, &req) {
		return
	}
	cell, err := h.svc.RecordEdit(sessionID(r), req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, cell)
}

func (h *Handler) Edits(w http.ResponseWriter, r *http.Request) {
	cells := h.svc.Edits(sessionID(r))
	if cells == nil {
		cells = []models.EditedCell{}
	}
	writeJSON(w, http.StatusOK, cells)
}

func (h *Handler) ClearEdits(w http.ResponseWriter, r *http.Request) {
	h.svc.ClearEdits(sessionID(r))
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) Current(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.Current(sessionID(r))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) LastConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.svc.LastConfig(sessionID(r))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (h *Handler) Progress(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Progress(sessionID(r)))
}

func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Cancel(sessionID(r)); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// History lists the session's completed runs, newest first
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	limit := defaultHistoryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = n
	}
	runs, err := h.svc.History(r.Context(), sessionID(r), limit)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if runs == nil {
		runs = []models.RunSummary{}
	}
	writeJSON(w, http.StatusOK, runs)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		h.log.WithError(err).Debug("Failed to decode request body")
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return false
	}
	if err := h.validate.Struct(v); err != nil {
		h.log.WithError(err).Debug("Request validation failed")
		http.Error(w, err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

// writeError maps domain errors onto status codes
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, service.ErrInvalidCredentials):
		status = http.StatusUnauthorized
	case models.IsConfigurationError(err):
		status = http.StatusBadRequest
	case errors.Is(err, models.ErrBusy), errors.Is(err, context.Canceled), models.IsEditConflict(err), models.IsStateError(err):
		status = http.StatusConflict
	}
	if status == http.StatusInternalServerError {
		h.log.WithError(err).Error("Request failed")
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func sessionID(r *http.Request) string {
	id, _ := middleware.SessionID(r.Context())
	return id
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
