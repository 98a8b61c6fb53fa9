package api

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/example/receiptflow/internal/auth"
	"github.com/example/receiptflow/internal/export"
	"github.com/example/receiptflow/internal/infrastructure/store"
	"github.com/example/receiptflow/internal/scheduler"
	"github.com/example/receiptflow/internal/status"
)

type Handlers struct {
	creds    auth.Credentials
	tokens   *auth.TokenService
	statuses *status.Store
	sched    *scheduler.Scheduler
	archive  store.Archive
}

func NewHandlers(creds auth.Credentials, tokens *auth.TokenService, statuses *status.Store, sched *scheduler.Scheduler, archive store.Archive) *Handlers {
	return &Handlers{
		creds:    creds,
		tokens:   tokens,
		statuses: statuses,
		sched:    sched,
		archive:  archive,
	}
}

// Auth Handlers

func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Operator string `json:"operator"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.creds.Authenticate(req.Operator, req.Password); err != nil {
		http.Error(w, "bad credentials", http.StatusUnauthorized)
		return
	}

	token, expiresAt, err := h.tokens.Issue(req.Operator)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     "access_token",
		Value:    token,
		Path:     "/",
		Expires:  expiresAt,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
	respondJSON(w, http.StatusOK, map[string]any{
		"token":      token,
		"expires_at": expiresAt.Format(time.RFC3339),
	})
}

// Status Handlers

func (h *Handlers) GetStatus(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.statuses.Get())
}

// Run Handlers

// runRequest carries optional timing overrides; absent fields keep the
// service defaults.
type runRequest struct {
	DelayBetweenOrdersMS *int64 `json:"delay_between_orders_ms"`
	MaxConcurrent        *int   `json:"max_concurrent"`
	RetryAttempts        *int   `json:"retry_attempts"`
	InitialDelayMS       *int64 `json:"initial_delay_ms"`
	MinimumDelayMS       *int64 `json:"minimum_delay_ms"`
}

func (h *Handlers) StartRun(w http.ResponseWriter, r *http.Request) {
	cfg := scheduler.DefaultTimingConfig()
	if r.Body != nil && r.ContentLength != 0 {
		var req runRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if req.DelayBetweenOrdersMS != nil {
			cfg.DelayBetweenOrders = *req.DelayBetweenOrdersMS
		}
		if req.MaxConcurrent != nil {
			cfg.MaxConcurrent = *req.MaxConcurrent
		}
		if req.RetryAttempts != nil {
			cfg.RetryAttempts = *req.RetryAttempts
		}
		if req.InitialDelayMS != nil {
			cfg.InitialDelay = *req.InitialDelayMS
		}
		if req.MinimumDelayMS != nil {
			cfg.MinimumDelay = *req.MinimumDelayMS
		}
	}

	if h.sched.State() == scheduler.StateRunning {
		http.Error(w, "a run is already in progress", http.StatusConflict)
		return
	}

	orders, err := h.archive.ListEnriched(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	sched, err := h.sched.Build(orders, cfg)
	if err != nil {
		if scheduler.ReasonOf(err) == scheduler.ReasonInvalidInput {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	// The run outlives the request; it is stopped through DELETE
	// /runs/current, not request cancellation.
	go func() {
		if err := h.sched.Start(context.Background()); err != nil {
			log.Printf("[api] run %s failed: %v", sched.RunID, err)
		}
	}()

	respondJSON(w, http.StatusAccepted, map[string]any{
		"run_id": sched.RunID,
		"total":  sched.Total,
	})
}

func (h *Handlers) StopRun(w http.ResponseWriter, r *http.Request) {
	h.sched.Stop()
	respondJSON(w, http.StatusAccepted, map[string]string{"message": "stop requested"})
}

// Export Handlers

func (h *Handlers) ExportOrdersTSV(w http.ResponseWriter, r *http.Request) {
	orders, err := h.archive.List(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/tab-separated-values; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="orders.tsv"`)
	if err := export.WriteTSV(w, orders); err != nil {
		log.Printf("[api] export orders: %v", err)
	}
}

// Helper functions

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
