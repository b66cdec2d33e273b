package handlers

import (
	"net/http"

	"finsync/internal/middleware"

	"github.com/go-chi/chi/v5"
)

// TriggerSync enqueues a sync job and answers immediately with an acceptance
// token; the sync runs on the shared worker pool.
func (h *Handler) TriggerSync(w http.ResponseWriter, r *http.Request) {
	owner, ok := middleware.OwnerFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	accountID := chi.URLParam(r, "id")
	account, err := h.accounts.GetByID(r.Context(), accountID)
	if err != nil {
		respondError(w, http.StatusNotFound, "account not found")
		return
	}
	if !ownsAccount(owner, account) {
		respondError(w, http.StatusForbidden, "access denied")
		return
	}
	if !account.SyncEnabled {
		respondError(w, http.StatusConflict, "sync is disabled for this account")
		return
	}
	jobID, accepted := h.scheduler.EnqueueAccount(accountID, "manual")
	if !accepted {
		respondError(w, http.StatusServiceUnavailable, "sync queue is full, try again later")
		return
	}
	respondJSON(w, http.StatusAccepted, map[string]string{
		"job_id":     jobID,
		"account_id": accountID,
	})
}

func (h *Handler) SyncStatus(w http.ResponseWriter, r *http.Request) {
	owner, ok := middleware.OwnerFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	accountID := chi.URLParam(r, "id")
	account, err := h.accounts.GetByID(r.Context(), accountID)
	if err != nil {
		respondError(w, http.StatusNotFound, "account not found")
		return
	}
	if !ownsAccount(owner, account) {
		respondError(w, http.StatusForbidden, "access denied")
		return
	}
	status, err := h.tracker.Status(r.Context(), accountID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to load sync status")
		return
	}
	respondJSON(w, http.StatusOK, status)
}
