package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"finsync/internal/middleware"
	"finsync/internal/services"
)

func (h *Handler) CreateLink(w http.ResponseWriter, r *http.Request) {
	owner, ok := middleware.OwnerFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	start, err := h.sessions.Initiate(r.Context(), owner)
	if err != nil {
		if errors.Is(err, services.ErrProviderUnavailable) {
			respondError(w, http.StatusBadGateway, "provider unavailable, try again later")
			return
		}
		respondError(w, http.StatusInternalServerError, "unable to start link")
		return
	}
	respondJSON(w, http.StatusCreated, start)
}

type callbackRequest struct {
	SessionToken   string `json:"session_token"`
	ProviderStatus string `json:"provider_status"`
	ConnectionID   string `json:"connection_id"`
}

func (h *Handler) LinkCallback(w http.ResponseWriter, r *http.Request) {
	var req callbackRequest
	if r.Method == http.MethodPost {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "invalid payload")
			return
		}
	} else {
		query := r.URL.Query()
		req.SessionToken = query.Get("session_token")
		req.ProviderStatus = query.Get("provider_status")
		req.ConnectionID = query.Get("connection_id")
	}
	if req.SessionToken == "" {
		respondError(w, http.StatusBadRequest, "missing session token")
		return
	}

	result, err := h.sessions.CompleteCallback(r.Context(), req.SessionToken, req.ProviderStatus, req.ConnectionID)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrSessionNotFound):
			respondError(w, http.StatusNotFound, "link session not found")
		case errors.Is(err, services.ErrSessionExpired):
			respondError(w, http.StatusGone, "link session expired")
		case errors.Is(err, services.ErrSessionConsumed):
			respondError(w, http.StatusConflict, "link session already used")
		default:
			respondError(w, http.StatusInternalServerError, "unable to complete link")
		}
		return
	}
	if !result.Succeeded {
		respondJSON(w, http.StatusOK, map[string]any{
			"linked": false,
			"reason": result.FailureReason,
		})
		return
	}

	accounts, err := h.links.LinkAccounts(r.Context(), result.Owner, result.ConnectionID)
	if err != nil {
		if errors.Is(err, services.ErrProviderUnavailable) {
			respondError(w, http.StatusBadGateway, "provider unavailable, try again later")
			return
		}
		respondError(w, http.StatusInternalServerError, "unable to link accounts")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"linked":   true,
		"accounts": accountViews(accounts),
	})
}
