package handlers

import (
	"net/http"
	"strconv"

	"finsync/internal/middleware"
	"finsync/internal/models"
	"finsync/internal/money"
	"finsync/internal/websocket"

	"github.com/go-chi/chi/v5"
)

func accountViews(accounts []models.Account) []map[string]any {
	views := make([]map[string]any, 0, len(accounts))
	for _, account := range accounts {
		view := map[string]any{
			"id":           account.ID,
			"name":         account.Name,
			"account_type": account.AccountType,
			"status":       account.Status,
			"balance":      money.Format(account.CurrentBalance),
			"currency":     account.Currency,
			"sync_enabled": account.SyncEnabled,
			"last_sync_at": account.LastSyncAt,
		}
		if account.AvailableBalance.Valid {
			view["available_balance"] = money.Format(account.AvailableBalance.Decimal)
		}
		if account.CreditLimit.Valid {
			view["credit_limit"] = money.Format(account.CreditLimit.Decimal)
		}
		if account.SyncError != nil {
			view["sync_error"] = *account.SyncError
		}
		views = append(views, view)
	}
	return views
}

func (h *Handler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	owner, ok := middleware.OwnerFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	accounts, err := h.accounts.ListByOwner(r.Context(), owner)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to load accounts")
		return
	}
	respondJSON(w, http.StatusOK, accountViews(accounts))
}

func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
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
	limit := queryInt(r, "limit", 50)
	if limit > 200 {
		limit = 200
	}
	offset := queryInt(r, "offset", 0)
	transactions, err := h.transactions.ListByAccount(r.Context(), accountID, limit, offset)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to load transactions")
		return
	}
	respondJSON(w, http.StatusOK, transactions)
}

func (h *Handler) WSUpdates(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		respondError(w, http.StatusUnauthorized, "missing token")
		return
	}
	owner, err := ownerFromToken(h.cfg.JWTSecret, token)
	if err != nil {
		respondError(w, http.StatusUnauthorized, "invalid token")
		return
	}
	websocket.ServeWS(w, r, h.hub, owner.Ref())
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		return fallback
	}
	return value
}
