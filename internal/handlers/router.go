package handlers

import (
	"net/http"

	"finsync/internal/config"
	"finsync/internal/middleware"
	"finsync/internal/websocket"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

type Handler struct {
	cfg          config.Config
	accounts     AccountStore
	transactions TransactionStore
	sessions     SessionManager
	links        LinkService
	scheduler    SyncScheduler
	tracker      StateTracker
	hub          *websocket.Hub
}

func New(cfg config.Config, accounts AccountStore, transactions TransactionStore, sessions SessionManager, links LinkService, scheduler SyncScheduler, tracker StateTracker, hub *websocket.Hub) *Handler {
	return &Handler{
		cfg:          cfg,
		accounts:     accounts,
		transactions: transactions,
		sessions:     sessions,
		links:        links,
		scheduler:    scheduler,
		tracker:      tracker,
		hub:          hub,
	}
}

func (h *Handler) Routes() http.Handler {
	router := chi.NewRouter()
	router.Use(chimiddleware.Logger)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{h.cfg.AllowedOrigins},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	router.Route("/links", func(r chi.Router) {
		r.With(middleware.Auth(h.cfg.JWTSecret)).Post("/", h.CreateLink)
		// The provider redirects the browser here and may also confirm
		// server-to-server; both carry the session token.
		r.Get("/callback", h.LinkCallback)
		r.Post("/callback", h.LinkCallback)
	})

	router.With(middleware.Auth(h.cfg.JWTSecret)).Get("/accounts", h.ListAccounts)
	router.With(middleware.Auth(h.cfg.JWTSecret)).Get("/accounts/{id}/transactions", h.ListTransactions)
	router.With(middleware.Auth(h.cfg.JWTSecret)).Post("/accounts/{id}/sync", h.TriggerSync)
	router.With(middleware.Auth(h.cfg.JWTSecret)).Get("/accounts/{id}/sync-status", h.SyncStatus)

	router.Post("/webhooks/provider", h.ProviderWebhook)
	router.Get("/ws/updates", h.WSUpdates)

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	return router
}
