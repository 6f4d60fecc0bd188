package handlers

import (
	"net/http"

	"dispense/internal/config"
	"dispense/internal/middleware"
	"dispense/internal/models"
	"dispense/internal/store"
	"dispense/internal/websocket"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

type Handler struct {
	reconcileDB store.Selecter
	cfg         config.Config
	bank        Bank
	verifier    Verifier
	engine      Engine
	catalog     Catalog
	ledger      LedgerStore
	audit       AuditStore
	metrics     Metrics
	ws          *websocket.Server
}

func New(reconcileDB store.Selecter, cfg config.Config, bank Bank, verifier Verifier, engine Engine, catalog Catalog, ledger LedgerStore, audit AuditStore, metrics Metrics, hub *websocket.Hub) *Handler {
	return &Handler{
		reconcileDB: reconcileDB,
		cfg:         cfg,
		bank:        bank,
		verifier:    verifier,
		engine:      engine,
		catalog:     catalog,
		ledger:      ledger,
		audit:       audit,
		metrics:     metrics,
		ws:          websocket.NewServer(hub, cfg.AllowedOrigins),
	}
}

func (h *Handler) Routes() http.Handler {
	router := chi.NewRouter()
	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.Recoverer)
	if h.cfg.DebugLevel > 0 {
		router.Use(chimiddleware.Logger)
	}
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   h.cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	authed := middleware.Auth(h.cfg.JWTSecret)
	tier := func(t models.Tier) func(http.Handler) http.Handler {
		return middleware.RequireTier(h.bank, t)
	}

	router.Post("/auth/login", h.Login)
	router.With(authed, tier(models.TierNormal)).Get("/me", h.Me)
	router.Get("/items", h.ListItems)

	router.Route("/accounts", func(r chi.Router) {
		r.Use(authed)
		r.With(tier(models.TierCoke)).Get("/", h.ListAccounts)
		r.With(tier(models.TierNormal)).Get("/{name}", h.GetAccount)
		r.With(tier(models.TierNormal)).Get("/{name}/history", h.AccountHistory)
		r.With(tier(models.TierCoke)).Post("/{name}/add", h.AddFunds)
	})
	router.With(authed, tier(models.TierNormal)).Post("/transfers", h.Transfer)

	router.Route("/admin", func(r chi.Router) {
		r.Use(authed, tier(models.TierWheel))
		r.Get("/audit", h.ListAuditLogs)
		r.Get("/reconcile", h.Reconcile)
	})

	router.Get("/ws/balances", h.WSBalances)
	if h.metrics != nil {
		router.Handle("/metrics", h.metrics.Handler())
	}
	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	return router
}
