package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"dispense/internal/auth"
	"dispense/internal/catalog"
	"dispense/internal/config"
	"dispense/internal/db"
	"dispense/internal/handlers"
	"dispense/internal/ledger"
	"dispense/internal/metrics"
	"dispense/internal/notify"
	"dispense/internal/protocol"
	"dispense/internal/server"
	"dispense/internal/services"
	"dispense/internal/store"
	"dispense/internal/websocket"

	"github.com/spf13/cobra"
)

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	database, err := db.Connect(cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer database.Close()
	applied, err := db.Migrate(ctx, database)
	if err != nil {
		return err
	}
	for _, name := range applied {
		log.Printf("applied migration %s", name)
	}

	accounts := store.NewAccountStore(database)
	ledgerStore := store.NewLedgerStore(database)
	audit := store.NewAuditStore(database)
	creds := store.NewCredentialStore(database)
	persister := store.NewPersister(db.NewTxRunner(database), accounts, ledgerStore, audit)

	m := metrics.New()
	hub := websocket.NewHub()
	opts := []ledger.Option{ledger.WithObserver(hub), ledger.WithMetrics(m)}
	if cfg.UnixGroups {
		opts = append(opts, ledger.WithGroups(auth.NewUnixGroups(auth.DefaultGroups())))
	}
	if cfg.RedisURL != "" {
		client, err := notify.Connect(ctx, cfg.RedisURL)
		if err != nil {
			log.Printf("Redis connection failed, continuing without transfer notifications: %v", err)
		} else {
			defer client.Close()
			opts = append(opts, ledger.WithObserver(notify.NewPublisher(client, cfg.RedisChannel)))
		}
	}
	bank, err := ledger.Open(ctx, persister, opts...)
	if err != nil {
		return fmt.Errorf("open bank: %w", err)
	}

	cat, err := loadCatalog(cfg)
	if err != nil {
		return err
	}
	engine, err := services.NewDispenser(bank, cat, services.DispenserOptions{TestMode: cfg.TestMode, Metrics: m})
	if err != nil {
		return err
	}
	if cfg.TestMode {
		log.Printf("test mode: dispenses are not charged")
	}

	var identities auth.IdentityResolver = auth.UnixIdentity{}
	if cfg.IdentitySource == config.IdentityLocal {
		identities = auth.LocalIdentity{}
	}
	verifier := auth.NewVerifier(creds, cfg.LegacyAuthBypass)
	dispatcher := protocol.NewDispatcher(protocol.Deps{
		Bank:      bank,
		Catalog:   cat,
		Verifier:  verifier,
		Engine:    engine,
		Directory: services.NewDirectory(bank, identities),
		Metrics:   m,
	})

	srv := server.New(dispatcher, server.Options{
		IdleTimeout: cfg.IdleTimeout(),
		DebugLevel:  cfg.DebugLevel,
		Metrics:     m,
	})

	if cfg.HTTPAddr != "" {
		api := handlers.New(database, cfg, bank, verifier, engine, cat, ledgerStore, audit, m, hub)
		httpServer := &http.Server{
			Addr:         cfg.HTTPAddr,
			Handler:      api.Routes(),
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		}
		go func() {
			log.Printf("dispense API listening on %s", httpServer.Addr)
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Printf("http server error: %v", err)
				stop()
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				log.Printf("http shutdown error: %v", err)
			}
		}()
	}

	return srv.ListenAndServe(ctx, cfg.ServerPort)
}

func loadCatalog(cfg config.Config) (*catalog.Catalog, error) {
	if cfg.ItemsFile == "" {
		return catalog.New(nil, catalog.Pseudo{})
	}
	cat, err := catalog.Load(cfg.ItemsFile, catalog.Pseudo{})
	if err != nil {
		return nil, fmt.Errorf("load items: %w", err)
	}
	log.Printf("loaded %d items from %s (handlers: %s)", cat.Len(), cfg.ItemsFile, strings.Join(cat.HandlerNames(), ", "))
	return cat, nil
}
