package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	httpadapter "yarad/internal/adapters/http"
	pg "yarad/internal/adapters/postgres"
	"yarad/internal/config"
	"yarad/internal/logger"
	"yarad/internal/notify"
	"yarad/internal/ports"
	dispatchsvc "yarad/internal/services/dispatch"
	registrysvc "yarad/internal/services/registry"
)

func main() {
	cfg, err := config.Load()
	log := logger.New(cfg.LogFormat)
	if err != nil {
		log.Warn("config", "err", err)
	}
	if cfg.DatabaseURL == "" {
		log.Error("DATABASE_URL is required")
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := pg.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Error("db connect", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := db.Migrate(ctx); err != nil {
		log.Error("db migrate", "err", err)
		os.Exit(1)
	}

	// Wire repositories to services (ports)
	var _ ports.AgentRepository = db
	var _ ports.JobRepository = db

	mailer := notify.NewMailer(cfg.SMTPAddr, cfg.NotifyFrom, cfg.NotifyEnabled)
	dispatch := dispatchsvc.New(db, db, mailer)
	registry := registrysvc.New(db, db)

	srv := httpadapter.New(dispatch, registry, cfg.AdminToken)
	r := chi.NewRouter()
	r.Mount("/", srv.Routes())

	errCh := make(chan error, 1)
	go func() { errCh <- http.ListenAndServe(cfg.ListenAddr, r) }()
	log.Info("listening", "addr", cfg.ListenAddr)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		log.Info("shutting down", "signal", sig.String())
		cancel()
		time.Sleep(300 * time.Millisecond)
	case err := <-errCh:
		log.Error("server error", "err", err)
		os.Exit(1)
	}
}
