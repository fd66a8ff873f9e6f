package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jonboulle/clockwork"

	httpadapter "dealflow/internal/adapters/http"
	"dealflow/internal/adapters/memory"
	pg "dealflow/internal/adapters/postgres"
	"dealflow/internal/config"
	"dealflow/internal/logging"
	"dealflow/internal/ports"
	compsvc "dealflow/internal/services/compliance"
	dealsvc "dealflow/internal/services/deals"
	finsvc "dealflow/internal/services/financing"
	negsvc "dealflow/internal/services/negotiation"
	sigsvc "dealflow/internal/services/signatures"
	tasksvc "dealflow/internal/services/tasks"
	"dealflow/internal/workers/nudgerunner"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Printf("warning: %v; falling back to in-memory store", err)
	}
	logger := logging.New(cfg.LogLevel, cfg.LogFormat)
	clock := clockwork.NewRealClock()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Repository ports; postgres when configured, in-memory otherwise.
	var (
		dealRepo ports.DealRepository
		taskRepo ports.TaskRepository
		compRepo ports.ComplianceRepository
		negRepo  ports.NegotiationRepository
		sigRepo  ports.SignatureRepository
		finRepo  ports.FinancingRepository
	)
	if cfg.DatabaseURL != "" {
		if err := pg.Migrate(cfg.DatabaseURL); err != nil {
			log.Fatalf("migrate: %v", err)
		}
		db, err := pg.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("db connect error: %v", err)
		}
		defer db.Close()
		dealRepo, taskRepo, compRepo, negRepo, sigRepo, finRepo = db, db, db, db, db, db
	} else {
		store := memory.NewStore()
		dealRepo, taskRepo, compRepo, negRepo, sigRepo, finRepo = store, store, store, store, store, store
	}

	events := logging.EventSink{Logger: logger}
	notifier := logging.Notifier{Logger: logger}

	dealService := dealsvc.New(dealRepo, taskRepo, compRepo, events, clock, logger)
	negService := negsvc.New(negRepo, dealService, events, clock, logger)
	taskService := tasksvc.New(taskRepo, dealRepo, clock, logger)
	compService := compsvc.New(compRepo, events, clock, logger)
	sigService := sigsvc.New(sigRepo, events, clock, logger)
	sigService.SetThresholds(cfg.StallThreshold, cfg.NudgeCooldown)
	finService := finsvc.New(finRepo, events, clock, logger)
	finService.SetThresholds(cfg.InactivityThreshold, cfg.NudgeCooldown)

	if cfg.RunNudgeScans {
		runner := nudgerunner.New(sigService, finService, dealService, notifier, clock, logger)
		runner.SetInterval(cfg.ScanInterval)
		go runner.Run(ctx)
		logger.Info("nudge runner started", "interval", cfg.ScanInterval)
	}

	srv := httpadapter.New(dealService, negService, taskService, compService, sigService, finService, logger)
	r := chi.NewRouter()
	r.Mount("/", srv.Routes())

	errCh := make(chan error, 1)
	go func() { errCh <- http.ListenAndServe(cfg.ListenAddr, r) }()
	logger.Info("listening", "addr", cfg.ListenAddr)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		logger.Info("shutting down", "signal", sig.String())
		cancel()
		time.Sleep(300 * time.Millisecond)
	case err := <-errCh:
		log.Fatal(fmt.Errorf("server error: %w", err))
	}
}
