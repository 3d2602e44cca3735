package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"dialer-platform/internal/audit"
	"dialer-platform/internal/auth"
	"dialer-platform/internal/broadcast"
	"dialer-platform/internal/calendarx"
	"dialer-platform/internal/callerid"
	"dialer-platform/internal/config"
	"dialer-platform/internal/control"
	"dialer-platform/internal/dialer"
	"dialer-platform/internal/events"
	"dialer-platform/internal/httpapi"
	"dialer-platform/internal/ivr"
	"dialer-platform/internal/leads"
	"dialer-platform/internal/monitor"
	"dialer-platform/internal/queue"
	"dialer-platform/internal/readiness"
	"dialer-platform/internal/reporting"
	"dialer-platform/internal/routing"
	"dialer-platform/internal/speech"
	"dialer-platform/internal/telephony"
	"dialer-platform/pkg/logger"
	"dialer-platform/pkg/utils"

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"
)

func main() {
	// Root context that cancels on shutdown.
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env)
	slog.SetDefault(log)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	authManager, err := auth.NewManager(cfg.Auth)
	if err != nil {
		log.Error("auth init failed", "err", err)
		os.Exit(1)
	}

	db, err := utils.OpenPostgres(rootCtx, "pgx", cfg.PostgresDSN(), utils.PostgresPoolConfig{})
	if err != nil {
		log.Error("postgres init failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	rdb, err := utils.OpenRedis(rootCtx, utils.RedisConfig{Addr: cfg.RedisAddr()})
	if err != nil {
		log.Error("redis init failed", "err", err)
		os.Exit(1)
	}
	defer rdb.Close()

	// Telephony adapter: Twilio when configured, otherwise the in-memory
	// adapter so local runs work without carrier credentials.
	var adapter telephony.Adapter
	if cfg.Twilio.AccountSID != "" {
		tw, err := telephony.NewTwilioAdapter(cfg.Twilio)
		if err != nil {
			log.Error("twilio init failed", "err", err)
			os.Exit(1)
		}
		adapter = tw
	} else {
		log.Warn("twilio not configured, using in-memory telephony adapter")
		adapter = telephony.NewMemoryAdapter()
	}

	var synth speech.Synthesizer
	if cfg.Speech.BaseURL != "" {
		synth, err = speech.NewHTTPSynthesizer(cfg.Speech)
		if err != nil {
			log.Error("speech init failed", "err", err)
			os.Exit(1)
		}
	} else {
		log.Warn("speech provider not configured, using in-memory synthesizer")
		synth = speech.NewMemorySynthesizer()
	}

	// Core services.
	broadcasts := broadcast.NewService(broadcast.NewPostgresStore(db))
	queueSvc := queue.NewService(queue.NewPostgresStore(db))
	numberDir := callerid.NewPostgresDirectory(db)
	selector := callerid.NewSelector(numberDir, callerid.NewRedisUsageCounter(rdb))
	checker := readiness.NewChecker(selector, queueSvc)
	auditSvc := audit.NewService(audit.NewPostgresRepo(db), log)
	router := routing.NewEngine(routing.NewMemoryTrunkHealth(), auditSvc)
	bucket := dialer.NewRedisTokenBucket(rdb)
	pacer := dialer.NewPacer(broadcasts, queueSvc, selector, router, adapter, bucket, cfg.Dialer, log)
	dncMarker := leads.NewDNCMarker(leads.NewPostgresDirectory(db), log)
	mon := monitor.New(broadcasts, queueSvc, adapter, dncMarker, cfg.Dialer, log)
	bus := events.NewBus(64)
	ctrl := control.NewService(broadcasts, queueSvc, checker, pacer, mon, adapter, auditSvc, bus, cfg.Dialer, log)
	defer ctrl.Shutdown()

	ivrHandler := ivr.NewHandler(
		broadcasts,
		queueSvc,
		dncMarker,
		calendarx.NewMemoryScheduler(),
		bus,
		ivr.NewRedisDeduper(rdb),
		ivr.NewRedisTransferGate(rdb),
		cfg.Twilio.StatusCallbackURL+"/webhooks/twilio/gather",
		log,
	)

	handlers := httpapi.Handlers{
		Auth:       authManager,
		Broadcasts: broadcasts,
		Queue:      queueSvc,
		Control:    ctrl,
		Reports:    reporting.NewService(reporting.NewServiceRepo(broadcasts, queueSvc)),
		Numbers:    numberDir,
		Synth:      synth,
		Bus:        bus,
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))

	registerRoutes(r, handlers, ivrHandler, auth.RequireAccessToken(authManager))

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env, "telephony", adapter.Name())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}

	_ = logger.ShutdownFlush(shutdownCtx, 2*time.Second)
}
