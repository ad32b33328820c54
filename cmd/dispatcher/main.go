package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/marketingkamdi24/Videoberatung-kamdi24/internal/audit"
	"github.com/marketingkamdi24/Videoberatung-kamdi24/internal/auth"
	"github.com/marketingkamdi24/Videoberatung-kamdi24/internal/calls"
	"github.com/marketingkamdi24/Videoberatung-kamdi24/internal/config"
	"github.com/marketingkamdi24/Videoberatung-kamdi24/internal/dispatch"
	"github.com/marketingkamdi24/Videoberatung-kamdi24/internal/events"
	"github.com/marketingkamdi24/Videoberatung-kamdi24/internal/httpapi"
	"github.com/marketingkamdi24/Videoberatung-kamdi24/internal/realtime"
	"github.com/marketingkamdi24/Videoberatung-kamdi24/internal/reporting"
	"github.com/marketingkamdi24/Videoberatung-kamdi24/internal/telemetry"
	"github.com/marketingkamdi24/Videoberatung-kamdi24/pkg/logger"
	"github.com/marketingkamdi24/Videoberatung-kamdi24/pkg/utils"
)

const serviceName = "dispatcher"

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env)
	slog.SetDefault(log)

	if err := run(rootCtx, stop, cfg, log); err != nil {
		log.Error("dispatcher stopped", "err", err)
		os.Exit(1)
	}
}

func run(rootCtx context.Context, stop context.CancelFunc, cfg config.Config, log *slog.Logger) error {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	shutdownTracing := telemetry.Setup(serviceName, log)
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(ctx); err != nil {
			log.Error("tracing shutdown failed", "err", err)
		}
	}()

	var authManager *auth.Manager
	if cfg.AuthEnabled() {
		m, err := auth.NewManager(cfg.Auth)
		if err != nil {
			return err
		}
		authManager = m
	}

	checks := map[string]func(context.Context) error{}

	// Storage: Postgres when configured, in-process otherwise.
	var (
		callRepo  calls.Repository = calls.NewMemoryRepo(cfg.Dispatch.MemoryHistory)
		auditRepo audit.Repository = audit.NewMemoryRepo(cfg.Dispatch.MemoryHistory)
	)
	if cfg.DBEnabled() {
		db, err := utils.OpenPostgres(rootCtx, "pgx", cfg.PostgresDSN(), utils.PostgresPoolConfig{})
		if err != nil {
			return err
		}
		defer db.Close()

		pgCalls := calls.NewPostgresRepo(db)
		pgAudit := audit.NewPostgresRepo(db)
		if err := pgCalls.EnsureSchema(rootCtx); err != nil {
			return err
		}
		if err := pgAudit.EnsureSchema(rootCtx); err != nil {
			return err
		}
		callRepo, auditRepo = pgCalls, pgAudit
		checks["postgres"] = func(ctx context.Context) error { return utils.HealthCheck(ctx, db, time.Second) }
		log.Info("postgres connected")
	}

	var limiter realtime.SessionLimiter
	if cfg.RedisEnabled() {
		rdb, err := utils.OpenRedis(rootCtx, utils.RedisConfig{Addr: cfg.RedisAddr(), Password: cfg.Redis.Password})
		if err != nil {
			return err
		}
		defer rdb.Close()
		limiter = realtime.NewRedisLimiter(rdb, cfg.Redis.MaxSessionsPerIP, 0)
		checks["redis"] = redisCheck(rdb)
		log.Info("redis session limiter enabled", "max_sessions_per_ip", cfg.Redis.MaxSessionsPerIP)
	}

	// Lifecycle observers, each off the dispatcher lock.
	sinks := []dispatch.Observer{
		calls.NewRecorder(callRepo, log),
		audit.NewService(auditRepo, log),
	}
	if cfg.AMQPEnabled() {
		pub, err := events.Connect(rootCtx,
			events.ConnectionOptions{URL: cfg.AMQP.URL, Logger: log},
			events.Options{Exchange: cfg.AMQP.Exchange, Producer: serviceName, Logger: log},
		)
		if err != nil {
			return err
		}
		defer func() {
			if err := pub.Close(); err != nil {
				log.Warn("amqp close failed", "err", err)
			}
		}()
		sinks = append(sinks, pub)
		log.Info("lifecycle events published", "exchange", cfg.AMQP.Exchange)
	}

	var (
		observers dispatch.Observers
		workers   []*dispatch.AsyncObserver
		wg        sync.WaitGroup
	)
	for _, sink := range sinks {
		w := dispatch.NewAsyncObserver(sink, 0, log)
		workers = append(workers, w)
		observers = append(observers, w)
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.Run(context.Background())
		}()
	}
	stopObservers := func() {
		for _, w := range workers {
			w.Close()
		}
		wg.Wait()
	}

	hub := realtime.NewHub(cfg.Dispatch.SendBuffer, log)
	mgr := dispatch.NewManager(dispatch.NewRegistry(), hub, dispatch.Options{
		WaitMinutesPerPosition: cfg.Dispatch.WaitMinutesPerPosition,
		DefaultCustomerName:    cfg.Dispatch.DefaultCustomerName,
		DefaultAgentName:       cfg.Dispatch.DefaultAgentName,
		Observer:               observers,
		Logger:                 log,
	})

	var agentAuth dispatch.AgentAuthenticator
	var agentMW []gin.HandlerFunc
	if cfg.Auth.RequireAgentToken {
		agentAuth = authManager
		agentMW = httpapi.RequireAgent(authManager)
	}
	dispatcher := dispatch.NewDispatcher(mgr, agentAuth)

	rt := realtime.NewServer(hub, dispatcher, realtime.Options{Limiter: limiter, Logger: log})

	handlers := httpapi.Handlers{
		Dispatch:       dispatcher,
		Auth:           authManager,
		Reports:        reporting.NewService(callRepo),
		AgentAccessKey: cfg.Auth.AgentAccessKey,
		Checks:         checks,
	}

	// Gin router
	r := gin.New()
	// Forwarding headers are honoured only from these hops; nil trusts none.
	if err := r.SetTrustedProxies(cfg.App.TrustedProxies); err != nil {
		return err
	}
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log, realtimePrefix))
	registerRoutes(r, handlers, rt.Handler(realtimePrefix), agentMW, cfg.App.PublicDir)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           otelhttp.NewHandler(r, serviceName),
		ReadHeaderTimeout: 5 * time.Second,
		// Streaming SockJS transports hold responses open; no Read/WriteTimeout.
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		log.Info("dispatcher listening", "addr", srv.Addr, "env", cfg.App.Env)
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
	stopObservers()
	return nil
}

func redisCheck(rdb *redis.Client) func(context.Context) error {
	return func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
}
