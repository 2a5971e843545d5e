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

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"

	"github.com/tulen-chik/beltelekom-sub000/internal/audit"
	"github.com/tulen-chik/beltelekom-sub000/internal/auth"
	"github.com/tulen-chik/beltelekom-sub000/internal/billing"
	"github.com/tulen-chik/beltelekom-sub000/internal/bonus"
	"github.com/tulen-chik/beltelekom-sub000/internal/calls"
	"github.com/tulen-chik/beltelekom-sub000/internal/config"
	"github.com/tulen-chik/beltelekom-sub000/internal/httpapi"
	"github.com/tulen-chik/beltelekom-sub000/internal/metrics"
	"github.com/tulen-chik/beltelekom-sub000/internal/rbac"
	"github.com/tulen-chik/beltelekom-sub000/internal/reporting"
	"github.com/tulen-chik/beltelekom-sub000/internal/tariff"
	"github.com/tulen-chik/beltelekom-sub000/pkg/logger"
	"github.com/tulen-chik/beltelekom-sub000/pkg/utils"
)

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// .env is optional; real environment variables win.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Error("dotenv load failed", "err", err)
		os.Exit(1)
	}

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

	db, err := utils.OpenPostgres(rootCtx, "pgx", cfg.PostgresDSN(), utils.PostgresPoolConfig{MaxOpenConns: cfg.DB.MaxOpenConns})
	if err != nil {
		log.Error("postgres init failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	if cfg.DB.AutoMigrate {
		if err := utils.EnsureSchema(rootCtx, db,
			calls.Schema,
			tariff.Schema,
			billing.Schema,
			bonus.Schema,
			audit.Schema,
		); err != nil {
			log.Error("schema bootstrap failed", "err", err)
			os.Exit(1)
		}
		log.Info("schema ensured")
	}

	rdb, err := utils.OpenRedis(rootCtx, utils.RedisConfig{Addr: cfg.RedisAddr()})
	if err != nil {
		log.Error("redis init failed", "err", err)
		os.Exit(1)
	}
	defer rdb.Close()

	authManager, err := auth.NewManager(cfg.Auth)
	if err != nil {
		log.Error("auth init failed", "err", err)
		os.Exit(1)
	}
	creds, err := auth.NewCredentials(cfg.Auth.Users, rbac.IsKnownRole, rbac.RoleSubscriber)
	if err != nil {
		log.Error("auth users invalid", "err", err)
		os.Exit(1)
	}
	throttle := auth.NewThrottle(auth.NewRedisAttemptStore(rdb), cfg.Auth.LoginMaxAttempts, cfg.Auth.LoginLockout)

	auditSvc := audit.NewService(audit.NewPostgresRepo(db))
	billingMetrics := metrics.Default()

	callsRepo := calls.NewPostgresRepo(db)
	tariffRepo := tariff.NewPostgresRepo(db)
	billRepo := billing.NewPostgresRepo(db)

	bills := billing.NewService(callsRepo, tariffRepo, billRepo, billing.Options{
		Audit:        auditSvc,
		Metrics:      billingMetrics,
		Logger:       log,
		Workers:      cfg.Billing.RatingWorkers,
		StoreTimeout: cfg.Billing.StoreTimeout,
	})
	ledger := bonus.NewLedger(billRepo, bonus.NewPostgresStore(db), bonus.Options{
		Locker:       bonus.NewRedisLocker(rdb, cfg.Billing.LockTTL, log),
		Audit:        auditSvc,
		Metrics:      billingMetrics,
		Logger:       log,
		StoreTimeout: cfg.Billing.StoreTimeout,
	})

	h := httpapi.Handlers{
		Auth:    auth.NewAuthenticator(creds, throttle, authManager, log),
		Bills:   bills,
		Bonuses: ledger,
		Tariffs: tariff.NewResolver(tariffRepo),
		Reports: reporting.NewService(callsRepo, bills),
	}

	// Gin router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))
	r.Use(httpapi.RequestContext())

	registerRoutes(r, h, auth.RequireAccessToken(authManager), func(ctx context.Context) error {
		if err := utils.HealthCheck(ctx, db, 2*time.Second); err != nil {
			return err
		}
		return rdb.Ping(ctx).Err()
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env)
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
