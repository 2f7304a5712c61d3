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

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/odyssey-procure/cmd/odyssey/cli"
	"github.com/odyssey-erp/odyssey-procure/internal/app"
	"github.com/odyssey-erp/odyssey-procure/internal/audit"
	audithttp "github.com/odyssey-erp/odyssey-procure/internal/audit/http"
	"github.com/odyssey-erp/odyssey-procure/internal/auth"
	"github.com/odyssey-erp/odyssey-procure/internal/inventory"
	"github.com/odyssey-erp/odyssey-procure/internal/observability"
	"github.com/odyssey-erp/odyssey-procure/internal/platform/cache"
	"github.com/odyssey-erp/odyssey-procure/internal/platform/db"
	"github.com/odyssey-erp/odyssey-procure/internal/procurement"
	"github.com/odyssey-erp/odyssey-procure/internal/procurement/workflow"
	"github.com/odyssey-erp/odyssey-procure/internal/rbac"
	"github.com/odyssey-erp/odyssey-procure/internal/reports"
	"github.com/odyssey-erp/odyssey-procure/internal/sequence"
	"github.com/odyssey-erp/odyssey-procure/internal/shared"
	"github.com/odyssey-erp/odyssey-procure/internal/users"
	"github.com/odyssey-erp/odyssey-procure/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)

	cmd, args := "serve", []string(nil)
	if len(os.Args) > 1 {
		cmd, args = os.Args[1], os.Args[2:]
	}

	switch cmd {
	case "serve":
		if err := serve(ctx, stop, cfg, logger); err != nil {
			logger.Error("serve", slog.Any("error", err))
			os.Exit(1)
		}
	case "jobs":
		redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB}
		client := jobs.NewClient(redisOpts)
		inspector := asynq.NewInspector(redisOpts)
		code := cli.NewJobsCLI(client, inspector).Run(ctx, args)
		_ = client.Close()
		_ = inspector.Close()
		os.Exit(code)
	case "users":
		pool, err := db.New(ctx, cfg.PGDSN, db.Options{MaxConns: 2})
		if err != nil {
			logger.Error("connect postgres", slog.Any("error", err))
			os.Exit(1)
		}
		svc := auth.NewService(auth.NewRepository(pool), nil, nil, rbac.NewService(), logger, auth.Config{})
		code := cli.NewUsersCLI(svc).Run(ctx, args)
		pool.Close()
		os.Exit(code)
	default:
		logger.Error("unknown command", slog.String("command", cmd))
		os.Exit(2)
	}
}

func serve(ctx context.Context, stop context.CancelFunc, cfg *app.Config, logger *slog.Logger) error {
	pool, err := db.New(ctx, cfg.PGDSN, db.Options{MaxConns: cfg.PGMaxConns})
	if err != nil {
		return err
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cache.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	if err != nil {
		return err
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	rbacService := rbac.NewService()
	rbacMiddleware := rbac.Middleware{Logger: logger}

	tokens := auth.NewTokenService(auth.TokenConfig{
		Secret:     cfg.JWTSecret,
		Issuer:     cfg.JWTIssuer,
		AccessTTL:  cfg.JWTAccessTTL,
		RefreshTTL: cfg.JWTRefreshTTL,
	}, nil)
	authService := auth.NewService(
		auth.NewRepository(pool),
		tokens,
		auth.NewRedisRevocationSet(redisClient),
		rbacService,
		logger,
		auth.Config{MaxFailedLogins: cfg.AuthMaxFailedLogins, LockoutDuration: cfg.AuthLockoutDuration},
	)
	authHandler := auth.NewHandler(logger, authService, cfg.AuthLoginRateLimit)
	usersHandler := users.NewHandler(logger, authService, rbacMiddleware)

	auditLogger := shared.NewAuditLogger(pool)
	idempotencyStore := shared.NewIdempotencyStore(pool)

	ledger := inventory.NewLedger(inventory.NewRepository(pool), auditLogger, inventory.Config{
		DefaultWarehouse: cfg.InventoryDefaultWarehouse,
		Logger:           logger,
	})
	inventoryHandler := inventory.NewHandler(logger, ledger, rbacMiddleware)

	codes := sequence.NewGenerator(sequence.WithMaxAttempts(cfg.SequenceMaxAttempts))
	procurementService := procurement.NewService(
		procurement.NewRepository(pool),
		ledger,
		workflow.New(),
		codes,
		auditLogger,
		idempotencyStore,
		procurement.Config{Logger: logger},
	)
	procurementHandler := procurement.NewHandler(logger, procurementService, rbacMiddleware)

	reportMetrics, err := reports.NewMetrics(metrics.Registerer())
	if err != nil {
		return err
	}
	reportService := reports.NewService(reports.NewPGRepository(pool), reports.Config{Metrics: reportMetrics})
	reportsHandler := reports.NewHandler(logger, reportService, rbacMiddleware)

	auditHandler := audithttp.NewHandler(logger, audit.NewService(audit.NewPGRepository(pool)), rbacMiddleware)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		Metrics:            metrics,
		Auth:               authService,
		AuthHandler:        authHandler,
		InventoryHandler:   inventoryHandler,
		ProcurementHandler: procurementHandler,
		ReportsHandler:     reportsHandler,
		AuditHandler:       auditHandler,
		UsersHandler:       usersHandler,
		JobHandler:         jobHandler,
		Checks: map[string]app.Pinger{
			"postgres": pool,
			"redis":    redisPinger{redisClient},
		},
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

type redisPinger struct {
	client redis.Cmdable
}

func (p redisPinger) Ping(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}

var _ app.Pinger = (*pgxpool.Pool)(nil)
