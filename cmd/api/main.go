package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"gorm.io/gorm"

	httpadp "loanpay-backend/internal/adapter/http"
	"loanpay-backend/internal/adapter/middleware"
	repo "loanpay-backend/internal/adapter/repository/mysql"
	"loanpay-backend/internal/config"
	loanDomain "loanpay-backend/internal/domain/loan"
	"loanpay-backend/internal/domain/transaction"
	"loanpay-backend/internal/infrastructure/cache"
	"loanpay-backend/internal/infrastructure/db"
	"loanpay-backend/internal/infrastructure/gateway"
	"loanpay-backend/internal/infrastructure/gateway/sandbox"
	"loanpay-backend/internal/infrastructure/logging"
	"loanpay-backend/internal/infrastructure/metrics"
	loanUC "loanpay-backend/internal/usecase/loan"
	"loanpay-backend/internal/usecase/payment"
)

func main() {
	cfg := config.Load()

	logger, err := logging.New(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat, Development: cfg.LogDev})
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()

	if err := cfg.Validate(); err != nil {
		logger.Fatal("config", zap.Error(err))
	}

	gdb, err := openDB(cfg, logger)
	if err != nil {
		logger.Fatal("database", zap.String("driver", cfg.DBDriver), zap.Error(err))
	}
	if err := gdb.AutoMigrate(&loanDomain.Loan{}, &transaction.Transaction{}); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	rdb, err := cache.OpenRedis(cfg.RedisAddr, cfg.RedisDB)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer func() { _ = rdb.Close() }()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	rec := metrics.NewPrometheus()
	if err := rec.Register(reg); err != nil {
		logger.Fatal("metrics", zap.Error(err))
	}

	sb := sandbox.DefaultConfig()
	sb.PollsUntilPaid = cfg.SandboxPollsUntilPaid
	sb.OTPCode = cfg.SandboxOTPCode
	gw := gateway.NewResilient(sandbox.New(sb), gateway.Config{
		Timeout:          cfg.GatewayTimeout,
		MaxFailures:      uint32(cfg.GatewayBreakerFailures),
		OpenTimeout:      cfg.GatewayBreakerTimeout,
		HalfOpenRequests: 1,
	}, rec, logger)

	uow := repo.NewGormUoW(gdb)
	loans := repo.NewLoanRepository(gdb)
	txs := repo.NewTransactionRepository(gdb)

	pcfg := payment.DefaultConfig()
	pcfg.MaxAmount = cfg.PaymentMaxAmount
	pcfg.ReservationWindow = cfg.ReservationWindow
	// a method may make more than one gateway call per dispatch
	pcfg.DispatchLease = 3 * cfg.GatewayTimeout
	orch := payment.NewOrchestrator(uow, loans, txs, gw, pcfg,
		payment.WithMetrics(rec), payment.WithLogger(logger))

	health := httpadp.NewHandler().
		WithCheck("database", func(ctx context.Context) error {
			sqlDB, err := gdb.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		}).
		WithCheck("redis", func(ctx context.Context) error { return cache.Healthy(ctx, rdb) })

	e := echo.New()
	e.HideBanner = true
	e.Validator = httpadp.NewValidator()
	e.Use(
		echomw.RequestIDWithConfig(echomw.RequestIDConfig{Generator: uuid.NewString}),
		middleware.RequestLogger(logger),
		echomw.Recover(),
	)
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))

	httpadp.Handlers{
		Health:    health,
		Loans:     httpadp.NewLoanHandler(loanUC.NewUsecase(uow, loans, txs, logger), logger),
		Payments:  httpadp.NewPaymentHandler(orch, logger),
		Callbacks: httpadp.NewCallbackHandler(orch, logger),
	}.Register(e, middleware.IdempotencyMiddleware(rdb, cfg.IdempotencyTTL(), logger))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	addr := ":" + cfg.AppPort
	go func() {
		logger.Info("listening", zap.String("addr", addr))
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown", zap.Error(err))
	}
	logger.Info("stopped")
}

func openDB(cfg *config.Config, logger *zap.Logger) (*gorm.DB, error) {
	opts := []db.Option{db.WithLogger(logger), db.WithLogLevel(db.GormLogLevel(cfg.LogLevel))}
	if cfg.DBDriver == "sqlite" {
		return db.OpenSQLite(cfg.SQLitePath, opts...)
	}
	return db.OpenGorm(cfg.MySQLDSN(), opts...)
}
