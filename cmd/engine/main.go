package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"tradesignal/internal/backtest"
	"tradesignal/internal/bandit"
	"tradesignal/internal/broker"
	"tradesignal/internal/config"
	cronrunner "tradesignal/internal/cron"
	"tradesignal/internal/db"
	"tradesignal/internal/handler"
	"tradesignal/internal/logger"
	"tradesignal/internal/marketdata"
	gormrepository "tradesignal/internal/repository/gorm"
	"tradesignal/internal/service"
	"tradesignal/internal/strategy"
)

func main() {
	cfgPath := os.Getenv("TS_CONFIG")
	if cfgPath == "" {
		cfgPath = "config/config.yaml"
	}

	envOnly := false
	if envOnlyRaw := os.Getenv("TS_ENV_ONLY"); envOnlyRaw != "" {
		envOnly = strings.EqualFold(envOnlyRaw, "true") || envOnlyRaw == "1"
	}

	cfg, err := config.Load(cfgPath, envOnly)
	if err != nil {
		panic(err)
	}

	logger, err := logger.New(cfg.Log)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	dbConn, err := db.Open(cfg.DB)
	if err != nil {
		logger.Fatal("db open failed", zap.Error(err))
	}
	defer db.Close(dbConn)

	if err := db.SetTimezone(dbConn, cfg.DB.Timezone); err != nil {
		logger.Warn("failed to set timezone", zap.Error(err))
	}
	if err := db.AutoMigrate(dbConn); err != nil {
		logger.Fatal("auto-migrate failed", zap.Error(err))
	}

	store := gormrepository.New(dbConn.Gorm)
	marketClient := marketdata.NewClient(cfg.MarketData)
	brokerClient := broker.NewClient(cfg.Broker)
	registry := strategy.NewRegistry(strategy.DefaultGenerators()...)
	selector := bandit.NewSelector(cfg.Bandit.LowVolGateFamilies, cfg.Bandit.HighVIXThreshold)

	hub := handler.NewSignalHub(logger)

	registrySvc := &service.RegistryService{
		Repo:     store,
		Registry: registry,
		Logger:   logger,
	}
	scanSvc := &service.ScanService{
		Repo:        store,
		Market:      marketClient,
		Registry:    registry,
		Broadcast:   hub,
		Logger:      logger,
		ScreenerCfg: cfg.Screener,
		Defaults:    cfg.StrategyDefaults,
		SignalTTL:   cfg.AutoTrader.SignalMaxAge,
	}
	orderRouter := &service.OrderRouter{
		Repo:   store,
		Broker: brokerClient,
		Logger: logger,
		Risk:   cfg.Risk,
		DryRun: cfg.AutoTrader.DryRun,
	}
	pool := &backtest.Pool{
		Repo:     store,
		Bars:     marketClient,
		Registry: registry,
		Log:      logger,
		Cfg:      cfg.Backtest,
		RiskCfg:  cfg.Risk,
	}
	backtestSvc := &service.BacktestService{
		Repo:     store,
		Registry: registry,
		Pool:     pool,
		Logger:   logger,
		Cfg:      cfg.Backtest,
	}
	banditSvc := &service.BanditService{Repo: store, Logger: logger}

	if strings.EqualFold(cfg.App.Env, "dev") {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(corsMiddleware())

	healthHandler := &handler.HealthHandler{DB: dbConn.Gorm}
	healthHandler.Register(engine)
	strategyHandler := &handler.StrategyHandler{Repo: store, Svc: registrySvc}
	strategyHandler.Register(engine)
	signalHandler := &handler.SignalHandler{Repo: store}
	signalHandler.Register(engine)
	backtestHandler := &handler.BacktestHandler{Repo: store, Svc: backtestSvc}
	backtestHandler.Register(engine)
	orderHandler := &handler.OrderHandler{Repo: store, Router: orderRouter}
	orderHandler.Register(engine)
	autoTradeHandler := &handler.AutoTradeHandler{Repo: store}
	autoTradeHandler.Register(engine)
	riskHandler := &handler.RiskHandler{Repo: store, Cfg: cfg.Risk}
	riskHandler.Register(engine)
	screenerHandler := &handler.ScreenerHandler{Repo: store, Scan: scanSvc}
	screenerHandler.Register(engine)
	banditHandler := &handler.BanditHandler{Svc: banditSvc}
	banditHandler.Register(engine)
	hub.Register(engine)

	srv := &http.Server{
		Addr:    cfg.Server.HTTPAddr,
		Handler: engine,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool.Start(ctx)

	auto := &service.AutoTrader{
		Repo:      store,
		Router:    orderRouter,
		Broker:    brokerClient,
		Market:    marketClient,
		Selector:  selector,
		Logger:    logger,
		Cfg:       cfg.AutoTrader,
		BanditCfg: cfg.Bandit,
		RiskCfg:   cfg.Risk,
		Seed:      cfg.Bandit.Seed,
	}
	if cfg.AutoTrader.Enabled {
		go func() {
			if err := auto.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Warn("auto trader stopped", zap.Error(err))
			}
		}()
	}

	cronRunner := cronrunner.New(logger, ctx)
	if cfg.Cron.Enabled {
		_, err := cronRunner.Add(cfg.Cron.ScreenerScan, func(ctx context.Context) {
			if _, err := scanSvc.ScanOnce(ctx); err != nil {
				logger.Warn("screener scan failed", zap.Error(err))
			}
		})
		if err != nil {
			logger.Warn("cron register screener scan failed", zap.Error(err))
		}

		_, err = cronRunner.Add(cfg.Cron.SignalCleanup, func(ctx context.Context) {
			if err := scanSvc.CleanupExpiredSignals(ctx); err != nil {
				logger.Warn("delete expired signals failed", zap.Error(err))
			}
		})
		if err != nil {
			logger.Warn("cron register signal cleanup failed", zap.Error(err))
		}

		_, err = cronRunner.Add(cfg.Cron.FillReconcile, func(ctx context.Context) {
			if err := auto.ReconcileFills(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Warn("fill reconciliation failed", zap.Error(err))
			}
		})
		if err != nil {
			logger.Warn("cron register fill reconcile failed", zap.Error(err))
		}
	}
	cronRunner.Start()
	defer cronRunner.Stop()

	if cfg.MarketData.StreamURL != "" {
		go func() {
			err := marketdata.RunStream(ctx, marketdata.StreamOptions{
				URL:     cfg.MarketData.StreamURL,
				Symbols: cfg.Screener.Universe,
				Logger:  logger,
				OnBar: func(bar marketdata.Bar) {
					logger.Debug("live bar",
						zap.String("symbol", bar.Symbol),
						zap.Float64("close", bar.Close),
						zap.Time("ts", bar.Timestamp))
				},
			})
			if err != nil && !errors.Is(err, context.Canceled) {
				logger.Warn("market data stream stopped", zap.Error(err))
			}
		}()
	}

	errCh := make(chan error, 2)

	go func() {
		logger.Info("http server starting", zap.String("addr", cfg.Server.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown requested")
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	}
}
