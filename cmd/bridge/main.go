package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"mt5bridge/internal/analytics"
	"mt5bridge/internal/config"
	cronrunner "mt5bridge/internal/cron"
	"mt5bridge/internal/db"
	"mt5bridge/internal/fees"
	"mt5bridge/internal/handler"
	"mt5bridge/internal/ingest"
	"mt5bridge/internal/logger"
	"mt5bridge/internal/mux"
	gormrepository "mt5bridge/internal/repository/gorm"
	"mt5bridge/internal/session"
	"mt5bridge/internal/settings"
	"mt5bridge/internal/terminal"
)

func main() {
	cfgPath := os.Getenv("MT5_CONFIG")
	if cfgPath == "" {
		cfgPath = "config/config.yaml"
	}

	envOnly := false
	if envOnlyRaw := os.Getenv("MT5_ENV_ONLY"); envOnlyRaw != "" {
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
	settingsSvc := &settings.Service{Repo: store}
	if err := settingsSvc.EnsureDefaultSwitches(context.Background()); err != nil {
		logger.Warn("init default feature switches failed", zap.Error(err))
	}

	accounts := managedAccounts(cfg, logger)
	gateway := terminal.NewGatewayClient(cfg.Terminal.GatewayURL, logger)
	sessionMgr := session.New(gateway, cfg.Terminal.CallTimeout, logger)
	multiplexer := mux.New(sessionMgr, accounts, logger)

	analyticsEngine := &analytics.Engine{
		Repo:              store,
		Logger:            logger,
		DefaultRatePerLot: decimal.NewFromFloat(cfg.Rebates.RatePerLot),
	}
	feeEngine := &fees.Engine{Repo: store, Logger: logger}
	ingestSvc := &ingest.Service{
		Session:      sessionMgr,
		Repo:         store,
		Logger:       logger,
		Accounts:     accounts,
		LookbackDays: cfg.Ingest.LookbackDays,
		Overlap:      cfg.Ingest.Overlap,
		BatchSize:    cfg.Ingest.BatchSize,
	}

	if strings.EqualFold(cfg.App.Env, "dev") {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(handler.CORSMiddleware())
	engine.Use(handler.RequireBearerMiddleware())

	healthHandler := &handler.HealthHandler{DB: dbConn.Gorm}
	healthHandler.Register(engine)
	bridgeHandler := &handler.BridgeHandler{Mux: multiplexer, Repo: store}
	bridgeHandler.Register(engine)
	dealHandler := &handler.DealHandler{Engine: analyticsEngine}
	dealHandler.Register(engine)
	feeHandler := &handler.FeeHandler{Engine: feeEngine}
	feeHandler.Register(engine)

	srv := &http.Server{
		Addr:    cfg.Server.HTTPAddr,
		Handler: engine,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Terminal may come up after us; retry in the background until the
	// first connect succeeds. Until then every endpoint serves cache.
	go func() {
		for {
			err := sessionMgr.Initialize(ctx)
			if err == nil {
				logger.Info("terminal session initialized")
				if err := multiplexer.RefreshCycle(ctx); err != nil {
					logger.Warn("initial refresh cycle incomplete", zap.Error(err))
				}
				return
			}
			logger.Warn("terminal initialize failed, retrying", zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(10 * time.Second):
			}
		}
	}()

	cronRunner := cronrunner.New(logger, ctx)

	_, err = cronRunner.Add("@every "+cfg.Refresh.Interval.String(), func(ctx context.Context) {
		if !settingsSvc.IsEnabled(ctx, settings.FeatureRefreshCycle, true) {
			return
		}
		if !sessionMgr.Initialized() {
			return
		}
		if err := multiplexer.RefreshCycle(ctx); err != nil {
			logger.Warn("refresh cycle incomplete", zap.Error(err))
		}
	})
	if err != nil {
		logger.Warn("cron register refresh cycle failed", zap.Error(err))
	}

	_, err = cronRunner.Add("@every "+cfg.Ingest.Interval.String(), func(ctx context.Context) {
		if !settingsSvc.IsEnabled(ctx, settings.FeatureHistoryIngest, true) {
			return
		}
		if !sessionMgr.Initialized() {
			return
		}
		if err := ingestSvc.RunOnce(ctx); err != nil {
			logger.Warn("deal ingest incomplete", zap.Error(err))
		}
	})
	if err != nil {
		logger.Warn("cron register deal ingest failed", zap.Error(err))
	}

	_, err = cronRunner.Add("@every "+cfg.Fees.AccrualInterval.String(), func(ctx context.Context) {
		if !settingsSvc.IsEnabled(ctx, settings.FeatureFeeAccrual, true) {
			return
		}
		report, err := feeEngine.CalculateCurrentFees(ctx)
		if err != nil {
			logger.Warn("fee accrual failed", zap.Error(err))
			return
		}
		logger.Info("fee accrual complete",
			zap.Int("managers", len(report.Managers)),
			zap.String("totalFees", report.TotalFees.String()),
		)
	})
	if err != nil {
		logger.Warn("cron register fee accrual failed", zap.Error(err))
	}

	cronRunner.Start()
	defer cronRunner.Stop()

	errCh := make(chan error, 1)
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

	if err := sessionMgr.Teardown(); err != nil {
		logger.Warn("session teardown failed", zap.Error(err))
	}
}

// managedAccounts resolves account passwords from the environment;
// accounts with a missing password are dropped with a warning rather
// than failing startup.
func managedAccounts(cfg config.Config, logger *zap.Logger) []mux.ManagedAccount {
	out := make([]mux.ManagedAccount, 0, len(cfg.Accounts))
	for _, a := range cfg.Accounts {
		password := strings.TrimSpace(os.Getenv(a.PasswordEnv))
		if password == "" {
			logger.Warn("managed account skipped: password env not set",
				zap.Int64("account", a.Login),
				zap.String("env", a.PasswordEnv),
			)
			continue
		}
		server := a.Server
		if server == "" {
			server = cfg.Terminal.Server
		}
		out = append(out, mux.ManagedAccount{
			Account: session.Account{
				Login:    a.Login,
				Password: password,
				Server:   server,
			},
			FundType: a.FundType,
			Name:     a.Name,
		})
	}
	return out
}
