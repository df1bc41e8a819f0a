package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"lv-exchange/internal/admin"
	"lv-exchange/internal/auth"
	"lv-exchange/internal/config"
	"lv-exchange/internal/db"
	"lv-exchange/internal/events"
	"lv-exchange/internal/health"
	"lv-exchange/internal/httpserver"
	"lv-exchange/internal/ledger"
	"lv-exchange/internal/logging"
	"lv-exchange/internal/marketdata"
	"lv-exchange/internal/metrics"
	"lv-exchange/internal/orders"
	"lv-exchange/internal/storage"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	ctx := context.Background()

	var store storage.Store
	switch cfg.Storage {
	case "postgres":
		pool, err := db.NewPool(ctx, cfg.DBDSN)
		if err != nil {
			logger.Fatal("connect database", zap.Error(err))
		}
		pg := storage.NewPostgres(pool)
		if err := pg.EnsureSchema(ctx); err != nil {
			logger.Fatal("apply schema", zap.Error(err))
		}
		store = pg
	default:
		store = storage.NewMemory()
		logger.Warn("using in-memory storage, data will not survive restarts")
	}
	defer store.Close()

	registry := prometheus.NewRegistry()
	metrics.Register(registry)

	bus := events.NewBus()
	pub := events.Multi{bus}
	var kafkaPub *events.KafkaPublisher
	if len(cfg.KafkaBrokers) > 0 {
		kafkaPub = events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, logger)
		pub = append(pub, kafkaPub)
		logger.Info("kafka event mirror enabled",
			zap.Strings("brokers", cfg.KafkaBrokers),
			zap.String("topic", cfg.KafkaTopic))
	}

	authSvc := auth.NewService(store, cfg.JWTIssuer, []byte(cfg.JWTSecret), logger)
	if err := authSvc.EnsureAdmin(ctx, cfg.AdminName, cfg.AdminPassword); err != nil {
		logger.Fatal("ensure admin account", zap.Error(err))
	}
	ledgerSvc := ledger.NewService(store, pub, logger)
	orderSvc := orders.NewService(store, ledgerSvc, pub, cfg.CashTicker, logger)
	reader := marketdata.NewReader(store)

	router := httpserver.NewRouter(httpserver.RouterDeps{
		AuthHandler:   auth.NewHandler(authSvc),
		LedgerHandler: ledger.NewHandler(ledgerSvc),
		OrderHandler:  orders.NewHandler(orderSvc),
		MarketHandler: marketdata.NewHandler(reader),
		AdminHandler:  admin.NewHandler(store, logger),
		HealthHandler: health.NewHandler(store),
		AuthService:   authSvc,
		InternalToken: cfg.InternalToken,
		WSHandler:     marketdata.NewWS(bus, cfg.WSOrigin, logger),
		Metrics:       metrics.Handler(registry),
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("server listening", zap.String("addr", cfg.HTTPAddr))
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-stop
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
		if kafkaPub != nil {
			_ = kafkaPub.Close()
		}
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatal("server stopped", zap.Error(err))
	}
}
