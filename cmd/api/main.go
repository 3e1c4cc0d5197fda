package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/eth-jashan/trading-book-sub000/internal/auth"
	"github.com/eth-jashan/trading-book-sub000/internal/config"
	"github.com/eth-jashan/trading-book-sub000/internal/engine"
	"github.com/eth-jashan/trading-book-sub000/internal/events"
	"github.com/eth-jashan/trading-book-sub000/internal/httpserver"
	"github.com/eth-jashan/trading-book-sub000/internal/marketdata"
	"github.com/eth-jashan/trading-book-sub000/internal/model"
	"github.com/eth-jashan/trading-book-sub000/internal/snapshot"
)

func main() {
	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	var logger *zap.Logger
	if cfg.Mode == "production" {
		logger, err = zap.NewProduction()
	} else {
		logger, err = zap.NewDevelopment()
	}
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := events.NewBus()
	market := marketdata.NewMemorySource()
	eng := engine.New(engine.Config{
		StartingBalance:       cfg.StartingBalance,
		DefaultLeverage:       cfg.DefaultLeverage,
		MaintenanceMarginRate: cfg.MaintenanceRate,
		RiskLimits:            model.DefaultRiskLimits(),
	}, market, bus, logger)

	var snapStore *snapshot.Store
	if cfg.SnapshotDSN != "" {
		pool, err := snapshot.NewPool(ctx, cfg.SnapshotDSN)
		if err != nil {
			logger.Fatal("snapshot store", zap.Error(err))
		}
		defer pool.Close()
		snapStore = snapshot.NewStore(pool)
		if err := snapStore.Init(ctx); err != nil {
			logger.Fatal("snapshot store init", zap.Error(err))
		}
		snap, err := snapStore.LoadLatest(ctx)
		switch {
		case err == nil:
			if err := eng.Restore(snap); err != nil {
				logger.Fatal("restore snapshot", zap.Error(err))
			}
			logger.Info("restored from snapshot", zap.Time("taken_at", snap.TakenAt))
		case errors.Is(err, snapshot.ErrNoSnapshot):
			logger.Info("no snapshot stored, starting fresh")
		default:
			logger.Fatal("load snapshot", zap.Error(err))
		}
	}

	feed := marketdata.NewFeed(market, func(tick marketdata.Tick) {
		eng.OnPriceTick(tick)
		bus.Publish(events.Event{Type: events.TypeQuote, Data: tick})
	}, []marketdata.SymbolProfile{
		{Symbol: "BTCUSDT", StartPrice: 50000, Volatility: 0.0008},
		{Symbol: "ETHUSDT", StartPrice: 3000, Volatility: 0.0012},
		{Symbol: "SOLUSDT", StartPrice: 150, Volatility: 0.002},
	}, cfg.TickInterval, logger)
	feed.Start(ctx)

	if snapStore != nil {
		go func() {
			ticker := time.NewTicker(cfg.SnapshotInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					saveCtx, saveCancel := context.WithTimeout(ctx, 5*time.Second)
					if err := snapStore.Save(saveCtx, eng.Snapshot()); err != nil {
						logger.Warn("snapshot save failed", zap.Error(err))
					}
					saveCancel()
				}
			}
		}()
	}

	authSvc := auth.NewService(cfg.JWTIssuer, []byte(cfg.JWTSecret), cfg.JWTTTL)
	router := httpserver.NewRouter(httpserver.RouterDeps{
		AuthHandler: auth.NewHandler(authSvc),
		AuthService: authSvc,
		APIHandler:  httpserver.NewHandler(eng, market),
		WSHandler:   httpserver.NewWSHandler(bus, authSvc, cfg.WebSocketOrigin),
	})
	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}

	logger.Info("server listening", zap.String("addr", cfg.HTTPAddr))
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-stop
		cancel()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("server", zap.Error(err))
	}
	if snapStore != nil {
		saveCtx, saveCancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := snapStore.Save(saveCtx, eng.Snapshot()); err != nil {
			logger.Warn("final snapshot save failed", zap.Error(err))
		}
		saveCancel()
	}
}
