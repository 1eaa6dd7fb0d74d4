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

	"github.com/DoyleJ11/codelobby/internal/config"
	"github.com/DoyleJ11/codelobby/internal/finalize"
	"github.com/DoyleJ11/codelobby/internal/httpapi"
	"github.com/DoyleJ11/codelobby/internal/hub"
	"github.com/DoyleJ11/codelobby/internal/janitor"
	"github.com/DoyleJ11/codelobby/internal/lobby"
	"github.com/DoyleJ11/codelobby/internal/logging"
	"github.com/DoyleJ11/codelobby/internal/store"
	"github.com/DoyleJ11/codelobby/internal/ws"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(cfg.DSN(), logger)
	if err != nil {
		return err
	}
	defer st.Close()

	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return err
		}
		logger.Info("connected to redis", zap.String("addr", cfg.RedisAddr))
	}

	lobbyOpts := lobby.Options{
		Countdown:   cfg.Countdown,
		ChatTimeout: cfg.ChatTimeout,
		Chat:        st,
	}
	var shared *finalize.RedisRosters
	if rdb != nil {
		shared = finalize.NewRedisRosters(rdb)
		lobbyOpts.Players = shared
	}
	h := hub.NewHub(ctx, hub.Options{Lobby: lobbyOpts, Logger: logger})

	var (
		ledger  finalize.Ledger
		pruner  janitor.Pruner
		rosters finalize.Rosters = h
	)
	if rdb != nil {
		// any process can finalize: the claim and the roster both live in redis
		ledger = finalize.NewRedisLedger(rdb, cfg.FinalizeLockTTL)
		rosters = finalize.Mirrored{Shared: shared, Local: h}
	} else {
		mem := finalize.NewMemoryLedger()
		ledger, pruner = mem, mem
	}
	guard := finalize.NewGuard(ledger, st, rosters, logger)

	jan := janitor.New(h, pruner, janitor.Options{LobbyIdleTTL: cfg.LobbyIdleTTL}, logger)
	if err := jan.Start(ctx); err != nil {
		return err
	}
	defer jan.Stop()

	api := httpapi.NewAPI(st, h, rosters, guard, logger)
	wsHandler := ws.Handler(h, st, ws.Options{AllowedOrigins: cfg.AllowedOrigins, Logger: logger})
	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           httpapi.SetupRoutes(api, wsHandler, httpapi.RouterOptions{AllowedOrigins: cfg.AllowedOrigins, Logger: logger}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		if herr := h.Shutdown(shutdownCtx); herr != nil && err == nil {
			err = herr
		}
		return err
	})
	return g.Wait()
}
