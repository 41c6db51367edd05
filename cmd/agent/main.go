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

	"go.uber.org/zap"

	"github.com/soaringjerry/Archetype/internal/api"
	"github.com/soaringjerry/Archetype/internal/cache"
	"github.com/soaringjerry/Archetype/internal/config"
	"github.com/soaringjerry/Archetype/internal/db"
	"github.com/soaringjerry/Archetype/internal/middleware"
	"github.com/soaringjerry/Archetype/internal/remote"
	"github.com/soaringjerry/Archetype/internal/scoring"
	"github.com/soaringjerry/Archetype/internal/services"
	"github.com/soaringjerry/Archetype/internal/syncq"
	"github.com/soaringjerry/Archetype/internal/utils"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()

	cfg := config.Load()

	backend, err := db.OpenSQLite(cfg.DataDir)
	if err != nil {
		logger.Fatal("open local store", zap.Error(err))
	}
	defer backend.Close()

	store := cache.New(backend, logger)
	tokens := remote.NewTokenProvider(nil)
	client := remote.New(cfg.BaseURL, cfg.RequestTimeout, tokens, logger)

	monitor := syncq.NewProbeMonitor(client, logger)
	sched := syncq.NewCronScheduler()
	defer sched.Stop()

	stopProbe, err := monitor.Start(sched, cfg.ProbeInterval)
	if err != nil {
		logger.Fatal("start connectivity probe", zap.Error(err))
	}
	defer stopProbe()

	engine := syncq.NewEngine(store, services.NewRemoteDeliverer(client), monitor, logger,
		syncq.WithMaxAttempts(cfg.MaxAttempts),
		syncq.WithBackoffBase(cfg.BackoffBase))
	stopFlush, err := engine.Start(sched, cfg.FlushInterval)
	if err != nil {
		logger.Fatal("start sync engine", zap.Error(err))
	}
	defer stopFlush()

	svc := services.NewDataService(store, client, engine, monitor, scoring.NewEngine(cfg.QuestionCount), logger,
		services.WithDebounceWindow(cfg.DebounceWindow),
		services.WithBatchEvery(cfg.BatchEvery))

	mux := http.NewServeMux()
	api.NewRouter(svc, logger).Register(mux)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok":true,"name":"Archetype Agent"}`))
	})

	addr := utils.SafeEnv("ARCHETYPE_ADDR", "127.0.0.1:7341")
	srv := &http.Server{Addr: addr, Handler: middleware.NoStore(middleware.CORS(mux))}
	go func() {
		logger.Info("archetype agent listening",
			zap.String("addr", addr),
			zap.String("base_url", cfg.BaseURL),
			zap.String("data_dir", cfg.DataDir))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("serve", zap.Error(err))
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	// Shutdown: broadcast the terminate signal so dirty answers beacon out,
	// then run one last queue flush while the connection may still be up.
	logger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
	monitor.Terminate()
	engine.Flush(ctx)
}
