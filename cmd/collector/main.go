package main

import (
	"context"
	"encoding/json"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"

	"github.com/ocx/backend/internal/config"
	"github.com/ocx/backend/internal/crashmover"
	"github.com/ocx/backend/internal/handlers"
	"github.com/ocx/backend/internal/health"
	"github.com/ocx/backend/internal/infra"
	"github.com/ocx/backend/internal/metrics"
	"github.com/ocx/backend/internal/retry"
	"github.com/ocx/backend/internal/sink"
	"github.com/ocx/backend/internal/sink/fs"
	"github.com/ocx/backend/internal/sink/gcs"
	"github.com/ocx/backend/internal/sink/localpublish"
	"github.com/ocx/backend/internal/sink/pubsub"
	"github.com/ocx/backend/internal/sink/redisdedup"
	"github.com/ocx/backend/internal/throttle"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	cfg := config.Get()
	port := cfg.GetPort()
	ctx := context.Background()

	m := metrics.New()
	healthReg := health.NewRegistry()

	store := buildStore(ctx, cfg, healthReg)
	publish := buildPublish(ctx, cfg, healthReg)

	if err := healthReg.RunVerify(ctx); err != nil {
		log.Fatalf("startup verification failed: %v", err)
	}

	retryCfg := retryConfigFrom(cfg)
	mover := crashmover.New(store, publish, m, retryCfg, cfg.Mover.QueueDepth)
	moverCtx, moverCancel := context.WithCancel(context.Background())
	mover.Start(moverCtx, cfg.Mover.Workers)

	th := throttle.New(throttle.DefaultRules(), cfg.Throttler.Products)

	router := mux.NewRouter()
	router.HandleFunc("/submit", handlers.Submit(th, mover, m)).Methods("POST")
	router.HandleFunc("/__heartbeat__", handlers.Heartbeat(healthReg)).Methods("GET")
	router.HandleFunc("/__lbheartbeat__", handlers.LBHeartbeat()).Methods("GET")
	router.HandleFunc("/__version__", handlers.Version(loadVersionBlob())).Methods("GET")
	router.HandleFunc("/__broken__", handlers.Broken()).Methods("GET")
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	router.Use(handlers.MakeCORSMiddleware(cfg))
	router.Use(handlers.LoggingMiddleware)
	router.Use(handlers.RecoveryMiddleware)

	go runHeartbeatSweep(moverCtx, healthReg)

	server := &http.Server{
		Addr:         ":" + port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeoutSec) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeoutSec) * time.Second,
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("received shutdown signal, draining")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownTimeout)*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}

		moverCancel()
		graceCtx, graceCancel := context.WithTimeout(context.Background(), time.Duration(cfg.Mover.ShutdownGraceSec)*time.Second)
		defer graceCancel()
		mover.Shutdown(graceCtx)
	}()

	slog.Info("collector starting", "port", port, "crash_store", cfg.CrashStore.Class, "publish", cfg.Publish.Class)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("server failed to start: %v", err)
	}
	slog.Info("server stopped")
}

// buildStore wires the sink.Store adapter named by cfg.CrashStore.Class,
// falling back to the filesystem store — and logging why — if GCS
// construction fails, mirroring the teacher's "fall back to in-memory on
// dependency failure" wiring style.
func buildStore(ctx context.Context, cfg *config.Config, reg *health.Registry) sink.Store {
	var store sink.Store
	if cfg.CrashStore.Class == "gcs" && cfg.CrashStore.BucketName != "" {
		gcsStore, err := gcs.New(ctx, cfg.CrashStore.BucketName)
		if err != nil {
			slog.Warn("gcs store init failed, falling back to filesystem store", "error", err)
		} else {
			store = gcsStore
		}
	}
	if store == nil {
		fsStore, err := fs.New(cfg.CrashStore.FSDir)
		if err != nil {
			log.Fatalf("fs store init failed: %v", err)
		}
		store = fsStore
	}

	if wv, ok := store.(sink.WriteVerifier); ok {
		reg.RegisterVerify(wv.VerifyWrite)
	}
	if hc, ok := store.(sink.HealthChecker); ok {
		reg.RegisterCheck(hc.CheckHealth)
	}
	return store
}

// buildPublish wires the sink.Publish adapter named by cfg.Publish.Class,
// wrapping it in the Redis dedup decorator when cfg.Redis.Enabled.
func buildPublish(ctx context.Context, cfg *config.Config, reg *health.Registry) sink.Publish {
	var publish sink.Publish
	if cfg.Publish.Class == "pubsub" && cfg.Publish.ProjectID != "" {
		ps, err := pubsub.New(ctx, cfg.Publish.ProjectID, cfg.Publish.TopicName)
		if err != nil {
			slog.Warn("pubsub publish init failed, falling back to local publish", "error", err)
		} else {
			publish = ps
		}
	}
	if publish == nil {
		publish = localpublish.New()
	}

	if cfg.Redis.Enabled {
		redisAdapter, err := infra.NewGoRedisAdapter(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			slog.Warn("redis dedup disabled, connection failed", "addr", cfg.Redis.Addr, "error", err)
		} else {
			publish = redisdedup.New(publish, redisAdapter, time.Duration(cfg.Redis.TTLSec)*time.Second)
		}
	}

	if tv, ok := publish.(sink.TopicVerifier); ok {
		reg.RegisterVerify(tv.VerifyTopic)
	}
	if hc, ok := publish.(sink.HealthChecker); ok {
		reg.RegisterCheck(hc.CheckHealth)
	}
	return publish
}

func retryConfigFrom(cfg *config.Config) retry.Config {
	return retry.Config{
		MaxAttempts: cfg.Mover.MaxAttempts,
		Sleep:       time.Duration(cfg.Mover.RetrySleepSeconds) * time.Second,
	}
}

// runHeartbeatSweep runs the registry's checks every 10s until ctx is done.
func runHeartbeatSweep(ctx context.Context, reg *health.Registry) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			state := reg.RunChecks(ctx)
			if !state.OK() {
				slog.Warn("heartbeat sweep found errors", "errors", state.Errors)
			}
		case <-ctx.Done():
			return
		}
	}
}

// loadVersionBlob reads version.json from the working directory, falling
// back to an empty JSON object if it cannot be read.
func loadVersionBlob() json.RawMessage {
	data, err := os.ReadFile("version.json")
	if err != nil {
		return json.RawMessage("{}")
	}
	return json.RawMessage(data)
}
