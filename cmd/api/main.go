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

	"voicebridge/internal/call"
	"voicebridge/internal/config"
	"voicebridge/internal/notify"
	"voicebridge/internal/orchestrator"
	"voicebridge/internal/telephony"
	"voicebridge/pkg/logger"
	"voicebridge/pkg/utils"

	"github.com/gin-gonic/gin"
)

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env)
	slog.SetDefault(log)

	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	rdb, err := utils.OpenRedis(rootCtx, utils.RedisConfig{Addr: cfg.RedisAddr()})
	if err != nil {
		log.Error("redis init failed", "err", err)
		os.Exit(1)
	}
	defer rdb.Close()

	// Providers are registered at startup; selection ties break by
	// registration order.
	registry := telephony.NewRegistry()
	registry.Register(telephony.NewSimulatedProvider("simulated"))
	registry.Register(telephony.NewSIPProvider())

	orch := orchestrator.New(orchestrator.Config{
		MaxConcurrentCalls:        cfg.Calls.MaxConcurrentCalls,
		CallTimeout:               cfg.Calls.CallTimeout,
		MaxRetries:                cfg.Calls.MaxRetries,
		RetryDelay:                cfg.Calls.RetryDelay,
		DisableIntelligentRouting: !cfg.Calls.IntelligentRouting,
	}, registry, log)

	// Session updates and raw provider pushes fan out through the same
	// redis channel; the realtime gateway subscribes there. Delivery is
	// best-effort and never blocks call flow.
	var publisher notify.StatusSink = notify.NewRedisPublisher(rdb, cfg.Redis.StatusChannel)
	push := func(s call.Session) {
		ctx, cancel := context.WithTimeout(rootCtx, 2*time.Second)
		defer cancel()
		if err := publisher.Publish(ctx, s); err != nil {
			log.Warn("status publish failed", "call_id", s.CallID, "err", err)
		}
	}
	orch.SetStatusSink(push)
	for _, name := range registry.Names() {
		if p, ok := registry.Get(name); ok {
			p.SetStatusCallback(push)
		}
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           newRouter(log, orch),
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
}
