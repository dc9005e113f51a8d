// Command yreplserver runs the collaboration server: a gin HTTP engine
// exposing the WebSocket sync endpoint plus a small operational surface
// (spec.md §2, §10, §11), backed by a session.Hub and, optionally, Redis
// persistence.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/Polqt/yrepl/config"
	"github.com/Polqt/yrepl/persistence"
	"github.com/Polqt/yrepl/replica"
	"github.com/Polqt/yrepl/session"
	"github.com/Polqt/yrepl/transport"
)

func main() {
	logConfig := zap.NewDevelopmentConfig()
	logConfig.EncoderConfig.TimeKey = ""
	logConfig.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	logConfig.DisableStacktrace = true
	log := zap.Must(logConfig.Build())
	defer log.Sync()
	log = log.Named("main")

	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		log.Fatal("config load failed", zap.Error(err))
	}

	var persist *persistence.RedisStore
	if cfg.RedisAddr != "" {
		persist = persistence.NewRedisStore(cfg.RedisAddr, cfg.RedisDB, log)
		defer persist.Close()
	}

	hub := session.NewHub(log, persist)
	stop := make(chan struct{})
	go hub.Run(stop, cfg.GCInterval, func(r *replica.Replica) int { return r.GCSweep() })
	defer close(stop)

	srv := transport.NewServer(hub, cfg, log)
	httpServer := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: srv.Handler(),
	}

	ctx, cancelSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancelSignals()

	go func() {
		log.Info("yrepl server listening", zap.String("addr", cfg.ListenAddr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	httpServer.Shutdown(shutdownCtx)
}
