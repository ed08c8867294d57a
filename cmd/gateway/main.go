package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"AuroraGate/internal/gateway"
	"AuroraGate/internal/gateway/auth"
	"AuroraGate/internal/gateway/connmgr"
	"AuroraGate/internal/gateway/handler"
	"AuroraGate/internal/gateway/offline"
	"AuroraGate/internal/gateway/presence"
	"AuroraGate/internal/gateway/protocol"
	"AuroraGate/internal/gateway/ratelimit"
	"AuroraGate/internal/store"
	"AuroraGate/pkg/bootstrap"
	"AuroraGate/pkg/config"
	"AuroraGate/pkg/db/mysql"
	rdb "AuroraGate/pkg/db/redis"

	"go.uber.org/zap"
)

const (
	defaultHeartbeatTimeout = 30 * time.Second
	defaultSweepInterval    = 30 * time.Second
)

func main() {
	cfgPath := flag.String("config", "config.gateway.yaml", "path to gateway config yaml")
	flag.Parse()

	cleanup, err := bootstrap.InitAll(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init bootstrap: %v\n", err)
		os.Exit(1)
	}
	defer cleanup()

	gwCfg := config.Conf.GatewayConfig
	if gwCfg == nil {
		gwCfg = &config.GatewayConfig{}
	}
	heartbeatTimeout := defaultHeartbeatTimeout
	if gwCfg.HeartbeatTimeoutSeconds > 0 {
		heartbeatTimeout = time.Duration(gwCfg.HeartbeatTimeoutSeconds) * time.Second
	}
	sweepInterval := defaultSweepInterval
	if gwCfg.SweepIntervalSeconds > 0 {
		sweepInterval = time.Duration(gwCfg.SweepIntervalSeconds) * time.Second
	}
	protocol.SetMaxContentLength(gwCfg.MaxMessageLength)

	// stores: MySQL behind a Redis read-through cache
	base, err := store.NewMySQLStore(mysql.DB, config.Conf.MachineID)
	if err != nil {
		zap.L().Fatal("init store failed", zap.Error(err))
	}
	cached := store.NewCachedStore(base, rdb.Cli)

	// gateway services
	conns := connmgr.New()
	authLayer := auth.NewLayer(cached)
	pres := presence.New(conns, cached, heartbeatTimeout)
	limitCfg := ratelimit.DefaultConfig
	if config.Conf.RateLimitConfig != nil {
		limitCfg = ratelimit.Config{
			MaxMessages:   config.Conf.RateLimitConfig.MaxMessages,
			WindowSeconds: config.Conf.RateLimitConfig.WindowSeconds,
		}
	}
	limiter := ratelimit.New(limitCfg)
	offQueue := offline.NewQueue(rdb.Rdb)
	msgHandler := handler.NewMessageHandler(cached, cached, conns, offQueue)
	callHandler := handler.NewCallHandler(conns)
	typing := presence.NewTypingTracker(time.Duration(gwCfg.TypingStopSeconds) * time.Second)

	svc := gateway.NewService(authLayer, conns, pres, limiter, msgHandler, callHandler, typing, cached, offQueue)

	// heartbeat sweeper
	sweepStop := make(chan struct{})
	go pres.Run(sweepInterval, sweepStop)

	// http server on the preferred port, falling back through candidates
	ln, port, err := pickListener(config.Conf.Port, gwCfg.FallbackPorts)
	if err != nil {
		zap.L().Fatal("no listen port available", zap.Error(err))
	}

	r := InitRouter(svc, conns, gwCfg.SendChannelSize)
	srv := &http.Server{Handler: r}

	go func() {
		zap.L().Info("starting gateway server", zap.Int("port", port))
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			zap.L().Fatal("http server error", zap.Error(err))
		}
	}()

	// wait for termination
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zap.L().Info("shutting down gateway server...")

	close(sweepStop)
	svc.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		zap.L().Error("server shutdown error", zap.Error(err))
	}

	zap.L().Info("gateway server exited")
}
