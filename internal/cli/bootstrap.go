package cli

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/epistimio/orion-go/internal/config"
	"github.com/epistimio/orion-go/internal/metricsserver"
	"github.com/epistimio/orion-go/internal/notify"
	"github.com/epistimio/orion-go/internal/storage"
	"github.com/epistimio/orion-go/pkg/logger"
)

// runtime bundles the pieces every long-running subcommand (hunt, worker)
// needs once configuration has been resolved.
type runtime struct {
	cfg     *config.Config
	logger  *slog.Logger
	backend storage.Backend
	metrics *metricsserver.Server
	hub     *notify.Hub
}

// bootstrap loads config from configPath, builds a logger, opens the
// configured storage backend, and (if enabled) starts the metrics/healthz
// server and the websocket notification hub.
func bootstrap(ctx context.Context, configPath string) (*runtime, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	log := logger.New(cfg.Log)

	backend, err := storage.New(ctx, cfg.StorageOptions(), log)
	if err != nil {
		return nil, err
	}

	rt := &runtime{cfg: cfg, logger: log, backend: backend}

	if cfg.Metrics.Enabled {
		rt.hub = notify.NewHub(log)
		go rt.hub.Run(ctx)

		rt.metrics = metricsserver.New(metricsserver.Config{
			Addr:             cfg.Metrics.Addr,
			Path:             cfg.Metrics.Path,
			WebSocketHandler: rt.hub.HandleWebSocket,
		})
		errCh := rt.metrics.Start()
		go func() {
			if err := <-errCh; err != nil {
				log.Error("metrics server stopped", "error", err)
			}
		}()
	}

	return rt, nil
}

// interruptContext returns a context canceled on SIGINT/SIGTERM, mirroring
// the teacher's signal.Notify(quit, os.Interrupt, syscall.SIGTERM) pattern
// translated into a cancellable context for the worker loop.
func interruptContext() (context.Context, func()) {
	ctx, cancel := context.WithCancel(context.Background())
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-quit
		cancel()
	}()
	return ctx, cancel
}
