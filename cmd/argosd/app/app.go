package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/Graveside2022/ArgosFinal-sub003/internal/gps"
	"github.com/Graveside2022/ArgosFinal-sub003/internal/procctl"
	"github.com/Graveside2022/ArgosFinal-sub003/internal/server"
	"github.com/Graveside2022/ArgosFinal-sub003/internal/sweep"
	"github.com/Graveside2022/ArgosFinal-sub003/internal/sysinfo"
	"github.com/Graveside2022/ArgosFinal-sub003/internal/waterfall"
	"github.com/Graveside2022/ArgosFinal-sub003/internal/wifi"
)

// Run wires the platform together and serves until the context ends
func Run(ctx context.Context, config *Config, logger *slog.Logger) error {
	bus := sweep.NewBus()
	defer bus.Close()

	manager := sweep.NewManager(
		config.ManagerConfig(),
		procctl.NewController(),
		sysinfo.New(),
		bus,
		sweep.WithManagerLogger(logger),
	)

	options := []server.Option{server.WithLogger(logger)}

	metrics := server.NewMetrics()
	_, metricEvents := bus.Subscribe()
	go metrics.Observe(ctx, metricEvents)
	options = append(options, server.WithMetrics(metrics))

	if config.Waterfall.Enabled {
		fall, err := waterfall.New(config.WaterfallSettings())
		if err != nil {
			return fmt.Errorf("creating waterfall renderer: %w", err)
		}
		_, fallEvents := bus.Subscribe()
		go fall.Watch(ctx, fallEvents)
		options = append(options, server.WithWaterfall(fall))
	}

	if config.GPS.Enabled {
		client := gps.NewClient(gps.Config{
			Addr:           config.GPS.Addr,
			DialTimeout:    config.GPS.DialTimeout.Std(),
			ReconnectDelay: config.GPS.ReconnectDelay.Std(),
		}, gps.WithLogger(logger))
		go client.Run(ctx)
		options = append(options, server.WithGPS(client))
	}

	if config.WiFi.Enabled {
		client := wifi.NewClient(wifi.Config{
			BaseURL: config.WiFi.BaseURL,
			Timeout: config.WiFi.Timeout.Std(),
		}, wifi.WithLogger(logger))
		options = append(options, server.WithWiFi(client))
	}

	httpServer := &http.Server{
		Addr:    config.Server.Addr,
		Handler: server.New(manager, bus, options...).Handler(),
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("listening", slog.String("addr", config.Server.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case err := <-serveErr:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.Server.ShutdownTimeout.Std())
	defer cancel()

	if err := manager.StopSweep(shutdownCtx); err != nil {
		logger.Warn("stopping sweep on shutdown", slog.String("error", err.Error()))
	}

	return httpServer.Shutdown(shutdownCtx)
}
