package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/focustimer/go/internal/gateway"
	"github.com/mcdev12/focustimer/go/internal/host"
	"github.com/mcdev12/focustimer/go/internal/host/natsbridge"
	"github.com/mcdev12/focustimer/go/internal/plugin"
	"github.com/mcdev12/focustimer/go/internal/settings"
	"github.com/mcdev12/focustimer/go/internal/widget"
)

func main() {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	config, err := loadConfig(getEnv("FOCUS_TIMER_CONFIG", "focustimer.yaml"))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	setupLogging(config)

	h, closeHost, err := setupHost(config)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to set up host")
	}
	defer closeHost()

	log.Info().
		Str("host_mode", config.Host.Mode).
		Str("port", config.Gateway.Port).
		Dur("sample_interval", config.Timer.SampleInterval).
		Msg("starting focus timer")

	gatewayService := gateway.NewService(gateway.DefaultConfig())
	p := plugin.New(h, gatewayService.Display(), widget.WithSampleInterval(config.Timer.SampleInterval))
	gatewayService.Bind(p, p)
	if hc, ok := h.(gateway.HealthChecker); ok {
		gatewayService.SetHealthChecker(hc)
	}

	server := gateway.NewServer(fmt.Sprintf(":%s", config.Gateway.Port), gatewayService)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go gatewayService.Start(ctx)

	pluginDone := make(chan struct{})
	go func() {
		defer close(pluginDone)
		if err := p.Run(ctx); err != nil {
			log.Error().Err(err).Msg("plugin stopped")
		}
	}()

	go func() {
		log.Info().Str("addr", server.Addr).Msg("HTTP server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	sig := <-sigChan

	log.Info().Str("signal", sig.String()).Msg("received shutdown signal")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	cancel()

	select {
	case <-pluginDone:
	case <-shutdownCtx.Done():
		log.Warn().Msg("plugin did not stop in time")
	}

	log.Info().Msg("focus timer shutdown complete")
}

// setupHost connects to the configured host. The returned func releases it.
func setupHost(c *Config) (host.Host, func(), error) {
	switch c.Host.Mode {
	case HostModeNATS:
		bridgeConfig := natsbridge.DefaultConfig()
		bridgeConfig.URL = c.Host.NATSURL
		bridgeConfig.SubjectPrefix = c.Host.SubjectPrefix
		bridgeConfig.RequestTimeout = c.Host.RequestTimeout

		bridge, err := natsbridge.New(bridgeConfig)
		if err != nil {
			return nil, nil, fmt.Errorf("connect to host: %w", err)
		}
		return bridge, func() {
			if err := bridge.Close(); err != nil {
				log.Error().Err(err).Msg("failed to close host bridge")
			}
		}, nil
	default:
		store, err := settings.NewFileStore(c.Settings.File)
		if err != nil {
			return nil, nil, fmt.Errorf("open settings file: %w", err)
		}
		log.Info().Str("settings_file", c.Settings.File).Msg("running with in-process host")
		return host.NewMemory(store), func() {}, nil
	}
}
