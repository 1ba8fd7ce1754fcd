package app

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	server "orbitlab/server"
	"orbitlab/server/catalog"
	servernet "orbitlab/server/internal/net"
	"orbitlab/server/internal/observability"
	"orbitlab/server/internal/telemetry"
	"orbitlab/server/logging"
	loggingSinks "orbitlab/server/logging/sinks"
)

type Config struct {
	Logger        telemetry.Logger
	Observability observability.Config
}

func Run(ctx context.Context, cfg Config) error {
	telemetryLogger := cfg.Logger
	if telemetryLogger == nil {
		telemetryLogger = telemetry.WrapLogger(log.Default())
	}

	fallbackLogger := log.Default()
	if provider, ok := telemetryLogger.(interface{ StandardLogger() *log.Logger }); ok {
		if candidate := provider.StandardLogger(); candidate != nil {
			fallbackLogger = candidate
		}
	}

	observabilityCfg := cfg.Observability
	if raw := os.Getenv("ENABLE_PPROF_TRACE"); raw != "" {
		if value, err := strconv.ParseBool(raw); err == nil {
			observabilityCfg.EnablePprofTrace = value
		} else {
			telemetryLogger.Printf("invalid ENABLE_PPROF_TRACE=%q: %v", raw, err)
		}
	}
	if raw := os.Getenv("LOG_JSON_PATH"); raw != "" {
		observabilityCfg.LogJSONPath = raw
	}

	logConfig := logging.DefaultConfig()
	sinks := map[string]logging.Sink{
		"console": loggingSinks.NewConsole(os.Stdout),
	}
	if observabilityCfg.LogJSONPath != "" {
		file, err := os.OpenFile(observabilityCfg.LogJSONPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("failed to open json log %s: %w", observabilityCfg.LogJSONPath, err)
		}
		defer file.Close()
		logConfig.EnabledSinks = append(logConfig.EnabledSinks, "json")
		logConfig.JSON.FilePath = observabilityCfg.LogJSONPath
		sinks["json"] = loggingSinks.NewJSON(file, logConfig.JSON.FlushInterval)
	}

	router, err := logging.NewRouter(logConfig, logging.SystemClock{}, fallbackLogger, sinks)
	if err != nil {
		return fmt.Errorf("failed to construct logging router: %w", err)
	}
	defer func() {
		if cerr := router.Close(ctx); cerr != nil {
			telemetryLogger.Printf("failed to close logging router: %v", cerr)
		}
	}()

	hubCfg := server.DefaultHubConfig()
	if raw := os.Getenv("RENDER_SEED"); raw != "" {
		hubCfg.Seed = raw
	}
	if raw := os.Getenv("RENDER_WORKERS"); raw != "" {
		if value, err := strconv.Atoi(raw); err == nil {
			hubCfg.Render.Workers = value
		} else {
			telemetryLogger.Printf("invalid RENDER_WORKERS=%q: %v", raw, err)
		}
	}
	hubCfg.Logger = telemetryLogger

	if resolver, err := catalog.Load(hubCfg.Render.Limits, catalog.DefaultPaths()...); err != nil {
		telemetryLogger.Printf("preset catalog unavailable: %v", err)
	} else {
		hubCfg.Catalog = resolver
	}

	hub := server.NewHubWithConfig(hubCfg, router)
	stop := make(chan struct{})
	go hub.Run(stop)
	defer close(stop)

	clientDir := filepath.Clean(filepath.Join("..", "client"))
	handler := servernet.NewHTTPHandler(hub, servernet.HTTPHandlerConfig{
		ClientDir:     clientDir,
		Logger:        telemetryLogger,
		Observability: observabilityCfg,
	})

	srv := &http.Server{Addr: ":8080", Handler: handler}
	telemetryLogger.Printf("server listening on %s", srv.Addr)

	if err := srv.ListenAndServe(); err != nil {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}
