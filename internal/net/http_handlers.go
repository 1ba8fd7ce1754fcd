package net

import (
	"encoding/json"
	"log"
	nethttp "net/http"
	"net/http/pprof"
	"time"

	"orbitlab/server"
	"orbitlab/server/catalog"
	"orbitlab/server/internal/net/ws"
	"orbitlab/server/internal/observability"
	"orbitlab/server/internal/telemetry"
)

type HTTPHandlerConfig struct {
	ClientDir     string
	Logger        telemetry.Logger
	Observability observability.Config
}

func NewHTTPHandler(hub *server.Hub, cfg HTTPHandlerConfig) nethttp.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = telemetry.WrapLogger(log.Default())
	}
	standardLogger := log.Default()
	if provider, ok := logger.(interface{ StandardLogger() *log.Logger }); ok {
		if candidate := provider.StandardLogger(); candidate != nil {
			standardLogger = candidate
		}
	}

	mux := nethttp.NewServeMux()

	mux.HandleFunc("/health", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("ok"))
	})

	mux.HandleFunc("/diagnostics", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		payload := struct {
			Status       string `json:"status"`
			ServerTime   int64  `json:"serverTime"`
			UptimeMillis int64  `json:"uptimeMillis"`
			Viewers      any    `json:"viewers"`
			Heartbeat    int64  `json:"heartbeatMillis"`
			Telemetry    any    `json:"telemetry"`
		}{
			Status:       "ok",
			ServerTime:   time.Now().UnixMilli(),
			UptimeMillis: hub.Uptime().Milliseconds(),
			Viewers:      hub.DiagnosticsSnapshot(),
			Heartbeat:    server.HeartbeatInterval().Milliseconds(),
			Telemetry:    hub.TelemetrySnapshot(),
		}

		data, err := json.Marshal(payload)
		if err != nil {
			httpError(w, "failed to encode", nethttp.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.Write(data)
	})

	mux.HandleFunc("/join", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if r.Method != nethttp.MethodPost {
			httpError(w, "method not allowed", nethttp.StatusMethodNotAllowed)
			return
		}

		join := hub.Join()
		data, err := json.Marshal(join)
		if err != nil {
			httpError(w, "failed to encode", nethttp.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(data)
	})

	mux.HandleFunc("/presets", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if r.Method != nethttp.MethodGet {
			httpError(w, "method not allowed", nethttp.StatusMethodNotAllowed)
			return
		}

		summaries := hub.PresetSummaries()
		if summaries == nil {
			summaries = []catalog.Summary{}
		}

		payload := struct {
			Presets     []catalog.Summary `json:"presets"`
			CatalogHash string            `json:"catalogHash,omitempty"`
		}{Presets: summaries, CatalogHash: hub.CatalogHash()}

		data, err := json.Marshal(payload)
		if err != nil {
			httpError(w, "failed to encode", nethttp.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.Write(data)
	})

	mux.HandleFunc("/presets/reload", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if r.Method != nethttp.MethodPost {
			httpError(w, "method not allowed", nethttp.StatusMethodNotAllowed)
			return
		}

		if err := hub.ReloadCatalog(); err != nil {
			logger.Printf("preset reload failed: %v", err)
			httpError(w, "reload failed", nethttp.StatusInternalServerError)
			return
		}

		summaries := hub.PresetSummaries()
		if summaries == nil {
			summaries = []catalog.Summary{}
		}

		payload := struct {
			Status      string            `json:"status"`
			Presets     []catalog.Summary `json:"presets"`
			CatalogHash string            `json:"catalogHash,omitempty"`
		}{Status: "ok", Presets: summaries, CatalogHash: hub.CatalogHash()}

		data, err := json.Marshal(payload)
		if err != nil {
			httpError(w, "failed to encode", nethttp.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.Write(data)
	})

	wsHandler := ws.NewHandler(hub, ws.HandlerConfig{Logger: standardLogger})
	mux.HandleFunc("/ws", wsHandler.Handle)

	if cfg.Observability.EnablePprofTrace {
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}

	if cfg.ClientDir != "" {
		fs := nethttp.FileServer(nethttp.Dir(cfg.ClientDir))
		mux.Handle("/", fs)
	}

	return mux
}

func httpError(w nethttp.ResponseWriter, msg string, code int) {
	nethttp.Error(w, msg, code)
}
