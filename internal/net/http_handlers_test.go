package net

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"orbitlab/server"
	"orbitlab/server/catalog"
	"orbitlab/server/internal/net/proto"
	"orbitlab/server/internal/observability"
	"orbitlab/server/internal/render"
)

func TestHTTPHealthReportsOK(t *testing.T) {
	hub := server.NewHubWithConfig(server.DefaultHubConfig(), nil)
	handler := NewHTTPHandler(hub, HTTPHandlerConfig{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200 OK, got %d", resp.Code)
	}
	if body := resp.Body.String(); body != "ok" {
		t.Fatalf("expected body %q, got %q", "ok", body)
	}
}

func TestHTTPJoinIssuesViewerIdentity(t *testing.T) {
	hub := server.NewHubWithConfig(server.DefaultHubConfig(), nil)
	handler := NewHTTPHandler(hub, HTTPHandlerConfig{})

	req := httptest.NewRequest(http.MethodPost, "/join", nil)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200 OK, got %d", resp.Code)
	}
	if contentType := resp.Header().Get("Content-Type"); contentType != "application/json" {
		t.Fatalf("expected Content-Type application/json, got %q", contentType)
	}

	var payload map[string]any
	if err := json.Unmarshal(resp.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to decode join payload: %v", err)
	}

	if ver, ok := payload["ver"].(float64); !ok || int(ver) != proto.Version {
		t.Fatalf("expected ver %d, payload=%s", proto.Version, resp.Body.String())
	}
	id, ok := payload["id"].(string)
	if !ok || id == "" {
		t.Fatalf("expected non-empty viewer id, payload=%s", resp.Body.String())
	}
	families, ok := payload["families"].([]any)
	if !ok || len(families) == 0 {
		t.Fatalf("expected generator families in join payload, payload=%s", resp.Body.String())
	}
	limits, ok := payload["limits"].(map[string]any)
	if !ok {
		t.Fatalf("expected limits object in join payload, payload=%s", resp.Body.String())
	}
	if _, ok := limits["maxGridWidth"]; !ok {
		t.Fatalf("expected limits to include maxGridWidth, payload=%s", resp.Body.String())
	}
	if heartbeat, ok := payload["heartbeatMillis"].(float64); !ok || heartbeat <= 0 {
		t.Fatalf("expected positive heartbeatMillis, payload=%s", resp.Body.String())
	}
}

func TestHTTPJoinRejectsGet(t *testing.T) {
	hub := server.NewHubWithConfig(server.DefaultHubConfig(), nil)
	handler := NewHTTPHandler(hub, HTTPHandlerConfig{})

	req := httptest.NewRequest(http.MethodGet, "/join", nil)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected status 405, got %d", resp.Code)
	}
}

func TestHTTPDiagnosticsReportsHubState(t *testing.T) {
	hub := server.NewHubWithConfig(server.DefaultHubConfig(), nil)
	join := hub.Join()
	hub.RecordTelemetryBroadcast(64, 2)

	handler := NewHTTPHandler(hub, HTTPHandlerConfig{})

	req := httptest.NewRequest(http.MethodGet, "/diagnostics", nil)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200 OK, got %d", resp.Code)
	}
	if contentType := resp.Header().Get("Content-Type"); contentType != "application/json" {
		t.Fatalf("expected Content-Type application/json, got %q", contentType)
	}

	var payload map[string]any
	if err := json.Unmarshal(resp.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to decode diagnostics payload: %v", err)
	}

	if status, ok := payload["status"].(string); !ok || status != "ok" {
		t.Fatalf("expected status ok, payload=%s", resp.Body.String())
	}
	if heartbeat, ok := payload["heartbeatMillis"].(float64); !ok || heartbeat <= 0 {
		t.Fatalf("expected positive heartbeatMillis, payload=%s", resp.Body.String())
	}
	if _, ok := payload["uptimeMillis"].(float64); !ok {
		t.Fatalf("expected uptimeMillis in diagnostics, payload=%s", resp.Body.String())
	}

	telemetryPayload, ok := payload["telemetry"].(map[string]any)
	if !ok {
		t.Fatalf("expected telemetry object in diagnostics, payload=%s", resp.Body.String())
	}
	if bytesSent, ok := telemetryPayload["bytesSent"].(float64); !ok || bytesSent != 64 {
		t.Fatalf("expected bytesSent 64, payload=%s", resp.Body.String())
	}
	if framesSent, ok := telemetryPayload["framesSent"].(float64); !ok || framesSent != 2 {
		t.Fatalf("expected framesSent 2, payload=%s", resp.Body.String())
	}
	if _, ok := telemetryPayload["journalFrames"]; !ok {
		t.Fatalf("expected journalFrames counter in telemetry, payload=%s", resp.Body.String())
	}
	if _, ok := telemetryPayload["replayRequests"]; !ok {
		t.Fatalf("expected replayRequests counter in telemetry, payload=%s", resp.Body.String())
	}

	viewers, ok := payload["viewers"].([]any)
	if !ok || len(viewers) != 1 {
		t.Fatalf("expected a single viewer entry, payload=%s", resp.Body.String())
	}
	viewer, ok := viewers[0].(map[string]any)
	if !ok {
		t.Fatalf("expected viewer object, payload=%s", resp.Body.String())
	}
	if id, ok := viewer["id"].(string); !ok || id != join.ID {
		t.Fatalf("expected viewer id %q, payload=%s", join.ID, resp.Body.String())
	}
	if connected, ok := viewer["connected"].(bool); !ok || connected {
		t.Fatalf("expected viewer to report disconnected before websocket attach, payload=%s", resp.Body.String())
	}
}

func TestHTTPPresetsEmptyWithoutCatalog(t *testing.T) {
	hub := server.NewHubWithConfig(server.DefaultHubConfig(), nil)
	handler := NewHTTPHandler(hub, HTTPHandlerConfig{})

	req := httptest.NewRequest(http.MethodGet, "/presets", nil)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200 OK, got %d", resp.Code)
	}

	var payload map[string]any
	if err := json.Unmarshal(resp.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to decode presets payload: %v", err)
	}

	presets, ok := payload["presets"].([]any)
	if !ok {
		t.Fatalf("expected presets array even without a catalog, payload=%s", resp.Body.String())
	}
	if len(presets) != 0 {
		t.Fatalf("expected empty preset list, payload=%s", resp.Body.String())
	}
	if _, ok := payload["catalogHash"]; ok {
		t.Fatalf("expected catalogHash to be omitted without a catalog, payload=%s", resp.Body.String())
	}
}

func TestHTTPPresetsListsLoadedCatalog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "definitions.json")
	writePresetFile(t, path, `[
		{"id": "midnight-julia", "family": "julia", "title": "Midnight Julia", "spec": {"cRe": -0.8, "cIm": 0.156}},
		{"id": "classic-set", "family": "mandelbrot", "spec": {"maxIter": 300}}
	]`)

	resolver, err := catalog.Load(render.Limits{}, path)
	if err != nil {
		t.Fatalf("failed to load catalog fixture: %v", err)
	}

	cfg := server.DefaultHubConfig()
	cfg.Catalog = resolver
	hub := server.NewHubWithConfig(cfg, nil)
	handler := NewHTTPHandler(hub, HTTPHandlerConfig{})

	req := httptest.NewRequest(http.MethodGet, "/presets", nil)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200 OK, got %d", resp.Code)
	}

	var payload struct {
		Presets     []catalog.Summary `json:"presets"`
		CatalogHash string            `json:"catalogHash"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to decode presets payload: %v", err)
	}

	if len(payload.Presets) != 2 {
		t.Fatalf("expected 2 presets, payload=%s", resp.Body.String())
	}
	if payload.Presets[0].ID != "classic-set" || payload.Presets[1].ID != "midnight-julia" {
		t.Fatalf("expected presets sorted by id, payload=%s", resp.Body.String())
	}
	if payload.Presets[1].Title != "Midnight Julia" {
		t.Fatalf("expected preset title to survive, payload=%s", resp.Body.String())
	}
	if payload.CatalogHash == "" {
		t.Fatalf("expected catalogHash for loaded catalog, payload=%s", resp.Body.String())
	}
}

func TestHTTPPresetsRejectsPost(t *testing.T) {
	hub := server.NewHubWithConfig(server.DefaultHubConfig(), nil)
	handler := NewHTTPHandler(hub, HTTPHandlerConfig{})

	req := httptest.NewRequest(http.MethodPost, "/presets", nil)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected status 405, got %d", resp.Code)
	}
}

func TestHTTPPresetsReloadPicksUpChanges(t *testing.T) {
	path := filepath.Join(t.TempDir(), "definitions.json")
	writePresetFile(t, path, `[
		{"id": "classic-set", "family": "mandelbrot", "spec": {"maxIter": 300}}
	]`)

	resolver, err := catalog.Load(render.Limits{}, path)
	if err != nil {
		t.Fatalf("failed to load catalog fixture: %v", err)
	}

	cfg := server.DefaultHubConfig()
	cfg.Catalog = resolver
	hub := server.NewHubWithConfig(cfg, nil)
	handler := NewHTTPHandler(hub, HTTPHandlerConfig{})

	if summaries := hub.PresetSummaries(); len(summaries) != 1 {
		t.Fatalf("expected 1 preset before reload, got %d", len(summaries))
	}

	writePresetFile(t, path, `[
		{"id": "classic-set", "family": "mandelbrot", "spec": {"maxIter": 300}},
		{"id": "chaos-tetra", "family": "target-game", "spec": {"count": 5000}}
	]`)

	req := httptest.NewRequest(http.MethodPost, "/presets/reload", nil)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200 OK, got %d: %s", resp.Code, resp.Body.String())
	}

	var payload struct {
		Status      string            `json:"status"`
		Presets     []catalog.Summary `json:"presets"`
		CatalogHash string            `json:"catalogHash"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to decode reload payload: %v", err)
	}

	if payload.Status != "ok" {
		t.Fatalf("expected status ok, payload=%s", resp.Body.String())
	}
	if len(payload.Presets) != 2 {
		t.Fatalf("expected 2 presets after reload, payload=%s", resp.Body.String())
	}
	if payload.CatalogHash == "" {
		t.Fatalf("expected catalogHash after reload, payload=%s", resp.Body.String())
	}
}

func TestHTTPPresetsReloadRejectsGet(t *testing.T) {
	hub := server.NewHubWithConfig(server.DefaultHubConfig(), nil)
	handler := NewHTTPHandler(hub, HTTPHandlerConfig{})

	req := httptest.NewRequest(http.MethodGet, "/presets/reload", nil)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected status 405, got %d", resp.Code)
	}
}

func TestHTTPWebsocketRequiresViewerID(t *testing.T) {
	hub := server.NewHubWithConfig(server.DefaultHubConfig(), nil)
	handler := NewHTTPHandler(hub, HTTPHandlerConfig{})

	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400 for missing id, got %d", resp.Code)
	}
}

func TestHTTPPprofTraceHiddenByDefault(t *testing.T) {
	hub := server.NewHubWithConfig(server.DefaultHubConfig(), nil)
	handler := NewHTTPHandler(hub, HTTPHandlerConfig{})

	req := httptest.NewRequest(http.MethodGet, "/debug/pprof/trace", nil)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected status 404 when tracing is disabled, got %d", resp.Code)
	}
}

func TestHTTPPprofTraceMountedWhenEnabled(t *testing.T) {
	hub := server.NewHubWithConfig(server.DefaultHubConfig(), nil)
	handler := NewHTTPHandler(hub, HTTPHandlerConfig{
		Observability: observability.Config{EnablePprofTrace: true},
	})

	req := httptest.NewRequest(http.MethodGet, "/debug/pprof/trace?seconds=0.1", nil)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200 from trace endpoint, got %d: %s", resp.Code, resp.Body.String())
	}
	if resp.Body.Len() == 0 {
		t.Fatalf("expected trace endpoint to stream trace data")
	}
}

func writePresetFile(t *testing.T, path, payload string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(payload), 0o644); err != nil {
		t.Fatalf("failed to write preset fixture: %v", err)
	}
}
