package catalog

import (
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"orbitlab/server/internal/render"
)

type memorySource struct {
	path string
	data []byte
	err  error
}

func (m memorySource) Load() ([]byte, error) {
	if m.err != nil {
		return nil, m.err
	}
	return append([]byte(nil), m.data...), nil
}

func (m memorySource) Path() string {
	return m.path
}

func TestResolverLoadArray(t *testing.T) {
	entry := map[string]any{
		"id":     "seahorse-valley",
		"family": "mandelbrot",
		"title":  "Seahorse Valley",
		"spec": map[string]any{
			"width":   640,
			"height":  480,
			"maxIter": 500,
			"region":  "seahorse-valley",
		},
		"palette": map[string]any{"scheme": "inferno"},
	}
	data := mustMarshal([]map[string]any{entry})

	resolver, err := NewResolver(render.Limits{}, memorySource{path: "inline.json", data: data})
	if err != nil {
		t.Fatalf("NewResolver failed: %v", err)
	}

	snapshot, ok := resolver.Resolve("seahorse-valley")
	if !ok {
		t.Fatalf("expected to resolve seahorse-valley entry")
	}
	if snapshot.Family != render.FamilyMandelbrot {
		t.Fatalf("expected family mandelbrot, got %q", snapshot.Family)
	}
	if snapshot.Spec.Family != render.FamilyMandelbrot {
		t.Fatalf("expected spec family to inherit entry family, got %q", snapshot.Spec.Family)
	}
	if snapshot.Spec.Width != 640 || snapshot.Spec.MaxIter != 500 {
		t.Fatalf("unexpected spec: %+v", snapshot.Spec)
	}
	if len(snapshot.Blocks) == 0 {
		t.Fatalf("expected metadata blocks")
	}
	if _, ok := snapshot.Blocks["palette"]; !ok {
		t.Fatalf("expected palette metadata block")
	}
	if _, ok := snapshot.Blocks["spec"]; ok {
		t.Fatalf("expected spec to be excluded from metadata blocks")
	}
}

func TestResolverObjectSyntax(t *testing.T) {
	payload := mustMarshal(map[string]any{
		"julia-dendrite": map[string]any{
			"family": "julia",
			"spec":   map[string]any{"cRe": 0, "cIm": 1},
		},
	})

	resolver, err := NewResolver(render.Limits{}, memorySource{path: "object.json", data: payload})
	if err != nil {
		t.Fatalf("NewResolver failed: %v", err)
	}

	entry, ok := resolver.Resolve("julia-dendrite")
	if !ok {
		t.Fatalf("expected resolve to succeed")
	}
	if entry.ID != "julia-dendrite" {
		t.Fatalf("expected id from object key, got %q", entry.ID)
	}
	if entry.Spec.CIm != 1 {
		t.Fatalf("expected julia constant from spec, got %+v", entry.Spec)
	}
}

func TestResolverObjectKeyMismatch(t *testing.T) {
	payload := mustMarshal(map[string]any{
		"julia-dendrite": map[string]any{
			"id":     "other",
			"family": "julia",
			"spec":   map[string]any{},
		},
	})

	if _, err := NewResolver(render.Limits{}, memorySource{path: "object.json", data: payload}); err == nil {
		t.Fatalf("expected NewResolver to fail on id/key mismatch")
	}
}

func TestResolverReloadOverrides(t *testing.T) {
	first := memorySource{path: "base.json", data: mustMarshal([]map[string]any{{
		"id":     "full-set",
		"family": "mandelbrot",
		"spec":   map[string]any{"maxIter": 200},
	}})}
	second := memorySource{path: "override.json", data: mustMarshal([]map[string]any{{
		"id":     "full-set",
		"family": "mandelbrot",
		"spec":   map[string]any{"maxIter": 400},
	}})}

	resolver, err := NewResolver(render.Limits{}, first, second)
	if err != nil {
		t.Fatalf("NewResolver failed: %v", err)
	}

	entry, _ := resolver.Resolve("full-set")
	if entry.Spec.MaxIter != 400 {
		t.Fatalf("expected override maxIter 400, got %d", entry.Spec.MaxIter)
	}

	// Mutate the override source to confirm Reload picks up changes.
	second.data = mustMarshal([]map[string]any{{
		"id":     "full-set",
		"family": "mandelbrot",
		"spec":   map[string]any{"maxIter": 800},
	}})

	resolver.mu.Lock()
	resolver.sources[1] = second
	resolver.mu.Unlock()

	if err := resolver.Reload(); err != nil {
		t.Fatalf("Reload failed: %v", err)
	}
	if entry, _ := resolver.Resolve("full-set"); entry.Spec.MaxIter != 800 {
		t.Fatalf("expected maxIter 800 after reload, got %d", entry.Spec.MaxIter)
	}
}

func TestResolverRejectsFamilyMismatch(t *testing.T) {
	payload := mustMarshal([]map[string]any{{
		"id":     "confused",
		"family": "julia",
		"spec":   map[string]any{"family": "mandelbrot"},
	}})

	resolver, err := NewResolver(render.Limits{}, memorySource{path: "mismatch.json", data: payload})
	if err == nil {
		t.Fatalf("expected NewResolver to fail on family mismatch")
	}
	if !strings.Contains(err.Error(), "does not match spec family") {
		t.Fatalf("unexpected error: %v", err)
	}
	if resolver != nil {
		t.Fatalf("expected resolver to be nil when validation fails")
	}
}

func TestResolverRejectsUnknownFamily(t *testing.T) {
	payload := mustMarshal([]map[string]any{{
		"id":     "mystery",
		"family": "not-a-family",
		"spec":   map[string]any{},
	}})

	if _, err := NewResolver(render.Limits{}, memorySource{path: "unknown.json", data: payload}); err == nil {
		t.Fatalf("expected NewResolver to fail for unknown family")
	}
}

func TestResolverRejectsInvalidSpec(t *testing.T) {
	payload := mustMarshal([]map[string]any{{
		"id":     "oversized",
		"family": "mandelbrot",
		"spec":   map[string]any{"width": 1 << 20},
	}})

	resolver, err := NewResolver(render.Limits{}, memorySource{path: "invalid.json", data: payload})
	if err == nil {
		t.Fatalf("expected NewResolver to fail validation")
	}
	if !strings.Contains(err.Error(), "oversized") {
		t.Fatalf("expected error to name the entry, got %v", err)
	}
	if resolver != nil {
		t.Fatalf("expected resolver to be nil when validation fails")
	}
}

func TestResolverRejectsDuplicateIDs(t *testing.T) {
	duplicate := mustMarshal([]map[string]any{
		{"id": "twin", "family": "mandelbrot", "spec": map[string]any{}},
		{"id": "twin", "family": "julia", "spec": map[string]any{}},
	})

	if _, err := NewResolver(render.Limits{}, memorySource{path: "duplicate.json", data: duplicate}); err == nil {
		t.Fatalf("expected NewResolver to fail due to duplicate ids")
	}
}

func TestLoadIgnoresMissingFiles(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "does-not-exist.json")
	resolver, err := Load(render.Limits{}, missing)
	if err != nil {
		t.Fatalf("Load returned error for missing path: %v", err)
	}
	if resolver == nil {
		t.Fatalf("expected resolver to be created even when files are missing")
	}
	if entries := resolver.Entries(); len(entries) != 0 {
		t.Fatalf("expected no entries when sources are missing, got %d", len(entries))
	}
	if resolver.Hash() != "" {
		t.Fatalf("expected empty hash when no sources loaded, got %q", resolver.Hash())
	}
}

func TestEntriesReturnClones(t *testing.T) {
	payload := mustMarshal([]map[string]any{{
		"id":     "plant",
		"family": "lsystem",
		"spec": map[string]any{
			"axiom": "X",
			"rules": map[string]any{"X": "F[+X]F[-X]+X", "F": "FF"},
			"angle": 20,
		},
		"notes": "bracketed plant",
	}})

	resolver, err := NewResolver(render.Limits{}, memorySource{path: "catalog.json", data: payload})
	if err != nil {
		t.Fatalf("failed to construct resolver: %v", err)
	}

	entry, ok := resolver.Resolve("plant")
	if !ok {
		t.Fatalf("expected to resolve plant entry")
	}
	entry.Spec.Rules["X"] = "mutated"
	entry.Blocks["notes"] = json.RawMessage(`"mutated"`)

	snapshot, _ := resolver.Resolve("plant")
	if snapshot.Spec.Rules["X"] != "F[+X]F[-X]+X" {
		t.Fatalf("expected cloned rules to prevent external mutation")
	}
	if string(snapshot.Blocks["notes"]) != `"bracketed plant"` {
		t.Fatalf("expected cloned blocks to prevent external mutation, got %s", snapshot.Blocks["notes"])
	}
}

func TestResolverHashTracksSources(t *testing.T) {
	src := memorySource{path: "hash.json", data: mustMarshal([]map[string]any{{
		"id":     "full-set",
		"family": "mandelbrot",
		"spec":   map[string]any{},
	}})}

	resolver, err := NewResolver(render.Limits{}, src)
	if err != nil {
		t.Fatalf("NewResolver failed: %v", err)
	}
	before := resolver.Hash()
	if before == "" {
		t.Fatalf("expected non-empty hash after load")
	}

	src.data = mustMarshal([]map[string]any{{
		"id":     "full-set",
		"family": "mandelbrot",
		"spec":   map[string]any{"maxIter": 999},
	}})
	resolver.mu.Lock()
	resolver.sources[0] = src
	resolver.mu.Unlock()

	if err := resolver.Reload(); err != nil {
		t.Fatalf("Reload failed: %v", err)
	}
	if resolver.Hash() == before {
		t.Fatalf("expected hash to change when source data changes")
	}
}

func TestSummariesSortedByID(t *testing.T) {
	payload := mustMarshal([]map[string]any{
		{"id": "zebra", "family": "julia", "title": "Zebra", "spec": map[string]any{}},
		{"id": "alpha", "family": "mandelbrot", "spec": map[string]any{}},
	})

	resolver, err := NewResolver(render.Limits{}, memorySource{path: "summaries.json", data: payload})
	if err != nil {
		t.Fatalf("NewResolver failed: %v", err)
	}

	summaries := resolver.Summaries()
	if len(summaries) != 2 {
		t.Fatalf("expected 2 summaries, got %d", len(summaries))
	}
	if summaries[0].ID != "alpha" || summaries[1].ID != "zebra" {
		t.Fatalf("expected summaries sorted by id, got %+v", summaries)
	}
	if summaries[1].Title != "Zebra" {
		t.Fatalf("expected title to survive, got %+v", summaries[1])
	}
}

func TestDefaultPaths(t *testing.T) {
	paths := DefaultPaths()
	if len(paths) == 0 {
		t.Fatalf("expected default paths to include at least one candidate")
	}

	expected := map[string]bool{
		filepath.Join("config", "presets", "definitions.json"):       false,
		filepath.Join("..", "config", "presets", "definitions.json"): false,
	}

	for _, path := range paths {
		if filepath.Base(path) != "definitions.json" {
			t.Fatalf("unexpected default path %q", path)
		}
		if _, ok := expected[path]; ok {
			expected[path] = true
		}
	}

	if !expected[filepath.Join("config", "presets", "definitions.json")] {
		t.Fatalf("expected config/presets/definitions.json to be included in default paths")
	}
	if !expected[filepath.Join("..", "config", "presets", "definitions.json")] {
		t.Fatalf("expected ../config/presets/definitions.json to be included in default paths")
	}
}

func mustMarshal(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return data
}
