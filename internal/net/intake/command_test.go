package intake

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"orbitlab/server/catalog"
	"orbitlab/server/internal/net/proto"
	"orbitlab/server/internal/render"
)

type fakeStarter struct {
	viewer string
	spec   render.Spec
	job    uint64
	err    error
	calls  int
}

func (f *fakeStarter) start(viewer string, spec render.Spec) (uint64, error) {
	f.calls++
	f.viewer = viewer
	f.spec = spec
	if f.err != nil {
		return 0, f.err
	}
	return f.job, nil
}

func testCatalog(t *testing.T) *catalog.Resolver {
	t.Helper()
	path := filepath.Join(t.TempDir(), "definitions.json")
	data := `[
		{"id":"seahorse-valley","family":"mandelbrot","spec":{"region":"seahorse-valley","maxIter":600}},
		{"id":"plant","family":"lsystem","spec":{"axiom":"X","rules":{"X":"F[+X]F[-X]+X","F":"FF"},"angle":20,"depth":5}}
	]`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write catalog: %v", err)
	}
	resolver, err := catalog.Load(render.Limits{}, path)
	if err != nil {
		t.Fatalf("load catalog: %v", err)
	}
	return resolver
}

func TestStageRenderAcceptsSpec(t *testing.T) {
	starter := &fakeStarter{job: 7}
	ctx := CommandContext{
		Limits:    render.Limits{}.Normalized(),
		HasViewer: func(id string) bool { return id == "viewer-1" },
		Start:     starter.start,
	}

	msg := proto.ClientMessage{
		Type: proto.TypeRender,
		Spec: &render.Spec{Family: render.FamilyJulia, CRe: -0.8, CIm: 0.156},
	}
	staged, ok, reason := StageRender(ctx, "viewer-1", msg)
	if !ok {
		t.Fatalf("expected command to be accepted, got reason %q", reason)
	}
	if staged.Job != 7 {
		t.Fatalf("expected job 7, got %d", staged.Job)
	}
	if staged.Spec.Width != 512 || staged.Spec.MaxIter != 256 {
		t.Fatalf("expected normalized defaults, got %+v", staged.Spec)
	}
	if starter.viewer != "viewer-1" {
		t.Fatalf("expected starter to receive viewer, got %q", starter.viewer)
	}
	if starter.spec.Family != render.FamilyJulia {
		t.Fatalf("expected starter to receive normalized spec, got %+v", starter.spec)
	}
}

func TestStageRenderRejectsMissingSpec(t *testing.T) {
	starter := &fakeStarter{}
	ctx := CommandContext{HasViewer: func(string) bool { return true }, Start: starter.start}

	_, ok, reason := StageRender(ctx, "viewer-1", proto.ClientMessage{Type: proto.TypeRender})
	if ok {
		t.Fatalf("expected rejection for missing spec")
	}
	if reason != render.RejectInvalidParams {
		t.Fatalf("expected reason %q, got %q", render.RejectInvalidParams, reason)
	}
	if starter.calls != 0 {
		t.Fatalf("expected starter to stay untouched, got %d calls", starter.calls)
	}
}

func TestStageRenderRejectsUnknownViewer(t *testing.T) {
	starter := &fakeStarter{}
	ctx := CommandContext{
		HasViewer: func(string) bool { return false },
		Start:     starter.start,
	}

	msg := proto.ClientMessage{Type: proto.TypeRender, Spec: &render.Spec{Family: render.FamilyMandelbrot}}
	_, ok, reason := StageRender(ctx, "missing", msg)
	if ok {
		t.Fatalf("expected rejection for unknown viewer")
	}
	if reason != render.RejectUnknownViewer {
		t.Fatalf("expected reason %q, got %q", render.RejectUnknownViewer, reason)
	}
}

func TestStageRenderRejectsInvalidSpec(t *testing.T) {
	starter := &fakeStarter{}
	ctx := CommandContext{HasViewer: func(string) bool { return true }, Start: starter.start}

	unknown := proto.ClientMessage{Type: proto.TypeRender, Spec: &render.Spec{Family: "nope"}}
	if _, ok, reason := StageRender(ctx, "viewer-1", unknown); ok || reason != render.RejectUnknownFamily {
		t.Fatalf("expected unknown family reject, got ok=%v reason=%q", ok, reason)
	}

	oversized := proto.ClientMessage{Type: proto.TypeRender, Spec: &render.Spec{Family: render.FamilyMandelbrot, Width: 1 << 20}}
	if _, ok, reason := StageRender(ctx, "viewer-1", oversized); ok || reason != render.RejectInvalidParams {
		t.Fatalf("expected invalid params reject, got ok=%v reason=%q", ok, reason)
	}
	if starter.calls != 0 {
		t.Fatalf("expected no jobs started, got %d", starter.calls)
	}
}

func TestStageRenderPropagatesQueueFull(t *testing.T) {
	starter := &fakeStarter{err: fmt.Errorf("%w: 8 jobs running", render.ErrQueueFull)}
	ctx := CommandContext{HasViewer: func(string) bool { return true }, Start: starter.start}

	msg := proto.ClientMessage{Type: proto.TypeRender, Spec: &render.Spec{Family: render.FamilyMandelbrot}}
	_, ok, reason := StageRender(ctx, "viewer-1", msg)
	if ok {
		t.Fatalf("expected rejection from starter")
	}
	if reason != render.RejectQueueFull {
		t.Fatalf("expected reason %q, got %q", render.RejectQueueFull, reason)
	}
}

func TestStageRenderHandlesNilStart(t *testing.T) {
	ctx := CommandContext{HasViewer: func(string) bool { return true }}

	msg := proto.ClientMessage{Type: proto.TypeRender, Spec: &render.Spec{Family: render.FamilyMandelbrot}}
	_, ok, reason := StageRender(ctx, "viewer-1", msg)
	if ok {
		t.Fatalf("expected rejection when starter is nil")
	}
	if reason != render.RejectQueueFull {
		t.Fatalf("expected reason %q, got %q", render.RejectQueueFull, reason)
	}
}

func TestStagePresetResolvesCatalog(t *testing.T) {
	starter := &fakeStarter{job: 3}
	ctx := CommandContext{
		Catalog:   testCatalog(t),
		Limits:    render.Limits{}.Normalized(),
		HasViewer: func(string) bool { return true },
		Start:     starter.start,
	}

	msg := proto.ClientMessage{
		Type:      proto.TypePreset,
		Preset:    "seahorse-valley",
		Overrides: &render.Spec{MaxIter: 900},
	}
	staged, ok, reason := StagePreset(ctx, "viewer-1", msg)
	if !ok {
		t.Fatalf("expected preset to stage, got reason %q", reason)
	}
	if staged.Spec.Family != render.FamilyMandelbrot {
		t.Fatalf("expected family from preset, got %q", staged.Spec.Family)
	}
	if staged.Spec.Region != "seahorse-valley" {
		t.Fatalf("expected region from preset, got %q", staged.Spec.Region)
	}
	if staged.Spec.MaxIter != 900 {
		t.Fatalf("expected override maxIter 900, got %d", staged.Spec.MaxIter)
	}
	if staged.Job != 3 {
		t.Fatalf("expected job 3, got %d", staged.Job)
	}
}

func TestStagePresetRejectsUnknownPreset(t *testing.T) {
	ctx := CommandContext{
		Catalog:   testCatalog(t),
		HasViewer: func(string) bool { return true },
		Start:     (&fakeStarter{}).start,
	}

	_, ok, reason := StagePreset(ctx, "viewer-1", proto.ClientMessage{Type: proto.TypePreset, Preset: "missing"})
	if ok {
		t.Fatalf("expected rejection for unknown preset")
	}
	if reason != render.RejectUnknownPreset {
		t.Fatalf("expected reason %q, got %q", render.RejectUnknownPreset, reason)
	}
}

func TestStagePresetRejectsFamilyOverride(t *testing.T) {
	ctx := CommandContext{
		Catalog:   testCatalog(t),
		HasViewer: func(string) bool { return true },
		Start:     (&fakeStarter{}).start,
	}

	msg := proto.ClientMessage{
		Type:      proto.TypePreset,
		Preset:    "plant",
		Overrides: &render.Spec{Family: render.FamilyCurve},
	}
	_, ok, reason := StagePreset(ctx, "viewer-1", msg)
	if ok {
		t.Fatalf("expected rejection when override changes family")
	}
	if reason != render.RejectInvalidParams {
		t.Fatalf("expected reason %q, got %q", render.RejectInvalidParams, reason)
	}
}

func TestStagePresetRejectsEmptyID(t *testing.T) {
	ctx := CommandContext{Catalog: testCatalog(t), Start: (&fakeStarter{}).start}

	_, ok, reason := StagePreset(ctx, "viewer-1", proto.ClientMessage{Type: proto.TypePreset})
	if ok {
		t.Fatalf("expected rejection for empty preset id")
	}
	if reason != render.RejectInvalidParams {
		t.Fatalf("expected reason %q, got %q", render.RejectInvalidParams, reason)
	}
}

func TestMergeOverridesWindowClearsRegion(t *testing.T) {
	base := render.Spec{Family: render.FamilyMandelbrot, Region: "seahorse-valley"}
	merged := mergeOverrides(base, render.Spec{XMin: -2, XMax: 2, YMin: -1, YMax: 1})

	if merged.Region != "" {
		t.Fatalf("expected explicit window to clear the region, got %q", merged.Region)
	}
	if merged.XMin != -2 || merged.YMax != 1 {
		t.Fatalf("unexpected window: %+v", merged)
	}
}

func TestMergeOverridesCopiesRuleTable(t *testing.T) {
	base := render.Spec{
		Family: render.FamilyLSystem,
		Axiom:  "X",
		Rules:  map[string]string{"X": "F[+X]F[-X]+X"},
	}
	override := render.Spec{Rules: map[string]string{"X": "FF"}}

	merged := mergeOverrides(base, override)
	if merged.Rules["X"] != "FF" {
		t.Fatalf("expected override rules to replace the table, got %v", merged.Rules)
	}

	override.Rules["X"] = "mutated"
	if merged.Rules["X"] != "FF" {
		t.Fatalf("expected merged rules to be independent of the override map")
	}

	if base.Rules["X"] != "F[+X]F[-X]+X" {
		t.Fatalf("expected base rules to stay untouched, got %v", base.Rules)
	}
}
