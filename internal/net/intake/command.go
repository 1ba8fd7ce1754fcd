package intake

import (
	"orbitlab/server/catalog"
	"orbitlab/server/internal/net/proto"
	"orbitlab/server/internal/render"
)

// CommandContext carries the collaborators needed to stage a render command.
type CommandContext struct {
	Catalog   *catalog.Resolver
	Limits    render.Limits
	HasViewer func(string) bool
	Start     func(viewer string, spec render.Spec) (uint64, error)
}

// Staged reports a launched job back to the transport layer.
type Staged struct {
	Spec render.Spec
	Job  uint64
}

// StageRender validates an explicit spec command and launches the job. The
// reject reason is empty on success.
func StageRender(ctx CommandContext, viewerID string, msg proto.ClientMessage) (Staged, bool, string) {
	var zero Staged

	if msg.Spec == nil {
		return zero, false, render.RejectInvalidParams
	}
	return stage(ctx, viewerID, msg.Spec.Clone())
}

// StagePreset resolves a preset, applies any overrides, and launches the job.
func StagePreset(ctx CommandContext, viewerID string, msg proto.ClientMessage) (Staged, bool, string) {
	var zero Staged

	if msg.Preset == "" {
		return zero, false, render.RejectInvalidParams
	}
	entry, ok := ctx.Catalog.Resolve(msg.Preset)
	if !ok {
		return zero, false, render.RejectUnknownPreset
	}
	spec := entry.Spec
	if msg.Overrides != nil {
		if msg.Overrides.Family != "" && msg.Overrides.Family != spec.Family {
			return zero, false, render.RejectInvalidParams
		}
		spec = mergeOverrides(spec, *msg.Overrides)
	}
	return stage(ctx, viewerID, spec)
}

func stage(ctx CommandContext, viewerID string, spec render.Spec) (Staged, bool, string) {
	var zero Staged

	if ctx.HasViewer != nil && !ctx.HasViewer(viewerID) {
		return zero, false, render.RejectUnknownViewer
	}

	normalized := spec.Normalized()
	if err := normalized.Validate(ctx.Limits); err != nil {
		return zero, false, render.RejectReason(err)
	}

	if ctx.Start == nil {
		return zero, false, render.RejectQueueFull
	}
	job, err := ctx.Start(viewerID, normalized)
	if err != nil {
		return zero, false, render.RejectReason(err)
	}

	return Staged{Spec: normalized, Job: job}, true, ""
}

// mergeOverrides lays the non-zero fields of o over base. Paired fields that
// form one parameter (the viewport window, the julia constant, the 3D offset)
// copy as a unit so a partial override cannot split them.
func mergeOverrides(base, o render.Spec) render.Spec {
	out := base.Clone()

	if o.Width > 0 {
		out.Width = o.Width
	}
	if o.Height > 0 {
		out.Height = o.Height
	}
	if o.MaxIter > 0 {
		out.MaxIter = o.MaxIter
	}
	if o.Region != "" {
		out.Region = o.Region
	}
	if o.XMin != 0 || o.XMax != 0 || o.YMin != 0 || o.YMax != 0 {
		out.XMin, out.XMax, out.YMin, out.YMax = o.XMin, o.XMax, o.YMin, o.YMax
		out.Region = ""
	}
	if o.CRe != 0 || o.CIm != 0 {
		out.CRe, out.CIm = o.CRe, o.CIm
	}
	if o.KRe != 0 || o.KIm != 0 {
		out.KRe, out.KIm = o.KRe, o.KIm
	}
	if o.Power != 0 {
		out.Power = o.Power
	}
	if o.Bailout != 0 {
		out.Bailout = o.Bailout
	}
	if o.CX != 0 || o.CY != 0 || o.CZ != 0 {
		out.CX, out.CY, out.CZ = o.CX, o.CY, o.CZ
	}
	if o.Half != 0 {
		out.Half = o.Half
	}
	if o.Samples > 0 {
		out.Samples = o.Samples
	}
	if o.Count > 0 {
		out.Count = o.Count
	}
	if o.Lambda != 0 {
		out.Lambda = o.Lambda
	}
	if o.Solid != "" {
		out.Solid = o.Solid
	}
	if o.NoRepeat {
		out.NoRepeat = true
	}
	if o.NoOppositeFace {
		out.NoOppositeFace = true
	}
	if o.Jitter != 0 {
		out.Jitter = o.Jitter
	}
	if len(o.Maps) > 0 {
		out.Maps = append([]render.AffineMapSpec(nil), o.Maps...)
	}
	if o.Axiom != "" {
		out.Axiom = o.Axiom
	}
	if len(o.Rules) > 0 {
		out.Rules = make(map[string]string, len(o.Rules))
		for k, v := range o.Rules {
			out.Rules[k] = v
		}
	}
	if o.Angle != 0 {
		out.Angle = o.Angle
	}
	if o.Step != 0 {
		out.Step = o.Step
	}
	if o.Depth > 0 {
		out.Depth = o.Depth
	}
	if o.Curve != "" {
		out.Curve = o.Curve
	}
	if o.Order > 0 {
		out.Order = o.Order
	}
	if o.Seed != "" {
		out.Seed = o.Seed
	}
	return out
}
