package plan

import (
	"context"

	"github.com/vk/bandplan/internal/ctxlog"
	"github.com/vk/bandplan/internal/freq"
	"github.com/vk/bandplan/internal/pipeline"
)

// Build orders the configured stages into an execution plan: it unrolls the
// self-calibration loop, resolves the reference-antenna precedence between
// precal and core, and either collapses everything into one linear chain
// (single partition) or keeps the three-group fan-out shape.
func Build(ctx context.Context, cfg *pipeline.Config, parts []freq.Partition) *ExecutionPlan {
	logger := ctxlog.FromContext(ctx)

	core := unrollSelfCal(ctx, cfg.Core, cfg.SelfCalStart, cfg.SelfCalLoops)
	precal := cfg.Precal

	// The core occurrence of the reference-antenna stage runs after the
	// first flagging pass and is authoritative; a precal duplicate is
	// dropped.
	if pipeline.HasKind(precal, pipeline.KindCalcRefant) && pipeline.HasKind(core, pipeline.KindCalcRefant) {
		logger.Debug("Reference-antenna stage present in both precal and core; dropping the precal occurrence.")
		precal = dropKind(precal, pipeline.KindCalcRefant)
	}

	partitionCount := len(parts)
	if partitionCount <= 1 {
		// Single working partition: the group distinction carries no
		// information, so the run is one linear dependency chain.
		merged := make([]pipeline.Stage, 0, len(precal)+len(core)+len(cfg.Postcal))
		merged = append(merged, precal...)
		merged = append(merged, core...)
		merged = append(merged, cfg.Postcal...)
		for i := range merged {
			merged[i].Group = pipeline.GroupCore
		}
		return &ExecutionPlan{
			Core:      annotate(merged, cfg, 1),
			Collapsed: true,
		}
	}

	plan := &ExecutionPlan{
		Precal:     annotate(precal, cfg, partitionCount),
		Core:       annotate(core, cfg, partitionCount),
		Postcal:    annotate(cfg.Postcal, cfg, partitionCount),
		Partitions: parts,
	}
	for i := range plan.Precal {
		if plan.Precal[i].Kind == pipeline.KindPartition {
			plan.Precal[i].FanOut = true
		}
	}
	return plan
}

func annotate(stages []pipeline.Stage, cfg *pipeline.Config, partitionCount int) []PlannedStage {
	out := make([]PlannedStage, len(stages))
	for i, s := range stages {
		out[i] = PlannedStage{
			Stage:     s,
			Resources: resourceRequest(s, cfg, partitionCount),
		}
	}
	return out
}

func dropKind(stages []pipeline.Stage, kind pipeline.StageKind) []pipeline.Stage {
	out := make([]pipeline.Stage, 0, len(stages))
	for _, s := range stages {
		if s.Kind != kind {
			out = append(out, s)
		}
	}
	return out
}

// unrollSelfCal expands the apply-model/re-image pair into the configured
// loop count. The pair must be adjacent in that exact order; the unrolled
// sequence repeats it (nloops - start - 1) times and closes with one
// trailing apply-model stage, so the final loop ends after re-imaging
// without a useless extra model application.
func unrollSelfCal(ctx context.Context, core []pipeline.Stage, start, nloops int) []pipeline.Stage {
	logger := ctxlog.FromContext(ctx)

	pairAt := -1
	for i := 0; i+1 < len(core); i++ {
		if core[i].Kind == pipeline.KindSelfCalApply && core[i+1].Kind == pipeline.KindSelfCalReimage {
			pairAt = i
			break
		}
	}
	if pairAt < 0 {
		if pipeline.HasKind(core, pipeline.KindSelfCalApply) && pipeline.HasKind(core, pipeline.KindSelfCalReimage) {
			// The two stages exist but not adjacently in apply/re-image
			// order; intent is ambiguous so the list passes through as
			// configured.
			logger.Warn("Self-calibration stages are not adjacent in apply/re-image order; loop not unrolled.")
		}
		return core
	}

	pairs := nloops - start - 1
	if pairs < 1 {
		return core
	}

	apply, reimage := core[pairAt], core[pairAt+1]
	out := make([]pipeline.Stage, 0, len(core)+2*pairs-1)
	out = append(out, core[:pairAt]...)
	for i := 0; i < pairs; i++ {
		out = append(out, apply, reimage)
	}
	out = append(out, apply)
	out = append(out, core[pairAt+2:]...)

	logger.Debug("Unrolled self-calibration loop.",
		"start", start, "nloops", nloops, "pairs", pairs)
	return out
}
