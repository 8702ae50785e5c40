package submit

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/vk/bandplan/internal/ctxlog"
	"github.com/vk/bandplan/internal/pipeline"
	"github.com/vk/bandplan/internal/plan"
)

// EmitOptions parameterize master script emission.
type EmitOptions struct {
	// Executable is the planner binary name nested partition invocations
	// call; it must be resolvable on PATH when the master script runs.
	Executable string
	// DependencyPrefix is an externally supplied scheduler dependency
	// expression gating the very first submission.
	DependencyPrefix string
	// Verbose makes the master script echo each submission command.
	Verbose bool
}

// Emission is the outcome of walking a plan: the master script text and the
// job descriptors it realizes, in submission order.
type Emission struct {
	Script string
	Jobs   []plan.JobDescriptor
}

// EmitMaster walks the plan's groups in order, submits every job descriptor
// through a ScriptSubmitter, and assembles the master script: precal chain,
// one nested sub-run per partition, postcal join, then the ancillary script
// generation block.
func EmitMaster(ctx context.Context, p *plan.ExecutionPlan, cfg *pipeline.Config, opts EmitOptions) (*Emission, error) {
	logger := ctxlog.FromContext(ctx)
	if opts.Executable == "" {
		opts.Executable = "bandplan"
	}

	w := &walker{
		sub:    &ScriptSubmitter{Verbose: opts.Verbose},
		vars:   make(map[string]int),
		prefix: plan.DependencyExpression{Raw: opts.DependencyPrefix},
	}

	var lastRef string
	var err error
	if p.Collapsed {
		lastRef, err = w.chain(ctx, p.Core, w.prefix)
		if err != nil {
			return nil, err
		}
	} else {
		lastRef, err = w.partitioned(ctx, p, opts.Executable)
		if err != nil {
			return nil, err
		}
	}

	var b strings.Builder
	b.WriteString("#!/bin/bash\n")
	for _, line := range w.sub.Lines() {
		b.WriteString(line)
		b.WriteString("\n")
	}

	b.WriteString("\n#Output message and create ")
	b.WriteString(pipeline.JobScriptsDir)
	b.WriteString(" directory\n")
	b.WriteString("echo Submitted jobs with following IDs: $IDs\n")
	fmt.Fprintf(&b, "mkdir -p %s\n", pipeline.JobScriptsDir)

	b.WriteString("\n#Add time as extn to this pipeline run, to give unique ID\n")
	b.WriteString("DATE=$(date '+%Y-%m-%d-%H-%M-%S')\n")
	writeAncillaryBlock(&b, p)

	b.WriteString("\n#Final job of the chain, for parent runs to capture\n")
	fmt.Fprintf(&b, "echo %s\n", lastRef)

	logger.Debug("Master script assembled.", "jobs", len(w.jobs))
	return &Emission{Script: b.String(), Jobs: w.jobs}, nil
}

// WriteMaster writes the master script into dir under its fixed name, mode
// 0755.
func WriteMaster(dir, script string) (string, error) {
	path := filepath.Join(dir, pipeline.MasterScript)
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		return "", fmt.Errorf("failed to write master script: %w", err)
	}
	return path, nil
}

// walker tracks emission state: the submitter, captured variable names, and
// the jobs realized so far.
type walker struct {
	sub    *ScriptSubmitter
	vars   map[string]int
	jobs   []plan.JobDescriptor
	prefix plan.DependencyExpression
}

// captureVar allocates a unique shell variable for a stage name. Repeated
// submissions of the same stage (unrolled loops) get numbered suffixes.
func (w *walker) captureVar(name string) string {
	base := "ID_" + sanitize(name)
	w.vars[base]++
	if n := w.vars[base]; n > 1 {
		return fmt.Sprintf("%s_%d", base, n)
	}
	return base
}

// submit runs one descriptor through the submitter and records it.
func (w *walker) submit(ctx context.Context, job plan.JobDescriptor) (string, error) {
	w.jobs = append(w.jobs, job)
	if !job.Dependency.Empty() {
		ctxlog.FromContext(ctx).Debug("Planned submission.",
			"stage", job.StageName, "waits_on", job.Dependency.Display())
	}
	return w.sub.Submit(ctx, job)
}

// chain submits a linear group: the first job carries the incoming
// dependency, every later one waits (succeed-only) on the growing set of
// identifiers captured earlier in the group. Returns the final reference.
func (w *walker) chain(ctx context.Context, stages []plan.PlannedStage, incoming plan.DependencyExpression) (string, error) {
	var captured []string
	last := ""
	for _, stage := range stages {
		dep := incoming
		if len(captured) > 0 {
			dep = plan.DependencyExpression{Kind: plan.AfterOK, IDs: captured}
		}
		ref, err := w.submit(ctx, plan.JobDescriptor{
			StageName:  stage.Name,
			Command:    "sbatch " + DescriptorName(stage.Name),
			Resources:  stage.Resources,
			Dependency: dep,
			CaptureVar: w.captureVar(stage.Name),
		})
		if err != nil {
			return "", err
		}
		captured = append(captured, ref)
		last = ref
	}
	return last, nil
}

// partitioned submits the three-group shape: the precal chain (with the
// fan-out stage as an array job), one nested planner invocation per
// partition threading the array task identifier through, and the postcal
// chain joining on every partition chain regardless of outcome.
func (w *walker) partitioned(ctx context.Context, p *plan.ExecutionPlan, executable string) (string, error) {
	fanOutRef := ""
	precalRef, err := w.precal(ctx, p.Precal, &fanOutRef)
	if err != nil {
		return "", err
	}

	partitionRefs := make([]string, 0, len(p.Partitions))
	for i, part := range p.Partitions {
		dep := w.partitionDependency(fanOutRef, precalRef, i)
		cmd := fmt.Sprintf("cd '%s' && %s run --config %s --submit --quiet",
			part.Dir, executable, pipeline.TmpConfigName)
		ref, err := w.submit(ctx, plan.JobDescriptor{
			StageName:  fmt.Sprintf("spw%d %s", i, part.Dir),
			Command:    cmd,
			Dependency: dep,
			CaptureVar: w.captureVar(fmt.Sprintf("spw%d", i)),
			Nested:     true,
		})
		if err != nil {
			return "", err
		}
		partitionRefs = append(partitionRefs, ref)
	}

	// Aggregation must run even if a partition failed, to allow partial
	// collection.
	join := plan.DependencyExpression{Kind: plan.AfterAny, IDs: partitionRefs}
	lastRef, err := w.chain(ctx, p.Postcal, join)
	if err != nil {
		return "", err
	}
	if lastRef == "" {
		if len(partitionRefs) > 0 {
			return partitionRefs[len(partitionRefs)-1], nil
		}
		return precalRef, nil
	}
	return lastRef, nil
}

// precal submits the top-level precal chain, remembering the fan-out
// stage's reference for per-task dependency threading.
func (w *walker) precal(ctx context.Context, stages []plan.PlannedStage, fanOutRef *string) (string, error) {
	var captured []string
	last := ""
	for _, stage := range stages {
		dep := w.prefix
		if len(captured) > 0 {
			dep = plan.DependencyExpression{Kind: plan.AfterOK, IDs: captured}
		}
		v := w.captureVar(stage.Name)
		ref, err := w.submit(ctx, plan.JobDescriptor{
			StageName:  stage.Name,
			Command:    "sbatch " + DescriptorName(stage.Name),
			Resources:  stage.Resources,
			Dependency: dep,
			CaptureVar: v,
		})
		if err != nil {
			return "", err
		}
		if stage.FanOut {
			*fanOutRef = "${" + v + "}"
		}
		captured = append(captured, ref)
		last = ref
	}
	return last, nil
}

// partitionDependency gates partition chain i: its own array task when the
// fan-out stage exists, otherwise the precal chain's end, otherwise the
// external prefix.
func (w *walker) partitionDependency(fanOutRef, precalRef string, i int) plan.DependencyExpression {
	switch {
	case fanOutRef != "":
		return plan.DependencyExpression{Kind: plan.AfterOK, IDs: []string{fmt.Sprintf("%s_%d", fanOutRef, i)}}
	case precalRef != "":
		return plan.DependencyExpression{Kind: plan.AfterOK, IDs: []string{precalRef}}
	default:
		return w.prefix
	}
}

func sanitize(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}
