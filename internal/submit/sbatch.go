// Package submit renders per-stage submission descriptors, assembles the
// master submission script, and generates the ancillary helper scripts that
// share its captured job identifiers.
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

// DescriptorName returns the submission descriptor file name for a stage.
func DescriptorName(stageName string) string {
	return stageName + pipeline.SbatchExt
}

// RenderDescriptor produces the sbatch file contents for one planned stage.
func RenderDescriptor(stage plan.PlannedStage, cfg *pipeline.Config, configName string) string {
	var b strings.Builder
	res := stage.Resources

	b.WriteString("#!/bin/bash\n")
	fmt.Fprintf(&b, "#SBATCH --account=%s\n", cfg.Account)
	fmt.Fprintf(&b, "#SBATCH --nodes=%d\n", res.Nodes)
	fmt.Fprintf(&b, "#SBATCH --ntasks-per-node=%d\n", res.TasksPerNode)
	fmt.Fprintf(&b, "#SBATCH --cpus-per-task=%d\n", res.CPUsPerTask)
	fmt.Fprintf(&b, "#SBATCH --mem=%dGB\n", res.MemGB)
	fmt.Fprintf(&b, "#SBATCH --job-name=%s\n", stage.Name)
	fmt.Fprintf(&b, "#SBATCH --partition=%s\n", cfg.Partition)
	if cfg.Reservation != "" {
		fmt.Fprintf(&b, "#SBATCH --reservation=%s\n", cfg.Reservation)
	}
	if res.ArrayTasks > 0 {
		fmt.Fprintf(&b, "#SBATCH --array=0-%d%%%d\n", res.ArrayTasks-1, res.ArrayCap)
		fmt.Fprintf(&b, "#SBATCH --output=%s/%s-%%A_%%a.out\n", pipeline.LogDir, stage.Name)
		fmt.Fprintf(&b, "#SBATCH --error=%s/%s-%%A_%%a.err\n", pipeline.LogDir, stage.Name)
	} else {
		fmt.Fprintf(&b, "#SBATCH --output=%s/%s-%%j.out\n", pipeline.LogDir, stage.Name)
		fmt.Fprintf(&b, "#SBATCH --error=%s/%s-%%j.err\n", pipeline.LogDir, stage.Name)
	}

	b.WriteString("\n")
	for _, mod := range cfg.Modules {
		fmt.Fprintf(&b, "module load %s\n", mod)
	}
	if len(cfg.Modules) > 0 {
		b.WriteString("\n")
	}
	b.WriteString("export OMP_NUM_THREADS=1\n\n")
	b.WriteString(stageCommand(stage, cfg, configName))
	b.WriteString("\n")
	return b.String()
}

// stageCommand assembles the engine invocation for a stage: MPI wrapper for
// threadsafe stages, the container runtime, then the stage script against
// the run's config copy.
func stageCommand(stage plan.PlannedStage, cfg *pipeline.Config, configName string) string {
	var parts []string
	if stage.ThreadSafe && cfg.MPIWrapper != "" {
		parts = append(parts, cfg.MPIWrapper)
	}
	parts = append(parts, "singularity", "exec", stage.Container,
		"python", stage.Script, "--config", configName)
	return strings.Join(parts, " ")
}

// WriteDescriptors writes one descriptor file per distinct stage name of
// the plan into dir. Under justRun, an existing file is left untouched so
// manual edits survive iterative re-planning.
func WriteDescriptors(ctx context.Context, p *plan.ExecutionPlan, cfg *pipeline.Config, dir string, justRun bool) error {
	logger := ctxlog.FromContext(ctx)

	if err := os.MkdirAll(filepath.Join(dir, pipeline.LogDir), 0o755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}

	seen := make(map[string]bool)
	for _, stage := range allStages(p) {
		if seen[stage.Name] {
			// Unrolled loop repetitions share one descriptor; the engine
			// tracks loop progress itself.
			continue
		}
		seen[stage.Name] = true

		path := filepath.Join(dir, DescriptorName(stage.Name))
		if justRun {
			if _, err := os.Stat(path); err == nil {
				logger.Info("Existing submission descriptor left in place.", "path", path)
				continue
			}
		}
		contents := RenderDescriptor(stage, cfg, pipeline.TmpConfigName)
		if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
			return fmt.Errorf("failed to write descriptor %q: %w", path, err)
		}
		logger.Debug("Wrote submission descriptor.", "path", path)
	}
	return nil
}

func allStages(p *plan.ExecutionPlan) []plan.PlannedStage {
	out := make([]plan.PlannedStage, 0, len(p.Precal)+len(p.Core)+len(p.Postcal))
	out = append(out, p.Precal...)
	if p.Collapsed || len(p.Partitions) == 0 {
		out = append(out, p.Core...)
	}
	out = append(out, p.Postcal...)
	return out
}
