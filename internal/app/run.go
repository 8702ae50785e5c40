package app

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/vk/bandplan/internal/configstore"
	"github.com/vk/bandplan/internal/ctxlog"
	"github.com/vk/bandplan/internal/freq"
	"github.com/vk/bandplan/internal/pipeline"
	"github.com/vk/bandplan/internal/plan"
	"github.com/vk/bandplan/internal/submit"
)

// Run plans a pipeline run: validate, partition, build the stage graph,
// write the submission descriptors and master script, then optionally
// submit. Validation failures abort before anything is written.
func (a *App) Run(ctx context.Context, cfg *Config) error {
	ctx = a.context(ctx)
	logger := ctxlog.FromContext(ctx)

	baseDir := filepath.Dir(cfg.ConfigPath)

	store, err := configstore.Load(cfg.ConfigPath)
	if err != nil {
		return err
	}
	pcfg, err := pipeline.Load(ctx, store)
	if err != nil {
		return err
	}
	if err := pcfg.Validate(); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	// Plan against a private copy so edits to the user's file mid-run have
	// no effect; nested invocations re-read this copy, so planning
	// mutations below are persisted into it.
	tmpPath := filepath.Join(baseDir, pipeline.TmpConfigName)
	if cfg.ConfigPath != tmpPath && filepath.Base(cfg.ConfigPath) != pipeline.TmpConfigName {
		logger.Info("Copying config; further edits to the original will not affect this run.",
			"from", cfg.ConfigPath, "to", tmpPath)
	}
	if err := store.SaveAs(tmpPath); err != nil {
		return err
	}
	store, err = configstore.Load(tmpPath)
	if err != nil {
		return err
	}
	if pcfg, err = pipeline.Load(ctx, store); err != nil {
		return err
	}

	if pcfg.Timestamp == "" {
		pcfg.SetTimestamp(time.Now().Format("2006-01-02-15-04-05"))
	}

	parts := a.partition(ctx, pcfg, baseDir)

	execPlan := plan.Build(ctx, pcfg, parts)
	if err := submit.WriteDescriptors(ctx, execPlan, pcfg, baseDir, cfg.JustRun); err != nil {
		return err
	}

	dependency := cfg.Dependency
	if dependency == "" {
		dependency = pcfg.Dependency
	}
	emission, err := submit.EmitMaster(ctx, execPlan, pcfg, submit.EmitOptions{
		DependencyPrefix: dependency,
		Verbose:          cfg.Verbose,
	})
	if err != nil {
		return err
	}
	masterPath, err := submit.WriteMaster(baseDir, emission.Script)
	if err != nil {
		return err
	}

	// End-of-planning checkpoint.
	if err := pcfg.Save(); err != nil {
		return err
	}

	if !cfg.Submit {
		logger.Info("Master script written, but will not run.", "script", masterPath)
		return nil
	}

	lastID, err := submit.ExecuteMaster(ctx, baseDir, a.outW, cfg.Quiet)
	if err != nil {
		return err
	}
	if cfg.Quiet {
		// The identifier protocol: final chain job ID as the last stdout
		// line, for the parent master script to capture.
		fmt.Fprintln(a.outW, lastID)
	}
	return nil
}

// partition splits the configured spectral window when more than one
// working partition is requested, materializes the per-partition config
// copies, and only then persists the resolved count into the parent store.
// Partitioning anomalies degrade to an unpartitioned run; they never abort.
func (a *App) partition(ctx context.Context, pcfg *pipeline.Config, baseDir string) []freq.Partition {
	logger := ctxlog.FromContext(ctx)

	if pcfg.NSPW <= 1 {
		return nil
	}

	parts, resolved := freq.Split(ctx, pcfg.SPW, pcfg.NSPW, pcfg.BadFreqRanges)
	if resolved <= 1 {
		logger.Warn("Partitioning resolved to a single working partition; planning a linear run.")
		pcfg.SetResolvedNSPW(1)
		return nil
	}

	err := freq.Materialize(ctx, pcfg.Store(), parts, freq.MaterializeOptions{
		BaseDir:           baseDir,
		ConfigName:        pipeline.TmpConfigName,
		RequestedCount:    pcfg.NSPW,
		HasPartitionStage: pipeline.HasKind(pcfg.Precal, pipeline.KindPartition),
	})
	if err != nil {
		// Partial materialization is recoverable by re-running: the parent
		// count has not been overwritten yet, so the same partitioning is
		// recomputed from the unmutated source.
		logger.Error("Failed to materialize partition directories.", "error", err)
		pcfg.SetResolvedNSPW(1)
		return nil
	}

	// The parent's resolved count is written last, after every child
	// directory exists.
	pcfg.SetResolvedNSPW(resolved)
	return parts
}
