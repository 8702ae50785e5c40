package freq

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/zclconf/go-cty/cty"

	"github.com/vk/bandplan/internal/configstore"
	"github.com/vk/bandplan/internal/ctxlog"
)

// MaterializeOptions control how per-partition config copies are derived
// from the parent store.
type MaterializeOptions struct {
	// BaseDir is the run directory the partition working directories are
	// created under.
	BaseDir string
	// ConfigName is the file name of the config copy inside each working
	// directory.
	ConfigName string
	// RequestedCount is the partition count before pruning; per-node memory
	// is scaled down by it since each sub-band carries that fraction of the
	// data.
	RequestedCount int
	// HasPartitionStage is true when the run's first stage group includes a
	// stage that materializes per-partition working data. When false, the
	// data is assumed to have been split already and each copy's visibility
	// path is rewritten to the partition-local set instead.
	HasPartitionStage bool
}

// Materialize creates a working directory per partition and writes a config
// copy into it with the partition-local overrides applied: the partition's
// own range, partitioning disabled, scaled memory, reference-antenna
// auto-calculation off, and empty precal/postcal stage lists so nested runs
// never re-partition.
//
// Directory creation and file writes are not transactional. A crash
// mid-loop leaves a recoverable state as long as the parent config has not
// yet been overwritten with the resolved count, which is why the caller
// persists the parent last.
func Materialize(ctx context.Context, store *configstore.Store, parts []Partition, opts MaterializeOptions) error {
	logger := ctxlog.FromContext(ctx)

	for _, part := range parts {
		workDir := filepath.Join(opts.BaseDir, part.Dir)
		if err := os.MkdirAll(workDir, 0o755); err != nil {
			return fmt.Errorf("failed to create partition directory %q: %w", workDir, err)
		}

		copyPath := filepath.Join(workDir, opts.ConfigName)
		child, err := store.Clone(copyPath)
		if err != nil {
			return err
		}

		child.Set("crosscal", "spw", cty.StringVal(part.Spec))
		child.Set("crosscal", "nspw", cty.NumberIntVal(1))
		child.Set("crosscal", "calcrefant", cty.False)
		child.Set("slurm", "precal_scripts", cty.EmptyTupleVal)
		child.Set("slurm", "postcal_scripts", cty.EmptyTupleVal)

		if mem, err := child.GetInt("slurm", "mem"); err == nil && opts.RequestedCount > 1 {
			scaled := mem / opts.RequestedCount
			if scaled < 1 {
				scaled = 1
			}
			child.Set("slurm", "mem", cty.NumberIntVal(int64(scaled)))
		}

		if !opts.HasPartitionStage {
			if vis, err := child.GetString("data", "vis"); err == nil && vis != "" {
				child.Set("data", "vis", cty.StringVal(partitionVis(part, vis)))
				child.Set("data", "orig_vis", cty.StringVal(vis))
			}
		}

		if err := child.Save(); err != nil {
			return err
		}
		logger.Debug("Materialized partition working directory.",
			"dir", part.Dir, "spw", part.Spec)
	}
	return nil
}

// partitionVis derives the partition-local visibility path from the parent
// path, assuming prior materialization produced one multi-MS per sub-band
// inside the partition's working directory.
func partitionVis(part Partition, vis string) string {
	base := filepath.Base(vis)
	base = strings.TrimSuffix(strings.TrimSuffix(base, ".ms"), ".mms")
	return filepath.Join(part.Dir, base+"."+part.Range.String()+".mms")
}
