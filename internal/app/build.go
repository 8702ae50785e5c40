package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/zclconf/go-cty/cty"

	"github.com/vk/bandplan/internal/configstore"
	"github.com/vk/bandplan/internal/ctxlog"
	"github.com/vk/bandplan/internal/pipeline"
)

// Cluster-specific defaults for a freshly built config. The engine paths
// point at the shared software area of the target cluster.
const (
	defaultContainer  = "/data/exp_soft/pipelines/casameer-5.4.1.simg"
	defaultMPIWrapper = "/data/exp_soft/pipelines/casa-prerelease-5.3.0-115.el7/bin/mpicasa"
)

// BuildOptions parameterize default config generation.
type BuildOptions struct {
	// Path is where the generated config is written.
	Path string
	// Vis is the measurement set the run will process.
	Vis string

	Nodes        int
	TasksPerNode int
	MemGB        int
	Account      string
	Partition    string
	NSPW         int
}

// stageEntry builds one element of a configured stage list.
func stageEntry(name string, threadSafe bool) cty.Value {
	return cty.ObjectVal(map[string]cty.Value{
		"name":       cty.StringVal(name),
		"threadsafe": cty.BoolVal(threadSafe),
		"container":  cty.StringVal(""),
	})
}

func stageList(entries ...cty.Value) cty.Value {
	return cty.TupleVal(entries)
}

// Build generates a default run configuration pointing at the given
// measurement set, with the scheduler parameters filled in from options.
func (a *App) Build(ctx context.Context, opts BuildOptions) error {
	ctx = a.context(ctx)
	logger := ctxlog.FromContext(ctx)

	if opts.Vis == "" {
		return errors.New("a measurement set path is required to build a config")
	}
	if !fileExists(opts.Vis) {
		return fmt.Errorf("measurement set %q not found", opts.Vis)
	}

	store := configstore.New(opts.Path)

	store.SetAll("data", map[string]cty.Value{
		"vis": cty.StringVal(opts.Vis),
	})

	store.SetAll("crosscal", map[string]cty.Value{
		"spw":           cty.StringVal("*:880~1680MHz"),
		"nspw":          cty.NumberIntVal(int64(opts.NSPW)),
		"badfreqranges": configstore.StringList([]string{"933~960MHz", "1163~1299MHz"}),
		"calcrefant":    cty.False,
		"createmms":     cty.True,
		"keepmms":       cty.True,
	})

	store.SetAll("slurm", map[string]cty.Value{
		"nodes":           cty.NumberIntVal(int64(opts.Nodes)),
		"ntasks_per_node": cty.NumberIntVal(int64(opts.TasksPerNode)),
		"mem":             cty.NumberIntVal(int64(opts.MemGB)),
		"partition":       cty.StringVal(opts.Partition),
		"account":         cty.StringVal(opts.Account),
		"reservation":     cty.StringVal(""),
		"modules":         configstore.StringList([]string{"openmpi/4.0.3"}),
		"dependencies":    cty.StringVal(""),
		"container":       cty.StringVal(defaultContainer),
		"mpi_wrapper":     cty.StringVal(defaultMPIWrapper),
		"precal_scripts": stageList(
			stageEntry("partition.py", true),
			stageEntry("calc_refant.py", false),
		),
		"scripts": stageList(
			stageEntry("validate_input.py", false),
			stageEntry("flag_round_1.py", true),
			stageEntry("calc_refant.py", false),
			stageEntry("setjy.py", true),
			stageEntry("xy_yx_solve.py", false),
			stageEntry("xy_yx_apply.py", true),
			stageEntry("flag_round_2.py", true),
			stageEntry("split.py", true),
			stageEntry("quick_tclean.py", true),
		),
		"postcal_scripts": stageList(
			stageEntry("concat.py", false),
		),
	})

	store.SetAll("selfcal", map[string]cty.Value{
		"loop":              cty.NumberIntVal(0),
		"nloops":            cty.NumberIntVal(2),
		"outlier_threshold": cty.NumberFloatVal(0.0),
		"outlier_radius":    cty.NumberFloatVal(0.0),
	})

	store.SetAll("run", map[string]cty.Value{
		"dopol": cty.False,
	})

	// Sanity-check the generated document against the same rules a run
	// would apply.
	pcfg, err := pipeline.Load(ctx, store)
	if err != nil {
		return err
	}
	if err := pcfg.Validate(); err != nil {
		return err
	}

	if err := store.Save(); err != nil {
		return err
	}
	logger.Info("Default config generated.", "path", opts.Path, "vis", opts.Vis)
	return nil
}

// DefaultBuildOptions are the flag defaults for config generation.
func DefaultBuildOptions() BuildOptions {
	return BuildOptions{
		Path:         "default_config.hcl",
		Nodes:        15,
		TasksPerNode: 16,
		MemGB:        96,
		Account:      pipeline.KnownAccounts[0],
		Partition:    "Main",
		NSPW:         16,
	}
}
