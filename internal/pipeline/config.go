package pipeline

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"slices"

	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
	"github.com/zclconf/go-cty/cty/gocty"

	"github.com/vk/bandplan/internal/configstore"
	"github.com/vk/bandplan/internal/ctxlog"
	"github.com/vk/bandplan/internal/freq"
)

// ValidationError is a fatal pre-planning configuration error. Nothing is
// written to disk once one is raised.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

func validationErrorf(format string, args ...any) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// knownKeys drives the unrecognized-key warning. Keys outside this schema
// are tolerated (sections written by other tools ride along in config
// copies) but flagged.
var knownKeys = map[string][]string{
	"data":     {"vis", "orig_vis"},
	"crosscal": {"spw", "nspw", "badfreqranges", "calcrefant", "createmms", "keepmms"},
	"slurm": {
		"scripts", "precal_scripts", "postcal_scripts", "nodes", "ntasks_per_node",
		"mem", "partition", "account", "reservation", "modules", "dependencies",
		"container", "mpi_wrapper",
	},
	"selfcal": {"loop", "nloops", "outlier_threshold", "outlier_radius"},
	"run":     {"dopol", "timestamp"},
}

// Config is the run configuration, built once per run from the config
// store. Mutations (resolved partition count, run timestamp) are persisted
// back through the store at defined checkpoints only, because later
// invocations of the same program re-read the file.
type Config struct {
	store *configstore.Store

	Vis string

	SPW           string
	NSPW          int
	BadFreqRanges []freq.Range
	CalcRefant    bool
	CreateMMS     bool
	KeepMMS       bool

	Nodes        int
	TasksPerNode int
	MemGB        int
	Partition    string
	Account      string
	Reservation  string
	Modules      []string
	Dependency   string
	Container    string
	MPIWrapper   string

	SelfCalStart     int
	SelfCalLoops     int
	OutlierThreshold float64
	OutlierRadius    float64

	DoPol     bool
	Timestamp string

	Precal  []Stage
	Core    []Stage
	Postcal []Stage
}

// Load builds a Config from the store, applying defaults for optional keys
// and warning about unrecognized ones. A missing required section or key is
// returned as a configstore.MissingKeyError.
func Load(ctx context.Context, store *configstore.Store) (*Config, error) {
	logger := ctxlog.FromContext(ctx)
	warnUnknownKeys(ctx, store)

	for _, section := range []string{"data", "crosscal", "slurm"} {
		if !store.HasSection(section) {
			return nil, &configstore.MissingKeyError{Section: section}
		}
	}

	cfg := &Config{store: store}
	var err error

	if cfg.Vis, err = store.GetString("data", "vis"); err != nil {
		return nil, err
	}
	if cfg.SPW, err = store.GetString("crosscal", "spw"); err != nil {
		return nil, err
	}
	if cfg.NSPW, err = store.GetInt("crosscal", "nspw"); err != nil {
		return nil, err
	}
	if cfg.Nodes, err = store.GetInt("slurm", "nodes"); err != nil {
		return nil, err
	}
	if cfg.TasksPerNode, err = store.GetInt("slurm", "ntasks_per_node"); err != nil {
		return nil, err
	}
	if cfg.MemGB, err = store.GetInt("slurm", "mem"); err != nil {
		return nil, err
	}

	badSpecs, err := stringListOr(store, "crosscal", "badfreqranges", nil)
	if err != nil {
		return nil, err
	}
	if cfg.BadFreqRanges, err = freq.ParseRanges(badSpecs); err != nil {
		return nil, &configstore.FormatError{Section: "crosscal", Key: "badfreqranges", Detail: err.Error()}
	}

	if cfg.CalcRefant, err = boolOr(store, "crosscal", "calcrefant", false); err != nil {
		return nil, err
	}
	if cfg.CreateMMS, err = boolOr(store, "crosscal", "createmms", true); err != nil {
		return nil, err
	}
	if cfg.KeepMMS, err = boolOr(store, "crosscal", "keepmms", true); err != nil {
		return nil, err
	}

	if cfg.Partition, err = stringOr(store, "slurm", "partition", "Main"); err != nil {
		return nil, err
	}
	if cfg.Account, err = stringOr(store, "slurm", "account", KnownAccounts[0]); err != nil {
		return nil, err
	}
	if cfg.Reservation, err = stringOr(store, "slurm", "reservation", ""); err != nil {
		return nil, err
	}
	if cfg.Modules, err = stringListOr(store, "slurm", "modules", nil); err != nil {
		return nil, err
	}
	if cfg.Dependency, err = stringOr(store, "slurm", "dependencies", ""); err != nil {
		return nil, err
	}
	if cfg.Container, err = stringOr(store, "slurm", "container", ""); err != nil {
		return nil, err
	}
	if cfg.MPIWrapper, err = stringOr(store, "slurm", "mpi_wrapper", "mpirun"); err != nil {
		return nil, err
	}

	if cfg.SelfCalStart, err = intOr(store, "selfcal", "loop", 0); err != nil {
		return nil, err
	}
	if cfg.SelfCalLoops, err = intOr(store, "selfcal", "nloops", 2); err != nil {
		return nil, err
	}
	if cfg.OutlierThreshold, err = floatOr(store, "selfcal", "outlier_threshold", 0); err != nil {
		return nil, err
	}
	if cfg.OutlierRadius, err = floatOr(store, "selfcal", "outlier_radius", 0); err != nil {
		return nil, err
	}

	if cfg.DoPol, err = boolOr(store, "run", "dopol", false); err != nil {
		return nil, err
	}
	if cfg.Timestamp, err = stringOr(store, "run", "timestamp", ""); err != nil {
		return nil, err
	}

	if cfg.Core, err = loadStages(store, "scripts", cfg.Container, GroupCore); err != nil {
		return nil, err
	}
	if cfg.Precal, err = loadStages(store, "precal_scripts", cfg.Container, GroupPrecal); err != nil {
		return nil, err
	}
	if cfg.Postcal, err = loadStages(store, "postcal_scripts", cfg.Container, GroupPostcal); err != nil {
		return nil, err
	}

	logger.Debug("Run configuration loaded.",
		"vis", cfg.Vis, "nspw", cfg.NSPW,
		"core_stages", len(cfg.Core),
		"precal_stages", len(cfg.Precal),
		"postcal_stages", len(cfg.Postcal))
	return cfg, nil
}

// loadStages decodes one configured stage list. Entries are objects of the
// form { name = "...", threadsafe = true, container = "" }.
func loadStages(store *configstore.Store, key, defaultContainer string, group Group) ([]Stage, error) {
	v, err := store.Get("slurm", key)
	if err != nil {
		var missing *configstore.MissingKeyError
		if key != "scripts" && errors.As(err, &missing) {
			return nil, nil
		}
		return nil, err
	}
	if v.IsNull() || !v.CanIterateElements() {
		return nil, &configstore.FormatError{Section: "slurm", Key: key, Detail: "expected a list of stage objects"}
	}

	var stages []Stage
	for it := v.ElementIterator(); it.Next(); {
		_, ev := it.Element()
		script, err := objString(ev, "name", "")
		if err != nil || script == "" {
			return nil, &configstore.FormatError{Section: "slurm", Key: key, Detail: "stage entry needs a non-empty name"}
		}
		threadSafe, err := objBool(ev, "threadsafe", false)
		if err != nil {
			return nil, &configstore.FormatError{Section: "slurm", Key: key, Detail: err.Error()}
		}
		container, err := objString(ev, "container", "")
		if err != nil {
			return nil, &configstore.FormatError{Section: "slurm", Key: key, Detail: err.Error()}
		}
		stages = append(stages, NewStage(script, threadSafe, container, defaultContainer, group))
	}
	return stages, nil
}

var reservationPattern = regexp.MustCompile(`^[A-Za-z0-9._-]*$`)

// Validate enforces the cluster resource ceilings and account policy.
// Fatal: planning must not write anything once validation fails.
func (c *Config) Validate() error {
	if c.Nodes < 1 || c.Nodes > TotalNodesLimit {
		return validationErrorf("nodes must be between 1 and %d, got %d", TotalNodesLimit, c.Nodes)
	}
	if c.TasksPerNode < 1 || c.TasksPerNode > TasksPerNodeLimit {
		return validationErrorf("ntasks_per_node must be between 1 and %d, got %d", TasksPerNodeLimit, c.TasksPerNode)
	}
	memLimit := MemPerNodeGBLimit
	if c.Partition == HighMemPartition {
		memLimit = MemPerNodeGBLimitHighMem
	}
	if c.MemGB < 1 || c.MemGB > memLimit {
		return validationErrorf("mem must be between 1 and %d GB for partition %q, got %d", memLimit, c.Partition, c.MemGB)
	}
	if !slices.Contains(KnownAccounts, c.Account) {
		return validationErrorf("unrecognized account %q; known accounts: %v", c.Account, KnownAccounts)
	}
	if !reservationPattern.MatchString(c.Reservation) {
		return validationErrorf("malformed reservation %q", c.Reservation)
	}
	if c.NSPW < 1 {
		return validationErrorf("nspw must be at least 1, got %d", c.NSPW)
	}
	if len(c.Core) == 0 {
		return validationErrorf("no core stages configured in slurm.scripts")
	}
	if HasKind(c.Core, KindSelfCalApply) && c.SelfCalStart >= c.SelfCalLoops {
		return validationErrorf("selfcal.loop (%d) must be below selfcal.nloops (%d)",
			c.SelfCalStart, c.SelfCalLoops)
	}
	if c.OutlierThreshold < 0 || c.OutlierRadius < 0 {
		return validationErrorf("selfcal outlier parameters must not be negative, got threshold %g radius %g",
			c.OutlierThreshold, c.OutlierRadius)
	}
	return nil
}

// SetResolvedNSPW records the partition count that survived pruning. The
// caller persists with Save once all partition directories exist.
func (c *Config) SetResolvedNSPW(n int) {
	c.NSPW = n
	c.store.Set("crosscal", "nspw", cty.NumberIntVal(int64(n)))
}

// SetTimestamp records the run timestamp used to suffix ancillary scripts.
func (c *Config) SetTimestamp(ts string) {
	c.Timestamp = ts
	c.store.Set("run", "timestamp", cty.StringVal(ts))
}

// Store exposes the backing store, for partition materialization.
func (c *Config) Store() *configstore.Store { return c.store }

// Save persists the config back to its file. Called only at defined
// checkpoints: after partition materialization and at end of planning.
func (c *Config) Save() error { return c.store.Save() }

func warnUnknownKeys(ctx context.Context, store *configstore.Store) {
	logger := ctxlog.FromContext(ctx)
	for _, section := range store.Sections() {
		known, recognized := knownKeys[section]
		if !recognized {
			logger.Warn("Unrecognized config section.", "section", section)
			continue
		}
		for _, key := range store.Keys(section) {
			if !slices.Contains(known, key) {
				logger.Warn("Unrecognized config key.", "section", section, "key", key)
			}
		}
	}
}

// Optional-key helpers: a missing key yields the default, any other failure
// propagates.

func stringOr(store *configstore.Store, section, key, def string) (string, error) {
	v, err := store.GetString(section, key)
	return orDefault(v, def, err)
}

func intOr(store *configstore.Store, section, key string, def int) (int, error) {
	v, err := store.GetInt(section, key)
	return orDefault(v, def, err)
}

func floatOr(store *configstore.Store, section, key string, def float64) (float64, error) {
	v, err := store.GetFloat(section, key)
	return orDefault(v, def, err)
}

func boolOr(store *configstore.Store, section, key string, def bool) (bool, error) {
	v, err := store.GetBool(section, key)
	return orDefault(v, def, err)
}

func stringListOr(store *configstore.Store, section, key string, def []string) ([]string, error) {
	v, err := store.GetStringList(section, key)
	return orDefault(v, def, err)
}

func orDefault[T any](v T, def T, err error) (T, error) {
	if err == nil {
		return v, nil
	}
	var missing *configstore.MissingKeyError
	if errors.As(err, &missing) {
		return def, nil
	}
	return v, err
}

// objString reads a string attribute from a cty object value.
func objString(obj cty.Value, attr, def string) (string, error) {
	return objAttr(obj, attr, def, cty.String)
}

// objBool reads a bool attribute from a cty object value.
func objBool(obj cty.Value, attr string, def bool) (bool, error) {
	return objAttr(obj, attr, def, cty.Bool)
}

func objAttr[T any](obj cty.Value, attr string, def T, want cty.Type) (T, error) {
	if !obj.Type().IsObjectType() || !obj.Type().HasAttribute(attr) {
		return def, nil
	}
	cv, err := convert.Convert(obj.GetAttr(attr), want)
	if err != nil {
		return def, err
	}
	var out T
	if err := gocty.FromCtyValue(cv, &out); err != nil {
		return def, err
	}
	return out, nil
}
