package pipeline

// Cluster-wide resource ceilings. These describe the target cluster's
// hardware and accounting policy; they are enforced during pre-planning
// validation and are not configurable beyond the provided override keys.
const (
	// TotalNodesLimit is the maximum node count a single job may request.
	TotalNodesLimit = 30
	// TasksPerNodeLimit is the maximum tasks per node.
	TasksPerNodeLimit = 32
	// CPUsPerNodeLimit is the per-node CPU budget shared between tasks.
	CPUsPerNodeLimit = 32
	// MemPerNodeGBLimit is the usable memory per standard node.
	MemPerNodeGBLimit = 230
	// MemPerNodeGBLimitHighMem is the usable memory per high-memory node.
	MemPerNodeGBLimitHighMem = 480
	// ArrayCPULimit caps the CPUs concurrently consumed by a whole job
	// array, across all its tasks.
	ArrayCPULimit = 200
)

// HighMemPartition is the scheduler partition whose nodes carry the
// high-memory limit.
const HighMemPartition = "HighMem"

// KnownAccounts are the cluster's recognized charge accounts.
var KnownAccounts = []string{"b03-idia-ag", "b05-pipelines-ag"}

// Well-known artifact names shared between planning and emission.
const (
	// MasterScript is the fixed name of the emitted submission script.
	MasterScript = "submit_pipeline.sh"
	// TmpConfigName is the config copy a run plans against, so edits to the
	// user's file mid-run have no effect.
	TmpConfigName = ".config.tmp"
	// LogDir receives per-job stdout/stderr/engine logs.
	LogDir = "logs"
	// JobScriptsDir receives the ancillary helper scripts.
	JobScriptsDir = "jobScripts"
	// SbatchExt is the extension of per-stage submission descriptors.
	SbatchExt = ".sbatch"
)
