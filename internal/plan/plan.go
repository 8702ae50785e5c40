// Package plan turns a stage catalog and a set of frequency partitions into
// an ordered execution plan: which stages run where, with what resource
// request, waiting on which predecessors.
package plan

import (
	"strings"

	"github.com/vk/bandplan/internal/freq"
	"github.com/vk/bandplan/internal/pipeline"
)

// DependencyKind selects the scheduler completion state a dependency waits
// for.
type DependencyKind int

const (
	// AfterOK requires every referenced job to have succeeded.
	AfterOK DependencyKind = iota
	// AfterAny requires every referenced job to have finished, regardless
	// of outcome. Used for the postcal join so aggregation still runs when
	// a partition chain failed.
	AfterAny
)

func (k DependencyKind) String() string {
	if k == AfterAny {
		return "afterany"
	}
	return "afterok"
}

// DependencyExpression ties a job's eligibility to previously captured job
// identifiers. It may only reference identifiers captured strictly earlier
// in the emission order, which keeps the resulting graph acyclic by
// construction.
type DependencyExpression struct {
	Kind DependencyKind
	IDs  []string
	// Raw, when set, is an externally supplied scheduler expression used
	// verbatim (the dependency prefix threaded into nested invocations).
	Raw string
}

// Empty reports whether the expression constrains nothing.
func (d DependencyExpression) Empty() bool { return len(d.IDs) == 0 && d.Raw == "" }

// SchedulerArg renders the expression in the scheduler's dependency syntax
// (colon-joined).
func (d DependencyExpression) SchedulerArg() string {
	if d.Raw != "" {
		return d.Raw
	}
	if d.Empty() {
		return ""
	}
	return d.Kind.String() + ":" + strings.Join(d.IDs, ":")
}

// Display renders the referenced identifiers for user-facing output
// (comma-joined), or the raw expression when no identifiers are captured.
func (d DependencyExpression) Display() string {
	if len(d.IDs) == 0 {
		return d.Raw
	}
	return strings.Join(d.IDs, ",")
}

// ResourceRequest is the derived scheduler resource claim for one stage.
type ResourceRequest struct {
	Nodes        int
	TasksPerNode int
	CPUsPerTask  int
	MemGB        int
	// ArrayTasks is the number of array tasks (one per partition) when the
	// stage fans out; zero otherwise.
	ArrayTasks int
	// ArrayCap limits how many array tasks run concurrently.
	ArrayCap int
}

// PlannedStage is a catalog stage annotated with its resource request and
// fan-out role.
type PlannedStage struct {
	pipeline.Stage
	Resources ResourceRequest
	// FanOut marks the stage that splits the working data; it is submitted
	// as an array job with one task per partition, and each partition chain
	// depends on its own array task.
	FanOut bool
}

// ExecutionPlan is the ordered outcome of graph building. When Collapsed,
// the whole run is a single linear chain held in Core and Partitions is
// empty; otherwise Precal runs once, Core runs per partition (via nested
// planner invocations against each partition's config copy), and Postcal
// joins on every partition chain.
type ExecutionPlan struct {
	Precal     []PlannedStage
	Core       []PlannedStage
	Postcal    []PlannedStage
	Partitions []freq.Partition
	Collapsed  bool
}

// JobDescriptor is one submission the emitter performs: a command, the
// dependency expression gating it, and the variable capturing the assigned
// job identifier. Consumed once; not persisted beyond the master script.
type JobDescriptor struct {
	StageName  string
	Command    string
	Resources  ResourceRequest
	Dependency DependencyExpression
	CaptureVar string
	// Nested marks a whole partition chain submitted through a nested
	// planner invocation rather than a direct scheduler call; the captured
	// identifier is the chain's final job.
	Nested bool
}
