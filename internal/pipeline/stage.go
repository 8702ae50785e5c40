// Package pipeline holds the domain model of a planned run: the stage
// catalog, the run configuration, and the cluster resource limits.
package pipeline

import "strings"

// Group identifies when a stage executes relative to the partition fan-out.
type Group int

const (
	// GroupPrecal stages run once, before the partition fan-out.
	GroupPrecal Group = iota
	// GroupCore stages run once per partition.
	GroupCore
	// GroupPostcal stages run once, after all partition chains finish.
	GroupPostcal
)

func (g Group) String() string {
	switch g {
	case GroupPrecal:
		return "precal"
	case GroupCore:
		return "core"
	case GroupPostcal:
		return "postcal"
	}
	return "unknown"
}

// StageKind is a closed enumeration of the stage roles the planner treats
// specially. It is assigned once when the catalog is built from config, so
// downstream logic dispatches on the tag rather than re-matching names.
type StageKind int

const (
	// KindGeneric is any stage without special planning behavior.
	KindGeneric StageKind = iota
	// KindPartition materializes per-sub-band working data; it becomes an
	// array job when the run is partitioned.
	KindPartition
	// KindCalcRefant computes the reference antenna; when present in both
	// precal and core lists, the core occurrence wins.
	KindCalcRefant
	// KindImaging is an image-synthesis stage.
	KindImaging
	// KindSelfCalApply applies the current sky model (first half of the
	// self-calibration pair).
	KindSelfCalApply
	// KindSelfCalReimage re-images against the applied model (second half
	// of the self-calibration pair).
	KindSelfCalReimage
)

// kindPatterns maps script-name substrings to kinds, checked in order.
var kindPatterns = []struct {
	substr string
	kind   StageKind
}{
	{"selfcal_part1", KindSelfCalApply},
	{"selfcal_part2", KindSelfCalReimage},
	{"calc_refant", KindCalcRefant},
	{"partition", KindPartition},
	{"tclean", KindImaging},
	{"science_image", KindImaging},
	{"image", KindImaging},
}

// KindOf classifies a stage by its script name. Called exactly once per
// stage during catalog construction.
func KindOf(script string) StageKind {
	name := strings.ToLower(script)
	for _, p := range kindPatterns {
		if strings.Contains(name, p.substr) {
			return p.kind
		}
	}
	return KindGeneric
}

// Stage is one named unit of work: a script invocation inside a container,
// with a thread-safety flag deciding whether it runs under the MPI wrapper.
// Identity is by name; order within a group is significant and preserved.
type Stage struct {
	Name       string
	Script     string
	ThreadSafe bool
	Container  string
	Group      Group
	Kind       StageKind
}

// stageName strips the directory and extension from a script path.
func stageName(script string) string {
	name := script
	if i := strings.LastIndexByte(name, '/'); i >= 0 {
		name = name[i+1:]
	}
	if i := strings.LastIndexByte(name, '.'); i > 0 {
		name = name[:i]
	}
	return name
}

// NewStage builds a catalog entry from one configured stage list element.
// An empty container falls back to the run's default container.
func NewStage(script string, threadSafe bool, container, defaultContainer string, group Group) Stage {
	if container == "" {
		container = defaultContainer
	}
	return Stage{
		Name:       stageName(script),
		Script:     script,
		ThreadSafe: threadSafe,
		Container:  container,
		Group:      group,
		Kind:       KindOf(script),
	}
}

// HasKind reports whether any stage in the list carries the given kind.
func HasKind(stages []Stage, kind StageKind) bool {
	for _, s := range stages {
		if s.Kind == kind {
			return true
		}
	}
	return false
}
