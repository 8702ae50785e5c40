package plan

import "github.com/vk/bandplan/internal/pipeline"

// cpuBoundKinds are the stages that saturate a node's CPU budget and get
// their cpus-per-task raised from the default of 1.
func cpuBound(kind pipeline.StageKind) bool {
	switch kind {
	case pipeline.KindImaging, pipeline.KindSelfCalApply, pipeline.KindSelfCalReimage, pipeline.KindPartition:
		return true
	}
	return false
}

// resourceRequest derives the scheduler resource claim for one stage. All
// inputs are clamped or derived, never rejected; validation of user-facing
// limits happens before planning starts.
func resourceRequest(stage pipeline.Stage, cfg *pipeline.Config, partitionCount int) ResourceRequest {
	req := ResourceRequest{
		Nodes:        cfg.Nodes,
		TasksPerNode: cfg.TasksPerNode,
		CPUsPerTask:  1,
		MemGB:        cfg.MemGB,
	}

	// Non-threadsafe stages run the engine serially on a single node.
	if !stage.ThreadSafe {
		req.Nodes = 1
		req.TasksPerNode = 1
	}

	if cpuBound(stage.Kind) {
		req.CPUsPerTask = pipeline.CPUsPerNodeLimit / req.TasksPerNode
		if req.CPUsPerTask < 1 {
			req.CPUsPerTask = 1
		}
	}

	// The repartitioning stage has a fixed internal fan-out: 4-way with
	// polarization processing, 2-way without.
	if stage.Kind == pipeline.KindPartition {
		if cfg.DoPol && 4*req.TasksPerNode < pipeline.CPUsPerNodeLimit {
			req.CPUsPerTask = 4
		} else if !cfg.DoPol && req.CPUsPerTask > 2 {
			req.CPUsPerTask = 2
		}
	}

	// A stage claiming the full per-node CPU budget may as well claim the
	// full per-node memory.
	if req.CPUsPerTask*req.TasksPerNode == pipeline.CPUsPerNodeLimit {
		if cfg.Partition == pipeline.HighMemPartition {
			req.MemGB = pipeline.MemPerNodeGBLimitHighMem
		} else {
			req.MemGB = pipeline.MemPerNodeGBLimit
		}
	}

	if stage.Kind == pipeline.KindPartition && partitionCount > 1 {
		req.ArrayTasks = partitionCount
		req.ArrayCap = pipeline.ArrayCPULimit / (req.Nodes * req.TasksPerNode * req.CPUsPerTask)
		if req.ArrayCap > partitionCount {
			req.ArrayCap = partitionCount
		}
		if req.ArrayCap < 1 {
			req.ArrayCap = 1
		}
	}

	return req
}
