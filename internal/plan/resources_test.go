package plan

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/vk/bandplan/internal/pipeline"
)

func resourceFixture(nodes, tasks, mem int, partition string, dopol bool) *pipeline.Config {
	return &pipeline.Config{
		Nodes:        nodes,
		TasksPerNode: tasks,
		MemGB:        mem,
		Partition:    partition,
		DoPol:        dopol,
	}
}

func mkStage(script string, threadSafe bool) pipeline.Stage {
	return pipeline.NewStage(script, threadSafe, "", "", pipeline.GroupCore)
}

func TestResourceRequestDefaults(t *testing.T) {
	cfg := resourceFixture(8, 16, 96, "Main", false)

	t.Run("generic threadsafe stage", func(t *testing.T) {
		req := resourceRequest(mkStage("flag_round_1.py", true), cfg, 1)
		assert.Equal(t, 8, req.Nodes)
		assert.Equal(t, 16, req.TasksPerNode)
		assert.Equal(t, 1, req.CPUsPerTask)
		assert.Equal(t, 96, req.MemGB)
		assert.Zero(t, req.ArrayTasks)
	})

	t.Run("non-threadsafe stage collapses to one task", func(t *testing.T) {
		req := resourceRequest(mkStage("validate_input.py", false), cfg, 1)
		assert.Equal(t, 1, req.Nodes)
		assert.Equal(t, 1, req.TasksPerNode)
	})
}

func TestResourceRequestCPUBound(t *testing.T) {
	cfg := resourceFixture(8, 16, 96, "Main", false)

	req := resourceRequest(mkStage("quick_tclean.py", true), cfg, 1)
	assert.Equal(t, 2, req.CPUsPerTask)
	assert.LessOrEqual(t, req.CPUsPerTask*req.TasksPerNode, pipeline.CPUsPerNodeLimit)

	t.Run("full cpu claim takes full node memory", func(t *testing.T) {
		assert.Equal(t, pipeline.MemPerNodeGBLimit, req.MemGB)
	})

	t.Run("high mem partition", func(t *testing.T) {
		highCfg := resourceFixture(8, 16, 96, pipeline.HighMemPartition, false)
		req := resourceRequest(mkStage("quick_tclean.py", true), highCfg, 1)
		assert.Equal(t, pipeline.MemPerNodeGBLimitHighMem, req.MemGB)
	})

	t.Run("cpu product never exceeds the node budget", func(t *testing.T) {
		for _, tasks := range []int{1, 2, 7, 16, 32} {
			cfg := resourceFixture(4, tasks, 64, "Main", false)
			req := resourceRequest(mkStage("science_image.py", true), cfg, 1)
			assert.LessOrEqual(t, req.CPUsPerTask*req.TasksPerNode, pipeline.CPUsPerNodeLimit,
				"tasks=%d", tasks)
		}
	})
}

func TestResourceRequestPartitionStage(t *testing.T) {
	t.Run("without polarization the fan-out is two-way", func(t *testing.T) {
		cfg := resourceFixture(8, 8, 96, "Main", false)
		req := resourceRequest(mkStage("partition.py", true), cfg, 1)
		assert.Equal(t, 2, req.CPUsPerTask)
	})

	t.Run("with polarization the fan-out is four-way when it fits", func(t *testing.T) {
		cfg := resourceFixture(8, 4, 96, "Main", true)
		req := resourceRequest(mkStage("partition.py", true), cfg, 1)
		assert.Equal(t, 4, req.CPUsPerTask)
	})

	t.Run("array shape for a partitioned run", func(t *testing.T) {
		cfg := resourceFixture(1, 8, 96, "Main", false)
		req := resourceRequest(mkStage("partition.py", true), cfg, 12)
		assert.Equal(t, 12, req.ArrayTasks)
		// 200 / (1*8*2) = 12.5 truncated to 12, clamped to the task count.
		assert.Equal(t, 12, req.ArrayCap)
	})

	t.Run("array cap respects the cluster cpu pool", func(t *testing.T) {
		cfg := resourceFixture(4, 16, 96, "Main", false)
		req := resourceRequest(mkStage("partition.py", true), cfg, 16)
		// 200 / (4*16*2) = 1; never below one.
		assert.Equal(t, 1, req.ArrayCap)
		assert.Equal(t, 16, req.ArrayTasks)
	})

	t.Run("single partition never becomes an array", func(t *testing.T) {
		cfg := resourceFixture(4, 16, 96, "Main", false)
		req := resourceRequest(mkStage("partition.py", true), cfg, 1)
		assert.Zero(t, req.ArrayTasks)
		assert.Zero(t, req.ArrayCap)
	})
}
