package app

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/bandplan/internal/configstore"
	"github.com/vk/bandplan/internal/pipeline"
)

const runConfig = `
data {
  vis = "%s"
}

crosscal {
  spw  = "*:900~1670MHz"
  nspw = %d
}

slurm {
  nodes           = 4
  ntasks_per_node = 8
  mem             = 96
  precal_scripts  = [
    { name = "partition.py", threadsafe = true, container = "" },
  ]
  scripts = [
    { name = "validate_input.py", threadsafe = false, container = "" },
    { name = "flag_round_1.py", threadsafe = true, container = "" },
  ]
  postcal_scripts = [
    { name = "concat.py", threadsafe = false, container = "" },
  ]
  container = "/idia/software/casa.simg"
}
`

func newTestApp(t *testing.T, cfg *Config) (*App, *bytes.Buffer) {
	t.Helper()
	var out bytes.Buffer
	return NewApp(&out, os.Stderr, cfg), &out
}

func writeRunConfig(t *testing.T, dir string, nspw int) string {
	t.Helper()
	vis := filepath.Join(dir, "obs.ms")
	require.NoError(t, os.Mkdir(vis, 0o755))

	path := filepath.Join(dir, "myconfig.hcl")
	require.NoError(t, os.WriteFile(path, []byte(fmt.Sprintf(runConfig, vis, nspw)), 0o644))
	return path
}

func TestRunPlansWithoutSubmitting(t *testing.T) {
	dir := t.TempDir()
	path := writeRunConfig(t, dir, 3)

	cfg, err := NewConfig(Config{ConfigPath: path, LogLevel: "error"})
	require.NoError(t, err)
	a, _ := newTestApp(t, cfg)

	require.NoError(t, a.Run(context.Background(), cfg))

	t.Run("master script written", func(t *testing.T) {
		contents, err := os.ReadFile(filepath.Join(dir, pipeline.MasterScript))
		require.NoError(t, err)
		assert.Contains(t, string(contents), "#!/bin/bash")
		assert.Contains(t, string(contents), "bandplan run --config .config.tmp --submit --quiet")
	})

	t.Run("config copy carries the resolved partition count", func(t *testing.T) {
		store, err := configstore.Load(filepath.Join(dir, pipeline.TmpConfigName))
		require.NoError(t, err)
		nspw, err := store.GetInt("crosscal", "nspw")
		require.NoError(t, err)
		assert.Equal(t, 3, nspw)

		ts, err := store.GetString("run", "timestamp")
		require.NoError(t, err)
		assert.NotEmpty(t, ts)
	})

	t.Run("partition directories materialized", func(t *testing.T) {
		entries, err := os.ReadDir(dir)
		require.NoError(t, err)
		var partDirs int
		for _, e := range entries {
			if e.IsDir() && strings.HasSuffix(e.Name(), "MHz") {
				partDirs++
				assert.FileExists(t, filepath.Join(dir, e.Name(), pipeline.TmpConfigName))
			}
		}
		assert.Equal(t, 3, partDirs)
	})

	t.Run("descriptors for precal and postcal only", func(t *testing.T) {
		assert.FileExists(t, filepath.Join(dir, "partition.sbatch"))
		assert.FileExists(t, filepath.Join(dir, "concat.sbatch"))
		assert.NoFileExists(t, filepath.Join(dir, "flag_round_1.sbatch"))
	})

	t.Run("user's config stays untouched", func(t *testing.T) {
		store, err := configstore.Load(path)
		require.NoError(t, err)
		nspw, err := store.GetInt("crosscal", "nspw")
		require.NoError(t, err)
		assert.Equal(t, 3, nspw)
		assert.False(t, store.HasSection("run"))
	})
}

func TestRunLinear(t *testing.T) {
	dir := t.TempDir()
	path := writeRunConfig(t, dir, 1)

	cfg, err := NewConfig(Config{ConfigPath: path, LogLevel: "error"})
	require.NoError(t, err)
	a, _ := newTestApp(t, cfg)

	require.NoError(t, a.Run(context.Background(), cfg))

	contents, err := os.ReadFile(filepath.Join(dir, pipeline.MasterScript))
	require.NoError(t, err)
	assert.NotContains(t, string(contents), "bandplan run",
		"a single-partition run has no nested invocations")
	assert.FileExists(t, filepath.Join(dir, "flag_round_1.sbatch"))
}

func TestRunValidationAbortsBeforeWriting(t *testing.T) {
	dir := t.TempDir()
	path := writeRunConfig(t, dir, 3)

	// Corrupt the config with an over-limit node count.
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	src := strings.Replace(string(raw), "nodes           = 4", "nodes = 64", 1)
	require.NoError(t, os.WriteFile(path, []byte(src), 0o644))

	cfg, err := NewConfig(Config{ConfigPath: path, LogLevel: "error"})
	require.NoError(t, err)
	a, _ := newTestApp(t, cfg)

	err = a.Run(context.Background(), cfg)
	require.Error(t, err)
	var verr *pipeline.ValidationError
	assert.ErrorAs(t, err, &verr)

	assert.NoFileExists(t, filepath.Join(dir, pipeline.MasterScript))
	assert.NoFileExists(t, filepath.Join(dir, pipeline.TmpConfigName))
}

func TestNewConfigRequiresPath(t *testing.T) {
	_, err := NewConfig(Config{})
	assert.Error(t, err)
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, parseLevel("warn"))
	assert.Equal(t, slog.LevelError, parseLevel("error"))
	assert.Equal(t, slog.LevelInfo, parseLevel("info"))
	assert.Equal(t, slog.LevelInfo, parseLevel("chatty"))
}

func TestBuild(t *testing.T) {
	dir := t.TempDir()
	vis := filepath.Join(dir, "obs.ms")
	require.NoError(t, os.Mkdir(vis, 0o755))

	cfg, err := NewConfig(Config{ConfigPath: "unused", LogLevel: "error"})
	require.NoError(t, err)
	a, _ := newTestApp(t, cfg)

	opts := DefaultBuildOptions()
	opts.Path = filepath.Join(dir, "default_config.hcl")
	opts.Vis = vis
	require.NoError(t, a.Build(context.Background(), opts))

	store, err := configstore.Load(opts.Path)
	require.NoError(t, err)
	pcfg, err := pipeline.Load(context.Background(), store)
	require.NoError(t, err)
	require.NoError(t, pcfg.Validate())

	assert.Equal(t, vis, pcfg.Vis)
	assert.Equal(t, 16, pcfg.NSPW)
	assert.Equal(t, 15, pcfg.Nodes)
	assert.Len(t, pcfg.Core, 9)
	assert.Len(t, pcfg.Precal, 2)
	assert.Len(t, pcfg.Postcal, 1)
	assert.True(t, pipeline.HasKind(pcfg.Precal, pipeline.KindPartition))
}

func TestBuildRejectsMissingMeasurementSet(t *testing.T) {
	cfg, err := NewConfig(Config{ConfigPath: "unused", LogLevel: "error"})
	require.NoError(t, err)
	a, _ := newTestApp(t, cfg)

	opts := DefaultBuildOptions()
	opts.Path = filepath.Join(t.TempDir(), "default_config.hcl")
	opts.Vis = "/no/such/obs.ms"
	assert.Error(t, a.Build(context.Background(), opts))
}
