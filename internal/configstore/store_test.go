package configstore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"
)

const sampleConfig = `
data {
  vis = "/scratch/obs/1538856059.ms"
}

crosscal {
  spw        = "*:880~1680MHz"
  nspw       = 16
  calcrefant = false
}

slurm {
  nodes   = 8
  mem     = 96
  modules = ["openmpi/4.0.3"]
}
`

func mustParse(t *testing.T, src string) *Store {
	t.Helper()
	s, err := Parse([]byte(src), "test.hcl")
	require.NoError(t, err)
	return s
}

func TestParseAndGet(t *testing.T) {
	s := mustParse(t, sampleConfig)

	assert.Equal(t, []string{"crosscal", "data", "slurm"}, s.Sections())
	assert.True(t, s.HasSection("crosscal"))
	assert.False(t, s.HasSection("selfcal"))

	vis, err := s.GetString("data", "vis")
	require.NoError(t, err)
	assert.Equal(t, "/scratch/obs/1538856059.ms", vis)

	nspw, err := s.GetInt("crosscal", "nspw")
	require.NoError(t, err)
	assert.Equal(t, 16, nspw)

	calcrefant, err := s.GetBool("crosscal", "calcrefant")
	require.NoError(t, err)
	assert.False(t, calcrefant)

	modules, err := s.GetStringList("slurm", "modules")
	require.NoError(t, err)
	assert.Equal(t, []string{"openmpi/4.0.3"}, modules)
}

func TestGetMissing(t *testing.T) {
	s := mustParse(t, sampleConfig)

	t.Run("missing section", func(t *testing.T) {
		_, err := s.Get("selfcal", "loop")
		var missing *MissingKeyError
		require.ErrorAs(t, err, &missing)
		assert.Equal(t, "selfcal", missing.Section)
		assert.Empty(t, missing.Key)
	})

	t.Run("missing key", func(t *testing.T) {
		_, err := s.Get("crosscal", "badfreqranges")
		var missing *MissingKeyError
		require.ErrorAs(t, err, &missing)
		assert.Equal(t, "crosscal", missing.Section)
		assert.Equal(t, "badfreqranges", missing.Key)
	})
}

func TestGetWrongType(t *testing.T) {
	s := mustParse(t, sampleConfig)

	_, err := s.GetInt("data", "vis")
	var format *FormatError
	require.ErrorAs(t, err, &format)
	assert.Equal(t, "data", format.Section)
}

func TestSet(t *testing.T) {
	s := mustParse(t, sampleConfig)

	t.Run("overwrite existing key", func(t *testing.T) {
		s.Set("crosscal", "nspw", cty.NumberIntVal(3))
		nspw, err := s.GetInt("crosscal", "nspw")
		require.NoError(t, err)
		assert.Equal(t, 3, nspw)
	})

	t.Run("new key in existing section", func(t *testing.T) {
		s.Set("crosscal", "createmms", cty.True)
		v, err := s.GetBool("crosscal", "createmms")
		require.NoError(t, err)
		assert.True(t, v)
	})

	t.Run("new section", func(t *testing.T) {
		s.Set("run", "timestamp", cty.StringVal("2026-08-29-12-00-00"))
		require.True(t, s.HasSection("run"))
		ts, err := s.GetString("run", "timestamp")
		require.NoError(t, err)
		assert.Equal(t, "2026-08-29-12-00-00", ts)
	})

	t.Run("mutations survive re-parsing the rendered bytes", func(t *testing.T) {
		reloaded := mustParse(t, string(s.Bytes()))
		nspw, err := reloaded.GetInt("crosscal", "nspw")
		require.NoError(t, err)
		assert.Equal(t, 3, nspw)
		ts, err := reloaded.GetString("run", "timestamp")
		require.NoError(t, err)
		assert.Equal(t, "2026-08-29-12-00-00", ts)
	})
}

func TestRemoveSection(t *testing.T) {
	s := mustParse(t, sampleConfig)

	s.RemoveSection("crosscal")
	assert.False(t, s.HasSection("crosscal"))

	reloaded := mustParse(t, string(s.Bytes()))
	assert.False(t, reloaded.HasSection("crosscal"))

	// Removing a missing section is a no-op.
	s.RemoveSection("crosscal")
}

func TestCloneIsIndependent(t *testing.T) {
	s := mustParse(t, sampleConfig)

	clone, err := s.Clone("clone.hcl")
	require.NoError(t, err)

	clone.Set("crosscal", "nspw", cty.NumberIntVal(1))

	orig, err := s.GetInt("crosscal", "nspw")
	require.NoError(t, err)
	assert.Equal(t, 16, orig, "mutating a clone must not touch the parent")
}

func TestSaveAndLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.hcl")
	require.NoError(t, os.WriteFile(path, []byte(sampleConfig), 0o644))

	s, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, path, s.Path())

	s.Set("crosscal", "nspw", cty.NumberIntVal(4))
	require.NoError(t, s.Save())

	reloaded, err := Load(path)
	require.NoError(t, err)
	nspw, err := reloaded.GetInt("crosscal", "nspw")
	require.NoError(t, err)
	assert.Equal(t, 4, nspw)
}

func TestStringListValue(t *testing.T) {
	s := New("generated.hcl")
	s.Set("slurm", "modules", StringList(nil))
	s.Set("crosscal", "badfreqranges", StringList([]string{"933~960MHz"}))

	reloaded := mustParse(t, string(s.Bytes()))
	empty, err := reloaded.GetStringList("slurm", "modules")
	require.NoError(t, err)
	assert.Empty(t, empty)

	bad, err := reloaded.GetStringList("crosscal", "badfreqranges")
	require.NoError(t, err)
	assert.Equal(t, []string{"933~960MHz"}, bad)
}
