package freq

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRange(t *testing.T) {
	testCases := []struct {
		name  string
		input string
		want  Range
	}{
		{"mhz", "900~1670MHz", Range{Low: 900, High: 1670, Unit: "MHz"}},
		{"ghz", "0.9~1.67GHz", Range{Low: 0.9, High: 1.67, Unit: "GHz"}},
		{"channels", "0~4095", Range{Low: 0, High: 4095, Unit: ""}},
		{"fractional bounds", "1092.5~1285MHz", Range{Low: 1092.5, High: 1285, Unit: "MHz"}},
		{"surrounding space", " 880~960MHz ", Range{Low: 880, High: 960, Unit: "MHz"}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseRange(tc.input)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestParseRangeErrors(t *testing.T) {
	for _, input := range []string{"", "900MHz", "abc~def", "900~", "1670~900MHz", "900~900MHz"} {
		t.Run(input, func(t *testing.T) {
			_, err := ParseRange(input)
			assert.Error(t, err)
		})
	}
}

func TestRangeString(t *testing.T) {
	assert.Equal(t, "900~1670MHz", Range{Low: 900, High: 1670, Unit: "MHz"}.String())
	assert.Equal(t, "1092.5~1285MHz", Range{Low: 1092.5, High: 1285, Unit: "MHz"}.String())
	assert.Equal(t, "0~4095", Range{Low: 0, High: 4095}.String())
}

func TestContainedIn(t *testing.T) {
	bad := Range{Low: 1092.5, High: 1285, Unit: "MHz"}

	assert.True(t, Range{Low: 1092.5, High: 1285, Unit: "MHz"}.ContainedIn(bad),
		"boundary touches count as contained")
	assert.True(t, Range{Low: 1100, High: 1200, Unit: "MHz"}.ContainedIn(bad))
	assert.False(t, Range{Low: 1000, High: 1200, Unit: "MHz"}.ContainedIn(bad),
		"partial overlap is not containment")
	assert.False(t, Range{Low: 1.1, High: 1.2, Unit: "GHz"}.ContainedIn(bad),
		"non-canonical units are never pruned")
	assert.False(t, Range{Low: 1100, High: 1200}.ContainedIn(bad),
		"channel ranges are never pruned")
}

func TestParseSpec(t *testing.T) {
	t.Run("single range with selector", func(t *testing.T) {
		spec, err := ParseSpec("*:900~1670MHz")
		require.NoError(t, err)
		assert.Equal(t, "*", spec.Prefix)
		assert.False(t, spec.List)
		require.Len(t, spec.Ranges, 1)
		assert.Equal(t, Range{Low: 900, High: 1670, Unit: "MHz"}, spec.Ranges[0])
	})

	t.Run("explicit list", func(t *testing.T) {
		spec, err := ParseSpec("*:880~960MHz,*:960~1010MHz,*:1010~1100MHz")
		require.NoError(t, err)
		assert.True(t, spec.List)
		assert.Len(t, spec.Ranges, 3)
	})

	t.Run("no selector", func(t *testing.T) {
		spec, err := ParseSpec("0~4095")
		require.NoError(t, err)
		assert.Empty(t, spec.Prefix)
	})

	t.Run("empty", func(t *testing.T) {
		_, err := ParseSpec("")
		assert.Error(t, err)
	})
}

func TestSpecFormatRange(t *testing.T) {
	spec := Spec{Prefix: "*"}
	r := Range{Low: 900, High: 1092.5, Unit: "MHz"}
	assert.Equal(t, "*:900~1092.5MHz", spec.FormatRange(r))
	assert.Equal(t, "900~1092.5MHz", Spec{}.FormatRange(r))
}
