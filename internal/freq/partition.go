package freq

import (
	"context"
	"math"

	"github.com/vk/bandplan/internal/ctxlog"
)

// Partition is one independent working slice of the frequency range. Once a
// working directory holding a config copy exists for it, the partition is
// never mutated.
type Partition struct {
	Index int
	Range Range
	// Spec is the spw spec this partition's pipeline run will use, in the
	// parent spec's selector syntax.
	Spec string
	// Dir is the working directory name, derived from the range.
	Dir string
}

// Split divides a spectral window spec into count partitions and prunes the
// ones fully covered by a bad frequency range. It returns the surviving
// partitions and the resolved count.
//
// Anomalies never abort planning: an explicit list whose length disagrees
// with count redefines count to the list length; a spec matching neither
// shape disables partitioning (resolved count 1, no partitions). Both are
// logged as warnings.
func Split(ctx context.Context, rawSpec string, count int, bad []Range) ([]Partition, int) {
	logger := ctxlog.FromContext(ctx)

	spec, err := ParseSpec(rawSpec)
	if err != nil {
		logger.Warn("Malformed spectral window spec; disabling partitioning.",
			"spw", rawSpec, "error", err)
		return nil, 1
	}

	var ranges []Range
	if spec.List {
		ranges = spec.Ranges
		if len(ranges) != count {
			logger.Warn("Partition count disagrees with explicit spw list; using list length.",
				"nspw", count, "list_length", len(ranges))
			count = len(ranges)
		}
	} else {
		ranges = interpolate(spec.Ranges[0], count)
	}

	parts := make([]Partition, 0, len(ranges))
	for _, r := range ranges {
		if covered, badRange := pruned(r, bad); covered {
			logger.Warn("Dropping sub-band fully covered by bad frequency range.",
				"subband", r.String(), "bad_range", badRange.String())
			continue
		}
		parts = append(parts, Partition{
			Index: len(parts),
			Range: r,
			Spec:  spec.FormatRange(r),
			Dir:   r.String(),
		})
	}

	if len(parts) != count {
		logger.Info("Resolved partition count after pruning.",
			"requested", count, "resolved", len(parts))
	}
	return parts, len(parts)
}

// interpolate splits a single contiguous range into count equal-width
// sub-ranges. Boundaries are linearly interpolated; the last sub-range
// closes at the original high bound. Unitless channel ranges with whole
// bounds stay on whole channel numbers.
func interpolate(r Range, count int) []Range {
	if count <= 1 {
		return []Range{r}
	}

	asChannels := r.Unit == "" && r.integral()
	bounds := make([]float64, count+1)
	for i := 0; i <= count; i++ {
		b := r.Low + r.Width()*float64(i)/float64(count)
		if asChannels {
			b = math.Round(b)
		}
		bounds[i] = b
	}
	bounds[0] = r.Low
	bounds[count] = r.High

	out := make([]Range, count)
	for i := 0; i < count; i++ {
		out[i] = Range{Low: bounds[i], High: bounds[i+1], Unit: r.Unit}
	}
	return out
}

func pruned(r Range, bad []Range) (bool, Range) {
	for _, b := range bad {
		if r.ContainedIn(b) {
			return true, b
		}
	}
	return false, Range{}
}
