package remux

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	bmff "github.com/tetsuo/reel"
)

func fragmentTrack(timescale uint32, spec ...[3]int64) *Track {
	// spec entries are {dts, duration, sync(0/1)}.
	samples := make([]Sample, len(spec))
	var off int64
	for i, s := range spec {
		samples[i] = Sample{
			Offset:   off,
			Size:     100,
			Duration: uint32(s[1]),
			DTS:      s[0],
			Sync:     s[2] != 0,
		}
		off += 100
	}
	return &Track{TimeScale: timescale, Samples: samples}
}

func TestGenerateFragmentStopsAtNextKeyframeAfterThreshold(t *testing.T) {
	// timescale=10, minFragmentDuration=1s -> threshold=10 ticks.
	tr := fragmentTrack(10,
		[3]int64{0, 5, 1},
		[3]int64{5, 5, 0},
		[3]int64{10, 5, 0},
		[3]int64{15, 5, 1}, // elapsed=15 >= threshold=10, and sync -> fragment boundary
		[3]int64{20, 5, 0},
	)
	entries, ranges, total, next, _ := generateFragment(tr, 0, 0, nil, nil)
	require.Len(t, entries, 3)
	assert.Equal(t, 3, next)
	assert.Equal(t, int64(300), total)
	require.Len(t, ranges, 1)
	assert.Equal(t, int64(0), ranges[0].Start)
	assert.Equal(t, int64(300), ranges[0].End)
}

func TestGenerateFragmentStopsAtEndTime(t *testing.T) {
	tr := fragmentTrack(10,
		[3]int64{0, 5, 1},
		[3]int64{5, 5, 0},
		[3]int64{10, 5, 0},
		[3]int64{15, 5, 0},
	)
	// end time falls between sample 2's pts (10) and sample 3's (15).
	entries, _, _, next, _ := generateFragment(tr, 0, 12, nil, nil)
	require.Len(t, entries, 3)
	assert.Equal(t, 3, next)
}

func TestGenerateFragmentEmptyAtEndOfTrack(t *testing.T) {
	tr := fragmentTrack(10, [3]int64{0, 5, 1})
	entries, ranges, total, next, _ := generateFragment(tr, 1, 0, nil, nil)
	assert.Empty(t, entries)
	assert.Empty(t, ranges)
	assert.Equal(t, int64(0), total)
	assert.Equal(t, 1, next)
}

func TestGenerateFragmentMergesContiguousRanges(t *testing.T) {
	tr := fragmentTrack(10, [3]int64{0, 5, 1}, [3]int64{5, 5, 0})
	_, ranges, _, _, _ := generateFragment(tr, 0, 0, nil, nil)
	require.Len(t, ranges, 1)
	assert.Equal(t, int64(0), ranges[0].Start)
	assert.Equal(t, int64(200), ranges[0].End)
}

func TestGenerateFragmentSetsTrunVersionOnNegativeOffset(t *testing.T) {
	tr := fragmentTrack(10, [3]int64{0, 5, 1})
	tr.Samples[0].PresentationOffset = -5
	entries, _, _, _, version := generateFragment(tr, 0, 0, nil, nil)
	require.Len(t, entries, 1)
	assert.Equal(t, uint8(1), version)
	assert.Equal(t, int32(-5), entries[0].CompositionTimeOffset)
}

func TestGenerateFragmentReusesCapacity(t *testing.T) {
	tr := fragmentTrack(10, [3]int64{0, 5, 1}, [3]int64{5, 5, 1})
	buf := make([]bmff.TrunEntry, 0, 8)
	entries, _, _, _, _ := generateFragment(tr, 0, 8, buf, nil)
	assert.Equal(t, 8, cap(entries))
}
