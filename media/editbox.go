package media

// EmptyEditBox is the sentinel StartPTS value marking an empty edit
// box: a playback-start delay during which no sample plays.
const EmptyEditBox int64 = -1

// EditBox maps a container-PTS interval onto the playback timeline.
type EditBox struct {
	StartPTS    int64
	DurationPTS uint64
	Rate        float32
	Type        SampleType
}

// Empty reports whether b is the sentinel leading-delay box.
func (b EditBox) Empty() bool { return b.StartPTS == EmptyEditBox }

// Shift returns b with StartPTS advanced by offset. An empty box is
// returned unchanged: its duration already encodes the delay, and it
// has no container-PTS position to shift.
func (b EditBox) Shift(offset int64) EditBox {
	if b.Empty() {
		return b
	}
	b.StartPTS += offset
	return b
}

// Valid enforces the edit-box list invariants:
//
//  1. at most one empty edit box exists, and if present it is first.
//  2. all non-empty boxes share the same SampleType.
//  3. non-empty boxes are in ascending StartPTS order with non-overlapping
//     half-open container-PTS intervals.
//  4. an empty list means "no editing".
func Valid(boxes []EditBox) bool {
	if len(boxes) == 0 {
		return true
	}
	start := 0
	if boxes[0].Empty() {
		start = 1
	}
	for i := start; i < len(boxes); i++ {
		if boxes[i].Empty() {
			return false
		}
	}
	if start >= len(boxes) {
		return true
	}
	typ := boxes[start].Type
	var prevEnd int64
	for i := start; i < len(boxes); i++ {
		b := boxes[i]
		if b.Type != typ {
			return false
		}
		if i > start && b.StartPTS < prevEnd {
			return false
		}
		prevEnd = b.StartPTS + int64(b.DurationPTS)
	}
	return true
}

// RealPts maps a container PTS to its playback PTS. It returns -1 if
// containerPts falls outside every kept interval. An empty box list
// means "no editing": containerPts is returned unchanged.
func RealPts(boxes []EditBox, containerPts int64) int64 {
	if len(boxes) == 0 {
		return containerPts
	}
	var outputOffset int64
	idx := 0
	if boxes[0].Empty() {
		outputOffset = int64(boxes[0].DurationPTS)
		idx = 1
	}
	for ; idx < len(boxes); idx++ {
		b := boxes[idx]
		end := b.StartPTS + int64(b.DurationPTS)
		if containerPts >= b.StartPTS && containerPts < end {
			return outputOffset + (containerPts - b.StartPTS)
		}
		outputOffset += int64(b.DurationPTS)
	}
	return -1
}

// Plays reports whether a sample at containerPts is visible under boxes.
func Plays(boxes []EditBox, containerPts int64) bool {
	return RealPts(boxes, containerPts) != -1
}

// FilterByType returns the subset of boxes with the given SampleType,
// preserving order. Empty boxes are never typed by caller semantics
// but are matched by Type like any other entry.
func FilterByType(boxes []EditBox, typ SampleType) []EditBox {
	var out []EditBox
	for _, b := range boxes {
		if b.Type == typ {
			out = append(out, b)
		}
	}
	return out
}

// TotalDuration sums DurationPTS across boxes, including any leading
// empty box.
func TotalDuration(boxes []EditBox) uint64 {
	var d uint64
	for _, b := range boxes {
		d += b.DurationPTS
	}
	return d
}

// RoundDivide performs a·newScale/oldScale with symmetric rounding, the
// conversion used throughout for inter-timescale arithmetic. oldScale
// must be positive.
func RoundDivide(a int64, newScale, oldScale uint32) int64 {
	if oldScale == 0 {
		return a
	}
	n, o := int64(newScale), int64(oldScale)
	if a >= 0 {
		return (a*n + o/2) / o
	}
	return -(((-a)*n + o/2) / o)
}

// Interval names the sample-index span visible within one non-empty
// edit box, for callers that need "which samples does this edit
// segment cover".
type Interval struct {
	StartIndex int
	NumFrames  int
}

// FrameIntervals scans non-empty video edit boxes against samples and
// reports the sample-index range each box covers. An empty samples
// slice yields one {0, 0} record; an empty (or all-empty) box list
// yields one record spanning the whole track.
func FrameIntervals(boxes []EditBox, samples []Sample) []Interval {
	if len(samples) == 0 {
		return []Interval{{StartIndex: 0, NumFrames: 0}}
	}
	var nonEmpty []EditBox
	for _, b := range boxes {
		if !b.Empty() {
			nonEmpty = append(nonEmpty, b)
		}
	}
	if len(nonEmpty) == 0 {
		return []Interval{{StartIndex: 0, NumFrames: len(samples)}}
	}
	var out []Interval
	for _, b := range nonEmpty {
		end := b.StartPTS + int64(b.DurationPTS)
		startIndex := -1
		count := 0
		for i, s := range samples {
			if s.PTS >= b.StartPTS && s.PTS < end {
				if startIndex < 0 {
					startIndex = i
				}
				count++
			}
		}
		if startIndex >= 0 {
			out = append(out, Interval{StartIndex: startIndex, NumFrames: count})
		}
	}
	return out
}
