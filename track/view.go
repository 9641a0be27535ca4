// Package track implements the lazy, index-addressable track view
// (C2) that Trim, Stitch and Mux consume and produce: a finite,
// restartable sequence of media.Sample over a half-open index range,
// with codec settings attached.
package track

import (
	"fmt"

	"github.com/tetsuo/reel/media"
)

// Access fetches the sample at absolute index i. Implementations must
// be O(1) and side-effect-free, matching the demuxer contract.
type Access func(i int) (media.Sample, error)

// View is a pure value: a half-open index range [a, b) over an Access
// function. It never materializes or decodes unless asked to.
type View struct {
	a, b   int
	access Access
}

// New builds a View spanning [0, count) over access.
func New(count int, access Access) View {
	return View{a: 0, b: count, access: access}
}

// Bounds returns the view's absolute index range [a, b).
func (v View) Bounds() (int, int) { return v.a, v.b }

// Count returns b - a.
func (v View) Count() int { return v.b - v.a }

// At fetches the sample at absolute index i.
func (v View) At(i int) (media.Sample, error) {
	if i < v.a || i >= v.b {
		return media.Sample{}, media.Errorf(media.OutOfRange, "track.View.At",
			"index %d out of range [%d,%d)", i, v.a, v.b)
	}
	return v.access(i)
}

// Sub returns a sub-view over the absolute range [a, b), which must
// lie within v's own bounds.
func (v View) Sub(a, b int) (View, error) {
	if a < v.a || b > v.b || a > b {
		return View{}, media.Errorf(media.OutOfRange, "track.View.Sub",
			"range [%d,%d) outside [%d,%d)", a, b, v.a, v.b)
	}
	return View{a: a, b: b, access: v.access}, nil
}

// Filter returns a lazy sub-sequence of samples matching predicate,
// without materializing or re-indexing the underlying view.
func (v View) Filter(predicate func(media.Sample) bool) FilteredView {
	return FilteredView{base: v, predicate: predicate}
}

// Vectorize materializes samples [a, b) into a dense slice, in
// ascending index order.
func (v View) Vectorize() ([]media.Sample, error) {
	out := make([]media.Sample, 0, v.Count())
	for i := v.a; i < v.b; i++ {
		s, err := v.access(i)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// FilteredView lazily skips samples a predicate rejects. It iterates
// in ascending index order; it has no random-access Count until
// vectorized.
type FilteredView struct {
	base      View
	predicate func(media.Sample) bool
}

// Vectorize materializes the samples the predicate accepts, in order.
func (f FilteredView) Vectorize() ([]media.Sample, error) {
	a, b := f.base.Bounds()
	out := make([]media.Sample, 0, b-a)
	for i := a; i < b; i++ {
		s, err := f.base.access(i)
		if err != nil {
			return nil, err
		}
		if f.predicate(s) {
			out = append(out, s)
		}
	}
	return out, nil
}

// Duration computes a track's duration in timescale units as the sum
// of DTS deltas plus the median delta, used to approximate the final
// sample's duration - the container-writer convention this module
// mirrors throughout (trim, stitch). samples must be non-empty and in
// ascending DTS order.
func Duration(samples []media.Sample) (uint64, error) {
	if len(samples) == 0 {
		return 0, media.NewError(media.InvalidArguments, "track.Duration", fmt.Errorf("no samples"))
	}
	deltas := make([]uint64, 0, len(samples)-1)
	var total uint64
	prevDTS := samples[0].DTS
	for _, s := range samples[1:] {
		if s.DTS < prevDTS {
			return 0, media.Errorf(media.Invalid, "track.Duration", "dts decreased: %d -> %d", prevDTS, s.DTS)
		}
		delta := uint64(s.DTS - prevDTS)
		total += delta
		deltas = append(deltas, delta)
		prevDTS = s.DTS
	}
	total += median(deltas)
	return total, nil
}

// FPS computes frames-per-second for a video view given its timescale
// and reported duration.
func FPS(count int, timescale uint32, duration uint64) float64 {
	if duration == 0 {
		return 0
	}
	return float64(count) * float64(timescale) / float64(duration)
}

// median returns the median of vals, or 0 for an empty slice. vals is
// not modified; a sorted copy is used.
func median(vals []uint64) uint64 {
	n := len(vals)
	if n == 0 {
		return 0
	}
	sorted := append([]uint64(nil), vals...)
	insertionSort(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

func insertionSort(vals []uint64) {
	for i := 1; i < len(vals); i++ {
		v := vals[i]
		j := i - 1
		for j >= 0 && vals[j] > v {
			vals[j+1] = vals[j]
			j--
		}
		vals[j+1] = v
	}
}
