package track

import "github.com/tetsuo/reel/media"

// windowSize (K) bounds how many trailing (pts, dts) pairs are
// remembered when de-duplicating a track's timestamps; maxAdjustments
// (M) bounds the total number of +1 nudges a single track may absorb.
// Both mirror the demuxer-side timestamp sanitation every track is
// walked through before it reaches the core engines.
const (
	windowSize     = 16
	maxAdjustments = 32
)

type tsPair struct{ pts, dts int64 }

// EnforceUnique walks samples in order and nudges any (pts, dts) pair
// that collides with one of the windowSize most recent pairs forward
// by one tick, repeating until it is unique or windowSize attempts
// have been made for that sample (Unsupported), or the track's total
// adjustment budget of maxAdjustments is exhausted (Unsafe). samples
// is not mutated; a new slice is returned.
func EnforceUnique(samples []media.Sample) ([]media.Sample, error) {
	out := make([]media.Sample, len(samples))
	copy(out, samples)

	window := make([]tsPair, 0, windowSize)
	total := 0

	inWindow := func(p tsPair) bool {
		for _, w := range window {
			if w == p {
				return true
			}
		}
		return false
	}
	remember := func(p tsPair) {
		window = append(window, p)
		if len(window) > windowSize {
			window = window[1:]
		}
	}

	for i := range out {
		p := tsPair{out[i].PTS, out[i].DTS}
		attempts := 0
		for inWindow(p) {
			attempts++
			if attempts > windowSize {
				return nil, media.Errorf(media.Unsupported, "track.EnforceUnique",
					"sample %d: could not produce a unique timestamp within a window of %d", i, windowSize)
			}
			total++
			if total > maxAdjustments {
				return nil, media.Errorf(media.Unsafe, "track.EnforceUnique",
					"exceeded %d total timestamp adjustments for this track", maxAdjustments)
			}
			out[i].PTS++
			out[i].DTS++
			p = tsPair{out[i].PTS, out[i].DTS}
		}
		remember(p)
	}
	return out, nil
}
