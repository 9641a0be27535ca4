package remux

import bmff "github.com/tetsuo/reel"

// generateFragment builds fragment metadata for samples starting at firstSample.
// trunEntries and ranges are caller-provided slices that will be reused (resliced).
// Returns the populated slices, total mdat payload size, next sample index, and trun version.
func generateFragment(track *Track, firstSample int, endTimeScaled int64, trunEntries []bmff.TrunEntry, ranges []byteRange) ([]bmff.TrunEntry, []byteRange, int64, int, uint8) {
	samples := track.Samples
	if firstSample >= len(samples) {
		return trunEntries[:0], ranges[:0], 0, firstSample, 0
	}

	startDts := samples[firstSample].DTS
	threshold := int64(track.TimeScale) * minFragmentDuration

	lastSample := firstSample

	for lastSample < len(samples) {
		s := samples[lastSample]
		pts := s.DTS + int64(s.PresentationOffset)

		// Hard stop: don't include any sample at or past end time.
		if endTimeScaled > 0 && pts >= endTimeScaled {
			break
		}

		// Fragment boundary: when no end time, break at sync samples
		// after minimum duration.
		if endTimeScaled == 0 && lastSample > firstSample && s.Sync {
			elapsed := s.DTS - startDts
			if elapsed >= threshold {
				break
			}
		}

		lastSample++
	}

	n := lastSample - firstSample
	if n == 0 {
		return trunEntries[:0], ranges[:0], 0, lastSample, 0
	}

	if cap(trunEntries) < n {
		trunEntries = make([]bmff.TrunEntry, n)
	} else {
		trunEntries = trunEntries[:n]
	}

	var totalLen int64
	var trunVersion uint8

	for i := range n {
		s := samples[firstSample+i]
		if s.PresentationOffset < 0 {
			trunVersion = 1
		}
		flags := uint32(0x2000000) // sync
		if !s.Sync {
			flags = 0x1010000 // non-sync
		}
		trunEntries[i] = bmff.TrunEntry{
			Duration:              s.Duration,
			Size:                  s.Size,
			Flags:                 flags,
			CompositionTimeOffset: s.PresentationOffset,
		}
		totalLen += int64(s.Size)
	}

	ranges = ranges[:0]
	for i := range n {
		s := samples[firstSample+i]
		sStart := s.Offset
		sEnd := s.Offset + int64(s.Size)
		if len(ranges) > 0 && ranges[len(ranges)-1].End == sStart {
			ranges[len(ranges)-1].End = sEnd
		} else {
			ranges = append(ranges, byteRange{Start: sStart, End: sEnd})
		}
	}

	return trunEntries, ranges, totalLen, lastSample, trunVersion
}
