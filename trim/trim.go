// Package trim implements the Trim engine (C3): given a track view,
// its edit boxes, and a [start_ms, duration_ms) window, it produces a
// new track whose samples begin at a keyframe and cover the window,
// with rewritten edit boxes.
package trim

import (
	"github.com/tetsuo/reel/media"
	"github.com/tetsuo/reel/track"
)

// Result is the trimmed output: a rewritten sample slice plus the
// edit-box list describing how they should play.
type Result struct {
	Samples   []media.Sample
	EditBoxes []media.EditBox
	Duration  uint64
}

// Trim extracts [startMs, startMs+durationMs) from view, which must
// carry timescale ticks per second and the sample type boxes is typed
// for (Video, Audio, or Caption). boxes may be nil or empty.
func Trim(view track.View, boxes []media.EditBox, timescale uint32, startMs, durationMs int64) (Result, error) {
	if durationMs == 0 {
		return Result{}, media.NewError(media.InvalidArguments, "trim.Trim", errDurationZero)
	}
	if !media.Valid(boxes) {
		return Result{}, media.NewError(media.Invalid, "trim.Trim", errInvalidBoxes)
	}

	samples, err := view.Vectorize()
	if err != nil {
		return Result{}, err
	}

	if len(samples) == 0 && len(boxes) != 0 {
		return Result{}, media.NewError(media.InvalidArguments, "trim.Trim", errEmptyInput)
	}

	startPTS := media.RoundDivide(startMs, timescale, 1000)
	durationPTS := ceilRoundDivide(durationMs, timescale, 1000)

	if len(boxes) == 0 {
		if len(samples) == 0 {
			return Result{}, nil
		}
		inherent, err := track.Duration(samples)
		if err != nil {
			return Result{}, err
		}
		if durationPTS > int64(inherent) {
			durationPTS = int64(inherent)
		}
	}

	outBoxes, err := rewriteEditBoxes(boxes, startPTS, durationPTS)
	if err != nil {
		return Result{}, err
	}
	if len(outBoxes) == 0 {
		return Result{}, nil
	}

	minStart, maxEnd := boxExtent(outBoxes)

	startKeyframeIndex, startIndex, endIndex, ok := selectGOP(samples, minStart, maxEnd)
	if !ok {
		return Result{}, nil
	}

	firstDTS := samples[startKeyframeIndex].DTS
	if firstDTS > minStart {
		return Result{}, media.NewError(media.Unsupported, "trim.Trim", errFirstDTSTooLate)
	}

	out := make([]media.Sample, 0, endIndex-startIndex+1)
	prevDTS := samples[startKeyframeIndex].DTS
	for i := startKeyframeIndex; i <= endIndex; i++ {
		s := samples[i]
		if s.DTS < prevDTS {
			return Result{}, media.NewError(media.Invalid, "trim.Trim", errNonMonotoneDTS)
		}
		prevDTS = s.DTS
		out = append(out, s.Shift(-firstDTS))
	}

	shiftedBoxes := make([]media.EditBox, len(outBoxes))
	for i, b := range outBoxes {
		shiftedBoxes[i] = b.Shift(-firstDTS)
	}

	duration, err := track.Duration(out)
	if err != nil {
		return Result{}, err
	}

	return Result{Samples: out, EditBoxes: shiftedBoxes, Duration: duration}, nil
}

// rewriteEditBoxes implements §4.3.1: restrict boxes to the playback
// window [startPTS, startPTS+durationPTS) and re-express it as a fresh
// edit-box list in container-PTS terms.
func rewriteEditBoxes(boxes []media.EditBox, startPTS, durationPTS int64) ([]media.EditBox, error) {
	endPTS := startPTS + durationPTS

	var trackOffset int64
	rest := boxes
	if len(rest) > 0 && rest[0].Empty() {
		trackOffset = int64(rest[0].DurationPTS)
		rest = rest[1:]
	}

	typ := media.Video
	if len(rest) > 0 {
		typ = rest[0].Type
	} else if len(boxes) > 0 {
		typ = boxes[0].Type
	}

	leadingEmptyDuration := int64(0)
	switch {
	case startPTS >= trackOffset:
		startPTS -= trackOffset
		endPTS -= trackOffset
	case endPTS > trackOffset:
		leadingEmptyDuration = trackOffset - startPTS
		startPTS = 0
		endPTS -= trackOffset
	default:
		return nil, nil
	}
	durationPTS = endPTS - startPTS

	var out []media.EditBox
	if len(rest) == 0 {
		out = []media.EditBox{{StartPTS: startPTS, DurationPTS: uint64(durationPTS), Rate: 1.0, Type: typ}}
	} else {
		var offset, remaining int64 = startPTS, durationPTS
		for _, in := range rest {
			d := int64(in.DurationPTS)
			if offset >= d {
				offset -= d
				continue
			}
			emitDur := d - offset
			if emitDur > remaining {
				emitDur = remaining
			}
			out = append(out, media.EditBox{
				StartPTS:    in.StartPTS + offset,
				DurationPTS: uint64(emitDur),
				Rate:        1.0,
				Type:        typ,
			})
			offset = 0
			remaining -= emitDur
			if remaining == 0 {
				break
			}
		}
	}

	if leadingEmptyDuration != 0 {
		out = append([]media.EditBox{{StartPTS: media.EmptyEditBox, DurationPTS: uint64(leadingEmptyDuration)}}, out...)
	}
	return out, nil
}

// boxExtent returns the minimum start and maximum end (in container
// PTS) spanned by non-empty boxes.
func boxExtent(boxes []media.EditBox) (minStart, maxEnd int64) {
	first := true
	for _, b := range boxes {
		if b.Empty() {
			continue
		}
		end := b.StartPTS + int64(b.DurationPTS)
		if first {
			minStart, maxEnd = b.StartPTS, end
			first = false
			continue
		}
		if b.StartPTS < minStart {
			minStart = b.StartPTS
		}
		if end > maxEnd {
			maxEnd = end
		}
	}
	return minStart, maxEnd
}

// selectGOP implements §4.3.2.
func selectGOP(samples []media.Sample, minOutStart, maxOutEnd int64) (startKeyframeIndex, startIndex, endIndex int, ok bool) {
	startKeyframeIndex = -1
	startIndex = -1
	endIndex = -1
	for i, s := range samples {
		if s.Keyframe && s.PTS <= minOutStart {
			startKeyframeIndex = i
		}
		if startIndex < 0 && s.PTS >= minOutStart {
			startIndex = i
		}
		if s.PTS < maxOutEnd {
			endIndex = i
		}
	}
	if startKeyframeIndex < 0 || startIndex < 0 || endIndex < 0 {
		return 0, 0, 0, false
	}
	if !(startKeyframeIndex <= startIndex && startIndex <= endIndex) {
		return 0, 0, 0, false
	}
	return startKeyframeIndex, startIndex, endIndex, true
}

// ceilRoundDivide is round_divide but rounds up, used for duration_ms
// -> duration_pts where spec.md specifies a ceiling conversion.
func ceilRoundDivide(a int64, newScale, oldScale uint32) int64 {
	n, o := int64(newScale), int64(oldScale)
	if o == 0 {
		return a
	}
	return (a*n + o - 1) / o
}
