// Package stitch implements the Stitch engine (C4): concatenates N
// compatible video (+ optional audio) tracks end-to-end, rewriting
// timestamps and edit boxes and trimming audio overhang at splices.
package stitch

import (
	"github.com/tetsuo/reel/media"
	"github.com/tetsuo/reel/track"
)

// Input is one source to be appended: a video track, an optional
// audio track, and an optional edit-box list covering both (filtered
// internally by SampleType).
type Input struct {
	Video     track.Video
	Audio     *track.Audio
	EditBoxes []media.EditBox
}

// Track is one output track: accumulated samples, their rewritten
// edit boxes, and the running duration that produced them.
type Track struct {
	Samples   []media.Sample
	EditBoxes []media.EditBox
	Duration  uint64
}

// Output is the stitched result: the concatenated video track and,
// when any input carried audio, the concatenated audio track, plus
// the settings every input was checked against.
type Output struct {
	Video         Track
	VideoSettings media.VideoSettings
	Audio         Track
	AudioSettings media.AudioSettings
	HasAudio      bool
}

// Stitch concatenates inputs in order. Every input's video settings
// must match the first input's {codec, width, height, orientation};
// video timescales may differ and are resampled to the first input's
// timescale. If any input carries audio, every input must, and their
// {codec, timescale, sample_rate, channels} must all match exactly -
// audio is never resampled.
func Stitch(inputs []Input) (Output, error) {
	if len(inputs) == 0 {
		return Output{}, media.NewError(media.InvalidArguments, "stitch.Stitch", errNoInputs)
	}

	targetVideo := inputs[0].Video.Settings
	targetTimescale := targetVideo.TimeScale
	haveAudio := inputs[0].Audio != nil
	var targetAudio media.AudioSettings
	if haveAudio {
		targetAudio = inputs[0].Audio.Settings
	}

	hasAnyVideoBoxes := false
	hasAnyAudioBoxes := false
	for _, in := range inputs {
		if len(media.FilterByType(in.EditBoxes, media.Video)) > 0 {
			hasAnyVideoBoxes = true
		}
		if len(media.FilterByType(in.EditBoxes, media.Audio)) > 0 {
			hasAnyAudioBoxes = true
		}
	}

	prepared := make([]preparedInput, len(inputs))
	for i, in := range inputs {
		p, err := prepareInput(i, in, targetVideo, targetTimescale, haveAudio, targetAudio)
		if err != nil {
			return Output{}, err
		}
		prepared[i] = p
	}

	videoTrack := concatVideo(prepared, hasAnyVideoBoxes)

	var audioTrack Track
	if haveAudio {
		audioTrack = concatAudio(prepared, targetTimescale, targetAudio.TimeScale, hasAnyAudioBoxes)
	}

	return Output{
		Video:         videoTrack,
		VideoSettings: targetVideo,
		Audio:         audioTrack,
		AudioSettings: targetAudio,
		HasAudio:      haveAudio,
	}, nil
}

type preparedInput struct {
	videoSamples  []media.Sample
	audioSamples  []media.Sample
	videoBoxes    []media.EditBox
	audioBoxes    []media.EditBox
	videoDuration uint64
}

func prepareInput(i int, in Input, targetVideo media.VideoSettings, targetTimescale uint32, haveAudio bool, targetAudio media.AudioSettings) (preparedInput, error) {
	vs := in.Video.Settings
	if !videoCompatible(vs, targetVideo) {
		return preparedInput{}, media.Errorf(media.SettingsMismatch, "stitch.Stitch",
			"input %d: video settings {codec=%s w=%d h=%d orientation=%d} differ from input 0", i, vs.Codec, vs.Width, vs.Height, vs.Orientation)
	}

	rawVideo, err := in.Video.View.Vectorize()
	if err != nil {
		return preparedInput{}, err
	}
	if len(rawVideo) < 2 {
		return preparedInput{}, media.Errorf(media.Unsupported, "stitch.Stitch",
			"input %d: single-frame video tracks cannot be stitched", i)
	}
	videoSamples := adjustSampleTimescale(rawVideo, targetTimescale, vs.TimeScale)

	if (in.Audio != nil) != haveAudio {
		return preparedInput{}, media.Errorf(media.InvalidArguments, "stitch.Stitch",
			"input %d: audio presence must be consistent across all inputs", i)
	}
	var audioSamples []media.Sample
	if in.Audio != nil {
		as := in.Audio.Settings
		if !audioCompatible(as, targetAudio) {
			return preparedInput{}, media.Errorf(media.SettingsMismatch, "stitch.Stitch",
				"input %d: audio settings {codec=%s ts=%d rate=%d ch=%d} differ from input 0", i, as.Codec, as.TimeScale, as.SampleRate, as.Channels)
		}
		audioSamples, err = in.Audio.View.Vectorize()
		if err != nil {
			return preparedInput{}, err
		}
		if len(audioSamples) == 0 {
			return preparedInput{}, media.Errorf(media.InvalidArguments, "stitch.Stitch",
				"input %d: every audio track must contain data when any input carries audio", i)
		}
	}

	videoBoxes := media.FilterByType(in.EditBoxes, media.Video)
	audioBoxes := media.FilterByType(in.EditBoxes, media.Audio)
	if !media.Valid(videoBoxes) || !media.Valid(audioBoxes) {
		return preparedInput{}, media.NewError(media.Invalid, "stitch.Stitch", errInvalidBoxes)
	}
	if i > 0 {
		if len(videoBoxes) > 0 && videoBoxes[0].Empty() {
			return preparedInput{}, media.Errorf(media.InvalidArguments, "stitch.Stitch",
				"input %d: only the first input may begin with a playback delay", i)
		}
		if len(audioBoxes) > 0 && audioBoxes[0].Empty() {
			return preparedInput{}, media.Errorf(media.InvalidArguments, "stitch.Stitch",
				"input %d: only the first input may begin with a playback delay", i)
		}
	}
	videoBoxes = adjustBoxTimescale(videoBoxes, targetTimescale, vs.TimeScale)

	videoDuration, err := track.Duration(videoSamples)
	if err != nil {
		return preparedInput{}, err
	}

	return preparedInput{
		videoSamples:  videoSamples,
		audioSamples:  audioSamples,
		videoBoxes:    videoBoxes,
		audioBoxes:    audioBoxes,
		videoDuration: videoDuration,
	}, nil
}

// concatVideo implements §4.4.2.
func concatVideo(prepared []preparedInput, hasAnyVideoBoxes bool) Track {
	var out Track
	var duration uint64
	for _, p := range prepared {
		firstDTS := p.videoSamples[0].DTS
		offset := int64(duration) - firstDTS

		out.Samples = shiftAndAppend(out.Samples, p.videoSamples, offset)

		boxes := p.videoBoxes
		if len(boxes) == 0 {
			if hasAnyVideoBoxes {
				out.EditBoxes = append(out.EditBoxes, media.EditBox{
					StartPTS:    firstDTS + offset,
					DurationPTS: p.videoDuration,
					Rate:        1.0,
					Type:        media.Video,
				})
			}
		} else {
			for _, b := range boxes {
				out.EditBoxes = append(out.EditBoxes, b.Shift(offset))
			}
		}

		duration += p.videoDuration
	}
	out.Duration = duration
	return out
}

// concatAudio implements §4.4.3 and §4.4.4. prepareInput has already
// rejected any input whose audio track carries zero samples, so every
// prepared input here has a non-empty audioSamples.
func concatAudio(prepared []preparedInput, videoTimescale, audioTimescale uint32, hasAnyAudioBoxes bool) Track {
	var out Track
	var duration uint64
	for _, p := range prepared {
		audioDuration := audioDurationFor(p, videoTimescale, audioTimescale)

		firstAudio := p.audioSamples[0]
		firstVideoDTS := p.videoSamples[0].DTS
		audioVideoGap := firstAudio.DTS - media.RoundDivide(firstVideoDTS, audioTimescale, videoTimescale)
		audioOffset := int64(duration) - firstAudio.DTS + audioVideoGap

		out.Samples = shiftAndAppend(out.Samples, p.audioSamples, audioOffset)

		boxes := p.audioBoxes
		if len(boxes) == 0 {
			if hasAnyAudioBoxes {
				out.EditBoxes = append(out.EditBoxes, media.EditBox{
					StartPTS:    firstAudio.DTS + audioOffset,
					DurationPTS: audioDuration,
					Rate:        1.0,
					Type:        media.Audio,
				})
			}
		} else {
			for _, b := range boxes {
				out.EditBoxes = append(out.EditBoxes, b.Shift(audioOffset))
			}
		}

		duration += audioDuration
	}

	out.Samples = removeOverlapping(out.Samples)
	out.Duration = duration
	return out
}

func audioDurationFor(p preparedInput, videoTimescale, audioTimescale uint32) uint64 {
	switch {
	case len(p.audioBoxes) > 0:
		return deltaSum(p.audioSamples)
	case len(p.videoBoxes) > 0:
		return uint64(media.RoundDivide(int64(media.TotalDuration(p.videoBoxes)), audioTimescale, videoTimescale))
	default:
		return uint64(media.RoundDivide(int64(p.videoDuration), audioTimescale, videoTimescale))
	}
}

// shiftAndAppend appends samples to dst, each shifted by offset,
// dropping a sample only when offset is negative and shifting would
// push both its pts and dts below zero - the only samples permitted
// to precede their track's start are the very first ones absorbed at
// a splice.
func shiftAndAppend(dst []media.Sample, samples []media.Sample, offset int64) []media.Sample {
	for _, s := range samples {
		if offset < 0 && -offset > s.PTS && -offset > s.DTS {
			continue
		}
		dst = append(dst, s.Shift(offset))
	}
	return dst
}

// removeOverlapping implements §4.4.4: traverse in reverse, keeping a
// sample iff it is strictly before the last kept one in both pts and
// dts, then restore ascending order.
func removeOverlapping(samples []media.Sample) []media.Sample {
	if len(samples) == 0 {
		return samples
	}
	kept := make([]media.Sample, 0, len(samples))
	last := samples[len(samples)-1]
	kept = append(kept, last)
	for i := len(samples) - 2; i >= 0; i-- {
		s := samples[i]
		if s.PTS < last.PTS && s.DTS < last.DTS {
			kept = append(kept, s)
			last = s
		}
	}
	for l, r := 0, len(kept)-1; l < r; l, r = l+1, r-1 {
		kept[l], kept[r] = kept[r], kept[l]
	}
	return kept
}

// deltaSum sums consecutive DTS deltas, with no median-based tail
// term - the audio-duration rule §4.4.3 uses when an input carries its
// own audio edit boxes.
func deltaSum(samples []media.Sample) uint64 {
	var total uint64
	for i := 1; i < len(samples); i++ {
		total += uint64(samples[i].DTS - samples[i-1].DTS)
	}
	return total
}

func adjustSampleTimescale(samples []media.Sample, newTimescale, oldTimescale uint32) []media.Sample {
	if newTimescale == oldTimescale {
		return samples
	}
	out := make([]media.Sample, len(samples))
	for i, s := range samples {
		out[i] = s
		out[i].PTS = media.RoundDivide(s.PTS, newTimescale, oldTimescale)
		out[i].DTS = media.RoundDivide(s.DTS, newTimescale, oldTimescale)
	}
	return out
}

func adjustBoxTimescale(boxes []media.EditBox, newTimescale, oldTimescale uint32) []media.EditBox {
	if newTimescale == oldTimescale || len(boxes) == 0 {
		return boxes
	}
	out := make([]media.EditBox, len(boxes))
	for i, b := range boxes {
		out[i] = b
		if !b.Empty() {
			out[i].StartPTS = media.RoundDivide(b.StartPTS, newTimescale, oldTimescale)
		}
		out[i].DurationPTS = uint64(media.RoundDivide(int64(b.DurationPTS), newTimescale, oldTimescale))
	}
	return out
}

func videoCompatible(a, b media.VideoSettings) bool {
	return a.Codec == b.Codec && a.Width == b.Width && a.Height == b.Height && a.Orientation == b.Orientation
}

func audioCompatible(a, b media.AudioSettings) bool {
	return a.Codec == b.Codec && a.TimeScale == b.TimeScale && a.SampleRate == b.SampleRate && a.Channels == b.Channels
}
