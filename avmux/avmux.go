// Package avmux implements the Mux engine (C5): replaces a
// container's video samples with an externally decoded byte-stream
// while preserving the audio track, re-aligning both edit-box lists
// to the new timeline.
package avmux

import (
	"sort"

	"github.com/tetsuo/reel/media"
	"github.com/tetsuo/reel/track"
)

// Frame is one decoded video frame handed back by a FrameSource.
type Frame struct {
	Keyframe bool
	Payload  func() ([]byte, error)
}

// FrameSource is the byte-stream decoder contract Mux consumes: a
// finite ordered sequence of frames plus a combined SPS+PPS settings
// blob. Count is known up front.
type FrameSource interface {
	Count() int
	Frame(i int) (Frame, error)
	SPSPPS() []byte
}

// Input bundles the demuxed source and the replacement byte-stream.
type Input struct {
	Video          track.Video
	VideoEditBoxes []media.EditBox
	Audio          track.Audio
	AudioEditBoxes []media.EditBox
	Frames         FrameSource
	// FPSFactor decimates the source video's visible samples; 1 keeps
	// every visible sample.
	FPSFactor int
	// Width, Height override the output video's declared dimensions.
	// Both zero means "keep the source dimensions".
	Width, Height uint32
}

// Track is one output track: samples plus rewritten edit boxes.
type Track struct {
	Samples   []media.Sample
	EditBoxes []media.EditBox
}

// Output is the muxed result.
type Output struct {
	Video         Track
	VideoSettings media.VideoSettings
	Audio         Track
	AudioSettings media.AudioSettings
}

// Mux implements §4.5.
func Mux(in Input) (Output, error) {
	if in.FPSFactor < 1 {
		return Output{}, media.Errorf(media.InvalidArguments, "avmux.Mux", "fps_factor must be >= 1, got %d", in.FPSFactor)
	}
	if (in.Width == 0) != (in.Height == 0) {
		return Output{}, media.NewError(media.InvalidArguments, "avmux.Mux", errPartialOverride)
	}

	videoSamples, err := in.Video.View.Vectorize()
	if err != nil {
		return Output{}, err
	}

	validPts := visiblePts(in.VideoEditBoxes, videoSamples)
	if len(validPts) == 0 {
		return Output{}, media.NewError(media.NoTrack, "avmux.Mux", errNoVisibleVideo)
	}

	required := ceilDiv(len(validPts), in.FPSFactor)
	if required != in.Frames.Count() {
		return Output{}, media.Errorf(media.Invalid, "avmux.Mux",
			"byte-stream supplies %d frames, %d required from %d visible samples at fps_factor=%d",
			in.Frames.Count(), required, len(validPts), in.FPSFactor)
	}

	videoTS := in.Video.Settings.TimeScale
	audioTS := in.Audio.Settings.TimeScale
	videoFirstPts := validPts[0]
	audioPtsOffset := media.RoundDivide(videoFirstPts, audioTS, videoTS)

	outVideo := make([]media.Sample, required)
	for k := 0; k < required; k++ {
		vpts := validPts[k*in.FPSFactor] - videoFirstPts
		frame, err := in.Frames.Frame(k)
		if err != nil {
			return Output{}, err
		}
		outVideo[k] = media.Sample{
			PTS:      vpts,
			DTS:      vpts,
			Keyframe: frame.Keyframe,
			Type:     media.Video,
			Payload:  frame.Payload,
		}
	}

	audioSamples, err := in.Audio.View.Vectorize()
	if err != nil {
		return Output{}, err
	}

	outAudio, audioFirstDTS := interleaveAudio(outVideo, audioSamples, audioPtsOffset, audioTS, videoTS)

	outAudioBoxes := rewriteAudioEditBoxes(in.AudioEditBoxes, audioPtsOffset, audioFirstDTS)

	videoDuration, err := videoDurationOf(outVideo)
	if err != nil {
		return Output{}, err
	}
	outVideoBoxes := []media.EditBox{{StartPTS: 0, DurationPTS: videoDuration, Rate: 1.0, Type: media.Video}}

	videoSettings := in.Video.Settings
	videoSettings.Codec = "h264"
	videoSettings.SPSPPS = in.Frames.SPSPPS()
	if in.Width != 0 {
		videoSettings.Width = in.Width
		videoSettings.Height = in.Height
	}

	return Output{
		Video:         Track{Samples: outVideo, EditBoxes: outVideoBoxes},
		VideoSettings: videoSettings,
		Audio:         Track{Samples: outAudio, EditBoxes: outAudioBoxes},
		AudioSettings: in.Audio.Settings,
	}, nil
}

// visiblePts builds valid_pts[]: the playback pts of every original
// video sample that is visible under boxes, sorted ascending. Track
// order is dts order, not pts order - B-frame reordering means a
// sample's pts can fall anywhere relative to its neighbors', so the
// pts values collected in track order must be sorted before use.
func visiblePts(boxes []media.EditBox, samples []media.Sample) []int64 {
	out := make([]int64, 0, len(samples))
	for _, s := range samples {
		if p := media.RealPts(boxes, s.PTS); p != -1 {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// interleaveAudio implements §4.5 step 5: advance through audio
// samples in dts order, accepting any whose dts falls strictly before
// the current video frame's dts (converted to audio timescale) and at
// or after audioPtsOffset. Returns the rewritten samples and the dts
// of the first accepted sample (-1 if none were accepted).
func interleaveAudio(videoFrames []media.Sample, audioSamples []media.Sample, audioPtsOffset int64, audioTS, videoTS uint32) ([]media.Sample, int64) {
	audioFirstDTS := int64(-1)
	var out []media.Sample
	ai := 0
	for _, vf := range videoFrames {
		vdtsAudioTS := media.RoundDivide(vf.DTS, audioTS, videoTS)
		for ai < len(audioSamples) && audioSamples[ai].DTS < vdtsAudioTS {
			a := audioSamples[ai]
			if a.DTS >= audioPtsOffset {
				if audioFirstDTS == -1 {
					audioFirstDTS = a.DTS
				}
				out = append(out, a.Shift(-audioFirstDTS))
			}
			ai++
		}
	}
	return out, audioFirstDTS
}

// rewriteAudioEditBoxes implements §4.5 step 6.
func rewriteAudioEditBoxes(boxes []media.EditBox, audioPtsOffset, audioFirstDTS int64) []media.EditBox {
	if len(boxes) == 0 {
		return nil
	}
	out := make([]media.EditBox, len(boxes))
	for i, b := range boxes {
		if i == 0 {
			out[i] = media.EditBox{
				StartPTS:    b.StartPTS + audioPtsOffset - audioFirstDTS,
				DurationPTS: uint64(int64(b.DurationPTS) - audioPtsOffset),
				Rate:        b.Rate,
				Type:        b.Type,
			}
			if b.Empty() {
				// The empty-box sentinel encodes a delay, not a
				// position: preserve it rather than turning -1 into a
				// shifted, meaningless start.
				out[i].StartPTS = media.EmptyEditBox
			}
			continue
		}
		out[i] = b.Shift(-audioFirstDTS)
	}
	return out
}

func videoDurationOf(samples []media.Sample) (uint64, error) {
	if len(samples) < 2 {
		return 0, nil
	}
	return track.Duration(samples)
}

func ceilDiv(a, b int) int {
	if b <= 0 {
		return a
	}
	return (a + b - 1) / b
}
