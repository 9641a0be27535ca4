package avmux

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tetsuo/reel/media"
	"github.com/tetsuo/reel/track"
)

type fakeFrames struct {
	n        int
	sps      []byte
	keyEvery int
}

func (f *fakeFrames) Count() int { return f.n }

func (f *fakeFrames) Frame(i int) (Frame, error) {
	i64 := int64(i)
	return Frame{
		Keyframe: f.keyEvery > 0 && i%f.keyEvery == 0,
		Payload: func() ([]byte, error) { return []byte{byte(i64)}, nil },
	}, nil
}

func (f *fakeFrames) SPSPPS() []byte { return f.sps }

func videoView(pts ...int64) (track.Video, []media.Sample) {
	samples := make([]media.Sample, len(pts))
	for i, p := range pts {
		samples[i] = media.Sample{PTS: p, DTS: p, Keyframe: i == 0, Type: media.Video}
	}
	v := track.Video{
		Settings: media.VideoSettings{Codec: "h264", Width: 640, Height: 360, TimeScale: 30000},
		View: track.New(len(samples), func(i int) (media.Sample, error) {
			return samples[i], nil
		}),
	}
	return v, samples
}

func audioView(pts ...int64) track.Audio {
	samples := make([]media.Sample, len(pts))
	for i, p := range pts {
		samples[i] = media.Sample{PTS: p, DTS: p, Keyframe: true, Type: media.Audio}
	}
	return track.Audio{
		Settings: media.AudioSettings{Codec: "aac", TimeScale: 44100, SampleRate: 44100, Channels: 2},
		View: track.New(len(samples), func(i int) (media.Sample, error) {
			return samples[i], nil
		}),
	}
}

func TestMuxRejectsBadFPSFactor(t *testing.T) {
	v, _ := videoView(0, 1000)
	_, err := Mux(Input{Video: v, Audio: audioView(0), Frames: &fakeFrames{n: 2}, FPSFactor: 0})
	require.Error(t, err)
	var merr *media.Error
	require.ErrorAs(t, err, &merr)
	assert.Equal(t, media.InvalidArguments, merr.Code)
}

func TestMuxRejectsPartialDimensionOverride(t *testing.T) {
	v, _ := videoView(0, 1000)
	_, err := Mux(Input{Video: v, Audio: audioView(0), Frames: &fakeFrames{n: 2}, FPSFactor: 1, Width: 100})
	require.Error(t, err)
}

func TestMuxRejectsFrameCountMismatch(t *testing.T) {
	v, _ := videoView(0, 1000, 2000)
	_, err := Mux(Input{Video: v, Audio: audioView(0), Frames: &fakeFrames{n: 1}, FPSFactor: 1})
	require.Error(t, err)
	var merr *media.Error
	require.ErrorAs(t, err, &merr)
	assert.Equal(t, media.Invalid, merr.Code)
}

func TestMuxProducesVideoFromByteStream(t *testing.T) {
	v, _ := videoView(0, 1000, 2000, 3000)
	frames := &fakeFrames{n: 4, sps: []byte{0xAA}, keyEvery: 2}
	out, err := Mux(Input{Video: v, Audio: audioView(), Frames: frames, FPSFactor: 1})
	require.NoError(t, err)
	require.Len(t, out.Video.Samples, 4)
	assert.Equal(t, int64(0), out.Video.Samples[0].PTS)
	assert.Equal(t, int64(1000), out.Video.Samples[1].PTS)
	assert.True(t, out.Video.Samples[0].Keyframe)
	assert.False(t, out.Video.Samples[1].Keyframe)
	assert.Equal(t, []byte{0xAA}, out.VideoSettings.SPSPPS)
	assert.Equal(t, "h264", out.VideoSettings.Codec)
}

func TestMuxFPSFactorDecimates(t *testing.T) {
	v, _ := videoView(0, 1000, 2000, 3000)
	frames := &fakeFrames{n: 2}
	out, err := Mux(Input{Video: v, Audio: audioView(), Frames: frames, FPSFactor: 2})
	require.NoError(t, err)
	require.Len(t, out.Video.Samples, 2)
	assert.Equal(t, int64(0), out.Video.Samples[0].PTS)
	assert.Equal(t, int64(2000), out.Video.Samples[1].PTS)
}

func TestMuxDimensionOverride(t *testing.T) {
	v, _ := videoView(0, 1000)
	out, err := Mux(Input{Video: v, Audio: audioView(), Frames: &fakeFrames{n: 2}, FPSFactor: 1, Width: 1920, Height: 1080})
	require.NoError(t, err)
	assert.Equal(t, uint32(1920), out.VideoSettings.Width)
	assert.Equal(t, uint32(1080), out.VideoSettings.Height)
}

func TestMuxInterleavesAudio(t *testing.T) {
	v, _ := videoView(0, 1000, 2000, 3000)
	// audio timescale equals video timescale here for a simple 1:1 check.
	a := track.Audio{
		Settings: media.AudioSettings{Codec: "aac", TimeScale: 30000, SampleRate: 44100, Channels: 2},
		View: track.New(3, func(i int) (media.Sample, error) {
			pts := []int64{0, 500, 1500}
			return media.Sample{PTS: pts[i], DTS: pts[i], Keyframe: true, Type: media.Audio}, nil
		}),
	}
	out, err := Mux(Input{Video: v, Audio: a, Frames: &fakeFrames{n: 4}, FPSFactor: 1})
	require.NoError(t, err)
	// all three audio samples have dts >= audio_pts_offset(0) and fall
	// before some later video frame's dts, so all are kept in order.
	require.Len(t, out.Audio.Samples, 3)
	for i := 1; i < len(out.Audio.Samples); i++ {
		assert.Greater(t, out.Audio.Samples[i].DTS, out.Audio.Samples[i-1].DTS)
	}
}

func TestMuxSortsReorderedPTS(t *testing.T) {
	// dts is ascending in track order, as required, but pts is not:
	// a classic B-frame pattern (dts 0,1000,2000,3000 -> pts
	// 0,3000,1000,2000) where decode order and display order diverge.
	dts := []int64{0, 1000, 2000, 3000}
	pts := []int64{0, 3000, 1000, 2000}
	samples := make([]media.Sample, len(dts))
	for i := range dts {
		samples[i] = media.Sample{PTS: pts[i], DTS: dts[i], Keyframe: i == 0, Type: media.Video}
	}
	v := track.Video{
		Settings: media.VideoSettings{Codec: "h264", Width: 640, Height: 360, TimeScale: 30000},
		View: track.New(len(samples), func(i int) (media.Sample, error) {
			return samples[i], nil
		}),
	}

	out, err := Mux(Input{Video: v, Audio: audioView(), Frames: &fakeFrames{n: 4}, FPSFactor: 1})
	require.NoError(t, err)
	require.Len(t, out.Video.Samples, 4)
	for i := 1; i < len(out.Video.Samples); i++ {
		assert.Greater(t, out.Video.Samples[i].PTS, out.Video.Samples[i-1].PTS)
	}
	assert.Equal(t, int64(0), out.Video.Samples[0].PTS)
	assert.Equal(t, int64(3000), out.Video.Samples[3].PTS)
}

func TestMuxNoVisibleVideoFails(t *testing.T) {
	v, _ := videoView(0, 1000)
	boxes := []media.EditBox{{StartPTS: 5000, DurationPTS: 100, Rate: 1, Type: media.Video}}
	_, err := Mux(Input{Video: v, VideoEditBoxes: boxes, Audio: audioView(), Frames: &fakeFrames{n: 0}, FPSFactor: 1})
	require.Error(t, err)
	var merr *media.Error
	require.ErrorAs(t, err, &merr)
	assert.Equal(t, media.NoTrack, merr.Code)
}
