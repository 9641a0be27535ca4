package remux

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	bmff "github.com/tetsuo/reel"
	"github.com/tetsuo/reel/media"
)

func sampleWithPayload(pts, dts int64, keyframe bool, payload []byte) media.Sample {
	return media.Sample{
		PTS:      pts,
		DTS:      dts,
		Keyframe: keyframe,
		Payload:  func() ([]byte, error) { return payload, nil },
	}
}

func TestMedian(t *testing.T) {
	assert.Equal(t, int64(0), median(nil))
	assert.Equal(t, int64(5), median([]int64{5}))
	assert.Equal(t, int64(2), median([]int64{3, 1, 2}))
	assert.Equal(t, int64(2), median([]int64{1, 2, 3, 4})) // (2+3)/2
}

func TestRunLengthSttsCollapsesEqualDurations(t *testing.T) {
	// per-sample durations: [100, 100, 150, lastDur(100)] -> two equal
	// stretches bracketing a single 150-tick outlier.
	samples := []media.Sample{
		{DTS: 0}, {DTS: 100}, {DTS: 200}, {DTS: 350},
	}
	out := runLengthStts(samples, 100)
	require.Len(t, out, 3)
	assert.Equal(t, bmff.SttsEntry{Count: 2, Duration: 100}, out[0])
	assert.Equal(t, bmff.SttsEntry{Count: 1, Duration: 150}, out[1])
	assert.Equal(t, bmff.SttsEntry{Count: 1, Duration: 100}, out[2])
}

func TestRunLengthSttsUsesLastDurForFinalSample(t *testing.T) {
	samples := []media.Sample{{DTS: 0}, {DTS: 100}}
	out := runLengthStts(samples, 100)
	require.Len(t, out, 1)
	assert.Equal(t, uint32(2), out[0].Count)
}

func TestRunLengthCtts(t *testing.T) {
	out := runLengthCtts([]int32{0, 0, 200, 200, 200, 0})
	require.Len(t, out, 3)
	assert.Equal(t, bmff.CttsEntry{Count: 2, Offset: 0}, out[0])
	assert.Equal(t, bmff.CttsEntry{Count: 3, Offset: 200}, out[1])
	assert.Equal(t, bmff.CttsEntry{Count: 1, Offset: 0}, out[2])
}

func TestPlanTrackRejectsEmptySampleSet(t *testing.T) {
	_, err := planTrack(1, nil, nil)
	require.Error(t, err)
	var merr *media.Error
	require.ErrorAs(t, err, &merr)
	assert.Equal(t, media.InvalidArguments, merr.Code)
}

func TestPlanTrackComputesOffsetsAndSizes(t *testing.T) {
	samples := []media.Sample{
		sampleWithPayload(0, 0, true, []byte{1, 2, 3}),
		sampleWithPayload(100, 100, false, []byte{4, 5}),
		sampleWithPayload(200, 200, true, []byte{6, 7, 8, 9}),
	}
	tp, err := planTrack(1, samples, nil)
	require.NoError(t, err)

	assert.Equal(t, []uint32{3, 2, 4}, tp.sizes)
	assert.Equal(t, []int64{0, 3, 5}, tp.offsets)
	assert.Equal(t, int64(9), tp.totalSize)
	assert.True(t, tp.haveStss)
	assert.Equal(t, []uint32{1, 3}, tp.stss) // 1-based sample numbers of keyframes
	assert.False(t, tp.haveCtts)             // PTS == DTS throughout
}

func TestPlanTrackAppliesConvert(t *testing.T) {
	raw := annexBFrame([]byte{0x65, 0x01, 0x02})
	samples := []media.Sample{sampleWithPayload(0, 0, true, raw)}

	tp, err := planTrack(1, samples, annexBToAvcc)
	require.NoError(t, err)

	want := annexBToAvcc(raw)
	assert.Equal(t, want, tp.payloads[0])
	assert.Equal(t, uint32(len(want)), tp.sizes[0])
}

func TestPlanTrackDetectsCtts(t *testing.T) {
	samples := []media.Sample{
		sampleWithPayload(40, 0, true, []byte{1}),
		sampleWithPayload(140, 100, false, []byte{1}),
	}
	tp, err := planTrack(1, samples, nil)
	require.NoError(t, err)
	assert.True(t, tp.haveCtts)
	require.Len(t, tp.ctts, 1)
	assert.Equal(t, int32(40), tp.ctts[0].Offset)
}

func TestWriteEditedProducesParsableContainer(t *testing.T) {
	sps := []byte{0x67, 0x42, 0x00, 0x1f}
	pps := []byte{0x68, 0xce, 0x3c, 0x80}

	video := &VideoPart{
		Settings: media.VideoSettings{Width: 640, Height: 480, TimeScale: 600, SPSPPS: annexBFrame(sps, pps)},
		Samples: []media.Sample{
			sampleWithPayload(0, 0, true, annexBFrame([]byte{0x65, 1, 2, 3})),
			sampleWithPayload(20, 20, false, annexBFrame([]byte{0x41, 4, 5})),
		},
	}
	audio := &AudioPart{
		Settings: media.AudioSettings{Codec: "mp4a.40.2", TimeScale: 48000, SampleRate: 48000, Channels: 2},
		Samples: []media.Sample{
			sampleWithPayload(0, 0, true, []byte{0xaa, 0xbb}),
			sampleWithPayload(1024, 1024, true, []byte{0xcc, 0xdd}),
		},
	}

	var buf bytes.Buffer
	err := WriteEdited(&buf, video, audio)
	require.NoError(t, err)

	out := buf.Bytes()
	r := bmff.NewReader(out)

	require.True(t, r.Next())
	assert.Equal(t, bmff.TypeFtyp, r.Type())

	require.True(t, r.Next())
	assert.Equal(t, bmff.TypeMoov, r.Type())
	r.Enter()
	trakCount := 0
	for r.Next() {
		if r.Type() == bmff.TypeTrak {
			trakCount++
		}
	}
	r.Exit()
	assert.Equal(t, 2, trakCount)

	require.True(t, r.Next())
	assert.Equal(t, bmff.TypeMdat, r.Type())
}

func TestWriteEditedRejectsNoTracks(t *testing.T) {
	var buf bytes.Buffer
	err := WriteEdited(&buf, nil, nil)
	require.Error(t, err)
	var merr *media.Error
	require.ErrorAs(t, err, &merr)
	assert.Equal(t, media.InvalidArguments, merr.Code)
}
