package remux

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	bmff "github.com/tetsuo/reel"
	"github.com/tetsuo/reel/media"
)

func annexBFrame(nalus ...[]byte) []byte {
	var out []byte
	for _, n := range nalus {
		out = append(out, 0, 0, 0, 1)
		out = append(out, n...)
	}
	return out
}

func TestIsAvc1Box(t *testing.T) {
	assert.False(t, isAvc1Box(nil))
	assert.False(t, isAvc1Box([]byte{0, 0, 0, 1, 0x67, 0x42}))
	box := make([]byte, 8)
	copy(box[4:8], "avc1")
	assert.True(t, isAvc1Box(box))
}

func TestSplitAnnexBParamSets(t *testing.T) {
	sps := []byte{0x67, 0x42, 0x00, 0x1f, 0xaa, 0xbb}
	pps := []byte{0x68, 0xce, 0x3c, 0x80}
	idr := []byte{0x65, 0x01, 0x02, 0x03}
	frame := annexBFrame(sps, pps, idr)

	gotSPS, gotPPS := splitAnnexBParamSets(frame)
	assert.Equal(t, sps, gotSPS)
	assert.Equal(t, pps, gotPPS)
}

func TestSplitAnnexBParamSetsIgnoresSliceNALs(t *testing.T) {
	idr := []byte{0x65, 0x01, 0x02, 0x03}
	frame := annexBFrame(idr)
	sps, pps := splitAnnexBParamSets(frame)
	assert.Nil(t, sps)
	assert.Nil(t, pps)
}

func TestAnnexBToAvcc(t *testing.T) {
	nalu1 := []byte{0x67, 0x42, 0x00, 0x1f}
	nalu2 := []byte{0x65, 0x01, 0x02}
	frame := annexBFrame(nalu1, nalu2)

	out := annexBToAvcc(frame)

	// 4-byte length + payload, per NAL.
	require.Len(t, out, 4+len(nalu1)+4+len(nalu2))
	assert.Equal(t, uint32(len(nalu1)), be.Uint32(out[0:4]))
	assert.Equal(t, nalu1, out[4:4+len(nalu1)])
	rest := out[4+len(nalu1):]
	assert.Equal(t, uint32(len(nalu2)), be.Uint32(rest[0:4]))
	assert.Equal(t, nalu2, rest[4:4+len(nalu2)])
}

func TestBuildAvcC(t *testing.T) {
	sps := []byte{0x67, 0x42, 0x00, 0x1f, 0xaa}
	pps := []byte{0x68, 0xce, 0x3c}

	out := buildAvcC(sps, pps)

	assert.Equal(t, byte(1), out[0]) // configurationVersion
	assert.Equal(t, sps[1], out[1])
	assert.Equal(t, sps[2], out[2])
	assert.Equal(t, sps[3], out[3])
	assert.Equal(t, byte(1), out[5]&0x1f) // numOfSequenceParameterSets
	spsLen := int(out[6])<<8 | int(out[7])
	assert.Equal(t, len(sps), spsLen)
	assert.Equal(t, sps, out[8:8+len(sps)])
}

func TestBuildVisualSampleEntryFromAvc1Box(t *testing.T) {
	box := make([]byte, 16)
	copy(box[4:8], "avc1")
	vs := media.VideoSettings{SPSPPS: box}
	out, err := buildVisualSampleEntry(vs)
	require.NoError(t, err)
	assert.Equal(t, box, out)
}

func TestBuildVisualSampleEntryFromAnnexB(t *testing.T) {
	sps := []byte{0x67, 0x42, 0x00, 0x1f}
	pps := []byte{0x68, 0xce, 0x3c, 0x80}
	vs := media.VideoSettings{Width: 1280, Height: 720, SPSPPS: annexBFrame(sps, pps)}

	out, err := buildVisualSampleEntry(vs)
	require.NoError(t, err)

	r := bmff.NewReader(out)
	require.True(t, r.Next())
	assert.Equal(t, bmff.TypeAvc1, r.Type())
}

func TestBuildVisualSampleEntryRejectsMissingParamSets(t *testing.T) {
	vs := media.VideoSettings{SPSPPS: []byte{1, 2, 3}}
	_, err := buildVisualSampleEntry(vs)
	require.Error(t, err)
	var merr *media.Error
	require.ErrorAs(t, err, &merr)
	assert.Equal(t, media.Invalid, merr.Code)
}

func TestAudioObjectType(t *testing.T) {
	assert.Equal(t, byte(2), audioObjectType("mp4a.40.2"))
	assert.Equal(t, byte(5), audioObjectType("mp4a.40.5"))
	assert.Equal(t, byte(2), audioObjectType("mp4a"))
	assert.Equal(t, byte(2), audioObjectType(""))
}

func TestSampleRateIndex(t *testing.T) {
	assert.Equal(t, byte(3), sampleRateIndex(48000))
	assert.Equal(t, byte(4), sampleRateIndex(44100))
	assert.Equal(t, byte(4), sampleRateIndex(1234)) // not in table -> 44100's index
}

func TestBuildEsdsAudioSpecificConfigBits(t *testing.T) {
	out := buildEsds(2, 48000, 2)
	// descriptor(0x03, es): tag, len, then es payload.
	require.Equal(t, byte(0x03), out[0])
	// skip ES_Descriptor header (tag+len) + ES_ID(2)+flags(1) to reach
	// the DecoderConfigDescriptor tag.
	decCfg := out[2+3:]
	require.Equal(t, byte(0x04), decCfg[0])
	require.Equal(t, byte(0x40), decCfg[2]) // objectTypeIndication
	dsi := decCfg[2+13:]
	require.Equal(t, byte(0x05), dsi[0])
	asc := dsi[2:]
	objectType := asc[0] >> 3
	freqIdx := (asc[0]&0x7)<<1 | asc[1]>>7
	channels := (asc[1] >> 3) & 0xf
	assert.Equal(t, byte(2), objectType)
	assert.Equal(t, sampleRateIndex(48000), freqIdx)
	assert.Equal(t, byte(2), channels)
}

func TestBuildAudioSampleEntry(t *testing.T) {
	as := media.AudioSettings{Codec: "mp4a.40.2", SampleRate: 44100, Channels: 2}
	out, err := buildAudioSampleEntry(as)
	require.NoError(t, err)

	r := bmff.NewReader(out)
	require.True(t, r.Next())
	assert.Equal(t, bmff.TypeMp4a, r.Type())
}

func TestBuildAudioSampleEntryRejectsIncompleteSettings(t *testing.T) {
	_, err := buildAudioSampleEntry(media.AudioSettings{})
	require.Error(t, err)
	var merr *media.Error
	require.ErrorAs(t, err, &merr)
	assert.Equal(t, media.Invalid, merr.Code)
}
