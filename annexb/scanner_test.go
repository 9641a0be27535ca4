package annexb

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func nalu(startCodeLen int, typ byte, payload ...byte) []byte {
	var b []byte
	for i := 0; i < startCodeLen-3; i++ {
		b = append(b, 0)
	}
	b = append(b, 0, 0, 1, typ)
	return append(b, payload...)
}

func concat(chunks ...[]byte) []byte {
	var out []byte
	for _, c := range chunks {
		out = append(out, c...)
	}
	return out
}

func TestScanRejectsInputWithoutStartCodes(t *testing.T) {
	_, err := Scan([]byte{0, 1, 2})
	require.Error(t, err)
}

func TestScanSeparatesFramesFromSPSPPS(t *testing.T) {
	sps := nalu(4, 0x67, 0xAA, 0xBB)
	pps := nalu(3, 0x68, 0xCC)
	idr := nalu(3, 0x65, 0x01, 0x02)
	nonIDR := nalu(3, 0x41, 0x03, 0x04)

	data := concat(sps, pps, idr, nonIDR)
	s, err := Scan(data)
	require.NoError(t, err)

	assert.Equal(t, 2, s.Count())

	f0, err := s.Frame(0)
	require.NoError(t, err)
	assert.True(t, f0.Keyframe)

	f1, err := s.Frame(1)
	require.NoError(t, err)
	assert.False(t, f1.Keyframe)

	assert.NotEmpty(t, s.SPSPPS())
}

func TestScanFrameOutOfRange(t *testing.T) {
	idr := nalu(3, 0x65, 0x01)
	s, err := Scan(idr)
	require.NoError(t, err)
	_, err = s.Frame(5)
	require.Error(t, err)
}

func TestSplitNALUsHandlesThreeAndFourByteStartCodes(t *testing.T) {
	a := nalu(4, 0x67, 0x01)
	b := nalu(3, 0x68, 0x02)
	nalus := splitNALUs(concat(a, b))
	require.Len(t, nalus, 2)
	assert.Equal(t, byte(0x67), nalus[0][0])
	assert.Equal(t, byte(0x68), nalus[1][0])
}
