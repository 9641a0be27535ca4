package remux

import (
	"io"

	bmff "github.com/tetsuo/reel"
)

// trunFlags is the fixed flag set this module always emits: every
// fragment carries an explicit data offset, duration, size, flags and
// composition-time-offset per sample.
const trunFlags = bmff.TrunDataOffsetPresent |
	bmff.TrunSampleDurationPresent |
	bmff.TrunSampleSizePresent |
	bmff.TrunSampleFlagsPresent |
	bmff.TrunSampleCompositionTimeOffsetPresent

// writeMoof writes a complete moof box for one track fragment to w,
// reusing buf for the encode (grown as needed). The fragment always
// marks its base as the moof itself (default-base-is-moof).
func writeMoof(w io.Writer, seqNum uint32, trackID uint32, baseMediaDecodeTime uint32, entries []bmff.TrunEntry, trunVersion uint8, buf []byte) ([]byte, error) {
	n := len(entries)
	// moof(8) + mfhd(16) + traf header(8) + tfhd(16) + tfdt(16) + trun(20+16n)
	trunSize := 20 + n*16
	trafSize := 8 + 16 + 16 + trunSize
	moofSize := 8 + 16 + trafSize
	dataOffset := int32(moofSize + 8) // +8 for the mdat header that follows

	if cap(buf) < moofSize {
		buf = make([]byte, moofSize)
	} else {
		buf = buf[:moofSize]
	}

	bw := bmff.NewWriter(buf)

	bw.StartBox(bmff.TypeMoof)
	bw.WriteMfhd(seqNum)

	bw.StartBox(bmff.TypeTraf)
	bw.WriteTfhd(bmff.TfhdDefaultBaseIsMoof, trackID)
	bw.WriteTfdt(uint64(baseMediaDecodeTime))
	bw.WriteTrun(trunVersion, trunFlags, dataOffset, entries)
	bw.EndBox() // traf

	bw.EndBox() // moof

	out := bw.Bytes()
	if _, err := w.Write(out); err != nil {
		return buf, err
	}
	return buf, nil
}
