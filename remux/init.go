package remux

import (
	bmff "github.com/tetsuo/reel"
	"github.com/tetsuo/reel/media"
)

// buildInitSegment encodes the ftyp+moov init segment for a single
// fragmented track: duration-less mvhd/tkhd/mdhd, the track's own
// stsd copied verbatim, empty sample tables (populated per fragment by
// moof/trun instead), and an mvex/trex pair declaring it fragmented.
func buildInitSegment(t *Track) ([]byte, error) {
	buf := make([]byte, 4096+len(t.stsdBox))
	w := bmff.NewWriter(buf)

	w.WriteFtyp([4]byte{'i', 's', 'o', '5'}, 0, [][4]byte{{'i', 's', 'o', '5'}})

	w.StartBox(bmff.TypeMoov)

	w.WriteMvhd(t.movieTimeScale, 0, t.TrackID+1)

	w.StartBox(bmff.TypeTrak)
	w.WriteTkhd(0x7, t.TrackID, 0, t.width<<16, t.height<<16)

	w.StartBox(bmff.TypeMdia)
	w.WriteMdhd(t.TimeScale, 0, 0x55c4) // "und"
	isVideo := t.settingsType == media.Video
	handler := [4]byte{'s', 'o', 'u', 'n'}
	handlerName := "SoundHandler"
	if isVideo {
		handler = [4]byte{'v', 'i', 'd', 'e'}
		handlerName = "VideoHandler"
	}
	w.WriteHdlr(handler, handlerName)

	w.StartBox(bmff.TypeMinf)
	if isVideo {
		w.WriteVmhd()
	} else {
		w.WriteSmhd()
	}
	w.StartBox(bmff.TypeDinf)
	w.WriteDref()
	w.EndBox() // dinf

	w.StartBox(bmff.TypeStbl)
	w.StartFullBox(bmff.TypeStsd, 0, 0)
	w.Write([]byte{0, 0, 0, 1}) // entry count
	w.Write(t.stsdBox)          // the single avc1/mp4a entry, copied verbatim
	w.EndBox()                  // stsd
	w.WriteStts(nil)
	w.WriteCtts(nil)
	w.WriteStsc(nil)
	w.WriteStsz(0, nil)
	w.WriteStco(nil)
	if isVideo {
		w.WriteStss(nil)
	}
	w.EndBox() // stbl

	w.EndBox() // minf
	w.EndBox() // mdia
	w.EndBox() // trak

	w.StartBox(bmff.TypeMvex)
	w.WriteMehd(t.movieDuration)
	w.WriteTrex(t.TrackID, t.defaultSampleDescriptionIndex, 0, 0, 0)
	w.EndBox() // mvex

	w.EndBox() // moov

	return append([]byte(nil), w.Bytes()...), nil
}
