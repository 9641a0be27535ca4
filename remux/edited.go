package remux

import (
	"fmt"
	"io"
	"math"

	bmff "github.com/tetsuo/reel"
	"github.com/tetsuo/reel/media"
	"github.com/tetsuo/reel/track"
)

// VideoPart is the video half of an edited track, as produced by the
// trim, stitch or avmux engines: materialized samples plus the
// rewritten edit boxes describing how they should play.
type VideoPart struct {
	Settings  media.VideoSettings
	Samples   []media.Sample
	EditBoxes []media.EditBox
}

// AudioPart is the audio half of an edited track.
type AudioPart struct {
	Settings  media.AudioSettings
	Samples   []media.Sample
	EditBoxes []media.EditBox
}

// WriteEdited persists the output of the trim, stitch and avmux engines
// as a complete, non-fragmented MP4 file (ftyp+moov+mdat) to w. Either
// video or audio may be nil, but not both. Unlike the fragmented
// streams [WriteTo] produces for a demuxed source, this path always
// materializes the whole file: the engines already hold every sample
// in memory, so there is no streaming benefit to preserve.
func WriteEdited(w io.Writer, video *VideoPart, audio *AudioPart) error {
	if video == nil && audio == nil {
		return media.NewError(media.InvalidArguments, "remux.WriteEdited", fmt.Errorf("no tracks"))
	}

	var vt, at *trackPlan
	var err error
	if video != nil {
		var convert func([]byte) []byte
		if !isAvc1Box(video.Settings.SPSPPS) {
			// avmux.Mux hands samples over in Annex-B form; the avcC this
			// file declares requires length-prefixed NALs.
			convert = annexBToAvcc
		}
		if vt, err = planTrack(1, video.Samples, convert); err != nil {
			return err
		}
	}
	if audio != nil {
		nextID := uint32(1)
		if vt != nil {
			nextID = 2
		}
		if at, err = planTrack(nextID, audio.Samples, nil); err != nil {
			return err
		}
	}

	movieTimescale := uint32(0)
	switch {
	case video != nil:
		movieTimescale = video.Settings.TimeScale
	case audio != nil:
		movieTimescale = audio.Settings.TimeScale
	}

	// Pass 1: build moov with zero chunk offsets, to measure its size.
	moov1, err := buildEditedMoov(movieTimescale, video, vt, audio, at)
	if err != nil {
		return err
	}

	const ftypLen = 8 + 4 + 4 + 3*4 // box header + major brand + minor version + 3 compatible brands
	base := int64(ftypLen) + int64(len(moov1)) + 8

	if vt != nil {
		for i := range vt.offsets {
			vt.offsets[i] += base
		}
	}
	var audioBase int64
	if vt != nil {
		audioBase = vt.totalSize
	}
	if at != nil {
		for i := range at.offsets {
			at.offsets[i] += base + audioBase
		}
	}

	for _, o := range append(append([]int64(nil), offsetsOf(vt)...), offsetsOf(at)...) {
		if o > math.MaxUint32 {
			return media.NewError(media.Unsupported, "remux.WriteEdited", fmt.Errorf("output exceeds the 4GiB stco offset limit"))
		}
	}

	moov2, err := buildEditedMoov(movieTimescale, video, vt, audio, at)
	if err != nil {
		return err
	}

	ftypBuf := make([]byte, ftypLen)
	fw := bmff.NewWriter(ftypBuf)
	fw.WriteFtyp(bmff.BoxType{'i', 's', 'o', 'm'}, 0x200, [][4]byte{{'i', 's', 'o', 'm'}, {'i', 's', 'o', '5'}, {'m', 'p', '4', '1'}})
	if _, err := w.Write(fw.Bytes()); err != nil {
		return err
	}
	if _, err := w.Write(moov2); err != nil {
		return err
	}

	var mdatHdr [8]byte
	mdatSize := uint32(8)
	if vt != nil {
		mdatSize += uint32(vt.totalSize)
	}
	if at != nil {
		mdatSize += uint32(at.totalSize)
	}
	be.PutUint32(mdatHdr[:4], mdatSize)
	copy(mdatHdr[4:8], "mdat")
	if _, err := w.Write(mdatHdr[:]); err != nil {
		return err
	}

	if vt != nil {
		if err := writePayloads(w, vt.payloads); err != nil {
			return err
		}
	}
	if at != nil {
		if err := writePayloads(w, at.payloads); err != nil {
			return err
		}
	}
	return nil
}

func offsetsOf(tp *trackPlan) []int64 {
	if tp == nil {
		return nil
	}
	return tp.offsets
}

func writePayloads(w io.Writer, payloads [][]byte) error {
	for _, p := range payloads {
		if _, err := w.Write(p); err != nil {
			return err
		}
	}
	return nil
}

// trackPlan holds the per-sample tables derived from a track's
// materialized samples, computed once and reused across both moov
// measuring passes.
type trackPlan struct {
	trackID   uint32
	sizes     []uint32
	offsets   []int64
	payloads  [][]byte
	stts      []bmff.SttsEntry
	ctts      []bmff.CttsEntry
	haveCtts  bool
	stss      []uint32
	haveStss  bool
	duration  uint64 // in the track's own media timescale
	totalSize int64
}

// planTrack computes the per-sample tables for a track's materialized
// samples. convert, when non-nil, rewrites each sample's payload before
// it is measured and cached (used to reframe avmux.Mux's Annex-B video
// output as length-prefixed AVCC).
func planTrack(trackID uint32, samples []media.Sample, convert func([]byte) []byte) (*trackPlan, error) {
	if len(samples) == 0 {
		return nil, media.NewError(media.InvalidArguments, "remux.WriteEdited", fmt.Errorf("track %d: no samples", trackID))
	}

	tp := &trackPlan{trackID: trackID}
	tp.sizes = make([]uint32, len(samples))
	tp.payloads = make([][]byte, len(samples))

	var off int64
	allSync := true
	offsets := make([]int64, len(samples))
	durations := make([]int64, 0, len(samples)-1)

	for i, s := range samples {
		p, err := s.Payload()
		if err != nil {
			return nil, err
		}
		if convert != nil {
			p = convert(p)
		}
		tp.payloads[i] = p
		tp.sizes[i] = uint32(len(p))
		offsets[i] = off
		off += int64(len(p))
		if !s.Keyframe {
			allSync = false
		}
		if i > 0 {
			durations = append(durations, s.DTS-samples[i-1].DTS)
		}
	}
	tp.offsets = offsets
	tp.totalSize = off

	lastDur := median(durations)
	tp.stts = runLengthStts(samples, lastDur)

	haveCtts := false
	cttsOffsets := make([]int32, len(samples))
	for i, s := range samples {
		o := int32(s.PTS - s.DTS)
		cttsOffsets[i] = o
		if o != 0 {
			haveCtts = true
		}
	}
	if haveCtts {
		tp.ctts = runLengthCtts(cttsOffsets)
		tp.haveCtts = true
	}

	if !allSync {
		tp.haveStss = true
		for i, s := range samples {
			if s.Keyframe {
				tp.stss = append(tp.stss, uint32(i+1))
			}
		}
	}

	dur, err := track.Duration(samples)
	if err != nil {
		return nil, err
	}
	tp.duration = dur

	return tp, nil
}

func runLengthStts(samples []media.Sample, lastDur int64) []bmff.SttsEntry {
	var out []bmff.SttsEntry
	n := len(samples)
	i := 0
	for i < n {
		var d int64
		if i < n-1 {
			d = samples[i+1].DTS - samples[i].DTS
		} else {
			d = lastDur
		}
		count := uint32(1)
		for i+int(count) < n {
			var next int64
			if i+int(count) < n-1 {
				next = samples[i+int(count)+1].DTS - samples[i+int(count)].DTS
			} else {
				next = lastDur
			}
			if next != d {
				break
			}
			count++
		}
		out = append(out, bmff.SttsEntry{Count: count, Duration: uint32(d)})
		i += int(count)
	}
	return out
}

func runLengthCtts(offsets []int32) []bmff.CttsEntry {
	var out []bmff.CttsEntry
	n := len(offsets)
	i := 0
	for i < n {
		count := uint32(1)
		for i+int(count) < n && offsets[i+int(count)] == offsets[i] {
			count++
		}
		out = append(out, bmff.CttsEntry{Count: count, Offset: offsets[i]})
		i += int(count)
	}
	return out
}

func median(vals []int64) int64 {
	n := len(vals)
	if n == 0 {
		return 0
	}
	sorted := append([]int64(nil), vals...)
	for i := 1; i < len(sorted); i++ {
		v := sorted[i]
		j := i - 1
		for j >= 0 && sorted[j] > v {
			sorted[j+1] = sorted[j]
			j--
		}
		sorted[j+1] = v
	}
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

// buildEditedMoov encodes the complete moov box for a one- or
// two-track non-fragmented file.
func buildEditedMoov(movieTimescale uint32, video *VideoPart, vt *trackPlan, audio *AudioPart, at *trackPlan) ([]byte, error) {
	size := 4096
	if video != nil {
		size += len(video.Samples)*8 + len(video.Settings.SPSPPS) + 256
	}
	if audio != nil {
		size += len(audio.Samples)*8 + 256
	}
	buf := make([]byte, size)
	w := bmff.NewWriter(buf)

	var movieDuration uint64
	if vt != nil {
		d := media.RoundDivide(int64(vt.duration), movieTimescale, video.Settings.TimeScale)
		if uint64(d) > movieDuration {
			movieDuration = uint64(d)
		}
	}
	if at != nil {
		d := media.RoundDivide(int64(at.duration), movieTimescale, audio.Settings.TimeScale)
		if uint64(d) > movieDuration {
			movieDuration = uint64(d)
		}
	}

	w.StartBox(bmff.TypeMoov)
	nextTrackID := uint32(1)
	if vt != nil {
		nextTrackID++
	}
	if at != nil {
		nextTrackID++
	}
	w.WriteMvhd(movieTimescale, movieDuration, nextTrackID)

	if vt != nil {
		if err := writeEditedTrak(&w, true, vt, video.Settings.TimeScale, movieTimescale, video.Settings, nil, video.EditBoxes); err != nil {
			return nil, err
		}
	}
	if at != nil {
		if err := writeEditedTrak(&w, false, at, audio.Settings.TimeScale, movieTimescale, media.VideoSettings{}, &audio.Settings, audio.EditBoxes); err != nil {
			return nil, err
		}
	}

	w.EndBox() // moov
	return append([]byte(nil), w.Bytes()...), nil
}

func writeEditedTrak(w *bmff.Writer, isVideo bool, tp *trackPlan, mediaTimescale, movieTimescale uint32, vs media.VideoSettings, as *media.AudioSettings, boxes []media.EditBox) error {
	trackDuration := uint64(media.RoundDivide(int64(tp.duration), movieTimescale, mediaTimescale))

	w.StartBox(bmff.TypeTrak)

	flags := uint32(0x7) // enabled, in movie, in preview
	width, height := uint32(0), uint32(0)
	if isVideo {
		width, height = vs.Width<<16, vs.Height<<16
	}
	w.WriteTkhd(flags, tp.trackID, trackDuration, width, height)

	if len(boxes) > 0 {
		entries := make([]bmff.ElstEntry, len(boxes))
		for i, b := range boxes {
			// b.StartPTS is already media.EmptyEditBox (-1) for an
			// empty edit, the same sentinel elst uses for media_time.
			entries[i] = bmff.ElstEntry{
				SegmentDuration: uint64(media.RoundDivide(int64(b.DurationPTS), movieTimescale, mediaTimescale)),
				MediaTime:       b.StartPTS,
				MediaRateInt:    1,
				MediaRateFrac:   0,
			}
		}
		w.StartBox(bmff.TypeEdts)
		w.WriteElst(entries)
		w.EndBox()
	}

	w.StartBox(bmff.TypeMdia)
	w.WriteMdhd(mediaTimescale, tp.duration, 0x55c4) // "und"
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
	var stsdEntry []byte
	var err error
	if isVideo {
		stsdEntry, err = buildVisualSampleEntry(vs)
	} else {
		stsdEntry, err = buildAudioSampleEntry(*as)
	}
	if err != nil {
		return err
	}
	w.Write(stsdEntry)
	w.EndBox() // stsd

	w.WriteStts(tp.stts)
	if tp.haveCtts {
		w.WriteCtts(tp.ctts)
	}
	w.WriteStsc([]bmff.StscEntry{{FirstChunk: 1, SamplesPerChunk: 1, SampleDescriptionId: 1}})
	w.WriteStsz(0, tp.sizes)
	stco := make([]uint32, len(tp.offsets))
	for i, o := range tp.offsets {
		stco[i] = uint32(o)
	}
	w.WriteStco(stco)
	if isVideo && tp.haveStss {
		w.WriteStss(tp.stss)
	}
	w.EndBox() // stbl

	w.EndBox() // minf
	w.EndBox() // mdia
	w.EndBox() // trak
	return nil
}
