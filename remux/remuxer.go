// Package remux parses and rewrites MP4 containers: demuxing an
// existing file's moov into per-track sample tables for fragmented
// delivery (Remuxer, Writer), and writing the output of the Trim,
// Stitch and Mux engines back into a container (WriteEdited).
package remux

import (
	"encoding/binary"
	"fmt"
	"io"
	"sort"

	bmff "github.com/tetsuo/reel"
	"github.com/tetsuo/reel/media"
	"github.com/tetsuo/reel/track"
)

var be = binary.BigEndian

// Sample represents a single sample (frame) located by byte range in
// the source file, with the timing and sync metadata remuxing needs.
type Sample struct {
	Offset             int64
	Size               uint32
	Duration           uint32
	DTS                int64
	PresentationOffset int32
	Sync               bool
}

// Track holds the parsed metadata for one track (audio or video).
type Track struct {
	TrackID   uint32
	TimeScale uint32
	Codec     string
	Mime      string

	Samples []Sample

	settingsType media.SampleType
	width        uint32
	height       uint32
	orientation  int
	channels     uint16
	sampleRate   uint32
	stsdBox      []byte // the full avc1/mp4a sample entry box, unmodified
	editBoxes    []media.EditBox

	// initBuf is the pre-encoded ftyp+moov for this track's init segment.
	initBuf []byte
	// defaultSampleDescriptionIndex from the last stsc entry.
	defaultSampleDescriptionIndex uint32
	// movieDuration carries the source file's mvhd duration (movie
	// timescale units) into the init segment's mehd fragment_duration.
	movieDuration  uint64
	movieTimeScale uint32
}

// Remuxer holds parsed MP4 metadata and writes fragmented MP4 streams.
type Remuxer struct {
	Tracks []*Track
}

// minFragmentDuration is the minimum fragment duration in seconds.
const minFragmentDuration = 1

// NewRemuxer parses the moov box from an MP4 source and prepares track metadata.
func NewRemuxer(rs io.ReadSeeker) (*Remuxer, error) {
	moovBuf, err := findMoov(rs)
	if err != nil {
		return nil, err
	}
	return newRemuxer(moovBuf)
}

// NewRemuxerFromBytes parses the moov box from an in-memory MP4 file.
func NewRemuxerFromBytes(data []byte) (*Remuxer, error) {
	moovBuf, err := findMoovBytes(data)
	if err != nil {
		return nil, err
	}
	return newRemuxer(moovBuf)
}

// findMoov locates and reads the moov box by scanning top-level boxes.
func findMoov(rs io.ReadSeeker) ([]byte, error) {
	sc := bmff.NewScanner(rs)
	for sc.Next() {
		e := sc.Entry()
		if e.Type == bmff.TypeMoov {
			buf := make([]byte, e.Size)
			if err := sc.ReadBox(buf); err != nil {
				return nil, fmt.Errorf("remux: reading moov: %w", err)
			}
			return buf, nil
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return nil, fmt.Errorf("remux: moov box not found")
}

func findMoovBytes(data []byte) ([]byte, error) {
	ptr := 0
	for ptr+8 <= len(data) {
		size := int(be.Uint32(data[ptr:]))
		if size < 8 {
			return nil, fmt.Errorf("remux: invalid box size %d at offset %d", size, ptr)
		}
		var t bmff.BoxType
		copy(t[:], data[ptr+4:ptr+8])
		if size == 1 && ptr+16 <= len(data) {
			size = int(be.Uint64(data[ptr+8:]))
		}
		if t == bmff.TypeMoov {
			if ptr+size > len(data) {
				return nil, fmt.Errorf("remux: moov box truncated")
			}
			return data[ptr : ptr+size], nil
		}
		ptr += size
	}
	return nil, fmt.Errorf("remux: moov box not found")
}

func newRemuxer(moovBuf []byte) (*Remuxer, error) {
	r := bmff.NewReader(moovBuf)
	if !r.Next() || r.Type() != bmff.TypeMoov {
		return nil, fmt.Errorf("remux: not a moov box")
	}

	var trakBufs [][]byte
	var movieTimeScale uint32
	var movieDuration uint64
	r.Enter()
	for r.Next() {
		switch r.Type() {
		case bmff.TypeMvhd:
			movieTimeScale, movieDuration, _ = r.ReadMvhd()
		case bmff.TypeTrak:
			trakBufs = append(trakBufs, r.RawBox())
		}
	}
	r.Exit()

	if len(trakBufs) == 0 {
		return nil, fmt.Errorf("remux: no tracks found")
	}

	rx := &Remuxer{}
	hasVideo := false
	hasAudio := false

	for _, tb := range trakBufs {
		t, err := parseTrak(tb)
		if err != nil {
			return nil, err
		}
		if t == nil {
			continue // unsupported handler/codec, skip
		}
		if t.settingsType == media.Video {
			if hasVideo {
				continue
			}
			hasVideo = true
		} else {
			if hasAudio {
				continue
			}
			hasAudio = true
		}

		t.movieTimeScale = movieTimeScale
		t.movieDuration = movieDuration
		initBuf, err := buildInitSegment(t)
		if err != nil {
			return nil, fmt.Errorf("remux: track %d init: %w", t.TrackID, err)
		}
		t.initBuf = initBuf

		rx.Tracks = append(rx.Tracks, t)
	}

	if len(rx.Tracks) == 0 {
		return nil, fmt.Errorf("remux: no playable tracks")
	}

	return rx, nil
}

// parseTrak parses one trak box's bytes (header included). Returns a
// nil Track (no error) for handler types or sample entries this
// package does not support.
func parseTrak(data []byte) (*Track, error) {
	r := bmff.NewReader(data)
	if !r.Next() || r.Type() != bmff.TypeTrak {
		return nil, fmt.Errorf("remux: invalid trak box")
	}

	t := &Track{}
	var haveTkhd bool

	r.Enter()
	for r.Next() {
		switch r.Type() {
		case bmff.TypeTkhd:
			trackId, _, width, height := r.ReadTkhd()
			t.TrackID = trackId
			t.width = width >> 16
			t.height = height >> 16
			t.orientation = orientationFromTkhd(r.Data(), r.Version())
			haveTkhd = true
		case bmff.TypeEdts:
			t.editBoxes = parseEdts(&r)
		case bmff.TypeMdia:
			if err := parseMdia(&r, t); err != nil {
				if err == errUnsupportedHandler {
					return nil, nil
				}
				return nil, fmt.Errorf("remux: track: %w", err)
			}
		}
	}
	r.Exit()

	if !haveTkhd || t.stsdBox == nil {
		return nil, nil
	}
	for i := range t.editBoxes {
		t.editBoxes[i].Type = t.settingsType
	}
	return t, nil
}

func parseEdts(r *bmff.Reader) []media.EditBox {
	var boxes []media.EditBox
	r.Enter()
	for r.Next() {
		if r.Type() != bmff.TypeElst {
			continue
		}
		for _, e := range r.ReadElst() {
			b := media.EditBox{
				DurationPTS: e.SegmentDuration,
				Rate:        float32(e.MediaRateInt) + float32(e.MediaRateFrac)/65536,
			}
			if e.MediaTime < 0 {
				b.StartPTS = media.EmptyEditBox
			} else {
				b.StartPTS = e.MediaTime
			}
			boxes = append(boxes, b)
		}
	}
	r.Exit()
	return boxes
}

func parseMdia(r *bmff.Reader, t *Track) error {
	r.Enter()
	for r.Next() {
		switch r.Type() {
		case bmff.TypeMdhd:
			timescale, _, _ := r.ReadMdhd()
			t.TimeScale = timescale
		case bmff.TypeHdlr:
			switch r.ReadHdlr() {
			case [4]byte{'v', 'i', 'd', 'e'}:
				t.settingsType = media.Video
			case [4]byte{'s', 'o', 'u', 'n'}:
				t.settingsType = media.Audio
			default:
				return errUnsupportedHandler
			}
		case bmff.TypeMinf:
			if err := parseMinf(r, t); err != nil {
				if err == errUnsupportedHandler {
					return err
				}
				return fmt.Errorf("remux: track %d: %w", t.TrackID, err)
			}
		}
	}
	r.Exit()
	if t.stsdBox == nil {
		return errUnsupportedHandler
	}
	return nil
}

func parseMinf(r *bmff.Reader, t *Track) error {
	r.Enter()
	for r.Next() {
		if r.Type() == bmff.TypeStbl {
			if err := parseStbl(r, t); err != nil {
				return err
			}
		}
	}
	r.Exit()
	return nil
}

func parseStbl(r *bmff.Reader, t *Track) error {
	var (
		samples    []Sample
		stsz       []uint32
		stts       []bmff.SttsEntry
		ctts       []bmff.CttsEntry
		haveCtts   bool
		stsc       []bmff.StscEntry
		chunkOff   []int64
		stss       []uint32
		haveStss   bool
		defaultSdi uint32
	)

	r.Enter()
	for r.Next() {
		switch r.Type() {
		case bmff.TypeStsd:
			if err := parseStsd(r, t); err != nil {
				return err
			}
		case bmff.TypeStsz:
			it := bmff.NewStszIter(r.Data())
			stsz = make([]uint32, 0, it.Count())
			for {
				v, ok := it.Next()
				if !ok {
					break
				}
				stsz = append(stsz, v)
			}
		case bmff.TypeStts:
			it := bmff.NewSttsIter(r.Data())
			stts = make([]bmff.SttsEntry, 0, it.Count())
			for {
				e, ok := it.Next()
				if !ok {
					break
				}
				stts = append(stts, e)
			}
		case bmff.TypeCtts:
			it := bmff.NewCttsIter(r.Data(), r.Version())
			ctts = make([]bmff.CttsEntry, 0, it.Count())
			for {
				e, ok := it.Next()
				if !ok {
					break
				}
				ctts = append(ctts, e)
			}
			haveCtts = true
		case bmff.TypeStsc:
			it := bmff.NewStscIter(r.Data())
			stsc = make([]bmff.StscEntry, 0, it.Count())
			for {
				e, ok := it.Next()
				if !ok {
					break
				}
				stsc = append(stsc, e)
			}
		case bmff.TypeCo64:
			it := bmff.NewCo64Iter(r.Data())
			chunkOff = make([]int64, 0, it.Count())
			for {
				v, ok := it.Next()
				if !ok {
					break
				}
				chunkOff = append(chunkOff, int64(v))
			}
		case bmff.TypeStco:
			if chunkOff != nil {
				continue // co64 already seen; stco is a fallback, not both
			}
			it := bmff.NewUint32Iter(r.Data())
			chunkOff = make([]int64, 0, it.Count())
			for {
				v, ok := it.Next()
				if !ok {
					break
				}
				chunkOff = append(chunkOff, int64(v))
			}
		case bmff.TypeStss:
			it := bmff.NewUint32Iter(r.Data())
			stss = make([]uint32, 0, it.Count())
			for {
				v, ok := it.Next()
				if !ok {
					break
				}
				stss = append(stss, v)
			}
			haveStss = true
		}
	}
	r.Exit()

	if len(stsz) == 0 || len(stts) == 0 || len(stsc) == 0 || chunkOff == nil {
		return fmt.Errorf("incomplete sample table")
	}

	samples = make([]Sample, len(stsz))

	sampleInChunk, chunk, sampleToChunkIdx := 0, 0, 0
	var offsetInChunk int64
	var dts int64
	decodingIdx, decodingOff := 0, 0
	cttsIdx, cttsOff := 0, 0
	syncIdx := 0

	for i := range samples {
		curChunkEntry := stsc[sampleToChunkIdx]
		defaultSdi = curChunkEntry.SampleDescriptionId

		size := stsz[i]
		duration := stts[decodingIdx].Duration

		var presentationOffset int32
		if haveCtts && cttsIdx < len(ctts) {
			presentationOffset = ctts[cttsIdx].Offset
		}

		sync := true
		if haveStss {
			sync = syncIdx < len(stss) && stss[syncIdx] == uint32(i+1)
		}

		samples[i] = Sample{
			Offset:             offsetInChunk + chunkOff[chunk],
			Size:               size,
			Duration:           duration,
			DTS:                dts,
			PresentationOffset: presentationOffset,
			Sync:               sync,
		}

		if i+1 >= len(samples) {
			break
		}

		sampleInChunk++
		offsetInChunk += int64(size)
		if sampleInChunk >= int(curChunkEntry.SamplesPerChunk) {
			sampleInChunk = 0
			offsetInChunk = 0
			chunk++
			if sampleToChunkIdx+1 < len(stsc) {
				next := stsc[sampleToChunkIdx+1]
				if uint32(chunk+1) >= next.FirstChunk {
					sampleToChunkIdx++
				}
			}
		}

		dts += int64(duration)
		decodingOff++
		if decodingOff >= int(stts[decodingIdx].Count) {
			decodingIdx++
			decodingOff = 0
		}

		if haveCtts {
			cttsOff++
			if cttsIdx < len(ctts) && cttsOff >= int(ctts[cttsIdx].Count) {
				cttsIdx++
				cttsOff = 0
			}
		}

		if sync {
			syncIdx++
		}
	}

	t.Samples = samples
	t.defaultSampleDescriptionIndex = defaultSdi
	return nil
}

func parseStsd(r *bmff.Reader, t *Track) error {
	r.Enter()
	r.Skip(4) // entry count
	if !r.Next() {
		r.Exit()
		return fmt.Errorf("empty stsd")
	}

	switch r.Type() {
	case bmff.TypeAvc1:
		t.settingsType = media.Video
		t.stsdBox = append([]byte(nil), r.RawBox()...)
		ve := bmff.ReadVisualSampleEntry(r.Data())
		t.Codec = "avc1"
		if ve.ChildOffset < len(r.Data()) {
			cr := bmff.NewReader(r.Data()[ve.ChildOffset:])
			for cr.Next() {
				if cr.Type() == bmff.TypeAvcC {
					t.Codec += "." + bmff.ReadAvcC(cr.Data())
				}
			}
		}
		t.Mime = fmt.Sprintf(`video/mp4; codecs="%s"`, t.Codec)
	case bmff.TypeMp4a:
		t.settingsType = media.Audio
		t.stsdBox = append([]byte(nil), r.RawBox()...)
		ae := bmff.ReadAudioSampleEntry(r.Data())
		t.channels = ae.ChannelCount
		t.sampleRate = ae.SampleRate >> 16
		t.Codec = "mp4a"
		if ae.ChildOffset < len(r.Data()) {
			cr := bmff.NewReader(r.Data()[ae.ChildOffset:])
			for cr.Next() {
				if cr.Type() == bmff.TypeEsds {
					if c := bmff.ReadEsdsCodec(cr.Data()); c != "" {
						t.Codec += "." + c
					}
				}
			}
		}
		t.Mime = fmt.Sprintf(`audio/mp4; codecs="%s"`, t.Codec)
	default:
		r.Exit()
		return errUnsupportedHandler
	}
	r.Exit()
	return nil
}

// orientationFromTkhd reads the tkhd transformation matrix and maps
// the four axis-aligned rotations ISO producers commonly emit to
// degrees. Any other matrix is reported as unrotated.
func orientationFromTkhd(data []byte, version uint8) int {
	off := 8 // ctime+mtime (v0) minus reserved already subtracted below
	if version == 1 {
		off = 28 // ctime(8)+mtime(8)+trackId(4)+reserved(4)+duration(8)
	} else {
		off = 20 // ctime(4)+mtime(4)+trackId(4)+reserved(4)+duration(4)
	}
	off += 8 + 2 + 2 + 2 + 2 // reserved(8)+layer(2)+altgroup(2)+volume(2)+reserved(2)
	if off+36 > len(data) {
		return 0
	}
	a := int32(be.Uint32(data[off:]))
	b := int32(be.Uint32(data[off+4:]))
	c := int32(be.Uint32(data[off+12:]))
	d := int32(be.Uint32(data[off+16:]))
	const one = 0x00010000
	switch {
	case a == one && b == 0 && c == 0 && d == one:
		return 0
	case a == 0 && b == one && c == -one && d == 0:
		return 90
	case a == -one && b == 0 && c == 0 && d == -one:
		return 180
	case a == 0 && b == -one && c == one && d == 0:
		return 270
	default:
		return 0
	}
}

// EditBoxes returns the track's parsed edit-list, or nil if the
// source carried no edts/elst box ("no editing").
func (t *Track) EditBoxes() []media.EditBox { return t.editBoxes }

// Type reports whether t is a video or audio track.
func (t *Track) Type() media.SampleType { return t.settingsType }

// View builds a lazy track.View over t's samples, reading payloads
// from ra on demand. The returned view never materializes payloads
// until a caller's Payload closure is invoked.
func (t *Track) View(ra io.ReaderAt) track.View {
	samples := t.Samples
	typ := t.settingsType
	return track.New(len(samples), func(i int) (media.Sample, error) {
		s := samples[i]
		return media.Sample{
			PTS:      s.DTS + int64(s.PresentationOffset),
			DTS:      s.DTS,
			Keyframe: s.Sync,
			Type:     typ,
			Payload: func() ([]byte, error) {
				buf := make([]byte, s.Size)
				if _, err := ra.ReadAt(buf, s.Offset); err != nil {
					return nil, err
				}
				return buf, nil
			},
			ByteRange: &media.ByteRange{Position: s.Offset, Size: int64(s.Size), Available: true},
		}, nil
	})
}

// VideoSettings returns the track's codec settings, for a video track.
func (t *Track) VideoSettings() media.VideoSettings {
	return media.VideoSettings{
		Codec:       t.Codec,
		Width:       t.width,
		Height:      t.height,
		TimeScale:   t.TimeScale,
		Orientation: t.orientation,
		SPSPPS:      t.stsdBox,
	}
}

// AudioSettings returns the track's codec settings, for an audio track.
func (t *Track) AudioSettings() media.AudioSettings {
	return media.AudioSettings{
		Codec:      t.Codec,
		TimeScale:  t.TimeScale,
		SampleRate: t.sampleRate,
		Channels:   t.channels,
	}
}

// InitSegment returns the pre-built init segment (ftyp+moov) for the given track.
func (t *Track) InitSegment() []byte {
	return t.initBuf
}

// Duration returns the total duration of the track in seconds.
func (t *Track) Duration() float64 {
	if len(t.Samples) == 0 || t.TimeScale == 0 {
		return 0
	}
	last := t.Samples[len(t.Samples)-1]
	return float64(last.DTS+int64(last.Duration)) / float64(t.TimeScale)
}

// FindSampleBefore finds the sync sample at or before the given time (in seconds).
// Useful for seeking backward to a safe playback position.
func (t *Track) FindSampleBefore(timeSeconds float64) int {
	scaledTime := int64(timeSeconds * float64(t.TimeScale))

	idx := max(sort.Search(len(t.Samples), func(i int) bool {
		pts := t.Samples[i].DTS + int64(t.Samples[i].PresentationOffset)
		return pts > scaledTime
	})-1, 0)

	for idx > 0 && !t.Samples[idx].Sync {
		idx--
	}

	return idx
}

// FindSampleAfter finds the first sync sample at or after the given time (in seconds).
// Useful for finding a clean start point for time-based extraction.
func (t *Track) FindSampleAfter(timeSeconds float64) int {
	scaledTime := int64(timeSeconds * float64(t.TimeScale))

	idx := sort.Search(len(t.Samples), func(i int) bool {
		pts := t.Samples[i].DTS + int64(t.Samples[i].PresentationOffset)
		return pts >= scaledTime
	})

	if idx >= len(t.Samples) {
		return len(t.Samples) - 1
	}

	for idx < len(t.Samples) && !t.Samples[idx].Sync {
		idx++
	}

	if idx >= len(t.Samples) {
		return len(t.Samples) - 1
	}

	return idx
}

// byteRange represents a contiguous range of bytes in the source file.
type byteRange struct {
	Start int64
	End   int64 // exclusive
}

// WriteTo writes a complete fragmented MP4 stream for a single track,
// starting from the given time (seconds), to w.
// If endTime > 0, stops writing fragments at or before the given end time.
//
// Each call creates a new [Writer]. For repeated calls, create a [Writer]
// once and call its [Writer.WriteTo] method instead of this helper.
func WriteTo(w io.Writer, rs io.ReadSeeker, track *Track, startTime float64, endTime float64) error {
	return NewWriter().WriteTo(w, rs, track, startTime, endTime)
}
