// Package media defines the sample-level data model shared by the
// trim, stitch and avmux engines: samples, edit boxes, and the
// per-track settings that travel alongside them.
package media

// SampleType tags the kind of data a Sample carries.
type SampleType int

const (
	Video SampleType = iota
	Audio
	Data
	Caption
)

func (t SampleType) String() string {
	switch t {
	case Video:
		return "video"
	case Audio:
		return "audio"
	case Data:
		return "data"
	case Caption:
		return "caption"
	default:
		return "unknown"
	}
}

// ByteRange locates a Sample's payload in its originating source, for
// diagnostic tools that need offsets without decoding payloads.
type ByteRange struct {
	Position  int64
	Size      int64
	Available bool
}

// Sample is an immutable record describing one coded access unit.
//
// Invariant: DTS <= PTS. Within a track, DTS is strictly non-decreasing
// when samples are enumerated in track order.
type Sample struct {
	PTS       int64
	DTS       int64
	Keyframe  bool
	Type      SampleType
	Payload   func() ([]byte, error)
	ByteRange *ByteRange
}

// Shift returns a copy of s with PTS and DTS shifted by offset.
func (s Sample) Shift(offset int64) Sample {
	s.PTS += offset
	s.DTS += offset
	return s
}

// VideoSettings describes a video track's codec configuration.
type VideoSettings struct {
	Codec       string
	Width       uint32
	Height      uint32
	TimeScale   uint32
	Orientation int // degrees: 0, 90, 180, 270
	SPSPPS      []byte
}

// None reports whether s is the zero-value "no video" settings.
func (s VideoSettings) None() bool {
	return s.Codec == "" && s.Width == 0 && s.Height == 0 && s.TimeScale == 0 && s.Orientation == 0 && len(s.SPSPPS) == 0
}

// AudioSettings describes an audio track's codec configuration.
type AudioSettings struct {
	Codec      string
	TimeScale  uint32
	SampleRate uint32
	Channels   uint16
}

// None reports whether s is the zero-value "no audio" settings.
func (s AudioSettings) None() bool { return s == AudioSettings{} }

// CaptionSettings describes a caption track's codec configuration.
type CaptionSettings struct {
	Codec     string
	TimeScale uint32
}

// None reports whether s is the zero-value "no caption" settings.
func (s CaptionSettings) None() bool { return s == CaptionSettings{} }
