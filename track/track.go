package track

import "github.com/tetsuo/reel/media"

// Video pairs a sample View with the codec settings every sample in
// it shares, mirroring the demuxer's VideoTrack accessor.
type Video struct {
	Settings media.VideoSettings
	View     View
}

// Audio pairs a sample View with shared audio codec settings.
type Audio struct {
	Settings media.AudioSettings
	View     View
}

// Caption pairs a sample View with shared caption codec settings.
type Caption struct {
	Settings media.CaptionSettings
	View     View
}

// Data is an untyped, codec-less sample View (e.g. a muxed metadata
// track carried through unmodified).
type Data struct {
	View View
}
