// Package annexb implements a minimal Annex-B H.264 byte-stream
// scanner: it splits a start-code-delimited NAL unit stream into
// access units (one per keyframe/non-keyframe video frame) and
// implements avmux.FrameSource over the result.
package annexb

import (
	"github.com/tetsuo/reel/avmux"
	"github.com/tetsuo/reel/media"
)

// NAL unit type codes relevant to framing and keyframe detection.
const (
	nalSliceNonIDR = 1
	nalSliceIDR    = 5
	nalSPS         = 7
	nalPPS         = 8
)

// nalType returns the NAL unit type from its first byte.
func nalType(b []byte) int {
	if len(b) == 0 {
		return -1
	}
	return int(b[0] & 0x1f)
}

// splitNALUs scans b for 3- or 4-byte Annex-B start codes (0x000001
// or 0x00000001) and returns the byte range of each NAL unit between
// them, start codes excluded.
func splitNALUs(b []byte) [][]byte {
	var nalus [][]byte
	i := 0
	n := len(b)
	starts := make([]int, 0, 16)
	for i+2 < n {
		if b[i] == 0 && b[i+1] == 0 && b[i+2] == 1 {
			starts = append(starts, i+3)
			i += 3
			continue
		}
		i++
	}
	for idx, s := range starts {
		e := n
		if idx+1 < len(starts) {
			next := starts[idx+1]
			// back off the next start code's prefix (3 or 4 zero/one
			// bytes) to exclude it from this NAL unit's payload.
			e = next - 3
			for e > s && b[e-1] == 0 {
				e--
			}
		}
		if e > s {
			nalus = append(nalus, b[s:e])
		}
	}
	return nalus
}

// Scanner splits a single Annex-B byte-stream into access units and
// exposes them as avmux.FrameSource frames: one frame per access unit
// (the NAL units between one video NAL unit and the next, SPS/PPS
// carried out of band into SPSPPS rather than emitted as frames).
type Scanner struct {
	frames [][]byte // one concatenated payload per access unit
	keyfrm []bool
	spspps []byte
}

// Scan splits data into access units. SPS/PPS NAL units are collected
// into a combined settings blob (with their own start codes preserved,
// matching how SPS+PPS settings are carried elsewhere in this module)
// rather than emitted as frames.
func Scan(data []byte) (*Scanner, error) {
	nalus := splitNALUs(data)
	if len(nalus) == 0 {
		return nil, media.NewError(media.Invalid, "annexb.Scan", errNoNALUs)
	}

	s := &Scanner{}
	var cur []byte
	curKey := false
	flush := func() {
		if cur != nil {
			s.frames = append(s.frames, cur)
			s.keyfrm = append(s.keyfrm, curKey)
		}
		cur = nil
		curKey = false
	}

	for _, nalu := range nalus {
		switch nalType(nalu) {
		case nalSPS, nalPPS:
			s.spspps = append(s.spspps, startCode...)
			s.spspps = append(s.spspps, nalu...)
		case nalSliceIDR, nalSliceNonIDR:
			flush()
			cur = append([]byte{}, startCode...)
			cur = append(cur, nalu...)
			curKey = nalType(nalu) == nalSliceIDR
		default:
			if cur != nil {
				cur = append(cur, startCode...)
				cur = append(cur, nalu...)
			}
		}
	}
	flush()

	if len(s.frames) == 0 {
		return nil, media.NewError(media.Invalid, "annexb.Scan", errNoFrames)
	}
	return s, nil
}

var startCode = []byte{0, 0, 0, 1}

// Count implements avmux.FrameSource.
func (s *Scanner) Count() int { return len(s.frames) }

// Frame implements avmux.FrameSource.
func (s *Scanner) Frame(i int) (avmux.Frame, error) {
	if i < 0 || i >= len(s.frames) {
		return avmux.Frame{}, media.Errorf(media.OutOfRange, "annexb.Scanner.Frame", "index %d out of range [0,%d)", i, len(s.frames))
	}
	payload := s.frames[i]
	return avmux.Frame{
		Keyframe: s.keyfrm[i],
		Payload:  func() ([]byte, error) { return payload, nil },
	}, nil
}

// SPSPPS implements avmux.FrameSource.
func (s *Scanner) SPSPPS() []byte { return s.spspps }

var _ avmux.FrameSource = (*Scanner)(nil)
