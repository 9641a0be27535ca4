package remux

import (
	"fmt"

	bmff "github.com/tetsuo/reel"
	"github.com/tetsuo/reel/media"
)

// buildVisualSampleEntry returns a complete avc1 sample-entry box
// (header included) for vs.SPSPPS in either of the two shapes this
// module's producers hand it in: a demuxed source's sample entry,
// copied verbatim by [Track.VideoSettings], or a raw Annex-B SPS/PPS
// pair from a decoded byte-stream, as avmux.Mux produces. The latter
// is repackaged into an avcC-wrapped avc1 box here.
func buildVisualSampleEntry(vs media.VideoSettings) ([]byte, error) {
	if isAvc1Box(vs.SPSPPS) {
		return vs.SPSPPS, nil
	}

	sps, pps := splitAnnexBParamSets(vs.SPSPPS)
	if len(sps) < 4 || len(pps) == 0 {
		return nil, media.NewError(media.Invalid, "remux.WriteEdited", fmt.Errorf("video settings carry no usable SPS/PPS"))
	}

	buf := make([]byte, 512+len(sps)+len(pps))
	w := bmff.NewWriter(buf)
	w.StartBox(bmff.TypeAvc1)
	w.WriteVisualSampleEntry(1, uint16(vs.Width), uint16(vs.Height), 1, 24, "")
	w.StartBox(bmff.TypeAvcC)
	w.Write(buildAvcC(sps, pps))
	w.EndBox() // avcC
	w.EndBox() // avc1
	return append([]byte(nil), w.Bytes()...), nil
}

func isAvc1Box(b []byte) bool {
	return len(b) >= 8 && string(b[4:8]) == "avc1"
}

// splitAnnexBNALs returns the individual NAL units (start codes
// excluded) from a start-code delimited Annex-B byte-stream. Both
// 3-byte (00 00 01) and 4-byte (00 00 00 01) start codes are accepted.
func splitAnnexBNALs(data []byte) [][]byte {
	starts := make([]int, 0, 8)
	n := len(data)
	for i := 0; i+2 < n; i++ {
		if data[i] == 0 && data[i+1] == 0 && data[i+2] == 1 {
			starts = append(starts, i+3)
		}
	}
	nalus := make([][]byte, 0, len(starts))
	for idx, s := range starts {
		if s >= n {
			continue
		}
		e := n
		if idx+1 < len(starts) {
			e = starts[idx+1] - 3
			for e > s && data[e-1] == 0 {
				e--
			}
		}
		if e <= s {
			continue
		}
		nalus = append(nalus, data[s:e])
	}
	return nalus
}

// splitAnnexBParamSets extracts the first SPS (NAL type 7) and first
// PPS (NAL type 8) from a start-code delimited Annex-B byte-stream,
// their start codes excluded.
func splitAnnexBParamSets(data []byte) (sps, pps []byte) {
	for _, nalu := range splitAnnexBNALs(data) {
		switch nalu[0] & 0x1f {
		case 7:
			if sps == nil {
				sps = nalu
			}
		case 8:
			if pps == nil {
				pps = nalu
			}
		}
	}
	return sps, pps
}

// annexBToAvcc rewrites a start-code delimited Annex-B frame into the
// length-prefixed form the avcC configuration declares
// (lengthSizeMinusOne=3, i.e. 4-byte big-endian lengths). avmux.Mux
// hands its frames over in Annex-B form, straight from annexb.Scanner;
// a demuxed source's samples are already length-prefixed and never
// pass through this function.
func annexBToAvcc(frame []byte) []byte {
	nalus := splitAnnexBNALs(frame)
	out := make([]byte, 0, len(frame))
	for _, nalu := range nalus {
		var lenBuf [4]byte
		be.PutUint32(lenBuf[:], uint32(len(nalu)))
		out = append(out, lenBuf[:]...)
		out = append(out, nalu...)
	}
	return out
}

// buildAvcC encodes an AVCDecoderConfigurationRecord carrying a single
// SPS and PPS, profile/level read from the SPS itself.
func buildAvcC(sps, pps []byte) []byte {
	buf := make([]byte, 0, 11+len(sps)+len(pps))
	buf = append(buf, 1)          // configurationVersion
	buf = append(buf, sps[1])     // AVCProfileIndication
	buf = append(buf, sps[2])     // profile_compatibility
	buf = append(buf, sps[3])     // AVCLevelIndication
	buf = append(buf, 0xfc|3)     // reserved(6)=111111 + lengthSizeMinusOne=3 (4-byte lengths)
	buf = append(buf, 0xe0|1)     // reserved(3)=111 + numOfSequenceParameterSets=1
	buf = append(buf, byte(len(sps)>>8), byte(len(sps)))
	buf = append(buf, sps...)
	buf = append(buf, 1) // numOfPictureParameterSets
	buf = append(buf, byte(len(pps)>>8), byte(len(pps)))
	buf = append(buf, pps...)
	return buf
}

// buildAudioSampleEntry returns a complete mp4a sample-entry box
// (header included), synthesizing an esds box from as since
// AudioSettings never carries the original descriptor bytes.
func buildAudioSampleEntry(as media.AudioSettings) ([]byte, error) {
	if as.SampleRate == 0 || as.Channels == 0 {
		return nil, media.NewError(media.Invalid, "remux.WriteEdited", fmt.Errorf("audio settings missing sample rate or channel count"))
	}

	buf := make([]byte, 256)
	w := bmff.NewWriter(buf)
	w.StartBox(bmff.TypeMp4a)
	w.WriteAudioSampleEntry(1, as.Channels, 16, as.SampleRate<<16)
	w.StartFullBox(bmff.TypeEsds, 0, 0)
	w.Write(buildEsds(audioObjectType(as.Codec), as.SampleRate, as.Channels))
	w.EndBox() // esds
	w.EndBox() // mp4a
	return append([]byte(nil), w.Bytes()...), nil
}

// audioObjectType parses the MPEG-4 audio object type from a codec
// string like "mp4a.40.2", defaulting to 2 (AAC-LC) when absent or
// unparseable.
func audioObjectType(codec string) byte {
	i := len(codec) - 1
	for i >= 0 && codec[i] >= '0' && codec[i] <= '9' {
		i--
	}
	if i == len(codec)-1 {
		return 2
	}
	var v int
	for _, c := range codec[i+1:] {
		v = v*10 + int(c-'0')
	}
	if v <= 0 || v > 31 {
		return 2
	}
	return byte(v)
}

// sampleRateIndex maps a sample rate to its MPEG-4 AudioSpecificConfig
// index, defaulting to 44100's index when rate doesn't match the
// standard table.
func sampleRateIndex(rate uint32) byte {
	table := []uint32{96000, 88200, 64000, 48000, 44100, 32000, 24000, 22050, 16000, 12000, 11025, 8000, 7350}
	for i, r := range table {
		if r == rate {
			return byte(i)
		}
	}
	return 4
}

// buildEsds encodes a minimal ES_Descriptor wrapping a 2-byte AAC
// AudioSpecificConfig, mirroring the descriptor chain ReadEsdsCodec
// parses: ESDescriptor > DecoderConfigDescriptor > DecoderSpecificInfo.
func buildEsds(objectType byte, sampleRate uint32, channels uint16) []byte {
	freqIdx := sampleRateIndex(sampleRate)
	asc := []byte{
		objectType<<3 | freqIdx>>1,
		(freqIdx&1)<<7 | byte(channels)<<3,
	}

	dsi := descriptor(0x05, asc)

	decCfg := make([]byte, 0, 13+len(dsi))
	decCfg = append(decCfg, 0x40)       // objectTypeIndication: MPEG-4 Audio
	decCfg = append(decCfg, 0x15)       // streamType=audio(5)<<2 | upStream=0 | reserved=1
	decCfg = append(decCfg, 0, 0, 0)    // bufferSizeDB
	decCfg = append(decCfg, 0, 0, 0, 0) // maxBitrate
	decCfg = append(decCfg, 0, 0, 0, 0) // avgBitrate
	decCfg = append(decCfg, dsi...)
	decCfgDesc := descriptor(0x04, decCfg)

	slCfg := descriptor(0x06, []byte{0x02}) // SLConfigDescriptor, predefined=2 (MP4)

	es := make([]byte, 0, 3+len(decCfgDesc)+len(slCfg))
	es = append(es, 0, 0) // ES_ID
	es = append(es, 0)    // flags
	es = append(es, decCfgDesc...)
	es = append(es, slCfg...)

	return descriptor(0x03, es)
}

// descriptor wraps payload in an MPEG-4 descriptor header: a 1-byte
// tag followed by a length field. Every length this module produces
// fits in a single byte (payload stays well under 128 bytes).
func descriptor(tag byte, payload []byte) []byte {
	out := make([]byte, 0, 2+len(payload))
	out = append(out, tag, byte(len(payload)))
	out = append(out, payload...)
	return out
}
