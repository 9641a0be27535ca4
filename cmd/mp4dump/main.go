// Command mp4dump reads an MP4 file and prints its box structure.
package main

import (
	"fmt"
	"os"
	"strings"

	bmff "github.com/tetsuo/reel"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, "usage: %s <file.mp4>\n", os.Args[0])
		os.Exit(1)
	}

	data, err := os.ReadFile(os.Args[1])
	if err != nil {
		fmt.Fprintf(os.Stderr, "error reading file: %v\n", err)
		os.Exit(1)
	}

	r := bmff.NewReader(data)
	dump(&r, 0)
}

func dump(r *bmff.Reader, depth int) {
	for r.Next() {
		indent := strings.Repeat("  ", depth)
		vf := ""
		if bmff.IsFullBox(r.Type()) {
			vf = fmt.Sprintf(" v=%d flags=0x%06x", r.Version(), r.Flags())
		}
		fmt.Printf("%s[%s] size=%d%s%s\n", indent, r.Type(), r.Size(), vf, boxInfo(r))

		if bmff.IsContainerBox(r.Type()) {
			r.Enter()
			dump(r, depth+1)
			r.Exit()
		}
	}
}

func boxInfo(r *bmff.Reader) string {
	switch r.Type() {
	case bmff.TypeFtyp:
		ft := bmff.ReadFtyp(r.Data())
		brands := make([]string, len(ft.Compatible))
		for i, b := range ft.Compatible {
			brands[i] = string(b[:])
		}
		return fmt.Sprintf(" brand=%s compat=[%s]", string(ft.MajorBrand[:]), strings.Join(brands, ","))
	case bmff.TypeMvhd:
		ts, dur, next := r.ReadMvhd()
		return fmt.Sprintf(" timescale=%d duration=%d nextTrackId=%d", ts, dur, next)
	case bmff.TypeTkhd:
		trackId, dur, w, h := r.ReadTkhd()
		return fmt.Sprintf(" trackId=%d duration=%d size=%dx%d", trackId, dur, w>>16, h>>16)
	case bmff.TypeMdhd:
		ts, dur, lang := r.ReadMdhd()
		return fmt.Sprintf(" timescale=%d duration=%d lang=%d", ts, dur, lang)
	case bmff.TypeHdlr:
		h := r.ReadHdlr()
		return fmt.Sprintf(" type=%s name=%q", string(h[:]), r.ReadHdlrName())
	case bmff.TypeStsz:
		it := bmff.NewStszIter(r.Data())
		return fmt.Sprintf(" entries=%d", it.Count())
	case bmff.TypeStco:
		it := bmff.NewUint32Iter(r.Data())
		return fmt.Sprintf(" entries=%d", it.Count())
	case bmff.TypeCo64:
		it := bmff.NewCo64Iter(r.Data())
		return fmt.Sprintf(" entries=%d", it.Count())
	case bmff.TypeStts:
		it := bmff.NewSttsIter(r.Data())
		return fmt.Sprintf(" entries=%d", it.Count())
	case bmff.TypeCtts:
		it := bmff.NewCttsIter(r.Data(), r.Version())
		return fmt.Sprintf(" entries=%d", it.Count())
	case bmff.TypeStsc:
		it := bmff.NewStscIter(r.Data())
		return fmt.Sprintf(" entries=%d", it.Count())
	case bmff.TypeStss:
		it := bmff.NewUint32Iter(r.Data())
		return fmt.Sprintf(" entries=%d", it.Count())
	case bmff.TypeElst:
		return fmt.Sprintf(" entries=%d", len(r.ReadElst()))
	case bmff.TypeMfhd:
		return fmt.Sprintf(" seq=%d", r.ReadMfhd())
	case bmff.TypeTfhd:
		return fmt.Sprintf(" trackId=%d", r.ReadTfhd())
	case bmff.TypeTfdt:
		return fmt.Sprintf(" baseMediaDecodeTime=%d", r.ReadTfdt())
	case bmff.TypeMehd:
		return fmt.Sprintf(" fragmentDuration=%d", r.ReadMehd())
	case bmff.TypeAvc1, bmff.TypeMp4a:
		return fmt.Sprintf(" (raw %d bytes)", len(r.Data()))
	}
	return ""
}
