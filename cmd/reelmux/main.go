// Command reelmux replaces the video samples in an MP4 file with an
// externally decoded Annex-B byte-stream, preserving its audio track.
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/tetsuo/reel/annexb"
	"github.com/tetsuo/reel/avmux"
	"github.com/tetsuo/reel/media"
	"github.com/tetsuo/reel/remux"
	"github.com/tetsuo/reel/track"
)

func main() {
	fpsFactor := flag.Int("fps-factor", 1, "keep every Nth visible video sample's timing")
	width := flag.Uint("width", 0, "override output width (0 keeps the source dimensions)")
	height := flag.Uint("height", 0, "override output height (0 keeps the source dimensions)")
	flag.Parse()

	args := flag.Args()
	if len(args) != 3 {
		fmt.Fprintf(os.Stderr, "usage: %s [-fps-factor N] [-width W -height H] in.mp4 stream.264 out.mp4\n", os.Args[0])
		os.Exit(1)
	}

	os.Exit(run(args[0], args[1], args[2], *fpsFactor, uint32(*width), uint32(*height)))
}

func run(inPath, streamPath, outPath string, fpsFactor int, width, height uint32) int {
	in, err := os.Open(inPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return media.FileNotFound.ExitCode()
	}
	defer in.Close()

	fi, err := in.Stat()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return media.FileNotFound.ExitCode()
	}
	src := media.NewReader(in, fi.Size())

	streamData, err := os.ReadFile(streamPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return media.FileNotFound.ExitCode()
	}

	remuxer, err := remux.NewRemuxer(in)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return exitCode(err)
	}

	var videoTrack, audioTrack *remux.Track
	for _, t := range remuxer.Tracks {
		switch t.Type() {
		case media.Video:
			if videoTrack == nil {
				videoTrack = t
			}
		case media.Audio:
			if audioTrack == nil {
				audioTrack = t
			}
		}
	}
	if videoTrack == nil {
		err := media.NewError(media.NoTrack, "reelmux", fmt.Errorf("no video track in %s", inPath))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return exitCode(err)
	}
	if audioTrack == nil {
		err := media.NewError(media.NoTrack, "reelmux", fmt.Errorf("no audio track in %s", inPath))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return exitCode(err)
	}

	scanner, err := annexb.Scan(streamData)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return exitCode(err)
	}

	result, err := avmux.Mux(avmux.Input{
		Video: track.Video{
			Settings: videoTrack.VideoSettings(),
			View:     videoTrack.View(src),
		},
		VideoEditBoxes: videoTrack.EditBoxes(),
		Audio: track.Audio{
			Settings: audioTrack.AudioSettings(),
			View:     audioTrack.View(src),
		},
		AudioEditBoxes: audioTrack.EditBoxes(),
		Frames:         scanner,
		FPSFactor:      fpsFactor,
		Width:          width,
		Height:         height,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return exitCode(err)
	}

	video := &remux.VideoPart{
		Settings:  result.VideoSettings,
		Samples:   result.Video.Samples,
		EditBoxes: result.Video.EditBoxes,
	}
	audio := &remux.AudioPart{
		Settings:  result.AudioSettings,
		Samples:   result.Audio.Samples,
		EditBoxes: result.Audio.EditBoxes,
	}

	out, err := os.Create(outPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return media.FileNotFound.ExitCode()
	}
	defer out.Close()

	if err := remux.WriteEdited(out, video, audio); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return exitCode(err)
	}
	return 0
}

func exitCode(err error) int {
	var merr *media.Error
	if errors.As(err, &merr) {
		return merr.Code.ExitCode()
	}
	return 128
}
