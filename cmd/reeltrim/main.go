// Command reeltrim extracts a playback window from an MP4 file.
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/tetsuo/reel/media"
	"github.com/tetsuo/reel/remux"
	"github.com/tetsuo/reel/trim"
)

func main() {
	startMs := flag.Int64("start", 0, "window start, in milliseconds")
	durationMs := flag.Int64("duration", 0, "window duration, in milliseconds")
	flag.Parse()

	args := flag.Args()
	if len(args) != 2 {
		fmt.Fprintf(os.Stderr, "usage: %s -start MS -duration MS in.mp4 out.mp4\n", os.Args[0])
		os.Exit(1)
	}

	os.Exit(run(args[0], args[1], *startMs, *durationMs))
}

func run(inPath, outPath string, startMs, durationMs int64) int {
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
		err := media.NewError(media.NoTrack, "reeltrim", fmt.Errorf("no video track in %s", inPath))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return exitCode(err)
	}

	videoResult, err := trim.Trim(videoTrack.View(src), videoTrack.EditBoxes(), videoTrack.TimeScale, startMs, durationMs)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return exitCode(err)
	}
	if len(videoResult.Samples) == 0 {
		err := media.NewError(media.InvalidArguments, "reeltrim", fmt.Errorf("window produced no video samples"))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return exitCode(err)
	}

	video := &remux.VideoPart{
		Settings:  videoTrack.VideoSettings(),
		Samples:   videoResult.Samples,
		EditBoxes: videoResult.EditBoxes,
	}

	var audio *remux.AudioPart
	if audioTrack != nil {
		audioResult, err := trim.Trim(audioTrack.View(src), audioTrack.EditBoxes(), audioTrack.TimeScale, startMs, durationMs)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			return exitCode(err)
		}
		if len(audioResult.Samples) > 0 {
			audio = &remux.AudioPart{
				Settings:  audioTrack.AudioSettings(),
				Samples:   audioResult.Samples,
				EditBoxes: audioResult.EditBoxes,
			}
		}
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
