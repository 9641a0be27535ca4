// Command reelstitch concatenates N compatible MP4 files end-to-end.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/tetsuo/reel/media"
	"github.com/tetsuo/reel/remux"
	"github.com/tetsuo/reel/stitch"
	"github.com/tetsuo/reel/track"
)

func main() {
	args := os.Args[1:]
	if len(args) < 3 {
		fmt.Fprintf(os.Stderr, "usage: %s out.mp4 in1.mp4 in2.mp4 [in3.mp4 ...]\n", os.Args[0])
		os.Exit(1)
	}

	os.Exit(run(args[0], args[1:]))
}

func run(outPath string, inPaths []string) int {
	files := make([]*os.File, 0, len(inPaths))
	defer func() {
		for _, f := range files {
			f.Close()
		}
	}()

	inputs := make([]stitch.Input, 0, len(inPaths))
	for _, p := range inPaths {
		f, err := os.Open(p)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			return media.FileNotFound.ExitCode()
		}
		files = append(files, f)

		fi, err := f.Stat()
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			return media.FileNotFound.ExitCode()
		}
		src := media.NewReader(f, fi.Size())

		remuxer, err := remux.NewRemuxer(f)
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
			err := media.NewError(media.NoTrack, "reelstitch", fmt.Errorf("no video track in %s", p))
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			return exitCode(err)
		}

		in := stitch.Input{
			Video: track.Video{
				Settings: videoTrack.VideoSettings(),
				View:     videoTrack.View(src),
			},
			EditBoxes: videoTrack.EditBoxes(),
		}
		if audioTrack != nil {
			in.Audio = &track.Audio{
				Settings: audioTrack.AudioSettings(),
				View:     audioTrack.View(src),
			}
			in.EditBoxes = append(in.EditBoxes, audioTrack.EditBoxes()...)
		}
		inputs = append(inputs, in)
	}

	result, err := stitch.Stitch(inputs)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return exitCode(err)
	}

	video := &remux.VideoPart{
		Settings:  result.VideoSettings,
		Samples:   result.Video.Samples,
		EditBoxes: result.Video.EditBoxes,
	}
	var audio *remux.AudioPart
	if result.HasAudio {
		audio = &remux.AudioPart{
			Settings:  result.AudioSettings,
			Samples:   result.Audio.Samples,
			EditBoxes: result.Audio.EditBoxes,
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
