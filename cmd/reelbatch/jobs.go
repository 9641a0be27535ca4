package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/tetsuo/reel/annexb"
	"github.com/tetsuo/reel/avmux"
	"github.com/tetsuo/reel/media"
	"github.com/tetsuo/reel/remux"
	"github.com/tetsuo/reel/stitch"
	"github.com/tetsuo/reel/track"
	"github.com/tetsuo/reel/trim"
)

func exitCode(err error) int {
	var merr *media.Error
	if errors.As(err, &merr) {
		return merr.Code.ExitCode()
	}
	return 128
}

func openTracks(path string) (*os.File, *media.Reader, *remux.Track, *remux.Track, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, nil, nil, media.NewError(media.FileNotFound, "reelbatch", err)
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, nil, nil, nil, media.NewError(media.FileNotFound, "reelbatch", err)
	}
	src := media.NewReader(f, fi.Size())

	remuxer, err := remux.NewRemuxer(f)
	if err != nil {
		f.Close()
		return nil, nil, nil, nil, err
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
	return f, src, videoTrack, audioTrack, nil
}

func runTrimJob(j job) int {
	f, src, videoTrack, audioTrack, err := openTracks(j.In)
	if err != nil {
		return exitCode(err)
	}
	defer f.Close()

	if videoTrack == nil {
		return exitCode(media.NewError(media.NoTrack, "reelbatch", fmt.Errorf("no video track in %s", j.In)))
	}

	videoResult, err := trim.Trim(videoTrack.View(src), videoTrack.EditBoxes(), videoTrack.TimeScale, j.StartMs, j.DurationMs)
	if err != nil {
		return exitCode(err)
	}
	if len(videoResult.Samples) == 0 {
		return exitCode(media.NewError(media.InvalidArguments, "reelbatch", fmt.Errorf("window produced no video samples")))
	}

	video := &remux.VideoPart{
		Settings:  videoTrack.VideoSettings(),
		Samples:   videoResult.Samples,
		EditBoxes: videoResult.EditBoxes,
	}

	var audio *remux.AudioPart
	if audioTrack != nil {
		audioResult, err := trim.Trim(audioTrack.View(src), audioTrack.EditBoxes(), audioTrack.TimeScale, j.StartMs, j.DurationMs)
		if err != nil {
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

	return writeEdited(j.Out, video, audio)
}

func runStitchJob(j job) int {
	if len(j.Inputs) == 0 {
		return exitCode(media.NewError(media.InvalidArguments, "reelbatch", fmt.Errorf("stitch job has no inputs")))
	}

	files := make([]*os.File, 0, len(j.Inputs))
	defer func() {
		for _, f := range files {
			f.Close()
		}
	}()

	inputs := make([]stitch.Input, 0, len(j.Inputs))
	for _, p := range j.Inputs {
		f, src, videoTrack, audioTrack, err := openTracks(p)
		if err != nil {
			return exitCode(err)
		}
		files = append(files, f)

		if videoTrack == nil {
			return exitCode(media.NewError(media.NoTrack, "reelbatch", fmt.Errorf("no video track in %s", p)))
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

	return writeEdited(j.Out, video, audio)
}

func runMuxJob(j job) int {
	f, src, videoTrack, audioTrack, err := openTracks(j.In)
	if err != nil {
		return exitCode(err)
	}
	defer f.Close()

	if videoTrack == nil {
		return exitCode(media.NewError(media.NoTrack, "reelbatch", fmt.Errorf("no video track in %s", j.In)))
	}
	if audioTrack == nil {
		return exitCode(media.NewError(media.NoTrack, "reelbatch", fmt.Errorf("no audio track in %s", j.In)))
	}

	streamData, err := os.ReadFile(j.Stream)
	if err != nil {
		return exitCode(media.NewError(media.FileNotFound, "reelbatch", err))
	}

	scanner, err := annexb.Scan(streamData)
	if err != nil {
		return exitCode(err)
	}

	fpsFactor := j.FPSFactor
	if fpsFactor < 1 {
		fpsFactor = 1
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
		Width:          j.Width,
		Height:         j.Height,
	})
	if err != nil {
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

	return writeEdited(j.Out, video, audio)
}

func writeEdited(outPath string, video *remux.VideoPart, audio *remux.AudioPart) int {
	out, err := os.Create(outPath)
	if err != nil {
		return exitCode(media.NewError(media.FileNotFound, "reelbatch", err))
	}
	defer out.Close()

	if err := remux.WriteEdited(out, video, audio); err != nil {
		return exitCode(err)
	}
	return 0
}
