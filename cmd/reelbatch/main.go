// Command reelbatch runs a list of Trim, Stitch and Mux jobs described
// by a YAML file, with bounded concurrency.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/tetsuo/reel/media"
)

// job describes one Trim, Stitch or Mux invocation.
//
//	op: trim
//	in: source.mp4
//	out: clip.mp4
//	start_ms: 1000
//	duration_ms: 2000
//
//	op: stitch
//	out: combined.mp4
//	inputs: [a.mp4, b.mp4, c.mp4]
//
//	op: mux
//	in: source.mp4
//	stream: decoded.264
//	out: remuxed.mp4
//	fps_factor: 1
type job struct {
	Op         string   `yaml:"op"`
	In         string   `yaml:"in"`
	Out        string   `yaml:"out"`
	Inputs     []string `yaml:"inputs"`
	Stream     string   `yaml:"stream"`
	StartMs    int64    `yaml:"start_ms"`
	DurationMs int64    `yaml:"duration_ms"`
	FPSFactor  int      `yaml:"fps_factor"`
	Width      uint32   `yaml:"width"`
	Height     uint32   `yaml:"height"`
}

type jobFile struct {
	Concurrency int   `yaml:"concurrency"`
	Jobs        []job `yaml:"jobs"`
}

func main() {
	level := slog.LevelInfo
	if os.Getenv("DEBUG") != "" {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	flag.Parse()
	args := flag.Args()
	if len(args) != 1 {
		fmt.Fprintf(os.Stderr, "usage: %s jobs.yaml\n", os.Args[0])
		os.Exit(1)
	}

	os.Exit(run(args[0]))
}

func run(path string) int {
	data, err := os.ReadFile(path)
	if err != nil {
		slog.Error("read job file", "path", path, "error", err)
		return media.FileNotFound.ExitCode()
	}

	var jf jobFile
	if err := yaml.Unmarshal(data, &jf); err != nil {
		slog.Error("parse job file", "path", path, "error", err)
		return media.Invalid.ExitCode()
	}
	if len(jf.Jobs) == 0 {
		slog.Error("job file has no jobs", "path", path)
		return media.InvalidArguments.ExitCode()
	}

	concurrency := jf.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}

	g := new(errgroup.Group)
	g.SetLimit(concurrency)

	var mu sync.Mutex
	var firstCode int
	record := func(code int) {
		if code == 0 {
			return
		}
		mu.Lock()
		if firstCode == 0 {
			firstCode = code
		}
		mu.Unlock()
	}

	for i, j := range jf.Jobs {
		i, j := i, j
		g.Go(func() error {
			slog.Info("job starting", "index", i, "op", j.Op)
			code := runJob(j)
			if code != 0 {
				slog.Error("job failed", "index", i, "op", j.Op, "exit_code", code)
				record(code)
				return fmt.Errorf("job %d (%s) exited %d", i, j.Op, code)
			}
			slog.Info("job done", "index", i, "op", j.Op)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		if firstCode != 0 {
			return firstCode
		}
		return 128
	}
	return 0
}

// runJob dispatches to the engine matching j.Op and returns the exit
// code that front-end's own CLI would have produced.
func runJob(j job) int {
	switch j.Op {
	case "trim":
		return runTrimJob(j)
	case "stitch":
		return runStitchJob(j)
	case "mux":
		return runMuxJob(j)
	default:
		slog.Error("unknown job op", "op", j.Op)
		return media.InvalidArguments.ExitCode()
	}
}
