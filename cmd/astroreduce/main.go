// Command astroreduce calibrates a night of CCD frames: it combines raw
// darks and flats into masters, corrects the light frames against them,
// and leaves behind a provenance catalog and a run report.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/ridgetop-obs/astroreduce/internal/catalog"
	"github.com/ridgetop-obs/astroreduce/internal/config"
	"github.com/ridgetop-obs/astroreduce/internal/fits"
	"github.com/ridgetop-obs/astroreduce/internal/frame"
	"github.com/ridgetop-obs/astroreduce/internal/fsutil"
	"github.com/ridgetop-obs/astroreduce/internal/progress"
	"github.com/ridgetop-obs/astroreduce/internal/reduce"
	"github.com/ridgetop-obs/astroreduce/internal/report"
	"github.com/ridgetop-obs/astroreduce/internal/version"
)

func main() {
	darks := flag.String("darks", "./darks", "raw dark frames directory")
	mdarks := flag.String("mdarks", "./mdarks", "master darks directory (input at level 1 and 2, output otherwise)")
	flats := flag.String("flats", "./flats", "raw flat frames directory")
	mflats := flag.String("mflats", "./mflats", "master flats directory (input at level 2, output otherwise)")
	lights := flag.String("lights", "./lights", "uncorrected light frames directory")
	out := flag.String("out", "./output", "calibrated lights output directory")

	level := flag.Int("level", 0, "0 = darks+flats+lights, 1 = reuse master darks, 2 = reuse all masters")
	workers := flag.Int("workers", 0, "parallel workers per stage (0 = all CPUs)")
	missingMaster := flag.String("missing-master", "abort", "missing master policy: abort or skip")
	nonFinite := flag.String("nonfinite", "fail", "flat division policy: fail or propagate")

	dbPath := flag.String("db", "astroreduce.db", "provenance catalog path (empty disables)")
	reportDir := flag.String("report", "report", "run report directory (empty disables)")

	configPath := flag.String("config", "", "JSON config file with flag defaults")
	logFile := flag.String("logfile", "", "also append log output to this file")
	verbose := flag.Bool("verbose", false, "log per-stage detail")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}

	// Layer the optional config file and AR_* environment variables
	// under whatever the command line set explicitly.
	if *configPath == "" {
		if v, ok := os.LookupEnv("AR_CONFIG"); ok {
			*configPath = v
		}
	}
	if *configPath != "" {
		cfg, err := config.Load(*configPath)
		if err != nil {
			log.Fatalf("[astroreduce] %v", err)
		}
		if err := cfg.Apply(flag.CommandLine); err != nil {
			log.Fatalf("[astroreduce] %v", err)
		}
	}
	if err := config.ApplyEnv(flag.CommandLine); err != nil {
		log.Fatalf("[astroreduce] %v", err)
	}

	if *level < 0 || *level > 2 {
		log.Fatalf("[astroreduce] level must be 0, 1, or 2, got %d", *level)
	}
	missingPolicy, err := reduce.ParseMissingMasterPolicy(*missingMaster)
	if err != nil {
		log.Fatalf("[astroreduce] %v", err)
	}
	nonFinitePolicy, err := reduce.ParseNonFinitePolicy(*nonFinite)
	if err != nil {
		log.Fatalf("[astroreduce] %v", err)
	}

	if *logFile != "" {
		f, err := os.OpenFile(*logFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			log.Fatalf("[astroreduce] open logfile: %v", err)
		}
		defer f.Close()
		log.SetOutput(io.MultiWriter(os.Stderr, f))
	}

	info := func(format string, args ...any) {
		if *verbose {
			log.Printf(format, args...)
		}
	}
	warn := func(format string, args ...any) {
		log.Printf("[astroreduce] warning: "+format, args...)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fsys := fsutil.OSFileSystem{}
	discover := func(dir string, kind frame.Kind) []*frame.Frame {
		if dir == "" {
			return nil
		}
		if !fsys.Exists(dir) {
			warn("%s directory %q not found", kind, dir)
			return nil
		}
		frames, err := fits.DiscoverKind(fsys, dir, kind)
		if err != nil {
			log.Fatalf("[astroreduce] discover %s: %v", dir, err)
		}
		info("[astroreduce] %d %s frames in %s", len(frames), kind, dir)
		return frames
	}

	in := reduce.Inputs{}
	switch *level {
	case 0:
		in.Darks = discover(*darks, frame.Dark)
		in.Flats = discover(*flats, frame.Flat)
	case 1:
		in.MasterDarks = discover(*mdarks, frame.MasterDark)
		in.Flats = discover(*flats, frame.Flat)
	case 2:
		in.MasterDarks = discover(*mdarks, frame.MasterDark)
		in.MasterFlats = discover(*mflats, frame.MasterFlat)
	}
	in.Lights = discover(*lights, frame.Light)

	var cat *catalog.Catalog
	var run *catalog.Run
	if *dbPath != "" {
		cat, err = catalog.Open(*dbPath)
		if err != nil {
			log.Fatalf("[astroreduce] %v", err)
		}
		defer cat.Close()
		run = &catalog.Run{
			Level:         *level,
			DarksDir:      *darks,
			FlatsDir:      *flats,
			LightsDir:     *lights,
			OutputDir:     *out,
			MissingMaster: missingPolicy.String(),
			NonFinite:     nonFinitePolicy.String(),
		}
		if err := cat.StartRun(run); err != nil {
			log.Fatalf("[astroreduce] start run: %v", err)
		}
		info("[astroreduce] run %s in catalog %s", run.RunID, *dbPath)
	}

	pcfg := reduce.Config{
		MissingMaster: missingPolicy,
		NonFinite:     nonFinitePolicy,
		Workers:       *workers,
	}
	meter := progress.New(os.Stderr)
	if *verbose {
		// Verbose logging and the progress bar fight over the same
		// stream, so verbose runs log instead of drawing.
		pcfg.Logf = log.Printf
	} else {
		pcfg.Logf = func(string, ...any) {}
		if meter.Enabled() {
			pcfg.Progress = meter.Update
		}
	}

	sink := fits.NewDirSink(fsys, *mdarks, *mflats, *out)
	res, runErr := reduce.New(pcfg).Run(ctx, in, sink)
	meter.Clear()

	if cat != nil {
		if err := cat.RecordResult(run, res, runErr); err != nil {
			warn("recording run: %v", err)
		}
	}
	if *reportDir != "" {
		runID := ""
		if run != nil {
			runID = run.RunID
		}
		sum, err := report.Write(fsys, *reportDir, runID, res)
		if err != nil {
			warn("writing report: %v", err)
		} else {
			info("[astroreduce] report %s (%d light groups)",
				filepath.Join(*reportDir, "report.html"), len(sum.Groups))
		}
	}

	// Verbose runs already logged warnings as they happened.
	if !*verbose {
		for _, w := range res.Warnings {
			warn("%s", w)
		}
	}
	elapsed := res.FinishedAt.Sub(res.StartedAt).Round(time.Millisecond)
	log.Printf("[astroreduce] masters: %d dark, %d flat; lights: %d corrected, %d skipped, %d failed (%s)",
		len(res.Masters.Darks), len(res.Masters.Flats),
		res.CorrectedLights, res.SkippedLights, res.FailedLights, elapsed)
	if res.NonFinitePixels > 0 {
		log.Printf("[astroreduce] %d non-finite pixels propagated into outputs", res.NonFinitePixels)
	}
	if runErr != nil {
		log.Fatalf("[astroreduce] run failed: %v", runErr)
	}
}
