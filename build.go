package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/jwaldrip/odin/cli"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/mudesheng/cdbg/config"
	"github.com/mudesheng/cdbg/dump"
	"github.com/mudesheng/cdbg/errs"
	"github.com/mudesheng/cdbg/graph"
	"github.com/mudesheng/cdbg/logs"
	"github.com/mudesheng/cdbg/pipeline"
	"github.com/mudesheng/cdbg/seqio"
)

type optionsBuild struct {
	ArgsOpt
	Fasta, GFA, Dot, Parquet, Snapshot bool
	Zstd                               bool
	Progress                           bool
	MetricsAddr                        string
	TmpDir                             string
	SpillThreshold                     int
	ColorCeiling                       int
	MinAbundance                       int
	Hasher                             string
}

func checkArgsBuild(c cli.Command) (opt optionsBuild, err error) {
	gOpt, err := CheckGlobalArgs(c.Parent())
	if err != nil {
		return opt, err
	}
	opt.ArgsOpt = gOpt
	opt.Fasta = c.Flag("fa").Get().(bool)
	opt.GFA = c.Flag("gfa").Get().(bool)
	opt.Dot = c.Flag("dot").Get().(bool)
	opt.Parquet = c.Flag("parquet").Get().(bool)
	opt.Snapshot = c.Flag("snapshot").Get().(bool)
	opt.Zstd = c.Flag("zst").Get().(bool)
	opt.Progress = c.Flag("progress").Get().(bool)
	opt.MetricsAddr = c.Flag("metrics").String()
	opt.TmpDir = c.Flag("tmp").String()
	opt.Hasher = c.Flag("hash").String()
	opt.SpillThreshold = c.Flag("spill").Get().(int)
	opt.ColorCeiling = c.Flag("colors").Get().(int)
	opt.MinAbundance = c.Flag("minAbundance").Get().(int)
	if opt.SpillThreshold < 0 || opt.ColorCeiling < 0 || opt.MinAbundance < 0 {
		return opt, errs.Configuration("checkArgsBuild", "spill %d, colors %d and minAbundance %d must not be negative",
			opt.SpillThreshold, opt.ColorCeiling, opt.MinAbundance)
	}
	if opt.Manifest == "" {
		return opt, errs.Configuration("checkArgsBuild", "args 'C' not set")
	}
	return opt, nil
}

// config merges the build flags over the environment configuration.
func (opt optionsBuild) config() (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return cfg, err
	}
	opt.Apply(&cfg)
	if opt.TmpDir != "" {
		cfg.TmpDir = opt.TmpDir
	}
	if opt.SpillThreshold > 0 {
		cfg.SpillThreshold = opt.SpillThreshold
	}
	if opt.ColorCeiling > 0 {
		cfg.ColorCeiling = opt.ColorCeiling
	}
	if opt.MinAbundance > 0 {
		cfg.MinAbundance = opt.MinAbundance
	}
	if opt.Hasher != "" {
		cfg.Hasher = opt.Hasher
	}
	return cfg, cfg.Validate()
}

type output struct {
	fn    string
	write func(io.Writer, *graph.Graph) error
}

// outputs lists the files a build writes, in writing order.
func (opt optionsBuild) outputs() []output {
	zst := ""
	if opt.Zstd {
		zst = ".zst"
	}
	var outs []output
	if opt.Fasta {
		outs = append(outs, output{opt.Prefix + ".unitigs.fa" + zst, dump.WriteFasta})
	}
	if opt.GFA {
		outs = append(outs, output{opt.Prefix + ".gfa" + zst, dump.WriteGFA})
	}
	if opt.Dot {
		outs = append(outs, output{opt.Prefix + ".dot", dump.WriteDot})
	}
	if opt.Parquet {
		outs = append(outs, output{opt.Prefix + ".unitigs.parquet", dump.WriteParquet})
	}
	if opt.Snapshot {
		outs = append(outs, output{opt.Prefix + ".snap", dump.WriteSnapshot})
	}
	return outs
}

// Build runs the construction over the manifest samples and writes the
// selected outputs.
func Build(c cli.Command) {
	opt, err := checkArgsBuild(c)
	if err != nil {
		log.Fatal().Err(err).Msg("[Build] check arguments")
	}
	logger := logs.Setup(opt.LogLevel, opt.JSON)
	if err := build(opt, logger); err != nil {
		logger.Fatal().Err(err).Str("kind", string(errs.KindOf(err))).Msg("[Build] failed")
	}
}

func build(opt optionsBuild, logger zerolog.Logger) error {
	cfg, err := opt.config()
	if err != nil {
		return err
	}
	libs, err := config.ParseManifest(opt.Manifest)
	if err != nil {
		return err
	}
	for _, lib := range libs {
		logger.Info().Str("lib", lib.Name).Uint32("color", lib.Color).Int("files", len(lib.Files)).Msg("[Build] sample")
	}
	if opt.MetricsAddr != "" {
		serveMetrics(opt.MetricsAddr, logger)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	popts := []pipeline.Option{pipeline.WithLogger(logger)}
	var bars *stageBars
	if opt.Progress {
		bars = newStageBars(os.Stderr)
		popts = append(popts, pipeline.WithProgress(bars.update))
	}
	src := seqio.Files{Inputs: config.Inputs(libs), BamReaders: cfg.ScanWorkers}
	p, err := pipeline.New(cfg, src, popts...)
	if err != nil {
		return err
	}
	g, st, err := p.Run(ctx)
	if bars != nil {
		bars.finish(err == nil)
	}
	if err != nil {
		return err
	}
	logger.Info().
		Int64("sequences", st.Sequences).
		Int64("short", st.ShortSequences).
		Int64("dropped", st.Dropped).
		Int64("circular", st.Circular).
		Int64("forcedClosed", st.ForcedClosed).
		Int64("links", st.Links).
		Int64("spills", st.Spills).
		Msg("[Build] graph stats")

	for _, out := range opt.outputs() {
		if err := dump.ToFile(out.fn, g, out.write); err != nil {
			return err
		}
		logger.Info().Str("file", out.fn).Msg("[Build] written")
	}
	return nil
}
