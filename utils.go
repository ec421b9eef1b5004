package main

import (
	"github.com/jwaldrip/odin/cli"

	"github.com/mudesheng/cdbg/config"
	"github.com/mudesheng/cdbg/errs"
)

// ArgsOpt holds the global arguments. Zero numeric values leave the
// environment configuration alone.
type ArgsOpt struct {
	Prefix       string
	Manifest     string
	Kmer         int
	MinimizerLen int
	Buckets      int
	NumCPU       int
	LogLevel     string
	JSON         bool
}

// CheckGlobalArgs reads the global flags of the root command c.
func CheckGlobalArgs(c cli.Command) (opt ArgsOpt, err error) {
	const op = "CheckGlobalArgs"
	opt.Prefix = c.Flag("p").String()
	if opt.Prefix == "" {
		return opt, errs.Configuration(op, "args 'p' not set")
	}
	opt.Manifest = c.Flag("C").String()
	opt.LogLevel = c.Flag("logLevel").String()
	opt.JSON = c.Flag("json").Get().(bool)

	ints := []struct {
		name string
		dst  *int
	}{
		{"K", &opt.Kmer},
		{"m", &opt.MinimizerLen},
		{"B", &opt.Buckets},
		{"t", &opt.NumCPU},
	}
	for _, f := range ints {
		v, ok := c.Flag(f.name).Get().(int)
		if !ok {
			return opt, errs.Configuration(op, "args '%s': %v set error", f.name, c.Flag(f.name).String())
		}
		if v < 0 {
			return opt, errs.Configuration(op, "args '%s': %d must not be negative", f.name, v)
		}
		*f.dst = v
	}
	return opt, nil
}

// Apply copies the explicitly set global arguments over cfg.
func (opt ArgsOpt) Apply(cfg *config.Config) {
	if opt.Kmer > 0 {
		cfg.K = opt.Kmer
	}
	if opt.MinimizerLen > 0 {
		cfg.MinimizerLen = opt.MinimizerLen
	}
	if opt.Buckets > 0 {
		cfg.Buckets = opt.Buckets
	}
	if opt.NumCPU > 0 {
		cfg.Workers = opt.NumCPU
		// half of t reads input, at least one
		cfg.ScanWorkers = opt.NumCPU / 2
		if cfg.ScanWorkers < 1 {
			cfg.ScanWorkers = 1
		}
	}
}
