package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/jwaldrip/odin/cli"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/mudesheng/cdbg/dump"
	"github.com/mudesheng/cdbg/errs"
	"github.com/mudesheng/cdbg/logs"
	"github.com/mudesheng/cdbg/query"
	"github.com/mudesheng/cdbg/seqio"
)

type optionsQuery struct {
	ArgsOpt
	Snapshot string
	Input    string
}

func checkArgsQuery(c cli.Command) (opt optionsQuery, err error) {
	gOpt, err := CheckGlobalArgs(c.Parent())
	if err != nil {
		return opt, err
	}
	opt.ArgsOpt = gOpt
	opt.Snapshot = c.Flag("snapshot").String()
	if opt.Snapshot == "" {
		opt.Snapshot = opt.Prefix + ".snap"
	}
	opt.Input = c.Flag("input").String()
	if opt.Input == "" {
		return opt, errs.Configuration("checkArgsQuery", "args 'input' not set")
	}
	if format, _, err := seqio.FileFormat(opt.Input); err != nil {
		return opt, err
	} else if format == seqio.FormatBam {
		return opt, errs.Configuration("checkArgsQuery", "query input %s must be FASTA or FASTQ", opt.Input)
	}
	return opt, nil
}

// Query prints, for every sequence of the input, its kmer hit counts
// against the graph snapshot.
func Query(c cli.Command) {
	opt, err := checkArgsQuery(c)
	if err != nil {
		log.Fatal().Err(err).Msg("[Query] check arguments")
	}
	logger := logs.Setup(opt.LogLevel, opt.JSON)
	if err := runQuery(context.Background(), opt, os.Stdout, logger); err != nil {
		logger.Fatal().Err(err).Str("kind", string(errs.KindOf(err))).Msg("[Query] failed")
	}
}

func runQuery(ctx context.Context, opt optionsQuery, w io.Writer, logger zerolog.Logger) error {
	r, err := dump.Open(opt.Snapshot)
	if err != nil {
		return err
	}
	g, err := dump.ReadSnapshot(r)
	r.Close()
	if err != nil {
		return err
	}
	if opt.Kmer > 0 && opt.Kmer != g.K() {
		return errs.Configuration("runQuery", "snapshot %s has k=%d, not %d", opt.Snapshot, g.K(), opt.Kmer)
	}
	idx := query.NewIndex(g)
	logger.Info().Int("k", g.K()).Int("unitigs", g.Len()).Int64("kmers", g.Kmers()).Msg("[runQuery] index ready")

	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "#name\tkmers\tfound\tfraction\tsamples\tunitigs\n")
	var n int
	err = seqio.Files{Inputs: []seqio.Input{{Path: opt.Input}}}.Each(ctx, func(rec seqio.Record) error {
		n++
		return writeResult(bw, rec.Name, idx.Sequence(rec.Seq))
	})
	if err != nil {
		return err
	}
	if err := bw.Flush(); err != nil {
		return errs.Wrap(errors.Wrap(err, "flush query result"), errs.KindFatalIO, "runQuery", "output unwritable")
	}
	logger.Info().Int("sequences", n).Msg("[runQuery] finished")
	return nil
}

// writeResult prints one tab-separated line; samples are "color:hits"
// sorted by color.
func writeResult(w io.Writer, name string, res query.Result) error {
	colors := make([]uint32, 0, len(res.Samples))
	for c := range res.Samples {
		colors = append(colors, c)
	}
	sort.Slice(colors, func(i, j int) bool { return colors[i] < colors[j] })
	samples := make([]string, len(colors))
	for i, c := range colors {
		samples[i] = fmt.Sprintf("%d:%d", c, res.Samples[c])
	}
	joined := strings.Join(samples, ",")
	if joined == "" {
		joined = "-"
	}
	_, err := fmt.Fprintf(w, "%s\t%d\t%d\t%.4f\t%s\t%d\n", name, res.Kmers, res.Found, res.Fraction(), joined, len(res.Unitigs))
	return err
}
