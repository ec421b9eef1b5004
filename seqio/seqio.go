// Package seqio supplies colored sequence records to the pipeline.
package seqio

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/mudesheng/cdbg/errs"
)

// Record is one input sequence tagged with the sample (color) it belongs to.
// Seq holds raw ASCII bases.
type Record struct {
	Color uint32
	Name  string
	Seq   []byte
}

// Source is a restartable stream of records. Each calls fn for every record
// in a stable order and stops at the first error fn returns.
type Source interface {
	Each(ctx context.Context, fn func(Record) error) error
}

// Slice is an in-memory Source.
type Slice []Record

func (s Slice) Each(ctx context.Context, fn func(Record) error) error {
	for _, r := range s {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(r); err != nil {
			return err
		}
	}
	return nil
}

const (
	FormatFasta = "fa"
	FormatFastq = "fq"
	FormatBam   = "bam"

	CompressNone   = ""
	CompressGzip   = "gz"
	CompressZstd   = "zst"
	CompressBrotli = "br"
)

// FileFormat derives the record format and compression of fn from its
// suffixes, e.g. reads.fq.gz or genome.fasta.
func FileFormat(fn string) (format, compress string, err error) {
	sfn := strings.Split(strings.ToLower(filepath.Base(fn)), ".")
	if len(sfn) < 2 {
		return "", "", errs.Configuration("FileFormat", "file %s needs a suffix like *.fa, *.fq.gz, *.fasta.zst, *.fq.br or *.bam", fn)
	}
	tmp := sfn[len(sfn)-1]
	switch tmp {
	case CompressGzip, CompressZstd, CompressBrotli:
		if len(sfn) < 3 {
			return "", "", errs.Configuration("FileFormat", "file %s has no format before .%s", fn, tmp)
		}
		compress = tmp
		tmp = sfn[len(sfn)-2]
	}
	switch tmp {
	case "fa", "fasta", "fna":
		format = FormatFasta
	case "fq", "fastq":
		format = FormatFastq
	case "bam":
		if compress != CompressNone {
			return "", "", errs.Configuration("FileFormat", "file %s: bam is already compressed", fn)
		}
		format = FormatBam
	default:
		return "", "", errs.Configuration("FileFormat", "file %s: unknown format %q", fn, tmp)
	}
	return format, compress, nil
}
