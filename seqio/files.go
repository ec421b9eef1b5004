package seqio

import (
	"bufio"
	"context"
	"io"
	"os"

	"github.com/biogo/biogo/alphabet"
	"github.com/biogo/biogo/io/seqio/fasta"
	"github.com/biogo/biogo/io/seqio/fastq"
	"github.com/biogo/biogo/seq/linear"
	"github.com/biogo/hts/bam"
	"github.com/biogo/hts/sam"
	"github.com/google/brotli/go/cbrotli"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pkg/errors"

	"github.com/mudesheng/cdbg/errs"
)

// Input is one file belonging to one sample.
type Input struct {
	Color uint32
	Path  string
}

// Files reads its inputs in order. BamReaders is the decompression
// concurrency handed to the BAM reader.
type Files struct {
	Inputs     []Input
	BamReaders int
}

func (f Files) Each(ctx context.Context, fn func(Record) error) error {
	for _, in := range f.Inputs {
		if err := f.eachFile(ctx, in, fn); err != nil {
			return err
		}
	}
	return nil
}

func (f Files) eachFile(ctx context.Context, in Input, fn func(Record) error) error {
	format, compress, err := FileFormat(in.Path)
	if err != nil {
		return err
	}
	fp, err := os.Open(in.Path)
	if err != nil {
		return errs.Wrap(errors.Wrapf(err, "open %s", in.Path), errs.KindFatalIO, "seqio.Files", "input unavailable")
	}
	defer fp.Close()

	r, closer, err := decompress(fp, compress)
	if err != nil {
		return errs.Wrap(errors.Wrapf(err, "decompress %s", in.Path), errs.KindFatalIO, "seqio.Files", "input unreadable")
	}
	defer closer()

	switch format {
	case FormatBam:
		err = eachBam(ctx, r, in.Color, f.BamReaders, fn)
	default:
		err = eachFastx(ctx, bufio.NewReaderSize(r, 1<<20), format, in.Color, fn)
	}
	if err != nil {
		var e *errs.Error
		if errors.As(err, &e) || ctx.Err() != nil {
			return err
		}
		return errs.Wrap(errors.Wrapf(err, "read %s", in.Path), errs.KindFatalIO, "seqio.Files", "input unreadable")
	}
	return nil
}

func decompress(r io.Reader, compress string) (io.Reader, func(), error) {
	switch compress {
	case CompressGzip:
		gzfp, err := gzip.NewReader(r)
		if err != nil {
			return nil, nil, err
		}
		return gzfp, func() { gzfp.Close() }, nil
	case CompressZstd:
		zr, err := zstd.NewReader(r, zstd.WithDecoderConcurrency(1))
		if err != nil {
			return nil, nil, err
		}
		return zr, zr.Close, nil
	case CompressBrotli:
		brfp := cbrotli.NewReader(r)
		return brfp, func() { brfp.Close() }, nil
	}
	return r, func() {}, nil
}

func eachFastx(ctx context.Context, r io.Reader, format string, color uint32, fn func(Record) error) error {
	if format == FormatFastq {
		fqfp := fastq.NewReader(r, linear.NewQSeq("", nil, alphabet.DNA, alphabet.Sanger))
		for {
			s, err := fqfp.Read()
			if err != nil {
				if err == io.EOF {
					return nil
				}
				return err
			}
			if err := ctx.Err(); err != nil {
				return err
			}
			l := s.(*linear.QSeq)
			seq := make([]byte, len(l.Seq))
			for j, v := range l.Seq {
				seq[j] = byte(v.L)
			}
			if err := fn(Record{Color: color, Name: l.ID, Seq: seq}); err != nil {
				return err
			}
		}
	}

	fafp := fasta.NewReader(r, linear.NewSeq("", nil, alphabet.DNA))
	for {
		s, err := fafp.Read()
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		l := s.(*linear.Seq)
		seq := make([]byte, len(l.Seq))
		for j, v := range l.Seq {
			seq[j] = byte(v)
		}
		if err := fn(Record{Color: color, Name: l.ID, Seq: seq}); err != nil {
			return err
		}
	}
}

// eachBam reads unaligned (or aligned) BAM records. Secondary and
// supplementary alignments repeat a primary read and are skipped.
func eachBam(ctx context.Context, r io.Reader, color uint32, readers int, fn func(Record) error) error {
	if readers < 1 {
		readers = 1
	}
	bamfp, err := bam.NewReader(r, readers)
	if err != nil {
		return err
	}
	defer bamfp.Close()
	for {
		rec, err := bamfp.Read()
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
		if rec.Flags&(sam.Secondary|sam.Supplementary) != 0 {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(Record{Color: color, Name: rec.Name, Seq: rec.Seq.Expand()}); err != nil {
			return err
		}
	}
}
