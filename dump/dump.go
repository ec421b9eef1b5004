// Package dump writes a finished graph as FASTA, GFA1, Graphviz DOT,
// Parquet or a binary snapshot, and reads snapshots back.
package dump

import (
	"bufio"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/pkg/errors"

	"github.com/mudesheng/cdbg/errs"
	"github.com/mudesheng/cdbg/graph"
)

type fileWriter struct {
	fp *os.File
	zw *zstd.Encoder
	bw *bufio.Writer
}

func (w *fileWriter) Write(p []byte) (int, error) { return w.bw.Write(p) }

func (w *fileWriter) Close() error {
	err := w.bw.Flush()
	if w.zw != nil {
		if cerr := w.zw.Close(); err == nil {
			err = cerr
		}
	}
	if cerr := w.fp.Close(); err == nil {
		err = cerr
	}
	return err
}

// Create opens fn for writing, zstd-compressed when fn ends in ".zst".
func Create(fn string) (io.WriteCloser, error) {
	fp, err := os.Create(fn)
	if err != nil {
		return nil, errs.Wrap(errors.Wrapf(err, "create %s", fn), errs.KindFatalIO, "dump.Create", "output unwritable")
	}
	w := &fileWriter{fp: fp}
	var out io.Writer = fp
	if strings.HasSuffix(fn, ".zst") {
		w.zw, err = zstd.NewWriter(fp, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			fp.Close()
			return nil, errs.Wrap(errors.Wrapf(err, "zstd writer %s", fn), errs.KindFatalIO, "dump.Create", "output unwritable")
		}
		out = w.zw
	}
	w.bw = bufio.NewWriterSize(out, 1<<16)
	return w, nil
}

type fileReader struct {
	fp *os.File
	zr *zstd.Decoder
	io.Reader
}

func (r *fileReader) Close() error {
	if r.zr != nil {
		r.zr.Close()
	}
	return r.fp.Close()
}

// Open opens fn for reading, decompressing a ".zst" file.
func Open(fn string) (io.ReadCloser, error) {
	fp, err := os.Open(fn)
	if err != nil {
		return nil, errs.Wrap(errors.Wrapf(err, "open %s", fn), errs.KindFatalIO, "dump.Open", "input unreadable")
	}
	r := &fileReader{fp: fp, Reader: bufio.NewReaderSize(fp, 1<<16)}
	if strings.HasSuffix(fn, ".zst") {
		r.zr, err = zstd.NewReader(r.Reader)
		if err != nil {
			fp.Close()
			return nil, errs.Wrap(errors.Wrapf(err, "zstd reader %s", fn), errs.KindFatalIO, "dump.Open", "input unreadable")
		}
		r.Reader = r.zr
	}
	return r, nil
}

// ToFile writes g to fn with write, closing the file in every case.
func ToFile(fn string, g *graph.Graph, write func(io.Writer, *graph.Graph) error) error {
	w, err := Create(fn)
	if err != nil {
		return err
	}
	if err := write(w, g); err != nil {
		w.Close()
		return err
	}
	if err := w.Close(); err != nil {
		return errs.Wrap(errors.Wrapf(err, "close %s", fn), errs.KindFatalIO, "dump.ToFile", "output unwritable")
	}
	return nil
}

// colorRuns formats runs as "id:len,id:len".
func colorRuns(runs []graph.ColorRun) string {
	var sb strings.Builder
	for i, r := range runs {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(strconv.FormatUint(uint64(r.Color), 10))
		sb.WriteByte(':')
		sb.WriteString(strconv.FormatUint(uint64(r.Len), 10))
	}
	return sb.String()
}

// Orientations of an adjacency in GFA terms: leaving a unitig through its
// Stop end reads it forward, entering through its Start end too.
func leaving(end int) byte {
	if end == graph.Stop {
		return '+'
	}
	return '-'
}

func entering(end uint8) byte {
	if end == graph.Start {
		return '+'
	}
	return '-'
}

func writeErr(err error, op string) error {
	if err == nil {
		return nil
	}
	return errs.Wrap(err, errs.KindFatalIO, op, "writing graph")
}

func readErr(err error, op string) error {
	if err == nil {
		return nil
	}
	return errs.Wrap(err, errs.KindFatalIO, op, "reading graph")
}
