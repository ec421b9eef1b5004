package dump

import (
	"io"

	"github.com/parquet-go/parquet-go"

	"github.com/mudesheng/cdbg/graph"
)

// UnitigRecord is one unitig row of the Parquet table.
type UnitigRecord struct {
	ID              uint32   `parquet:"id"`
	Sequence        string   `parquet:"sequence"`
	Length          int32    `parquet:"length"`
	ColorIDs        []uint32 `parquet:"color_ids,list"`
	ColorRunLengths []uint32 `parquet:"color_run_lengths,list"`
	KmerCount       int32    `parquet:"kmer_count"`
	MeanCount       float64  `parquet:"mean_count"`
	Circular        bool     `parquet:"circular"`
}

func recordOf(u *graph.Unitig) UnitigRecord {
	rec := UnitigRecord{
		ID:              u.ID,
		Sequence:        string(u.Sequence()),
		Length:          int32(len(u.Seq)),
		ColorIDs:        make([]uint32, len(u.Colors)),
		ColorRunLengths: make([]uint32, len(u.Colors)),
		KmerCount:       int32(u.Kmers()),
		MeanCount:       u.MeanCount(),
		Circular:        u.Circular,
	}
	for i, r := range u.Colors {
		rec.ColorIDs[i] = uint32(r.Color)
		rec.ColorRunLengths[i] = r.Len
	}
	return rec
}

// WriteParquet writes one row per unitig in batches.
func WriteParquet(w io.Writer, g *graph.Graph) error {
	pw := parquet.NewGenericWriter[UnitigRecord](w, parquet.Compression(&parquet.Zstd))
	const batch = 1024
	rows := make([]UnitigRecord, 0, batch)
	var err error
	flush := func() {
		if len(rows) == 0 || err != nil {
			return
		}
		_, err = pw.Write(rows)
		rows = rows[:0]
	}
	g.Each(func(u *graph.Unitig) bool {
		rows = append(rows, recordOf(u))
		if len(rows) == batch {
			flush()
		}
		return err == nil
	})
	flush()
	if cerr := pw.Close(); err == nil {
		err = cerr
	}
	return writeErr(err, "dump.WriteParquet")
}

// ReadParquet reads back every row written by WriteParquet.
func ReadParquet(r io.ReaderAt, size int64) ([]UnitigRecord, error) {
	pf, err := parquet.OpenFile(r, size)
	if err != nil {
		return nil, readErr(err, "dump.ReadParquet")
	}
	pr := parquet.NewGenericReader[UnitigRecord](pf)
	defer pr.Close()
	rows := make([]UnitigRecord, pr.NumRows())
	n, err := pr.Read(rows)
	if err != nil && err != io.EOF {
		return nil, readErr(err, "dump.ReadParquet")
	}
	return rows[:n], nil
}
