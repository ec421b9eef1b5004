package main

import (
	"net/http"
	_ "net/http/pprof"

	"github.com/jwaldrip/odin/cli"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var app = cli.New("1.0.0", "Colored compacted de Bruijn graph builder", func(c cli.Command) {})

func init() {
	app.DefineStringFlag("C", "samples.cfg", "sample manifest file")
	app.DefineStringFlag("p", "cdbg", "prefix of the output files")
	app.DefineIntFlag("K", 0, "kmer length, 0 keeps CDBG_K (default 31)")
	app.DefineIntFlag("m", 0, "minimizer length, 0 keeps CDBG_MINIMIZER_LEN")
	app.DefineIntFlag("B", 0, "number of buckets, 0 keeps CDBG_BUCKETS (default 256)")
	app.DefineIntFlag("t", 0, "number of worker goroutines, 0 keeps CDBG_WORKERS (default 4)")
	app.DefineStringFlag("logLevel", "info", "log level [debug|info|warn|error]")
	app.DefineBoolFlag("json", false, "log as JSON lines")

	build := app.DefineSubCommand("build", "build the colored compacted de Bruijn graph of the manifest samples", Build)
	{
		build.DefineBoolFlag("fa", true, "write unitigs as FASTA (prefix.unitigs.fa)")
		build.DefineBoolFlag("gfa", false, "write the graph as GFA1 (prefix.gfa)")
		build.DefineBoolFlag("dot", false, "write the graph as Graphviz DOT (prefix.dot)")
		build.DefineBoolFlag("parquet", false, "write the unitig table as Parquet (prefix.unitigs.parquet)")
		build.DefineBoolFlag("snapshot", true, "write a graph snapshot for query (prefix.snap)")
		build.DefineBoolFlag("zst", false, "zstd-compress the FASTA and GFA output")
		build.DefineBoolFlag("progress", false, "show a progress bar per stage")
		build.DefineStringFlag("metrics", "", "serve Prometheus metrics and pprof on this address, e.g. localhost:6090")
		build.DefineStringFlag("tmp", "", "directory for spill files, empty keeps CDBG_TMP_DIR")
		build.DefineIntFlag("spill", 0, "bytes a bucket keeps in memory before spilling, 0 keeps CDBG_SPILL_THRESHOLD")
		build.DefineIntFlag("colors", 0, "maximum number of distinct color sets, 0 keeps CDBG_COLOR_CEILING")
		build.DefineIntFlag("minAbundance", 0, "drop kmers seen fewer times, 0 keeps CDBG_MIN_ABUNDANCE (default 1)")
		build.DefineStringFlag("hash", "", "bucket hasher [mix|xxhash], empty keeps CDBG_HASHER")
	}
	query := app.DefineSubCommand("query", "report which samples contain the kmers of each query sequence", Query)
	{
		query.DefineStringFlag("snapshot", "", "graph snapshot, default prefix.snap")
		query.DefineStringFlag("input", "", "query sequences (*.fa, *.fq, optionally .gz/.zst/.br)")
	}
}

// serveMetrics exposes /metrics next to the pprof handlers.
func serveMetrics(addr string, logger zerolog.Logger) {
	http.Handle("/metrics", promhttp.Handler())
	go func() {
		if err := http.ListenAndServe(addr, nil); err != nil {
			logger.Error().Err(err).Str("addr", addr).Msg("[serveMetrics] metrics server stopped")
		}
	}()
}

func main() {
	app.Start()
}
