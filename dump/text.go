package dump

import (
	"bufio"
	"fmt"
	"io"

	"github.com/mudesheng/cdbg/graph"
)

// WriteFasta writes one record per unitig. The header carries the length,
// the k-mer count, the mean abundance, the color runs and the links in
// "L:<from>:<to id>:<to>" form.
func WriteFasta(w io.Writer, g *graph.Graph) error {
	bw := bufio.NewWriter(w)
	var err error
	g.Each(func(u *graph.Unitig) bool {
		fmt.Fprintf(bw, ">%d LN:i:%d KC:i:%d km:f:%.1f CL:Z:%s", u.ID, len(u.Seq), u.Kmers(), u.MeanCount(), colorRuns(u.Colors))
		if u.Circular {
			bw.WriteString(" CI:i:1")
		}
		for e, ls := range u.Links {
			for _, l := range ls {
				fmt.Fprintf(bw, " L:%c:%d:%c", leaving(e), l.To, entering(l.ToEnd))
			}
		}
		bw.WriteByte('\n')
		bw.Write(u.Sequence())
		_, err = bw.WriteString("\n")
		return err == nil
	})
	if err == nil {
		err = bw.Flush()
	}
	return writeErr(err, "dump.WriteFasta")
}

// WriteGFA writes a GFA1 graph: one S line per unitig and one L line per
// adjacency with a (k-1)M overlap. A circular unitig links to itself.
func WriteGFA(w io.Writer, g *graph.Graph) error {
	bw := bufio.NewWriter(w)
	ov := g.K() - 1
	bw.WriteString("H\tVN:Z:1.0\n")
	g.Each(func(u *graph.Unitig) bool {
		fmt.Fprintf(bw, "S\t%d\t%s\tLN:i:%d\tKC:i:%d\tCL:Z:%s\n", u.ID, u.Sequence(), len(u.Seq), u.Kmers(), colorRuns(u.Colors))
		return true
	})
	var err error
	g.Each(func(u *graph.Unitig) bool {
		if u.Circular {
			fmt.Fprintf(bw, "L\t%d\t+\t%d\t+\t%dM\n", u.ID, u.ID, ov)
		}
		for e, ls := range u.Links {
			for _, l := range ls {
				// each adjacency is stored on both of its ends
				if l.To < u.ID || (l.To == u.ID && int(l.ToEnd) < e) {
					continue
				}
				_, err = fmt.Fprintf(bw, "L\t%d\t%c\t%d\t%c\t%dM\n", u.ID, leaving(e), l.To, entering(l.ToEnd), ov)
			}
		}
		return err == nil
	})
	if err == nil {
		err = bw.Flush()
	}
	return writeErr(err, "dump.WriteGFA")
}
