package dump

import (
	"io"
	"strconv"

	"github.com/awalterschulze/gographviz"

	"github.com/mudesheng/cdbg/graph"
)

// Graphviz builds a DOT graph with one record node per unitig and one edge
// per adjacency, drawn from the end it leaves to the end it enters.
func Graphviz(g *graph.Graph) (*gographviz.Graph, error) {
	gv := gographviz.NewGraph()
	if err := gv.SetName("G"); err != nil {
		return nil, err
	}
	if err := gv.SetDir(true); err != nil {
		return nil, err
	}
	if err := gv.SetStrict(false); err != nil {
		return nil, err
	}
	var err error
	g.Each(func(u *graph.Unitig) bool {
		attr := map[string]string{
			"shape": "record",
			"color": "Green",
			"label": strconv.Quote("ID:" + strconv.Itoa(int(u.ID)) + " len:" + strconv.Itoa(len(u.Seq)) + " km:" + strconv.FormatFloat(u.MeanCount(), 'f', 1, 64)),
		}
		if u.Circular {
			attr["color"] = "Red"
		}
		err = gv.AddNode("G", strconv.Itoa(int(u.ID)), attr)
		return err == nil
	})
	if err != nil {
		return nil, err
	}
	g.Each(func(u *graph.Unitig) bool {
		for e, ls := range u.Links {
			for _, l := range ls {
				if l.To < u.ID || (l.To == u.ID && int(l.ToEnd) < e) {
					continue
				}
				attr := map[string]string{
					"color": "Blue",
					"label": strconv.Quote(string([]byte{leaving(e), entering(l.ToEnd)})),
				}
				if err = gv.AddEdge(strconv.Itoa(int(u.ID)), strconv.Itoa(int(l.To)), true, attr); err != nil {
					return false
				}
			}
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	return gv, nil
}

func WriteDot(w io.Writer, g *graph.Graph) error {
	gv, err := Graphviz(g)
	if err != nil {
		return writeErr(err, "dump.WriteDot")
	}
	_, err = io.WriteString(w, gv.String())
	return writeErr(err, "dump.WriteDot")
}
