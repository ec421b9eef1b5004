package dump

import (
	"encoding/gob"
	"io"

	"github.com/klauspost/compress/zstd"
	"github.com/pkg/errors"

	"github.com/mudesheng/cdbg/colors"
	"github.com/mudesheng/cdbg/errs"
	"github.com/mudesheng/cdbg/graph"
)

// snapshotVersion changes whenever the encoded layout does.
const snapshotVersion = 1

type snapshot struct {
	Version int
	K       int
	Colors  [][]uint32
	Unitigs []graph.Unitig
}

// WriteSnapshot encodes g, color dictionary included, as zstd-compressed
// gob.
func WriteSnapshot(w io.Writer, g *graph.Graph) error {
	zw, err := zstd.NewWriter(w)
	if err != nil {
		return writeErr(errors.Wrap(err, "zstd writer"), "dump.WriteSnapshot")
	}
	snap := snapshot{Version: snapshotVersion, K: g.K(), Colors: g.Colors().Snapshot()}
	snap.Unitigs = make([]graph.Unitig, 0, g.Len())
	g.Each(func(u *graph.Unitig) bool {
		snap.Unitigs = append(snap.Unitigs, *u)
		return true
	})
	if err := gob.NewEncoder(zw).Encode(&snap); err != nil {
		zw.Close()
		return writeErr(errors.Wrap(err, "gob encode"), "dump.WriteSnapshot")
	}
	return writeErr(zw.Close(), "dump.WriteSnapshot")
}

// ReadSnapshot decodes a graph written by WriteSnapshot.
func ReadSnapshot(r io.Reader) (*graph.Graph, error) {
	zr, err := zstd.NewReader(r)
	if err != nil {
		return nil, readErr(errors.Wrap(err, "zstd reader"), "dump.ReadSnapshot")
	}
	defer zr.Close()
	var snap snapshot
	if err := gob.NewDecoder(zr).Decode(&snap); err != nil {
		return nil, readErr(errors.Wrap(err, "gob decode"), "dump.ReadSnapshot")
	}
	if snap.Version != snapshotVersion {
		return nil, errs.Newf(errs.KindFatalIO, "dump.ReadSnapshot", "snapshot version %d, want %d", snap.Version, snapshotVersion)
	}
	dict, err := colors.FromSnapshot(snap.Colors, len(snap.Colors))
	if err != nil {
		return nil, err
	}
	for i := range snap.Unitigs {
		u := &snap.Unitigs[i]
		if u.ID != uint32(i) {
			return nil, errs.Newf(errs.KindInvariant, "dump.ReadSnapshot", "unitig %d stored at %d", u.ID, i)
		}
		for _, r := range u.Colors {
			if int(r.Color) >= len(snap.Colors) {
				return nil, errs.Newf(errs.KindInvariant, "dump.ReadSnapshot", "unitig %d names unknown color set %d", u.ID, r.Color)
			}
		}
	}
	return graph.New(snap.K, snap.Unitigs, dict), nil
}
