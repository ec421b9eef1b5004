package config

import (
	"bufio"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/mudesheng/cdbg/errs"
	"github.com/mudesheng/cdbg/seqio"
)

// Library is one sample of the manifest: every file it lists carries its
// color.
type Library struct {
	Name  string
	Color uint32
	Files []string
}

// ParseManifest reads a sample manifest:
//
//	# comment
//	[LIB]
//	name = liver
//	color = 0
//	f1 = liver_1.fq.gz
//	f2 = liver_2.fq.gz
//
// A block without "color" gets its position among the blocks. Unknown keys
// are ignored.
func ParseManifest(fn string) ([]Library, error) {
	fp, err := os.Open(fn)
	if err != nil {
		return nil, errs.Wrap(errors.Wrapf(err, "open manifest %s", fn), errs.KindConfiguration, "config.ParseManifest", "manifest unreadable")
	}
	defer fp.Close()
	return parseManifest(fp, fn)
}

func parseManifest(r io.Reader, fn string) ([]Library, error) {
	const op = "config.ParseManifest"
	var libs []Library
	var lib *Library
	colorSet := false
	closeLib := func() error {
		if lib == nil {
			return nil
		}
		if len(lib.Files) == 0 {
			return errs.Configuration(op, "%s: library %q lists no files", fn, lib.Name)
		}
		if !colorSet {
			lib.Color = uint32(len(libs))
		}
		libs = append(libs, *lib)
		lib, colorSet = nil, false
		return nil
	}

	sc := bufio.NewScanner(r)
	for ln := 1; sc.Scan(); ln++ {
		line := strings.TrimSpace(sc.Text())
		if line == "" || line[0] == '#' || line[0] == ';' {
			continue
		}
		if line == "[LIB]" {
			if err := closeLib(); err != nil {
				return nil, err
			}
			lib = &Library{}
			continue
		}
		key, val, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key, val = strings.TrimSpace(key), strings.TrimSpace(val)
		if lib == nil {
			if key == "name" || key == "color" || key == "f1" || key == "f2" {
				return nil, errs.Configuration(op, "%s:%d: %q outside a [LIB] block", fn, ln, key)
			}
			continue
		}
		switch key {
		case "name":
			lib.Name = val
		case "color":
			c, err := strconv.ParseUint(val, 10, 32)
			if err != nil {
				return nil, errs.Configuration(op, "%s:%d: bad color %q", fn, ln, val)
			}
			lib.Color, colorSet = uint32(c), true
		case "f1", "f2":
			lib.Files = append(lib.Files, val)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, errs.Wrap(errors.Wrapf(err, "read manifest %s", fn), errs.KindConfiguration, op, "manifest unreadable")
	}
	if err := closeLib(); err != nil {
		return nil, err
	}
	if len(libs) == 0 {
		return nil, errs.Configuration(op, "%s: no [LIB] block", fn)
	}
	return libs, nil
}

// Inputs lists the files of libs with their colors, in manifest order.
func Inputs(libs []Library) []seqio.Input {
	var ins []seqio.Input
	for _, l := range libs {
		for _, f := range l.Files {
			ins = append(ins, seqio.Input{Color: l.Color, Path: f})
		}
	}
	return ins
}
