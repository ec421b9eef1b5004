package kmer

import "github.com/mudesheng/cdbg/bnt"

// Scanner walks the valid k-mer windows of one sequence. A symbol outside
// ACGTacgt restarts the window; every window it touches is counted as
// skipped rather than reported as an error.
//
//	s := kmer.NewScanner(k)
//	s.Reset(seq)
//	for s.Next() {
//		use(s.Pos(), s.Canonical())
//	}
type Scanner struct {
	k     int
	mask  uint64
	shift uint

	seq     []byte
	i       int
	run     int
	fw, rc  uint64
	windows int
	emitted int
}

func NewScanner(k int) *Scanner {
	return &Scanner{
		k:     k,
		mask:  Mask(k),
		shift: uint(k-1) * bnt.NumBitsInBase,
	}
}

// Reset restarts the scanner on seq.
func (s *Scanner) Reset(seq []byte) {
	s.seq = seq
	s.i = 0
	s.run = 0
	s.fw, s.rc = 0, 0
	s.windows, s.emitted = 0, 0
}

// Next advances to the next valid window.
func (s *Scanner) Next() bool {
	for s.i < len(s.seq) {
		b := bnt.Base2Bnt[s.seq[s.i]]
		s.i++
		if s.i >= s.k {
			s.windows++
		}
		if b == bnt.Invalid {
			s.run = 0
			continue
		}
		s.fw = (s.fw<<bnt.NumBitsInBase | uint64(b)) & s.mask
		s.rc = s.rc>>bnt.NumBitsInBase | uint64(bnt.BntRev[b])<<s.shift
		s.run++
		if s.run >= s.k {
			s.emitted++
			return true
		}
	}
	return false
}

// Pos is the 0-based start of the current window.
func (s *Scanner) Pos() int { return s.i - s.k }

// Forward is the current window as read.
func (s *Scanner) Forward() uint64 { return s.fw }

// Reverse is the reverse complement of the current window.
func (s *Scanner) Reverse() uint64 { return s.rc }

// Canonical is the smaller of Forward and Reverse.
func (s *Scanner) Canonical() uint64 {
	if s.rc < s.fw {
		return s.rc
	}
	return s.fw
}

// IsForward reports whether the canonical form is the forward strand.
func (s *Scanner) IsForward() bool { return s.fw <= s.rc }

// Skipped is the number of windows passed so far that contained an
// invalid symbol.
func (s *Scanner) Skipped() int { return s.windows - s.emitted }

// Emitted is the number of valid windows returned so far.
func (s *Scanner) Emitted() int { return s.emitted }
