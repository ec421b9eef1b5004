package partition

import (
	"github.com/mudesheng/cdbg/bnt"
	"github.com/mudesheng/cdbg/kmer"
)

type mmer struct {
	pos  int
	hash uint64
	val  uint64
}

// worse reports whether a loses to b as a minimizer candidate when a sits
// left of b: larger hash, or equal hash and larger canonical m-mer.
func (a mmer) worse(b mmer) bool {
	return a.hash > b.hash || (a.hash == b.hash && a.val > b.val)
}

// MinimizerScanner walks the valid k-mer windows of a sequence and reports,
// for each, its canonical form and its minimizer: the canonical m-mer of
// smallest hash, ties going to the smaller m-mer and then to the leftmost.
// A k-mer and its reverse complement share the same minimizer. The deque is
// cleared on every invalid symbol.
type MinimizerScanner struct {
	k, m   int
	hasher kmer.Hasher

	kmask, mmask   uint64
	kshift, mshift uint

	seq      []byte
	i, run   int
	kfw, krc uint64
	mfw, mrc uint64
	dq       []mmer
	head     int
	windows  int
	emitted  int
}

func NewMinimizerScanner(k, m int, h kmer.Hasher) *MinimizerScanner {
	return &MinimizerScanner{
		k:      k,
		m:      m,
		hasher: h,
		kmask:  kmer.Mask(k),
		mmask:  kmer.Mask(m),
		kshift: uint(k-1) * bnt.NumBitsInBase,
		mshift: uint(m-1) * bnt.NumBitsInBase,
		dq:     make([]mmer, 0, k-m+1),
	}
}

func (s *MinimizerScanner) Reset(seq []byte) {
	s.seq = seq
	s.i, s.run = 0, 0
	s.kfw, s.krc, s.mfw, s.mrc = 0, 0, 0, 0
	s.dq = s.dq[:0]
	s.head = 0
	s.windows, s.emitted = 0, 0
}

func (s *MinimizerScanner) push(n mmer) {
	for len(s.dq) > s.head && s.dq[len(s.dq)-1].worse(n) {
		s.dq = s.dq[:len(s.dq)-1]
	}
	if s.head > 0 && len(s.dq) == cap(s.dq) {
		live := copy(s.dq, s.dq[s.head:])
		s.dq = s.dq[:live]
		s.head = 0
	}
	s.dq = append(s.dq, n)
}

// Next advances to the next valid k-mer window.
func (s *MinimizerScanner) Next() bool {
	for s.i < len(s.seq) {
		b := bnt.Base2Bnt[s.seq[s.i]]
		s.i++
		if s.i >= s.k {
			s.windows++
		}
		if b == bnt.Invalid {
			s.run = 0
			s.dq = s.dq[:0]
			s.head = 0
			continue
		}
		rb := uint64(bnt.BntRev[b])
		s.kfw = (s.kfw<<bnt.NumBitsInBase | uint64(b)) & s.kmask
		s.krc = s.krc>>bnt.NumBitsInBase | rb<<s.kshift
		s.mfw = (s.mfw<<bnt.NumBitsInBase | uint64(b)) & s.mmask
		s.mrc = s.mrc>>bnt.NumBitsInBase | rb<<s.mshift
		s.run++
		if s.run >= s.m {
			c := s.mfw
			if s.mrc < c {
				c = s.mrc
			}
			s.push(mmer{pos: s.i - s.m, hash: s.hasher.Hash(c, s.m), val: c})
		}
		if s.run >= s.k {
			start := s.i - s.k
			for s.dq[s.head].pos < start {
				s.head++
			}
			s.emitted++
			return true
		}
	}
	return false
}

// Pos is the start of the current k-mer.
func (s *MinimizerScanner) Pos() int { return s.i - s.k }

func (s *MinimizerScanner) Canonical() uint64 {
	if s.krc < s.kfw {
		return s.krc
	}
	return s.kfw
}

// Minimizer is the canonical m-mer chosen for the current k-mer.
func (s *MinimizerScanner) Minimizer() uint64 { return s.dq[s.head].val }

// MinimizerHash is the hash of Minimizer.
func (s *MinimizerScanner) MinimizerHash() uint64 { return s.dq[s.head].hash }

func (s *MinimizerScanner) Skipped() int { return s.windows - s.emitted }

func (s *MinimizerScanner) Emitted() int { return s.emitted }

// Minimizer computes the minimizer of a single packed k-mer directly. It is
// the reference the scanner agrees with.
func Minimizer(x uint64, k, m int, h kmer.Hasher) (val, hash uint64) {
	best := mmer{pos: -1}
	for pos := 0; pos+m <= k; pos++ {
		w := (x >> (uint(k-m-pos) * bnt.NumBitsInBase)) & kmer.Mask(m)
		c := kmer.Canonical(w, m)
		n := mmer{pos: pos, hash: h.Hash(c, m), val: c}
		if best.pos < 0 || best.worse(n) {
			best = n
		}
	}
	return best.val, best.hash
}
