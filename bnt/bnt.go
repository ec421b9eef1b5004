// Package bnt holds the 2-bit nucleotide code tables shared by the k-mer,
// partition and dump packages.
package bnt

const (
	NumBitsInBase = 2
	BaseTypeNum   = 4
	BaseMask      = BaseTypeNum - 1
	// Invalid marks a byte that is not one of ACGTacgt in Base2Bnt.
	Invalid = 0xFF
)

// BitNtCharUp maps a 2-bit code back to its upper-case base.
var BitNtCharUp = [BaseTypeNum]byte{'A', 'C', 'G', 'T'}

// BntRev is the complement of a 2-bit code.
var BntRev = [BaseTypeNum]byte{3, 2, 1, 0}

// Base2Bnt maps an ASCII byte to its 2-bit code, Invalid otherwise.
var Base2Bnt [256]byte

func init() {
	for i := range Base2Bnt {
		Base2Bnt[i] = Invalid
	}
	for i, c := range BitNtCharUp {
		Base2Bnt[c] = byte(i)
		Base2Bnt[c+'a'-'A'] = byte(i)
	}
}

// Valid reports whether c is one of ACGTacgt.
func Valid(c byte) bool {
	return Base2Bnt[c] != Invalid
}

// Transform2Bnt converts seq in place to 2-bit codes and returns the number
// of invalid symbols, which are left as Invalid.
func Transform2Bnt(seq []byte) (invalid int) {
	for i, c := range seq {
		seq[i] = Base2Bnt[c]
		if seq[i] == Invalid {
			invalid++
		}
	}
	return invalid
}

// Transform2Char converts 2-bit codes to upper-case bases.
func Transform2Char(ks []byte) []byte {
	cs := make([]byte, len(ks))
	for i, b := range ks {
		cs[i] = BitNtCharUp[b&BaseMask]
	}
	return cs
}

// ReverseComplet returns the reverse complement of a 2-bit code sequence.
func ReverseComplet(ks []byte) []byte {
	rs := make([]byte, len(ks))
	for i, b := range ks {
		rs[len(ks)-1-i] = BntRev[b&BaseMask]
	}
	return rs
}
