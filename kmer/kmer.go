// Package kmer packs k-mers (k <= 32) into uint64 with 2 bits per base, the
// first base in the most significant used bits, so numeric order is
// lexicographic order of the bases.
package kmer

import (
	"math/bits"

	"github.com/mudesheng/cdbg/bnt"
)

// MaxK is the longest k-mer that fits a uint64.
const MaxK = 32

// Mask returns the mask of the low 2k bits.
func Mask(k int) uint64 {
	if k >= MaxK {
		return ^uint64(0)
	}
	return (uint64(1) << (uint(k) * bnt.NumBitsInBase)) - 1
}

// Encode packs an ASCII sequence of length k. ok is false if seq contains a
// symbol outside ACGTacgt.
func Encode(seq []byte) (x uint64, ok bool) {
	for _, c := range seq {
		b := bnt.Base2Bnt[c]
		if b == bnt.Invalid {
			return 0, false
		}
		x = x<<bnt.NumBitsInBase | uint64(b)
	}
	return x, true
}

// Decode unpacks x into k upper-case bases.
func Decode(x uint64, k int) []byte {
	return AppendDecoded(make([]byte, 0, k), x, k)
}

// AppendDecoded appends the k bases of x to dst.
func AppendDecoded(dst []byte, x uint64, k int) []byte {
	for i := k - 1; i >= 0; i-- {
		dst = append(dst, bnt.BitNtCharUp[(x>>(uint(i)*bnt.NumBitsInBase))&bnt.BaseMask])
	}
	return dst
}

// ReverseComplement of a packed k-mer.
func ReverseComplement(x uint64, k int) uint64 {
	x = ^x
	x = (x>>2)&0x3333333333333333 | (x&0x3333333333333333)<<2
	x = (x>>4)&0x0F0F0F0F0F0F0F0F | (x&0x0F0F0F0F0F0F0F0F)<<4
	x = bits.ReverseBytes64(x)
	return x >> (64 - uint(k)*bnt.NumBitsInBase)
}

// Canonical returns the smaller of x and its reverse complement.
func Canonical(x uint64, k int) uint64 {
	rc := ReverseComplement(x, k)
	if rc < x {
		return rc
	}
	return x
}

// IsPalindrome reports whether x equals its own reverse complement. Only
// even k can produce one.
func IsPalindrome(x uint64, k int) bool {
	return x == ReverseComplement(x, k)
}

// Append shifts b in on the right: the successor of x through base b.
func Append(x uint64, b byte, k int) uint64 {
	return (x<<bnt.NumBitsInBase | uint64(b)) & Mask(k)
}

// Prepend shifts b in on the left: the predecessor of x through base b.
func Prepend(x uint64, b byte, k int) uint64 {
	return x>>bnt.NumBitsInBase | uint64(b)<<(uint(k-1)*bnt.NumBitsInBase)
}

// Prefix is the leading (k-1)-mer of x.
func Prefix(x uint64, k int) uint64 {
	return x >> bnt.NumBitsInBase
}

// Suffix is the trailing (k-1)-mer of x.
func Suffix(x uint64, k int) uint64 {
	return x & Mask(k-1)
}

// FirstBase is the 2-bit code of the leftmost base.
func FirstBase(x uint64, k int) byte {
	return byte(x>>(uint(k-1)*bnt.NumBitsInBase)) & bnt.BaseMask
}

// LastBase is the 2-bit code of the rightmost base.
func LastBase(x uint64) byte {
	return byte(x) & bnt.BaseMask
}
