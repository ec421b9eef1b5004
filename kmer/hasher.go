package kmer

import (
	"encoding/binary"

	"github.com/cespare/xxhash"

	"github.com/mudesheng/cdbg/errs"
)

// Hasher hashes a packed window of width bases. Implementations must be
// deterministic across runs and goroutines.
type Hasher interface {
	Hash(x uint64, width int) uint64
	Name() string
}

const (
	HasherMix    = "mix"
	HasherXXHash = "xxhash"
)

// NewHasher returns the hasher registered under name.
func NewHasher(name string) (Hasher, error) {
	switch name {
	case HasherMix:
		return MixHasher{}, nil
	case HasherXXHash:
		return XXHasher{}, nil
	}
	return nil, errs.Configuration("NewHasher", "unknown hasher %q, want %q or %q", name, HasherMix, HasherXXHash)
}

// MixHasher is the invertible 64-bit finalizer of MurmurHash3. It is a
// bijection on the masked window, so distinct windows never collide.
type MixHasher struct{}

func (MixHasher) Name() string { return HasherMix }

func (MixHasher) Hash(x uint64, width int) uint64 {
	x &= Mask(width)
	x ^= x >> 33
	x *= 0xff51afd7ed558ccd
	x ^= x >> 33
	x *= 0xc4ceb9fe1a85ec53
	x ^= x >> 33
	return x
}

// XXHasher hashes the little-endian bytes of the masked window with xxhash.
type XXHasher struct{}

func (XXHasher) Name() string { return HasherXXHash }

func (XXHasher) Hash(x uint64, width int) uint64 {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], x&Mask(width))
	return xxhash.Sum64(buf[:])
}
