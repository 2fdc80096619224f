package twin

import (
	cryptorand "crypto/rand"
	"encoding/binary"
	"math/rand/v2"
)

// NewRand returns a generator for one entity. The same (seed, stream) pair
// always yields the same sequence; seed 0 draws a fresh seed from the OS.
func NewRand(seed, stream uint64) *rand.Rand {
	if seed == 0 {
		seed = entropySeed()
	}
	return rand.New(rand.NewPCG(seed, stream))
}

func entropySeed() uint64 {
	var b [8]byte
	if _, err := cryptorand.Read(b[:]); err != nil {
		return rand.Uint64()
	}
	return binary.LittleEndian.Uint64(b[:])
}
