// Package stdhash provides the blake3-based std_hash helper used
// throughout the consensus port (chia/consensus/pot_iterations.py and
// chia/types/blockchain_format/proof_of_space.py call std_hash repeatedly
// to derive plot ids, challenges and quality-filter inputs).
package stdhash

import (
	"github.com/chia-farm/farmer-core/internal/protocol"
	"github.com/zeebo/blake3"
)

// Hash returns the 32-byte blake3 digest of b.
func Hash(b []byte) protocol.Hash32 {
	sum := blake3.Sum256(b)
	var out protocol.Hash32
	copy(out[:], sum[:])
	return out
}

// HashConcat hashes the concatenation of every argument, avoiding an
// intermediate allocation for the common two/three-part case.
func HashConcat(parts ...[]byte) protocol.Hash32 {
	h := blake3.New()
	for _, p := range parts {
		h.Write(p)
	}
	var sum [32]byte
	copy(sum[:], h.Sum(nil))
	return sum
}
