// Package protocol defines the wire types exchanged between the Farmer,
// Harvesters, Solvers and the Full Node.
package protocol

import (
	"encoding/binary"
	"encoding/hex"
)

// Hash32 is a 32-byte hash, used for challenge hashes, signage-point hashes,
// quality strings and puzzle hashes alike.
type Hash32 [32]byte

// String renders a Hash32 as a hex string, no 0x prefix.
func (h Hash32) String() string {
	return hex.EncodeToString(h[:])
}

// G1 is a compressed BLS12-381 G1 point (a public key), 48 bytes.
type G1 [48]byte

// G2 is a compressed BLS12-381 G2 point (a signature), 96 bytes.
type G2 [96]byte

// PlotSize describes a plot's k-size, discriminated between the v1 format
// (a single k parameter) and the v2 format (k plus a solver "strength").
type PlotSize struct {
	K        uint8
	IsV2     bool
	Strength uint8 // only meaningful when IsV2
}

// PoolTarget is the puzzle-hash payout target signed for solo-pool plots.
type PoolTarget struct {
	PuzzleHash Hash32
	MaxHeight  uint32
}

// ProofOfSpace is a harvester-produced candidate proof for a signage point.
//
// Exactly one of PoolPublicKey / PoolContractPuzzleHash is set (never both,
// never neither) — see consensus.VerifyAndGetQualityString.
type ProofOfSpace struct {
	Challenge              Hash32
	PoolPublicKey          *G1
	PoolContractPuzzleHash *Hash32
	LocalPublicKey         G1
	Size                   PlotSize
	Proof                  []byte
	FarmerPublicKey        G1
}

// SignagePoint is the message the Full Node sends to announce a new
// signage point (wire name NewSignagePoint).
type SignagePoint struct {
	ChallengeHash     Hash32
	ChallengeChainSP  Hash32
	RewardChainSP     Hash32
	Difficulty        uint64
	SubSlotIters       uint64
	SignagePointIndex uint8
	PeakHeight        uint32
	LastTxHeight      *uint32
}

// SPHash is the primary key used to address a signage point across caches:
// the challenge_chain_sp value.
func (s *SignagePoint) SPHash() Hash32 { return s.ChallengeChainSP }

// PoolDifficulty is part of NewSignagePointHarvester's pool_difficulties
// list — difficulty overrides for a specific pool-contract puzzle hash.
type PoolDifficulty struct {
	Difficulty            uint64
	SubSlotIters          uint64
	PoolContractPuzzleHash Hash32
}

// HarvesterHandshake is sent by the Farmer to every newly connected
// harvester, announcing the key set it will sign for.
type HarvesterHandshake struct {
	FarmerPublicKeys []G1
	PoolPublicKeys   []G1
}

// NewSignagePointHarvester is the fan-out message the Farmer sends to all
// harvesters when a new signage point is accepted.
type NewSignagePointHarvester struct {
	ChallengeHash     Hash32
	Difficulty        uint64
	SubSlotIters      uint64
	SignagePointIndex uint8
	SPHash            Hash32
	PoolDifficulties  []PoolDifficulty
	PeakHeight        uint32
	LastTxHeight      *uint32
}

// ProofOfSpaceFeeInfo carries optional harvester fee metadata; opaque to
// the Farmer, forwarded only where the wire format requires a slot for it.
type ProofOfSpaceFeeInfo struct {
	ApplyFeeThreshold uint32
}

// NewProofOfSpace is sent by a harvester (or synthesized from a solver
// response) when it believes it has a winning candidate.
type NewProofOfSpace struct {
	ChallengeHash                Hash32
	SPHash                       Hash32
	PlotIdentifier               string
	Proof                        ProofOfSpace
	SignagePointIndex            uint8
	IncludeSourceSignatureData   bool
	FarmerRewardAddressOverride  *Hash32
	FeeInfo                      *ProofOfSpaceFeeInfo
}

// SigningDataRecord carries optional source-signature-data context; opaque
// to the Farmer beyond being forwarded in RequestSignatures.
type SigningDataRecord struct {
	Domain string
	Data   []byte
}

// RequestSignatures asks a harvester to sign the given messages (either the
// SP-phase pair or the block-phase pair) with the plot's local key.
type RequestSignatures struct {
	PlotIdentifier    string
	ChallengeHash     Hash32
	SPHash            Hash32
	Messages          []Hash32
	MessageData       []SigningDataRecord
}

// MessageSignature pairs a signed message with its signature.
type MessageSignature struct {
	Message   Hash32
	Signature G2
}

// RespondSignatures is the harvester's reply to RequestSignatures.
type RespondSignatures struct {
	PlotIdentifier               string
	ChallengeHash                Hash32
	SPHash                       Hash32
	LocalPublicKey               G1
	FarmerPublicKey              G1
	MessageSignatures            []MessageSignature
	IncludeSourceSignatureData   bool
	FarmerRewardAddressOverride  *Hash32
}

// PartialProofTuple is a solver's four-element partial-proof fingerprint.
type PartialProofTuple [4]uint64

// Key returns the canonical, deterministic serialization of the tuple used
// both as the solver-store map key and as the wire payload element —
// big-endian, fixed-width, so equal tuples always serialize identically.
func (p PartialProofTuple) Key() string {
	var buf [32]byte
	for i, v := range p {
		binary.BigEndian.PutUint64(buf[i*8:i*8+8], v)
	}
	return string(buf[:])
}

// PartialProofsData is a v2-plot harvester's partial-proof submission,
// dispatched to solvers for completion.
type PartialProofsData struct {
	ChallengeHash          Hash32
	SPHash                 Hash32
	PlotIdentifier         string
	PartialProofs          []PartialProofTuple
	SignagePointIndex      uint8
	PlotSizeK              uint8
	Strength               uint8
	PlotID                 Hash32
	PoolPublicKey          *G1
	PoolContractPuzzleHash *Hash32
	PlotPublicKey          G1
	FarmerPublicKey        G1
}

// SolverRequest wraps a PartialProofsData dispatch to a solver peer.
type SolverRequest struct {
	Data PartialProofsData
}

// SolverResponse is a solver's reply. An empty Proof means "could not solve".
type SolverResponse struct {
	PartialProof PartialProofTuple
	Proof        []byte
}

// DeclareProofOfSpace is sent to all full nodes once the SP-phase signature
// aggregation for a candidate succeeds.
type DeclareProofOfSpace struct {
	ChallengeHash           Hash32
	ChallengeChainSP        Hash32
	SignagePointIndex       uint8
	RewardChainSP           Hash32
	ProofOfSpace            ProofOfSpace
	ChallengeChainSPSignature G2
	RewardChainSPSignature    G2
	FarmerPuzzleHash        Hash32
	PoolTarget              *PoolTarget
	PoolSignature           *G2
}

// RequestSignedValues is sent by the Full Node once it has assembled
// foliage and needs the Farmer's block-phase signatures.
type RequestSignedValues struct {
	QualityString                 Hash32
	FoliageBlockDataHash           Hash32
	FoliageTransactionBlockHash    Hash32
}

// SignedValues is the Farmer's reply to RequestSignedValues.
type SignedValues struct {
	QualityString                     Hash32
	FoliageBlockDataSignature         G2
	FoliageTransactionBlockSignature  G2
}

// FarmingInfo is an optional observer passthrough reported by a harvester
// after evaluating a signage point against its plots.
type FarmingInfo struct {
	ChallengeHash Hash32
	SPHash        Hash32
	Timestamp     int64
	Passed        uint32
	Proofs        uint32
	TotalPlots    uint64
}
