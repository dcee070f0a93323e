// Package keystore derives farmer and pool BLS key material and signs
// messages on behalf of the Farmer. It is grounded on the BLS12-381
// wrapper in orbas1-Synnergy/synnergy-network/core/security.go
// (bls.Init(bls.BLS12_381), SignByte/VerifyByte, signature aggregation via
// bls.Sign.Add), retargeted from that repo's generic signing interface to
// Chia's augmented-scheme (AugSchemeMPL) signing convention: every
// signature is produced over aggregate_public_key||msg.
package keystore

import (
	"errors"
	"sync"

	"github.com/chia-farm/farmer-core/internal/protocol"
	"github.com/herumi/bls-eth-go-binary/bls"
)

func init() {
	if err := bls.Init(bls.BLS12_381); err != nil {
		panic("keystore: bls init failed: " + err.Error())
	}
	if err := bls.SetETHmode(bls.EthModeDraft07); err != nil {
		panic("keystore: bls eth mode failed: " + err.Error())
	}
}

// ErrNoKeys is spec.md §7's fatal NoKeys condition: the keystore has no
// farmer secret keys to sign with.
var ErrNoKeys = errors.New("keystore: no farmer keys configured")

// Keystore holds the Farmer's derived farmer and pool secret keys. It is
// immutable after construction and safe for concurrent use (reads only).
type Keystore struct {
	mu         sync.RWMutex
	farmerSKs  []bls.SecretKey
	poolSKsMap map[protocol.G1]bls.SecretKey
}

// New builds a Keystore from raw farmer and pool secret key bytes (the
// 32-byte serialized form bls.SecretKey.Serialize produces, as derived by a keychain's
// master_sk_to_farmer_sk/master_sk_to_pool_sk derivation upstream of this
// package — keychain persistence itself is out of scope, spec.md §1).
func New(farmerSKBytes, poolSKBytes [][]byte) (*Keystore, error) {
	if len(farmerSKBytes) == 0 {
		return nil, ErrNoKeys
	}

	ks := &Keystore{poolSKsMap: make(map[protocol.G1]bls.SecretKey, len(poolSKBytes))}

	for _, raw := range farmerSKBytes {
		var sk bls.SecretKey
		if err := sk.Deserialize(raw); err != nil {
			return nil, err
		}
		ks.farmerSKs = append(ks.farmerSKs, sk)
	}

	for _, raw := range poolSKBytes {
		var sk bls.SecretKey
		if err := sk.Deserialize(raw); err != nil {
			return nil, err
		}
		var pk protocol.G1
		copy(pk[:], sk.GetPublicKey().Serialize())
		ks.poolSKsMap[pk] = sk
	}

	return ks, nil
}

// FarmerPublicKeys returns the set of farmer public keys this keystore
// signs for.
func (k *Keystore) FarmerPublicKeys() []protocol.G1 {
	k.mu.RLock()
	defer k.mu.RUnlock()
	out := make([]protocol.G1, len(k.farmerSKs))
	for i, sk := range k.farmerSKs {
		copy(out[i][:], sk.GetPublicKey().Serialize())
	}
	return out
}

// PoolPublicKeys returns the set of pool public keys this keystore holds
// secret keys for.
func (k *Keystore) PoolPublicKeys() []protocol.G1 {
	k.mu.RLock()
	defer k.mu.RUnlock()
	out := make([]protocol.G1, 0, len(k.poolSKsMap))
	for pk := range k.poolSKsMap {
		out = append(out, pk)
	}
	return out
}

// FarmerSKsFor returns every farmer secret key whose public key equals pk
// (normally zero or one, but the source iterates all configured keys —
// see spec.md §4.H / OQ3).
func (k *Keystore) FarmerSKsFor(pk protocol.G1) []bls.SecretKey {
	k.mu.RLock()
	defer k.mu.RUnlock()
	var out []bls.SecretKey
	for _, sk := range k.farmerSKs {
		var got protocol.G1
		copy(got[:], sk.GetPublicKey().Serialize())
		if got == pk {
			out = append(out, sk)
		}
	}
	return out
}

// PoolSKFor looks up the pool secret key matching a pool public key. The
// caller (internal/farmer/signatures.go) logs and discards the response
// when ok is false, per spec.md §4.H step 4 / MissingPoolSecretKey.
func (k *Keystore) PoolSKFor(pk protocol.G1) (bls.SecretKey, bool) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	sk, ok := k.poolSKsMap[pk]
	return sk, ok
}

// Sign augments sk's signature over msg with the given aggregate public
// key, mirroring AugSchemeMPL.sign(sk, msg, aggregate_pk): the signed
// message is aggPK || msg, which binds the share to the specific
// aggregate key it will later be combined under.
func Sign(sk bls.SecretKey, msg []byte, aggPK protocol.G1) protocol.G2 {
	signed := append(append([]byte{}, aggPK[:]...), msg...)
	sig := sk.SignByte(signed)
	var out protocol.G2
	copy(out[:], sig.Serialize())
	return out
}

// PoolSign signs the canonical bytes of a pool target directly (no
// aggregate-key augmentation — pool-target signatures are never
// aggregated with a harvester share).
func PoolSign(sk bls.SecretKey, poolTargetBytes []byte) protocol.G2 {
	sig := sk.SignByte(poolTargetBytes)
	var out protocol.G2
	copy(out[:], sig.Serialize())
	return out
}

// Aggregate combines harvester and farmer signature shares into one
// signature, mirroring AugSchemeMPL.aggregate.
func Aggregate(shares ...protocol.G2) (protocol.G2, error) {
	if len(shares) == 0 {
		return protocol.G2{}, errors.New("keystore: aggregate of zero signatures")
	}
	var agg bls.Sign
	if err := agg.Deserialize(shares[0][:]); err != nil {
		return protocol.G2{}, err
	}
	for _, s := range shares[1:] {
		var sig bls.Sign
		if err := sig.Deserialize(s[:]); err != nil {
			return protocol.G2{}, err
		}
		agg.Add(&sig)
	}
	var out protocol.G2
	copy(out[:], agg.Serialize())
	return out, nil
}

// VerifyAggregate verifies an aggregated signature over aggPK||msg against
// aggPK, mirroring AugSchemeMPL.verify for the augmented scheme.
func VerifyAggregate(aggPK protocol.G1, msg []byte, sig protocol.G2) bool {
	var pk bls.PublicKey
	if err := pk.Deserialize(aggPK[:]); err != nil {
		return false
	}
	var s bls.Sign
	if err := s.Deserialize(sig[:]); err != nil {
		return false
	}
	signed := append(append([]byte{}, aggPK[:]...), msg...)
	return s.VerifyByte(&pk, signed)
}

// AggregatePublicKeys sums public keys, used to build the plot_public_key
// used as the augmentation key for SP/block-phase shares.
func AggregatePublicKeys(pks ...protocol.G1) (protocol.G1, error) {
	if len(pks) == 0 {
		return protocol.G1{}, errors.New("keystore: aggregate of zero public keys")
	}
	var agg bls.PublicKey
	if err := agg.Deserialize(pks[0][:]); err != nil {
		return protocol.G1{}, err
	}
	for _, p := range pks[1:] {
		var pk bls.PublicKey
		if err := pk.Deserialize(p[:]); err != nil {
			return protocol.G1{}, err
		}
		agg.Add(&pk)
	}
	var out protocol.G1
	copy(out[:], agg.Serialize())
	return out, nil
}
